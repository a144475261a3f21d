package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/trendplate/internal/api/handler"
	"github.com/timmy/trendplate/internal/api/middleware"
	"github.com/timmy/trendplate/internal/logger"
)

// RouterDeps holds the handlers' dependencies.
type RouterDeps struct {
	Jobs   handler.JobReader
	Errors handler.ErrorReader
	Stats  handler.ErrorStatser
	Runner handler.JobRunner // nil disables job triggers
	DB     handler.Pinger    // nil skips the database health check
	Logger *logger.Logger

	Templates handler.TemplateReader
	Archive   handler.ArchiveReader // nil disables raw batch reads
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, mode string, corsOrigins []string) (*gin.Engine, *handler.JobHandler) {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	log := deps.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  corsOrigins,
		AllowAllOrigins: len(corsOrigins) == 0,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler(deps.DB)
	jobHandler := handler.NewJobHandler(deps.Jobs, deps.Errors, deps.Stats, deps.Runner, log)
	templateHandler := handler.NewTemplateHandler(deps.Templates, deps.Jobs, deps.Archive)

	// Health check and metrics
	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/jobs", jobHandler.ListJobs)
		v1.GET("/jobs/:id", jobHandler.GetJob)
		v1.GET("/jobs/:id/errors", jobHandler.GetJobErrors)
		v1.GET("/jobs/:id/raw", templateHandler.GetRawBatch)
		v1.POST("/jobs/:type", jobHandler.TriggerJob)

		v1.GET("/templates", templateHandler.ListTemplates)
		v1.GET("/templates/:id", templateHandler.GetTemplate)
	}

	return r, jobHandler
}
