package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/timmy/trendplate/internal/domain"
	"github.com/timmy/trendplate/internal/logger"
	"github.com/timmy/trendplate/internal/repository"
	"github.com/timmy/trendplate/internal/service"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// JobReader is the read surface of the job ledger.
type JobReader interface {
	ListJobs(ctx context.Context, filter repository.JobFilter) ([]domain.Job, error)
	GetJobByID(ctx context.Context, id string) (*domain.Job, error)
}

// ErrorReader exposes the diagnostic stores of a job.
type ErrorReader interface {
	ListErrorsByJob(ctx context.Context, jobID string) ([]domain.ErrorLog, error)
	ListRecoveryActionsByJob(ctx context.Context, jobID string) ([]domain.RecoveryAction, error)
}

// ErrorStatser aggregates stored errors of a job.
type ErrorStatser interface {
	GetErrorStats(ctx context.Context, jobID string) service.ErrorStats
}

// JobRunner starts coordinator runs.
type JobRunner interface {
	RunHotTrends(ctx context.Context, params service.HotTrendsParams) (*service.RunSummary, error)
	RunCategories(ctx context.Context, params service.CategoryParams) (*service.RunSummary, error)
	RunStatsRefresh(ctx context.Context, params service.StatsRefreshParams) (*service.RunSummary, error)
}

// JobHandler serves the job ledger and triggers runs.
type JobHandler struct {
	jobs   JobReader
	errs   ErrorReader
	stats  ErrorStatser
	runner JobRunner
	logger *logger.Logger

	// running guards against two runs of the same type at once
	mu      sync.Mutex
	running map[domain.JobType]bool
	wg      sync.WaitGroup
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - jobs: job ledger read surface.
//   - errs: error and recovery stores.
//   - stats: error statistics provider.
//   - runner: ETL coordinator; nil disables triggers.
//   - log: logger for background runs.
//
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(jobs JobReader, errs ErrorReader, stats ErrorStatser, runner JobRunner, log *logger.Logger) *JobHandler {
	if log == nil {
		log = logger.GetDefault()
	}
	return &JobHandler{
		jobs:    jobs,
		errs:    errs,
		stats:   stats,
		runner:  runner,
		logger:  log,
		running: make(map[domain.JobType]bool),
	}
}

// ListJobs handles GET /api/v1/jobs.
func (h *JobHandler) ListJobs(c *gin.Context) {
	filter := repository.JobFilter{
		Status: domain.JobStatus(c.Query("status")),
		Limit:  defaultListLimit,
	}
	if t := c.Query("type"); t != "" {
		jobType, ok := domain.ParseJobType(t)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown job type: " + t})
			return
		}
		filter.Type = jobType
	}
	if l := c.Query("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		filter.Limit = limit
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), filter)
	if err != nil {
		logger.FromContext(c.Request.Context()).WithError(err).Error("Failed to list jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetJobByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		logger.FromContext(c.Request.Context()).WithError(err).Error("Failed to get job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetJobErrors handles GET /api/v1/jobs/:id/errors.
func (h *JobHandler) GetJobErrors(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := h.jobs.GetJobByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	entries, err := h.errs.ListErrorsByJob(ctx, id)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to list job errors")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list job errors"})
		return
	}
	actions, err := h.errs.ListRecoveryActionsByJob(ctx, id)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to list recovery actions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list recovery actions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":            h.stats.GetErrorStats(ctx, id),
		"errors":           entries,
		"recovery_actions": actions,
	})
}

// TriggerRequest is the optional body of POST /api/v1/jobs/:type.
type TriggerRequest struct {
	Limit      int      `json:"limit" binding:"omitempty,min=1,max=1000"`
	Categories []string `json:"categories"`
	Region     string   `json:"region"`
}

// TriggerJob handles POST /api/v1/jobs/:type. The run continues in the
// background after the response.
func (h *JobHandler) TriggerJob(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "video source is not configured"})
		return
	}

	jobType, ok := domain.ParseJobType(c.Param("type"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown job type: " + c.Param("type")})
		return
	}

	var req TriggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	h.mu.Lock()
	if h.running[jobType] {
		h.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "a " + string(jobType) + " job is already running"})
		return
	}
	h.running[jobType] = true
	h.mu.Unlock()

	// Detach from the request so the run outlives it.
	ctx := h.logger.WithField(logger.FieldComponent, "api-trigger").WithContext(context.Background())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			h.mu.Lock()
			delete(h.running, jobType)
			h.mu.Unlock()
		}()

		summary, err := h.run(ctx, jobType, req)
		if err != nil {
			logger.FromContext(ctx).WithError(err).WithField(logger.FieldJobType, string(jobType)).Error("Triggered job failed")
			return
		}
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldJobID:   summary.JobID,
			logger.FieldJobType: string(jobType),
		}).Info("Triggered job finished")
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"job_type": jobType,
		"status":   "accepted",
	})
}

func (h *JobHandler) run(ctx context.Context, jobType domain.JobType, req TriggerRequest) (*service.RunSummary, error) {
	switch jobType {
	case domain.JobTypeHotTrends:
		return h.runner.RunHotTrends(ctx, service.HotTrendsParams{Limit: req.Limit, Region: req.Region})
	case domain.JobTypeCategory:
		return h.runner.RunCategories(ctx, service.CategoryParams{Categories: req.Categories, Limit: req.Limit})
	default:
		return h.runner.RunStatsRefresh(ctx, service.StatsRefreshParams{Limit: req.Limit})
	}
}

// Wait blocks until background runs started by TriggerJob finish.
func (h *JobHandler) Wait() {
	h.wg.Wait()
}
