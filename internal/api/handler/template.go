package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/trendplate/internal/domain"
	"github.com/timmy/trendplate/internal/logger"
	"github.com/timmy/trendplate/internal/repository"
	"github.com/timmy/trendplate/internal/storage"
)

// TemplateReader reads stored templates.
type TemplateReader interface {
	GetByID(ctx context.Context, id string) (*domain.Template, error)
	GetAllTemplates(ctx context.Context, limit int) ([]domain.Template, error)
}

// ArchiveReader reads raw extraction batches back from object storage.
type ArchiveReader interface {
	Key(jobType, jobID string) string
	Exists(ctx context.Context, key string) (bool, error)
	Load(ctx context.Context, key string, out interface{}) error
}

// TemplateHandler serves templates and the raw batches they were built from.
type TemplateHandler struct {
	templates TemplateReader
	jobs      JobReader
	archive   ArchiveReader
}

// NewTemplateHandler creates a template handler. A nil archive disables the
// raw batch endpoint.
func NewTemplateHandler(templates TemplateReader, jobs JobReader, archive ArchiveReader) *TemplateHandler {
	return &TemplateHandler{templates: templates, jobs: jobs, archive: archive}
}

// ListTemplates handles GET /api/v1/templates.
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	limit := defaultListLimit
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	templates, err := h.templates.GetAllTemplates(c.Request.Context(), limit)
	if err != nil {
		logger.FromContext(c.Request.Context()).WithError(err).Error("Failed to list templates")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list templates"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates, "total": len(templates)})
}

// GetTemplate handles GET /api/v1/templates/:id.
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	tpl, err := h.templates.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrTemplateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		logger.FromContext(c.Request.Context()).WithError(err).Error("Failed to get template")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get template"})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// GetRawBatch handles GET /api/v1/jobs/:id/raw. Category jobs archive one
// batch per category, selected with ?category=.
func (h *TemplateHandler) GetRawBatch(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "raw archive is not configured"})
		return
	}
	ctx := c.Request.Context()

	job, err := h.jobs.GetJobByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		logger.FromContext(ctx).WithError(err).Error("Failed to get job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	category := c.Query("category")
	switch job.Type {
	case domain.JobTypeStatsRefresh:
		c.JSON(http.StatusNotFound, gin.H{"error": "stats refresh jobs have no raw batch"})
		return
	case domain.JobTypeCategory:
		if category == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "category is required for category jobs"})
			return
		}
	default:
		category = ""
	}

	key := h.archive.Key(string(job.Type), storage.BatchName(job.ID, category))
	exists, err := h.archive.Exists(ctx, key)
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField("key", key).Error("Failed to check raw batch")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to reach raw archive"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "raw batch not found"})
		return
	}

	var items json.RawMessage
	if err := h.archive.Load(ctx, key, &items); err != nil {
		logger.FromContext(ctx).WithError(err).WithField("key", key).Error("Failed to load raw batch")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load raw batch"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": job.ID, "key": key, "items": items})
}
