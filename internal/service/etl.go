package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/timmy/trendplate/internal/domain"
	"github.com/timmy/trendplate/internal/logger"
	"github.com/timmy/trendplate/internal/source"
	"github.com/timmy/trendplate/internal/storage"
)

// Archiver stores raw extracted batches.
type Archiver interface {
	Save(ctx context.Context, jobType, jobID string, payload interface{}) (string, error)
}

// ETLConfig holds coordinator limits and policies.
type ETLConfig struct {
	Recovery          RecoveryOptions
	Eligibility       EligibilityConfig
	HotTrendsLimit    int
	CategoryLimit     int
	StatsRefreshLimit int
	Categories        []string
	Region            string
}

// ETLService orchestrates extract, transform and load for every job type.
type ETLService struct {
	source    source.VideoSource
	templates TemplateStore
	ledger    *JobLedger
	recovery  *RecoveryEngine
	processor *Processor
	archive   Archiver
	logger    *logger.Logger
	cfg       ETLConfig
	itemOpts  RecoveryOptions
}

// NewETLService creates a new ETL coordinator.
// Parameters:
//   - src: video source connector.
//   - analyzer: content analyzer.
//   - templates: template store.
//   - ledger: job ledger.
//   - recovery: recovery engine.
//   - archive: raw batch archive, may be nil.
//   - log: fallback logger.
//   - cfg: limits and policies.
//
// Returns:
//   - *ETLService: initialized coordinator.
func NewETLService(
	src source.VideoSource,
	analyzer ContentAnalyzer,
	templates TemplateStore,
	ledger *JobLedger,
	recovery *RecoveryEngine,
	archive Archiver,
	log *logger.Logger,
	cfg *ETLConfig,
) *ETLService {
	if log == nil {
		log = logger.GetDefault()
	}

	// Item and category failures are reported to the coordinator, which fails
	// the job with the partial result.
	itemOpts := cfg.Recovery
	itemOpts.SuppressJobFailure = true

	return &ETLService{
		source:    src,
		templates: templates,
		ledger:    ledger,
		recovery:  recovery,
		processor: NewProcessor(analyzer, templates, recovery, cfg.Eligibility, itemOpts),
		archive:   archive,
		logger:    log,
		cfg:       *cfg,
		itemOpts:  itemOpts,
	}
}

func (s *ETLService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// CategoryResult is the outcome of one category inside a category run.
type CategoryResult struct {
	Category  string   `json:"category"`
	Error     string   `json:"error,omitempty"`
	Total     int      `json:"total"`
	Success   int      `json:"success"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Templates []string `json:"templates"`
}

// RunSummary is returned by every coordinator entry point.
type RunSummary struct {
	JobID      string                  `json:"job_id"`
	JobType    domain.JobType          `json:"job_type"`
	Status     domain.JobStatus        `json:"status"`
	Message    string                  `json:"message,omitempty"`
	Result     domain.ProcessingResult `json:"result"`
	Categories []CategoryResult        `json:"categories,omitempty"`
	Duration   time.Duration           `json:"duration"`
}

// HotTrendsParams configures a hot-trends run.
type HotTrendsParams struct {
	Limit  int
	Region string
}

// CategoryParams configures a category run.
type CategoryParams struct {
	Categories []string
	Limit      int
}

// StatsRefreshParams configures a stats-refresh run.
type StatsRefreshParams struct {
	Limit int
}

type jobBody func(ctx context.Context, jobID string, summary *RunSummary) error

// runJob creates the job, runs body and records the terminal state. Errors and
// panics from body fail the job with the partial result before returning.
func (s *ETLService) runJob(ctx context.Context, jobType domain.JobType, params domain.JobParameters, body jobBody) (summary *RunSummary, err error) {
	start := time.Now()
	job, err := s.ledger.CreateJob(ctx, NewJob{
		Name:       fmt.Sprintf("%s %s", jobType, start.Format(time.RFC3339)),
		Type:       jobType,
		Parameters: params,
		StartTime:  start,
	})
	if err != nil {
		return nil, err
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldJobID:   job.ID,
		logger.FieldJobType: string(jobType),
	})
	summary = &RunSummary{
		JobID:   job.ID,
		JobType: jobType,
		Status:  domain.JobStatusRunning,
		Result:  domain.ProcessingResult{Templates: []string{}},
	}

	// Terminal ledger writes must land even when the run was cancelled.
	closeCtx := context.WithoutCancel(ctx)

	defer func() {
		summary.Duration = time.Since(start)
		if r := recover(); r != nil {
			s.log(ctx).WithField("stack", string(debug.Stack())).Errorf("Job panicked: %v", r)
			err = fmt.Errorf("%s job panicked: %v", jobType, r)
		}
		if err != nil {
			partial := summary.Result.ToJobResult(summary.Message)
			s.ledger.FailJob(closeCtx, job.ID, err.Error(), &partial)
			summary.Status = domain.JobStatusFailed
			s.log(ctx).WithError(err).Error("Job failed")
		}
	}()

	if err := s.ledger.StartJob(ctx, job.ID); err != nil {
		return summary, fmt.Errorf("failed to start job: %w", err)
	}
	s.log(ctx).WithField("parameters", params).Info("Job started")

	if err := body(ctx, job.ID, summary); err != nil {
		return summary, err
	}

	if err := s.ledger.CompleteJob(closeCtx, job.ID, summary.Result.ToJobResult(summary.Message)); err != nil {
		return summary, fmt.Errorf("failed to complete job: %w", err)
	}
	summary.Status = domain.JobStatusCompleted

	logger.With(logger.Fields{
		"total":     summary.Result.Total,
		"success":   summary.Result.Success,
		"failed":    summary.Result.Failed,
		"skipped":   summary.Result.Skipped,
		"templates": len(summary.Result.Templates),
	}).WithDuration(time.Since(start)).Info(ctx, "Job completed")
	return summary, nil
}

// RunHotTrends extracts the trending feed and turns it into templates.
// Parameters:
//   - ctx: context for cancellation and logging fields.
//   - params: limit and region; zero values use configured defaults.
//
// Returns:
//   - *RunSummary: run outcome, non-nil once the job exists.
//   - error: the failure that marked the job failed.
func (s *ETLService) RunHotTrends(ctx context.Context, params HotTrendsParams) (*RunSummary, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = s.cfg.HotTrendsLimit
	}
	region := params.Region
	if region == "" {
		region = s.cfg.Region
	}

	return s.runJob(ctx, domain.JobTypeHotTrends, domain.JobParameters{"limit": limit, "region": region},
		func(ctx context.Context, jobID string, summary *RunSummary) error {
			var items []domain.VideoItem
			_, err := s.recovery.RunWithRetry(ctx, jobID, ExtractionContext{Query: "trending"}, &s.cfg.Recovery,
				func(ctx context.Context) error {
					var err error
					items, err = s.source.ScrapeTrending(ctx, source.TrendingOptions{Limit: limit, Region: region})
					return err
				})
			if err != nil {
				return fmt.Errorf("extraction failed: %w", err)
			}

			s.archiveBatch(ctx, domain.JobTypeHotTrends, jobID, items)

			if len(items) == 0 {
				summary.Message = "no trending videos extracted"
				return nil
			}

			cp := &domain.Checkpoint{Phase: domain.PhaseTransformation, Timestamp: time.Now()}
			result, err := s.processor.ProcessItemsWithRecovery(ctx, items, jobID, cp)
			summary.Result = *result
			if err != nil {
				return err
			}
			summary.Message = fmt.Sprintf("created %d templates from %d trending videos", result.Success, result.Total)
			return nil
		})
}

// RunCategories processes each category independently. A failing category is
// recorded as one failed unit and never stops the others.
// Parameters:
//   - ctx: context for cancellation and logging fields.
//   - params: categories and per-category limit; zero values use configured defaults.
//
// Returns:
//   - *RunSummary: totals across categories plus per-category results.
//   - error: non-nil only for job-level failures.
func (s *ETLService) RunCategories(ctx context.Context, params CategoryParams) (*RunSummary, error) {
	categories := params.Categories
	if len(categories) == 0 {
		categories = s.cfg.Categories
	}
	limit := params.Limit
	if limit <= 0 {
		limit = s.cfg.CategoryLimit
	}

	return s.runJob(ctx, domain.JobTypeCategory, domain.JobParameters{"categories": categories, "limit": limit},
		func(ctx context.Context, jobID string, summary *RunSummary) error {
			failedCategories := 0
			seen := make(seenItems)
			for _, category := range categories {
				cr := s.runCategory(ctx, jobID, category, limit, seen)
				if cr.Error != "" {
					failedCategories++
				}
				summary.Categories = append(summary.Categories, cr)
				summary.Result.Add(&domain.ProcessingResult{
					Total:     cr.Total,
					Success:   cr.Success,
					Failed:    cr.Failed,
					Skipped:   cr.Skipped,
					Templates: cr.Templates,
				})
			}
			summary.Message = fmt.Sprintf("processed %d categories, %d failed", len(categories), failedCategories)
			return nil
		})
}

func (s *ETLService) runCategory(ctx context.Context, jobID, category string, limit int, seen seenItems) CategoryResult {
	ctx = logger.WithField(ctx, logger.FieldCategory, category)
	cr := CategoryResult{Category: category, Templates: []string{}}

	var items []domain.VideoItem
	_, err := s.recovery.RunWithRetry(ctx, jobID, ExtractionContext{Query: category}, &s.itemOpts,
		func(ctx context.Context) error {
			var err error
			items, err = s.source.ScrapeByCategory(ctx, category, limit)
			return err
		})
	if err != nil {
		cr.Error = err.Error()
		cr.Total, cr.Failed = 1, 1
		s.log(ctx).WithError(err).Warn("Category extraction failed, continuing with next category")
		return cr
	}

	s.archiveBatch(ctx, domain.JobTypeCategory, storage.BatchName(jobID, category), items)

	cp := &domain.Checkpoint{Phase: domain.PhaseTransformation, Timestamp: time.Now(), Category: category}
	result, err := s.processor.processBatch(ctx, items, jobID, cp, seen)
	cr.Total = result.Total
	cr.Success = result.Success
	cr.Failed = result.Failed
	cr.Skipped = result.Skipped
	cr.Templates = result.Templates
	if err != nil {
		cr.Error = err.Error()
		s.log(ctx).WithError(err).Warn("Category processing aborted, continuing with next category")
	}
	return cr
}

// RunStatsRefresh re-scrapes the source video of each active template and
// overwrites its engagement counters.
// Parameters:
//   - ctx: context for cancellation and logging fields.
//   - params: number of templates to refresh; zero uses the configured default.
//
// Returns:
//   - *RunSummary: Success counts updated templates.
//   - error: the failure that marked the job failed.
func (s *ETLService) RunStatsRefresh(ctx context.Context, params StatsRefreshParams) (*RunSummary, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = s.cfg.StatsRefreshLimit
	}

	return s.runJob(ctx, domain.JobTypeStatsRefresh, domain.JobParameters{"limit": limit},
		func(ctx context.Context, jobID string, summary *RunSummary) error {
			var templates []domain.Template
			_, err := s.recovery.RunWithRetry(ctx, jobID, LoadingContext{}, &s.cfg.Recovery,
				func(ctx context.Context) error {
					var err error
					templates, err = s.templates.GetAllTemplates(ctx, limit)
					return err
				})
			if err != nil {
				return fmt.Errorf("failed to load templates: %w", err)
			}

			res := &summary.Result
			for i := range templates {
				res.Total++
				outcome, err := s.refreshTemplate(ctx, jobID, &templates[i])
				switch outcome {
				case itemSucceeded:
					res.Success++
					res.Templates = append(res.Templates, templates[i].ID)
				case itemSkipped:
					res.Skipped++
				default:
					res.Failed++
				}
				if err != nil {
					return err
				}
			}
			summary.Message = fmt.Sprintf("refreshed %d of %d templates", res.Success, res.Total)
			return nil
		})
}

// refreshTemplate returns a non-nil error only for failures that must stop the run.
func (s *ETLService) refreshTemplate(ctx context.Context, jobID string, tpl *domain.Template) (itemOutcome, error) {
	ctx = logger.WithField(ctx, logger.FieldItemID, tpl.SourceID)
	if strings.TrimSpace(tpl.VideoURL) == "" {
		return itemSkipped, nil
	}

	var item *domain.VideoItem
	res, err := s.recovery.RunWithRetry(ctx, jobID, ExtractionContext{Query: tpl.VideoURL}, &s.itemOpts,
		func(ctx context.Context) error {
			var err error
			item, err = s.source.ScrapeByURL(ctx, tpl.VideoURL)
			return err
		})
	if err != nil {
		if res.Handled && res.Strategy == domain.StrategySkip {
			return itemFailed, nil
		}
		return itemFailed, fmt.Errorf("re-scrape of %s failed: %w", tpl.SourceID, err)
	}
	if item == nil {
		s.log(ctx).Info("Source video no longer available, skipping")
		return itemSkipped, nil
	}

	res, err = s.recovery.RunWithRetry(ctx, jobID, LoadingContext{ItemID: tpl.ID}, &s.itemOpts,
		func(ctx context.Context) error {
			return s.templates.UpdateStats(ctx, tpl.ID, item.Stats())
		})
	if err != nil {
		if res.Handled && res.Strategy == domain.StrategySkip {
			return itemFailed, nil
		}
		return itemFailed, fmt.Errorf("stats update of %s failed: %w", tpl.ID, err)
	}
	return itemSucceeded, nil
}

// archiveBatch stores the raw batch when an archive is configured. Failures only warn.
func (s *ETLService) archiveBatch(ctx context.Context, jobType domain.JobType, name string, items []domain.VideoItem) {
	if s.archive == nil || len(items) == 0 {
		return
	}
	key, err := s.archive.Save(ctx, string(jobType), name, items)
	if err != nil {
		s.log(ctx).WithError(err).Warn("Failed to archive raw batch")
		return
	}
	s.log(ctx).WithFields(logger.Fields{"key": key, logger.FieldCount: len(items)}).Debug("Raw batch archived")
}
