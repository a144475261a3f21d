package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/timmy/trendplate/internal/domain"
	"github.com/timmy/trendplate/internal/logger"
	"github.com/timmy/trendplate/internal/metrics"
)

// TemplateStore persists templates built from scraped videos.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, item *domain.VideoItem, sections []domain.TemplateSection, category string) (*domain.Template, error)
	UpdateStats(ctx context.Context, templateID string, stats domain.TemplateStats) error
	GetAllTemplates(ctx context.Context, limit int) ([]domain.Template, error)
}

// EligibilityConfig holds the engagement thresholds an item must reach.
type EligibilityConfig struct {
	MinViews int64
	MinLikes int64
}

// Processor runs the per-item transform and load loop.
type Processor struct {
	analyzer    ContentAnalyzer
	templates   TemplateStore
	recovery    *RecoveryEngine
	eligibility EligibilityConfig
	opts        RecoveryOptions
}

// NewProcessor creates a new processing loop.
// Parameters:
//   - analyzer: content analyzer for sections and categories.
//   - templates: template store.
//   - recovery: recovery engine consulted on item failures.
//   - eligibility: engagement thresholds.
//   - opts: retry policy passed to the recovery engine.
//
// Returns:
//   - *Processor: initialized processor.
func NewProcessor(analyzer ContentAnalyzer, templates TemplateStore, recovery *RecoveryEngine, eligibility EligibilityConfig, opts RecoveryOptions) *Processor {
	return &Processor{
		analyzer:    analyzer,
		templates:   templates,
		recovery:    recovery,
		eligibility: eligibility,
		opts:        opts,
	}
}

type itemOutcome int

const (
	itemSucceeded itemOutcome = iota
	itemFailed
	itemSkipped
)

// systemicError marks an item failure the recovery engine did not resolve as
// a skip. It aborts the loop.
type systemicError struct {
	err error
}

func (e *systemicError) Error() string { return e.err.Error() }
func (e *systemicError) Unwrap() error { return e.err }

// ProcessItemsWithRecovery transforms and loads items in order. Per-item
// failures resolved as skip are counted as failed and the loop continues;
// any other outcome aborts the loop.
// Parameters:
//   - ctx: context for cancellation and logging fields.
//   - items: extracted batch.
//   - jobID: owning job.
//   - checkpoint: base checkpoint of the batch, may be nil.
//
// Returns:
//   - *domain.ProcessingResult: counters, partial when err is non-nil.
//   - error: the systemic error that aborted the loop.
func (p *Processor) ProcessItemsWithRecovery(ctx context.Context, items []domain.VideoItem, jobID string, checkpoint *domain.Checkpoint) (*domain.ProcessingResult, error) {
	return p.processBatch(ctx, items, jobID, checkpoint, make(seenItems))
}

// seenItems holds the source IDs already attempted in one job.
type seenItems map[string]struct{}

// processBatch is ProcessItemsWithRecovery with a caller-owned seen set, so a
// video returned for several queries of one job is attempted once.
func (p *Processor) processBatch(ctx context.Context, items []domain.VideoItem, jobID string, checkpoint *domain.Checkpoint, seen seenItems) (*domain.ProcessingResult, error) {
	result := &domain.ProcessingResult{Templates: []string{}}
	log := logger.FromContext(ctx)
	start := time.Now()

	for i := range items {
		item := &items[i]
		result.Total++

		if item.ID != "" {
			if _, dup := seen[item.ID]; dup {
				log.WithFields(logger.Fields{
					logger.FieldItemID: item.ID,
					"reason":           "duplicate video in job",
				}).Debug("Skipping item")
				result.Skipped++
				metrics.ItemsProcessed.WithLabelValues(metrics.OutcomeSkipped).Inc()
				continue
			}
			seen[item.ID] = struct{}{}
		}

		outcome, templateID, err := p.processItem(ctx, item, i, jobID, checkpoint, result)
		switch outcome {
		case itemSucceeded:
			result.Success++
			result.Templates = append(result.Templates, templateID)
			metrics.ItemsProcessed.WithLabelValues(metrics.OutcomeSuccess).Inc()
		case itemSkipped:
			result.Skipped++
			metrics.ItemsProcessed.WithLabelValues(metrics.OutcomeSkipped).Inc()
		default:
			result.Failed++
			metrics.ItemsProcessed.WithLabelValues(metrics.OutcomeFailed).Inc()
		}

		var sysErr *systemicError
		if errors.As(err, &sysErr) {
			log.WithFields(logger.Fields{
				logger.FieldItemID: item.ID,
				"index":            i,
			}).WithError(sysErr.err).Error("Aborting batch on unrecovered item error")
			return result, sysErr.err
		}
	}

	logger.With(logger.Fields{
		"total":   result.Total,
		"success": result.Success,
		"failed":  result.Failed,
		"skipped": result.Skipped,
	}).WithDuration(time.Since(start)).Info(ctx, "Batch processed")
	return result, nil
}

// processItem runs steps for one item. A returned *systemicError aborts the
// loop; other errors are already accounted for by the outcome.
func (p *Processor) processItem(ctx context.Context, item *domain.VideoItem, index int, jobID string, base *domain.Checkpoint, progress *domain.ProcessingResult) (outcome itemOutcome, templateID string, err error) {
	ctx = logger.WithField(ctx, logger.FieldItemID, item.ID)
	log := logger.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("Item processing panicked: %v", r)
			outcome, templateID, err = itemFailed, "", nil
		}
	}()

	if reason := p.ineligible(item); reason != "" {
		log.WithField("reason", reason).Debug("Skipping ineligible item")
		return itemSkipped, "", nil
	}

	cp := &domain.Checkpoint{
		Phase:               domain.PhaseTransformation,
		Timestamp:           time.Now(),
		LastProcessedIndex:  index,
		LastProcessedItemID: item.ID,
		ProcessedCount:      progress.Success + progress.Failed + progress.Skipped,
	}
	if base != nil {
		cp.Category = base.Category
		cp.ProcessedCount += base.ProcessedCount
	}
	attempt := Attempt{Checkpoint: cp}

	sections, err := p.analyzer.AnalyzeForTemplates(item)
	if err != nil {
		return p.resolve(ctx, err, jobID, TransformationContext{ItemID: item.ID, Attempt: attempt})
	}
	if len(sections) == 0 {
		log.Debug("No template sections extracted, skipping")
		return itemSkipped, "", nil
	}

	category, err := p.analyzer.Categorize(item)
	if err != nil {
		return p.resolve(ctx, err, jobID, TransformationContext{ItemID: item.ID, Attempt: attempt})
	}

	cp.Phase = domain.PhaseLoading
	tpl, err := p.templates.CreateTemplate(ctx, item, sections, category)
	if err != nil {
		rc := LoadingContext{ItemID: item.ID, Attempt: attempt}
		res := p.recovery.HandleError(ctx, err, jobID, rc, &p.opts)
		switch {
		case res.Handled && res.Strategy == domain.StrategySkip:
			return itemFailed, "", nil
		case res.Handled && res.Strategy == domain.StrategyRetry:
			tpl, err = p.templates.CreateTemplate(ctx, item, sections, category)
			if err != nil {
				log.WithError(err).Error("Template write failed after retry")
				return itemFailed, "", nil
			}
		default:
			return itemFailed, "", &systemicError{err: recoveryFailure(err, res)}
		}
	}

	return itemSucceeded, tpl.ID, nil
}

// resolve maps a transformation failure onto an outcome: skip continues,
// anything else aborts.
func (p *Processor) resolve(ctx context.Context, err error, jobID string, rc RecoveryContext) (itemOutcome, string, error) {
	res := p.recovery.HandleError(ctx, err, jobID, rc, &p.opts)
	if res.Handled && res.Strategy == domain.StrategySkip {
		return itemFailed, "", nil
	}
	return itemFailed, "", &systemicError{err: recoveryFailure(err, res)}
}

func recoveryFailure(err error, res RecoveryResult) error {
	if res.Err != nil && !errors.Is(res.Err, err) {
		return fmt.Errorf("%s recovery did not resolve error: %w (recovery: %v)", res.Strategy, err, res.Err)
	}
	return fmt.Errorf("%s recovery did not resolve error: %w", res.Strategy, err)
}

// ineligible returns why an item should be skipped, or "".
func (p *Processor) ineligible(item *domain.VideoItem) string {
	var missing []string
	if item.ID == "" {
		missing = append(missing, "id")
	}
	if item.WebVideoURL == "" {
		missing = append(missing, "webVideoUrl")
	}
	if item.AuthorMeta.Name == "" {
		missing = append(missing, "authorMeta.name")
	}
	if len(missing) > 0 {
		return "missing " + strings.Join(missing, ", ")
	}
	if item.PlayCount < p.eligibility.MinViews {
		return fmt.Sprintf("views %d below %d", item.PlayCount, p.eligibility.MinViews)
	}
	if item.DiggCount < p.eligibility.MinLikes {
		return fmt.Sprintf("likes %d below %d", item.DiggCount, p.eligibility.MinLikes)
	}
	return ""
}
