package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/trendplate/internal/domain"
	"github.com/timmy/trendplate/internal/logger"
	"github.com/timmy/trendplate/internal/metrics"
)

var (
	// ErrNoFallback is returned when the fallback strategy has no operation to run.
	ErrNoFallback = errors.New("no fallback operation in recovery context")
	// ErrNoCheckpoint is returned when the checkpoint strategy has no checkpoint to record.
	ErrNoCheckpoint = errors.New("no checkpoint in recovery context")
)

// ErrorStore is the durable sink for errors and recovery audit records.
type ErrorStore interface {
	SaveError(ctx context.Context, entry *domain.ErrorLog) error
	ListErrorsByJob(ctx context.Context, jobID string) ([]domain.ErrorLog, error)
	SaveRecoveryAction(ctx context.Context, action *domain.RecoveryAction) error
}

// JobFailer marks a job failed. FailJob must not return an error.
type JobFailer interface {
	FailJob(ctx context.Context, jobID, message string, partial *domain.JobResult)
}

// RecoveryOptions tunes strategy execution.
type RecoveryOptions struct {
	MaxRetries         int
	RetryDelay         time.Duration
	ExponentialBackoff bool
	SkipFailedItems    bool

	// Strategy overrides the decision table when set. It is the only way to
	// reach the fallback strategy.
	Strategy domain.Strategy

	// SuppressJobFailure stops notify-only from failing the owning job. Set it
	// when the caller isolates failures at a smaller boundary, such as a category.
	SuppressJobFailure bool
}

// DefaultRecoveryOptions returns the default retry policy.
func DefaultRecoveryOptions() RecoveryOptions {
	return RecoveryOptions{
		MaxRetries:         3,
		RetryDelay:         time.Second,
		ExponentialBackoff: true,
		SkipFailedItems:    true,
	}
}

// RecoveryResult reports what the engine did with an error.
// Handled means the error was accounted for, not that the operation succeeded.
type RecoveryResult struct {
	Handled    bool
	Strategy   domain.Strategy
	RetryCount int
	Err        error
}

// ErrorStats aggregates the stored errors of a job.
type ErrorStats struct {
	Total   int                      `json:"total"`
	ByType  map[domain.ErrorType]int `json:"by_type"`
	ByPhase map[domain.Phase]int     `json:"by_phase"`
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RecoveryEngine classifies pipeline errors and executes recovery strategies.
type RecoveryEngine struct {
	store  ErrorStore
	jobs   JobFailer
	logger *logger.Logger
	sleep  SleepFunc
}

// NewRecoveryEngine creates a new recovery engine.
// Parameters:
//   - store: durable error store; nil logs to the logger only.
//   - jobs: job ledger used by notify-only; nil disables job failure.
//   - log: fallback logger when the context carries none.
//
// Returns:
//   - *RecoveryEngine: initialized engine.
func NewRecoveryEngine(store ErrorStore, jobs JobFailer, log *logger.Logger) *RecoveryEngine {
	if log == nil {
		log = logger.GetDefault()
	}
	return &RecoveryEngine{
		store:  store,
		jobs:   jobs,
		logger: log,
		sleep:  sleepContext,
	}
}

// SetSleep replaces the backoff sleeper.
func (e *RecoveryEngine) SetSleep(fn SleepFunc) {
	if fn != nil {
		e.sleep = fn
	}
}

func (e *RecoveryEngine) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return e.logger
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SelectStrategy picks a recovery strategy from the error type, phase and
// the presence of an item ID or checkpoint. It has no side effects.
func SelectStrategy(errorType domain.ErrorType, phase domain.Phase, hasItemID, hasCheckpoint bool) domain.Strategy {
	switch errorType {
	case domain.ErrorTypeConnection, domain.ErrorTypeTimeout:
		return domain.StrategyRetry
	case domain.ErrorTypeValidation:
		return domain.StrategySkip
	case domain.ErrorTypeAuthentication, domain.ErrorTypePermission:
		return domain.StrategyNotifyOnly
	}

	switch {
	case phase == domain.PhaseExtraction:
		return domain.StrategyRetry
	case (phase == domain.PhaseTransformation || phase == domain.PhaseLoading) && hasItemID:
		return domain.StrategySkip
	case hasCheckpoint:
		return domain.StrategyCheckpoint
	default:
		return domain.StrategyNotifyOnly
	}
}

// HandleError normalizes err, records it, selects a strategy and executes it.
// It never panics and never returns an error of its own; failures inside a
// strategy are reported as an unhandled result.
// Parameters:
//   - ctx: context for cancellation and logging fields.
//   - err: the failure to handle.
//   - jobID: owning job.
//   - rc: phase-specific recovery context.
//   - opts: retry policy; nil uses DefaultRecoveryOptions.
//
// Returns:
//   - RecoveryResult: the executed strategy and its outcome.
func (e *RecoveryEngine) HandleError(ctx context.Context, err error, jobID string, rc RecoveryContext, opts *RecoveryOptions) RecoveryResult {
	if err == nil {
		return RecoveryResult{Handled: true}
	}
	if opts == nil {
		defaults := DefaultRecoveryOptions()
		opts = &defaults
	}

	// Without a context nothing can be retried or resumed.
	forced := domain.Strategy("")
	if rc == nil {
		rc = unscopedContext{}
		forced = domain.StrategyNotifyOnly
	}

	etlErr := domain.NormalizeError(err, rc.Phase())
	e.recordError(ctx, etlErr, jobID, rc)

	attempt := rc.attempt()
	strategy := forced
	if strategy == "" {
		strategy = opts.Strategy
	}
	if strategy == "" {
		strategy = SelectStrategy(etlErr.Type, rc.Phase(), rc.itemID() != "", attempt.Checkpoint != nil)
	}

	result := e.execute(ctx, strategy, etlErr, jobID, rc, opts)
	metrics.RecoveryActions.WithLabelValues(string(result.Strategy), strconv.FormatBool(result.Handled)).Inc()
	return result
}

// RunWithRetry invokes op and hands each failure to HandleError, re-invoking op
// for as long as the engine answers with a handled retry.
// Parameters:
//   - ctx: context for cancellation and logging fields.
//   - jobID: owning job.
//   - rc: recovery context of the operation; its retry count is the starting point.
//   - opts: retry policy; nil uses DefaultRecoveryOptions.
//   - op: the operation to run.
//
// Returns:
//   - RecoveryResult: outcome of the last handled error, zero value on first-try success.
//   - error: nil if op (or a fallback) eventually succeeded, otherwise the last failure.
func (e *RecoveryEngine) RunWithRetry(ctx context.Context, jobID string, rc RecoveryContext, opts *RecoveryOptions, op func(ctx context.Context) error) (RecoveryResult, error) {
	if rc == nil {
		rc = unscopedContext{}
	}
	var result RecoveryResult
	retryCount := rc.attempt().RetryCount
	for {
		err := op(ctx)
		if err == nil {
			result.RetryCount = retryCount
			return result, nil
		}

		result = e.HandleError(ctx, err, jobID, rc.withRetryCount(retryCount), opts)
		if result.Strategy == domain.StrategyRetry && result.Handled {
			retryCount = result.RetryCount
			continue
		}
		if result.Strategy == domain.StrategyFallback && result.Handled {
			return result, nil
		}
		if result.Err != nil {
			return result, result.Err
		}
		return result, domain.NormalizeError(err, rc.Phase())
	}
}

func (e *RecoveryEngine) execute(ctx context.Context, strategy domain.Strategy, etlErr *domain.ETLError, jobID string, rc RecoveryContext, opts *RecoveryOptions) (result RecoveryResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log(ctx).WithFields(logger.Fields{
				logger.FieldStrategy: strategy,
				"stack":              string(debug.Stack()),
			}).Errorf("Recovery strategy panicked: %v", r)
			result = RecoveryResult{
				Handled:  false,
				Strategy: strategy,
				Err:      fmt.Errorf("recovery strategy %s panicked: %v", strategy, r),
			}
		}
	}()

	switch strategy {
	case domain.StrategyRetry:
		return e.executeRetry(ctx, etlErr, jobID, rc, opts)
	case domain.StrategySkip:
		return e.executeSkip(ctx, etlErr, jobID, rc)
	case domain.StrategyFallback:
		return e.executeFallback(ctx, etlErr, jobID, rc)
	case domain.StrategyCheckpoint:
		return e.executeCheckpoint(ctx, etlErr, jobID, rc)
	case domain.StrategyNotifyOnly:
		return e.executeNotifyOnly(ctx, etlErr, jobID, rc, opts)
	default:
		return RecoveryResult{
			Handled:  false,
			Strategy: strategy,
			Err:      fmt.Errorf("unknown recovery strategy %q: %w", strategy, etlErr),
		}
	}
}

func (e *RecoveryEngine) executeRetry(ctx context.Context, etlErr *domain.ETLError, jobID string, rc RecoveryContext, opts *RecoveryOptions) RecoveryResult {
	retryCount := rc.attempt().RetryCount
	if retryCount >= opts.MaxRetries {
		if opts.SkipFailedItems {
			e.log(ctx).WithField(logger.FieldRetryCount, retryCount).
				Warn("Max retries reached, skipping")
			result := e.executeSkip(ctx, etlErr, jobID, rc)
			result.RetryCount = retryCount
			return result
		}
		return RecoveryResult{
			Handled:    false,
			Strategy:   domain.StrategyRetry,
			RetryCount: retryCount,
			Err:        etlErr,
		}
	}

	delay := opts.RetryDelay
	if opts.ExponentialBackoff {
		delay = opts.RetryDelay * time.Duration(1<<uint(retryCount))
	}

	e.log(ctx).WithFields(logger.Fields{
		logger.FieldRetryCount: retryCount + 1,
		logger.FieldDurationMs: delay.Milliseconds(),
	}).Info("Retrying after backoff")

	if err := e.sleep(ctx, delay); err != nil {
		return RecoveryResult{
			Handled:    false,
			Strategy:   domain.StrategyRetry,
			RetryCount: retryCount,
			Err:        err,
		}
	}
	return RecoveryResult{
		Handled:    true,
		Strategy:   domain.StrategyRetry,
		RetryCount: retryCount + 1,
	}
}

func (e *RecoveryEngine) executeSkip(ctx context.Context, etlErr *domain.ETLError, jobID string, rc RecoveryContext) RecoveryResult {
	e.log(ctx).WithFields(logger.Fields{
		logger.FieldItemID:    rc.itemID(),
		logger.FieldErrorType: etlErr.Type,
	}).Warn("Skipping failed item")

	e.recordAction(ctx, jobID, domain.StrategySkip, rc.itemID(), nil, etlErr)
	return RecoveryResult{Handled: true, Strategy: domain.StrategySkip}
}

func (e *RecoveryEngine) executeFallback(ctx context.Context, etlErr *domain.ETLError, jobID string, rc RecoveryContext) RecoveryResult {
	fallback := rc.attempt().Fallback
	if fallback == nil {
		return RecoveryResult{Handled: false, Strategy: domain.StrategyFallback, Err: ErrNoFallback}
	}
	if err := fallback(ctx); err != nil {
		e.log(ctx).WithError(err).Error("Fallback operation failed")
		return RecoveryResult{Handled: false, Strategy: domain.StrategyFallback, Err: err}
	}

	e.recordAction(ctx, jobID, domain.StrategyFallback, rc.itemID(), nil, etlErr)
	return RecoveryResult{Handled: true, Strategy: domain.StrategyFallback}
}

func (e *RecoveryEngine) executeCheckpoint(ctx context.Context, etlErr *domain.ETLError, jobID string, rc RecoveryContext) RecoveryResult {
	cp := rc.attempt().Checkpoint
	if cp == nil {
		return RecoveryResult{Handled: false, Strategy: domain.StrategyCheckpoint, Err: ErrNoCheckpoint}
	}

	e.log(ctx).WithFields(logger.Fields{
		"last_processed_index": cp.LastProcessedIndex,
		"processed_count":      cp.ProcessedCount,
	}).Info("Recording checkpoint for resumption")

	e.recordAction(ctx, jobID, domain.StrategyCheckpoint, rc.itemID(), cp, etlErr)
	return RecoveryResult{Handled: true, Strategy: domain.StrategyCheckpoint}
}

func (e *RecoveryEngine) executeNotifyOnly(ctx context.Context, etlErr *domain.ETLError, jobID string, rc RecoveryContext, opts *RecoveryOptions) RecoveryResult {
	e.log(ctx).WithFields(logger.Fields{
		logger.FieldErrorType: etlErr.Type,
		logger.FieldPhase:     rc.Phase(),
	}).Error("Unrecoverable error, operator attention required")

	e.recordAction(ctx, jobID, domain.StrategyNotifyOnly, rc.itemID(), nil, etlErr)

	if !opts.SuppressJobFailure && e.jobs != nil && jobID != "" {
		e.jobs.FailJob(ctx, jobID, etlErr.Error(), nil)
	}
	return RecoveryResult{Handled: true, Strategy: domain.StrategyNotifyOnly}
}

// recordError writes the error to the logger and the durable store.
// Store failures and panics are logged and swallowed.
func (e *RecoveryEngine) recordError(ctx context.Context, etlErr *domain.ETLError, jobID string, rc RecoveryContext) {
	stack := string(debug.Stack())
	metrics.ErrorsTotal.WithLabelValues(string(rc.Phase()), string(etlErr.Type)).Inc()

	e.log(ctx).WithFields(logger.Fields{
		logger.FieldJobID:     jobID,
		logger.FieldPhase:     rc.Phase(),
		logger.FieldItemID:    rc.itemID(),
		logger.FieldErrorType: etlErr.Type,
	}).WithError(etlErr).Error("ETL error")

	if e.store == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log(ctx).Errorf("Error store panicked: %v", r)
		}
	}()

	entry := &domain.ErrorLog{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Phase:     rc.Phase(),
		ErrorType: etlErr.Type,
		Message:   etlErr.Error(),
		ItemID:    rc.itemID(),
		Stack:     stack,
		CreatedAt: time.Now(),
	}
	if err := e.store.SaveError(ctx, entry); err != nil {
		e.log(ctx).WithError(err).Warn("Failed to persist error, logged only")
	}
}

func (e *RecoveryEngine) recordAction(ctx context.Context, jobID string, strategy domain.Strategy, itemID string, cp *domain.Checkpoint, etlErr *domain.ETLError) {
	if e.store == nil {
		return
	}
	action := &domain.RecoveryAction{
		ID:             uuid.New().String(),
		JobID:          jobID,
		Strategy:       strategy,
		ItemID:         itemID,
		CheckpointData: cp,
		Error:          etlErr.Error(),
		Timestamp:      time.Now(),
	}
	if err := e.store.SaveRecoveryAction(ctx, action); err != nil {
		e.log(ctx).WithError(err).WithField(logger.FieldStrategy, strategy).
			Warn("Failed to persist recovery action")
	}
}

// GetErrorStats aggregates the stored errors of a job by type and phase.
// Store failures yield zeroed stats.
func (e *RecoveryEngine) GetErrorStats(ctx context.Context, jobID string) ErrorStats {
	stats := ErrorStats{
		ByType:  make(map[domain.ErrorType]int),
		ByPhase: make(map[domain.Phase]int),
	}
	if e.store == nil {
		return stats
	}

	entries, err := e.store.ListErrorsByJob(ctx, jobID)
	if err != nil {
		e.log(ctx).WithError(err).Warn("Failed to load error stats")
		return stats
	}
	for _, entry := range entries {
		stats.Total++
		stats.ByType[entry.ErrorType]++
		stats.ByPhase[entry.Phase]++
	}
	return stats
}
