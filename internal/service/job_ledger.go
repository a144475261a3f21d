package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/trendplate/internal/domain"
	"github.com/timmy/trendplate/internal/logger"
	"github.com/timmy/trendplate/internal/metrics"
	"github.com/timmy/trendplate/internal/repository"
)

// ErrJobTerminal is returned when updating a job that already completed or failed.
var ErrJobTerminal = errors.New("job is in a terminal state")

// JobStore is the durable backing of the job ledger.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Save(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, filter repository.JobFilter) ([]domain.Job, error)
}

// NewJob holds the fields supplied when a job is created.
type NewJob struct {
	Name       string
	Type       domain.JobType
	Parameters domain.JobParameters
	StartTime  time.Time // zero means now
}

// JobUpdate is a partial job update. Nil fields are left unchanged.
type JobUpdate struct {
	Status     *domain.JobStatus
	EndTime    *time.Time
	DurationMs *int64
	Error      *string
	Result     *domain.JobResult
}

// JobLedger records job lifecycle and results.
type JobLedger struct {
	store  JobStore
	logger *logger.Logger
}

// NewJobLedger creates a new job ledger.
func NewJobLedger(store JobStore, log *logger.Logger) *JobLedger {
	if log == nil {
		log = logger.GetDefault()
	}
	return &JobLedger{store: store, logger: log}
}

func (l *JobLedger) log(ctx context.Context) *logger.Logger {
	if lg := logger.FromContext(ctx); lg != nil {
		return lg
	}
	return l.logger
}

// CreateJob assigns an ID, defaults the start time and persists a scheduled job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - data: name, type and parameters of the job.
//
// Returns:
//   - *domain.Job: the persisted job.
//   - error: non-nil if the store write fails.
func (l *JobLedger) CreateJob(ctx context.Context, data NewJob) (*domain.Job, error) {
	start := data.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	params := data.Parameters
	if params == nil {
		params = domain.JobParameters{}
	}

	job := &domain.Job{
		ID:         uuid.New().String(),
		Name:       data.Name,
		Type:       data.Type,
		Status:     domain.JobStatusScheduled,
		StartTime:  start,
		Parameters: params,
	}
	if err := l.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// StartJob moves a scheduled job to running.
func (l *JobLedger) StartJob(ctx context.Context, id string) error {
	status := domain.JobStatusRunning
	return l.UpdateJob(ctx, id, JobUpdate{Status: &status})
}

// UpdateJob applies a partial update. When EndTime is set without a duration,
// the duration is derived from the stored start time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - update: fields to change.
//
// Returns:
//   - error: ErrJobTerminal for completed or failed jobs, store errors otherwise.
func (l *JobLedger) UpdateJob(ctx context.Context, id string, update JobUpdate) error {
	job, err := l.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, id, job.Status)
	}

	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.Error != nil {
		job.Error = *update.Error
	}
	if update.Result != nil {
		job.Result = *update.Result
	}
	if update.EndTime != nil {
		job.EndTime = update.EndTime
		if update.DurationMs == nil {
			d := update.EndTime.Sub(job.StartTime).Milliseconds()
			job.DurationMs = &d
		}
	}
	if update.DurationMs != nil {
		job.DurationMs = update.DurationMs
	}

	if err := l.store.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}

	if job.Status.IsTerminal() {
		metrics.JobsTotal.WithLabelValues(string(job.Type), string(job.Status)).Inc()
		if job.DurationMs != nil {
			metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(float64(*job.DurationMs) / 1000)
		}
	}
	return nil
}

// CompleteJob marks a job completed with its result.
func (l *JobLedger) CompleteJob(ctx context.Context, id string, result domain.JobResult) error {
	status := domain.JobStatusCompleted
	now := time.Now()
	return l.UpdateJob(ctx, id, JobUpdate{
		Status:  &status,
		EndTime: &now,
		Result:  &result,
	})
}

// FailJob marks a job failed. The partial result is merged only when given.
// Store failures are logged, never returned.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - message: failure reason.
//   - partial: result captured at failure time, may be nil.
func (l *JobLedger) FailJob(ctx context.Context, id, message string, partial *domain.JobResult) {
	status := domain.JobStatusFailed
	now := time.Now()
	update := JobUpdate{
		Status:  &status,
		EndTime: &now,
		Error:   &message,
	}
	if partial != nil {
		update.Result = partial
	}

	if err := l.UpdateJob(ctx, id, update); err != nil {
		if errors.Is(err, ErrJobTerminal) {
			l.log(ctx).WithField(logger.FieldJobID, id).Debug("Job already finished, fail ignored")
			return
		}
		l.log(ctx).WithError(err).WithField(logger.FieldJobID, id).Error("Failed to mark job failed")
	}
}

// GetRecentJobs returns the latest jobs, newest first.
func (l *JobLedger) GetRecentJobs(ctx context.Context, limit int) ([]domain.Job, error) {
	return l.store.List(ctx, repository.JobFilter{Limit: limit})
}

// GetJobsByStatus returns jobs in a given status, newest first.
func (l *JobLedger) GetJobsByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error) {
	return l.store.List(ctx, repository.JobFilter{Status: status, Limit: limit})
}

// GetJobsByType returns jobs of a given type, newest first.
func (l *JobLedger) GetJobsByType(ctx context.Context, jobType domain.JobType, limit int) ([]domain.Job, error) {
	return l.store.List(ctx, repository.JobFilter{Type: jobType, Limit: limit})
}

// ListJobs returns jobs matching filter, newest first.
func (l *JobLedger) ListJobs(ctx context.Context, filter repository.JobFilter) ([]domain.Job, error) {
	return l.store.List(ctx, filter)
}

// GetJobByID returns one job.
func (l *JobLedger) GetJobByID(ctx context.Context, id string) (*domain.Job, error) {
	return l.store.GetByID(ctx, id)
}
