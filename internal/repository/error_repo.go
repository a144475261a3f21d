package repository

import (
	"context"
	"fmt"

	"github.com/timmy/trendplate/internal/domain"
	"gorm.io/gorm"
)

// ErrorRepository persists pipeline errors and executed recovery actions.
type ErrorRepository struct {
	db *gorm.DB
}

// NewErrorRepository creates a new ErrorRepository.
func NewErrorRepository(db *gorm.DB) *ErrorRepository {
	return &ErrorRepository{db: db}
}

// SaveError appends an error record.
func (r *ErrorRepository) SaveError(ctx context.Context, entry *domain.ErrorLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListErrorsByJob returns every error recorded for a job, oldest first.
func (r *ErrorRepository) ListErrorsByJob(ctx context.Context, jobID string) ([]domain.ErrorLog, error) {
	var entries []domain.ErrorLog
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list errors for job %s: %w", jobID, err)
	}
	return entries, nil
}

// SaveRecoveryAction appends a recovery audit record.
func (r *ErrorRepository) SaveRecoveryAction(ctx context.Context, action *domain.RecoveryAction) error {
	return r.db.WithContext(ctx).Create(action).Error
}

// ListRecoveryActionsByJob returns the recovery audit trail of a job, oldest first.
func (r *ErrorRepository) ListRecoveryActionsByJob(ctx context.Context, jobID string) ([]domain.RecoveryAction, error) {
	var actions []domain.RecoveryAction
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("timestamp ASC").
		Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("failed to list recovery actions for job %s: %w", jobID, err)
	}
	return actions, nil
}
