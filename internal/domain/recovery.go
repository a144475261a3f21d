package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Strategy is the remediation chosen for a classified error.
type Strategy string

const (
	StrategyRetry      Strategy = "retry"
	StrategySkip       Strategy = "skip"
	StrategyFallback   Strategy = "fallback"
	StrategyCheckpoint Strategy = "checkpoint"
	StrategyNotifyOnly Strategy = "notify-only"
)

// Checkpoint is a progress snapshot sufficient to resume a job phase.
type Checkpoint struct {
	Phase               Phase     `json:"phase"`
	Timestamp           time.Time `json:"timestamp"`
	Category            string    `json:"category,omitempty"`
	LastProcessedIndex  int       `json:"last_processed_index"`
	LastProcessedItemID string    `json:"last_processed_item_id,omitempty"`
	ProcessedCount      int       `json:"processed_count"`
}

// Value implements the driver.Valuer interface for database serialization.
func (c *Checkpoint) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (c *Checkpoint) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return errors.New("failed to scan Checkpoint")
	}
	return json.Unmarshal(bytes, c)
}

// ErrorLog is a durable record of one pipeline error, kept for post-hoc diagnosis.
type ErrorLog struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	JobID     string    `gorm:"type:text;not null;index:idx_etl_errors_job" json:"job_id"`
	Phase     Phase     `gorm:"type:text;not null" json:"phase"`
	ErrorType ErrorType `gorm:"type:text;not null" json:"error_type"`
	Message   string    `gorm:"type:text" json:"message"`
	ItemID    string    `gorm:"type:text" json:"item_id,omitempty"`
	Stack     string    `gorm:"type:text" json:"stack,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for ErrorLog.
func (ErrorLog) TableName() string {
	return "etl_errors"
}

// RecoveryAction is an append-only audit record of an executed recovery strategy.
type RecoveryAction struct {
	ID             string      `gorm:"type:text;primaryKey" json:"id"`
	JobID          string      `gorm:"type:text;not null;index:idx_etl_recovery_job" json:"job_id"`
	Strategy       Strategy    `gorm:"type:text;not null" json:"strategy"`
	ItemID         string      `gorm:"type:text" json:"item_id,omitempty"`
	CheckpointData *Checkpoint `gorm:"type:text" json:"checkpoint_data,omitempty"`
	Error          string      `gorm:"type:text" json:"error"`
	Timestamp      time.Time   `json:"timestamp"`
}

// TableName returns the database table name for RecoveryAction.
func (RecoveryAction) TableName() string {
	return "etl_recovery_actions"
}

// ProcessingResult accumulates per-item outcomes of one processing run.
type ProcessingResult struct {
	Total     int      `json:"total"`
	Success   int      `json:"success"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Templates []string `json:"templates"`
}

// Add merges another result into r.
func (r *ProcessingResult) Add(other *ProcessingResult) {
	if other == nil {
		return
	}
	r.Total += other.Total
	r.Success += other.Success
	r.Failed += other.Failed
	r.Skipped += other.Skipped
	r.Templates = append(r.Templates, other.Templates...)
}

// ToJobResult converts the processing counters into a ledger result.
func (r *ProcessingResult) ToJobResult(message string) JobResult {
	return JobResult{
		Processed: r.Success + r.Failed + r.Skipped,
		Failed:    r.Failed,
		Skipped:   r.Skipped,
		Templates: len(r.Templates),
		Message:   message,
	}
}
