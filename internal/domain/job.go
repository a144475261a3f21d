package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the lifecycle status of an ETL job.
// Values include JobStatusScheduled, JobStatusRunning, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusScheduled JobStatus = "scheduled"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed from this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobType identifies which coordinator entry point produced a job.
type JobType string

const (
	JobTypeHotTrends    JobType = "hot-trends"
	JobTypeCategory     JobType = "category"
	JobTypeStatsRefresh JobType = "stats-refresh"
)

// ParseJobType converts a raw string into a known JobType.
// Parameters:
//   - s: job type name such as "hot-trends".
//
// Returns:
//   - JobType: the parsed job type.
//   - bool: false when the name is not a known job type.
func ParseJobType(s string) (JobType, bool) {
	switch JobType(s) {
	case JobTypeHotTrends, JobTypeCategory, JobTypeStatsRefresh:
		return JobType(s), true
	default:
		return "", false
	}
}

// JobParameters holds the free-form input parameters of a job as JSON.
type JobParameters map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (p JobParameters) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (p *JobParameters) Scan(value interface{}) error {
	if value == nil {
		*p = JobParameters{}
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return errors.New("failed to scan JobParameters")
	}
	return json.Unmarshal(bytes, p)
}

// JobResult summarizes what a job produced.
type JobResult struct {
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Templates int    `json:"templates"`
	Skipped   int    `json:"skipped,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Value implements the driver.Valuer interface for database serialization.
func (r JobResult) Value() (driver.Value, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (r *JobResult) Scan(value interface{}) error {
	if value == nil {
		*r = JobResult{}
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return errors.New("failed to scan JobResult")
	}
	return json.Unmarshal(bytes, r)
}

// Job is one end-to-end coordinator invocation tracked in the job ledger.
type Job struct {
	ID         string        `gorm:"type:text;primaryKey" json:"id"`
	Name       string        `gorm:"type:text;not null" json:"name"`
	Type       JobType       `gorm:"type:text;not null;index:idx_etl_jobs_type" json:"type"`
	Status     JobStatus     `gorm:"type:text;index:idx_etl_jobs_status;default:scheduled" json:"status"`
	StartTime  time.Time     `gorm:"index:idx_etl_jobs_start_time" json:"start_time"`
	EndTime    *time.Time    `json:"end_time,omitempty"`
	DurationMs *int64        `json:"duration_ms,omitempty"`
	Error      string        `gorm:"type:text" json:"error,omitempty"`
	Parameters JobParameters `gorm:"type:text" json:"parameters"`
	Result     JobResult     `gorm:"type:text" json:"result"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string {
	return "etl_jobs"
}

// scanBytes normalizes the []byte or string values handed to Scan by SQL drivers.
func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("unexpected type")
	}
}
