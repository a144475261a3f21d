package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Tracing fields, propagated through the context
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the ETL job ID
	FieldJobID = "job_id"

	// FieldJobType is the coordinator entry point (hot-trends, category, stats-refresh)
	FieldJobType = "job_type"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldPhase is the pipeline phase (extraction, transformation, loading, validation)
	FieldPhase = "phase"

	// FieldItemID is the source video ID being processed
	FieldItemID = "item_id"

	// FieldCategory is the category scope of a category run
	FieldCategory = "category"
)

// ============================================
// Metric fields, attached per log line
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStrategy is the recovery strategy selected for an error
	FieldStrategy = "strategy"

	// FieldErrorType is the ETL error taxonomy entry
	FieldErrorType = "error_type"

	// FieldRetryCount is the retry attempt counter
	FieldRetryCount = "retry_count"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
