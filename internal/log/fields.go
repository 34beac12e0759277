package log

// Canonical field name constants for structured logging.
const (
	FieldSessionID     = "session_id"
	FieldTaskID        = "task_id"
	FieldCorrelationID = "correlation_id"
	FieldLoadingKey    = "loading_key"
	FieldEvent         = "event"
	FieldComponent     = "component"
	FieldReason        = "reason"
	FieldOldState      = "old_state"
	FieldNewState      = "new_state"
)
