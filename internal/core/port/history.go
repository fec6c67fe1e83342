package port

import "time"

// QueryRecord is one entry in a session's query history.
type QueryRecord struct {
	ID            string        `json:"id"`
	SessionID     string        `json:"session_id"`
	Query         string        `json:"query"`
	SQL           string        `json:"sql"`
	Timestamp     time.Time     `json:"timestamp"`
	RowCount      int           `json:"row_count"`
	ExecutionTime time.Duration `json:"execution_time"`
	Success       bool          `json:"success"`
	Backend       Backend       `json:"backend"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// HistoryRecorder records query outcomes, best-effort. Record must never
// fail the surrounding operation; implementations log and swallow their
// own errors.
type HistoryRecorder interface {
	Record(rec QueryRecord)
}
