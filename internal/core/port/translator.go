package port

import "context"

// StatementKind is the kind of SQL statement a translation must produce.
type StatementKind string

const (
	StatementSelect StatementKind = "SELECT"
	StatementInsert StatementKind = "INSERT"
	StatementUpdate StatementKind = "UPDATE"
	StatementDelete StatementKind = "DELETE"
)

// TranslationRequest carries everything the LLM needs to produce SQL.
type TranslationRequest struct {
	Text    string
	Schemas []*TableSchema
	Backend Backend
	Kind    StatementKind
}

// TranslationResult is the tagged outcome of one translation attempt.
// Success == false implies Err is a human-readable reason.
type TranslationResult struct {
	Success bool   `json:"success"`
	SQL     string `json:"sql,omitempty"`
	Model   string `json:"model,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Translator converts natural language into a single SQL statement of the
// requested kind. Implementations must not return partial or multi-statement
// SQL on success. Available reports whether the backing model is configured;
// when false, Translate returns a failure result without network I/O.
type Translator interface {
	Available() bool
	Translate(ctx context.Context, req TranslationRequest) *TranslationResult
}
