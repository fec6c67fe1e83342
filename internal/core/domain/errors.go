package domain

import "fmt"

// ErrorKind classifies a failure by the stage that produced it, so callers
// can assert on which stage failed rather than just that something failed.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration_invalid"
	KindConnection    ErrorKind = "connection_failed"
	KindSchema        ErrorKind = "schema_unavailable"
	KindTranslation   ErrorKind = "translation_failed"
	KindExecution     ErrorKind = "execution_failed"
	KindValidation    ErrorKind = "validation_failed"
	KindPermission    ErrorKind = "permission_denied"
)

// Error is the structured failure every service operation surfaces: a
// taxonomy kind, a user-facing message, actionable suggestions, and
// technical details that are only exposed when the debug flag is set.
type Error struct {
	Kind        ErrorKind `json:"error_type"`
	Message     string    `json:"message"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Details     string    `json:"-"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Response renders the error for a tool reply. Technical details are
// included only in debug mode to avoid leaking internals.
func (e *Error) Response(debug bool) map[string]any {
	out := map[string]any{
		"success":    false,
		"error_type": string(e.Kind),
		"message":    e.Message,
	}
	if len(e.Suggestions) > 0 {
		out["suggestions"] = e.Suggestions
	}
	if debug && e.Details != "" {
		out["technical_details"] = e.Details
	}
	return out
}

func ConnectionError(backend, host string, port int, details string) *Error {
	target := backend
	if host != "" {
		target = fmt.Sprintf("%s at %s:%d", backend, host, port)
	}
	return &Error{
		Kind:    KindConnection,
		Message: fmt.Sprintf("Failed to connect to %s database.", target),
		Suggestions: []string{
			"Check if the database server is running",
			"Verify your connection credentials (host, port, username, password)",
			"Ensure the database name exists",
			"Check network connectivity and firewall settings",
		},
		Details: details,
	}
}

func NotConnectedError() *Error {
	return &Error{
		Kind:        KindConnection,
		Message:     "No database connection established for this session.",
		Suggestions: []string{"Connect to a database first with connect_database"},
	}
}

func ConnectionLostError() *Error {
	return &Error{
		Kind:    KindConnection,
		Message: "The database connection is no longer healthy.",
		Suggestions: []string{
			"Disconnect and reconnect to re-establish the session",
			"Check if the database server is still reachable",
		},
	}
}

func SchemaError(msg, details string) *Error {
	return &Error{
		Kind:    KindSchema,
		Message: msg,
		Suggestions: []string{
			"Verify the connected database contains tables",
			"Check that the database user has catalog read access",
		},
		Details: details,
	}
}

func TranslationError(msg, details string) *Error {
	return &Error{
		Kind:    KindTranslation,
		Message: msg,
		Suggestions: []string{
			"Rephrase the request with explicit table or column names",
			"Use list_tables and describe_table to see what can be queried",
		},
		Details: details,
	}
}

func MissingWhereError(kind string) *Error {
	return &Error{
		Kind:    KindTranslation,
		Message: fmt.Sprintf("Refusing to run a %s statement without a WHERE clause.", kind),
		Suggestions: []string{
			"Specify which rows should be affected (e.g. \"where id is 3\")",
			"Bulk modifications must name an explicit filter",
		},
	}
}

func ExecutionError(details string) *Error {
	return &Error{
		Kind:    KindExecution,
		Message: "The database rejected the generated SQL.",
		Suggestions: []string{
			"Check that the referenced tables and columns exist",
			"Try rephrasing the request more precisely",
		},
		Details: details,
	}
}

func ValidationError(msg string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: msg,
	}
}

func AuthenticationError(msg string) *Error {
	return &Error{
		Kind:    KindPermission,
		Message: msg,
		Suggestions: []string{
			"Check the username and password",
			"Use authenticate to start a session",
		},
	}
}

func PermissionError(perm string) *Error {
	return &Error{
		Kind:    KindPermission,
		Message: fmt.Sprintf("You do not have the %q permission.", perm),
		Suggestions: []string{
			"Authenticate with an account that has the required role",
			"Ask an administrator to grant the permission",
		},
	}
}
