package port

import "context"

// Backend identifies the kind of SQL engine behind a manager.
type Backend string

const (
	BackendPostgres Backend = "postgresql"
	BackendMySQL    Backend = "mysql"
	BackendSQLite   Backend = "sqlite"
)

// ConnConfig holds the connection parameters for one database. SQLite only
// uses Database (a file path or ":memory:").
type ConnConfig struct {
	Host     string  `json:"host"`
	Port     int     `json:"port"`
	Username string  `json:"username"`
	Password string  `json:"-"`
	Database string  `json:"database"`
	Backend  Backend `json:"backend"`
}

// Redacted returns the config as a map with the password masked. This is
// the only form in which connection details may leave the adapter.
func (c ConnConfig) Redacted() map[string]any {
	info := map[string]any{
		"host":     c.Host,
		"port":     c.Port,
		"username": c.Username,
		"database": c.Database,
		"backend":  string(c.Backend),
	}
	if c.Password != "" {
		info["password"] = "***"
	}
	return info
}

type ColumnInfo struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	IsNullable   bool   `json:"is_nullable"`
	DefaultValue string `json:"default_value,omitempty"`
	MaxLength    int64  `json:"max_length,omitempty"`
	Precision    int64  `json:"precision,omitempty"`
	Scale        int64  `json:"scale,omitempty"`
}

type ForeignKeyInfo struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// TableSchema is an immutable snapshot of one table's structure, produced
// by a manager's DescribeTable call and cached with a TTL.
type TableSchema struct {
	TableName   string           `json:"table_name"`
	Columns     []ColumnInfo     `json:"columns"`
	PrimaryKeys []string         `json:"primary_keys"`
	ForeignKeys []ForeignKeyInfo `json:"foreign_keys"`
}

// QueryResult is the uniform outcome of one Execute call.
// Success == false implies Rows is empty and ErrorMessage is set;
// Success == true implies RowCount == len(Rows) for reads, or the
// affected-row count for writes (Rows empty). Truncated is set by
// callers that cut Rows down to a row limit; adapters never set it.
type QueryResult struct {
	Success      bool             `json:"success"`
	Rows         []map[string]any `json:"rows"`
	RowCount     int              `json:"row_count"`
	Truncated    bool             `json:"truncated,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// FailedResult builds the uniform failure shape.
func FailedResult(msg string) *QueryResult {
	return &QueryResult{Success: false, Rows: []map[string]any{}, ErrorMessage: msg}
}

// DatabaseManager is the uniform contract every backend adapter implements.
// A new backend is added by implementing this interface and registering a
// factory; nothing else changes.
//
// Execute never returns a Go error: driver failures are folded into the
// QueryResult. Connect returns the underlying failure reason so callers
// can surface it.
type DatabaseManager interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Execute(ctx context.Context, sql string, params ...any) *QueryResult
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, tableName string) (*TableSchema, error)
	TestConnection(ctx context.Context) bool
	ConnectionInfo() map[string]any
	Backend() Backend
}
