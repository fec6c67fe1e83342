// Package sqlite implements the DatabaseManager contract on top of
// database/sql with the CGO-free modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"nlsql/internal/adapter/sqlutil"
	"nlsql/internal/core/port"
)

const queryListTables = `
	SELECT name
	FROM sqlite_master
	WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
	ORDER BY name`

type Options struct {
	QueryTimeout time.Duration
}

func (o *Options) fill() {
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 30 * time.Second
	}
}

type Manager struct {
	cfg    port.ConnConfig
	opts   Options
	db     *sql.DB
	logger *slog.Logger
}

func NewManager(cfg port.ConnConfig, opts Options, logger *slog.Logger) *Manager {
	opts.fill()
	return &Manager{cfg: cfg, opts: opts, logger: logger}
}

// Connect opens the database file (or :memory:). SQLite has no server-side
// pooling; the pool is pinned to a single connection so that in-memory
// databases stay coherent across statements.
func (m *Manager) Connect(ctx context.Context) error {
	path := m.cfg.Database
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("enabling foreign keys: %w", err)
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		_ = db.Close()
		return fmt.Errorf("liveness probe failed: %w", err)
	}

	m.db = db
	m.logger.Info("connected to sqlite", slog.String("database", path))
	return nil
}

func (m *Manager) Disconnect(_ context.Context) error {
	if m.db != nil {
		err := m.db.Close()
		m.db = nil
		m.logger.Info("disconnected from sqlite")
		return err
	}
	return nil
}

func (m *Manager) Execute(ctx context.Context, sqlText string, params ...any) *port.QueryResult {
	if m.db == nil {
		return port.FailedResult("database not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.QueryTimeout)
	defer cancel()

	if !sqlutil.IsReadStatement(sqlText) {
		res, err := m.db.ExecContext(ctx, sqlText, params...)
		if err != nil {
			m.logger.Error("statement failed", slog.String("error", err.Error()))
			return port.FailedResult(err.Error())
		}
		affected, _ := res.RowsAffected()
		return &port.QueryResult{
			Success:  true,
			Rows:     []map[string]any{},
			RowCount: int(affected),
		}
	}

	rows, err := m.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		m.logger.Error("query failed", slog.String("error", err.Error()))
		return port.FailedResult(err.Error())
	}
	defer rows.Close()

	data, err := sqlutil.ScanRows(rows)
	if err != nil {
		return port.FailedResult(err.Error())
	}
	if data == nil {
		data = []map[string]any{}
	}
	return &port.QueryResult{Success: true, Rows: data, RowCount: len(data)}
}

func (m *Manager) ListTables(ctx context.Context) ([]string, error) {
	res := m.Execute(ctx, queryListTables)
	if !res.Success {
		return nil, fmt.Errorf("listing tables: %s", res.ErrorMessage)
	}
	tables := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if name, ok := row["name"].(string); ok {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

// DescribeTable reads table structure through SQLite pragmas. The pragmas
// take no bind parameters, so the table name is interpolated; pragma calls
// on hostile names fail and degrade to an empty facet.
func (m *Manager) DescribeTable(ctx context.Context, tableName string) (*port.TableSchema, error) {
	if m.db == nil {
		return nil, fmt.Errorf("database not connected")
	}

	schema := &port.TableSchema{
		TableName:   tableName,
		Columns:     []port.ColumnInfo{},
		PrimaryKeys: []string{},
		ForeignKeys: []port.ForeignKeyInfo{},
	}

	if res := m.Execute(ctx, fmt.Sprintf("PRAGMA table_info(%q)", tableName)); res.Success {
		for _, row := range res.Rows {
			name := asString(row["name"])
			schema.Columns = append(schema.Columns, port.ColumnInfo{
				Name:         name,
				DataType:     asString(row["type"]),
				IsNullable:   asInt64(row["notnull"]) == 0,
				DefaultValue: asString(row["dflt_value"]),
			})
			if asInt64(row["pk"]) > 0 {
				schema.PrimaryKeys = append(schema.PrimaryKeys, name)
			}
		}
	} else {
		m.logger.Warn("column lookup failed",
			slog.String("table", tableName), slog.String("error", res.ErrorMessage))
	}

	if res := m.Execute(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", tableName)); res.Success {
		for _, row := range res.Rows {
			schema.ForeignKeys = append(schema.ForeignKeys, port.ForeignKeyInfo{
				Column:           asString(row["from"]),
				ReferencedTable:  asString(row["table"]),
				ReferencedColumn: asString(row["to"]),
			})
		}
	} else {
		m.logger.Warn("foreign key lookup failed",
			slog.String("table", tableName), slog.String("error", res.ErrorMessage))
	}

	return schema, nil
}

func (m *Manager) TestConnection(ctx context.Context) bool {
	if m.db == nil {
		return false
	}
	var one int
	return m.db.QueryRowContext(ctx, "SELECT 1").Scan(&one) == nil
}

func (m *Manager) ConnectionInfo() map[string]any {
	return m.cfg.Redacted()
}

func (m *Manager) Backend() port.Backend {
	return port.BackendSQLite
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	default:
		return 0
	}
}
