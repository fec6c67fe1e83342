// Package postgres implements the DatabaseManager contract on top of a
// pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"nlsql/internal/core/port"
)

// Options bound pool size and timeouts for one manager.
type Options struct {
	MinConns       int32
	MaxConns       int32
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
}

func (o *Options) fill() {
	if o.MinConns <= 0 {
		o.MinConns = 1
	}
	if o.MaxConns <= 0 {
		o.MaxConns = 5
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 30 * time.Second
	}
}

type Manager struct {
	cfg    port.ConnConfig
	opts   Options
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewManager(cfg port.ConnConfig, opts Options, logger *slog.Logger) *Manager {
	opts.fill()
	return &Manager{cfg: cfg, opts: opts, logger: logger}
}

// Connect establishes the pool and runs a liveness probe in the same call:
// a pool that accepts TCP but rejects queries is reported as failed.
func (m *Manager) Connect(ctx context.Context) error {
	poolCfg, err := pgxpool.ParseConfig(m.dsn())
	if err != nil {
		return fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MinConns = m.opts.MinConns
	poolCfg.MaxConns = m.opts.MaxConns
	poolCfg.ConnConfig.ConnectTimeout = m.opts.ConnectTimeout

	ctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}

	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		pool.Close()
		return fmt.Errorf("liveness probe failed: %w", err)
	}

	m.pool = pool
	m.logger.Info("connected to postgresql",
		slog.String("host", m.cfg.Host),
		slog.String("database", m.cfg.Database),
	)
	return nil
}

// Disconnect is idempotent; safe to call when already disconnected.
func (m *Manager) Disconnect(_ context.Context) error {
	if m.pool != nil {
		m.pool.Close()
		m.pool = nil
		m.logger.Info("disconnected from postgresql", slog.String("database", m.cfg.Database))
	}
	return nil
}

// Execute runs one statement. Reads fetch all rows into column-keyed maps;
// writes report the affected-row count. Driver errors are folded into the
// result, never returned.
func (m *Manager) Execute(ctx context.Context, sql string, params ...any) *port.QueryResult {
	if m.pool == nil {
		return port.FailedResult("database not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.QueryTimeout)
	defer cancel()

	if !isRead(sql) {
		tag, err := m.pool.Exec(ctx, sql, params...)
		if err != nil {
			m.logger.Error("statement failed", slog.String("error", err.Error()))
			return port.FailedResult(err.Error())
		}
		return &port.QueryResult{
			Success:  true,
			Rows:     []map[string]any{},
			RowCount: int(tag.RowsAffected()),
		}
	}

	rows, err := m.pool.Query(ctx, sql, params...)
	if err != nil {
		m.logger.Error("query failed", slog.String("error", err.Error()))
		return port.FailedResult(err.Error())
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	data := []map[string]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return port.FailedResult(fmt.Sprintf("reading row values: %v", err))
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return port.FailedResult(err.Error())
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
		if name, ok := row["table_name"].(string); ok {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

// DescribeTable fetches columns, primary keys, and foreign keys as three
// catalog queries. A failing facet yields an empty list for that facet
// rather than aborting the call.
func (m *Manager) DescribeTable(ctx context.Context, tableName string) (*port.TableSchema, error) {
	if m.pool == nil {
		return nil, fmt.Errorf("database not connected")
	}

	schema := &port.TableSchema{
		TableName:   tableName,
		Columns:     []port.ColumnInfo{},
		PrimaryKeys: []string{},
		ForeignKeys: []port.ForeignKeyInfo{},
	}

	if res := m.Execute(ctx, queryColumns, tableName); res.Success {
		for _, row := range res.Rows {
			schema.Columns = append(schema.Columns, port.ColumnInfo{
				Name:         asString(row["column_name"]),
				DataType:     asString(row["data_type"]),
				IsNullable:   asBool(row["is_nullable"]),
				DefaultValue: asString(row["column_default"]),
				MaxLength:    asInt64(row["character_maximum_length"]),
				Precision:    asInt64(row["numeric_precision"]),
				Scale:        asInt64(row["numeric_scale"]),
			})
		}
	} else {
		m.logger.Warn("column lookup failed",
			slog.String("table", tableName), slog.String("error", res.ErrorMessage))
	}

	if res := m.Execute(ctx, queryPrimaryKeys, tableName); res.Success {
		for _, row := range res.Rows {
			schema.PrimaryKeys = append(schema.PrimaryKeys, asString(row["column_name"]))
		}
	} else {
		m.logger.Warn("primary key lookup failed",
			slog.String("table", tableName), slog.String("error", res.ErrorMessage))
	}

	if res := m.Execute(ctx, queryForeignKeys, tableName); res.Success {
		for _, row := range res.Rows {
			schema.ForeignKeys = append(schema.ForeignKeys, port.ForeignKeyInfo{
				Column:           asString(row["column_name"]),
				ReferencedTable:  asString(row["referenced_table"]),
				ReferencedColumn: asString(row["referenced_column"]),
			})
		}
	} else {
		m.logger.Warn("foreign key lookup failed",
			slog.String("table", tableName), slog.String("error", res.ErrorMessage))
	}

	return schema, nil
}

func (m *Manager) TestConnection(ctx context.Context) bool {
	if m.pool == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var one int
	return m.pool.QueryRow(ctx, "SELECT 1").Scan(&one) == nil
}

func (m *Manager) ConnectionInfo() map[string]any {
	return m.cfg.Redacted()
}

func (m *Manager) Backend() port.Backend {
	return port.BackendPostgres
}

func (m *Manager) dsn() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(m.cfg.Username, m.cfg.Password),
		Host:   net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port)),
		Path:   "/" + m.cfg.Database,
	}
	return u.String()
}
