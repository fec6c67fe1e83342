// Package mysql implements the DatabaseManager contract on top of
// database/sql with the go-sql-driver/mysql driver.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"nlsql/internal/adapter/sqlutil"
	"nlsql/internal/core/port"
)

type Options struct {
	MaxConns       int
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
}

func (o *Options) fill() {
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
	db     *sql.DB
	logger *slog.Logger
}

func NewManager(cfg port.ConnConfig, opts Options, logger *slog.Logger) *Manager {
	opts.fill()
	return &Manager{cfg: cfg, opts: opts, logger: logger}
}

func (m *Manager) Connect(ctx context.Context) error {
	dsnCfg := mysql.NewConfig()
	dsnCfg.User = m.cfg.Username
	dsnCfg.Passwd = m.cfg.Password
	dsnCfg.Net = "tcp"
	dsnCfg.Addr = net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dsnCfg.DBName = m.cfg.Database
	dsnCfg.Timeout = m.opts.ConnectTimeout
	dsnCfg.ParseTime = true

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return fmt.Errorf("opening connection pool: %w", err)
	}
	db.SetMaxOpenConns(m.opts.MaxConns)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		_ = db.Close()
		return fmt.Errorf("liveness probe failed: %w", err)
	}

	m.db = db
	m.logger.Info("connected to mysql",
		slog.String("host", m.cfg.Host),
		slog.String("database", m.cfg.Database),
	)
	return nil
}

func (m *Manager) Disconnect(_ context.Context) error {
	if m.db != nil {
		err := m.db.Close()
		m.db = nil
		m.logger.Info("disconnected from mysql", slog.String("database", m.cfg.Database))
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
	res := m.Execute(ctx, queryListTables, m.cfg.Database)
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

	if res := m.Execute(ctx, queryColumns, m.cfg.Database, tableName); res.Success {
		for _, row := range res.Rows {
			schema.Columns = append(schema.Columns, port.ColumnInfo{
				Name:         asString(row["column_name"]),
				DataType:     asString(row["data_type"]),
				IsNullable:   asString(row["is_nullable"]) == "YES",
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

	if res := m.Execute(ctx, queryPrimaryKeys, m.cfg.Database, tableName); res.Success {
		for _, row := range res.Rows {
			schema.PrimaryKeys = append(schema.PrimaryKeys, asString(row["column_name"]))
		}
	} else {
		m.logger.Warn("primary key lookup failed",
			slog.String("table", tableName), slog.String("error", res.ErrorMessage))
	}

	if res := m.Execute(ctx, queryForeignKeys, m.cfg.Database, tableName); res.Success {
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
	if m.db == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.db.PingContext(ctx) == nil
}

func (m *Manager) ConnectionInfo() map[string]any {
	return m.cfg.Redacted()
}

func (m *Manager) Backend() port.Backend {
	return port.BackendMySQL
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
	case uint64:
		return int64(t)
	case int:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}
