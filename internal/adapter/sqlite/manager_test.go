package sqlite

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlsql/internal/core/port"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMemoryManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(port.ConnConfig{
		Database: ":memory:",
		Backend:  port.BackendSQLite,
	}, Options{}, testLogger())
	require.NoError(t, m.Connect(context.Background()))
	t.Cleanup(func() { _ = m.Disconnect(context.Background()) })
	return m
}

func seedUsers(t *testing.T, m *Manager) {
	t.Helper()
	ctx := context.Background()

	res := m.Execute(ctx, `CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT
	)`)
	require.True(t, res.Success, res.ErrorMessage)

	res = m.Execute(ctx, `INSERT INTO users (id, name, email) VALUES (1, 'Alice', 'alice@example.com')`)
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, 1, res.RowCount)
}

func TestManagerRoundTrip(t *testing.T) {
	m := newMemoryManager(t)
	seedUsers(t, m)
	ctx := context.Background()

	tables, err := m.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, tables)

	schema, err := m.DescribeTable(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "users", schema.TableName)
	require.Len(t, schema.Columns, 3)
	assert.Equal(t, []string{"id"}, schema.PrimaryKeys)

	byName := map[string]port.ColumnInfo{}
	for _, col := range schema.Columns {
		byName[col.Name] = col
	}
	assert.False(t, byName["name"].IsNullable)
	assert.True(t, byName["email"].IsNullable)

	res := m.Execute(ctx, "SELECT id, name FROM users ORDER BY id")
	require.True(t, res.Success)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(1), res.Rows[0]["id"])
	assert.Equal(t, "Alice", res.Rows[0]["name"])
}

func TestManagerForeignKeys(t *testing.T) {
	m := newMemoryManager(t)
	ctx := context.Background()

	require.True(t, m.Execute(ctx, `CREATE TABLE authors (id INTEGER PRIMARY KEY, name TEXT)`).Success)
	require.True(t, m.Execute(ctx, `CREATE TABLE books (
		id INTEGER PRIMARY KEY,
		author_id INTEGER REFERENCES authors(id)
	)`).Success)

	schema, err := m.DescribeTable(ctx, "books")
	require.NoError(t, err)
	require.Len(t, schema.ForeignKeys, 1)
	assert.Equal(t, "author_id", schema.ForeignKeys[0].Column)
	assert.Equal(t, "authors", schema.ForeignKeys[0].ReferencedTable)
	assert.Equal(t, "id", schema.ForeignKeys[0].ReferencedColumn)
}

func TestManagerExecuteFoldsErrors(t *testing.T) {
	m := newMemoryManager(t)

	res := m.Execute(context.Background(), "SELECT nope FROM missing")
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.ErrorMessage)
	assert.Empty(t, res.Rows)
}

func TestManagerNotConnected(t *testing.T) {
	m := NewManager(port.ConnConfig{Database: ":memory:"}, Options{}, testLogger())

	res := m.Execute(context.Background(), "SELECT 1")
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "not connected")
	assert.False(t, m.TestConnection(context.Background()))
}

func TestManagerDisconnectThenExecute(t *testing.T) {
	m := newMemoryManager(t)
	require.NoError(t, m.Disconnect(context.Background()))

	res := m.Execute(context.Background(), "SELECT 1")
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "not connected")
}

func TestManagerTestConnection(t *testing.T) {
	m := newMemoryManager(t)
	assert.True(t, m.TestConnection(context.Background()))
}

func TestManagerEmptyDatabaseListsNoTables(t *testing.T) {
	m := newMemoryManager(t)

	tables, err := m.ListTables(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestManagerBackend(t *testing.T) {
	m := newMemoryManager(t)
	assert.Equal(t, port.BackendSQLite, m.Backend())
}
