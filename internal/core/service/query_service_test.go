package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlsql/internal/cache"
	"nlsql/internal/core/domain"
	"nlsql/internal/core/port"
)

type stubTranslator struct {
	sql         string
	fail        bool
	unavailable bool
	calls       int
	lastKind    port.StatementKind
}

func (s *stubTranslator) Available() bool { return !s.unavailable }

func (s *stubTranslator) Translate(_ context.Context, req port.TranslationRequest) *port.TranslationResult {
	s.calls++
	s.lastKind = req.Kind
	if s.fail {
		return &port.TranslationResult{Err: "model unavailable"}
	}
	return &port.TranslationResult{Success: true, SQL: s.sql, Model: "test-model"}
}

type stubHistory struct {
	records []port.QueryRecord
}

func (h *stubHistory) Record(rec port.QueryRecord) { h.records = append(h.records, rec) }

type denyAll struct{}

func (denyAll) Enabled() bool                              { return true }
func (denyAll) HasPermission(string, port.Permission) bool { return false }

type allowAll struct{}

func (allowAll) Enabled() bool                              { return false }
func (allowAll) HasPermission(string, port.Permission) bool { return true }

type queryHarness struct {
	svc     *QueryService
	manager *stubManager
	tr      *stubTranslator
	history *stubHistory
}

func newQueryHarness(t *testing.T, manager *stubManager, tr *stubTranslator, perms port.PermissionChecker, limits Limits) *queryHarness {
	t.Helper()
	logger := testLogger()

	registry := NewRegistry(map[port.Backend]ManagerFactory{
		port.BackendSQLite: func(_ port.ConnConfig) port.DatabaseManager { return manager },
	}, logger)
	_, derr := registry.Open(context.Background(), "s1", port.ConnConfig{Backend: port.BackendSQLite})
	require.Nil(t, derr)

	qcache := cache.NewQueryCache("", time.Minute, logger)
	schemas := NewSchemaService(registry, cache.NewSchemaCache(qcache), logger)
	history := &stubHistory{}

	svc := NewQueryService(
		registry,
		tr,
		domain.NewStatementValidator(),
		schemas,
		history,
		perms,
		qcache,
		limits,
		logger,
	)
	return &queryHarness{svc: svc, manager: manager, tr: tr, history: history}
}

func newConnectedManager(rows []map[string]any) *stubManager {
	return &stubManager{
		backend: port.BackendSQLite,
		tables:  []string{"users"},
		schema: &port.TableSchema{
			TableName: "users",
			Columns: []port.ColumnInfo{
				{Name: "id", DataType: "integer"},
				{Name: "name", DataType: "text", IsNullable: true},
			},
			PrimaryKeys: []string{"id"},
		},
		result: &port.QueryResult{Success: true, Rows: rows, RowCount: len(rows)},
	}
}

func TestQuery_HappyPath(t *testing.T) {
	rows := []map[string]any{{"id": int64(1), "name": "Alice"}}
	m := newConnectedManager(rows)
	tr := &stubTranslator{sql: "SELECT id, name FROM users"}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{MaxRows: 100, MaxSchemaTables: 10})

	payload, derr := h.svc.Query(context.Background(), "s1", "show all users")
	require.Nil(t, derr)

	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "show all users", payload["original_query"])
	assert.Equal(t, "SELECT id, name FROM users", payload["generated_sql"])
	assert.Equal(t, 1, payload["row_count"])
	assert.Equal(t, false, payload["truncated"])
	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, 1, m.executeCalls)

	require.Len(t, h.history.records, 1)
	assert.True(t, h.history.records[0].Success)
	assert.Equal(t, "show all users", h.history.records[0].Query)
}

func TestQuery_EmptyTextRejected(t *testing.T) {
	m := newConnectedManager(nil)
	tr := &stubTranslator{sql: "SELECT 1"}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{})

	_, derr := h.svc.Query(context.Background(), "s1", "   ")
	require.NotNil(t, derr)
	assert.Equal(t, domain.KindValidation, derr.Kind)
	assert.Equal(t, 0, tr.calls)
}

func TestQuery_NotConnected(t *testing.T) {
	m := newConnectedManager(nil)
	tr := &stubTranslator{sql: "SELECT 1"}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{})

	_, derr := h.svc.Query(context.Background(), "other-session", "list users")
	require.NotNil(t, derr)
	assert.Equal(t, domain.KindConnection, derr.Kind)
}

func TestQuery_EmptyDatabase(t *testing.T) {
	m := newConnectedManager(nil)
	m.tables = nil
	tr := &stubTranslator{sql: "SELECT 1"}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{})

	_, derr := h.svc.Query(context.Background(), "s1", "list users")
	require.NotNil(t, derr)
	assert.Equal(t, domain.KindSchema, derr.Kind)
	assert.Equal(t, 0, tr.calls)
}

func TestQuery_TranslationFailureIsNotRetried(t *testing.T) {
	m := newConnectedManager(nil)
	tr := &stubTranslator{fail: true}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{})

	_, derr := h.svc.Query(context.Background(), "s1", "list users")
	require.NotNil(t, derr)
	assert.Equal(t, domain.KindTranslation, derr.Kind)
	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, 0, m.executeCalls, "failed translation must not reach the database")
}

func TestQuery_TranslatorUnavailable(t *testing.T) {
	m := newConnectedManager(nil)
	tr := &stubTranslator{unavailable: true}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{})

	_, derr := h.svc.Query(context.Background(), "s1", "list users")
	require.NotNil(t, derr)
	assert.Equal(t, domain.KindTranslation, derr.Kind)
	assert.Equal(t, 0, tr.calls)
}

func TestQuery_ExecutionFailure(t *testing.T) {
	m := newConnectedManager(nil)
	m.result = port.FailedResult("no such column: nam")
	tr := &stubTranslator{sql: "SELECT nam FROM users"}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{})

	_, derr := h.svc.Query(context.Background(), "s1", "names please")
	require.NotNil(t, derr)
	assert.Equal(t, domain.KindExecution, derr.Kind)

	// The failure still lands in history.
	require.Len(t, h.history.records, 1)
	assert.False(t, h.history.records[0].Success)
	assert.Equal(t, "no such column: nam", h.history.records[0].ErrorMessage)
}

func TestQuery_TruncatesAtMaxRows(t *testing.T) {
	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"id": int64(i)}
	}
	m := newConnectedManager(rows)
	tr := &stubTranslator{sql: "SELECT id FROM users"}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{MaxRows: 3, MaxSchemaTables: 10})

	payload, derr := h.svc.Query(context.Background(), "s1", "all ids")
	require.Nil(t, derr)

	assert.Equal(t, 3, payload["row_count"])
	assert.Equal(t, true, payload["truncated"])
	assert.Len(t, payload["results"], 3)
}

func TestQuery_ExactlyMaxRowsIsNotTruncated(t *testing.T) {
	rows := make([]map[string]any, 3)
	for i := range rows {
		rows[i] = map[string]any{"id": int64(i)}
	}
	m := newConnectedManager(rows)
	tr := &stubTranslator{sql: "SELECT id FROM users"}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{MaxRows: 3})

	payload, derr := h.svc.Query(context.Background(), "s1", "all ids")
	require.Nil(t, derr)

	assert.Equal(t, 3, payload["row_count"])
	assert.Equal(t, false, payload["truncated"])
}

func TestMutate_RequiresWhereClause(t *testing.T) {
	m := newConnectedManager(nil)
	tr := &stubTranslator{sql: "UPDATE users SET name = 'x'"}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{})

	_, derr := h.svc.Mutate(context.Background(), "s1", "rename everyone", port.StatementUpdate)
	require.NotNil(t, derr)
	assert.Contains(t, derr.Message, "WHERE")
	assert.Equal(t, 0, m.executeCalls, "guarded statement must never execute")
}

func TestMutate_InsertHappyPath(t *testing.T) {
	m := newConnectedManager(nil)
	m.result = &port.QueryResult{Success: true, RowCount: 1}
	tr := &stubTranslator{sql: "INSERT INTO users (name) VALUES ('Bob')"}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{})

	payload, derr := h.svc.Mutate(context.Background(), "s1", "add Bob", port.StatementInsert)
	require.Nil(t, derr)

	assert.Equal(t, true, payload["success"])
	assert.Equal(t, 1, payload["affected_rows"])
	assert.Equal(t, port.StatementInsert, tr.lastKind)
	require.Len(t, h.history.records, 1)
}

func TestMutate_DeleteWithWhere(t *testing.T) {
	m := newConnectedManager(nil)
	m.result = &port.QueryResult{Success: true, RowCount: 2}
	tr := &stubTranslator{sql: "DELETE FROM users WHERE name = 'Bob'"}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{})

	payload, derr := h.svc.Mutate(context.Background(), "s1", "remove Bob", port.StatementDelete)
	require.Nil(t, derr)
	assert.Equal(t, 2, payload["affected_rows"])
}

func TestMutate_PermissionDenied(t *testing.T) {
	m := newConnectedManager(nil)
	tr := &stubTranslator{sql: "DELETE FROM users WHERE id = 1"}
	h := newQueryHarness(t, m, tr, denyAll{}, Limits{})

	_, derr := h.svc.Mutate(context.Background(), "s1", "remove user 1", port.StatementDelete)
	require.NotNil(t, derr)
	assert.Equal(t, domain.KindPermission, derr.Kind)
	assert.Equal(t, 0, tr.calls)
	assert.Equal(t, 0, m.executeCalls)
}

func TestExecuteSQL_ValidatesKind(t *testing.T) {
	m := newConnectedManager(nil)
	tr := &stubTranslator{sql: "SELECT 1"}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{})

	_, derr := h.svc.ExecuteSQL(context.Background(), "s1", "DROP TABLE users")
	require.NotNil(t, derr)
	assert.Equal(t, domain.KindTranslation, derr.Kind)
	assert.Equal(t, 0, m.executeCalls)
}

func TestExecuteSQL_HappyPath(t *testing.T) {
	rows := []map[string]any{{"id": int64(1)}}
	m := newConnectedManager(rows)
	tr := &stubTranslator{sql: "SELECT 1"}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{MaxRows: 100})

	result, derr := h.svc.ExecuteSQL(context.Background(), "s1", "SELECT id FROM users")
	require.Nil(t, derr)
	assert.Equal(t, 1, result.RowCount)
	assert.False(t, result.Truncated)
}

func TestExecuteSQL_MarksTruncation(t *testing.T) {
	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"id": int64(i)}
	}
	m := newConnectedManager(rows)
	tr := &stubTranslator{sql: "SELECT 1"}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{MaxRows: 3})

	result, derr := h.svc.ExecuteSQL(context.Background(), "s1", "SELECT id FROM users")
	require.Nil(t, derr)
	assert.Len(t, result.Rows, 3)
	assert.Equal(t, 3, result.RowCount)
	assert.True(t, result.Truncated)
}

func TestExecuteSQL_ExactlyMaxRowsIsNotTruncated(t *testing.T) {
	rows := make([]map[string]any, 3)
	for i := range rows {
		rows[i] = map[string]any{"id": int64(i)}
	}
	m := newConnectedManager(rows)
	tr := &stubTranslator{sql: "SELECT 1"}
	h := newQueryHarness(t, m, tr, allowAll{}, Limits{MaxRows: 3})

	result, derr := h.svc.ExecuteSQL(context.Background(), "s1", "SELECT id FROM users")
	require.Nil(t, derr)
	assert.Len(t, result.Rows, 3)
	assert.False(t, result.Truncated)
}
