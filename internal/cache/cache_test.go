package cache

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlsql/internal/core/port"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDisconnectedCache() *QueryCache {
	return NewQueryCache("redis://localhost:1/0", time.Minute, testLogger())
}

func newLiveCache(t *testing.T) (*QueryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewQueryCache("redis://"+mr.Addr(), time.Minute, testLogger())
	require.True(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)
	return c, mr
}

func TestBuildKey_Deterministic(t *testing.T) {
	c := newDisconnectedCache()

	a := c.BuildKey("query_result", "show users", map[string]string{
		"function": "query_data",
		"db_type":  "sqlite",
	})
	b := c.BuildKey("query_result", "show users", map[string]string{
		"db_type":  "sqlite",
		"function": "query_data",
	})
	assert.Equal(t, a, b, "parameter order must not matter")
	assert.Equal(t, "query_result:show users:db_type=sqlite&function=query_data", a)
}

func TestBuildKey_NoParams(t *testing.T) {
	c := newDisconnectedCache()
	assert.Equal(t, "tables:all", c.BuildKey("tables", "all", nil))
}

func TestBuildKey_LongKeysCollapseToHash(t *testing.T) {
	c := newDisconnectedCache()

	long := strings.Repeat("what are the top selling products ", 10)
	key := c.BuildKey("query_result", long, map[string]string{"db_type": "mysql"})

	assert.True(t, strings.HasPrefix(key, "query_result:hash:"))
	assert.LessOrEqual(t, len(key), 100)
	hash := strings.TrimPrefix(key, "query_result:hash:")
	assert.Len(t, hash, 16)

	// Same input, same hash.
	again := c.BuildKey("query_result", long, map[string]string{"db_type": "mysql"})
	assert.Equal(t, key, again)

	// Different input, different hash.
	other := c.BuildKey("query_result", long+"x", map[string]string{"db_type": "mysql"})
	assert.NotEqual(t, key, other)
}

func TestCacheFailsOpenWhenUnavailable(t *testing.T) {
	c := newDisconnectedCache()
	ctx := context.Background()

	assert.False(t, c.Healthy())
	assert.Nil(t, c.Get(ctx, "query_result:anything"))
	assert.False(t, c.Put(ctx, "query_result:anything", map[string]any{"success": true}, 0))
	assert.Equal(t, 0, c.InvalidateKey(ctx, "query_result:anything"))
	assert.Equal(t, 0, c.Invalidate(ctx, "query_result:*"))

	stats := c.Stats(ctx)
	assert.Equal(t, false, stats["connection_healthy"])
	assert.Equal(t, "disconnected", stats["status"])
}

func TestSchemaCacheFailsOpen(t *testing.T) {
	s := NewSchemaCache(newDisconnectedCache())
	ctx := context.Background()

	assert.Nil(t, s.GetTableSchema(ctx, "users", port.BackendSQLite))
	assert.Nil(t, s.GetTables(ctx, port.BackendSQLite))

	ok := s.PutTableSchema(ctx, &port.TableSchema{TableName: "users"}, port.BackendSQLite)
	assert.False(t, ok)
}

func TestPutGetRoundTrip(t *testing.T) {
	c, _ := newLiveCache(t)
	ctx := context.Background()

	key := c.BuildKey("query_result", "show users", map[string]string{"db_type": "sqlite"})
	stored := map[string]any{
		"success":   true,
		"row_count": float64(2),
		"results":   []any{map[string]any{"id": float64(1), "name": "Alice"}},
	}
	require.True(t, c.Put(ctx, key, stored, 0))

	got := c.Get(ctx, key)
	require.NotNil(t, got)

	// Every stored field comes back.
	assert.Equal(t, true, got["success"])
	assert.Equal(t, float64(2), got["row_count"])
	assert.Equal(t, stored["results"], got["results"])

	// Hit markers and storage metadata are tagged on.
	assert.Equal(t, true, got["_cache_hit"])
	assert.Equal(t, key, got["_cache_key"])
	assert.Equal(t, float64(60), got["_cache_ttl"])
	cachedAt, ok := got["_cached_at"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, cachedAt)
	assert.NoError(t, err)
}

func TestGetMissReturnsNil(t *testing.T) {
	c, _ := newLiveCache(t)
	assert.Nil(t, c.Get(context.Background(), "query_result:nothing here"))
}

func TestEntriesExpire(t *testing.T) {
	c, mr := newLiveCache(t)
	ctx := context.Background()

	require.True(t, c.Put(ctx, "query_result:q", map[string]any{"success": true}, 30*time.Second))
	require.NotNil(t, c.Get(ctx, "query_result:q"))

	mr.FastForward(time.Minute)
	assert.Nil(t, c.Get(ctx, "query_result:q"))
}

func TestInvalidatePattern(t *testing.T) {
	c, _ := newLiveCache(t)
	ctx := context.Background()

	require.True(t, c.Put(ctx, "query_result:a", map[string]any{"success": true}, 0))
	require.True(t, c.Put(ctx, "query_result:b", map[string]any{"success": true}, 0))
	require.True(t, c.Put(ctx, "schema:users:db_type=sqlite", map[string]any{"table_name": "users"}, 0))

	assert.Equal(t, 2, c.Invalidate(ctx, "query_result:*"))
	assert.Nil(t, c.Get(ctx, "query_result:a"))
	assert.NotNil(t, c.Get(ctx, "schema:users:db_type=sqlite"))
}

func TestInvalidateKey(t *testing.T) {
	c, _ := newLiveCache(t)
	ctx := context.Background()

	require.True(t, c.Put(ctx, "query_result:a", map[string]any{"success": true}, 0))
	assert.Equal(t, 1, c.InvalidateKey(ctx, "query_result:a"))
	assert.Equal(t, 0, c.InvalidateKey(ctx, "query_result:a"))
}

func TestSchemaCacheRoundTrip(t *testing.T) {
	c, _ := newLiveCache(t)
	s := NewSchemaCache(c)
	ctx := context.Background()

	schema := &port.TableSchema{
		TableName:   "users",
		Columns:     []port.ColumnInfo{{Name: "id", DataType: "INTEGER"}},
		PrimaryKeys: []string{"id"},
	}
	require.True(t, s.PutTableSchema(ctx, schema, port.BackendSQLite))

	got := s.GetTableSchema(ctx, "users", port.BackendSQLite)
	require.NotNil(t, got)
	assert.Equal(t, "users", got.TableName)
	assert.Equal(t, []string{"id"}, got.PrimaryKeys)

	require.True(t, s.PutTables(ctx, []string{"users", "orders"}, port.BackendSQLite))
	assert.Equal(t, []string{"users", "orders"}, s.GetTables(ctx, port.BackendSQLite))
}

func TestSchemaCacheInvalidateTable(t *testing.T) {
	c, _ := newLiveCache(t)
	s := NewSchemaCache(c)
	ctx := context.Background()

	require.True(t, s.PutTableSchema(ctx, &port.TableSchema{TableName: "users"}, port.BackendSQLite))
	require.True(t, s.PutTableSchema(ctx, &port.TableSchema{TableName: "orders"}, port.BackendSQLite))

	assert.Equal(t, 1, s.InvalidateTable(ctx, "users"))
	assert.Nil(t, s.GetTableSchema(ctx, "users", port.BackendSQLite))
	assert.NotNil(t, s.GetTableSchema(ctx, "orders", port.BackendSQLite))
}

func TestSchemaCacheInvalidatesLongTableNames(t *testing.T) {
	c, _ := newLiveCache(t)
	s := NewSchemaCache(c)
	ctx := context.Background()

	// Long enough that a naive key would trip the whole-key hash collapse
	// and escape the schema:<table>:* invalidation pattern.
	long := strings.Repeat("quarterly_revenue_rollup_", 5)
	require.True(t, s.PutTableSchema(ctx, &port.TableSchema{TableName: long}, port.BackendPostgres))
	require.NotNil(t, s.GetTableSchema(ctx, long, port.BackendPostgres))

	assert.Equal(t, 1, s.InvalidateTable(ctx, long))
	assert.Nil(t, s.GetTableSchema(ctx, long, port.BackendPostgres))
}

func TestParseKeyspaceCounters(t *testing.T) {
	info := "# Stats\r\nkeyspace_hits:42\r\nkeyspace_misses:8\r\nother:1\r\n"
	hits, misses := parseKeyspaceCounters(info)
	assert.Equal(t, int64(42), hits)
	assert.Equal(t, int64(8), misses)
}

func TestConnectFailureIsNonFatal(t *testing.T) {
	c := NewQueryCache("redis://127.0.0.1:1/0", time.Minute, testLogger())

	require.False(t, c.Connect(context.Background()))
	assert.False(t, c.Healthy())

	// Still safe to use after the failed connect.
	assert.Nil(t, c.Get(context.Background(), "k"))
}
