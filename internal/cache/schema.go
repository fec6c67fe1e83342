package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"nlsql/internal/core/port"
)

// Table structure changes far less often than data, so schema entries
// live an hour against minutes for query results.
const schemaTTL = time.Hour

// SchemaCache specializes QueryCache for table metadata. Two namespaces
// are used: schema:<table>:db_type=<backend> for per-table structure and
// tables:all:db_type=<backend> for the table list. Invalidation is
// pattern-based per table or for the whole schema prefix.
type SchemaCache struct {
	cache *QueryCache
}

func NewSchemaCache(cache *QueryCache) *SchemaCache {
	return &SchemaCache{cache: cache}
}

// tableSegment bounds the table portion of a key so the assembled key
// never trips BuildKey's whole-key hash collapse. The collapse would
// strip the schema:<table> prefix that InvalidateTable's pattern
// matches on, leaving over-long table names stuck in the cache.
func tableSegment(table string) string {
	if len(table) <= 64 {
		return table
	}
	sum := sha256.Sum256([]byte(table))
	return hex.EncodeToString(sum[:])[:16]
}

func (s *SchemaCache) tableKey(table string, backend port.Backend) string {
	return s.cache.BuildKey("schema", tableSegment(table), map[string]string{"db_type": string(backend)})
}

func (s *SchemaCache) tablesKey(backend port.Backend) string {
	return s.cache.BuildKey("tables", "all", map[string]string{"db_type": string(backend)})
}

func (s *SchemaCache) GetTableSchema(ctx context.Context, table string, backend port.Backend) *port.TableSchema {
	payload := s.cache.Get(ctx, s.tableKey(table, backend))
	if payload == nil {
		return nil
	}
	// Round-trip through JSON to recover the typed schema.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var schema port.TableSchema
	if err := json.Unmarshal(raw, &schema); err != nil || schema.TableName == "" {
		return nil
	}
	return &schema
}

func (s *SchemaCache) PutTableSchema(ctx context.Context, schema *port.TableSchema, backend port.Backend) bool {
	raw, err := json.Marshal(schema)
	if err != nil {
		return false
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return false
	}
	return s.cache.Put(ctx, s.tableKey(schema.TableName, backend), payload, schemaTTL)
}

func (s *SchemaCache) GetTables(ctx context.Context, backend port.Backend) []string {
	payload := s.cache.Get(ctx, s.tablesKey(backend))
	if payload == nil {
		return nil
	}
	raw, ok := payload["tables"].([]any)
	if !ok {
		return nil
	}
	tables := make([]string, 0, len(raw))
	for _, v := range raw {
		if name, ok := v.(string); ok {
			tables = append(tables, name)
		}
	}
	return tables
}

func (s *SchemaCache) PutTables(ctx context.Context, tables []string, backend port.Backend) bool {
	return s.cache.Put(ctx, s.tablesKey(backend), map[string]any{"tables": tables}, schemaTTL)
}

// InvalidateTable clears one table's namespace; InvalidateAll clears
// every key under the schema prefix plus the table lists.
func (s *SchemaCache) InvalidateTable(ctx context.Context, table string) int {
	return s.cache.Invalidate(ctx, "schema:"+tableSegment(table)+":*")
}

func (s *SchemaCache) InvalidateAll(ctx context.Context) int {
	n := s.cache.Invalidate(ctx, "schema:*")
	n += s.cache.Invalidate(ctx, "tables:*")
	return n
}
