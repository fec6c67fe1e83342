package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"nlsql/internal/cache"
	"nlsql/internal/core/domain"
	"nlsql/internal/core/port"
)

// SchemaService serves table lists and table structure through the schema
// cache. Concurrent cold lookups for the same key are deduplicated with
// singleflight so one catalog query serves all waiters.
type SchemaService struct {
	registry *Registry
	schemas  *cache.SchemaCache
	logger   *slog.Logger
	group    singleflight.Group
}

func NewSchemaService(registry *Registry, schemas *cache.SchemaCache, logger *slog.Logger) *SchemaService {
	return &SchemaService{registry: registry, schemas: schemas, logger: logger}
}

func (s *SchemaService) ListTables(ctx context.Context, sessionID string) ([]string, *domain.Error) {
	manager, derr := s.registry.Resolve(ctx, sessionID)
	if derr != nil {
		return nil, derr
	}

	backend := manager.Backend()
	if cached := s.schemas.GetTables(ctx, backend); cached != nil {
		return cached, nil
	}

	key := "tables:" + sessionID
	v, err, _ := s.group.Do(key, func() (any, error) {
		tables, err := manager.ListTables(ctx)
		if err != nil {
			return nil, err
		}
		s.schemas.PutTables(ctx, tables, backend)
		return tables, nil
	})
	if err != nil {
		return nil, domain.SchemaError("Could not list the database's tables.", err.Error())
	}
	return v.([]string), nil
}

func (s *SchemaService) DescribeTable(ctx context.Context, sessionID, tableName string) (*port.TableSchema, *domain.Error) {
	if strings.TrimSpace(tableName) == "" {
		return nil, domain.ValidationError("table_name must not be empty")
	}

	manager, derr := s.registry.Resolve(ctx, sessionID)
	if derr != nil {
		return nil, derr
	}

	backend := manager.Backend()
	if cached := s.schemas.GetTableSchema(ctx, tableName, backend); cached != nil {
		return cached, nil
	}

	key := "schema:" + sessionID + ":" + tableName
	v, err, _ := s.group.Do(key, func() (any, error) {
		schema, err := manager.DescribeTable(ctx, tableName)
		if err != nil {
			return nil, err
		}
		if len(schema.Columns) == 0 {
			return nil, fmt.Errorf("table %q has no accessible columns", tableName)
		}
		s.schemas.PutTableSchema(ctx, schema, backend)
		return schema, nil
	})
	if err != nil {
		return nil, domain.SchemaError(
			fmt.Sprintf("Could not read the structure of table %q.", tableName), err.Error())
	}
	return v.(*port.TableSchema), nil
}

// Summary aggregates per-table digests (column count, primary keys,
// foreign-key targets) for up to maxTables tables.
func (s *SchemaService) Summary(ctx context.Context, sessionID string, maxTables int) (map[string]any, *domain.Error) {
	tables, derr := s.ListTables(ctx, sessionID)
	if derr != nil {
		return nil, derr
	}
	if len(tables) == 0 {
		return nil, domain.SchemaError("The database contains no tables.", "")
	}

	manager, derr := s.registry.Resolve(ctx, sessionID)
	if derr != nil {
		return nil, derr
	}

	schemas := s.Collect(ctx, manager, tables, maxTables)
	summaries := make([]map[string]any, 0, len(schemas))
	for _, schema := range schemas {
		refs := make([]string, 0, len(schema.ForeignKeys))
		for _, fk := range schema.ForeignKeys {
			refs = append(refs, fmt.Sprintf("%s -> %s.%s", fk.Column, fk.ReferencedTable, fk.ReferencedColumn))
		}
		summaries = append(summaries, map[string]any{
			"table_name":   schema.TableName,
			"column_count": len(schema.Columns),
			"primary_keys": schema.PrimaryKeys,
			"foreign_keys": refs,
		})
	}

	return map[string]any{
		"success":     true,
		"table_count": len(tables),
		"tables":      summaries,
	}, nil
}

// Collect fetches schemas for up to maxTables tables, skipping tables
// whose schema fails to load or exposes no columns: one broken table must
// not block the request. Fetches run concurrently, bounded, with input
// order preserved.
func (s *SchemaService) Collect(ctx context.Context, manager port.DatabaseManager, tables []string, maxTables int) []*port.TableSchema {
	if maxTables > 0 && len(tables) > maxTables {
		tables = tables[:maxTables]
	}

	results := make([]*port.TableSchema, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	backend := manager.Backend()
	for i, name := range tables {
		g.Go(func() error {
			if cached := s.schemas.GetTableSchema(gctx, name, backend); cached != nil {
				results[i] = cached
				return nil
			}
			schema, err := manager.DescribeTable(gctx, name)
			if err != nil {
				s.logger.Warn("skipping table schema",
					slog.String("table", name), slog.String("error", err.Error()))
				return nil
			}
			if len(schema.Columns) == 0 {
				s.logger.Warn("skipping table with no accessible columns", slog.String("table", name))
				return nil
			}
			s.schemas.PutTableSchema(gctx, schema, backend)
			results[i] = schema
			return nil
		})
	}
	_ = g.Wait()

	schemas := make([]*port.TableSchema, 0, len(results))
	for _, schema := range results {
		if schema != nil {
			schemas = append(schemas, schema)
		}
	}
	return schemas
}

// InvalidateTable and InvalidateAll expose schema-cache invalidation to
// the tool layer.
func (s *SchemaService) InvalidateTable(ctx context.Context, table string) int {
	return s.schemas.InvalidateTable(ctx, table)
}

func (s *SchemaService) InvalidateAll(ctx context.Context) int {
	return s.schemas.InvalidateAll(ctx)
}
