package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nlsql/internal/cache"
	"nlsql/internal/core/domain"
	"nlsql/internal/core/port"
)

// Limits configures the orchestrator's result and schema bounds.
type Limits struct {
	MaxRows         int
	MaxSchemaTables int
}

// QueryService orchestrates the natural-language pipeline: resolve the
// session's manager, collect schema context, translate, validate, execute,
// truncate, and record the outcome. Each failing stage maps to its own
// error kind so callers can tell connection, schema, translation, and
// execution failures apart.
type QueryService struct {
	registry   *Registry
	translator port.Translator
	validator  *domain.StatementValidator
	schemas    *SchemaService
	history    port.HistoryRecorder
	perms      port.PermissionChecker
	qcache     *cache.QueryCache
	limits     Limits
	logger     *slog.Logger
}

func NewQueryService(
	registry *Registry,
	translator port.Translator,
	validator *domain.StatementValidator,
	schemas *SchemaService,
	history port.HistoryRecorder,
	perms port.PermissionChecker,
	qcache *cache.QueryCache,
	limits Limits,
	logger *slog.Logger,
) *QueryService {
	return &QueryService{
		registry:   registry,
		translator: translator,
		validator:  validator,
		schemas:    schemas,
		history:    history,
		perms:      perms,
		qcache:     qcache,
		limits:     limits,
		logger:     logger,
	}
}

// Query answers a natural-language question with a SELECT. Successful
// outcomes are cached keyed by the question text and backend type; a hit
// bypasses the whole pipeline.
func (s *QueryService) Query(ctx context.Context, sessionID, text string) (map[string]any, *domain.Error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ValidationError("the natural language query must not be empty")
	}

	manager, derr := s.registry.Resolve(ctx, sessionID)
	if derr != nil {
		return nil, derr
	}
	backend := manager.Backend()

	cacheKey := s.qcache.BuildKey("query_result", text, map[string]string{
		"function": "query_data",
		"db_type":  string(backend),
	})
	if cached := s.qcache.Get(ctx, cacheKey); cached != nil {
		s.logger.Debug("query served from cache", slog.String("session", sessionID))
		return cached, nil
	}

	sql, derr := s.translate(ctx, sessionID, manager, text, port.StatementSelect)
	if derr != nil {
		return nil, derr
	}

	start := time.Now()
	result := manager.Execute(ctx, sql)
	elapsed := time.Since(start)

	s.record(sessionID, text, sql, backend, result, elapsed)

	if !result.Success {
		return nil, domain.ExecutionError(result.ErrorMessage)
	}

	rows := result.Rows
	truncated := false
	if s.limits.MaxRows > 0 && len(rows) > s.limits.MaxRows {
		rows = rows[:s.limits.MaxRows]
		truncated = true
	}

	payload := map[string]any{
		"success":        true,
		"message":        fmt.Sprintf("Query executed successfully, returned %d rows", len(rows)),
		"original_query": text,
		"generated_sql":  sql,
		"results":        rows,
		"row_count":      len(rows),
		"truncated":      truncated,
		"execution_time": elapsed.Seconds(),
	}

	// Only successful outcomes are cached, so a transient failure never
	// poisons subsequent identical requests.
	s.qcache.Put(ctx, cacheKey, payload, 0)
	return payload, nil
}

// Mutate runs a natural-language INSERT, UPDATE, or DELETE. The statement
// validator enforces the WHERE guard before the adapter is ever invoked.
func (s *QueryService) Mutate(ctx context.Context, sessionID, text string, kind port.StatementKind) (map[string]any, *domain.Error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ValidationError("the natural language command must not be empty")
	}

	perm, ok := mutationPermission(kind)
	if !ok {
		return nil, domain.ValidationError("unsupported statement kind: " + string(kind))
	}
	if s.perms.Enabled() && !s.perms.HasPermission(sessionID, perm) {
		return nil, domain.PermissionError(string(perm))
	}

	manager, derr := s.registry.Resolve(ctx, sessionID)
	if derr != nil {
		return nil, derr
	}

	sql, derr := s.translate(ctx, sessionID, manager, text, kind)
	if derr != nil {
		return nil, derr
	}

	start := time.Now()
	result := manager.Execute(ctx, sql)
	elapsed := time.Since(start)

	s.record(sessionID, text, sql, manager.Backend(), result, elapsed)

	if !result.Success {
		return nil, domain.ExecutionError(result.ErrorMessage)
	}

	return map[string]any{
		"success":        true,
		"message":        fmt.Sprintf("%s executed successfully, %d rows affected", kind, result.RowCount),
		"original_query": text,
		"generated_sql":  sql,
		"affected_rows":  result.RowCount,
		"execution_time": elapsed.Seconds(),
	}, nil
}

// ExecuteSQL runs an already-generated statement, used by repeat_query and
// export. The statement still passes kind validation.
func (s *QueryService) ExecuteSQL(ctx context.Context, sessionID, sql string) (*port.QueryResult, *domain.Error) {
	manager, derr := s.registry.Resolve(ctx, sessionID)
	if derr != nil {
		return nil, derr
	}
	if verr := s.validator.Validate(sql, port.StatementSelect, manager.Backend()); verr != nil {
		return nil, verr
	}
	result := manager.Execute(ctx, sql)
	if !result.Success {
		return nil, domain.ExecutionError(result.ErrorMessage)
	}
	if s.limits.MaxRows > 0 && len(result.Rows) > s.limits.MaxRows {
		result = &port.QueryResult{
			Success:   true,
			Rows:      result.Rows[:s.limits.MaxRows],
			RowCount:  s.limits.MaxRows,
			Truncated: true,
		}
	}
	return result, nil
}

// translate collects schema context and produces validated SQL of the
// requested kind.
func (s *QueryService) translate(
	ctx context.Context,
	sessionID string,
	manager port.DatabaseManager,
	text string,
	kind port.StatementKind,
) (string, *domain.Error) {
	tables, derr := s.schemas.ListTables(ctx, sessionID)
	if derr != nil {
		return "", derr
	}
	if len(tables) == 0 {
		return "", domain.SchemaError("The database appears to be empty (no tables found).", "")
	}

	schemas := s.schemas.Collect(ctx, manager, tables, s.limits.MaxSchemaTables)
	if len(schemas) == 0 {
		return "", domain.SchemaError("Could not access any table schemas.", "")
	}

	if !s.translator.Available() {
		return "", domain.TranslationError(
			"The natural language translator is not configured.",
			"missing LLM API key")
	}

	res := s.translator.Translate(ctx, port.TranslationRequest{
		Text:    text,
		Schemas: schemas,
		Backend: manager.Backend(),
		Kind:    kind,
	})
	if !res.Success {
		return "", domain.TranslationError(
			"Failed to translate the request into SQL.", res.Err)
	}

	if verr := s.validator.Validate(res.SQL, kind, manager.Backend()); verr != nil {
		return "", verr
	}

	s.logger.Info("translated query",
		slog.String("session", sessionID),
		slog.String("kind", string(kind)),
		slog.String("sql", res.SQL),
	)
	return res.SQL, nil
}

// record is best-effort by contract: HistoryRecorder implementations
// swallow their own failures.
func (s *QueryService) record(sessionID, text, sql string, backend port.Backend, result *port.QueryResult, elapsed time.Duration) {
	s.history.Record(port.QueryRecord{
		SessionID:     sessionID,
		Query:         text,
		SQL:           sql,
		Timestamp:     time.Now(),
		RowCount:      result.RowCount,
		ExecutionTime: elapsed,
		Success:       result.Success,
		Backend:       backend,
		ErrorMessage:  result.ErrorMessage,
	})
}

func mutationPermission(kind port.StatementKind) (port.Permission, bool) {
	switch kind {
	case port.StatementInsert:
		return port.PermAddData, true
	case port.StatementUpdate:
		return port.PermUpdateData, true
	case port.StatementDelete:
		return port.PermDeleteData, true
	default:
		return "", false
	}
}
