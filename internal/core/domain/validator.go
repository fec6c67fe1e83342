package domain

import (
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"nlsql/internal/core/port"
)

var whereClause = regexp.MustCompile(`(?i)\bWHERE\b`)

// StatementValidator checks translated SQL before it reaches an adapter:
// exactly one statement, of the expected kind, and a mandatory WHERE
// clause on UPDATE/DELETE. For PostgreSQL the check uses the real parser;
// other dialects fall back to lexical checks.
type StatementValidator struct{}

func NewStatementValidator() *StatementValidator {
	return &StatementValidator{}
}

// Validate returns nil when sql is acceptable, or a translation-kind
// error describing the policy violation. Guard failures here mean the
// adapter's Execute is never invoked.
func (v *StatementValidator) Validate(sql string, kind port.StatementKind, backend port.Backend) *Error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return TranslationError("The translated SQL statement is empty.", "")
	}

	if backend == port.BackendPostgres {
		if err := v.validatePostgres(trimmed, kind); err != nil {
			return err
		}
	} else if err := v.validateLexical(trimmed, kind); err != nil {
		return err
	}

	if kind == port.StatementUpdate || kind == port.StatementDelete {
		if !whereClause.MatchString(trimmed) {
			return MissingWhereError(string(kind))
		}
	}
	return nil
}

func (v *StatementValidator) validatePostgres(sql string, kind port.StatementKind) *Error {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return TranslationError("The translated SQL does not parse.", err.Error())
	}
	if len(tree.Stmts) == 0 || tree.Stmts[0].Stmt == nil {
		return TranslationError("The translated SQL statement is empty.", "")
	}
	if len(tree.Stmts) > 1 {
		return TranslationError("Multiple SQL statements are not allowed.", "")
	}

	node := tree.Stmts[0].Stmt.Node
	ok := false
	switch kind {
	case port.StatementSelect:
		switch node.(type) {
		case *pg_query.Node_SelectStmt, *pg_query.Node_ExplainStmt:
			ok = true
		}
	case port.StatementInsert:
		_, ok = node.(*pg_query.Node_InsertStmt)
	case port.StatementUpdate:
		_, ok = node.(*pg_query.Node_UpdateStmt)
	case port.StatementDelete:
		_, ok = node.(*pg_query.Node_DeleteStmt)
	}
	if !ok {
		return TranslationError(
			fmt.Sprintf("Expected a %s statement but the translation produced something else.", kind), "")
	}
	return nil
}

func (v *StatementValidator) validateLexical(sql string, kind port.StatementKind) *Error {
	body := strings.TrimSuffix(strings.TrimSpace(sql), ";")
	if strings.Contains(body, ";") {
		return TranslationError("Multiple SQL statements are not allowed.", "")
	}

	upper := strings.ToUpper(strings.TrimSpace(body))
	ok := false
	switch kind {
	case port.StatementSelect:
		ok = strings.HasPrefix(upper, "SELECT") ||
			strings.HasPrefix(upper, "WITH") ||
			strings.HasPrefix(upper, "EXPLAIN")
	default:
		ok = strings.HasPrefix(upper, string(kind))
	}
	if !ok {
		return TranslationError(
			fmt.Sprintf("Expected a %s statement but the translation produced something else.", kind), "")
	}
	return nil
}
