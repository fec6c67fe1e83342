// Package sqlutil holds helpers shared by the database/sql backed adapters.
package sqlutil

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ScanRows drains rows into column-name-keyed maps. Driver []byte values
// are normalised to strings (the MySQL driver returns text columns as
// []byte) and time.Time values are kept as-is for JSON serialization.
func ScanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalise(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

func normalise(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t
	default:
		return v
	}
}

// IsReadStatement reports whether sql produces a result set rather than
// an affected-row count.
func IsReadStatement(sqlText string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sqlText))
	for _, prefix := range []string{"SELECT", "WITH", "EXPLAIN", "SHOW", "DESCRIBE", "PRAGMA", "VALUES"} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}
