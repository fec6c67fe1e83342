package service

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"nlsql/internal/core/domain"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// ExportService renders query result rows into downloadable documents.
// CSV and JSON are returned as text content; XLSX is base64 encoded.
type ExportService struct {
	logger *slog.Logger
}

func NewExportService(logger *slog.Logger) *ExportService {
	return &ExportService{logger: logger}
}

// Export renders rows in the requested format. The filename is generated
// when empty and always carries the format's extension. Column order is
// alphabetical so repeated exports of the same result are byte-identical.
func (e *ExportService) Export(rows []map[string]any, format, filename, query string) (map[string]any, *domain.Error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case FormatCSV, FormatJSON, FormatXLSX:
	case "":
		format = FormatCSV
	default:
		return nil, domain.ValidationError("unsupported export format: " + format +
			" (supported: csv, json, xlsx)")
	}

	filename = normalizeFilename(filename, format)

	if len(rows) == 0 {
		return map[string]any{
			"success":   true,
			"message":   "Query returned no data to export",
			"filename":  filename,
			"format":    format,
			"row_count": 0,
		}, nil
	}

	columns := columnOrder(rows[0])

	var (
		content string
		size    int
		encoded bool
	)
	switch format {
	case FormatCSV:
		text, err := renderCSV(rows, columns)
		if err != nil {
			return nil, domain.ValidationError("failed to render CSV: " + err.Error())
		}
		content, size = text, len(text)
	case FormatJSON:
		buf, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return nil, domain.ValidationError("failed to render JSON: " + err.Error())
		}
		content, size = string(buf), len(buf)
	case FormatXLSX:
		raw, err := renderXLSX(rows, columns)
		if err != nil {
			return nil, domain.ValidationError("failed to render workbook: " + err.Error())
		}
		content, size, encoded = base64.StdEncoding.EncodeToString(raw), len(raw), true
	}

	e.logger.Info("exported query results",
		slog.String("format", format),
		slog.Int("rows", len(rows)),
		slog.Int("bytes", size),
	)

	payload := map[string]any{
		"success":          true,
		"message":          fmt.Sprintf("Data exported successfully to %s format", strings.ToUpper(format)),
		"filename":         filename,
		"format":           format,
		"row_count":        len(rows),
		"column_count":     len(columns),
		"file_size_bytes":  size,
		"content":          content,
		"export_timestamp": time.Now().Format(time.RFC3339),
	}
	if encoded {
		payload["content_encoding"] = "base64"
	}
	if query != "" {
		payload["original_query"] = query
	}
	return payload, nil
}

func normalizeFilename(filename, format string) string {
	ext := "." + format
	if filename == "" {
		return "query_export_" + time.Now().Format("20060102_150405") + ext
	}
	if !strings.HasSuffix(strings.ToLower(filename), ext) {
		filename += ext
	}
	return filename
}

func columnOrder(row map[string]any) []string {
	columns := make([]string, 0, len(row))
	for name := range row {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns
}

func renderCSV(rows []map[string]any, columns []string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return "", err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = cellString(row[col])
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderXLSX(rows []map[string]any, columns []string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	header := make([]any, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, row := range rows {
		cells := make([]any, len(columns))
		for j, col := range columns {
			cells[j] = row[col]
		}
		addr, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, addr, &cells); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// cellString flattens a value for CSV output. NULLs render as empty
// strings, everything non-scalar falls back to fmt formatting.
func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}
