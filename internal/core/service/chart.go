package service

import (
	"log/slog"
	"time"

	"nlsql/internal/core/domain"
)

// Chart types the recommender can suggest.
const (
	ChartBar       = "bar"
	ChartLine      = "line"
	ChartPie       = "pie"
	ChartScatter   = "scatter"
	ChartHistogram = "histogram"
	ChartBox       = "box"
	ChartHeatmap   = "heatmap"
	ChartTable     = "table"
)

// categoricalThreshold is the unique-value cutoff below which a string
// column counts as categorical rather than free text.
const categoricalThreshold = 20

// ChartService recommends a chart type and axis columns for a result set
// by classifying each column as numeric, datetime, boolean, categorical,
// or text.
type ChartService struct {
	logger *slog.Logger
}

func NewChartService(logger *slog.Logger) *ChartService {
	return &ChartService{logger: logger}
}

type columnProfile struct {
	numeric     []string
	datetime    []string
	boolean     []string
	categorical []string
	text        []string
}

// Suggest analyses rows and returns a recommendation payload with the
// chart type, axis candidates, and the column classification that drove
// the decision.
func (c *ChartService) Suggest(rows []map[string]any) (map[string]any, *domain.Error) {
	if len(rows) == 0 {
		return nil, domain.ValidationError("cannot suggest a chart for an empty result set")
	}

	columns := columnOrder(rows[0])
	profile := profileColumns(rows, columns)
	chartType := recommendChartType(profile, len(rows))
	xCol, yCol := selectAxes(chartType, profile, columns)

	c.logger.Debug("chart recommendation",
		slog.String("chart_type", chartType),
		slog.Int("rows", len(rows)),
	)

	payload := map[string]any{
		"success":    true,
		"chart_type": chartType,
		"row_count":  len(rows),
		"analysis": map[string]any{
			"numeric_columns":     profile.numeric,
			"datetime_columns":    profile.datetime,
			"boolean_columns":     profile.boolean,
			"categorical_columns": profile.categorical,
			"text_columns":        profile.text,
		},
	}
	if xCol != "" {
		payload["x_column"] = xCol
	}
	if yCol != "" {
		payload["y_column"] = yCol
	}
	return payload, nil
}

func profileColumns(rows []map[string]any, columns []string) columnProfile {
	var p columnProfile
	for _, col := range columns {
		switch classifyColumn(rows, col) {
		case "numeric":
			p.numeric = append(p.numeric, col)
		case "datetime":
			p.datetime = append(p.datetime, col)
		case "boolean":
			p.boolean = append(p.boolean, col)
		case "categorical":
			p.categorical = append(p.categorical, col)
		default:
			p.text = append(p.text, col)
		}
	}
	// JSON null slices render as null, empty lists read better.
	if p.numeric == nil {
		p.numeric = []string{}
	}
	if p.datetime == nil {
		p.datetime = []string{}
	}
	if p.boolean == nil {
		p.boolean = []string{}
	}
	if p.categorical == nil {
		p.categorical = []string{}
	}
	if p.text == nil {
		p.text = []string{}
	}
	return p
}

// classifyColumn inspects non-null values. A column with mixed types
// degrades to text.
func classifyColumn(rows []map[string]any, col string) string {
	kind := ""
	unique := make(map[string]struct{})

	for _, row := range rows {
		v, ok := row[col]
		if !ok || v == nil {
			continue
		}

		var current string
		switch t := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			current = "numeric"
		case bool:
			current = "boolean"
		case time.Time:
			current = "datetime"
		case string:
			if _, err := time.Parse(time.RFC3339, t); err == nil {
				current = "datetime"
			} else {
				current = "string"
				unique[t] = struct{}{}
			}
		case []byte:
			current = "string"
			unique[string(t)] = struct{}{}
		default:
			current = "string"
		}

		if kind == "" {
			kind = current
		} else if kind != current {
			return "text"
		}
	}

	switch kind {
	case "numeric", "boolean", "datetime":
		return kind
	case "string":
		if len(unique) <= categoricalThreshold {
			return "categorical"
		}
		return "text"
	default:
		return "text"
	}
}

func recommendChartType(p columnProfile, rowCount int) string {
	switch {
	case len(p.datetime) > 0 && len(p.numeric) > 0:
		return ChartLine
	case len(p.numeric) == 1 && len(p.categorical) == 0:
		return ChartHistogram
	case len(p.categorical) > 0 && len(p.numeric) > 0 && rowCount > 50:
		return ChartBox
	case len(p.categorical) > 0 && len(p.numeric) > 0:
		return ChartBar
	case len(p.numeric) >= 3:
		return ChartHeatmap
	case len(p.numeric) >= 2:
		return ChartScatter
	case len(p.categorical) == 1 && len(p.numeric) == 0:
		return ChartPie
	default:
		return ChartTable
	}
}

func selectAxes(chartType string, p columnProfile, columns []string) (string, string) {
	first := func(groups ...[]string) string {
		for _, g := range groups {
			if len(g) > 0 {
				return g[0]
			}
		}
		if len(columns) > 0 {
			return columns[0]
		}
		return ""
	}
	second := func(cols []string, fallback string) string {
		if len(cols) > 1 {
			return cols[1]
		}
		return fallback
	}

	switch chartType {
	case ChartLine:
		return first(p.datetime, p.categorical, p.numeric), first(p.numeric)
	case ChartBar, ChartBox:
		return first(p.categorical), first(p.numeric)
	case ChartScatter:
		return first(p.numeric), second(p.numeric, first(p.numeric))
	case ChartHistogram:
		return first(p.numeric), ""
	case ChartPie:
		x := first(p.categorical)
		if len(p.numeric) > 0 {
			return x, p.numeric[0]
		}
		return x, ""
	default:
		if len(columns) > 1 {
			return columns[0], columns[1]
		}
		return first(nil), ""
	}
}
