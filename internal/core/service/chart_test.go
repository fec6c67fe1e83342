package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlsql/internal/core/domain"
)

func TestSuggestChart_CategoricalVsNumericIsBar(t *testing.T) {
	c := NewChartService(testLogger())

	rows := []map[string]any{
		{"region": "north", "sales": float64(100)},
		{"region": "south", "sales": float64(80)},
	}
	payload, derr := c.Suggest(rows)
	require.Nil(t, derr)

	assert.Equal(t, ChartBar, payload["chart_type"])
	assert.Equal(t, "region", payload["x_column"])
	assert.Equal(t, "sales", payload["y_column"])
}

func TestSuggestChart_TimeSeriesIsLine(t *testing.T) {
	c := NewChartService(testLogger())

	rows := []map[string]any{
		{"day": time.Now(), "count": int64(4)},
		{"day": time.Now().Add(24 * time.Hour), "count": int64(7)},
	}
	payload, derr := c.Suggest(rows)
	require.Nil(t, derr)

	assert.Equal(t, ChartLine, payload["chart_type"])
	assert.Equal(t, "day", payload["x_column"])
	assert.Equal(t, "count", payload["y_column"])
}

func TestSuggestChart_RFC3339StringsCountAsDatetime(t *testing.T) {
	c := NewChartService(testLogger())

	rows := []map[string]any{
		{"ts": "2026-01-02T15:04:05Z", "value": float64(1)},
		{"ts": "2026-01-03T15:04:05Z", "value": float64(2)},
	}
	payload, derr := c.Suggest(rows)
	require.Nil(t, derr)
	assert.Equal(t, ChartLine, payload["chart_type"])
}

func TestSuggestChart_TwoNumericIsScatter(t *testing.T) {
	c := NewChartService(testLogger())

	rows := []map[string]any{
		{"height": float64(170), "weight": float64(65)},
		{"height": float64(180), "weight": float64(72)},
	}
	payload, derr := c.Suggest(rows)
	require.Nil(t, derr)

	assert.Equal(t, ChartScatter, payload["chart_type"])
	assert.Equal(t, "height", payload["x_column"])
	assert.Equal(t, "weight", payload["y_column"])
}

func TestSuggestChart_SingleNumericIsHistogram(t *testing.T) {
	c := NewChartService(testLogger())

	rows := []map[string]any{{"score": float64(1)}, {"score": float64(2)}}
	payload, derr := c.Suggest(rows)
	require.Nil(t, derr)
	assert.Equal(t, ChartHistogram, payload["chart_type"])
}

func TestSuggestChart_SingleCategoricalIsPie(t *testing.T) {
	c := NewChartService(testLogger())

	rows := []map[string]any{{"status": "open"}, {"status": "closed"}}
	payload, derr := c.Suggest(rows)
	require.Nil(t, derr)
	assert.Equal(t, ChartPie, payload["chart_type"])
}

func TestSuggestChart_LargeGroupedSetIsBox(t *testing.T) {
	c := NewChartService(testLogger())

	rows := make([]map[string]any, 60)
	for i := range rows {
		rows[i] = map[string]any{"group": fmt.Sprintf("g%d", i%3), "v": float64(i)}
	}
	payload, derr := c.Suggest(rows)
	require.Nil(t, derr)
	assert.Equal(t, ChartBox, payload["chart_type"])
}

func TestSuggestChart_HighCardinalityStringsFallBackToTable(t *testing.T) {
	c := NewChartService(testLogger())

	rows := make([]map[string]any, 30)
	for i := range rows {
		rows[i] = map[string]any{"uuid": fmt.Sprintf("id-%d", i)}
	}
	payload, derr := c.Suggest(rows)
	require.Nil(t, derr)
	assert.Equal(t, ChartTable, payload["chart_type"])
}

func TestSuggestChart_EmptyRows(t *testing.T) {
	c := NewChartService(testLogger())

	_, derr := c.Suggest(nil)
	require.NotNil(t, derr)
	assert.Equal(t, domain.KindValidation, derr.Kind)
}
