package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlsql/internal/core/port"
)

func TestHistoryRecordAndList(t *testing.T) {
	h := NewHistoryService(10, testLogger())

	h.Record(port.QueryRecord{SessionID: "s1", Query: "first", Success: true})
	h.Record(port.QueryRecord{SessionID: "s1", Query: "second", Success: false})

	records := h.List("s1", 0)
	require.Len(t, records, 2)
	assert.Equal(t, "second", records[0].Query, "newest first")
	assert.Equal(t, "first", records[1].Query)
	assert.NotEmpty(t, records[0].ID, "IDs are assigned on record")
}

func TestHistoryListLimit(t *testing.T) {
	h := NewHistoryService(10, testLogger())
	for i := 0; i < 5; i++ {
		h.Record(port.QueryRecord{SessionID: "s1", Query: fmt.Sprintf("q%d", i)})
	}

	records := h.List("s1", 2)
	require.Len(t, records, 2)
	assert.Equal(t, "q4", records[0].Query)
}

func TestHistoryBoundedPerSession(t *testing.T) {
	h := NewHistoryService(3, testLogger())
	for i := 0; i < 6; i++ {
		h.Record(port.QueryRecord{SessionID: "s1", Query: fmt.Sprintf("q%d", i)})
	}

	records := h.List("s1", 0)
	require.Len(t, records, 3, "oldest entries discarded at the limit")
	assert.Equal(t, "q5", records[0].Query)
	assert.Equal(t, "q3", records[2].Query)
}

func TestHistorySessionIsolation(t *testing.T) {
	h := NewHistoryService(10, testLogger())
	h.Record(port.QueryRecord{SessionID: "s1", Query: "mine"})
	h.Record(port.QueryRecord{SessionID: "s2", Query: "theirs"})

	assert.Len(t, h.List("s1", 0), 1)
	assert.Len(t, h.List("s2", 0), 1)
	assert.Empty(t, h.List("s3", 0))
}

func TestHistoryGetByID(t *testing.T) {
	h := NewHistoryService(10, testLogger())
	h.Record(port.QueryRecord{ID: "abc", SessionID: "s1", SQL: "SELECT 1"})

	rec, ok := h.GetByID("s1", "abc")
	require.True(t, ok)
	assert.Equal(t, "SELECT 1", rec.SQL)

	_, ok = h.GetByID("s2", "abc")
	assert.False(t, ok, "IDs do not resolve across sessions")

	_, ok = h.GetByID("s1", "missing")
	assert.False(t, ok)
}

func TestHistoryClear(t *testing.T) {
	h := NewHistoryService(10, testLogger())
	h.Record(port.QueryRecord{SessionID: "s1"})
	h.Record(port.QueryRecord{SessionID: "s1"})

	assert.Equal(t, 2, h.Clear("s1"))
	assert.Empty(t, h.List("s1", 0))
	assert.Equal(t, 0, h.Clear("s1"))
}

func TestHistoryStats(t *testing.T) {
	h := NewHistoryService(10, testLogger())

	empty := h.Stats("s1")
	assert.Equal(t, 0, empty["total_queries"])

	h.Record(port.QueryRecord{SessionID: "s1", Success: true, ExecutionTime: 100 * time.Millisecond})
	h.Record(port.QueryRecord{SessionID: "s1", Success: true, ExecutionTime: 300 * time.Millisecond})
	h.Record(port.QueryRecord{SessionID: "s1", Success: false})

	stats := h.Stats("s1")
	assert.Equal(t, 3, stats["total_queries"])
	assert.Equal(t, 2, stats["successful"])
	assert.Equal(t, 1, stats["failed"])
	assert.InDelta(t, 2.0/3.0, stats["success_rate"], 0.001)
}
