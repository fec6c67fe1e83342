package service

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"nlsql/internal/core/port"
)

const defaultHistoryLimit = 50

// HistoryService keeps a bounded in-memory log of executed queries per
// session. Recording never fails the caller; when the per-session limit is
// reached the oldest entries are discarded.
type HistoryService struct {
	limit  int
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string][]port.QueryRecord
}

func NewHistoryService(limit int, logger *slog.Logger) *HistoryService {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &HistoryService{
		limit:    limit,
		logger:   logger,
		sessions: make(map[string][]port.QueryRecord),
	}
}

// Record implements port.HistoryRecorder.
func (h *HistoryService) Record(rec port.QueryRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	entries := append(h.sessions[rec.SessionID], rec)
	if len(entries) > h.limit {
		entries = entries[len(entries)-h.limit:]
	}
	h.sessions[rec.SessionID] = entries
}

// List returns the most recent records for a session, newest first.
func (h *HistoryService) List(sessionID string, limit int) []port.QueryRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries := h.sessions[sessionID]
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}

	out := make([]port.QueryRecord, 0, limit)
	for i := len(entries) - 1; i >= len(entries)-limit; i-- {
		out = append(out, entries[i])
	}
	return out
}

// GetByID looks a record up by its identifier within a session.
func (h *HistoryService) GetByID(sessionID, id string) (port.QueryRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, rec := range h.sessions[sessionID] {
		if rec.ID == id {
			return rec, true
		}
	}
	return port.QueryRecord{}, false
}

// Clear drops a session's history and reports how many entries were removed.
func (h *HistoryService) Clear(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.sessions[sessionID])
	delete(h.sessions, sessionID)
	return n
}

// Stats summarises a session's history: totals, success rate, and average
// execution time in seconds.
func (h *HistoryService) Stats(sessionID string) map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries := h.sessions[sessionID]
	if len(entries) == 0 {
		return map[string]any{
			"total_queries": 0,
			"successful":    0,
			"failed":        0,
		}
	}

	var succeeded int
	var totalSecs float64
	for _, rec := range entries {
		if rec.Success {
			succeeded++
		}
		totalSecs += rec.ExecutionTime.Seconds()
	}

	return map[string]any{
		"total_queries":      len(entries),
		"successful":         succeeded,
		"failed":             len(entries) - succeeded,
		"success_rate":       float64(succeeded) / float64(len(entries)),
		"avg_execution_time": totalSecs / float64(len(entries)),
	}
}
