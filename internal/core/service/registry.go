package service

import (
	"context"
	"log/slog"
	"sync"

	"nlsql/internal/core/domain"
	"nlsql/internal/core/port"
)

// ManagerFactory builds an unconnected manager for one backend type.
type ManagerFactory func(cfg port.ConnConfig) port.DatabaseManager

// Registry binds a session identifier to at most one live database
// manager. The map is mutex-guarded; the lock is never held during
// network I/O (connect/disconnect happen outside it).
//
// State machine per session: unbound -> connected (Open) -> unbound
// (Close). A connected entry whose health check fails stays bound;
// callers recover by closing and reopening explicitly, so a dropped
// connection is never silently replaced.
type Registry struct {
	factories map[port.Backend]ManagerFactory
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]port.DatabaseManager
}

func NewRegistry(factories map[port.Backend]ManagerFactory, logger *slog.Logger) *Registry {
	return &Registry{
		factories: factories,
		logger:    logger,
		entries:   make(map[string]port.DatabaseManager),
	}
}

// Open connects a manager for the session. An existing manager for the
// same session is disconnected before being replaced, so no pool is
// orphaned. On failure nothing is stored.
func (r *Registry) Open(ctx context.Context, sessionID string, cfg port.ConnConfig) (port.DatabaseManager, *domain.Error) {
	factory, ok := r.factories[cfg.Backend]
	if !ok {
		return nil, &domain.Error{
			Kind:    domain.KindConfiguration,
			Message: "Unsupported backend type: " + string(cfg.Backend),
			Suggestions: []string{
				"Use one of: postgresql, mysql, sqlite",
			},
		}
	}

	manager := factory(cfg)
	if err := manager.Connect(ctx); err != nil {
		return nil, domain.ConnectionError(string(cfg.Backend), cfg.Host, cfg.Port, err.Error())
	}

	r.mu.Lock()
	old := r.entries[sessionID]
	r.entries[sessionID] = manager
	r.mu.Unlock()

	if old != nil {
		if err := old.Disconnect(ctx); err != nil {
			r.logger.Warn("disconnecting replaced manager",
				slog.String("session", sessionID), slog.String("error", err.Error()))
		}
	}

	r.logger.Info("session connected",
		slog.String("session", sessionID),
		slog.String("backend", string(cfg.Backend)),
	)
	return manager, nil
}

// Close disconnects and removes the session's manager. Reports whether
// an entry existed.
func (r *Registry) Close(ctx context.Context, sessionID string) bool {
	r.mu.Lock()
	manager, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	if err := manager.Disconnect(ctx); err != nil {
		r.logger.Warn("disconnect error",
			slog.String("session", sessionID), slog.String("error", err.Error()))
	}
	r.logger.Info("session disconnected", slog.String("session", sessionID))
	return true
}

// Lookup is a pure accessor: it never creates or health-checks.
func (r *Registry) Lookup(sessionID string) (port.DatabaseManager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	manager, ok := r.entries[sessionID]
	return manager, ok
}

// Status describes the session's connection. "Never connected" and
// "connected but unhealthy" are reported distinctly.
type Status struct {
	Connected bool           `json:"connected"`
	Message   string         `json:"message"`
	Info      map[string]any `json:"connection_info,omitempty"`
}

func (r *Registry) Status(ctx context.Context, sessionID string) Status {
	manager, ok := r.Lookup(sessionID)
	if !ok {
		return Status{Connected: false, Message: "No database connection established"}
	}
	if !manager.TestConnection(ctx) {
		return Status{Connected: false, Message: "Database connection is not working"}
	}
	return Status{
		Connected: true,
		Message:   "Database connection is active",
		Info:      manager.ConnectionInfo(),
	}
}

// Resolve returns the session's manager after a health check, mapping
// the two failure modes to their distinct error kinds.
func (r *Registry) Resolve(ctx context.Context, sessionID string) (port.DatabaseManager, *domain.Error) {
	manager, ok := r.Lookup(sessionID)
	if !ok {
		return nil, domain.NotConnectedError()
	}
	if !manager.TestConnection(ctx) {
		return nil, domain.ConnectionLostError()
	}
	return manager, nil
}

// CloseAll tears down every session, used on shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]port.DatabaseManager)
	r.mu.Unlock()

	for sessionID, manager := range entries {
		if err := manager.Disconnect(ctx); err != nil {
			r.logger.Warn("disconnect error",
				slog.String("session", sessionID), slog.String("error", err.Error()))
		}
	}
}
