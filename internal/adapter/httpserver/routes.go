package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

func (s *Server) setupRoutes(mcpSrv *mcpserver.MCPServer) {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	if s.cfg.RateLimit > 0 {
		r.Use(rateLimit(s.cfg.RateLimit))
	}

	// MCP endpoint. Session tracking comes from the streamable transport's
	// Mcp-Session-Id header.
	r.Handle("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv))

	// Health probes
	r.Get("/health", s.handleHealth())
	r.Get("/ready", s.handleReady())

	s.router = r
}

// handleHealth returns a liveness probe handler. Always responds 200 if the
// server process is running.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// handleReady returns 200 when the service can translate queries, 503
// otherwise.
func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.ready != nil {
			if err := s.ready(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
