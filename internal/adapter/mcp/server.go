package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"nlsql/internal/cache"
	"nlsql/internal/core/port"
	"nlsql/internal/core/service"
)

const serverName = "nlsql"

// Services bundles everything the tool handlers need.
type Services struct {
	Registry *service.Registry
	Schema   *service.SchemaService
	Query    *service.QueryService
	History  *service.HistoryService
	Users    *service.UserManager
	Export   *service.ExportService
	Chart    *service.ChartService
	Cache    *cache.QueryCache

	// Defaults fills in connection parameters omitted from a
	// connect_database call when the requested backend matches.
	Defaults port.ConnConfig

	// Debug controls whether technical error details reach clients.
	Debug bool
}

// NewServer creates the MCPServer with all tools and timing hooks.
func NewServer(version string, svcs Services, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithHooks(toolCallHooks(logger)),
	)

	RegisterTools(s, svcs, logger)

	return s
}
