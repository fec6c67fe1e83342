package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"nlsql/internal/core/domain"
	"nlsql/internal/core/port"
	"nlsql/internal/core/service"
)

// Tool descriptions
const (
	descConnect = "Connect this session to a database. Supported types: postgresql, mysql, sqlite. " +
		"For sqlite, only the database path is needed (\":memory:\" for an in-memory database). " +
		"Reconnecting replaces the session's previous connection."

	descDisconnect = "Close this session's database connection."

	descStatus = "Report whether this session has a working database connection and its redacted parameters."

	descQueryData = "Ask a question about the connected database in plain English. " +
		"The question is translated to a SELECT statement, executed, and the rows are returned. " +
		"Identical questions may be answered from cache."

	descAddData = "Insert data described in plain English (e.g. \"add a user named Alice with email alice@example.com\")."

	descUpdateData = "Update data described in plain English. " +
		"The generated statement must target specific rows; bulk updates without a filter are refused."

	descDeleteData = "Delete data described in plain English. " +
		"The generated statement must target specific rows; bulk deletions without a filter are refused."

	descListTables = "List the tables in the connected database. " +
		"Call this first to discover what can be queried."

	descDescribeTable = "Describe a table's structure: columns with types and nullability, " +
		"primary keys, and foreign keys with the tables they reference."

	descSummary = "Summarise the connected database: every table with its column count and key relationships."

	descHistory = "Show this session's recent queries, newest first, with their generated SQL and outcomes."

	descHistoryStats = "Aggregate statistics over this session's query history: totals, success rate, and average execution time."

	descRepeatQuery = "Re-run a previous query by its history entry ID. The stored SQL is executed again against live data."

	descClearHistory = "Discard this session's query history."

	descExport = "Run a plain-English question and export the result rows. " +
		"Formats: csv, json, xlsx (returned base64 encoded)."

	descSuggestChart = "Run a plain-English question and recommend a chart type and axis columns for the result."

	descAuthenticate = "Log this session in with a username and password."

	descLogout = "Log this session out."

	descWhoami = "Show the identity and role bound to this session."

	descCreateUser = "Create a user account. Roles: admin, analyst, user, viewer."

	descListUsers = "List all user accounts without credential material."

	descSetRole = "Change a user's role. Live sessions for that user pick the new role up immediately."

	descCacheStats = "Report cache health and hit-rate counters."
)

// RegisterTools wires every tool onto the server.
func RegisterTools(s *server.MCPServer, svcs Services, logger *slog.Logger) {
	s.AddTool(
		mcp.NewTool("connect_database",
			mcp.WithDescription(descConnect),
			mcp.WithString("db_type",
				mcp.Required(),
				mcp.Description("Database type: postgresql, mysql, or sqlite"),
			),
			mcp.WithString("host", mcp.Description("Server host (not used for sqlite)")),
			mcp.WithNumber("port", mcp.Description("Server port (not used for sqlite)")),
			mcp.WithString("username", mcp.Description("Login user (not used for sqlite)")),
			mcp.WithString("password", mcp.Description("Login password (not used for sqlite)")),
			mcp.WithString("database", mcp.Description("Database name, or file path / \":memory:\" for sqlite")),
		),
		connectHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("disconnect_database", mcp.WithDescription(descDisconnect)),
		disconnectHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("connection_status", mcp.WithDescription(descStatus)),
		statusHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("query_data",
			mcp.WithDescription(descQueryData),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("The question in plain English"),
			),
		),
		queryDataHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("add_data",
			mcp.WithDescription(descAddData),
			mcp.WithString("command",
				mcp.Required(),
				mcp.Description("The insertion described in plain English"),
			),
		),
		mutateHandler(svcs, port.StatementInsert),
	)

	s.AddTool(
		mcp.NewTool("update_data",
			mcp.WithDescription(descUpdateData),
			mcp.WithString("command",
				mcp.Required(),
				mcp.Description("The update described in plain English"),
			),
		),
		mutateHandler(svcs, port.StatementUpdate),
	)

	s.AddTool(
		mcp.NewTool("delete_data",
			mcp.WithDescription(descDeleteData),
			mcp.WithString("command",
				mcp.Required(),
				mcp.Description("The deletion described in plain English"),
			),
		),
		mutateHandler(svcs, port.StatementDelete),
	)

	s.AddTool(
		mcp.NewTool("list_tables", mcp.WithDescription(descListTables)),
		listTablesHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("describe_table",
			mcp.WithDescription(descDescribeTable),
			mcp.WithString("table_name",
				mcp.Required(),
				mcp.Description("Name of the table to describe"),
			),
		),
		describeTableHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("database_summary", mcp.WithDescription(descSummary)),
		summaryHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("query_history",
			mcp.WithDescription(descHistory),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries to return")),
		),
		historyHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("history_stats", mcp.WithDescription(descHistoryStats)),
		historyStatsHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("repeat_query",
			mcp.WithDescription(descRepeatQuery),
			mcp.WithString("query_id",
				mcp.Required(),
				mcp.Description("History entry ID to re-run"),
			),
		),
		repeatQueryHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("clear_history", mcp.WithDescription(descClearHistory)),
		clearHistoryHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("export_data",
			mcp.WithDescription(descExport),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("The question in plain English"),
			),
			mcp.WithString("format", mcp.Description("Export format: csv (default), json, or xlsx")),
			mcp.WithString("filename", mcp.Description("Output filename (auto-generated if omitted)")),
		),
		exportHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("suggest_chart",
			mcp.WithDescription(descSuggestChart),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("The question in plain English"),
			),
		),
		suggestChartHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("authenticate",
			mcp.WithDescription(descAuthenticate),
			mcp.WithString("username", mcp.Required(), mcp.Description("Account username")),
			mcp.WithString("password", mcp.Required(), mcp.Description("Account password")),
		),
		authenticateHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("logout", mcp.WithDescription(descLogout)),
		logoutHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("whoami", mcp.WithDescription(descWhoami)),
		whoamiHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("create_user",
			mcp.WithDescription(descCreateUser),
			mcp.WithString("username", mcp.Required(), mcp.Description("Unique username")),
			mcp.WithString("email", mcp.Description("Email address")),
			mcp.WithString("password", mcp.Required(), mcp.Description("Password, at least 6 characters")),
			mcp.WithString("role", mcp.Description("Role: admin, analyst, user, or viewer (default user)")),
		),
		createUserHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("list_users", mcp.WithDescription(descListUsers)),
		listUsersHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("set_user_role",
			mcp.WithDescription(descSetRole),
			mcp.WithString("username", mcp.Required(), mcp.Description("Account to change")),
			mcp.WithString("role", mcp.Required(), mcp.Description("New role: admin, analyst, user, or viewer")),
		),
		setRoleHandler(svcs),
	)

	s.AddTool(
		mcp.NewTool("cache_stats", mcp.WithDescription(descCacheStats)),
		cacheStatsHandler(svcs),
	)
}

// sessionID identifies the calling client. Transports without session
// tracking share one anonymous session.
func sessionID(ctx context.Context) string {
	if cs := server.ClientSessionFromContext(ctx); cs != nil {
		return cs.SessionID()
	}
	return "default"
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError("failed to marshal results: " + err.Error())
	}
	return mcp.NewToolResultText(string(data))
}

func errorResult(derr *domain.Error, debug bool) *mcp.CallToolResult {
	data, err := json.Marshal(derr.Response(debug))
	if err != nil {
		return mcp.NewToolResultError(derr.Message)
	}
	return mcp.NewToolResultError(string(data))
}

// denied returns a non-nil result when the session lacks the permission.
func denied(svcs Services, ctx context.Context, perm port.Permission) *mcp.CallToolResult {
	if svcs.Users.Enabled() && !svcs.Users.HasPermission(sessionID(ctx), perm) {
		return errorResult(domain.PermissionError(string(perm)), svcs.Debug)
	}
	return nil
}

func stringArg(request mcp.CallToolRequest, name string) string {
	v, _ := request.GetArguments()[name].(string)
	return v
}

func intArg(request mcp.CallToolRequest, name string) int {
	if v, ok := request.GetArguments()[name].(float64); ok {
		return int(v)
	}
	return 0
}

// resultRows extracts the row slice from a query payload. Rows that came
// through the cache are decoded as []any and need coercion.
func resultRows(payload map[string]any) []map[string]any {
	if rows, ok := payload["results"].([]map[string]any); ok {
		return rows
	}
	raw, ok := payload["results"].([]any)
	if !ok {
		return nil
	}
	rows := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			rows = append(rows, m)
		}
	}
	return rows
}

func connectHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermConnectDatabase); res != nil {
			return res, nil
		}

		dbType := strings.ToLower(stringArg(request, "db_type"))
		if dbType == "" {
			return mcp.NewToolResultError("db_type is required"), nil
		}

		cfg := port.ConnConfig{
			Backend:  port.Backend(dbType),
			Host:     stringArg(request, "host"),
			Port:     intArg(request, "port"),
			Username: stringArg(request, "username"),
			Password: stringArg(request, "password"),
			Database: stringArg(request, "database"),
		}

		// Fill omitted parameters from the configured defaults when they
		// target the same backend.
		if cfg.Backend == svcs.Defaults.Backend {
			if cfg.Host == "" {
				cfg.Host = svcs.Defaults.Host
			}
			if cfg.Port == 0 {
				cfg.Port = svcs.Defaults.Port
			}
			if cfg.Username == "" {
				cfg.Username = svcs.Defaults.Username
			}
			if cfg.Password == "" {
				cfg.Password = svcs.Defaults.Password
			}
			if cfg.Database == "" {
				cfg.Database = svcs.Defaults.Database
			}
		}

		manager, derr := svcs.Registry.Open(ctx, sessionID(ctx), cfg)
		if derr != nil {
			return errorResult(derr, svcs.Debug), nil
		}

		return jsonResult(map[string]any{
			"success":         true,
			"message":         "Connected to " + dbType + " database",
			"connection_info": manager.ConnectionInfo(),
		}), nil
	}
}

func disconnectHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermDisconnectDatabase); res != nil {
			return res, nil
		}

		if !svcs.Registry.Close(ctx, sessionID(ctx)) {
			return errorResult(domain.NotConnectedError(), svcs.Debug), nil
		}
		return jsonResult(map[string]any{
			"success": true,
			"message": "Disconnected from database",
		}), nil
	}
}

func statusHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(svcs.Registry.Status(ctx, sessionID(ctx))), nil
	}
}

func queryDataHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermQueryData); res != nil {
			return res, nil
		}

		payload, derr := svcs.Query.Query(ctx, sessionID(ctx), stringArg(request, "query"))
		if derr != nil {
			return errorResult(derr, svcs.Debug), nil
		}
		return jsonResult(payload), nil
	}
}

func mutateHandler(svcs Services, kind port.StatementKind) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload, derr := svcs.Query.Mutate(ctx, sessionID(ctx), stringArg(request, "command"), kind)
		if derr != nil {
			return errorResult(derr, svcs.Debug), nil
		}
		return jsonResult(payload), nil
	}
}

func listTablesHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermListTables); res != nil {
			return res, nil
		}

		tables, derr := svcs.Schema.ListTables(ctx, sessionID(ctx))
		if derr != nil {
			return errorResult(derr, svcs.Debug), nil
		}
		return jsonResult(map[string]any{
			"success":     true,
			"tables":      tables,
			"table_count": len(tables),
		}), nil
	}
}

func describeTableHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermDescribeTable); res != nil {
			return res, nil
		}

		tableName := stringArg(request, "table_name")
		if tableName == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}

		schema, derr := svcs.Schema.DescribeTable(ctx, sessionID(ctx), tableName)
		if derr != nil {
			return errorResult(derr, svcs.Debug), nil
		}
		return jsonResult(schema), nil
	}
}

func summaryHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermDatabaseSummary); res != nil {
			return res, nil
		}

		summary, derr := svcs.Schema.Summary(ctx, sessionID(ctx), 0)
		if derr != nil {
			return errorResult(derr, svcs.Debug), nil
		}
		return jsonResult(summary), nil
	}
}

func historyHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermQueryHistory); res != nil {
			return res, nil
		}

		records := svcs.History.List(sessionID(ctx), intArg(request, "limit"))
		return jsonResult(map[string]any{
			"success": true,
			"history": records,
			"count":   len(records),
		}), nil
	}
}

func historyStatsHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermQueryHistory); res != nil {
			return res, nil
		}
		return jsonResult(svcs.History.Stats(sessionID(ctx))), nil
	}
}

func repeatQueryHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermRepeatQuery); res != nil {
			return res, nil
		}

		queryID := stringArg(request, "query_id")
		if queryID == "" {
			return mcp.NewToolResultError("query_id is required"), nil
		}

		sid := sessionID(ctx)
		rec, ok := svcs.History.GetByID(sid, queryID)
		if !ok {
			return errorResult(domain.ValidationError("no history entry with ID "+queryID), svcs.Debug), nil
		}

		result, derr := svcs.Query.ExecuteSQL(ctx, sid, rec.SQL)
		if derr != nil {
			return errorResult(derr, svcs.Debug), nil
		}
		return jsonResult(map[string]any{
			"success":        true,
			"original_query": rec.Query,
			"generated_sql":  rec.SQL,
			"results":        result.Rows,
			"row_count":      result.RowCount,
			"truncated":      result.Truncated,
		}), nil
	}
}

func clearHistoryHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermQueryHistory); res != nil {
			return res, nil
		}

		n := svcs.History.Clear(sessionID(ctx))
		return jsonResult(map[string]any{
			"success":         true,
			"cleared_entries": n,
		}), nil
	}
}

func exportHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermExportData); res != nil {
			return res, nil
		}

		query := stringArg(request, "query")
		payload, derr := svcs.Query.Query(ctx, sessionID(ctx), query)
		if derr != nil {
			return errorResult(derr, svcs.Debug), nil
		}

		out, derr := svcs.Export.Export(resultRows(payload), stringArg(request, "format"), stringArg(request, "filename"), query)
		if derr != nil {
			return errorResult(derr, svcs.Debug), nil
		}
		// The export must not claim completeness over a cut row set.
		if truncated, _ := payload["truncated"].(bool); truncated {
			out["truncated"] = true
			out["message"] = fmt.Sprint(out["message"], " (row limit reached, result truncated)")
		}
		return jsonResult(out), nil
	}
}

func suggestChartHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermCreateChart); res != nil {
			return res, nil
		}

		query := stringArg(request, "query")
		payload, derr := svcs.Query.Query(ctx, sessionID(ctx), query)
		if derr != nil {
			return errorResult(derr, svcs.Debug), nil
		}

		suggestion, derr := svcs.Chart.Suggest(resultRows(payload))
		if derr != nil {
			return errorResult(derr, svcs.Debug), nil
		}
		suggestion["original_query"] = query
		return jsonResult(suggestion), nil
	}
}

func authenticateHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		username := stringArg(request, "username")
		password := stringArg(request, "password")
		if username == "" || password == "" {
			return mcp.NewToolResultError("username and password are required"), nil
		}

		payload, derr := svcs.Users.Login(sessionID(ctx), username, password)
		if derr != nil {
			return errorResult(derr, svcs.Debug), nil
		}
		return jsonResult(payload), nil
	}
}

func logoutHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]any{
			"success":    true,
			"logged_out": svcs.Users.Logout(sessionID(ctx)),
		}), nil
	}
}

func whoamiHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(svcs.Users.Whoami(sessionID(ctx))), nil
	}
}

func createUserHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermCreateUser); res != nil {
			return res, nil
		}

		role := service.Role(stringArg(request, "role"))
		if role == "" {
			role = service.RoleUser
		}

		user, derr := svcs.Users.CreateUser(
			stringArg(request, "username"),
			stringArg(request, "email"),
			stringArg(request, "password"),
			role,
		)
		if derr != nil {
			return errorResult(derr, svcs.Debug), nil
		}
		return jsonResult(map[string]any{
			"success":  true,
			"user_id":  user.ID,
			"username": user.Username,
			"role":     string(user.Role),
		}), nil
	}
}

func listUsersHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermListUsers); res != nil {
			return res, nil
		}
		users := svcs.Users.ListUsers()
		return jsonResult(map[string]any{
			"success": true,
			"users":   users,
			"count":   len(users),
		}), nil
	}
}

func setRoleHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res := denied(svcs, ctx, port.PermManageRoles); res != nil {
			return res, nil
		}

		username := stringArg(request, "username")
		role := service.Role(stringArg(request, "role"))
		if derr := svcs.Users.SetRole(username, role); derr != nil {
			return errorResult(derr, svcs.Debug), nil
		}
		return jsonResult(map[string]any{
			"success":  true,
			"username": username,
			"role":     string(role),
		}), nil
	}
}

func cacheStatsHandler(svcs Services) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(svcs.Cache.Stats(ctx)), nil
	}
}
