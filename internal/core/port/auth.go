package port

// Permission names one guarded capability.
type Permission string

const (
	PermConnectDatabase    Permission = "connect_database"
	PermDisconnectDatabase Permission = "disconnect_database"
	PermQueryData          Permission = "query_data"
	PermAddData            Permission = "add_data"
	PermUpdateData         Permission = "update_data"
	PermDeleteData         Permission = "delete_data"
	PermListTables         Permission = "list_tables"
	PermDescribeTable      Permission = "describe_table"
	PermDatabaseSummary    Permission = "database_summary"
	PermQueryHistory       Permission = "query_history"
	PermRepeatQuery        Permission = "repeat_query"
	PermExportData         Permission = "export_data"
	PermCreateChart        Permission = "create_visualization"
	PermCreateUser         Permission = "create_user"
	PermListUsers          Permission = "list_users"
	PermManageRoles        Permission = "manage_roles"
)

// AllPermissions returns every known permission.
func AllPermissions() []Permission {
	return []Permission{
		PermConnectDatabase,
		PermDisconnectDatabase,
		PermQueryData,
		PermAddData,
		PermUpdateData,
		PermDeleteData,
		PermListTables,
		PermDescribeTable,
		PermDatabaseSummary,
		PermQueryHistory,
		PermRepeatQuery,
		PermExportData,
		PermCreateChart,
		PermCreateUser,
		PermListUsers,
		PermManageRoles,
	}
}

// PermissionChecker gates mutating and export operations. When the
// authentication feature is disabled, implementations report every
// permission as granted.
type PermissionChecker interface {
	Enabled() bool
	HasPermission(sessionID string, perm Permission) bool
}
