package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlsql/internal/core/domain"
	"nlsql/internal/core/port"
)

func TestUserManagerDisabledGrantsEverything(t *testing.T) {
	m := NewUserManager(false, "secret1", testLogger())

	assert.False(t, m.Enabled())
	assert.True(t, m.HasPermission("any-session", port.PermDeleteData))
}

func TestUserManagerLoginAndPermissions(t *testing.T) {
	m := NewUserManager(true, "secret1", testLogger())

	// Anonymous sessions have nothing.
	assert.False(t, m.HasPermission("s1", port.PermQueryData))

	payload, derr := m.Login("s1", "admin", "secret1")
	require.Nil(t, derr)
	assert.Equal(t, "admin", payload["username"])

	assert.True(t, m.HasPermission("s1", port.PermQueryData))
	assert.True(t, m.HasPermission("s1", port.PermManageRoles))
	assert.False(t, m.HasPermission("s2", port.PermQueryData), "sessions are independent")
}

func TestUserManagerLoginFailures(t *testing.T) {
	m := NewUserManager(true, "secret1", testLogger())

	_, derr := m.Login("s1", "admin", "wrong")
	require.NotNil(t, derr)
	assert.Equal(t, domain.KindPermission, derr.Kind)

	_, derr = m.Login("s1", "nobody", "secret1")
	require.NotNil(t, derr)
	assert.Equal(t, domain.KindPermission, derr.Kind)
}

func TestUserManagerLogout(t *testing.T) {
	m := NewUserManager(true, "secret1", testLogger())

	_, derr := m.Login("s1", "admin", "secret1")
	require.Nil(t, derr)

	assert.True(t, m.Logout("s1"))
	assert.False(t, m.HasPermission("s1", port.PermQueryData))
	assert.False(t, m.Logout("s1"))
}

func TestUserManagerRolePermissions(t *testing.T) {
	m := NewUserManager(true, "secret1", testLogger())

	_, derr := m.CreateUser("viewer1", "v@example.com", "password", RoleViewer)
	require.Nil(t, derr)
	_, derr = m.CreateUser("analyst1", "a@example.com", "password", RoleAnalyst)
	require.Nil(t, derr)

	_, derr = m.Login("sv", "viewer1", "password")
	require.Nil(t, derr)
	_, derr = m.Login("sa", "analyst1", "password")
	require.Nil(t, derr)

	// Viewers read but never write or export.
	assert.True(t, m.HasPermission("sv", port.PermQueryData))
	assert.False(t, m.HasPermission("sv", port.PermAddData))
	assert.False(t, m.HasPermission("sv", port.PermExportData))

	// Analysts write and export but never delete or manage users.
	assert.True(t, m.HasPermission("sa", port.PermAddData))
	assert.True(t, m.HasPermission("sa", port.PermUpdateData))
	assert.True(t, m.HasPermission("sa", port.PermExportData))
	assert.False(t, m.HasPermission("sa", port.PermDeleteData))
	assert.False(t, m.HasPermission("sa", port.PermCreateUser))
}

func TestUserManagerCreateUserValidation(t *testing.T) {
	m := NewUserManager(true, "secret1", testLogger())

	_, derr := m.CreateUser("", "e@example.com", "password", RoleUser)
	require.NotNil(t, derr)
	assert.Equal(t, domain.KindValidation, derr.Kind)

	_, derr = m.CreateUser("short", "e@example.com", "12345", RoleUser)
	require.NotNil(t, derr)

	_, derr = m.CreateUser("badrole", "e@example.com", "password", Role("root"))
	require.NotNil(t, derr)

	_, derr = m.CreateUser("Admin", "e@example.com", "password", RoleUser)
	require.NotNil(t, derr, "usernames are case-insensitive unique")
}

func TestUserManagerSetRoleUpdatesLiveSessions(t *testing.T) {
	m := NewUserManager(true, "secret1", testLogger())

	_, derr := m.CreateUser("bob", "b@example.com", "password", RoleViewer)
	require.Nil(t, derr)
	_, derr = m.Login("sb", "bob", "password")
	require.Nil(t, derr)

	assert.False(t, m.HasPermission("sb", port.PermAddData))

	require.Nil(t, m.SetRole("bob", RoleAnalyst))
	assert.True(t, m.HasPermission("sb", port.PermAddData), "live session picks up the new role")

	derr = m.SetRole("nobody", RoleUser)
	require.NotNil(t, derr)
}

func TestUserManagerWhoami(t *testing.T) {
	m := NewUserManager(true, "secret1", testLogger())

	anon := m.Whoami("s1")
	assert.Equal(t, false, anon["authenticated"])

	_, derr := m.Login("s1", "admin", "secret1")
	require.Nil(t, derr)

	who := m.Whoami("s1")
	assert.Equal(t, true, who["authenticated"])
	assert.Equal(t, "admin", who["username"])
	assert.Equal(t, string(RoleAdmin), who["role"])
}

func TestUserManagerListUsersOmitsCredentials(t *testing.T) {
	m := NewUserManager(true, "secret1", testLogger())

	users := m.ListUsers()
	require.Len(t, users, 1)
	for key := range users[0] {
		assert.NotContains(t, key, "password")
		assert.NotContains(t, key, "hash")
	}
}

func TestRolePermissionsAdminHasAll(t *testing.T) {
	perms := RolePermissions(RoleAdmin)
	assert.ElementsMatch(t, port.AllPermissions(), perms)
}
