package service

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"nlsql/internal/core/domain"
	"nlsql/internal/core/port"
)

// Role names a coarse permission tier.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleUser    Role = "user"
	RoleViewer  Role = "viewer"
)

var allRoles = []Role{RoleAdmin, RoleAnalyst, RoleUser, RoleViewer}

// rolePermissions maps each role to the operations it may perform. Admin is
// resolved dynamically to every known permission.
var rolePermissions = map[Role][]port.Permission{
	RoleViewer: {
		port.PermConnectDatabase,
		port.PermListTables,
		port.PermDescribeTable,
		port.PermDatabaseSummary,
		port.PermQueryData,
		port.PermQueryHistory,
	},
	RoleUser: {
		port.PermConnectDatabase,
		port.PermDisconnectDatabase,
		port.PermListTables,
		port.PermDescribeTable,
		port.PermDatabaseSummary,
		port.PermQueryData,
		port.PermQueryHistory,
		port.PermRepeatQuery,
	},
	RoleAnalyst: {
		port.PermConnectDatabase,
		port.PermDisconnectDatabase,
		port.PermListTables,
		port.PermDescribeTable,
		port.PermDatabaseSummary,
		port.PermQueryData,
		port.PermAddData,
		port.PermUpdateData,
		port.PermQueryHistory,
		port.PermRepeatQuery,
		port.PermExportData,
		port.PermCreateChart,
	},
}

// User is an account known to the manager. The password hash never leaves
// this package.
type User struct {
	ID        string
	Username  string
	Email     string
	Role      Role
	Active    bool
	CreatedAt time.Time
	LastLogin time.Time

	passwordHash []byte
}

type userSession struct {
	userID    string
	username  string
	role      Role
	loginAt   time.Time
	expiresAt time.Time
}

const defaultSessionTimeout = 24 * time.Hour

// UserManager implements role-based access control over MCP sessions. A
// client session is anonymous until it logs in; when the manager is
// disabled every permission check passes.
type UserManager struct {
	enabled bool
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.RWMutex
	users    map[string]*User
	byName   map[string]string
	sessions map[string]*userSession
}

// NewUserManager builds the manager and bootstraps a default admin account.
// An empty adminPassword falls back to "admin123" with a warning so a fresh
// deployment is never locked out.
func NewUserManager(enabled bool, adminPassword string, logger *slog.Logger) *UserManager {
	m := &UserManager{
		enabled:  enabled,
		timeout:  defaultSessionTimeout,
		logger:   logger,
		users:    make(map[string]*User),
		byName:   make(map[string]string),
		sessions: make(map[string]*userSession),
	}

	if adminPassword == "" {
		adminPassword = "admin123"
		if enabled {
			logger.Warn("no admin password configured, using default credentials")
		}
	}
	if _, derr := m.addUser("admin", "admin@example.com", adminPassword, RoleAdmin); derr != nil {
		logger.Warn("failed to create default admin user", slog.String("error", derr.Message))
	}
	return m
}

// Enabled implements port.PermissionChecker.
func (m *UserManager) Enabled() bool { return m.enabled }

// HasPermission implements port.PermissionChecker. Expired sessions are
// pruned on access.
func (m *UserManager) HasPermission(sessionID string, perm port.Permission) bool {
	if !m.enabled {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	if time.Now().After(sess.expiresAt) {
		delete(m.sessions, sessionID)
		return false
	}
	return roleHasPermission(sess.role, perm)
}

// Login authenticates a username and password and binds the result to the
// given client session. The same generic error is returned for unknown
// users and wrong passwords.
func (m *UserManager) Login(sessionID, username, password string) (map[string]any, *domain.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byName[strings.ToLower(username)]
	if !ok {
		return nil, domain.AuthenticationError("invalid username or password")
	}
	user := m.users[id]
	if !user.Active {
		return nil, domain.AuthenticationError("account is deactivated")
	}
	if bcrypt.CompareHashAndPassword(user.passwordHash, []byte(password)) != nil {
		return nil, domain.AuthenticationError("invalid username or password")
	}

	now := time.Now()
	user.LastLogin = now
	m.sessions[sessionID] = &userSession{
		userID:    user.ID,
		username:  user.Username,
		role:      user.Role,
		loginAt:   now,
		expiresAt: now.Add(m.timeout),
	}

	m.logger.Info("user authenticated",
		slog.String("username", user.Username),
		slog.String("role", string(user.Role)),
	)
	return map[string]any{
		"success":    true,
		"username":   user.Username,
		"role":       string(user.Role),
		"expires_at": now.Add(m.timeout).Format(time.RFC3339),
	}, nil
}

// Logout unbinds the session. Returns false when nothing was bound.
func (m *UserManager) Logout(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	return ok
}

// Whoami reports the identity bound to a session, or an anonymous marker.
func (m *UserManager) Whoami(sessionID string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[sessionID]
	if !ok || time.Now().After(sess.expiresAt) {
		return map[string]any{
			"authenticated": false,
			"auth_enabled":  m.enabled,
		}
	}
	return map[string]any{
		"authenticated": true,
		"auth_enabled":  m.enabled,
		"username":      sess.username,
		"role":          string(sess.role),
		"login_at":      sess.loginAt.Format(time.RFC3339),
		"expires_at":    sess.expiresAt.Format(time.RFC3339),
	}
}

// CreateUser registers a new account.
func (m *UserManager) CreateUser(username, email, password string, role Role) (*User, *domain.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addUser(username, email, password, role)
}

// addUser requires m.mu to be held.
func (m *UserManager) addUser(username, email, password string, role Role) (*User, *domain.Error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.ValidationError("username must not be empty")
	}
	if len(password) < 6 {
		return nil, domain.ValidationError("password must be at least 6 characters")
	}
	if !validRole(role) {
		return nil, domain.ValidationError("unknown role: " + string(role))
	}
	key := strings.ToLower(username)
	if _, exists := m.byName[key]; exists {
		return nil, domain.ValidationError("username already exists: " + username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ValidationError("failed to hash password: " + err.Error())
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Role:         role,
		Active:       true,
		CreatedAt:    time.Now(),
		passwordHash: hash,
	}
	m.users[user.ID] = user
	m.byName[key] = user.ID
	return user, nil
}

// ListUsers returns account summaries without credential material.
func (m *UserManager) ListUsers() []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]map[string]any, 0, len(m.users))
	for _, u := range m.users {
		entry := map[string]any{
			"user_id":    u.ID,
			"username":   u.Username,
			"email":      u.Email,
			"role":       string(u.Role),
			"is_active":  u.Active,
			"created_at": u.CreatedAt.Format(time.RFC3339),
		}
		if !u.LastLogin.IsZero() {
			entry["last_login"] = u.LastLogin.Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	return out
}

// SetRole changes a user's role and updates any live sessions bound to it.
func (m *UserManager) SetRole(username string, role Role) *domain.Error {
	if !validRole(role) {
		return domain.ValidationError("unknown role: " + string(role))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byName[strings.ToLower(username)]
	if !ok {
		return domain.ValidationError("user not found: " + username)
	}
	m.users[id].Role = role
	for _, sess := range m.sessions {
		if sess.userID == id {
			sess.role = role
		}
	}
	return nil
}

// RolePermissions lists the permissions a role grants.
func RolePermissions(role Role) []port.Permission {
	if role == RoleAdmin {
		return port.AllPermissions()
	}
	perms := rolePermissions[role]
	out := make([]port.Permission, len(perms))
	copy(out, perms)
	return out
}

func roleHasPermission(role Role, perm port.Permission) bool {
	if role == RoleAdmin {
		return true
	}
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

func validRole(role Role) bool {
	for _, r := range allRoles {
		if r == role {
			return true
		}
	}
	return false
}
