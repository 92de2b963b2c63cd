// Package auth implements the gateway's authentication service: users, passwords,
// sessions, tokens, API keys, rate limiting and account lockout, backed by
// a fixed role/permission table.
package auth

import "time"

// Method names how a caller authenticated.
type Method string

const (
	MethodBasic  Method = "BASIC"
	MethodAPIKey Method = "API_KEY"
	MethodToken  Method = "TOKEN"
)

// Role is one of the five fixed, cumulative roles.
type Role string

const (
	RoleGuest      Role = "GUEST"
	RoleUser       Role = "USER"
	RoleOperator   Role = "OPERATOR"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// Permission is a single grantable capability.
type Permission string

const (
	PermReadDevices     Permission = "READ_DEVICES"
	PermWriteDevices    Permission = "WRITE_DEVICES"
	PermControlDevices  Permission = "CONTROL_DEVICES"
	PermManageUsers     Permission = "MANAGE_USERS"
	PermManageSystem    Permission = "MANAGE_SYSTEM"
	PermViewLogs        Permission = "VIEW_LOGS"
	PermManageConfigs   Permission = "MANAGE_CONFIGS"
	PermExecuteCommands Permission = "EXECUTE_COMMANDS"
	PermBulkOperations  Permission = "BULK_OPERATIONS"
	PermManageGroups    Permission = "MANAGE_GROUPS"
)

// UserInfo is a registered account.
type UserInfo struct {
	UserID            string
	Username          string
	Email             string
	FullName          string
	Role              Role
	ExtraPermissions  map[Permission]bool
	IsActive          bool
	IsLocked          bool
	CreatedAt         time.Time
	LastLoginAt       time.Time
	PasswordChangedAt time.Time
	FailedLoginCount  int
	LockedUntil       time.Time
}

// AuthToken is a bearer credential issued after successful authentication.
type AuthToken struct {
	Token     string
	UserID    string
	Username  string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionInfo tracks a logged-in client.
type SessionInfo struct {
	SessionID     string
	UserID        string
	Username      string
	ClientID      string
	RemoteAddress string
	CreatedAt     time.Time
	LastActivity  time.Time
	ExpiresAt     time.Time
	IsActive      bool
}

// ApiKey is a long-lived credential prefixed "ak_".
type ApiKey struct {
	Key         string
	UserID      string
	Description string
	CreatedAt   time.Time
}

// Request carries a login attempt.
type Request struct {
	Username      string
	Password      string
	ClientID      string
	RemoteAddress string
	Method        Method
	Timestamp     time.Time
}

// Result is the outcome of an authentication attempt. It never carries a
// Go error — failure is always represented by Success=false plus a
// user-facing ErrorMessage.
type Result struct {
	Success      bool
	ErrorMessage string
	Token        AuthToken
	Session      SessionInfo
	Timestamp    time.Time
}
