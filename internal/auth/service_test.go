package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return New(nil, DefaultConfig())
}

func TestDefaultAdminBootstrapped(t *testing.T) {
	s := newTestService()
	info, ok := s.GetUserByUsername("admin")
	require.True(t, ok)
	assert.Equal(t, RoleSuperAdmin, info.Role)
}

func TestAuthenticateSuccess(t *testing.T) {
	s := newTestService()
	result := s.Authenticate(Request{Username: "admin", Password: "admin123!", RemoteAddress: "127.0.0.1"})
	require.True(t, result.Success)
	assert.NotEmpty(t, result.Token.Token)
	assert.NotEmpty(t, result.Session.SessionID)
}

func TestAuthenticateUnknownUserGenericMessage(t *testing.T) {
	s := newTestService()
	result := s.Authenticate(Request{Username: "nobody", Password: "x", RemoteAddress: "127.0.0.1"})
	assert.False(t, result.Success)
	assert.Equal(t, "Invalid credentials", result.ErrorMessage)
}

func TestAuthenticateWrongPasswordLocksAfterMaxAttempts(t *testing.T) {
	s := newTestService()
	cfg := s.cfg
	cfg.MaxFailedAttempts = 3
	s.cfg = cfg

	var last Result
	for i := 0; i < 3; i++ {
		last = s.Authenticate(Request{Username: "admin", Password: "wrong", RemoteAddress: "10.0.0.1"})
		assert.False(t, last.Success)
	}

	info, _ := s.GetUserByUsername("admin")
	assert.True(t, info.IsLocked)

	locked := s.Authenticate(Request{Username: "admin", Password: "admin123!", RemoteAddress: "10.0.0.1"})
	assert.False(t, locked.Success)
	assert.Equal(t, "Account is locked", locked.ErrorMessage)
}

func TestRateLimitBlocksAfterTenAttemptsPerMinute(t *testing.T) {
	s := newTestService()
	for i := 0; i < 10; i++ {
		s.Authenticate(Request{Username: "admin", Password: "wrong", RemoteAddress: "1.2.3.4"})
	}
	result := s.Authenticate(Request{Username: "admin", Password: "admin123!", RemoteAddress: "1.2.3.4"})
	assert.False(t, result.Success)
	assert.Equal(t, "Rate limit exceeded", result.ErrorMessage)
}

func TestTokenLifecycle(t *testing.T) {
	s := newTestService()
	result := s.Authenticate(Request{Username: "admin", Password: "admin123!", RemoteAddress: "127.0.0.1"})
	require.True(t, result.Success)

	_, ok := s.ValidateToken(result.Token.Token)
	assert.True(t, ok)

	refreshed, err := s.RefreshToken(result.Token.Token)
	require.NoError(t, err)
	assert.NotEqual(t, result.Token.Token, refreshed.Token)

	_, ok = s.ValidateToken(result.Token.Token)
	assert.False(t, ok, "old token should be evicted after refresh")

	require.NoError(t, s.RevokeToken(refreshed.Token))
	_, ok = s.ValidateToken(refreshed.Token)
	assert.False(t, ok)
}

func TestExpiredTokenRemovedLazily(t *testing.T) {
	s := newTestService()
	cfg := s.cfg
	cfg.TokenExpiration = time.Millisecond
	s.cfg = cfg

	result := s.Authenticate(Request{Username: "admin", Password: "admin123!", RemoteAddress: "127.0.0.1"})
	require.True(t, result.Success)

	time.Sleep(5 * time.Millisecond)
	_, ok := s.ValidateToken(result.Token.Token)
	assert.False(t, ok)
}

func TestRolePermissionHierarchy(t *testing.T) {
	assert.True(t, RolePermissions(RoleSuperAdmin)[PermReadDevices])
	assert.True(t, RolePermissions(RoleSuperAdmin)[PermManageSystem])
	assert.False(t, RolePermissions(RoleGuest)[PermManageSystem])
	assert.True(t, RolePermissions(RoleOperator)[PermReadDevices])
	assert.False(t, RolePermissions(RoleGuest)[PermControlDevices])
}

func TestExtraPermissionOverlay(t *testing.T) {
	s := newTestService()
	err := s.CreateUser(UserInfo{Username: "viewer", Role: RoleGuest}, "Passw0rd!")
	require.NoError(t, err)
	info, _ := s.GetUserByUsername("viewer")

	assert.False(t, s.HasPermission(info.UserID, PermManageSystem))
	require.NoError(t, s.GrantPermission(info.UserID, PermManageSystem))
	assert.True(t, s.HasPermission(info.UserID, PermManageSystem))
}

func TestAPIKeyLifecycle(t *testing.T) {
	s := newTestService()
	info, _ := s.GetUserByUsername("admin")

	key, err := s.GenerateAPIKey(info.UserID, "ci")
	require.NoError(t, err)
	assert.Regexp(t, `^ak_`, key)
	assert.True(t, s.ValidateAPIKey(key))

	require.NoError(t, s.RevokeAPIKey(key))
	assert.False(t, s.ValidateAPIKey(key))
}

func TestAuditLogFiltersBySubstring(t *testing.T) {
	s := newTestService()
	info, _ := s.GetUserByUsername("admin")
	s.Authenticate(Request{Username: "admin", Password: "admin123!", RemoteAddress: "127.0.0.1"})

	entries := s.GetAuthAuditLog(info.UserID, 10)
	assert.NotEmpty(t, entries)

	none := s.GetAuthAuditLog("no-such-user", 10)
	assert.Empty(t, none)
}

func TestPasswordPolicy(t *testing.T) {
	s := newTestService()
	assert.False(t, s.ValidatePassword("short1!"))
	assert.False(t, s.ValidatePassword("alllowercase1!"))
	assert.False(t, s.ValidatePassword("ALLUPPERCASE1!"))
	assert.False(t, s.ValidatePassword("NoDigitsHere!"))
	assert.False(t, s.ValidatePassword("NoPunctuation1"))
	assert.True(t, s.ValidatePassword("Valid123!"))
}

func TestIsUserLockedAutoClears(t *testing.T) {
	s := newTestService()
	info, _ := s.GetUserByUsername("admin")
	require.NoError(t, s.LockUser(info.UserID, 10*time.Millisecond))
	assert.True(t, s.IsUserLocked(info.UserID))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, s.IsUserLocked(info.UserID))
}

func TestDeletingUserFreesUsername(t *testing.T) {
	s := newTestService()
	require.NoError(t, s.CreateUser(UserInfo{Username: "temp", Role: RoleUser}, "Passw0rd!"))
	info, _ := s.GetUserByUsername("temp")

	require.NoError(t, s.DeleteUser(info.UserID))
	assert.False(t, s.UserExists("temp"))
}
