package auth

import (
	"fmt"
	"time"
)

// Authenticate runs the full login path: rate limit, lookup, lock/active
// checks, password verification with failed-attempt tracking, and on
// success a fresh session + token.
func (s *Service) Authenticate(req Request) Result {
	now := time.Now().UTC()
	result := Result{Timestamp: now}

	identifier := req.Username + "@" + req.RemoteAddress
	if s.limiter.IsLimited(identifier) {
		result.ErrorMessage = "Rate limit exceeded"
		return result
	}
	s.limiter.Record(identifier)

	s.mu.Lock()
	userID, found := s.usersByName[req.Username]
	s.mu.Unlock()
	if !found {
		// Generic message to avoid username enumeration.
		result.ErrorMessage = "Invalid credentials"
		return result
	}

	if s.IsUserLocked(userID) {
		result.ErrorMessage = "Account is locked"
		s.emitSecurity(userID, "LOGIN_BLOCKED_LOCKED", req.RemoteAddress)
		return result
	}

	s.mu.Lock()
	info := s.usersByID[userID]
	if !info.IsActive {
		s.mu.Unlock()
		result.ErrorMessage = "Account is disabled"
		return result
	}
	hash := s.passwordHashes[userID]
	s.mu.Unlock()

	if !s.VerifyPasswordHash(req.Password, hash) {
		s.recordFailedLoginLocked(userID, req.Username, req.RemoteAddress)
		result.ErrorMessage = "Invalid credentials"
		return result
	}

	s.recordSuccessfulLogin(userID, req.RemoteAddress)

	session := s.createSessionLocked(userID, req.ClientID, req.RemoteAddress)
	token := s.createTokenLocked(userID)

	result.Success = true
	result.Session = session
	result.Token = token
	return result
}

// recordFailedLoginLocked increments the failed counter keyed by
// "username@remoteAddress" and locks the account once it reaches
// maxFailedAttempts.
func (s *Service) recordFailedLoginLocked(userID, username, remoteAddress string) {
	key := username + "@" + remoteAddress
	s.mu.Lock()
	s.failedLogins[key]++
	count := s.failedLogins[key]
	info := s.usersByID[userID]
	info.FailedLoginCount = count
	shouldLock := count >= s.cfg.MaxFailedAttempts
	s.mu.Unlock()

	s.auditLocked(userID, "LOGIN_FAILED", fmt.Sprintf("attempt=%d", count))
	if shouldLock {
		_ = s.LockUser(userID, s.cfg.LockoutDuration)
		s.emitSecurity(userID, "ACCOUNT_LOCKED", remoteAddress)
	}
}

func (s *Service) recordSuccessfulLogin(userID, remoteAddress string) {
	s.mu.Lock()
	info := s.usersByID[userID]
	info.FailedLoginCount = 0
	info.LastLoginAt = time.Now().UTC()
	username := info.Username
	s.mu.Unlock()

	delete(s.failedLogins, username+"@"+remoteAddress)
	s.auditLocked(userID, "LOGIN_SUCCESS", remoteAddress)
}

// RecordFailedLogin and RecordSuccessfulLogin expose the audit hooks
// directly, for callers authenticating via other paths (e.g. API keys)
// that still want the same bookkeeping.
func (s *Service) RecordFailedLogin(username, remoteAddress string) {
	s.mu.Lock()
	userID, ok := s.usersByName[username]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.recordFailedLoginLocked(userID, username, remoteAddress)
}

func (s *Service) RecordSuccessfulLogin(userID, remoteAddress string) {
	s.recordSuccessfulLogin(userID, remoteAddress)
}

// GetFailedLoginAttempts reads the failed counter for username regardless
// of remote address (aggregated across the most recent one on record).
func (s *Service) GetFailedLoginAttempts(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.usersByName[username]
	if !ok {
		return 0
	}
	return s.usersByID[id].FailedLoginCount
}
