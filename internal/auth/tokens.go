package auth

import (
	"fmt"
	"time"
)

// createTokenLocked issues a fresh 32-char token for userID. Exported
// wrapper callers should use createSessionLocked/createTokenLocked
// together via Authenticate; it is also reusable by refreshToken.
func (s *Service) createTokenLocked(userID string) AuthToken {
	s.mu.Lock()
	info := s.usersByID[userID]
	s.mu.Unlock()

	now := time.Now().UTC()
	token := AuthToken{
		Token:     randomAlphanumeric(32),
		UserID:    userID,
		Username:  info.Username,
		Role:      info.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TokenExpiration),
	}
	s.mu.Lock()
	s.tokens[token.Token] = &token
	s.mu.Unlock()
	return token
}

// ValidateToken looks up a token, evicting it lazily if expired.
func (s *Service) ValidateToken(token string) (AuthToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return AuthToken{}, false
	}
	if time.Now().UTC().After(t.ExpiresAt) {
		delete(s.tokens, token)
		return AuthToken{}, false
	}
	return *t, true
}

// ParseToken returns the token record without checking expiry, mirroring
// the original's split between validate (checked) and parse (raw read).
func (s *Service) ParseToken(token string) (AuthToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return AuthToken{}, false
	}
	return *t, true
}

// RefreshToken issues a new token string for the same user and evicts the
// old one.
func (s *Service) RefreshToken(token string) (AuthToken, error) {
	s.mu.Lock()
	old, ok := s.tokens[token]
	if !ok {
		s.mu.Unlock()
		return AuthToken{}, fmt.Errorf("auth: unknown token")
	}
	userID := old.UserID
	delete(s.tokens, token)
	s.mu.Unlock()

	return s.createTokenLocked(userID), nil
}

// RevokeToken removes a token outright.
func (s *Service) RevokeToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token]; !ok {
		return fmt.Errorf("auth: unknown token")
	}
	delete(s.tokens, token)
	return nil
}

// createSessionLocked opens a new session for userID.
func (s *Service) createSessionLocked(userID, clientID, remoteAddress string) SessionInfo {
	s.mu.Lock()
	info := s.usersByID[userID]
	s.mu.Unlock()

	now := time.Now().UTC()
	session := SessionInfo{
		SessionID:     randomAlphanumeric(32),
		UserID:        userID,
		Username:      info.Username,
		ClientID:      clientID,
		RemoteAddress: remoteAddress,
		CreatedAt:     now,
		LastActivity:  now,
		ExpiresAt:     now.Add(s.cfg.SessionTimeout),
		IsActive:      true,
	}
	s.mu.Lock()
	s.sessions[session.SessionID] = &session
	s.mu.Unlock()
	return session
}

// CreateSession exposes createSessionLocked for callers establishing a
// session outside of Authenticate (e.g. after API-key auth).
func (s *Service) CreateSession(userID, clientID, remoteAddress string) SessionInfo {
	return s.createSessionLocked(userID, clientID, remoteAddress)
}

// ValidateSession reports whether a session exists, is active, and has
// not expired; an expired session is evicted lazily.
func (s *Service) ValidateSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || !sess.IsActive {
		return false
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		delete(s.sessions, sessionID)
		return false
	}
	return true
}

func (s *Service) GetSessionInfo(sessionID string) (SessionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return SessionInfo{}, false
	}
	return *sess, true
}

// UpdateSessionActivity extends the session's expiry window.
func (s *Service) UpdateSessionActivity(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	now := time.Now().UTC()
	sess.LastActivity = now
	sess.ExpiresAt = now.Add(s.cfg.SessionTimeout)
	return true
}

func (s *Service) TerminateSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)
	return true
}

func (s *Service) GetUserSessions(userID string) []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SessionInfo
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, *sess)
		}
	}
	return out
}

func (s *Service) GetActiveSessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var out []SessionInfo
	for _, sess := range s.sessions {
		if sess.IsActive && now.Before(sess.ExpiresAt) {
			out = append(out, *sess)
		}
	}
	return out
}

func (s *Service) TerminateAllUserSessions(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// SweepExpiredSessions removes every session past its expiry. Intended to
// be called from a periodic cleanup task.
func (s *Service) SweepExpiredSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// GenerateAPIKey mints a key prefixed "ak_" for userID.
func (s *Service) GenerateAPIKey(userID, description string) (string, error) {
	s.mu.Lock()
	_, ok := s.usersByID[userID]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("auth: unknown user %q", userID)
	}

	key := "ak_" + randomAlphanumeric(32)
	s.mu.Lock()
	s.apiKeys[key] = &ApiKey{Key: key, UserID: userID, Description: description, CreatedAt: time.Now().UTC()}
	s.mu.Unlock()
	return key, nil
}

func (s *Service) ValidateAPIKey(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.apiKeys[key]
	return ok
}

func (s *Service) RevokeAPIKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[key]; !ok {
		return fmt.Errorf("auth: unknown API key")
	}
	delete(s.apiKeys, key)
	return nil
}

func (s *Service) GetUserAPIKeys(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for key, ak := range s.apiKeys {
		if ak.UserID == userID {
			out = append(out, key)
		}
	}
	return out
}

// GetAuthAuditLog delegates to the ring buffer.
func (s *Service) GetAuthAuditLog(userIDSubstring string, limit int) []string {
	return s.audit.Filter(userIDSubstring, limit)
}

// LogAuthEvent lets callers outside this package append to the same audit
// trail (e.g. the HTTP auth middleware logging a rejected bearer token).
func (s *Service) LogAuthEvent(userID, event, details string) {
	s.audit.Append(userID, event, details)
}
