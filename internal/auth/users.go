package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateUser registers a new user, hashing password with bcrypt. Rejects
// duplicate (case-sensitive) usernames.
func (s *Service) CreateUser(info UserInfo, password string) error {
	if info.Username == "" {
		return fmt.Errorf("auth: username is required")
	}
	if !s.ValidatePassword(password) {
		return fmt.Errorf("auth: password does not meet policy")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByName[info.Username]; exists {
		return fmt.Errorf("auth: username %q already exists", info.Username)
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	info.UserID = uuid.NewString()
	info.CreatedAt = now
	info.PasswordChangedAt = now
	if info.Role == "" {
		info.Role = RoleUser
	}
	if info.ExtraPermissions == nil {
		info.ExtraPermissions = map[Permission]bool{}
	}
	info.IsActive = true

	s.usersByID[info.UserID] = &info
	s.usersByName[info.Username] = info.UserID
	s.passwordHashes[info.UserID] = hash

	s.auditLocked(info.UserID, "USER_CREATED", info.Username)
	return nil
}

// auditLocked appends an audit entry. It may be called with or without s.mu
// held: the audit log has its own independent mutex, so this never deadlocks.
func (s *Service) auditLocked(userID, event, details string) {
	s.audit.Append(userID, event, details)
}

func (s *Service) UpdateUser(info UserInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.usersByID[info.UserID]
	if !ok {
		return fmt.Errorf("auth: unknown user %q", info.UserID)
	}
	if info.Username != "" && info.Username != existing.Username {
		if _, taken := s.usersByName[info.Username]; taken {
			return fmt.Errorf("auth: username %q already exists", info.Username)
		}
		delete(s.usersByName, existing.Username)
		s.usersByName[info.Username] = info.UserID
		existing.Username = info.Username
	}
	if info.Email != "" {
		existing.Email = info.Email
	}
	if info.FullName != "" {
		existing.FullName = info.FullName
	}
	if info.Role != "" {
		existing.Role = info.Role
	}
	return nil
}

func (s *Service) DeleteUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.usersByID[userID]
	if !ok {
		return fmt.Errorf("auth: unknown user %q", userID)
	}
	delete(s.usersByID, userID)
	delete(s.usersByName, info.Username)
	delete(s.passwordHashes, userID)
	return nil
}

func (s *Service) GetUserInfo(userID string) (UserInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.usersByID[userID]
	if !ok {
		return UserInfo{}, false
	}
	return *info, true
}

func (s *Service) GetUserByUsername(username string) (UserInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.usersByName[username]
	if !ok {
		return UserInfo{}, false
	}
	return *s.usersByID[id], true
}

func (s *Service) GetAllUsers() []UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UserInfo, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		out = append(out, *u)
	}
	return out
}

func (s *Service) UserExists(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.usersByName[username]
	return ok
}

// ChangePassword requires the old password to match.
func (s *Service) ChangePassword(userID, oldPassword, newPassword string) error {
	s.mu.Lock()
	hash, ok := s.passwordHashes[userID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("auth: unknown user %q", userID)
	}
	if !s.VerifyPasswordHash(oldPassword, hash) {
		return fmt.Errorf("auth: old password does not match")
	}
	return s.ResetPassword(userID, newPassword)
}

// ResetPassword overwrites the stored hash unconditionally.
func (s *Service) ResetPassword(userID, newPassword string) error {
	if !s.ValidatePassword(newPassword) {
		return fmt.Errorf("auth: password does not meet policy")
	}
	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.usersByID[userID]
	if !ok {
		return fmt.Errorf("auth: unknown user %q", userID)
	}
	s.passwordHashes[userID] = hash
	info.PasswordChangedAt = time.Now().UTC()
	s.auditLocked(userID, "PASSWORD_RESET", "")
	return nil
}

// AssignRole overwrites a user's role.
func (s *Service) AssignRole(userID string, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.usersByID[userID]
	if !ok {
		return fmt.Errorf("auth: unknown user %q", userID)
	}
	info.Role = role
	return nil
}

func (s *Service) GrantPermission(userID string, perm Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.usersByID[userID]
	if !ok {
		return fmt.Errorf("auth: unknown user %q", userID)
	}
	info.ExtraPermissions[perm] = true
	return nil
}

func (s *Service) RevokePermission(userID string, perm Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.usersByID[userID]
	if !ok {
		return fmt.Errorf("auth: unknown user %q", userID)
	}
	delete(info.ExtraPermissions, perm)
	return nil
}

// HasPermission checks the role table overlaid by per-user grants.
func (s *Service) HasPermission(userID string, perm Permission) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.usersByID[userID]
	if !ok {
		return false
	}
	if RolePermissions(info.Role)[perm] {
		return true
	}
	return info.ExtraPermissions[perm]
}

// GetUserPermissions returns the union of the role table and per-user
// grants.
func (s *Service) GetUserPermissions(userID string) map[Permission]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.usersByID[userID]
	if !ok {
		return map[Permission]bool{}
	}
	out := RolePermissions(info.Role)
	for p := range info.ExtraPermissions {
		out[p] = true
	}
	return out
}

// IsUserLocked reports lock status, auto-clearing it once lockedUntil has
// passed.
func (s *Service) IsUserLocked(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.usersByID[userID]
	if !ok || !info.IsLocked {
		return false
	}
	if time.Now().UTC().After(info.LockedUntil) {
		info.IsLocked = false
		info.FailedLoginCount = 0
		return false
	}
	return true
}

// LockUser locks a user for duration (the configured LockoutDuration if
// duration is zero).
func (s *Service) LockUser(userID string, duration time.Duration) error {
	if duration == 0 {
		duration = s.cfg.LockoutDuration
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.usersByID[userID]
	if !ok {
		return fmt.Errorf("auth: unknown user %q", userID)
	}
	info.IsLocked = true
	info.LockedUntil = time.Now().UTC().Add(duration)
	s.auditLocked(userID, "USER_LOCKED", "")
	return nil
}

func (s *Service) UnlockUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.usersByID[userID]
	if !ok {
		return fmt.Errorf("auth: unknown user %q", userID)
	}
	info.IsLocked = false
	info.FailedLoginCount = 0
	s.auditLocked(userID, "USER_UNLOCKED", "")
	return nil
}
