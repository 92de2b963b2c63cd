package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"hydrogen-gateway/internal/registry"
)

// Config holds the service's tunable defaults.
type Config struct {
	TokenExpiration   time.Duration
	SessionTimeout    time.Duration
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	RateLimitPerMin   int
}

// DefaultConfig returns the service's built-in defaults: 3600s tokens,
// 1800s sessions, 5 failed attempts before a 300s lockout, 10
// attempts/minute rate limit.
func DefaultConfig() Config {
	return Config{
		TokenExpiration:   3600 * time.Second,
		SessionTimeout:    1800 * time.Second,
		MaxFailedAttempts: 5,
		LockoutDuration:   300 * time.Second,
		RateLimitPerMin:   10,
	}
}

// SecurityEventCallback observes lockouts, rate-limit hits, and similar.
type SecurityEventCallback func(userID, event, remoteAddress string)

// Service is the gateway's authentication service. It embeds registry.BaseService so it can
// be registered directly with the service registry.
type Service struct {
	*registry.BaseService

	logger *zap.Logger
	cfg    Config

	mu             sync.Mutex
	usersByID      map[string]*UserInfo
	usersByName    map[string]string // username -> userID
	passwordHashes map[string]string // userID -> bcrypt hash
	sessions       map[string]*SessionInfo
	tokens         map[string]*AuthToken
	apiKeys        map[string]*ApiKey
	failedLogins   map[string]int // "username@remoteAddress" -> count

	limiter  *rateLimiter
	audit    *auditLog
	securityCB SecurityEventCallback

	nextUserSeq int
}

// New constructs a Service with a bootstrapped default admin account
// ("admin"/"admin123!", SUPER_ADMIN) since no users exist yet.
func New(logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		BaseService:    registry.NewBaseService("auth", "1.0.0", "authentication and authorization"),
		logger:         logger,
		cfg:            cfg,
		usersByID:      map[string]*UserInfo{},
		usersByName:    map[string]string{},
		passwordHashes: map[string]string{},
		sessions:       map[string]*SessionInfo{},
		tokens:         map[string]*AuthToken{},
		apiKeys:        map[string]*ApiKey{},
		failedLogins:   map[string]int{},
		limiter:        newRateLimiter(cfg.RateLimitPerMin),
		audit:          newAuditLog(),
	}
	s.bootstrapDefaultAdmin()
	return s
}

func (s *Service) bootstrapDefaultAdmin() {
	s.mu.Lock()
	hasUsers := len(s.usersByID) > 0
	s.mu.Unlock()
	if hasUsers {
		return
	}
	if err := s.CreateUser(UserInfo{Username: "admin", Email: "admin@localhost", Role: RoleSuperAdmin, IsActive: true}, "admin123!"); err != nil {
		s.logger.Error("failed to bootstrap default admin", zap.Error(err))
	}
}

func (s *Service) Dependencies() []string { return nil }

func (s *Service) Initialize() error { return nil }
func (s *Service) Start() error      { return nil }
func (s *Service) Stop() error       { return nil }
func (s *Service) Shutdown() error   { return nil }

// SetSecurityEventCallback installs the lockout/rate-limit observer.
func (s *Service) SetSecurityEventCallback(cb SecurityEventCallback) { s.securityCB = cb }

func (s *Service) emitSecurity(userID, event, remoteAddress string) {
	if s.securityCB != nil {
		s.securityCB(userID, event, remoteAddress)
	}
}

func randomAlphanumeric(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			// crypto/rand failure is unrecoverable; fall back to a fixed
			// character rather than panicking mid-request.
			out[i] = alphabet[0]
			continue
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out)
}

// HashPassword hashes password with bcrypt at the library default cost.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPasswordHash reports whether password matches the bcrypt hash.
func (s *Service) VerifyPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var passwordPunct = regexp.MustCompile(`[!-/:-@\[-` + "`" + `{-~]`)

// ValidatePassword enforces the default password policy: length >= 8, at
// least one upper, lower, digit and punctuation character.
func (s *Service) ValidatePassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasUpper, hasLower, hasDigit, hasPunct bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case passwordPunct.MatchString(string(r)):
			hasPunct = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasPunct
}

// GenerateTemporaryPassword produces a policy-compliant random password.
func (s *Service) GenerateTemporaryPassword() string {
	for {
		candidate := "Aa1!" + randomAlphanumeric(8)
		if s.ValidatePassword(candidate) {
			return candidate
		}
	}
}
