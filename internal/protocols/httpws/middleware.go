package httpws

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// corsMiddleware emits the Access-Control-Allow-* headers and short-circuits
// OPTIONS preflight requests with a bare 200.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.statsMu.Lock()
		s.requests++
		s.statsMu.Unlock()

		next.ServeHTTP(w, r)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// rateWindow is a simple global sliding-window limiter: N requests per
// rolling minute across the whole server.
type rateWindow struct {
	mu     sync.Mutex
	limit  int
	times  []time.Time
}

func newRateWindow(limit int) *rateWindow {
	if limit <= 0 {
		limit = 120
	}
	return &rateWindow{limit: limit}
}

func (w *rateWindow) allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Minute)
	kept := w.times[:0]
	for _, t := range w.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.times = kept

	if len(w.times) >= w.limit {
		return false
	}
	w.times = append(w.times, now)
	return true
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rate.allow() {
			s.statsMu.Lock()
			s.errors++
			s.statsMu.Unlock()
			writeJSON(w, http.StatusTooManyRequests, errorEnvelope("rate limit exceeded", http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires a valid bearer token for every endpoint except
// the whitelisted ones. It skips entirely when no auth.Service is wired.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if whitelisted[r.URL.Path] || s.authSvc == nil {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			s.statsMu.Lock()
			s.errors++
			s.statsMu.Unlock()
			writeJSON(w, http.StatusUnauthorized, errorEnvelope("authorization required", http.StatusUnauthorized))
			return
		}

		authToken, valid := s.authSvc.ValidateToken(token)
		if !valid {
			s.statsMu.Lock()
			s.errors++
			s.statsMu.Unlock()
			writeJSON(w, http.StatusUnauthorized, errorEnvelope("invalid or expired token", http.StatusUnauthorized))
			return
		}

		r.Header.Set("X-Authenticated-User", authToken.Username)
		next.ServeHTTP(w, r)
	})
}
