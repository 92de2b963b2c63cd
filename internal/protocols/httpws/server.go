// Package httpws implements the HTTP+WebSocket ProtocolServer: gorilla/mux
// routing, an alice middleware chain, and a WebSocket connection table for
// real-time device events.
package httpws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/justinas/alice"
	"go.uber.org/zap"

	"hydrogen-gateway/internal/auth"
	"hydrogen-gateway/internal/devices"
	"hydrogen-gateway/internal/message"
	"hydrogen-gateway/internal/protocols"
)

// whitelisted endpoints skip the authentication middleware.
var whitelisted = map[string]bool{
	"/api/auth/login": true,
	"/api/status":      true,
	"/api/health":      true,
}

// Config holds the HTTP/WebSocket server's operational settings.
type Config struct {
	Addr             string
	RateLimitPerMin  int
	CORSAllowOrigin  string
	ShutdownTimeout  time.Duration
	TLSCertFile      string // set with TLSKeyFile to serve HTTPS/WSS
	TLSKeyFile       string
}

// DefaultConfig returns sane development defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		RateLimitPerMin: 120,
		CORSAllowOrigin: "*",
		ShutdownTimeout: 10 * time.Second,
	}
}

type wsConn struct {
	id            string
	conn          *websocket.Conn
	writeMu       sync.Mutex
	connectedAt   time.Time
	lastActivity  time.Time
}

// Server is the HTTP/WebSocket protocol server.
type Server struct {
	*protocols.BaseServer

	logger  *zap.Logger
	cfg     Config
	devices *devices.Service
	authSvc *auth.Service

	httpSrv *http.Server

	startedAt time.Time
	requests  int64
	errors    int64
	statsMu   sync.Mutex

	rate *rateWindow

	wsMu  sync.Mutex
	wsConns map[string]*wsConn

	upgrader websocket.Upgrader
}

// New constructs the HTTP/WebSocket server. devices and authSvc may be nil
// in tests that only exercise routing/middleware.
func New(logger *zap.Logger, cfg Config, deviceSvc *devices.Service, authSvc *auth.Service) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		BaseServer: protocols.NewBaseServer(message.ProtocolHTTP, "http"),
		logger:     logger,
		cfg:        cfg,
		devices:    deviceSvc,
		authSvc:    authSvc,
		rate:       newRateWindow(cfg.RateLimitPerMin),
		wsConns:    map[string]*wsConn{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	return s
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()

	chain := alice.New(s.corsMiddleware, s.loggingMiddleware, s.rateLimitMiddleware, s.authMiddleware)

	r.Handle("/api/devices", chain.ThenFunc(s.handleListDevices)).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/api/devices/{id}", chain.ThenFunc(s.handleGetDevice)).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/api/auth/login", chain.ThenFunc(s.handleLogin)).Methods(http.MethodPost, http.MethodOptions)
	r.Handle("/api/auth/logout", chain.ThenFunc(s.handleLogout)).Methods(http.MethodPost, http.MethodOptions)
	r.Handle("/api/status", chain.ThenFunc(s.handleStatus)).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/api/health", chain.ThenFunc(s.handleHealthEndpoint)).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/ws", chain.ThenFunc(s.handleWebSocket))

	return r
}

// Start begins serving HTTP in a background goroutine.
func (s *Server) Start() error {
	s.SetStatus(protocols.StatusStarting)
	s.startedAt = time.Now().UTC()

	s.httpSrv = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.router(),
	}

	errCh := make(chan error, 1)
	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		go func() {
			errCh <- s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		}()
	} else {
		go func() {
			errCh <- s.httpSrv.ListenAndServe()
		}()
	}

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			s.SetError(err)
			return err
		}
	case <-time.After(50 * time.Millisecond):
	}

	s.SetStatus(protocols.StatusRunning)
	s.logger.Info("http/websocket server started", zap.String("addr", s.cfg.Addr))
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.SetStatus(protocols.StatusStopping)
	if s.httpSrv == nil {
		s.SetStatus(protocols.StatusStopped)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	err := s.httpSrv.Shutdown(ctx)
	s.SetStatus(protocols.StatusStopped)
	return err
}

// Restart stops then starts the server.
func (s *Server) Restart() error {
	if err := s.Stop(); err != nil {
		return err
	}
	return s.Start()
}

func (s *Server) IsConfigValid(cfg map[string]string) error {
	if addr, ok := cfg["addr"]; ok && addr == "" {
		return fmt.Errorf("httpws: addr must not be empty")
	}
	return nil
}

// DisconnectClient closes a tracked WebSocket connection by id.
func (s *Server) DisconnectClient(connectionID string) error {
	s.wsMu.Lock()
	c, ok := s.wsConns[connectionID]
	s.wsMu.Unlock()
	if !ok {
		return fmt.Errorf("httpws: unknown connection %q", connectionID)
	}
	return c.conn.Close()
}

func newWSConnectionID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "ws_" + hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Server", "Hydrogen-Server/1.0")
	w.Header().Set("X-Powered-By", "Hydrogen")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func successEnvelope(data interface{}) map[string]interface{} {
	env := map[string]interface{}{
		"success":   true,
		"timestamp": time.Now().UTC().Unix(),
	}
	if data != nil {
		env["data"] = data
	}
	return env
}

func errorEnvelope(text string, status int) map[string]interface{} {
	return map[string]interface{}{
		"error":     text,
		"status":    status,
		"timestamp": time.Now().UTC().Unix(),
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}
