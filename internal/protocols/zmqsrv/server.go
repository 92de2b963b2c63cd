// Package zmqsrv implements the ZeroMQ ProtocolServer on a ROUTER socket:
// each connected peer is identified by its ZMQ routing-id frame, and every
// inbound two-frame message (identity, JSON payload) is dispatched through
// the shared message callback.
package zmqsrv

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"hydrogen-gateway/internal/message"
	"hydrogen-gateway/internal/protocols"
)

// Config holds the ZeroMQ server's bind settings.
type Config struct {
	Endpoint string // e.g. "tcp://*:5556"
}

func DefaultConfig() Config { return Config{Endpoint: "tcp://*:5556"} }

// Server is the ZeroMQ protocol server.
type Server struct {
	*protocols.BaseServer

	logger *zap.Logger
	cfg    Config

	mu     sync.Mutex
	sock   zmq4.Socket
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(logger *zap.Logger, cfg Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		BaseServer: protocols.NewBaseServer(message.ProtocolZMQ, "zmq"),
		logger:     logger,
		cfg:        cfg,
	}
}

func (s *Server) Start() error {
	s.SetStatus(protocols.StatusStarting)

	ctx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewRouter(ctx)
	if err := sock.Listen(s.cfg.Endpoint); err != nil {
		cancel()
		s.SetError(err)
		return fmt.Errorf("zmqsrv: listen: %w", err)
	}

	s.mu.Lock()
	s.sock = sock
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.recvLoop(ctx, sock)

	s.SetStatus(protocols.StatusRunning)
	s.logger.Info("zmq server started", zap.String("endpoint", s.cfg.Endpoint))
	return nil
}

func (s *Server) recvLoop(ctx context.Context, sock zmq4.Socket) {
	defer s.wg.Done()
	for {
		msg, err := sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Debug("zmq recv error", zap.Error(err))
			continue
		}
		s.handleFrames(msg.Frames)
	}
}

func (s *Server) handleFrames(frames [][]byte) {
	if len(frames) < 2 {
		return
	}
	connectionID := identityToConnectionID(frames[0])
	now := time.Now().UTC()

	if !s.HasConnection(connectionID) {
		s.TrackConnect(protocols.ConnectionInfo{ConnectionID: connectionID, ConnectedAt: now, LastActivity: now})
	}
	s.TouchActivity(connectionID)

	msg, err := message.Parse(frames[len(frames)-1])
	if err != nil {
		s.logger.Debug("dropping malformed zmq frame", zap.String("connectionId", connectionID), zap.Error(err))
		return
	}
	s.DispatchMessage(connectionID, msg)
}

func identityToConnectionID(identity []byte) string {
	return "zmq_" + hex.EncodeToString(identity)
}

func (s *Server) Stop() error {
	s.SetStatus(protocols.StatusStopping)
	s.mu.Lock()
	cancel := s.cancel
	sock := s.sock
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sock != nil {
		_ = sock.Close()
	}
	s.wg.Wait()
	s.SetStatus(protocols.StatusStopped)
	return nil
}

func (s *Server) Restart() error {
	if err := s.Stop(); err != nil {
		return err
	}
	return s.Start()
}

func (s *Server) IsConfigValid(cfg map[string]string) error {
	if endpoint, ok := cfg["endpoint"]; ok && endpoint == "" {
		return fmt.Errorf("zmqsrv: endpoint must not be empty")
	}
	return nil
}

// DisconnectClient has no effect on a ROUTER socket beyond forgetting the
// peer locally: ZeroMQ has no server-initiated disconnect for an individual
// routing id.
func (s *Server) DisconnectClient(connectionID string) error {
	s.TrackDisconnect(connectionID)
	return nil
}
