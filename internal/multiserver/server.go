// Package multiserver implements the multi-protocol server: a thin
// aggregate over one protocols.ProtocolServer per wire protocol, exposing a
// single lifecycle and a single set of callbacks across all of them.
package multiserver

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"hydrogen-gateway/internal/protocols"
)

// Server aggregates the protocol servers and presents them as one unit.
type Server struct {
	logger *zap.Logger

	mu       sync.RWMutex
	children map[string]protocols.ProtocolServer

	cbMu         sync.RWMutex
	messageCB    protocols.MessageCallback
	connectCB    protocols.ConnectCallback
	disconnectCB protocols.DisconnectCallback
}

// New builds an empty MultiProtocolServer; protocol servers are registered
// with Register before Start.
func New(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		logger:   logger,
		children: map[string]protocols.ProtocolServer{},
	}
}

// Register adds a protocol server under name (e.g. "http", "grpc", "mqtt",
// "zmq"). It installs the multiserver's current callbacks on the child so
// that callers registering global callbacks before Register still take
// effect; Register before Start.
func (s *Server) Register(name string, child protocols.ProtocolServer) {
	s.mu.Lock()
	s.children[name] = child
	s.mu.Unlock()

	s.cbMu.RLock()
	messageCB, connectCB, disconnectCB := s.messageCB, s.connectCB, s.disconnectCB
	s.cbMu.RUnlock()
	if messageCB != nil {
		child.SetMessageCallback(messageCB)
	}
	if connectCB != nil {
		child.SetConnectCallback(connectCB)
	}
	if disconnectCB != nil {
		child.SetDisconnectCallback(disconnectCB)
	}
}

func (s *Server) snapshotChildren() map[string]protocols.ProtocolServer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]protocols.ProtocolServer, len(s.children))
	for k, v := range s.children {
		out[k] = v
	}
	return out
}

// StartAll starts every registered server sequentially, recording failures
// but continuing through the rest; it returns an error iff at least one
// server failed to start.
func (s *Server) StartAll() error {
	var failed []string
	for name, child := range s.snapshotChildren() {
		if err := child.Start(); err != nil {
			s.logger.Error("protocol server failed to start", zap.String("protocol", name), zap.Error(err))
			failed = append(failed, name)
			continue
		}
		s.logger.Info("protocol server started", zap.String("protocol", name))
	}
	if len(failed) > 0 {
		return fmt.Errorf("multiserver: failed to start: %v", failed)
	}
	return nil
}

// StopAll mirrors StartAll: stop every server, recording but not stopping on
// failure.
func (s *Server) StopAll() error {
	var failed []string
	for name, child := range s.snapshotChildren() {
		if err := child.Stop(); err != nil {
			s.logger.Error("protocol server failed to stop", zap.String("protocol", name), zap.Error(err))
			failed = append(failed, name)
			continue
		}
		s.logger.Info("protocol server stopped", zap.String("protocol", name))
	}
	if len(failed) > 0 {
		return fmt.Errorf("multiserver: failed to stop: %v", failed)
	}
	return nil
}

// RestartAll stops then starts every registered server.
func (s *Server) RestartAll() error {
	if err := s.StopAll(); err != nil {
		return err
	}
	return s.StartAll()
}

// statusPrecedence ranks Status values for GetOverallStatus: a higher rank
// wins when children disagree.
var statusPrecedence = map[protocols.Status]int{
	protocols.StatusError:    4,
	protocols.StatusStarting: 3,
	protocols.StatusStopping: 2,
	protocols.StatusRunning:  1,
	protocols.StatusStopped:  0,
}

// GetOverallStatus folds every child's status down to one value following
// precedence ERROR > STARTING > STOPPING > RUNNING > STOPPED. An empty
// aggregate reports STOPPED.
func (s *Server) GetOverallStatus() protocols.Status {
	children := s.snapshotChildren()
	if len(children) == 0 {
		return protocols.StatusStopped
	}

	best := protocols.StatusStopped
	bestRank := -1
	for _, child := range children {
		st := child.GetStatus()
		if rank := statusPrecedence[st]; rank > bestRank {
			bestRank = rank
			best = st
		}
	}
	return best
}

// GetAllConnections returns the active connections of every child, keyed
// by the name the child was registered under.
func (s *Server) GetAllConnections() map[string][]protocols.ConnectionInfo {
	children := s.snapshotChildren()
	out := make(map[string][]protocols.ConnectionInfo, len(children))
	for name, child := range children {
		out[name] = child.GetActiveConnections()
	}
	return out
}

// GetConnectionCount sums the connection counts of every child.
func (s *Server) GetConnectionCount() int {
	total := 0
	for _, child := range s.snapshotChildren() {
		total += child.GetConnectionCount()
	}
	return total
}

// IsHealthy reports true iff every registered child is healthy; an empty
// aggregate is considered unhealthy, since nothing is serving.
func (s *Server) IsHealthy() bool {
	children := s.snapshotChildren()
	if len(children) == 0 {
		return false
	}
	for _, child := range children {
		if !child.IsHealthy() {
			return false
		}
	}
	return true
}

// Get returns the registered child for name, if any.
func (s *Server) Get(name string) (protocols.ProtocolServer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	child, ok := s.children[name]
	return child, ok
}

// SetMessageCallback installs cb on every currently-registered child and on
// every child registered afterward.
func (s *Server) SetMessageCallback(cb protocols.MessageCallback) {
	s.cbMu.Lock()
	s.messageCB = cb
	s.cbMu.Unlock()
	for _, child := range s.snapshotChildren() {
		child.SetMessageCallback(cb)
	}
}

// SetConnectCallback installs cb on every currently-registered child and on
// every child registered afterward.
func (s *Server) SetConnectCallback(cb protocols.ConnectCallback) {
	s.cbMu.Lock()
	s.connectCB = cb
	s.cbMu.Unlock()
	for _, child := range s.snapshotChildren() {
		child.SetConnectCallback(cb)
	}
}

// SetDisconnectCallback installs cb on every currently-registered child and
// on every child registered afterward.
func (s *Server) SetDisconnectCallback(cb protocols.DisconnectCallback) {
	s.cbMu.Lock()
	s.disconnectCB = cb
	s.cbMu.Unlock()
	for _, child := range s.snapshotChildren() {
		child.SetDisconnectCallback(cb)
	}
}

// DisconnectClient finds the connection across every child and disconnects
// it on whichever protocol server owns it.
func (s *Server) DisconnectClient(connectionID string) error {
	for _, child := range s.snapshotChildren() {
		for _, c := range child.GetActiveConnections() {
			if c.ConnectionID == connectionID {
				return child.DisconnectClient(connectionID)
			}
		}
	}
	return fmt.Errorf("multiserver: connection %q not found", connectionID)
}
