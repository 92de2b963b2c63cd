// Package protocols defines the shared ProtocolServer contract implemented
// by every wire-protocol server (HTTP/WebSocket, gRPC, MQTT, ZeroMQ).
package protocols

import (
	"sync"
	"time"

	"hydrogen-gateway/internal/message"
)

// Status is a protocol server's lifecycle state.
type Status string

const (
	StatusStopped  Status = "STOPPED"
	StatusStarting Status = "STARTING"
	StatusRunning  Status = "RUNNING"
	StatusStopping Status = "STOPPING"
	StatusError    Status = "ERROR"
)

// ConnectionInfo describes one active client connection, protocol-agnostic.
type ConnectionInfo struct {
	ConnectionID   string
	RemoteAddress  string
	ConnectedAt    time.Time
	LastActivity   time.Time
	AuthenticatedAs string
}

// MessageCallback is invoked for every inbound Message on any connection.
type MessageCallback func(connectionID string, msg *message.Message)

// ConnectCallback fires when a new client connection is accepted.
type ConnectCallback func(connectionID string, info ConnectionInfo)

// DisconnectCallback fires when a client connection is closed.
type DisconnectCallback func(connectionID string)

// ProtocolServer is the shared interface every per-wire-protocol server
// implements. A MultiProtocolServer holds one of these per protocol.
type ProtocolServer interface {
	Start() error
	Stop() error
	Restart() error

	GetStatus() Status
	GetConfig() map[string]string
	SetConfig(map[string]string) error
	IsConfigValid(map[string]string) error

	GetActiveConnections() []ConnectionInfo
	GetConnectionCount() int
	DisconnectClient(connectionID string) error

	GetProtocol() message.Protocol
	GetProtocolName() string

	IsHealthy() bool
	GetHealthStatus() string

	SetMessageCallback(MessageCallback)
	SetConnectCallback(ConnectCallback)
	SetDisconnectCallback(DisconnectCallback)
}

// BaseServer implements the bookkeeping shared by every ProtocolServer:
// status, config, connection table and callbacks. Protocol-specific
// servers embed it and supply Start/Stop plus their own accept loop.
type BaseServer struct {
	protocol     message.Protocol
	protocolName string

	mu        sync.RWMutex
	status    Status
	config    map[string]string
	lastError string

	connMu sync.RWMutex
	conns  map[string]ConnectionInfo

	cbMu         sync.RWMutex
	messageCB    MessageCallback
	connectCB    ConnectCallback
	disconnectCB DisconnectCallback
}

// NewBaseServer constructs a BaseServer for the given protocol.
func NewBaseServer(protocol message.Protocol, protocolName string) *BaseServer {
	return &BaseServer{
		protocol:     protocol,
		protocolName: protocolName,
		status:       StatusStopped,
		config:       map[string]string{},
		conns:        map[string]ConnectionInfo{},
	}
}

func (b *BaseServer) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// SetStatus updates the status; protocol servers call this from Start/Stop.
func (b *BaseServer) SetStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

func (b *BaseServer) SetError(err error) {
	b.mu.Lock()
	b.status = StatusError
	if err != nil {
		b.lastError = err.Error()
	}
	b.mu.Unlock()
}

func (b *BaseServer) GetConfig() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.config))
	for k, v := range b.config {
		out[k] = v
	}
	return out
}

func (b *BaseServer) SetConfig(cfg map[string]string) error {
	if err := b.IsConfigValid(cfg); err != nil {
		return err
	}
	b.mu.Lock()
	for k, v := range cfg {
		b.config[k] = v
	}
	b.mu.Unlock()
	return nil
}

// IsConfigValid performs no validation. Protocol servers define their own
// IsConfigValid, but SetConfig calls this BaseServer method directly, so a
// server's own check applies only when called through the ProtocolServer
// interface, not inside SetConfig.
func (b *BaseServer) IsConfigValid(map[string]string) error { return nil }

func (b *BaseServer) GetProtocol() message.Protocol { return b.protocol }
func (b *BaseServer) GetProtocolName() string       { return b.protocolName }

func (b *BaseServer) IsHealthy() bool {
	return b.GetStatus() == StatusRunning
}

func (b *BaseServer) GetHealthStatus() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.status == StatusError && b.lastError != "" {
		return b.lastError
	}
	return string(b.status)
}

func (b *BaseServer) GetActiveConnections() []ConnectionInfo {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	out := make([]ConnectionInfo, 0, len(b.conns))
	for _, c := range b.conns {
		out = append(out, c)
	}
	return out
}

func (b *BaseServer) GetConnectionCount() int {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	return len(b.conns)
}

// HasConnection reports whether connectionID is already tracked, letting a
// protocol without an explicit open/close handshake (e.g. a ZMQ ROUTER
// socket) avoid re-firing the connect callback on every inbound message.
func (b *BaseServer) HasConnection(connectionID string) bool {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	_, ok := b.conns[connectionID]
	return ok
}

// TrackConnect records a new connection and fires the connect callback.
func (b *BaseServer) TrackConnect(info ConnectionInfo) {
	b.connMu.Lock()
	b.conns[info.ConnectionID] = info
	b.connMu.Unlock()

	b.cbMu.RLock()
	cb := b.connectCB
	b.cbMu.RUnlock()
	if cb != nil {
		cb(info.ConnectionID, info)
	}
}

// TrackDisconnect removes a connection and fires the disconnect callback.
func (b *BaseServer) TrackDisconnect(connectionID string) {
	b.connMu.Lock()
	_, existed := b.conns[connectionID]
	delete(b.conns, connectionID)
	b.connMu.Unlock()

	if !existed {
		return
	}
	b.cbMu.RLock()
	cb := b.disconnectCB
	b.cbMu.RUnlock()
	if cb != nil {
		cb(connectionID)
	}
}

// TouchActivity updates a connection's lastActivity timestamp.
func (b *BaseServer) TouchActivity(connectionID string) {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	if c, ok := b.conns[connectionID]; ok {
		c.LastActivity = time.Now().UTC()
		b.conns[connectionID] = c
	}
}

// DispatchMessage invokes the message callback, if set.
func (b *BaseServer) DispatchMessage(connectionID string, msg *message.Message) {
	b.cbMu.RLock()
	cb := b.messageCB
	b.cbMu.RUnlock()
	if cb != nil {
		cb(connectionID, msg)
	}
}

func (b *BaseServer) SetMessageCallback(cb MessageCallback) {
	b.cbMu.Lock()
	b.messageCB = cb
	b.cbMu.Unlock()
}

func (b *BaseServer) SetConnectCallback(cb ConnectCallback) {
	b.cbMu.Lock()
	b.connectCB = cb
	b.cbMu.Unlock()
}

func (b *BaseServer) SetDisconnectCallback(cb DisconnectCallback) {
	b.cbMu.Lock()
	b.disconnectCB = cb
	b.cbMu.Unlock()
}
