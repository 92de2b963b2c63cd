package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the wire-level connection a Client drives. The default
// implementation dials the gateway's WebSocket endpoint; tests substitute
// an in-memory fake.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Send(data []byte) error
	Receive() ([]byte, error)
	IsConnected() bool
}

// WebSocketTransport is the default Transport, speaking text-frame JSON to
// the gateway's /ws endpoint.
type WebSocketTransport struct {
	host    string
	port    uint16
	path    string
	useTLS  bool
	timeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	dialer *websocket.Dialer
}

func NewWebSocketTransport(host string, port uint16, path string, useTLS bool, connectTimeout time.Duration) *WebSocketTransport {
	return &WebSocketTransport{
		host:    host,
		port:    port,
		path:    path,
		useTLS:  useTLS,
		timeout: connectTimeout,
		dialer:  &websocket.Dialer{HandshakeTimeout: connectTimeout},
	}
}

func (t *WebSocketTransport) url() string {
	scheme := "ws"
	if t.useTLS {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", t.host, t.port), Path: t.path}
	return u.String()
}

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	conn, _, err := t.dialer.DialContext(ctx, t.url(), nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

func (t *WebSocketTransport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (t *WebSocketTransport) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("websocket transport: not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WebSocketTransport) Receive() ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("websocket transport: not connected")
	}
	_, data, err := conn.ReadMessage()
	return data, err
}

func (t *WebSocketTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}
