// Package client implements the unified device client: a single
// reconnecting, heartbeating client that drives an arbitrary Transport
// (WebSocket by default) and exposes request/response and async messaging
// against the gateway's Message wire contract.
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"hydrogen-gateway/internal/message"
)

// Config mirrors the original unified client's connection settings.
type Config struct {
	Host                 string
	Port                 uint16
	Endpoint             string
	UseTLS               bool
	ConnectTimeout       time.Duration
	MessageTimeout       time.Duration
	HeartbeatInterval    time.Duration
	EnableAutoReconnect  bool
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int // 0 = unlimited

	// MaxBatchTimeout caps ExecuteBatchCommands' messageTimeout*len(commands)
	// scaling, so a large batch can't stall forever waiting on the server.
	MaxBatchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Host:                 "localhost",
		Port:                 8080,
		Endpoint:             "/ws",
		ConnectTimeout:       5 * time.Second,
		MessageTimeout:       5 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		EnableAutoReconnect:  true,
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 0,
		MaxBatchTimeout:      5 * time.Minute,
	}
}

// ConnectionCallback fires whenever the connected state changes.
type ConnectionCallback func(connected bool)

// MessageCallback fires for messages that don't match a known type handler.
type MessageCallback func(msg *message.Message)

// PropertyChangeCallback fires on an inbound PROPERTY_CHANGE message.
type PropertyChangeCallback func(deviceID, property string, value interface{})

// EventCallback fires on an inbound EVENT message.
type EventCallback func(deviceID, eventType string, data interface{})

// ErrorCallback fires on an inbound ERROR message or a connection error.
type ErrorCallback func(errMsg string)

// Statistics is a point-in-time snapshot of the client's counters.
type Statistics struct {
	IsConnected          bool
	ConnectionTime       time.Time
	LastMessageTime      time.Time
	MessagesSent         uint64
	MessagesReceived     uint64
	ReconnectionAttempts uint64
	Errors               uint64
	LastError            string
}

type waiter struct {
	ch chan *message.Message
}

// Client is the unified device client.
type Client struct {
	logger    *zap.Logger
	cfg       Config
	transport Transport

	connected   int32 // atomic bool
	connecting  int32 // atomic bool
	shutdown    int32 // atomic bool
	procActive  int32 // atomic bool
	loopsUp     int32 // atomic bool: heartbeat/reconnect loops started for this session

	respMu   sync.Mutex
	waiters  map[string]waiter
	pending  map[string]*message.Message
	asyncCBs map[string]func(*message.Message, error)

	subMu       sync.Mutex
	propertySub map[string]map[string]bool
	eventSub    map[string]map[string]bool

	deviceCacheMu      sync.Mutex
	deviceCache        []map[string]interface{}
	deviceCacheUpdated time.Time

	statsMu sync.Mutex
	stats   Statistics

	reconnectAttempts int32 // atomic
	lastReconnectAt   time.Time

	cbMu          sync.RWMutex
	connectionCB  ConnectionCallback
	messageCB     MessageCallback
	propertyCB    PropertyChangeCallback
	eventCB       EventCallback
	errorCB       ErrorCallback

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New constructs a Client bound to the given transport. Pass nil for
// transport to get the default WebSocketTransport built from cfg.
func New(logger *zap.Logger, cfg Config, transport Transport) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if transport == nil {
		transport = NewWebSocketTransport(cfg.Host, cfg.Port, cfg.Endpoint, cfg.UseTLS, cfg.ConnectTimeout)
	}
	return &Client{
		logger:      logger,
		cfg:         cfg,
		transport:   transport,
		waiters:     map[string]waiter{},
		pending:     map[string]*message.Message{},
		asyncCBs:    map[string]func(*message.Message, error){},
		propertySub: map[string]map[string]bool{},
		eventSub:    map[string]map[string]bool{},
	}
}

// Connect dials the transport, idempotent when already connected, and
// starts the background receive/heartbeat/reconnect loops. A second
// concurrent call while a connect attempt is already in flight returns
// false without blocking.
func (c *Client) Connect(ctx context.Context) (bool, error) {
	if atomic.LoadInt32(&c.connected) == 1 {
		c.logger.Warn("client: already connected")
		return true, nil
	}
	if !atomic.CompareAndSwapInt32(&c.connecting, 0, 1) {
		c.logger.Warn("client: connection attempt already in progress")
		return false, nil
	}
	defer atomic.StoreInt32(&c.connecting, 0)

	atomic.StoreInt32(&c.shutdown, 0)
	if err := c.transport.Connect(ctx); err != nil {
		c.notifyError(fmt.Sprintf("connection failed: %v", err))
		return false, err
	}

	atomic.StoreInt32(&c.connected, 1)
	atomic.StoreInt32(&c.reconnectAttempts, 0)
	c.statsMu.Lock()
	c.stats.IsConnected = true
	c.stats.ConnectionTime = time.Now().UTC()
	c.statsMu.Unlock()

	c.startMessageProcessing()
	// Heartbeat and reconnection loops run for the life of the session, not
	// per connection: attemptReconnection calls Connect again on every
	// retry, and spawning a fresh pair each time would leak goroutines.
	if atomic.CompareAndSwapInt32(&c.loopsUp, 0, 1) {
		c.stopCh = make(chan struct{})
		if c.cfg.HeartbeatInterval > 0 {
			c.wg.Add(1)
			go c.heartbeatLoop()
		}
		if c.cfg.EnableAutoReconnect {
			c.wg.Add(1)
			go c.reconnectionLoop()
		}
	}

	go c.replaySubscriptions()
	c.notifyConnectionChange(true)
	c.logger.Info("client: connected", zap.String("host", c.cfg.Host), zap.Uint16("port", c.cfg.Port))
	return true, nil
}

// Disconnect tears the client down: stops loops, wakes every pending
// waiter with a timeout error, and closes the transport.
func (c *Client) Disconnect() {
	if atomic.LoadInt32(&c.connected) == 0 {
		return
	}
	atomic.StoreInt32(&c.shutdown, 1)
	atomic.StoreInt32(&c.connected, 0)

	c.stopMessageProcessing()
	if c.stopCh != nil {
		close(c.stopCh)
	}

	c.respMu.Lock()
	for id, w := range c.waiters {
		select {
		case w.ch <- message.New(message.TypeError, "", map[string]interface{}{"error": "Message timeout", "messageId": id}):
		default:
		}
	}
	c.waiters = map[string]waiter{}
	c.pending = map[string]*message.Message{}
	c.respMu.Unlock()

	// Close the transport before waiting on the loops: the message
	// processing loop is typically blocked inside transport.Receive, and
	// only closing the underlying connection unblocks that call.
	if err := c.transport.Disconnect(); err != nil {
		c.logger.Warn("client: error during transport disconnect", zap.Error(err))
	}

	c.wg.Wait()
	atomic.StoreInt32(&c.loopsUp, 0)

	c.statsMu.Lock()
	c.stats.IsConnected = false
	c.statsMu.Unlock()

	c.notifyConnectionChange(false)
	c.logger.Info("client: disconnected")
}

// IsConnected reports the client's connected state.
func (c *Client) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) == 1 && c.transport.IsConnected()
}

// SendMessage transforms msg onto the wire and blocks up to timeout for a
// matching response, keyed by MessageID. A timeout yields an ERROR message
// carrying {"error":"Message timeout","messageId":...} rather than an error
// return, matching the original client's contract.
func (c *Client) SendMessage(msg *message.Message, timeout time.Duration) (*message.Message, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("client: not connected to server")
	}

	w := waiter{ch: make(chan *message.Message, 1)}
	c.respMu.Lock()
	c.waiters[msg.MessageID] = w
	c.respMu.Unlock()

	cleanup := func() {
		c.respMu.Lock()
		delete(c.waiters, msg.MessageID)
		delete(c.pending, msg.MessageID)
		c.respMu.Unlock()
	}

	payload, err := msg.Serialize()
	if err != nil {
		cleanup()
		c.recordError()
		return nil, fmt.Errorf("client: serialize message: %w", err)
	}
	if err := c.transport.Send(payload); err != nil {
		cleanup()
		c.recordError()
		return nil, fmt.Errorf("client: send message: %w", err)
	}
	c.recordSent()

	select {
	case resp := <-w.ch:
		cleanup()
		return resp, nil
	case <-time.After(timeout):
		cleanup()
		return message.New(message.TypeError, msg.Topic, map[string]interface{}{
			"error":     "Message timeout",
			"messageId": msg.MessageID,
		}), nil
	}
}

// SendMessageAsync registers cb under msg.MessageID and returns immediately;
// cb fires from handleIncomingMessage when the matching response arrives,
// or synchronously here on an immediate send failure.
func (c *Client) SendMessageAsync(msg *message.Message, cb func(*message.Message, error)) {
	if !c.IsConnected() {
		if cb != nil {
			cb(nil, fmt.Errorf("client: not connected to server"))
		}
		return
	}

	if cb != nil {
		c.respMu.Lock()
		c.asyncCBs[msg.MessageID] = cb
		c.respMu.Unlock()
	}

	payload, err := msg.Serialize()
	if err != nil {
		if cb != nil {
			cb(nil, fmt.Errorf("client: serialize message: %w", err))
		}
		return
	}
	if err := c.transport.Send(payload); err != nil {
		if cb != nil {
			cb(nil, fmt.Errorf("client: send message: %w", err))
		}
		c.recordError()
		return
	}
	c.recordSent()
}

func (c *Client) recordSent() {
	c.statsMu.Lock()
	c.stats.MessagesSent++
	c.stats.LastMessageTime = time.Now().UTC()
	c.statsMu.Unlock()
}

func (c *Client) recordReceived() {
	c.statsMu.Lock()
	c.stats.MessagesReceived++
	c.stats.LastMessageTime = time.Now().UTC()
	c.statsMu.Unlock()
}

func (c *Client) recordError() {
	c.statsMu.Lock()
	c.stats.Errors++
	c.statsMu.Unlock()
}

// GetStatistics returns a snapshot of the client's counters.
func (c *Client) GetStatistics() Statistics {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// ResetStatistics zeroes every counter but preserves the current connected
// state.
func (c *Client) ResetStatistics() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats = Statistics{
		IsConnected:     c.IsConnected(),
		ConnectionTime:  time.Now().UTC(),
		LastMessageTime: time.Now().UTC(),
	}
}

func (c *Client) notifyConnectionChange(connected bool) {
	c.cbMu.RLock()
	cb := c.connectionCB
	c.cbMu.RUnlock()
	if cb != nil {
		cb(connected)
	}
}

func (c *Client) notifyError(errMsg string) {
	c.cbMu.RLock()
	cb := c.errorCB
	c.cbMu.RUnlock()
	if cb != nil {
		cb(errMsg)
	}
}

func (c *Client) SetConnectionCallback(cb ConnectionCallback)       { c.cbMu.Lock(); c.connectionCB = cb; c.cbMu.Unlock() }
func (c *Client) SetMessageCallback(cb MessageCallback)             { c.cbMu.Lock(); c.messageCB = cb; c.cbMu.Unlock() }
func (c *Client) SetPropertyChangeCallback(cb PropertyChangeCallback) {
	c.cbMu.Lock()
	c.propertyCB = cb
	c.cbMu.Unlock()
}
func (c *Client) SetEventCallback(cb EventCallback) { c.cbMu.Lock(); c.eventCB = cb; c.cbMu.Unlock() }
func (c *Client) SetErrorCallback(cb ErrorCallback) { c.cbMu.Lock(); c.errorCB = cb; c.cbMu.Unlock() }
