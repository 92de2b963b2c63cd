package events

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPublisher publishes device and health events as NATS subjects:
// "hydrogen.events.<deviceId>.<eventType>" and
// "hydrogen.health.<deviceId>.<status>".
type NATSPublisher struct {
	cfg    Config
	logger *zap.Logger

	conn *nats.Conn

	connected      int32 // atomic
	reconnectCount int32 // atomic

	errMu     sync.Mutex
	lastError string

	published uint64 // atomic
	pubErrors uint64 // atomic
}

// New constructs a NATSPublisher. Connect is a no-op returning nil when
// cfg.Enabled is false, so callers can always wire the publisher and let
// configuration decide whether it does anything.
func New(logger *zap.Logger, cfg Config) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{cfg: cfg, logger: logger}
}

func (p *NATSPublisher) Connect() error {
	if !p.cfg.Enabled {
		return nil
	}
	if len(p.cfg.Servers) == 0 {
		return fmt.Errorf("events: NATS enabled but no servers configured")
	}

	opts := []nats.Option{
		nats.Name(p.cfg.ClientID),
		nats.MaxReconnects(p.cfg.MaxReconnects),
		nats.ReconnectWait(p.cfg.ReconnectWait),
		nats.Timeout(p.cfg.ConnectTimeout),
		nats.DrainTimeout(p.cfg.DrainTimeout),
		nats.DisconnectErrHandler(p.onDisconnect),
		nats.ReconnectHandler(p.onReconnect),
		nats.ClosedHandler(p.onClosed),
	}
	if p.cfg.Username != "" {
		opts = append(opts, nats.UserInfo(p.cfg.Username, p.cfg.Password))
	} else if p.cfg.Token != "" {
		opts = append(opts, nats.Token(p.cfg.Token))
	}

	conn, err := nats.Connect(strings.Join(p.cfg.Servers, ","), opts...)
	if err != nil {
		p.setError(err.Error())
		return fmt.Errorf("events: connect to NATS: %w", err)
	}

	p.conn = conn
	atomic.StoreInt32(&p.connected, 1)
	p.logger.Info("events: connected to NATS", zap.Strings("servers", p.cfg.Servers))
	return nil
}

func (p *NATSPublisher) Disconnect() error {
	if !p.IsConnected() {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("events: error draining NATS connection", zap.Error(err))
	}
	p.conn.Close()
	atomic.StoreInt32(&p.connected, 0)
	return nil
}

func (p *NATSPublisher) IsConnected() bool {
	return p.cfg.Enabled && atomic.LoadInt32(&p.connected) == 1 && p.conn != nil && p.conn.IsConnected()
}

// PublishDeviceEvent takes the same parameters as devices.DeviceEventCallback
// but also returns an error, so it is installed with
// devices.Service.SetDeviceEventCallback through a wrapping closure.
func (p *NATSPublisher) PublishDeviceEvent(deviceID, eventType, data string) error {
	if !p.IsConnected() {
		return nil
	}
	subject := subject("hydrogen.events", deviceID, eventType)
	if err := p.conn.Publish(subject, []byte(data)); err != nil {
		atomic.AddUint64(&p.pubErrors, 1)
		return fmt.Errorf("events: publish device event: %w", err)
	}
	atomic.AddUint64(&p.published, 1)
	return nil
}

// PublishHealthEvent takes devices.HealthEventCallback's parameters with
// status as a string and also returns an error, so it is installed with
// SetHealthEventCallback through a wrapping closure.
func (p *NATSPublisher) PublishHealthEvent(deviceID, status, details string) error {
	if !p.IsConnected() {
		return nil
	}
	subject := subject("hydrogen.health", deviceID, status)
	if err := p.conn.Publish(subject, []byte(details)); err != nil {
		atomic.AddUint64(&p.pubErrors, 1)
		return fmt.Errorf("events: publish health event: %w", err)
	}
	atomic.AddUint64(&p.published, 1)
	return nil
}

func (p *NATSPublisher) Metrics() Metrics {
	return Metrics{
		Published:  atomic.LoadUint64(&p.published),
		Errors:     atomic.LoadUint64(&p.pubErrors),
		LastUpdate: time.Now().UTC(),
	}
}

func (p *NATSPublisher) onDisconnect(_ *nats.Conn, err error) {
	atomic.StoreInt32(&p.connected, 0)
	if err != nil {
		p.setError(err.Error())
		p.logger.Warn("events: NATS disconnected", zap.Error(err))
	}
}

func (p *NATSPublisher) onReconnect(_ *nats.Conn) {
	atomic.StoreInt32(&p.connected, 1)
	atomic.AddInt32(&p.reconnectCount, 1)
	p.clearError()
	p.logger.Info("events: NATS reconnected")
}

func (p *NATSPublisher) onClosed(_ *nats.Conn) {
	atomic.StoreInt32(&p.connected, 0)
}

func (p *NATSPublisher) setError(msg string) {
	p.errMu.Lock()
	p.lastError = msg
	p.errMu.Unlock()
}

func (p *NATSPublisher) clearError() {
	p.errMu.Lock()
	p.lastError = ""
	p.errMu.Unlock()
}

// subject joins tokens into a lowercase, dot-delimited NATS subject,
// replacing characters NATS subjects can't contain.
func subject(prefix, deviceID, tail string) string {
	clean := func(s string) string {
		s = strings.ReplaceAll(s, " ", "_")
		s = strings.ReplaceAll(s, "/", "_")
		return strings.ToLower(s)
	}
	return fmt.Sprintf("%s.%s.%s", prefix, clean(deviceID), clean(tail))
}
