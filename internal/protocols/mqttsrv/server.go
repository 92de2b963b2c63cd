// Package mqttsrv implements the MQTT ProtocolServer: a bridge client that
// connects out to a broker, subscribes to the gateway's command topic, and
// publishes device events, mirroring the role a native MQTT broker listener
// would play for devices that only speak MQTT.
package mqttsrv

import (
	"crypto/tls"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"hydrogen-gateway/internal/message"
	"hydrogen-gateway/internal/protocols"
	"hydrogen-gateway/internal/transform"
)

// Config holds the MQTT bridge's connection settings.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	CommandTopic   string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	TLSEnabled     bool
	TLSInsecure    bool
}

func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       "hydrogen-gateway",
		QoS:            1,
		CommandTopic:   "hydrogen/+/commands",
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

const bridgeConnectionID = "mqtt-bridge"

// Server is the MQTT protocol server.
type Server struct {
	*protocols.BaseServer

	logger *zap.Logger
	cfg    Config
	xform  *transform.Transformer
	client mqtt.Client

	connected int32 // atomic
}

func New(logger *zap.Logger, cfg Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		BaseServer: protocols.NewBaseServer(message.ProtocolMQTT, "mqtt"),
		logger:     logger,
		cfg:        cfg,
		xform:      transform.New(),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.TLSEnabled {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: cfg.TLSInsecure})
	}
	opts.SetConnectionLostHandler(s.onConnectionLost)
	opts.SetOnConnectHandler(s.onConnect)

	s.client = mqtt.NewClient(opts)
	return s
}

func (s *Server) Start() error {
	s.SetStatus(protocols.StatusStarting)

	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		s.SetError(fmt.Errorf("mqttsrv: connect timeout"))
		return fmt.Errorf("mqttsrv: connect timeout")
	}
	if err := token.Error(); err != nil {
		s.SetError(err)
		return fmt.Errorf("mqttsrv: connect: %w", err)
	}

	subToken := s.client.Subscribe(s.cfg.CommandTopic, s.cfg.QoS, s.onMessage)
	if !subToken.WaitTimeout(s.cfg.ConnectTimeout) {
		s.SetError(fmt.Errorf("mqttsrv: subscribe timeout"))
		return fmt.Errorf("mqttsrv: subscribe timeout")
	}
	if err := subToken.Error(); err != nil {
		s.SetError(err)
		return fmt.Errorf("mqttsrv: subscribe: %w", err)
	}

	s.SetStatus(protocols.StatusRunning)
	s.logger.Info("mqtt bridge started", zap.String("broker", s.cfg.Broker), zap.String("topic", s.cfg.CommandTopic))
	return nil
}

func (s *Server) Stop() error {
	s.SetStatus(protocols.StatusStopping)
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	atomic.StoreInt32(&s.connected, 0)
	s.TrackDisconnect(bridgeConnectionID)
	s.SetStatus(protocols.StatusStopped)
	return nil
}

func (s *Server) Restart() error {
	if err := s.Stop(); err != nil {
		return err
	}
	return s.Start()
}

// Publish sends msg to topic as the transformer's MQTT payload (the
// canonical Message JSON).
func (s *Server) Publish(topic string, msg *message.Message) error {
	res := s.xform.ToProtocol(msg, message.ProtocolMQTT)
	if !res.Success {
		return fmt.Errorf("mqttsrv: transform: %s", res.ErrorMessage)
	}
	token := s.client.Publish(topic, s.cfg.QoS, false, res.Payload)
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return fmt.Errorf("mqttsrv: publish timeout")
	}
	return token.Error()
}

func (s *Server) onConnect(mqtt.Client) {
	atomic.StoreInt32(&s.connected, 1)
	now := time.Now().UTC()
	s.TrackConnect(protocols.ConnectionInfo{ConnectionID: bridgeConnectionID, RemoteAddress: s.cfg.Broker, ConnectedAt: now, LastActivity: now})
	s.logger.Info("mqtt broker connection established")
}

func (s *Server) onConnectionLost(_ mqtt.Client, err error) {
	atomic.StoreInt32(&s.connected, 0)
	s.TrackDisconnect(bridgeConnectionID)
	s.logger.Warn("mqtt broker connection lost", zap.Error(err))
}

func (s *Server) onMessage(_ mqtt.Client, m mqtt.Message) {
	s.TouchActivity(bridgeConnectionID)

	msg, res := s.xform.FromProtocol(m.Payload(), message.ProtocolMQTT)
	if !res.Success {
		s.logger.Debug("dropping malformed mqtt payload", zap.String("topic", m.Topic()), zap.String("reason", res.ErrorMessage))
		return
	}
	s.DispatchMessage(bridgeConnectionID, msg)
}

func (s *Server) IsConfigValid(cfg map[string]string) error {
	if broker, ok := cfg["broker"]; ok && broker == "" {
		return fmt.Errorf("mqttsrv: broker must not be empty")
	}
	return nil
}

// DisconnectClient tears down the single broker connection; MQTT has no
// notion of disconnecting one remote publisher independently of the bridge.
func (s *Server) DisconnectClient(connectionID string) error {
	if connectionID != bridgeConnectionID {
		return fmt.Errorf("mqttsrv: unknown connection %q", connectionID)
	}
	return s.Stop()
}
