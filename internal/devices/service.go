package devices

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"hydrogen-gateway/internal/registry"
)

// Config holds the health monitor's tunables.
type Config struct {
	HealthCheckInterval time.Duration
	WarningAge          time.Duration
	CriticalAge         time.Duration
	DefaultCommandTimeout time.Duration
	MaxBatchTimeout     time.Duration
}

// DefaultConfig returns the service's built-in defaults: 30s health sweeps, HEALTHY under
// 60s, WARNING under 300s, CRITICAL beyond that.
func DefaultConfig() Config {
	return Config{
		HealthCheckInterval:   30 * time.Second,
		WarningAge:            60 * time.Second,
		CriticalAge:           300 * time.Second,
		DefaultCommandTimeout: 30 * time.Second,
		MaxBatchTimeout:       5 * time.Minute,
	}
}

type metrics struct {
	connectedDevices    prometheus.Gauge
	disconnectedDevices prometheus.Gauge
	commandsExecuted    prometheus.Counter
	commandFailures     prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		connectedDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hydrogen_connected_devices",
			Help: "Number of devices currently connected.",
		}),
		disconnectedDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hydrogen_disconnected_devices",
			Help: "Number of registered devices currently disconnected.",
		}),
		commandsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hydrogen_device_commands_executed_total",
			Help: "Total number of device commands dispatched.",
		}),
		commandFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hydrogen_device_command_failures_total",
			Help: "Total number of device commands that failed or timed out.",
		}),
	}
	// Only the first Service in a process registers its collectors with the
	// default registry; a later Service keeps its own, unregistered ones.
	for _, c := range []prometheus.Collector{m.connectedDevices, m.disconnectedDevices, m.commandsExecuted, m.commandFailures} {
		if err := prometheus.Register(c); err != nil {
			if _, dup := err.(prometheus.AlreadyRegisteredError); !dup {
				panic(err)
			}
		}
	}
	return m
}

// Service is the gateway's device service.
type Service struct {
	*registry.BaseService

	logger  *zap.Logger
	cfg     Config
	metrics *metrics

	regMu   sync.Mutex
	devices map[string]*Info
	groups  map[string]*Group

	cmdMu    sync.Mutex
	pending  map[string]*Command
	history  map[string][]CommandResult // deviceId -> results, newest last

	executor Executor

	deviceCB     DeviceEventCallback
	connectionCB ConnectionEventCallback
	commandCB    CommandEventCallback
	healthCB     HealthEventCallback

	stopHealth chan struct{}
	healthWG   sync.WaitGroup
}

// New constructs a Service. Pass a real Executor via SetExecutor before
// Start to dispatch actual device work; otherwise commands succeed
// immediately with a nil result.
func New(logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		BaseService: registry.NewBaseService("devices", "1.0.0", "device registry and command dispatch"),
		logger:      logger,
		cfg:         cfg,
		metrics:     newMetrics(),
		devices:     map[string]*Info{},
		groups:      map[string]*Group{},
		pending:     map[string]*Command{},
		history:     map[string][]CommandResult{},
		executor:    func(string, string, map[string]interface{}) (interface{}, error) { return nil, nil },
	}
}

func (s *Service) Dependencies() []string { return nil }
func (s *Service) Initialize() error      { return nil }

func (s *Service) Start() error {
	s.stopHealth = make(chan struct{})
	s.healthWG.Add(1)
	go s.healthLoop()
	return nil
}

func (s *Service) Stop() error {
	if s.stopHealth != nil {
		close(s.stopHealth)
		s.healthWG.Wait()
	}
	return nil
}

func (s *Service) Shutdown() error { return s.Stop() }

// SetExecutor installs the function that performs a device's actual work.
func (s *Service) SetExecutor(fn Executor) { s.executor = fn }

func (s *Service) SetDeviceEventCallback(cb DeviceEventCallback)         { s.deviceCB = cb }
func (s *Service) SetConnectionEventCallback(cb ConnectionEventCallback) { s.connectionCB = cb }
func (s *Service) SetCommandEventCallback(cb CommandEventCallback)       { s.commandCB = cb }
func (s *Service) SetHealthEventCallback(cb HealthEventCallback)         { s.healthCB = cb }

func newCommandID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return "cmd_" + hex.EncodeToString(buf)
}

// RegisterDevice adds or overwrites a device record. A duplicate
// registration is logged as a warning and overwrites.
func (s *Service) RegisterDevice(info Info) error {
	if info.DeviceID == "" {
		return fmt.Errorf("devices: deviceId is required")
	}

	s.regMu.Lock()
	now := time.Now().UTC()
	if _, exists := s.devices[info.DeviceID]; exists {
		s.logger.Warn("duplicate device registration overwrites existing record", zap.String("deviceId", info.DeviceID))
	}
	info.RegisteredAt = now
	info.LastSeen = now
	if info.ConnectionStatus == "" {
		info.ConnectionStatus = StatusDisconnected
	}
	if info.HealthStatus == "" {
		info.HealthStatus = HealthUnknown
	}
	if info.Properties == nil {
		info.Properties = map[string]string{}
	}
	s.devices[info.DeviceID] = &info
	s.regMu.Unlock()

	s.updateConnectionMetrics()
	return nil
}

// UnregisterDevice removes a device and its group memberships.
func (s *Service) UnregisterDevice(deviceID string) error {
	s.regMu.Lock()
	if _, ok := s.devices[deviceID]; !ok {
		s.regMu.Unlock()
		return fmt.Errorf("devices: unknown device %q", deviceID)
	}
	delete(s.devices, deviceID)
	for _, g := range s.groups {
		g.DeviceIDs = removeString(g.DeviceIDs, deviceID)
	}
	s.regMu.Unlock()

	s.updateConnectionMetrics()
	return nil
}

func (s *Service) GetAllDevices() []Info {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	out := make([]Info, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, *d)
	}
	return out
}

func (s *Service) GetDeviceInfo(deviceID string) (Info, bool) {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return Info{}, false
	}
	return *d, true
}

func (s *Service) IsDeviceRegistered(deviceID string) bool {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	_, ok := s.devices[deviceID]
	return ok
}

// ConnectDevice marks a device CONNECTED and refreshes lastSeen.
func (s *Service) ConnectDevice(deviceID string) error {
	return s.setConnectionStatus(deviceID, StatusConnected, true)
}

// DisconnectDevice marks a device DISCONNECTED.
func (s *Service) DisconnectDevice(deviceID string) error {
	return s.setConnectionStatus(deviceID, StatusDisconnected, false)
}

func (s *Service) setConnectionStatus(deviceID string, status ConnectionStatus, touchLastSeen bool) error {
	s.regMu.Lock()
	d, ok := s.devices[deviceID]
	if !ok {
		s.regMu.Unlock()
		return fmt.Errorf("devices: unknown device %q", deviceID)
	}
	d.ConnectionStatus = status
	if touchLastSeen {
		d.LastSeen = time.Now().UTC()
	}
	s.regMu.Unlock()

	s.updateConnectionMetrics()
	if s.connectionCB != nil {
		s.connectionCB(deviceID, status)
	}
	return nil
}

func (s *Service) updateConnectionMetrics() {
	s.regMu.Lock()
	var connected, disconnected int
	for _, d := range s.devices {
		if d.ConnectionStatus == StatusConnected {
			connected++
		} else {
			disconnected++
		}
	}
	s.regMu.Unlock()
	s.metrics.connectedDevices.Set(float64(connected))
	s.metrics.disconnectedDevices.Set(float64(disconnected))
}

func (s *Service) GetConnectedDevices() []string {
	return s.deviceIDsWithStatus(StatusConnected)
}

func (s *Service) GetDisconnectedDevices() []string {
	return s.deviceIDsWithStatus(StatusDisconnected)
}

func (s *Service) deviceIDsWithStatus(status ConnectionStatus) []string {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	var out []string
	for id, d := range s.devices {
		if d.ConnectionStatus == status {
			out = append(out, id)
		}
	}
	return out
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
