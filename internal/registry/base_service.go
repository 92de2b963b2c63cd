package registry

import "sync"

// BaseService provides the bookkeeping every concrete service needs
// (state, config, metrics, health), so implementers only add domain
// behavior on top by embedding this type.
type BaseService struct {
	name        string
	version     string
	description string

	stateMu sync.Mutex
	state   State

	healthMu     sync.Mutex
	healthy      bool
	healthStatus string

	configMu sync.Mutex
	config   map[string]string

	metricsMu sync.Mutex
	metrics   map[string]string

	callback StateChangeCallback
}

// NewBaseService constructs a BaseService. Concrete services should embed
// it and call this from their own constructor.
func NewBaseService(name, version, description string) *BaseService {
	return &BaseService{
		name:         name,
		version:      version,
		description:  description,
		state:        StateUninitialized,
		healthy:      true,
		healthStatus: "not started",
		config:       map[string]string{},
		metrics:      map[string]string{},
	}
}

func (b *BaseService) Name() string        { return b.name }
func (b *BaseService) Version() string     { return b.version }
func (b *BaseService) Description() string { return b.description }

func (b *BaseService) State() State {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

// SetState transitions state, invoking the registered callback if the
// value actually changed.
func (b *BaseService) SetState(newState State) {
	b.stateMu.Lock()
	old := b.state
	b.state = newState
	cb := b.callback
	b.stateMu.Unlock()

	if cb != nil && old != newState {
		cb(b.name, old, newState)
	}
}

func (b *BaseService) SetStateChangeCallback(cb StateChangeCallback) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	b.callback = cb
}

func (b *BaseService) IsHealthy() bool {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	return b.healthy
}

func (b *BaseService) SetHealthy(healthy bool) {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	b.healthy = healthy
}

func (b *BaseService) HealthStatus() string {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	return b.healthStatus
}

func (b *BaseService) SetHealthStatus(status string) {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	b.healthStatus = status
}

func (b *BaseService) UpdateMetric(name, value string) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	b.metrics[name] = value
}

func (b *BaseService) Metrics() map[string]string {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	out := make(map[string]string, len(b.metrics))
	for k, v := range b.metrics {
		out[k] = v
	}
	return out
}

func (b *BaseService) SetConfiguration(cfg map[string]string) {
	b.configMu.Lock()
	defer b.configMu.Unlock()
	b.config = map[string]string{}
	for k, v := range cfg {
		b.config[k] = v
	}
}

func (b *BaseService) Configuration() map[string]string {
	b.configMu.Lock()
	defer b.configMu.Unlock()
	out := make(map[string]string, len(b.config))
	for k, v := range b.config {
		out[k] = v
	}
	return out
}

func (b *BaseService) ConfigValue(key, defaultValue string) string {
	b.configMu.Lock()
	defer b.configMu.Unlock()
	if v, ok := b.config[key]; ok {
		return v
	}
	return defaultValue
}
