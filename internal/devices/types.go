// Package devices implements the gateway's device service: device registration,
// connection tracking, command execution and history, bulk dispatch,
// groups, and a background health monitor.
package devices

import "time"

// ConnectionStatus is a device's current wire-level connection state.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
	StatusConnecting   ConnectionStatus = "CONNECTING"
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusReconnecting ConnectionStatus = "RECONNECTING"
	StatusError        ConnectionStatus = "ERROR"
)

// connectionStatusLevel is ConnectionStatus's ordinal encoding, used wherever
// a client expects connectionStatus as an integer rather than its string name.
var connectionStatusLevel = map[ConnectionStatus]int{
	StatusDisconnected: 0,
	StatusConnecting:   1,
	StatusConnected:    2,
	StatusReconnecting: 3,
	StatusError:        4,
}

// Level returns s's ordinal.
func (s ConnectionStatus) Level() int { return connectionStatusLevel[s] }

// HealthStatus is a device's liveness classification, derived from
// lastSeen age by the health monitor loop.
type HealthStatus string

const (
	HealthUnknown  HealthStatus = "UNKNOWN"
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthWarning  HealthStatus = "WARNING"
	HealthCritical HealthStatus = "CRITICAL"
	HealthOffline  HealthStatus = "OFFLINE"
)

// healthStatusLevel is HealthStatus's ordinal encoding, used wherever a
// client expects healthStatus as an integer rather than its string name.
var healthStatusLevel = map[HealthStatus]int{
	HealthUnknown:  0,
	HealthHealthy:  1,
	HealthWarning:  2,
	HealthCritical: 3,
	HealthOffline:  4,
}

// Level returns s's ordinal.
func (s HealthStatus) Level() int { return healthStatusLevel[s] }

// Info is a registered device's record.
type Info struct {
	DeviceID         string
	DeviceType       string
	DeviceName       string
	Manufacturer     string
	Model            string
	Capabilities     []string
	Properties       map[string]string
	ConnectionStatus ConnectionStatus
	HealthStatus     HealthStatus
	LastSeen         time.Time
	RegisteredAt     time.Time
	ClientID         string
	RemoteAddress    string
}

// Command is a request to act on a device.
type Command struct {
	CommandID  string
	DeviceID   string
	Command    string
	Parameters map[string]interface{}
	ClientID   string
	Timestamp  time.Time
	Timeout    time.Duration
	Priority   int
}

// CommandResult is a completed (or timed-out) command outcome.
type CommandResult struct {
	CommandID     string
	DeviceID      string
	Success       bool
	Result        interface{}
	ErrorMessage  string
	CompletedAt   time.Time
	ExecutionTime time.Duration
}

// Group is a named, ordered, unique collection of device ids.
type Group struct {
	GroupID      string
	GroupName    string
	Description  string
	DeviceIDs    []string
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// DeviceEventCallback observes generic device lifecycle events. Service
// stores it via SetDeviceEventCallback; none of Service's own operations
// invoke it.
type DeviceEventCallback func(deviceID, event, data string)

// ConnectionEventCallback observes connection status transitions.
type ConnectionEventCallback func(deviceID string, status ConnectionStatus)

// CommandEventCallback observes completed commands.
type CommandEventCallback func(result CommandResult)

// HealthEventCallback observes health status transitions.
type HealthEventCallback func(deviceID string, status HealthStatus, details string)

// Executor performs the actual device-specific work behind a command. The
// default executor (used when none is set) succeeds immediately with a nil
// result, which is enough to exercise dispatch/history without a real
// device attached.
type Executor func(deviceID, command string, params map[string]interface{}) (interface{}, error)
