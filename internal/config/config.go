// Package config loads the gateway's YAML configuration file and applies
// command-line overrides, against a flat key set rather than a nested
// gateway/security/protocols tree.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds every recognized key plus a verbatim bucket for anything
// else found in the file, so unknown keys still reach services that care
// about them (e.g. a protocol-specific tuning knob this gateway doesn't
// know the name of).
type Config struct {
	Host                 string
	HTTPPort             int
	GRPCPort             int
	MQTTPort             int
	ZMQAddress           string
	EnableSSL            bool
	SSLCertPath          string
	SSLKeyPath           string
	MaxConnections       int
	LogLevel             string
	DevicePersistenceDir string
	AuthConfigPath       string
	HealthEnableMetrics  bool
	ErrorRecoveryEnabled bool
	TokenExpiration      time.Duration
	SessionTimeout       time.Duration
	MaxFailedAttempts    int
	LockoutDuration      time.Duration
	HealthCheckInterval  time.Duration

	// Extra carries every key in the file this struct doesn't recognize,
	// stringified, for Registry.SetGlobalConfiguration.
	Extra map[string]string
}

// knownKeys lists every key this struct binds, so Load can sort the rest
// into Extra.
var knownKeys = map[string]bool{
	"host": true, "http_port": true, "grpc_port": true, "mqtt_port": true,
	"zmq_address": true, "enable_ssl": true, "ssl_cert_path": true,
	"ssl_key_path": true, "max_connections": true, "log_level": true,
	"device_persistence_dir": true, "auth_config_path": true,
	"health_enable_metrics": true, "error_recovery_enabled": true,
	"token_expiration": true, "session_timeout": true,
	"max_failed_attempts": true, "lockout_duration": true,
	"health_check_interval": true,
}

// Default returns the gateway's built-in defaults, used both as a starting
// point for Load and directly when no config file is present.
func Default() Config {
	return Config{
		Host:                 "0.0.0.0",
		HTTPPort:             8080,
		GRPCPort:             9090,
		MQTTPort:             1883,
		ZMQAddress:           "tcp://0.0.0.0:5555",
		MaxConnections:       1000,
		LogLevel:             "info",
		DevicePersistenceDir: "./data/devices",
		HealthEnableMetrics:  true,
		ErrorRecoveryEnabled: true,
		TokenExpiration:      3600 * time.Second,
		SessionTimeout:       1800 * time.Second,
		MaxFailedAttempts:    5,
		LockoutDuration:      300 * time.Second,
		HealthCheckInterval:  30 * time.Second,
		Extra:                map[string]string{},
	}
}

// Load reads path (a flat YAML map of recognized configuration keys) over
// Default's values. A missing file is not an error — the gateway falls
// back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyRaw(&cfg, raw)
	return cfg, nil
}

func applyRaw(cfg *Config, raw map[string]interface{}) {
	str := func(v interface{}) (string, bool) { s, ok := v.(string); return s, ok }
	num := func(v interface{}) (int, bool) {
		switch n := v.(type) {
		case int:
			return n, true
		case int64:
			return int(n), true
		case float64:
			return int(n), true
		}
		return 0, false
	}
	boolean := func(v interface{}) (bool, bool) { b, ok := v.(bool); return b, ok }
	seconds := func(v interface{}) (time.Duration, bool) {
		n, ok := num(v)
		if !ok {
			return 0, false
		}
		return time.Duration(n) * time.Second, true
	}

	for key, val := range raw {
		switch key {
		case "host":
			if s, ok := str(val); ok {
				cfg.Host = s
			}
		case "http_port":
			if n, ok := num(val); ok {
				cfg.HTTPPort = n
			}
		case "grpc_port":
			if n, ok := num(val); ok {
				cfg.GRPCPort = n
			}
		case "mqtt_port":
			if n, ok := num(val); ok {
				cfg.MQTTPort = n
			}
		case "zmq_address":
			if s, ok := str(val); ok {
				cfg.ZMQAddress = s
			}
		case "enable_ssl":
			if b, ok := boolean(val); ok {
				cfg.EnableSSL = b
			}
		case "ssl_cert_path":
			if s, ok := str(val); ok {
				cfg.SSLCertPath = s
			}
		case "ssl_key_path":
			if s, ok := str(val); ok {
				cfg.SSLKeyPath = s
			}
		case "max_connections":
			if n, ok := num(val); ok {
				cfg.MaxConnections = n
			}
		case "log_level":
			if s, ok := str(val); ok {
				cfg.LogLevel = s
			}
		case "device_persistence_dir":
			if s, ok := str(val); ok {
				cfg.DevicePersistenceDir = s
			}
		case "auth_config_path":
			if s, ok := str(val); ok {
				cfg.AuthConfigPath = s
			}
		case "health_enable_metrics":
			if b, ok := boolean(val); ok {
				cfg.HealthEnableMetrics = b
			}
		case "error_recovery_enabled":
			if b, ok := boolean(val); ok {
				cfg.ErrorRecoveryEnabled = b
			}
		case "token_expiration":
			if d, ok := seconds(val); ok {
				cfg.TokenExpiration = d
			}
		case "session_timeout":
			if d, ok := seconds(val); ok {
				cfg.SessionTimeout = d
			}
		case "max_failed_attempts":
			if n, ok := num(val); ok {
				cfg.MaxFailedAttempts = n
			}
		case "lockout_duration":
			if d, ok := seconds(val); ok {
				cfg.LockoutDuration = d
			}
		case "health_check_interval":
			if d, ok := seconds(val); ok {
				cfg.HealthCheckInterval = d
			}
		default:
			cfg.Extra[key] = fmt.Sprintf("%v", val)
		}
	}
}

// BindFlags registers the subset of Config exposed as command-line flags
// on fs, with fs's current values as defaults. Call ApplyFlags after
// fs.Parse to fold any flags the user actually set back into cfg.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.String("host", cfg.Host, "bind address for all protocol servers")
	fs.Int("http-port", cfg.HTTPPort, "HTTP/WebSocket server port")
	fs.Int("grpc-port", cfg.GRPCPort, "gRPC server port")
	fs.Int("mqtt-port", cfg.MQTTPort, "MQTT broker port")
	fs.String("zmq-address", cfg.ZMQAddress, "ZeroMQ ROUTER bind address")
	fs.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.Int("max-connections", cfg.MaxConnections, "maximum concurrent connections per protocol server")
}

// ApplyFlags overwrites the fields BindFlags registered with whatever the
// user actually passed on the command line; flags left at their default
// value (Changed() == false) never touch cfg.
func ApplyFlags(fs *pflag.FlagSet, cfg *Config) {
	if fs.Changed("host") {
		cfg.Host, _ = fs.GetString("host")
	}
	if fs.Changed("http-port") {
		cfg.HTTPPort, _ = fs.GetInt("http-port")
	}
	if fs.Changed("grpc-port") {
		cfg.GRPCPort, _ = fs.GetInt("grpc-port")
	}
	if fs.Changed("mqtt-port") {
		cfg.MQTTPort, _ = fs.GetInt("mqtt-port")
	}
	if fs.Changed("zmq-address") {
		cfg.ZMQAddress, _ = fs.GetString("zmq-address")
	}
	if fs.Changed("log-level") {
		cfg.LogLevel, _ = fs.GetString("log-level")
	}
	if fs.Changed("max-connections") {
		cfg.MaxConnections, _ = fs.GetInt("max-connections")
	}
}
