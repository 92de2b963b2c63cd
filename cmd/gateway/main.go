package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"hydrogen-gateway/internal/auth"
	"hydrogen-gateway/internal/config"
	"hydrogen-gateway/internal/devices"
	"hydrogen-gateway/internal/events"
	"hydrogen-gateway/internal/logging"
	"hydrogen-gateway/internal/multiserver"
	"hydrogen-gateway/internal/protocols/grpcsrv"
	"hydrogen-gateway/internal/protocols/httpws"
	"hydrogen-gateway/internal/protocols/mqttsrv"
	"hydrogen-gateway/internal/protocols/zmqsrv"
	"hydrogen-gateway/internal/registry"
)

func main() {
	var (
		configFile  = pflag.String("config", "gateway.yaml", "path to configuration file")
		healthCheck = pflag.Bool("health-check", false, "perform an HTTP health check against a running gateway and exit")
	)
	cfg := config.Default()
	config.BindFlags(pflag.CommandLine, &cfg)
	pflag.Parse()

	if *healthCheck {
		os.Exit(performHealthCheck(cfg.HTTPPort))
	}

	loaded, err := config.Load(*configFile)
	if err != nil {
		panic("gateway: failed to load configuration: " + err.Error())
	}
	cfg = loaded
	config.ApplyFlags(pflag.CommandLine, &cfg)

	logger := logging.MustNew(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting hydrogen gateway",
		zap.String("host", cfg.Host),
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("mqtt_port", cfg.MQTTPort),
		zap.String("zmq_address", cfg.ZMQAddress),
		zap.String("log_level", cfg.LogLevel),
	)
	if len(cfg.Extra) > 0 {
		logger.Debug("forwarding unrecognized configuration keys to services", zap.Any("extra", cfg.Extra))
	}

	reg := registry.New()

	authSvc := auth.New(logger.Named("auth"), auth.Config{
		TokenExpiration:   cfg.TokenExpiration,
		SessionTimeout:    cfg.SessionTimeout,
		MaxFailedAttempts: cfg.MaxFailedAttempts,
		LockoutDuration:   cfg.LockoutDuration,
		RateLimitPerMin:   auth.DefaultConfig().RateLimitPerMin,
	})
	reg.RegisterService(authSvc)

	deviceCfg := devices.DefaultConfig()
	deviceCfg.HealthCheckInterval = cfg.HealthCheckInterval
	deviceSvc := devices.New(logger.Named("devices"), deviceCfg)
	reg.RegisterService(deviceSvc)

	reg.SetGlobalConfiguration(cfg.Extra)

	// Event fan-out is an optional sink: disabled unless the deployment's
	// extra config turns it on, in which case it still degrades to a no-op
	// publisher rather than fail startup when servers are unreachable.
	eventCfg := events.DefaultConfig()
	eventCfg.Enabled = cfg.Extra["events_nats_enabled"] == "true"
	if servers := cfg.Extra["events_nats_servers"]; servers != "" {
		eventCfg.Servers = strings.Split(servers, ",")
	}
	eventPub := events.New(logger.Named("events"), eventCfg)
	if err := eventPub.Connect(); err != nil {
		logger.Warn("event publisher connect failed, continuing without it", zap.Error(err))
	}
	defer eventPub.Disconnect()

	deviceSvc.SetDeviceEventCallback(func(deviceID, event, data string) {
		if err := eventPub.PublishDeviceEvent(deviceID, event, data); err != nil {
			logger.Debug("event publish failed", zap.Error(err))
		}
	})
	deviceSvc.SetHealthEventCallback(func(deviceID string, status devices.HealthStatus, details string) {
		if err := eventPub.PublishHealthEvent(deviceID, string(status), details); err != nil {
			logger.Debug("health event publish failed", zap.Error(err))
		}
	})

	if err := reg.InitializeAll(); err != nil {
		logger.Error("service initialization failed", zap.Error(err))
		os.Exit(1)
	}
	if err := reg.StartAll(); err != nil {
		logger.Error("service startup failed", zap.Error(err))
		os.Exit(1)
	}

	httpCfg := httpws.DefaultConfig()
	httpCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.HTTPPort)
	if cfg.EnableSSL {
		httpCfg.TLSCertFile = cfg.SSLCertPath
		httpCfg.TLSKeyFile = cfg.SSLKeyPath
	}
	httpSrv := httpws.New(logger.Named("http"), httpCfg, deviceSvc, authSvc)

	grpcCfg := grpcsrv.DefaultConfig()
	grpcCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.GRPCPort)
	grpcSrv := grpcsrv.New(logger.Named("grpc"), grpcCfg)

	mqttCfg := mqttsrv.DefaultConfig()
	mqttCfg.Broker = fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.MQTTPort)
	mqttSrv := mqttsrv.New(logger.Named("mqtt"), mqttCfg)

	zmqCfg := zmqsrv.DefaultConfig()
	zmqCfg.Endpoint = cfg.ZMQAddress
	zmqSrv := zmqsrv.New(logger.Named("zmq"), zmqCfg)

	servers := multiserver.New(logger.Named("multiserver"))
	servers.Register("http", httpSrv)
	servers.Register("grpc", grpcSrv)
	servers.Register("mqtt", mqttSrv)
	servers.Register("zmq", zmqSrv)

	if err := servers.StartAll(); err != nil {
		logger.Error("protocol server startup failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, shutting down gracefully")
		cancel()
	}()

	<-ctx.Done()

	if err := servers.StopAll(); err != nil {
		logger.Error("protocol server shutdown reported errors", zap.Error(err))
	}
	if err := reg.ShutdownAll(); err != nil {
		logger.Error("service shutdown reported errors", zap.Error(err))
	}

	logger.Info("gateway shutdown complete")
}

func performHealthCheck(httpPort int) int {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/api/health", httpPort))
	if err != nil {
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return 0
	}
	return 1
}
