package devices

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// healthLoop runs every HealthCheckInterval, reclassifying each device's
// HealthStatus from the age thresholds below, firing healthCB on
// change.
func (s *Service) healthLoop() {
	defer s.healthWG.Done()

	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopHealth:
			return
		case <-ticker.C:
			s.runHealthCheck()
		}
	}
}

func (s *Service) runHealthCheck() {
	now := time.Now().UTC()

	type transition struct {
		deviceID string
		status   HealthStatus
	}
	var transitions []transition

	s.regMu.Lock()
	for id, d := range s.devices {
		next := s.classifyHealth(d, now)
		if next != d.HealthStatus {
			d.HealthStatus = next
			transitions = append(transitions, transition{deviceID: id, status: next})
		}
	}
	s.regMu.Unlock()

	for _, t := range transitions {
		s.logger.Info("device health changed", zap.String("deviceId", t.deviceID), zap.String("status", string(t.status)))
		if s.healthCB != nil {
			s.healthCB(t.deviceID, t.status, "")
		}
	}
}

func (s *Service) classifyHealth(d *Info, now time.Time) HealthStatus {
	if d.ConnectionStatus != StatusConnected {
		return HealthOffline
	}
	age := now.Sub(d.LastSeen)
	switch {
	case age < s.cfg.WarningAge:
		return HealthHealthy
	case age < s.cfg.CriticalAge:
		return HealthWarning
	default:
		return HealthCritical
	}
}

// PerformHealthCheck runs one classification pass for a single device
// immediately, returning its resulting status.
func (s *Service) PerformHealthCheck(deviceID string) (HealthStatus, error) {
	s.regMu.Lock()
	d, ok := s.devices[deviceID]
	if !ok {
		s.regMu.Unlock()
		return "", fmt.Errorf("devices: unknown device %q", deviceID)
	}
	status := s.classifyHealth(d, time.Now().UTC())
	changed := status != d.HealthStatus
	d.HealthStatus = status
	s.regMu.Unlock()

	if changed && s.healthCB != nil {
		s.healthCB(deviceID, status, "")
	}
	return status, nil
}

func (s *Service) GetUnhealthyDevices() []string {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	var out []string
	for id, d := range s.devices {
		if d.HealthStatus == HealthWarning || d.HealthStatus == HealthCritical || d.HealthStatus == HealthOffline {
			out = append(out, id)
		}
	}
	return out
}
