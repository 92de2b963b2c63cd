package devices

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	cfg := DefaultConfig()
	cfg.HealthCheckInterval = 10 * time.Millisecond
	cfg.WarningAge = 30 * time.Millisecond
	cfg.CriticalAge = 80 * time.Millisecond
	cfg.DefaultCommandTimeout = 50 * time.Millisecond
	return New(nil, cfg)
}

func TestRegisterAndConnectDevice(t *testing.T) {
	s := newTestService()
	require.NoError(t, s.RegisterDevice(Info{DeviceID: "dev-1", DeviceType: "camera"}))

	info, ok := s.GetDeviceInfo("dev-1")
	require.True(t, ok)
	assert.Equal(t, StatusDisconnected, info.ConnectionStatus)

	var transitions []ConnectionStatus
	s.SetConnectionEventCallback(func(_ string, status ConnectionStatus) {
		transitions = append(transitions, status)
	})

	require.NoError(t, s.ConnectDevice("dev-1"))
	assert.Contains(t, s.GetConnectedDevices(), "dev-1")
	assert.Equal(t, []ConnectionStatus{StatusConnected}, transitions)
}

func TestRegisterDeviceRejectsEmptyID(t *testing.T) {
	s := newTestService()
	err := s.RegisterDevice(Info{})
	assert.Error(t, err)
}

func TestExecuteCommandUnknownDevice(t *testing.T) {
	s := newTestService()
	commandID, err := s.ExecuteCommand(Command{DeviceID: "missing", Command: "ping"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^cmd_[0-9a-f]{8}$`), commandID)

	time.Sleep(10 * time.Millisecond)
	result, ok := s.GetCommandResult(commandID)
	require.True(t, ok)
	assert.False(t, result.Success)
	assert.Equal(t, "device not found", result.ErrorMessage)
}

func TestExecuteCommandSuccess(t *testing.T) {
	s := newTestService()
	require.NoError(t, s.RegisterDevice(Info{DeviceID: "dev-1"}))
	s.SetExecutor(func(deviceID, command string, params map[string]interface{}) (interface{}, error) {
		return "ok", nil
	})

	var gotResult CommandResult
	s.SetCommandEventCallback(func(r CommandResult) { gotResult = r })

	commandID, err := s.ExecuteCommand(Command{DeviceID: "dev-1", Command: "status"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := s.GetCommandResult(commandID)
		return ok
	}, time.Second, 5*time.Millisecond)

	result, _ := s.GetCommandResult(commandID)
	assert.True(t, result.Success)
	assert.Equal(t, "ok", result.Result)
	assert.Equal(t, commandID, gotResult.CommandID)
}

func TestExecuteCommandTimeout(t *testing.T) {
	s := newTestService()
	require.NoError(t, s.RegisterDevice(Info{DeviceID: "dev-1"}))
	s.SetExecutor(func(string, string, map[string]interface{}) (interface{}, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	})

	commandID, err := s.ExecuteCommand(Command{DeviceID: "dev-1", Command: "slow", Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := s.GetCommandResult(commandID)
		return ok
	}, time.Second, 5*time.Millisecond)

	result, _ := s.GetCommandResult(commandID)
	assert.False(t, result.Success)
	assert.Equal(t, "timeout", result.ErrorMessage)
}

func TestExecuteCommandFailure(t *testing.T) {
	s := newTestService()
	require.NoError(t, s.RegisterDevice(Info{DeviceID: "dev-1"}))
	s.SetExecutor(func(string, string, map[string]interface{}) (interface{}, error) {
		return nil, errors.New("device refused")
	})

	commandID, _ := s.ExecuteCommand(Command{DeviceID: "dev-1", Command: "bad"})
	require.Eventually(t, func() bool {
		r, ok := s.GetCommandResult(commandID)
		return ok && r.CompletedAt != time.Time{}
	}, time.Second, 5*time.Millisecond)

	result, _ := s.GetCommandResult(commandID)
	assert.False(t, result.Success)
	assert.Equal(t, "device refused", result.ErrorMessage)
}

func TestBulkCommandPreservesOrder(t *testing.T) {
	s := newTestService()
	require.NoError(t, s.RegisterDevice(Info{DeviceID: "dev-1"}))
	require.NoError(t, s.RegisterDevice(Info{DeviceID: "dev-2"}))

	ids := s.ExecuteBulkCommand([]string{"dev-1", "dev-2"}, "ping", nil)
	require.Len(t, ids, 2)
	assert.Regexp(t, regexp.MustCompile(`^cmd_[0-9a-f]{8}$`), ids[0])
	assert.Regexp(t, regexp.MustCompile(`^cmd_[0-9a-f]{8}$`), ids[1])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestGroupMembershipAndDeletionCascade(t *testing.T) {
	s := newTestService()
	require.NoError(t, s.RegisterDevice(Info{DeviceID: "dev-1"}))
	require.NoError(t, s.RegisterDevice(Info{DeviceID: "dev-2"}))
	require.NoError(t, s.CreateDeviceGroup(Group{GroupID: "g1", DeviceIDs: []string{"dev-1", "dev-2", "dev-1"}}))

	g, ok := s.GetDeviceGroup("g1")
	require.True(t, ok)
	assert.Equal(t, []string{"dev-1", "dev-2"}, g.DeviceIDs)

	require.NoError(t, s.UnregisterDevice("dev-1"))
	g, _ = s.GetDeviceGroup("g1")
	assert.Equal(t, []string{"dev-2"}, g.DeviceIDs)
}

func TestAddRemoveDeviceFromGroup(t *testing.T) {
	s := newTestService()
	require.NoError(t, s.RegisterDevice(Info{DeviceID: "dev-1"}))
	require.NoError(t, s.CreateDeviceGroup(Group{GroupID: "g1"}))

	require.NoError(t, s.AddDeviceToGroup("g1", "dev-1"))
	assert.Contains(t, s.GetDeviceGroups("dev-1"), "g1")

	require.NoError(t, s.RemoveDeviceFromGroup("g1", "dev-1"))
	assert.NotContains(t, s.GetDeviceGroups("dev-1"), "g1")
}

func TestHealthMonitorTransitions(t *testing.T) {
	s := newTestService()
	require.NoError(t, s.Start())
	defer s.Stop()

	require.NoError(t, s.RegisterDevice(Info{DeviceID: "dev-1"}))
	require.NoError(t, s.ConnectDevice("dev-1"))

	var statuses []HealthStatus
	s.SetHealthEventCallback(func(_ string, status HealthStatus, _ string) {
		statuses = append(statuses, status)
	})

	require.Eventually(t, func() bool {
		info, _ := s.GetDeviceInfo("dev-1")
		return info.HealthStatus == HealthWarning
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		info, _ := s.GetDeviceInfo("dev-1")
		return info.HealthStatus == HealthCritical
	}, time.Second, 5*time.Millisecond)
}

func TestDisconnectedDeviceIsOffline(t *testing.T) {
	s := newTestService()
	require.NoError(t, s.RegisterDevice(Info{DeviceID: "dev-1"}))

	status, err := s.PerformHealthCheck("dev-1")
	require.NoError(t, err)
	assert.Equal(t, HealthOffline, status)
}

func TestCancelCommandIsIdempotent(t *testing.T) {
	s := newTestService()
	assert.False(t, s.CancelCommand("cmd_deadbeef"))
}
