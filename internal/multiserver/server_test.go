package multiserver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrogen-gateway/internal/message"
	"hydrogen-gateway/internal/protocols"
)

// fakeProtocolServer is a minimal in-memory ProtocolServer stub for
// exercising the multiserver's aggregation logic without real network I/O.
type fakeProtocolServer struct {
	*protocols.BaseServer
	startErr error
	stopErr  error
}

func newFakeProtocolServer(name string) *fakeProtocolServer {
	return &fakeProtocolServer{BaseServer: protocols.NewBaseServer(message.ProtocolHTTP, name)}
}

func (f *fakeProtocolServer) Start() error {
	if f.startErr != nil {
		f.SetError(f.startErr)
		return f.startErr
	}
	f.SetStatus(protocols.StatusRunning)
	return nil
}

func (f *fakeProtocolServer) Stop() error {
	if f.stopErr != nil {
		f.SetError(f.stopErr)
		return f.stopErr
	}
	f.SetStatus(protocols.StatusStopped)
	return nil
}

func (f *fakeProtocolServer) Restart() error {
	if err := f.Stop(); err != nil {
		return err
	}
	return f.Start()
}

func (f *fakeProtocolServer) DisconnectClient(connectionID string) error {
	f.TrackDisconnect(connectionID)
	return nil
}

func TestStartAllAndStopAllSucceed(t *testing.T) {
	s := New(nil)
	s.Register("http", newFakeProtocolServer("http"))
	s.Register("mqtt", newFakeProtocolServer("mqtt"))

	require.NoError(t, s.StartAll())
	assert.Equal(t, protocols.StatusRunning, s.GetOverallStatus())

	require.NoError(t, s.StopAll())
	assert.Equal(t, protocols.StatusStopped, s.GetOverallStatus())
}

func TestStartAllContinuesAfterFailureAndReportsError(t *testing.T) {
	s := New(nil)
	good := newFakeProtocolServer("http")
	bad := newFakeProtocolServer("grpc")
	bad.startErr = errors.New("bind failed")
	s.Register("http", good)
	s.Register("grpc", bad)

	err := s.StartAll()
	require.Error(t, err)
	// The good server should still have started despite the bad one failing.
	assert.Equal(t, protocols.StatusRunning, good.GetStatus())
	assert.Equal(t, protocols.StatusError, bad.GetStatus())
}

func TestGetOverallStatusPrecedence(t *testing.T) {
	s := New(nil)
	running := newFakeProtocolServer("http")
	running.SetStatus(protocols.StatusRunning)
	errored := newFakeProtocolServer("grpc")
	errored.SetStatus(protocols.StatusError)
	s.Register("http", running)
	s.Register("grpc", errored)

	assert.Equal(t, protocols.StatusError, s.GetOverallStatus())
}

func TestGetOverallStatusEmptyIsStopped(t *testing.T) {
	s := New(nil)
	assert.Equal(t, protocols.StatusStopped, s.GetOverallStatus())
}

func TestGlobalCallbacksInstalledOnRegisterAndRetroactively(t *testing.T) {
	s := New(nil)

	var gotMessages int
	s.SetMessageCallback(func(_ string, _ *message.Message) { gotMessages++ })

	child := newFakeProtocolServer("http")
	s.Register("http", child)

	msg := message.New(message.TypeEvent, "devices/dev-1/events", nil)
	child.DispatchMessage("conn-1", msg)
	assert.Equal(t, 1, gotMessages)
}

func TestGetAllConnectionsAndCount(t *testing.T) {
	s := New(nil)
	httpSrv := newFakeProtocolServer("http")
	mqttSrv := newFakeProtocolServer("mqtt")
	s.Register("http", httpSrv)
	s.Register("mqtt", mqttSrv)

	httpSrv.TrackConnect(protocols.ConnectionInfo{ConnectionID: "ws_1"})
	mqttSrv.TrackConnect(protocols.ConnectionInfo{ConnectionID: "mqtt-bridge"})

	all := s.GetAllConnections()
	assert.Len(t, all["http"], 1)
	assert.Len(t, all["mqtt"], 1)
	assert.Equal(t, 2, s.GetConnectionCount())
}

func TestIsHealthyRequiresAllChildrenRunning(t *testing.T) {
	s := New(nil)
	running := newFakeProtocolServer("http")
	running.SetStatus(protocols.StatusRunning)
	stopped := newFakeProtocolServer("grpc")
	s.Register("http", running)
	s.Register("grpc", stopped)

	assert.False(t, s.IsHealthy())

	stopped.SetStatus(protocols.StatusRunning)
	assert.True(t, s.IsHealthy())
}

func TestDisconnectClientFindsOwningChild(t *testing.T) {
	s := New(nil)
	httpSrv := newFakeProtocolServer("http")
	s.Register("http", httpSrv)
	httpSrv.TrackConnect(protocols.ConnectionInfo{ConnectionID: "ws_1"})

	require.NoError(t, s.DisconnectClient("ws_1"))
	assert.Equal(t, 0, httpSrv.GetConnectionCount())

	assert.Error(t, s.DisconnectClient("unknown"))
}

func TestGetReturnsRegisteredChild(t *testing.T) {
	s := New(nil)
	httpSrv := newFakeProtocolServer("http")
	s.Register("http", httpSrv)

	got, ok := s.Get("http")
	require.True(t, ok)
	assert.Same(t, protocols.ProtocolServer(httpSrv), got)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}
