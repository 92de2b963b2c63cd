package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	*BaseService
	deps       []string
	startErr   error
	stopErr    error
	startCalls int
	stopCalls  int
}

func newStub(name string, deps ...string) *stubService {
	return &stubService{BaseService: NewBaseService(name, "1.0.0", "stub"), deps: deps}
}

func (s *stubService) Dependencies() []string { return s.deps }
func (s *stubService) Initialize() error      { return nil }
func (s *stubService) Start() error {
	s.startCalls++
	return s.startErr
}
func (s *stubService) Stop() error {
	s.stopCalls++
	return s.stopErr
}
func (s *stubService) Shutdown() error { return nil }

func TestStartupOrderRespectsDependencies(t *testing.T) {
	r := New()
	a := newStub("a")
	b := newStub("b", "a")
	c := newStub("c", "a", "b")
	r.RegisterService(a)
	r.RegisterService(b)
	r.RegisterService(c)

	order, err := r.StartupOrder()
	require.NoError(t, err)

	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["b"], pos["c"])
}

func TestResolveDependenciesDetectsCycle(t *testing.T) {
	r := New()
	a := newStub("a", "b")
	b := newStub("b", "a")
	r.RegisterService(a)
	r.RegisterService(b)

	err := r.ResolveDependencies()
	assert.Error(t, err)
}

func TestResolveDependenciesDetectsMissing(t *testing.T) {
	r := New()
	a := newStub("a", "missing")
	r.RegisterService(a)

	err := r.ResolveDependencies()
	assert.Error(t, err)
}

func TestStartAllAbortsOnFailure(t *testing.T) {
	r := New()
	a := newStub("a")
	b := newStub("b", "a")
	b.startErr = errors.New("boom")
	c := newStub("c", "b")
	r.RegisterService(a)
	r.RegisterService(b)
	r.RegisterService(c)

	err := r.StartAll()
	require.Error(t, err)
	assert.Equal(t, 1, a.startCalls)
	assert.Equal(t, 1, b.startCalls)
	assert.Equal(t, 0, c.startCalls)
	assert.Equal(t, StateRunning, a.State())
	assert.Equal(t, StateError, b.State())
	assert.Equal(t, StateUninitialized, c.State())
}

func TestStopAllContinuesOnFailure(t *testing.T) {
	r := New()
	a := newStub("a")
	b := newStub("b", "a")
	r.RegisterService(a)
	r.RegisterService(b)
	require.NoError(t, r.StartAll())

	// b stops first (reverse startup order); its failure must not stop a.
	b.stopErr = errors.New("stop failed")
	err := r.StopAll()
	assert.Error(t, err)
	assert.Equal(t, 1, a.stopCalls)
	assert.Equal(t, 1, b.stopCalls)
}

func TestServiceConfigurationMergesGlobalAndLocal(t *testing.T) {
	r := New()
	a := newStub("a")
	r.RegisterService(a)

	r.SetGlobalConfiguration(map[string]string{"logLevel": "info", "region": "us"})
	require.NoError(t, r.SetServiceConfiguration("a", map[string]string{"region": "eu"}))

	cfg := a.Configuration()
	assert.Equal(t, "info", cfg["logLevel"])
	assert.Equal(t, "eu", cfg["region"])
}

func TestServiceEventCallbackFires(t *testing.T) {
	r := New()
	a := newStub("a")
	r.RegisterService(a)

	var events []string
	r.SetServiceEventCallback(func(name string, oldState, newState State) {
		events = append(events, name+":"+oldState.String()+"->"+newState.String())
	})

	require.NoError(t, r.StartAll())
	assert.Contains(t, events, "a:STARTING->RUNNING")
}

func TestAllServicesHealthy(t *testing.T) {
	r := New()
	a := newStub("a")
	r.RegisterService(a)
	assert.True(t, r.AllServicesHealthy())

	a.SetHealthy(false)
	assert.False(t, r.AllServicesHealthy())
}
