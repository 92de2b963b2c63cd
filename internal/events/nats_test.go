package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledPublisherConnectIsNoop(t *testing.T) {
	p := New(nil, Config{Enabled: false})
	require.NoError(t, p.Connect())
	assert.False(t, p.IsConnected())
}

func TestDisabledPublisherPublishIsNoop(t *testing.T) {
	p := New(nil, Config{Enabled: false})
	require.NoError(t, p.Connect())
	assert.NoError(t, p.PublishDeviceEvent("dev-1", "exposure_done", `{"frames":1}`))
	assert.NoError(t, p.PublishHealthEvent("dev-1", "HEALTHY", "ok"))
	assert.Equal(t, uint64(0), p.Metrics().Published)
}

func TestEnabledWithoutServersFailsConnect(t *testing.T) {
	p := New(nil, Config{Enabled: true})
	err := p.Connect()
	assert.Error(t, err)
}

func TestSubjectSanitizesDeviceID(t *testing.T) {
	assert.Equal(t, "hydrogen.events.dev_1.exposure_done", subject("hydrogen.events", "dev 1", "exposure_done"))
	assert.Equal(t, "hydrogen.health.dev_1.healthy", subject("hydrogen.health", "dev/1", "HEALTHY"))
}
