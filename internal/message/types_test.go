package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	m := New(TypeCommand, "device.cam1.expose", map[string]interface{}{"duration": 0.1})
	m.SenderID = "client-1"
	m.CorrelationID = "corr-1"

	data, err := m.Serialize()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)

	assert.True(t, m.Equal(parsed))
	assert.Equal(t, m.Topic, parsed.Topic)
	assert.Equal(t, m.SenderID, parsed.SenderID)
}

func TestMessageValidateErrorRequiresLink(t *testing.T) {
	m := New(TypeError, "", nil)
	assert.ErrorIs(t, m.Validate(), ErrErrorMessageMissingLink)

	m.CorrelationID = "corr-1"
	assert.NoError(t, m.Validate())
}

func TestMessageCloneIsDeep(t *testing.T) {
	m := New(TypeEvent, "t", map[string]interface{}{"a": 1})
	clone, err := m.Clone()
	require.NoError(t, err)
	assert.True(t, m.Equal(clone))

	clone.Topic = "changed"
	assert.NotEqual(t, m.Topic, clone.Topic)
}

func TestErrorCodeName(t *testing.T) {
	assert.Equal(t, "DEVICE_NOT_FOUND", DeviceNotFound.Name())
	code, ok := ParseErrorCode("DEVICE_BUSY")
	assert.True(t, ok)
	assert.Equal(t, DeviceBusy, code)
}

func TestWebSocketErrorFingerprintAndTrigger(t *testing.T) {
	pe := NewProtocolError(ConnectionTimeout, "timed out", "", "client", "connect")
	we := NewWebSocketError(pe, ConnectionContext{ConnectionID: "c1"}, CategoryConnection, SeverityHigh)
	assert.Equal(t, "CONNECTION:HIGH:CONNECTION_TIMEOUT:client", we.Fingerprint())
	assert.True(t, we.ShouldTriggerCircuitBreaker())
}
