package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrogen-gateway/internal/message"
)

func TestToProtocolJSONFamilies(t *testing.T) {
	tr := New()
	m := message.New(message.TypeCommand, "t", map[string]interface{}{"a": 1.0})

	for _, p := range []message.Protocol{message.ProtocolHTTP, message.ProtocolWebSocket, message.ProtocolMQTT, message.ProtocolZMQ} {
		res := tr.ToProtocol(m, p)
		require.True(t, res.Success, "protocol=%v", p)

		parsed, res2 := tr.FromProtocol(res.Payload, p)
		require.True(t, res2.Success)
		assert.True(t, m.Equal(parsed))
	}
}

func TestGRPCRoundTrip(t *testing.T) {
	tr := New()
	m := message.New(message.TypeCommand, "t", map[string]interface{}{"duration": 0.5})
	m.CorrelationID = "corr-1"

	res := tr.ToProtocol(m, message.ProtocolGRPC)
	require.True(t, res.Success)

	parsed, res2 := tr.FromProtocol(res.Payload, message.ProtocolGRPC)
	require.True(t, res2.Success)
	assert.Equal(t, m.MessageID, parsed.MessageID)
	assert.Equal(t, m.CorrelationID, parsed.CorrelationID)
}

func TestUnsupportedProtocolFailsGracefully(t *testing.T) {
	tr := New()
	m := message.New(message.TypeCommand, "t", nil)
	res := tr.ToProtocol(m, message.Protocol(999))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.ErrorMessage)
}

func TestGRPCRejectsNonObjectPayload(t *testing.T) {
	tr := New()
	m := message.New(message.TypeCommand, "t", "not-an-object")
	res := tr.ToProtocol(m, message.ProtocolGRPC)
	assert.False(t, res.Success)
}
