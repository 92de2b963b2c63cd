package grpcsrv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"hydrogen-gateway/internal/message"
	"hydrogen-gateway/internal/protocols"
	"hydrogen-gateway/internal/transform"
)

func TestGRPCServerStartStop(t *testing.T) {
	s := New(nil, Config{Addr: "127.0.0.1:0"})
	// Config{Addr: "127.0.0.1:0"} binds an ephemeral port; Start should succeed and
	// report RUNNING.
	require.NoError(t, s.Start())
	assert.Equal(t, protocols.StatusRunning, s.GetStatus())
	require.NoError(t, s.Stop())
	assert.Equal(t, protocols.StatusStopped, s.GetStatus())
}

func TestGRPCStreamRoundTrip(t *testing.T) {
	s := New(nil, Config{Addr: "127.0.0.1:19999"})
	require.NoError(t, s.Start())
	defer s.Stop()

	var received *message.Message
	s.SetMessageCallback(func(_ string, m *message.Message) { received = m })

	time.Sleep(30 * time.Millisecond)

	conn, err := grpc.Dial("127.0.0.1:19999", grpc.WithTransportCredentials(insecure.NewCredentials()), grpc.WithBlock(), grpc.WithTimeout(2*time.Second))
	require.NoError(t, err)
	defer conn.Close()

	stream, err := conn.NewStream(context.Background(), &grpc.StreamDesc{ServerStreams: true, ClientStreams: true}, "/hydrogen.gateway.v1.Gateway/Communicate")
	require.NoError(t, err)

	msg := message.New(message.TypeCommand, "devices/ping", nil)
	req := transform.New().ToProtocol(msg, message.ProtocolGRPC)
	require.True(t, req.Success)

	require.NoError(t, stream.SendMsg(&frame{Payload: req.Payload}))

	out := new(frame)
	require.NoError(t, stream.RecvMsg(out))

	ack, res := transform.New().FromProtocol(out.Payload, message.ProtocolGRPC)
	require.True(t, res.Success)
	assert.Equal(t, msg.MessageID, ack.CorrelationID)

	require.Eventually(t, func() bool { return received != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, msg.MessageID, received.MessageID)
}
