package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrogen-gateway/internal/message"
)

// fakeTransport is an in-memory Transport: Send appends to outbox, Receive
// drains an inbox channel fed by the test. Safe for concurrent use.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	connectFn func() error

	outbox [][]byte
	inbox  chan []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan []byte, 16)}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connectFn != nil {
		if err := f.connectFn(); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	f.connected = false
	if !f.closed {
		f.closed = true
		close(f.inbox)
	}
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbox = append(f.outbox, data)
	return nil
}

func (f *fakeTransport) Receive() ([]byte, error) {
	data, ok := <-f.inbox
	if !ok {
		return nil, context.Canceled
	}
	return data, nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) lastSent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.outbox) == 0 {
		return nil
	}
	return f.outbox[len(f.outbox)-1]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 0 // disable background heartbeat noise in tests
	cfg.EnableAutoReconnect = false
	cfg.MessageTimeout = 200 * time.Millisecond
	return cfg
}

func TestConnectIsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	c := New(nil, testConfig(), transport)

	ok, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	c.Disconnect()
}

func TestSendMessageReceivesMatchingResponse(t *testing.T) {
	transport := newFakeTransport()
	c := New(nil, testConfig(), transport)
	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	defer c.Disconnect()

	cmd := message.New(message.TypeCommand, "devices/dev-1/commands", map[string]interface{}{"command": "status"})

	go func() {
		// Wait for the request to hit the wire, then answer it.
		require.Eventually(t, func() bool { return transport.lastSent() != nil }, time.Second, 5*time.Millisecond)
		resp := message.New(message.TypeResponse, cmd.Topic, map[string]interface{}{"ok": true})
		resp.CorrelationID = cmd.MessageID
		payload, err := resp.Serialize()
		require.NoError(t, err)
		transport.inbox <- payload
	}()

	resp, err := c.SendMessage(cmd, time.Second)
	require.NoError(t, err)
	assert.Equal(t, message.TypeResponse, resp.Type)
}

func TestSendMessageTimesOutWithErrorPayload(t *testing.T) {
	transport := newFakeTransport()
	c := New(nil, testConfig(), transport)
	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	defer c.Disconnect()

	cmd := message.New(message.TypeCommand, "devices/dev-1/commands", map[string]interface{}{"command": "status"})
	resp, err := c.SendMessage(cmd, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, message.TypeError, resp.Type)
	payload := resp.Payload.(map[string]interface{})
	assert.Equal(t, "Message timeout", payload["error"])
}

func TestSendMessageAsyncInvokesCallbackOnResponse(t *testing.T) {
	transport := newFakeTransport()
	c := New(nil, testConfig(), transport)
	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	defer c.Disconnect()

	cmd := message.New(message.TypeCommand, "devices/dev-1/commands", nil)

	var got *message.Message
	done := make(chan struct{})
	c.SendMessageAsync(cmd, func(m *message.Message, err error) {
		got = m
		close(done)
	})

	resp := message.New(message.TypeResponse, cmd.Topic, map[string]interface{}{"ok": true})
	resp.CorrelationID = cmd.MessageID
	payload, err := resp.Serialize()
	require.NoError(t, err)
	transport.inbox <- payload

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async callback never fired")
	}
	require.NotNil(t, got)
	assert.Equal(t, message.TypeResponse, got.Type)
}

func TestHandleIncomingMessageDispatchesEventAndPropertyChange(t *testing.T) {
	transport := newFakeTransport()
	c := New(nil, testConfig(), transport)

	var gotEvent [3]interface{}
	c.SetEventCallback(func(deviceID, eventType string, data interface{}) {
		gotEvent[0], gotEvent[1], gotEvent[2] = deviceID, eventType, data
	})
	var gotProp [3]interface{}
	c.SetPropertyChangeCallback(func(deviceID, property string, value interface{}) {
		gotProp[0], gotProp[1], gotProp[2] = deviceID, property, value
	})
	var gotErr string
	c.SetErrorCallback(func(e string) { gotErr = e })

	c.handleIncomingMessage(message.New(message.TypeEvent, "", map[string]interface{}{
		"deviceId": "dev-1", "eventType": "exposure_done", "data": map[string]interface{}{"frames": 1},
	}))
	assert.Equal(t, "dev-1", gotEvent[0])
	assert.Equal(t, "exposure_done", gotEvent[1])

	c.handleIncomingMessage(message.New(message.TypePropertyChange, "", map[string]interface{}{
		"deviceId": "dev-1", "property": "temperature", "value": -10.5,
	}))
	assert.Equal(t, "dev-1", gotProp[0])
	assert.Equal(t, "temperature", gotProp[1])

	c.handleIncomingMessage(message.New(message.TypeError, "", map[string]interface{}{"message": "device offline"}))
	assert.Equal(t, "device offline", gotErr)
}

func TestHandleResponseDropsUnknownCorrelationID(t *testing.T) {
	transport := newFakeTransport()
	c := New(nil, testConfig(), transport)

	resp := message.New(message.TypeResponse, "", map[string]interface{}{"ok": true})
	resp.CorrelationID = "does-not-exist"
	// Should not panic nor block; dropped at debug level.
	c.handleIncomingMessage(resp)
}

func TestDisconnectWakesPendingWaiters(t *testing.T) {
	transport := newFakeTransport()
	c := New(nil, testConfig(), transport)
	_, err := c.Connect(context.Background())
	require.NoError(t, err)

	cmd := message.New(message.TypeCommand, "devices/dev-1/commands", nil)
	done := make(chan *message.Message, 1)
	go func() {
		resp, _ := c.SendMessage(cmd, 5*time.Second)
		done <- resp
	}()

	require.Eventually(t, func() bool { return transport.lastSent() != nil }, time.Second, 5*time.Millisecond)
	c.Disconnect()

	select {
	case resp := <-done:
		require.NotNil(t, resp)
		assert.Equal(t, message.TypeError, resp.Type)
	case <-time.After(time.Second):
		t.Fatal("disconnect did not wake the pending waiter")
	}
}

func TestSubscribeToPropertyRecordsAndSendsCommand(t *testing.T) {
	transport := newFakeTransport()
	c := New(nil, testConfig(), transport)
	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	defer c.Disconnect()

	go func() {
		require.Eventually(t, func() bool { return transport.lastSent() != nil }, time.Second, 5*time.Millisecond)
		sent, perr := message.Parse(transport.lastSent())
		require.NoError(t, perr)
		resp := message.New(message.TypeResponse, sent.Topic, map[string]interface{}{"success": true})
		resp.CorrelationID = sent.MessageID
		payload, serr := resp.Serialize()
		require.NoError(t, serr)
		transport.inbox <- payload
	}()

	ok := c.SubscribeToProperty("dev-1", "temperature")
	assert.True(t, ok)

	c.subMu.Lock()
	_, tracked := c.propertySub["dev-1"]["temperature"]
	c.subMu.Unlock()
	assert.True(t, tracked)
}
