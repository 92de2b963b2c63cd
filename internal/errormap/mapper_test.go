package errormap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"hydrogen-gateway/internal/message"
)

func TestHTTPStatusMappingIsTotal(t *testing.T) {
	cases := map[message.ErrorCode]int{
		message.Success:              200,
		message.InvalidRequest:       400,
		message.AuthenticationFailed: 401,
		message.AuthorizationFailed:  403,
		message.DeviceNotFound:       404,
		message.UnsupportedOperation: 405,
		message.ConnectionTimeout:    408,
		message.DeviceBusy:           409,
		message.ValidationError:      422,
		message.QuotaExceeded:        429,
		message.InternalError:        500,
		message.DeviceDisconnected:   502,
		message.ResourceUnavailable:  503,
		message.ErrorCode(99999):     500,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), "code=%v", code)
	}
}

func TestGRPCAndMQTTMapping(t *testing.T) {
	assert.Equal(t, 5, GRPCStatus(message.DeviceNotFound))
	assert.Equal(t, 16, GRPCStatus(message.AuthenticationFailed))
	assert.Equal(t, 2, GRPCStatus(message.ErrorCode(424242)))

	assert.Equal(t, byte(0x00), MQTTReasonCode(message.Success))
	assert.Equal(t, byte(0x86), MQTTReasonCode(message.AuthenticationFailed))
	assert.Equal(t, byte(0x80), MQTTReasonCode(message.ErrorCode(424242)))
}

func TestClassificationDefaults(t *testing.T) {
	assert.True(t, IsRecoverableError(message.ConnectionTimeout))
	assert.False(t, IsRecoverableError(message.AuthenticationFailed))
	assert.False(t, IsRecoverableError(message.ErrorCode(1)))

	assert.True(t, RequiresReconnection(message.ConnectionLost))
	assert.False(t, RequiresReconnection(message.DeviceBusy))

	assert.True(t, ShouldRetry(message.DeviceBusy))
	assert.False(t, ShouldRetry(message.ValidationError))
}

func TestMapExceptionFallsBackToUnknown(t *testing.T) {
	m := NewMapper()
	pe := m.MapException(errors.New("boom"), "comp", "op")
	assert.Equal(t, message.UnknownError, pe.Code)
	assert.Equal(t, "boom", pe.Message)
	assert.Equal(t, "comp", pe.Component)
	assert.Equal(t, "op", pe.Operation)
}

type customErr struct{ msg string }

func (c *customErr) Error() string { return c.msg }

func TestMapExceptionUsesRegisteredHandler(t *testing.T) {
	m := NewMapper()
	m.RegisterExceptionHandler("*errormap.customErr", func(err error) *message.ProtocolError {
		return message.NewProtocolError(message.DeviceTimeout, err.Error(), "", "", "")
	})
	pe := m.MapException(&customErr{msg: "slow device"}, "dev", "read")
	assert.Equal(t, message.DeviceTimeout, pe.Code)
	assert.Equal(t, "dev", pe.Component)
}

func TestFormatErrorForProtocolIsTotal(t *testing.T) {
	m := NewMapper()
	pe := message.NewProtocolError(message.DeviceBusy, "busy", "", "dev", "cmd")
	for _, f := range []Format{FormatHTTP, FormatGRPC, FormatMQTT, FormatZMQ, FormatAscom, FormatIndi} {
		out := m.FormatErrorForProtocol(pe, f)
		assert.NotEmpty(t, out)
	}
}

func TestCreateErrorMessage(t *testing.T) {
	m := NewMapper()
	pe := m.CreateError(message.DeviceNotFound, "not found", "cam9")
	msg := m.CreateErrorMessage(pe, "orig-1")
	assert.Equal(t, message.TypeError, msg.Type)
	assert.Equal(t, "orig-1", msg.OriginalMessageID)
	assert.NoError(t, msg.Validate())
}
