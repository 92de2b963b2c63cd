// Package errormap translates internal ProtocolError values into the wire
// shape and status code each supported protocol expects, and classifies
// errors for recoverability/retry/reconnection policy.
package errormap

import "hydrogen-gateway/internal/message"

// HTTPStatus maps an error code to its HTTP status. The
// mapping is total: every code lands somewhere, with 500 as the default.
func HTTPStatus(code message.ErrorCode) int {
	switch code {
	case message.Success:
		return 200
	case message.InvalidRequest, message.InvalidParams, message.MessageFormatError:
		return 400
	case message.AuthenticationFailed:
		return 401
	case message.AuthorizationFailed:
		return 403
	case message.DeviceNotFound:
		return 404
	case message.UnsupportedOperation:
		return 405
	case message.ConnectionTimeout, message.DeviceTimeout:
		return 408
	case message.DeviceBusy:
		return 409
	case message.ValidationError, message.MissingRequiredField, message.InvalidFieldValue:
		return 422
	case message.QuotaExceeded:
		return 429
	case message.InternalError, message.OperationFailed, message.DeviceError:
		return 500
	case message.DeviceDisconnected, message.ConnectionFailed:
		return 502
	case message.ResourceUnavailable, message.ResourceExhausted:
		return 503
	default:
		return 500
	}
}

// GRPCStatus maps an error code to its gRPC status code.
func GRPCStatus(code message.ErrorCode) int {
	switch code {
	case message.Success:
		return 0
	case message.OperationFailed:
		return 1
	case message.InvalidRequest, message.InvalidParams:
		return 3
	case message.ConnectionTimeout, message.DeviceTimeout:
		return 4
	case message.DeviceNotFound:
		return 5
	case message.DeviceBusy:
		return 6
	case message.AuthorizationFailed:
		return 7
	case message.ResourceExhausted, message.QuotaExceeded:
		return 8
	case message.ValidationError, message.MissingRequiredField:
		return 9
	case message.FieldOutOfRange:
		return 11
	case message.UnsupportedOperation:
		return 12
	case message.InternalError, message.DeviceError:
		return 13
	case message.ResourceUnavailable, message.DeviceDisconnected:
		return 14
	case message.ConnectionLost:
		return 15
	case message.AuthenticationFailed:
		return 16
	default:
		return 2 // UNKNOWN
	}
}

// MQTTReasonCode maps an error code to its MQTT v5 reason code.
func MQTTReasonCode(code message.ErrorCode) byte {
	switch code {
	case message.Success:
		return 0x00
	case message.ProtocolErr, message.MessageFormatError:
		return 0x81
	case message.ProtocolVersionMismatch:
		return 0x84
	case message.AuthenticationFailed:
		return 0x86
	case message.AuthorizationFailed:
		return 0x87
	case message.ResourceUnavailable:
		return 0x88
	case message.DeviceBusy:
		return 0x89
	case message.QuotaExceeded:
		return 0x97
	case message.InvalidParams, message.ValidationError:
		return 0x9C
	case message.UnsupportedOperation:
		return 0x9E
	case message.ConnectionTimeout:
		return 0xA0
	default:
		return 0x80
	}
}

// IsRecoverableError reports whether an error of this code is, by default,
// worth retrying at all (independent of the caller's specific retry
// policy). Defaults to false.
func IsRecoverableError(code message.ErrorCode) bool {
	switch code {
	case message.ConnectionTimeout, message.DeviceTimeout, message.ConnectionLost,
		message.DeviceBusy, message.ResourceUnavailable:
		return true
	case message.AuthenticationFailed, message.AuthorizationFailed,
		message.UnsupportedOperation, message.DeviceNotFound, message.ValidationError,
		message.InvalidParams:
		return false
	default:
		return false
	}
}

// RequiresReconnection reports whether an error of this code implies the
// owning connection must be torn down and re-established.
func RequiresReconnection(code message.ErrorCode) bool {
	switch code {
	case message.ConnectionFailed, message.ConnectionLost, message.DeviceDisconnected, message.ProtocolErr:
		return true
	default:
		return false
	}
}

// ShouldRetry reports whether an error of this code is, by default, worth
// an automatic retry. Defaults to false, deliberately narrower than
// IsRecoverableError: a busy or unavailable device is worth retrying
// automatically, a stale connection is not.
func ShouldRetry(code message.ErrorCode) bool {
	switch code {
	case message.ConnectionTimeout, message.DeviceTimeout, message.DeviceBusy, message.ResourceUnavailable:
		return true
	default:
		return false
	}
}
