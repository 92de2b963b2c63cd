package message

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMissingMessageID        = errors.New("message: messageId is required")
	ErrErrorMessageMissingLink = errors.New("message: ERROR message must carry correlationId or originalMessageId")
)

// ErrorCode is the fixed internal error taxonomy. Integer
// values are grouped by category in decimal blocks of 1000.
type ErrorCode int

const (
	Success ErrorCode = 0

	UnknownError    ErrorCode = 1000
	InternalError   ErrorCode = 1001
	InvalidRequest  ErrorCode = 1002
	InvalidParams   ErrorCode = 1003
	OperationFailed ErrorCode = 1004

	ConnectionFailed     ErrorCode = 2000
	ConnectionLost       ErrorCode = 2001
	ConnectionTimeout    ErrorCode = 2002
	AuthenticationFailed ErrorCode = 2003
	AuthorizationFailed  ErrorCode = 2004

	ProtocolErr              ErrorCode = 3000
	UnsupportedOperation     ErrorCode = 3001
	MessageFormatError       ErrorCode = 3002
	ProtocolVersionMismatch  ErrorCode = 3003

	DeviceNotFound     ErrorCode = 4000
	DeviceBusy         ErrorCode = 4001
	DeviceError        ErrorCode = 4002
	DeviceDisconnected ErrorCode = 4003
	DeviceTimeout      ErrorCode = 4004

	ResourceUnavailable ErrorCode = 5000
	ResourceExhausted   ErrorCode = 5001
	QuotaExceeded       ErrorCode = 5002

	ValidationError      ErrorCode = 6000
	MissingRequiredField ErrorCode = 6001
	InvalidFieldValue    ErrorCode = 6002
	FieldOutOfRange      ErrorCode = 6003
)

var errorCodeNames = map[ErrorCode]string{
	Success:                 "SUCCESS",
	UnknownError:            "UNKNOWN_ERROR",
	InternalError:           "INTERNAL_ERROR",
	InvalidRequest:          "INVALID_REQUEST",
	InvalidParams:           "INVALID_PARAMETERS",
	OperationFailed:         "OPERATION_FAILED",
	ConnectionFailed:        "CONNECTION_FAILED",
	ConnectionLost:          "CONNECTION_LOST",
	ConnectionTimeout:       "CONNECTION_TIMEOUT",
	AuthenticationFailed:    "AUTHENTICATION_FAILED",
	AuthorizationFailed:     "AUTHORIZATION_FAILED",
	ProtocolErr:             "PROTOCOL_ERROR",
	UnsupportedOperation:    "UNSUPPORTED_OPERATION",
	MessageFormatError:      "MESSAGE_FORMAT_ERROR",
	ProtocolVersionMismatch: "PROTOCOL_VERSION_MISMATCH",
	DeviceNotFound:          "DEVICE_NOT_FOUND",
	DeviceBusy:              "DEVICE_BUSY",
	DeviceError:             "DEVICE_ERROR",
	DeviceDisconnected:      "DEVICE_DISCONNECTED",
	DeviceTimeout:           "DEVICE_TIMEOUT",
	ResourceUnavailable:     "RESOURCE_UNAVAILABLE",
	ResourceExhausted:       "RESOURCE_EXHAUSTED",
	QuotaExceeded:           "QUOTA_EXCEEDED",
	ValidationError:         "VALIDATION_ERROR",
	MissingRequiredField:    "MISSING_REQUIRED_FIELD",
	InvalidFieldValue:       "INVALID_FIELD_VALUE",
	FieldOutOfRange:         "FIELD_OUT_OF_RANGE",
}

// Name returns the canonical enum name for the error code, or "UNKNOWN_ERROR"
// if the code is not recognized.
func (c ErrorCode) Name() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN_ERROR"
}

// ParseErrorCode looks up an ErrorCode by its canonical name.
func ParseErrorCode(name string) (ErrorCode, bool) {
	for code, n := range errorCodeNames {
		if n == name {
			return code, true
		}
	}
	return UnknownError, false
}

// ProtocolError is the internal, protocol-agnostic error value. It is
// immutable after construction; callers needing a modified copy should
// build a new ProtocolError via NewProtocolError.
type ProtocolError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Component string                 `json:"component,omitempty"`
	Operation string                 `json:"operation,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewProtocolError constructs an immutable ProtocolError, stamping the
// current time.
func NewProtocolError(code ErrorCode, msg, details, component, operation string) *ProtocolError {
	return &ProtocolError{
		Code:      code,
		Message:   msg,
		Details:   details,
		Component: component,
		Operation: operation,
		Metadata:  map[string]interface{}{},
		Timestamp: time.Now().UTC(),
	}
}

func (e *ProtocolError) Error() string {
	return e.Message
}

// ToMessage builds an ERROR Message from this ProtocolError. The payload's
// "details" field carries component/operation/details/timestamp/metadata,
// and both the enum-integer string and the human message are stamped, per
// the authoritative payload for clients.
func (e *ProtocolError) ToMessage(originalMessageID, correlationID string) *Message {
	m := New(TypeError, "", map[string]interface{}{
		"code":    strconv.Itoa(int(e.Code)),
		"message": e.Message,
		"details": map[string]interface{}{
			"component": e.Component,
			"operation": e.Operation,
			"details":   e.Details,
			"timestamp": e.Timestamp,
			"metadata":  e.Metadata,
		},
	})
	m.OriginalMessageID = originalMessageID
	m.CorrelationID = correlationID
	return m
}

// Category classifies a connection-scoped error for recovery purposes.
type Category string

const (
	CategoryConnection     Category = "CONNECTION"
	CategoryProtocol       Category = "PROTOCOL"
	CategoryTimeout        Category = "TIMEOUT"
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryMessage        Category = "MESSAGE"
	CategoryResource       Category = "RESOURCE"
	CategoryNetwork        Category = "NETWORK"
	CategoryUnknown        Category = "UNKNOWN"
)

// Severity ranks an error's impact.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// RecoveryAction is the action recommended/taken in response to an error.
type RecoveryAction string

const (
	ActionNone      RecoveryAction = "NONE"
	ActionRetry     RecoveryAction = "RETRY"
	ActionReconnect RecoveryAction = "RECONNECT"
	ActionReset     RecoveryAction = "RESET"
	ActionEscalate  RecoveryAction = "ESCALATE"
	ActionTerminate RecoveryAction = "TERMINATE"
)

// ConnectionContext describes the connection an error occurred on.
type ConnectionContext struct {
	ConnectionID      string    `json:"connectionId"`
	ComponentName     string    `json:"componentName"`
	Endpoint          string    `json:"endpoint"`
	IsClient          bool      `json:"isClient"`
	StartTime         time.Time `json:"startTime"`
	LastActivity      time.Time `json:"lastActivity"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
}

// WebSocketError is an enriched ProtocolError carrying the extra fields a
// connection-scoped error value carrying classification, recovery and
// correlation metadata.
type WebSocketError struct {
	ErrorID             string                 `json:"errorId"`
	ProtocolError        *ProtocolError         `json:"protocolError"`
	Category             Category               `json:"category"`
	Severity              Severity               `json:"severity"`
	RecommendedAction     RecoveryAction         `json:"recommendedAction"`
	ConnectionContext     ConnectionContext      `json:"connectionContext"`
	CorrelationID         string                 `json:"correlationId,omitempty"`
	ErrorChain            []string               `json:"errorChain,omitempty"`
	IsRetryable           bool                   `json:"isRetryable"`
	SuggestedRetryDelay   time.Duration          `json:"suggestedRetryDelay"`
}

// NewWebSocketError wraps a ProtocolError with connection context and a
// fresh ErrorID.
func NewWebSocketError(pe *ProtocolError, ctx ConnectionContext, category Category, severity Severity) *WebSocketError {
	return &WebSocketError{
		ErrorID:           uuid.NewString(),
		ProtocolError:     pe,
		Category:          category,
		Severity:          severity,
		RecommendedAction: ActionNone,
		ConnectionContext: ctx,
		IsRetryable:       isRecoverableCategory(category),
		SuggestedRetryDelay: time.Second,
	}
}

func isRecoverableCategory(c Category) bool {
	switch c {
	case CategoryConnection, CategoryTimeout, CategoryNetwork, CategoryResource:
		return true
	default:
		return false
	}
}

// Fingerprint is the correlation/aggregation key used by the Unified Error
// Handler's top-pattern reporting: "{category}:{severity}:{errorCode}:{component}".
func (e *WebSocketError) Fingerprint() string {
	code := UnknownError
	component := ""
	if e.ProtocolError != nil {
		code = e.ProtocolError.Code
		component = e.ProtocolError.Component
	}
	return string(e.Category) + ":" + e.Severity.String() + ":" + code.Name() + ":" + component
}

// ShouldTriggerCircuitBreaker reports whether this error, by category and
// severity, should count against the owning connection's circuit breaker
// (the circuit-breaker trigger condition).
func (e *WebSocketError) ShouldTriggerCircuitBreaker() bool {
	switch {
	case e.Category == CategoryConnection && e.Severity >= SeverityHigh:
		return true
	case e.Category == CategoryNetwork && e.Severity >= SeverityMedium:
		return true
	case e.Category == CategoryTimeout && e.Severity >= SeverityHigh:
		return true
	default:
		return false
	}
}
