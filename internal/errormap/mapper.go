package errormap

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"hydrogen-gateway/internal/message"
)

// Format identifies the wire format a ProtocolError should be rendered for.
type Format int

const (
	FormatHTTP Format = iota
	FormatGRPC
	FormatMQTT
	FormatZMQ
	FormatAscom
	FormatIndi
)

// Formatter produces the wire-shape of a ProtocolError for one protocol.
type Formatter interface {
	FormatError(err *message.ProtocolError) map[string]interface{}
	ErrorMessage(err *message.ProtocolError) string
	ProtocolErrorCode(code message.ErrorCode) int
	ProtocolName() string
}

// ExceptionHandler converts a caught Go error into a ProtocolError. The key
// Mapper dispatches on is the dynamic type name of err, mirroring the
// source's RTTI-keyed exceptionHandlers_ map.
type ExceptionHandler func(err error) *message.ProtocolError

// Mapper is the pure, stateless-once-constructed ProtocolErrorMapper: a
// registry of per-protocol formatters plus per-Go-type exception handlers.
type Mapper struct {
	mu                sync.RWMutex
	formatters        map[Format]Formatter
	exceptionHandlers map[string]ExceptionHandler
}

// NewMapper builds a Mapper with the default formatter set (HTTP, gRPC,
// MQTT, ZMQ, plus best-effort ASCOM/INDI stubs) and no exception handlers
// registered beyond the generic fallback.
func NewMapper() *Mapper {
	m := &Mapper{
		formatters:        map[Format]Formatter{},
		exceptionHandlers: map[string]ExceptionHandler{},
	}
	m.registerDefaultFormatters()
	return m
}

func (m *Mapper) registerDefaultFormatters() {
	m.RegisterFormatter(FormatHTTP, httpFormatter{})
	m.RegisterFormatter(FormatGRPC, grpcFormatter{})
	m.RegisterFormatter(FormatMQTT, mqttFormatter{})
	m.RegisterFormatter(FormatZMQ, zmqFormatter{})
	m.RegisterFormatter(FormatAscom, ascomFormatter{})
	m.RegisterFormatter(FormatIndi, indiFormatter{})
}

// RegisterFormatter installs (or replaces) the formatter for a wire format.
func (m *Mapper) RegisterFormatter(format Format, f Formatter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.formatters[format] = f
}

// RegisterExceptionHandler installs a handler keyed by the dynamic type
// name of the errors it should convert, e.g. "*net.OpError".
func (m *Mapper) RegisterExceptionHandler(typeName string, h ExceptionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exceptionHandlers[typeName] = h
}

// HasFormatter reports whether a formatter is registered for format.
func (m *Mapper) HasFormatter(format Format) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.formatters[format]
	return ok
}

// SupportedFormats lists every format with a registered formatter.
func (m *Mapper) SupportedFormats() []Format {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Format, 0, len(m.formatters))
	for f := range m.formatters {
		out = append(out, f)
	}
	return out
}

// exceptionTypeName returns the dynamic type name of err, analogous to
// typeid(ex).name() in the source.
func exceptionTypeName(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return "unknown"
	}
	return t.String()
}

// MapException converts an arbitrary error into a ProtocolError, looking up
// a registered handler by err's dynamic type; on miss, produces a generic
// UNKNOWN_ERROR carrying err's message. component/operation/timestamp are
// always stamped, even when a handler supplied its own.
func (m *Mapper) MapException(err error, component, operation string) *message.ProtocolError {
	if err == nil {
		return message.NewProtocolError(message.Success, "", "", component, operation)
	}

	m.mu.RLock()
	handler, ok := m.exceptionHandlers[exceptionTypeName(err)]
	m.mu.RUnlock()

	var pe *message.ProtocolError
	if ok {
		pe = handler(err)
	} else {
		pe = message.NewProtocolError(message.UnknownError, err.Error(), "", component, operation)
	}

	pe.Component = component
	pe.Operation = operation
	pe.Timestamp = time.Now().UTC()
	return pe
}

// CreateError is a convenience constructor matching the source's
// createError(code, message, details).
func (m *Mapper) CreateError(code message.ErrorCode, msg, details string) *message.ProtocolError {
	return message.NewProtocolError(code, msg, details, "", "")
}

// FormatErrorForProtocol produces the wire-shape for error in the target
// format. Unregistered formats return a generic fallback shape rather than
// panicking, keeping the mapper total.
func (m *Mapper) FormatErrorForProtocol(err *message.ProtocolError, format Format) map[string]interface{} {
	m.mu.RLock()
	f, ok := m.formatters[format]
	m.mu.RUnlock()
	if !ok {
		return map[string]interface{}{
			"error":     err.Message,
			"code":      err.Code.Name(),
			"timestamp": err.Timestamp,
		}
	}
	return f.FormatError(err)
}

// CreateErrorMessage builds an ERROR Message from a ProtocolError.
// originalMessageID may be empty if this error is not tied to a specific
// inbound message (a correlationId link is then expected upstream).
func (m *Mapper) CreateErrorMessage(err *message.ProtocolError, originalMessageID string) *message.Message {
	return err.ToMessage(originalMessageID, "")
}

// GetErrorCodeName returns the canonical string name for code.
func GetErrorCodeName(code message.ErrorCode) string { return code.Name() }

// ParseErrorCode resolves a canonical name back to an ErrorCode.
func ParseErrorCode(name string) (message.ErrorCode, bool) { return message.ParseErrorCode(name) }

// --- default formatters ---

type httpFormatter struct{}

func (httpFormatter) ProtocolName() string { return "HTTP/WebSocket" }
func (httpFormatter) ProtocolErrorCode(code message.ErrorCode) int { return HTTPStatus(code) }
func (f httpFormatter) ErrorMessage(err *message.ProtocolError) string { return err.Message }
func (f httpFormatter) FormatError(err *message.ProtocolError) map[string]interface{} {
	return map[string]interface{}{
		"error":     err.Message,
		"status":    f.ProtocolErrorCode(err.Code),
		"timestamp": err.Timestamp.Unix(),
	}
}

type grpcFormatter struct{}

func (grpcFormatter) ProtocolName() string { return "gRPC" }
func (grpcFormatter) ProtocolErrorCode(code message.ErrorCode) int { return GRPCStatus(code) }
func (f grpcFormatter) ErrorMessage(err *message.ProtocolError) string { return err.Message }
func (f grpcFormatter) FormatError(err *message.ProtocolError) map[string]interface{} {
	return map[string]interface{}{
		"code":    f.ProtocolErrorCode(err.Code),
		"message": err.Message,
		"details": err.Details,
	}
}

type mqttFormatter struct{}

func (mqttFormatter) ProtocolName() string { return "MQTT" }
func (mqttFormatter) ProtocolErrorCode(code message.ErrorCode) int { return int(MQTTReasonCode(code)) }
func (f mqttFormatter) ErrorMessage(err *message.ProtocolError) string { return err.Message }
func (f mqttFormatter) FormatError(err *message.ProtocolError) map[string]interface{} {
	return map[string]interface{}{
		"reasonCode": f.ProtocolErrorCode(err.Code),
		"reason":     err.Message,
	}
}

type zmqFormatter struct{}

func (zmqFormatter) ProtocolName() string { return "ZeroMQ" }
func (zmqFormatter) ProtocolErrorCode(code message.ErrorCode) int { return int(code) }
func (f zmqFormatter) ErrorMessage(err *message.ProtocolError) string { return err.Message }
func (f zmqFormatter) FormatError(err *message.ProtocolError) map[string]interface{} {
	return map[string]interface{}{
		"code":    int(err.Code),
		"message": err.Message,
	}
}

// ascomFormatter and indiFormatter are best-effort stubs: real ASCOM/INDI
// wire-format reimplementation is out of scope, but a formatter is
// registered for every MessageFormat enum value so Mapper's formatter set
// stays total.
type ascomFormatter struct{}

func (ascomFormatter) ProtocolName() string { return "ASCOM" }
func (ascomFormatter) ProtocolErrorCode(code message.ErrorCode) int { return int(code) }
func (f ascomFormatter) ErrorMessage(err *message.ProtocolError) string {
	return fmt.Sprintf("ASCOM error 0x%X: %s", int(err.Code), err.Message)
}
func (f ascomFormatter) FormatError(err *message.ProtocolError) map[string]interface{} {
	return map[string]interface{}{
		"ascomErrorCode": int(err.Code),
		"message":        f.ErrorMessage(err),
		"source":         err.Component,
	}
}

type indiFormatter struct{}

func (indiFormatter) ProtocolName() string { return "INDI" }
func (indiFormatter) ProtocolErrorCode(code message.ErrorCode) int { return int(code) }
func (f indiFormatter) ErrorMessage(err *message.ProtocolError) string { return err.Message }
func (f indiFormatter) FormatError(err *message.ProtocolError) map[string]interface{} {
	state := "Alert"
	if err.Code == message.Success {
		state = "Ok"
	}
	return map[string]interface{}{
		"state":   state,
		"message": err.Message,
	}
}
