// Package transform converts Message values between the wire encodings of
// the protocols the gateway fronts. It is total: unsupported combinations
// return a failed Result rather than panicking or returning an error,
// rather than panicking or returning an error.
package transform

import (
	"encoding/json"
	"fmt"

	"hydrogen-gateway/internal/message"
)

// Result is the outcome of a transform attempt.
type Result struct {
	Success      bool
	Payload      []byte
	ErrorMessage string
}

func failure(format string, args ...interface{}) Result {
	return Result{Success: false, ErrorMessage: fmt.Sprintf(format, args...)}
}

// Transformer converts Message values to/from each protocol's payload
// shape.
type Transformer struct{}

// New constructs a Transformer.
func New() *Transformer { return &Transformer{} }

// ToProtocol renders m as the payload bytes a connection on target would
// write to the wire.
func (t *Transformer) ToProtocol(m *message.Message, target message.Protocol) Result {
	switch target {
	case message.ProtocolHTTP, message.ProtocolWebSocket, message.ProtocolTCP, message.ProtocolUDP, message.ProtocolSTDIO, message.ProtocolFIFO:
		return t.toJSON(m)
	case message.ProtocolMQTT:
		return t.toMQTT(m)
	case message.ProtocolGRPC:
		return t.toGRPC(m)
	case message.ProtocolZMQ:
		return t.toZMQ(m)
	default:
		return failure("transform: unsupported target protocol %v", target)
	}
}

// FromProtocol parses payload bytes received on source into a Message.
func (t *Transformer) FromProtocol(payload []byte, source message.Protocol) (*message.Message, Result) {
	switch source {
	case message.ProtocolHTTP, message.ProtocolWebSocket, message.ProtocolMQTT, message.ProtocolZMQ,
		message.ProtocolTCP, message.ProtocolUDP, message.ProtocolSTDIO, message.ProtocolFIFO:
		m, err := message.Parse(payload)
		if err != nil {
			return nil, failure("transform: invalid JSON payload from %v: %v", source, err)
		}
		m.SourceProtocol = source
		return m, Result{Success: true, Payload: payload}
	case message.ProtocolGRPC:
		return t.fromGRPC(payload)
	default:
		return nil, failure("transform: unsupported source protocol %v", source)
	}
}

func (t *Transformer) toJSON(m *message.Message) Result {
	data, err := m.Serialize()
	if err != nil {
		return failure("transform: json encode failed: %v", err)
	}
	return Result{Success: true, Payload: data}
}

// toMQTT produces the same canonical JSON body HTTP/WS use; MQTT carries
// routing (topic/QoS/retain) out of band via the broker API, not the
// payload, so topic construction stays separate from payload marshaling.
func (t *Transformer) toMQTT(m *message.Message) Result {
	return t.toJSON(m)
}

// toZMQ mirrors MQTT: ZeroMQ frames carry the same JSON envelope.
func (t *Transformer) toZMQ(m *message.Message) Result {
	return t.toJSON(m)
}

// grpcEnvelope is the JSON shape used as the gRPC wire payload by the
// codec-passthrough service (see internal/protocols/grpcsrv) — see
// DESIGN.md for why no compiled protobuf message type is used.
type grpcEnvelope struct {
	MessageID         string                 `json:"message_id"`
	Type              string                 `json:"type"`
	SenderID          string                 `json:"sender_id,omitempty"`
	RecipientID       string                 `json:"recipient_id,omitempty"`
	Topic             string                 `json:"topic,omitempty"`
	Payload           map[string]interface{} `json:"payload,omitempty"`
	Headers           map[string]string      `json:"headers,omitempty"`
	CorrelationID     string                 `json:"correlation_id,omitempty"`
	OriginalMessageID string                 `json:"original_message_id,omitempty"`
}

func (t *Transformer) toGRPC(m *message.Message) Result {
	payloadMap, ok := m.Payload.(map[string]interface{})
	if m.Payload != nil && !ok {
		return failure("transform: gRPC payload must be an object, got %T", m.Payload)
	}
	env := grpcEnvelope{
		MessageID:         m.MessageID,
		Type:              string(m.Type),
		SenderID:          m.SenderID,
		RecipientID:       m.RecipientID,
		Topic:             m.Topic,
		Payload:           payloadMap,
		Headers:           m.Headers,
		CorrelationID:     m.CorrelationID,
		OriginalMessageID: m.OriginalMessageID,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return failure("transform: gRPC envelope encode failed: %v", err)
	}
	return Result{Success: true, Payload: data}
}

func (t *Transformer) fromGRPC(payload []byte) (*message.Message, Result) {
	var env grpcEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, failure("transform: gRPC envelope decode failed: %v", err)
	}
	m := &message.Message{
		MessageID:         env.MessageID,
		Type:              message.Type(env.Type),
		SenderID:          env.SenderID,
		RecipientID:       env.RecipientID,
		Topic:             env.Topic,
		Headers:           env.Headers,
		CorrelationID:     env.CorrelationID,
		OriginalMessageID: env.OriginalMessageID,
		SourceProtocol:    message.ProtocolGRPC,
	}
	if env.Payload != nil {
		m.Payload = env.Payload
	}
	return m, Result{Success: true, Payload: payload}
}
