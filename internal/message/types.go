// Package message defines the protocol-independent Message and error value
// types that every wire protocol in hydrogen-gateway converts to and from.
package message

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type is the discriminator for a Message's purpose.
type Type string

const (
	TypeCommand         Type = "COMMAND"
	TypeResponse        Type = "RESPONSE"
	TypeEvent           Type = "EVENT"
	TypePropertyChange  Type = "PROPERTY_CHANGE"
	TypeError           Type = "ERROR"
	TypeHeartbeat       Type = "HEARTBEAT"
	TypeDiscoveryRequest Type = "DISCOVERY_REQUEST"
)

// QoS is the delivery guarantee requested by the sender.
type QoS int

const (
	QoSAtMostOnce QoS = iota
	QoSAtLeastOnce
	QoSExactlyOnce
)

// Protocol is the wire protocol a Message arrived on or is destined for.
// Stable integer values — do not renumber, they're part of the wire
// contract.
type Protocol int

const (
	ProtocolHTTP Protocol = iota
	ProtocolWebSocket
	ProtocolGRPC
	ProtocolMQTT
	ProtocolZMQ
	ProtocolTCP
	ProtocolUDP
	ProtocolSTDIO
	ProtocolFIFO
)

func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "http"
	case ProtocolWebSocket:
		return "websocket"
	case ProtocolGRPC:
		return "grpc"
	case ProtocolMQTT:
		return "mqtt"
	case ProtocolZMQ:
		return "zmq"
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	case ProtocolSTDIO:
		return "stdio"
	case ProtocolFIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// Message is the protocol-independent unit of communication that flows
// through the gateway. Instances are treated as immutable after
// construction; callers that need to mutate a field should Clone first.
type Message struct {
	MessageID         string            `json:"messageId"`
	Type              Type              `json:"type"`
	SenderID          string            `json:"senderId,omitempty"`
	RecipientID       string            `json:"recipientId,omitempty"`
	Topic             string            `json:"topic,omitempty"`
	Payload           interface{}       `json:"payload,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	QoS               QoS               `json:"qos"`
	SourceProtocol    Protocol          `json:"sourceProtocol"`
	TargetProtocol    Protocol          `json:"targetProtocol"`
	Timestamp         time.Time         `json:"timestamp"`
	CorrelationID     string            `json:"correlationId,omitempty"`
	OriginalMessageID string            `json:"originalMessageId,omitempty"`
}

// New constructs a Message with a fresh MessageID and current timestamp.
func New(t Type, topic string, payload interface{}) *Message {
	return &Message{
		MessageID: uuid.NewString(),
		Type:      t,
		Topic:     topic,
		Payload:   payload,
		Headers:   map[string]string{},
		Timestamp: time.Now().UTC(),
	}
}

// Clone returns a deep copy of m via JSON round-trip, which is sufficient
// given Payload is always a JSON-shaped tree (null/bool/number/string/
// array/object) per the Message contract.
func (m *Message) Clone() (*Message, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	clone := &Message{}
	if err := json.Unmarshal(data, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// Equal compares two messages by MessageID only, per the Message identity
// invariant (messageId unique within a process run).
func (m *Message) Equal(other *Message) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.MessageID == other.MessageID
}

// Serialize renders the canonical JSON form of the Message.
func (m *Message) Serialize() ([]byte, error) {
	return json.Marshal(m)
}

// Parse decodes the canonical JSON form into a Message.
func Parse(data []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate enforces the Message invariants that construction alone cannot:
// ERROR messages must carry either a CorrelationID or an OriginalMessageID.
func (m *Message) Validate() error {
	if m.MessageID == "" {
		return ErrMissingMessageID
	}
	if m.Type == TypeError && m.CorrelationID == "" && m.OriginalMessageID == "" {
		return ErrErrorMessageMissingLink
	}
	return nil
}
