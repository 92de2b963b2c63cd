package grpcsrv

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// frame carries an opaque, already-serialized Message payload through gRPC
// without a compiled protobuf descriptor. It satisfies proto.Message's
// shape (Reset/String/ProtoMessage) just enough for the grpc-go codec
// machinery to treat it as a message value; the codec below never actually
// marshals it through protobuf reflection.
type frame struct {
	Payload []byte
}

func (f *frame) Reset()         { f.Payload = nil }
func (f *frame) String() string { return string(f.Payload) }
func (f *frame) ProtoMessage()  {}

// rawCodec is a codec-passthrough implementation: Marshal/Unmarshal simply
// copy bytes in and out of a *frame, so the gRPC server never needs a
// generated .pb.go descriptor for the wire message. Registering it under
// the name "proto" (grpc-go's default content-subtype) makes every
// request/response on this server use it, the same technique reverse
// proxies like mwitkow/grpc-proxy use to front arbitrary services.
type rawCodec struct{}

func (rawCodec) Name() string { return "proto" }

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	f, ok := v.(*frame)
	if !ok {
		return nil, fmt.Errorf("grpcsrv: codec cannot marshal %T", v)
	}
	return f.Payload, nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	f, ok := v.(*frame)
	if !ok {
		return fmt.Errorf("grpcsrv: codec cannot unmarshal into %T", v)
	}
	f.Payload = append([]byte(nil), data...)
	return nil
}

func init() {
	encoding.RegisterCodec(rawCodec{})
}
