package blitrpc

import (
	"bytes"
	"encoding/gob"
)

// gobCodec implements the legacy grpc.Codec interface
// (Marshal/Unmarshal/String) so the control plane can run over the real
// grpc-go transport and streaming machinery without protoc-generated
// protobuf types. See DESIGN.md for why this substitution was made.
type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) String() string { return "blit-gob" }

// Codec is the shared codec instance passed to grpc.NewServer
// (grpc.CustomCodec) and to every client streaming call
// (grpc.CallCustomCodec).
var Codec = gobCodec{}
