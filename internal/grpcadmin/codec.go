// Package grpcadmin exposes the monitoring-control operations over gRPC as
// a secondary admin surface alongside the HTTP admin API. It reuses the
// wire types in pkg/contracts rather than protoc-generated stubs — wrapped
// in a small JSON codec registered with grpc's encoding registry — which
// keeps the g.golang.org/grpc transport (HTTP/2 framing, keepalive,
// connection-state machine) while avoiding a build-time proto toolchain.
package grpcadmin

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec using
// encoding/json instead of protobuf wire format.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
