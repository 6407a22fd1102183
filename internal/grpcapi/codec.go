package grpcapi

import "encoding/json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec over plain
// JSON instead of protobuf wire format. FluxFaaS's control-plane messages
// (RegisterRequest, InvokeResponse, ...) are plain Go structs with json
// tags rather than protoc-generated types, so the server and client both
// register this codec under the "json" content-subtype instead of relying
// on a .proto toolchain.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

const codecName = "json"
