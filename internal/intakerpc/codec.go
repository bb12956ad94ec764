// Package intakerpc carries the intake service over gRPC. Messages are plain
// Go structs encoded as JSON through a codec registered under the "json"
// content subtype, and the service descriptor is declared by hand.
package intakerpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype used by every call of the service.
const CodecName = "json"

type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (Codec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(Codec{})
}
