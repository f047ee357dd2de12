package client

import (
	"github.com/goccy/go-json"
	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype of every call ("application/grpc+json").
const codecName = "json"

// rawMessage is passed through the codec untouched so replies can be decoded
// strictly by the caller.
type rawMessage []byte

type jsonCodec struct{}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case rawMessage:
		return m, nil
	case *rawMessage:
		return *m, nil
	}
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(*rawMessage); ok {
		*m = append((*m)[:0], data...)
		return nil
	}
	return json.Unmarshal(data, v)
}
