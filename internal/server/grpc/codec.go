package grpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// CodecName is the content subtype clients select with grpc.CallContentSubtype.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// rawMessage carries undecoded request bytes from the codec to the method
// handler, which decodes strictly and answers InvalidArgument on failure.
type rawMessage []byte

// jsonCodec encodes protobuf messages with protojson and everything else
// with encoding/json. Unknown fields are rejected in both directions.
type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case rawMessage:
		return m, nil
	case proto.Message:
		return protojson.MarshalOptions{UseProtoNames: true}.Marshal(m)
	default:
		return json.Marshal(v)
	}
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *rawMessage:
		*m = append((*m)[:0], data...)
		return nil
	case proto.Message:
		return protojson.UnmarshalOptions{DiscardUnknown: false}.Unmarshal(data, m)
	default:
		return decodeStrict(data, v)
	}
}

// decodeStrict decodes one JSON value into v. Empty input decodes to the
// zero value; unknown fields and trailing data are errors.
func decodeStrict(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}
