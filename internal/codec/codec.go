// Package codec converts typed values to request payloads and response
// payloads back to typed values.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Codec is the payload serialization boundary. Implementations must be pure
// and safe for concurrent use.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	ContentType() string
}

// Raw is an undecoded payload fragment, kept in wire form until the consumer
// knows its target type.
type Raw = json.RawMessage

// JSON is the default codec.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Encode(v any) ([]byte, error) {
	if raw, ok := v.(Raw); ok {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode %T: %w", v, err)
	}
	return b, nil
}

// Decode unmarshals data into v. Numbers landing in interface values are kept
// as json.Number so 64-bit integers survive the round trip.
func (jsonCodec) Decode(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("codec: decode %T: empty payload", v)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("codec: decode %T: %w", v, err)
	}
	if dec.More() {
		return fmt.Errorf("codec: decode %T: trailing data", v)
	}
	return nil
}
