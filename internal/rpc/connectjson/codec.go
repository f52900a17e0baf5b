// Package connectjson lets Connect handlers exchange plain Go structs as
// JSON instead of protobuf messages.
package connectjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/bufbuild/connect-go"
)

// Codec encodes stream messages as compact JSON. Decoding rejects unknown
// fields and trailing data so a mismatched client fails loudly.
type Codec struct{}

var _ connect.Codec = Codec{}

// Name is the Connect codec name, selected by the application/connect+json
// content type.
func (Codec) Name() string {
	return "json"
}

func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %T: trailing data", v)
	}
	return nil
}
