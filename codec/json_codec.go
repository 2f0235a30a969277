package codec

import (
	"encoding/json"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode rejects trailing data after the first value.
func (c *JSONCodec) Decode(data []byte, v any) error {
	if len(data) == 0 {
		return ErrEmptyBody
	}
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) ContentType() string {
	return "application/json"
}
