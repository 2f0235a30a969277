// Package codec turns request payloads into bytes and response bodies back into values.
package codec

import "errors"

// ErrEmptyBody is returned when a response that should carry a value carries nothing.
var ErrEmptyBody = errors.New("codec: empty body")

// Codec is implemented by every body serialization format the client can speak.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	ContentType() string
}

// Default is the codec TLQ servers speak.
func Default() Codec {
	return &JSONCodec{}
}
