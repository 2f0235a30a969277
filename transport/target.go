package transport

import "context"

// Target resolves the server address for one attempt.
type Target interface {
	Addr(ctx context.Context) (string, error)
}

// StaticTarget always resolves to the same host:port.
type StaticTarget string

func (t StaticTarget) Addr(context.Context) (string, error) {
	return string(t), nil
}
