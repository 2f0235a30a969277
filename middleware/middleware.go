// Package middleware builds the client's request pipeline.
//
// Each Middleware wraps a HandlerFunc and returns a new one, so the pipeline is an onion:
//
//	Chain(Logging, Retry, RateLimit, Timeout)(transport.RoundTrip)
//	  Logging.before → Retry → [RateLimit → Timeout → RoundTrip] × attempts → Logging.after
//
// Middlewares inside Retry run once per attempt, those outside once per call.
package middleware

import (
	"context"

	"tlq-client/protocol"
)

type HandlerFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one listed is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
