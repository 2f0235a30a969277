package middleware

import (
	"context"
	"errors"
	"time"

	"tlq-client/protocol"
	"tlq-client/tlqerr"
)

// TimeOutMiddleware bounds every attempt by timeout. A non-positive timeout leaves the
// attempt bounded only by the caller's context.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			resp, err := next(ctx, req)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && tlqerr.KindOf(err) != tlqerr.Timeout {
				// next gave up for its own reasons after the deadline passed
				return nil, tlqerr.NewTimeout(timeout, err)
			}
			return resp, err
		}
	}
}
