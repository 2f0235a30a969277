package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"tlq-client/protocol"
	"tlq-client/tlqerr"
)

// RateLimitMiddleware makes every attempt wait for a token from a token bucket refilled
// at r per second. The wait observes ctx.
func RateLimitMiddleware(r float64, burst int) Middleware {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, tlqerr.NewUnknown("rate limit: "+err.Error(), err)
			}
			return next(ctx, req)
		}
	}
}
