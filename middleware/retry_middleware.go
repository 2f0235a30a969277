package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/Rican7/retry/backoff"

	"tlq-client/log"
	"tlq-client/protocol"
	"tlq-client/tlqerr"
)

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-clock Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryMiddleware runs next up to maxRetries+1 times. After failed attempt k (from 0) it
// sleeps baseDelay * 2^k before the next one. Errors that are not retryable end the loop
// at once, as does exhausting the retries; either way the last error is returned as is.
// The delay is not capped. A ctx deadline that expires during the backoff ends the call with
// a Timeout; only cancellation ends it with Unknown.
func RetryMiddleware(maxRetries uint32, baseDelay time.Duration, sleep Sleeper) Middleware {
	if sleep == nil {
		sleep = Sleep
	}
	delay := backoff.BinaryExponential(baseDelay)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			start := time.Now()
			for attempt := uint32(0); ; attempt++ {
				resp, err := next(ctx, req)
				if err == nil {
					return resp, nil
				}
				if !tlqerr.IsRetryable(err) {
					return nil, err
				}
				if attempt >= maxRetries {
					log.WithContext(ctx).WithError(err).Warnf("giving up after %d attempts", attempt+1)
					return nil, err
				}

				d := delay(uint(attempt))
				log.WithContext(ctx).WithError(err).Infof("retry attempt %d in %s", attempt+1, d)
				if serr := sleep(ctx, d); serr != nil {
					if !errors.Is(serr, context.DeadlineExceeded) {
						return nil, tlqerr.NewUnknown("retry aborted: "+err.Error(), serr)
					}
					if tlqerr.KindOf(err) == tlqerr.Timeout {
						return nil, err
					}
					return nil, tlqerr.NewTimeout(time.Since(start).Round(time.Millisecond), serr)
				}
			}
		}
	}
}
