package middleware

import (
	"context"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"

	"tlq-client/log"
	"tlq-client/protocol"
	"tlq-client/tlqerr"
)

// LoggingMiddleware tags the call with a request id, makes the tagged logger available to
// inner middlewares through ctx, and logs the outcome once per call.
func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			ctx = log.NewContext(ctx, logger,
				log.Str(log.RequestIDKey, ksuid.New().String()),
				log.Str(log.EndpointKey, req.Path),
			)
			l := log.WithContext(ctx)

			start := time.Now()
			resp, err := next(ctx, req)
			fields := logrus.Fields{"duration": time.Since(start)}
			if err != nil {
				fields["kind"] = tlqerr.KindOf(err).String()
				l.WithFields(fields).WithError(err).Warn("request failed")
				return resp, err
			}
			fields["status"] = resp.Status
			l.WithFields(fields).Debug("request done")
			return resp, nil
		}
	}
}
