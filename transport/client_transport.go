// Package transport performs one request/response exchange with a TLQ server and
// classifies whatever goes wrong.
//
// Every RoundTrip dials a fresh TCP connection, writes one request frame, reads the
// response until the server closes, and closes its side on every exit path:
//
//	RoundTrip ──Addr()──→ target ──Dial──→ conn ──Encode──→ server
//	                                        conn ←─Decode──  server (closes)
//
// Nothing is retried here; that is the retry middleware's job.
package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"tlq-client/log"
	"tlq-client/protocol"
	"tlq-client/tlqerr"
)

// RoundTripper executes a single request. ClientTransport is the network implementation;
// tests substitute their own.
type RoundTripper interface {
	RoundTrip(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// RoundTripFunc adapts a function to RoundTripper.
type RoundTripFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

func (f RoundTripFunc) RoundTrip(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return f(ctx, req)
}

// ClientTransport talks to whatever address its Target resolves to.
// It holds no per-request state and is safe for concurrent use.
type ClientTransport struct {
	target  Target
	timeout time.Duration // Reported in Timeout errors unless ctx runs out sooner
	dialer  *net.Dialer
}

// NewClientTransport creates a transport for target. timeout is the per-attempt bound the
// caller applies through ctx; it is only used to describe Timeout errors.
func NewClientTransport(target Target, timeout time.Duration) *ClientTransport {
	return &ClientTransport{
		target:  target,
		timeout: timeout,
		dialer:  &net.Dialer{KeepAlive: -1},
	}
}

// RoundTrip sends req and returns the parsed response.
func (t *ClientTransport) RoundTrip(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	bound := t.bound(ctx)

	addr, err := t.target.Addr(ctx)
	if err != nil {
		if ctxErr := contextError(ctx, bound); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, tlqerr.NewConnection("resolve server: "+err.Error(), err)
	}

	log.WithContext(ctx).WithField(log.AddrKey, addr).Debug("dialing")

	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classify(ctx, bound, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	// Abandoning the call unblocks any pending read or write immediately
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	frame := *req
	if frame.Host == "" {
		frame.Host = addr
	}
	if err := protocol.Encode(conn, &frame); err != nil {
		return nil, classify(ctx, bound, err)
	}

	resp, err := protocol.Decode(conn)
	if err != nil {
		return nil, classifyResponse(ctx, bound, req, err)
	}
	return resp, nil
}

// bound is the limit this attempt runs under: the configured timeout, or the time left on
// ctx when that runs out sooner.
func (t *ClientTransport) bound(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return t.timeout
	}
	left := time.Until(deadline).Round(time.Millisecond)
	if t.timeout <= 0 || left < t.timeout {
		return max(left, 0)
	}
	return t.timeout
}

// classifyResponse maps a failed Decode to the error taxonomy.
func classifyResponse(ctx context.Context, bound time.Duration, req *protocol.Request, err error) error {
	var statusErr *protocol.StatusError
	switch {
	case errors.As(err, &statusErr):
		switch statusErr.Status {
		case http.StatusNotFound:
			return tlqerr.NewNotFound(statusErr.Body)
		case http.StatusRequestEntityTooLarge:
			size := req.MessageSize
			if size == 0 {
				size = len(req.Body)
			}
			return tlqerr.NewMessageTooLarge(size)
		default:
			return tlqerr.NewServer(statusErr.Status, statusErr.Body)
		}
	case errors.Is(err, protocol.ErrMalformed):
		return tlqerr.NewConnection(err.Error(), err)
	case errors.Is(err, protocol.ErrTooLarge):
		return tlqerr.NewSerialization(err)
	default:
		return classify(ctx, bound, err)
	}
}

// classify maps a network error. Context state wins over the error itself because a
// cancelled call surfaces as a deadline error on the connection.
func classify(ctx context.Context, bound time.Duration, err error) error {
	if ctxErr := contextError(ctx, bound); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return tlqerr.NewTimeout(bound, err)
	}
	return tlqerr.NewConnection(err.Error(), err)
}

func contextError(ctx context.Context, bound time.Duration) error {
	switch err := ctx.Err(); {
	case errors.Is(err, context.DeadlineExceeded):
		return tlqerr.NewTimeout(bound, err)
	case err != nil:
		return tlqerr.NewUnknown("request canceled", err)
	}
	return nil
}
