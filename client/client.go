// Package client is the TLQ client: typed calls for every queue operation on top of a
// handler pipeline that logs, retries, rate limits and bounds each attempt.
//
//	AddMessage ──encode──→ Logging → Retry → RateLimit → Timeout → transport ──→ server
//	           ←─decode───                                         (one conn per attempt)
//
// Every method makes exactly one logical call; the pipeline may turn it into several
// attempts. A Client is safe for concurrent use.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"

	"tlq-client/codec"
	"tlq-client/config"
	"tlq-client/loadbalance"
	"tlq-client/log"
	"tlq-client/message"
	"tlq-client/middleware"
	"tlq-client/protocol"
	"tlq-client/registry"
	"tlq-client/tlqerr"
	"tlq-client/transport"
)

type Client struct {
	cfg     config.Config
	codec   codec.Codec
	handler middleware.HandlerFunc

	discovery *discoveryTarget       // nil when dialing a fixed host:port
	owned     *registry.EtcdRegistry // created from Config.RegistryEndpoints, closed by Close
}

// New creates a client for host:port with the default retry and timeout settings.
func New(host string, port uint16, opts ...Option) (*Client, error) {
	return NewWithConfig(config.New(host, port), opts...)
}

// Builder starts a configuration for NewWithConfig.
func Builder() config.Builder {
	return config.NewBuilder()
}

// NewWithConfig creates a client from cfg. The client keeps its own copy of cfg.
func NewWithConfig(cfg config.Config, opts ...Option) (*Client, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		cfg:   cfg,
		codec: codec.Default(),
	}
	c.cfg.RegistryEndpoints = append([]string(nil), cfg.RegistryEndpoints...)

	logger := o.logger
	if logger == nil {
		logger = log.New(os.Stderr, log.ParseLevel(cfg.LogLevel))
	}

	rt := o.rt
	if rt == nil {
		target, err := c.target(o)
		if err != nil {
			return nil, err
		}
		rt = transport.NewClientTransport(target, cfg.Timeout)
	}

	mws := []middleware.Middleware{
		middleware.LoggingMiddleware(logger),
		middleware.RetryMiddleware(cfg.MaxRetries, cfg.RetryDelay, o.sleep),
	}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}
	mws = append(mws, middleware.TimeOutMiddleware(cfg.Timeout))
	c.handler = middleware.Chain(mws...)(rt.RoundTrip)

	return c, nil
}

// target decides where attempts go: a registry given as an option, one built from the
// configured etcd endpoints, or the fixed host:port.
func (c *Client) target(o options) (transport.Target, error) {
	reg := o.registry
	if reg == nil && len(c.cfg.RegistryEndpoints) > 0 {
		etcd, err := registry.NewEtcdRegistry(c.cfg.RegistryEndpoints)
		if err != nil {
			return nil, fmt.Errorf("connect registry: %w", err)
		}
		c.owned = etcd
		reg = etcd
	}
	if reg == nil {
		return transport.StaticTarget(c.cfg.Addr()), nil
	}

	bal := o.balancer
	if bal == nil {
		var err error
		if bal, err = loadbalance.New(c.cfg.Balancer); err != nil {
			c.Close()
			return nil, err
		}
	}
	c.discovery = newDiscoveryTarget(reg, bal, c.cfg.ServiceName)
	return c.discovery, nil
}

// Config returns a copy of the client's configuration.
func (c *Client) Config() config.Config {
	cfg := c.cfg
	cfg.RegistryEndpoints = append([]string(nil), c.cfg.RegistryEndpoints...)
	return cfg
}

// Addr is the configured host:port.
func (c *Client) Addr() string {
	return c.cfg.Addr()
}

// Close stops watching the registry and releases the registry connection the client
// opened itself, if any.
func (c *Client) Close() error {
	if c.discovery != nil {
		c.discovery.close()
		c.discovery = nil
	}
	if c.owned == nil {
		return nil
	}
	err := c.owned.Close()
	c.owned = nil
	return err
}

// HealthCheck reports whether the server answers GET /hello with 200. A server that
// answers with any other status is unhealthy, not an error.
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	resp, err := c.call(ctx, protocol.MethodGet, "/hello", nil, nil)
	if err != nil {
		switch tlqerr.KindOf(err) {
		case tlqerr.Server, tlqerr.NotFound:
			return false, nil
		}
		return false, err
	}
	return resp.Status == 200, nil
}

// AddMessage enqueues body and returns the message the server created. Bodies over
// message.MaxMessageSize bytes are rejected without touching the network.
func (c *Client) AddMessage(ctx context.Context, body string) (*message.Message, error) {
	if len(body) > message.MaxMessageSize {
		return nil, tlqerr.NewMessageTooLarge(len(body))
	}
	var msg message.Message
	req := &protocol.Request{Method: protocol.MethodPost, Path: "/add", MessageSize: len(body)}
	if _, err := c.do(ctx, req, message.AddMessageRequest{Body: body}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessages fetches up to count messages. The server marks them Processing.
func (c *Client) GetMessages(ctx context.Context, count uint32) ([]message.Message, error) {
	if count == 0 {
		return nil, tlqerr.NewValidation("count must be greater than 0")
	}
	var msgs []message.Message
	if _, err := c.call(ctx, protocol.MethodPost, "/get", message.GetMessagesRequest{Count: count}, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetMessage fetches one message, or nil if the queue is empty.
func (c *Client) GetMessage(ctx context.Context) (*message.Message, error) {
	msgs, err := c.GetMessages(ctx, 1)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

func (c *Client) DeleteMessage(ctx context.Context, id uuid.UUID) (string, error) {
	return c.DeleteMessages(ctx, []uuid.UUID{id})
}

// DeleteMessages removes ids in a single request and returns the server's reply,
// normally "Success". The server applies the batch as a whole.
func (c *Client) DeleteMessages(ctx context.Context, ids []uuid.UUID) (string, error) {
	if len(ids) == 0 {
		return "", tlqerr.NewValidation("no message IDs provided")
	}
	var result string
	if _, err := c.call(ctx, protocol.MethodPost, "/delete", message.DeleteMessagesRequest{IDs: ids}, &result); err != nil {
		return "", err
	}
	return result, nil
}

func (c *Client) RetryMessage(ctx context.Context, id uuid.UUID) (string, error) {
	return c.RetryMessages(ctx, []uuid.UUID{id})
}

// RetryMessages puts ids back into the Ready state in a single request.
func (c *Client) RetryMessages(ctx context.Context, ids []uuid.UUID) (string, error) {
	if len(ids) == 0 {
		return "", tlqerr.NewValidation("no message IDs provided")
	}
	var result string
	if _, err := c.call(ctx, protocol.MethodPost, "/retry", message.RetryMessagesRequest{IDs: ids}, &result); err != nil {
		return "", err
	}
	return result, nil
}

// PurgeQueue drops every message and returns the count the server reports.
func (c *Client) PurgeQueue(ctx context.Context) (int, error) {
	var n purgeCount
	if _, err := c.call(ctx, protocol.MethodPost, "/purge", message.PurgeRequest{}, &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

// purgeCount accepts 3 as well as "3".
type purgeCount int

func (p *purgeCount) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*p = purgeCount(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("purge count: %s", data)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("purge count: %w", err)
	}
	*p = purgeCount(n)
	return nil
}

// call encodes payload, runs one logical request through the pipeline and decodes the
// response body into out. A nil payload sends no body, a nil out skips decoding.
func (c *Client) call(ctx context.Context, method, path string, payload, out any) (*protocol.Response, error) {
	return c.do(ctx, &protocol.Request{Method: method, Path: path}, payload, out)
}

func (c *Client) do(ctx context.Context, req *protocol.Request, payload, out any) (*protocol.Response, error) {
	if payload != nil {
		body, err := c.codec.Encode(payload)
		if err != nil {
			return nil, tlqerr.NewSerialization(err)
		}
		req.Body = body
		req.ContentType = c.codec.ContentType()
	}

	resp, err := c.handler(ctx, req)
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := c.codec.Decode(resp.Body, out); err != nil {
			return resp, tlqerr.NewSerialization(err)
		}
	}
	return resp, nil
}
