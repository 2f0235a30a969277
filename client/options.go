package client

import (
	"tlq-client/loadbalance"
	"tlq-client/log"
	"tlq-client/middleware"
	"tlq-client/registry"
	"tlq-client/transport"
)

// Option customizes a Client at construction time.
type Option func(*options)

type options struct {
	logger   log.Logger
	rt       transport.RoundTripper
	sleep    middleware.Sleeper
	registry registry.Registry
	balancer loadbalance.Balancer
}

// WithLogger sends the client's logs to logger instead of a stderr logger at
// Config.LogLevel.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRoundTripper replaces the network transport, e.g. with a mock.
func WithRoundTripper(rt transport.RoundTripper) Option {
	return func(o *options) {
		o.rt = rt
	}
}

// WithSleeper replaces the clock used between retries.
func WithSleeper(sleep middleware.Sleeper) Option {
	return func(o *options) {
		o.sleep = sleep
	}
}

// WithRegistry makes the client pick a server of Config.ServiceName from reg before every
// attempt. The instance list is kept current through reg.Watch until Close.
// A nil balancer means the one named by Config.Balancer.
// The caller keeps ownership of reg.
func WithRegistry(reg registry.Registry, bal loadbalance.Balancer) Option {
	return func(o *options) {
		o.registry = reg
		o.balancer = bal
	}
}
