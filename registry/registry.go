// Package registry tells the client where TLQ servers are.
//
// A client configured with a Registry looks up the instances of its service before every
// attempt instead of dialing a fixed host:port. Servers (or whatever deploys them) register
// themselves under a service name.
package registry

import "context"

type ServiceInstance struct {
	Addr    string `json:"addr"`    // host:port the server listens on
	Weight  int    `json:"weight"`  // Weight for load balancing
	Version string `json:"version"` // Server version, informational
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
