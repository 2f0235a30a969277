// Package config holds the client configuration: where the server is, how long to wait
// for it, and how hard to retry.
package config

import (
	"net"
	"strconv"
	"time"
)

const (
	DefaultHost        = "localhost"
	DefaultPort        = 1337
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 100 * time.Millisecond
	DefaultServiceName = "tlq"
	DefaultBalancer    = "round_robin"
	DefaultLogLevel    = "info"
)

// Config is copied into the client on construction and never changed afterwards.
// Zero or odd values are legal; they change behavior rather than fail.
type Config struct {
	Host       string
	Port       uint16
	Timeout    time.Duration // Per-attempt bound on connect + response
	MaxRetries uint32        // Retries after the first attempt; 0 means a single attempt
	RetryDelay time.Duration // Base delay, doubled after every retry

	// RateLimit caps attempts per second across the client. 0 disables it.
	RateLimit float64
	RateBurst int

	// RegistryEndpoints, when set, makes the client discover servers in etcd
	// under ServiceName instead of dialing Host:Port.
	RegistryEndpoints []string
	ServiceName       string
	Balancer          string // "round_robin" or "weighted_random"

	LogLevel string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Host:        DefaultHost,
		Port:        DefaultPort,
		Timeout:     DefaultTimeout,
		MaxRetries:  DefaultMaxRetries,
		RetryDelay:  DefaultRetryDelay,
		ServiceName: DefaultServiceName,
		Balancer:    DefaultBalancer,
		LogLevel:    DefaultLogLevel,
	}
}

// New returns the defaults pointed at host:port.
func New(host string, port uint16) Config {
	return NewBuilder().Host(host).Port(port).Build()
}

// Addr is the dial address, e.g. "localhost:1337".
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}
