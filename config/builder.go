package config

import (
	"slices"
	"time"
)

// Builder assembles a Config step by step. Every setter replaces one field and returns
// the updated builder; the last setter wins. Build never fails.
//
//	cfg := config.NewBuilder().
//		Host("localhost").
//		Port(1337).
//		TimeoutMs(5000).
//		MaxRetries(3).
//		Build()
type Builder struct {
	cfg Config
}

// NewBuilder starts from Default().
func NewBuilder() Builder {
	return Builder{cfg: Default()}
}

func (b Builder) Host(host string) Builder {
	b.cfg.Host = host
	return b
}

func (b Builder) Port(port uint16) Builder {
	b.cfg.Port = port
	return b
}

func (b Builder) Timeout(timeout time.Duration) Builder {
	b.cfg.Timeout = timeout
	return b
}

func (b Builder) TimeoutMs(ms uint64) Builder {
	b.cfg.Timeout = time.Duration(ms) * time.Millisecond
	return b
}

func (b Builder) MaxRetries(retries uint32) Builder {
	b.cfg.MaxRetries = retries
	return b
}

func (b Builder) RetryDelay(delay time.Duration) Builder {
	b.cfg.RetryDelay = delay
	return b
}

func (b Builder) RetryDelayMs(ms uint64) Builder {
	b.cfg.RetryDelay = time.Duration(ms) * time.Millisecond
	return b
}

// RateLimit allows perSecond attempts with bursts of up to burst.
func (b Builder) RateLimit(perSecond float64, burst int) Builder {
	b.cfg.RateLimit = perSecond
	b.cfg.RateBurst = burst
	return b
}

func (b Builder) RegistryEndpoints(endpoints ...string) Builder {
	b.cfg.RegistryEndpoints = slices.Clone(endpoints)
	return b
}

func (b Builder) ServiceName(name string) Builder {
	b.cfg.ServiceName = name
	return b
}

func (b Builder) Balancer(name string) Builder {
	b.cfg.Balancer = name
	return b
}

func (b Builder) LogLevel(level string) Builder {
	b.cfg.LogLevel = level
	return b
}

// Build returns the assembled Config.
func (b Builder) Build() Config {
	cfg := b.cfg
	cfg.RegistryEndpoints = slices.Clone(cfg.RegistryEndpoints)
	return cfg
}
