// Package loadbalance picks one TLQ server out of the instances a registry reports.
//
//   - RoundRobin:      equal-capacity servers
//   - WeightedRandom:  servers of different sizes, by ServiceInstance.Weight
package loadbalance

import (
	"errors"
	"fmt"

	"tlq-client/registry"
)

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each attempt to select a target instance.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Called on every attempt, must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// ErrNoInstances is returned by Pick for an empty instance list.
var ErrNoInstances = errors.New("no instances available")

// New returns the balancer registered under name: "round_robin" (also the empty name)
// or "weighted_random".
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin", "RoundRobin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random", "WeightedRandom":
		return &WeightedRandomBalancer{}, nil
	default:
		return nil, fmt.Errorf("unknown balancer %q", name)
	}
}
