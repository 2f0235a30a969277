package client

import (
	"context"
	"fmt"
	"sync"

	"tlq-client/loadbalance"
	"tlq-client/registry"
)

// discoveryTarget resolves the server for each attempt through a registry, so a retry
// can land on a different instance than the attempt that failed.
//
// The instance list is kept fresh by a registry watch. Until the first watch event
// arrives the cache is cold and every attempt asks the registry directly.
type discoveryTarget struct {
	registry registry.Registry
	balancer loadbalance.Balancer
	service  string

	mu        sync.RWMutex
	instances []registry.ServiceInstance
	warm      bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newDiscoveryTarget(reg registry.Registry, bal loadbalance.Balancer, service string) *discoveryTarget {
	ctx, cancel := context.WithCancel(context.Background())
	d := &discoveryTarget{
		registry: reg,
		balancer: bal,
		service:  service,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	updates := reg.Watch(ctx, service)
	go d.watch(updates)
	return d
}

func (d *discoveryTarget) watch(updates <-chan []registry.ServiceInstance) {
	defer close(d.done)
	for instances := range updates {
		d.mu.Lock()
		d.instances = instances
		d.warm = true
		d.mu.Unlock()
	}
}

func (d *discoveryTarget) cached() ([]registry.ServiceInstance, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.instances, d.warm
}

func (d *discoveryTarget) Addr(ctx context.Context) (string, error) {
	instances, ok := d.cached()
	if !ok {
		var err error
		if instances, err = d.registry.Discover(ctx, d.service); err != nil {
			return "", fmt.Errorf("discover %s: %w", d.service, err)
		}
	}
	instance, err := d.balancer.Pick(instances)
	if err != nil {
		return "", fmt.Errorf("pick %s instance: %w", d.service, err)
	}
	return instance.Addr, nil
}

// close stops the watch and waits for it to finish.
func (d *discoveryTarget) close() {
	d.cancel()
	<-d.done
}
