package registry

import (
	"context"
	"slices"
	"sync"
)

// MemoryRegistry keeps instances in process. TTLs are ignored. It suits fixed server
// lists and tests.
type MemoryRegistry struct {
	mu        sync.Mutex
	instances map[string][]ServiceInstance
	watchers  map[string][]chan []ServiceInstance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		instances: make(map[string][]ServiceInstance),
		watchers:  make(map[string][]chan []ServiceInstance),
	}
}

// Register adds instance, replacing any instance with the same address.
func (m *MemoryRegistry) Register(_ context.Context, serviceName string, instance ServiceInstance, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	insts := slices.DeleteFunc(m.instances[serviceName], func(i ServiceInstance) bool {
		return i.Addr == instance.Addr
	})
	m.instances[serviceName] = append(insts, instance)
	m.notify(serviceName)
	return nil
}

func (m *MemoryRegistry) Deregister(_ context.Context, serviceName string, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[serviceName] = slices.DeleteFunc(m.instances[serviceName], func(i ServiceInstance) bool {
		return i.Addr == addr
	})
	m.notify(serviceName)
	return nil
}

func (m *MemoryRegistry) Discover(_ context.Context, serviceName string) ([]ServiceInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.instances[serviceName]), nil
}

// Watch emits the full instance list after every change until ctx is done.
// A slow reader only ever sees the latest list.
func (m *MemoryRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	m.mu.Lock()
	m.watchers[serviceName] = append(m.watchers[serviceName], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		m.watchers[serviceName] = slices.DeleteFunc(m.watchers[serviceName], func(c chan []ServiceInstance) bool {
			return c == ch
		})
		close(ch)
	}()
	return ch
}

// notify must be called with mu held.
func (m *MemoryRegistry) notify(serviceName string) {
	for _, ch := range m.watchers[serviceName] {
		snapshot := slices.Clone(m.instances[serviceName])
		select {
		case <-ch: // drop the stale list
		default:
		}
		ch <- snapshot
	}
}
