package grpctp

import (
	"context"
	"slices"
	"sync"
)

// EndpointProvider lists reachable endpoints (host:port) for a fully
// qualified gRPC service name such as "docdb.gateway.v1.Gateway".
// Implementations may integrate with service discovery and must be safe for
// concurrent use.
type EndpointProvider interface {
	Endpoints(ctx context.Context, service string) ([]string, error)
}

// StaticEndpoints is a provider backed by an in-memory map from service name
// to endpoints.
type StaticEndpoints struct {
	mu   sync.RWMutex
	data map[string][]string
}

func NewStaticEndpoints(m map[string][]string) *StaticEndpoints {
	cp := make(map[string][]string, len(m))
	for k, v := range m {
		cp[k] = slices.Clone(v)
	}
	return &StaticEndpoints{data: cp}
}

// Set replaces the endpoints of service.
func (s *StaticEndpoints) Set(service string, endpoints ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[service] = slices.Clone(endpoints)
}

func (s *StaticEndpoints) Endpoints(ctx context.Context, service string) ([]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.data[service]
	if len(arr) == 0 {
		return nil, ErrNoEndpoints
	}
	return slices.Clone(arr), nil
}
