// Package grpctp sends wire requests to a database gateway over gRPC.
package grpctp

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"

	eventbus "github.com/hanpama/docdb/internal/eventbus"
	events "github.com/hanpama/docdb/internal/events"
	"github.com/hanpama/docdb/internal/executor"
	"github.com/hanpama/docdb/internal/wire"
	"github.com/hanpama/docdb/internal/wirepb"
)

// Transport is a gRPC transport with connection pooling and deadline
// propagation. It integrates with an EndpointProvider for service discovery.
type Transport struct {
	opts *Options

	mu     sync.RWMutex
	pools  map[string]*connPool // key: endpoint
	closed atomic.Bool
}

func New(opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	return &Transport{
		opts:  o,
		pools: make(map[string]*connPool),
	}
}

var _ executor.Transport = (*Transport)(nil)

// Send forwards req to one endpoint of the gateway service. Error statuses
// of the database come back as responses; only gRPC failures are errors.
func (t *Transport) Send(ctx context.Context, req *wire.Request) (resp *wire.Response, err error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if t.opts.Provider == nil {
		return nil, fmt.Errorf("grpctp: provider not configured")
	}

	if _, ok := ctx.Deadline(); !ok && t.opts.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RPCTimeout)
		defer cancel()
	}
	if req.Database != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-docdb-database", req.Database)
	}

	endpoints, err := t.opts.Provider.Endpoints(ctx, wirepb.ServiceName)
	if err != nil {
		return nil, err
	}
	endpoint := endpoints[rand.Intn(len(endpoints))]

	cc, err := t.getConn(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("grpctp: dial %s: %w", endpoint, err)
	}
	defer t.returnConn(endpoint, cc)

	bus := t.opts.Events
	if bus == nil {
		bus = eventbus.Global()
	}
	start := time.Now()
	eventbus.Emit(ctx, bus, events.GRPCClientStart{Method: wirepb.FullMethod, Target: endpoint})
	resp, err = t.invoke(ctx, cc, req)
	eventbus.Emit(ctx, bus, events.GRPCClientFinish{
		Method:   wirepb.FullMethod,
		Target:   endpoint,
		Code:     status.Code(err),
		Err:      err,
		Duration: time.Since(start),
	})
	return resp, err
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pools {
		p.close()
	}
	t.pools = map[string]*connPool{}
	return nil
}

// ---------------- internals ----------------

type connPool struct {
	endpoint string
	opts     *Options
	conns    chan *grpc.ClientConn
	closed   atomic.Bool
}

func newConnPool(endpoint string, opts *Options) *connPool {
	n := opts.MaxConnsPerEndpoint
	if n <= 0 {
		n = 2
	}
	return &connPool{
		endpoint: endpoint,
		opts:     opts,
		conns:    make(chan *grpc.ClientConn, n),
	}
}

func (p *connPool) get(ctx context.Context) (*grpc.ClientConn, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("grpctp: pool closed")
	}
	select {
	case cc := <-p.conns:
		return cc, nil
	default:
		return grpc.DialContext(ctx, p.endpoint, p.opts.DialOptions...)
	}
}

func (p *connPool) put(cc *grpc.ClientConn) {
	if cc == nil || p.closed.Load() {
		if cc != nil {
			_ = cc.Close()
		}
		return
	}
	select {
	case p.conns <- cc:
	default:
		_ = cc.Close()
	}
}

func (p *connPool) close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.conns)
	for cc := range p.conns {
		_ = cc.Close()
	}
}

func (t *Transport) getConn(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool == nil {
		t.mu.Lock()
		pool = t.pools[endpoint]
		if pool == nil {
			pool = newConnPool(endpoint, t.opts)
			t.pools[endpoint] = pool
		}
		t.mu.Unlock()
	}
	return pool.get(ctx)
}

func (t *Transport) returnConn(endpoint string, cc *grpc.ClientConn) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool != nil {
		pool.put(cc)
		return
	}
	_ = cc.Close()
}

func (t *Transport) invoke(ctx context.Context, cc *grpc.ClientConn, req *wire.Request) (*wire.Response, error) {
	out := dynamicpb.NewMessage(wirepb.Method().Output())
	if err := cc.Invoke(ctx, wirepb.FullMethod, wirepb.NewRequest(req), out); err != nil {
		return nil, err
	}
	return wirepb.ResponseFrom(out), nil
}
