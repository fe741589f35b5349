package grpctp

import (
	"time"

	"google.golang.org/grpc"

	eventbus "github.com/hanpama/docdb/internal/eventbus"
)

// Options configures the gRPC transport behavior.
//
// Defaults:
// - MaxConnsPerEndpoint: 2
// - RPCTimeout:          3s (used only if incoming context has no deadline)
// - DialOptions:         insecure credentials
// - Events:              the global bus
//
// Provider must be set (use StaticEndpoints or a custom implementation);
// without it every Send fails.
type Options struct {
	Provider EndpointProvider

	MaxConnsPerEndpoint int
	RPCTimeout          time.Duration

	DialOptions []grpc.DialOption
	Events      *eventbus.Bus
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		MaxConnsPerEndpoint: 2,
		RPCTimeout:          3 * time.Second,
	}
}

func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }
func WithMaxConnsPerEndpoint(n int) Option   { return func(o *Options) { o.MaxConnsPerEndpoint = n } }
func WithRPCTimeout(d time.Duration) Option  { return func(o *Options) { o.RPCTimeout = d } }
func WithEventBus(b *eventbus.Bus) Option    { return func(o *Options) { o.Events = b } }
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = opts }
}
