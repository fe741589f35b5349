package executor

import (
	"context"

	"github.com/hanpama/docdb/internal/wire"
)

// Transport delivers a request to the database server and returns its raw
// response. Implementations MUST be safe for concurrent use: the executor
// calls Send from one goroutine per in-flight request.
//
// A non-nil error means no usable response was produced (connection refused,
// deadline exceeded, broken stream). Any response that was received,
// including error statuses, is returned with a nil error; classifying the
// status is the executor's job.
//
// Provided implementations:
//   - internal/grpctp.Transport: pooled gRPC gateway client
//   - internal/httptp.Transport: REST client
//   - internal/memserver.Server: in-process server
//   - internal/retry.Transport: retrying decorator over another Transport
//   - MockTransport: seeded responses for tests
type Transport interface {
	Send(ctx context.Context, req *wire.Request) (*wire.Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *wire.Request) (*wire.Response, error)

func (f TransportFunc) Send(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	return f(ctx, req)
}
