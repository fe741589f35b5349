package grpctp

import (
	"context"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/hanpama/docdb/internal/codec"
	eventbus "github.com/hanpama/docdb/internal/eventbus"
	events "github.com/hanpama/docdb/internal/events"
	"github.com/hanpama/docdb/internal/executor"
	"github.com/hanpama/docdb/internal/memserver"
	"github.com/hanpama/docdb/internal/wire"
	"github.com/hanpama/docdb/internal/wirepb"
)

type gateway struct {
	server *memserver.Server
	dial   grpc.DialOption
}

func startGateway(t *testing.T) *gateway {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	ms := memserver.New([]memserver.Fixture{
		{Query: "FOR u IN users RETURN u.name", Rows: []codec.Raw{codec.Raw(`"ada"`), codec.Raw(`"bob"`)}},
	})
	ms.RegisterGateway(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(func() {
		gs.Stop()
		_ = ms.Close()
	})
	return &gateway{
		server: ms,
		dial: grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	}
}

func (g *gateway) transport(t *testing.T, opts ...Option) *Transport {
	t.Helper()
	base := []Option{
		WithProvider(NewStaticEndpoints(map[string][]string{wirepb.ServiceName: {"bufnet"}})),
		WithDialOptions(g.dial, grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
	tp := New(append(base, opts...)...)
	t.Cleanup(func() { _ = tp.Close() })
	return tp
}

func TestSendRoundTrip(t *testing.T) {
	g := startGateway(t)
	tp := g.transport(t, WithMaxConnsPerEndpoint(1))

	resp, err := tp.Send(context.Background(), &wire.Request{
		Database: "_system",
		Method:   wire.MethodPost,
		Path:     "/_api/cursor",
		Body:     []byte(`{"query":"FOR u IN users RETURN u.name"}`),
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Status)
	require.Equal(t, "application/json", resp.Header["Content-Type"])
	require.Contains(t, string(resp.Body), `"result":["ada","bob"]`)

	// the pooled connection is reused for the next call
	resp, err = tp.Send(context.Background(), &wire.Request{Method: wire.MethodGet, Path: "/_api/query-cache/properties"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
}

func TestErrorStatusIsAResponse(t *testing.T) {
	g := startGateway(t)
	tp := g.transport(t)

	resp, err := tp.Send(context.Background(), &wire.Request{Method: wire.MethodPut, Path: "/_api/cursor/404"})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.Status)
	require.Contains(t, string(resp.Body), `"errorNum":1600`)
}

func TestSendFailures(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		tp := New()
		_, err := tp.Send(context.Background(), &wire.Request{Method: wire.MethodGet, Path: "/"})
		require.ErrorContains(t, err, "provider not configured")
	})
	t.Run("no endpoints", func(t *testing.T) {
		tp := New(WithProvider(NewStaticEndpoints(nil)))
		_, err := tp.Send(context.Background(), &wire.Request{Method: wire.MethodGet, Path: "/"})
		require.ErrorIs(t, err, ErrNoEndpoints)
	})
	t.Run("closed", func(t *testing.T) {
		tp := New()
		require.NoError(t, tp.Close())
		require.NoError(t, tp.Close())
		_, err := tp.Send(context.Background(), &wire.Request{Method: wire.MethodGet, Path: "/"})
		require.ErrorIs(t, err, ErrClosed)
	})
	t.Run("server closed", func(t *testing.T) {
		g := startGateway(t)
		tp := g.transport(t)
		require.NoError(t, g.server.Close())
		_, err := tp.Send(context.Background(), &wire.Request{Method: wire.MethodGet, Path: "/"})
		require.Equal(t, codes.Unavailable, status.Code(err))
	})
}

func TestEvents(t *testing.T) {
	g := startGateway(t)
	bus := eventbus.New()
	var starts []events.GRPCClientStart
	var finishes []events.GRPCClientFinish
	eventbus.Subscribe(bus, func(_ context.Context, e events.GRPCClientStart) { starts = append(starts, e) })
	eventbus.Subscribe(bus, func(_ context.Context, e events.GRPCClientFinish) { finishes = append(finishes, e) })
	tp := g.transport(t, WithEventBus(bus))

	_, err := tp.Send(context.Background(), &wire.Request{Method: wire.MethodGet, Path: "/_api/query-cache/properties"})
	require.NoError(t, err)

	require.Len(t, starts, 1)
	require.Equal(t, events.GRPCClientStart{Method: wirepb.FullMethod, Target: "bufnet"}, starts[0])
	require.Len(t, finishes, 1)
	require.Equal(t, codes.OK, finishes[0].Code)
	require.NoError(t, finishes[0].Err)
}

func TestExecutorOverGateway(t *testing.T) {
	g := startGateway(t)
	exec := executor.New(g.transport(t))

	props, err := executor.Do(context.Background(), exec,
		&wire.Request{Method: wire.MethodGet, Path: "/_api/query-cache/properties"},
		executor.Field[string]("mode"))
	require.NoError(t, err)
	require.Equal(t, "off", props)
}
