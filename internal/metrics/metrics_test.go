package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/hanpama/docdb/internal/dberr"
	eventbus "github.com/hanpama/docdb/internal/eventbus"
	events "github.com/hanpama/docdb/internal/events"
)

func setup(t *testing.T) (*Metrics, *eventbus.Bus) {
	t.Helper()
	m := New()
	bus := eventbus.New()
	t.Cleanup(m.Subscribe(bus))
	return m, bus
}

func TestRequestMetrics(t *testing.T) {
	m, bus := setup(t)
	ctx := context.Background()

	eventbus.Emit(ctx, bus, events.RequestFinish{Method: "PUT", Status: 200, Duration: time.Millisecond})
	eventbus.Emit(ctx, bus, events.RequestFinish{Method: "PUT", Status: 404, Err: &dberr.Error{Kind: dberr.Expired, Status: 404}})
	eventbus.Emit(ctx, bus, events.RequestFinish{Method: "POST", Err: dberr.NewTransport(errors.New("refused"))})

	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("PUT", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("PUT", "404")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "0")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("expired")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("transport")))
	require.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))
}

func TestCursorMetrics(t *testing.T) {
	m, bus := setup(t)
	ctx := context.Background()

	eventbus.Emit(ctx, bus, events.CursorBatch{CursorID: "1", Items: 5, HasMore: true})
	eventbus.Emit(ctx, bus, events.CursorBatch{Items: 2})
	eventbus.Emit(ctx, bus, events.CursorBatch{Items: 3, Cached: true})
	eventbus.Emit(ctx, bus, events.CursorRelease{CursorID: "1"})
	eventbus.Emit(ctx, bus, events.CursorRelease{CursorID: "2", Err: errors.New("gone")})

	expected := `
		# HELP docdb_cursor_batches_total Result batches received by cursors.
		# TYPE docdb_cursor_batches_total counter
		docdb_cursor_batches_total{cached="false"} 2
		docdb_cursor_batches_total{cached="true"} 1
	`
	require.NoError(t, testutil.CollectAndCompare(m.cursorBatches, strings.NewReader(expected)))
	require.Equal(t, 10.0, testutil.ToFloat64(m.cursorItems))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cursorReleases.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cursorReleases.WithLabelValues("failed")))
}

func TestTransportMetrics(t *testing.T) {
	m, bus := setup(t)
	ctx := context.Background()

	eventbus.Emit(ctx, bus, events.GRPCClientFinish{Code: codes.OK})
	eventbus.Emit(ctx, bus, events.GRPCClientFinish{Code: codes.Unavailable})
	eventbus.Emit(ctx, bus, events.HTTPFinish{Method: "POST", Status: 201})

	require.Equal(t, 1.0, testutil.ToFloat64(m.grpcCalls.WithLabelValues("Unavailable")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "201")))
}

func TestRegisterAndServe(t *testing.T) {
	m, bus := setup(t)
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	require.Error(t, m.Register(reg), "duplicate registration")

	eventbus.Emit(context.Background(), bus, events.CursorBatch{Items: 4})

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "docdb_cursor_items_total 4")
}
