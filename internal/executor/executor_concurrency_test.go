package executor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventbus "github.com/hanpama/docdb/internal/eventbus"
	events "github.com/hanpama/docdb/internal/events"
	reqid "github.com/hanpama/docdb/internal/reqid"
	"github.com/hanpama/docdb/internal/wire"
)

// echoTransport answers every request with its own path as the body.
func echoTransport(t *testing.T) Transport {
	return TransportFunc(func(ctx context.Context, req *wire.Request) (*wire.Response, error) {
		return jsonResponse(t, http.StatusOK, req.Path), nil
	})
}

func TestExecute_ConcurrentCallsAreIndependent(t *testing.T) {
	exec := New(echoTransport(t))
	const n = 64
	futures := make([]*Future[string], n)
	for i := range n {
		req := &wire.Request{Method: wire.MethodGet, Path: fmt.Sprintf("/p/%d", i)}
		futures[i] = Execute(context.Background(), exec, req, Value[string]())
	}
	for i, f := range futures {
		got, err := f.Await(context.Background())
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("/p/%d", i), got)
	}
}

func TestExecute_MaxInFlight(t *testing.T) {
	var cur, peak atomic.Int32
	tr := TransportFunc(func(ctx context.Context, req *wire.Request) (*wire.Response, error) {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		cur.Add(-1)
		return &wire.Response{Status: http.StatusOK}, nil
	})
	exec := New(tr, WithMaxInFlight(2))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Do(context.Background(), exec, getDoc(), Discard())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestExecute_PublishesRequestEvents(t *testing.T) {
	bus := eventbus.New()
	var mu sync.Mutex
	var starts []events.RequestStart
	var finishes []events.RequestFinish
	var ids []string
	eventbus.Subscribe(bus, func(ctx context.Context, e events.RequestStart) {
		mu.Lock()
		defer mu.Unlock()
		starts = append(starts, e)
		id, _ := reqid.FromContext(ctx)
		ids = append(ids, id)
	})
	eventbus.Subscribe(bus, func(ctx context.Context, e events.RequestFinish) {
		mu.Lock()
		defer mu.Unlock()
		finishes = append(finishes, e)
		id, _ := reqid.FromContext(ctx)
		ids = append(ids, id)
	})

	mt := NewMockTransport(&wire.Response{Status: http.StatusNotFound})
	_, err := Do(context.Background(), New(mt, WithEventBus(bus)), getDoc(), Discard())
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []events.RequestStart{{Database: "_system", Method: "GET", Path: "/_api/document/users/1"}}, starts)
	require.Len(t, finishes, 1)
	require.Equal(t, 404, finishes[0].Status)
	require.Error(t, finishes[0].Err)
	require.Len(t, ids, 2)
	require.NotEmpty(t, ids[0])
	require.Equal(t, ids[0], ids[1], "start and finish must share the request id")
}
