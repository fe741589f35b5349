package executor

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/docdb/internal/dberr"
	"github.com/hanpama/docdb/internal/wire"
)

type doc struct {
	Key  string `json:"_key"`
	Name string `json:"name"`
}

func getDoc() *wire.Request {
	return &wire.Request{Database: "_system", Method: wire.MethodGet, Path: "/_api/document/users/1"}
}

func TestExecute_DoesNotBlockCaller(t *testing.T) {
	gate := make(chan struct{})
	tr := TransportFunc(func(ctx context.Context, req *wire.Request) (*wire.Response, error) {
		<-gate
		return jsonResponse(t, http.StatusOK, doc{Key: "1", Name: "a"}), nil
	})
	exec := New(tr)

	f := Execute(context.Background(), exec, getDoc(), Value[doc]())
	_, ok := f.Outcome()
	require.False(t, ok, "future resolved before transport answered")

	close(gate)
	got, err := f.Await(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(doc{Key: "1", Name: "a"}, got); diff != "" {
		t.Fatalf("value mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_Failures(t *testing.T) {
	t.Run("Transport error", func(t *testing.T) {
		cause := errors.New("connection refused")
		mt := NewMockTransportWithErrors(nil, []error{cause})
		_, err := Do(context.Background(), New(mt), getDoc(), Value[doc]())
		require.ErrorIs(t, err, dberr.ErrTransport)
		require.ErrorIs(t, err, cause)
		require.Equal(t, 0, dberr.StatusCode(err))
	})

	t.Run("Server error body", func(t *testing.T) {
		mt := NewMockTransport(jsonResponse(t, http.StatusNotFound, map[string]any{
			"error": true, "code": 404, "errorNum": 1202, "errorMessage": "document not found",
		}))
		_, err := Do(context.Background(), New(mt), getDoc(), Value[doc]())
		var de *dberr.Error
		require.ErrorAs(t, err, &de)
		want := &dberr.Error{Kind: dberr.Transport, Status: 404, ErrorNum: 1202, Message: "document not found"}
		if diff := cmp.Diff(want, de); diff != "" {
			t.Fatalf("error mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Status without body", func(t *testing.T) {
		mt := NewMockTransport(&wire.Response{Status: http.StatusServiceUnavailable})
		_, err := Do(context.Background(), New(mt), getDoc(), Value[doc]())
		require.ErrorIs(t, err, dberr.ErrTransport)
		require.Equal(t, 503, dberr.StatusCode(err))
		require.Contains(t, err.Error(), "unexpected status 503")
	})

	t.Run("Cursor not found is expired", func(t *testing.T) {
		mt := NewMockTransport(jsonResponse(t, http.StatusNotFound, map[string]any{
			"error": true, "code": 404, "errorNum": 1600, "errorMessage": "cursor not found",
		}))
		_, err := Do(context.Background(), New(mt), getDoc(), Discard())
		require.ErrorIs(t, err, dberr.ErrExpired)
		require.Equal(t, "docdb: expired: response 404, error 1600 - cursor not found", err.Error())
	})

	t.Run("Decode error", func(t *testing.T) {
		mt := NewMockTransport(&wire.Response{Status: http.StatusOK, Body: []byte(`{"_key": 5`)})
		_, err := Do(context.Background(), New(mt), getDoc(), Value[doc]())
		require.ErrorIs(t, err, dberr.ErrDecode)
		require.Len(t, mt.Calls(), 1, "decode failures must not be retried")
	})

	t.Run("Nil response", func(t *testing.T) {
		mt := NewMockTransport(nil)
		_, err := Do(context.Background(), New(mt), getDoc(), Discard())
		require.ErrorIs(t, err, dberr.ErrTransport)
	})
}

func TestExecute_RequestIsCopied(t *testing.T) {
	mt := NewMockTransport(&wire.Response{Status: http.StatusOK})
	req := getDoc()
	req.Header = map[string]string{"x-session": "a"}
	f := Execute(context.Background(), New(mt), req, Discard())
	req.Header["x-session"] = "b"
	req.Path = "/changed"

	_, err := f.Await(context.Background())
	require.NoError(t, err)
	calls := mt.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "a", calls[0].Request.Header["x-session"])
	require.Equal(t, "/_api/document/users/1", calls[0].Request.Path)
}

func TestFuture_AwaitContextDoesNotCancelRequest(t *testing.T) {
	gate := make(chan struct{})
	finished := make(chan struct{})
	tr := TransportFunc(func(ctx context.Context, req *wire.Request) (*wire.Response, error) {
		<-gate
		close(finished)
		return &wire.Response{Status: http.StatusOK}, nil
	})
	f := Execute(context.Background(), New(tr), getDoc(), Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, dberr.Transport, dberr.KindOf(err))

	close(gate)
	<-finished
	_, err = f.Await(context.Background())
	require.NoError(t, err)
}

func TestExecute_StrategyWithoutDecoder(t *testing.T) {
	mt := NewMockTransport(&wire.Response{Status: http.StatusOK})
	_, err := Execute(context.Background(), New(mt), getDoc(), Strategy[doc]{}).Await(context.Background())
	require.ErrorIs(t, err, dberr.ErrDecode)
	require.Empty(t, mt.Calls(), "nothing is sent without a decoder")
}

func TestFuture_ResolvedAndThen(t *testing.T) {
	f := Resolved(7, nil)
	o, ok := f.Outcome()
	require.True(t, ok)
	require.Equal(t, Outcome[int]{Value: 7}, o)

	failed := Resolved(7, dberr.ErrClosed)
	got := make(chan Outcome[int], 1)
	failed.Then(func(o Outcome[int]) { got <- o })
	o = <-got
	require.ErrorIs(t, o.Err, dberr.ErrClosed)
	require.Zero(t, o.Value, "failed outcome must not carry a value")
}
