package graph

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/docdb/internal/dberr"
	"github.com/hanpama/docdb/internal/executor"
	"github.com/hanpama/docdb/internal/memserver"
	"github.com/hanpama/docdb/internal/wire"
)

type knows struct {
	Key    string `json:"_key,omitempty"`
	From   string `json:"_from"`
	To     string `json:"_to"`
	Since  int    `json:"since,omitempty"`
	Weight *int   `json:"weight,omitempty"`
}

func newCollection(t *testing.T) *EdgeCollection {
	t.Helper()
	ms := memserver.New(nil)
	t.Cleanup(func() { _ = ms.Close() })
	return NewEdgeCollection(executor.New(ms), "_system", "social", "knows")
}

func TestEdgeLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t)

	meta, err := c.InsertEdge(ctx, knows{Key: "ab", From: "people/a", To: "people/b", Since: 2001}, Options{}).Await(ctx)
	require.NoError(t, err)
	require.Equal(t, "knows/ab", meta.ID)
	require.Equal(t, "ab", meta.Key)

	got, err := GetEdge[knows](ctx, c, "ab", Options{}).Await(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(knows{Key: "ab", From: "people/a", To: "people/b", Since: 2001}, got); diff != "" {
		t.Fatalf("edge mismatch (-want +got):\n%s", diff)
	}

	ok, err := c.EdgeExists(ctx, "ab").Await(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	replaced, err := c.ReplaceEdge(ctx, "ab", knows{From: "people/a", To: "people/c"}, Options{IfMatch: meta.Rev}).Await(ctx)
	require.NoError(t, err)
	require.Equal(t, meta.Rev, replaced.OldRev)
	require.NotEqual(t, meta.Rev, replaced.Rev)

	keepNull := false
	updated, err := c.UpdateEdge(ctx, "ab", map[string]any{"weight": 4}, Options{KeepNull: &keepNull, WaitForSync: true}).Await(ctx)
	require.NoError(t, err)
	require.Equal(t, replaced.Rev, updated.OldRev)

	got, err = GetEdge[knows](ctx, c, "ab", Options{}).Await(ctx)
	require.NoError(t, err)
	require.Equal(t, "people/c", got.To)
	require.NotNil(t, got.Weight)
	require.Equal(t, 4, *got.Weight)

	_, err = c.DeleteEdge(ctx, "ab", Options{}).Await(ctx)
	require.NoError(t, err)

	ok, err = c.EdgeExists(ctx, "ab").Await(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEdgeFailures(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t)
	meta, err := c.InsertEdge(ctx, knows{From: "people/a", To: "people/b"}, Options{}).Await(ctx)
	require.NoError(t, err)

	t.Run("missing edge", func(t *testing.T) {
		_, err := GetEdge[knows](ctx, c, "nope", Options{}).Await(ctx)
		var de *dberr.Error
		require.ErrorAs(t, err, &de)
		require.Equal(t, dberr.Transport, de.Kind)
		require.Equal(t, http.StatusNotFound, de.Status)
		require.Equal(t, 1202, de.ErrorNum)
	})
	t.Run("stale revision", func(t *testing.T) {
		_, err := c.DeleteEdge(ctx, meta.Key, Options{IfMatch: "_0"}).Await(ctx)
		require.Equal(t, http.StatusPreconditionFailed, dberr.StatusCode(err))
	})
	t.Run("missing endpoint", func(t *testing.T) {
		_, err := c.InsertEdge(ctx, map[string]string{"_from": "people/a"}, Options{}).Await(ctx)
		require.Equal(t, http.StatusBadRequest, dberr.StatusCode(err))
	})
	t.Run("unencodable document", func(t *testing.T) {
		_, err := c.InsertEdge(ctx, map[string]any{"ch": make(chan int)}, Options{}).Await(ctx)
		require.Equal(t, dberr.Decode, dberr.KindOf(err))
	})
}

func TestRequestShape(t *testing.T) {
	mt := executor.NewMockTransport(&wire.Response{Status: http.StatusAccepted, Body: []byte(`{"edge":{"_id":"e/1","_key":"1","_rev":"_2"}}`)})
	c := NewEdgeCollection(executor.New(mt), "shop", "g 1", "e")

	keepNull := true
	_, err := c.UpdateEdge(context.Background(), "a/b", map[string]int{"x": 1}, Options{WaitForSync: true, KeepNull: &keepNull, IfMatch: "_1"}).Await(context.Background())
	require.NoError(t, err)

	calls := mt.Calls()
	require.Len(t, calls, 1)
	want := &wire.Request{
		Database: "shop",
		Method:   wire.MethodPatch,
		Path:     "/_api/gharial/g%201/edge/e/a%2Fb",
		Params:   map[string]string{"waitForSync": "true", "keepNull": "true"},
		Header:   map[string]string{"If-Match": `"_1"`},
		Body:     []byte(`{"x":1}`),
	}
	if diff := cmp.Diff(want, calls[0].Request); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}
