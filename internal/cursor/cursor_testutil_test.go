package cursor

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	eventbus "github.com/hanpama/docdb/internal/eventbus"
	events "github.com/hanpama/docdb/internal/events"
	"github.com/hanpama/docdb/internal/executor"
	"github.com/hanpama/docdb/internal/wire"
)

// batch builds a cursor response carrying items and the given paging state.
func batch(t *testing.T, status int, id string, hasMore bool, items []any, extra map[string]any) *wire.Response {
	t.Helper()
	body := map[string]any{
		"error":   false,
		"code":    status,
		"result":  items,
		"hasMore": hasMore,
		"cached":  false,
	}
	if id != "" {
		body["id"] = id
	}
	for k, v := range extra {
		body[k] = v
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &wire.Response{Status: status, Body: b}
}

func errorResponse(t *testing.T, status, errorNum int, msg string) *wire.Response {
	t.Helper()
	b, _ := json.Marshal(map[string]any{"error": true, "code": status, "errorNum": errorNum, "errorMessage": msg})
	return &wire.Response{Status: status, Body: b}
}

// items returns ["<prefix>0", "<prefix>1", ...].
func items(prefix string, from, n int) []any {
	out := make([]any, n)
	for i := range n {
		out[i] = fmt.Sprintf("%s%d", prefix, from+i)
	}
	return out
}

// harness wires a MockTransport into an executor with a private event bus and
// records cursor release outcomes.
type harness struct {
	mt       *executor.MockTransport
	exec     *executor.Executor
	releases chan events.CursorRelease
}

func newHarness(responses ...*wire.Response) *harness {
	bus := eventbus.New()
	h := &harness{
		mt:       executor.NewMockTransport(responses...),
		releases: make(chan events.CursorRelease, 8),
	}
	eventbus.Subscribe(bus, func(_ context.Context, e events.CursorRelease) { h.releases <- e })
	h.exec = executor.New(h.mt, executor.WithEventBus(bus))
	return h
}

func (h *harness) run(t *testing.T, q Query) *Cursor[string] {
	t.Helper()
	if q.Query == "" {
		q.Query = "FOR i IN db_test RETURN i._id"
	}
	cur, err := Run[string](context.Background(), h.exec, q).Await(context.Background())
	if err != nil {
		t.Fatalf("run query: %v", err)
	}
	return cur
}

// paths lists "<METHOD> <path>" for every recorded call.
func (h *harness) paths() []string {
	var out []string
	for _, c := range h.mt.Calls() {
		out = append(out, string(c.Request.Method)+" "+c.Request.Path)
	}
	return out
}

