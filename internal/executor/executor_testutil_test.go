package executor

import (
	"encoding/json"
	"testing"

	"github.com/hanpama/docdb/internal/wire"
)

// jsonResponse builds a response whose body is v encoded as JSON.
func jsonResponse(t *testing.T, status int, v any) *wire.Response {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &wire.Response{Status: status, Body: b}
}
