package cursor

import (
	"context"
	"fmt"
	"maps"
	"math"
	"time"

	"github.com/hanpama/docdb/internal/dberr"
	"github.com/hanpama/docdb/internal/executor"
	"github.com/hanpama/docdb/internal/wire"
)

const cursorPath = "/_api/cursor"

// Options control how the server builds and pages a query result.
type Options struct {
	// Count asks the server for the total number of result items.
	Count bool
	// BatchSize is the maximum number of items per batch. Zero leaves the
	// server default. It cannot be changed once the cursor exists.
	BatchSize int
	// TTL is how long the server keeps an idle cursor. Zero leaves the server
	// default. Sub-second values are rounded up to one second.
	TTL time.Duration
	// Cache allows the result to be served from and stored in the query cache.
	Cache bool
	// FullCount makes the server report, in Stats.FullCount, how many items
	// matched before the last top-level limit was applied.
	FullCount bool
	// MemoryLimit caps the memory the query may use, in bytes.
	MemoryLimit int64
}

// Query describes one query submission.
type Query struct {
	Database string
	Query    string
	BindVars map[string]any
	Options  Options
	// Header is sent with the query and with every follow-up request of the
	// resulting cursor.
	Header map[string]string
}

type queryBody struct {
	Query       string         `json:"query"`
	BindVars    map[string]any `json:"bindVars,omitempty"`
	Count       bool           `json:"count,omitempty"`
	BatchSize   int            `json:"batchSize,omitempty"`
	TTL         int64          `json:"ttl,omitempty"`
	Cache       bool           `json:"cache,omitempty"`
	MemoryLimit int64          `json:"memoryLimit,omitempty"`
	Options     *queryOptions  `json:"options,omitempty"`
}

type queryOptions struct {
	FullCount bool `json:"fullCount,omitempty"`
}

func ttlSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// Request builds the cursor creation request for q.
func (q Query) Request(exec *executor.Executor) (*wire.Request, error) {
	body := queryBody{
		Query:       q.Query,
		BindVars:    q.BindVars,
		Count:       q.Options.Count,
		BatchSize:   q.Options.BatchSize,
		TTL:         ttlSeconds(q.Options.TTL),
		Cache:       q.Options.Cache,
		MemoryLimit: q.Options.MemoryLimit,
	}
	if q.Options.FullCount {
		body.Options = &queryOptions{FullCount: true}
	}
	b, err := exec.Codec().Encode(body)
	if err != nil {
		return nil, fmt.Errorf("cursor: encode query: %w", err)
	}
	return &wire.Request{
		Database: q.Database,
		Method:   wire.MethodPost,
		Path:     cursorPath,
		Header:   maps.Clone(q.Header),
		Body:     b,
	}, nil
}

// Run submits q and returns a future for the cursor over its result. Items
// are decoded into T as they are read.
func Run[T any](ctx context.Context, exec *executor.Executor, q Query) *executor.Future[*Cursor[T]] {
	req, err := q.Request(exec)
	if err != nil {
		return executor.Resolved[*Cursor[T]](nil, dberr.NewDecode(err))
	}
	return executor.Execute(ctx, exec, req, Strategy[T](ctx, exec, req, q.Options.TTL))
}
