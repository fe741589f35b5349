package cursor

import (
	"context"
	"errors"
	"iter"
	"maps"
	"net/url"
	"slices"
	"time"

	"github.com/go-logr/logr"

	"github.com/hanpama/docdb/internal/codec"
	"github.com/hanpama/docdb/internal/dberr"
	eventbus "github.com/hanpama/docdb/internal/eventbus"
	events "github.com/hanpama/docdb/internal/events"
	"github.com/hanpama/docdb/internal/executor"
	"github.com/hanpama/docdb/internal/wire"
)

// Cursor is a pull-based view over a query result that spans one or more
// server batches.
//
// At most one batch is buffered. When the buffer runs dry and the server
// holds more, the next read fetches exactly one further batch; batches are
// never requested ahead of consumption.
//
// A Cursor is not safe for concurrent use. Next, HasNext, ForEachRemaining
// and the sequence from All all advance the same state.
type Cursor[T any] struct {
	exec     *executor.Executor
	ctx      context.Context
	database string
	header   map[string]string

	// id is set only while the server holds unconsumed batches.
	id      string
	buffer  []codec.Raw
	hasMore bool
	closed  bool

	count    *int64
	stats    Stats
	warnings []Warning
	cached   bool
	ttl      time.Duration
}

// Strategy returns the executor strategy that turns the response to a cursor
// creation request into the first page of a Cursor. ctx is kept, without its
// cancellation, for the cursor's release request and logging.
func Strategy[T any](ctx context.Context, exec *executor.Executor, req *wire.Request, ttl time.Duration) executor.Strategy[*Cursor[T]] {
	return executor.Strategy[*Cursor[T]]{Decode: func(c codec.Codec, resp *wire.Response) (*Cursor[T], error) {
		var b Batch
		if err := c.Decode(resp.Body, &b); err != nil {
			return nil, err
		}
		if b.HasMore && b.ID == "" {
			return nil, errors.New("cursor: server reported more results without a cursor id")
		}
		cur := &Cursor[T]{
			exec:     exec,
			ctx:      context.WithoutCancel(ctx),
			database: req.Database,
			header:   maps.Clone(req.Header),
			cached:   b.Cached,
			ttl:      ttl,
		}
		cur.apply(&b)
		return cur, nil
	}}
}

func (c *Cursor[T]) apply(b *Batch) {
	c.buffer = b.Result
	c.hasMore = b.HasMore
	if b.HasMore {
		if b.ID != "" {
			c.id = b.ID
		}
	} else {
		c.id = ""
	}
	if b.Count != nil {
		n := *b.Count
		c.count = &n
	}
	if b.Extra != nil {
		if b.Extra.Stats != nil {
			c.stats = *b.Extra.Stats
		}
		c.warnings = append(c.warnings, b.Extra.Warnings...)
	}
	eventbus.Emit(c.ctx, c.exec.Events(), events.CursorBatch{
		CursorID: b.ID,
		Items:    len(b.Result),
		HasMore:  b.HasMore,
		Cached:   b.Cached,
	})
}

var (
	errClosed    = &dberr.Error{Kind: dberr.Closed, Message: "cursor is closed"}
	errExhausted = &dberr.Error{Kind: dberr.Exhausted, Message: "no more results"}
)

// HasNext reports whether Next can return another item. A true answer with
// an empty buffer promises a fetch, not its success.
func (c *Cursor[T]) HasNext() (bool, error) {
	if c.closed {
		return false, errClosed
	}
	return len(c.buffer) > 0 || c.hasMore, nil
}

// Next returns the next item in server order, fetching one batch if the
// buffer is empty. A failed fetch leaves the cursor unchanged, so Next may be
// called again after a transient transport failure. An item that fails to
// decode is consumed.
func (c *Cursor[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if c.closed {
		return zero, errClosed
	}
	if len(c.buffer) == 0 {
		if !c.hasMore {
			return zero, errExhausted
		}
		if err := c.fetch(ctx); err != nil {
			return zero, err
		}
		if len(c.buffer) == 0 {
			// an empty page ends the result even if the server claims more
			c.hasMore = false
			return zero, errExhausted
		}
	}
	raw := c.buffer[0]
	c.buffer[0] = nil
	c.buffer = c.buffer[1:]

	var v T
	if err := c.exec.Codec().Decode(raw, &v); err != nil {
		return zero, dberr.NewDecode(err)
	}
	return v, nil
}

func (c *Cursor[T]) fetch(ctx context.Context) error {
	req := &wire.Request{
		Database: c.database,
		Method:   wire.MethodPut,
		Path:     cursorPath + "/" + url.PathEscape(c.id),
		Header:   c.header,
	}
	// The server advances its cursor as soon as it answers, so a batch that
	// arrives after ctx ends is still applied. ctx reaches the transport and
	// bounds the call there.
	f := executor.Execute(ctx, c.exec, req, executor.Value[Batch]())
	<-f.Done()
	o, _ := f.Outcome()
	if o.Err != nil {
		return o.Err
	}
	c.apply(&o.Value)
	return nil
}

// ForEachRemaining calls fn for every remaining item in order. It stops at
// the first fetch, decode or fn error and returns it.
func (c *Cursor[T]) ForEachRemaining(ctx context.Context, fn func(T) error) error {
	for {
		ok, err := c.HasNext()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		v, err := c.Next(ctx)
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}

// All returns a single-pass sequence over the remaining items. It reads
// through the cursor itself; breaking out of the loop leaves the rest for
// later reads. A failure is yielded once, with the zero item, and ends the
// sequence.
func (c *Cursor[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			ok, err := c.HasNext()
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !ok {
				return
			}
			v, err := c.Next(ctx)
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// AllRemaining drains the cursor into a slice.
func (c *Cursor[T]) AllRemaining(ctx context.Context) ([]T, error) {
	var out []T
	err := c.ForEachRemaining(ctx, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// Close releases the cursor. If the server still holds batches, a release
// request is sent without waiting for it; its failure is logged and
// otherwise ignored. Close is idempotent and always returns nil.
func (c *Cursor[T]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.buffer = nil
	if c.id == "" {
		return nil
	}
	id := c.id
	c.id = ""
	c.hasMore = false

	req := &wire.Request{
		Database: c.database,
		Method:   wire.MethodDelete,
		Path:     cursorPath + "/" + url.PathEscape(id),
		Header:   c.header,
	}
	ctx, exec := c.ctx, c.exec
	executor.Execute(ctx, exec, req, executor.Discard()).Then(func(o executor.Outcome[struct{}]) {
		if o.Err != nil {
			logr.FromContextOrDiscard(ctx).V(1).Info("cursor release failed", "cursorID", id, "error", o.Err.Error())
		}
		eventbus.Emit(ctx, exec.Events(), events.CursorRelease{CursorID: id, Err: o.Err})
	})
	return nil
}

// ID returns the server cursor id, or "" once the server holds no more
// batches or the cursor is closed.
func (c *Cursor[T]) ID() string { return c.id }

// Count returns the total result count when the query asked for it.
func (c *Cursor[T]) Count() (int64, bool) {
	if c.count == nil {
		return 0, false
	}
	return *c.count, true
}

// Stats returns the latest execution statistics the server reported.
func (c *Cursor[T]) Stats() Stats { return c.stats }

// Warnings returns every warning received so far, in arrival order.
func (c *Cursor[T]) Warnings() []Warning { return slices.Clone(c.warnings) }

// Cached reports whether the first batch was served from the query cache.
func (c *Cursor[T]) Cached() bool { return c.cached }

// TTL returns the idle time-to-live requested for the server cursor.
func (c *Cursor[T]) TTL() time.Duration { return c.ttl }
