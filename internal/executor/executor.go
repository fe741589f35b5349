package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/semaphore"

	"github.com/hanpama/docdb/internal/codec"
	"github.com/hanpama/docdb/internal/dberr"
	eventbus "github.com/hanpama/docdb/internal/eventbus"
	events "github.com/hanpama/docdb/internal/events"
	reqid "github.com/hanpama/docdb/internal/reqid"
	"github.com/hanpama/docdb/internal/wire"
)

// Executor dispatches requests to a Transport and decodes their responses.
// It keeps no per-call state and is safe for concurrent use.
type Executor struct {
	transport Transport
	codec     codec.Codec
	inflight  *semaphore.Weighted
	bus       *eventbus.Bus
}

type Option func(*Executor)

// WithCodec replaces the default JSON codec.
func WithCodec(c codec.Codec) Option { return func(e *Executor) { e.codec = c } }

// WithMaxInFlight bounds the number of requests handed to the transport at
// the same time. Zero or negative means unbounded.
func WithMaxInFlight(n int64) Option {
	return func(e *Executor) {
		if n > 0 {
			e.inflight = semaphore.NewWeighted(n)
		}
	}
}

// WithEventBus publishes request events to b instead of the global bus.
func WithEventBus(b *eventbus.Bus) Option { return func(e *Executor) { e.bus = b } }

func New(transport Transport, opts ...Option) *Executor {
	e := &Executor{transport: transport, codec: codec.JSON}
	for _, f := range opts {
		f(e)
	}
	return e
}

// Codec returns the codec used for request and response payloads.
func (e *Executor) Codec() codec.Codec { return e.codec }

// Execute submits req and returns a future for its decoded result. It never
// blocks the caller; the request is sent from a new goroutine and the future
// is resolved exactly once with either the decoded value or a *dberr.Error.
//
// req is copied before submission, so the caller may reuse it.
func Execute[T any](ctx context.Context, e *Executor, req *wire.Request, s Strategy[T]) *Future[T] {
	if s.Decode == nil {
		var zero T
		return Resolved(zero, errNoDecoder)
	}
	f := newFuture[T]()
	r := req.Clone()
	go func() {
		v, err := run(ctx, e, r, s)
		f.resolve(Outcome[T]{Value: v, Err: err})
	}()
	return f
}

var errNoDecoder = dberr.NewDecode(errors.New("executor: strategy has no decoder"))

// Do is the synchronous form of Execute.
func Do[T any](ctx context.Context, e *Executor, req *wire.Request, s Strategy[T]) (T, error) {
	return Execute(ctx, e, req, s).Await(ctx)
}

func run[T any](ctx context.Context, e *Executor, req *wire.Request, s Strategy[T]) (v T, err error) {
	ctx, rid := reqid.NewContext(ctx)
	log := logr.FromContextOrDiscard(ctx).WithValues("requestID", rid, "method", req.Method, "path", req.Path)

	start := time.Now()
	status := 0
	eventbus.Emit(ctx, e.Events(), events.RequestStart{Database: req.Database, Method: string(req.Method), Path: req.Path})
	defer func() {
		eventbus.Emit(ctx, e.Events(), events.RequestFinish{
			Database: req.Database,
			Method:   string(req.Method),
			Path:     req.Path,
			Status:   status,
			Err:      err,
			Duration: time.Since(start),
		})
		if err != nil {
			log.V(1).Info("request failed", "status", status, "error", err.Error())
		}
	}()

	resp, err := e.send(ctx, req)
	if err != nil {
		return v, dberr.NewTransport(err)
	}
	if resp == nil {
		return v, dberr.NewTransport(errors.New("executor: transport returned no response"))
	}
	status = resp.Status
	if !s.accepts(resp.Status) {
		return v, e.statusError(resp)
	}
	v, err = s.Decode(e.codec, resp)
	if err != nil {
		var de *dberr.Error
		if errors.As(err, &de) {
			return v, err
		}
		return v, dberr.NewDecode(err)
	}
	return v, nil
}

func (e *Executor) send(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if e.inflight != nil {
		if err := e.inflight.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer e.inflight.Release(1)
	}
	return e.transport.Send(ctx, req)
}

// Events returns the bus request and cursor events are published to, or nil.
func (e *Executor) Events() *eventbus.Bus {
	if e.bus != nil {
		return e.bus
	}
	return eventbus.Global()
}

// serverError is the error body the server sends with non-success statuses.
type serverError struct {
	Error        bool   `json:"error"`
	Code         int    `json:"code"`
	ErrorNum     int    `json:"errorNum"`
	ErrorMessage string `json:"errorMessage"`
}

func (e *Executor) statusError(resp *wire.Response) error {
	out := &dberr.Error{Kind: dberr.Transport, Status: resp.Status}
	var body serverError
	if len(resp.Body) > 0 && e.codec.Decode(resp.Body, &body) == nil {
		out.ErrorNum = body.ErrorNum
		out.Message = body.ErrorMessage
	}
	if out.Message == "" {
		out.Message = fmt.Sprintf("unexpected status %d", resp.Status)
	}
	if out.ErrorNum == dberr.ErrorNumCursorNotFound {
		out.Kind = dberr.Expired
	}
	return out
}
