// Package retry wraps a Transport with a backoff policy for requests that
// never produced a response.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"

	"github.com/hanpama/docdb/internal/executor"
	"github.com/hanpama/docdb/internal/wire"
)

// Options configures the retry decorator.
//
// Defaults:
// - MaxTries:  3 (the first attempt included)
// - BackOff:   exponential, starting at 100ms
// - Retryable: SafeToRepeat
type Options struct {
	MaxTries  uint
	BackOff   func() backoff.BackOff
	Retryable func(req *wire.Request, err error) bool
}

type Option func(*Options)

func WithMaxTries(n uint) Option { return func(o *Options) { o.MaxTries = n } }

// WithBackOff sets a factory for the policy of one Send; a fresh policy is
// needed per call because backoff.BackOff is stateful.
func WithBackOff(f func() backoff.BackOff) Option { return func(o *Options) { o.BackOff = f } }

func WithRetryable(f func(req *wire.Request, err error) bool) Option {
	return func(o *Options) { o.Retryable = f }
}

func defaultOptions() *Options {
	return &Options{
		MaxTries: 3,
		BackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
		Retryable: SafeToRepeat,
	}
}

// SafeToRepeat allows reads and cursor creation to be repeated. A repeated
// cursor creation can at worst leave an unused server cursor behind until
// its TTL runs out. Batch fetches and writes are never repeated, since the
// first attempt may have reached the server.
func SafeToRepeat(req *wire.Request, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch req.Method {
	case wire.MethodGet, wire.MethodHead:
		return true
	case wire.MethodPost:
		return req.Path == "/_api/cursor"
	}
	return false
}

// Transport retries failed Sends of the wrapped transport. Responses, error
// statuses included, are returned as they are.
type Transport struct {
	next executor.Transport
	opts *Options
}

var _ executor.Transport = (*Transport)(nil)

func New(next executor.Transport, opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if o.MaxTries == 0 {
		o.MaxTries = 1
	}
	return &Transport{next: next, opts: o}
}

func (t *Transport) Send(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	log := logr.FromContextOrDiscard(ctx)
	attempt := 0
	op := func() (*wire.Response, error) {
		attempt++
		resp, err := t.next.Send(ctx, req)
		if err != nil && !t.opts.Retryable(req, err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(t.opts.BackOff()),
		backoff.WithMaxTries(t.opts.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.V(1).Info("retrying request", "method", req.Method, "path", req.Path, "attempt", attempt, "wait", wait, "error", err.Error())
		}),
	)
}
