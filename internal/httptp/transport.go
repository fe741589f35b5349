// Package httptp sends wire requests to a database server's REST endpoint.
package httptp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hanpama/docdb/internal/executor"
	"github.com/hanpama/docdb/internal/wire"
)

// ErrResponseTooLarge is returned when a response body exceeds the
// configured limit.
var ErrResponseTooLarge = errors.New("httptp: response body too large")

// Options configures the HTTP transport.
//
// Defaults:
// - Client:           a dedicated http.Client
// - Timeout:          30s (used only if incoming context has no deadline)
// - MaxResponseBytes: unlimited
type Options struct {
	Client           *http.Client
	Timeout          time.Duration
	MaxResponseBytes int64
	Header           map[string]string
}

type Option func(*Options)

func WithHTTPClient(c *http.Client) Option { return func(o *Options) { o.Client = c } }
func WithTimeout(d time.Duration) Option   { return func(o *Options) { o.Timeout = d } }
func WithMaxResponseBytes(n int64) Option  { return func(o *Options) { o.MaxResponseBytes = n } }

// WithHeader adds headers sent with every request. Request headers win.
func WithHeader(k, v string) Option {
	return func(o *Options) {
		if o.Header == nil {
			o.Header = map[string]string{}
		}
		o.Header[k] = v
	}
}

// Transport is safe for concurrent use; connection reuse is left to the
// underlying http.Client.
type Transport struct {
	base *url.URL
	opts Options
}

var _ executor.Transport = (*Transport)(nil)

// New returns a transport for the server at baseURL, e.g.
// "http://localhost:8529".
func New(baseURL string, opts ...Option) (*Transport, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("httptp: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("httptp: base url %q: scheme must be http or https", baseURL)
	}
	o := Options{Timeout: 30 * time.Second}
	for _, f := range opts {
		f(&o)
	}
	if o.Client == nil {
		o.Client = &http.Client{}
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return &Transport{base: u, opts: o}, nil
}

// URL returns the absolute URL req is sent to.
func (t *Transport) URL(req *wire.Request) string {
	u := *t.base
	p := u.Path
	if req.Database != "" {
		p += "/_db/" + req.Database
	}
	u.Path = p + req.Path
	u.RawPath = ""
	if len(req.Params) > 0 {
		q := url.Values{}
		for k, v := range req.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (t *Transport) Send(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if _, ok := ctx.Deadline(); !ok && t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, string(req.Method), t.URL(req), body)
	if err != nil {
		return nil, fmt.Errorf("httptp: build request: %w", err)
	}
	for k, v := range t.opts.Header {
		hr.Header.Set(k, v)
	}
	for k, v := range req.Header {
		hr.Header.Set(k, v)
	}
	if body != nil && hr.Header.Get("Content-Type") == "" {
		hr.Header.Set("Content-Type", "application/json")
	}

	res, err := t.opts.Client.Do(hr)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	reader := io.Reader(res.Body)
	if t.opts.MaxResponseBytes > 0 {
		reader = io.LimitReader(res.Body, t.opts.MaxResponseBytes+1)
	}
	b, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("httptp: read response: %w", err)
	}
	if t.opts.MaxResponseBytes > 0 && int64(len(b)) > t.opts.MaxResponseBytes {
		return nil, ErrResponseTooLarge
	}

	out := &wire.Response{Status: res.StatusCode}
	if len(res.Header) > 0 {
		out.Header = make(map[string]string, len(res.Header))
		for k, v := range res.Header {
			out.Header[k] = v[0]
		}
	}
	if len(b) > 0 {
		out.Body = b
	}
	return out, nil
}
