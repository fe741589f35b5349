// Package server exposes a Backend, typically the in-process memserver, over
// the database's REST surface.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	eventbus "github.com/hanpama/docdb/internal/eventbus"
	events "github.com/hanpama/docdb/internal/events"
	reqid "github.com/hanpama/docdb/internal/reqid"
	"github.com/hanpama/docdb/internal/wire"
)

// Backend answers wire requests. Every outcome is a response.
type Backend interface {
	Handle(ctx context.Context, req *wire.Request) *wire.Response
}

// DefaultDatabase is addressed by paths without a /_db/{name} prefix.
const DefaultDatabase = "_system"

// Handler is an http.Handler that maps REST calls to Backend requests.
// Paths of the form /_db/{name}/rest select a database.
type Handler struct {
	backend Backend
	opt     Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// Logger is attached to every request context.
	Logger logr.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithLogger(l logr.Logger) Option    { return func(o *Options) { o.Logger = l } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

func New(backend Backend, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second, Logger: logr.Discard()}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{backend: backend, opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.NewContext(ctx)
	ctx = logr.NewContext(ctx, h.opt.Logger.WithValues("requestID", rid))
	w.Header().Set("X-Request-Id", rid)

	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Method: r.Method, Path: r.URL.Path})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Method: r.Method, Path: r.URL.Path, Status: status, Duration: time.Since(start)})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}
	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	req, err := parseRequest(r, h.opt.MaxBodyBytes)
	if err != nil {
		status = err.status
		writeError(w, status, err.msg)
		return
	}

	resp := h.backend.Handle(ctx, req)
	status = resp.Status
	for k, v := range resp.Header {
		w.Header().Set(k, v)
	}
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}

// ------------------ Request parsing ------------------

type requestError struct {
	status int
	msg    string
}

func parseRequest(r *http.Request, maxBody int64) (*wire.Request, *requestError) {
	db, path := splitDatabase(r.URL.Path)
	req := &wire.Request{
		Database: db,
		Method:   wire.Method(r.Method),
		Path:     path,
	}
	if q := r.URL.Query(); len(q) > 0 {
		req.Params = make(map[string]string, len(q))
		for k, v := range q {
			req.Params[k] = v[0]
		}
	}
	if len(r.Header) > 0 {
		req.Header = make(map[string]string, len(r.Header))
		for k, v := range r.Header {
			req.Header[k] = v[0]
		}
	}

	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &requestError{http.StatusBadRequest, "failed to read body"}
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return nil, &requestError{http.StatusRequestEntityTooLarge, "body too large"}
	}
	if len(body) > 0 {
		req.Body = body
	}
	return req, nil
}

func splitDatabase(p string) (db, rest string) {
	after, ok := strings.CutPrefix(p, "/_db/")
	if !ok {
		return DefaultDatabase, p
	}
	db, rest, _ = strings.Cut(after, "/")
	return db, "/" + rest
}

// ------------------ Response formatting ------------------

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":        true,
		"code":         status,
		"errorNum":     status,
		"errorMessage": msg,
	})
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,HEAD,POST,PUT,PATCH,DELETE,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
