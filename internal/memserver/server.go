// Package memserver is an in-process database server speaking the cursor,
// query cache and graph edge REST endpoints. It serves fixed query results
// from fixtures and is usable directly as a Transport, behind the REST front
// in internal/server, or as a gRPC gateway service.
package memserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/jellydator/ttlcache/v3"

	"github.com/hanpama/docdb/internal/codec"
	"github.com/hanpama/docdb/internal/wire"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("memserver: closed")

// Options configures a Server. Zero values mean defaults.
type Options struct {
	// DefaultTTL applies to cursors created without a ttl. Default 30s.
	DefaultTTL time.Duration
	// DefaultBatchSize applies to queries without a batchSize. Default 1000.
	DefaultBatchSize int
	// TTLUnit is the duration of one ttl unit in a query request. Default 1s.
	TTLUnit time.Duration
}

type Option func(*Options)

func WithDefaultTTL(d time.Duration) Option { return func(o *Options) { o.DefaultTTL = d } }
func WithDefaultBatchSize(n int) Option     { return func(o *Options) { o.DefaultBatchSize = n } }
func WithTTLUnit(d time.Duration) Option    { return func(o *Options) { o.TTLUnit = d } }

func defaultOptions() *Options {
	return &Options{
		DefaultTTL:       30 * time.Second,
		DefaultBatchSize: 1000,
		TTLUnit:          time.Second,
	}
}

// Server holds fixtures, open cursors, the query result cache and edge
// collections. It is safe for concurrent use.
type Server struct {
	opts     *Options
	fixtures map[string]Fixture

	cursors *ttlcache.Cache[string, *serverCursor]
	nextID  atomic.Uint64

	mu        sync.Mutex
	cache     CacheProperties
	results   map[string]*cachedResult
	resultSeq uint64
	edges     map[string]map[string]map[string]any
	revision  uint64

	closed atomic.Bool
}

// New creates a Server answering the given fixtures. Cursor expiry runs in a
// background goroutine until Close.
func New(fixtures []Fixture, opts ...Option) *Server {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	s := &Server{
		opts:     o,
		fixtures: make(map[string]Fixture, len(fixtures)),
		cursors: ttlcache.New(
			ttlcache.WithTTL[string, *serverCursor](o.DefaultTTL),
		),
		cache:   CacheProperties{Mode: cacheOff, MaxResults: 128},
		results: make(map[string]*cachedResult),
		edges:   make(map[string]map[string]map[string]any),
	}
	for _, f := range fixtures {
		s.fixtures[normalizeQuery(f.Query)] = f
	}
	go s.cursors.Start()
	return s
}

// Close stops cursor expiry and makes Send fail. It is idempotent.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cursors.Stop()
	s.cursors.DeleteAll()
	return nil
}

// OpenCursors returns the number of cursors the server currently holds.
func (s *Server) OpenCursors() int {
	n := 0
	for _, it := range s.cursors.Items() {
		if !it.IsExpired() {
			n++
		}
	}
	return n
}

// Send implements the executor's Transport interface.
func (s *Server) Send(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Handle(ctx, req), nil
}

// Handle answers req. Every outcome, including unknown routes, is a response.
func (s *Server) Handle(ctx context.Context, req *wire.Request) *wire.Response {
	log := logr.FromContextOrDiscard(ctx)
	resp := s.route(req)
	log.V(1).Info("handled", "database", req.Database, "method", req.Method, "path", req.Path, "status", resp.Status)
	return resp
}

func (s *Server) route(req *wire.Request) *wire.Response {
	parts := strings.Split(strings.Trim(req.Path, "/"), "/")
	switch {
	case len(parts) >= 2 && parts[0] == "_api" && parts[1] == "cursor":
		switch {
		case len(parts) == 2 && req.Method == wire.MethodPost:
			return s.createCursor(req)
		case len(parts) == 3 && req.Method == wire.MethodPut:
			return s.nextBatch(parts[2])
		case len(parts) == 3 && req.Method == wire.MethodDelete:
			return s.deleteCursor(parts[2])
		}
		return methodNotAllowed()
	case len(parts) == 3 && parts[0] == "_api" && parts[1] == "query-cache" && parts[2] == "properties":
		switch req.Method {
		case wire.MethodGet:
			return s.getCacheProperties()
		case wire.MethodPut:
			return s.putCacheProperties(req)
		}
		return methodNotAllowed()
	case len(parts) >= 5 && parts[0] == "_api" && parts[1] == "gharial" && parts[3] == "edge":
		return s.routeEdge(req, parts[2], parts[4:])
	}
	return errorResponse(http.StatusNotFound, errorNumNotFound, "unknown path "+req.Path)
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

const (
	errorNumBadParameter     = 10
	errorNumNotFound         = 404
	errorNumHTTPMethod       = 405
	errorNumConflict         = 1200
	errorNumDocumentNotFound = 1202
	errorNumEdgeAttribute    = 1233
	errorNumQueryParse       = 1501
	errorNumCursorNotFound   = 1600
)

type errorBody struct {
	Error        bool   `json:"error"`
	Code         int    `json:"code"`
	ErrorNum     int    `json:"errorNum"`
	ErrorMessage string `json:"errorMessage"`
}

func errorResponse(status, num int, msg string) *wire.Response {
	return jsonResponse(status, errorBody{Error: true, Code: status, ErrorNum: num, ErrorMessage: msg})
}

func methodNotAllowed() *wire.Response {
	return errorResponse(http.StatusMethodNotAllowed, errorNumHTTPMethod, "method not supported")
}

func jsonResponse(status int, v any) *wire.Response {
	b, err := codec.JSON.Encode(v)
	if err != nil {
		return &wire.Response{Status: http.StatusInternalServerError}
	}
	return &wire.Response{
		Status: status,
		Header: map[string]string{"Content-Type": codec.JSON.ContentType()},
		Body:   b,
	}
}
