// Package graph provides request builders for the edges of a named graph.
// Each call returns a future resolved by the executor.
package graph

import (
	"context"
	"net/url"
	"strconv"

	"github.com/hanpama/docdb/internal/dberr"
	"github.com/hanpama/docdb/internal/executor"
	"github.com/hanpama/docdb/internal/wire"
)

// DocumentMeta identifies a stored edge revision.
type DocumentMeta struct {
	ID     string `json:"_id"`
	Key    string `json:"_key"`
	Rev    string `json:"_rev"`
	OldRev string `json:"_oldRev,omitempty"`
}

// Options tune a single edge operation. Fields an operation does not use
// are ignored.
type Options struct {
	// WaitForSync waits until the change is durable (insert, replace,
	// update, delete).
	WaitForSync bool
	// KeepNull, when set to false, removes attributes that an update sets
	// to null instead of storing null (update).
	KeepNull *bool
	// IfMatch makes the operation fail with status 412 unless the stored
	// revision equals it (get, replace, update, delete).
	IfMatch string
}

func (o Options) apply(req *wire.Request) {
	if o.WaitForSync {
		req.Params = map[string]string{"waitForSync": "true"}
	}
	if o.KeepNull != nil {
		if req.Params == nil {
			req.Params = map[string]string{}
		}
		req.Params["keepNull"] = strconv.FormatBool(*o.KeepNull)
	}
	if o.IfMatch != "" {
		req.Header = map[string]string{"If-Match": strconv.Quote(o.IfMatch)}
	}
}

// EdgeCollection addresses one edge collection of a graph.
type EdgeCollection struct {
	exec       *executor.Executor
	database   string
	graph      string
	collection string
}

func NewEdgeCollection(exec *executor.Executor, database, graph, collection string) *EdgeCollection {
	return &EdgeCollection{exec: exec, database: database, graph: graph, collection: collection}
}

func (c *EdgeCollection) Name() string { return c.collection }

func (c *EdgeCollection) path(key string) string {
	p := "/_api/gharial/" + url.PathEscape(c.graph) + "/edge/" + url.PathEscape(c.collection)
	if key != "" {
		p += "/" + url.PathEscape(key)
	}
	return p
}

func (c *EdgeCollection) request(method wire.Method, key string, opts Options) *wire.Request {
	req := &wire.Request{Database: c.database, Method: method, Path: c.path(key)}
	opts.apply(req)
	return req
}

func (c *EdgeCollection) withBody(req *wire.Request, v any) (*wire.Request, error) {
	b, err := c.exec.Codec().Encode(v)
	if err != nil {
		return nil, dberr.NewDecode(err)
	}
	req.Body = b
	return req, nil
}

// InsertEdge stores edge, which must carry _from and _to.
func (c *EdgeCollection) InsertEdge(ctx context.Context, edge any, opts Options) *executor.Future[DocumentMeta] {
	req, err := c.withBody(c.request(wire.MethodPost, "", opts), edge)
	if err != nil {
		return executor.Resolved(DocumentMeta{}, err)
	}
	return executor.Execute(ctx, c.exec, req, executor.Field[DocumentMeta]("edge"))
}

// GetEdge reads the edge with the given key into T.
func GetEdge[T any](ctx context.Context, c *EdgeCollection, key string, opts Options) *executor.Future[T] {
	return executor.Execute(ctx, c.exec, c.request(wire.MethodGet, key, opts), executor.Field[T]("edge"))
}

// ReplaceEdge replaces the whole edge document.
func (c *EdgeCollection) ReplaceEdge(ctx context.Context, key string, edge any, opts Options) *executor.Future[DocumentMeta] {
	req, err := c.withBody(c.request(wire.MethodPut, key, opts), edge)
	if err != nil {
		return executor.Resolved(DocumentMeta{}, err)
	}
	return executor.Execute(ctx, c.exec, req, executor.Field[DocumentMeta]("edge"))
}

// UpdateEdge merges patch into the stored edge.
func (c *EdgeCollection) UpdateEdge(ctx context.Context, key string, patch any, opts Options) *executor.Future[DocumentMeta] {
	req, err := c.withBody(c.request(wire.MethodPatch, key, opts), patch)
	if err != nil {
		return executor.Resolved(DocumentMeta{}, err)
	}
	return executor.Execute(ctx, c.exec, req, executor.Field[DocumentMeta]("edge"))
}

func (c *EdgeCollection) DeleteEdge(ctx context.Context, key string, opts Options) *executor.Future[struct{}] {
	return executor.Execute(ctx, c.exec, c.request(wire.MethodDelete, key, opts), executor.Discard())
}

// EdgeExists resolves to false when the server answers 404.
func (c *EdgeCollection) EdgeExists(ctx context.Context, key string) *executor.Future[bool] {
	return executor.Execute(ctx, c.exec, c.request(wire.MethodHead, key, Options{}), executor.Exists())
}
