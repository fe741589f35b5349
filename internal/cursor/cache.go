package cursor

import (
	"context"

	"github.com/hanpama/docdb/internal/dberr"
	"github.com/hanpama/docdb/internal/executor"
	"github.com/hanpama/docdb/internal/wire"
)

const cachePropertiesPath = "/_api/query-cache/properties"

// CacheMode is the server's query result cache mode.
type CacheMode string

const (
	CacheOff    CacheMode = "off"
	CacheOn     CacheMode = "on"
	CacheDemand CacheMode = "demand"
)

// CacheProperties configure the server's query result cache.
type CacheProperties struct {
	Mode       CacheMode `json:"mode"`
	MaxResults int64     `json:"maxResults,omitempty"`
}

// GetCacheProperties reads the query cache configuration of database.
func GetCacheProperties(ctx context.Context, exec *executor.Executor, database string) *executor.Future[CacheProperties] {
	req := &wire.Request{Database: database, Method: wire.MethodGet, Path: cachePropertiesPath}
	return executor.Execute(ctx, exec, req, executor.Value[CacheProperties]())
}

// SetCacheProperties changes the query cache configuration of database and
// returns the configuration now in effect.
func SetCacheProperties(ctx context.Context, exec *executor.Executor, database string, p CacheProperties) *executor.Future[CacheProperties] {
	body, err := exec.Codec().Encode(p)
	if err != nil {
		return executor.Resolved(CacheProperties{}, dberr.NewDecode(err))
	}
	req := &wire.Request{Database: database, Method: wire.MethodPut, Path: cachePropertiesPath, Body: body}
	return executor.Execute(ctx, exec, req, executor.Value[CacheProperties]())
}
