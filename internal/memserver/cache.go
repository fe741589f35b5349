package memserver

import (
	"net/http"

	"github.com/hanpama/docdb/internal/codec"
	"github.com/hanpama/docdb/internal/wire"
)

const (
	cacheOff    = "off"
	cacheOn     = "on"
	cacheDemand = "demand"
)

// CacheProperties is the query result cache configuration.
type CacheProperties struct {
	Mode       string `json:"mode"`
	MaxResults int64  `json:"maxResults"`
}

type cachedResult struct {
	rows []codec.Raw
	seq  uint64
}

// cacheable follows the server semantics: mode "on" caches unless the query
// opts out, mode "demand" only when it opts in.
func (s *Server) cacheable(q queryRequest) bool {
	s.mu.Lock()
	mode := s.cache.Mode
	s.mu.Unlock()
	switch mode {
	case cacheOn:
		return q.Cache == nil || *q.Cache
	case cacheDemand:
		return q.Cache != nil && *q.Cache
	}
	return false
}

func resultKey(query string, bindVars map[string]any) string {
	if len(bindVars) == 0 {
		return query
	}
	// map keys are encoded in sorted order
	b, err := codec.JSON.Encode(bindVars)
	if err != nil {
		return query
	}
	return query + "\x00" + string(b)
}

func (s *Server) cachedRows(key string) ([]codec.Raw, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[key]
	if !ok {
		return nil, false
	}
	return r.rows, true
}

func (s *Server) storeRows(key string, rows []codec.Raw) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.MaxResults > 0 && int64(len(s.results)) >= s.cache.MaxResults {
		// evict the oldest entry
		oldest := ""
		var seq uint64
		for k, r := range s.results {
			if oldest == "" || r.seq < seq {
				oldest, seq = k, r.seq
			}
		}
		delete(s.results, oldest)
	}
	s.resultSeq++
	s.results[key] = &cachedResult{rows: rows, seq: s.resultSeq}
}

func (s *Server) getCacheProperties() *wire.Response {
	s.mu.Lock()
	p := s.cache
	s.mu.Unlock()
	return jsonResponse(http.StatusOK, p)
}

func (s *Server) putCacheProperties(req *wire.Request) *wire.Response {
	var in struct {
		Mode       *string `json:"mode"`
		MaxResults *int64  `json:"maxResults"`
	}
	if err := codec.JSON.Decode(req.Body, &in); err != nil {
		return errorResponse(http.StatusBadRequest, errorNumBadParameter, "malformed cache properties: "+err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.cache
	if in.Mode != nil {
		switch *in.Mode {
		case cacheOff, cacheOn, cacheDemand:
			p.Mode = *in.Mode
		default:
			return errorResponse(http.StatusBadRequest, errorNumBadParameter, "invalid cache mode "+*in.Mode)
		}
	}
	if in.MaxResults != nil {
		if *in.MaxResults < 0 {
			return errorResponse(http.StatusBadRequest, errorNumBadParameter, "maxResults must not be negative")
		}
		p.MaxResults = *in.MaxResults
	}
	if p.Mode == cacheOff {
		clear(s.results)
	}
	s.cache = p
	return jsonResponse(http.StatusOK, p)
}
