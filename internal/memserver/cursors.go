package memserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hanpama/docdb/internal/codec"
	"github.com/hanpama/docdb/internal/wire"
)

type queryRequest struct {
	Query       string         `json:"query"`
	BindVars    map[string]any `json:"bindVars,omitempty"`
	Count       bool           `json:"count,omitempty"`
	BatchSize   int            `json:"batchSize,omitempty"`
	TTL         int64          `json:"ttl,omitempty"`
	Cache       *bool          `json:"cache,omitempty"`
	MemoryLimit int64          `json:"memoryLimit,omitempty"`
	Options     struct {
		FullCount bool `json:"fullCount,omitempty"`
	} `json:"options"`
}

type batchBody struct {
	Error   bool        `json:"error"`
	Code    int         `json:"code"`
	ID      string      `json:"id,omitempty"`
	Result  []codec.Raw `json:"result"`
	HasMore bool        `json:"hasMore"`
	Count   *int64      `json:"count,omitempty"`
	Cached  bool        `json:"cached"`
	Extra   *extraBody  `json:"extra,omitempty"`
}

type extraBody struct {
	Stats    statsBody `json:"stats"`
	Warnings []Warning `json:"warnings"`
}

type statsBody struct {
	WritesExecuted int64   `json:"writesExecuted"`
	WritesIgnored  int64   `json:"writesIgnored"`
	ScannedFull    int64   `json:"scannedFull"`
	ScannedIndex   int64   `json:"scannedIndex"`
	Filtered       int64   `json:"filtered"`
	ExecutionTime  float64 `json:"executionTime"`
	FullCount      *int64  `json:"fullCount,omitempty"`
}

// serverCursor holds the rows not yet handed out. It is only touched while
// the cursor is owned by a single request, see takeCursor.
type serverCursor struct {
	rows      []codec.Raw
	batchSize int
	ttl       time.Duration
	count     *int64
	stats     statsBody
}

func (s *Server) createCursor(req *wire.Request) *wire.Response {
	var q queryRequest
	if err := codec.JSON.Decode(req.Body, &q); err != nil {
		return errorResponse(http.StatusBadRequest, errorNumBadParameter, "malformed query request: "+err.Error())
	}
	if q.Query == "" {
		return errorResponse(http.StatusBadRequest, errorNumQueryParse, "query is empty")
	}
	if q.BatchSize < 0 || q.TTL < 0 {
		return errorResponse(http.StatusBadRequest, errorNumBadParameter, "batchSize and ttl must not be negative")
	}
	key := normalizeQuery(q.Query)
	f, ok := s.fixtures[key]
	if !ok {
		return errorResponse(http.StatusBadRequest, errorNumQueryParse, "syntax error, unexpected query "+strconv.Quote(key))
	}

	rows := f.Rows
	if f.Limit > 0 && f.Limit < len(rows) {
		rows = rows[:f.Limit]
	}
	start := time.Now()
	cached := false
	if s.cacheable(q) {
		cacheKey := resultKey(key, q.BindVars)
		if hit, ok := s.cachedRows(cacheKey); ok {
			rows, cached = hit, true
		} else {
			s.storeRows(cacheKey, rows)
		}
	}

	stats := statsBody{ExecutionTime: time.Since(start).Seconds()}
	if !cached {
		stats.ScannedFull = int64(len(f.Rows))
		stats.Filtered = int64(len(f.Rows) - len(rows))
	}
	if q.Options.FullCount {
		n := int64(len(f.Rows))
		stats.FullCount = &n
	}
	cur := &serverCursor{
		rows:      rows,
		batchSize: q.BatchSize,
		stats:     stats,
	}
	if cur.batchSize == 0 {
		cur.batchSize = s.opts.DefaultBatchSize
	}
	if q.Count {
		n := int64(len(rows))
		cur.count = &n
	}

	id := ""
	if len(rows) > cur.batchSize {
		id = strconv.FormatUint(s.nextID.Add(1), 10)
		cur.ttl = s.opts.DefaultTTL
		if q.TTL > 0 {
			cur.ttl = time.Duration(q.TTL) * s.opts.TTLUnit
		}
		s.cursors.Set(id, cur, cur.ttl)
	}
	body := cur.next(id, http.StatusCreated)
	body.Cached = cached
	body.Extra.Warnings = append(body.Extra.Warnings, f.Warnings...)
	return jsonResponse(http.StatusCreated, body)
}

func (s *Server) nextBatch(id string) *wire.Response {
	cur, ok := s.takeCursor(id)
	if !ok {
		return cursorNotFound()
	}
	body := cur.next(id, http.StatusOK)
	if body.HasMore {
		s.cursors.Set(id, cur, cur.ttl)
	}
	return jsonResponse(http.StatusOK, body)
}

func (s *Server) deleteCursor(id string) *wire.Response {
	if _, ok := s.takeCursor(id); !ok {
		return cursorNotFound()
	}
	return jsonResponse(http.StatusAccepted, map[string]any{"id": id, "error": false, "code": http.StatusAccepted})
}

// takeCursor removes the cursor from the store so that concurrent requests
// for the same id cannot observe it half advanced.
func (s *Server) takeCursor(id string) (*serverCursor, bool) {
	item, found := s.cursors.GetAndDelete(id)
	if !found || item.IsExpired() {
		return nil, false
	}
	return item.Value(), true
}

func cursorNotFound() *wire.Response {
	return errorResponse(http.StatusNotFound, errorNumCursorNotFound, "cursor not found")
}

func (c *serverCursor) next(id string, code int) batchBody {
	n := min(c.batchSize, len(c.rows))
	out := c.rows[:n:n]
	c.rows = c.rows[n:]
	b := batchBody{
		Code:    code,
		Result:  out,
		HasMore: len(c.rows) > 0,
		Count:   c.count,
		Extra:   &extraBody{Stats: c.stats, Warnings: []Warning{}},
	}
	if b.HasMore {
		b.ID = id
	}
	return b
}
