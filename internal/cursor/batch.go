package cursor

import "github.com/hanpama/docdb/internal/codec"

// Batch is one page of a query result as sent by the server.
type Batch struct {
	ID      string      `json:"id,omitempty"`
	Result  []codec.Raw `json:"result"`
	HasMore bool        `json:"hasMore"`
	Count   *int64      `json:"count,omitempty"`
	Cached  bool        `json:"cached"`
	Extra   *Extra      `json:"extra,omitempty"`
}

type Extra struct {
	Stats    *Stats    `json:"stats,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Stats are the execution statistics of a query. FullCount is only set when
// the query ran with the full-count option.
type Stats struct {
	WritesExecuted int64   `json:"writesExecuted"`
	WritesIgnored  int64   `json:"writesIgnored"`
	ScannedFull    int64   `json:"scannedFull"`
	ScannedIndex   int64   `json:"scannedIndex"`
	Filtered       int64   `json:"filtered"`
	ExecutionTime  float64 `json:"executionTime"`
	FullCount      *int64  `json:"fullCount,omitempty"`
}

// Warning is a non-fatal notice the server attached to a query.
type Warning struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
