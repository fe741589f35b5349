package events

import "time"

// RequestStart is emitted by the executor before a request is handed to the
// transport.
type RequestStart struct {
	Database string
	Method   string
	Path     string
}

// RequestFinish is emitted once the request's future is resolved.
type RequestFinish struct {
	Database string
	Method   string
	Path     string
	Status   int
	Err      error
	Duration time.Duration
}

// CursorBatch is emitted for every batch a cursor receives, including the
// first one.
type CursorBatch struct {
	CursorID string
	Items    int
	HasMore  bool
	Cached   bool
}

// CursorRelease is emitted when a best-effort release request resolves.
type CursorRelease struct {
	CursorID string
	Err      error
}
