package events

import "time"

// HTTPStart is emitted when the REST front of the in-process server receives
// a request.
type HTTPStart struct {
	Method string
	Path   string
}

// HTTPFinish is emitted after the REST handler has written its response.
type HTTPFinish struct {
	Method   string
	Path     string
	Status   int
	Duration time.Duration
}
