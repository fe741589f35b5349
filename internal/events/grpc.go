package events

import (
	"time"

	"google.golang.org/grpc/codes"
)

// GRPCClientStart is emitted before a gateway call.
type GRPCClientStart struct {
	Method string
	Target string
}

// GRPCClientFinish is emitted after a gateway call completes.
type GRPCClientFinish struct {
	Method   string
	Target   string
	Code     codes.Code
	Err      error
	Duration time.Duration
}
