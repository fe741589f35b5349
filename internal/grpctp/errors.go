package grpctp

import "errors"

var (
	// ErrNoEndpoints indicates the provider returned no endpoints for a service.
	ErrNoEndpoints = errors.New("grpctp: no endpoints available")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("grpctp: closed")
)
