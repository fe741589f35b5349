// Package dberr defines the failure taxonomy shared by the executor and the
// cursor.
package dberr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	Unknown Kind = iota
	// Transport covers connectivity and protocol errors, including any
	// non-accepted server status. Never retried by the executor.
	Transport
	// Decode means the payload did not match the expected shape.
	Decode
	// Closed is returned by reads on a cursor after Close.
	Closed
	// Exhausted is returned by Next when nothing is buffered and the server
	// has no more batches.
	Exhausted
	// Expired means the server no longer knows the cursor id.
	Expired
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Decode:
		return "decode"
	case Closed:
		return "closed"
	case Exhausted:
		return "exhausted"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// ErrorNumCursorNotFound is the server error number for an unknown cursor id.
const ErrorNumCursorNotFound = 1600

// Error is the structured failure delivered through futures and cursor reads.
type Error struct {
	Kind Kind
	// Status is the server status code, 0 when no response was received.
	Status int
	// ErrorNum is the server specific error number, 0 when absent.
	ErrorNum int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("docdb: %s: response %d, error %d - %s", e.Kind, e.Status, e.ErrorNum, msg)
	}
	if msg == "" {
		return "docdb: " + e.Kind.String()
	}
	return fmt.Sprintf("docdb: %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of status or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Status == 0 && t.Message == "" && t.Err == nil
}

var (
	ErrTransport = &Error{Kind: Transport}
	ErrDecode    = &Error{Kind: Decode}
	ErrClosed    = &Error{Kind: Closed}
	ErrExhausted = &Error{Kind: Exhausted}
	ErrExpired   = &Error{Kind: Expired}
)

// KindOf returns the kind of err, or Unknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// StatusCode returns the server status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// NewTransport wraps a transport level error.
func NewTransport(err error) *Error {
	return &Error{Kind: Transport, Err: err}
}

// NewDecode wraps a decode error.
func NewDecode(err error) *Error {
	return &Error{Kind: Decode, Err: err}
}
