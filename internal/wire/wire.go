// Package wire holds the transport-neutral request and response descriptors
// exchanged between the executor and a Transport.
package wire

import (
	"maps"
	"net/http"
)

// Method is the request verb.
type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodPatch  Method = http.MethodPatch
	MethodDelete Method = http.MethodDelete
	MethodHead   Method = http.MethodHead
)

// Request describes one call against the database server.
//
// A Request is built once by a caller and must not be mutated after it has
// been handed to the executor. Path is relative to the database, e.g.
// "/_api/cursor". An empty Database addresses the server default.
type Request struct {
	Database string
	Method   Method
	Path     string
	Params   map[string]string
	Header   map[string]string
	Body     []byte
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	out := *r
	out.Params = maps.Clone(r.Params)
	out.Header = maps.Clone(r.Header)
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// Response is the raw answer a Transport produced for a Request.
type Response struct {
	Status int
	Header map[string]string
	Body   []byte
}

// Success reports whether the status is in the 2xx range.
func (r *Response) Success() bool {
	return r.Status >= 200 && r.Status < 300
}
