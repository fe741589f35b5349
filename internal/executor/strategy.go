package executor

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/hanpama/docdb/internal/codec"
	"github.com/hanpama/docdb/internal/wire"
)

// Strategy turns a raw response into a typed value.
//
// Accept lists additional statuses, beyond 2xx, that are valid answers for
// this call (for example 404 for an existence check). Any other status is
// reported as a transport failure without calling Decode.
type Strategy[T any] struct {
	Accept []int
	Decode func(c codec.Codec, resp *wire.Response) (T, error)
}

func (s Strategy[T]) accepts(status int) bool {
	return (status >= 200 && status < 300) || slices.Contains(s.Accept, status)
}

// Value decodes the whole body into T.
func Value[T any]() Strategy[T] {
	return Strategy[T]{Decode: func(c codec.Codec, resp *wire.Response) (T, error) {
		var v T
		err := c.Decode(resp.Body, &v)
		return v, err
	}}
}

// Field decodes one top-level attribute of the body into T. Gharial responses
// wrap the document in such an envelope ("edge", "vertex", "graph").
func Field[T any](name string) Strategy[T] {
	return Strategy[T]{Decode: func(c codec.Codec, resp *wire.Response) (T, error) {
		var v T
		var env map[string]codec.Raw
		if err := c.Decode(resp.Body, &env); err != nil {
			return v, err
		}
		raw, ok := env[name]
		if !ok {
			return v, fmt.Errorf("executor: response has no %q attribute", name)
		}
		err := c.Decode(raw, &v)
		return v, err
	}}
}

// Exists reports true for a 2xx response and false for 404.
func Exists() Strategy[bool] {
	return Strategy[bool]{
		Accept: []int{http.StatusNotFound},
		Decode: func(_ codec.Codec, resp *wire.Response) (bool, error) {
			return resp.Status != http.StatusNotFound, nil
		},
	}
}

// Discard ignores the body.
func Discard() Strategy[struct{}] {
	return Strategy[struct{}]{Decode: func(codec.Codec, *wire.Response) (struct{}, error) {
		return struct{}{}, nil
	}}
}
