// Package executor implements the asynchronous dispatch-and-decode boundary
// between database callers and a Transport.
//
// # Overview
//
// Every operation against the server goes through Execute:
//
//	f := executor.Execute(ctx, exec, req, executor.Field[Edge]("edge"))
//	edge, err := f.Await(ctx)
//
// Execute copies the request, hands it to the Transport on a new goroutine
// and returns a Future immediately. The future resolves exactly once, with
// either the value produced by the Strategy or a *dberr.Error.
//
// # Strategies
//
// A Strategy decides which statuses are valid answers and how the body
// becomes a typed value:
//   - Value: the whole body.
//   - Field: one attribute of an envelope object.
//   - Exists: 2xx is true, 404 is false.
//   - Discard: ignore the body.
//
// Higher layers build their own strategies; the cursor package returns a
// strategy whose value is the first page of a *cursor.Cursor.
//
// # Failures
//
//   - The transport returned an error: dberr.Transport with no status.
//   - The status is not accepted by the strategy: dberr.Transport with the
//     status, errorNum and errorMessage from the server's error body. The
//     "cursor not found" error number is reported as dberr.Expired.
//   - Decode failed: dberr.Decode. Never retried.
//
// The executor holds no retry policy. Wrap the Transport (see internal/retry)
// or retry at the call site.
//
// # Concurrency
//
// Execute may be called from any number of goroutines. Calls share nothing
// but the Transport, which must be safe for concurrent use, and the optional
// in-flight bound set with WithMaxInFlight.
//
// # Observability
//
// Each call gets a request id (internal/reqid) and publishes RequestStart and
// RequestFinish events; internal/otel and internal/metrics subscribe to them.
// Failures are logged at V(1) through the logr.Logger found in the context.
package executor
