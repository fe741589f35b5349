// Package cursor implements the paginated query cursor on top of the
// executor.
//
// Run submits a query and resolves to a *Cursor once the first batch has
// arrived. The cursor then behaves as a state machine over
//
//	{buffer, hasMore, id, closed}
//
// with these transitions:
//   - Next with a non-empty buffer pops the front item.
//   - Next with an empty buffer and hasMore issues PUT /_api/cursor/{id},
//     replaces the buffer with the new batch and updates hasMore, count and
//     stats. Warnings are appended.
//   - Receiving a batch with hasMore=false clears id: the server has already
//     dropped the cursor.
//   - Close sets closed and, while id is set, sends DELETE /_api/cursor/{id}
//     without waiting for the answer.
//
// A result that fits into the first batch never gets an id; the cursor
// serves its buffer and then reports exhaustion. Exhausted and Closed are
// different failures: the first is reading past the end, the second reading
// after Close.
//
// Server cursors expire after their TTL of inactivity. Expiry is noticed
// lazily: the next fetch fails with dberr.Expired and the cursor is left as
// it was.
package cursor
