package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/hanpama/docdb/internal/wire"
)

// CallRecord captures a single Send invocation for assertions.
type CallRecord struct {
	// Request is a deep copy of the request as it reached the transport.
	Request *wire.Request
}

// MockTransport implements Transport and returns pre-seeded responses
// in order, while recording Send invocations for inspection.
type MockTransport struct {
	mu        sync.Mutex
	responses []*wire.Response
	errs      []error
	idx       int
	calls     []CallRecord
}

// NewMockTransport creates a MockTransport that will return the provided
// responses in order for successive Send() invocations.
func NewMockTransport(responses ...*wire.Response) *MockTransport {
	cp := make([]*wire.Response, len(responses))
	copy(cp, responses)
	return &MockTransport{responses: cp}
}

// NewMockTransportWithErrors allows seeding per-call errors alongside responses.
// For call i, if errs[i] is non-nil, Send returns that error and ignores responses[i].
func NewMockTransportWithErrors(responses []*wire.Response, errs []error) *MockTransport {
	cp := make([]*wire.Response, len(responses))
	copy(cp, responses)
	ep := make([]error, len(errs))
	copy(ep, errs)
	return &MockTransport{responses: cp, errs: ep}
}

// Push appends further responses to the queue.
func (m *MockTransport) Push(responses ...*wire.Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.errs) < len(m.responses) {
		m.errs = append(m.errs, nil)
	}
	m.responses = append(m.responses, responses...)
}

// Send records the invocation and returns the next queued response.
// If responses are exhausted, it returns an error.
func (m *MockTransport) Send(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, CallRecord{Request: req.Clone()})

	if m.idx >= len(m.responses) && m.idx >= len(m.errs) {
		return nil, fmt.Errorf("mock transport: no more responses")
	}
	if m.idx < len(m.errs) {
		if err := m.errs[m.idx]; err != nil {
			m.idx++
			return nil, err
		}
	}
	var resp *wire.Response
	if m.idx < len(m.responses) {
		resp = m.responses[m.idx]
	}
	m.idx++
	return resp, nil
}

// Calls returns a snapshot of recorded Send invocations.
func (m *MockTransport) Calls() []CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallRecord, len(m.calls))
	copy(out, m.calls)
	return out
}
