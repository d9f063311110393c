package engine

import (
	"context"
	"sync"
)

// Mock is a scripted Engine for tests. Responses are returned in the
// order they were queued; when the script is exhausted the last entry
// repeats. The zero value returns an empty result forever.
type Mock struct {
	mu        sync.Mutex
	responses []mockResponse
	calls     int
	delay     func(ctx context.Context) error
}

type mockResponse struct {
	result *Result
	err    error
}

// Enqueue appends a scripted successful result
func (m *Mock) Enqueue(result *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{result: result})
}

// EnqueueError appends a scripted failure
func (m *Mock) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{err: err})
}

// Block makes every Transcribe call wait on fn before answering, which
// lets tests simulate slow or cancelled inference.
func (m *Mock) Block(fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = fn
}

// Calls returns how many times Transcribe has been invoked
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Mock) Model() string {
	return "mock"
}

func (m *Mock) Transcribe(ctx context.Context, wav []byte) (*Result, error) {
	m.mu.Lock()
	m.calls++
	delay := m.delay
	var resp mockResponse
	switch {
	case len(m.responses) == 0:
		resp = mockResponse{result: &Result{Language: "en"}}
	case m.calls > len(m.responses):
		resp = m.responses[len(m.responses)-1]
	default:
		resp = m.responses[m.calls-1]
	}
	m.mu.Unlock()

	if delay != nil {
		if err := delay(ctx); err != nil {
			return nil, err
		}
	}

	if resp.err != nil {
		return nil, resp.err
	}

	// Copy so callers cannot mutate the script.
	out := &Result{Language: resp.result.Language}
	out.Segments = append(out.Segments, resp.result.Segments...)
	return out, nil
}
