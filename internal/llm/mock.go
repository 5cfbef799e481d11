package llm

import (
	"context"
	"fmt"
	"sync"
)

// Step is one scripted turn of a MockClient: either a canned response or an
// error.
type Step struct {
	Content string
	Err     error
}

// MockClient replays a fixed script of responses. Used throughout the test
// suites to exercise pipeline behavior without a live endpoint.
type MockClient struct {
	mu       sync.Mutex
	steps    []Step
	next     int
	Requests []Request

	// OnComplete, when set, overrides the script entirely.
	OnComplete func(ctx context.Context, req Request) (*Response, error)
}

// NewMockClient creates a mock that replays steps in order.
func NewMockClient(steps ...Step) *MockClient {
	return &MockClient{steps: steps}
}

// Respond appends a canned success response to the script.
func (m *MockClient) Respond(content string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, Step{Content: content})
	return m
}

// Fail appends a canned error to the script.
func (m *MockClient) Fail(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, Step{Err: err})
	return m
}

// Complete replays the next scripted step.
func (m *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if m.OnComplete != nil {
		return m.OnComplete(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.next >= len(m.steps) {
		return nil, fmt.Errorf("mock llm: script exhausted after %d calls", m.next)
	}
	step := m.steps[m.next]
	m.next++
	if step.Err != nil {
		return nil, step.Err
	}
	return &Response{Content: step.Content}, nil
}

// Calls returns how many scripted steps were consumed.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
