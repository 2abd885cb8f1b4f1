// Package testutil provides test utilities for the llm package.
// It includes a mock Backend for testing code that drives generation.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/codefix/llm"
)

// MockBackend is a thread-safe mock llm.Backend for testing.
// It captures each request and returns configured generations.
//
// Usage:
//
//	// Fixed reply, decoded through the real protocol parser
//	mock := testutil.NewMockBackend("FIXED_CODE:\ny = 2\n\nEXPLANATION:\nRenamed.")
//
//	// Pre-decoded generation
//	mock := &testutil.MockBackend{
//	    Generations: []*llm.Generation{{FixedCode: "y = 2\n", Explanation: "Renamed"}},
//	}
//
//	// Error response
//	mock := &testutil.MockBackend{Err: errors.New("connection failed")}
type MockBackend struct {
	mu              sync.Mutex
	Generations     []*llm.Generation // Generations to return in sequence
	Err             error             // Error to return (takes precedence over Generations)
	requests        []llm.FixRequest
	capturedContext context.Context
	index           int
}

// NewMockBackend returns a mock whose replies are raw protocol texts, parsed
// with llm.ParseResponse.
func NewMockBackend(raw ...string) *MockBackend {
	m := &MockBackend{}
	for _, r := range raw {
		m.Generations = append(m.Generations, llm.ParseResponse(r))
	}
	return m
}

// Name implements llm.Backend.
func (m *MockBackend) Name() string {
	return "mock"
}

// FixCode implements llm.Backend.
// Returns the next generation, or Err if set. Once the configured
// generations run out the request's code is echoed back unchanged.
func (m *MockBackend) FixCode(ctx context.Context, req llm.FixRequest) (*llm.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.capturedContext = ctx
	m.requests = append(m.requests, req)

	if m.Err != nil {
		return nil, m.Err
	}

	if m.index < len(m.Generations) {
		gen := m.Generations[m.index]
		m.index++
		return gen, nil
	}

	return &llm.Generation{Raw: req.Code, FixedCode: req.Code, Explanation: llm.DefaultExplanation}, nil
}

// Requests returns every request received so far.
func (m *MockBackend) Requests() []llm.FixRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.FixRequest(nil), m.requests...)
}

// CallCount returns the number of times FixCode was called.
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// CapturedContext returns the last context passed to FixCode.
func (m *MockBackend) CapturedContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capturedContext
}
