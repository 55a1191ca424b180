package inference

import (
	"context"
	"sync"
)

// MockClient is a configurable Client for tests. GenerateFn receives the
// 1-based call number so tests can script per-attempt behavior, for
// example transient failures followed by success.
type MockClient struct {
	mu         sync.Mutex
	calls      int
	GenerateFn func(ctx context.Context, req Request, call int) (*Response, error)
}

var _ Client = (*MockClient)(nil)

// Generate implements Client.
func (m *MockClient) Generate(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()

	if m.GenerateFn == nil {
		return &Response{Text: "{}", Model: "mock", Tokens: 1}, nil
	}
	return m.GenerateFn(ctx, req, call)
}

// Calls returns how many times Generate has been invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
