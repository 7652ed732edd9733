package camera

import (
	"context"
	"sync"
)

// Mock implements Camera for testing.
// All methods can be customized via function fields.
type Mock struct {
	// StartFunc is called when Start is invoked. If nil, returns nil.
	StartFunc func(ctx context.Context) error

	// CaptureFunc is called when Capture is invoked.
	// If nil, returns a tiny valid JPEG.
	CaptureFunc func(ctx context.Context, req Request) ([]byte, error)

	// Frame is returned by Latest when set.
	Frame []byte

	mu       sync.Mutex
	requests []Request
	starts   int
	closed   bool
}

// NewMock creates a mock camera that returns TestJPEG for every capture.
func NewMock() *Mock {
	return &Mock{}
}

// Start calls StartFunc and records the call.
func (m *Mock) Start(ctx context.Context) error {
	m.mu.Lock()
	m.starts++
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	return nil
}

// Capture records the request and calls CaptureFunc.
func (m *Mock) Capture(ctx context.Context, req Request) ([]byte, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx, req)
	}
	return TestJPEG(), nil
}

// Latest returns Frame, or ErrNoFrame.
func (m *Mock) Latest() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Frame == nil {
		return nil, ErrNoFrame
	}
	return m.Frame, nil
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Requests returns a copy of all capture requests received.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// CaptureCount returns the number of Capture calls.
func (m *Mock) CaptureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Starts returns the number of Start calls.
func (m *Mock) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Verify Mock implements Camera at compile time.
var _ Camera = (*Mock)(nil)
