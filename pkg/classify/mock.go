package classify

import (
	"context"
	"sync"
)

// Mock implements Classifier for testing.
type Mock struct {
	// ClassifyFunc is called when Classify is invoked.
	// If nil, returns a single confident "cup" result.
	ClassifyFunc func(ctx context.Context, jpeg []byte) (Classifications, error)

	// NameValue is returned by Name. Defaults to "mock".
	NameValue string

	// HealthErr is returned by Health.
	HealthErr error

	mu     sync.Mutex
	images [][]byte
	closed bool
}

// NewMock creates a new mock classifier.
func NewMock() *Mock {
	return &Mock{NameValue: "mock"}
}

// Classify records the image and calls ClassifyFunc.
func (m *Mock) Classify(ctx context.Context, jpeg []byte) (Classifications, error) {
	m.mu.Lock()
	m.images = append(m.images, jpeg)
	m.mu.Unlock()

	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, jpeg)
	}
	return Classifications{{Label: "cup", Confidence: 0.87}}, nil
}

// Name returns NameValue.
func (m *Mock) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

// Health returns HealthErr.
func (m *Mock) Health(ctx context.Context) error {
	return m.HealthErr
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Images returns every image passed to Classify.
func (m *Mock) Images() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.images))
	copy(out, m.images)
	return out
}

// CallCount returns the number of Classify calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.images)
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Verify Mock implements Classifier at compile time.
var _ Classifier = (*Mock)(nil)
