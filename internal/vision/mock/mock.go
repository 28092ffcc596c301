// Package mock provides a scripted vision.FaceEmbedder for tests.
package mock

import (
	"context"
	"sync"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/vision"
)

// MockEmbedder maps exact payloads to embeddings. Payloads registered with
// AddInvalid fail with vision.ErrInvalidImage; anything unregistered has no
// face.
type MockEmbedder struct {
	mu      sync.RWMutex
	faces   map[string][]float32
	invalid map[string]bool
	calls   int

	// Error injection
	EmbedError error
}

// NewMockEmbedder creates an empty mock embedder
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		faces:   make(map[string][]float32),
		invalid: make(map[string]bool),
	}
}

// AddFace makes payload embed to vec
func (m *MockEmbedder) AddFace(payload []byte, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces[string(payload)] = vec
}

// AddInvalid makes payload fail decoding
func (m *MockEmbedder) AddInvalid(payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalid[string(payload)] = true
}

// Calls returns how many times Embed ran
func (m *MockEmbedder) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Embed implements vision.FaceEmbedder
func (m *MockEmbedder) Embed(ctx context.Context, data []byte) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.EmbedError != nil {
		return nil, m.EmbedError
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.invalid[string(data)] {
		return nil, vision.ErrInvalidImage
	}
	vec, ok := m.faces[string(data)]
	if !ok {
		return nil, vision.ErrNoFaceFound
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}
