package metrics

import (
	"context"
	"time"

	"github.com/prometheus/common/model"
)

// MockProvider is a canned-data implementation of Provider for testing.
// Fixtures are keyed by the exact query string.
type MockProvider struct {
	// Fixture data
	Matrices map[string]model.Matrix
	Vectors  map[string]model.Vector

	// Call tracking
	QueryRangeCalls   int
	QueryInstantCalls int
	HealthCalls       int

	// Error injection
	QueryRangeError   error
	QueryInstantError error
	HealthError       error
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Matrices: make(map[string]model.Matrix),
		Vectors:  make(map[string]model.Vector),
	}
}

// QueryRange implements Provider.
func (m *MockProvider) QueryRange(_ context.Context, query string, _, _ time.Time, _ time.Duration) (model.Matrix, error) {
	m.QueryRangeCalls++
	if m.QueryRangeError != nil {
		return nil, m.QueryRangeError
	}
	if matrix, ok := m.Matrices[query]; ok {
		return matrix, nil
	}
	return model.Matrix{}, nil
}

// QueryInstant implements Provider.
func (m *MockProvider) QueryInstant(_ context.Context, query string, _ time.Time) (model.Vector, error) {
	m.QueryInstantCalls++
	if m.QueryInstantError != nil {
		return nil, m.QueryInstantError
	}
	if vector, ok := m.Vectors[query]; ok {
		return vector, nil
	}
	return model.Vector{}, nil
}

// Health implements Provider.
func (m *MockProvider) Health(_ context.Context) error {
	m.HealthCalls++
	return m.HealthError
}

// AddMatrix registers a range-query fixture.
func (m *MockProvider) AddMatrix(query string, matrix model.Matrix) {
	m.Matrices[query] = matrix
}

// AddVector registers an instant-query fixture.
func (m *MockProvider) AddVector(query string, vector model.Vector) {
	m.Vectors[query] = vector
}

// Reset clears call counters and injected errors; fixtures are kept.
func (m *MockProvider) Reset() {
	m.QueryRangeCalls = 0
	m.QueryInstantCalls = 0
	m.HealthCalls = 0
	m.QueryRangeError = nil
	m.QueryInstantError = nil
	m.HealthError = nil
}
