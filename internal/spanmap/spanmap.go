// Package spanmap owns the identifier→span lookup table that binds
// OpenTelemetry spans to their Sentry counterparts.
//
// The table is process-wide state, but it is always accessed through an
// explicit *Map handle rather than package-level functions, so the
// bridge can be exercised against a private map in tests.
package spanmap

import (
	"sync"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/trace"
)

// Map associates OpenTelemetry span IDs with Sentry spans.
// A Sentry span exists for an OTel span if and only if a lookup by the
// OTel span ID currently succeeds. All methods are safe for concurrent
// use; the OTel SDK may end spans on exporter goroutines.
type Map struct {
	mu    sync.RWMutex
	spans map[trace.SpanID]*sentry.Span
}

// New creates an empty span map.
func New() *Map {
	return &Map{spans: make(map[trace.SpanID]*sentry.Span)}
}

// Get returns the Sentry span recorded under the given OTel span ID.
func (m *Map) Get(id trace.SpanID) (*sentry.Span, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.spans[id]
	return s, ok
}

// Set records a Sentry span under the given OTel span ID.
func (m *Map) Set(id trace.SpanID, span *sentry.Span) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans[id] = span
}

// Delete removes the mapping for the given OTel span ID, if any.
func (m *Map) Delete(id trace.SpanID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.spans, id)
}

// Len reports the number of live mappings.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.spans)
}

// Clear drops all mappings. Intended for tests and shutdown.
func (m *Map) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = make(map[trace.SpanID]*sentry.Span)
}
