package obs

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics is the narrow surface every component uses to record counters and
// durations. Grounded on the teacher's internal/rag/obs.OtelMetrics /
// MockMetrics split: one real adapter backed by an otel Meter, one in-memory
// double for tests that needs no SDK wiring.
type Metrics interface {
	Count(ctx context.Context, name string, value int64, labels map[string]string)
	Observe(ctx context.Context, name string, value float64, labels map[string]string)
}

// OtelMetrics lazily creates instruments on first use, keyed by name, guarded
// by a mutex since meter creation is not guaranteed cheap or safe to race.
type OtelMetrics struct {
	meter      metric.Meter
	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewOtelMetrics builds a Metrics adapter over the given meter.
func NewOtelMetrics(meter metric.Meter) *OtelMetrics {
	return &OtelMetrics{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (m *OtelMetrics) getCounter(name string) metric.Int64Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	c, err := m.meter.Int64Counter(name)
	if err != nil {
		return nil
	}
	m.counters[name] = c
	return c
}

func (m *OtelMetrics) getHistogram(name string) metric.Float64Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h
	}
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return nil
	}
	m.histograms[name] = h
	return h
}

func toAttrs(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

func (m *OtelMetrics) Count(ctx context.Context, name string, value int64, labels map[string]string) {
	if c := m.getCounter(name); c != nil {
		c.Add(ctx, value, metric.WithAttributes(toAttrs(labels)...))
	}
}

func (m *OtelMetrics) Observe(ctx context.Context, name string, value float64, labels map[string]string) {
	if h := m.getHistogram(name); h != nil {
		h.Record(ctx, value, metric.WithAttributes(toAttrs(labels)...))
	}
}

// MockMetrics records every call verbatim for assertions in tests, mirroring
// the teacher's own test double of the same name.
type MockMetrics struct {
	mu       sync.Mutex
	Counters map[string]int64
	Hists    map[string][]float64
	Labels   []map[string]string
}

// NewMockMetrics returns a ready-to-use MockMetrics.
func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		Counters: make(map[string]int64),
		Hists:    make(map[string][]float64),
	}
}

func (m *MockMetrics) Count(_ context.Context, name string, value int64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counters[name] += value
	m.Labels = append(m.Labels, labels)
}

func (m *MockMetrics) Observe(_ context.Context, name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Hists[name] = append(m.Hists[name], value)
	m.Labels = append(m.Labels, labels)
}
