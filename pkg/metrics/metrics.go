// Package metrics holds the process-wide counters and the latency reservoir.
// These buckets are the only shared mutable state in the process outside the
// remote stores, so sample insertion and readout are guarded for consistency.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Counter names used across the engine.
const (
	EvaluateBudgetExceeded = "evaluate_budget_exceeded"
	RuleEvalFailures       = "rule_eval_failures"
	CacheMisses            = "cache_misses"
	CacheErrors            = "cache_errors"
	QueuePublishFailures   = "queue_publish_failures"
	AnswersAccepted        = "answers_accepted"
)

// Counter is a monotonically increasing event count.
type Counter struct {
	v atomic.Int64
}

// Inc adds one.
func (c *Counter) Inc() { c.v.Add(1) }

// Value returns the current count.
func (c *Counter) Value() int64 { return c.v.Load() }

const reservoirSize = 2048

// Registry owns named counters and a bounded latency reservoir.
type Registry struct {
	mu       sync.Mutex
	counters map[string]*Counter

	samples []time.Duration
	next    int
	filled  bool
}

// New creates an empty metrics registry.
func New() *Registry {
	return &Registry{
		counters: make(map[string]*Counter),
		samples:  make([]time.Duration, reservoirSize),
	}
}

// Counter returns the named counter, creating it on first use.
func (r *Registry) Counter(name string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[name]
	if !ok {
		c = &Counter{}
		r.counters[name] = c
	}
	return c
}

// ObserveLatency records one request latency sample. The reservoir is a ring
// of the most recent samples; older traffic ages out.
func (r *Registry) ObserveLatency(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.next] = d
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.filled = true
	}
}

// Snapshot is a point-in-time readout of counters and latency percentiles.
type Snapshot struct {
	Counters  map[string]int64 `json:"counters"`
	LatencyMs Percentiles      `json:"latency_ms"`
}

// Percentiles holds request latency percentiles in milliseconds.
type Percentiles struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Snapshot returns a consistent readout of the registry.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	counters := make(map[string]int64, len(r.counters))
	for name, c := range r.counters {
		counters[name] = c.Value()
	}

	n := r.next
	if r.filled {
		n = len(r.samples)
	}
	sorted := make([]time.Duration, n)
	copy(sorted, r.samples[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return Snapshot{
		Counters: counters,
		LatencyMs: Percentiles{
			P50: percentileMs(sorted, 0.50),
			P95: percentileMs(sorted, 0.95),
			P99: percentileMs(sorted, 0.99),
		},
	}
}

func percentileMs(sorted []time.Duration, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return float64(sorted[idx]) / float64(time.Millisecond)
}
