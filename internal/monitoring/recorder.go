package monitoring

import (
	"sort"
	"sync"
	"time"
)

const defaultWindowSize = 512

// Recorder collects request durations and error counts from the request path.
// Durations live in a fixed-size ring so memory stays bounded; error and
// request totals are windowed between samples.
type Recorder struct {
	mu        sync.Mutex
	durations []time.Duration
	next      int
	filled    bool

	requests uint64
	errors   uint64
}

// NewRecorder constructs a Recorder with the default rolling window.
func NewRecorder() *Recorder {
	return &Recorder{durations: make([]time.Duration, defaultWindowSize)}
}

// ObserveRequest records a completed request duration and outcome.
func (r *Recorder) ObserveRequest(d time.Duration, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.durations[r.next] = d
	r.next++
	if r.next == len(r.durations) {
		r.next = 0
		r.filled = true
	}

	r.requests++
	if isError {
		r.errors++
	}
}

// Percentiles describes the rolling latency distribution.
type Percentiles struct {
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

// snapshot returns current percentiles plus windowed request/error counts,
// resetting the windowed counts for the next sampling interval.
func (r *Recorder) snapshot() (Percentiles, uint64, uint64) {
	r.mu.Lock()

	size := r.next
	if r.filled {
		size = len(r.durations)
	}
	window := make([]time.Duration, size)
	copy(window, r.durations[:size])

	requests, errs := r.requests, r.errors
	r.requests, r.errors = 0, 0

	r.mu.Unlock()

	if size == 0 {
		return Percentiles{}, requests, errs
	}

	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })

	return Percentiles{
		P50: window[rank(size, 50)],
		P95: window[rank(size, 95)],
		P99: window[rank(size, 99)],
	}, requests, errs
}

// rank maps a percentile onto a sorted-slice index (nearest-rank method).
func rank(size, percentile int) int {
	idx := (size*percentile + 99) / 100
	if idx > 0 {
		idx--
	}
	return idx
}
