package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/robjohncolson/statrelay/pkg/logger"
)

// Status is the aggregate health state of the relay.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Probe checks the upstream row-store; it must respect the context deadline.
type Probe func(ctx context.Context) error

// cacheStats is the slice of the response cache the monitor observes.
type cacheStats interface {
	HitRate() float64
}

// Report is a point-in-time health evaluation.
type Report struct {
	Status        Status        `json:"status"`
	ProbeOK       bool          `json:"probe_ok"`
	ProbeLatency  time.Duration `json:"probe_latency"`
	ProbeError    string        `json:"probe_error,omitempty"`
	Latency       Percentiles   `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	CacheHitRate  float64       `json:"cache_hit_rate"`
	WindowedCount uint64        `json:"requests_in_window"`
	SampledAt     time.Time     `json:"sampled_at"`
}

// Config tunes sampling cadence and thresholds.
type Config struct {
	Interval           time.Duration
	ProbeTimeout       time.Duration
	P95Threshold       time.Duration
	ErrorRateThreshold float64
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 500 * time.Millisecond
	}
	if c.P95Threshold <= 0 {
		c.P95Threshold = time.Second
	}
	if c.ErrorRateThreshold <= 0 {
		c.ErrorRateThreshold = 0.25
	}
}

// Monitor samples latency, error-rate and upstream reachability on its own
// timer loop, independent of request flow, and exposes the aggregate state.
// It degrades one level per bad sample and recovers fully once both signals
// clear.
type Monitor struct {
	recorder *Recorder
	probe    Probe
	cache    cacheStats
	cfg      Config
	log      *zap.Logger

	mu     sync.RWMutex
	status Status
	last   Report

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMonitor constructs a Monitor; Start launches the sampling loop.
func NewMonitor(recorder *Recorder, probe Probe, cache cacheStats, cfg Config) (*Monitor, error) {
	if recorder == nil {
		return nil, errors.New("monitoring: recorder is required")
	}
	if probe == nil {
		return nil, errors.New("monitoring: upstream probe is required")
	}
	cfg.applyDefaults()

	return &Monitor{
		recorder: recorder,
		probe:    probe,
		cache:    cache,
		cfg:      cfg,
		log:      logger.WithModule("monitoring"),
		status:   StatusHealthy,
		stop:     make(chan struct{}),
	}, nil
}

// Start launches the background sampler.
func (m *Monitor) Start() {
	go func() {
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.Sample(context.Background())
			}
		}
	}()
}

// Stop halts the sampling loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Sample runs one health evaluation and advances the state machine.
func (m *Monitor) Sample(ctx context.Context) Report {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	probeErr := m.probe(probeCtx)
	probeLatency := time.Since(start)

	latency, requests, errs := m.recorder.snapshot()

	errorRate := 0.0
	if requests > 0 {
		errorRate = float64(errs) / float64(requests)
	}

	probeTimedOut := errors.Is(probeErr, context.DeadlineExceeded)
	probeFailed := probeErr != nil && !probeTimedOut

	degradedSignal := latency.P95 > m.cfg.P95Threshold || probeTimedOut
	unhealthySignal := probeFailed || errorRate > m.cfg.ErrorRateThreshold

	m.mu.Lock()
	switch {
	case unhealthySignal:
		if m.status == StatusHealthy {
			m.status = StatusDegraded
		} else {
			m.status = StatusUnhealthy
		}
	case degradedSignal:
		if m.status != StatusUnhealthy {
			m.status = StatusDegraded
		}
	default:
		m.status = StatusHealthy
	}

	report := Report{
		Status:        m.status,
		ProbeOK:       probeErr == nil,
		ProbeLatency:  probeLatency,
		Latency:       latency,
		ErrorRate:     errorRate,
		WindowedCount: requests,
		SampledAt:     time.Now(),
	}
	if probeErr != nil {
		report.ProbeError = probeErr.Error()
	}
	if m.cache != nil {
		report.CacheHitRate = m.cache.HitRate()
	}
	m.last = report
	m.mu.Unlock()

	if report.Status != StatusHealthy {
		m.log.Warn("health sample",
			zap.String("status", string(report.Status)),
			zap.Float64("error_rate", errorRate),
			zap.Duration("p95", latency.P95),
			zap.Bool("probe_ok", probeErr == nil),
		)
	}

	return report
}

// Report returns the most recent health evaluation.
func (m *Monitor) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.last.SampledAt.IsZero() {
		return Report{Status: m.status, ProbeOK: true, SampledAt: time.Now()}
	}
	return m.last
}

// Status returns the current aggregate state.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
