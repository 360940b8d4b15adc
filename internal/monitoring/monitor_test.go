package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type staticCache struct{ rate float64 }

func (s staticCache) HitRate() float64 { return s.rate }

func okProbe(ctx context.Context) error { return nil }

func newTestMonitor(t *testing.T, probe Probe) (*Monitor, *Recorder) {
	t.Helper()

	recorder := NewRecorder()
	m, err := NewMonitor(recorder, probe, staticCache{rate: 0.8}, Config{
		ProbeTimeout:       100 * time.Millisecond,
		P95Threshold:       500 * time.Millisecond,
		ErrorRateThreshold: 0.25,
	})
	require.NoError(t, err)
	return m, recorder
}

func TestHealthySample(t *testing.T) {
	m, recorder := newTestMonitor(t, okProbe)

	for i := 0; i < 20; i++ {
		recorder.ObserveRequest(10*time.Millisecond, false)
	}

	report := m.Sample(context.Background())
	require.Equal(t, StatusHealthy, report.Status)
	require.True(t, report.ProbeOK)
	require.InDelta(t, 0.8, report.CacheHitRate, 0.001)
	require.Equal(t, uint64(20), report.WindowedCount)
}

func TestSlowLatencyDegrades(t *testing.T) {
	m, recorder := newTestMonitor(t, okProbe)

	for i := 0; i < 20; i++ {
		recorder.ObserveRequest(2*time.Second, false)
	}

	report := m.Sample(context.Background())
	require.Equal(t, StatusDegraded, report.Status)
}

func TestProbeFailureStepsToUnhealthyThenRecovers(t *testing.T) {
	failing := true
	probe := func(ctx context.Context) error {
		if failing {
			return errors.New("connection refused")
		}
		return nil
	}

	m, _ := newTestMonitor(t, probe)

	// First bad sample degrades, second makes it unhealthy.
	require.Equal(t, StatusDegraded, m.Sample(context.Background()).Status)
	require.Equal(t, StatusUnhealthy, m.Sample(context.Background()).Status)

	failing = false
	require.Equal(t, StatusHealthy, m.Sample(context.Background()).Status)
}

func TestErrorRateDegrades(t *testing.T) {
	m, recorder := newTestMonitor(t, okProbe)

	for i := 0; i < 10; i++ {
		recorder.ObserveRequest(5*time.Millisecond, i < 5)
	}

	report := m.Sample(context.Background())
	require.Equal(t, StatusDegraded, report.Status)
	require.InDelta(t, 0.5, report.ErrorRate, 0.001)
}

func TestWindowedCountsResetBetweenSamples(t *testing.T) {
	m, recorder := newTestMonitor(t, okProbe)

	recorder.ObserveRequest(time.Millisecond, false)
	first := m.Sample(context.Background())
	require.Equal(t, uint64(1), first.WindowedCount)

	second := m.Sample(context.Background())
	require.Equal(t, uint64(0), second.WindowedCount)
}

func TestPercentilesNearestRank(t *testing.T) {
	recorder := NewRecorder()
	for i := 1; i <= 100; i++ {
		recorder.ObserveRequest(time.Duration(i)*time.Millisecond, false)
	}

	p, _, _ := recorder.snapshot()
	require.Equal(t, 50*time.Millisecond, p.P50)
	require.Equal(t, 95*time.Millisecond, p.P95)
	require.Equal(t, 99*time.Millisecond, p.P99)
}
