package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterAcquireReleaseTracksMetrics(t *testing.T) {
	l := NewLimiter(2)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.EqualValues(t, 1, l.CurrentActive())
	require.NoError(t, l.Acquire(ctx))
	require.EqualValues(t, 2, l.CurrentActive())

	l.Release()
	l.Release()
	require.EqualValues(t, 0, l.CurrentActive())

	m := l.GetMetrics()
	require.EqualValues(t, 2, m.TotalAcquired)
	require.EqualValues(t, 2, m.TotalReleased)
	require.EqualValues(t, 2, m.PeakConcurrent)
}

func TestLimiterBlocksAtCapacity(t *testing.T) {
	l := NewLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	l.Release()
	require.NoError(t, l.Acquire(context.Background()))
	l.Release()
}

func TestLimiterCapacityFloor(t *testing.T) {
	require.Equal(t, 1, NewLimiter(0).Capacity())
	require.Equal(t, 1, NewLimiter(-5).Capacity())
	require.Equal(t, 8, NewLimiter(8).Capacity())
}

func TestLimiterUnbalancedReleaseIsHarmless(t *testing.T) {
	l := NewLimiter(1)
	l.Release()
	require.EqualValues(t, 0, l.CurrentActive())
}

func TestRunSyncRecordsBreakerOutcomes(t *testing.T) {
	cb := NewCircuitBreaker(2, 50*time.Millisecond)
	l := NewLimiterWithCircuitBreaker(1, cb)

	require.NoError(t, l.RunSync(context.Background(), func() error { return nil }))
	require.Equal(t, StateClosed, cb.State())

	boom := errors.New("boom")
	require.ErrorIs(t, l.RunSync(context.Background(), func() error { return boom }), boom)
	require.ErrorIs(t, l.RunSync(context.Background(), func() error { return boom }), boom)
	require.Equal(t, StateOpen, cb.State())

	err := l.Acquire(context.Background())
	require.Error(t, err)
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())
	require.True(t, cb.IsOpen())

	time.Sleep(20 * time.Millisecond)
	require.False(t, cb.IsOpen())
	require.Equal(t, StateHalfOpen, cb.State())

	for i := 0; i < 5; i++ {
		cb.RecordSuccess()
	}
	require.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	require.Equal(t, StateClosed, cb.State())
	require.False(t, cb.IsOpen())
}

func TestLoadConfigRespectsEnvironmentOverrides(t *testing.T) {
	t.Setenv("DAEDALUS_MAX_PARALLELISM", "42")

	cfg := LoadConfig()
	require.Equal(t, 42, cfg.MaxParallelism)
	require.Equal(t, ConfigSourceEnvVar, cfg.Source)
}

func TestLoadConfigMultiplier(t *testing.T) {
	t.Setenv("DAEDALUS_MAX_PARALLELISM", "")
	t.Setenv("DAEDALUS_PARALLELISM_MULTIPLIER", "3")

	cfg := LoadConfig()
	require.Equal(t, cfg.EffectiveCPUs*3, cfg.MaxParallelism)
	require.Equal(t, ConfigSourceEnvVar, cfg.Source)
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	t.Setenv("DAEDALUS_MAX_PARALLELISM", "")
	t.Setenv("DAEDALUS_PARALLELISM_MULTIPLIER", "")

	cfg := LoadConfig()
	require.GreaterOrEqual(t, cfg.MaxParallelism, 1)
	require.Equal(t, ConfigSourceAutoDetect, cfg.Source)
	require.Positive(t, cfg.EffectiveCPUs)
}
