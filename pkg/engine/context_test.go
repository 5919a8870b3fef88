package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutputStoreWriteOnce(t *testing.T) {
	s := NewOutputStore()
	require.NoError(t, s.Write("a", "out", 1))
	require.Error(t, s.Write("a", "out", 2))

	v, ok := s.Read("a", "out")
	require.True(t, ok)
	require.Equal(t, 1, v)

	_, ok = s.Read("a", "missing")
	require.False(t, ok)
}

func TestOutputStoreNodeOutputs(t *testing.T) {
	s := NewOutputStore()
	require.NoError(t, s.Write("a", "x", 1))
	require.NoError(t, s.Write("a", "y", 2))
	require.NoError(t, s.Write("b", "x", 3))

	out := s.NodeOutputs("a")
	require.Equal(t, map[string]any{"x": 1, "y": 2}, out)
}

func TestStatusStoreMonotonicTransitions(t *testing.T) {
	s := newStatusStore([]string{"a"})
	require.Equal(t, StatusPending, s.get("a"))

	require.NoError(t, s.set("a", StatusRunning))
	require.Error(t, s.set("a", StatusPending))

	require.NoError(t, s.set("a", StatusSucceeded))
	require.Error(t, s.set("a", StatusFailed))
	require.Error(t, s.set("a", StatusRunning))
}

func TestStatusStoreMarkSkippedOnlyFromPending(t *testing.T) {
	s := newStatusStore([]string{"a", "b"})

	require.True(t, s.markSkipped("a", SkipUpstreamFailed))
	require.Equal(t, StatusSkipped, s.get("a"))
	require.Equal(t, SkipUpstreamFailed, s.skipReason("a"))
	require.False(t, s.markSkipped("a", SkipCancelled))

	require.NoError(t, s.set("b", StatusRunning))
	require.False(t, s.markSkipped("b", SkipCancelled))
}

func TestStatusStorePending(t *testing.T) {
	s := newStatusStore([]string{"a", "b", "c"})
	require.NoError(t, s.set("a", StatusRunning))
	require.True(t, s.markSkipped("b", SkipCancelled))

	require.ElementsMatch(t, []string{"c"}, s.pending())
}

func TestOptionsNormalizedDefaults(t *testing.T) {
	opts := Options{}.normalized()
	require.Greater(t, opts.MaxParallelism, 0)
	require.Equal(t, DefaultMaxDepth, opts.MaxDepth)
	require.Zero(t, opts.RunDeadline)
	require.Zero(t, opts.NodeTimeout)
}
