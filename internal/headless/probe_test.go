package headless

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chrome")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o700))
	return path
}

func TestProbeMemoizesResult(t *testing.T) {
	t.Parallel()

	var checks atomic.Int32
	probe := NewProbe(ProbeConfig{
		BinaryPaths: []string{fakeBinary(t)},
		LivenessCheck: func(_ context.Context, _ string) error {
			checks.Add(1)
			return nil
		},
	}, nil)

	ctx := context.Background()
	assert.True(t, probe.Available(ctx))
	assert.True(t, probe.Available(ctx))
	assert.Equal(t, int32(1), checks.Load(), "liveness check must run once")
	assert.NotEmpty(t, probe.Binary())
}

func TestProbeSingleFlightUnderConcurrency(t *testing.T) {
	t.Parallel()

	var checks atomic.Int32
	probe := NewProbe(ProbeConfig{
		BinaryPaths: []string{fakeBinary(t)},
		LivenessCheck: func(_ context.Context, _ string) error {
			checks.Add(1)
			return nil
		},
	}, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			probe.Available(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), checks.Load())
}

func TestProbeIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	probe := NewProbe(ProbeConfig{
		BinaryPaths: []string{fakeBinary(t)},
		LivenessCheck: func(ctx context.Context, _ string) error {
			return ctx.Err()
		},
	}, nil)

	// A canceled per-item context must not memoize a false negative for
	// the rest of the process.
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, probe.Available(canceled))
	assert.True(t, probe.Available(context.Background()))
}

func TestProbeUnavailablePaths(t *testing.T) {
	t.Parallel()

	t.Run("NoBinaryAnywhere", func(t *testing.T) {
		probe := NewProbe(ProbeConfig{
			BinaryPaths: []string{filepath.Join(t.TempDir(), "missing")},
			LivenessCheck: func(_ context.Context, _ string) error {
				t.Fatal("liveness check must not run without a binary")
				return nil
			},
		}, nil)
		// The PATH lookup may still find a real browser on a developer
		// machine; only assert when it does not.
		if probe.findBinary() == "" {
			assert.False(t, probe.Available(context.Background()))
		}
	})

	t.Run("LaunchFailure", func(t *testing.T) {
		probe := NewProbe(ProbeConfig{
			BinaryPaths: []string{fakeBinary(t)},
			LivenessCheck: func(_ context.Context, _ string) error {
				return errors.New("driver mismatch")
			},
		}, nil)
		assert.False(t, probe.Available(context.Background()))
		assert.Empty(t, probe.Binary())
	})

	t.Run("Disabled", func(t *testing.T) {
		probe := NewProbe(ProbeConfig{
			Disabled: true,
			LivenessCheck: func(_ context.Context, _ string) error {
				t.Fatal("liveness check must not run when disabled")
				return nil
			},
		}, nil)
		assert.False(t, probe.Available(context.Background()))
	})
}

func TestProbeReset(t *testing.T) {
	t.Parallel()

	var checks atomic.Int32
	probe := NewProbe(ProbeConfig{
		BinaryPaths: []string{fakeBinary(t)},
		LivenessCheck: func(_ context.Context, _ string) error {
			checks.Add(1)
			return nil
		},
	}, nil)

	require.True(t, probe.Available(context.Background()))
	probe.Reset()
	require.True(t, probe.Available(context.Background()))
	assert.Equal(t, int32(2), checks.Load())
}
