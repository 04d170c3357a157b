package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkerPool_SubmitAndProcess(t *testing.T) {
	pool := NewWorkerPool(3, 4, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var done int64
	for i := 0; i < 20; i++ {
		err := pool.Submit(ctx, func(context.Context) { atomic.AddInt64(&done, 1) })
		assert.NoError(t, err)
	}
	pool.Stop()
	assert.Equal(t, int64(20), atomic.LoadInt64(&done))
}

func TestWorkerPool_TrySubmitFull(t *testing.T) {
	pool := NewWorkerPool(1, 1, zap.NewNop())
	assert.True(t, pool.TrySubmit(func(context.Context) {}))
	assert.False(t, pool.TrySubmit(func(context.Context) {}))
}

func TestWorkerPool_SubmitAfterCancel(t *testing.T) {
	pool := NewWorkerPool(1, 0, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.Submit(ctx, func(context.Context) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerPool_QueuedJobsSeeCancellation(t *testing.T) {
	pool := NewWorkerPool(1, 4, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	release := make(chan struct{})
	require.NoError(t, pool.Submit(ctx, func(context.Context) { <-release }))

	var called, cancelled int64
	for i := 0; i < 3; i++ {
		require.True(t, pool.TrySubmit(func(ctx context.Context) {
			atomic.AddInt64(&called, 1)
			if ctx.Err() != nil {
				atomic.AddInt64(&cancelled, 1)
			}
		}))
	}
	cancel()
	close(release)
	pool.Stop()

	assert.Equal(t, int64(3), atomic.LoadInt64(&called), "no queued job is dropped")
	assert.Equal(t, int64(3), atomic.LoadInt64(&cancelled))
}
