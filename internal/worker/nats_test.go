package worker

import (
	"context"
	"sync"
	"testing"

	"quant-backtester/internal/engine"
	"quant-backtester/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type replies struct {
	mu   sync.Mutex
	byID map[string]Response
}

func (r *replies) record(resp Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byID == nil {
		r.byID = make(map[string]Response)
	}
	r.byID[resp.ID] = resp
}

func TestNATSServer_JobRunsDispatcher(t *testing.T) {
	d := NewDispatcher(&fakeRunner{}, nil, nil, zap.NewNop())
	s := NewNATSServer(nil, nil, d, nil, "sim.requests", "sim.progress", zap.NewNop())

	var got replies
	s.job(request(t, TypeRunBacktest, "ok-1", RunPayload{
		Candles: make([]model.Candle, 2),
		Config:  model.StrategyConfig{AgentID: "ma_cross"},
	}), got.record)(context.Background())

	require.Contains(t, got.byID, "ok-1")
	assert.Equal(t, ResponseResult, got.byID["ok-1"].Type)
}

func TestNATSServer_ShutdownAnswersQueuedRequests(t *testing.T) {
	runner := &fakeRunner{}
	d := NewDispatcher(runner, nil, nil, zap.NewNop())
	pool := engine.NewWorkerPool(1, 4, zap.NewNop())
	s := NewNATSServer(nil, nil, d, pool, "sim.requests", "sim.progress", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	release := make(chan struct{})
	require.NoError(t, pool.Submit(ctx, func(context.Context) { <-release }))

	var got replies
	ids := []string{"q-1", "q-2", "q-3"}
	for _, id := range ids {
		req := request(t, TypeRunBacktest, id, RunPayload{
			Candles: make([]model.Candle, 2),
			Config:  model.StrategyConfig{AgentID: "ma_cross"},
		})
		require.True(t, pool.TrySubmit(s.job(req, got.record)))
	}

	cancel()
	close(release)
	pool.Stop()

	require.Len(t, got.byID, len(ids), "every queued request gets a reply")
	for _, id := range ids {
		assert.Equal(t, ResponseError, got.byID[id].Type, id)
		assert.Equal(t, "worker shutting down", got.byID[id].Error, id)
	}
	assert.Nil(t, runner.candles, "no simulation ran after cancellation")
}
