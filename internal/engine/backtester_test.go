package engine

import (
	"testing"

	"quant-backtester/internal/model"
	"quant-backtester/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBacktester(agents []strategy.Agent, opts ...Option) *Backtester {
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	return NewBacktester(strategy.NewRegistry(agents...), opts...)
}

func TestBacktest_ZeroTrades(t *testing.T) {
	bt := newTestBacktester(nil)

	t.Run("flat series with unknown agent", func(t *testing.T) {
		res, err := bt.Run(flatCandles(300, 100), baseConfig("does_not_exist"), nil)
		require.NoError(t, err)

		assert.Equal(t, "does_not_exist", res.AgentID)
		assert.Equal(t, 0, res.TotalTrades)
		assert.Equal(t, 0.0, res.WinRate)
		assert.Equal(t, model.Ratio(0), res.ProfitFactor)
		assert.True(t, res.MaxDrawdown.IsZero())
		assert.True(t, res.FinalEquity.Equal(d(1000)), res.FinalEquity.String())
		assert.Len(t, res.EquityCurve, 100)
	})

	t.Run("below warm-up", func(t *testing.T) {
		res, err := bt.Run(uptrend(DefaultWarmup), baseConfig("does_not_exist"), nil)
		require.NoError(t, err)
		assert.Equal(t, 0, res.TotalTrades)
		assert.Empty(t, res.EquityCurve)
		assert.NotNil(t, res.Trades)
	})

	t.Run("bad timeframe", func(t *testing.T) {
		cfg := baseConfig("x")
		cfg.Timeframe = "7y"
		_, err := bt.Run(flatCandles(10, 1), cfg, nil)
		assert.Error(t, err)
	})
}

func TestBacktest_UptrendSingleEntry(t *testing.T) {
	agent := &scriptedAgent{id: "buy_once", signal: func(history []model.Candle, _ model.Params) model.Action {
		if len(history) == DefaultWarmup+1 {
			return model.ActionBuy
		}
		return model.ActionHold
	}}
	bt := newTestBacktester([]strategy.Agent{agent})

	res, err := bt.Run(uptrend(300), baseConfig("buy_once"), nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalTrades)

	trade := res.Trades[0]
	assert.Equal(t, model.Long, trade.Direction)
	assert.Contains(t, []string{model.ExitTakeProfit, model.ExitEndOfData}, trade.ExitReason)
	assert.True(t, trade.PnL.IsPositive())
	assert.True(t, trade.PnL.GreaterThan(res.TotalFees))
	assert.True(t, trade.PnL.Equal(trade.GrossPnL.Sub(trade.Fees)))

	assert.Equal(t, 1, res.WinningTrades)
	assert.Equal(t, 100.0, res.WinRate)
	assert.True(t, res.ProfitFactor > 1e300, "no losses means infinite profit factor")
	assert.True(t, res.FinalEquity.Equal(d(1000).Add(trade.PnL)), res.FinalEquity.String())
	assert.True(t, res.FinalEquity.Equal(res.EquityCurve[len(res.EquityCurve)-1].Equity))
}

func TestBacktest_ForceCloseAtEnd(t *testing.T) {
	agent := &scriptedAgent{id: "late", signal: func(history []model.Candle, _ model.Params) model.Action {
		if len(history) == 299 {
			return model.ActionBuy
		}
		return model.ActionHold
	}}
	bt := newTestBacktester([]strategy.Agent{agent})

	res, err := bt.Run(uptrend(300), baseConfig("late"), nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalTrades)
	assert.Equal(t, model.ExitEndOfData, res.Trades[0].ExitReason)
	assert.Equal(t, uptrend(300)[299].Close, res.Trades[0].ExitPrice)
}

// cooldownAgent enters on the scripted history lengths and exits on the
// first management call.
func cooldownAgent(entries map[int]model.Action) *scriptedAgent {
	return &scriptedAgent{
		id: "cooldown",
		signal: func(history []model.Candle, _ model.Params) model.Action {
			if a, ok := entries[len(history)]; ok {
				return a
			}
			return model.ActionHold
		},
		manage: func(model.SimulatedPosition, float64) strategy.Management {
			return strategy.Management{ClosePosition: true, Reason: "scripted exit"}
		},
	}
}

func TestBacktest_CooldownVeto(t *testing.T) {
	const warmup = 5
	candles := flatCandles(12, 100)
	cfg := baseConfig("cooldown")
	cfg.UseCooldown = true
	cfg.CooldownCandles = 3

	t.Run("same direction waits out the cooldown", func(t *testing.T) {
		// entry at index 5, exit at 6, BUY asked for on every index from 7
		entries := map[int]model.Action{6: model.ActionBuy}
		for n := 8; n <= 12; n++ {
			entries[n] = model.ActionBuy
		}
		bt := newTestBacktester([]strategy.Agent{cooldownAgent(entries)}, WithWarmup(warmup))

		res, err := bt.Run(candles, cfg, nil)
		require.NoError(t, err)
		require.Equal(t, 2, res.TotalTrades)
		assert.Equal(t, candles[6].Time, res.Trades[0].ExitTime)
		assert.Equal(t, candles[9].Time, res.Trades[1].EntryTime)
		assert.Equal(t, "scripted exit", res.Trades[0].ExitReason)
	})

	t.Run("opposite direction is never vetoed", func(t *testing.T) {
		entries := map[int]model.Action{6: model.ActionBuy, 8: model.ActionSell}
		bt := newTestBacktester([]strategy.Agent{cooldownAgent(entries)}, WithWarmup(warmup))

		res, err := bt.Run(candles, cfg, nil)
		require.NoError(t, err)
		require.Equal(t, 2, res.TotalTrades)
		assert.Equal(t, model.Short, res.Trades[1].Direction)
		assert.Equal(t, candles[7].Time, res.Trades[1].EntryTime)
	})

	t.Run("disabled cooldown re-enters on the next candle", func(t *testing.T) {
		entries := map[int]model.Action{6: model.ActionBuy, 8: model.ActionBuy}
		bt := newTestBacktester([]strategy.Agent{cooldownAgent(entries)}, WithWarmup(warmup))

		res, err := bt.Run(candles, baseConfig("cooldown"), nil)
		require.NoError(t, err)
		require.Equal(t, 2, res.TotalTrades)
		assert.Equal(t, candles[7].Time, res.Trades[1].EntryTime)
	})
}

func TestBacktest_HardCapAndLockedTarget(t *testing.T) {
	agent := &scriptedAgent{id: "once", signal: func(history []model.Candle, _ model.Params) model.Action {
		if len(history) == 6 {
			return model.ActionBuy
		}
		return model.ActionHold
	}}
	bt := newTestBacktester([]strategy.Agent{agent}, WithWarmup(5))

	cfg := baseConfig("once")
	cfg.Params["maxStopLossPercent"] = 1.0
	cfg.TakeProfitLocked = true
	cfg.FixedRiskReward = 3

	res, err := bt.Run(flatCandles(8, 100), cfg, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalTrades)

	trade := res.Trades[0]
	assert.InDelta(t, 99.0, trade.InitialStopLoss, 1e-9)
	assert.InDelta(t, 103.0, trade.InitialTakeProfit, 1e-9)
	assert.Equal(t, model.StopHardCap, trade.StopLossReason)
}

func TestBacktest_HardCapRespectsStopFloor(t *testing.T) {
	agent := &scriptedAgent{id: "once", signal: func(history []model.Candle, _ model.Params) model.Action {
		if len(history) == 6 {
			return model.ActionBuy
		}
		return model.ActionHold
	}}
	bt := newTestBacktester([]strategy.Agent{agent}, WithWarmup(5))

	// Flat candles have no ATR, so the uncapped stop sits at the 2% fallback.
	tests := []struct {
		name       string
		capPct     float64
		wantStop   float64
		wantReason model.StopReason
	}{
		{"cap below floor widens to floor", 0.1, 99.5, model.StopHardCap},
		{"cap at floor", 0.5, 99.5, model.StopHardCap},
		{"cap tightens fallback", 1.5, 98.5, model.StopHardCap},
		{"cap wider than stop", 5, 98, model.StopAgentLogic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig("once")
			cfg.Params["maxStopLossPercent"] = tt.capPct

			res, err := bt.Run(flatCandles(8, 100), cfg, nil)
			require.NoError(t, err)
			require.Equal(t, 1, res.TotalTrades)

			trade := res.Trades[0]
			assert.InDelta(t, tt.wantStop, trade.InitialStopLoss, 1e-9)
			assert.Equal(t, tt.wantReason, trade.StopLossReason)
			assert.GreaterOrEqual(t, trade.EntryPrice-trade.InitialStopLoss, trade.EntryPrice*minStopDistancePct-1e-9)
		})
	}
}

func TestBacktest_MinRiskRewardVeto(t *testing.T) {
	agent := &scriptedAgent{id: "once", signal: func(history []model.Candle, _ model.Params) model.Action {
		return model.ActionBuy
	}}
	bt := newTestBacktester([]strategy.Agent{agent}, WithWarmup(5))

	cfg := baseConfig("once")
	cfg.UseMinRiskReward = true
	cfg.MinRiskReward = 5

	res, err := bt.Run(flatCandles(10, 100), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalTrades)
}

func TestVisibleHigher_NoLookAhead(t *testing.T) {
	var seen []int
	agent := &scriptedAgent{id: "htf"}
	bt := newTestBacktester([]strategy.Agent{agent}, WithWarmup(0))

	cfg := baseConfig("htf")
	cfg.Timeframe = "15m"
	cfg.HigherTimeframe = "1h"
	cfg.UseHigherTimeframe = true

	s, err := bt.Prepare(flatCandles(240, 100), cfg, flatCandles(240, 100))
	require.NoError(t, err)
	require.Len(t, s.Candles, 16)
	require.Len(t, s.Higher, 4)

	sim := &simulation{cfg: cfg, series: s}
	for _, c := range s.Candles {
		seen = append(seen, len(sim.visibleHigher(c)))
	}
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4}, seen)
}
