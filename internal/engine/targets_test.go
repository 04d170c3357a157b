package engine

import (
	"testing"

	"quant-backtester/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rangedCandles keeps every true range at 2*halfRange around a flat price.
func rangedCandles(n int, price, halfRange float64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{
			Time:    int64(i) * model.MinuteMs,
			Open:    price,
			High:    price + halfRange,
			Low:     price - halfRange,
			Close:   price,
			Volume:  1,
			IsFinal: true,
		}
	}
	return out
}

func noSR() model.Params {
	return model.Params{"useSupportResistance": false}
}

func TestProfileFor(t *testing.T) {
	assert.Equal(t, TargetProfile{ATRMultiplier: 2.0, RiskReward: 1.8}, ProfileFor("15m"))
	assert.Equal(t, TargetProfile{ATRMultiplier: 3.0, RiskReward: 2.5}, ProfileFor("4h"))
	assert.Equal(t, defaultProfile, ProfileFor("9m"))
}

func TestTargetCalculator_Distances(t *testing.T) {
	tests := []struct {
		name      string
		timeframe string
		dir       model.Direction
		history   []model.Candle
		wantDist  float64
		wantStop  float64
		wantTP    float64
	}{
		{"atr times 1m multiplier", "1m", model.Long, rangedCandles(30, 100, 1), 2, 98, 102.4},
		{"atr times 1h multiplier", "1h", model.Long, rangedCandles(30, 100, 1), 5, 95, 110},
		{"unknown timeframe uses default", "9m", model.Long, rangedCandles(30, 100, 1), 4, 96, 108},
		{"short mirrors", "4h", model.Short, rangedCandles(30, 100, 1), 6, 106, 85},
		{"zero atr falls back to 2%", "15m", model.Long, flatCandles(30, 100), 2, 98, 103.6},
		{"short history falls back to 2%", "1m", model.Short, rangedCandles(5, 100, 1), 2, 102, 97.6},
		{"tiny atr floored at 0.5%", "1m", model.Short, rangedCandles(30, 100, 0.05), 0.5, 100.5, 99.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewTargetCalculator(tt.timeframe).Calculate(100, tt.dir, tt.history, noSR())
			assert.InDelta(t, tt.wantDist, got.StopDistance, 1e-9)
			assert.InDelta(t, tt.wantStop, got.StopLoss, 1e-9)
			assert.InDelta(t, tt.wantTP, got.TakeProfit, 1e-9)
			assert.Empty(t, got.PartialTargets)
		})
	}
}

func TestTargetCalculator_SupportResistanceClamp(t *testing.T) {
	calc := NewTargetCalculator("1h")
	withSR := model.Params{"useSupportResistance": true, "pivotStrength": 2}

	t.Run("resistance inside target clamps long", func(t *testing.T) {
		history := rangedCandles(30, 100, 1)
		history[20].High = 104
		unclamped := calc.Calculate(100, model.Long, history, noSR())
		got := calc.Calculate(100, model.Long, history, withSR)

		require.Greater(t, unclamped.TakeProfit, 104.0)
		assert.InDelta(t, 104, got.TakeProfit, 1e-9)
		assert.Equal(t, unclamped.StopLoss, got.StopLoss)
	})

	t.Run("resistance beyond target never extends", func(t *testing.T) {
		history := rangedCandles(30, 100, 1)
		history[20].High = 130
		unclamped := calc.Calculate(100, model.Long, history, noSR())
		got := calc.Calculate(100, model.Long, history, withSR)

		require.Less(t, unclamped.TakeProfit, 130.0)
		assert.Equal(t, unclamped.TakeProfit, got.TakeProfit)
	})

	t.Run("support inside target clamps short", func(t *testing.T) {
		history := rangedCandles(30, 100, 1)
		history[20].Low = 96
		unclamped := calc.Calculate(100, model.Short, history, noSR())
		got := calc.Calculate(100, model.Short, history, withSR)

		require.Less(t, unclamped.TakeProfit, 96.0)
		assert.InDelta(t, 96, got.TakeProfit, 1e-9)
	})

	t.Run("no pivots leaves target", func(t *testing.T) {
		history := rangedCandles(30, 100, 1)
		got := calc.Calculate(100, model.Long, history, withSR)
		assert.InDelta(t, 110, got.TakeProfit, 1e-9)
	})
}

func TestTargetCalculator_PartialTargets(t *testing.T) {
	calc := NewTargetCalculator("1h")

	p := noSR()
	p["partialTakeProfit"] = true
	got := calc.Calculate(100, model.Long, rangedCandles(30, 100, 1), p)
	require.Len(t, got.PartialTargets, 2)
	assert.InDelta(t, 105, got.PartialTargets[0].Price, 1e-9)
	assert.InDelta(t, 110, got.PartialTargets[1].Price, 1e-9)
	assert.Equal(t, 0.5, got.PartialTargets[0].Fraction)

	// A clamped target inside the first level leaves nothing to scale out of.
	history := rangedCandles(30, 100, 1)
	history[20].High = 104
	p["useSupportResistance"] = true
	got = calc.Calculate(100, model.Long, history, p)
	assert.Empty(t, got.PartialTargets)
}

func TestValidateProfitability(t *testing.T) {
	tests := []struct {
		name                           string
		dir                            model.Direction
		entry, stop, target, size, fee float64
		minRR                          float64
		enforce                        bool
		wantOK                         bool
		wantReason                     string
	}{
		{"fee-adjusted rr above minimum", model.Long, 100, 98, 104, 10, 0.001, 1.5, true, true, ""},
		{"fee-adjusted rr below minimum", model.Long, 100, 98, 104, 10, 0.001, 2, true, false, "risk/reward below minimum"},
		{"minimum not enforced", model.Long, 100, 98, 104, 10, 0.001, 2, false, true, ""},
		{"target inside fees", model.Long, 100, 99, 100.1, 10, 0.001, 0, false, false, "target does not cover fees"},
		{"long stop above entry", model.Long, 100, 101, 104, 10, 0.001, 0, false, false, "stop or target on wrong side of entry"},
		{"short target above entry", model.Short, 100, 102, 105, 1, 0, 0, false, false, "stop or target on wrong side of entry"},
		{"short winner", model.Short, 100, 102, 95, 1, 0, 2, true, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := ValidateProfitability(tt.dir, tt.entry, tt.stop, tt.target, tt.size, tt.fee, tt.minRR, tt.enforce)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}
