package strategy

import (
	"fmt"

	"quant-backtester/internal/indicator"
	"quant-backtester/internal/model"
)

// BreakoutAgent trades closes outside the Donchian channel of the previous
// lookback candles, confirmed by volume.
type BreakoutAgent struct{}

func NewBreakoutAgent() *BreakoutAgent {
	return &BreakoutAgent{}
}

func (s *BreakoutAgent) ID() string   { return "breakout" }
func (s *BreakoutAgent) Name() string { return "Donchian Breakout" }

func (s *BreakoutAgent) Defaults() model.Params {
	return model.Params{
		"lookback":         20,
		"volumeMultiplier": 1.5,
	}
}

func (s *BreakoutAgent) TimeframeDefaults(timeframe string) model.Params {
	if timeframe == "1m" {
		return model.Params{"lookback": 30}
	}
	return nil
}

func (s *BreakoutAgent) ParameterRanges() map[string][]any {
	return map[string][]any{
		"lookback":         {10, 20, 30, 55},
		"volumeMultiplier": {1.0, 1.5, 2.0},
	}
}

func (s *BreakoutAgent) MinHistory(p model.Params) int {
	return p.Int("lookback", 20) + 2
}

func (s *BreakoutAgent) Signal(history []model.Candle, p model.Params, _ []model.Candle) Signal {
	if len(history) < s.MinHistory(p) {
		return Hold(fmt.Sprintf("need %d candles, have %d", s.MinHistory(p), len(history)))
	}
	lookback := p.Int("lookback", 20)
	n := len(history) - 1
	upper, ok0 := indicator.Highest(history, n-1, lookback)
	lower, ok1 := indicator.Lowest(history, n-1, lookback)
	avgVol, ok2 := indicator.AverageVolume(history, n-1, lookback)
	if !ok0 || !ok1 || !ok2 {
		return Hold("channel unavailable: inconclusive")
	}

	c := history[n]
	need := avgVol * p.Float("volumeMultiplier", 1.5)
	volLine := fmt.Sprintf("volume %.2f vs required %.2f", c.Volume, need)
	switch {
	case c.Close > upper:
		if c.Volume < need {
			return Hold(fmt.Sprintf("close above %d-candle high %.4f: pass", lookback, upper), volLine+": fail")
		}
		return Signal{Action: model.ActionBuy, Rationale: []string{
			fmt.Sprintf("close above %d-candle high %.4f: pass", lookback, upper), volLine + ": pass",
		}}
	case c.Close < lower:
		if c.Volume < need {
			return Hold(fmt.Sprintf("close below %d-candle low %.4f: pass", lookback, lower), volLine+": fail")
		}
		return Signal{Action: model.ActionSell, Rationale: []string{
			fmt.Sprintf("close below %d-candle low %.4f: pass", lookback, lower), volLine + ": pass",
		}}
	}
	return Hold(fmt.Sprintf("close inside channel %.4f-%.4f", lower, upper))
}

// Manage trails the stop to the channel midline.
func (s *BreakoutAgent) Manage(pos model.SimulatedPosition, history []model.Candle, price float64, p model.Params) Management {
	lookback := p.Int("lookback", 20)
	n := len(history) - 1
	hh, ok0 := indicator.Highest(history, n, lookback)
	ll, ok1 := indicator.Lowest(history, n, lookback)
	if !ok0 || !ok1 {
		return Management{}
	}
	mid := (hh + ll) / 2
	if (pos.IsLong() && mid < price) || (!pos.IsLong() && mid > price) {
		return Management{
			NewStopLoss: ptr(mid),
			Rationale:   []string{fmt.Sprintf("trail to channel midline %.4f", mid)},
		}
	}
	return Management{}
}
