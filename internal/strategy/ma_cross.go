package strategy

import (
	"fmt"

	"quant-backtester/internal/indicator"
	"quant-backtester/internal/model"
)

// MACrossAgent trades EMA crossovers.
type MACrossAgent struct{}

func NewMACrossAgent() *MACrossAgent {
	return &MACrossAgent{}
}

func (s *MACrossAgent) ID() string {
	return "ma_cross"
}

func (s *MACrossAgent) Name() string {
	return "Moving Average Crossover"
}

func (s *MACrossAgent) Defaults() model.Params {
	return model.Params{
		"fastPeriod":     9,
		"slowPeriod":     21,
		"trendPeriod":    50,
		"useTrendFilter": true,
	}
}

func (s *MACrossAgent) TimeframeDefaults(timeframe string) model.Params {
	switch timeframe {
	case "1m", "3m", "5m":
		return model.Params{"fastPeriod": 7, "slowPeriod": 18}
	case "4h", "1d":
		return model.Params{"fastPeriod": 12, "slowPeriod": 26}
	}
	return nil
}

func (s *MACrossAgent) ParameterRanges() map[string][]any {
	return map[string][]any{
		"fastPeriod":     {5, 9, 12},
		"slowPeriod":     {21, 26, 34},
		"useTrendFilter": {true, false},
	}
}

func (s *MACrossAgent) MinHistory(p model.Params) int {
	return max(p.Int("fastPeriod", 9), p.Int("slowPeriod", 21)) + 2
}

func (s *MACrossAgent) Signal(history []model.Candle, p model.Params, higher []model.Candle) Signal {
	if len(history) < s.MinHistory(p) {
		return Hold(fmt.Sprintf("need %d candles, have %d", s.MinHistory(p), len(history)))
	}
	fastP, slowP := p.Int("fastPeriod", 9), p.Int("slowPeriod", 21)
	closes := model.Closes(history)
	fast := indicator.EMA(closes, fastP)
	slow := indicator.EMA(closes, slowP)

	n := len(closes) - 1
	f0, ok0 := indicator.At(fast, n)
	f1, ok1 := indicator.At(fast, n-1)
	s0, ok2 := indicator.At(slow, n)
	s1, ok3 := indicator.At(slow, n-1)
	if !ok0 || !ok1 || !ok2 || !ok3 {
		return Hold("EMA values unavailable: inconclusive")
	}

	var action model.Action
	var rationale []string
	switch {
	case f1 <= s1 && f0 > s0:
		action = model.ActionBuy
		rationale = append(rationale, fmt.Sprintf("EMA%d crossed above EMA%d: pass", fastP, slowP))
	case f1 >= s1 && f0 < s0:
		action = model.ActionSell
		rationale = append(rationale, fmt.Sprintf("EMA%d crossed below EMA%d: pass", fastP, slowP))
	default:
		return Hold(fmt.Sprintf("no EMA%d/EMA%d crossover", fastP, slowP))
	}

	if p.Bool("useTrendFilter", true) {
		line, ok := higherTrend(higher, p.Int("trendPeriod", 50), action)
		if line != "" {
			rationale = append(rationale, line)
		}
		if !ok {
			return Hold(rationale...)
		}
	}
	return Signal{Action: action, Rationale: rationale}
}

// Manage trails the stop to the slow EMA once the trade is in profit.
func (s *MACrossAgent) Manage(pos model.SimulatedPosition, history []model.Candle, price float64, p model.Params) Management {
	if !pos.InProfit(price) {
		return Management{}
	}
	slowP := p.Int("slowPeriod", 21)
	slow, ok := indicator.Last(indicator.EMA(model.Closes(history), slowP))
	if !ok {
		return Management{}
	}
	if (pos.IsLong() && slow < price) || (!pos.IsLong() && slow > price) {
		return Management{
			NewStopLoss: ptr(slow),
			Rationale:   []string{fmt.Sprintf("trail to EMA%d %.4f", slowP, slow)},
		}
	}
	return Management{}
}
