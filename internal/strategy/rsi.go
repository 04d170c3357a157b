package strategy

import (
	"fmt"

	"quant-backtester/internal/indicator"
	"quant-backtester/internal/model"
)

// RSIAgent fades oversold/overbought extremes.
type RSIAgent struct{}

func NewRSIAgent() *RSIAgent {
	return &RSIAgent{}
}

func (s *RSIAgent) ID() string   { return "rsi_reversion" }
func (s *RSIAgent) Name() string { return "RSI Reversion" }

func (s *RSIAgent) Defaults() model.Params {
	return model.Params{
		"rsiPeriod":      14,
		"oversold":       30.0,
		"overbought":     70.0,
		"trendPeriod":    50,
		"useTrendFilter": false,
	}
}

func (s *RSIAgent) TimeframeDefaults(timeframe string) model.Params {
	switch timeframe {
	case "1m", "3m":
		return model.Params{"oversold": 25.0, "overbought": 75.0}
	}
	return nil
}

func (s *RSIAgent) ParameterRanges() map[string][]any {
	return map[string][]any{
		"rsiPeriod":  {7, 14, 21},
		"oversold":   {25.0, 30.0, 35.0},
		"overbought": {65.0, 70.0, 75.0},
	}
}

func (s *RSIAgent) MinHistory(p model.Params) int {
	return p.Int("rsiPeriod", 14) + 2
}

func (s *RSIAgent) Signal(history []model.Candle, p model.Params, higher []model.Candle) Signal {
	if len(history) < s.MinHistory(p) {
		return Hold(fmt.Sprintf("need %d candles, have %d", s.MinHistory(p), len(history)))
	}
	period := p.Int("rsiPeriod", 14)
	low, high := p.Float("oversold", 30), p.Float("overbought", 70)
	rsi := indicator.RSI(model.Closes(history), period)
	n := len(history) - 1
	cur, ok0 := indicator.At(rsi, n)
	prev, ok1 := indicator.At(rsi, n-1)
	if !ok0 || !ok1 {
		return Hold("RSI unavailable: inconclusive")
	}

	var action model.Action
	var rationale []string
	switch {
	case prev <= low && cur > low:
		action = model.ActionBuy
		rationale = append(rationale, fmt.Sprintf("RSI%d left oversold %.1f -> %.1f: pass", period, prev, cur))
	case prev >= high && cur < high:
		action = model.ActionSell
		rationale = append(rationale, fmt.Sprintf("RSI%d left overbought %.1f -> %.1f: pass", period, prev, cur))
	default:
		return Hold(fmt.Sprintf("RSI%d %.1f inside bands", period, cur))
	}

	if p.Bool("useTrendFilter", false) {
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

// Manage closes once RSI reaches the opposite band.
func (s *RSIAgent) Manage(pos model.SimulatedPosition, history []model.Candle, price float64, p model.Params) Management {
	period := p.Int("rsiPeriod", 14)
	cur, ok := indicator.Last(indicator.RSI(model.Closes(history), period))
	if !ok {
		return Management{}
	}
	if pos.IsLong() && cur >= p.Float("overbought", 70) {
		return Management{ClosePosition: true, Reason: "RSI Overbought Exit",
			Rationale: []string{fmt.Sprintf("RSI%d %.1f reached overbought", period, cur)}}
	}
	if !pos.IsLong() && cur <= p.Float("oversold", 30) {
		return Management{ClosePosition: true, Reason: "RSI Oversold Exit",
			Rationale: []string{fmt.Sprintf("RSI%d %.1f reached oversold", period, cur)}}
	}
	return Management{}
}
