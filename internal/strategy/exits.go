package strategy

import (
	"fmt"

	"quant-backtester/internal/indicator"
	"quant-backtester/internal/model"
)

// DefaultExits is the invalidation logic used when an agent has none.
type DefaultExits struct{}

// CheckLoss closes a losing trade that has aged past invalidationCandles and
// closed on the wrong side of the invalidation EMA.
func (DefaultExits) CheckLoss(pos model.SimulatedPosition, history []model.Candle, p model.Params) ExitCheck {
	if len(history) == 0 || pos.CandlesSinceEntry < p.Int("invalidationCandles", 12) {
		return ExitCheck{}
	}
	period := p.Int("invalidationEmaPeriod", 21)
	ema, ok := indicator.Last(indicator.EMA(model.Closes(history), period))
	if !ok {
		return ExitCheck{}
	}
	price := history[len(history)-1].Close
	if pos.IsLong() && price < ema {
		return ExitCheck{Close: true, Reason: fmt.Sprintf("Invalidated: closed below EMA%d", period)}
	}
	if !pos.IsLong() && price > ema {
		return ExitCheck{Close: true, Reason: fmt.Sprintf("Invalidated: closed above EMA%d", period)}
	}
	return ExitCheck{}
}

// CheckMomentum closes a winning trade that reached 1R and has printed
// momentumFadeCandles consecutive closes against it.
func (DefaultExits) CheckMomentum(pos model.SimulatedPosition, history []model.Candle, p model.Params) ExitCheck {
	k := p.Int("momentumFadeCandles", 3)
	risk := pos.InitialRisk()
	if k <= 0 || risk <= 0 || len(history) <= k || pos.FavorableExcursion() < risk {
		return ExitCheck{}
	}
	n := len(history) - 1
	for i := n - k + 1; i <= n; i++ {
		prev, cur := history[i-1].Close, history[i].Close
		if pos.IsLong() && cur >= prev {
			return ExitCheck{}
		}
		if !pos.IsLong() && cur <= prev {
			return ExitCheck{}
		}
	}
	return ExitCheck{Close: true, Reason: fmt.Sprintf("Momentum Fading: %d closes against trade", k)}
}
