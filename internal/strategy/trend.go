package strategy

import (
	"fmt"

	"quant-backtester/internal/indicator"
	"quant-backtester/internal/model"
)

// higherTrend checks the higher-timeframe close against its EMA.
// It returns a rationale line and false when the trend disagrees with action
// or cannot be computed. A nil series means no confirmation was requested.
func higherTrend(higher []model.Candle, period int, action model.Action) (string, bool) {
	if higher == nil {
		return "", true
	}
	ema, ok := indicator.Last(indicator.EMA(model.Closes(higher), period))
	if !ok {
		return fmt.Sprintf("higher timeframe EMA%d unavailable: inconclusive", period), false
	}
	last := higher[len(higher)-1].Close
	switch {
	case action == model.ActionBuy && last > ema:
		return fmt.Sprintf("higher timeframe close %.4f above EMA%d %.4f: pass", last, period, ema), true
	case action == model.ActionSell && last < ema:
		return fmt.Sprintf("higher timeframe close %.4f below EMA%d %.4f: pass", last, period, ema), true
	default:
		return fmt.Sprintf("higher timeframe trend against %s: fail", action), false
	}
}
