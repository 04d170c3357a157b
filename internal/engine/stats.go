package engine

import (
	"fmt"
	"math"

	"quant-backtester/internal/model"

	"github.com/shopspring/decimal"
)

const tradingDaysPerYear = 252

var hundred = decimal.NewFromInt(100)

// ComputeStats reduces a trade ledger and equity curve into a report.
// It is a pure function; an empty ledger yields zero metrics.
func ComputeStats(trades []model.SimulatedTrade, equity []model.EquityPoint, initialEquity decimal.Decimal) model.BacktestResult {
	res := model.BacktestResult{
		InitialEquity: initialEquity,
		FinalEquity:   initialEquity,
		TotalPnL:      decimal.Zero,
		GrossPnL:      decimal.Zero,
		TotalFees:     decimal.Zero,
		MaxDrawdown:   decimal.Zero,
		Trades:        trades,
		EquityCurve:   equity,
	}
	if res.Trades == nil {
		res.Trades = []model.SimulatedTrade{}
	}
	if res.EquityCurve == nil {
		res.EquityCurve = []model.EquityPoint{}
	}
	if len(trades) == 0 {
		return res
	}

	grossProfit, grossLoss := decimal.Zero, decimal.Zero
	var totalDuration int64
	for _, t := range trades {
		res.TotalPnL = res.TotalPnL.Add(t.PnL)
		res.GrossPnL = res.GrossPnL.Add(t.GrossPnL)
		res.TotalFees = res.TotalFees.Add(t.Fees)
		switch {
		case t.PnL.IsPositive():
			res.WinningTrades++
			grossProfit = grossProfit.Add(t.PnL)
		case t.PnL.IsNegative():
			res.LosingTrades++
			grossLoss = grossLoss.Sub(t.PnL)
		}
		totalDuration += t.ExitTime - t.EntryTime
	}

	res.TotalTrades = len(trades)
	res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades) * 100
	res.FinalEquity = initialEquity.Add(res.TotalPnL)
	if initialEquity.IsPositive() {
		res.TotalPnLPercent = res.TotalPnL.Div(initialEquity).Mul(hundred).InexactFloat64()
	}

	switch {
	case grossLoss.IsPositive():
		res.ProfitFactor = model.Ratio(grossProfit.Div(grossLoss).InexactFloat64())
	case grossProfit.IsPositive():
		res.ProfitFactor = model.Ratio(math.Inf(1))
	}

	res.MaxDrawdown, res.MaxDrawdownPercent = MaxDrawdown(equity, initialEquity)
	res.SharpeRatio = SharpeRatio(trades, initialEquity)
	res.AverageDurationMs = totalDuration / int64(len(trades))
	res.AverageDuration = FormatDuration(res.AverageDurationMs)
	return res
}

// MaxDrawdown is the largest peak-to-trough drop of the curve, starting from
// the initial equity as the first peak.
func MaxDrawdown(equity []model.EquityPoint, initialEquity decimal.Decimal) (abs decimal.Decimal, pct float64) {
	peak := initialEquity
	abs = decimal.Zero
	for _, p := range equity {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		dd := peak.Sub(p.Equity)
		if dd.GreaterThan(abs) {
			abs = dd
		}
		if peak.IsPositive() {
			if ddPct := dd.Div(peak).Mul(hundred).InexactFloat64(); ddPct > pct {
				pct = ddPct
			}
		}
	}
	return abs, pct
}

// SharpeRatio annualizes per-trade returns relative to the invested amount.
func SharpeRatio(trades []model.SimulatedTrade, invested decimal.Decimal) float64 {
	if len(trades) < 2 || !invested.IsPositive() {
		return 0
	}
	returns := make([]float64, len(trades))
	var sum float64
	for i, t := range trades {
		returns[i], _ = t.PnL.Div(invested).Float64()
		sum += returns[i]
	}
	mean := sum / float64(len(returns))

	var sumSqDiff float64
	for _, r := range returns {
		diff := r - mean
		sumSqDiff += diff * diff
	}
	stdDev := math.Sqrt(sumSqDiff / float64(len(returns)))
	if stdDev == 0 {
		return 0
	}
	return mean / stdDev * math.Sqrt(tradingDaysPerYear)
}

func FormatDuration(ms int64) string {
	minutes := ms / model.MinuteMs
	days, hours := minutes/(24*60), minutes/60%24
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
