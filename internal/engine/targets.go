package engine

import (
	"math"

	"quant-backtester/internal/indicator"
	"quant-backtester/internal/model"
)

const (
	fallbackVolatilityPct = 0.02
	minStopDistancePct    = 0.005
)

// TargetProfile scales volatility into stop and target distances.
type TargetProfile struct {
	ATRMultiplier float64
	RiskReward    float64
}

// Short timeframes are noisier relative to their moves, so they get tighter
// multipliers and lower reward ratios.
var timeframeProfiles = map[string]TargetProfile{
	"1m":  {ATRMultiplier: 1.0, RiskReward: 1.2},
	"3m":  {ATRMultiplier: 1.2, RiskReward: 1.3},
	"5m":  {ATRMultiplier: 1.5, RiskReward: 1.5},
	"15m": {ATRMultiplier: 2.0, RiskReward: 1.8},
	"30m": {ATRMultiplier: 2.0, RiskReward: 2.0},
	"1h":  {ATRMultiplier: 2.5, RiskReward: 2.0},
	"2h":  {ATRMultiplier: 2.5, RiskReward: 2.2},
	"4h":  {ATRMultiplier: 3.0, RiskReward: 2.5},
	"1d":  {ATRMultiplier: 3.0, RiskReward: 3.0},
}

var defaultProfile = TargetProfile{ATRMultiplier: 2.0, RiskReward: 2.0}

func ProfileFor(timeframe string) TargetProfile {
	if p, ok := timeframeProfiles[timeframe]; ok {
		return p
	}
	return defaultProfile
}

// Targets are the initial exit levels of a trade.
type Targets struct {
	StopLoss       float64
	TakeProfit     float64
	StopDistance   float64
	PartialTargets []model.PartialTarget
}

type TargetCalculator struct {
	profile TargetProfile
}

func NewTargetCalculator(timeframe string) *TargetCalculator {
	return &TargetCalculator{profile: ProfileFor(timeframe)}
}

// Calculate derives stop and target from ATR, clamping the target to the
// nearest support/resistance level between entry and target when enabled.
func (t *TargetCalculator) Calculate(entry float64, dir model.Direction, history []model.Candle, p model.Params) Targets {
	sign := dir.Sign()

	dist := 0.0
	if atr, ok := indicator.Last(indicator.ATR(history, p.Int("atrPeriod", 14))); ok && atr > 0 {
		dist = atr * t.profile.ATRMultiplier
	}
	if dist <= 0 {
		dist = entry * fallbackVolatilityPct
	}
	dist = math.Max(dist, entry*minStopDistancePct)

	out := Targets{
		StopLoss:     entry - sign*dist,
		TakeProfit:   entry + sign*dist*t.profile.RiskReward,
		StopDistance: dist,
	}

	if p.Bool("useSupportResistance", true) {
		window := history
		if n := p.Int("srLookback", 50); n > 0 && len(window) > n {
			window = window[len(window)-n:]
		}
		strength := p.Int("pivotStrength", 2)
		pivots := indicator.FractalPivots(window, strength, strength)
		if dir == model.Long {
			if r, ok := indicator.NearestResistance(pivots, entry); ok && r < out.TakeProfit {
				out.TakeProfit = r
			}
		} else {
			if s, ok := indicator.NearestSupport(pivots, entry); ok && s > out.TakeProfit {
				out.TakeProfit = s
			}
		}
	}

	if p.Bool("partialTakeProfit", false) {
		first := entry + sign*dist
		if (first-entry)*sign < (out.TakeProfit-entry)*sign {
			out.PartialTargets = []model.PartialTarget{
				{Price: first, Fraction: 0.5},
				{Price: out.TakeProfit, Fraction: 0.5},
			}
		}
	}
	return out
}

// ValidateProfitability rejects entries whose fee-adjusted reward is not
// positive, or, when enforceMinRR is set, below minRR times the fee-adjusted risk.
func ValidateProfitability(dir model.Direction, entry, stop, target, size, feeRate, minRR float64, enforceMinRR bool) (bool, string) {
	sign := dir.Sign()
	if (entry-stop)*sign <= 0 || (target-entry)*sign <= 0 {
		return false, "stop or target on wrong side of entry"
	}
	reward := (target-entry)*sign*size - (entry+target)*size*feeRate
	risk := (entry-stop)*sign*size + (entry+stop)*size*feeRate
	if reward <= 0 {
		return false, "target does not cover fees"
	}
	if enforceMinRR && minRR > 0 && reward/risk < minRR {
		return false, "risk/reward below minimum"
	}
	return true, ""
}
