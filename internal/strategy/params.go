package strategy

import "quant-backtester/internal/model"

// BaseDefaults are the engine-level parameters every agent inherits.
func BaseDefaults() model.Params {
	return model.Params{
		"atrPeriod":              14,
		"useSupportResistance":   true,
		"srLookback":             50,
		"pivotStrength":          2,
		"partialTakeProfit":      false,
		"maxStopLossPercent":     0.0,
		"breakevenTriggerR":      1.0,
		"profitTrailActivationR": 1.5,
		"profitTrailLockRatio":   0.5,
		"invalidationCandles":    12,
		"invalidationEmaPeriod":  21,
		"momentumFadeCandles":    3,
	}
}

// ResolveParams merges the three parameter layers. Later layers win:
// defaults, then timeframe overrides, then user overrides. Inputs are not modified.
func ResolveParams(defaults, timeframeOverrides, user model.Params) model.Params {
	out := make(model.Params, len(defaults)+len(timeframeOverrides)+len(user))
	for _, layer := range []model.Params{defaults, timeframeOverrides, user} {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// EffectiveParams resolves the parameters an agent runs with on a timeframe.
func EffectiveParams(a Agent, timeframe string, user model.Params) model.Params {
	defaults := BaseDefaults()
	for k, v := range a.Defaults() {
		defaults[k] = v
	}
	return ResolveParams(defaults, a.TimeframeDefaults(timeframe), user)
}
