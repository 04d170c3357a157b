package engine

import (
	"quant-backtester/internal/model"
	"quant-backtester/internal/strategy"
)

// scriptedAgent drives the engine from test closures.
type scriptedAgent struct {
	id     string
	signal func(history []model.Candle, p model.Params) model.Action
	manage func(pos model.SimulatedPosition, price float64) strategy.Management
	ranges map[string][]any
}

func (a *scriptedAgent) ID() string                            { return a.id }
func (a *scriptedAgent) Name() string                          { return "scripted " + a.id }
func (a *scriptedAgent) Defaults() model.Params                { return model.Params{} }
func (a *scriptedAgent) TimeframeDefaults(string) model.Params { return nil }
func (a *scriptedAgent) MinHistory(model.Params) int           { return 1 }

func (a *scriptedAgent) Signal(history []model.Candle, p model.Params, _ []model.Candle) strategy.Signal {
	if a.signal == nil {
		return strategy.Hold()
	}
	return strategy.Signal{Action: a.signal(history, p), Rationale: []string{"scripted"}}
}

func (a *scriptedAgent) Manage(pos model.SimulatedPosition, _ []model.Candle, price float64, _ model.Params) strategy.Management {
	if a.manage == nil {
		return strategy.Management{}
	}
	return a.manage(pos, price)
}

type optimizableAgent struct {
	*scriptedAgent
}

func (a optimizableAgent) ParameterRanges() map[string][]any {
	return a.ranges
}

func flatCandles(n int, price float64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{
			Time:    int64(i) * model.MinuteMs,
			Open:    price,
			High:    price,
			Low:     price,
			Close:   price,
			Volume:  1,
			IsFinal: true,
		}
	}
	return out
}

// uptrend closes 0.5 higher every minute starting at 100.
func uptrend(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		c := 100 + float64(i)*0.5
		out[i] = model.Candle{
			Time:    int64(i) * model.MinuteMs,
			Open:    c - 0.4,
			High:    c + 0.1,
			Low:     c - 0.5,
			Close:   c,
			Volume:  10,
			IsFinal: true,
		}
	}
	return out
}

func baseConfig(agentID string) model.StrategyConfig {
	return model.StrategyConfig{
		Symbol:           "BTCUSDT",
		Market:           model.MarketFutures,
		Timeframe:        "1m",
		AgentID:          agentID,
		InvestmentAmount: 1000,
		Leverage:         1,
		FeeRate:          0.001,
		Params:           model.Params{"useSupportResistance": false},
	}
}
