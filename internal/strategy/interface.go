package strategy

import (
	"quant-backtester/internal/model"
)

// Signal is an agent's entry decision with the checks that produced it.
type Signal struct {
	Action    model.Action `json:"action"`
	Rationale []string     `json:"rationale"`
}

// Hold builds a HOLD signal.
func Hold(rationale ...string) Signal {
	return Signal{Action: model.ActionHold, Rationale: rationale}
}

// Management is an agent's proposal for an open position.
// Nil pointers mean no change.
type Management struct {
	NewStopLoss   *float64 `json:"newStopLoss,omitempty"`
	NewTakeProfit *float64 `json:"newTakeProfit,omitempty"`
	ClosePosition bool     `json:"closePosition"`
	Reason        string   `json:"reason,omitempty"`
	Rationale     []string `json:"rationale,omitempty"`
}

// Agent is a trading strategy. Signal and Manage must be pure functions of
// their arguments so the same logic serves backtests and live evaluation.
type Agent interface {
	ID() string
	Name() string
	Defaults() model.Params
	TimeframeDefaults(timeframe string) model.Params
	MinHistory(p model.Params) int
	Signal(history []model.Candle, p model.Params, higher []model.Candle) Signal
	Manage(pos model.SimulatedPosition, history []model.Candle, price float64, p model.Params) Management
}

// Optimizable agents expose the parameter grid the optimizer sweeps.
type Optimizable interface {
	ParameterRanges() map[string][]any
}

// ExitCheck is the outcome of an invalidation check.
type ExitCheck struct {
	Close  bool
	Reason string
}

// ExitAdvisor decides early exits. Agents that do not implement it get
// DefaultExits.
type ExitAdvisor interface {
	CheckLoss(pos model.SimulatedPosition, history []model.Candle, p model.Params) ExitCheck
	CheckMomentum(pos model.SimulatedPosition, history []model.Candle, p model.Params) ExitCheck
}

// ExitAdvisorFor returns the agent's own advisor or the default one.
func ExitAdvisorFor(a Agent) ExitAdvisor {
	if adv, ok := a.(ExitAdvisor); ok {
		return adv
	}
	return DefaultExits{}
}

func ptr(v float64) *float64 { return &v }
