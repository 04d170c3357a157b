package strategy

import (
	"fmt"

	"quant-backtester/internal/model"
)

// HoldAgent never trades. It stands in for unsupported identifiers.
type HoldAgent struct {
	id string
}

func NewHoldAgent(id string) *HoldAgent {
	return &HoldAgent{id: id}
}

func (a *HoldAgent) ID() string   { return a.id }
func (a *HoldAgent) Name() string { return "Hold" }

func (a *HoldAgent) Defaults() model.Params                { return model.Params{} }
func (a *HoldAgent) TimeframeDefaults(string) model.Params { return nil }
func (a *HoldAgent) MinHistory(model.Params) int           { return 0 }

func (a *HoldAgent) Signal([]model.Candle, model.Params, []model.Candle) Signal {
	return Hold(fmt.Sprintf("agent %q is not supported", a.id))
}

func (a *HoldAgent) Manage(model.SimulatedPosition, []model.Candle, float64, model.Params) Management {
	return Management{}
}
