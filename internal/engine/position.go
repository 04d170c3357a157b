package engine

import (
	"fmt"

	"quant-backtester/internal/model"
	"quant-backtester/internal/strategy"

	"github.com/shopspring/decimal"
)

// FillPath is the assumed order in which price visits a candle's OHLC.
type FillPath func(c model.Candle) []float64

// OHLCPath assumes a bearish candle tops out before falling to its low and a
// bullish candle bottoms out before rallying to its high.
func OHLCPath(c model.Candle) []float64 {
	if c.Bullish() {
		return []float64{c.Open, c.Low, c.High, c.Close}
	}
	return []float64{c.Open, c.High, c.Low, c.Close}
}

// NetPnL applies entry and exit fees to a round trip.
func NetPnL(dir model.Direction, entry, exit, size, feeRate float64) (gross, fees, net decimal.Decimal) {
	e := decimal.NewFromFloat(entry)
	x := decimal.NewFromFloat(exit)
	qty := decimal.NewFromFloat(size)

	gross = x.Sub(e).Mul(qty)
	if dir == model.Short {
		gross = gross.Neg()
	}
	fees = e.Mul(qty).Add(x.Mul(qty)).Mul(decimal.NewFromFloat(feeRate))
	return gross, fees, gross.Sub(fees)
}

// exitEvent is a terminal transition of the position state machine.
type exitEvent struct {
	Price     float64
	Reason    string
	Rationale []string
}

type stopCandidate struct {
	Price  float64
	Reason model.StopReason
}

// positionManager advances one open position per candle.
type positionManager struct {
	agent    strategy.Agent
	exits    strategy.ExitAdvisor
	config   model.StrategyConfig
	params   model.Params
	targets  *TargetCalculator
	fillPath FillPath
}

// Step resolves intra-candle fills and, if the position survives, runs the
// on-close management. history ends with the current candle.
func (m *positionManager) Step(pos *model.SimulatedPosition, history []model.Candle) (exitEvent, bool) {
	c := history[len(history)-1]
	if ev, hit := m.checkFill(pos, c); hit {
		return ev, true
	}
	return m.onClose(pos, history)
}

func (m *positionManager) checkFill(pos *model.SimulatedPosition, c model.Candle) (exitEvent, bool) {
	for _, px := range m.fillPath(c) {
		stopHit := (pos.IsLong() && px <= pos.StopLoss) || (!pos.IsLong() && px >= pos.StopLoss)
		if stopHit {
			reason := model.ExitStopLoss
			if pos.ActiveStopLossReason.Trailing() {
				reason = model.ExitTrailingStop
			}
			return exitEvent{
				Price:     pos.StopLoss,
				Reason:    reason,
				Rationale: []string{fmt.Sprintf("%s stop %.4f touched", pos.ActiveStopLossReason, pos.StopLoss)},
			}, true
		}
		targetHit := (pos.IsLong() && px >= pos.TakeProfit) || (!pos.IsLong() && px <= pos.TakeProfit)
		if targetHit {
			return exitEvent{
				Price:     pos.TakeProfit,
				Reason:    model.ExitTakeProfit,
				Rationale: []string{fmt.Sprintf("target %.4f touched", pos.TakeProfit)},
			}, true
		}
	}
	return exitEvent{}, false
}

func (m *positionManager) onClose(pos *model.SimulatedPosition, history []model.Candle) (exitEvent, bool) {
	c := history[len(history)-1]
	price := c.Close

	pos.CandlesSinceEntry++
	if c.High > pos.PeakPrice {
		pos.PeakPrice = c.High
	}
	if c.Low < pos.TroughPrice {
		pos.TroughPrice = c.Low
	}
	inProfit := pos.InProfit(price)
	if inProfit {
		pos.HasBeenProfitable = true
	}

	if m.config.UseInvalidationChecks {
		var check strategy.ExitCheck
		if inProfit {
			check = m.exits.CheckMomentum(*pos, history, m.params)
		} else {
			check = m.exits.CheckLoss(*pos, history, m.params)
		}
		if check.Close {
			return exitEvent{Price: price, Reason: check.Reason, Rationale: []string{check.Reason}}, true
		}
	}

	mgmt := m.agent.Manage(*pos, history, price, m.params)
	if mgmt.ClosePosition {
		reason := mgmt.Reason
		if reason == "" {
			reason = "Strategy Exit"
		}
		return exitEvent{Price: price, Reason: reason, Rationale: mgmt.Rationale}, true
	}

	candidates := make([]stopCandidate, 0, 3)
	if cand, ok := m.breakevenCandidate(pos); ok {
		candidates = append(candidates, cand)
	}
	if m.config.UseUniversalProfitTrail {
		if cand, ok := m.profitTrailCandidate(pos); ok {
			candidates = append(candidates, cand)
		}
	}
	if mgmt.NewStopLoss != nil {
		candidates = append(candidates, stopCandidate{Price: *mgmt.NewStopLoss, Reason: model.StopAgentTrail})
	}
	if best, changed := selectStop(pos, price, candidates); changed {
		pos.StopLoss = best.Price
		pos.ActiveStopLossReason = best.Reason
	}

	if mgmt.NewTakeProfit != nil {
		m.extendTarget(pos, price, *mgmt.NewTakeProfit)
	}
	if m.config.UseTrailingTakeProfit && inProfit {
		t := m.targets.Calculate(price, pos.Direction, history, m.params)
		m.extendTarget(pos, price, t.TakeProfit)
	}
	return exitEvent{}, false
}

// breakevenCandidate moves the stop to a fee-covering breakeven once the
// trade has run breakevenTriggerR times its initial risk.
func (m *positionManager) breakevenCandidate(pos *model.SimulatedPosition) (stopCandidate, bool) {
	risk := pos.InitialRisk()
	if risk <= 0 || pos.FavorableExcursion() < risk*m.params.Float("breakevenTriggerR", 1.0) {
		return stopCandidate{}, false
	}
	price := pos.EntryPrice * (1 + pos.Direction.Sign()*2*m.config.FeeRate)
	return stopCandidate{Price: price, Reason: model.StopBreakeven}, true
}

// profitTrailCandidate locks a share of the best excursion once the trade
// has run profitTrailActivationR times its initial risk.
func (m *positionManager) profitTrailCandidate(pos *model.SimulatedPosition) (stopCandidate, bool) {
	risk := pos.InitialRisk()
	excursion := pos.FavorableExcursion()
	if risk <= 0 || excursion < risk*m.params.Float("profitTrailActivationR", 1.5) {
		return stopCandidate{}, false
	}
	locked := excursion * m.params.Float("profitTrailLockRatio", 0.5)
	return stopCandidate{Price: pos.EntryPrice + pos.Direction.Sign()*locked, Reason: model.StopProfitSecure}, true
}

// selectStop keeps the current stop unless a candidate is strictly more
// favorable and still on the protective side of price.
func selectStop(pos *model.SimulatedPosition, price float64, candidates []stopCandidate) (stopCandidate, bool) {
	best := stopCandidate{Price: pos.StopLoss, Reason: pos.ActiveStopLossReason}
	changed := false
	for _, c := range candidates {
		if pos.IsLong() {
			if c.Price >= price || c.Price <= best.Price {
				continue
			}
		} else {
			if c.Price <= price || c.Price >= best.Price {
				continue
			}
		}
		best, changed = c, true
	}
	return best, changed
}

func (m *positionManager) extendTarget(pos *model.SimulatedPosition, price, target float64) {
	if pos.IsLong() && target > pos.TakeProfit && target > price {
		pos.TakeProfit = target
	}
	if !pos.IsLong() && target < pos.TakeProfit && target < price && target > 0 {
		pos.TakeProfit = target
	}
}

// closePosition converts an open position into a ledger entry.
func closePosition(pos *model.SimulatedPosition, ev exitEvent, exitTime int64, feeRate float64) model.SimulatedTrade {
	gross, fees, net := NetPnL(pos.Direction, pos.EntryPrice, ev.Price, pos.Size, feeRate)
	return model.SimulatedTrade{
		ID:                pos.ID,
		Direction:         pos.Direction,
		EntryPrice:        pos.EntryPrice,
		EntryTime:         pos.EntryTime,
		Size:              pos.Size,
		InitialStopLoss:   pos.InitialStopLoss,
		InitialTakeProfit: pos.InitialTakeProfit,
		FinalStopLoss:     pos.StopLoss,
		FinalTakeProfit:   pos.TakeProfit,
		StopLossReason:    pos.ActiveStopLossReason,
		PartialTargets:    pos.PartialTargets,
		ExitPrice:         ev.Price,
		ExitTime:          exitTime,
		ExitReason:        ev.Reason,
		CandlesHeld:       pos.CandlesSinceEntry,
		PeakPrice:         pos.PeakPrice,
		TroughPrice:       pos.TroughPrice,
		GrossPnL:          gross,
		Fees:              fees,
		PnL:               net,
		EntryRationale:    pos.EntryRationale,
		ExitRationale:     ev.Rationale,
	}
}

// Cooldown vetoes same-direction re-entries after an exit.
type Cooldown struct {
	Until     int64
	Direction model.Direction
	active    bool
}

func (c *Cooldown) Start(exitTime int64, candles int, timeframeMs int64, dir model.Direction) {
	if candles <= 0 {
		return
	}
	c.Until = exitTime + int64(candles)*timeframeMs
	c.Direction = dir
	c.active = true
}

// Expire clears the cooldown once now reaches its end.
func (c *Cooldown) Expire(now int64) {
	if c.active && now >= c.Until {
		*c = Cooldown{}
	}
}

func (c *Cooldown) Active() bool {
	return c.active
}

func (c *Cooldown) Vetoes(now int64, dir model.Direction) bool {
	return c.active && dir == c.Direction && now < c.Until
}
