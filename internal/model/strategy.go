package model

import (
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"
)

// MarketMode selects spot or leveraged simulation.
type MarketMode string

const (
	MarketSpot    MarketMode = "spot"
	MarketFutures MarketMode = "futures"
)

// StrategyConfig is the per-run configuration bundle. It is treated as
// immutable once a run starts; the optimizer clones it per combination.
type StrategyConfig struct {
	Symbol           string     `json:"symbol"`
	Market           MarketMode `json:"market"`
	Timeframe        string     `json:"timeframe"`
	HigherTimeframe  string     `json:"higherTimeframe,omitempty"`
	AgentID          string     `json:"agentId"`
	Params           Params     `json:"params,omitempty"`
	InvestmentAmount float64    `json:"investmentAmount"`
	Leverage         float64    `json:"leverage"`
	FeeRate          float64    `json:"feeRate"`

	UseHigherTimeframe      bool `json:"useHigherTimeframe"`
	UseUniversalProfitTrail bool `json:"useUniversalProfitTrail"`
	UseTrailingTakeProfit   bool `json:"useTrailingTakeProfit"`
	UseMinRiskReward        bool `json:"useMinRiskReward"`
	UseInvalidationChecks   bool `json:"useInvalidationChecks"`
	UseCooldown             bool `json:"useCooldown"`

	CooldownCandles  int     `json:"cooldownCandles"`
	MinRiskReward    float64 `json:"minRiskReward"`
	TakeProfitLocked bool    `json:"takeProfitLocked"`
	FixedRiskReward  float64 `json:"fixedRiskReward"`
}

// Clone deep-copies the parameter map so the copy can be changed freely.
func (c StrategyConfig) Clone() StrategyConfig {
	out := c
	out.Params = c.Params.Clone()
	return out
}

// EffectiveLeverage is 1 for spot markets and at least 1 otherwise.
func (c StrategyConfig) EffectiveLeverage() float64 {
	if c.Market == MarketSpot || c.Leverage < 1 {
		return 1
	}
	return c.Leverage
}

// StopReason names the tier that set the currently binding stop-loss.
type StopReason int

const (
	StopAgentLogic StopReason = iota
	StopHardCap
	StopProfitSecure
	StopAgentTrail
	StopBreakeven
)

var stopReasonNames = map[StopReason]string{
	StopAgentLogic:   "Agent Logic",
	StopHardCap:      "Hard Cap",
	StopProfitSecure: "Profit Secure",
	StopAgentTrail:   "Agent Trail",
	StopBreakeven:    "Breakeven",
}

func (r StopReason) String() string {
	if s, ok := stopReasonNames[r]; ok {
		return s
	}
	return "Unknown"
}

// Trailing reports whether the stop protects profit rather than limiting risk.
func (r StopReason) Trailing() bool {
	return r == StopProfitSecure || r == StopAgentTrail || r == StopBreakeven
}

func (r StopReason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *StopReason) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, v := range stopReasonNames {
		if v == s {
			*r = k
			return nil
		}
	}
	*r = StopAgentLogic
	return nil
}

// Exit reasons recorded on closed trades.
const (
	ExitTakeProfit   = "Take Profit Hit"
	ExitStopLoss     = "Stop Loss Hit"
	ExitTrailingStop = "Trailing Stop Hit"
	ExitEndOfData    = "End of backtest"
)

// PartialTarget is an optional scale-out level.
type PartialTarget struct {
	Price    float64 `json:"price"`
	Fraction float64 `json:"fraction"`
}

// SimulatedPosition is the mutable state of one open simulated trade.
type SimulatedPosition struct {
	ID                   int             `json:"id"`
	Direction            Direction       `json:"direction"`
	EntryPrice           float64         `json:"entryPrice"`
	EntryTime            int64           `json:"entryTime"`
	Size                 float64         `json:"size"`
	StopLoss             float64         `json:"stopLoss"`
	TakeProfit           float64         `json:"takeProfit"`
	InitialStopLoss      float64         `json:"initialStopLoss"`
	InitialTakeProfit    float64         `json:"initialTakeProfit"`
	ActiveStopLossReason StopReason      `json:"activeStopLossReason"`
	CandlesSinceEntry    int             `json:"candlesSinceEntry"`
	PeakPrice            float64         `json:"peakPrice"`
	TroughPrice          float64         `json:"troughPrice"`
	HasBeenProfitable    bool            `json:"hasBeenProfitable"`
	PartialTargets       []PartialTarget `json:"partialTargets,omitempty"`
	EntryRationale       []string        `json:"entryRationale,omitempty"`
}

// IsLong is a shorthand used by the state machine.
func (p *SimulatedPosition) IsLong() bool {
	return p.Direction == Long
}

// InProfit reports whether price is on the winning side of entry.
func (p *SimulatedPosition) InProfit(price float64) bool {
	if p.IsLong() {
		return price > p.EntryPrice
	}
	return price < p.EntryPrice
}

// InitialRisk is the distance between entry and the initial stop.
func (p *SimulatedPosition) InitialRisk() float64 {
	return math.Abs(p.EntryPrice - p.InitialStopLoss)
}

// FavorableExcursion is the best move in the trade's favour seen so far.
func (p *SimulatedPosition) FavorableExcursion() float64 {
	if p.IsLong() {
		return p.PeakPrice - p.EntryPrice
	}
	return p.EntryPrice - p.TroughPrice
}

// GrossPnL is the unrealized PnL before fees at price.
func (p *SimulatedPosition) GrossPnL(price float64) decimal.Decimal {
	move := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(p.EntryPrice))
	if !p.IsLong() {
		move = move.Neg()
	}
	return move.Mul(decimal.NewFromFloat(p.Size))
}

// Notional is the position's value at entry.
func (p *SimulatedPosition) Notional() decimal.Decimal {
	return decimal.NewFromFloat(p.EntryPrice).Mul(decimal.NewFromFloat(p.Size))
}

// SimulatedTrade is an immutable closed-trade record.
type SimulatedTrade struct {
	ID                int             `json:"id"`
	Direction         Direction       `json:"direction"`
	EntryPrice        float64         `json:"entryPrice"`
	EntryTime         int64           `json:"entryTime"`
	Size              float64         `json:"size"`
	InitialStopLoss   float64         `json:"initialStopLoss"`
	InitialTakeProfit float64         `json:"initialTakeProfit"`
	FinalStopLoss     float64         `json:"finalStopLoss"`
	FinalTakeProfit   float64         `json:"finalTakeProfit"`
	StopLossReason    StopReason      `json:"stopLossReason"`
	PartialTargets    []PartialTarget `json:"partialTargets,omitempty"`
	ExitPrice         float64         `json:"exitPrice"`
	ExitTime          int64           `json:"exitTime"`
	ExitReason        string          `json:"exitReason"`
	CandlesHeld       int             `json:"candlesHeld"`
	PeakPrice         float64         `json:"peakPrice"`
	TroughPrice       float64         `json:"troughPrice"`
	GrossPnL          decimal.Decimal `json:"grossPnl"`
	Fees              decimal.Decimal `json:"fees"`
	PnL               decimal.Decimal `json:"pnl"` // net of fees
	EntryRationale    []string        `json:"entryRationale,omitempty"`
	ExitRationale     []string        `json:"exitRationale,omitempty"`
}

// EquityPoint is one sample of realized plus unrealized equity.
type EquityPoint struct {
	Time   int64           `json:"time"`
	Equity decimal.Decimal `json:"equity"`
}

// Ratio is a float that survives JSON encoding when infinite.
type Ratio float64

func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(f):
		return []byte(`0`), nil
	}
	return json.Marshal(f)
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "Infinity":
			*r = Ratio(math.Inf(1))
		case "-Infinity":
			*r = Ratio(math.Inf(-1))
		default:
			*r = 0
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// BacktestResult is recomputed from the trade ledger and equity curve.
type BacktestResult struct {
	AgentID            string           `json:"agentId"`
	Symbol             string           `json:"symbol"`
	Timeframe          string           `json:"timeframe"`
	InitialEquity      decimal.Decimal  `json:"initialEquity"`
	FinalEquity        decimal.Decimal  `json:"finalEquity"`
	TotalPnL           decimal.Decimal  `json:"totalPnl"` // sum of net trade PnL
	TotalPnLPercent    float64          `json:"totalPnlPercent"`
	GrossPnL           decimal.Decimal  `json:"grossPnl"`
	TotalFees          decimal.Decimal  `json:"totalFees"`
	TotalTrades        int              `json:"totalTrades"`
	WinningTrades      int              `json:"winningTrades"`
	LosingTrades       int              `json:"losingTrades"`
	WinRate            float64          `json:"winRate"`
	ProfitFactor       Ratio            `json:"profitFactor"`
	MaxDrawdown        decimal.Decimal  `json:"maxDrawdown"`
	MaxDrawdownPercent float64          `json:"maxDrawdownPercent"`
	SharpeRatio        float64          `json:"sharpeRatio"`
	AverageDurationMs  int64            `json:"averageDurationMs"`
	AverageDuration    string           `json:"averageDuration"`
	Trades             []SimulatedTrade `json:"trades"`
	EquityCurve        []EquityPoint    `json:"equityCurve"`
}

// OptimizationResultItem pairs one parameter combination with its result.
type OptimizationResultItem struct {
	Params Params         `json:"params"`
	Result BacktestResult `json:"result"`
}
