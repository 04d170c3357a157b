package engine

import (
	"fmt"
	"math"
	"sort"

	"quant-backtester/internal/model"
	"quant-backtester/internal/processor"
	"quant-backtester/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultWarmup is the number of aggregated candles agents get as context
// before the first simulated candle.
const DefaultWarmup = 200

type Option func(*Backtester)

func WithWarmup(n int) Option {
	return func(b *Backtester) {
		if n >= 0 {
			b.warmup = n
		}
	}
}

// WithFillPath replaces the intra-candle price path model.
func WithFillPath(fp FillPath) Option {
	return func(b *Backtester) {
		if fp != nil {
			b.fillPath = fp
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Backtester) {
		if l != nil {
			b.logger = l
		}
	}
}

// Series is a working-timeframe candle series ready for simulation, plus the
// optional higher-timeframe context.
type Series struct {
	Candles     []model.Candle
	TimeframeMs int64
	Higher      []model.Candle
	HigherMs    int64
}

// Backtester replays one configuration over a candle series. It holds no
// per-run state and is safe for concurrent use.
type Backtester struct {
	registry *strategy.Registry
	warmup   int
	fillPath FillPath
	logger   *zap.Logger
}

func NewBacktester(registry *strategy.Registry, opts ...Option) *Backtester {
	b := &Backtester{
		registry: registry,
		warmup:   DefaultWarmup,
		fillPath: OHLCPath,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Prepare aggregates base candles to the configured timeframe and the
// higher-timeframe candles to theirs.
func (b *Backtester) Prepare(candles []model.Candle, cfg model.StrategyConfig, higher []model.Candle) (Series, error) {
	tfMs, err := processor.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return Series{}, fmt.Errorf("timeframe: %w", err)
	}
	s := Series{
		Candles:     processor.Aggregate(candles, tfMs),
		TimeframeMs: tfMs,
	}
	if len(higher) == 0 {
		return s, nil
	}

	switch {
	case cfg.HigherTimeframe != "":
		htfMs, err := processor.ParseTimeframe(cfg.HigherTimeframe)
		if err != nil {
			return Series{}, fmt.Errorf("higher timeframe: %w", err)
		}
		s.Higher = processor.Aggregate(higher, htfMs)
		s.HigherMs = htfMs
	case len(higher) > 1:
		s.Higher = higher
		s.HigherMs = higher[1].Time - higher[0].Time
	default:
		s.Higher = higher
		s.HigherMs = tfMs
	}
	return s, nil
}

// Run aggregates and simulates in one step.
func (b *Backtester) Run(candles []model.Candle, cfg model.StrategyConfig, higher []model.Candle) (model.BacktestResult, error) {
	s, err := b.Prepare(candles, cfg, higher)
	if err != nil {
		return model.BacktestResult{}, err
	}
	return b.RunSeries(s, cfg), nil
}

// RunSeries simulates cfg over a prepared series. Series shorter than the
// warm-up produce a zeroed result.
func (b *Backtester) RunSeries(s Series, cfg model.StrategyConfig) model.BacktestResult {
	agent := b.registry.Lookup(cfg.AgentID)
	params := strategy.EffectiveParams(agent, cfg.Timeframe, cfg.Params)

	sim := &simulation{
		cfg:      cfg,
		params:   params,
		agent:    agent,
		series:   s,
		targets:  NewTargetCalculator(cfg.Timeframe),
		logger:   b.logger.With(zap.String("agent", agent.ID()), zap.String("timeframe", cfg.Timeframe)),
		initial:  decimal.NewFromFloat(cfg.InvestmentAmount),
		feeRate:  decimal.NewFromFloat(cfg.FeeRate),
		realized: decimal.Zero,
	}
	sim.manager = &positionManager{
		agent:    agent,
		exits:    strategy.ExitAdvisorFor(agent),
		config:   cfg,
		params:   params,
		targets:  sim.targets,
		fillPath: b.fillPath,
	}

	if len(s.Candles) > b.warmup {
		for i := b.warmup; i < len(s.Candles); i++ {
			sim.step(s.Candles[:i+1])
		}
		sim.finish()
	}

	res := ComputeStats(sim.trades, sim.equity, sim.initial)
	res.AgentID = agent.ID()
	res.Symbol = cfg.Symbol
	res.Timeframe = cfg.Timeframe
	return res
}

type simulation struct {
	cfg     model.StrategyConfig
	params  model.Params
	agent   strategy.Agent
	series  Series
	targets *TargetCalculator
	manager *positionManager
	logger  *zap.Logger
	initial decimal.Decimal
	feeRate decimal.Decimal

	position *model.SimulatedPosition
	cooldown Cooldown
	trades   []model.SimulatedTrade
	equity   []model.EquityPoint
	realized decimal.Decimal
}

func (s *simulation) step(history []model.Candle) {
	c := history[len(history)-1]
	s.cooldown.Expire(c.Time)

	traded := false
	if s.position != nil {
		if ev, closed := s.manager.Step(s.position, history); closed {
			s.close(ev, c.Time)
			traded = true
		}
	}
	if s.position == nil && !traded {
		s.evaluateEntry(history)
	}
	s.mark(c)
}

func (s *simulation) evaluateEntry(history []model.Candle) {
	c := history[len(history)-1]
	sig := s.agent.Signal(history, s.params, s.visibleHigher(c))
	dir, ok := sig.Action.Direction()
	if !ok {
		return
	}
	if s.cfg.UseCooldown && s.cooldown.Vetoes(c.Time, dir) {
		s.logger.Debug("entry vetoed by cooldown", zap.Int64("time", c.Time), zap.String("direction", string(dir)))
		return
	}

	entry := c.Close
	if entry <= 0 {
		return
	}
	size := s.cfg.InvestmentAmount * s.cfg.EffectiveLeverage() / entry
	if size <= 0 {
		return
	}
	sign := dir.Sign()

	t := s.targets.Calculate(entry, dir, history, s.params)
	stop, reason := t.StopLoss, model.StopAgentLogic
	if capPct := s.params.Float("maxStopLossPercent", 0); capPct > 0 {
		maxDist := math.Max(entry*capPct/100, entry*minStopDistancePct)
		if t.StopDistance > maxDist {
			stop, reason = entry-sign*maxDist, model.StopHardCap
		}
	}
	target := t.TakeProfit
	if s.cfg.TakeProfitLocked && s.cfg.FixedRiskReward > 0 {
		target = entry + sign*math.Abs(entry-stop)*s.cfg.FixedRiskReward
	}

	minRR := s.cfg.MinRiskReward
	if s.cfg.UseMinRiskReward && minRR <= 0 {
		minRR = 1
	}
	if valid, why := ValidateProfitability(dir, entry, stop, target, size, s.cfg.FeeRate, minRR, s.cfg.UseMinRiskReward); !valid {
		s.logger.Debug("entry rejected", zap.Int64("time", c.Time), zap.String("reason", why))
		return
	}

	s.position = &model.SimulatedPosition{
		ID:                   len(s.trades) + 1,
		Direction:            dir,
		EntryPrice:           entry,
		EntryTime:            c.Time,
		Size:                 size,
		StopLoss:             stop,
		TakeProfit:           target,
		InitialStopLoss:      stop,
		InitialTakeProfit:    target,
		ActiveStopLossReason: reason,
		PeakPrice:            entry,
		TroughPrice:          entry,
		PartialTargets:       t.PartialTargets,
		EntryRationale:       sig.Rationale,
	}
	s.logger.Debug("position opened",
		zap.Int("id", s.position.ID),
		zap.String("direction", string(dir)),
		zap.Float64("entry", entry),
		zap.Float64("stop", stop),
		zap.Float64("target", target),
	)
}

// visibleHigher returns the higher-timeframe candles that had closed by the
// end of c. Nil means no confirmation.
func (s *simulation) visibleHigher(c model.Candle) []model.Candle {
	if !s.cfg.UseHigherTimeframe || len(s.series.Higher) == 0 {
		return nil
	}
	closeTime := c.Time + s.series.TimeframeMs
	h := s.series.Higher
	n := sort.Search(len(h), func(i int) bool {
		return h[i].Time+s.series.HigherMs > closeTime
	})
	return h[:n]
}

func (s *simulation) close(ev exitEvent, exitTime int64) {
	pos := s.position
	trade := closePosition(pos, ev, exitTime, s.cfg.FeeRate)
	s.trades = append(s.trades, trade)
	s.realized = s.realized.Add(trade.PnL)
	s.position = nil

	if s.cfg.UseCooldown {
		s.cooldown.Start(exitTime, s.cfg.CooldownCandles, s.series.TimeframeMs, pos.Direction)
	}
	s.logger.Debug("position closed",
		zap.Int("id", trade.ID),
		zap.String("reason", trade.ExitReason),
		zap.Float64("exit", trade.ExitPrice),
		zap.String("pnl", trade.PnL.String()),
	)
}

// mark appends realized equity plus the open position's value net of its
// entry fee.
func (s *simulation) mark(c model.Candle) {
	equity := s.initial.Add(s.realized)
	if s.position != nil {
		equity = equity.Add(s.position.GrossPnL(c.Close)).Sub(s.position.Notional().Mul(s.feeRate))
	}
	s.equity = append(s.equity, model.EquityPoint{Time: c.Time, Equity: equity})
}

// finish force-closes a position still open at the end of the series.
func (s *simulation) finish() {
	if s.position == nil {
		return
	}
	last := s.series.Candles[len(s.series.Candles)-1]
	s.close(exitEvent{
		Price:     last.Close,
		Reason:    model.ExitEndOfData,
		Rationale: []string{"position still open when the data ended"},
	}, last.Time)
	if n := len(s.equity); n > 0 {
		s.equity[n-1].Equity = s.initial.Add(s.realized)
	}
}
