package engine

import (
	"context"
	"time"

	"quant-backtester/internal/infrastructure"
	"quant-backtester/internal/model"
	"quant-backtester/internal/strategy"

	"go.uber.org/zap"
)

type Config struct {
	Warmup           int
	MaxCombinations  int
	OptimizerWorkers int
	FillPath         FillPath
}

// Engine is the entry point used by the worker boundary, the API and the CLI.
type Engine struct {
	registry   *strategy.Registry
	backtester *Backtester
	optimizer  *Optimizer
	logger     *zap.Logger
}

func New(registry *strategy.Registry, cfg Config, logger *zap.Logger) *Engine {
	opts := []Option{WithLogger(logger), WithFillPath(cfg.FillPath)}
	if cfg.Warmup > 0 {
		opts = append(opts, WithWarmup(cfg.Warmup))
	}
	bt := NewBacktester(registry, opts...)
	return &Engine{
		registry:   registry,
		backtester: bt,
		optimizer:  NewOptimizer(bt, registry, cfg.MaxCombinations, cfg.OptimizerWorkers, logger),
		logger:     logger,
	}
}

func (e *Engine) Registry() *strategy.Registry {
	return e.registry
}

// RunBacktest simulates one configuration. ctx is checked before starting;
// a single run is not interruptible.
func (e *Engine) RunBacktest(ctx context.Context, candles []model.Candle, cfg model.StrategyConfig, higher []model.Candle) (model.BacktestResult, error) {
	if err := ctx.Err(); err != nil {
		return model.BacktestResult{}, err
	}
	start := time.Now()
	res, err := e.backtester.Run(candles, cfg, higher)
	if err != nil {
		infrastructure.BacktestRuns.WithLabelValues(cfg.AgentID, "error").Inc()
		return model.BacktestResult{}, err
	}
	infrastructure.BacktestLatency.WithLabelValues(res.AgentID).Observe(time.Since(start).Seconds())
	infrastructure.BacktestRuns.WithLabelValues(res.AgentID, "ok").Inc()
	for _, t := range res.Trades {
		infrastructure.SimulatedTrades.WithLabelValues(t.ExitReason).Inc()
	}

	e.logger.Info("backtest finished",
		zap.String("agent", res.AgentID),
		zap.String("symbol", res.Symbol),
		zap.String("timeframe", res.Timeframe),
		zap.Int("trades", res.TotalTrades),
		zap.String("pnl", res.TotalPnL.String()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// RunOptimization sweeps the agent's parameter grid.
func (e *Engine) RunOptimization(ctx context.Context, candles []model.Candle, cfg model.StrategyConfig, higher []model.Candle, progress ProgressFunc) ([]model.OptimizationResultItem, error) {
	items, err := e.optimizer.Run(ctx, candles, cfg, higher, func(p Progress) {
		infrastructure.OptimizationCombinations.WithLabelValues(cfg.AgentID).Inc()
		if progress != nil {
			progress(p)
		}
	})
	if err != nil {
		infrastructure.BacktestRuns.WithLabelValues(cfg.AgentID, "optimize_error").Inc()
		return nil, err
	}
	return items, nil
}
