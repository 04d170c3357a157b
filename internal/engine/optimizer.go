package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"quant-backtester/internal/model"
	"quant-backtester/internal/strategy"

	"go.uber.org/zap"
)

// DefaultMaxCombinations bounds a single optimization run.
const DefaultMaxCombinations = 250

var ErrNoParameterRanges = errors.New("agent has no parameter ranges to optimize")

// CombinationLimitError reports a parameter grid above the configured ceiling.
type CombinationLimitError struct {
	Count int
	Limit int
}

func (e *CombinationLimitError) Error() string {
	return fmt.Sprintf("parameter grid has %d combinations, limit is %d; narrow the ranges", e.Count, e.Limit)
}

// Progress is emitted after each finished combination.
type Progress struct {
	Completed         int     `json:"completed"`
	Percent           float64 `json:"percent"`
	TotalCombinations int     `json:"totalCombinations"`
}

type ProgressFunc func(Progress)

// CountCombinations is the size of the cross-product. Any empty range
// makes the grid empty.
func CountCombinations(ranges map[string][]any) int {
	if len(ranges) == 0 {
		return 0
	}
	n := 1
	for _, values := range ranges {
		n *= len(values)
	}
	return n
}

// GenerateCombinations expands ranges into every parameter combination.
// Keys vary in sorted order with the last key changing fastest.
func GenerateCombinations(ranges map[string][]any) []model.Params {
	total := CountCombinations(ranges)
	if total == 0 {
		return nil
	}
	keys := make([]string, 0, len(ranges))
	for k := range ranges {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]model.Params, 0, total)
	idx := make([]int, len(keys))
	for {
		combo := make(model.Params, len(keys))
		for i, k := range keys {
			combo[k] = ranges[k][idx[i]]
		}
		out = append(out, combo)

		i := len(keys) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(ranges[keys[i]]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return out
		}
	}
}

type Optimizer struct {
	backtester      *Backtester
	registry        *strategy.Registry
	maxCombinations int
	workers         int
	logger          *zap.Logger
}

func NewOptimizer(bt *Backtester, registry *strategy.Registry, maxCombinations, workers int, logger *zap.Logger) *Optimizer {
	if maxCombinations <= 0 {
		maxCombinations = DefaultMaxCombinations
	}
	if workers < 1 {
		workers = 1
	}
	return &Optimizer{
		backtester:      bt,
		registry:        registry,
		maxCombinations: maxCombinations,
		workers:         workers,
		logger:          logger,
	}
}

// Plan validates the agent's grid for cfg without running anything.
func (o *Optimizer) Plan(cfg model.StrategyConfig) ([]model.Params, error) {
	agent := o.registry.Lookup(cfg.AgentID)
	opt, ok := agent.(strategy.Optimizable)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoParameterRanges, cfg.AgentID)
	}
	ranges := opt.ParameterRanges()
	count := CountCombinations(ranges)
	if count == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoParameterRanges, cfg.AgentID)
	}
	if count > o.maxCombinations {
		return nil, &CombinationLimitError{Count: count, Limit: o.maxCombinations}
	}
	return GenerateCombinations(ranges), nil
}

// Run backtests every combination of the agent's grid and returns those with
// at least one trade, best profit factor first and then best total PnL.
// Cancelling ctx stops scheduling and discards unfinished work.
func (o *Optimizer) Run(ctx context.Context, candles []model.Candle, cfg model.StrategyConfig, higher []model.Candle, progress ProgressFunc) ([]model.OptimizationResultItem, error) {
	combos, err := o.Plan(cfg)
	if err != nil {
		return nil, err
	}
	series, err := o.backtester.Prepare(candles, cfg, higher)
	if err != nil {
		return nil, err
	}

	total := len(combos)
	o.logger.Info("optimization started",
		zap.String("agent", cfg.AgentID),
		zap.Int("combinations", total),
		zap.Int("workers", o.workers),
	)

	results := make([]model.OptimizationResultItem, total)
	var (
		mu        sync.Mutex
		completed int
		runErr    error
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := NewWorkerPool(o.workers, total, o.logger)
	pool.Start(ctx)
	for i, combo := range combos {
		i, combo := i, combo
		job := func(ctx context.Context) {
			if ctx.Err() != nil {
				return
			}
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					if runErr == nil {
						runErr = fmt.Errorf("combination %s panicked: %v", combo, r)
					}
					mu.Unlock()
					cancel()
				}
			}()

			run := cfg.Clone()
			if run.Params == nil {
				run.Params = make(model.Params, len(combo))
			}
			for k, v := range combo {
				run.Params[k] = v
			}
			res := o.backtester.RunSeries(series, run)

			mu.Lock()
			defer mu.Unlock()
			results[i] = model.OptimizationResultItem{Params: combo, Result: res}
			completed++
			if progress != nil {
				progress(Progress{
					Completed:         completed,
					Percent:           float64(completed) / float64(total) * 100,
					TotalCombinations: total,
				})
			}
		}
		if err := pool.Submit(ctx, job); err != nil {
			break
		}
	}
	pool.Stop()

	if runErr != nil {
		return nil, runErr
	}
	if err := ctx.Err(); err != nil || completed < total {
		if err == nil {
			err = context.Canceled
		}
		return nil, err
	}

	kept := make([]model.OptimizationResultItem, 0, total)
	for _, item := range results {
		if item.Result.TotalTrades > 0 {
			kept = append(kept, item)
		}
	}
	SortResults(kept)
	o.logger.Info("optimization finished",
		zap.String("agent", cfg.AgentID),
		zap.Int("combinations", total),
		zap.Int("with_trades", len(kept)),
	)
	return kept, nil
}

// SortResults orders by profit factor descending, then total PnL descending.
func SortResults(items []model.OptimizationResultItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Result, items[j].Result
		if a.ProfitFactor != b.ProfitFactor {
			return a.ProfitFactor > b.ProfitFactor
		}
		return a.TotalPnL.GreaterThan(b.TotalPnL)
	})
}
