package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quant-backtester/internal/engine"
	"quant-backtester/internal/infrastructure"
	"quant-backtester/internal/model"
	"quant-backtester/internal/storage"

	"go.uber.org/zap"
)

// Runner is the simulation entry point the dispatcher drives.
type Runner interface {
	RunBacktest(ctx context.Context, candles []model.Candle, cfg model.StrategyConfig, higher []model.Candle) (model.BacktestResult, error)
	RunOptimization(ctx context.Context, candles []model.Candle, cfg model.StrategyConfig, higher []model.Candle, progress engine.ProgressFunc) ([]model.OptimizationResultItem, error)
}

// CandleSource loads stored 1-minute candles.
type CandleSource interface {
	LoadCandles(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error)
}

// Recorder persists finished runs.
type Recorder interface {
	SaveRun(ctx context.Context, run storage.Run) error
}

// Dispatcher turns request envelopes into exactly one final response.
type Dispatcher struct {
	runner   Runner
	candles  CandleSource
	recorder Recorder
	logger   *zap.Logger
}

// NewDispatcher builds a dispatcher. candles and recorder may be nil: payloads
// must then carry their candles inline and runs are not persisted.
func NewDispatcher(runner Runner, candles CandleSource, recorder Recorder, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{runner: runner, candles: candles, recorder: recorder, logger: logger}
}

// Handle runs req and never panics. Progress updates go to emit, which may
// be nil.
func (d *Dispatcher) Handle(ctx context.Context, req Request, emit func(Response)) (resp Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("request panicked",
				zap.String("request_id", req.ID),
				zap.String("type", string(req.Type)),
				zap.Any("panic", r),
			)
			resp = ErrorResponse(req.ID, fmt.Errorf("internal error: %v", r))
		}
		status := "ok"
		if resp.Type == ResponseError {
			status = "error"
		}
		infrastructure.WorkerRequests.WithLabelValues(string(req.Type), status).Inc()
		d.logger.Info("request handled",
			zap.String("request_id", req.ID),
			zap.String("type", string(req.Type)),
			zap.String("status", status),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	result, cfg, err := d.dispatch(ctx, req, emit)
	if err != nil {
		return ErrorResponse(req.ID, err)
	}
	resp = Response{ID: req.ID, Type: ResponseResult, Result: result}
	if runID, ok := d.record(ctx, req, cfg, result); ok {
		resp.RunID = runID
	}
	return resp
}

func (d *Dispatcher) record(ctx context.Context, req Request, cfg model.StrategyConfig, result any) (string, bool) {
	if d.recorder == nil {
		return "", false
	}
	run, err := storage.NewRun(req.ID, string(req.Type), cfg, result)
	if err == nil {
		err = d.recorder.SaveRun(ctx, run)
	}
	if err != nil {
		d.logger.Error("failed to save run", zap.String("request_id", req.ID), zap.Error(err))
		return "", false
	}
	return run.ID.String(), true
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request, emit func(Response)) (any, model.StrategyConfig, error) {
	switch req.Type {
	case TypeRunBacktest, TypeRunOptimization:
	default:
		return nil, model.StrategyConfig{}, fmt.Errorf("%w: %q", ErrUnknownRequestType, req.Type)
	}

	var p RunPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return nil, p.Config, fmt.Errorf("decode payload: %w", err)
	}
	candles, err := d.resolveCandles(ctx, p)
	if err != nil {
		return nil, p.Config, err
	}

	if req.Type == TypeRunBacktest {
		res, err := d.runner.RunBacktest(ctx, candles, p.Config, p.HigherCandles)
		return res, p.Config, err
	}
	items, err := d.runner.RunOptimization(ctx, candles, p.Config, p.HigherCandles, func(pr engine.Progress) {
		if emit != nil {
			emit(Response{
				ID:                req.ID,
				Type:              ResponseProgress,
				Percent:           pr.Percent,
				TotalCombinations: pr.TotalCombinations,
			})
		}
	})
	return items, p.Config, err
}

func (d *Dispatcher) resolveCandles(ctx context.Context, p RunPayload) ([]model.Candle, error) {
	if len(p.Candles) > 0 || p.Source == nil {
		return p.Candles, nil
	}
	if d.candles == nil {
		return nil, errors.New("payload has no candles and no candle store is configured")
	}
	candles, err := d.candles.LoadCandles(ctx, p.Source.Symbol, p.Source.Start, p.Source.End)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	return candles, nil
}
