package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quant-backtester/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrRunNotFound = errors.New("run not found")

// Store reads candles and persists run results in Postgres.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// LoadCandles returns the 1-minute candles of symbol in [start, end], oldest first.
func (s *Store) LoadCandles(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT time, open, high, low, close, volume
		FROM klines
		WHERE symbol = $1 AND period = '1m' AND time >= $2 AND time <= $3
		ORDER BY time ASC`,
		NormalizeSymbol(symbol), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandles(rows)
}

// RecentCandles returns the last limit candles of a period, oldest first.
func (s *Store) RecentCandles(ctx context.Context, symbol, period string, limit int) ([]model.Candle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT time, open, high, low, close, volume FROM (
			SELECT time, open, high, low, close, volume
			FROM klines
			WHERE symbol = $1 AND period = $2
			ORDER BY time DESC
			LIMIT $3
		) recent ORDER BY time ASC`,
		NormalizeSymbol(symbol), period, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandles(rows)
}

func scanCandles(rows pgx.Rows) ([]model.Candle, error) {
	candles := make([]model.Candle, 0)
	for rows.Next() {
		var (
			ts                             time.Time
			open, high, low, close, volume decimal.Decimal
		)
		if err := rows.Scan(&ts, &open, &high, &low, &close, &volume); err != nil {
			return nil, err
		}
		candles = append(candles, CandleFromRow(ts, open, high, low, close, volume))
	}
	return candles, rows.Err()
}

func (s *Store) SaveRun(ctx context.Context, run Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO backtest_runs
			(id, request_id, kind, agent_id, symbol, timeframe, config, total_trades, total_pnl, win_rate, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, run.RequestID, run.Kind, run.AgentID, run.Symbol, run.Timeframe,
		run.Config, run.TotalTrades, run.TotalPnL, run.WinRate, run.Result, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	s.logger.Debug("run saved", zap.String("run_id", run.ID.String()), zap.String("kind", run.Kind))
	return nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	var run Run
	err := s.pool.QueryRow(ctx, `
		SELECT id, request_id, kind, agent_id, symbol, timeframe, config, total_trades, total_pnl, win_rate, result, created_at
		FROM backtest_runs WHERE id = $1`, id).
		Scan(&run.ID, &run.RequestID, &run.Kind, &run.AgentID, &run.Symbol, &run.Timeframe,
			&run.Config, &run.TotalTrades, &run.TotalPnL, &run.WinRate, &run.Result, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// Run is a persisted backtest or optimization outcome.
type Run struct {
	ID          uuid.UUID       `json:"id"`
	RequestID   string          `json:"requestId"`
	Kind        string          `json:"kind"`
	AgentID     string          `json:"agentId"`
	Symbol      string          `json:"symbol"`
	Timeframe   string          `json:"timeframe"`
	Config      json.RawMessage `json:"config"`
	TotalTrades int             `json:"totalTrades"`
	TotalPnL    decimal.Decimal `json:"totalPnl"`
	WinRate     decimal.Decimal `json:"winRate"`
	Result      json.RawMessage `json:"result"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// NewRun builds a Run with a fresh id. Summary columns come from the best
// item for optimizations.
func NewRun(requestID, kind string, cfg model.StrategyConfig, result any) (Run, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return Run{}, fmt.Errorf("marshal config: %w", err)
	}
	resJSON, err := json.Marshal(result)
	if err != nil {
		return Run{}, fmt.Errorf("marshal result: %w", err)
	}
	run := Run{
		ID:        uuid.New(),
		RequestID: requestID,
		Kind:      kind,
		AgentID:   cfg.AgentID,
		Symbol:    cfg.Symbol,
		Timeframe: cfg.Timeframe,
		Config:    cfgJSON,
		Result:    resJSON,
		CreatedAt: time.Now().UTC(),
	}

	var summary *model.BacktestResult
	switch r := result.(type) {
	case model.BacktestResult:
		summary = &r
	case []model.OptimizationResultItem:
		if len(r) > 0 {
			summary = &r[0].Result
		}
	}
	if summary != nil {
		run.TotalTrades = summary.TotalTrades
		run.TotalPnL = summary.TotalPnL.Round(8)
		run.WinRate = decimal.NewFromFloat(summary.WinRate).Round(4)
	}
	return run, nil
}

// CandleFromRow converts NUMERIC columns into a closed candle.
func CandleFromRow(ts time.Time, open, high, low, close, volume decimal.Decimal) model.Candle {
	return model.Candle{
		Time:    ts.UnixMilli(),
		Open:    open.InexactFloat64(),
		High:    high.InexactFloat64(),
		Low:     low.InexactFloat64(),
		Close:   close.InexactFloat64(),
		Volume:  volume.InexactFloat64(),
		IsFinal: true,
	}
}
