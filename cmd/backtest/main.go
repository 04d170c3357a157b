package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"quant-backtester/internal/config"
	"quant-backtester/internal/engine"
	"quant-backtester/internal/infrastructure"
	"quant-backtester/internal/model"
	"quant-backtester/internal/strategy"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		candlesPath = flag.String("candles", "", "JSON file with 1-minute candles")
		higherPath  = flag.String("higher", "", "optional JSON file with higher-timeframe candles")
		agentID     = flag.String("agent", "ma_cross", "agent identifier")
		timeframe   = flag.String("tf", "15m", "working timeframe")
		higherTF    = flag.String("htf", "", "higher timeframe, e.g. 4h")
		symbol      = flag.String("symbol", "BTCUSDT", "symbol label")
		paramsFlag  = flag.String("params", "", "agent parameter overrides, k=v,k2=v2")
		investment  = flag.Float64("investment", 1000, "investment per trade")
		leverage    = flag.Float64("leverage", 1, "leverage (ignored for spot)")
		fee         = flag.Float64("fee", 0.001, "fee rate per side")
		spot        = flag.Bool("spot", false, "spot market")
		optimize    = flag.Bool("optimize", false, "sweep the agent's parameter grid")
		cooldown    = flag.Int("cooldown", 0, "cooldown candles after an exit, 0 disables")
		profitTrail = flag.Bool("profit-trail", true, "enable the universal profit trail")
		trailTP     = flag.Bool("trail-tp", false, "enable trailing take-profit")
		invalidate  = flag.Bool("invalidation", false, "enable invalidation checks")
		minRR       = flag.Float64("min-rr", 0, "minimum risk/reward, 0 disables")
		listAgents  = flag.Bool("agents", false, "list agents and exit")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := infrastructure.InitLogger(cfg.LogLevel)
	defer logger.Sync()

	registry := strategy.NewDefaultRegistry()
	if *listAgents {
		return printJSON(registry.List())
	}
	if *candlesPath == "" {
		return fmt.Errorf("-candles is required")
	}

	candles, err := readCandles(*candlesPath)
	if err != nil {
		return err
	}
	var higher []model.Candle
	if *higherPath != "" {
		if higher, err = readCandles(*higherPath); err != nil {
			return err
		}
	}
	params, err := model.ParseParams(*paramsFlag)
	if err != nil {
		return err
	}

	sc := model.StrategyConfig{
		Symbol:                  *symbol,
		Market:                  model.MarketFutures,
		Timeframe:               *timeframe,
		HigherTimeframe:         *higherTF,
		AgentID:                 *agentID,
		Params:                  params,
		InvestmentAmount:        *investment,
		Leverage:                *leverage,
		FeeRate:                 *fee,
		UseHigherTimeframe:      len(higher) > 0,
		UseUniversalProfitTrail: *profitTrail,
		UseTrailingTakeProfit:   *trailTP,
		UseInvalidationChecks:   *invalidate,
		UseCooldown:             *cooldown > 0,
		CooldownCandles:         *cooldown,
		UseMinRiskReward:        *minRR > 0,
		MinRiskReward:           *minRR,
	}
	if *spot {
		sc.Market = model.MarketSpot
	}

	e := engine.New(registry, engine.Config{
		Warmup:           cfg.WarmupCandles,
		MaxCombinations:  cfg.MaxCombinations,
		OptimizerWorkers: cfg.OptimizerWorkers,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*optimize {
		res, err := e.RunBacktest(ctx, candles, sc, higher)
		if err != nil {
			return err
		}
		return printJSON(res)
	}

	items, err := e.RunOptimization(ctx, candles, sc, higher, func(p engine.Progress) {
		logger.Info("optimization progress",
			zap.Float64("percent", p.Percent),
			zap.Int("total_combinations", p.TotalCombinations),
		)
	})
	if err != nil {
		return err
	}
	return printJSON(items)
}

func readCandles(path string) ([]model.Candle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var candles []model.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return candles, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
