package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BacktestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_runs_total",
		Help: "Total number of backtest runs",
	}, []string{"agent", "status"})

	BacktestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backtest_latency_seconds",
		Help:    "Wall time of a single backtest run",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"agent"})

	SimulatedTrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulated_trades_total",
		Help: "Total number of simulated trades closed, by exit reason",
	}, []string{"reason"})

	OptimizationCombinations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "optimization_combinations_total",
		Help: "Total number of parameter combinations evaluated",
	}, []string{"agent"})

	WorkerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_requests_total",
		Help: "Total number of simulation requests handled",
	}, []string{"type", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_total",
		Help: "Total number of active WebSocket connections",
	})
)
