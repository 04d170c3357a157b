package app

import (
	"context"
	"time"

	"quant-backtester/internal/engine"
	"quant-backtester/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// startSimulationWorker serves simulation requests arriving over NATS on a
// bounded worker pool.
func (a *App) startSimulationWorker(ctx context.Context) error {
	a.Pool = engine.NewWorkerPool(a.Config.WorkerCount, a.Config.WorkerQueueSize, a.Logger)
	a.Pool.Start(ctx)

	a.NATSServer = worker.NewNATSServer(a.NC, a.JS, a.Dispatcher, a.Pool,
		a.Config.RequestSubject, a.Config.ProgressSubject, a.Logger)
	return a.NATSServer.Start(ctx)
}

// requestLogger logs one structured line per HTTP request.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
