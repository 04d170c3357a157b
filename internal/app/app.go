package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quant-backtester/api"
	"quant-backtester/internal/config"
	"quant-backtester/internal/engine"
	"quant-backtester/internal/infrastructure"
	"quant-backtester/internal/push"
	"quant-backtester/internal/storage"
	"quant-backtester/internal/strategy"
	"quant-backtester/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App defines the application structure and its dependencies
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *pgxpool.Pool
	NC          *nats.Conn
	JS          nats.JetStreamContext
	Store       *storage.Store
	Registry    *strategy.Registry
	Engine      *engine.Engine
	Dispatcher  *worker.Dispatcher
	Pool        *engine.WorkerPool
	NATSServer  *worker.NATSServer
	PushGateway *push.PushGateway
	HTTPServer  *http.Server
}

// NewApp creates a new application instance
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := infrastructure.InitLogger(cfg.LogLevel)

	return &App{
		Config: &cfg,
		Logger: logger,
	}, nil
}

// Init initializes all application components
func (a *App) Init(ctx context.Context) error {
	// 1. Database
	dbPool, err := pgxpool.Connect(ctx, a.Config.DB_DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = dbPool

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.Store = storage.NewStore(a.DB, a.Logger)

	// 2. NATS
	nc, js, err := infrastructure.InitNATS(a.Config.NatsURL, a.Config.ProgressSubject, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.NC = nc
	a.JS = js

	// 3. Services
	a.Registry = strategy.NewDefaultRegistry()
	a.Engine = engine.New(a.Registry, engine.Config{
		Warmup:           a.Config.WarmupCandles,
		MaxCombinations:  a.Config.MaxCombinations,
		OptimizerWorkers: a.Config.OptimizerWorkers,
	}, a.Logger)

	var recorder worker.Recorder
	if a.Config.PersistRuns {
		recorder = a.Store
	}
	a.Dispatcher = worker.NewDispatcher(a.Engine, a.Store, recorder, a.Logger)
	a.PushGateway = push.NewPushGateway(js, a.Config.ProgressSubject, a.Logger)

	return nil
}

// Run starts the application services and the HTTP server
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start Simulation Worker
	if err := a.startSimulationWorker(ctx); err != nil {
		return fmt.Errorf("failed to start simulation worker: %w", err)
	}

	// Setup HTTP Server
	a.HTTPServer = &http.Server{
		Addr:    ":" + a.Config.Port,
		Handler: a.setupRouter(),
	}

	go func() {
		a.Logger.Info("starting http server", zap.String("port", a.Config.Port))
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	return a.waitForShutdown(cancel)
}

// waitForShutdown handles graceful shutdown signals
func (a *App) waitForShutdown(cancel context.CancelFunc) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down...")

	ctx, timeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeout()

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// queued requests are answered with a shutdown error once ctx is cancelled
	a.NATSServer.Stop()
	cancel()
	a.Pool.Stop()

	if err := a.NC.Flush(); err != nil {
		a.Logger.Warn("failed to flush nats connection", zap.Error(err))
	}
	a.NC.Close()
	a.DB.Close()
	a.Logger.Sync()

	return nil
}

// initDatabase runs the database initialization script
func (a *App) initDatabase(ctx context.Context) error {
	sqlFile := "scripts/init.sql"
	content, err := os.ReadFile(sqlFile)
	if err != nil {
		return fmt.Errorf("failed to read init script: %w", err)
	}

	_, err = a.DB.Exec(ctx, string(content))
	if err != nil {
		return fmt.Errorf("failed to execute init script: %w", err)
	}

	a.Logger.Info("database initialized successfully")
	return nil
}

// setupRouter configures the Gin router and its routes
func (a *App) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.Logger))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	apiHandler := api.NewHandler(a.Dispatcher, a.Registry, a.Store, a.Store, a.NATSServer.PublishProgress, a.Logger)
	apiHandler.Routes(r)

	r.GET("/ws", func(c *gin.Context) {
		a.PushGateway.ServeHTTP(c.Writer, c.Request)
	})

	return r
}
