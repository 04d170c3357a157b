package infrastructure

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
)

// Init builds the production logger at info level.
func Init() {
	InitLogger("info")
}

// InitLogger builds the production logger at the given level. Unknown levels
// fall back to info.
func InitLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	Logger, err = cfg.Build()
	if err != nil {
		Logger, _ = zap.NewProduction()
	}
	Logger.Info("infrastructure initialized", zap.String("log_level", lvl.String()))
	return Logger
}
