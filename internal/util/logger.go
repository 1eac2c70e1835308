package util

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// InitLogger builds the process-wide logger. Production writes JSON with ISO8601
// timestamps; anything else writes colored console output. level overrides the
// environment's default level when set.
func InitLogger(env, level string) error {
	config, err := loggerConfig(env, level)
	if err != nil {
		return err
	}

	built, err := config.Build(
		zap.Fields(zap.String("service", ServiceName)),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	logger = built
	zap.ReplaceGlobals(logger)
	return nil
}

func loggerConfig(env, level string) (zap.Config, error) {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "ts"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return config, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	return config, nil
}

// GetLogger returns the global logger
func GetLogger() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// Named returns the global logger scoped to one component, e.g. "orders"
func Named(component string) *zap.Logger {
	return GetLogger().Named(component)
}

// AccountField tags a log entry with the owning account
func AccountField(accountID uuid.UUID) zap.Field {
	return zap.String("account_id", accountID.String())
}

// OrderField tags a log entry with an order
func OrderField(orderID uuid.UUID) zap.Field {
	return zap.String("order_id", orderID.String())
}

// SyncLogger flushes any buffered log entries
func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}
