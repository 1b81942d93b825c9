package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"kis-trader/internal/auth"
	"kis-trader/internal/broker/brokerobs"
	"kis-trader/internal/broker/kis"
	"kis-trader/internal/config"
	"kis-trader/internal/interfaces"
	"kis-trader/internal/logger"
	"kis-trader/internal/trace"
	"kis-trader/internal/tradelog"
	"kis-trader/internal/types"

	"github.com/joho/godotenv"
)

// initializeSystem initializes environment, logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs compresses old tradelog files if retention is configured
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeExecutor builds the market-specific executor with observability
func initializeExecutor(ctx context.Context, cfg *config.Config, session *auth.Session, market string) (interfaces.Executor, error) {
	client := kis.NewClient(session, cfg.TradingMode())
	guard := kis.NewGuard(0)

	var exec interfaces.Executor
	switch market {
	case "domestic":
		exec = kis.NewDomestic(client, guard)
	case "overseas":
		exec = kis.NewOverseas(client, guard, cfg.Overseas.Exchange, cfg.Overseas.Currency)
	default:
		return nil, fmt.Errorf("unknown market '%s': must be 'domestic' or 'overseas'", market)
	}

	if cfg.TradingMode() == types.ModePaper {
		logger.Warn(ctx, "Running in paper mode - orders go to the simulation gateway")
	}

	// Wrap with observability middleware
	return brokerobs.Wrap(exec), nil
}

// initializeStream builds the WebSocket quote stream
func initializeStream(cfg *config.Config, session *auth.Session) *kis.Stream {
	return kis.NewStream(session, cfg.Stream.MaxReconnects, time.Duration(cfg.Stream.ReconnectDelay)*time.Second)
}
