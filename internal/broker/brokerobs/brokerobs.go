package brokerobs

import (
	"context"

	"kis-trader/internal/interfaces"
	"kis-trader/internal/logger"
	"kis-trader/internal/trace"
	"kis-trader/internal/types"
)

// observableExecutor wraps an Executor with observability (logging & tracing)
type observableExecutor struct {
	exec interfaces.Executor
}

// Compile-time interface check
var _ interfaces.Executor = (*observableExecutor)(nil)

// Wrap wraps an executor with observability middleware
func Wrap(exec interfaces.Executor) interfaces.Executor {
	return &observableExecutor{
		exec: exec,
	}
}

// CurrentPrice fetches a quote with observability
func (oe *observableExecutor) CurrentPrice(ctx context.Context, symbol string) (types.StockPrice, error) {
	ctx, span := trace.StartSpan(ctx, "executor.CurrentPrice")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching current price", "symbol", symbol)

	price, err := oe.exec.CurrentPrice(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch current price", err, "symbol", symbol)
		return types.StockPrice{}, err
	}

	logger.DebugSkip(ctx, 1, "Current price fetched", "symbol", symbol, "price", price.Price, "currency", price.Currency)
	return price, nil
}

// Buy places a budget-bounded buy order with observability
func (oe *observableExecutor) Buy(ctx context.Context, symbol string, budget float64) (types.OrderResult, error) {
	ctx, span := trace.StartSpan(ctx, "executor.Buy")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing buy order", "symbol", symbol, "budget", budget)

	result, err := oe.exec.Buy(ctx, symbol, budget)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place buy order", err, "symbol", symbol, "budget", budget)
		return types.OrderResult{}, err
	}

	logger.InfoSkip(ctx, 1, "Buy order finished",
		"symbol", symbol,
		"success", result.Success,
		"order_no", result.OrderNo,
		"qty", result.Quantity,
		"message", result.Message,
	)
	return result, nil
}

// Sell liquidates a holding with observability
func (oe *observableExecutor) Sell(ctx context.Context, symbol string) (types.OrderResult, error) {
	ctx, span := trace.StartSpan(ctx, "executor.Sell")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing sell order", "symbol", symbol)

	result, err := oe.exec.Sell(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place sell order", err, "symbol", symbol)
		return types.OrderResult{}, err
	}

	logger.InfoSkip(ctx, 1, "Sell order finished",
		"symbol", symbol,
		"success", result.Success,
		"order_no", result.OrderNo,
		"qty", result.Quantity,
		"message", result.Message,
	)
	return result, nil
}

// Portfolio lists holdings with observability
func (oe *observableExecutor) Portfolio(ctx context.Context) ([]types.StockHolding, error) {
	ctx, span := trace.StartSpan(ctx, "executor.Portfolio")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching portfolio")

	holdings, err := oe.exec.Portfolio(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch portfolio", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Portfolio fetched", "holdings", len(holdings))
	return holdings, nil
}

// AccountSummary fetches account totals with observability
func (oe *observableExecutor) AccountSummary(ctx context.Context) (types.AccountSummary, error) {
	ctx, span := trace.StartSpan(ctx, "executor.AccountSummary")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching account summary")

	summary, err := oe.exec.AccountSummary(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch account summary", err)
		return types.AccountSummary{}, err
	}

	logger.DebugSkip(ctx, 1, "Account summary fetched", "total_eval", summary.TotalEval, "profit_loss", summary.TotalProfitLoss)
	return summary, nil
}
