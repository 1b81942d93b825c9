package interfaces

import (
	"context"

	"kis-trader/internal/types"
)

// Executor is the narrow contract the orchestration layers consume. They
// only ever see read models and OrderResult, never token or lock internals.
// Errors are reserved for system faults (auth, network); a rejected order is
// a value with Success=false.
type Executor interface {
	CurrentPrice(ctx context.Context, symbol string) (types.StockPrice, error)
	Buy(ctx context.Context, symbol string, budget float64) (types.OrderResult, error)
	Sell(ctx context.Context, symbol string) (types.OrderResult, error)
	Portfolio(ctx context.Context) ([]types.StockHolding, error)
	AccountSummary(ctx context.Context) (types.AccountSummary, error)
}
