package types

import "time"

// Mode selects the trading environment. Paper and live use separate
// credentials, account numbers and base URLs; mixing them is the main
// safety hazard the auth layer guards against.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderKind is chosen by the executor from the market clock, never by callers.
type OrderKind string

const (
	KindMarket   OrderKind = "MARKET"
	KindLimit    OrderKind = "LIMIT"
	KindReserved OrderKind = "RESERVED"
	// KindClosing is the domestic after-hours closing-price order.
	KindClosing OrderKind = "CLOSING"
)

// OrderRequest is built by an executor right before submission. It is never
// persisted.
type OrderRequest struct {
	Symbol          string
	Side            OrderSide
	Quantity        int
	Kind            OrderKind
	LimitPrice      float64
	ReservedEndDate string // YYYYMMDD, reserved orders only
}

// OrderResult is the synchronous outcome of a buy/sell call. Broker-level
// rejections (insufficient funds, bad symbol, market closed) come back here
// with Success=false; they are expected business outcomes, not errors.
type OrderResult struct {
	Success     bool    `json:"success"`
	OrderNo     string  `json:"order_no,omitempty"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	TotalAmount float64 `json:"total_amount"`
	Message     string  `json:"message"`
}

type StockPrice struct {
	Symbol   string
	Price    float64
	Volume   int64
	Currency string
	Time     time.Time
}

type StockHolding struct {
	Symbol       string
	Name         string
	Quantity     int
	AvgPrice     float64
	CurrentPrice float64
	EvalAmount   float64
	ProfitLoss   float64
	ProfitRate   float64
}

type AccountSummary struct {
	TotalEval       float64
	Deposit         float64
	TotalProfitLoss float64
	TotalProfitRate float64
}
