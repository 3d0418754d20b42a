package domain

import "time"

// MarginSide is the direction of a margin hedge order.
type MarginSide string

const (
	MarginSideBuy  MarginSide = "BUY"
	MarginSideSell MarginSide = "SELL"
)

// OrderResult is the outcome of a margin order or subscription call.
type OrderResult struct {
	OrderID   string
	Symbol    string
	Side      MarginSide
	Quantity  float64
	Success   bool
	Code      int
	Message   string
	CreatedAt time.Time
}

// BorrowResult is the outcome of a collateral borrow call.
type BorrowResult struct {
	TranID           string
	Coin             string
	Amount           float64
	CollateralCoin   string
	CollateralAmount float64
}

// SubscribeResult is the outcome of a dual-investment subscription call.
type SubscribeResult struct {
	PositionID string
	ProductID  string
	Amount     float64
	Success    bool
	Code       int
	Message    string
}

// SymbolFilter carries the exchange-enforced precision rules for a margin
// instrument. Quantities are rounded down to StepSize and rejected below
// MinQuantity.
type SymbolFilter struct {
	Symbol      string
	StepSize    float64
	MinQuantity float64
}
