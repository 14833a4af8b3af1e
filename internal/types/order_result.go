package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderResult is the snapshot of a parent order. Live snapshots leave
// CompletedAt nil; the final one is built once when the workflow returns.
type OrderResult struct {
	OrderID        string          `json:"order_id"`
	Kind           OrderKind       `json:"kind"`
	Asset          string          `json:"asset"`
	Side           OrderSide       `json:"side"`
	Status         OrderStatus     `json:"status"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	FilledAmount   decimal.Decimal `json:"filled_amount"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	TotalFees      decimal.Decimal `json:"total_fees"`
	TotalValue     decimal.Decimal `json:"total_value"`
	FillPercentage decimal.Decimal `json:"fill_percentage"`
	Fills          []Fill          `json:"fills"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	ExitReason     string          `json:"exit_reason,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// ApplyFills derives the aggregate fields from fills
func (r *OrderResult) ApplyFills(fills []Fill) {
	filled := decimal.Zero
	value := decimal.Zero
	fees := decimal.Zero
	for _, f := range fills {
		filled = filled.Add(f.Amount)
		value = value.Add(f.TotalValue())
		fees = fees.Add(f.Fee)
	}

	r.Fills = fills
	r.FilledAmount = filled
	r.TotalValue = value
	r.TotalFees = fees
	r.AveragePrice = averagePrice(fills)
	r.FillPercentage = FillPercentage(filled, r.TotalAmount)
}

// IsComplete returns true for the final snapshot
func (r *OrderResult) IsComplete() bool {
	return r.CompletedAt != nil
}

// Duration returns how long the order ran, or has been running
func (r *OrderResult) Duration() time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// FillPercentage returns filled/total × 100, 0 when total is 0
func FillPercentage(filled, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return filled.Div(total).Mul(decimal.NewFromInt(100))
}

// OrderSummary is the compact row returned for active orders
type OrderSummary struct {
	OrderID  string      `json:"order_id"`
	Kind     OrderKind   `json:"kind"`
	Asset    string      `json:"asset"`
	Side     OrderSide   `json:"side"`
	Status   OrderStatus `json:"status"`
	Progress string      `json:"progress"`
}

// FormatProgress renders "filled/total"
func FormatProgress(filled, total decimal.Decimal) string {
	return fmt.Sprintf("%s/%s", filled.String(), total.String())
}
