package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticker represents the latest quote of a market
type Ticker struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

// NewTicker creates a new ticker instance
func NewTicker(symbol string, timestamp time.Time, price decimal.Decimal) *Ticker {
	return &Ticker{
		Symbol:    symbol,
		Timestamp: timestamp,
		Price:     price,
	}
}

// PriceDeviation returns |price - ref| / ref, 0 when ref is 0
func PriceDeviation(price, ref decimal.Decimal) decimal.Decimal {
	if ref.IsZero() {
		return decimal.Zero
	}
	return price.Sub(ref).Abs().Div(ref)
}
