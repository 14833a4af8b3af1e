package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderSide represents the side of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// ParseOrderSide converts user input ("BUY", "sell", ...) into an OrderSide
func ParseOrderSide(s string) (OrderSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return OrderSideBuy, nil
	case "sell":
		return OrderSideSell, nil
	default:
		return "", fmt.Errorf("unknown order side: %q", s)
	}
}

// Opposite returns the side that closes a position opened with s
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// IsBuy returns true for the buy side
func (s OrderSide) IsBuy() bool {
	return s == OrderSideBuy
}

// OrderType represents the type of a child order sent to the exchange
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus represents the status of a parent (algorithmic) order
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusActive          OrderStatus = "active"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusFailed          OrderStatus = "failed"
	// Reserved, no policy produces it yet
	OrderStatusExpired OrderStatus = "expired"
)

// IsTerminal returns true once no further transitions are allowed
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed, OrderStatusExpired:
		return true
	}
	return false
}

// OrderKind identifies the execution policy of a parent order
type OrderKind string

const (
	OrderKindTWAP    OrderKind = "twap"
	OrderKindVWAP    OrderKind = "vwap"
	OrderKindIceberg OrderKind = "iceberg"
	OrderKindBracket OrderKind = "bracket"
)

// Exit reasons recorded on results
const (
	ExitReasonPriceDeviation = "price_deviation"
	ExitReasonCancelled      = "cancelled"
	ExitReasonShutdown       = "shutdown"
	ExitReasonStopLoss       = "stop_loss"
	ExitReasonTakeProfit     = "take_profit"
)

// ExecutionReport is the exchange acknowledgement for one child order
type ExecutionReport struct {
	Success      bool            `json:"success"`
	OrderID      string          `json:"order_id"`
	FilledAmount decimal.Decimal `json:"filled_amount"`
	FilledPrice  decimal.Decimal `json:"filled_price"`
	Fee          decimal.Decimal `json:"fee"`
}

// HasFill returns true when the report carries a positive executed amount
func (r *ExecutionReport) HasFill() bool {
	return r != nil && r.Success && r.FilledAmount.IsPositive()
}
