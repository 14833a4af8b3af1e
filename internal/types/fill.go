package types

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fill records one successfully executed child order
type Fill struct {
	FillID    string          `json:"fill_id"`
	Timestamp time.Time       `json:"timestamp"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Fee       decimal.Decimal `json:"fee"`
}

// NewFill creates a fill stamped with a fresh id and the current time
func NewFill(amount, price, fee decimal.Decimal) Fill {
	return Fill{
		FillID:    uuid.NewString(),
		Timestamp: time.Now(),
		Amount:    amount,
		Price:     price,
		Fee:       fee,
	}
}

// TotalValue returns amount × price
func (f Fill) TotalValue() decimal.Decimal {
	return f.Amount.Mul(f.Price)
}

// FillLedger is the append-only fill record of one parent order.
// Only the order's own workflow appends; any goroutine may read.
type FillLedger struct {
	mu    sync.RWMutex
	fills []Fill
}

// NewFillLedger creates an empty ledger
func NewFillLedger() *FillLedger {
	return &FillLedger{}
}

// Append records a fill
func (l *FillLedger) Append(fill Fill) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fills = append(l.fills, fill)
}

// Fills returns a copy of all fills in execution order
func (l *FillLedger) Fills() []Fill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// Len returns the number of fills
func (l *FillLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fills)
}

// FilledAmount returns Σ fill.amount
func (l *FillLedger) FilledAmount() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := decimal.Zero
	for _, f := range l.fills {
		total = total.Add(f.Amount)
	}
	return total
}

// TotalValue returns Σ fill.amount × fill.price
func (l *FillLedger) TotalValue() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := decimal.Zero
	for _, f := range l.fills {
		total = total.Add(f.TotalValue())
	}
	return total
}

// AveragePrice returns the amount-weighted fill price, 0 when nothing filled
func (l *FillLedger) AveragePrice() decimal.Decimal {
	return averagePrice(l.Fills())
}

// TotalFees returns Σ fill.fee
func (l *FillLedger) TotalFees() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := decimal.Zero
	for _, f := range l.fills {
		total = total.Add(f.Fee)
	}
	return total
}

func averagePrice(fills []Fill) decimal.Decimal {
	amount := decimal.Zero
	value := decimal.Zero
	for _, f := range fills {
		amount = amount.Add(f.Amount)
		value = value.Add(f.TotalValue())
	}
	if amount.IsZero() {
		return decimal.Zero
	}
	return value.Div(amount)
}
