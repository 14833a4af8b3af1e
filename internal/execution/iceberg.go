package execution

import (
	"context"
	"fmt"
	"time"

	"orderexec/internal/types"

	"github.com/shopspring/decimal"
)

// IcebergParams describes an iceberg order
type IcebergParams struct {
	Asset         string           `json:"asset"`
	Side          string           `json:"side"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	VisibleAmount decimal.Decimal  `json:"visible_amount"`
	LimitPrice    decimal.Decimal  `json:"limit_price"`
	PriceVariance *decimal.Decimal `json:"price_variance,omitempty"`
	// MaxConsecutiveFailures caps retries of a failing slice; 0 uses the
	// manager default, where 0 again means no cap.
	MaxConsecutiveFailures int `json:"max_consecutive_failures,omitempty"`
}

// IcebergOrder exposes at most visible_amount per child order and keeps
// replenishing until the hidden total is done.
type IcebergOrder struct {
	*baseOrder

	visibleAmount decimal.Decimal
	limitPrice    decimal.Decimal
	priceVariance decimal.Decimal
	retryInterval time.Duration
	maxFailures   int
}

func newIcebergOrder(p IcebergParams, defaults PolicyDefaults, deps orderDeps) (*IcebergOrder, error) {
	base, err := newBaseOrder(types.OrderKindIceberg, p.Asset, p.Side, p.TotalAmount, deps)
	if err != nil {
		return nil, err
	}

	if !p.VisibleAmount.IsPositive() {
		return nil, fmt.Errorf("%w: visible amount must be positive", ErrInvalidParams)
	}
	if !p.LimitPrice.IsPositive() {
		return nil, fmt.Errorf("%w: limit price must be positive", ErrInvalidParams)
	}

	variance := defaults.IcebergPriceVariance
	if p.PriceVariance != nil {
		variance = *p.PriceVariance
	}
	if variance.IsNegative() || variance.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: price variance must be in [0, 1)", ErrInvalidParams)
	}

	maxFailures := p.MaxConsecutiveFailures
	if maxFailures == 0 {
		maxFailures = defaults.IcebergMaxConsecutiveFailures
	}
	if maxFailures < 0 {
		return nil, fmt.Errorf("%w: max consecutive failures cannot be negative", ErrInvalidParams)
	}

	return &IcebergOrder{
		baseOrder:     base,
		visibleAmount: p.VisibleAmount,
		limitPrice:    p.LimitPrice,
		priceVariance: variance,
		retryInterval: defaults.IcebergRetryInterval,
		maxFailures:   maxFailures,
	}, nil
}

// Remaining returns the hidden amount still to execute
func (o *IcebergOrder) Remaining() decimal.Decimal {
	return o.totalAmount.Sub(o.ledger.FilledAmount())
}

// Run executes the iceberg workflow
func (o *IcebergOrder) Run(ctx context.Context) *types.OrderResult {
	return o.execute(ctx, o.run)
}

func (o *IcebergOrder) run(ctx context.Context) {
	o.log().WithFields(map[string]interface{}{
		"visible_amount": o.visibleAmount.String(),
		"limit_price":    o.limitPrice.String(),
		"price_variance": o.priceVariance.String(),
	}).Info("Iceberg started")

	failures := 0
	for attempt := 0; o.Remaining().IsPositive(); attempt++ {
		if reason, stop := o.stopReason(ctx); stop {
			o.abort(reason)
			return
		}

		if o.executeSlice(ctx, attempt) {
			failures = 0
		} else {
			failures++
			if o.maxFailures > 0 && failures >= o.maxFailures {
				o.fail(fmt.Errorf("%d consecutive child order failures, %s of %s unfilled",
					failures, o.Remaining(), o.totalAmount))
				return
			}
		}

		if o.Remaining().IsPositive() {
			o.wait(ctx, o.retryInterval)
		}
	}

	o.settle()
}

// executeSlice reports whether the attempt produced a fill. A failed
// attempt leaves the remaining amount untouched, so the next pass retries
// the same slice.
func (o *IcebergOrder) executeSlice(ctx context.Context, attempt int) bool {
	amount := decimal.Min(o.visibleAmount, o.Remaining())
	price := o.slicePrice()

	report, orderType, err := o.placeLimit(ctx, o.side, amount, price)
	if err != nil {
		o.log().LogSliceFailure(o.id, attempt, err, map[string]interface{}{
			"amount":     amount.String(),
			"price":      price.String(),
			"order_type": orderType,
		})
		return false
	}
	if !report.HasFill() {
		o.log().WithFields(map[string]interface{}{
			"slice":  attempt,
			"amount": amount.String(),
			"price":  price.String(),
		}).Debug("Slice acknowledged without fill")
		return false
	}

	o.recordFill(report, amount, price)
	return true
}

// slicePrice offsets the limit by U[-variance, +variance]
func (o *IcebergOrder) slicePrice() decimal.Decimal {
	if o.priceVariance.IsZero() {
		return o.limitPrice
	}
	offset := decimal.NewFromFloat(o.deps.rng.Float64()*2 - 1).Mul(o.priceVariance)
	return o.limitPrice.Mul(decimal.NewFromInt(1).Add(offset))
}
