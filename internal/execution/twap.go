package execution

import (
	"context"
	"fmt"
	"time"

	"orderexec/internal/types"

	"github.com/shopspring/decimal"
)

// TWAPParams describes a time-weighted order
type TWAPParams struct {
	Asset             string          `json:"asset"`
	Side              string          `json:"side"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	DurationMinutes   float64         `json:"duration_minutes"`
	SliceCount        int             `json:"slice_count"`
	Randomize         *bool           `json:"randomize,omitempty"`
	MaxPriceDeviation decimal.Decimal `json:"max_price_deviation"`
}

// TimeSlicedOrder splits an order into equal slices spread over a duration
type TimeSlicedOrder struct {
	*baseOrder

	sliceCount        int
	sliceAmount       decimal.Decimal
	sliceInterval     time.Duration
	randomize         bool
	maxPriceDeviation decimal.Decimal
	startPrice        decimal.Decimal
}

func newTimeSlicedOrder(p TWAPParams, defaults PolicyDefaults, deps orderDeps) (*TimeSlicedOrder, error) {
	base, err := newBaseOrder(types.OrderKindTWAP, p.Asset, p.Side, p.TotalAmount, deps)
	if err != nil {
		return nil, err
	}

	duration := p.DurationMinutes
	if duration == 0 {
		duration = defaults.TWAPDurationMinutes
	}
	sliceCount := p.SliceCount
	if sliceCount == 0 {
		sliceCount = defaults.TWAPSliceCount
	}
	randomize := defaults.TWAPRandomize
	if p.Randomize != nil {
		randomize = *p.Randomize
	}
	maxDeviation := p.MaxPriceDeviation
	if maxDeviation.IsZero() {
		maxDeviation = defaults.TWAPMaxPriceDeviation
	}

	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidParams)
	}
	if sliceCount <= 0 {
		return nil, fmt.Errorf("%w: slice count must be positive", ErrInvalidParams)
	}
	if !maxDeviation.IsPositive() {
		return nil, fmt.Errorf("%w: max price deviation must be positive", ErrInvalidParams)
	}

	interval := time.Duration(duration * float64(time.Minute) / float64(sliceCount))

	// Even split; the remainder of a non-terminating division is not
	// carried into the last slice.
	sliceAmount := p.TotalAmount.Div(decimal.NewFromInt(int64(sliceCount)))

	return &TimeSlicedOrder{
		baseOrder:         base,
		sliceCount:        sliceCount,
		sliceAmount:       sliceAmount,
		sliceInterval:     interval,
		randomize:         randomize,
		maxPriceDeviation: maxDeviation,
	}, nil
}

// SliceAmount returns the size of each child order
func (o *TimeSlicedOrder) SliceAmount() decimal.Decimal { return o.sliceAmount }

// SliceInterval returns the nominal wait between slices
func (o *TimeSlicedOrder) SliceInterval() time.Duration { return o.sliceInterval }

// Run executes the TWAP workflow
func (o *TimeSlicedOrder) Run(ctx context.Context) *types.OrderResult {
	return o.execute(ctx, o.run)
}

func (o *TimeSlicedOrder) run(ctx context.Context) {
	startPrice, err := o.deps.client.GetTickerPrice(ctx, o.asset)
	if err != nil {
		o.fail(fmt.Errorf("failed to fetch start price: %w", err))
		return
	}
	o.startPrice = startPrice

	o.log().WithFields(map[string]interface{}{
		"start_price":  startPrice.String(),
		"slices":       o.sliceCount,
		"slice_amount": o.sliceAmount.String(),
		"interval":     o.sliceInterval.String(),
	}).Info("TWAP started")

	for i := 0; i < o.sliceCount; i++ {
		if reason, stop := o.stopReason(ctx); stop {
			o.setExitReason(reason)
			break
		}

		if !o.executeSlice(ctx, i) {
			break
		}

		if i < o.sliceCount-1 {
			o.wait(ctx, o.nextInterval())
		}
	}

	o.settleSliced()
}

// executeSlice sends one slice. It returns false when the price moved
// too far and the loop must stop.
func (o *TimeSlicedOrder) executeSlice(ctx context.Context, slice int) bool {
	price, err := o.deps.client.GetTickerPrice(ctx, o.asset)
	if err != nil {
		o.log().LogSliceFailure(o.id, slice, err, map[string]interface{}{"stage": "price"})
		return true
	}

	deviation := types.PriceDeviation(price, o.startPrice)
	if deviation.GreaterThan(o.maxPriceDeviation) {
		o.log().WithFields(map[string]interface{}{
			"slice":         slice,
			"price":         price.String(),
			"start_price":   o.startPrice.String(),
			"deviation":     deviation.StringFixed(6),
			"max_deviation": o.maxPriceDeviation.String(),
		}).Warn("Price deviation exceeded, stopping TWAP")
		o.setExitReason(types.ExitReasonPriceDeviation)
		return false
	}

	report, err := o.placeMarket(ctx, o.side, o.sliceAmount)
	if err != nil {
		o.log().LogSliceFailure(o.id, slice, err, map[string]interface{}{
			"amount": o.sliceAmount.String(),
		})
		return true
	}

	o.recordFill(report, o.sliceAmount, price)
	return true
}

// nextInterval applies the U[0.8, 1.2] jitter when randomization is on
func (o *TimeSlicedOrder) nextInterval() time.Duration {
	if !o.randomize {
		return o.sliceInterval
	}
	factor := 0.8 + o.deps.rng.Float64()*0.4
	return time.Duration(float64(o.sliceInterval) * factor)
}
