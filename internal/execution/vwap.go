package execution

import (
	"context"
	"fmt"
	"time"

	"orderexec/internal/types"

	"github.com/shopspring/decimal"
)

// VWAPParams describes a volume-weighted order
type VWAPParams struct {
	Asset             string            `json:"asset"`
	Side              string            `json:"side"`
	TotalAmount       decimal.Decimal   `json:"total_amount"`
	DurationMinutes   int               `json:"duration_minutes"`
	VolumeProfile     []decimal.Decimal `json:"volume_profile,omitempty"`
	ParticipationRate decimal.Decimal   `json:"participation_rate"`
}

// VolumeSlicedOrder sizes each slice by the expected share of volume
type VolumeSlicedOrder struct {
	*baseOrder

	sliceAmounts      []decimal.Decimal
	interval          time.Duration
	participationRate decimal.Decimal
}

func newVolumeSlicedOrder(p VWAPParams, defaults PolicyDefaults, deps orderDeps) (*VolumeSlicedOrder, error) {
	base, err := newBaseOrder(types.OrderKindVWAP, p.Asset, p.Side, p.TotalAmount, deps)
	if err != nil {
		return nil, err
	}

	duration := p.DurationMinutes
	if duration == 0 {
		duration = defaults.VWAPDurationMinutes
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidParams)
	}

	profile := p.VolumeProfile
	if len(profile) == 0 {
		profile = defaults.VWAPProfile
	}
	if len(profile) == 0 {
		profile = DefaultVolumeProfile()
	}

	participation := p.ParticipationRate
	if participation.IsZero() {
		participation = defaults.VWAPParticipationRate
	}
	if participation.IsNegative() {
		return nil, fmt.Errorf("%w: participation rate cannot be negative", ErrInvalidParams)
	}

	sliceCount := len(profile)
	if duration < sliceCount {
		sliceCount = duration
	}

	weights, err := NormalizeProfile(profile[:sliceCount])
	if err != nil {
		return nil, err
	}

	amounts := make([]decimal.Decimal, sliceCount)
	for i, w := range weights {
		amounts[i] = w.Mul(p.TotalAmount)
	}

	return &VolumeSlicedOrder{
		baseOrder:         base,
		sliceAmounts:      amounts,
		interval:          time.Duration(duration) * time.Minute / time.Duration(sliceCount),
		participationRate: participation,
	}, nil
}

// SliceAmounts returns a copy of the per-slice sizes
func (o *VolumeSlicedOrder) SliceAmounts() []decimal.Decimal {
	out := make([]decimal.Decimal, len(o.sliceAmounts))
	copy(out, o.sliceAmounts)
	return out
}

// Interval returns the wait between slices
func (o *VolumeSlicedOrder) Interval() time.Duration { return o.interval }

// Run executes the VWAP workflow
func (o *VolumeSlicedOrder) Run(ctx context.Context) *types.OrderResult {
	return o.execute(ctx, o.run)
}

func (o *VolumeSlicedOrder) run(ctx context.Context) {
	// participation rate is advisory; slicing does not enforce it
	o.log().WithFields(map[string]interface{}{
		"slices":             len(o.sliceAmounts),
		"interval":           o.interval.String(),
		"participation_rate": o.participationRate.String(),
	}).Info("VWAP started")

	last := len(o.sliceAmounts) - 1
	for i, amount := range o.sliceAmounts {
		if reason, stop := o.stopReason(ctx); stop {
			o.setExitReason(reason)
			break
		}

		if amount.LessThan(dustThreshold) {
			o.log().WithFields(map[string]interface{}{
				"slice":  i,
				"amount": amount.String(),
			}).Debug("Skipping dust slice")
		} else {
			o.executeSlice(ctx, i, amount)
		}

		if i < last {
			o.wait(ctx, o.interval)
		}
	}

	o.settleSliced()
}

func (o *VolumeSlicedOrder) executeSlice(ctx context.Context, slice int, amount decimal.Decimal) {
	report, err := o.placeMarket(ctx, o.side, amount)
	if err != nil {
		o.log().LogSliceFailure(o.id, slice, err, map[string]interface{}{
			"amount": amount.String(),
		})
		return
	}

	price := decimal.Zero
	if !report.FilledPrice.IsPositive() {
		if p, err := o.deps.client.GetTickerPrice(ctx, o.asset); err == nil {
			price = p
		}
	}
	o.recordFill(report, amount, price)
}
