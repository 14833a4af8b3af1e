package execution

import (
	"fmt"

	"github.com/cinar/indicator"
	"github.com/shopspring/decimal"
)

// hourlyCryptoVolume approximates the share of daily spot volume traded in
// each UTC hour: Asia open, a lull, then the EU and US overlap.
var hourlyCryptoVolume = []float64{
	0.045, 0.040, 0.035, 0.032, 0.030, 0.030,
	0.032, 0.036, 0.042, 0.045, 0.046, 0.046,
	0.046, 0.050, 0.055, 0.055, 0.050, 0.046,
	0.042, 0.040, 0.040, 0.038, 0.036, 0.033,
}

// DefaultVolumeProfile returns the 24-entry hourly profile, summing to 1
func DefaultVolumeProfile() []decimal.Decimal {
	weights := make([]decimal.Decimal, len(hourlyCryptoVolume))
	for i, w := range hourlyCryptoVolume {
		weights[i] = decimal.NewFromFloat(w)
	}
	profile, _ := NormalizeProfile(weights)
	return profile
}

// BuildVolumeProfile turns observed volumes into a VWAP profile. With
// smoothing > 1 the series is first passed through a simple moving
// average of that period.
func BuildVolumeProfile(volumes []float64, smoothing int) ([]decimal.Decimal, error) {
	if len(volumes) == 0 {
		return nil, fmt.Errorf("%w: empty volume series", ErrInvalidParams)
	}
	for i, v := range volumes {
		if v < 0 {
			return nil, fmt.Errorf("%w: negative volume %v at %d", ErrInvalidParams, v, i)
		}
	}

	series := volumes
	if smoothing > 1 {
		series = indicator.Sma(smoothing, volumes)
	}

	weights := make([]decimal.Decimal, len(series))
	for i, v := range series {
		weights[i] = decimal.NewFromFloat(v)
	}
	return NormalizeProfile(weights)
}

// NormalizeProfile scales non-negative weights to sum to 1
func NormalizeProfile(weights []decimal.Decimal) ([]decimal.Decimal, error) {
	sum := decimal.Zero
	for i, w := range weights {
		if w.IsNegative() {
			return nil, fmt.Errorf("%w: negative profile weight %s at %d", ErrInvalidParams, w, i)
		}
		sum = sum.Add(w)
	}
	if !sum.IsPositive() {
		return nil, fmt.Errorf("%w: profile weights sum to zero", ErrInvalidParams)
	}

	out := make([]decimal.Decimal, len(weights))
	for i, w := range weights {
		out[i] = w.Div(sum)
	}
	return out, nil
}
