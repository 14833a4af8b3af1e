package execution

import (
	"fmt"
	"time"

	"orderexec/internal/config"

	"github.com/shopspring/decimal"
)

// PolicyDefaults are applied to request fields left at their zero value
type PolicyDefaults struct {
	TWAPDurationMinutes   float64
	TWAPSliceCount        int
	TWAPRandomize         bool
	TWAPMaxPriceDeviation decimal.Decimal

	VWAPDurationMinutes   int
	VWAPParticipationRate decimal.Decimal
	// VWAPProfile replaces the built-in intraday profile when set
	VWAPProfile []decimal.Decimal

	IcebergPriceVariance          decimal.Decimal
	IcebergRetryInterval          time.Duration
	IcebergMaxConsecutiveFailures int // 0 retries forever

	BracketPollInterval time.Duration
}

// DefaultPolicyDefaults returns the stock policy settings
func DefaultPolicyDefaults() PolicyDefaults {
	return PolicyDefaults{
		TWAPDurationMinutes:   60,
		TWAPSliceCount:        12,
		TWAPRandomize:         true,
		TWAPMaxPriceDeviation: decimal.NewFromFloat(0.02),
		VWAPDurationMinutes:   60,
		VWAPParticipationRate: decimal.NewFromFloat(0.1),
		IcebergPriceVariance:  decimal.NewFromFloat(0.001),
		IcebergRetryInterval:  time.Second,
		BracketPollInterval:   time.Second,
	}
}

// withFallbacks fills zero fields from the stock settings
func (d PolicyDefaults) withFallbacks() PolicyDefaults {
	stock := DefaultPolicyDefaults()
	if d.TWAPDurationMinutes <= 0 {
		d.TWAPDurationMinutes = stock.TWAPDurationMinutes
	}
	if d.TWAPSliceCount <= 0 {
		d.TWAPSliceCount = stock.TWAPSliceCount
	}
	if !d.TWAPMaxPriceDeviation.IsPositive() {
		d.TWAPMaxPriceDeviation = stock.TWAPMaxPriceDeviation
	}
	if d.VWAPDurationMinutes <= 0 {
		d.VWAPDurationMinutes = stock.VWAPDurationMinutes
	}
	if d.VWAPParticipationRate.IsZero() {
		d.VWAPParticipationRate = stock.VWAPParticipationRate
	}
	if !d.IcebergPriceVariance.IsPositive() {
		d.IcebergPriceVariance = stock.IcebergPriceVariance
	}
	if d.IcebergRetryInterval <= 0 {
		d.IcebergRetryInterval = stock.IcebergRetryInterval
	}
	if d.BracketPollInterval <= 0 {
		d.BracketPollInterval = stock.BracketPollInterval
	}
	return d
}

// PolicyDefaultsFromConfig converts the execution section of the service
// configuration. Observed hourly volumes, when configured, are smoothed
// into the VWAP profile.
func PolicyDefaultsFromConfig(cfg config.ExecutionConfig) (PolicyDefaults, error) {
	d := PolicyDefaults{
		TWAPDurationMinutes:           cfg.TWAPDurationMinutes,
		TWAPSliceCount:                cfg.TWAPSliceCount,
		TWAPRandomize:                 cfg.TWAPRandomize,
		TWAPMaxPriceDeviation:         decimal.NewFromFloat(cfg.TWAPMaxPriceDeviation),
		VWAPDurationMinutes:           cfg.VWAPDurationMinutes,
		VWAPParticipationRate:         decimal.NewFromFloat(cfg.VWAPParticipationRate),
		IcebergPriceVariance:          decimal.NewFromFloat(cfg.IcebergPriceVariance),
		IcebergRetryInterval:          cfg.IcebergRetryInterval,
		IcebergMaxConsecutiveFailures: cfg.IcebergMaxConsecutiveFailures,
		BracketPollInterval:           cfg.BracketPollInterval,
	}

	if len(cfg.VWAPHourlyVolumes) > 0 {
		profile, err := BuildVolumeProfile(cfg.VWAPHourlyVolumes, cfg.VWAPProfileSmoothing)
		if err != nil {
			return PolicyDefaults{}, fmt.Errorf("vwap profile: %w", err)
		}
		d.VWAPProfile = profile
	}

	return d.withFallbacks(), nil
}
