package execution

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func sumWeights(weights []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, w := range weights {
		total = total.Add(w)
	}
	return total
}

func TestDefaultVolumeProfile(t *testing.T) {
	profile := DefaultVolumeProfile()

	if len(profile) != 24 {
		t.Fatalf("len=%d, expected 24", len(profile))
	}
	if sumWeights(profile).Sub(decimal.NewFromInt(1)).Abs().GreaterThan(d("0.000001")) {
		t.Fatalf("profile sums to %s, expected 1", sumWeights(profile))
	}
	// US/EU overlap outweighs the Asian lull
	if !profile[14].GreaterThan(profile[4]) {
		t.Fatalf("hour 14 (%s) should outweigh hour 4 (%s)", profile[14], profile[4])
	}
}

func TestBuildVolumeProfile(t *testing.T) {
	tests := []struct {
		name      string
		volumes   []float64
		smoothing int
		check     func(t *testing.T, p []decimal.Decimal)
	}{
		{
			name:    "constant volume is uniform",
			volumes: []float64{5, 5, 5, 5},
			check: func(t *testing.T, p []decimal.Decimal) {
				for i, w := range p {
					if !w.Equal(d("0.25")) {
						t.Fatalf("weight %d=%s, expected 0.25", i, w)
					}
				}
			},
		},
		{
			name:      "smoothing spreads a spike",
			volumes:   []float64{0, 0, 9, 0, 0},
			smoothing: 2,
			check: func(t *testing.T, p []decimal.Decimal) {
				if len(p) != 5 {
					t.Fatalf("len=%d, expected 5", len(p))
				}
				if !p[3].IsPositive() {
					t.Fatalf("weight after the spike=%s, expected > 0", p[3])
				}
			},
		},
		{
			name:      "smoothing of one is a no-op",
			volumes:   []float64{1, 3},
			smoothing: 1,
			check: func(t *testing.T, p []decimal.Decimal) {
				if !p[0].Equal(d("0.25")) || !p[1].Equal(d("0.75")) {
					t.Fatalf("profile=%v, expected [0.25 0.75]", p)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := BuildVolumeProfile(tt.volumes, tt.smoothing)
			if err != nil {
				t.Fatalf("BuildVolumeProfile failed: %v", err)
			}
			tt.check(t, p)
		})
	}
}

func TestBuildVolumeProfile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		volumes []float64
	}{
		{"empty", nil},
		{"negative", []float64{1, -2, 3}},
		{"all zero", []float64{0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildVolumeProfile(tt.volumes, 0); !errors.Is(err, ErrInvalidParams) {
				t.Fatalf("expected ErrInvalidParams, got %v", err)
			}
		})
	}
}
