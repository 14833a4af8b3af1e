package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderexec/internal/types"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// GuardConfig configures GuardedClient
type GuardConfig struct {
	CallTimeout   time.Duration `json:"call_timeout" yaml:"call_timeout"`       // 0 disables the per-call deadline
	RatePerSecond float64       `json:"rate_per_second" yaml:"rate_per_second"` // 0 disables throttling
	Burst         int           `json:"burst" yaml:"burst"`
}

// GuardedClient bounds every exchange call with a deadline and a shared
// token bucket. A stuck venue call then fails with ErrNotAvailable instead
// of stalling the order workflow forever.
type GuardedClient struct {
	inner   ExchangeClient
	limiter *rate.Limiter
	timeout time.Duration
}

// NewGuardedClient wraps inner
func NewGuardedClient(inner ExchangeClient, cfg GuardConfig) *GuardedClient {
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &GuardedClient{
		inner:   inner,
		limiter: limiter,
		timeout: cfg.CallTimeout,
	}
}

// GetTickerPrice implements ExchangeClient
func (g *GuardedClient) GetTickerPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	ctx, cancel, err := g.acquire(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer cancel()

	price, err := g.inner.GetTickerPrice(ctx, asset)
	return price, g.translate(ctx, err)
}

// PlaceMarketOrder implements ExchangeClient
func (g *GuardedClient) PlaceMarketOrder(ctx context.Context, asset string, side types.OrderSide, amount decimal.Decimal) (*types.ExecutionReport, error) {
	ctx, cancel, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	report, err := g.inner.PlaceMarketOrder(ctx, asset, side, amount)
	return report, g.translate(ctx, err)
}

// PlaceLimitOrder implements LimitOrderPlacer when the inner client does
func (g *GuardedClient) PlaceLimitOrder(ctx context.Context, asset string, side types.OrderSide, amount, price decimal.Decimal) (*types.ExecutionReport, error) {
	placer, ok := LimitPlacer(g.inner)
	if !ok {
		return nil, ErrLimitOrdersUnsupported
	}

	ctx, cancel, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	report, err := placer.PlaceLimitOrder(ctx, asset, side, amount, price)
	return report, g.translate(ctx, err)
}

// SupportsLimitOrders reports the capability of the wrapped client
func (g *GuardedClient) SupportsLimitOrders() bool {
	_, ok := LimitPlacer(g.inner)
	return ok
}

func (g *GuardedClient) acquire(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	if g.timeout <= 0 {
		return ctx, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	return ctx, cancel, nil
}

func (g *GuardedClient) translate(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrNotAvailable) {
		return fmt.Errorf("%w: call exceeded %s: %v", ErrNotAvailable, g.timeout, err)
	}
	return err
}
