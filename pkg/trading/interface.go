package trading

import (
	"context"
	"errors"
	"time"

	"orderexec/internal/types"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotAvailable is returned when a market is unknown or a call timed out
	ErrNotAvailable = errors.New("market data not available")
	// ErrRejected is returned when the venue refuses an order
	ErrRejected = errors.New("order rejected")
	// ErrLimitOrdersUnsupported is returned by clients without limit order support
	ErrLimitOrdersUnsupported = errors.New("limit orders not supported")
)

// ExchangeClient is the capability set consumed by the execution policies
type ExchangeClient interface {
	// GetTickerPrice returns the last traded price of asset
	GetTickerPrice(ctx context.Context, asset string) (decimal.Decimal, error)

	// PlaceMarketOrder executes amount at the prevailing price
	PlaceMarketOrder(ctx context.Context, asset string, side types.OrderSide, amount decimal.Decimal) (*types.ExecutionReport, error)
}

// LimitOrderPlacer is the optional limit order capability
type LimitOrderPlacer interface {
	PlaceLimitOrder(ctx context.Context, asset string, side types.OrderSide, amount, price decimal.Decimal) (*types.ExecutionReport, error)
}

// limitCapability lets wrappers report whether the client underneath
// can actually place limit orders.
type limitCapability interface {
	SupportsLimitOrders() bool
}

// LimitPlacer returns the limit order capability of client, if it has one
func LimitPlacer(client ExchangeClient) (LimitOrderPlacer, bool) {
	placer, ok := client.(LimitOrderPlacer)
	if !ok {
		return nil, false
	}
	if c, ok := client.(limitCapability); ok && !c.SupportsLimitOrders() {
		return nil, false
	}
	return placer, true
}

// ExecutionConfig holds configuration shared by execution providers
type ExecutionConfig struct {
	ProviderType string  `json:"provider_type" yaml:"provider_type"` // "simulation", "live"
	Exchange     string  `json:"exchange" yaml:"exchange"`           // "binance", "bybit", etc.
	APIKey       string  `json:"api_key" yaml:"api_key"`
	APISecret    string  `json:"api_secret" yaml:"api_secret"`
	Commission   float64 `json:"commission" yaml:"commission"` // Maker commission rate
	Slippage     float64 `json:"slippage" yaml:"slippage"`     // Max slippage fraction on market orders
}

// SimulationConfig holds specific configuration for the simulated exchange
type SimulationConfig struct {
	ExecutionConfig `yaml:",inline"`
	InitialPrices map[string]float64 `json:"initial_prices" yaml:"initial_prices"`
	Volatility    float64            `json:"volatility" yaml:"volatility"` // Std-dev of each random-walk step
	Latency       time.Duration      `json:"latency" yaml:"latency"`
	RejectionRate float64            `json:"rejection_rate" yaml:"rejection_rate"` // Order rejection rate
	LimitOrders   bool               `json:"limit_orders" yaml:"limit_orders"`     // Expose limit order support
	Seed          int64              `json:"seed" yaml:"seed"`
}

// LiveConfig holds specific configuration for live trading
type LiveConfig struct {
	ExecutionConfig `yaml:",inline"`
	RESTURL         string        `json:"rest_url" yaml:"rest_url"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	RateLimitPerSec int           `json:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`
}

// ExecutionStats provides statistics about child order execution
type ExecutionStats struct {
	TotalOrders      int64           `json:"total_orders"`
	SuccessfulOrders int64           `json:"successful_orders"`
	FailedOrders     int64           `json:"failed_orders"`
	TotalVolume      decimal.Decimal `json:"total_volume"`
	TotalFees        decimal.Decimal `json:"total_fees"`
	LastOrderTime    time.Time       `json:"last_order_time"`
}
