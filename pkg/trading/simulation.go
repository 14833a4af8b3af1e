package trading

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"orderexec/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SimulationExecutor provides a simulated exchange: random-walk prices,
// slippage on market orders, maker/taker fees and random rejections.
type SimulationExecutor struct {
	config    SimulationConfig
	prices    map[string]decimal.Decimal
	stats     ExecutionStats
	mu        sync.Mutex
	connected bool
	rng       *rand.Rand
}

// NewSimulationExecutor creates a new simulation executor
func NewSimulationExecutor(config SimulationConfig) *SimulationExecutor {
	// Set defaults
	if config.Slippage <= 0 {
		config.Slippage = 0.0005 // 0.05% default slippage
	}
	if config.Commission <= 0 {
		config.Commission = 0.0004 // 0.04% default commission
	}
	if config.Volatility < 0 {
		config.Volatility = 0
	}
	if config.RejectionRate < 0 {
		config.RejectionRate = 0
	}
	if config.Seed == 0 {
		config.Seed = time.Now().UnixNano()
	}

	prices := make(map[string]decimal.Decimal, len(config.InitialPrices))
	for symbol, price := range config.InitialPrices {
		prices[symbol] = decimal.NewFromFloat(price)
	}

	return &SimulationExecutor{
		config: config,
		prices: prices,
		stats: ExecutionStats{
			TotalVolume: decimal.Zero,
			TotalFees:   decimal.Zero,
		},
		rng: rand.New(rand.NewSource(config.Seed)),
	}
}

// Connect establishes connection to the simulated exchange
func (se *SimulationExecutor) Connect(ctx context.Context) error {
	se.mu.Lock()
	defer se.mu.Unlock()

	se.connected = true
	return nil
}

// Disconnect closes the connection
func (se *SimulationExecutor) Disconnect() error {
	se.mu.Lock()
	defer se.mu.Unlock()

	se.connected = false
	return nil
}

// IsConnected returns connection status
func (se *SimulationExecutor) IsConnected() bool {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.connected
}

// SetPrice overrides the current price of a symbol
func (se *SimulationExecutor) SetPrice(symbol string, price decimal.Decimal) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.prices[symbol] = price
}

// SupportsLimitOrders reports whether limit orders are enabled
func (se *SimulationExecutor) SupportsLimitOrders() bool {
	return se.config.LimitOrders
}

// GetTickerPrice advances the random walk of asset and returns the new price
func (se *SimulationExecutor) GetTickerPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	if err := se.simulateLatency(ctx); err != nil {
		return decimal.Zero, err
	}

	se.mu.Lock()
	defer se.mu.Unlock()

	if !se.connected {
		return decimal.Zero, fmt.Errorf("%w: not connected", ErrNotAvailable)
	}

	price, ok := se.prices[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown market %s", ErrNotAvailable, asset)
	}

	if se.config.Volatility > 0 {
		step := se.rng.NormFloat64() * se.config.Volatility
		price = price.Mul(decimal.NewFromFloat(1 + step))
		if !price.IsPositive() {
			price = se.prices[asset]
		}
		se.prices[asset] = price
	}

	return price, nil
}

// GetTicker returns the current quote without advancing the walk
func (se *SimulationExecutor) GetTicker(symbol string) (*types.Ticker, error) {
	se.mu.Lock()
	defer se.mu.Unlock()

	price, ok := se.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: unknown market %s", ErrNotAvailable, symbol)
	}
	return types.NewTicker(symbol, time.Now(), price), nil
}

// PlaceMarketOrder fills the full amount at the current price plus slippage
func (se *SimulationExecutor) PlaceMarketOrder(ctx context.Context, asset string, side types.OrderSide, amount decimal.Decimal) (*types.ExecutionReport, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("invalid amount %s", amount)
	}
	if err := se.simulateLatency(ctx); err != nil {
		return nil, err
	}

	se.mu.Lock()
	defer se.mu.Unlock()

	price, err := se.checkOrder(asset)
	if err != nil {
		return nil, err
	}

	// Simulate rejection
	if se.rejected() {
		return &types.ExecutionReport{Success: false, OrderID: uuid.NewString()}, nil
	}

	// Simulate slippage
	slippage := math.Abs(se.rng.NormFloat64()) * se.config.Slippage
	if !side.IsBuy() {
		slippage = -slippage
	}
	executionPrice := price.Mul(decimal.NewFromFloat(1 + slippage))

	// Taker fees are higher
	feeRate := decimal.NewFromFloat(se.config.Commission * 1.5)
	fee := amount.Mul(executionPrice).Mul(feeRate)

	return se.record(amount, executionPrice, fee), nil
}

// PlaceLimitOrder fills marketable limits at the limit price; the rest are
// acknowledged without a fill.
func (se *SimulationExecutor) PlaceLimitOrder(ctx context.Context, asset string, side types.OrderSide, amount, limitPrice decimal.Decimal) (*types.ExecutionReport, error) {
	if !se.config.LimitOrders {
		return nil, ErrLimitOrdersUnsupported
	}
	if !amount.IsPositive() || !limitPrice.IsPositive() {
		return nil, fmt.Errorf("invalid limit order %s @ %s", amount, limitPrice)
	}
	if err := se.simulateLatency(ctx); err != nil {
		return nil, err
	}

	se.mu.Lock()
	defer se.mu.Unlock()

	price, err := se.checkOrder(asset)
	if err != nil {
		return nil, err
	}

	if se.rejected() {
		return &types.ExecutionReport{Success: false, OrderID: uuid.NewString()}, nil
	}

	marketable := (side.IsBuy() && limitPrice.GreaterThanOrEqual(price)) ||
		(!side.IsBuy() && limitPrice.LessThanOrEqual(price))
	if !marketable {
		se.stats.TotalOrders++
		return &types.ExecutionReport{
			Success:      true,
			OrderID:      uuid.NewString(),
			FilledAmount: decimal.Zero,
			FilledPrice:  decimal.Zero,
			Fee:          decimal.Zero,
		}, nil
	}

	fee := amount.Mul(limitPrice).Mul(decimal.NewFromFloat(se.config.Commission))
	return se.record(amount, limitPrice, fee), nil
}

// GetStats returns execution statistics
func (se *SimulationExecutor) GetStats() ExecutionStats {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.stats
}

// checkOrder must be called with se.mu held
func (se *SimulationExecutor) checkOrder(asset string) (decimal.Decimal, error) {
	if !se.connected {
		return decimal.Zero, fmt.Errorf("%w: not connected", ErrNotAvailable)
	}
	price, ok := se.prices[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown market %s", ErrNotAvailable, asset)
	}
	return price, nil
}

// rejected must be called with se.mu held
func (se *SimulationExecutor) rejected() bool {
	if se.config.RejectionRate > 0 && se.rng.Float64() < se.config.RejectionRate {
		se.stats.TotalOrders++
		se.stats.FailedOrders++
		return true
	}
	return false
}

// record must be called with se.mu held
func (se *SimulationExecutor) record(amount, price, fee decimal.Decimal) *types.ExecutionReport {
	se.stats.TotalOrders++
	se.stats.SuccessfulOrders++
	se.stats.TotalVolume = se.stats.TotalVolume.Add(amount)
	se.stats.TotalFees = se.stats.TotalFees.Add(fee)
	se.stats.LastOrderTime = time.Now()

	return &types.ExecutionReport{
		Success:      true,
		OrderID:      uuid.NewString(),
		FilledAmount: amount,
		FilledPrice:  price,
		Fee:          fee,
	}
}

func (se *SimulationExecutor) simulateLatency(ctx context.Context) error {
	if se.config.Latency <= 0 {
		return nil
	}

	timer := time.NewTimer(se.config.Latency)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrNotAvailable, ctx.Err())
	}
}
