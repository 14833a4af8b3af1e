package execution

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"orderexec/internal/logging"
	"orderexec/internal/types"
	"orderexec/pkg/trading"

	"github.com/shopspring/decimal"
)

var errVenueDown = errors.New("venue down")

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type childCall struct {
	side   types.OrderSide
	amount decimal.Decimal
	price  decimal.Decimal
}

// fakeExchange is a scripted ExchangeClient. Unset hooks default to a
// constant price of 100 and full fills at the last quoted price.
type fakeExchange struct {
	mu sync.Mutex

	price  func(call int) (decimal.Decimal, error)
	market func(call int, side types.OrderSide, amount decimal.Decimal) (*types.ExecutionReport, error)

	lastPrice   decimal.Decimal
	priceCalls  int
	marketCalls []childCall
}

var _ trading.ExchangeClient = (*fakeExchange)(nil)

func newFakeExchange() *fakeExchange {
	return &fakeExchange{lastPrice: d("100")}
}

func (f *fakeExchange) GetTickerPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	f.mu.Lock()
	call := f.priceCalls
	f.priceCalls++
	hook := f.price
	f.mu.Unlock()

	if hook == nil {
		return d("100"), nil
	}
	price, err := hook(call)
	if err == nil {
		f.mu.Lock()
		f.lastPrice = price
		f.mu.Unlock()
	}
	return price, err
}

func (f *fakeExchange) PlaceMarketOrder(ctx context.Context, asset string, side types.OrderSide, amount decimal.Decimal) (*types.ExecutionReport, error) {
	f.mu.Lock()
	call := len(f.marketCalls)
	f.marketCalls = append(f.marketCalls, childCall{side: side, amount: amount})
	price := f.lastPrice
	hook := f.market
	f.mu.Unlock()

	if hook != nil {
		return hook(call, side, amount)
	}
	return fullFill(amount, price), nil
}

func (f *fakeExchange) MarketCalls() []childCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]childCall, len(f.marketCalls))
	copy(out, f.marketCalls)
	return out
}

func (f *fakeExchange) PriceCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.priceCalls
}

// fakeLimitExchange adds the limit order capability
type fakeLimitExchange struct {
	*fakeExchange

	limit      func(call int, side types.OrderSide, amount, price decimal.Decimal) (*types.ExecutionReport, error)
	limitCalls []childCall
}

var _ trading.LimitOrderPlacer = (*fakeLimitExchange)(nil)

func newFakeLimitExchange() *fakeLimitExchange {
	return &fakeLimitExchange{fakeExchange: newFakeExchange()}
}

func (f *fakeLimitExchange) PlaceLimitOrder(ctx context.Context, asset string, side types.OrderSide, amount, price decimal.Decimal) (*types.ExecutionReport, error) {
	f.mu.Lock()
	call := len(f.limitCalls)
	f.limitCalls = append(f.limitCalls, childCall{side: side, amount: amount, price: price})
	hook := f.limit
	f.mu.Unlock()

	if hook != nil {
		return hook(call, side, amount, price)
	}
	return fullFill(amount, price), nil
}

func (f *fakeLimitExchange) LimitCalls() []childCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]childCall, len(f.limitCalls))
	copy(out, f.limitCalls)
	return out
}

func fullFill(amount, price decimal.Decimal) *types.ExecutionReport {
	return &types.ExecutionReport{
		Success:      true,
		OrderID:      "child",
		FilledAmount: amount,
		FilledPrice:  price,
		Fee:          amount.Mul(price).Mul(d("0.001")),
	}
}

// noSleep returns immediately
func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// sleepRecorder captures requested waits without sleeping
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.waits))
	copy(out, r.waits)
	return out
}

func testDeps(client trading.ExchangeClient) orderDeps {
	return orderDeps{
		client: client,
		sleep:  noSleep,
		rng:    rand.New(rand.NewSource(7)),
		logger: logging.NewNopLogger(),
	}
}

func sumAmounts(fills []types.Fill) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fills {
		total = total.Add(f.Amount)
	}
	return total
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
