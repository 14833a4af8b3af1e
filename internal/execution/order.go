package execution

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"orderexec/internal/logging"
	"orderexec/internal/types"
	"orderexec/pkg/trading"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidParams is returned when an order cannot be constructed
	ErrInvalidParams = errors.New("invalid order parameters")
	// ErrManagerClosed is returned by Create* after Shutdown
	ErrManagerClosed = errors.New("order manager is shut down")
)

var (
	// filledThreshold is the share of total_amount that counts as done
	filledThreshold = decimal.NewFromFloat(0.99)
	// dustThreshold is the smallest slice worth sending
	dustThreshold = decimal.NewFromFloat(0.0001)
)

// SleepFunc suspends a workflow for d. It returns early with ctx.Err()
// when ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the production SleepFunc
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScaledSleep compresses every wait by factor, for demos and dry runs
func ScaledSleep(factor float64) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		return ContextSleep(ctx, time.Duration(float64(d)*factor))
	}
}

// Order is one parent order driven by an execution policy. The set of
// implementations is closed: TimeSlicedOrder, VolumeSlicedOrder,
// IcebergOrder and BracketOrder.
type Order interface {
	ID() string
	Kind() types.OrderKind
	Status() types.OrderStatus

	// Run drives the workflow to a final state and returns the result.
	// It must be called exactly once.
	Run(ctx context.Context) *types.OrderResult

	// Cancel requests cooperative cancellation, observed at the next
	// checkpoint. It reports whether this call set the flag.
	Cancel() bool

	// Snapshot returns a live copy of the order state
	Snapshot() *types.OrderResult

	// Summary returns the compact row used by ListActive
	Summary() types.OrderSummary

	base() *baseOrder
}

// orderDeps are the collaborators shared by every policy
type orderDeps struct {
	client  trading.ExchangeClient
	sleep   SleepFunc
	rng     *rand.Rand
	logger  *logging.Logger
	metrics *Metrics
}

func (d orderDeps) withDefaults() orderDeps {
	if d.sleep == nil {
		d.sleep = ContextSleep
	}
	if d.rng == nil {
		d.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if d.logger == nil {
		d.logger = logging.NewComponentLogger("execution")
	}
	return d
}

// baseOrder holds the state every policy shares
type baseOrder struct {
	id          string
	kind        types.OrderKind
	asset       string
	side        types.OrderSide
	totalAmount decimal.Decimal

	deps   orderDeps
	ledger *types.FillLedger

	cancelRequested atomic.Bool
	started         atomic.Bool

	mu         sync.RWMutex
	status     types.OrderStatus
	exitReason string
	err        string
	createdAt  time.Time
	startedAt  time.Time
}

func newBaseOrder(kind types.OrderKind, asset, side string, totalAmount decimal.Decimal, deps orderDeps) (*baseOrder, error) {
	if asset == "" {
		return nil, fmt.Errorf("%w: asset is required", ErrInvalidParams)
	}
	orderSide, err := types.ParseOrderSide(side)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if !totalAmount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidParams, totalAmount)
	}
	if deps.client == nil {
		return nil, fmt.Errorf("%w: exchange client is required", ErrInvalidParams)
	}

	return &baseOrder{
		kind:        kind,
		asset:       asset,
		side:        orderSide,
		totalAmount: totalAmount,
		deps:        deps.withDefaults(),
		ledger:      types.NewFillLedger(),
		status:      types.OrderStatusPending,
		createdAt:   time.Now(),
	}, nil
}

func (b *baseOrder) base() *baseOrder { return b }

// ID returns the order id
func (b *baseOrder) ID() string { return b.id }

// Kind returns the execution policy
func (b *baseOrder) Kind() types.OrderKind { return b.kind }

// Asset returns the traded asset
func (b *baseOrder) Asset() string { return b.asset }

// Side returns the order side
func (b *baseOrder) Side() types.OrderSide { return b.side }

// TotalAmount returns the parent order size
func (b *baseOrder) TotalAmount() decimal.Decimal { return b.totalAmount }

// Fills returns a copy of the recorded fills
func (b *baseOrder) Fills() []types.Fill { return b.ledger.Fills() }

// Status returns the current status
func (b *baseOrder) Status() types.OrderStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Cancel sets the cancellation flag
func (b *baseOrder) Cancel() bool {
	return b.cancelRequested.CompareAndSwap(false, true)
}

// CancelRequested reports whether Cancel has been called
func (b *baseOrder) CancelRequested() bool {
	return b.cancelRequested.Load()
}

// Snapshot returns a live copy of the order state
func (b *baseOrder) Snapshot() *types.OrderResult {
	b.mu.RLock()
	result := &types.OrderResult{
		OrderID:     b.id,
		Kind:        b.kind,
		Asset:       b.asset,
		Side:        b.side,
		Status:      b.status,
		TotalAmount: b.totalAmount,
		StartedAt:   b.startedAt,
		ExitReason:  b.exitReason,
		Error:       b.err,
	}
	b.mu.RUnlock()

	result.ApplyFills(b.ledger.Fills())
	return result
}

// Summary returns the compact row used by ListActive
func (b *baseOrder) Summary() types.OrderSummary {
	return types.OrderSummary{
		OrderID:  b.id,
		Kind:     b.kind,
		Asset:    b.asset,
		Side:     b.side,
		Status:   b.Status(),
		Progress: types.FormatProgress(b.ledger.FilledAmount(), b.totalAmount),
	}
}

func (b *baseOrder) log() *logging.Logger {
	return b.deps.logger.WithFields(map[string]interface{}{
		"order_id": b.id,
		"kind":     b.kind,
		"asset":    b.asset,
	})
}

// begin moves PENDING to ACTIVE; a second Run is rejected
func (b *baseOrder) begin() error {
	if !b.started.CompareAndSwap(false, true) {
		return fmt.Errorf("order %s already started", b.id)
	}

	b.mu.Lock()
	b.startedAt = time.Now()
	b.mu.Unlock()

	b.setStatus(types.OrderStatusActive, "")
	return nil
}

// setStatus applies a transition unless the order is already terminal
func (b *baseOrder) setStatus(to types.OrderStatus, reason string) bool {
	b.mu.Lock()
	from := b.status
	if from.IsTerminal() || from == to {
		b.mu.Unlock()
		return false
	}
	b.status = to
	if reason != "" && b.exitReason == "" {
		b.exitReason = reason
	}
	b.mu.Unlock()

	b.log().LogOrderTransition(b.id, from, to, reason)
	return true
}

// fail finishes the order as FAILED with err
func (b *baseOrder) fail(err error) {
	b.mu.Lock()
	if !b.status.IsTerminal() {
		b.err = err.Error()
	}
	b.mu.Unlock()
	b.setStatus(types.OrderStatusFailed, "")
}

// setExitReason records why the workflow stopped without changing status
func (b *baseOrder) setExitReason(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exitReason == "" {
		b.exitReason = reason
	}
}

// ExitReason returns why the workflow stopped, if it has
func (b *baseOrder) ExitReason() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exitReason
}

// stopReason is the cooperative checkpoint: a set cancellation flag or
// a cancelled root context both stop the workflow.
func (b *baseOrder) stopReason(ctx context.Context) (string, bool) {
	if b.cancelRequested.Load() {
		return types.ExitReasonCancelled, true
	}
	if ctx.Err() != nil {
		return types.ExitReasonShutdown, true
	}
	return "", false
}

// abort finishes the order as CANCELLED
func (b *baseOrder) abort(reason string) {
	b.setStatus(types.OrderStatusCancelled, reason)
}

// wait suspends the workflow. Only shutdown wakes it early; the
// cancellation flag is seen at the next checkpoint.
func (b *baseOrder) wait(ctx context.Context, d time.Duration) {
	_ = b.deps.sleep(ctx, d)
}

// placeMarket sends one market child order and records metrics
func (b *baseOrder) placeMarket(ctx context.Context, side types.OrderSide, amount decimal.Decimal) (*types.ExecutionReport, error) {
	start := time.Now()
	report, err := b.deps.client.PlaceMarketOrder(ctx, b.asset, side, amount)
	b.deps.metrics.observeChild(b.kind, report, err, time.Since(start))
	return report, placementError(report, err)
}

// placeLimit sends one limit child order, falling back to market when the
// client has no limit capability.
func (b *baseOrder) placeLimit(ctx context.Context, side types.OrderSide, amount, price decimal.Decimal) (*types.ExecutionReport, types.OrderType, error) {
	placer, ok := trading.LimitPlacer(b.deps.client)
	if !ok {
		report, err := b.placeMarket(ctx, side, amount)
		return report, types.OrderTypeMarket, err
	}

	start := time.Now()
	report, err := placer.PlaceLimitOrder(ctx, b.asset, side, amount, price)
	b.deps.metrics.observeChild(b.kind, report, err, time.Since(start))
	return report, types.OrderTypeLimit, placementError(report, err)
}

// placementError folds success=false into an error
func placementError(report *types.ExecutionReport, err error) error {
	if err != nil {
		return err
	}
	if report == nil || !report.Success {
		return trading.ErrRejected
	}
	return nil
}

// recordFill appends a fill built from report. Missing amount or price in
// the report fall back to the requested values.
func (b *baseOrder) recordFill(report *types.ExecutionReport, amount, price decimal.Decimal) types.Fill {
	return b.recordSideFill(report, b.side, amount, price)
}

// recordSideFill is recordFill for a child order on side
func (b *baseOrder) recordSideFill(report *types.ExecutionReport, side types.OrderSide, amount, price decimal.Decimal) types.Fill {
	if report.FilledAmount.IsPositive() {
		amount = report.FilledAmount
	}
	if report.FilledPrice.IsPositive() {
		price = report.FilledPrice
	}

	fill := types.NewFill(amount, price, report.Fee)
	b.ledger.Append(fill)

	b.log().LogFill(b.id, b.asset, side, fill.Amount, fill.Price, fill.Fee)
	b.deps.metrics.observeFill(b.kind, fill.Amount)

	if b.Status() == types.OrderStatusActive {
		b.setStatus(types.OrderStatusPartiallyFilled, "")
	}
	return fill
}

// reachedThreshold reports whether at least 99% of the total is filled
func (b *baseOrder) reachedThreshold() bool {
	return b.ledger.FilledAmount().GreaterThanOrEqual(b.totalAmount.Mul(filledThreshold))
}

// settle applies the ≥99% rule at loop exit
func (b *baseOrder) settle() {
	if b.reachedThreshold() {
		b.setStatus(types.OrderStatusFilled, "")
	}
}

// settleSliced is the after-loop rule of TWAP and VWAP. A loop that
// stopped early still finishes FILLED at ≥99%; below that it is CANCELLED,
// and a full run without a single fill is FAILED.
func (b *baseOrder) settleSliced() {
	if b.reachedThreshold() {
		b.setStatus(types.OrderStatusFilled, "")
		return
	}
	if reason := b.ExitReason(); reason != "" {
		b.abort(reason)
		return
	}
	if b.ledger.Len() == 0 {
		b.fail(errors.New("no child orders filled"))
	}
}

// result builds the final snapshot
func (b *baseOrder) result() *types.OrderResult {
	result := b.Snapshot()
	completedAt := time.Now()
	result.CompletedAt = &completedAt
	return result
}

// execute wraps a policy body with the shared begin/finish steps
func (b *baseOrder) execute(ctx context.Context, body func(ctx context.Context)) *types.OrderResult {
	if err := b.begin(); err != nil {
		b.log().WithError(err).Error("Run called twice")
		return b.Snapshot()
	}

	if reason, stop := b.stopReason(ctx); stop {
		b.abort(reason)
	} else {
		body(ctx)
	}

	result := b.result()
	b.log().LogOrderCompleted(result)
	return result
}
