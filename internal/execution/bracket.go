package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderexec/internal/types"

	"github.com/shopspring/decimal"
)

// BracketParams describes an entry with a stop-loss and a take-profit
type BracketParams struct {
	Asset           string           `json:"asset"`
	EntrySide       string           `json:"entry_side"`
	EntryAmount     decimal.Decimal  `json:"entry_amount"`
	EntryPrice      *decimal.Decimal `json:"entry_price,omitempty"`
	StopLossPrice   decimal.Decimal  `json:"stop_loss_price"`
	TakeProfitPrice decimal.Decimal  `json:"take_profit_price"`
}

// BracketOrder enters a position, then exits on whichever of stop-loss or
// take-profit triggers first.
type BracketOrder struct {
	*baseOrder

	entryPrice      *decimal.Decimal
	stopLossPrice   decimal.Decimal
	takeProfitPrice decimal.Decimal
	pollInterval    time.Duration
}

func newBracketOrder(p BracketParams, defaults PolicyDefaults, deps orderDeps) (*BracketOrder, error) {
	base, err := newBaseOrder(types.OrderKindBracket, p.Asset, p.EntrySide, p.EntryAmount, deps)
	if err != nil {
		return nil, err
	}

	if !p.StopLossPrice.IsPositive() || !p.TakeProfitPrice.IsPositive() {
		return nil, fmt.Errorf("%w: stop-loss and take-profit prices must be positive", ErrInvalidParams)
	}
	if p.EntryPrice != nil && !p.EntryPrice.IsPositive() {
		return nil, fmt.Errorf("%w: entry price must be positive", ErrInvalidParams)
	}
	if base.side.IsBuy() && !p.StopLossPrice.LessThan(p.TakeProfitPrice) {
		return nil, fmt.Errorf("%w: long bracket needs stop-loss below take-profit", ErrInvalidParams)
	}
	if !base.side.IsBuy() && !p.StopLossPrice.GreaterThan(p.TakeProfitPrice) {
		return nil, fmt.Errorf("%w: short bracket needs stop-loss above take-profit", ErrInvalidParams)
	}

	return &BracketOrder{
		baseOrder:       base,
		entryPrice:      p.EntryPrice,
		stopLossPrice:   p.StopLossPrice,
		takeProfitPrice: p.TakeProfitPrice,
		pollInterval:    defaults.BracketPollInterval,
	}, nil
}

// Run executes the bracket workflow
func (o *BracketOrder) Run(ctx context.Context) *types.OrderResult {
	return o.execute(ctx, o.run)
}

func (o *BracketOrder) run(ctx context.Context) {
	entry, err := o.enter(ctx)
	if err != nil {
		o.fail(err)
		return
	}

	reason, triggered := o.monitor(ctx)
	if !triggered {
		o.abort(reason)
		return
	}
	o.setExitReason(reason)

	if err := o.exit(ctx, entry.Amount); err != nil {
		o.log().WithFields(map[string]interface{}{
			"event":       "position_left_open",
			"exit_reason": reason,
			"amount":      entry.Amount.String(),
		}).WithError(err).Error("Bracket exit failed, position may be left open")
		o.fail(fmt.Errorf("exit order failed after %s, position may be left open: %w", reason, err))
		return
	}

	o.setStatus(types.OrderStatusFilled, "")
}

// enter places the entry order; any failure is fatal
func (o *BracketOrder) enter(ctx context.Context) (types.Fill, error) {
	var (
		report    *types.ExecutionReport
		orderType = types.OrderTypeMarket
		err       error
	)
	if o.entryPrice != nil {
		report, orderType, err = o.placeLimit(ctx, o.side, o.totalAmount, *o.entryPrice)
	} else {
		report, err = o.placeMarket(ctx, o.side, o.totalAmount)
	}
	if err != nil {
		return types.Fill{}, fmt.Errorf("entry order failed: %w", err)
	}
	if orderType == types.OrderTypeLimit && !report.HasFill() {
		return types.Fill{}, errors.New("entry order failed: limit entry not filled")
	}

	fallback := decimal.Zero
	if o.entryPrice != nil {
		fallback = *o.entryPrice
	} else if !report.FilledPrice.IsPositive() {
		if price, err := o.deps.client.GetTickerPrice(ctx, o.asset); err == nil {
			fallback = price
		}
	}

	return o.recordFill(report, o.totalAmount, fallback), nil
}

// monitor polls the price until a trigger fires or the order is stopped.
// It returns the exit reason and whether a trigger fired.
func (o *BracketOrder) monitor(ctx context.Context) (string, bool) {
	for {
		if reason, stop := o.stopReason(ctx); stop {
			return reason, false
		}

		price, err := o.deps.client.GetTickerPrice(ctx, o.asset)
		if err == nil {
			if reason, hit := o.evaluate(price); hit {
				o.log().WithFields(map[string]interface{}{
					"price":       price.String(),
					"stop_loss":   o.stopLossPrice.String(),
					"take_profit": o.takeProfitPrice.String(),
					"exit_reason": reason,
				}).Info("Bracket triggered")
				return reason, true
			}
		} else {
			o.log().WithError(err).Debug("Price poll failed")
		}

		o.wait(ctx, o.pollInterval)
	}
}

// evaluate checks the triggers for the position direction
func (o *BracketOrder) evaluate(price decimal.Decimal) (string, bool) {
	if o.side.IsBuy() {
		if price.LessThanOrEqual(o.stopLossPrice) {
			return types.ExitReasonStopLoss, true
		}
		if price.GreaterThanOrEqual(o.takeProfitPrice) {
			return types.ExitReasonTakeProfit, true
		}
		return "", false
	}

	if price.GreaterThanOrEqual(o.stopLossPrice) {
		return types.ExitReasonStopLoss, true
	}
	if price.LessThanOrEqual(o.takeProfitPrice) {
		return types.ExitReasonTakeProfit, true
	}
	return "", false
}

// exit closes the position with a market order on the opposite side
func (o *BracketOrder) exit(ctx context.Context, amount decimal.Decimal) error {
	report, err := o.placeMarket(ctx, o.side.Opposite(), amount)
	if err != nil {
		return err
	}

	price := decimal.Zero
	if !report.FilledPrice.IsPositive() {
		if p, err := o.deps.client.GetTickerPrice(ctx, o.asset); err == nil {
			price = p
		}
	}

	o.recordSideFill(report, o.side.Opposite(), amount, price)
	return nil
}
