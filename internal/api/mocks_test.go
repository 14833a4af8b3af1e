package api

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"orderexec/internal/execution"
	"orderexec/internal/journal"
	"orderexec/internal/types"

	"github.com/shopspring/decimal"
)

var errMockDatabase = errors.New("mock database error")

// mockOrderService records calls and serves canned data
type mockOrderService struct {
	mu sync.Mutex

	createErr error
	created   []interface{}
	active    map[string]*types.OrderResult
	completed []*types.OrderResult
	cancelled []string
}

func newMockOrderService() *mockOrderService {
	return &mockOrderService{active: make(map[string]*types.OrderResult)}
}

func (m *mockOrderService) create(p interface{}) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.created = append(m.created, p)
	return fmt.Sprintf("ord%05d", len(m.created)), nil
}

func (m *mockOrderService) CreateTimeSliced(p execution.TWAPParams) (string, error) {
	return m.create(p)
}

func (m *mockOrderService) CreateVolumeSliced(p execution.VWAPParams) (string, error) {
	return m.create(p)
}

func (m *mockOrderService) CreateIceberg(p execution.IcebergParams) (string, error) {
	return m.create(p)
}

func (m *mockOrderService) CreateBracket(p execution.BracketParams) (string, error) {
	return m.create(p)
}

func (m *mockOrderService) Cancel(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[orderID]; !ok {
		return false
	}
	m.cancelled = append(m.cancelled, orderID)
	return true
}

func (m *mockOrderService) Status(orderID string) (*types.OrderResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.active[orderID]; ok {
		return r, true
	}
	for _, r := range m.completed {
		if r.OrderID == orderID {
			return r, true
		}
	}
	return nil, false
}

func (m *mockOrderService) ListActive() []types.OrderSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.OrderSummary
	for _, r := range m.active {
		out = append(out, types.OrderSummary{
			OrderID:  r.OrderID,
			Kind:     r.Kind,
			Asset:    r.Asset,
			Side:     r.Side,
			Status:   r.Status,
			Progress: types.FormatProgress(r.FilledAmount, r.TotalAmount),
		})
	}
	return out
}

func (m *mockOrderService) Completed() []*types.OrderResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed
}

func (m *mockOrderService) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *mockOrderService) lastCreated() interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.created) == 0 {
		return nil
	}
	return m.created[len(m.created)-1]
}

// mockHistory serves journaled results
type mockHistory struct {
	results   []*types.OrderResult
	err       error
	lastLimit int
}

func (h *mockHistory) Recent(ctx context.Context, limit int) ([]*types.OrderResult, error) {
	h.lastLimit = limit
	if h.err != nil {
		return nil, h.err
	}
	if limit < len(h.results) {
		return h.results[:limit], nil
	}
	return h.results, nil
}

func (h *mockHistory) Get(ctx context.Context, orderID string) (*types.OrderResult, error) {
	if h.err != nil {
		return nil, h.err
	}
	for _, r := range h.results {
		if r.OrderID == orderID {
			return r, nil
		}
	}
	return nil, journal.ErrNotFound
}

func sampleResult(id string, status types.OrderStatus) *types.OrderResult {
	r := &types.OrderResult{
		OrderID:     id,
		Kind:        types.OrderKindTWAP,
		Asset:       "BTCUSDT",
		Side:        types.OrderSideBuy,
		Status:      status,
		TotalAmount: decimal.NewFromInt(4),
	}
	r.ApplyFills([]types.Fill{types.NewFill(decimal.NewFromInt(1), decimal.NewFromInt(100), decimal.Zero)})
	return r
}
