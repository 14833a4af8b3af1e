package execution

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"orderexec/internal/logging"
	"orderexec/internal/types"
	"orderexec/pkg/trading"

	"github.com/google/uuid"
)

// ResultSink receives every completed order, e.g. the execution journal
type ResultSink interface {
	Record(ctx context.Context, result *types.OrderResult) error
}

// ManagerConfig holds the collaborators of a Manager
type ManagerConfig struct {
	Client   trading.ExchangeClient
	Defaults *PolicyDefaults // nil uses DefaultPolicyDefaults
	Sleep    SleepFunc       // nil uses ContextSleep
	Seed     int64           // 0 seeds from the clock
	Metrics  *Metrics
	Sink     ResultSink
	Logger   *logging.Logger

	// SinkTimeout bounds one ResultSink.Record call
	SinkTimeout time.Duration
}

// Manager registers parent orders, runs each on its own goroutine and
// moves it from active to completed when its workflow returns.
type Manager struct {
	client   trading.ExchangeClient
	defaults PolicyDefaults
	sleep    SleepFunc
	metrics  *Metrics
	sink     ResultSink
	logger   *logging.Logger

	sinkTimeout time.Duration

	mu        sync.RWMutex
	active    map[string]Order
	completed []*types.OrderResult
	index     map[string]int // order id -> position in completed
	closed    bool
	seeds     *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("exchange client is required")
	}

	defaults := DefaultPolicyDefaults()
	if cfg.Defaults != nil {
		defaults = cfg.Defaults.withFallbacks()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = ContextSleep
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewComponentLogger("execution")
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		client:      cfg.Client,
		defaults:    defaults,
		sleep:       cfg.Sleep,
		metrics:     cfg.Metrics,
		sink:        cfg.Sink,
		logger:      cfg.Logger,
		sinkTimeout: cfg.SinkTimeout,
		active:      make(map[string]Order),
		index:       make(map[string]int),
		seeds:       rand.New(rand.NewSource(cfg.Seed)),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Defaults returns the policy defaults in effect
func (m *Manager) Defaults() PolicyDefaults {
	return m.defaults
}

// CreateTimeSliced starts a TWAP order and returns its id
func (m *Manager) CreateTimeSliced(p TWAPParams) (string, error) {
	order, err := newTimeSlicedOrder(p, m.defaults, m.orderDeps())
	if err != nil {
		return "", err
	}
	return m.launch(order)
}

// CreateVolumeSliced starts a VWAP order and returns its id
func (m *Manager) CreateVolumeSliced(p VWAPParams) (string, error) {
	order, err := newVolumeSlicedOrder(p, m.defaults, m.orderDeps())
	if err != nil {
		return "", err
	}
	return m.launch(order)
}

// CreateIceberg starts an iceberg order and returns its id
func (m *Manager) CreateIceberg(p IcebergParams) (string, error) {
	order, err := newIcebergOrder(p, m.defaults, m.orderDeps())
	if err != nil {
		return "", err
	}
	return m.launch(order)
}

// CreateBracket starts a bracket order and returns its id
func (m *Manager) CreateBracket(p BracketParams) (string, error) {
	order, err := newBracketOrder(p, m.defaults, m.orderDeps())
	if err != nil {
		return "", err
	}
	return m.launch(order)
}

// orderDeps gives each order its own random source; *rand.Rand is not
// safe for concurrent use.
func (m *Manager) orderDeps() orderDeps {
	m.mu.Lock()
	seed := m.seeds.Int63()
	m.mu.Unlock()

	return orderDeps{
		client:  m.client,
		sleep:   m.sleep,
		rng:     rand.New(rand.NewSource(seed)),
		logger:  m.logger,
		metrics: m.metrics,
	}
}

// launch assigns an id, registers the order as active and starts it
func (m *Manager) launch(order Order) (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}

	id := m.newIDLocked()
	order.base().id = id
	m.active[id] = order
	m.wg.Add(1)
	m.mu.Unlock()

	m.metrics.orderCreated(order.Kind())
	m.logger.WithFields(map[string]interface{}{
		"order_id": id,
		"kind":     order.Kind(),
		"asset":    order.base().asset,
		"side":     order.base().side,
		"amount":   order.base().totalAmount.String(),
	}).Info("Order accepted")

	go m.run(order)

	return id, nil
}

// newIDLocked draws a short id unused by any active or completed order
func (m *Manager) newIDLocked() string {
	for {
		id := uuid.NewString()[:8]
		if _, ok := m.active[id]; ok {
			continue
		}
		if _, ok := m.index[id]; ok {
			continue
		}
		return id
	}
}

func (m *Manager) run(order Order) {
	defer m.wg.Done()

	result := order.Run(m.ctx)
	m.complete(order, result)
}

// complete moves the order from active to completed in one critical
// section, then hands the result to the sink.
func (m *Manager) complete(order Order, result *types.OrderResult) {
	m.mu.Lock()
	m.index[result.OrderID] = len(m.completed)
	m.completed = append(m.completed, result)
	delete(m.active, order.ID())
	m.mu.Unlock()

	m.metrics.orderCompleted(result.Kind, result.Status)

	if m.sink == nil {
		return
	}

	// The root context may already be cancelled during shutdown
	ctx, cancel := context.WithTimeout(context.Background(), m.sinkTimeout)
	defer cancel()
	if err := m.sink.Record(ctx, result); err != nil {
		m.logger.LogError("record_result", err, map[string]interface{}{
			"order_id": result.OrderID,
		})
	}
}

// Cancel flags an active order for cancellation. It returns false when the
// order is unknown or already completed.
func (m *Manager) Cancel(orderID string) bool {
	m.mu.RLock()
	order, ok := m.active[orderID]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	if order.Cancel() {
		m.logger.WithOrder(orderID).Info("Cancellation requested")
	}
	return true
}

// Status returns a live snapshot for an active order or the stored result
// for a completed one.
func (m *Manager) Status(orderID string) (*types.OrderResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if order, ok := m.active[orderID]; ok {
		return order.Snapshot(), true
	}
	if i, ok := m.index[orderID]; ok {
		return copyResult(m.completed[i]), true
	}
	return nil, false
}

// ListActive returns a summary of every running order, oldest first
func (m *Manager) ListActive() []types.OrderSummary {
	m.mu.RLock()
	orders := make([]Order, 0, len(m.active))
	for _, order := range m.active {
		orders = append(orders, order)
	}
	m.mu.RUnlock()

	sort.Slice(orders, func(i, j int) bool {
		a, b := orders[i].base(), orders[j].base()
		if a.createdAt.Equal(b.createdAt) {
			return a.id < b.id
		}
		return a.createdAt.Before(b.createdAt)
	})

	summaries := make([]types.OrderSummary, len(orders))
	for i, order := range orders {
		summaries[i] = order.Summary()
	}
	return summaries
}

// Completed returns the results of finished orders in completion order
func (m *Manager) Completed() []*types.OrderResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.OrderResult, len(m.completed))
	for i, r := range m.completed {
		out[i] = copyResult(r)
	}
	return out
}

// ActiveCount returns the number of running orders
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Wait blocks until every launched order has completed
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown stops accepting orders, asks every running workflow to stop at
// its next checkpoint and waits for them until ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	active := len(m.active)
	m.mu.Unlock()

	m.logger.LogSystem("shutdown", "Stopping order manager", map[string]interface{}{
		"active_orders": active,
	})

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All order workflows stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d orders: %w", m.ActiveCount(), ctx.Err())
	}
}

func copyResult(r *types.OrderResult) *types.OrderResult {
	c := *r
	c.Fills = make([]types.Fill, len(r.Fills))
	copy(c.Fills, r.Fills)
	if r.CompletedAt != nil {
		completedAt := *r.CompletedAt
		c.CompletedAt = &completedAt
	}
	return &c
}
