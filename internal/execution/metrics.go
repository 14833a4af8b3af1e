package execution

import (
	"errors"
	"time"

	"orderexec/internal/types"
	"orderexec/pkg/trading"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const (
	metricsNamespace = "orderexec"
	metricsSubsystem = "execution"
)

// Child order outcomes
const (
	childResultFilled      = "filled"
	childResultNoFill      = "no_fill"
	childResultRejected    = "rejected"
	childResultUnavailable = "unavailable"
	childResultError       = "error"
)

// Metrics holds the Prometheus collectors of the engine. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	OrdersCreated   *prometheus.CounterVec
	OrdersCompleted *prometheus.CounterVec
	ChildOrders     *prometheus.CounterVec
	FilledVolume    *prometheus.CounterVec
	ActiveOrders    prometheus.Gauge
	ChildLatency    *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OrdersCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "orders_created_total",
				Help:      "Parent orders accepted, by policy",
			},
			[]string{"kind"},
		),
		OrdersCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "orders_completed_total",
				Help:      "Parent orders finished, by policy and final status",
			},
			[]string{"kind", "status"},
		),
		ChildOrders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "child_orders_total",
				Help:      "Child orders sent to the exchange, by policy and outcome",
			},
			[]string{"kind", "result"},
		),
		FilledVolume: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "filled_volume_total",
				Help:      "Executed quantity, by policy",
			},
			[]string{"kind"},
		),
		ActiveOrders: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "active_orders",
				Help:      "Parent orders currently running",
			},
		),
		ChildLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "child_order_latency_ms",
				Help:      "Round trip of one child order placement in milliseconds",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) orderCreated(kind types.OrderKind) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(string(kind)).Inc()
	m.ActiveOrders.Inc()
}

func (m *Metrics) orderCompleted(kind types.OrderKind, status types.OrderStatus) {
	if m == nil {
		return
	}
	m.OrdersCompleted.WithLabelValues(string(kind), string(status)).Inc()
	m.ActiveOrders.Dec()
}

func (m *Metrics) observeChild(kind types.OrderKind, report *types.ExecutionReport, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ChildLatency.WithLabelValues(string(kind)).Observe(float64(elapsed) / float64(time.Millisecond))
	m.ChildOrders.WithLabelValues(string(kind), childResult(report, err)).Inc()
}

func (m *Metrics) observeFill(kind types.OrderKind, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.FilledVolume.WithLabelValues(string(kind)).Add(amount.InexactFloat64())
}

func childResult(report *types.ExecutionReport, err error) string {
	switch {
	case errors.Is(err, trading.ErrNotAvailable):
		return childResultUnavailable
	case err != nil:
		return childResultError
	case report == nil || !report.Success:
		return childResultRejected
	case !report.FilledAmount.IsPositive():
		return childResultNoFill
	default:
		return childResultFilled
	}
}
