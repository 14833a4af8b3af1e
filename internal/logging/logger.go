package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"orderexec/internal/config"
	"orderexec/internal/types"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps a logrus entry so that fields and the component name
// survive every With* call.
type Logger struct {
	*logrus.Entry
	component string
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// NewLogger creates a new logger with the given configuration
func NewLogger(cfg config.LoggingConfig) *Logger {
	var output io.Writer
	switch cfg.Output {
	case "file":
		output = createFileWriter(cfg)
	case "both":
		output = io.MultiWriter(os.Stdout, createFileWriter(cfg))
	default:
		output = os.Stdout
	}
	return NewLoggerWithWriter(cfg, output)
}

// NewLoggerWithWriter creates a logger writing to w
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	logger.SetOutput(w)

	return &Logger{Entry: logrus.NewEntry(logger)}
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	return NewLoggerWithWriter(config.LoggingConfig{Level: "error"}, io.Discard)
}

// createFileWriter creates a rotating file writer
func createFileWriter(cfg config.LoggingConfig) io.Writer {
	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		fmt.Printf("Warning: Failed to create log directory: %v\n", err)
		return os.Stdout
	}

	name := cfg.FileName
	if name == "" {
		name = "orderexec.log"
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, name),
		MaxSize:    cfg.MaxSize, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // days
		Compress:   cfg.Compress,
	}
}

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg config.LoggingConfig) *Logger {
	logger := NewLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger replaces the global logger
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewLogger(config.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		})
	}
	return globalLogger
}

// NewComponentLogger creates a logger for a specific component
func NewComponentLogger(component string) *Logger {
	return GetGlobalLogger().Component(component)
}

// Component derives a logger tagged with component
func (l *Logger) Component(component string) *Logger {
	return &Logger{
		Entry:     l.Entry.WithField("component", component),
		component: component,
	}
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithFields(fields), component: l.component}
}

// WithField adds a single field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value), component: l.component}
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err), component: l.component}
}

// WithOrder tags the logger with an order id
func (l *Logger) WithOrder(orderID string) *Logger {
	return l.WithField("order_id", orderID)
}

// Execution-specific logging methods

// LogFill logs a child order execution
func (l *Logger) LogFill(orderID, asset string, side types.OrderSide, amount, price, fee decimal.Decimal) {
	l.WithFields(logrus.Fields{
		"event":    "fill",
		"order_id": orderID,
		"asset":    asset,
		"side":     side,
		"amount":   amount.String(),
		"price":    price.String(),
		"fee":      fee.String(),
		"value":    amount.Mul(price).String(),
	}).Info("Child order filled")
}

// LogOrderTransition logs a status change of a parent order
func (l *Logger) LogOrderTransition(orderID string, from, to types.OrderStatus, reason string) {
	fields := logrus.Fields{
		"event":       "order_transition",
		"order_id":    orderID,
		"from_status": from,
		"to_status":   to,
	}
	if reason != "" {
		fields["reason"] = reason
	}
	l.WithFields(fields).Info("Order status changed")
}

// LogSliceFailure logs a failed child order; the workflow carries on
func (l *Logger) LogSliceFailure(orderID string, slice int, err error, details map[string]interface{}) {
	fields := logrus.Fields{
		"event":    "slice_failure",
		"order_id": orderID,
		"slice":    slice,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	for k, v := range details {
		fields[k] = v
	}
	l.WithFields(fields).Warn("Child order failed")
}

// LogOrderCompleted logs the final result of a parent order
func (l *Logger) LogOrderCompleted(result *types.OrderResult) {
	fields := logrus.Fields{
		"event":           "order_completed",
		"order_id":        result.OrderID,
		"kind":            result.Kind,
		"asset":           result.Asset,
		"side":            result.Side,
		"status":          result.Status,
		"filled_amount":   result.FilledAmount.String(),
		"total_amount":    result.TotalAmount.String(),
		"average_price":   result.AveragePrice.String(),
		"total_fees":      result.TotalFees.String(),
		"fill_percentage": result.FillPercentage.StringFixed(2),
		"fills":           len(result.Fills),
	}
	if result.ExitReason != "" {
		fields["exit_reason"] = result.ExitReason
	}

	entry := l.WithFields(fields)
	if result.Error != "" {
		entry.WithField("error", result.Error).Error("Order finished with error")
		return
	}
	entry.Info("Order finished")
}

// LogError logs an error with context
func (l *Logger) LogError(operation string, err error, context map[string]interface{}) {
	fields := logrus.Fields{
		"event":     "error",
		"operation": operation,
		"error":     err.Error(),
	}

	for k, v := range context {
		fields[k] = v
	}

	l.WithFields(fields).Error("Operation failed")
}

// LogSystem logs system-level events
func (l *Logger) LogSystem(event string, message string, details map[string]interface{}) {
	fields := logrus.Fields{
		"event":        "system_event",
		"system_event": event,
	}

	for k, v := range details {
		fields[k] = v
	}

	l.WithFields(fields).Info(message)
}
