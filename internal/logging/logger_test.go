package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"orderexec/internal/config"
	"orderexec/internal/types"

	"github.com/shopspring/decimal"
)

func newBufferLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLoggerWithWriter(config.LoggingConfig{Level: level, Format: "json"}, &buf), &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]interface{}{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid json log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestComponentAndFieldsArePreserved(t *testing.T) {
	logger, buf := newBufferLogger("info")

	logger.Component("execution").WithOrder("ab12cd34").WithField("slice", 3).Info("hello")

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["component"] != "execution" {
		t.Fatalf("component=%v, expected execution", entry["component"])
	}
	if entry["order_id"] != "ab12cd34" {
		t.Fatalf("order_id=%v, expected ab12cd34", entry["order_id"])
	}
	if entry["slice"] != float64(3) {
		t.Fatalf("slice=%v, expected 3", entry["slice"])
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger("warn")

	logger.Info("dropped")
	logger.Warn("kept")

	entries := decodeLines(t, buf)
	if len(entries) != 1 || entries[0]["msg"] != "kept" {
		t.Fatalf("unexpected entries: %v", entries)
	}
}

func TestLogOrderCompleted(t *testing.T) {
	logger, buf := newBufferLogger("info")
	now := time.Now()

	result := &types.OrderResult{
		OrderID:     "ab12cd34",
		Kind:        types.OrderKindBracket,
		Status:      types.OrderStatusFailed,
		TotalAmount: decimal.NewFromInt(1),
		StartedAt:   now,
		CompletedAt: &now,
		Error:       "exit order failed",
	}
	logger.LogOrderCompleted(result)

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0]["level"] != "error" {
		t.Fatalf("level=%v, expected error", entries[0]["level"])
	}
	if entries[0]["status"] != "failed" {
		t.Fatalf("status=%v, expected failed", entries[0]["status"])
	}
}

func TestLogSliceFailure(t *testing.T) {
	logger, buf := newBufferLogger("info")

	logger.LogSliceFailure("ab12cd34", 2, errors.New("venue down"), map[string]interface{}{"amount": "0.5"})

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0]["error"] != "venue down" || entries[0]["amount"] != "0.5" {
		t.Fatalf("unexpected entry: %v", entries[0])
	}
}

func TestGlobalLogger(t *testing.T) {
	logger, buf := newBufferLogger("info")
	SetGlobalLogger(logger)
	defer SetGlobalLogger(nil)

	NewComponentLogger("api").Info("ready")

	entries := decodeLines(t, buf)
	if len(entries) != 1 || entries[0]["component"] != "api" {
		t.Fatalf("unexpected entries: %v", entries)
	}
}
