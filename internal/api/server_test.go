package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"orderexec/internal/config"
	"orderexec/internal/execution"
	"orderexec/internal/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func newTestServer(orders *mockOrderService, history HistoryStore) *Server {
	return NewServer(config.APIConfig{ListenAddr: "127.0.0.1:0", HistoryLimit: 50}, orders, history, nil)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestCreateOrders(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		body  string
		check func(t *testing.T, p interface{})
	}{
		{
			name: "twap",
			path: "/api/orders/twap",
			body: `{"asset":"BTCUSDT","side":"buy","total_amount":"1.5","duration_minutes":30,"slice_count":6,"randomize":false}`,
			check: func(t *testing.T, p interface{}) {
				tw, ok := p.(execution.TWAPParams)
				if !ok {
					t.Fatalf("got %T", p)
				}
				if !tw.TotalAmount.Equal(decimal.RequireFromString("1.5")) || tw.SliceCount != 6 {
					t.Errorf("unexpected params: %+v", tw)
				}
				if tw.Randomize == nil || *tw.Randomize {
					t.Errorf("randomize=%v, expected explicit false", tw.Randomize)
				}
			},
		},
		{
			name: "vwap with numeric amounts",
			path: "/api/orders/vwap",
			body: `{"asset":"ETHUSDT","side":"sell","total_amount":10,"duration_minutes":4,"volume_profile":[1,2,3,4]}`,
			check: func(t *testing.T, p interface{}) {
				vw, ok := p.(execution.VWAPParams)
				if !ok {
					t.Fatalf("got %T", p)
				}
				if len(vw.VolumeProfile) != 4 || !vw.TotalAmount.Equal(decimal.NewFromInt(10)) {
					t.Errorf("unexpected params: %+v", vw)
				}
			},
		},
		{
			name: "iceberg",
			path: "/api/orders/iceberg",
			body: `{"asset":"BTCUSDT","side":"buy","total_amount":"10","visible_amount":"1","limit_price":"50000","price_variance":"0.002"}`,
			check: func(t *testing.T, p interface{}) {
				ib, ok := p.(execution.IcebergParams)
				if !ok {
					t.Fatalf("got %T", p)
				}
				if ib.PriceVariance == nil || !ib.PriceVariance.Equal(decimal.RequireFromString("0.002")) {
					t.Errorf("unexpected variance: %v", ib.PriceVariance)
				}
			},
		},
		{
			name: "bracket",
			path: "/api/orders/bracket",
			body: `{"asset":"BTCUSDT","entry_side":"buy","entry_amount":"0.1","stop_loss_price":"45000","take_profit_price":"55000"}`,
			check: func(t *testing.T, p interface{}) {
				br, ok := p.(execution.BracketParams)
				if !ok {
					t.Fatalf("got %T", p)
				}
				if br.EntryPrice != nil {
					t.Errorf("entry price should be absent, got %v", br.EntryPrice)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := newMockOrderService()
			s := newTestServer(orders, nil)

			w := do(t, s, http.MethodPost, tt.path, tt.body)

			if w.Code != http.StatusCreated {
				t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
			}
			var resp CreatedResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.OrderID != "ord00001" {
				t.Errorf("OrderID=%q", resp.OrderID)
			}
			tt.check(t, orders.lastCreated())
		})
	}
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		createErr error
		want      int
	}{
		{"malformed json", `{"asset":`, nil, http.StatusBadRequest},
		{"unknown field", `{"asset":"BTCUSDT","colour":"red"}`, nil, http.StatusBadRequest},
		{"valid body with unknown field", `{"asset":"BTCUSDT","side":"buy","total_amount":"1","slices":4}`, nil, http.StatusBadRequest},
		{"invalid params", `{"asset":"BTCUSDT","side":"buy","total_amount":"0"}`, fmt.Errorf("%w: amount", execution.ErrInvalidParams), http.StatusBadRequest},
		{"manager closed", `{"asset":"BTCUSDT","side":"buy","total_amount":"1"}`, execution.ErrManagerClosed, http.StatusServiceUnavailable},
		{"other error", `{"asset":"BTCUSDT","side":"buy","total_amount":"1"}`, errMockDatabase, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := newMockOrderService()
			orders.createErr = tt.createErr
			s := newTestServer(orders, nil)

			w := do(t, s, http.MethodPost, "/api/orders/twap", tt.body)

			if w.Code != tt.want {
				t.Fatalf("expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Error == "" {
				t.Errorf("expected error body, got %q (%v)", w.Body.String(), err)
			}
			if tt.createErr == nil && orders.lastCreated() != nil {
				t.Errorf("rejected body reached the manager: %+v", orders.lastCreated())
			}
		})
	}
}

func TestOrderQueries(t *testing.T) {
	orders := newMockOrderService()
	orders.active["live0001"] = sampleResult("live0001", types.OrderStatusPartiallyFilled)
	orders.completed = []*types.OrderResult{sampleResult("done0001", types.OrderStatusFilled)}
	s := newTestServer(orders, nil)

	t.Run("list active", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/api/orders", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var resp []types.OrderSummary
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(resp) != 1 || resp[0].Progress != "1/4" {
			t.Errorf("unexpected active list: %+v", resp)
		}
	})

	t.Run("list completed is not captured as an id", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/api/orders/completed", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var resp []*types.OrderResult
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(resp) != 1 || resp[0].OrderID != "done0001" {
			t.Errorf("unexpected completed list: %+v", resp)
		}
	})

	t.Run("status", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/api/orders/live0001", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var resp types.OrderResult
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Status != types.OrderStatusPartiallyFilled || !resp.FillPercentage.Equal(decimal.NewFromInt(25)) {
			t.Errorf("unexpected status: %+v", resp)
		}
	})

	t.Run("status unknown", func(t *testing.T) {
		if w := do(t, s, http.MethodGet, "/api/orders/nope", ""); w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
	})

	t.Run("cancel active", func(t *testing.T) {
		w := do(t, s, http.MethodDelete, "/api/orders/live0001", "")
		if w.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d", w.Code)
		}
		if len(orders.cancelled) != 1 || orders.cancelled[0] != "live0001" {
			t.Errorf("cancel not forwarded: %v", orders.cancelled)
		}
	})

	t.Run("cancel completed", func(t *testing.T) {
		if w := do(t, s, http.MethodDelete, "/api/orders/done0001", ""); w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
	})

	t.Run("empty lists encode as arrays", func(t *testing.T) {
		empty := newTestServer(newMockOrderService(), nil)
		w := do(t, empty, http.MethodGet, "/api/orders", "")
		if strings.TrimSpace(w.Body.String()) != "[]" {
			t.Errorf("body=%q, expected []", w.Body.String())
		}
	})
}

func TestHistory(t *testing.T) {
	history := &mockHistory{results: []*types.OrderResult{
		sampleResult("h1", types.OrderStatusFilled),
		sampleResult("h2", types.OrderStatusCancelled),
		sampleResult("h3", types.OrderStatusFailed),
	}}
	s := newTestServer(newMockOrderService(), history)

	tests := []struct {
		name      string
		path      string
		want      int
		wantLimit int
		wantLen   int
	}{
		{"default limit", "/api/history", http.StatusOK, 50, 3},
		{"explicit limit", "/api/history?limit=2", http.StatusOK, 2, 2},
		{"limit capped by config", "/api/history?limit=500", http.StatusOK, 50, 3},
		{"bad limit", "/api/history?limit=abc", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history.lastLimit = 0
			w := do(t, s, http.MethodGet, tt.path, "")
			if w.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, w.Code)
			}
			if tt.want != http.StatusOK {
				return
			}
			if history.lastLimit != tt.wantLimit {
				t.Errorf("limit=%d, expected %d", history.lastLimit, tt.wantLimit)
			}
			var resp []*types.OrderResult
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(resp) != tt.wantLen {
				t.Errorf("results=%d, expected %d", len(resp), tt.wantLen)
			}
		})
	}

	t.Run("get one", func(t *testing.T) {
		if w := do(t, s, http.MethodGet, "/api/history/h2", ""); w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
		if w := do(t, s, http.MethodGet, "/api/history/zz", ""); w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
	})

	t.Run("store error", func(t *testing.T) {
		failing := newTestServer(newMockOrderService(), &mockHistory{err: errMockDatabase})
		if w := do(t, failing, http.MethodGet, "/api/history", ""); w.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", w.Code)
		}
		w := do(t, failing, http.MethodGet, "/api/history/h1", "")
		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", w.Code)
		}
		if strings.Contains(w.Body.String(), errMockDatabase.Error()) {
			t.Errorf("store error leaked to client: %s", w.Body.String())
		}
	})

	t.Run("journal disabled", func(t *testing.T) {
		disabled := newTestServer(newMockOrderService(), nil)
		if w := do(t, disabled, http.MethodGet, "/api/history", ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", w.Code)
		}
	})
}

func TestHealthAndMetrics(t *testing.T) {
	orders := newMockOrderService()
	orders.active["a"] = sampleResult("a", types.OrderStatusActive)

	reg := prometheus.NewRegistry()
	metrics := execution.NewMetrics(reg)
	metrics.OrdersCreated.WithLabelValues("twap").Inc()

	s := NewServer(config.APIConfig{}, orders, nil, reg)

	w := do(t, s, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var health HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if health.Status != "ok" || health.ActiveOrders != 1 {
		t.Errorf("unexpected health: %+v", health)
	}

	w = do(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `orderexec_execution_orders_created_total{kind="twap"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", w.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(newMockOrderService(), nil)
	if w := do(t, s, http.MethodGet, "/api/orders/twap", ""); w.Code == http.StatusOK {
		t.Errorf("GET on create route should not succeed, got %d", w.Code)
	}
}

func TestStartShutdown(t *testing.T) {
	s := newTestServer(newMockOrderService(), nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start should fail")
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown should be a no-op, got %v", err)
	}
}
