package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"orderexec/internal/config"
	"orderexec/internal/execution"
	"orderexec/internal/logging"
	"orderexec/internal/types"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OrderService is the part of the execution manager served over HTTP
type OrderService interface {
	CreateTimeSliced(p execution.TWAPParams) (string, error)
	CreateVolumeSliced(p execution.VWAPParams) (string, error)
	CreateIceberg(p execution.IcebergParams) (string, error)
	CreateBracket(p execution.BracketParams) (string, error)
	Cancel(orderID string) bool
	Status(orderID string) (*types.OrderResult, bool)
	ListActive() []types.OrderSummary
	Completed() []*types.OrderResult
	ActiveCount() int
}

// HistoryStore reads journaled results
type HistoryStore interface {
	Recent(ctx context.Context, limit int) ([]*types.OrderResult, error)
	Get(ctx context.Context, orderID string) (*types.OrderResult, error)
}

// Server exposes the order manager over HTTP
type Server struct {
	cfg      config.APIConfig
	orders   OrderService
	history  HistoryStore
	gatherer prometheus.Gatherer
	logger   *logging.Logger

	router *mux.Router
	srv    *http.Server

	mu      sync.Mutex
	running bool
}

// NewServer builds the router. history and gatherer may be nil.
func NewServer(cfg config.APIConfig, orders OrderService, history HistoryStore, gatherer prometheus.Gatherer) *Server {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}

	s := &Server{
		cfg:      cfg,
		orders:   orders,
		history:  history,
		gatherer: gatherer,
		logger:   logging.NewComponentLogger("api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.recovery)
	router.Use(s.logRequests)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/orders/twap", s.createTWAP).Methods(http.MethodPost)
	api.HandleFunc("/orders/vwap", s.createVWAP).Methods(http.MethodPost)
	api.HandleFunc("/orders/iceberg", s.createIceberg).Methods(http.MethodPost)
	api.HandleFunc("/orders/bracket", s.createBracket).Methods(http.MethodPost)

	api.HandleFunc("/orders", s.listActive).Methods(http.MethodGet)
	// registered before {id} so it is not captured as an id
	api.HandleFunc("/orders/completed", s.listCompleted).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.getOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.cancelOrder).Methods(http.MethodDelete)

	api.HandleFunc("/history", s.listHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/{id}", s.getHistory).Methods(http.MethodGet)

	router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return router
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("api server is already running")
	}

	s.srv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.running = true

	go func() {
		s.logger.WithField("addr", s.cfg.ListenAddr).Info("API server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.LogError("listen", err, map[string]interface{}{"addr": s.cfg.ListenAddr})
		}
	}()

	return nil
}

// Shutdown stops accepting requests and drains in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	return s.srv.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.WithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("HTTP request")
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.WithFields(map[string]interface{}{
					"panic": fmt.Sprint(rec),
					"path":  r.URL.Path,
					"stack": string(debug.Stack()),
				}).Error("Handler panic")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
