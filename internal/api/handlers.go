package api

import (
	"errors"
	"net/http"
	"strconv"

	"orderexec/internal/execution"
	"orderexec/internal/journal"
	"orderexec/internal/types"

	"github.com/gorilla/mux"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreatedResponse is returned when an order is accepted
type CreatedResponse struct {
	OrderID string `json:"order_id"`
}

// CancelResponse is returned when cancellation was requested
type CancelResponse struct {
	OrderID         string `json:"order_id"`
	CancelRequested bool   `json:"cancel_requested"`
}

// HealthResponse reports liveness
type HealthResponse struct {
	Status       string `json:"status"`
	ActiveOrders int    `json:"active_orders"`
}

func (s *Server) createTWAP(w http.ResponseWriter, r *http.Request) {
	var p execution.TWAPParams
	if !decodeBody(w, r, &p) {
		return
	}
	id, err := s.orders.CreateTimeSliced(p)
	s.writeCreated(w, id, err)
}

func (s *Server) createVWAP(w http.ResponseWriter, r *http.Request) {
	var p execution.VWAPParams
	if !decodeBody(w, r, &p) {
		return
	}
	id, err := s.orders.CreateVolumeSliced(p)
	s.writeCreated(w, id, err)
}

func (s *Server) createIceberg(w http.ResponseWriter, r *http.Request) {
	var p execution.IcebergParams
	if !decodeBody(w, r, &p) {
		return
	}
	id, err := s.orders.CreateIceberg(p)
	s.writeCreated(w, id, err)
}

func (s *Server) createBracket(w http.ResponseWriter, r *http.Request) {
	var p execution.BracketParams
	if !decodeBody(w, r, &p) {
		return
	}
	id, err := s.orders.CreateBracket(p)
	s.writeCreated(w, id, err)
}

func (s *Server) writeCreated(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, execution.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, execution.ErrManagerClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.logger.LogError("create_order", err, nil)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusCreated, CreatedResponse{OrderID: id})
	}
}

func (s *Server) listActive(w http.ResponseWriter, r *http.Request) {
	active := s.orders.ListActive()
	if active == nil {
		active = []types.OrderSummary{}
	}
	writeJSON(w, http.StatusOK, active)
}

func (s *Server) listCompleted(w http.ResponseWriter, r *http.Request) {
	completed := s.orders.Completed()
	if completed == nil {
		completed = []*types.OrderResult{}
	}
	writeJSON(w, http.StatusOK, completed)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	result, ok := s.orders.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, "order not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.orders.Cancel(id) {
		writeError(w, http.StatusNotFound, "no active order: "+id)
		return
	}
	writeJSON(w, http.StatusAccepted, CancelResponse{OrderID: id, CancelRequested: true})
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}

	limit := s.cfg.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}

	results, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.LogError("list_history", err, nil)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if results == nil {
		results = []*types.OrderResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}

	id := mux.Vars(r)["id"]
	result, err := s.history.Get(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order result not found")
		return
	}
	if err != nil {
		s.logger.LogError("get_history", err, map[string]interface{}{"order_id": id})
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", ActiveOrders: s.orders.ActiveCount()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
