package trade

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/model"
	"github.com/papertrade/engine/internal/store"
)

// --- Request/Response types ---

// ExecuteRequest is the JSON body for POST /api/v1/trades.
type ExecuteRequest struct {
	UserID   string         `json:"user_id"`
	Belief   string         `json:"belief"`
	Strategy model.Strategy `json:"strategy"`
}

// CloseRequest is the JSON body for POST /api/v1/positions/{positionID}/close.
// Quantity zero (or omitted) closes the full position.
type CloseRequest struct {
	UserID   string          `json:"user_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// --- HTTP Handlers ---

// HandleExecute handles POST /api/v1/trades.
func (s *Service) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", "bad_request", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", "bad_request", http.StatusBadRequest)
		return
	}

	result, err := s.Execute(r.Context(), req.UserID, req.Strategy, req.Belief)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleClose handles POST /api/v1/positions/{positionID}/close.
func (s *Service) HandleClose(w http.ResponseWriter, r *http.Request) {
	positionID := chi.URLParam(r, "positionID")

	var req CloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", "bad_request", http.StatusBadRequest)
		return
	}

	result, err := s.Close(r.Context(), req.UserID, positionID, req.Quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandlePortfolio handles GET /api/v1/portfolio/{userID}.
func (s *Service) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	portfolio, err := s.Portfolio(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, portfolio)
}

// HandleLeaderboard handles GET /api/v1/leaderboard.
func (s *Service) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Leaderboard(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

// HandleOrders handles GET /api/v1/users/{userID}/orders.
func (s *Service) HandleOrders(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	orders, err := s.store.GetOrdersByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}

	writeJSON(w, http.StatusOK, orders)
}

// HandleTransactions handles GET /api/v1/users/{userID}/transactions.
func (s *Service) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	txs, err := s.store.GetTransactionsByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}

	writeJSON(w, http.StatusOK, txs)
}

// writeServiceError maps service errors to discriminated HTTP replies.
// Validation failures carry their reason; storage failures surface as a
// generic error so internals never leak across the boundary.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidStrategy):
		writeError(w, err.Error(), "invalid_strategy", http.StatusBadRequest)
	case errors.Is(err, ErrInsufficientBuyingPower):
		writeError(w, err.Error(), "insufficient_buying_power", http.StatusConflict)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, "position not found", "position_not_found", http.StatusNotFound)
	default:
		writeError(w, "internal error", "store_error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message, reason string, status int) {
	writeJSON(w, status, errorResponse{Error: message, Reason: reason})
}
