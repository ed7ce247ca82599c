package eval

import (
	"encoding/json"
	"net/http"

	"github.com/papertrade/engine/internal/model"
)

// EvaluateRequest is the JSON body for POST /api/v1/evaluate.
type EvaluateRequest struct {
	EvaluationDays int `json:"evaluation_days"`
}

// HandleEvaluate handles POST /api/v1/evaluate — a manual trigger for the
// same batch the ticker loop runs.
func (e *Evaluator) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid request body"})
		return
	}
	if req.EvaluationDays <= 0 {
		req.EvaluationDays = 7
	}

	outcomes, err := e.Evaluate(r.Context(), req.EvaluationDays)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "evaluation failed"})
		return
	}
	if outcomes == nil {
		outcomes = []model.Outcome{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(outcomes)
}
