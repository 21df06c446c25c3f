package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/optimistics/storefront/internal/platform/httpx"
	"github.com/optimistics/storefront/internal/services"
)

const defaultRetryBatchLimit = 25

// InternalHandlers serves scheduler-driven maintenance endpoints. The group is guarded by OIDC.
type InternalHandlers struct {
	reconciliations services.ReconciliationService
}

// NewInternalHandlers constructs internal handlers.
func NewInternalHandlers(reconciliations services.ReconciliationService) *InternalHandlers {
	return &InternalHandlers{reconciliations: reconciliations}
}

// Routes registers /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/reconciliations/retry", h.retryOpen)
}

type retrySummaryResponse struct {
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	Failed    int `json:"failed"`
}

func (h *InternalHandlers) retryOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciliations == nil {
		serviceUnavailable(ctx, w, "reconciliation")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultRetryBatchLimit, 200)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	summary, err := h.reconciliations.RetryOpen(ctx, limit)
	if err != nil {
		writeReconciliationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, retrySummaryResponse{
		Attempted: summary.Attempted,
		Resolved:  summary.Resolved,
		Failed:    summary.Failed,
	})
}
