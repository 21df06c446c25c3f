package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/platform/httpx"
	"github.com/optimistics/storefront/internal/platform/pagination"
	"github.com/optimistics/storefront/internal/services"
)

const maxAdminAccountBody = 4 * 1024

// AdminAccountHandlers exposes loyalty corrections, role changes and the reconciliation queue.
type AdminAccountHandlers struct {
	accounts        services.AccountService
	reconciliations services.ReconciliationService
}

// NewAdminAccountHandlers constructs admin account handlers.
func NewAdminAccountHandlers(accounts services.AccountService, reconciliations services.ReconciliationService) *AdminAccountHandlers {
	return &AdminAccountHandlers{accounts: accounts, reconciliations: reconciliations}
}

// Routes registers /users and /reconciliations on the admin router.
func (h *AdminAccountHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/users/{uid}", h.getUser)
	r.Post("/users/{uid}/points", h.adjustPoints)
	r.Put("/users/{uid}/role", h.setRole)

	r.Get("/reconciliations", h.listReconciliations)
	r.Post("/reconciliations/{reconciliationId}/resolve", h.resolveReconciliation)
	r.Post("/reconciliations/{reconciliationId}/retry", h.retryReconciliation)
}

type adjustPointsRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

type adjustPointsResponse struct {
	UID     string `json:"uid"`
	Balance int64  `json:"loyaltyPoints"`
}

type setRoleRequest struct {
	Role string `json:"role"`
}

type resolveRequest struct {
	Note string `json:"note"`
}

type reconciliationPayload struct {
	ID                   string `json:"id"`
	Kind                 string `json:"kind"`
	OrderID              string `json:"orderId"`
	PaymentReference     string `json:"paymentReference"`
	TransactionReference string `json:"transactionReference,omitempty"`
	UserID               string `json:"userId,omitempty"`
	CustomerEmail        string `json:"customerEmail,omitempty"`
	Amount               int64  `json:"amount"`
	PointsDelta          int64  `json:"pointsDelta"`
	Error                string `json:"error,omitempty"`
	Status               string `json:"status"`
	Attempts             int    `json:"attempts"`
	Note                 string `json:"note,omitempty"`
	CreatedAt            string `json:"createdAt"`
	ResolvedAt           string `json:"resolvedAt,omitempty"`
	ResolvedBy           string `json:"resolvedBy,omitempty"`
}

type reconciliationListResponse struct {
	Items         []reconciliationPayload `json:"items"`
	NextPageToken string                  `json:"nextPageToken,omitempty"`
}

func (h *AdminAccountHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		serviceUnavailable(ctx, w, "account")
		return
	}
	profile, err := h.accounts.GetProfile(ctx, chi.URLParam(r, "uid"))
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProfilePayload(profile))
}

func (h *AdminAccountHandlers) adjustPoints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		serviceUnavailable(ctx, w, "account")
		return
	}
	var req adjustPointsRequest
	if !decodeJSONBody(w, r, maxAdminAccountBody, &req) {
		return
	}
	uid := strings.TrimSpace(chi.URLParam(r, "uid"))
	balance, err := h.accounts.AdjustPoints(ctx, services.AdjustPointsCommand{
		UID:     uid,
		Delta:   req.Delta,
		ActorID: identityUID(ctx),
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, adjustPointsResponse{UID: uid, Balance: balance})
}

func (h *AdminAccountHandlers) setRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		serviceUnavailable(ctx, w, "account")
		return
	}
	var req setRoleRequest
	if !decodeJSONBody(w, r, maxAdminAccountBody, &req) {
		return
	}
	profile, err := h.accounts.SetRole(ctx, chi.URLParam(r, "uid"), req.Role)
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProfilePayload(profile))
}

func (h *AdminAccountHandlers) listReconciliations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciliations == nil {
		serviceUnavailable(ctx, w, "reconciliation")
		return
	}
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	status := domain.ReconciliationStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	page, err := h.reconciliations.List(ctx, status, services.Pagination{PageSize: params.PageSize, PageToken: params.PageToken})
	if err != nil {
		writeReconciliationError(ctx, w, err)
		return
	}
	resp := reconciliationListResponse{
		Items:         make([]reconciliationPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, rec := range page.Items {
		resp.Items = append(resp.Items, buildReconciliationPayload(rec))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AdminAccountHandlers) resolveReconciliation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciliations == nil {
		serviceUnavailable(ctx, w, "reconciliation")
		return
	}
	var req resolveRequest
	if r.ContentLength != 0 {
		if !decodeJSONBody(w, r, maxAdminAccountBody, &req) {
			return
		}
	}
	rec, err := h.reconciliations.Resolve(ctx, services.ResolveReconciliationCommand{
		ID:      chi.URLParam(r, "reconciliationId"),
		ActorID: identityUID(ctx),
		Note:    req.Note,
	})
	if err != nil {
		writeReconciliationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildReconciliationPayload(rec))
}

func (h *AdminAccountHandlers) retryReconciliation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciliations == nil {
		serviceUnavailable(ctx, w, "reconciliation")
		return
	}
	rec, err := h.reconciliations.Retry(ctx, chi.URLParam(r, "reconciliationId"))
	if err != nil {
		writeReconciliationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildReconciliationPayload(rec))
}

func buildReconciliationPayload(rec services.Reconciliation) reconciliationPayload {
	payload := reconciliationPayload{
		ID:                   rec.ID,
		Kind:                 string(rec.Kind),
		OrderID:              rec.OrderID,
		PaymentReference:     rec.PaymentReference,
		TransactionReference: rec.TransactionReference,
		UserID:               rec.UserID,
		CustomerEmail:        rec.CustomerEmail,
		Amount:               rec.Amount,
		PointsDelta:          rec.PointsDelta,
		Error:                rec.Error,
		Status:               string(rec.Status),
		Attempts:             rec.Attempts,
		Note:                 rec.Note,
		CreatedAt:            formatTime(rec.CreatedAt),
		ResolvedBy:           rec.ResolvedBy,
	}
	if rec.ResolvedAt != nil {
		payload.ResolvedAt = formatTime(*rec.ResolvedAt)
	}
	return payload
}

func writeReconciliationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReconciliationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReconciliationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("reconciliation_not_found", "reconciliation not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReconciliationInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("reconciliation_not_retryable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrReconciliationRetryFailed):
		httpx.WriteError(ctx, w, httpx.NewError("retry_failed", err.Error(), http.StatusConflict))
	default:
		serviceUnavailable(ctx, w, "reconciliation")
	}
}
