package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/optimistics/storefront/internal/platform/auth"
	"github.com/optimistics/storefront/internal/platform/httpx"
	"github.com/optimistics/storefront/internal/services"
)

// MeHandlers exposes the signed-in shopper's profile, loyalty balance and order history.
type MeHandlers struct {
	authn    *auth.Authenticator
	accounts services.AccountService
	orders   services.OrderService
}

// NewMeHandlers constructs handlers enforcing Firebase authentication.
func NewMeHandlers(authn *auth.Authenticator, accounts services.AccountService, orders services.OrderService) *MeHandlers {
	return &MeHandlers{
		authn:    authn,
		accounts: accounts,
		orders:   orders,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderId}", h.getOrder)
}

type profilePayload struct {
	UID           string `json:"uid"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	LoyaltyPoints int64  `json:"loyaltyPoints"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

// getProfile creates the profile on first sight, granting the signup bonus once.
func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		serviceUnavailable(ctx, w, "account")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	profile, err := h.accounts.EnsureProfile(ctx, services.EnsureProfileCommand{
		UID:   identity.UID,
		Name:  identity.Name,
		Email: identity.Email,
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProfilePayload(profile))
}

func (h *MeHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	filter, ok := parseOrderFilter(ctx, w, r)
	if !ok {
		return
	}
	filter.UserID = identity.UID
	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(page))
}

// getOrder hides orders owned by someone else behind a 404.
func (h *MeHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if order.UserID != identity.UID {
		writeOrderError(ctx, w, services.ErrOrderNotFound)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func buildProfilePayload(profile services.UserProfile) profilePayload {
	return profilePayload{
		UID:           profile.UID,
		Name:          profile.Name,
		Email:         profile.Email,
		Role:          profile.Role,
		LoyaltyPoints: profile.LoyaltyPoints,
		CreatedAt:     formatTime(profile.CreatedAt),
	}
}

func writeAccountError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAccountInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrLedgerNegativeBalance):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_points", "balance would become negative", http.StatusConflict))
	case errors.Is(err, services.ErrAccountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAccountUnavailable):
		serviceUnavailable(ctx, w, "account")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("account_error", "account request failed", http.StatusInternalServerError))
	}
}
