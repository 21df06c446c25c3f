package handlers

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/platform/auth"
	"github.com/optimistics/storefront/internal/platform/httpx"
	"github.com/optimistics/storefront/internal/services"
)

const maxCheckoutRequestBody = 8 * 1024

// CheckoutHandlers exposes quote, payment start and payment completion endpoints. Guests may check
// out; signed-in shoppers can also redeem and earn points.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Use(CartSessionMiddleware())
	r.Post("/quote", h.quote)
	r.Post("/sessions", h.createSession)
	r.Post("/sessions/{orderId}/complete", h.complete)
}

type quoteRequest struct {
	Region       string `json:"region"`
	RedeemPoints int64  `json:"redeemPoints"`
}

type quotePayload struct {
	Count           int    `json:"count"`
	Subtotal        int64  `json:"subtotal"`
	ShippingFee     int64  `json:"shippingFee"`
	ShippingPending bool   `json:"shippingPending"`
	PointsRedeemed  int64  `json:"pointsRedeemed"`
	Discount        int64  `json:"discount"`
	Total           int64  `json:"total"`
	PointsEarned    int64  `json:"pointsEarned"`
	PointsBalance   int64  `json:"pointsBalance"`
	MaxRedeemable   int64  `json:"maxRedeemable"`
	Region          string `json:"region,omitempty"`
}

type checkoutContactRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type checkoutAddressRequest struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
}

type checkoutSessionRequest struct {
	Contact      checkoutContactRequest `json:"contact"`
	Address      checkoutAddressRequest `json:"shipping"`
	Region       string                 `json:"region"`
	RedeemPoints int64                  `json:"redeemPoints"`
	Currency     string                 `json:"currency"`
	Provider     string                 `json:"provider"`
	RedirectURL  string                 `json:"redirectUrl"`
}

type checkoutSessionResponse struct {
	OrderID          string         `json:"orderId"`
	PaymentReference string         `json:"paymentReference"`
	Provider         string         `json:"provider"`
	CheckoutURL      string         `json:"checkoutUrl,omitempty"`
	Widget           map[string]any `json:"widget,omitempty"`
	ExpiresAt        string         `json:"expiresAt,omitempty"`
	Quote            quotePayload   `json:"quote"`
}

type checkoutCompleteRequest struct {
	Status               string `json:"status"`
	TransactionReference string `json:"transactionReference"`
	PaymentReference     string `json:"paymentReference"`
}

type checkoutCompleteResponse struct {
	Status string        `json:"status"`
	Order  *orderPayload `json:"order,omitempty"`
}

func (h *CheckoutHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	var req quoteRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}
	quote, err := h.checkout.Quote(ctx, services.QuoteCommand{
		OwnerKey:     cartOwnerKey(ctx),
		UserID:       identityUID(ctx),
		Region:       req.Region,
		RedeemPoints: req.RedeemPoints,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildQuotePayload(quote))
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	var req checkoutSessionRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}

	start, err := h.checkout.Begin(ctx, services.BeginCheckoutCommand{
		OwnerKey: cartOwnerKey(ctx),
		UserID:   identityUID(ctx),
		Contact: domain.Contact{
			FirstName: req.Contact.FirstName,
			LastName:  req.Contact.LastName,
			Email:     req.Contact.Email,
			Phone:     req.Contact.Phone,
		},
		Address: domain.Address{
			Line1: req.Address.Address,
			City:  req.Address.City,
			State: req.Address.State,
		},
		Region:            req.Region,
		RedeemPoints:      req.RedeemPoints,
		Currency:          strings.ToUpper(strings.TrimSpace(req.Currency)),
		PreferredProvider: strings.ToLower(strings.TrimSpace(req.Provider)),
		RedirectURL:       strings.TrimSpace(req.RedirectURL),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutSessionResponse{
		OrderID:          start.OrderID,
		PaymentReference: start.PaymentReference,
		Provider:         start.Payment.Provider,
		CheckoutURL:      start.Payment.CheckoutURL,
		Widget:           maps.Clone(start.Payment.Widget),
		ExpiresAt:        formatTime(start.ExpiresAt),
		Quote:            buildQuotePayload(start.Quote),
	})
}

// complete reports the widget callback. A pending gateway answers 202 so the browser can retry.
func (h *CheckoutHandlers) complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	var req checkoutCompleteRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}

	order, err := h.checkout.Complete(ctx, services.CompleteCheckoutCommand{
		OrderID:          chi.URLParam(r, "orderId"),
		OwnerKey:         cartOwnerKey(ctx),
		UserID:           identityUID(ctx),
		ClientStatus:     req.Status,
		TransactionRef:   strings.TrimSpace(req.TransactionReference),
		PaymentReference: strings.TrimSpace(req.PaymentReference),
	})
	if err != nil {
		if errors.Is(err, services.ErrPaymentPending) {
			writeJSONResponse(w, http.StatusAccepted, checkoutCompleteResponse{Status: "pending"})
			return
		}
		writeCheckoutError(ctx, w, err)
		return
	}
	payload := buildOrderPayload(order)
	writeJSONResponse(w, http.StatusOK, checkoutCompleteResponse{Status: "paid", Order: &payload})
}

func buildQuotePayload(q services.Quote) quotePayload {
	return quotePayload{
		Count:           q.Count,
		Subtotal:        q.Subtotal,
		ShippingFee:     q.ShippingFee,
		ShippingPending: q.ShippingPending,
		PointsRedeemed:  q.PointsRedeemed,
		Discount:        q.Discount,
		Total:           q.Total,
		PointsEarned:    q.PointsEarned,
		PointsBalance:   q.PointsBalance,
		MaxRedeemable:   q.MaxRedeemable,
		Region:          q.Region,
	}
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var settlement *services.SettlementError
	switch {
	case errors.As(err, &settlement):
		msg := fmt.Sprintf("payment received; contact support with reference %s", settlement.PaymentReference)
		httpx.WriteError(ctx, w, httpx.NewError("settlement_failed", msg, http.StatusBadGateway).WithDetails(map[string]any{
			"orderId":          settlement.OrderID,
			"paymentReference": settlement.PaymentReference,
		}))
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart is empty", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_session_not_found", "checkout session not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentCancelled):
		httpx.WriteError(ctx, w, httpx.NewError("payment_cancelled", "payment was cancelled or declined", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment gateway error", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		serviceUnavailable(ctx, w, "checkout")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout failed", http.StatusInternalServerError))
	}
}
