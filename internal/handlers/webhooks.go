package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/optimistics/storefront/internal/payments"
	"github.com/optimistics/storefront/internal/platform/auth"
	"github.com/optimistics/storefront/internal/platform/httpx"
	"github.com/optimistics/storefront/internal/platform/requestctx"
	"github.com/optimistics/storefront/internal/services"
)

const maxWebhookBodySize = 1 << 20

// WebhookHandlers receives gateway notifications.
type WebhookHandlers struct {
	checkout      services.CheckoutService
	monnifySecret auth.SecretSource
}

// NewWebhookHandlers constructs webhook handlers. Monnify calls are verified against secret.
func NewWebhookHandlers(checkout services.CheckoutService, monnifySecret auth.SecretSource) *WebhookHandlers {
	return &WebhookHandlers{checkout: checkout, monnifySecret: monnifySecret}
}

// Routes registers /payments/* webhook endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(auth.RequireMonnifySignature(h.monnifySecret)).Post("/payments/monnify", h.monnify)
}

type webhookAck struct {
	Status string `json:"status"`
}

// monnify settles or cancels the session named by the payment reference. Unknown references are
// acknowledged so the gateway stops retrying; storage failures answer 500 so it retries.
func (h *WebhookHandlers) monnify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	details, err := payments.ParseMonnifyWebhook(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", err.Error(), http.StatusBadRequest))
		return
	}

	logger := requestctx.Logger(ctx).With(
		zap.String("paymentReference", details.Reference),
		zap.String("paymentStatus", string(details.Status)),
	)
	if err := h.checkout.HandlePaymentNotification(ctx, details); err != nil {
		switch {
		case errors.Is(err, services.ErrCheckoutSessionNotFound):
			logger.Warn("webhook for unknown checkout session")
			writeJSONResponse(w, http.StatusOK, webhookAck{Status: "ignored"})
		case errors.Is(err, services.ErrCheckoutInvalidInput), errors.Is(err, services.ErrCheckoutPaymentFailed):
			logger.Warn("webhook rejected", zap.Error(err))
			writeJSONResponse(w, http.StatusOK, webhookAck{Status: "rejected"})
		default:
			logger.Error("webhook settlement failed", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("webhook_failed", "notification could not be processed", http.StatusInternalServerError))
		}
		return
	}
	logger.Info("webhook processed")
	writeJSONResponse(w, http.StatusOK, webhookAck{Status: "processed"})
}
