package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey     string
	AccountID  string
	SuccessURL string
	CancelURL  string
	Backends   *stripe.Backends
	Logger     StripeLogger
	Clock      func() time.Time

	sessions stripeSessionAPI
}

// StripeProvider settles non-naira payments through Stripe Checkout.
type StripeProvider struct {
	sessions   stripeSessionAPI
	account    string
	successURL string
	cancelURL  string
	clock      func() time.Time
	logger     StripeLogger
}

var _ Provider = (*StripeProvider)(nil)

var kobo = decimal.NewFromInt(100)

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	sessions := cfg.sessions
	if sessions == nil {
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sessions = client.New(apiKey, cfg.Backends).CheckoutSessions
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		sessions:   sessions,
		account:    strings.TrimSpace(cfg.AccountID),
		successURL: strings.TrimSpace(cfg.SuccessURL),
		cancelURL:  strings.TrimSpace(cfg.CancelURL),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Initialize creates a Checkout Session for the whole order as a single line item.
func (p *StripeProvider) Initialize(ctx context.Context, req InitRequest) (Initialization, error) {
	if req.Amount <= 0 {
		return Initialization{}, errors.New("stripe: amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "ngn"
	}
	successURL := firstNonEmpty(req.RedirectURL, p.successURL)
	cancelURL := firstNonEmpty(p.cancelURL, successURL)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(req.Reference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(decimal.NewFromInt(req.Amount).Mul(kobo).IntPart()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(firstNonEmpty(req.Description, "Order "+req.Reference)),
				},
			},
		}},
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-" + req.Reference)
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Metadata = map[string]string{"reference": req.Reference}
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return Initialization{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"reference": req.Reference,
	})

	expiresAt := p.clock().Add(30 * time.Minute)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return Initialization{
		Provider:          ProviderStripe,
		Reference:         req.Reference,
		ProviderReference: session.ID,
		CheckoutURL:       session.URL,
		ExpiresAt:         expiresAt,
	}, nil
}

// LookupPayment retrieves the Checkout Session named by req.ProviderReference.
func (p *StripeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	id := strings.TrimSpace(req.ProviderReference)
	if id == "" {
		return PaymentDetails{}, errors.New("stripe: checkout session id is required")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	session, err := p.sessions.Get(id, params)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: lookup checkout session: %w", err)
	}
	details := stripeSessionDetails(session)
	if details.Reference == "" {
		details.Reference = req.Reference
	}
	return details, nil
}

func stripeSessionDetails(session *stripe.CheckoutSession) PaymentDetails {
	if session == nil {
		return PaymentDetails{Provider: ProviderStripe, Status: StatusPending}
	}

	status := StatusPending
	switch {
	case session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		status = StatusPaid
	case session.Status == stripe.CheckoutSessionStatusExpired:
		status = StatusCancelled
	}

	details := PaymentDetails{
		Provider:             ProviderStripe,
		Reference:            session.ClientReferenceID,
		TransactionReference: session.ID,
		Status:               status,
		Amount:               decimal.NewFromInt(session.AmountTotal).Div(kobo).Round(0).IntPart(),
		Currency:             strings.ToUpper(string(session.Currency)),
	}
	if intent := session.PaymentIntent; intent != nil {
		if intent.ID != "" {
			details.TransactionReference = intent.ID
		}
		if intent.Status == stripe.PaymentIntentStatusCanceled {
			details.Status = StatusFailed
		}
		if status == StatusPaid && intent.Created != 0 {
			paidAt := time.Unix(intent.Created, 0).UTC()
			details.PaidAt = &paidAt
		}
	}
	return details
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
