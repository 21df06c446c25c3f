package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending means the customer has not finished paying.
	StatusPending Status = "pending"
	// StatusPaid means the gateway reports the full amount as received.
	StatusPaid Status = "paid"
	// StatusCancelled means the customer abandoned the payment or it expired.
	StatusCancelled Status = "cancelled"
	// StatusFailed means the gateway declined the payment.
	StatusFailed Status = "failed"
)

// Provider keys.
const (
	ProviderMonnify = "monnify"
	ProviderStripe  = "stripe"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrAmountMismatch is returned when the gateway reports a different amount than was charged.
	ErrAmountMismatch = errors.New("payments: amount mismatch")
)

// InitRequest is what the gateway needs to start a hosted payment. Amount is whole naira.
type InitRequest struct {
	Reference     string
	Amount        int64
	Currency      string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Description   string
	RedirectURL   string
	Metadata      map[string]string
}

// Initialization is returned to the browser so it can open the hosted widget or redirect.
type Initialization struct {
	Provider          string
	Reference         string
	ProviderReference string
	CheckoutURL       string
	ExpiresAt         time.Time
	Widget            map[string]any
}

// LookupRequest identifies a payment by our reference and, when known, the gateway's own id.
type LookupRequest struct {
	Reference         string
	ProviderReference string
}

// PaymentDetails normalises gateway-specific payment state.
type PaymentDetails struct {
	Provider             string
	Reference            string
	TransactionReference string
	Status               Status
	Amount               int64
	Currency             string
	PaidAt               *time.Time
}

// Provider is implemented by each gateway adapter.
type Provider interface {
	Initialize(ctx context.Context, req InitRequest) (Initialization, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

// Manager routes calls to a provider by explicit preference, currency, then default.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.ToLower(strings.TrimSpace(provider))
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
		}
	}
}

// NewManager constructs a Manager over the supplied providers. NGN routes to Monnify when it is
// registered.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	m := &Manager{
		providers:      make(map[string]Provider, len(providers)),
		currencyRoutes: map[string]string{},
	}
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		m.providers[key] = v
	}
	if _, ok := m.providers[ProviderMonnify]; ok {
		m.defaultProvider = ProviderMonnify
		m.currencyRoutes["NGN"] = ProviderMonnify
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// PaymentContext carries the hints used to select a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

func (m *Manager) resolve(pctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if key := strings.TrimSpace(strings.ToLower(pctx.PreferredProvider)); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, key)
	}
	if key, ok := m.currencyRoutes[strings.ToUpper(strings.TrimSpace(pctx.Currency))]; ok {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
	}
	if p, ok := m.providers[m.defaultProvider]; ok {
		return m.defaultProvider, p, nil
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// Initialize delegates to the resolved provider and stamps the provider key.
func (m *Manager) Initialize(ctx context.Context, pctx PaymentContext, req InitRequest) (Initialization, error) {
	key, provider, err := m.resolve(pctx)
	if err != nil {
		return Initialization{}, err
	}
	init, err := provider.Initialize(ctx, req)
	if err != nil {
		return Initialization{}, err
	}
	init.Provider = key
	return init, nil
}

// LookupPayment delegates to the resolved provider.
func (m *Manager) LookupPayment(ctx context.Context, pctx PaymentContext, req LookupRequest) (PaymentDetails, error) {
	key, provider, err := m.resolve(pctx)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.LookupPayment(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = key
	return details, nil
}
