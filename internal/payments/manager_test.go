package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp  string
	init    Initialization
	details PaymentDetails
	err     error
}

func (f *fakeProvider) Initialize(context.Context, InitRequest) (Initialization, error) {
	f.lastOp = "init"
	return f.init, f.err
}

func (f *fakeProvider) LookupPayment(context.Context, LookupRequest) (PaymentDetails, error) {
	f.lastOp = "lookup"
	return f.details, f.err
}

func TestManagerRoutesNairaToMonnify(t *testing.T) {
	monnify := &fakeProvider{init: Initialization{Reference: "ORD-1-1"}}
	stripe := &fakeProvider{}
	mgr, err := NewManager(map[string]Provider{ProviderMonnify: monnify, ProviderStripe: stripe}, WithDefaultProvider(ProviderStripe))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	init, err := mgr.Initialize(context.Background(), PaymentContext{Currency: "ngn"}, InitRequest{Amount: 40000})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if init.Provider != ProviderMonnify || monnify.lastOp != "init" || stripe.lastOp != "" {
		t.Fatalf("expected monnify to handle NGN, got %q", init.Provider)
	}

	if _, err := mgr.Initialize(context.Background(), PaymentContext{Currency: "USD"}, InitRequest{}); err != nil {
		t.Fatalf("initialize usd: %v", err)
	}
	if stripe.lastOp != "init" {
		t.Fatalf("expected default provider for USD")
	}
}

func TestManagerPreferredProvider(t *testing.T) {
	stripe := &fakeProvider{details: PaymentDetails{Status: StatusPaid}}
	mgr, err := NewManager(map[string]Provider{ProviderMonnify: &fakeProvider{}, ProviderStripe: stripe})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	details, err := mgr.LookupPayment(context.Background(), PaymentContext{PreferredProvider: "Stripe", Currency: "NGN"}, LookupRequest{Reference: "r"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if details.Provider != ProviderStripe || stripe.lastOp != "lookup" {
		t.Fatalf("expected stripe lookup, got %+v", details)
	}

	_, err = mgr.LookupPayment(context.Background(), PaymentContext{PreferredProvider: "paypal"}, LookupRequest{})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestNewManagerValidatesProviders(t *testing.T) {
	if _, err := NewManager(map[string]Provider{"bad": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error when providers empty")
	}
}
