package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newMonnifyTestServer(t *testing.T, status string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Basic ") {
			t.Errorf("expected basic auth on login")
		}
		_, _ = io.WriteString(w, `{"requestSuccessful":true,"responseBody":{"accessToken":"tok","expiresIn":3600}}`)
	})
	mux.HandleFunc("/api/v1/merchant/transactions/init-transaction", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode init body: %v", err)
		}
		if body["amount"] != 43000.0 || body["contractCode"] != "4934121693" || body["currencyCode"] != "NGN" {
			t.Errorf("unexpected init body %v", body)
		}
		_, _ = io.WriteString(w, `{"requestSuccessful":true,"responseBody":{"transactionReference":"MNFY|20250506|000123","paymentReference":"ORD-1-1","checkoutUrl":"https://sandbox.sdk.monnify.com/checkout/MNFY|20250506|000123"}}`)
	})
	mux.HandleFunc("/api/v2/merchant/transactions/query", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("paymentReference") != "ORD-1-1" {
			t.Errorf("unexpected reference %q", r.URL.Query().Get("paymentReference"))
		}
		_, _ = io.WriteString(w, `{"requestSuccessful":true,"responseBody":{"transactionReference":"MNFY|20250506|000123","paymentReference":"ORD-1-1","amountPaid":"43000.00","paymentStatus":"`+status+`","currencyCode":"NGN","paidOn":"2025-05-06 10:15:00"}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &logins
}

func newTestMonnify(t *testing.T, baseURL string) *MonnifyProvider {
	t.Helper()
	provider, err := NewMonnifyProvider(MonnifyProviderConfig{
		BaseURL:      baseURL,
		APIKey:       "MK_TEST_KEY",
		SecretKey:    "secret",
		ContractCode: "4934121693",
		TestMode:     true,
		Clock:        func() time.Time { return time.Date(2025, 5, 6, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewMonnifyProvider: %v", err)
	}
	return provider
}

func TestMonnifyInitializeAndLookup(t *testing.T) {
	srv, logins := newMonnifyTestServer(t, "PAID")
	provider := newTestMonnify(t, srv.URL)
	ctx := context.Background()

	init, err := provider.Initialize(ctx, InitRequest{
		Reference:     "ORD-1-1",
		Amount:        43000,
		CustomerName:  "Ada Obi",
		CustomerEmail: "ada@example.com",
		Description:   "Order ORD-1",
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if init.ProviderReference != "MNFY|20250506|000123" || init.CheckoutURL == "" {
		t.Fatalf("unexpected init %+v", init)
	}
	if init.Widget["contractCode"] != "4934121693" || init.Widget["isTestMode"] != true {
		t.Fatalf("unexpected widget config %v", init.Widget)
	}

	details, err := provider.LookupPayment(ctx, LookupRequest{Reference: "ORD-1-1"})
	if err != nil {
		t.Fatalf("LookupPayment: %v", err)
	}
	if details.Status != StatusPaid || details.Amount != 43000 || details.TransactionReference != "MNFY|20250506|000123" {
		t.Fatalf("unexpected details %+v", details)
	}
	if details.PaidAt == nil || details.PaidAt.Hour() != 10 {
		t.Fatalf("expected paidOn to be parsed, got %v", details.PaidAt)
	}
	if got := logins.Load(); got != 1 {
		t.Fatalf("expected token to be cached, got %d logins", got)
	}
}

func TestMonnifyStatusMapping(t *testing.T) {
	cases := map[string]Status{
		"PAID":           StatusPaid,
		"OVERPAID":       StatusPaid,
		"PENDING":        StatusPending,
		"PARTIALLY_PAID": StatusPending,
		"EXPIRED":        StatusCancelled,
		"FAILED":         StatusFailed,
	}
	for raw, want := range cases {
		if got := monnifyStatus(raw); got != want {
			t.Fatalf("monnifyStatus(%s) = %s, want %s", raw, got, want)
		}
	}
}

func TestMonnifyRejectedRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"requestSuccessful":false,"responseMessage":"invalid credentials","responseCode":"99"}`)
	}))
	defer srv.Close()

	provider := newTestMonnify(t, srv.URL)
	_, err := provider.LookupPayment(context.Background(), LookupRequest{Reference: "ORD-1-1"})
	if err == nil || !strings.Contains(err.Error(), "invalid credentials") {
		t.Fatalf("expected login failure, got %v", err)
	}
}

func TestParseMonnifyWebhook(t *testing.T) {
	body := []byte(`{"eventType":"SUCCESSFUL_TRANSACTION","eventData":{"transactionReference":"MNFY|1","paymentReference":"ORD-2-9","amountPaid":15000,"paymentStatus":"PAID","currency":"NGN"}}`)
	details, err := ParseMonnifyWebhook(body)
	if err != nil {
		t.Fatalf("ParseMonnifyWebhook: %v", err)
	}
	if details.Reference != "ORD-2-9" || details.Status != StatusPaid || details.Amount != 15000 {
		t.Fatalf("unexpected details %+v", details)
	}
	if _, err := ParseMonnifyWebhook([]byte(`{"eventData":{}}`)); err == nil {
		t.Fatalf("expected error for missing reference")
	}
}
