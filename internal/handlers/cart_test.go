package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/optimistics/storefront/internal/platform/auth"
	"github.com/optimistics/storefront/internal/platform/requestctx"
	"github.com/optimistics/storefront/internal/services"
)

const guestSession = "6f1c9a52-3f1e-4b7e-9a55-2d0f5c8e1a11"

func newCartRouter(h *CartHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/cart", h.Routes)
	return router
}

func TestCartSessionMiddleware_EchoesValidSession(t *testing.T) {
	var seen string
	handler := CartSessionMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.CartSession(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(CartSessionHeader, guestSession)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != guestSession {
		t.Fatalf("expected session %q, got %q", guestSession, seen)
	}
	if rec.Header().Get(CartSessionHeader) != guestSession {
		t.Fatalf("expected session header echoed, got %q", rec.Header().Get(CartSessionHeader))
	}
}

func TestCartSessionMiddleware_ReplacesMalformedSession(t *testing.T) {
	var seen string
	handler := CartSessionMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.CartSession(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/cart?cartSession=../../etc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected generated uuid, got %q", seen)
	}
	if rec.Header().Get(CartSessionHeader) != seen {
		t.Fatalf("expected generated session echoed")
	}
}

func TestCartHandlers_GetCartForGuest(t *testing.T) {
	updated := time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC)
	carts := &stubCartService{
		getFunc: func(_ context.Context, ownerKey string) (services.Cart, error) {
			if ownerKey != guestSession {
				t.Fatalf("unexpected owner key %q", ownerKey)
			}
			return services.Cart{
				OwnerKey: ownerKey,
				Lines: []services.CartLine{
					{ID: "oil-100ml", ProductID: "oil", Name: "Hair Oil", Size: "100ml", UnitPrice: 4500, Quantity: 2},
					{ID: "soap-bar", ProductID: "soap", Name: "Black Soap", Size: "bar", UnitPrice: 1500, Quantity: 1},
				},
				UpdatedAt: updated,
			}, nil
		},
	}
	router := newCartRouter(NewCartHandlers(nil, carts))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(CartSessionHeader, guestSession)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Fatalf("expected no-store cache headers")
	}
	var resp cartResponse
	decodeInto(t, rec, &resp)
	if resp.Cart.Count != 3 || resp.Cart.Subtotal != 10500 {
		t.Fatalf("unexpected summary count=%d subtotal=%d", resp.Cart.Count, resp.Cart.Subtotal)
	}
	if len(resp.Cart.Items) != 2 || resp.Cart.Items[0].LineTotal != 9000 {
		t.Fatalf("unexpected items %+v", resp.Cart.Items)
	}
	if resp.Cart.UpdatedAt != "2024-05-12T10:00:00Z" {
		t.Fatalf("unexpected updatedAt %q", resp.Cart.UpdatedAt)
	}
}

func TestCartHandlers_SignedInUsesUID(t *testing.T) {
	carts := &stubCartService{
		getFunc: func(_ context.Context, ownerKey string) (services.Cart, error) {
			if ownerKey != "user-7" {
				t.Fatalf("expected uid owner key, got %q", ownerKey)
			}
			return services.Cart{OwnerKey: ownerKey}, nil
		},
	}
	router := newCartRouter(NewCartHandlers(nil, carts))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(CartSessionHeader, guestSession)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp cartResponse
	decodeInto(t, rec, &resp)
	if resp.Cart.Items == nil {
		t.Fatalf("expected empty items array, got null")
	}
}

func TestCartHandlers_AddItemDefaultsQuantity(t *testing.T) {
	var got services.AddCartItemCommand
	carts := &stubCartService{
		addFunc: func(_ context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			got = cmd
			return services.Cart{OwnerKey: cmd.OwnerKey}, nil
		},
	}
	router := newCartRouter(NewCartHandlers(nil, carts))

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"productId":" oil ","size":"100ml"}`))
	req.Header.Set(CartSessionHeader, guestSession)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.ProductID != "oil" || got.Size != "100ml" || got.Quantity != 1 || got.OwnerKey != guestSession {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestCartHandlers_AddItemErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"invalid", services.ErrCartInvalidInput, http.StatusBadRequest, "invalid_request"},
		{"unknown product", services.ErrCartProductNotFound, http.StatusNotFound, "product_not_found"},
		{"out of stock", services.ErrCartOutOfStock, http.StatusConflict, "out_of_stock"},
		{"unavailable", services.ErrCartUnavailable, http.StatusServiceUnavailable, "cart_service_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			carts := &stubCartService{
				addFunc: func(context.Context, services.AddCartItemCommand) (services.Cart, error) {
					return services.Cart{}, tc.err
				},
			}
			router := newCartRouter(NewCartHandlers(nil, carts))

			req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"productId":"oil","size":"100ml","quantity":2}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			if body := decodeBody(t, rec); body["error"] != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestCartHandlers_UpdateRequiresQuantity(t *testing.T) {
	router := newCartRouter(NewCartHandlers(nil, &stubCartService{}))

	req := httptest.NewRequest(http.MethodPatch, "/cart/items/oil-100ml", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCartHandlers_UpdateQuantity(t *testing.T) {
	var got services.UpdateCartItemCommand
	carts := &stubCartService{
		updateFunc: func(_ context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
			got = cmd
			return services.Cart{}, nil
		},
	}
	router := newCartRouter(NewCartHandlers(nil, carts))

	req := httptest.NewRequest(http.MethodPatch, "/cart/items/oil-100ml", strings.NewReader(`{"quantity":0}`))
	req.Header.Set(CartSessionHeader, guestSession)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.LineID != "oil-100ml" || got.Quantity != 0 {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestCartHandlers_RemoveMissingLine(t *testing.T) {
	carts := &stubCartService{
		removeFunc: func(context.Context, string, string) (services.Cart, error) {
			return services.Cart{}, services.ErrCartItemNotFound
		},
	}
	router := newCartRouter(NewCartHandlers(nil, carts))

	req := httptest.NewRequest(http.MethodDelete, "/cart/items/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCartHandlers_ClearCart(t *testing.T) {
	var cleared string
	carts := &stubCartService{
		clearFunc: func(_ context.Context, ownerKey string) error {
			cleared = ownerKey
			return nil
		},
	}
	router := newCartRouter(NewCartHandlers(nil, carts))

	req := httptest.NewRequest(http.MethodDelete, "/cart", nil)
	req.Header.Set(CartSessionHeader, guestSession)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || cleared != guestSession {
		t.Fatalf("expected cart cleared for guest, code=%d owner=%q", rec.Code, cleared)
	}
}

func TestCartHandlers_MergeRequiresIdentity(t *testing.T) {
	router := newCartRouter(NewCartHandlers(nil, &stubCartService{}))

	req := httptest.NewRequest(http.MethodPost, "/cart/merge", nil)
	req.Header.Set(CartSessionHeader, guestSession)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCartHandlers_MergeGuestCart(t *testing.T) {
	var guest, user string
	carts := &stubCartService{
		mergeFunc: func(_ context.Context, guestKey, userID string) (services.Cart, error) {
			guest, user = guestKey, userID
			return services.Cart{OwnerKey: userID}, nil
		},
	}
	router := newCartRouter(NewCartHandlers(nil, carts))

	req := httptest.NewRequest(http.MethodPost, "/cart/merge", nil)
	req.Header.Set(CartSessionHeader, guestSession)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if guest != guestSession || user != "user-7" {
		t.Fatalf("unexpected merge guest=%q user=%q", guest, user)
	}
}

func TestCartHandlers_StreamPushesInitialAndUpdates(t *testing.T) {
	var (
		mu       sync.Mutex
		listener func(services.Cart)
		ready    = make(chan struct{})
	)
	carts := &stubCartService{
		getFunc: func(_ context.Context, ownerKey string) (services.Cart, error) {
			return services.Cart{OwnerKey: ownerKey}, nil
		},
		subscribeFunc: func(_ string, fn func(services.Cart)) func() {
			mu.Lock()
			listener = fn
			mu.Unlock()
			close(ready)
			return func() {}
		},
	}
	server := httptest.NewServer(newCartRouter(NewCartHandlers(nil, carts)))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/cart/stream?cartSession=" + guestSession
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first cartResponse
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial cart: %v", err)
	}
	if first.Cart.OwnerKey != guestSession || first.Cart.Count != 0 {
		t.Fatalf("unexpected initial cart %+v", first.Cart)
	}

	<-ready
	mu.Lock()
	listener(services.Cart{OwnerKey: guestSession, Lines: []services.CartLine{{ID: "oil-100ml", UnitPrice: 4500, Quantity: 1}}})
	mu.Unlock()

	var next cartResponse
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if next.Cart.Count != 1 || next.Cart.Subtotal != 4500 {
		t.Fatalf("unexpected update %+v", next.Cart)
	}
}

func TestCartHandlers_StreamRejectsForeignOrigin(t *testing.T) {
	carts := &stubCartService{
		getFunc: func(_ context.Context, ownerKey string) (services.Cart, error) {
			return services.Cart{OwnerKey: ownerKey}, nil
		},
	}
	handlers := NewCartHandlers(nil, carts, WithStreamOrigins([]string{"https://shop.example.com/"}))
	server := httptest.NewServer(newCartRouter(handlers))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/cart/stream"
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatalf("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 handshake response, got %+v", resp)
	}
}
