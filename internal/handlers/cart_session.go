package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/optimistics/storefront/internal/platform/requestctx"
)

// CartSessionHeader carries the guest cart id between the browser and the API.
const CartSessionHeader = "X-Cart-Session"

const cartSessionQueryParam = "cartSession"

// CartSessionMiddleware resolves the guest cart session for the request. A missing or malformed id
// is replaced by a fresh UUID, echoed back in the response header so the browser can persist it.
func CartSessionMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(CartSessionHeader))
			if raw == "" {
				raw = strings.TrimSpace(r.URL.Query().Get(cartSessionQueryParam))
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				id = uuid.New()
			}
			sessionID := id.String()
			w.Header().Set(CartSessionHeader, sessionID)
			next.ServeHTTP(w, r.WithContext(requestctx.WithCartSession(r.Context(), sessionID)))
		})
	}
}

// cartOwnerKey keys carts by uid for signed-in shoppers and by the guest session otherwise.
func cartOwnerKey(ctx context.Context) string {
	if uid := identityUID(ctx); uid != "" {
		return uid
	}
	return requestctx.CartSession(ctx)
}
