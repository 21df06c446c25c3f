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

// WishlistHandlers exposes the saved-for-later list. Owners are resolved like carts.
type WishlistHandlers struct {
	authn     *auth.Authenticator
	wishlists services.WishlistService
}

// NewWishlistHandlers constructs wishlist handlers.
func NewWishlistHandlers(authn *auth.Authenticator, wishlists services.WishlistService) *WishlistHandlers {
	return &WishlistHandlers{authn: authn, wishlists: wishlists}
}

// Routes wires the /wishlist endpoints.
func (h *WishlistHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Use(CartSessionMiddleware())
	r.Get("/", h.getWishlist)
	r.Put("/{productId}", h.addProduct)
	r.Delete("/{productId}", h.removeProduct)
}

type wishlistResponse struct {
	ProductIDs []string `json:"productIds"`
	UpdatedAt  string   `json:"updatedAt,omitempty"`
}

func (h *WishlistHandlers) getWishlist(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(ctx context.Context, owner string) (services.Wishlist, error) {
		return h.wishlists.GetWishlist(ctx, owner)
	})
}

func (h *WishlistHandlers) addProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	h.respond(w, r, func(ctx context.Context, owner string) (services.Wishlist, error) {
		return h.wishlists.Add(ctx, owner, productID)
	})
}

func (h *WishlistHandlers) removeProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	h.respond(w, r, func(ctx context.Context, owner string) (services.Wishlist, error) {
		return h.wishlists.Remove(ctx, owner, productID)
	})
}

func (h *WishlistHandlers) respond(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (services.Wishlist, error)) {
	ctx := r.Context()
	if h.wishlists == nil {
		serviceUnavailable(ctx, w, "wishlist")
		return
	}
	list, err := op(ctx, cartOwnerKey(ctx))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrWishlistInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			serviceUnavailable(ctx, w, "wishlist")
		}
		return
	}
	ids := list.ProductIDs
	if ids == nil {
		ids = []string{}
	}
	writeJSONResponse(w, http.StatusOK, wishlistResponse{ProductIDs: ids, UpdatedAt: formatTime(list.UpdatedAt)})
}
