package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/optimistics/storefront/internal/platform/auth"
	"github.com/optimistics/storefront/internal/platform/httpx"
	"github.com/optimistics/storefront/internal/platform/requestctx"
	"github.com/optimistics/storefront/internal/services"
)

const (
	maxCartBodySize   = 16 * 1024
	streamWriteWait   = 10 * time.Second
	streamPingPeriod  = 30 * time.Second
	streamReadTimeout = 2 * streamPingPeriod
)

// CartHandlers exposes cart endpoints for guests and signed-in shoppers.
type CartHandlers struct {
	authn    *auth.Authenticator
	carts    services.CartService
	upgrader websocket.Upgrader
}

// CartOption customises CartHandlers.
type CartOption func(*CartHandlers)

// WithStreamOrigins restricts the origins allowed to open the cart stream. Empty allows any origin.
func WithStreamOrigins(origins []string) CartOption {
	return func(h *CartHandlers) {
		allowed := make([]string, 0, len(origins))
		for _, origin := range origins {
			if trimmed := strings.TrimRight(strings.TrimSpace(origin), "/"); trimmed != "" {
				allowed = append(allowed, trimmed)
			}
		}
		if len(allowed) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/")
			return origin == "" || slices.Contains(allowed, origin)
		}
	}
}

// NewCartHandlers constructs cart handlers. Authentication is optional; guests are keyed by the
// cart session header.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService, opts ...CartOption) *CartHandlers {
	h := &CartHandlers{
		authn: authn,
		carts: carts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Use(CartSessionMiddleware())
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{lineId}", h.updateItem)
	r.Delete("/items/{lineId}", h.removeItem)
	r.Post("/merge", h.mergeGuestCart)
	r.Get("/stream", h.stream)
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  *int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	OwnerKey  string            `json:"ownerKey"`
	Items     []cartLinePayload `json:"items"`
	Count     int               `json:"count"`
	Subtotal  int64             `json:"subtotal"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

type cartLinePayload struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Size      string `json:"size"`
	UnitPrice int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"lineTotal"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	cart, err := h.carts.GetCart(ctx, cartOwnerKey(ctx))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	ownerKey := cartOwnerKey(ctx)
	if err := h.carts.ClearCart(ctx, ownerKey); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, services.Cart{OwnerKey: ownerKey})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	var req addCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		OwnerKey:  cartOwnerKey(ctx),
		ProductID: strings.TrimSpace(req.ProductID),
		Size:      strings.TrimSpace(req.Size),
		Quantity:  quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	var req updateCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}
	cart, err := h.carts.UpdateQuantity(ctx, services.UpdateCartItemCommand{
		OwnerKey: cartOwnerKey(ctx),
		LineID:   chi.URLParam(r, "lineId"),
		Quantity: *req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	cart, err := h.carts.RemoveItem(ctx, cartOwnerKey(ctx), chi.URLParam(r, "lineId"))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

// mergeGuestCart folds the cart named by the session header into the caller's cart after sign-in.
func (h *CartHandlers) mergeGuestCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	cart, err := h.carts.MergeGuestCart(ctx, requestctx.CartSession(ctx), identity.UID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

// stream pushes the cart to the client on connect and after every committed change. Slow clients
// only ever see the latest cart.
func (h *CartHandlers) stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	ownerKey := cartOwnerKey(ctx)
	initial, err := h.carts.GetCart(ctx, ownerKey)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	updates := make(chan services.Cart, 1)
	unsubscribe := h.carts.Subscribe(ownerKey, func(cart services.Cart) {
		for {
			select {
			case updates <- cart:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeStreamCart(conn, initial); err != nil {
		return
	}
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case cart := <-updates:
			if err := writeStreamCart(conn, cart); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeStreamCart(conn *websocket.Conn, cart services.Cart) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(cartResponse{Cart: buildCartPayload(cart)})
}

func writeCart(w http.ResponseWriter, status int, cart services.Cart) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	writeJSONResponse(w, status, cartResponse{Cart: buildCartPayload(cart)})
}

func buildCartPayload(cart services.Cart) cartPayload {
	summary := services.AggregateCart(cart.Lines)
	payload := cartPayload{
		OwnerKey:  cart.OwnerKey,
		Items:     buildCartLines(cart.Lines),
		Count:     summary.Count,
		Subtotal:  summary.Subtotal,
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
	return payload
}

func buildCartLines(lines []services.CartLine) []cartLinePayload {
	items := make([]cartLinePayload, 0, len(lines))
	for _, line := range lines {
		items = append(items, cartLinePayload{
			ID:        line.ID,
			ProductID: line.ProductID,
			Name:      line.Name,
			Image:     line.Image,
			Size:      line.Size,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal(),
		})
	}
	return items
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartOutOfStock):
		httpx.WriteError(ctx, w, httpx.NewError("out_of_stock", "product is out of stock", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		serviceUnavailable(ctx, w, "cart")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to update cart", http.StatusInternalServerError))
	}
}
