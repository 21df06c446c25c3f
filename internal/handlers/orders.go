package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/platform/httpx"
	"github.com/optimistics/storefront/internal/platform/pagination"
	"github.com/optimistics/storefront/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderStatusBody   = 4 * 1024
	xlsxContentType      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var orderPaging = pagination.Options{DefaultPageSize: defaultOrderPageSize, MaxPageSize: maxOrderPageSize}

// AdminOrderHandlers exposes back-office order management.
type AdminOrderHandlers struct {
	orders services.OrderService
	now    func() time.Time
}

// NewAdminOrderHandlers constructs admin order handlers. Authentication is applied by the admin group.
func NewAdminOrderHandlers(orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{orders: orders, now: time.Now}
}

// Routes registers /orders endpoints on the admin router.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/export", h.exportOrders)
	r.Get("/orders/{orderId}", h.getOrder)
	r.Put("/orders/{orderId}/status", h.updateStatus)
	r.Delete("/orders/{orderId}", h.deleteOrder)
}

type orderPayload struct {
	ID                   string                 `json:"id"`
	UserID               string                 `json:"userId,omitempty"`
	CustomerName         string                 `json:"customerName"`
	CustomerEmail        string                 `json:"customerEmail"`
	CustomerPhone        string                 `json:"customerPhone"`
	ShippingAddress      string                 `json:"shippingAddress"`
	Region               string                 `json:"region"`
	Items                []cartLinePayload      `json:"items"`
	Subtotal             int64                  `json:"subtotal"`
	ShippingFee          int64                  `json:"shippingFee"`
	PointsRedeemed       int64                  `json:"pointsRedeemed"`
	DiscountApplied      int64                  `json:"discountApplied"`
	Total                int64                  `json:"total"`
	PointsEarned         int64                  `json:"pointsEarned"`
	Provider             string                 `json:"provider,omitempty"`
	PaymentReference     string                 `json:"paymentReference"`
	TransactionReference string                 `json:"transactionReference,omitempty"`
	Status               string                 `json:"status"`
	StatusHistory        []orderStatusChangeDTO `json:"statusHistory,omitempty"`
	CreatedAt            string                 `json:"createdAt"`
	UpdatedAt            string                 `json:"updatedAt,omitempty"`
}

type orderStatusChangeDTO struct {
	Status string `json:"status"`
	At     string `json:"at"`
	Actor  string `json:"actor,omitempty"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	filter, ok := parseOrderFilter(ctx, w, r)
	if !ok {
		return
	}
	filter.UserID = strings.TrimSpace(r.URL.Query().Get("userId"))
	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(page))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	var req orderStatusRequest
	if !decodeJSONBody(w, r, maxOrderStatusBody, &req) {
		return
	}
	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      chi.URLParam(r, "orderId"),
		TargetStatus: domain.OrderStatus(strings.TrimSpace(req.Status)),
		ActorID:      identityUID(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	if err := h.orders.DeleteOrder(ctx, chi.URLParam(r, "orderId")); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// exportOrders renders the filtered orders as an xlsx workbook. The workbook is buffered so a
// failure part-way still produces a JSON error.
func (h *AdminOrderHandlers) exportOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	filter, ok := parseOrderFilter(ctx, w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	rows, err := h.orders.ExportOrders(ctx, filter, &buf)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	name := fmt.Sprintf("orders-%s.xlsx", h.now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("X-Export-Rows", strconv.Itoa(rows))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func parseOrderFilter(ctx context.Context, w http.ResponseWriter, r *http.Request) (services.OrderListFilter, bool) {
	params, err := pagination.FromRequest(r, orderPaging)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return services.OrderListFilter{}, false
	}
	return services.OrderListFilter{
		Status:     domain.OrderStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Pagination: services.Pagination{PageSize: params.PageSize, PageToken: params.PageToken},
	}, true
}

func buildOrderList(page domain.CursorPage[services.Order]) orderListResponse {
	resp := orderListResponse{
		Items:         make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		resp.Items = append(resp.Items, buildOrderPayload(order))
	}
	return resp
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                   order.ID,
		UserID:               order.UserID,
		CustomerName:         order.CustomerName,
		CustomerEmail:        order.CustomerEmail,
		CustomerPhone:        order.CustomerPhone,
		ShippingAddress:      order.ShippingAddress,
		Region:               order.Region,
		Items:                buildCartLines(order.Items),
		Subtotal:             order.Subtotal,
		ShippingFee:          order.ShippingFee,
		PointsRedeemed:       order.PointsRedeemed,
		DiscountApplied:      order.DiscountApplied,
		Total:                order.Total,
		PointsEarned:         order.PointsEarned,
		Provider:             order.Provider,
		PaymentReference:     order.PaymentReference,
		TransactionReference: order.TransactionReference,
		Status:               string(order.Status),
		CreatedAt:            formatTime(order.CreatedAt),
		UpdatedAt:            formatTime(order.UpdatedAt),
	}
	for _, change := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, orderStatusChangeDTO{
			Status: string(change.Status),
			At:     formatTime(change.At),
			Actor:  change.Actor,
		})
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_status", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		serviceUnavailable(ctx, w, "order")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order request failed", http.StatusInternalServerError))
	}
}
