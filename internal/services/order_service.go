package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tealeg/xlsx"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/repositories"
)

const (
	orderExportSheet    = "Orders"
	orderExportPageSize = 200
	orderExportMaxRows  = 20000
	exportTimeLayout    = "2006-01-02 15:04:05"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates the order changed underneath the transition.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates order storage is unavailable.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

var orderStateTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
}

var orderExportHeaders = []string{
	"Order ID", "Created", "Status", "Customer", "Email", "Phone", "Address", "Region",
	"Items", "Subtotal", "Shipping", "Points Redeemed", "Discount", "Total", "Points Earned",
	"Provider", "Payment Reference", "Transaction Reference",
}

// OrderServiceDeps wires the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Notifications NotificationService
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	notifications NotificationService
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs an OrderService.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders:        deps.Orders,
		notifications: deps.Notifications,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if filter.Status != "" && !knownOrderStatus(filter.Status) {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, filter.Status)
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     strings.TrimSpace(filter.UserID),
		Status:     filter.Status,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// TransitionStatus moves an order through fulfilment. Moving to the current status is a no-op.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	target := cmd.TargetStatus
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !knownOrderStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	current := order.Status
	if current == target {
		return order, nil
	}
	if !canTransition(current, target) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, current, target)
	}

	actor := strings.TrimSpace(cmd.ActorID)
	updated, err := s.orders.UpdateStatus(ctx, orderID, current, domain.OrderStatusChange{
		Status: target,
		At:     s.now(),
		Actor:  actor,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId": orderID,
		"from":    string(current),
		"to":      string(target),
		"actorId": actor,
	})
	if s.notifications != nil {
		s.notifications.OrderStatusChanged(ctx, updated)
	}
	return updated, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if err := s.orders.Delete(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "order.deleted", map[string]any{"orderId": orderID})
	return nil
}

// ExportOrders writes every order matching the filter to w as an xlsx workbook and returns the
// number of data rows written.
func (s *orderService) ExportOrders(ctx context.Context, filter OrderListFilter, w io.Writer) (int, error) {
	if w == nil {
		return 0, fmt.Errorf("%w: writer is required", ErrOrderInvalidInput)
	}
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(orderExportSheet)
	if err != nil {
		return 0, fmt.Errorf("order export: add sheet: %w", err)
	}
	header := sheet.AddRow()
	for _, h := range orderExportHeaders {
		header.AddCell().SetString(h)
	}

	pager := filter.Pagination
	if pager.PageSize <= 0 {
		pager.PageSize = orderExportPageSize
	}
	rows := 0
	for {
		page, err := s.ListOrders(ctx, OrderListFilter{UserID: filter.UserID, Status: filter.Status, Pagination: pager})
		if err != nil {
			return 0, err
		}
		for _, order := range page.Items {
			writeOrderRow(sheet.AddRow(), order)
			rows++
		}
		if page.NextPageToken == "" || rows >= orderExportMaxRows {
			break
		}
		pager.PageToken = page.NextPageToken
	}

	if err := file.Write(w); err != nil {
		return 0, fmt.Errorf("order export: write workbook: %w", err)
	}
	s.logger(ctx, "order.exported", map[string]any{
		"rows":   rows,
		"status": string(filter.Status),
	})
	return rows, nil
}

func writeOrderRow(row *xlsx.Row, order Order) {
	row.AddCell().SetString(order.ID)
	row.AddCell().SetString(order.CreatedAt.Format(exportTimeLayout))
	row.AddCell().SetString(string(order.Status))
	row.AddCell().SetString(order.CustomerName)
	row.AddCell().SetString(order.CustomerEmail)
	row.AddCell().SetString(order.CustomerPhone)
	row.AddCell().SetString(order.ShippingAddress)
	row.AddCell().SetString(order.Region)
	row.AddCell().SetString(describeItems(order.Items))
	for _, amount := range []int64{
		order.Subtotal,
		order.ShippingFee,
		order.PointsRedeemed,
		order.DiscountApplied,
		order.Total,
		order.PointsEarned,
	} {
		row.AddCell().SetValue(amount)
	}
	row.AddCell().SetString(order.Provider)
	row.AddCell().SetString(order.PaymentReference)
	row.AddCell().SetString(order.TransactionReference)
}

func describeItems(items []CartLine) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		label := item.Name
		if item.Size != "" {
			label += " (" + item.Size + ")"
		}
		parts = append(parts, label+" x"+strconv.Itoa(item.Quantity))
	}
	return strings.Join(parts, "; ")
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func knownOrderStatus(status OrderStatus) bool {
	switch status {
	case domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled:
		return true
	}
	return false
}

func canTransition(current, target OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
