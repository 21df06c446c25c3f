package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tealeg/xlsx"

	domain "github.com/optimistics/storefront/internal/domain"
)

func newTestOrderService(t *testing.T, orders *memOrders, notes NotificationService) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:        orders,
		Notifications: notes,
		Clock:         func() time.Time { return checkoutNow },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func sampleOrder(id string, status OrderStatus) Order {
	return Order{
		ID:              id,
		UserID:          "u1",
		CustomerName:    "Ada Obi",
		CustomerEmail:   "ada@example.com",
		ShippingAddress: "12 Marina, Ikeja, Lagos",
		Region:          "Lagos",
		Items:           []CartLine{soapLine(5000, 2)},
		Subtotal:        10000,
		ShippingFee:     2500,
		Total:           12500,
		PointsEarned:    125,
		Status:          status,
		CreatedAt:       checkoutNow.Add(-time.Hour),
	}
}

func TestOrderServiceTransitionTable(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		allowed  bool
	}{
		{domain.OrderStatusProcessing, domain.OrderStatusShipped, true},
		{domain.OrderStatusProcessing, domain.OrderStatusCancelled, true},
		{domain.OrderStatusProcessing, domain.OrderStatusDelivered, false},
		{domain.OrderStatusShipped, domain.OrderStatusDelivered, true},
		{domain.OrderStatusShipped, domain.OrderStatusCancelled, true},
		{domain.OrderStatusShipped, domain.OrderStatusProcessing, false},
		{domain.OrderStatusDelivered, domain.OrderStatusCancelled, false},
		{domain.OrderStatusCancelled, domain.OrderStatusProcessing, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			orders := newMemOrders(sampleOrder("ORD-1", tc.from))
			svc := newTestOrderService(t, orders, nil)
			order, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
				OrderID:      "ORD-1",
				TargetStatus: tc.to,
				ActorID:      "admin-1",
			})
			if tc.allowed {
				if err != nil {
					t.Fatalf("TransitionStatus: %v", err)
				}
				if order.Status != tc.to {
					t.Fatalf("expected %s, got %s", tc.to, order.Status)
				}
				last := order.StatusHistory[len(order.StatusHistory)-1]
				if last.Actor != "admin-1" || !last.At.Equal(checkoutNow) {
					t.Fatalf("unexpected history entry %+v", last)
				}
				return
			}
			if !errors.Is(err, ErrOrderInvalidState) {
				t.Fatalf("expected ErrOrderInvalidState, got %v", err)
			}
		})
	}
}

func TestOrderServiceSameStatusIsNoop(t *testing.T) {
	orders := newMemOrders(sampleOrder("ORD-1", domain.OrderStatusDelivered))
	notes := &recordingNotifications{}
	svc := newTestOrderService(t, orders, notes)

	order, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{OrderID: "ORD-1", TargetStatus: domain.OrderStatusDelivered})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if order.Status != domain.OrderStatusDelivered || len(order.StatusHistory) != 0 || len(notes.statusChanges) != 0 {
		t.Fatalf("expected untouched order, got %+v", order)
	}
}

func TestOrderServiceTransitionNotifies(t *testing.T) {
	orders := newMemOrders(sampleOrder("ORD-1", domain.OrderStatusProcessing))
	notes := &recordingNotifications{}
	svc := newTestOrderService(t, orders, notes)

	if _, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{OrderID: "ORD-1", TargetStatus: domain.OrderStatusShipped}); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if len(notes.statusChanges) != 1 || notes.statusChanges[0].Status != domain.OrderStatusShipped {
		t.Fatalf("expected shipped notification, got %+v", notes.statusChanges)
	}
}

func TestOrderServiceTransitionValidation(t *testing.T) {
	svc := newTestOrderService(t, newMemOrders(), nil)
	ctx := context.Background()

	if _, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{TargetStatus: domain.OrderStatusShipped}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{OrderID: "ORD-1", TargetStatus: "Lost"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{OrderID: "ORD-1", TargetStatus: domain.OrderStatusShipped}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceListAndDelete(t *testing.T) {
	orders := newMemOrders(
		sampleOrder("ORD-1", domain.OrderStatusProcessing),
		sampleOrder("ORD-2", domain.OrderStatusShipped),
	)
	svc := newTestOrderService(t, orders, nil)
	ctx := context.Background()

	page, err := svc.ListOrders(ctx, OrderListFilter{Status: domain.OrderStatusShipped})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "ORD-2" {
		t.Fatalf("unexpected page %+v", page)
	}
	if _, err := svc.ListOrders(ctx, OrderListFilter{Status: "Lost"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid status error, got %v", err)
	}

	if err := svc.DeleteOrder(ctx, "ORD-1"); err != nil {
		t.Fatalf("DeleteOrder: %v", err)
	}
	if _, err := svc.GetOrder(ctx, "ORD-1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestOrderServiceExportWritesWorkbook(t *testing.T) {
	orders := newMemOrders(
		sampleOrder("ORD-1", domain.OrderStatusProcessing),
		sampleOrder("ORD-2", domain.OrderStatusShipped),
		sampleOrder("ORD-3", domain.OrderStatusDelivered),
	)
	svc := newTestOrderService(t, orders, nil)

	var buf bytes.Buffer
	rows, err := svc.ExportOrders(context.Background(), OrderListFilter{Pagination: Pagination{PageSize: 2}}, &buf)
	if err != nil {
		t.Fatalf("ExportOrders: %v", err)
	}
	if rows != 3 {
		t.Fatalf("expected 3 rows, got %d", rows)
	}

	file, err := xlsx.OpenBinary(buf.Bytes())
	if err != nil {
		t.Fatalf("OpenBinary: %v", err)
	}
	sheet := file.Sheets[0]
	if sheet.Name != orderExportSheet || len(sheet.Rows) != 4 {
		t.Fatalf("unexpected sheet %q with %d rows", sheet.Name, len(sheet.Rows))
	}
	if got := sheet.Rows[0].Cells[0].String(); got != "Order ID" {
		t.Fatalf("unexpected header %q", got)
	}
	if got := sheet.Rows[1].Cells[8].String(); got != "Black Soap (250g) x2" {
		t.Fatalf("unexpected items cell %q", got)
	}
}
