package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/optimistics/storefront/internal/domain"
	pfirestore "github.com/optimistics/storefront/internal/platform/firestore"
	"github.com/optimistics/storefront/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists settled orders.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base:     pfirestore.NewBaseRepository[orderDocument](provider, orderCollection),
		provider: provider,
	}, nil
}

// Create writes a new order; an existing id is a conflict.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Create(ctx, order.ID, newOrderDocument(order))
}

// Get loads one order.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns orders newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	coll, err := r.base.CollectionRef(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	query := coll.Query
	if uid := strings.TrimSpace(filter.UserID); uid != "" {
		query = query.Where("userId", "==", uid)
	}
	if filter.Status != "" {
		query = query.Where("status", "==", string(filter.Status))
	}
	query, size, err := pagedQuery(query, filter.Pagination)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	docs, err := r.base.Query(ctx, func(firestore.Query) firestore.Query { return query })
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	return buildPage(docs, size,
		func(d orderDocument) time.Time { return d.CreatedAt },
		func(doc pfirestore.Document[orderDocument]) domain.Order { return doc.Data.toDomain(doc.ID) })
}

// UpdateStatus applies a status change when the stored status still equals from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, from domain.OrderStatus, change domain.OrderStatusChange) (domain.Order, error) {
	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	var updated domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("orders.status", err)
		}
		doc, err := r.base.Decode(snap)
		if err != nil {
			return err
		}
		if domain.OrderStatus(doc.Data.Status) != from {
			return pfirestore.ConflictError("orders.status", fmt.Errorf("order %s is %s, expected %s", orderID, doc.Data.Status, from))
		}
		entry := statusChangeDocument{Status: string(change.Status), At: change.At, Actor: change.Actor}
		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(change.Status)},
			{Path: "statusHistory", Value: firestore.ArrayUnion(entry)},
			{Path: "updatedAt", Value: change.At},
		}); err != nil {
			return err
		}
		doc.Data.Status = string(change.Status)
		doc.Data.StatusHistory = append(doc.Data.StatusHistory, entry)
		doc.Data.UpdatedAt = change.At
		updated = doc.Data.toDomain(doc.ID)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// Delete removes an order.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	return r.base.Delete(ctx, orderID)
}

type orderDocument struct {
	UserID               string                 `firestore:"userId,omitempty"`
	CustomerName         string                 `firestore:"customerName"`
	CustomerEmail        string                 `firestore:"customerEmail"`
	CustomerPhone        string                 `firestore:"customerPhone"`
	ShippingAddress      string                 `firestore:"shippingAddress"`
	Address              addressDocument        `firestore:"address"`
	Region               string                 `firestore:"region"`
	Items                []cartLineDocument     `firestore:"items"`
	Subtotal             int64                  `firestore:"subtotal"`
	ShippingFee          int64                  `firestore:"shippingFee"`
	PointsRedeemed       int64                  `firestore:"pointsRedeemed"`
	DiscountApplied      int64                  `firestore:"discountApplied"`
	Total                int64                  `firestore:"total"`
	PointsEarned         int64                  `firestore:"pointsEarned"`
	Provider             string                 `firestore:"provider"`
	PaymentReference     string                 `firestore:"paymentReference"`
	TransactionReference string                 `firestore:"transactionReference"`
	Status               string                 `firestore:"status"`
	StatusHistory        []statusChangeDocument `firestore:"statusHistory"`
	CreatedAt            time.Time              `firestore:"createdAt"`
	UpdatedAt            time.Time              `firestore:"updatedAt"`
}

type addressDocument struct {
	Line1 string `firestore:"address"`
	City  string `firestore:"city"`
	State string `firestore:"state"`
}

type statusChangeDocument struct {
	Status string    `firestore:"status"`
	At     time.Time `firestore:"at"`
	Actor  string    `firestore:"actor,omitempty"`
}

func newOrderDocument(o domain.Order) orderDocument {
	doc := orderDocument{
		UserID:               o.UserID,
		CustomerName:         o.CustomerName,
		CustomerEmail:        o.CustomerEmail,
		CustomerPhone:        o.CustomerPhone,
		ShippingAddress:      o.ShippingAddress,
		Address:              addressDocument(o.Address),
		Region:               o.Region,
		Items:                make([]cartLineDocument, 0, len(o.Items)),
		Subtotal:             o.Subtotal,
		ShippingFee:          o.ShippingFee,
		PointsRedeemed:       o.PointsRedeemed,
		DiscountApplied:      o.DiscountApplied,
		Total:                o.Total,
		PointsEarned:         o.PointsEarned,
		Provider:             o.Provider,
		PaymentReference:     o.PaymentReference,
		TransactionReference: o.TransactionReference,
		Status:               string(o.Status),
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
	for _, item := range o.Items {
		doc.Items = append(doc.Items, newCartLineDocument(item))
	}
	for _, change := range o.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusChangeDocument{Status: string(change.Status), At: change.At, Actor: change.Actor})
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	o := domain.Order{
		ID:                   id,
		UserID:               d.UserID,
		CustomerName:         d.CustomerName,
		CustomerEmail:        d.CustomerEmail,
		CustomerPhone:        d.CustomerPhone,
		ShippingAddress:      d.ShippingAddress,
		Address:              domain.Address(d.Address),
		Region:               d.Region,
		Subtotal:             d.Subtotal,
		ShippingFee:          d.ShippingFee,
		PointsRedeemed:       d.PointsRedeemed,
		DiscountApplied:      d.DiscountApplied,
		Total:                d.Total,
		PointsEarned:         d.PointsEarned,
		Provider:             d.Provider,
		PaymentReference:     d.PaymentReference,
		TransactionReference: d.TransactionReference,
		Status:               domain.OrderStatus(d.Status),
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
	for _, item := range d.Items {
		o.Items = append(o.Items, item.toDomain())
	}
	for _, change := range d.StatusHistory {
		o.StatusHistory = append(o.StatusHistory, domain.OrderStatusChange{Status: domain.OrderStatus(change.Status), At: change.At, Actor: change.Actor})
	}
	return o
}
