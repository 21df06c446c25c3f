package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/optimistics/storefront/internal/domain"
	pfirestore "github.com/optimistics/storefront/internal/platform/firestore"
	"github.com/optimistics/storefront/internal/repositories"
)

const checkoutSessionCollection = "checkoutSessions"

// CheckoutSessionRepository stores started checkouts keyed by order id.
type CheckoutSessionRepository struct {
	base *pfirestore.BaseRepository[checkoutSessionDocument]
	now  func() time.Time
}

var _ repositories.CheckoutSessionRepository = (*CheckoutSessionRepository)(nil)

// NewCheckoutSessionRepository constructs a Firestore-backed checkout session repository.
func NewCheckoutSessionRepository(provider *pfirestore.Provider) (*CheckoutSessionRepository, error) {
	if provider == nil {
		return nil, errors.New("checkout session repository requires firestore provider")
	}
	return &CheckoutSessionRepository{
		base: pfirestore.NewBaseRepository[checkoutSessionDocument](provider, checkoutSessionCollection),
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create stores a new session; an existing order id is a conflict.
func (r *CheckoutSessionRepository) Create(ctx context.Context, session domain.CheckoutSession) error {
	if strings.TrimSpace(session.OrderID) == "" {
		return errors.New("checkout session repository: order id is required")
	}
	return r.base.Create(ctx, session.OrderID, newCheckoutSessionDocument(session))
}

// Get loads a session by order id.
func (r *CheckoutSessionRepository) Get(ctx context.Context, orderID string) (domain.CheckoutSession, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// UpdateStatus records the session outcome and, when known, the provider's transaction reference.
func (r *CheckoutSessionRepository) UpdateStatus(ctx context.Context, orderID string, status domain.CheckoutSessionStatus, providerRef string) error {
	updates := []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: r.now()},
	}
	if ref := strings.TrimSpace(providerRef); ref != "" {
		updates = append(updates, firestore.Update{Path: "providerReference", Value: ref})
	}
	return r.base.Update(ctx, orderID, updates)
}

type checkoutSessionDocument struct {
	PaymentReference  string             `firestore:"paymentReference"`
	OwnerKey          string             `firestore:"ownerKey"`
	UserID            string             `firestore:"userId,omitempty"`
	Contact           contactDocument    `firestore:"contact"`
	Address           addressDocument    `firestore:"address"`
	Region            string             `firestore:"region"`
	Lines             []cartLineDocument `firestore:"lines"`
	Quote             quoteDocument      `firestore:"quote"`
	Provider          string             `firestore:"provider"`
	ProviderReference string             `firestore:"providerReference,omitempty"`
	CheckoutURL       string             `firestore:"checkoutUrl,omitempty"`
	Status            string             `firestore:"status"`
	CreatedAt         time.Time          `firestore:"createdAt"`
	UpdatedAt         time.Time          `firestore:"updatedAt"`
	ExpiresAt         time.Time          `firestore:"expiresAt"`
}

type contactDocument struct {
	FirstName string `firestore:"firstName"`
	LastName  string `firestore:"lastName"`
	Email     string `firestore:"email"`
	Phone     string `firestore:"phone"`
}

type quoteDocument struct {
	Count           int    `firestore:"count"`
	Subtotal        int64  `firestore:"subtotal"`
	ShippingFee     int64  `firestore:"shippingFee"`
	PointsRedeemed  int64  `firestore:"pointsRedeemed"`
	Discount        int64  `firestore:"discount"`
	Total           int64  `firestore:"total"`
	PointsEarned    int64  `firestore:"pointsEarned"`
	Region          string `firestore:"region"`
	ShippingPending bool   `firestore:"shippingPending"`
	PointsBalance   int64  `firestore:"pointsBalance"`
	MaxRedeemable   int64  `firestore:"maxRedeemable"`
}

func newCheckoutSessionDocument(s domain.CheckoutSession) checkoutSessionDocument {
	doc := checkoutSessionDocument{
		PaymentReference:  s.PaymentReference,
		OwnerKey:          s.OwnerKey,
		UserID:            s.UserID,
		Contact:           contactDocument(s.Contact),
		Address:           addressDocument(s.Address),
		Region:            s.Region,
		Lines:             make([]cartLineDocument, 0, len(s.Lines)),
		Quote:             quoteDocument(s.Quote),
		Provider:          s.Provider,
		ProviderReference: s.ProviderReference,
		CheckoutURL:       s.CheckoutURL,
		Status:            string(s.Status),
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		ExpiresAt:         s.ExpiresAt,
	}
	for _, line := range s.Lines {
		doc.Lines = append(doc.Lines, newCartLineDocument(line))
	}
	return doc
}

func (d checkoutSessionDocument) toDomain(orderID string) domain.CheckoutSession {
	s := domain.CheckoutSession{
		OrderID:           orderID,
		PaymentReference:  d.PaymentReference,
		OwnerKey:          d.OwnerKey,
		UserID:            d.UserID,
		Contact:           domain.Contact(d.Contact),
		Address:           domain.Address(d.Address),
		Region:            d.Region,
		Quote:             domain.Quote(d.Quote),
		Provider:          d.Provider,
		ProviderReference: d.ProviderReference,
		CheckoutURL:       d.CheckoutURL,
		Status:            domain.CheckoutSessionStatus(d.Status),
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		ExpiresAt:         d.ExpiresAt,
	}
	for _, line := range d.Lines {
		s.Lines = append(s.Lines, line.toDomain())
	}
	return s
}
