package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/optimistics/storefront/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Carts() CartRepository
	Wishlists() WishlistRepository
	Shipping() ShippingConfigRepository
	Users() UserRepository
	Orders() OrderRepository
	CheckoutSessions() CheckoutSessionRepository
	Settlement() SettlementRepository
	Submissions() SubmissionRepository
	Testimonials() ContentRepository[domain.Testimonial]
	Gallery() ContentRepository[domain.GalleryImage]
	Blog() ContentRepository[domain.BlogPost]
	Reconciliations() ReconciliationRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ErrLedgerRejected is returned when a loyalty increment cannot be applied, either because the
// resulting balance would be negative or because the user record does not exist.
var ErrLedgerRejected = errors.New("repositories: loyalty ledger write rejected")

// ProductRepository persists catalog entries.
type ProductRepository interface {
	List(ctx context.Context, filter ProductListFilter) ([]domain.Product, error)
	Get(ctx context.Context, productID string) (domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) (domain.Product, error)
	Delete(ctx context.Context, productID string) error
}

// ProductListFilter narrows product listings.
type ProductListFilter struct {
	Category       string
	BestsellerOnly bool
	Limit          int
}

// CartRepository stores one cart document per owner key.
type CartRepository interface {
	Get(ctx context.Context, ownerKey string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
	Delete(ctx context.Context, ownerKey string) error
}

// WishlistRepository stores one wishlist document per owner key.
type WishlistRepository interface {
	Get(ctx context.Context, ownerKey string) (domain.Wishlist, error)
	Save(ctx context.Context, wishlist domain.Wishlist) error
}

// ShippingConfigRepository reads and replaces the single shipping settings document.
type ShippingConfigRepository interface {
	Get(ctx context.Context) (domain.ShippingConfig, error)
	Save(ctx context.Context, cfg domain.ShippingConfig) (domain.ShippingConfig, error)
}

// UserRepository persists profiles and owns the loyalty balance.
type UserRepository interface {
	Get(ctx context.Context, uid string) (domain.UserProfile, error)
	// Create fails with a conflict when the profile already exists.
	Create(ctx context.Context, profile domain.UserProfile) error
	// AdjustPoints applies delta atomically and returns the new balance. A negative result is
	// rejected with ErrLedgerRejected and nothing is written.
	AdjustPoints(ctx context.Context, uid string, delta int64) (int64, error)
	SetRole(ctx context.Context, uid string, role string) error
}

// OrderRepository persists settled orders.
type OrderRepository interface {
	// Create fails with a conflict when the id is already taken.
	Create(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// UpdateStatus moves the order from `from` to change.Status. It fails with a conflict when the
	// stored status no longer equals `from`.
	UpdateStatus(ctx context.Context, orderID string, from domain.OrderStatus, change domain.OrderStatusChange) (domain.Order, error)
	Delete(ctx context.Context, orderID string) error
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID     string
	Status     domain.OrderStatus
	Pagination domain.Pagination
}

// CheckoutSessionRepository stores checkouts between Begin and Complete.
type CheckoutSessionRepository interface {
	Create(ctx context.Context, session domain.CheckoutSession) error
	Get(ctx context.Context, orderID string) (domain.CheckoutSession, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.CheckoutSessionStatus, providerRef string) error
}

// SettlementRepository applies the post-payment writes atomically.
type SettlementRepository interface {
	// Settle creates the order, marks the checkout session settled and, when order.UserID is set
	// and pointsDelta is non-zero, increments the user's balance, all in one transaction.
	// ErrLedgerRejected is returned (and nothing is written) when the increment is not allowed.
	Settle(ctx context.Context, order domain.Order, pointsDelta int64) error
}

// SubmissionRepository persists customer submissions awaiting moderation.
type SubmissionRepository interface {
	Create(ctx context.Context, submission domain.Submission) error
	Get(ctx context.Context, submissionID string) (domain.Submission, error)
	ListByStatus(ctx context.Context, status domain.SubmissionStatus, pager domain.Pagination) (domain.CursorPage[domain.Submission], error)
	Reject(ctx context.Context, submissionID string, at time.Time) error
	// ApproveTestimonial writes the testimonial and deletes the pending submission in one transaction.
	ApproveTestimonial(ctx context.Context, submissionID string, testimonial domain.Testimonial) error
	// ApproveResult writes the gallery image and deletes the pending submission in one transaction.
	ApproveResult(ctx context.Context, submissionID string, image domain.GalleryImage) error
}

// ContentRepository is the shared shape of the published content collections.
type ContentRepository[T any] interface {
	List(ctx context.Context, limit int) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Save(ctx context.Context, item T) error
	Delete(ctx context.Context, id string) error
}

// ReconciliationRepository stores failed post-payment writes for operators.
type ReconciliationRepository interface {
	Create(ctx context.Context, rec domain.Reconciliation) error
	Get(ctx context.Context, id string) (domain.Reconciliation, error)
	List(ctx context.Context, status domain.ReconciliationStatus, pager domain.Pagination) (domain.CursorPage[domain.Reconciliation], error)
	Update(ctx context.Context, rec domain.Reconciliation) error
}

// HealthRepository reports dependency readiness.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
