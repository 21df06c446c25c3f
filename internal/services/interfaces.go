package services

import (
	"context"
	"io"
	"time"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/payments"
	"github.com/optimistics/storefront/internal/platform/storage"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination      = domain.Pagination
	Product         = domain.Product
	Cart            = domain.Cart
	CartLine        = domain.CartLine
	CartSummary     = domain.CartSummary
	Wishlist        = domain.Wishlist
	ShippingConfig  = domain.ShippingConfig
	UserProfile     = domain.UserProfile
	Order           = domain.Order
	OrderStatus     = domain.OrderStatus
	Quote           = domain.Quote
	CheckoutSession = domain.CheckoutSession
	Submission      = domain.Submission
	Testimonial     = domain.Testimonial
	GalleryImage    = domain.GalleryImage
	BlogPost        = domain.BlogPost
	Reconciliation  = domain.Reconciliation
	HealthReport    = domain.HealthReport
)

// CartService manages per-owner cart state. Owners are user ids or guest cart session ids.
type CartService interface {
	GetCart(ctx context.Context, ownerKey string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, ownerKey, lineID string) (Cart, error)
	ClearCart(ctx context.Context, ownerKey string) error
	Summary(ctx context.Context, ownerKey string) (CartSummary, error)
	MergeGuestCart(ctx context.Context, guestKey, userID string) (Cart, error)
	Subscribe(ownerKey string, fn func(Cart)) func()
}

// WishlistService manages the saved-for-later product list.
type WishlistService interface {
	GetWishlist(ctx context.Context, ownerKey string) (Wishlist, error)
	Add(ctx context.Context, ownerKey, productID string) (Wishlist, error)
	Remove(ctx context.Context, ownerKey, productID string) (Wishlist, error)
	Contains(ctx context.Context, ownerKey, productID string) (bool, error)
}

// CheckoutService prices carts, starts hosted payments and settles completed ones.
type CheckoutService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (Quote, error)
	Begin(ctx context.Context, cmd BeginCheckoutCommand) (CheckoutStart, error)
	Complete(ctx context.Context, cmd CompleteCheckoutCommand) (Order, error)
	HandlePaymentNotification(ctx context.Context, details payments.PaymentDetails) error
}

// OrderService exposes order reads and back-office transitions.
type OrderService interface {
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
	ExportOrders(ctx context.Context, filter OrderListFilter, w io.Writer) (int, error)
}

// CatalogService serves products and applies admin product drafts.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	SaveProduct(ctx context.Context, draft domain.ProductDraft) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
}

// ShippingService reads and replaces the shipping-rate table.
type ShippingService interface {
	GetConfig(ctx context.Context) (ShippingConfig, error)
	SaveConfig(ctx context.Context, draft domain.ShippingConfigDraft) (ShippingConfig, error)
}

// ContentService manages published testimonials, gallery images and blog posts.
type ContentService interface {
	ListTestimonials(ctx context.Context, limit int) ([]Testimonial, error)
	SaveTestimonial(ctx context.Context, id string, draft domain.TestimonialDraft) (Testimonial, error)
	DeleteTestimonial(ctx context.Context, id string) error
	ListGallery(ctx context.Context, limit int) ([]GalleryImage, error)
	SaveGalleryImage(ctx context.Context, id string, draft domain.GalleryImageDraft) (GalleryImage, error)
	DeleteGalleryImage(ctx context.Context, id string) error
	ListBlogPosts(ctx context.Context, limit int) ([]BlogPost, error)
	GetBlogPost(ctx context.Context, id string) (BlogPost, error)
	SaveBlogPost(ctx context.Context, id string, draft domain.BlogPostDraft) (BlogPost, error)
	DeleteBlogPost(ctx context.Context, id string) error
}

// SubmissionService accepts customer stories and moderates them.
type SubmissionService interface {
	Submit(ctx context.Context, cmd SubmitCommand) (Submission, error)
	SignImageUpload(ctx context.Context, cmd SignImageUploadCommand) (storage.SignedUpload, error)
	ListPending(ctx context.Context, pager Pagination) (domain.CursorPage[Submission], error)
	Approve(ctx context.Context, submissionID string) error
	Reject(ctx context.Context, submissionID string) error
}

// AccountService owns user profiles and loyalty balances.
type AccountService interface {
	EnsureProfile(ctx context.Context, cmd EnsureProfileCommand) (UserProfile, error)
	GetProfile(ctx context.Context, uid string) (UserProfile, error)
	AdjustPoints(ctx context.Context, cmd AdjustPointsCommand) (int64, error)
	SetRole(ctx context.Context, uid, role string) (UserProfile, error)
}

// NotificationService queues transactional emails. Failures are logged, never returned.
type NotificationService interface {
	OrderConfirmation(ctx context.Context, order Order)
	PaymentReceipt(ctx context.Context, order Order)
	OrderStatusChanged(ctx context.Context, order Order)
	Welcome(ctx context.Context, profile UserProfile)
}

// ReconciliationService records and resolves post-payment write failures.
type ReconciliationService interface {
	Record(ctx context.Context, cmd RecordReconciliationCommand) (Reconciliation, error)
	List(ctx context.Context, status domain.ReconciliationStatus, pager Pagination) (domain.CursorPage[Reconciliation], error)
	Resolve(ctx context.Context, cmd ResolveReconciliationCommand) (Reconciliation, error)
	Retry(ctx context.Context, reconciliationID string) (Reconciliation, error)
	RetryOpen(ctx context.Context, limit int) (RetrySummary, error)
}

// SystemService reports service health for probes.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}

// AddCartItemCommand adds quantity units of a product variant to a cart.
type AddCartItemCommand struct {
	OwnerKey  string
	ProductID string
	Size      string
	Quantity  int
}

// UpdateCartItemCommand sets a line's quantity. Zero or less removes the line.
type UpdateCartItemCommand struct {
	OwnerKey string
	LineID   string
	Quantity int
}

// QuoteCommand prices the owner's cart for a region and redemption request.
type QuoteCommand struct {
	OwnerKey     string
	UserID       string
	Region       string
	RedeemPoints int64
}

// BeginCheckoutCommand starts a hosted payment for the owner's cart.
type BeginCheckoutCommand struct {
	OwnerKey          string
	UserID            string
	Contact           domain.Contact
	Address           domain.Address
	Region            string
	RedeemPoints      int64
	Currency          string
	PreferredProvider string
	RedirectURL       string
}

// CheckoutStart is what the browser needs to open the gateway widget.
type CheckoutStart struct {
	OrderID          string
	PaymentReference string
	Quote            Quote
	Payment          payments.Initialization
	ExpiresAt        time.Time
}

// CompleteCheckoutCommand reports the widget callback for a started checkout. ClientStatus is
// "completed" or "cancelled" as seen by the browser; the gateway is always consulted.
type CompleteCheckoutCommand struct {
	OrderID          string
	OwnerKey         string
	UserID           string
	ClientStatus     string
	TransactionRef   string
	PaymentReference string
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID     string
	Status     OrderStatus
	Pagination Pagination
}

// OrderStatusTransitionCommand moves an order through fulfilment.
type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
}

// ProductListFilter narrows product listings.
type ProductListFilter struct {
	Category       string
	BestsellerOnly bool
	Limit          int
}

// SubmitCommand is a public testimonial or before/after result.
type SubmitCommand struct {
	Type          domain.SubmissionType
	CustomerName  string
	Email         string
	Content       string
	Location      string
	ImageURL      string
	AfterImageURL string
}

// SignImageUploadCommand requests a signed URL for a submission image.
type SignImageUploadCommand struct {
	FileName    string
	ContentType string
}

// EnsureProfileCommand carries the identity of the signed-in caller.
type EnsureProfileCommand struct {
	UID   string
	Name  string
	Email string
}

// AdjustPointsCommand is an operator correction to a loyalty balance.
type AdjustPointsCommand struct {
	UID     string
	Delta   int64
	ActorID string
	Reason  string
}

// RecordReconciliationCommand describes a paid checkout that was not fully persisted.
type RecordReconciliationCommand struct {
	Kind  domain.ReconciliationKind
	Order Order
	Delta int64
	Cause error
}

// ResolveReconciliationCommand closes a reconciliation item.
type ResolveReconciliationCommand struct {
	ID      string
	ActorID string
	Note    string
}

// RetrySummary reports a batch retry of open ledger reconciliations.
type RetrySummary struct {
	Attempted int
	Resolved  int
	Failed    int
}
