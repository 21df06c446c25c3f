package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage is a page of results with an opaque continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Product is a sellable catalog entry. Prices are whole naira.
type Product struct {
	ID          string
	Name        string
	Categories  []string
	Tags        []string
	Price       int64
	BaseSize    string
	SizePrices  map[string]int64
	Images      []string
	Description string
	Ingredients []string
	Benefits    []string
	Usage       string
	Reviews     []ProductReview
	Bestseller  bool
	InStock     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PrimaryImage returns the first image URL, if any.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// ProductReview is a customer review attached to a product.
type ProductReview struct {
	Author  string
	Rating  int
	Comment string
	Date    time.Time
}

// CartLine is a product/size pair with the unit price captured when it was added.
type CartLine struct {
	ID        string
	ProductID string
	Name      string
	Image     string
	Size      string
	UnitPrice int64
	Quantity  int
}

// LineTotal returns unit price × quantity.
func (l CartLine) LineTotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// CartLineID builds the stable line identifier used to merge repeated adds.
func CartLineID(productID, size string) string {
	return productID + "-" + size
}

// Cart holds the ordered lines for a shopper. OwnerKey is a uid or a guest session id.
type Cart struct {
	OwnerKey  string
	Lines     []CartLine
	UpdatedAt time.Time
}

// Wishlist is an ordered set of product ids.
type Wishlist struct {
	OwnerKey   string
	ProductIDs []string
	UpdatedAt  time.Time
}

// CartSummary is the aggregate of a list of cart lines.
type CartSummary struct {
	Count    int
	Subtotal int64
}

// ShippingRate overrides the default fee for one region.
type ShippingRate struct {
	Region string
	Fee    int64
}

// ShippingConfig is the shipping-rate table. Region keys are unique and matched exactly.
type ShippingConfig struct {
	DefaultFee            int64
	FreeShippingThreshold int64
	Rates                 []ShippingRate
	UpdatedAt             time.Time
}

// UserProfile is the persisted account record that owns the loyalty balance.
type UserProfile struct {
	UID           string
	Name          string
	Email         string
	Role          string
	LoyaltyPoints int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Contact is the customer contact block collected at checkout.
type Contact struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// Address is the structured delivery address.
type Address struct {
	Line1 string
	City  string
	State string
}

// String renders the address as "<address>, <city>, <state>".
func (a Address) String() string {
	return a.Line1 + ", " + a.City + ", " + a.State
}

// OrderStatus tracks fulfilment progress.
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// OrderStatusChange is one entry in an order's status history.
type OrderStatusChange struct {
	Status OrderStatus
	At     time.Time
	Actor  string
}

// Order is a settled purchase. Items and totals never change after creation.
type Order struct {
	ID                   string
	UserID               string
	CustomerName         string
	CustomerEmail        string
	CustomerPhone        string
	ShippingAddress      string
	Address              Address
	Region               string
	Items                []CartLine
	Subtotal             int64
	ShippingFee          int64
	PointsRedeemed       int64
	DiscountApplied      int64
	Total                int64
	PointsEarned         int64
	Provider             string
	PaymentReference     string
	TransactionReference string
	Status               OrderStatus
	StatusHistory        []OrderStatusChange
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Quote is the priced view of a cart for a region and redemption request.
type Quote struct {
	Count           int
	Subtotal        int64
	ShippingFee     int64
	PointsRedeemed  int64
	Discount        int64
	Total           int64
	PointsEarned    int64
	Region          string
	ShippingPending bool
	PointsBalance   int64
	MaxRedeemable   int64
}

// CheckoutSessionStatus tracks a started checkout.
type CheckoutSessionStatus string

const (
	CheckoutSessionOpen      CheckoutSessionStatus = "open"
	CheckoutSessionSettled   CheckoutSessionStatus = "settled"
	CheckoutSessionCancelled CheckoutSessionStatus = "cancelled"
	CheckoutSessionFailed    CheckoutSessionStatus = "failed"
)

// CheckoutSession is the server-side record of a checkout between Begin and Complete.
type CheckoutSession struct {
	OrderID           string
	PaymentReference  string
	OwnerKey          string
	UserID            string
	Contact           Contact
	Address           Address
	Region            string
	Lines             []CartLine
	Quote             Quote
	Provider          string
	ProviderReference string
	CheckoutURL       string
	Status            CheckoutSessionStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExpiresAt         time.Time
}

// SubmissionType distinguishes customer stories.
type SubmissionType string

const (
	SubmissionTypeTestimonial SubmissionType = "testimonial"
	SubmissionTypeResult      SubmissionType = "result"
)

// SubmissionStatus is the moderation state.
type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "pending"
	SubmissionStatusApproved SubmissionStatus = "approved"
	SubmissionStatusRejected SubmissionStatus = "rejected"
)

// Submission is a customer-contributed testimonial or before/after result awaiting moderation.
type Submission struct {
	ID            string
	Type          SubmissionType
	CustomerName  string
	Email         string
	Content       string
	Location      string
	ImageURL      string
	AfterImageURL string
	Status        SubmissionStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Testimonial is a published customer quote.
type Testimonial struct {
	ID        string
	Name      string
	Location  string
	Quote     string
	ImageURL  string
	CreatedAt time.Time
}

// GalleryImage is a published before/after pair.
type GalleryImage struct {
	ID          string
	BeforeURL   string
	AfterURL    string
	Description string
	CreatedAt   time.Time
}

// BlogPost is an article shown on the journal page.
type BlogPost struct {
	ID        string
	Title     string
	Excerpt   string
	ImageURL  string
	Author    string
	Date      time.Time
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReconciliationKind names the post-payment write that failed.
type ReconciliationKind string

const (
	ReconciliationOrderPersistFailed ReconciliationKind = "order_persist_failed"
	ReconciliationLedgerFailed       ReconciliationKind = "ledger_failed"
	ReconciliationAmountMismatch     ReconciliationKind = "amount_mismatch"
)

// ReconciliationStatus is the operator workflow state.
type ReconciliationStatus string

const (
	ReconciliationOpen     ReconciliationStatus = "open"
	ReconciliationResolved ReconciliationStatus = "resolved"
)

// Reconciliation records a paid checkout whose persistence did not fully succeed.
type Reconciliation struct {
	ID                   string
	Kind                 ReconciliationKind
	OrderID              string
	PaymentReference     string
	TransactionReference string
	UserID               string
	CustomerEmail        string
	Amount               int64
	PointsDelta          int64
	Error                string
	Status               ReconciliationStatus
	Attempts             int
	Note                 string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ResolvedAt           *time.Time
	ResolvedBy           string
}

// EmailKind enumerates transactional email templates.
type EmailKind string

const (
	EmailOrderConfirmation EmailKind = "order_confirmation"
	EmailPaymentReceipt    EmailKind = "payment_receipt"
	EmailOrderShipped      EmailKind = "order_shipped"
	EmailOrderDelivered    EmailKind = "order_delivered"
	EmailWelcome           EmailKind = "welcome"
)

// EmailJob is the payload queued for the mail worker.
type EmailJob struct {
	Kind      EmailKind         `json:"kind"`
	To        string            `json:"to"`
	Name      string            `json:"name"`
	Subject   string            `json:"subject"`
	OrderID   string            `json:"orderId,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
	QueuedAt  time.Time         `json:"queuedAt"`
}

// ReconciliationEvent is the operator queue payload.
type ReconciliationEvent struct {
	ReconciliationID string             `json:"reconciliationId"`
	Kind             ReconciliationKind `json:"kind"`
	OrderID          string             `json:"orderId"`
	PaymentReference string             `json:"paymentReference"`
	Amount           int64              `json:"amount"`
	Error            string             `json:"error"`
	OccurredAt       time.Time          `json:"occurredAt"`
}

// HealthStatus is the readiness state of the API or one of its dependencies.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// HealthCheck is the outcome of probing one dependency.
type HealthCheck struct {
	Status    HealthStatus
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency checks for /readyz.
type HealthReport struct {
	Status      HealthStatus
	Checks      map[string]HealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
