package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/platform/textutil"
)

const (
	defaultStoreName      = "Optimistics"
	defaultPublishTimeout = 10 * time.Second
	nairaSign             = "₦"
)

var (
	amountPrinter = message.NewPrinter(language.English)
	nairaCurrency = currency.MustParseISO("NGN")
)

// FormatNaira renders whole-naira amounts with grouping, e.g. ₦40,000.
func FormatNaira(amount int64) string {
	if amount < 0 {
		return "-" + nairaSign + amountPrinter.Sprintf("%d", -amount)
	}
	return nairaSign + amountPrinter.Sprintf("%d", amount)
}

type emailPublisher interface {
	PublishEmail(ctx context.Context, job domain.EmailJob) (string, error)
}

// NotificationServiceDeps wires the email queue.
type NotificationServiceDeps struct {
	Publisher      emailPublisher
	StoreName      string
	PublishTimeout time.Duration
	// Go runs a publish in the background. Defaults to a goroutine.
	Go     func(task func())
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	publisher emailPublisher
	store     string
	timeout   time.Duration
	spawn     func(task func())
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewNotificationService constructs the transactional email service.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Publisher == nil {
		return nil, errors.New("notification service: email publisher is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	spawn := deps.Go
	if spawn == nil {
		spawn = func(task func()) { go task() }
	}
	timeout := deps.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	store := strings.TrimSpace(deps.StoreName)
	if store == "" {
		store = defaultStoreName
	}
	return &notificationService{
		publisher: deps.Publisher,
		store:     store,
		timeout:   timeout,
		spawn:     spawn,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *notificationService) OrderConfirmation(ctx context.Context, order Order) {
	s.send(ctx, domain.EmailJob{
		Kind:      domain.EmailOrderConfirmation,
		To:        order.CustomerEmail,
		Name:      order.CustomerName,
		Subject:   "Your " + s.store + " order " + order.ID + " is confirmed",
		OrderID:   order.ID,
		Variables: orderVariables(order),
	})
}

func (s *notificationService) PaymentReceipt(ctx context.Context, order Order) {
	vars := orderVariables(order)
	vars["paymentReference"] = order.PaymentReference
	vars["transactionReference"] = order.TransactionReference
	vars["provider"] = order.Provider
	s.send(ctx, domain.EmailJob{
		Kind:      domain.EmailPaymentReceipt,
		To:        order.CustomerEmail,
		Name:      order.CustomerName,
		Subject:   "Payment receipt for order " + order.ID,
		OrderID:   order.ID,
		Variables: vars,
	})
}

// OrderStatusChanged emails shipped and delivered transitions; other statuses are ignored.
func (s *notificationService) OrderStatusChanged(ctx context.Context, order Order) {
	var (
		kind    domain.EmailKind
		subject string
	)
	switch order.Status {
	case domain.OrderStatusShipped:
		kind, subject = domain.EmailOrderShipped, "Your order "+order.ID+" is on its way"
	case domain.OrderStatusDelivered:
		kind, subject = domain.EmailOrderDelivered, "Your order "+order.ID+" has been delivered"
	default:
		return
	}
	vars := orderVariables(order)
	vars["status"] = string(order.Status)
	s.send(ctx, domain.EmailJob{
		Kind:      kind,
		To:        order.CustomerEmail,
		Name:      order.CustomerName,
		Subject:   subject,
		OrderID:   order.ID,
		Variables: vars,
	})
}

func (s *notificationService) Welcome(ctx context.Context, profile UserProfile) {
	s.send(ctx, domain.EmailJob{
		Kind:    domain.EmailWelcome,
		To:      profile.Email,
		Name:    profile.Name,
		Subject: "Welcome to " + s.store,
		Variables: map[string]string{
			"points": strconv.FormatInt(profile.LoyaltyPoints, 10),
			"store":  s.store,
		},
	})
}

func (s *notificationService) send(ctx context.Context, job domain.EmailJob) {
	job.To = strings.TrimSpace(job.To)
	if job.To == "" {
		s.logger(ctx, "notification.skipped", map[string]any{
			"kind":    string(job.Kind),
			"orderId": job.OrderID,
			"reason":  "missing recipient",
		})
		return
	}
	job.Variables = textutil.NormalizeStringMap(job.Variables)
	job.QueuedAt = s.now()

	detached := context.WithoutCancel(ctx)
	s.spawn(func() {
		pubCtx, cancel := context.WithTimeout(detached, s.timeout)
		defer cancel()
		id, err := s.publisher.PublishEmail(pubCtx, job)
		if err != nil {
			s.logger(detached, "notification.publish_failed", map[string]any{
				"kind":    string(job.Kind),
				"orderId": job.OrderID,
				"error":   err.Error(),
			})
			return
		}
		s.logger(detached, "notification.queued", map[string]any{
			"kind":      string(job.Kind),
			"orderId":   job.OrderID,
			"messageId": id,
		})
	})
}

func orderVariables(order Order) map[string]string {
	count := 0
	for _, item := range order.Items {
		count += item.Quantity
	}
	return map[string]string{
		"orderId":        order.ID,
		"currency":       nairaCurrency.String(),
		"subtotal":       FormatNaira(order.Subtotal),
		"shippingFee":    FormatNaira(order.ShippingFee),
		"discount":       FormatNaira(order.DiscountApplied),
		"total":          FormatNaira(order.Total),
		"pointsEarned":   strconv.FormatInt(order.PointsEarned, 10),
		"pointsRedeemed": strconv.FormatInt(order.PointsRedeemed, 10),
		"itemCount":      strconv.Itoa(count),
		"address":        order.ShippingAddress,
	}
}
