package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/payments"
	"github.com/optimistics/storefront/internal/platform/config"
	"github.com/optimistics/storefront/internal/platform/observability"
	"github.com/optimistics/storefront/internal/platform/storage"
	"github.com/optimistics/storefront/internal/repositories"
	"github.com/optimistics/storefront/internal/services"
)

const liveStreamOwners = 1024

// Publisher queues transactional email and operator alerts.
type Publisher interface {
	PublishEmail(ctx context.Context, job domain.EmailJob) (string, error)
	PublishReconciliation(ctx context.Context, event domain.ReconciliationEvent) (string, error)
}

// PaymentGateway starts and looks up gateway payments.
type PaymentGateway interface {
	Initialize(ctx context.Context, pctx payments.PaymentContext, req payments.InitRequest) (payments.Initialization, error)
	LookupPayment(ctx context.Context, pctx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// ImageUploader signs direct-to-bucket uploads.
type ImageUploader interface {
	SignUpload(ctx context.Context, req storage.UploadRequest) (storage.SignedUpload, error)
}

// RoleClaims mirrors role changes onto identity tokens.
type RoleClaims interface {
	SetRoleClaim(ctx context.Context, uid, role string) error
}

// CheckoutMetrics records checkout outcomes.
type CheckoutMetrics interface {
	RecordOutcome(ctx context.Context, outcome string, total int64)
	RecordPoints(ctx context.Context, earned, redeemed int64)
}

// Infrastructure carries the adapters main builds from configuration.
type Infrastructure struct {
	Publisher Publisher
	Payments  PaymentGateway
	Uploader  ImageUploader
	Claims    RoleClaims
	Metrics   CheckoutMetrics
	Logger    *zap.Logger
	Build     services.BuildInfo
	Clock     func() time.Time
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Catalog         services.CatalogService
	Shipping        services.ShippingService
	Content         services.ContentService
	Submissions     services.SubmissionService
	Cart            services.CartService
	Wishlist        services.WishlistService
	Accounts        services.AccountService
	Orders          services.OrderService
	Checkout        services.CheckoutService
	Reconciliations services.ReconciliationService
	Notifications   services.NotificationService
	System          services.SystemService
	// Awaiter is shared by checkout and the webhook path.
	Awaiter *payments.Awaiter
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies over reg and infra.
func NewContainer(cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Publisher == nil {
		return nil, errors.New("job publisher is required")
	}
	if infra.Payments == nil {
		return nil, errors.New("payment gateway is required")
	}
	if infra.Logger == nil {
		infra.Logger = zap.NewNop()
	}
	if infra.Clock == nil {
		infra.Clock = time.Now
	}

	svc, err := buildServices(cfg, reg, infra)
	if err != nil {
		return nil, err
	}
	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func fallbackShipping(cfg config.Config) services.ShippingConfig {
	return services.ShippingConfig{
		DefaultFee:            cfg.Checkout.DefaultShippingFee,
		FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
	}
}

func buildServices(cfg config.Config, reg repositories.Registry, infra Infrastructure) (Services, error) {
	var svc Services
	var err error
	logFor := func(name string) observability.EventLogger {
		return observability.NewEventLogger(infra.Logger, name)
	}

	var pricingOpts []services.PricingOption
	if cfg.Checkout.LenientPricing {
		pricingOpts = append(pricingOpts, services.LenientPricing())
	}

	if svc.Notifications, err = services.NewNotificationService(services.NotificationServiceDeps{
		Publisher: infra.Publisher,
		Clock:     infra.Clock,
		Logger:    logFor("notifications"),
	}); err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}

	if svc.Catalog, err = services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
		Clock:    infra.Clock,
		Logger:   logFor("catalog"),
	}); err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}

	if svc.Shipping, err = services.NewShippingService(services.ShippingServiceDeps{
		Repository: reg.Shipping(),
		Fallback:   fallbackShipping(cfg),
		Clock:      infra.Clock,
		Logger:     logFor("shipping"),
	}); err != nil {
		return Services{}, fmt.Errorf("build shipping service: %w", err)
	}

	if svc.Content, err = services.NewContentService(services.ContentServiceDeps{
		Testimonials: reg.Testimonials(),
		Gallery:      reg.Gallery(),
		Blog:         reg.Blog(),
		Clock:        infra.Clock,
		Logger:       logFor("content"),
	}); err != nil {
		return Services{}, fmt.Errorf("build content service: %w", err)
	}

	if svc.Submissions, err = services.NewSubmissionService(services.SubmissionServiceDeps{
		Repository: reg.Submissions(),
		Uploader:   infra.Uploader,
		Clock:      infra.Clock,
		Logger:     logFor("submissions"),
	}); err != nil {
		return Services{}, fmt.Errorf("build submission service: %w", err)
	}

	if svc.Cart, err = services.NewCartService(services.CartServiceDeps{
		Products:  reg.Products(),
		Carts:     reg.Carts(),
		Pricing:   services.NewPriceResolver(pricingOpts...),
		LiveCarts: liveStreamOwners,
		Clock:     infra.Clock,
		Logger:    logFor("cart"),
	}); err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}

	if svc.Wishlist, err = services.NewWishlistService(services.WishlistServiceDeps{
		Wishlists:     reg.Wishlists(),
		LiveWishlists: liveStreamOwners,
		Clock:         infra.Clock,
	}); err != nil {
		return Services{}, fmt.Errorf("build wishlist service: %w", err)
	}

	if svc.Accounts, err = services.NewAccountService(services.AccountServiceDeps{
		Users:         reg.Users(),
		Claims:        infra.Claims,
		Notifications: svc.Notifications,
		SignupBonus:   cfg.Loyalty.SignupBonus,
		Clock:         infra.Clock,
		Logger:        logFor("accounts"),
	}); err != nil {
		return Services{}, fmt.Errorf("build account service: %w", err)
	}

	if svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:        reg.Orders(),
		Notifications: svc.Notifications,
		Clock:         infra.Clock,
		Logger:        logFor("orders"),
	}); err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	if svc.Reconciliations, err = services.NewReconciliationService(services.ReconciliationServiceDeps{
		Repository: reg.Reconciliations(),
		Users:      reg.Users(),
		Publisher:  infra.Publisher,
		Clock:      infra.Clock,
		Logger:     logFor("reconciliation"),
	}); err != nil {
		return Services{}, fmt.Errorf("build reconciliation service: %w", err)
	}

	if svc.Awaiter, err = payments.NewAwaiter(infra.Payments.LookupPayment,
		payments.WithAwaitTimeout(cfg.Payments.AwaitTimeout),
		payments.WithPollInterval(cfg.Payments.PollInterval),
	); err != nil {
		return Services{}, fmt.Errorf("build payment awaiter: %w", err)
	}

	if svc.Checkout, err = services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:            svc.Cart,
		Shipping:         reg.Shipping(),
		Users:            reg.Users(),
		Sessions:         reg.CheckoutSessions(),
		Orders:           reg.Orders(),
		Settlement:       reg.Settlement(),
		Payments:         infra.Payments,
		Awaiter:          svc.Awaiter,
		Reconciliations:  svc.Reconciliations,
		Notifications:    svc.Notifications,
		Metrics:          infra.Metrics,
		FallbackShipping: fallbackShipping(cfg),
		Currency:         cfg.Payments.Currency,
		SessionTTL:       cfg.Checkout.SessionTTL,
		Clock:            infra.Clock,
		Logger:           logFor("checkout"),
	}); err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}

	build := infra.Build
	if build.Environment == "" {
		build.Environment = cfg.Security.Environment
	}
	if build.StartedAt.IsZero() {
		build.StartedAt = infra.Clock().UTC()
	}
	if svc.System, err = services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            infra.Clock,
		Build:            build,
	}); err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}

	return svc, nil
}
