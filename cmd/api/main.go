package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/optimistics/storefront/internal/di"
	"github.com/optimistics/storefront/internal/handlers"
	"github.com/optimistics/storefront/internal/payments"
	"github.com/optimistics/storefront/internal/platform/auth"
	"github.com/optimistics/storefront/internal/platform/config"
	pfirestore "github.com/optimistics/storefront/internal/platform/firestore"
	"github.com/optimistics/storefront/internal/platform/jobs"
	"github.com/optimistics/storefront/internal/platform/observability"
	"github.com/optimistics/storefront/internal/platform/secrets"
	platformstorage "github.com/optimistics/storefront/internal/platform/storage"
	"github.com/optimistics/storefront/internal/repositories"
	firestoreRepo "github.com/optimistics/storefront/internal/repositories/firestore"
	"github.com/optimistics/storefront/internal/services"
)

const meterName = "github.com/optimistics/storefront"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	registry, err := firestoreRepo.NewRegistry(firestoreProvider, secretManagerCheck(fetcher, envValues)...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	pubsubClient, err := jobs.NewClient(ctx, cfg.PubSub)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	emailTopic := pubsubClient.Topic(cfg.PubSub.EmailTopic)
	reconciliationTopic := pubsubClient.Topic(cfg.PubSub.ReconciliationTopic)
	defer func() {
		emailTopic.Stop()
		reconciliationTopic.Stop()
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()
	publisher, err := jobs.NewPublisher(emailTopic, reconciliationTopic)
	if err != nil {
		logger.Fatal("failed to initialise job publisher", zap.Error(err))
	}

	paymentManager, err := newPaymentManager(cfg, logger.Named("payments"))
	if err != nil {
		logger.Fatal("failed to initialise payment providers", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}

	uploader, err := newUploader(cfg)
	if err != nil {
		logger.Fatal("failed to initialise upload signer", zap.Error(err))
	}

	infra := di.Infrastructure{
		Publisher: publisher,
		Payments:  paymentManager,
		Claims:    firebaseVerifier,
		Logger:    logger,
		Build:     buildInfoFromEnv(envValues, cfg, startedAt),
	}
	if uploader != nil {
		infra.Uploader = uploader
	} else {
		logger.Warn("storage uploads bucket or signer not configured; image uploads disabled")
	}
	if metrics, err := observability.NewCheckoutMetrics(otel.Meter(meterName)); err != nil {
		logger.Warn("checkout metrics unavailable", zap.Error(err))
	} else {
		infra.Metrics = metrics
	}

	container, err := di.NewContainer(cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()
	svc := container.Services

	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithRoleLookup(profileRoleLookup(registry.Users())))

	publicHandlers := handlers.NewPublicHandlers(handlers.PublicDeps{
		Catalog:     svc.Catalog,
		Shipping:    svc.Shipping,
		Content:     svc.Content,
		Submissions: svc.Submissions,
	})
	meHandlers := handlers.NewMeHandlers(authenticator, svc.Accounts, svc.Orders)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Cart, handlers.WithStreamOrigins(cfg.Server.AllowedOrigins))
	wishlistHandlers := handlers.NewWishlistHandlers(authenticator, svc.Wishlist)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, svc.Checkout)
	adminCatalog := handlers.NewAdminCatalogHandlers(handlers.AdminCatalogDeps{
		Catalog:     svc.Catalog,
		Shipping:    svc.Shipping,
		Content:     svc.Content,
		Submissions: svc.Submissions,
	})
	adminOrders := handlers.NewAdminOrderHandlers(svc.Orders)
	adminAccounts := handlers.NewAdminAccountHandlers(svc.Accounts, svc.Reconciliations)
	webhookHandlers := handlers.NewWebhookHandlers(svc.Checkout, monnifySecretSource(cfg, fetcher, envValues))
	internalHandlers := handlers.NewInternalHandlers(svc.Reconciliations)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(infra.Build),
		handlers.WithHealthSystemService(svc.System),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(publicHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithWishlistRoutes(wishlistHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithAdminRoutes(handlers.AdminRoutes(authenticator, adminCatalog.Routes, adminOrders.Routes, adminAccounts.Routes)),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidc := buildOIDCMiddleware(logger.Named("auth"), cfg); oidc != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidc))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(opts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["STOREFRONT_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: environment,
		StartedAt:   started,
	}
}

func newPaymentManager(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider, 2)
	if strings.TrimSpace(cfg.Payments.Monnify.APIKey) != "" {
		monnify, err := payments.NewMonnifyProvider(payments.MonnifyProviderConfig{
			BaseURL:      cfg.Payments.Monnify.BaseURL,
			APIKey:       cfg.Payments.Monnify.APIKey,
			SecretKey:    cfg.Payments.Monnify.SecretKey,
			ContractCode: cfg.Payments.Monnify.ContractCode,
			TestMode:     cfg.Payments.Monnify.TestMode,
			Logger:       payments.MonnifyLogger(observability.NewEventLogger(logger, "monnify")),
		})
		if err != nil {
			return nil, err
		}
		providers[payments.ProviderMonnify] = monnify
	}
	if strings.TrimSpace(cfg.Payments.Stripe.APIKey) != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:     cfg.Payments.Stripe.APIKey,
			SuccessURL: cfg.Payments.Stripe.SuccessURL,
			CancelURL:  cfg.Payments.Stripe.CancelURL,
			Logger:     payments.StripeLogger(observability.NewEventLogger(logger, "stripe")),
		})
		if err != nil {
			return nil, err
		}
		providers[payments.ProviderStripe] = stripeProvider
	}
	return payments.NewManager(providers, payments.WithDefaultProvider(cfg.Payments.DefaultProvider))
}

func newUploader(cfg config.Config) (*platformstorage.Uploader, error) {
	bucket := strings.TrimSpace(cfg.Storage.UploadsBucket)
	credentials := strings.TrimSpace(cfg.Storage.SignerCredentialsFile)
	if bucket == "" || credentials == "" {
		return nil, nil
	}
	signer, err := platformstorage.NewServiceAccountSignerFromFile(credentials)
	if err != nil {
		return nil, err
	}
	return platformstorage.NewUploader(bucket, signer, platformstorage.WithUploadTTL(cfg.Storage.UploadURLTTL))
}

// profileRoleLookup reads the stored role for tokens without a role claim. Users who have not
// created a profile yet are customers.
func profileRoleLookup(users repositories.UserRepository) auth.RoleLookup {
	return func(ctx context.Context, uid string) (string, error) {
		profile, err := users.Get(ctx, uid)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return "", nil
			}
			return "", err
		}
		return profile.Role, nil
	}
}

// monnifySecretSource resolves the webhook secret per request when it is a secret:// reference so
// rotations apply without a restart.
func monnifySecretSource(cfg config.Config, fetcher *secrets.Fetcher, env map[string]string) auth.SecretSource {
	ref := strings.TrimSpace(env["STOREFRONT_MONNIFY_SECRET_KEY"])
	if fetcher != nil && (strings.HasPrefix(ref, "secret://") || strings.HasPrefix(ref, "sm://")) {
		return func(ctx context.Context) (string, error) {
			return fetcher.Resolve(ctx, ref)
		}
	}
	secret := cfg.Payments.Monnify.SecretKey
	return func(context.Context) (string, error) {
		if secret == "" {
			return "", errors.New("monnify secret key not configured")
		}
		return secret, nil
	}
}

func secretManagerCheck(fetcher *secrets.Fetcher, env map[string]string) []repositories.DependencyCheck {
	ref := strings.TrimSpace(env["STOREFRONT_MONNIFY_SECRET_KEY"])
	if fetcher == nil || !strings.HasPrefix(ref, "secret://") {
		return nil
	}
	return []repositories.DependencyCheck{{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, ref)
			return err
		},
	}}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	validator := auth.NewOIDCValidator(auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL), logger)
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("STOREFRONT_SECRETS_PROJECT_ID")
	if project == "" {
		project = lookup("STOREFRONT_FIREBASE_PROJECT_ID")
	}
	fallback := lookup("STOREFRONT_SECRETS_FALLBACK_FILE")
	if fallback == "" {
		fallback = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallback),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if credentials := lookup("STOREFRONT_FIREBASE_CREDENTIALS_FILE"); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the gateway credentials the selected default provider cannot run
// without.
func requiredSecretNames(env map[string]string) []string {
	switch strings.ToLower(strings.TrimSpace(env["STOREFRONT_PAYMENTS_DEFAULT_PROVIDER"])) {
	case payments.ProviderStripe:
		return []string{"Payments.Stripe.APIKey"}
	default:
		return []string{"Payments.Monnify.APIKey", "Payments.Monnify.SecretKey"}
	}
}
