package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 60 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultLogLevel            = "info"
	defaultEnvironment         = "local"
	defaultCurrency            = "NGN"
	defaultPaymentProvider     = "monnify"
	defaultMonnifyBaseURL      = "https://sandbox.monnify.com"
	defaultAwaitTimeout        = 45 * time.Second
	defaultPollInterval        = 2 * time.Second
	defaultSessionTTL          = 30 * time.Minute
	defaultShippingFee         = 3000
	defaultFreeShipping        = 50000
	defaultSignupBonus         = 200
	defaultUploadURLTTL        = 15 * time.Minute
	defaultEmailTopic          = "storefront-emails"
	defaultReconciliationTopic = "storefront-reconciliations"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer          = "https://accounts.google.com"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	Storage   StorageConfig
	PubSub    PubSubConfig
	Payments  PaymentsConfig
	Checkout  CheckoutConfig
	Loyalty   LoyaltyConfig
	Security  SecurityConfig
	Secrets   SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

// LogConfig sets the zap log level.
type LogConfig struct {
	Level string
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig configures signed uploads for customer images.
type StorageConfig struct {
	UploadsBucket         string
	SignerCredentialsFile string
	UploadURLTTL          time.Duration
}

// PubSubConfig lists the topics used for asynchronous work.
type PubSubConfig struct {
	ProjectID           string
	EmulatorHost        string
	EmailTopic          string
	ReconciliationTopic string
}

// PaymentsConfig selects and configures payment gateways.
type PaymentsConfig struct {
	DefaultProvider string
	Currency        string
	AwaitTimeout    time.Duration
	PollInterval    time.Duration
	Monnify         MonnifyConfig
	Stripe          StripeConfig
}

// MonnifyConfig holds the hosted-widget gateway credentials.
type MonnifyConfig struct {
	BaseURL      string
	APIKey       string
	SecretKey    string
	ContractCode string
	TestMode     bool
}

// StripeConfig holds Stripe Checkout settings.
type StripeConfig struct {
	APIKey     string
	SuccessURL string
	CancelURL  string
}

// CheckoutConfig tunes checkout sessions and the fallback shipping table.
type CheckoutConfig struct {
	SessionTTL            time.Duration
	LenientPricing        bool
	DefaultShippingFee    int64
	FreeShippingThreshold int64
}

// LoyaltyConfig configures the points programme.
type LoyaltyConfig struct {
	SignupBonus int64
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification for internal endpoints.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// SecretsConfig configures secret:// resolution.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to empty values.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed secret identifiers safe for logging.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Payments.Monnify.SecretKey") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// EnvironmentValues returns the merged key/value environment (dotenv < OS env < explicit map)
// so callers can build dependencies such as the secret fetcher before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	dotenv, err := readDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotenv))
	for k, v := range dotenv {
		values[k] = v
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[key] = value
			}
		}
	}
	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

// Load assembles the application configuration from defaults, .env overrides, environment
// variables and secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	dotenv, err := readDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotenv[key]
		return value, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:           stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", defaultPort),
			ReadTimeout:    durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			AllowedOrigins: csvWithDefault(lookup, "STOREFRONT_SERVER_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level: stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "STOREFRONT_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "STOREFRONT_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "STOREFRONT_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "STOREFRONT_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			UploadsBucket:         stringWithDefault(lookup, "STOREFRONT_STORAGE_UPLOADS_BUCKET", ""),
			SignerCredentialsFile: stringWithDefault(lookup, "STOREFRONT_STORAGE_SIGNER_CREDENTIALS_FILE", ""),
			UploadURLTTL:          durationWithDefault(lookup, "STOREFRONT_STORAGE_UPLOAD_URL_TTL", defaultUploadURLTTL),
		},
		PubSub: PubSubConfig{
			ProjectID:           stringWithDefault(lookup, "STOREFRONT_PUBSUB_PROJECT_ID", ""),
			EmulatorHost:        stringWithDefault(lookup, "PUBSUB_EMULATOR_HOST", ""),
			EmailTopic:          stringWithDefault(lookup, "STOREFRONT_PUBSUB_EMAIL_TOPIC", defaultEmailTopic),
			ReconciliationTopic: stringWithDefault(lookup, "STOREFRONT_PUBSUB_RECONCILIATION_TOPIC", defaultReconciliationTopic),
		},
		Payments: PaymentsConfig{
			DefaultProvider: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_PAYMENTS_DEFAULT_PROVIDER", defaultPaymentProvider)),
			Currency:        strings.ToUpper(stringWithDefault(lookup, "STOREFRONT_PAYMENTS_CURRENCY", defaultCurrency)),
			AwaitTimeout:    durationWithDefault(lookup, "STOREFRONT_PAYMENTS_AWAIT_TIMEOUT", defaultAwaitTimeout),
			PollInterval:    durationWithDefault(lookup, "STOREFRONT_PAYMENTS_POLL_INTERVAL", defaultPollInterval),
			Monnify: MonnifyConfig{
				BaseURL:      stringWithDefault(lookup, "STOREFRONT_MONNIFY_BASE_URL", defaultMonnifyBaseURL),
				APIKey:       stringWithDefault(lookup, "STOREFRONT_MONNIFY_API_KEY", ""),
				SecretKey:    stringWithDefault(lookup, "STOREFRONT_MONNIFY_SECRET_KEY", ""),
				ContractCode: stringWithDefault(lookup, "STOREFRONT_MONNIFY_CONTRACT_CODE", ""),
				TestMode:     boolWithDefault(lookup, "STOREFRONT_MONNIFY_TEST_MODE", true),
			},
			Stripe: StripeConfig{
				APIKey:     stringWithDefault(lookup, "STOREFRONT_STRIPE_API_KEY", ""),
				SuccessURL: stringWithDefault(lookup, "STOREFRONT_STRIPE_SUCCESS_URL", ""),
				CancelURL:  stringWithDefault(lookup, "STOREFRONT_STRIPE_CANCEL_URL", ""),
			},
		},
		Checkout: CheckoutConfig{
			SessionTTL:            durationWithDefault(lookup, "STOREFRONT_CHECKOUT_SESSION_TTL", defaultSessionTTL),
			LenientPricing:        boolWithDefault(lookup, "STOREFRONT_CHECKOUT_LENIENT_PRICING", false),
			DefaultShippingFee:    int64WithDefault(lookup, "STOREFRONT_SHIPPING_DEFAULT_FEE", defaultShippingFee),
			FreeShippingThreshold: int64WithDefault(lookup, "STOREFRONT_SHIPPING_FREE_THRESHOLD", defaultFreeShipping),
		},
		Loyalty: LoyaltyConfig{
			SignupBonus: int64WithDefault(lookup, "STOREFRONT_LOYALTY_SIGNUP_BONUS", defaultSignupBonus),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_ENVIRONMENT", defaultEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  stringWithDefault(lookup, "STOREFRONT_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: stringWithDefault(lookup, "STOREFRONT_OIDC_AUDIENCE", ""),
				Issuers:  csvWithDefault(lookup, "STOREFRONT_OIDC_ISSUERS"),
			},
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "STOREFRONT_SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "STOREFRONT_SECRETS_FALLBACK_FILE", ""),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultOIDCIssuer}
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Payments.Monnify.APIKey", &cfg.Payments.Monnify.APIKey},
		{"Payments.Monnify.SecretKey", &cfg.Payments.Monnify.SecretKey},
		{"Payments.Stripe.APIKey", &cfg.Payments.Stripe.APIKey},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	var missing []string
	for _, name := range options.requiredSecrets {
		name = strings.TrimSpace(name)
		if name != "" && resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Config{}, &MissingSecretsError{names: missing}
	}

	return cfg, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

func readDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return map[string]string{}, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !isSecretReference(trimmed) {
		return value, nil
	}
	ref := trimmed
	if strings.HasPrefix(ref, "sm://") {
		ref = "secret://" + strings.TrimPrefix(ref, "sm://")
	}
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func isSecretReference(value string) bool {
	return strings.HasPrefix(value, "secret://") || strings.HasPrefix(value, "sm://")
}

func validateConfig(cfg Config) error {
	var invalid []string
	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		invalid = append(invalid, "Firebase.ProjectID")
	}
	if cfg.Payments.Currency == "" {
		invalid = append(invalid, "Payments.Currency")
	}
	switch cfg.Payments.DefaultProvider {
	case "monnify", "stripe":
	default:
		invalid = append(invalid, "Payments.DefaultProvider")
	}
	if cfg.Payments.AwaitTimeout <= 0 {
		invalid = append(invalid, "Payments.AwaitTimeout")
	}
	if cfg.Payments.PollInterval <= 0 {
		invalid = append(invalid, "Payments.PollInterval")
	}
	if cfg.Checkout.SessionTTL <= 0 {
		invalid = append(invalid, "Checkout.SessionTTL")
	}
	if cfg.Checkout.DefaultShippingFee < 0 {
		invalid = append(invalid, "Checkout.DefaultShippingFee")
	}
	if cfg.Checkout.FreeShippingThreshold < 0 {
		invalid = append(invalid, "Checkout.FreeShippingThreshold")
	}
	if cfg.Loyalty.SignupBonus < 0 {
		invalid = append(invalid, "Loyalty.SignupBonus")
	}
	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
