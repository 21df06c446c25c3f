package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/optimistics/storefront/internal/platform/httpx"
)

const (
	defaultRoleClaim     = "role"
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// RoleLookup loads the stored role for a user, typically from the profile document.
// An empty role with a nil error means no stored role.
type RoleLookup func(ctx context.Context, uid string) (string, error)

// Authenticator wires Firebase token verification into HTTP middleware.
type Authenticator struct {
	verifier   TokenVerifier
	roleLookup RoleLookup
	roleClaim  string
	timeout    time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithRoleLookup resolves roles from persisted profiles when the token carries no role claim.
func WithRoleLookup(lookup RoleLookup) Option {
	return func(a *Authenticator) {
		a.roleLookup = lookup
	}
}

// WithRoleClaim overrides the custom claim used for role extraction.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:  verifier,
		roleClaim: defaultRoleClaim,
		timeout:   defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth rejects requests without a valid bearer token or lacking one of allowedRoles.
func (a *Authenticator) RequireFirebaseAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			identity, err := a.authenticate(r.Context(), tokenStr)
			if err != nil {
				respondVerificationError(w, r, err)
				return
			}
			if len(allowedRoles) > 0 && !hasAnyRole(identity, allowedRoles) {
				respondAuthError(w, r, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalFirebaseAuth attaches an identity when a bearer token is present and lets guests through.
// A present but invalid token is still rejected.
func (a *Authenticator) OptionalFirebaseAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			tokenStr, ok := extractBearerToken(header)
			if !ok {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "authorization header invalid")
				return
			}
			identity, err := a.authenticate(r.Context(), tokenStr)
			if err != nil {
				respondVerificationError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

var errVerifierUnavailable = errors.New("auth: verifier unavailable")

func (a *Authenticator) authenticate(ctx context.Context, tokenStr string) (*Identity, error) {
	if a == nil || a.verifier == nil {
		return nil, errVerifierUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	token, err := a.verifier.VerifyIDToken(ctx, tokenStr)
	if err != nil {
		return nil, err
	}

	identity := &Identity{
		UID:   token.UID,
		Email: claimAsString(token.Claims, "email"),
		Name:  claimAsString(token.Claims, "name"),
		Roles: rolesFromClaims(token.Claims, a.roleClaim),
	}
	if len(identity.Roles) == 0 && a.roleLookup != nil {
		role, err := a.roleLookup(ctx, identity.UID)
		if err != nil {
			return nil, err
		}
		if role = normaliseRole(role); role != "" {
			identity.Roles = []string{role}
		}
	}
	if len(identity.Roles) == 0 {
		identity.Roles = []string{RoleCustomer}
	}
	return identity, nil
}

func hasAnyRole(identity *Identity, roles []string) bool {
	for _, role := range roles {
		if identity.HasRole(role) {
			return true
		}
	}
	return false
}

func rolesFromClaims(claims map[string]any, key string) []string {
	if admin, ok := claims["admin"].(bool); ok && admin {
		return []string{RoleAdmin}
	}
	switch v := claims[key].(type) {
	case string:
		if role := normaliseRole(v); role != "" {
			return []string{role}
		}
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && normaliseRole(s) != "" {
				out = append(out, normaliseRole(s))
			}
		}
		return out
	}
	return nil
}

func claimAsString(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}

func respondVerificationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errVerifierUnavailable):
		respondAuthError(w, r, http.StatusServiceUnavailable, "verification_unavailable", "authorization service unavailable")
	case firebaseauth.IsIDTokenExpired(err):
		respondAuthError(w, r, http.StatusUnauthorized, "token_expired", "firebase id token expired")
	case firebaseauth.IsIDTokenInvalid(err):
		respondAuthError(w, r, http.StatusUnauthorized, "invalid_token", "firebase id token invalid")
	default:
		respondAuthError(w, r, http.StatusUnauthorized, "invalid_token", "firebase id token verification failed")
	}
}
