package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
)

// MonnifySignatureHeader carries the hex HMAC-SHA512 of the raw body keyed by the merchant secret.
const MonnifySignatureHeader = "monnify-signature"

const maxWebhookBody = 1 << 20

// ErrSignatureMismatch is returned when a webhook signature does not match the payload.
var ErrSignatureMismatch = errors.New("auth: webhook signature mismatch")

// SecretSource yields the current signing secret; it is consulted per request so rotations apply.
type SecretSource func(ctx context.Context) (string, error)

// ComputeMonnifySignature returns the expected signature for body.
func ComputeMonnifySignature(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyMonnifySignature checks signature against body in constant time.
func VerifyMonnifySignature(secret string, body []byte, signature string) error {
	expected := ComputeMonnifySignature(secret, body)
	given := strings.ToLower(strings.TrimSpace(signature))
	if !hmac.Equal([]byte(expected), []byte(given)) {
		return ErrSignatureMismatch
	}
	return nil
}

// RequireMonnifySignature rejects webhook calls whose body was not signed with the merchant secret.
// The body is restored so handlers can decode it.
func RequireMonnifySignature(secret SecretSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == nil {
				respondAuthError(w, r, http.StatusServiceUnavailable, "verification_unavailable", "webhook secret not configured")
				return
			}
			key, err := secret(r.Context())
			if err != nil || strings.TrimSpace(key) == "" {
				respondAuthError(w, r, http.StatusServiceUnavailable, "verification_unavailable", "webhook secret not configured")
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			if err != nil {
				respondAuthError(w, r, http.StatusBadRequest, "invalid_body", "unable to read request body")
				return
			}
			_ = r.Body.Close()
			if err := VerifyMonnifySignature(key, body, r.Header.Get(MonnifySignatureHeader)); err != nil {
				respondAuthError(w, r, http.StatusUnauthorized, "invalid_signature", "webhook signature mismatch")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
