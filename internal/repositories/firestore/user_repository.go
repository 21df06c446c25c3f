package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/optimistics/storefront/internal/domain"
	pfirestore "github.com/optimistics/storefront/internal/platform/firestore"
	"github.com/optimistics/storefront/internal/repositories"
)

const userCollection = "users"

// UserRepository persists user profiles and their loyalty balance.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
	now      func() time.Time
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		base:     pfirestore.NewBaseRepository[userDocument](provider, userCollection),
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Get loads the profile by uid.
func (r *UserRepository) Get(ctx context.Context, uid string) (domain.UserProfile, error) {
	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Create stores a new profile and fails with a conflict when one already exists.
func (r *UserRepository) Create(ctx context.Context, profile domain.UserProfile) error {
	uid := strings.TrimSpace(profile.UID)
	if uid == "" {
		return errors.New("user repository: uid is required")
	}
	now := r.now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	return r.base.Create(ctx, uid, newUserDocument(profile))
}

// AdjustPoints increments the balance atomically after checking the result stays non-negative.
func (r *UserRepository) AdjustPoints(ctx context.Context, uid string, delta int64) (int64, error) {
	ref, err := r.base.DocumentRef(ctx, uid)
	if err != nil {
		return 0, err
	}
	var balance int64
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		next, err := checkLedger(tx, ref, delta)
		if err != nil {
			return err
		}
		balance = next
		return tx.Update(ref, ledgerUpdates(delta, r.now()))
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// SetRole records the role on the profile document.
func (r *UserRepository) SetRole(ctx context.Context, uid string, role string) error {
	return r.base.Update(ctx, uid, []firestore.Update{
		{Path: "role", Value: role},
		{Path: "updatedAt", Value: r.now()},
	})
}

// checkLedger reads the user inside tx and returns the balance after applying delta.
func checkLedger(tx *firestore.Transaction, ref *firestore.DocumentRef, delta int64) (int64, error) {
	const op = "users.ledger"
	snap, err := tx.Get(ref)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return 0, pfirestore.ConflictError(op, fmt.Errorf("%w: user %s not found", repositories.ErrLedgerRejected, ref.ID))
		}
		return 0, pfirestore.WrapError(op, err)
	}
	var doc userDocument
	if err := snap.DataTo(&doc); err != nil {
		return 0, fmt.Errorf("%s: decode %s: %w", op, ref.ID, err)
	}
	next := doc.LoyaltyPoints + delta
	if next < 0 {
		return 0, pfirestore.ConflictError(op, fmt.Errorf("%w: balance %d cannot absorb %d", repositories.ErrLedgerRejected, doc.LoyaltyPoints, delta))
	}
	return next, nil
}

func ledgerUpdates(delta int64, now time.Time) []firestore.Update {
	return []firestore.Update{
		{Path: "loyaltyPoints", Value: firestore.Increment(delta)},
		{Path: "updatedAt", Value: now},
	}
}

type userDocument struct {
	UID           string    `firestore:"uid"`
	Name          string    `firestore:"name"`
	Email         string    `firestore:"email"`
	Role          string    `firestore:"role"`
	LoyaltyPoints int64     `firestore:"loyaltyPoints"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func newUserDocument(p domain.UserProfile) userDocument {
	return userDocument{
		UID:           p.UID,
		Name:          strings.TrimSpace(p.Name),
		Email:         strings.ToLower(strings.TrimSpace(p.Email)),
		Role:          p.Role,
		LoyaltyPoints: p.LoyaltyPoints,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (d userDocument) toDomain(id string) domain.UserProfile {
	return domain.UserProfile{
		UID:           id,
		Name:          d.Name,
		Email:         d.Email,
		Role:          d.Role,
		LoyaltyPoints: d.LoyaltyPoints,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
