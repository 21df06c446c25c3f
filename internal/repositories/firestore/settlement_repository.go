package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/optimistics/storefront/internal/domain"
	pfirestore "github.com/optimistics/storefront/internal/platform/firestore"
	"github.com/optimistics/storefront/internal/repositories"
)

// SettlementRepository writes the order, the session outcome and the loyalty increment in one
// Firestore transaction.
type SettlementRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	sessions *pfirestore.BaseRepository[checkoutSessionDocument]
	users    *pfirestore.BaseRepository[userDocument]
	now      func() time.Time
}

var _ repositories.SettlementRepository = (*SettlementRepository)(nil)

// NewSettlementRepository constructs the transactional settlement writer.
func NewSettlementRepository(provider *pfirestore.Provider) (*SettlementRepository, error) {
	if provider == nil {
		return nil, errors.New("settlement repository requires firestore provider")
	}
	return &SettlementRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, orderCollection),
		sessions: pfirestore.NewBaseRepository[checkoutSessionDocument](provider, checkoutSessionCollection),
		users:    pfirestore.NewBaseRepository[userDocument](provider, userCollection),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Settle implements repositories.SettlementRepository.
func (r *SettlementRepository) Settle(ctx context.Context, order domain.Order, pointsDelta int64) error {
	orderRef, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	sessionRef, err := r.sessions.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	var userRef *firestore.DocumentRef
	uid := strings.TrimSpace(order.UserID)
	if uid != "" && pointsDelta != 0 {
		if userRef, err = r.users.DocumentRef(ctx, uid); err != nil {
			return err
		}
	}

	now := r.now()
	doc := newOrderDocument(order)
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Firestore requires every read before the first write.
		if userRef != nil {
			if _, err := checkLedger(tx, userRef, pointsDelta); err != nil {
				return err
			}
		}
		if err := tx.Create(orderRef, doc); err != nil {
			return err
		}
		if err := tx.Set(sessionRef, map[string]any{
			"status":            string(domain.CheckoutSessionSettled),
			"providerReference": order.TransactionReference,
			"updatedAt":         now,
		}, firestore.MergeAll); err != nil {
			return err
		}
		if userRef != nil {
			return tx.Update(userRef, ledgerUpdates(pointsDelta, now))
		}
		return nil
	})
}
