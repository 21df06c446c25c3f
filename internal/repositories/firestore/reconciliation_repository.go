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

const reconciliationCollection = "reconciliations"

// ReconciliationRepository stores failed post-payment writes.
type ReconciliationRepository struct {
	base *pfirestore.BaseRepository[reconciliationDocument]
}

var _ repositories.ReconciliationRepository = (*ReconciliationRepository)(nil)

// NewReconciliationRepository constructs a Firestore-backed reconciliation repository.
func NewReconciliationRepository(provider *pfirestore.Provider) (*ReconciliationRepository, error) {
	if provider == nil {
		return nil, errors.New("reconciliation repository requires firestore provider")
	}
	return &ReconciliationRepository{base: pfirestore.NewBaseRepository[reconciliationDocument](provider, reconciliationCollection)}, nil
}

// Create stores a new reconciliation item.
func (r *ReconciliationRepository) Create(ctx context.Context, rec domain.Reconciliation) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("reconciliation repository: id is required")
	}
	return r.base.Create(ctx, rec.ID, newReconciliationDocument(rec))
}

// Get loads one item.
func (r *ReconciliationRepository) Get(ctx context.Context, id string) (domain.Reconciliation, error) {
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List pages through items in a given state, newest first. An empty status lists everything.
func (r *ReconciliationRepository) List(ctx context.Context, status domain.ReconciliationStatus, pager domain.Pagination) (domain.CursorPage[domain.Reconciliation], error) {
	coll, err := r.base.CollectionRef(ctx)
	if err != nil {
		return domain.CursorPage[domain.Reconciliation]{}, err
	}
	query := coll.Query
	if status != "" {
		query = query.Where("status", "==", string(status))
	}
	query, size, err := pagedQuery(query, pager)
	if err != nil {
		return domain.CursorPage[domain.Reconciliation]{}, err
	}
	docs, err := r.base.Query(ctx, func(firestore.Query) firestore.Query { return query })
	if err != nil {
		return domain.CursorPage[domain.Reconciliation]{}, err
	}
	return buildPage(docs, size,
		func(d reconciliationDocument) time.Time { return d.CreatedAt },
		func(doc pfirestore.Document[reconciliationDocument]) domain.Reconciliation { return doc.Data.toDomain(doc.ID) })
}

// Update replaces the stored item.
func (r *ReconciliationRepository) Update(ctx context.Context, rec domain.Reconciliation) error {
	return r.base.Set(ctx, rec.ID, newReconciliationDocument(rec))
}

type reconciliationDocument struct {
	Kind                 string     `firestore:"kind"`
	OrderID              string     `firestore:"orderId"`
	PaymentReference     string     `firestore:"paymentReference"`
	TransactionReference string     `firestore:"transactionReference,omitempty"`
	UserID               string     `firestore:"userId,omitempty"`
	CustomerEmail        string     `firestore:"customerEmail,omitempty"`
	Amount               int64      `firestore:"amount"`
	PointsDelta          int64      `firestore:"pointsDelta"`
	Error                string     `firestore:"error"`
	Status               string     `firestore:"status"`
	Attempts             int        `firestore:"attempts"`
	Note                 string     `firestore:"note,omitempty"`
	CreatedAt            time.Time  `firestore:"createdAt"`
	UpdatedAt            time.Time  `firestore:"updatedAt"`
	ResolvedAt           *time.Time `firestore:"resolvedAt,omitempty"`
	ResolvedBy           string     `firestore:"resolvedBy,omitempty"`
}

func newReconciliationDocument(rec domain.Reconciliation) reconciliationDocument {
	return reconciliationDocument{
		Kind:                 string(rec.Kind),
		OrderID:              rec.OrderID,
		PaymentReference:     rec.PaymentReference,
		TransactionReference: rec.TransactionReference,
		UserID:               rec.UserID,
		CustomerEmail:        rec.CustomerEmail,
		Amount:               rec.Amount,
		PointsDelta:          rec.PointsDelta,
		Error:                rec.Error,
		Status:               string(rec.Status),
		Attempts:             rec.Attempts,
		Note:                 rec.Note,
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
		ResolvedAt:           rec.ResolvedAt,
		ResolvedBy:           rec.ResolvedBy,
	}
}

func (d reconciliationDocument) toDomain(id string) domain.Reconciliation {
	return domain.Reconciliation{
		ID:                   id,
		Kind:                 domain.ReconciliationKind(d.Kind),
		OrderID:              d.OrderID,
		PaymentReference:     d.PaymentReference,
		TransactionReference: d.TransactionReference,
		UserID:               d.UserID,
		CustomerEmail:        d.CustomerEmail,
		Amount:               d.Amount,
		PointsDelta:          d.PointsDelta,
		Error:                d.Error,
		Status:               domain.ReconciliationStatus(d.Status),
		Attempts:             d.Attempts,
		Note:                 d.Note,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
		ResolvedAt:           d.ResolvedAt,
		ResolvedBy:           d.ResolvedBy,
	}
}
