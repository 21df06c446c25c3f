package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/repositories"
)

const (
	reconciliationIDPrefix = "REC-"
	retryActor             = "retry"
	defaultRetryBatch      = 25
)

var (
	// ErrReconciliationInvalidInput indicates a malformed request.
	ErrReconciliationInvalidInput = errors.New("reconciliation: invalid input")
	// ErrReconciliationNotFound indicates the item does not exist.
	ErrReconciliationNotFound = errors.New("reconciliation: not found")
	// ErrReconciliationInvalidState indicates the item cannot be retried.
	ErrReconciliationInvalidState = errors.New("reconciliation: invalid state")
	// ErrReconciliationRetryFailed indicates the ledger increment was rejected again.
	ErrReconciliationRetryFailed = errors.New("reconciliation: retry failed")
	// ErrReconciliationUnavailable indicates storage is unavailable.
	ErrReconciliationUnavailable = errors.New("reconciliation: unavailable")
)

type reconciliationPublisher interface {
	PublishReconciliation(ctx context.Context, event domain.ReconciliationEvent) (string, error)
}

// ReconciliationServiceDeps wires the operator queue.
type ReconciliationServiceDeps struct {
	Repository  repositories.ReconciliationRepository
	Users       repositories.UserRepository
	Publisher   reconciliationPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reconciliationService struct {
	repo      repositories.ReconciliationRepository
	users     repositories.UserRepository
	publisher reconciliationPublisher
	now       func() time.Time
	newID     func() string
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewReconciliationService constructs the reconciliation queue service.
func NewReconciliationService(deps ReconciliationServiceDeps) (ReconciliationService, error) {
	if deps.Repository == nil {
		return nil, errors.New("reconciliation service: repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("reconciliation service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &reconciliationService{
		repo:      deps.Repository,
		users:     deps.Users,
		publisher: deps.Publisher,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Record stores the failure and publishes it to operators. The event is published even when the
// store write fails.
func (s *reconciliationService) Record(ctx context.Context, cmd RecordReconciliationCommand) (Reconciliation, error) {
	switch cmd.Kind {
	case domain.ReconciliationLedgerFailed, domain.ReconciliationOrderPersistFailed, domain.ReconciliationAmountMismatch:
	default:
		return Reconciliation{}, fmt.Errorf("%w: unknown kind %q", ErrReconciliationInvalidInput, cmd.Kind)
	}
	if strings.TrimSpace(cmd.Order.ID) == "" {
		return Reconciliation{}, fmt.Errorf("%w: order id is required", ErrReconciliationInvalidInput)
	}

	now := s.now()
	rec := Reconciliation{
		ID:                   reconciliationIDPrefix + s.newID(),
		Kind:                 cmd.Kind,
		OrderID:              cmd.Order.ID,
		PaymentReference:     cmd.Order.PaymentReference,
		TransactionReference: cmd.Order.TransactionReference,
		UserID:               cmd.Order.UserID,
		CustomerEmail:        cmd.Order.CustomerEmail,
		Amount:               cmd.Order.Total,
		PointsDelta:          cmd.Delta,
		Error:                errorString(cmd.Cause),
		Status:               domain.ReconciliationOpen,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	storeErr := s.repo.Create(ctx, rec)
	s.publish(ctx, rec)
	if storeErr != nil {
		return rec, s.mapRepositoryError(storeErr)
	}
	return rec, nil
}

func (s *reconciliationService) List(ctx context.Context, status domain.ReconciliationStatus, pager Pagination) (domain.CursorPage[Reconciliation], error) {
	switch status {
	case "", domain.ReconciliationOpen, domain.ReconciliationResolved:
	default:
		return domain.CursorPage[Reconciliation]{}, fmt.Errorf("%w: unknown status %q", ErrReconciliationInvalidInput, status)
	}
	page, err := s.repo.List(ctx, status, pager)
	if err != nil {
		return domain.CursorPage[Reconciliation]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// Resolve marks an item handled. Resolving twice is a no-op.
func (s *reconciliationService) Resolve(ctx context.Context, cmd ResolveReconciliationCommand) (Reconciliation, error) {
	id := strings.TrimSpace(cmd.ID)
	if id == "" {
		return Reconciliation{}, fmt.Errorf("%w: id is required", ErrReconciliationInvalidInput)
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Reconciliation{}, s.mapRepositoryError(err)
	}
	if rec.Status == domain.ReconciliationResolved {
		return rec, nil
	}
	rec = s.resolved(rec, strings.TrimSpace(cmd.ActorID), strings.TrimSpace(cmd.Note))
	if err := s.repo.Update(ctx, rec); err != nil {
		return Reconciliation{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "reconciliation.resolved", map[string]any{
		"reconciliationId": rec.ID,
		"actorId":          rec.ResolvedBy,
	})
	return rec, nil
}

// Retry re-applies the loyalty increment of an open ledger_failed item.
func (s *reconciliationService) Retry(ctx context.Context, reconciliationID string) (Reconciliation, error) {
	id := strings.TrimSpace(reconciliationID)
	if id == "" {
		return Reconciliation{}, fmt.Errorf("%w: id is required", ErrReconciliationInvalidInput)
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Reconciliation{}, s.mapRepositoryError(err)
	}
	return s.retry(ctx, rec)
}

// RetryOpen retries a batch of open ledger items, oldest last. Failures are counted, not returned.
func (s *reconciliationService) RetryOpen(ctx context.Context, limit int) (RetrySummary, error) {
	if limit <= 0 {
		limit = defaultRetryBatch
	}
	page, err := s.repo.List(ctx, domain.ReconciliationOpen, Pagination{PageSize: limit})
	if err != nil {
		return RetrySummary{}, s.mapRepositoryError(err)
	}
	var summary RetrySummary
	for _, rec := range page.Items {
		if rec.Kind != domain.ReconciliationLedgerFailed {
			continue
		}
		summary.Attempted++
		if _, err := s.retry(ctx, rec); err != nil {
			summary.Failed++
			continue
		}
		summary.Resolved++
	}
	s.logger(ctx, "reconciliation.retry.batch", map[string]any{
		"attempted": summary.Attempted,
		"resolved":  summary.Resolved,
		"failed":    summary.Failed,
	})
	return summary, nil
}

func (s *reconciliationService) retry(ctx context.Context, rec Reconciliation) (Reconciliation, error) {
	if rec.Status != domain.ReconciliationOpen || rec.Kind != domain.ReconciliationLedgerFailed {
		return Reconciliation{}, fmt.Errorf("%w: %s is %s/%s", ErrReconciliationInvalidState, rec.ID, rec.Kind, rec.Status)
	}

	rec.Attempts++
	if rec.UserID != "" && rec.PointsDelta != 0 {
		if _, err := s.users.AdjustPoints(ctx, rec.UserID, rec.PointsDelta); err != nil {
			rec.Error = err.Error()
			rec.UpdatedAt = s.now()
			if updateErr := s.repo.Update(ctx, rec); updateErr != nil {
				s.logger(ctx, "reconciliation.update_failed", map[string]any{
					"reconciliationId": rec.ID,
					"error":            updateErr.Error(),
				})
			}
			s.logger(ctx, "reconciliation.retry.failed", map[string]any{
				"reconciliationId": rec.ID,
				"attempts":         rec.Attempts,
				"error":            err.Error(),
			})
			return rec, fmt.Errorf("%w: %v", ErrReconciliationRetryFailed, err)
		}
	}

	rec = s.resolved(rec, retryActor, "ledger increment applied")
	if err := s.repo.Update(ctx, rec); err != nil {
		return Reconciliation{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "reconciliation.retry.applied", map[string]any{
		"reconciliationId": rec.ID,
		"userId":           rec.UserID,
		"delta":            rec.PointsDelta,
	})
	return rec, nil
}

func (s *reconciliationService) resolved(rec Reconciliation, actor, note string) Reconciliation {
	now := s.now()
	rec.Status = domain.ReconciliationResolved
	rec.ResolvedAt = &now
	rec.ResolvedBy = actor
	if note != "" {
		rec.Note = note
	}
	rec.UpdatedAt = now
	return rec
}

func (s *reconciliationService) publish(ctx context.Context, rec Reconciliation) {
	if s.publisher == nil {
		return
	}
	_, err := s.publisher.PublishReconciliation(ctx, domain.ReconciliationEvent{
		ReconciliationID: rec.ID,
		Kind:             rec.Kind,
		OrderID:          rec.OrderID,
		PaymentReference: rec.PaymentReference,
		Amount:           rec.Amount,
		Error:            rec.Error,
		OccurredAt:       rec.CreatedAt,
	})
	if err != nil {
		s.logger(ctx, "reconciliation.publish_failed", map[string]any{
			"reconciliationId": rec.ID,
			"error":            err.Error(),
		})
	}
}

func (s *reconciliationService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrReconciliationNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrReconciliationUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrReconciliationUnavailable, err)
}
