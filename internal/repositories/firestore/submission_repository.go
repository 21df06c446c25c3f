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

const submissionCollection = "submissions"

// SubmissionRepository persists customer submissions and publishes approved ones.
type SubmissionRepository struct {
	base         *pfirestore.BaseRepository[submissionDocument]
	testimonials *pfirestore.BaseRepository[testimonialDocument]
	gallery      *pfirestore.BaseRepository[galleryDocument]
	provider     *pfirestore.Provider
}

var _ repositories.SubmissionRepository = (*SubmissionRepository)(nil)

// NewSubmissionRepository constructs a Firestore-backed submission repository.
func NewSubmissionRepository(provider *pfirestore.Provider) (*SubmissionRepository, error) {
	if provider == nil {
		return nil, errors.New("submission repository requires firestore provider")
	}
	return &SubmissionRepository{
		base:         pfirestore.NewBaseRepository[submissionDocument](provider, submissionCollection),
		testimonials: pfirestore.NewBaseRepository[testimonialDocument](provider, testimonialCollection),
		gallery:      pfirestore.NewBaseRepository[galleryDocument](provider, galleryCollection),
		provider:     provider,
	}, nil
}

// Create stores a new submission.
func (r *SubmissionRepository) Create(ctx context.Context, submission domain.Submission) error {
	if strings.TrimSpace(submission.ID) == "" {
		return errors.New("submission repository: id is required")
	}
	return r.base.Create(ctx, submission.ID, newSubmissionDocument(submission))
}

// Get loads a submission.
func (r *SubmissionRepository) Get(ctx context.Context, submissionID string) (domain.Submission, error) {
	doc, err := r.base.Get(ctx, submissionID)
	if err != nil {
		return domain.Submission{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByStatus pages through submissions in one moderation state, newest first.
func (r *SubmissionRepository) ListByStatus(ctx context.Context, status domain.SubmissionStatus, pager domain.Pagination) (domain.CursorPage[domain.Submission], error) {
	coll, err := r.base.CollectionRef(ctx)
	if err != nil {
		return domain.CursorPage[domain.Submission]{}, err
	}
	query, size, err := pagedQuery(coll.Where("status", "==", string(status)), pager)
	if err != nil {
		return domain.CursorPage[domain.Submission]{}, err
	}
	docs, err := r.base.Query(ctx, func(firestore.Query) firestore.Query { return query })
	if err != nil {
		return domain.CursorPage[domain.Submission]{}, err
	}
	return buildPage(docs, size,
		func(d submissionDocument) time.Time { return d.CreatedAt },
		func(doc pfirestore.Document[submissionDocument]) domain.Submission { return doc.Data.toDomain(doc.ID) })
}

// Reject marks the submission rejected and keeps it.
func (r *SubmissionRepository) Reject(ctx context.Context, submissionID string, at time.Time) error {
	ref, err := r.base.DocumentRef(ctx, submissionID)
	if err != nil {
		return err
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := r.pending(tx, ref); err != nil {
			return err
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(domain.SubmissionStatusRejected)},
			{Path: "updatedAt", Value: at},
		})
	})
}

// ApproveTestimonial publishes the testimonial and deletes the submission atomically.
func (r *SubmissionRepository) ApproveTestimonial(ctx context.Context, submissionID string, testimonial domain.Testimonial) error {
	target, err := r.testimonials.DocumentRef(ctx, testimonial.ID)
	if err != nil {
		return err
	}
	return r.approve(ctx, submissionID, domain.SubmissionTypeTestimonial, target, newTestimonialDocument(testimonial))
}

// ApproveResult publishes the before/after image and deletes the submission atomically.
func (r *SubmissionRepository) ApproveResult(ctx context.Context, submissionID string, image domain.GalleryImage) error {
	target, err := r.gallery.DocumentRef(ctx, image.ID)
	if err != nil {
		return err
	}
	return r.approve(ctx, submissionID, domain.SubmissionTypeResult, target, newGalleryDocument(image))
}

func (r *SubmissionRepository) approve(ctx context.Context, submissionID string, kind domain.SubmissionType, target *firestore.DocumentRef, data any) error {
	ref, err := r.base.DocumentRef(ctx, submissionID)
	if err != nil {
		return err
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := r.pending(tx, ref)
		if err != nil {
			return err
		}
		if domain.SubmissionType(doc.Type) != kind {
			return pfirestore.ConflictError("submissions.approve", fmt.Errorf("submission %s is a %s", submissionID, doc.Type))
		}
		if err := tx.Create(target, data); err != nil {
			return err
		}
		return tx.Delete(ref)
	})
}

func (r *SubmissionRepository) pending(tx *firestore.Transaction, ref *firestore.DocumentRef) (submissionDocument, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		return submissionDocument{}, pfirestore.WrapError("submissions.get", err)
	}
	doc, err := r.base.Decode(snap)
	if err != nil {
		return submissionDocument{}, err
	}
	if domain.SubmissionStatus(doc.Data.Status) != domain.SubmissionStatusPending {
		return submissionDocument{}, pfirestore.ConflictError("submissions.moderate", fmt.Errorf("submission %s is already %s", ref.ID, doc.Data.Status))
	}
	return doc.Data, nil
}

type submissionDocument struct {
	Type          string    `firestore:"type"`
	CustomerName  string    `firestore:"customerName"`
	Email         string    `firestore:"email"`
	Content       string    `firestore:"content"`
	Location      string    `firestore:"location,omitempty"`
	ImageURL      string    `firestore:"imageUrl,omitempty"`
	AfterImageURL string    `firestore:"afterImageUrl,omitempty"`
	Status        string    `firestore:"status"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func newSubmissionDocument(s domain.Submission) submissionDocument {
	return submissionDocument{
		Type:          string(s.Type),
		CustomerName:  s.CustomerName,
		Email:         s.Email,
		Content:       s.Content,
		Location:      s.Location,
		ImageURL:      s.ImageURL,
		AfterImageURL: s.AfterImageURL,
		Status:        string(s.Status),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func (d submissionDocument) toDomain(id string) domain.Submission {
	return domain.Submission{
		ID:            id,
		Type:          domain.SubmissionType(d.Type),
		CustomerName:  d.CustomerName,
		Email:         d.Email,
		Content:       d.Content,
		Location:      d.Location,
		ImageURL:      d.ImageURL,
		AfterImageURL: d.AfterImageURL,
		Status:        domain.SubmissionStatus(d.Status),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
