package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/platform/storage"
	"github.com/optimistics/storefront/internal/repositories"
)

const maxSubmissionContent = 2000

var (
	// ErrSubmissionInvalidInput indicates a rejected submission or upload request.
	ErrSubmissionInvalidInput = errors.New("submission: invalid input")
	// ErrSubmissionNotFound indicates the submission does not exist.
	ErrSubmissionNotFound = errors.New("submission: not found")
	// ErrSubmissionInvalidState indicates the submission was already moderated.
	ErrSubmissionInvalidState = errors.New("submission: already moderated")
	// ErrSubmissionUnavailable indicates storage or uploads are unavailable.
	ErrSubmissionUnavailable = errors.New("submission: unavailable")
)

type imageUploader interface {
	SignUpload(ctx context.Context, req storage.UploadRequest) (storage.SignedUpload, error)
}

// SubmissionServiceDeps wires the moderation service.
type SubmissionServiceDeps struct {
	Repository  repositories.SubmissionRepository
	Uploader    imageUploader
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type submissionService struct {
	repo     repositories.SubmissionRepository
	uploader imageUploader
	now      func() time.Time
	newID    func() string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewSubmissionService constructs a SubmissionService. Without an uploader, signed uploads are
// reported unavailable.
func NewSubmissionService(deps SubmissionServiceDeps) (SubmissionService, error) {
	if deps.Repository == nil {
		return nil, errors.New("submission service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &submissionService{
		repo:     deps.Repository,
		uploader: deps.Uploader,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Submit stores a pending testimonial or result. Text is sanitized; results need both images.
func (s *submissionService) Submit(ctx context.Context, cmd SubmitCommand) (Submission, error) {
	now := s.now()
	sub := Submission{
		ID:            s.newID(),
		Type:          cmd.Type,
		CustomerName:  domain.SanitizeText(cmd.CustomerName),
		Email:         strings.ToLower(strings.TrimSpace(cmd.Email)),
		Content:       domain.SanitizeText(cmd.Content),
		Location:      domain.SanitizeText(cmd.Location),
		ImageURL:      strings.TrimSpace(cmd.ImageURL),
		AfterImageURL: strings.TrimSpace(cmd.AfterImageURL),
		Status:        domain.SubmissionStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var problems []string
	switch sub.Type {
	case domain.SubmissionTypeTestimonial:
		if sub.Content == "" {
			problems = append(problems, "content")
		}
	case domain.SubmissionTypeResult:
		if !isHTTPURL(sub.ImageURL) {
			problems = append(problems, "imageUrl")
		}
		if !isHTTPURL(sub.AfterImageURL) {
			problems = append(problems, "afterImageUrl")
		}
	default:
		problems = append(problems, "type")
	}
	if sub.CustomerName == "" {
		problems = append(problems, "name")
	}
	if sub.Email != "" {
		if _, err := mail.ParseAddress(sub.Email); err != nil {
			problems = append(problems, "email")
		}
	}
	if sub.ImageURL != "" && !isHTTPURL(sub.ImageURL) && sub.Type == domain.SubmissionTypeTestimonial {
		problems = append(problems, "imageUrl")
	}
	if len([]rune(sub.Content)) > maxSubmissionContent {
		problems = append(problems, "content")
	}
	if len(problems) > 0 {
		return Submission{}, fmt.Errorf("%w: %s", ErrSubmissionInvalidInput, strings.Join(problems, ", "))
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return Submission{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "submission.created", map[string]any{
		"submissionId": sub.ID,
		"type":         string(sub.Type),
	})
	return sub, nil
}

func (s *submissionService) SignImageUpload(ctx context.Context, cmd SignImageUploadCommand) (storage.SignedUpload, error) {
	if s.uploader == nil {
		return storage.SignedUpload{}, fmt.Errorf("%w: uploads are not configured", ErrSubmissionUnavailable)
	}
	signed, err := s.uploader.SignUpload(ctx, storage.UploadRequest{
		FileName:    cmd.FileName,
		ContentType: cmd.ContentType,
	})
	if err != nil {
		if errors.Is(err, storage.ErrContentTypeDenied) || errors.Is(err, storage.ErrInvalidFileName) {
			return storage.SignedUpload{}, fmt.Errorf("%w: %v", ErrSubmissionInvalidInput, err)
		}
		return storage.SignedUpload{}, fmt.Errorf("%w: %v", ErrSubmissionUnavailable, err)
	}
	return signed, nil
}

func (s *submissionService) ListPending(ctx context.Context, pager Pagination) (domain.CursorPage[Submission], error) {
	page, err := s.repo.ListByStatus(ctx, domain.SubmissionStatusPending, pager)
	if err != nil {
		return domain.CursorPage[Submission]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// Approve publishes the submission as a testimonial or gallery image and deletes it.
func (s *submissionService) Approve(ctx context.Context, submissionID string) error {
	sub, err := s.pending(ctx, submissionID)
	if err != nil {
		return err
	}
	now := s.now()
	switch sub.Type {
	case domain.SubmissionTypeTestimonial:
		err = s.repo.ApproveTestimonial(ctx, sub.ID, Testimonial{
			ID:        s.newID(),
			Name:      sub.CustomerName,
			Location:  sub.Location,
			Quote:     sub.Content,
			ImageURL:  sub.ImageURL,
			CreatedAt: now,
		})
	case domain.SubmissionTypeResult:
		err = s.repo.ApproveResult(ctx, sub.ID, GalleryImage{
			ID:          s.newID(),
			BeforeURL:   sub.ImageURL,
			AfterURL:    sub.AfterImageURL,
			Description: sub.Content,
			CreatedAt:   now,
		})
	default:
		return fmt.Errorf("%w: unknown type %q", ErrSubmissionInvalidInput, sub.Type)
	}
	if err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "submission.approved", map[string]any{
		"submissionId": sub.ID,
		"type":         string(sub.Type),
	})
	return nil
}

// Reject keeps the submission with status rejected.
func (s *submissionService) Reject(ctx context.Context, submissionID string) error {
	sub, err := s.pending(ctx, submissionID)
	if err != nil {
		return err
	}
	if err := s.repo.Reject(ctx, sub.ID, s.now()); err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "submission.rejected", map[string]any{"submissionId": sub.ID})
	return nil
}

func (s *submissionService) pending(ctx context.Context, submissionID string) (Submission, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return Submission{}, fmt.Errorf("%w: submission id is required", ErrSubmissionInvalidInput)
	}
	sub, err := s.repo.Get(ctx, submissionID)
	if err != nil {
		return Submission{}, s.mapRepositoryError(err)
	}
	if sub.Status != domain.SubmissionStatusPending {
		return Submission{}, ErrSubmissionInvalidState
	}
	return sub, nil
}

func (s *submissionService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrSubmissionNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrSubmissionInvalidState, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrSubmissionUnavailable, err)
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}
