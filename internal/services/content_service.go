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
	defaultContentLimit = 50
	maxContentLimit     = 200
)

var (
	// ErrContentInvalidInput indicates a rejected content draft.
	ErrContentInvalidInput = errors.New("content: invalid input")
	// ErrContentNotFound indicates the requested content item does not exist.
	ErrContentNotFound = errors.New("content: not found")
	// ErrContentUnavailable indicates content storage is unavailable.
	ErrContentUnavailable = errors.New("content: unavailable")
)

// ContentServiceDeps wires the published content repositories.
type ContentServiceDeps struct {
	Testimonials repositories.ContentRepository[domain.Testimonial]
	Gallery      repositories.ContentRepository[domain.GalleryImage]
	Blog         repositories.ContentRepository[domain.BlogPost]
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type contentService struct {
	testimonials repositories.ContentRepository[domain.Testimonial]
	gallery      repositories.ContentRepository[domain.GalleryImage]
	blog         repositories.ContentRepository[domain.BlogPost]
	now          func() time.Time
	newID        func() string
	logger       func(ctx context.Context, event string, fields map[string]any)
}

// NewContentService constructs a ContentService.
func NewContentService(deps ContentServiceDeps) (ContentService, error) {
	if deps.Testimonials == nil || deps.Gallery == nil || deps.Blog == nil {
		return nil, errors.New("content service: testimonial, gallery and blog repositories are required")
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
	return &contentService{
		testimonials: deps.Testimonials,
		gallery:      deps.Gallery,
		blog:         deps.Blog,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *contentService) ListTestimonials(ctx context.Context, limit int) ([]Testimonial, error) {
	items, err := s.testimonials.List(ctx, contentLimit(limit))
	return items, mapContentError(err)
}

func (s *contentService) SaveTestimonial(ctx context.Context, id string, draft domain.TestimonialDraft) (Testimonial, error) {
	item, err := draft.Validate()
	if err != nil {
		return Testimonial{}, fmt.Errorf("%w: %w", ErrContentInvalidInput, err)
	}
	item.ID, item.CreatedAt, err = s.identity(ctx, id, func(ctx context.Context, id string) (time.Time, error) {
		existing, err := s.testimonials.Get(ctx, id)
		return existing.CreatedAt, err
	})
	if err != nil {
		return Testimonial{}, err
	}
	if err := s.testimonials.Save(ctx, item); err != nil {
		return Testimonial{}, mapContentError(err)
	}
	s.logger(ctx, "content.testimonial.saved", map[string]any{"id": item.ID})
	return item, nil
}

func (s *contentService) DeleteTestimonial(ctx context.Context, id string) error {
	return s.remove(ctx, "testimonial", id, s.testimonials.Delete)
}

func (s *contentService) ListGallery(ctx context.Context, limit int) ([]GalleryImage, error) {
	items, err := s.gallery.List(ctx, contentLimit(limit))
	return items, mapContentError(err)
}

func (s *contentService) SaveGalleryImage(ctx context.Context, id string, draft domain.GalleryImageDraft) (GalleryImage, error) {
	item, err := draft.Validate()
	if err != nil {
		return GalleryImage{}, fmt.Errorf("%w: %w", ErrContentInvalidInput, err)
	}
	item.ID, item.CreatedAt, err = s.identity(ctx, id, func(ctx context.Context, id string) (time.Time, error) {
		existing, err := s.gallery.Get(ctx, id)
		return existing.CreatedAt, err
	})
	if err != nil {
		return GalleryImage{}, err
	}
	if err := s.gallery.Save(ctx, item); err != nil {
		return GalleryImage{}, mapContentError(err)
	}
	s.logger(ctx, "content.gallery.saved", map[string]any{"id": item.ID})
	return item, nil
}

func (s *contentService) DeleteGalleryImage(ctx context.Context, id string) error {
	return s.remove(ctx, "gallery", id, s.gallery.Delete)
}

func (s *contentService) ListBlogPosts(ctx context.Context, limit int) ([]BlogPost, error) {
	items, err := s.blog.List(ctx, contentLimit(limit))
	return items, mapContentError(err)
}

func (s *contentService) GetBlogPost(ctx context.Context, id string) (BlogPost, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return BlogPost{}, fmt.Errorf("%w: id is required", ErrContentInvalidInput)
	}
	post, err := s.blog.Get(ctx, id)
	if err != nil {
		return BlogPost{}, mapContentError(err)
	}
	return post, nil
}

// SaveBlogPost keeps the original publication date when an existing post is edited.
func (s *contentService) SaveBlogPost(ctx context.Context, id string, draft domain.BlogPostDraft) (BlogPost, error) {
	post, err := draft.Validate()
	if err != nil {
		return BlogPost{}, fmt.Errorf("%w: %w", ErrContentInvalidInput, err)
	}
	var published time.Time
	post.ID, post.CreatedAt, err = s.identity(ctx, id, func(ctx context.Context, id string) (time.Time, error) {
		existing, err := s.blog.Get(ctx, id)
		published = existing.Date
		return existing.CreatedAt, err
	})
	if err != nil {
		return BlogPost{}, err
	}
	post.Date = published
	if post.Date.IsZero() {
		post.Date = post.CreatedAt
	}
	post.UpdatedAt = s.now()
	if err := s.blog.Save(ctx, post); err != nil {
		return BlogPost{}, mapContentError(err)
	}
	s.logger(ctx, "content.blog.saved", map[string]any{"id": post.ID})
	return post, nil
}

func (s *contentService) DeleteBlogPost(ctx context.Context, id string) error {
	return s.remove(ctx, "blog", id, s.blog.Delete)
}

// identity returns the id and creation time for a save: a fresh id for new items, the stored
// creation time for existing ones.
func (s *contentService) identity(ctx context.Context, id string, createdAt func(context.Context, string) (time.Time, error)) (string, time.Time, error) {
	id = strings.TrimSpace(id)
	now := s.now()
	if id == "" {
		return s.newID(), now, nil
	}
	created, err := createdAt(ctx, id)
	switch {
	case err == nil:
		if created.IsZero() {
			created = now
		}
		return id, created, nil
	case isRepoNotFound(err):
		return id, now, nil
	default:
		return "", time.Time{}, mapContentError(err)
	}
}

func (s *contentService) remove(ctx context.Context, kind, id string, del func(context.Context, string) error) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrContentInvalidInput)
	}
	if err := del(ctx, id); err != nil {
		return mapContentError(err)
	}
	s.logger(ctx, "content."+kind+".deleted", map[string]any{"id": id})
	return nil
}

func contentLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultContentLimit
	case limit > maxContentLimit:
		return maxContentLimit
	default:
		return limit
	}
}

func mapContentError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrContentNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrContentUnavailable, err)
}
