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

const (
	testimonialCollection = "testimonials"
	galleryCollection     = "gallery"
	blogCollection        = "blogPosts"
)

// contentRepository adapts a published-content collection to repositories.ContentRepository.
type contentRepository[T any, D any] struct {
	base    *pfirestore.BaseRepository[D]
	orderBy string
	idOf    func(T) string
	toDoc   func(T) D
	fromDoc func(string, D) T
}

func (r *contentRepository[T, D]) List(ctx context.Context, limit int) ([]T, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy(r.orderBy, firestore.Desc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		items = append(items, r.fromDoc(doc.ID, doc.Data))
	}
	return items, nil
}

func (r *contentRepository[T, D]) Get(ctx context.Context, id string) (T, error) {
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.fromDoc(doc.ID, doc.Data), nil
}

func (r *contentRepository[T, D]) Save(ctx context.Context, item T) error {
	id := strings.TrimSpace(r.idOf(item))
	if id == "" {
		return errors.New("content repository: id is required")
	}
	return r.base.Set(ctx, id, r.toDoc(item))
}

func (r *contentRepository[T, D]) Delete(ctx context.Context, id string) error {
	return r.base.Delete(ctx, id)
}

// NewTestimonialRepository constructs the testimonials collection repository.
func NewTestimonialRepository(provider *pfirestore.Provider) (repositories.ContentRepository[domain.Testimonial], error) {
	if provider == nil {
		return nil, errors.New("testimonial repository requires firestore provider")
	}
	return &contentRepository[domain.Testimonial, testimonialDocument]{
		base:    pfirestore.NewBaseRepository[testimonialDocument](provider, testimonialCollection),
		orderBy: "createdAt",
		idOf:    func(t domain.Testimonial) string { return t.ID },
		toDoc:   newTestimonialDocument,
		fromDoc: func(id string, d testimonialDocument) domain.Testimonial { return d.toDomain(id) },
	}, nil
}

// NewGalleryRepository constructs the before/after gallery repository.
func NewGalleryRepository(provider *pfirestore.Provider) (repositories.ContentRepository[domain.GalleryImage], error) {
	if provider == nil {
		return nil, errors.New("gallery repository requires firestore provider")
	}
	return &contentRepository[domain.GalleryImage, galleryDocument]{
		base:    pfirestore.NewBaseRepository[galleryDocument](provider, galleryCollection),
		orderBy: "createdAt",
		idOf:    func(g domain.GalleryImage) string { return g.ID },
		toDoc:   newGalleryDocument,
		fromDoc: func(id string, d galleryDocument) domain.GalleryImage { return d.toDomain(id) },
	}, nil
}

// NewBlogRepository constructs the journal posts repository, newest post date first.
func NewBlogRepository(provider *pfirestore.Provider) (repositories.ContentRepository[domain.BlogPost], error) {
	if provider == nil {
		return nil, errors.New("blog repository requires firestore provider")
	}
	return &contentRepository[domain.BlogPost, blogDocument]{
		base:    pfirestore.NewBaseRepository[blogDocument](provider, blogCollection),
		orderBy: "date",
		idOf:    func(p domain.BlogPost) string { return p.ID },
		toDoc:   newBlogDocument,
		fromDoc: func(id string, d blogDocument) domain.BlogPost { return d.toDomain(id) },
	}, nil
}

type testimonialDocument struct {
	Name      string    `firestore:"name"`
	Location  string    `firestore:"location"`
	Quote     string    `firestore:"quote"`
	ImageURL  string    `firestore:"image,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newTestimonialDocument(t domain.Testimonial) testimonialDocument {
	return testimonialDocument{Name: t.Name, Location: t.Location, Quote: t.Quote, ImageURL: t.ImageURL, CreatedAt: t.CreatedAt}
}

func (d testimonialDocument) toDomain(id string) domain.Testimonial {
	return domain.Testimonial{ID: id, Name: d.Name, Location: d.Location, Quote: d.Quote, ImageURL: d.ImageURL, CreatedAt: d.CreatedAt}
}

type galleryDocument struct {
	BeforeURL   string    `firestore:"beforeImage"`
	AfterURL    string    `firestore:"afterImage"`
	Description string    `firestore:"description"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func newGalleryDocument(g domain.GalleryImage) galleryDocument {
	return galleryDocument{BeforeURL: g.BeforeURL, AfterURL: g.AfterURL, Description: g.Description, CreatedAt: g.CreatedAt}
}

func (d galleryDocument) toDomain(id string) domain.GalleryImage {
	return domain.GalleryImage{ID: id, BeforeURL: d.BeforeURL, AfterURL: d.AfterURL, Description: d.Description, CreatedAt: d.CreatedAt}
}

type blogDocument struct {
	Title     string    `firestore:"title"`
	Excerpt   string    `firestore:"excerpt"`
	ImageURL  string    `firestore:"image"`
	Author    string    `firestore:"author"`
	Date      time.Time `firestore:"date"`
	Content   string    `firestore:"content"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newBlogDocument(p domain.BlogPost) blogDocument {
	return blogDocument{
		Title:     p.Title,
		Excerpt:   p.Excerpt,
		ImageURL:  p.ImageURL,
		Author:    p.Author,
		Date:      p.Date,
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (d blogDocument) toDomain(id string) domain.BlogPost {
	return domain.BlogPost{
		ID:        id,
		Title:     d.Title,
		Excerpt:   d.Excerpt,
		ImageURL:  d.ImageURL,
		Author:    d.Author,
		Date:      d.Date,
		Content:   d.Content,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
