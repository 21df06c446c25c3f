package firestore

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/optimistics/storefront/internal/domain"
	pfirestore "github.com/optimistics/storefront/internal/platform/firestore"
	"github.com/optimistics/storefront/internal/repositories"
)

const productCollection = "products"

// ProductRepository persists catalog entries in Firestore.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
	now  func() time.Time
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[productDocument](provider, productCollection),
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// List returns products ordered by name, optionally filtered by category.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where("categories", "array-contains", category)
		}
		if filter.BestsellerOnly {
			q = q.Where("isBestseller", "==", true)
		}
		q = q.OrderBy("name", firestore.Asc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.Data.toDomain(doc.ID))
	}
	return products, nil
}

// Get loads a single product.
func (r *ProductRepository) Get(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Upsert writes the product, keeping the original creation time.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	if strings.TrimSpace(product.ID) == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	now := r.now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
		if existing, err := r.base.Get(ctx, product.ID); err == nil {
			product.CreatedAt = existing.Data.CreatedAt
		} else if !pfirestore.IsNotFound(err) {
			return domain.Product{}, err
		}
	}
	product.UpdatedAt = now
	if err := r.base.Set(ctx, product.ID, newProductDocument(product)); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// Delete removes the product.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	return r.base.Delete(ctx, productID)
}

type productDocument struct {
	Name        string           `firestore:"name"`
	Categories  []string         `firestore:"categories"`
	Tags        []string         `firestore:"tags"`
	Price       int64            `firestore:"price"`
	Size        string           `firestore:"size"`
	Sizes       map[string]int64 `firestore:"sizes,omitempty"`
	Images      []string         `firestore:"images"`
	Description string           `firestore:"description"`
	Ingredients []string         `firestore:"ingredients"`
	Benefits    []string         `firestore:"benefits"`
	Usage       string           `firestore:"usage"`
	Reviews     []reviewDocument `firestore:"reviews"`
	Bestseller  bool             `firestore:"isBestseller"`
	InStock     bool             `firestore:"inStock"`
	CreatedAt   time.Time        `firestore:"createdAt"`
	UpdatedAt   time.Time        `firestore:"updatedAt"`
}

type reviewDocument struct {
	Author  string    `firestore:"author"`
	Rating  int       `firestore:"rating"`
	Comment string    `firestore:"comment"`
	Date    time.Time `firestore:"date"`
}

func newProductDocument(p domain.Product) productDocument {
	doc := productDocument{
		Name:        p.Name,
		Categories:  cloneStrings(p.Categories),
		Tags:        cloneStrings(p.Tags),
		Price:       p.Price,
		Size:        p.BaseSize,
		Images:      cloneStrings(p.Images),
		Description: p.Description,
		Ingredients: cloneStrings(p.Ingredients),
		Benefits:    cloneStrings(p.Benefits),
		Usage:       p.Usage,
		Bestseller:  p.Bestseller,
		InStock:     p.InStock,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if len(p.SizePrices) > 0 {
		doc.Sizes = maps.Clone(p.SizePrices)
	}
	for _, review := range p.Reviews {
		doc.Reviews = append(doc.Reviews, reviewDocument(review))
	}
	return doc
}

func (d productDocument) toDomain(id string) domain.Product {
	p := domain.Product{
		ID:          id,
		Name:        d.Name,
		Categories:  cloneStrings(d.Categories),
		Tags:        cloneStrings(d.Tags),
		Price:       d.Price,
		BaseSize:    d.Size,
		Images:      cloneStrings(d.Images),
		Description: d.Description,
		Ingredients: cloneStrings(d.Ingredients),
		Benefits:    cloneStrings(d.Benefits),
		Usage:       d.Usage,
		Bestseller:  d.Bestseller,
		InStock:     d.InStock,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if len(d.Sizes) > 0 {
		p.SizePrices = maps.Clone(d.Sizes)
	}
	for _, review := range d.Reviews {
		p.Reviews = append(p.Reviews, domain.ProductReview(review))
	}
	return p
}
