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

var (
	// ErrCatalogInvalidInput indicates a malformed product draft or request.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogUnavailable indicates catalog storage is unavailable.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

// CatalogServiceDeps wires the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	now      func() time.Time
	newID    func() string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
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
	return &catalogService{
		products: deps.Products,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) ([]Product, error) {
	products, err := s.products.List(ctx, repositories.ProductListFilter{
		Category:       strings.TrimSpace(filter.Category),
		BestsellerOnly: filter.BestsellerOnly,
		Limit:          filter.Limit,
	})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return products, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

// SaveProduct validates the draft and creates or replaces the product. Existing reviews and the
// creation time are preserved on replace.
func (s *catalogService) SaveProduct(ctx context.Context, draft domain.ProductDraft) (Product, error) {
	product, err := draft.Validate()
	if err != nil {
		return Product{}, fmt.Errorf("%w: %w", ErrCatalogInvalidInput, err)
	}
	now := s.now()
	product.UpdatedAt = now
	if product.ID == "" {
		product.ID = s.newID()
		product.CreatedAt = now
	} else {
		existing, err := s.products.Get(ctx, product.ID)
		switch {
		case err == nil:
			product.CreatedAt = existing.CreatedAt
			product.Reviews = existing.Reviews
		case isRepoNotFound(err):
			product.CreatedAt = now
		default:
			return Product{}, s.mapRepositoryError(err)
		}
	}

	saved, err := s.products.Upsert(ctx, product)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.product.saved", map[string]any{
		"productId": saved.ID,
		"price":     saved.Price,
	})
	return saved, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.product.deleted", map[string]any{"productId": productID})
	return nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}
