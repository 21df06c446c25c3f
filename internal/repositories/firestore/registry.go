package firestore

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/optimistics/storefront/internal/domain"
	pfirestore "github.com/optimistics/storefront/internal/platform/firestore"
	"github.com/optimistics/storefront/internal/repositories"
)

// Registry wires every Firestore repository over one provider.
type Registry struct {
	provider        *pfirestore.Provider
	products        *ProductRepository
	carts           *CartRepository
	wishlists       *WishlistRepository
	shipping        *ShippingConfigRepository
	users           *UserRepository
	orders          *OrderRepository
	sessions        *CheckoutSessionRepository
	settlement      *SettlementRepository
	submissions     *SubmissionRepository
	testimonials    repositories.ContentRepository[domain.Testimonial]
	gallery         repositories.ContentRepository[domain.GalleryImage]
	blog            repositories.ContentRepository[domain.BlogPost]
	reconciliations *ReconciliationRepository
	health          repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories. Extra readiness checks run alongside the Firestore ping.
func NewRegistry(provider *pfirestore.Provider, checks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	reg := &Registry{provider: provider}
	var err error
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, err
	}
	if reg.wishlists, err = NewWishlistRepository(provider); err != nil {
		return nil, err
	}
	if reg.shipping, err = NewShippingConfigRepository(provider); err != nil {
		return nil, err
	}
	if reg.users, err = NewUserRepository(provider); err != nil {
		return nil, err
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.sessions, err = NewCheckoutSessionRepository(provider); err != nil {
		return nil, err
	}
	if reg.settlement, err = NewSettlementRepository(provider); err != nil {
		return nil, err
	}
	if reg.submissions, err = NewSubmissionRepository(provider); err != nil {
		return nil, err
	}
	if reg.testimonials, err = NewTestimonialRepository(provider); err != nil {
		return nil, err
	}
	if reg.gallery, err = NewGalleryRepository(provider); err != nil {
		return nil, err
	}
	if reg.blog, err = NewBlogRepository(provider); err != nil {
		return nil, err
	}
	if reg.reconciliations, err = NewReconciliationRepository(provider); err != nil {
		return nil, err
	}

	all := append([]repositories.DependencyCheck{{Name: "firestore", Check: provider.Ping}}, checks...)
	if reg.health, err = repositories.NewDependencyHealthRepository(all); err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) Carts() repositories.CartRepository { return r.carts }

func (r *Registry) Wishlists() repositories.WishlistRepository { return r.wishlists }

func (r *Registry) Shipping() repositories.ShippingConfigRepository { return r.shipping }

func (r *Registry) Users() repositories.UserRepository { return r.users }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) CheckoutSessions() repositories.CheckoutSessionRepository { return r.sessions }

func (r *Registry) Settlement() repositories.SettlementRepository { return r.settlement }

func (r *Registry) Submissions() repositories.SubmissionRepository { return r.submissions }

func (r *Registry) Testimonials() repositories.ContentRepository[domain.Testimonial] {
	return r.testimonials
}

func (r *Registry) Gallery() repositories.ContentRepository[domain.GalleryImage] { return r.gallery }

func (r *Registry) Blog() repositories.ContentRepository[domain.BlogPost] { return r.blog }

func (r *Registry) Reconciliations() repositories.ReconciliationRepository {
	return r.reconciliations
}

func (r *Registry) Health() repositories.HealthRepository { return r.health }
