package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/optimistics/storefront/internal/repositories"
	"github.com/optimistics/storefront/internal/state"
)

var (
	// ErrWishlistInvalidInput indicates the caller supplied invalid input parameters.
	ErrWishlistInvalidInput = errors.New("wishlist: invalid input")
	// ErrWishlistUnavailable indicates wishlist storage is unavailable.
	ErrWishlistUnavailable = errors.New("wishlist: unavailable")
)

// WishlistServiceDeps wires the wishlist service.
type WishlistServiceDeps struct {
	Wishlists     repositories.WishlistRepository
	LiveWishlists int
	Clock         func() time.Time
}

type wishlistService struct {
	stores *state.Registry[Wishlist]
	now    func() time.Time
}

// NewWishlistService constructs a WishlistService backed by per-owner state stores.
func NewWishlistService(deps WishlistServiceDeps) (WishlistService, error) {
	if deps.Wishlists == nil {
		return nil, errors.New("wishlist service: wishlist repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	size := deps.LiveWishlists
	if size <= 0 {
		size = defaultLiveCarts
	}
	repo := deps.Wishlists
	stores, err := state.NewRegistry(size, func(key string) *state.Store[Wishlist] {
		return state.New(Wishlist{OwnerKey: key},
			state.WithPersister[Wishlist](&wishlistPersister{repo: repo, ownerKey: key}),
			state.WithClone(func(w Wishlist) Wishlist {
				w.ProductIDs = slices.Clone(w.ProductIDs)
				return w
			}),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("wishlist service: %w", err)
	}
	return &wishlistService{
		stores: stores,
		now: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *wishlistService) GetWishlist(ctx context.Context, ownerKey string) (Wishlist, error) {
	store, err := s.store(ownerKey)
	if err != nil {
		return Wishlist{}, err
	}
	list, err := store.Get(ctx)
	if err != nil {
		return Wishlist{}, fmt.Errorf("%w: %v", ErrWishlistUnavailable, err)
	}
	return list, nil
}

// Add appends productID unless it is already saved.
func (s *wishlistService) Add(ctx context.Context, ownerKey, productID string) (Wishlist, error) {
	return s.update(ctx, ownerKey, productID, func(ids []string, id string) []string {
		if slices.Contains(ids, id) {
			return ids
		}
		return append(ids, id)
	})
}

func (s *wishlistService) Remove(ctx context.Context, ownerKey, productID string) (Wishlist, error) {
	return s.update(ctx, ownerKey, productID, func(ids []string, id string) []string {
		return slices.DeleteFunc(ids, func(v string) bool { return v == id })
	})
}

func (s *wishlistService) Contains(ctx context.Context, ownerKey, productID string) (bool, error) {
	list, err := s.GetWishlist(ctx, ownerKey)
	if err != nil {
		return false, err
	}
	return slices.Contains(list.ProductIDs, strings.TrimSpace(productID)), nil
}

func (s *wishlistService) update(ctx context.Context, ownerKey, productID string, fn func([]string, string) []string) (Wishlist, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Wishlist{}, fmt.Errorf("%w: product id is required", ErrWishlistInvalidInput)
	}
	store, err := s.store(ownerKey)
	if err != nil {
		return Wishlist{}, err
	}
	list, err := store.Update(ctx, func(list Wishlist) (Wishlist, error) {
		list.ProductIDs = fn(list.ProductIDs, productID)
		list.UpdatedAt = s.now()
		return list, nil
	})
	if err != nil {
		return Wishlist{}, fmt.Errorf("%w: %v", ErrWishlistUnavailable, err)
	}
	return list, nil
}

func (s *wishlistService) store(ownerKey string) (*state.Store[Wishlist], error) {
	ownerKey = strings.TrimSpace(ownerKey)
	if ownerKey == "" {
		return nil, fmt.Errorf("%w: wishlist owner is required", ErrWishlistInvalidInput)
	}
	return s.stores.Store(ownerKey), nil
}

type wishlistPersister struct {
	repo     repositories.WishlistRepository
	ownerKey string
}

func (p *wishlistPersister) Load(ctx context.Context) (Wishlist, bool, error) {
	list, err := p.repo.Get(ctx, p.ownerKey)
	if err != nil {
		if isRepoNotFound(err) {
			return Wishlist{}, false, nil
		}
		return Wishlist{}, false, err
	}
	list.OwnerKey = p.ownerKey
	return list, true, nil
}

func (p *wishlistPersister) Save(ctx context.Context, list Wishlist) error {
	list.OwnerKey = p.ownerKey
	return p.repo.Save(ctx, list)
}
