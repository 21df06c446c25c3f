package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/optimistics/storefront/internal/domain"
	pfirestore "github.com/optimistics/storefront/internal/platform/firestore"
	"github.com/optimistics/storefront/internal/repositories"
)

const (
	cartCollection     = "carts"
	wishlistCollection = "wishlists"
)

// CartRepository persists one cart document per owner key (uid or guest session id).
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)}, nil
}

// Get loads the cart stored under ownerKey.
func (r *CartRepository) Get(ctx context.Context, ownerKey string) (domain.Cart, error) {
	doc, err := r.base.Get(ctx, ownerKey)
	if err != nil {
		return domain.Cart{}, err
	}
	cart := domain.Cart{OwnerKey: doc.ID, UpdatedAt: doc.Data.UpdatedAt}
	for _, line := range doc.Data.Lines {
		cart.Lines = append(cart.Lines, line.toDomain())
	}
	return cart, nil
}

// Save replaces the cart document.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	ownerKey := strings.TrimSpace(cart.OwnerKey)
	if ownerKey == "" {
		return errors.New("cart repository: owner key is required")
	}
	doc := cartDocument{UpdatedAt: cart.UpdatedAt, Lines: make([]cartLineDocument, 0, len(cart.Lines))}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	for _, line := range cart.Lines {
		doc.Lines = append(doc.Lines, newCartLineDocument(line))
	}
	return r.base.Set(ctx, ownerKey, doc)
}

// Delete removes the cart document.
func (r *CartRepository) Delete(ctx context.Context, ownerKey string) error {
	return r.base.Delete(ctx, ownerKey)
}

type cartDocument struct {
	Lines     []cartLineDocument `firestore:"lines"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartLineDocument struct {
	ID        string `firestore:"id"`
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Image     string `firestore:"image"`
	Size      string `firestore:"size"`
	UnitPrice int64  `firestore:"price"`
	Quantity  int    `firestore:"quantity"`
}

func newCartLineDocument(line domain.CartLine) cartLineDocument {
	return cartLineDocument(line)
}

func (d cartLineDocument) toDomain() domain.CartLine {
	return domain.CartLine(d)
}

// WishlistRepository persists one wishlist document per owner key.
type WishlistRepository struct {
	base *pfirestore.BaseRepository[wishlistDocument]
}

var _ repositories.WishlistRepository = (*WishlistRepository)(nil)

// NewWishlistRepository constructs a Firestore-backed wishlist repository.
func NewWishlistRepository(provider *pfirestore.Provider) (*WishlistRepository, error) {
	if provider == nil {
		return nil, errors.New("wishlist repository requires firestore provider")
	}
	return &WishlistRepository{base: pfirestore.NewBaseRepository[wishlistDocument](provider, wishlistCollection)}, nil
}

// Get loads the wishlist stored under ownerKey.
func (r *WishlistRepository) Get(ctx context.Context, ownerKey string) (domain.Wishlist, error) {
	doc, err := r.base.Get(ctx, ownerKey)
	if err != nil {
		return domain.Wishlist{}, err
	}
	return domain.Wishlist{OwnerKey: doc.ID, ProductIDs: cloneStrings(doc.Data.ProductIDs), UpdatedAt: doc.Data.UpdatedAt}, nil
}

// Save replaces the wishlist document.
func (r *WishlistRepository) Save(ctx context.Context, wishlist domain.Wishlist) error {
	ownerKey := strings.TrimSpace(wishlist.OwnerKey)
	if ownerKey == "" {
		return errors.New("wishlist repository: owner key is required")
	}
	updatedAt := wishlist.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	return r.base.Set(ctx, ownerKey, wishlistDocument{ProductIDs: cloneStrings(wishlist.ProductIDs), UpdatedAt: updatedAt})
}

type wishlistDocument struct {
	ProductIDs []string  `firestore:"productIds"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}
