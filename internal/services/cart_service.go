package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/repositories"
	"github.com/optimistics/storefront/internal/state"
)

const defaultLiveCarts = 4096

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input parameters.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartProductNotFound indicates the product being added does not exist.
	ErrCartProductNotFound = errors.New("cart: product not found")
	// ErrCartOutOfStock indicates the product is flagged as out of stock.
	ErrCartOutOfStock = errors.New("cart: product out of stock")
	// ErrCartItemNotFound indicates the line id is not in the cart.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartUnavailable indicates cart storage is unavailable.
	ErrCartUnavailable = errors.New("cart: unavailable")
)

// CartServiceDeps wires the cart service.
type CartServiceDeps struct {
	Products  repositories.ProductRepository
	Carts     repositories.CartRepository
	Pricing   PriceResolver
	LiveCarts int
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	products repositories.ProductRepository
	pricing  PriceResolver
	stores   *state.Registry[Cart]
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCartService constructs a CartService. Live carts are kept in a bounded registry of state
// stores persisted through the cart repository.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	size := deps.LiveCarts
	if size <= 0 {
		size = defaultLiveCarts
	}

	repo := deps.Carts
	stores, err := state.NewRegistry(size, func(key string) *state.Store[Cart] {
		return state.New(Cart{OwnerKey: key},
			state.WithPersister[Cart](&cartPersister{repo: repo, ownerKey: key}),
			state.WithClone(cloneCart),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}

	return &cartService{
		products: deps.Products,
		pricing:  deps.Pricing,
		stores:   stores,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, ownerKey string) (Cart, error) {
	store, err := s.store(ownerKey)
	if err != nil {
		return Cart{}, err
	}
	cart, err := store.Get(ctx)
	if err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}
	return cart, nil
}

// AddItem merges by line id. A repeated add keeps the first price snapshot.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" || cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: product id and a positive quantity are required", ErrCartInvalidInput)
	}
	store, err := s.store(cmd.OwnerKey)
	if err != nil {
		return Cart{}, err
	}

	product, err := s.products.Get(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCartProductNotFound
		}
		return Cart{}, s.mapRepositoryError(err)
	}
	if !product.InStock {
		return Cart{}, ErrCartOutOfStock
	}
	price, err := s.pricing.Resolve(product, cmd.Size)
	if err != nil {
		return Cart{}, fmt.Errorf("%w: %w", ErrCartInvalidInput, err)
	}

	line := CartLine{
		ID:        domain.CartLineID(product.ID, price.Size),
		ProductID: product.ID,
		Name:      product.Name,
		Image:     product.PrimaryImage(),
		Size:      price.Size,
		UnitPrice: price.UnitPrice,
		Quantity:  cmd.Quantity,
	}
	cart, err := store.Update(ctx, func(cart Cart) (Cart, error) {
		cart.Lines = mergeLine(cart.Lines, line)
		cart.UpdatedAt = s.now()
		return cart, nil
	})
	if err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "cart.item.added", map[string]any{
		"lineId":   line.ID,
		"quantity": cmd.Quantity,
	})
	return cart, nil
}

// UpdateQuantity sets a line's quantity; zero or less removes it.
func (s *cartService) UpdateQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	lineID := strings.TrimSpace(cmd.LineID)
	if lineID == "" {
		return Cart{}, fmt.Errorf("%w: line id is required", ErrCartInvalidInput)
	}
	return s.mutateLine(ctx, cmd.OwnerKey, lineID, func(lines []CartLine, idx int) []CartLine {
		if cmd.Quantity <= 0 {
			return slices.Delete(lines, idx, idx+1)
		}
		lines[idx].Quantity = cmd.Quantity
		return lines
	})
}

func (s *cartService) RemoveItem(ctx context.Context, ownerKey, lineID string) (Cart, error) {
	lineID = strings.TrimSpace(lineID)
	if lineID == "" {
		return Cart{}, fmt.Errorf("%w: line id is required", ErrCartInvalidInput)
	}
	return s.mutateLine(ctx, ownerKey, lineID, func(lines []CartLine, idx int) []CartLine {
		return slices.Delete(lines, idx, idx+1)
	})
}

func (s *cartService) ClearCart(ctx context.Context, ownerKey string) error {
	store, err := s.store(ownerKey)
	if err != nil {
		return err
	}
	_, err = store.Update(ctx, func(cart Cart) (Cart, error) {
		cart.Lines = nil
		cart.UpdatedAt = s.now()
		return cart, nil
	})
	if err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *cartService) Summary(ctx context.Context, ownerKey string) (CartSummary, error) {
	cart, err := s.GetCart(ctx, ownerKey)
	if err != nil {
		return CartSummary{}, err
	}
	return AggregateCart(cart.Lines), nil
}

// MergeGuestCart moves a guest cart into the signed-in user's cart and empties the guest cart.
func (s *cartService) MergeGuestCart(ctx context.Context, guestKey, userID string) (Cart, error) {
	guestKey = strings.TrimSpace(guestKey)
	userID = strings.TrimSpace(userID)
	if guestKey == "" || userID == "" || guestKey == userID {
		return Cart{}, fmt.Errorf("%w: guest key and user id are required", ErrCartInvalidInput)
	}
	guestStore, err := s.store(guestKey)
	if err != nil {
		return Cart{}, err
	}
	guest, err := guestStore.Get(ctx)
	if err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}
	userStore, err := s.store(userID)
	if err != nil {
		return Cart{}, err
	}
	if len(guest.Lines) == 0 {
		cart, err := userStore.Get(ctx)
		if err != nil {
			return Cart{}, s.mapRepositoryError(err)
		}
		return cart, nil
	}

	cart, err := userStore.Update(ctx, func(cart Cart) (Cart, error) {
		for _, line := range guest.Lines {
			cart.Lines = mergeLine(cart.Lines, line)
		}
		cart.UpdatedAt = s.now()
		return cart, nil
	})
	if err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}
	if err := s.ClearCart(ctx, guestKey); err != nil {
		s.logger(ctx, "cart.merge.guest_clear_failed", map[string]any{"error": err.Error()})
	}
	s.stores.Forget(guestKey)
	s.logger(ctx, "cart.merged", map[string]any{
		"userId": userID,
		"lines":  len(guest.Lines),
	})
	return cart, nil
}

// Subscribe registers fn for every committed change to the owner's cart.
func (s *cartService) Subscribe(ownerKey string, fn func(Cart)) func() {
	ownerKey = strings.TrimSpace(ownerKey)
	if ownerKey == "" || fn == nil {
		return func() {}
	}
	return s.stores.Subscribe(ownerKey, state.Listener[Cart](fn))
}

func (s *cartService) mutateLine(ctx context.Context, ownerKey, lineID string, mutate func([]CartLine, int) []CartLine) (Cart, error) {
	store, err := s.store(ownerKey)
	if err != nil {
		return Cart{}, err
	}
	cart, err := store.Update(ctx, func(cart Cart) (Cart, error) {
		idx := slices.IndexFunc(cart.Lines, func(l CartLine) bool { return l.ID == lineID })
		if idx < 0 {
			return cart, ErrCartItemNotFound
		}
		cart.Lines = mutate(cart.Lines, idx)
		cart.UpdatedAt = s.now()
		return cart, nil
	})
	if err != nil {
		if errors.Is(err, ErrCartItemNotFound) {
			return Cart{}, err
		}
		return Cart{}, s.mapRepositoryError(err)
	}
	return cart, nil
}

func (s *cartService) store(ownerKey string) (*state.Store[Cart], error) {
	ownerKey = strings.TrimSpace(ownerKey)
	if ownerKey == "" {
		return nil, fmt.Errorf("%w: cart owner is required", ErrCartInvalidInput)
	}
	return s.stores.Store(ownerKey), nil
}

func (s *cartService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}

func mergeLine(lines []CartLine, line CartLine) []CartLine {
	for i := range lines {
		if lines[i].ID == line.ID {
			lines[i].Quantity += line.Quantity
			return lines
		}
	}
	return append(lines, line)
}

func cloneCart(cart Cart) Cart {
	cart.Lines = cloneCartLines(cart.Lines)
	return cart
}

// cartPersister stores one owner's cart document. An empty cart deletes the document.
type cartPersister struct {
	repo     repositories.CartRepository
	ownerKey string
}

func (p *cartPersister) Load(ctx context.Context) (Cart, bool, error) {
	cart, err := p.repo.Get(ctx, p.ownerKey)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, false, nil
		}
		return Cart{}, false, err
	}
	cart.OwnerKey = p.ownerKey
	return cart, true, nil
}

func (p *cartPersister) Save(ctx context.Context, cart Cart) error {
	cart.OwnerKey = p.ownerKey
	if len(cart.Lines) == 0 {
		if err := p.repo.Delete(ctx, p.ownerKey); err != nil && !isRepoNotFound(err) {
			return err
		}
		return nil
	}
	return p.repo.Save(ctx, cart)
}
