package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestCartService(t *testing.T, products *memProducts, carts *memCarts, opts ...PricingOption) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Products: products,
		Carts:    carts,
		Pricing:  NewPriceResolver(opts...),
		Clock:    func() time.Time { return checkoutNow },
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func shea() Product {
	return Product{
		ID:         "shea",
		Name:       "Shea Butter",
		Price:      4000,
		BaseSize:   "100g",
		SizePrices: map[string]int64{"100g": 4000, "250g": 8500},
		Images:     []string{"https://cdn.example.com/shea.jpg"},
		InStock:    true,
	}
}

func TestCartServiceAddMergesAndSnapshotsPrice(t *testing.T) {
	products := newMemProducts(shea())
	carts := newMemCarts()
	svc := newTestCartService(t, products, carts)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{OwnerKey: "u1", ProductID: "shea", Size: "250g", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	updated := shea()
	updated.SizePrices["250g"] = 9999
	products.items["shea"] = updated

	cart, err := svc.AddItem(ctx, AddCartItemCommand{OwnerKey: "u1", ProductID: "shea", Size: "250g", Quantity: 2})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(cart.Lines) != 1 {
		t.Fatalf("expected merged line, got %+v", cart.Lines)
	}
	line := cart.Lines[0]
	if line.ID != "shea-250g" || line.Quantity != 3 || line.UnitPrice != 8500 || line.Image != "https://cdn.example.com/shea.jpg" {
		t.Fatalf("unexpected line %+v", line)
	}
	stored, err := carts.Get(ctx, "u1")
	if err != nil || len(stored.Lines) != 1 {
		t.Fatalf("cart not persisted: %+v %v", stored, err)
	}
}

func TestCartServiceRejectsUnknownVariantUnlessLenient(t *testing.T) {
	ctx := context.Background()
	strict := newTestCartService(t, newMemProducts(shea()), newMemCarts())
	_, err := strict.AddItem(ctx, AddCartItemCommand{OwnerKey: "u1", ProductID: "shea", Size: "1kg", Quantity: 1})
	if !errors.Is(err, ErrUnknownVariant) || !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected unknown variant, got %v", err)
	}

	lenient := newTestCartService(t, newMemProducts(shea()), newMemCarts(), LenientPricing())
	cart, err := lenient.AddItem(ctx, AddCartItemCommand{OwnerKey: "u1", ProductID: "shea", Size: "1kg", Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if cart.Lines[0].UnitPrice != 4000 || cart.Lines[0].Size != "100g" {
		t.Fatalf("expected base price fallback, got %+v", cart.Lines[0])
	}
}

func TestCartServiceAddValidation(t *testing.T) {
	soldOut := shea()
	soldOut.ID = "soldout"
	soldOut.InStock = false
	svc := newTestCartService(t, newMemProducts(shea(), soldOut), newMemCarts())
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  AddCartItemCommand
		want error
	}{
		{"missing owner", AddCartItemCommand{ProductID: "shea", Quantity: 1}, ErrCartInvalidInput},
		{"zero quantity", AddCartItemCommand{OwnerKey: "u1", ProductID: "shea"}, ErrCartInvalidInput},
		{"unknown product", AddCartItemCommand{OwnerKey: "u1", ProductID: "nope", Quantity: 1}, ErrCartProductNotFound},
		{"out of stock", AddCartItemCommand{OwnerKey: "u1", ProductID: "soldout", Quantity: 1}, ErrCartOutOfStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.AddItem(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCartServiceUpdateQuantityRemovesAtZero(t *testing.T) {
	carts := newMemCarts()
	svc := newTestCartService(t, newMemProducts(shea()), carts)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{OwnerKey: "u1", ProductID: "shea", Quantity: 2}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	cart, err := svc.UpdateQuantity(ctx, UpdateCartItemCommand{OwnerKey: "u1", LineID: "shea-100g", Quantity: 5})
	if err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	if cart.Lines[0].Quantity != 5 {
		t.Fatalf("expected 5, got %d", cart.Lines[0].Quantity)
	}
	summary, err := svc.Summary(ctx, "u1")
	if err != nil || summary.Count != 5 || summary.Subtotal != 20000 {
		t.Fatalf("unexpected summary %+v %v", summary, err)
	}

	cart, err = svc.UpdateQuantity(ctx, UpdateCartItemCommand{OwnerKey: "u1", LineID: "shea-100g", Quantity: 0})
	if err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart.Lines)
	}
	if _, err := carts.Get(ctx, "u1"); err == nil {
		t.Fatalf("empty cart document should be deleted")
	}

	if _, err := svc.RemoveItem(ctx, "u1", "shea-100g"); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}

func TestCartServiceFailedPersistLeavesStateUnchanged(t *testing.T) {
	carts := newMemCarts()
	svc := newTestCartService(t, newMemProducts(shea()), carts)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{OwnerKey: "u1", ProductID: "shea", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	carts.saveErr = errFakeUnavailable
	if _, err := svc.AddItem(ctx, AddCartItemCommand{OwnerKey: "u1", ProductID: "shea", Quantity: 1}); !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	cart, err := svc.GetCart(ctx, "u1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if cart.Lines[0].Quantity != 1 {
		t.Fatalf("failed update leaked into state: %+v", cart.Lines)
	}
}

func TestCartServiceMergeGuestCart(t *testing.T) {
	carts := newMemCarts()
	svc := newTestCartService(t, newMemProducts(shea()), carts)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{OwnerKey: "guest-1", ProductID: "shea", Quantity: 2}); err != nil {
		t.Fatalf("AddItem guest: %v", err)
	}
	if _, err := svc.AddItem(ctx, AddCartItemCommand{OwnerKey: "u1", ProductID: "shea", Quantity: 1}); err != nil {
		t.Fatalf("AddItem user: %v", err)
	}

	cart, err := svc.MergeGuestCart(ctx, "guest-1", "u1")
	if err != nil {
		t.Fatalf("MergeGuestCart: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 3 {
		t.Fatalf("unexpected merged cart %+v", cart.Lines)
	}
	guest, err := svc.GetCart(ctx, "guest-1")
	if err != nil {
		t.Fatalf("GetCart guest: %v", err)
	}
	if len(guest.Lines) != 0 {
		t.Fatalf("guest cart should be empty, got %+v", guest.Lines)
	}
	if _, err := svc.MergeGuestCart(ctx, "u1", "u1"); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input merging into self, got %v", err)
	}
}

func TestCartServiceSubscribeReceivesCommits(t *testing.T) {
	svc := newTestCartService(t, newMemProducts(shea()), newMemCarts())
	ctx := context.Background()

	var seen []int
	unsubscribe := svc.Subscribe("u1", func(cart Cart) {
		seen = append(seen, AggregateCart(cart.Lines).Count)
	})
	if _, err := svc.AddItem(ctx, AddCartItemCommand{OwnerKey: "u1", ProductID: "shea", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := svc.AddItem(ctx, AddCartItemCommand{OwnerKey: "u1", ProductID: "shea", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	unsubscribe()
	if err := svc.ClearCart(ctx, "u1"); err != nil {
		t.Fatalf("ClearCart: %v", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("unexpected notifications %v", seen)
	}
}
