package services

import (
	"errors"
	"testing"

	domain "github.com/optimistics/storefront/internal/domain"
)

func lagosShipping() ShippingConfig {
	return ShippingConfig{
		DefaultFee:            3000,
		FreeShippingThreshold: 50000,
		Rates:                 []domain.ShippingRate{{Region: "Lagos", Fee: 2500}, {Region: "Abuja", Fee: 3500}},
	}
}

func TestAggregateCart(t *testing.T) {
	lines := []CartLine{
		{ID: "a-30ml", UnitPrice: 15000, Quantity: 2},
		{ID: "b-100ml", UnitPrice: 4500, Quantity: 1},
	}
	got := AggregateCart(lines)
	if got.Count != 3 || got.Subtotal != 34500 {
		t.Fatalf("unexpected summary %+v", got)
	}
	if empty := AggregateCart(nil); empty != (CartSummary{}) {
		t.Fatalf("expected zero summary, got %+v", empty)
	}
}

func TestShippingFee(t *testing.T) {
	cfg := lagosShipping()
	cases := []struct {
		name     string
		subtotal int64
		region   string
		want     int64
	}{
		{"override below threshold", 40000, "Lagos", 2500},
		{"threshold ignores region", 60000, "Lagos", 0},
		{"threshold with unknown region", 50000, "Kano", 0},
		{"default fee", 40000, "Kano", 3000},
		{"case sensitive region", 40000, "lagos", 3000},
		{"empty region pending", 40000, "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShippingFee(tc.subtotal, tc.region, cfg); got != tc.want {
				t.Fatalf("ShippingFee(%d, %q) = %d, want %d", tc.subtotal, tc.region, got, tc.want)
			}
		})
	}

	cfg.FreeShippingThreshold = 0
	for _, subtotal := range []int64{0, 1500, 1_000_000} {
		if got := ShippingFee(subtotal, "Kano", cfg); got != 0 {
			t.Fatalf("zero threshold should ship everything free, ShippingFee(%d) = %d", subtotal, got)
		}
	}
	if quote := PriceQuote([]CartLine{{UnitPrice: 1500, Quantity: 1}}, "", cfg, 0, 0); quote.ShippingPending {
		t.Fatalf("free shipping needs no region: %+v", quote)
	}
}

func TestDiscountAndTotals(t *testing.T) {
	if got := Discount(300, 300, 10000); got != 300 {
		t.Fatalf("expected full redemption, got %d", got)
	}
	if got := Discount(500, 300, 10000); got != 300 {
		t.Fatalf("expected balance cap, got %d", got)
	}
	if got := Discount(5000, 8000, 2000); got != 2000 {
		t.Fatalf("expected subtotal cap, got %d", got)
	}
	if got := Discount(-10, 100, 100); got != 0 {
		t.Fatalf("negative requests redeem nothing, got %d", got)
	}
	if got := FinalTotal(1000, 0, 1500); got != 0 {
		t.Fatalf("final total must not go negative, got %d", got)
	}
	if got := PointsEarned(9799); got != 97 {
		t.Fatalf("expected floor division, got %d", got)
	}
}

func TestSettleLoyalty(t *testing.T) {
	entry, err := SettleLoyalty(300, 12200, 300)
	if err != nil {
		t.Fatalf("SettleLoyalty: %v", err)
	}
	if entry.Earned != 122 || entry.Net != -178 || entry.NewBalance != 122 {
		t.Fatalf("unexpected entry %+v", entry)
	}

	_, err = SettleLoyalty(100, 0, 300)
	if !errors.Is(err, ErrLedgerNegativeBalance) {
		t.Fatalf("expected ErrLedgerNegativeBalance, got %v", err)
	}
}

func TestPriceQuoteScenarioC(t *testing.T) {
	lines := []CartLine{{ID: "oil-100ml", UnitPrice: 10000, Quantity: 1}}
	quote := PriceQuote(lines, "Lagos", lagosShipping(), 300, 300)
	if quote.Discount != 300 || quote.ShippingFee != 2500 {
		t.Fatalf("unexpected quote %+v", quote)
	}
	if quote.Total != 9700+2500 {
		t.Fatalf("expected total 12200, got %d", quote.Total)
	}
	if quote.PointsEarned != 122 {
		t.Fatalf("expected points on the amount paid including shipping, got %d", quote.PointsEarned)
	}
	if quote.ShippingPending {
		t.Fatalf("region is set; shipping should not be pending")
	}

	pending := PriceQuote(lines, "", lagosShipping(), 0, 0)
	if !pending.ShippingPending || pending.ShippingFee != 0 {
		t.Fatalf("expected pending shipping, got %+v", pending)
	}
}
