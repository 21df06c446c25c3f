package services

import (
	"errors"
	"fmt"
)

// ErrLedgerNegativeBalance indicates a settlement would leave the loyalty balance below zero.
var ErrLedgerNegativeBalance = errors.New("loyalty: balance would become negative")

const pointsPerCurrencyUnit = 100

// AggregateCart sums quantities and line totals.
func AggregateCart(lines []CartLine) CartSummary {
	var summary CartSummary
	for _, line := range lines {
		summary.Count += line.Quantity
		summary.Subtotal += line.LineTotal()
	}
	return summary
}

func freeShipping(subtotal int64, cfg ShippingConfig) bool {
	return subtotal >= cfg.FreeShippingThreshold
}

// ShippingFee applies the shipping table. A subtotal at or above the threshold ships free (a zero
// threshold frees every order); an exact region override wins next; an empty region is not yet
// computable and returns 0; everything else pays the default fee.
func ShippingFee(subtotal int64, region string, cfg ShippingConfig) int64 {
	if freeShipping(subtotal, cfg) {
		return 0
	}
	if region == "" {
		return 0
	}
	for _, rate := range cfg.Rates {
		if rate.Region == region {
			return max(rate.Fee, 0)
		}
	}
	return max(cfg.DefaultFee, 0)
}

// MaxRedeemable caps redemption at the balance and the subtotal.
func MaxRedeemable(balance, subtotal int64) int64 {
	return max(min(balance, subtotal), 0)
}

// Discount is the redemption actually applied, one point per currency unit.
func Discount(requested, balance, subtotal int64) int64 {
	return max(min(requested, MaxRedeemable(balance, subtotal)), 0)
}

// FinalTotal is the amount charged.
func FinalTotal(subtotal, shipping, discount int64) int64 {
	return max(subtotal+shipping-discount, 0)
}

// PointsEarned awards one point per 100 currency units of the final total.
func PointsEarned(finalTotal int64) int64 {
	if finalTotal <= 0 {
		return 0
	}
	return finalTotal / pointsPerCurrencyUnit
}

// LedgerEntry is the loyalty movement of one settled order.
type LedgerEntry struct {
	Earned     int64
	Redeemed   int64
	Net        int64
	NewBalance int64
}

// SettleLoyalty computes the balance after an order. The result must not be negative.
func SettleLoyalty(balance, finalTotal, redeemed int64) (LedgerEntry, error) {
	earned := PointsEarned(finalTotal)
	entry := LedgerEntry{
		Earned:     earned,
		Redeemed:   redeemed,
		Net:        earned - redeemed,
		NewBalance: balance + earned - redeemed,
	}
	if entry.NewBalance < 0 {
		return entry, fmt.Errorf("%w: balance %d, net %d", ErrLedgerNegativeBalance, balance, entry.Net)
	}
	return entry, nil
}

// PriceQuote assembles a quote from a cart, the shipping table and the caller's balance.
// Guests pass a zero balance and redeem nothing.
func PriceQuote(lines []CartLine, region string, cfg ShippingConfig, balance, redeem int64) Quote {
	summary := AggregateCart(lines)
	shipping := ShippingFee(summary.Subtotal, region, cfg)
	discount := Discount(redeem, balance, summary.Subtotal)
	total := FinalTotal(summary.Subtotal, shipping, discount)
	return Quote{
		Count:           summary.Count,
		Subtotal:        summary.Subtotal,
		ShippingFee:     shipping,
		PointsRedeemed:  discount,
		Discount:        discount,
		Total:           total,
		PointsEarned:    PointsEarned(total),
		Region:          region,
		ShippingPending: region == "" && !freeShipping(summary.Subtotal, cfg),
		PointsBalance:   balance,
		MaxRedeemable:   MaxRedeemable(balance, summary.Subtotal),
	}
}
