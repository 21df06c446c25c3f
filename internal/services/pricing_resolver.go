package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownVariant indicates a size label that the product's size map does not define.
var ErrUnknownVariant = errors.New("pricing: unknown variant")

// ResolvedPrice is the size and unit price a cart line snapshots.
type ResolvedPrice struct {
	Size      string
	UnitPrice int64
}

// PriceResolver maps a product and variant label to a unit price. It holds no state.
type PriceResolver struct {
	lenient bool
}

// PricingOption customises a PriceResolver.
type PricingOption func(*PriceResolver)

// LenientPricing makes unknown variants resolve to the base price instead of ErrUnknownVariant.
func LenientPricing() PricingOption {
	return func(r *PriceResolver) {
		r.lenient = true
	}
}

// NewPriceResolver constructs a resolver.
func NewPriceResolver(opts ...PricingOption) PriceResolver {
	var r PriceResolver
	for _, opt := range opts {
		if opt != nil {
			opt(&r)
		}
	}
	return r
}

// Resolve returns the unit price for variant. An empty variant or the base size yields the base
// price; products without a size map ignore the variant.
func (r PriceResolver) Resolve(product Product, variant string) (ResolvedPrice, error) {
	variant = strings.TrimSpace(variant)
	base := ResolvedPrice{Size: product.BaseSize, UnitPrice: product.Price}
	if variant == "" || variant == product.BaseSize || len(product.SizePrices) == 0 {
		return base, nil
	}
	if price, ok := product.SizePrices[variant]; ok {
		return ResolvedPrice{Size: variant, UnitPrice: price}, nil
	}
	if r.lenient {
		return base, nil
	}
	return ResolvedPrice{}, fmt.Errorf("%w: %q for product %s", ErrUnknownVariant, variant, product.ID)
}
