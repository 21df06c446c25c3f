package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/optimistics/storefront/internal/domain"
	pfirestore "github.com/optimistics/storefront/internal/platform/firestore"
	"github.com/optimistics/storefront/internal/repositories"
)

const (
	settingsCollection = "settings"
	shippingDocumentID = "shipping"
)

// ShippingConfigRepository stores the shipping table at settings/shipping.
type ShippingConfigRepository struct {
	base *pfirestore.BaseRepository[shippingDocument]
	now  func() time.Time
}

var _ repositories.ShippingConfigRepository = (*ShippingConfigRepository)(nil)

// NewShippingConfigRepository constructs a Firestore-backed shipping config repository.
func NewShippingConfigRepository(provider *pfirestore.Provider) (*ShippingConfigRepository, error) {
	if provider == nil {
		return nil, errors.New("shipping repository requires firestore provider")
	}
	return &ShippingConfigRepository{
		base: pfirestore.NewBaseRepository[shippingDocument](provider, settingsCollection),
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Get loads the shipping config. A missing document surfaces as a not-found error.
func (r *ShippingConfigRepository) Get(ctx context.Context) (domain.ShippingConfig, error) {
	doc, err := r.base.Get(ctx, shippingDocumentID)
	if err != nil {
		return domain.ShippingConfig{}, err
	}
	cfg := domain.ShippingConfig{
		DefaultFee:            doc.Data.DefaultFee,
		FreeShippingThreshold: doc.Data.FreeShippingThreshold,
		UpdatedAt:             doc.Data.UpdatedAt,
	}
	for _, rate := range doc.Data.Rates {
		cfg.Rates = append(cfg.Rates, domain.ShippingRate{Region: rate.State, Fee: rate.Fee})
	}
	return cfg, nil
}

// Save replaces the whole table, preserving rate order.
func (r *ShippingConfigRepository) Save(ctx context.Context, cfg domain.ShippingConfig) (domain.ShippingConfig, error) {
	cfg.UpdatedAt = r.now()
	doc := shippingDocument{
		DefaultFee:            cfg.DefaultFee,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		Rates:                 make([]shippingRateDocument, 0, len(cfg.Rates)),
		UpdatedAt:             cfg.UpdatedAt,
	}
	for _, rate := range cfg.Rates {
		doc.Rates = append(doc.Rates, shippingRateDocument{State: rate.Region, Fee: rate.Fee})
	}
	if err := r.base.Set(ctx, shippingDocumentID, doc); err != nil {
		return domain.ShippingConfig{}, err
	}
	return cfg, nil
}

type shippingDocument struct {
	DefaultFee            int64                  `firestore:"defaultFee"`
	FreeShippingThreshold int64                  `firestore:"freeShippingThreshold"`
	Rates                 []shippingRateDocument `firestore:"rates"`
	UpdatedAt             time.Time              `firestore:"updatedAt"`
}

type shippingRateDocument struct {
	State string `firestore:"state"`
	Fee   int64  `firestore:"fee"`
}
