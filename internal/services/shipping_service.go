package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/repositories"
)

var (
	// ErrShippingInvalidInput indicates a rejected shipping draft.
	ErrShippingInvalidInput = errors.New("shipping: invalid input")
	// ErrShippingUnavailable indicates the settings document could not be read or written.
	ErrShippingUnavailable = errors.New("shipping: unavailable")
)

// ShippingServiceDeps wires the shipping settings service.
type ShippingServiceDeps struct {
	Repository repositories.ShippingConfigRepository
	// Fallback is served until an administrator saves a table.
	Fallback ShippingConfig
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type shippingService struct {
	repo     repositories.ShippingConfigRepository
	fallback ShippingConfig
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewShippingService constructs a ShippingService.
func NewShippingService(deps ShippingServiceDeps) (ShippingService, error) {
	if deps.Repository == nil {
		return nil, errors.New("shipping service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &shippingService{
		repo:     deps.Repository,
		fallback: deps.Fallback,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *shippingService) GetConfig(ctx context.Context) (ShippingConfig, error) {
	cfg, err := s.repo.Get(ctx)
	if err != nil {
		if isRepoNotFound(err) {
			return s.fallback, nil
		}
		return ShippingConfig{}, fmt.Errorf("%w: %v", ErrShippingUnavailable, err)
	}
	return cfg, nil
}

// SaveConfig replaces the whole table with the validated draft.
func (s *shippingService) SaveConfig(ctx context.Context, draft domain.ShippingConfigDraft) (ShippingConfig, error) {
	cfg, err := draft.Validate()
	if err != nil {
		return ShippingConfig{}, fmt.Errorf("%w: %w", ErrShippingInvalidInput, err)
	}
	cfg.UpdatedAt = s.now()
	saved, err := s.repo.Save(ctx, cfg)
	if err != nil {
		return ShippingConfig{}, fmt.Errorf("%w: %v", ErrShippingUnavailable, err)
	}
	s.logger(ctx, "shipping.config.saved", map[string]any{
		"defaultFee": saved.DefaultFee,
		"threshold":  saved.FreeShippingThreshold,
		"regions":    len(saved.Rates),
	})
	return saved, nil
}
