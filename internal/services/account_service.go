package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/optimistics/storefront/internal/platform/auth"
	"github.com/optimistics/storefront/internal/repositories"
)

const defaultSignupBonus = 200

var (
	// ErrAccountInvalidInput indicates a malformed account request.
	ErrAccountInvalidInput = errors.New("account: invalid input")
	// ErrAccountNotFound indicates the profile does not exist.
	ErrAccountNotFound = errors.New("account: not found")
	// ErrAccountUnavailable indicates profile storage is unavailable.
	ErrAccountUnavailable = errors.New("account: unavailable")
)

type roleClaimSetter interface {
	SetRoleClaim(ctx context.Context, uid, role string) error
}

// AccountServiceDeps wires the account service.
type AccountServiceDeps struct {
	Users         repositories.UserRepository
	Claims        roleClaimSetter
	Notifications NotificationService
	SignupBonus   int64
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type accountService struct {
	users         repositories.UserRepository
	claims        roleClaimSetter
	notifications NotificationService
	signupBonus   int64
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
}

// NewAccountService constructs an AccountService.
func NewAccountService(deps AccountServiceDeps) (AccountService, error) {
	if deps.Users == nil {
		return nil, errors.New("account service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	bonus := deps.SignupBonus
	if bonus <= 0 {
		bonus = defaultSignupBonus
	}
	return &accountService{
		users:         deps.Users,
		claims:        deps.Claims,
		notifications: deps.Notifications,
		signupBonus:   bonus,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// EnsureProfile returns the caller's profile, creating it with the signup bonus on first use.
func (s *accountService) EnsureProfile(ctx context.Context, cmd EnsureProfileCommand) (UserProfile, error) {
	uid := strings.TrimSpace(cmd.UID)
	if uid == "" {
		return UserProfile{}, fmt.Errorf("%w: uid is required", ErrAccountInvalidInput)
	}
	profile, err := s.users.Get(ctx, uid)
	if err == nil {
		return profile, nil
	}
	if !isRepoNotFound(err) {
		return UserProfile{}, s.mapRepositoryError(err)
	}

	now := s.now()
	profile = UserProfile{
		UID:           uid,
		Name:          strings.TrimSpace(cmd.Name),
		Email:         strings.ToLower(strings.TrimSpace(cmd.Email)),
		Role:          auth.RoleCustomer,
		LoyaltyPoints: s.signupBonus,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, profile); err != nil {
		if isRepoConflict(err) {
			return s.GetProfile(ctx, uid)
		}
		return UserProfile{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "account.profile.created", map[string]any{
		"userId": uid,
		"bonus":  s.signupBonus,
	})
	if s.notifications != nil {
		s.notifications.Welcome(ctx, profile)
	}
	return profile, nil
}

func (s *accountService) GetProfile(ctx context.Context, uid string) (UserProfile, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return UserProfile{}, fmt.Errorf("%w: uid is required", ErrAccountInvalidInput)
	}
	profile, err := s.users.Get(ctx, uid)
	if err != nil {
		return UserProfile{}, s.mapRepositoryError(err)
	}
	return profile, nil
}

// AdjustPoints applies an operator correction atomically. A result below zero is rejected.
func (s *accountService) AdjustPoints(ctx context.Context, cmd AdjustPointsCommand) (int64, error) {
	uid := strings.TrimSpace(cmd.UID)
	if uid == "" || cmd.Delta == 0 {
		return 0, fmt.Errorf("%w: uid and a non-zero delta are required", ErrAccountInvalidInput)
	}
	balance, err := s.users.AdjustPoints(ctx, uid, cmd.Delta)
	if err != nil {
		if errors.Is(err, repositories.ErrLedgerRejected) {
			return 0, fmt.Errorf("%w: %v", ErrLedgerNegativeBalance, err)
		}
		return 0, s.mapRepositoryError(err)
	}
	s.logger(ctx, "account.points.adjusted", map[string]any{
		"userId":  uid,
		"delta":   cmd.Delta,
		"balance": balance,
		"actorId": strings.TrimSpace(cmd.ActorID),
		"reason":  strings.TrimSpace(cmd.Reason),
	})
	return balance, nil
}

// SetRole stores the role on the profile and mirrors it into the auth custom claims.
func (s *accountService) SetRole(ctx context.Context, uid, role string) (UserProfile, error) {
	uid = strings.TrimSpace(uid)
	role = strings.ToLower(strings.TrimSpace(role))
	if uid == "" || (role != auth.RoleCustomer && role != auth.RoleAdmin) {
		return UserProfile{}, fmt.Errorf("%w: uid and a role of customer or admin are required", ErrAccountInvalidInput)
	}
	if err := s.users.SetRole(ctx, uid, role); err != nil {
		return UserProfile{}, s.mapRepositoryError(err)
	}
	if s.claims != nil {
		if err := s.claims.SetRoleClaim(ctx, uid, role); err != nil {
			return UserProfile{}, fmt.Errorf("%w: set role claim: %v", ErrAccountUnavailable, err)
		}
	}
	s.logger(ctx, "account.role.set", map[string]any{"userId": uid, "role": role})
	return s.GetProfile(ctx, uid)
}

func (s *accountService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrAccountNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
}
