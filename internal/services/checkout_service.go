package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/payments"
	"github.com/optimistics/storefront/internal/repositories"
)

const (
	orderIDPrefix            = "ORD-"
	defaultCheckoutTTL       = 30 * time.Minute
	clientStatusCancelled    = "cancelled"
	settlementActor          = "system"
	checkoutOutcomeSettled   = "settled"
	checkoutOutcomeCancelled = "cancelled"
	checkoutOutcomeFailed    = "persist_failed"
	checkoutOutcomeRejected  = "amount_mismatch"
)

var (
	// ErrCheckoutInvalidInput indicates missing or malformed checkout fields.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutEmptyCart indicates checkout was attempted with nothing in the cart.
	ErrCheckoutEmptyCart = errors.New("checkout: cart is empty")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutSessionNotFound indicates the order id does not name a started checkout.
	ErrCheckoutSessionNotFound = errors.New("checkout: session not found")
	// ErrCheckoutPaymentFailed indicates the gateway could not start or confirm the payment.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrPaymentCancelled indicates the customer cancelled or the gateway declined the payment.
	ErrPaymentCancelled = errors.New("checkout: payment cancelled")
	// ErrPaymentPending indicates the gateway has not reported a result yet.
	ErrPaymentPending = errors.New("checkout: payment pending")
	// ErrSettlementPersistence indicates the payment succeeded but the order could not be stored.
	ErrSettlementPersistence = errors.New("checkout: payment received but order was not saved")
)

// SettlementError carries the payment reference the customer should quote to support.
type SettlementError struct {
	OrderID          string
	PaymentReference string
	Err              error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("%s (reference %s): %v", ErrSettlementPersistence, e.PaymentReference, e.Err)
}

// Is matches ErrSettlementPersistence.
func (e *SettlementError) Is(target error) bool {
	return target == ErrSettlementPersistence
}

func (e *SettlementError) Unwrap() error { return e.Err }

type checkoutCarts interface {
	GetCart(ctx context.Context, ownerKey string) (Cart, error)
	ClearCart(ctx context.Context, ownerKey string) error
}

type paymentGateway interface {
	Initialize(ctx context.Context, pctx payments.PaymentContext, req payments.InitRequest) (payments.Initialization, error)
	LookupPayment(ctx context.Context, pctx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

type paymentAwaiter interface {
	Await(ctx context.Context, pctx payments.PaymentContext, req payments.LookupRequest) (payments.Outcome, error)
	Notify(details payments.PaymentDetails) bool
}

type checkoutMetrics interface {
	RecordOutcome(ctx context.Context, outcome string, total int64)
	RecordPoints(ctx context.Context, earned, redeemed int64)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts            checkoutCarts
	Shipping         repositories.ShippingConfigRepository
	Users            repositories.UserRepository
	Sessions         repositories.CheckoutSessionRepository
	Orders           repositories.OrderRepository
	Settlement       repositories.SettlementRepository
	Payments         paymentGateway
	Awaiter          paymentAwaiter
	Reconciliations  ReconciliationService
	Notifications    NotificationService
	Metrics          checkoutMetrics
	FallbackShipping ShippingConfig
	Currency         string
	SessionTTL       time.Duration
	Clock            func() time.Time
	IDGenerator      func() string
	Logger           func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts            checkoutCarts
	shipping         repositories.ShippingConfigRepository
	users            repositories.UserRepository
	sessions         repositories.CheckoutSessionRepository
	orders           repositories.OrderRepository
	settlement       repositories.SettlementRepository
	payments         paymentGateway
	awaiter          paymentAwaiter
	reconciliations  ReconciliationService
	notifications    NotificationService
	metrics          checkoutMetrics
	fallbackShipping ShippingConfig
	currency         string
	ttl              time.Duration
	now              func() time.Time
	newID            func() string
	logger           func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Carts == nil:
		return nil, errors.New("checkout service: cart service is required")
	case deps.Shipping == nil:
		return nil, errors.New("checkout service: shipping repository is required")
	case deps.Users == nil:
		return nil, errors.New("checkout service: user repository is required")
	case deps.Sessions == nil:
		return nil, errors.New("checkout service: checkout session repository is required")
	case deps.Orders == nil:
		return nil, errors.New("checkout service: order repository is required")
	case deps.Settlement == nil:
		return nil, errors.New("checkout service: settlement repository is required")
	case deps.Payments == nil:
		return nil, errors.New("checkout service: payment manager is required")
	case deps.Awaiter == nil:
		return nil, errors.New("checkout service: payment awaiter is required")
	case deps.Reconciliations == nil:
		return nil, errors.New("checkout service: reconciliation service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = defaultCheckoutTTL
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "NGN"
	}

	return &checkoutService{
		carts:            deps.Carts,
		shipping:         deps.Shipping,
		users:            deps.Users,
		sessions:         deps.Sessions,
		orders:           deps.Orders,
		settlement:       deps.Settlement,
		payments:         deps.Payments,
		awaiter:          deps.Awaiter,
		reconciliations:  deps.Reconciliations,
		notifications:    deps.Notifications,
		metrics:          deps.Metrics,
		fallbackShipping: deps.FallbackShipping,
		currency:         currency,
		ttl:              ttl,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Quote prices the owner's cart. Empty carts are rejected before anything else is read.
func (s *checkoutService) Quote(ctx context.Context, cmd QuoteCommand) (Quote, error) {
	ownerKey := strings.TrimSpace(cmd.OwnerKey)
	if ownerKey == "" {
		return Quote{}, fmt.Errorf("%w: cart owner is required", ErrCheckoutInvalidInput)
	}
	cart, err := s.loadCart(ctx, ownerKey)
	if err != nil {
		return Quote{}, err
	}
	return s.priceCart(ctx, cart, strings.TrimSpace(cmd.UserID), strings.TrimSpace(cmd.Region), cmd.RedeemPoints)
}

// Begin validates the checkout form, prices the cart, starts the hosted payment and records the
// session that Complete settles.
func (s *checkoutService) Begin(ctx context.Context, cmd BeginCheckoutCommand) (CheckoutStart, error) {
	cmd = normaliseBeginCommand(cmd)
	if missing := missingCheckoutFields(cmd); len(missing) > 0 {
		return CheckoutStart{}, fmt.Errorf("%w: missing %s", ErrCheckoutInvalidInput, strings.Join(missing, ", "))
	}

	cart, err := s.loadCart(ctx, cmd.OwnerKey)
	if err != nil {
		return CheckoutStart{}, err
	}
	quote, err := s.priceCart(ctx, cart, cmd.UserID, cmd.Region, cmd.RedeemPoints)
	if err != nil {
		return CheckoutStart{}, err
	}
	if quote.Total <= 0 {
		return CheckoutStart{}, fmt.Errorf("%w: nothing to charge", ErrCheckoutInvalidInput)
	}

	now := s.now()
	orderID := orderIDPrefix + s.newID()
	reference := orderID + "-" + strconv.FormatInt(now.UnixMilli(), 10)
	currency := cmd.Currency
	if currency == "" {
		currency = s.currency
	}

	pctx := payments.PaymentContext{PreferredProvider: cmd.PreferredProvider, Currency: currency}
	init, err := s.payments.Initialize(ctx, pctx, payments.InitRequest{
		Reference:     reference,
		Amount:        quote.Total,
		Currency:      currency,
		CustomerName:  cmd.Contact.FullName(),
		CustomerEmail: cmd.Contact.Email,
		CustomerPhone: cmd.Contact.Phone,
		Description:   "Order " + orderID,
		RedirectURL:   cmd.RedirectURL,
		Metadata: map[string]string{
			"orderId": orderID,
			"userId":  cmd.UserID,
		},
	})
	if err != nil {
		s.logger(ctx, "checkout.payment.init_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		return CheckoutStart{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	expiresAt := now.Add(s.ttl)
	if !init.ExpiresAt.IsZero() && init.ExpiresAt.Before(expiresAt) {
		expiresAt = init.ExpiresAt
	}
	session := CheckoutSession{
		OrderID:           orderID,
		PaymentReference:  reference,
		OwnerKey:          cmd.OwnerKey,
		UserID:            cmd.UserID,
		Contact:           cmd.Contact,
		Address:           cmd.Address,
		Region:            cmd.Region,
		Lines:             cloneCartLines(cart.Lines),
		Quote:             quote,
		Provider:          init.Provider,
		ProviderReference: init.ProviderReference,
		CheckoutURL:       init.CheckoutURL,
		Status:            domain.CheckoutSessionOpen,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         expiresAt,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return CheckoutStart{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "checkout.session.started", map[string]any{
		"orderId":          orderID,
		"paymentReference": reference,
		"provider":         init.Provider,
		"total":            quote.Total,
		"guest":            cmd.UserID == "",
	})

	return CheckoutStart{
		OrderID:          orderID,
		PaymentReference: reference,
		Quote:            quote,
		Payment:          init,
		ExpiresAt:        expiresAt,
	}, nil
}

// Complete resolves the gateway result for a started checkout and settles it.
func (s *checkoutService) Complete(ctx context.Context, cmd CompleteCheckoutCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrCheckoutInvalidInput)
	}
	session, err := s.sessions.Get(ctx, orderID)
	if err != nil {
		return Order{}, s.mapSessionError(err)
	}
	if !ownsSession(session, strings.TrimSpace(cmd.OwnerKey), strings.TrimSpace(cmd.UserID)) {
		return Order{}, ErrCheckoutSessionNotFound
	}
	if ref := strings.TrimSpace(cmd.PaymentReference); ref != "" && ref != session.PaymentReference {
		return Order{}, fmt.Errorf("%w: payment reference does not match", ErrCheckoutInvalidInput)
	}

	switch session.Status {
	case domain.CheckoutSessionSettled:
		return s.settledOrder(ctx, orderID)
	case domain.CheckoutSessionCancelled:
		return Order{}, ErrPaymentCancelled
	case domain.CheckoutSessionFailed:
		return Order{}, fmt.Errorf("%w: payment held for review, reference %s", ErrCheckoutPaymentFailed, session.PaymentReference)
	}

	if strings.EqualFold(strings.TrimSpace(cmd.ClientStatus), clientStatusCancelled) {
		return s.confirmCancellation(ctx, session)
	}
	outcome, err := s.awaitOutcome(ctx, session)
	if err != nil {
		return Order{}, err
	}
	if !outcome.IsCompleted() {
		s.cancel(ctx, session)
		return Order{}, ErrPaymentCancelled
	}
	return s.settlePaid(ctx, session, outcome)
}

// HandlePaymentNotification routes a verified gateway webhook. A caller blocked in Complete takes
// the result; otherwise the session is settled or cancelled here. A completed payment is settled
// even when the browser already reported a cancel.
func (s *checkoutService) HandlePaymentNotification(ctx context.Context, details payments.PaymentDetails) error {
	reference := strings.TrimSpace(details.Reference)
	if reference == "" {
		return fmt.Errorf("%w: payment reference is required", ErrCheckoutInvalidInput)
	}
	if s.awaiter.Notify(details) {
		return nil
	}

	outcome, terminal := payments.OutcomeFromDetails(details)
	if !terminal {
		return nil
	}
	orderID := orderIDFromReference(reference)
	session, err := s.sessions.Get(ctx, orderID)
	if err != nil {
		return s.mapSessionError(err)
	}
	if session.PaymentReference != reference {
		return fmt.Errorf("%w: unknown payment reference", ErrCheckoutSessionNotFound)
	}

	switch session.Status {
	case domain.CheckoutSessionSettled, domain.CheckoutSessionFailed:
		return nil
	case domain.CheckoutSessionCancelled:
		if !outcome.IsCompleted() {
			return nil
		}
		s.logger(ctx, "checkout.payment.after_cancel", map[string]any{
			"orderId":          session.OrderID,
			"paymentReference": reference,
		})
	default:
		if !outcome.IsCompleted() {
			s.cancel(ctx, session)
			return nil
		}
	}
	_, err = s.settlePaid(ctx, session, outcome)
	return err
}

// confirmCancellation checks a browser-reported cancel with the gateway. Only a terminal gateway
// state changes the session; while the payment is pending or the lookup fails the session stays
// open so a later notification can still settle it.
func (s *checkoutService) confirmCancellation(ctx context.Context, session CheckoutSession) (Order, error) {
	pctx, req := paymentLookup(session)
	details, err := s.payments.LookupPayment(ctx, pctx, req)
	if err != nil {
		s.logger(ctx, "checkout.payment.lookup_failed", map[string]any{
			"orderId": session.OrderID,
			"error":   err.Error(),
		})
		return Order{}, ErrPaymentCancelled
	}
	outcome, terminal := payments.OutcomeFromDetails(details)
	switch {
	case !terminal:
		s.logger(ctx, "checkout.cancel.unconfirmed", map[string]any{
			"orderId":          session.OrderID,
			"paymentReference": session.PaymentReference,
		})
		return Order{}, ErrPaymentCancelled
	case outcome.IsCompleted():
		return s.settlePaid(ctx, session, outcome)
	}
	s.cancel(ctx, session)
	return Order{}, ErrPaymentCancelled
}

func (s *checkoutService) awaitOutcome(ctx context.Context, session CheckoutSession) (payments.Outcome, error) {
	pctx, req := paymentLookup(session)
	outcome, err := s.awaiter.Await(ctx, pctx, req)
	switch {
	case errors.Is(err, payments.ErrAwaitTimeout):
		return payments.Outcome{}, fmt.Errorf("%w: reference %s", ErrPaymentPending, session.PaymentReference)
	case err != nil:
		return payments.Outcome{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}
	return outcome, nil
}

// settlePaid settles a completed payment. A payment below the quoted total is not settled: the
// session fails and an operator gets an amount_mismatch reconciliation.
func (s *checkoutService) settlePaid(ctx context.Context, session CheckoutSession, outcome payments.Outcome) (Order, error) {
	if paid := outcome.Amount(); paid > 0 && paid < session.Quote.Total {
		return Order{}, s.rejectUnderpayment(ctx, session, outcome)
	}
	return s.settle(ctx, session, outcome)
}

func (s *checkoutService) rejectUnderpayment(ctx context.Context, session CheckoutSession, outcome payments.Outcome) error {
	cause := fmt.Errorf("%w: paid %d of %d", payments.ErrAmountMismatch, outcome.Amount(), session.Quote.Total)
	s.logger(ctx, "checkout.payment.amount_mismatch", map[string]any{
		"orderId":  session.OrderID,
		"expected": session.Quote.Total,
		"paid":     outcome.Amount(),
	})
	if err := s.sessions.UpdateStatus(ctx, session.OrderID, domain.CheckoutSessionFailed, outcome.TransactionReference()); err != nil {
		s.logger(ctx, "checkout.session.update_failed", map[string]any{
			"orderId": session.OrderID,
			"error":   err.Error(),
		})
	}
	s.recordReconciliation(ctx, domain.ReconciliationAmountMismatch, s.buildOrder(session, outcome.TransactionReference()), 0, cause)
	if s.metrics != nil {
		s.metrics.RecordOutcome(ctx, checkoutOutcomeRejected, session.Quote.Total)
	}
	return fmt.Errorf("%w: %w", ErrCheckoutPaymentFailed, cause)
}

func paymentLookup(session CheckoutSession) (payments.PaymentContext, payments.LookupRequest) {
	return payments.PaymentContext{PreferredProvider: session.Provider},
		payments.LookupRequest{Reference: session.PaymentReference, ProviderReference: session.ProviderReference}
}

func (s *checkoutService) settle(ctx context.Context, session CheckoutSession, outcome payments.Outcome) (Order, error) {
	order := s.buildOrder(session, outcome.TransactionReference())
	delta := order.PointsEarned - order.PointsRedeemed

	err := s.settlement.Settle(ctx, order, delta)
	switch {
	case err == nil:
	case errors.Is(err, repositories.ErrLedgerRejected):
		if err := s.persistWithoutLedger(ctx, order, delta, err); err != nil {
			return Order{}, err
		}
	case isRepoConflict(err):
		// Aborted transactions surface as conflicts too; only an existing order means settled.
		if existing, getErr := s.orders.Get(ctx, order.ID); getErr == nil {
			return existing, nil
		}
		return Order{}, s.persistenceFailure(ctx, order, delta, err)
	default:
		return Order{}, s.persistenceFailure(ctx, order, delta, err)
	}

	s.logger(ctx, "checkout.settled", map[string]any{
		"orderId":          order.ID,
		"paymentReference": order.PaymentReference,
		"total":            order.Total,
		"pointsEarned":     order.PointsEarned,
		"pointsRedeemed":   order.PointsRedeemed,
	})
	if s.metrics != nil {
		s.metrics.RecordOutcome(ctx, checkoutOutcomeSettled, order.Total)
		s.metrics.RecordPoints(ctx, order.PointsEarned, order.PointsRedeemed)
	}

	if err := s.carts.ClearCart(ctx, session.OwnerKey); err != nil {
		s.logger(ctx, "checkout.cart.clear_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
	if s.notifications != nil {
		s.notifications.OrderConfirmation(ctx, order)
		s.notifications.PaymentReceipt(ctx, order)
	}
	return order, nil
}

// persistWithoutLedger keeps a paid order whose loyalty write was rejected and queues the ledger
// movement for an operator.
func (s *checkoutService) persistWithoutLedger(ctx context.Context, order Order, delta int64, cause error) error {
	if err := s.orders.Create(ctx, order); err != nil {
		if isRepoConflict(err) {
			return nil
		}
		return s.persistenceFailure(ctx, order, delta, err)
	}
	if err := s.sessions.UpdateStatus(ctx, order.ID, domain.CheckoutSessionSettled, order.TransactionReference); err != nil {
		s.logger(ctx, "checkout.session.update_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
	s.recordReconciliation(ctx, domain.ReconciliationLedgerFailed, order, delta, cause)
	return nil
}

func (s *checkoutService) persistenceFailure(ctx context.Context, order Order, delta int64, cause error) error {
	s.recordReconciliation(ctx, domain.ReconciliationOrderPersistFailed, order, delta, cause)
	if s.metrics != nil {
		s.metrics.RecordOutcome(ctx, checkoutOutcomeFailed, order.Total)
	}
	return &SettlementError{OrderID: order.ID, PaymentReference: order.PaymentReference, Err: cause}
}

func (s *checkoutService) recordReconciliation(ctx context.Context, kind domain.ReconciliationKind, order Order, delta int64, cause error) {
	rec, err := s.reconciliations.Record(ctx, RecordReconciliationCommand{
		Kind:  kind,
		Order: order,
		Delta: delta,
		Cause: cause,
	})
	fields := map[string]any{
		"kind":             string(kind),
		"orderId":          order.ID,
		"paymentReference": order.PaymentReference,
		"cause":            errorString(cause),
	}
	if err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "checkout.reconciliation.record_failed", fields)
		return
	}
	fields["reconciliationId"] = rec.ID
	s.logger(ctx, "checkout.reconciliation.recorded", fields)
}

func (s *checkoutService) cancel(ctx context.Context, session CheckoutSession) {
	if err := s.sessions.UpdateStatus(ctx, session.OrderID, domain.CheckoutSessionCancelled, session.ProviderReference); err != nil {
		s.logger(ctx, "checkout.session.update_failed", map[string]any{
			"orderId": session.OrderID,
			"error":   err.Error(),
		})
	}
	s.logger(ctx, "checkout.cancelled", map[string]any{
		"orderId":          session.OrderID,
		"paymentReference": session.PaymentReference,
	})
	if s.metrics != nil {
		s.metrics.RecordOutcome(ctx, checkoutOutcomeCancelled, session.Quote.Total)
	}
}

func (s *checkoutService) buildOrder(session CheckoutSession, transactionRef string) Order {
	now := s.now()
	quote := session.Quote
	order := Order{
		ID:                   session.OrderID,
		UserID:               session.UserID,
		CustomerName:         session.Contact.FullName(),
		CustomerEmail:        session.Contact.Email,
		CustomerPhone:        session.Contact.Phone,
		ShippingAddress:      session.Address.String(),
		Address:              session.Address,
		Region:               session.Region,
		Items:                cloneCartLines(session.Lines),
		Subtotal:             quote.Subtotal,
		ShippingFee:          quote.ShippingFee,
		DiscountApplied:      quote.Discount,
		Total:                quote.Total,
		Provider:             session.Provider,
		PaymentReference:     session.PaymentReference,
		TransactionReference: transactionRef,
		Status:               domain.OrderStatusProcessing,
		StatusHistory: []domain.OrderStatusChange{{
			Status: domain.OrderStatusProcessing,
			At:     now,
			Actor:  settlementActor,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if session.UserID != "" {
		order.PointsRedeemed = quote.PointsRedeemed
		order.PointsEarned = PointsEarned(quote.Total)
	}
	return order
}

func (s *checkoutService) settledOrder(ctx context.Context, orderID string) (Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *checkoutService) loadCart(ctx context.Context, ownerKey string) (Cart, error) {
	cart, err := s.carts.GetCart(ctx, ownerKey)
	if err != nil {
		return Cart{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	if len(cart.Lines) == 0 {
		return Cart{}, ErrCheckoutEmptyCart
	}
	return cart, nil
}

func (s *checkoutService) priceCart(ctx context.Context, cart Cart, userID, region string, redeem int64) (Quote, error) {
	for _, line := range cart.Lines {
		if line.Quantity <= 0 || line.UnitPrice < 0 {
			return Quote{}, fmt.Errorf("%w: invalid cart line %s", ErrCheckoutInvalidInput, line.ID)
		}
	}
	cfg, err := s.shippingConfig(ctx)
	if err != nil {
		return Quote{}, err
	}

	var balance int64
	if userID != "" {
		profile, err := s.users.Get(ctx, userID)
		switch {
		case err == nil:
			balance = profile.LoyaltyPoints
		case isRepoNotFound(err):
		default:
			return Quote{}, s.mapRepositoryError(err)
		}
	} else {
		redeem = 0
	}
	return PriceQuote(cart.Lines, region, cfg, balance, redeem), nil
}

func (s *checkoutService) shippingConfig(ctx context.Context) (ShippingConfig, error) {
	cfg, err := s.shipping.Get(ctx)
	if err == nil {
		return cfg, nil
	}
	if isRepoNotFound(err) {
		return s.fallbackShipping, nil
	}
	return ShippingConfig{}, s.mapRepositoryError(err)
}

func (s *checkoutService) mapSessionError(err error) error {
	if isRepoNotFound(err) {
		return ErrCheckoutSessionNotFound
	}
	return s.mapRepositoryError(err)
}

func (s *checkoutService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCheckoutSessionNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
}

func normaliseBeginCommand(cmd BeginCheckoutCommand) BeginCheckoutCommand {
	cmd.OwnerKey = strings.TrimSpace(cmd.OwnerKey)
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	cmd.Contact = domain.Contact{
		FirstName: strings.TrimSpace(cmd.Contact.FirstName),
		LastName:  strings.TrimSpace(cmd.Contact.LastName),
		Email:     strings.ToLower(strings.TrimSpace(cmd.Contact.Email)),
		Phone:     strings.TrimSpace(cmd.Contact.Phone),
	}
	cmd.Region = strings.TrimSpace(cmd.Region)
	cmd.Address = domain.Address{
		Line1: strings.TrimSpace(cmd.Address.Line1),
		City:  strings.TrimSpace(cmd.Address.City),
		State: strings.TrimSpace(cmd.Address.State),
	}
	if cmd.Address.State == "" {
		cmd.Address.State = cmd.Region
	}
	cmd.Currency = strings.ToUpper(strings.TrimSpace(cmd.Currency))
	cmd.PreferredProvider = strings.TrimSpace(cmd.PreferredProvider)
	cmd.RedirectURL = strings.TrimSpace(cmd.RedirectURL)
	if cmd.UserID == "" {
		cmd.RedeemPoints = 0
	}
	return cmd
}

func missingCheckoutFields(cmd BeginCheckoutCommand) []string {
	var missing []string
	if cmd.OwnerKey == "" {
		missing = append(missing, "cart")
	}
	if cmd.Contact.Email == "" || !strings.Contains(cmd.Contact.Email, "@") {
		missing = append(missing, "email")
	}
	if cmd.Contact.FirstName == "" {
		missing = append(missing, "firstName")
	}
	if cmd.Contact.LastName == "" {
		missing = append(missing, "lastName")
	}
	if cmd.Address.Line1 == "" {
		missing = append(missing, "address")
	}
	if cmd.Address.City == "" {
		missing = append(missing, "city")
	}
	if cmd.Region == "" {
		missing = append(missing, "state")
	}
	if cmd.RedeemPoints < 0 {
		missing = append(missing, "redeemPoints")
	}
	return missing
}

func ownsSession(session CheckoutSession, ownerKey, userID string) bool {
	if session.UserID != "" {
		return userID == session.UserID
	}
	return ownerKey != "" && ownerKey == session.OwnerKey
}

// orderIDFromReference strips the millisecond suffix from "<orderId>-<unixMillis>".
func orderIDFromReference(reference string) string {
	idx := strings.LastIndex(reference, "-")
	if idx <= 0 {
		return reference
	}
	return reference[:idx]
}

func cloneCartLines(lines []CartLine) []CartLine {
	if len(lines) == 0 {
		return nil
	}
	return append([]CartLine(nil), lines...)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
