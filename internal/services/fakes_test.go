package services

import (
	"context"
	"slices"
	"sort"
	"sync"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/payments"
	"github.com/optimistics/storefront/internal/repositories"
)

type fakeRepositoryError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e fakeRepositoryError) Error() string       { return e.msg }
func (e fakeRepositoryError) IsNotFound() bool    { return e.notFound }
func (e fakeRepositoryError) IsConflict() bool    { return e.conflict }
func (e fakeRepositoryError) IsUnavailable() bool { return e.unavailable }

var (
	errFakeNotFound    = fakeRepositoryError{msg: "not found", notFound: true}
	errFakeConflict    = fakeRepositoryError{msg: "already exists", conflict: true}
	errFakeUnavailable = fakeRepositoryError{msg: "deadline exceeded", unavailable: true}
)

type memProducts struct {
	items map[string]Product
}

func newMemProducts(products ...Product) *memProducts {
	m := &memProducts{items: map[string]Product{}}
	for _, p := range products {
		m.items[p.ID] = p
	}
	return m
}

func (m *memProducts) List(_ context.Context, filter repositories.ProductListFilter) ([]Product, error) {
	out := make([]Product, 0, len(m.items))
	for _, p := range m.items {
		if filter.Category != "" && !slices.Contains(p.Categories, filter.Category) {
			continue
		}
		if filter.BestsellerOnly && !p.Bestseller {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memProducts) Get(_ context.Context, id string) (Product, error) {
	p, ok := m.items[id]
	if !ok {
		return Product{}, errFakeNotFound
	}
	return p, nil
}

func (m *memProducts) Upsert(_ context.Context, p Product) (Product, error) {
	m.items[p.ID] = p
	return p, nil
}

func (m *memProducts) Delete(_ context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return errFakeNotFound
	}
	delete(m.items, id)
	return nil
}

type memCarts struct {
	mu      sync.Mutex
	items   map[string]Cart
	saveErr error
	saves   int
}

func newMemCarts() *memCarts {
	return &memCarts{items: map[string]Cart{}}
}

func (m *memCarts) Get(_ context.Context, key string) (Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[key]
	if !ok {
		return Cart{}, errFakeNotFound
	}
	return cloneCart(c), nil
}

func (m *memCarts) Save(_ context.Context, c Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.items[c.OwnerKey] = cloneCart(c)
	return nil
}

func (m *memCarts) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[key]; !ok {
		return errFakeNotFound
	}
	delete(m.items, key)
	return nil
}

type memShipping struct {
	cfg   *ShippingConfig
	err   error
	saved []ShippingConfig
}

func (m *memShipping) Get(context.Context) (ShippingConfig, error) {
	if m.err != nil {
		return ShippingConfig{}, m.err
	}
	if m.cfg == nil {
		return ShippingConfig{}, errFakeNotFound
	}
	return *m.cfg, nil
}

func (m *memShipping) Save(_ context.Context, cfg ShippingConfig) (ShippingConfig, error) {
	m.cfg = &cfg
	m.saved = append(m.saved, cfg)
	return cfg, nil
}

type memUsers struct {
	mu        sync.Mutex
	profiles  map[string]UserProfile
	adjustErr error
	roles     map[string]string
}

func newMemUsers(profiles ...UserProfile) *memUsers {
	m := &memUsers{profiles: map[string]UserProfile{}, roles: map[string]string{}}
	for _, p := range profiles {
		m.profiles[p.UID] = p
	}
	return m
}

func (m *memUsers) Get(_ context.Context, uid string) (UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return UserProfile{}, errFakeNotFound
	}
	return p, nil
}

func (m *memUsers) Create(_ context.Context, p UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.UID]; ok {
		return errFakeConflict
	}
	m.profiles[p.UID] = p
	return nil
}

func (m *memUsers) AdjustPoints(_ context.Context, uid string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adjustErr != nil {
		return 0, m.adjustErr
	}
	p, ok := m.profiles[uid]
	if !ok || p.LoyaltyPoints+delta < 0 {
		return 0, repositories.ErrLedgerRejected
	}
	p.LoyaltyPoints += delta
	m.profiles[uid] = p
	return p.LoyaltyPoints, nil
}

func (m *memUsers) SetRole(_ context.Context, uid, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return errFakeNotFound
	}
	p.Role = role
	m.profiles[uid] = p
	m.roles[uid] = role
	return nil
}

func (m *memUsers) balance(uid string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[uid].LoyaltyPoints
}

type memOrders struct {
	mu        sync.Mutex
	items     map[string]Order
	createErr error
}

func newMemOrders(orders ...Order) *memOrders {
	m := &memOrders{items: map[string]Order{}}
	for _, o := range orders {
		m.items[o.ID] = o
	}
	return m
}

func (m *memOrders) Create(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.items[o.ID]; ok {
		return errFakeConflict
	}
	m.items[o.ID] = o
	return nil
}

func (m *memOrders) Get(_ context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.items[id]
	if !ok {
		return Order{}, errFakeNotFound
	}
	return o, nil
}

func (m *memOrders) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[Order], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Order
	for _, o := range m.items {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	start := 0
	if filter.Pagination.PageToken != "" {
		start = sort.Search(len(all), func(i int) bool { return all[i].ID > filter.Pagination.PageToken })
	}
	size := filter.Pagination.PageSize
	if size <= 0 {
		size = len(all)
	}
	end := min(start+size, len(all))
	page := domain.CursorPage[Order]{Items: all[start:end]}
	if end < len(all) && end > 0 {
		page.NextPageToken = all[end-1].ID
	}
	return page, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, from OrderStatus, change domain.OrderStatusChange) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.items[id]
	if !ok {
		return Order{}, errFakeNotFound
	}
	if o.Status != from {
		return Order{}, errFakeConflict
	}
	o.Status = change.Status
	o.StatusHistory = append(o.StatusHistory, change)
	o.UpdatedAt = change.At
	m.items[id] = o
	return o, nil
}

func (m *memOrders) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return errFakeNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type memSessions struct {
	mu    sync.Mutex
	items map[string]CheckoutSession
}

func newMemSessions() *memSessions {
	return &memSessions{items: map[string]CheckoutSession{}}
}

func (m *memSessions) Create(_ context.Context, s CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[s.OrderID]; ok {
		return errFakeConflict
	}
	m.items[s.OrderID] = s
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return CheckoutSession{}, errFakeNotFound
	}
	return s, nil
}

func (m *memSessions) UpdateStatus(_ context.Context, id string, status domain.CheckoutSessionStatus, providerRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return errFakeNotFound
	}
	s.Status = status
	if providerRef != "" {
		s.ProviderReference = providerRef
	}
	m.items[id] = s
	return nil
}

func (m *memSessions) status(id string) domain.CheckoutSessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Status
}

// memSettlement mirrors the transactional store: order, session and ledger all apply or none do.
type memSettlement struct {
	orders   *memOrders
	sessions *memSessions
	users    *memUsers
	err      error
	calls    int
}

func (m *memSettlement) Settle(ctx context.Context, order Order, delta int64) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	if _, err := m.orders.Get(ctx, order.ID); err == nil {
		return errFakeConflict
	}
	if order.UserID != "" && delta != 0 {
		m.users.mu.Lock()
		p, ok := m.users.profiles[order.UserID]
		if !ok || p.LoyaltyPoints+delta < 0 {
			m.users.mu.Unlock()
			return repositories.ErrLedgerRejected
		}
		p.LoyaltyPoints += delta
		m.users.profiles[order.UserID] = p
		m.users.mu.Unlock()
	}
	if err := m.orders.Create(ctx, order); err != nil {
		return err
	}
	return m.sessions.UpdateStatus(ctx, order.ID, domain.CheckoutSessionSettled, order.TransactionReference)
}

type memReconciliations struct {
	mu    sync.Mutex
	items map[string]Reconciliation
	order []string
}

func newMemReconciliations() *memReconciliations {
	return &memReconciliations{items: map[string]Reconciliation{}}
}

func (m *memReconciliations) Create(_ context.Context, rec Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[rec.ID]; ok {
		return errFakeConflict
	}
	m.items[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *memReconciliations) Get(_ context.Context, id string) (Reconciliation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.items[id]
	if !ok {
		return Reconciliation{}, errFakeNotFound
	}
	return rec, nil
}

func (m *memReconciliations) List(_ context.Context, status domain.ReconciliationStatus, pager Pagination) (domain.CursorPage[Reconciliation], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reconciliation
	for _, id := range m.order {
		rec := m.items[id]
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec)
		if pager.PageSize > 0 && len(out) == pager.PageSize {
			break
		}
	}
	return domain.CursorPage[Reconciliation]{Items: out}, nil
}

func (m *memReconciliations) Update(_ context.Context, rec Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[rec.ID]; !ok {
		return errFakeNotFound
	}
	m.items[rec.ID] = rec
	return nil
}

func (m *memReconciliations) all() []Reconciliation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Reconciliation, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.items[id])
	}
	return out
}

type stubGateway struct {
	initFunc   func(ctx context.Context, pctx payments.PaymentContext, req payments.InitRequest) (payments.Initialization, error)
	lookupFunc func(ctx context.Context, pctx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
	initCalls  int
}

func (s *stubGateway) Initialize(ctx context.Context, pctx payments.PaymentContext, req payments.InitRequest) (payments.Initialization, error) {
	s.initCalls++
	if s.initFunc != nil {
		return s.initFunc(ctx, pctx, req)
	}
	return payments.Initialization{
		Provider:          payments.ProviderMonnify,
		Reference:         req.Reference,
		ProviderReference: "MNFY|" + req.Reference,
		CheckoutURL:       "https://sandbox.monnify.com/checkout/" + req.Reference,
	}, nil
}

func (s *stubGateway) LookupPayment(ctx context.Context, pctx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
	if s.lookupFunc != nil {
		return s.lookupFunc(ctx, pctx, req)
	}
	return payments.PaymentDetails{Reference: req.Reference, Status: payments.StatusPending}, nil
}

type stubAwaiter struct {
	awaitFunc  func(ctx context.Context, pctx payments.PaymentContext, req payments.LookupRequest) (payments.Outcome, error)
	notifyFunc func(details payments.PaymentDetails) bool
	notified   []payments.PaymentDetails
}

func (s *stubAwaiter) Await(ctx context.Context, pctx payments.PaymentContext, req payments.LookupRequest) (payments.Outcome, error) {
	if s.awaitFunc != nil {
		return s.awaitFunc(ctx, pctx, req)
	}
	return payments.Cancelled(), nil
}

func (s *stubAwaiter) Notify(details payments.PaymentDetails) bool {
	s.notified = append(s.notified, details)
	if s.notifyFunc != nil {
		return s.notifyFunc(details)
	}
	return false
}

type recordingNotifications struct {
	mu            sync.Mutex
	confirmations []Order
	receipts      []Order
	statusChanges []Order
	welcomes      []UserProfile
}

func (r *recordingNotifications) OrderConfirmation(_ context.Context, order Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmations = append(r.confirmations, order)
}

func (r *recordingNotifications) PaymentReceipt(_ context.Context, order Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, order)
}

func (r *recordingNotifications) OrderStatusChanged(_ context.Context, order Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusChanges = append(r.statusChanges, order)
}

func (r *recordingNotifications) Welcome(_ context.Context, profile UserProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.welcomes = append(r.welcomes, profile)
}

type recordingMetrics struct {
	outcomes []string
	earned   int64
	redeemed int64
}

func (r *recordingMetrics) RecordOutcome(_ context.Context, outcome string, _ int64) {
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingMetrics) RecordPoints(_ context.Context, earned, redeemed int64) {
	r.earned += earned
	r.redeemed += redeemed
}

type stubCartReader struct {
	carts   map[string]Cart
	getErr  error
	cleared []string
}

func (s *stubCartReader) GetCart(_ context.Context, key string) (Cart, error) {
	if s.getErr != nil {
		return Cart{}, s.getErr
	}
	return s.carts[key], nil
}

func (s *stubCartReader) ClearCart(_ context.Context, key string) error {
	s.cleared = append(s.cleared, key)
	delete(s.carts, key)
	return nil
}
