package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/payments"
	"github.com/optimistics/storefront/internal/platform/storage"
	"github.com/optimistics/storefront/internal/services"
)

var errNotImplemented = errors.New("not implemented")

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

type stubCartService struct {
	getFunc       func(ctx context.Context, ownerKey string) (services.Cart, error)
	addFunc       func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error)
	updateFunc    func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error)
	removeFunc    func(ctx context.Context, ownerKey, lineID string) (services.Cart, error)
	clearFunc     func(ctx context.Context, ownerKey string) error
	mergeFunc     func(ctx context.Context, guestKey, userID string) (services.Cart, error)
	subscribeFunc func(ownerKey string, fn func(services.Cart)) func()
}

func (s *stubCartService) GetCart(ctx context.Context, ownerKey string) (services.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, ownerKey)
	}
	return services.Cart{}, services.ErrCartUnavailable
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addFunc != nil {
		return s.addFunc(ctx, cmd)
	}
	return services.Cart{}, errNotImplemented
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return services.Cart{}, errNotImplemented
}

func (s *stubCartService) RemoveItem(ctx context.Context, ownerKey, lineID string) (services.Cart, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, ownerKey, lineID)
	}
	return services.Cart{}, errNotImplemented
}

func (s *stubCartService) ClearCart(ctx context.Context, ownerKey string) error {
	if s.clearFunc != nil {
		return s.clearFunc(ctx, ownerKey)
	}
	return errNotImplemented
}

func (s *stubCartService) Summary(context.Context, string) (services.CartSummary, error) {
	return services.CartSummary{}, errNotImplemented
}

func (s *stubCartService) MergeGuestCart(ctx context.Context, guestKey, userID string) (services.Cart, error) {
	if s.mergeFunc != nil {
		return s.mergeFunc(ctx, guestKey, userID)
	}
	return services.Cart{}, errNotImplemented
}

func (s *stubCartService) Subscribe(ownerKey string, fn func(services.Cart)) func() {
	if s.subscribeFunc != nil {
		return s.subscribeFunc(ownerKey, fn)
	}
	return func() {}
}

type stubWishlistService struct {
	getFunc    func(ctx context.Context, ownerKey string) (services.Wishlist, error)
	addFunc    func(ctx context.Context, ownerKey, productID string) (services.Wishlist, error)
	removeFunc func(ctx context.Context, ownerKey, productID string) (services.Wishlist, error)
}

func (s *stubWishlistService) GetWishlist(ctx context.Context, ownerKey string) (services.Wishlist, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, ownerKey)
	}
	return services.Wishlist{}, errNotImplemented
}

func (s *stubWishlistService) Add(ctx context.Context, ownerKey, productID string) (services.Wishlist, error) {
	if s.addFunc != nil {
		return s.addFunc(ctx, ownerKey, productID)
	}
	return services.Wishlist{}, errNotImplemented
}

func (s *stubWishlistService) Remove(ctx context.Context, ownerKey, productID string) (services.Wishlist, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, ownerKey, productID)
	}
	return services.Wishlist{}, errNotImplemented
}

func (s *stubWishlistService) Contains(context.Context, string, string) (bool, error) {
	return false, errNotImplemented
}

type stubCheckoutService struct {
	quoteFunc    func(ctx context.Context, cmd services.QuoteCommand) (services.Quote, error)
	beginFunc    func(ctx context.Context, cmd services.BeginCheckoutCommand) (services.CheckoutStart, error)
	completeFunc func(ctx context.Context, cmd services.CompleteCheckoutCommand) (services.Order, error)
	notifyFunc   func(ctx context.Context, details payments.PaymentDetails) error
}

func (s *stubCheckoutService) Quote(ctx context.Context, cmd services.QuoteCommand) (services.Quote, error) {
	if s.quoteFunc != nil {
		return s.quoteFunc(ctx, cmd)
	}
	return services.Quote{}, errNotImplemented
}

func (s *stubCheckoutService) Begin(ctx context.Context, cmd services.BeginCheckoutCommand) (services.CheckoutStart, error) {
	if s.beginFunc != nil {
		return s.beginFunc(ctx, cmd)
	}
	return services.CheckoutStart{}, errNotImplemented
}

func (s *stubCheckoutService) Complete(ctx context.Context, cmd services.CompleteCheckoutCommand) (services.Order, error) {
	if s.completeFunc != nil {
		return s.completeFunc(ctx, cmd)
	}
	return services.Order{}, errNotImplemented
}

func (s *stubCheckoutService) HandlePaymentNotification(ctx context.Context, details payments.PaymentDetails) error {
	if s.notifyFunc != nil {
		return s.notifyFunc(ctx, details)
	}
	return errNotImplemented
}

type stubOrderService struct {
	listFunc       func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	getFunc        func(ctx context.Context, orderID string) (services.Order, error)
	transitionFunc func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error)
	deleteFunc     func(ctx context.Context, orderID string) error
	exportFunc     func(ctx context.Context, filter services.OrderListFilter, w io.Writer) (int, error)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, errNotImplemented
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, orderID)
	}
	return services.Order{}, errNotImplemented
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFunc != nil {
		return s.transitionFunc(ctx, cmd)
	}
	return services.Order{}, errNotImplemented
}

func (s *stubOrderService) DeleteOrder(ctx context.Context, orderID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, orderID)
	}
	return errNotImplemented
}

func (s *stubOrderService) ExportOrders(ctx context.Context, filter services.OrderListFilter, w io.Writer) (int, error) {
	if s.exportFunc != nil {
		return s.exportFunc(ctx, filter, w)
	}
	return 0, errNotImplemented
}

type stubCatalogService struct {
	listFunc   func(ctx context.Context, filter services.ProductListFilter) ([]services.Product, error)
	getFunc    func(ctx context.Context, productID string) (services.Product, error)
	saveFunc   func(ctx context.Context, draft domain.ProductDraft) (services.Product, error)
	deleteFunc func(ctx context.Context, productID string) error
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) ([]services.Product, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return nil, errNotImplemented
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, productID)
	}
	return services.Product{}, errNotImplemented
}

func (s *stubCatalogService) SaveProduct(ctx context.Context, draft domain.ProductDraft) (services.Product, error) {
	if s.saveFunc != nil {
		return s.saveFunc(ctx, draft)
	}
	return services.Product{}, errNotImplemented
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, productID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, productID)
	}
	return errNotImplemented
}

type stubShippingService struct {
	getFunc  func(ctx context.Context) (services.ShippingConfig, error)
	saveFunc func(ctx context.Context, draft domain.ShippingConfigDraft) (services.ShippingConfig, error)
}

func (s *stubShippingService) GetConfig(ctx context.Context) (services.ShippingConfig, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx)
	}
	return services.ShippingConfig{}, errNotImplemented
}

func (s *stubShippingService) SaveConfig(ctx context.Context, draft domain.ShippingConfigDraft) (services.ShippingConfig, error) {
	if s.saveFunc != nil {
		return s.saveFunc(ctx, draft)
	}
	return services.ShippingConfig{}, errNotImplemented
}

type stubContentService struct {
	listTestimonialsFunc func(ctx context.Context, limit int) ([]services.Testimonial, error)
	saveTestimonialFunc  func(ctx context.Context, id string, draft domain.TestimonialDraft) (services.Testimonial, error)
	deleteFunc           func(ctx context.Context, kind, id string) error
	listGalleryFunc      func(ctx context.Context, limit int) ([]services.GalleryImage, error)
	saveGalleryFunc      func(ctx context.Context, id string, draft domain.GalleryImageDraft) (services.GalleryImage, error)
	listBlogFunc         func(ctx context.Context, limit int) ([]services.BlogPost, error)
	getBlogFunc          func(ctx context.Context, id string) (services.BlogPost, error)
	saveBlogFunc         func(ctx context.Context, id string, draft domain.BlogPostDraft) (services.BlogPost, error)
}

func (s *stubContentService) ListTestimonials(ctx context.Context, limit int) ([]services.Testimonial, error) {
	if s.listTestimonialsFunc != nil {
		return s.listTestimonialsFunc(ctx, limit)
	}
	return nil, errNotImplemented
}

func (s *stubContentService) SaveTestimonial(ctx context.Context, id string, draft domain.TestimonialDraft) (services.Testimonial, error) {
	if s.saveTestimonialFunc != nil {
		return s.saveTestimonialFunc(ctx, id, draft)
	}
	return services.Testimonial{}, errNotImplemented
}

func (s *stubContentService) DeleteTestimonial(ctx context.Context, id string) error {
	return s.delete(ctx, "testimonial", id)
}

func (s *stubContentService) ListGallery(ctx context.Context, limit int) ([]services.GalleryImage, error) {
	if s.listGalleryFunc != nil {
		return s.listGalleryFunc(ctx, limit)
	}
	return nil, errNotImplemented
}

func (s *stubContentService) SaveGalleryImage(ctx context.Context, id string, draft domain.GalleryImageDraft) (services.GalleryImage, error) {
	if s.saveGalleryFunc != nil {
		return s.saveGalleryFunc(ctx, id, draft)
	}
	return services.GalleryImage{}, errNotImplemented
}

func (s *stubContentService) DeleteGalleryImage(ctx context.Context, id string) error {
	return s.delete(ctx, "gallery", id)
}

func (s *stubContentService) ListBlogPosts(ctx context.Context, limit int) ([]services.BlogPost, error) {
	if s.listBlogFunc != nil {
		return s.listBlogFunc(ctx, limit)
	}
	return nil, errNotImplemented
}

func (s *stubContentService) GetBlogPost(ctx context.Context, id string) (services.BlogPost, error) {
	if s.getBlogFunc != nil {
		return s.getBlogFunc(ctx, id)
	}
	return services.BlogPost{}, errNotImplemented
}

func (s *stubContentService) SaveBlogPost(ctx context.Context, id string, draft domain.BlogPostDraft) (services.BlogPost, error) {
	if s.saveBlogFunc != nil {
		return s.saveBlogFunc(ctx, id, draft)
	}
	return services.BlogPost{}, errNotImplemented
}

func (s *stubContentService) DeleteBlogPost(ctx context.Context, id string) error {
	return s.delete(ctx, "blog", id)
}

func (s *stubContentService) delete(ctx context.Context, kind, id string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, kind, id)
	}
	return errNotImplemented
}

type stubSubmissionService struct {
	submitFunc  func(ctx context.Context, cmd services.SubmitCommand) (services.Submission, error)
	signFunc    func(ctx context.Context, cmd services.SignImageUploadCommand) (storage.SignedUpload, error)
	listFunc    func(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Submission], error)
	approveFunc func(ctx context.Context, id string) error
	rejectFunc  func(ctx context.Context, id string) error
}

func (s *stubSubmissionService) Submit(ctx context.Context, cmd services.SubmitCommand) (services.Submission, error) {
	if s.submitFunc != nil {
		return s.submitFunc(ctx, cmd)
	}
	return services.Submission{}, errNotImplemented
}

func (s *stubSubmissionService) SignImageUpload(ctx context.Context, cmd services.SignImageUploadCommand) (storage.SignedUpload, error) {
	if s.signFunc != nil {
		return s.signFunc(ctx, cmd)
	}
	return storage.SignedUpload{}, errNotImplemented
}

func (s *stubSubmissionService) ListPending(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Submission], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, pager)
	}
	return domain.CursorPage[services.Submission]{}, errNotImplemented
}

func (s *stubSubmissionService) Approve(ctx context.Context, id string) error {
	if s.approveFunc != nil {
		return s.approveFunc(ctx, id)
	}
	return errNotImplemented
}

func (s *stubSubmissionService) Reject(ctx context.Context, id string) error {
	if s.rejectFunc != nil {
		return s.rejectFunc(ctx, id)
	}
	return errNotImplemented
}

type stubAccountService struct {
	ensureFunc  func(ctx context.Context, cmd services.EnsureProfileCommand) (services.UserProfile, error)
	getFunc     func(ctx context.Context, uid string) (services.UserProfile, error)
	adjustFunc  func(ctx context.Context, cmd services.AdjustPointsCommand) (int64, error)
	setRoleFunc func(ctx context.Context, uid, role string) (services.UserProfile, error)
}

func (s *stubAccountService) EnsureProfile(ctx context.Context, cmd services.EnsureProfileCommand) (services.UserProfile, error) {
	if s.ensureFunc != nil {
		return s.ensureFunc(ctx, cmd)
	}
	return services.UserProfile{}, errNotImplemented
}

func (s *stubAccountService) GetProfile(ctx context.Context, uid string) (services.UserProfile, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, uid)
	}
	return services.UserProfile{}, errNotImplemented
}

func (s *stubAccountService) AdjustPoints(ctx context.Context, cmd services.AdjustPointsCommand) (int64, error) {
	if s.adjustFunc != nil {
		return s.adjustFunc(ctx, cmd)
	}
	return 0, errNotImplemented
}

func (s *stubAccountService) SetRole(ctx context.Context, uid, role string) (services.UserProfile, error) {
	if s.setRoleFunc != nil {
		return s.setRoleFunc(ctx, uid, role)
	}
	return services.UserProfile{}, errNotImplemented
}

type stubReconciliationService struct {
	listFunc      func(ctx context.Context, status domain.ReconciliationStatus, pager services.Pagination) (domain.CursorPage[services.Reconciliation], error)
	resolveFunc   func(ctx context.Context, cmd services.ResolveReconciliationCommand) (services.Reconciliation, error)
	retryFunc     func(ctx context.Context, id string) (services.Reconciliation, error)
	retryOpenFunc func(ctx context.Context, limit int) (services.RetrySummary, error)
}

func (s *stubReconciliationService) Record(context.Context, services.RecordReconciliationCommand) (services.Reconciliation, error) {
	return services.Reconciliation{}, errNotImplemented
}

func (s *stubReconciliationService) List(ctx context.Context, status domain.ReconciliationStatus, pager services.Pagination) (domain.CursorPage[services.Reconciliation], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, status, pager)
	}
	return domain.CursorPage[services.Reconciliation]{}, errNotImplemented
}

func (s *stubReconciliationService) Resolve(ctx context.Context, cmd services.ResolveReconciliationCommand) (services.Reconciliation, error) {
	if s.resolveFunc != nil {
		return s.resolveFunc(ctx, cmd)
	}
	return services.Reconciliation{}, errNotImplemented
}

func (s *stubReconciliationService) Retry(ctx context.Context, id string) (services.Reconciliation, error) {
	if s.retryFunc != nil {
		return s.retryFunc(ctx, id)
	}
	return services.Reconciliation{}, errNotImplemented
}

func (s *stubReconciliationService) RetryOpen(ctx context.Context, limit int) (services.RetrySummary, error) {
	if s.retryOpenFunc != nil {
		return s.retryOpenFunc(ctx, limit)
	}
	return services.RetrySummary{}, errNotImplemented
}

type stubSystemService struct {
	reportFunc func(ctx context.Context) (services.HealthReport, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (services.HealthReport, error) {
	if s.reportFunc != nil {
		return s.reportFunc(ctx)
	}
	return services.HealthReport{}, errNotImplemented
}
