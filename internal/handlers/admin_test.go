package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/go-chi/chi/v5"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/platform/auth"
	"github.com/optimistics/storefront/internal/services"
)

type stubTokenVerifier struct {
	token *firebaseauth.Token
	err   error
}

func (s stubTokenVerifier) VerifyIDToken(context.Context, string) (*firebaseauth.Token, error) {
	return s.token, s.err
}

func newAdminCatalogRouter(deps AdminCatalogDeps) chi.Router {
	router := chi.NewRouter()
	router.Route("/admin", AdminRoutes(nil, NewAdminCatalogHandlers(deps).Routes))
	return router
}

func asAdmin(req *http.Request) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}))
}

func TestAdminRoutes_RejectsCustomers(t *testing.T) {
	authn := auth.NewAuthenticator(stubTokenVerifier{token: &firebaseauth.Token{
		UID:    "user-1",
		Claims: map[string]any{"role": auth.RoleCustomer},
	}})
	called := false
	router := chi.NewRouter()
	router.Route("/admin", AdminRoutes(authn, func(r chi.Router) {
		r.Get("/orders", func(w http.ResponseWriter, _ *http.Request) { called = true })
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if called {
		t.Fatalf("admin handler must not run for customers")
	}
}

func TestAdminRoutes_RequiresToken(t *testing.T) {
	authn := auth.NewAuthenticator(stubTokenVerifier{err: errors.New("unused")})
	router := chi.NewRouter()
	router.Route("/admin", AdminRoutes(authn, func(r chi.Router) {
		r.Get("/orders", func(http.ResponseWriter, *http.Request) {})
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/orders", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAdminCatalogHandlers_CreateProduct(t *testing.T) {
	var got domain.ProductDraft
	catalog := &stubCatalogService{
		saveFunc: func(_ context.Context, draft domain.ProductDraft) (services.Product, error) {
			got = draft
			return services.Product{ID: "shea-butter", Name: draft.Name, Price: draft.Price, BaseSize: draft.Size, InStock: true}, nil
		},
	}
	router := newAdminCatalogRouter(AdminCatalogDeps{Catalog: catalog})

	body := `{"name":"Shea Butter","price":3000,"size":"200g","categories":["body"],"images":["https://cdn.example.com/shea.jpg"]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asAdmin(httptest.NewRequest(http.MethodPost, "/admin/products", strings.NewReader(body))))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.Name != "Shea Butter" || got.Price != 3000 || got.ID != "" {
		t.Fatalf("unexpected draft %+v", got)
	}
	var resp productPayload
	decodeInto(t, rec, &resp)
	if resp.ID != "shea-butter" || resp.Size != "200g" {
		t.Fatalf("unexpected product %+v", resp)
	}
}

func TestAdminCatalogHandlers_UpdateProductUsesPathID(t *testing.T) {
	var got domain.ProductDraft
	catalog := &stubCatalogService{
		saveFunc: func(_ context.Context, draft domain.ProductDraft) (services.Product, error) {
			got = draft
			return services.Product{ID: draft.ID, Name: draft.Name}, nil
		},
	}
	router := newAdminCatalogRouter(AdminCatalogDeps{Catalog: catalog})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/products/oil", strings.NewReader(`{"name":"Hair Oil","price":4500,"size":"100ml"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.ID != "oil" {
		t.Fatalf("expected path id applied, got %q", got.ID)
	}
}

func TestAdminCatalogHandlers_UpdateProductIDMismatch(t *testing.T) {
	router := newAdminCatalogRouter(AdminCatalogDeps{Catalog: &stubCatalogService{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/products/oil", strings.NewReader(`{"id":"soap","name":"Soap","size":"bar"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminCatalogHandlers_ProductDraftUnknownField(t *testing.T) {
	router := newAdminCatalogRouter(AdminCatalogDeps{Catalog: &stubCatalogService{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/products", strings.NewReader(`{"name":"Oil","colour":"gold"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	fields, ok := body["fields"].(map[string]any)
	if !ok || fields["body"] == nil {
		t.Fatalf("expected field details, got %v", body)
	}
}

func TestAdminCatalogHandlers_ServiceValidationFields(t *testing.T) {
	catalog := &stubCatalogService{
		saveFunc: func(context.Context, domain.ProductDraft) (services.Product, error) {
			return services.Product{}, errors.Join(services.ErrCatalogInvalidInput, &domain.DraftError{
				Kind:   domain.DraftProduct,
				Fields: map[string]string{"price": "must not be negative"},
			})
		},
	}
	router := newAdminCatalogRouter(AdminCatalogDeps{Catalog: catalog})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/products", strings.NewReader(`{"name":"Oil","price":-1,"size":"100ml"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	fields, _ := decodeBody(t, rec)["fields"].(map[string]any)
	if fields["price"] != "must not be negative" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestAdminCatalogHandlers_DeleteProduct(t *testing.T) {
	var deleted string
	catalog := &stubCatalogService{
		deleteFunc: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	router := newAdminCatalogRouter(AdminCatalogDeps{Catalog: catalog})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/products/oil", nil))

	if rec.Code != http.StatusNoContent || deleted != "oil" {
		t.Fatalf("expected 204 deleting oil, got %d %q", rec.Code, deleted)
	}
}

func TestAdminCatalogHandlers_SaveShipping(t *testing.T) {
	var got domain.ShippingConfigDraft
	shipping := &stubShippingService{
		saveFunc: func(_ context.Context, draft domain.ShippingConfigDraft) (services.ShippingConfig, error) {
			got = draft
			return services.ShippingConfig{DefaultFee: draft.DefaultFee, Rates: []domain.ShippingRate{{Region: "Lagos", Fee: 2000}}}, nil
		},
	}
	router := newAdminCatalogRouter(AdminCatalogDeps{Shipping: shipping})

	body := `{"defaultFee":3500,"rates":[{"state":"Lagos","fee":2000}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/shipping", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.DefaultFee != 3500 || len(got.Rates) != 1 || got.Rates[0].State != "Lagos" {
		t.Fatalf("unexpected draft %+v", got)
	}
}

func TestAdminCatalogHandlers_TestimonialCreateAndUpdate(t *testing.T) {
	var ids []string
	content := &stubContentService{
		saveTestimonialFunc: func(_ context.Context, id string, draft domain.TestimonialDraft) (services.Testimonial, error) {
			ids = append(ids, id)
			if id == "" {
				id = "t-new"
			}
			return services.Testimonial{ID: id, Name: draft.Name, Quote: draft.Quote}, nil
		},
	}
	router := newAdminCatalogRouter(AdminCatalogDeps{Content: content})
	body := `{"name":"Ada","quote":"Softest hair ever"}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/testimonials", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/testimonials/t-1", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", rec.Code)
	}
	if len(ids) != 2 || ids[0] != "" || ids[1] != "t-1" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestAdminCatalogHandlers_DeleteMissingContent(t *testing.T) {
	content := &stubContentService{
		deleteFunc: func(_ context.Context, kind, id string) error {
			if kind != "gallery" || id != "g-1" {
				t.Fatalf("unexpected delete %s/%s", kind, id)
			}
			return services.ErrContentNotFound
		},
	}
	router := newAdminCatalogRouter(AdminCatalogDeps{Content: content})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/gallery/g-1", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdminCatalogHandlers_Moderation(t *testing.T) {
	var approved string
	submissions := &stubSubmissionService{
		listFunc: func(_ context.Context, pager services.Pagination) (domain.CursorPage[services.Submission], error) {
			return domain.CursorPage[services.Submission]{Items: []services.Submission{{ID: "sub-1", Status: domain.SubmissionStatusPending}}}, nil
		},
		approveFunc: func(_ context.Context, id string) error {
			approved = id
			return nil
		},
		rejectFunc: func(context.Context, string) error {
			return services.ErrSubmissionInvalidState
		},
	}
	router := newAdminCatalogRouter(AdminCatalogDeps{Submissions: submissions})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/submissions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var list submissionListResponse
	decodeInto(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].ID != "sub-1" {
		t.Fatalf("unexpected submissions %+v", list)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/submissions/sub-1/approve", nil))
	if rec.Code != http.StatusNoContent || approved != "sub-1" {
		t.Fatalf("approve: expected 204, got %d (%q)", rec.Code, approved)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/submissions/sub-1/reject", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("reject: expected 409, got %d", rec.Code)
	}
}

func newAdminAccountRouter(accounts services.AccountService, recs services.ReconciliationService) chi.Router {
	router := chi.NewRouter()
	router.Route("/admin", NewAdminAccountHandlers(accounts, recs).Routes)
	return router
}

func TestAdminAccountHandlers_AdjustPoints(t *testing.T) {
	var got services.AdjustPointsCommand
	accounts := &stubAccountService{
		adjustFunc: func(_ context.Context, cmd services.AdjustPointsCommand) (int64, error) {
			got = cmd
			return 750, nil
		},
	}
	router := newAdminAccountRouter(accounts, nil)

	req := asAdmin(httptest.NewRequest(http.MethodPost, "/admin/users/user-1/points", strings.NewReader(`{"delta":250,"reason":" goodwill "}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.UID != "user-1" || got.Delta != 250 || got.ActorID != "admin-1" || got.Reason != "goodwill" {
		t.Fatalf("unexpected command %+v", got)
	}
	var resp adjustPointsResponse
	decodeInto(t, rec, &resp)
	if resp.Balance != 750 {
		t.Fatalf("unexpected balance %d", resp.Balance)
	}
}

func TestAdminAccountHandlers_AdjustPointsNegativeBalance(t *testing.T) {
	accounts := &stubAccountService{
		adjustFunc: func(context.Context, services.AdjustPointsCommand) (int64, error) {
			return 0, services.ErrLedgerNegativeBalance
		},
	}
	router := newAdminAccountRouter(accounts, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/users/user-1/points", strings.NewReader(`{"delta":-9000}`)))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "insufficient_points" {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestAdminAccountHandlers_SetRole(t *testing.T) {
	accounts := &stubAccountService{
		setRoleFunc: func(_ context.Context, uid, role string) (services.UserProfile, error) {
			return services.UserProfile{UID: uid, Role: role}, nil
		},
	}
	router := newAdminAccountRouter(accounts, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/users/user-1/role", strings.NewReader(`{"role":"admin"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp profilePayload
	decodeInto(t, rec, &resp)
	if resp.Role != auth.RoleAdmin {
		t.Fatalf("unexpected role %q", resp.Role)
	}
}

func TestAdminAccountHandlers_GetUserMissing(t *testing.T) {
	accounts := &stubAccountService{
		getFunc: func(context.Context, string) (services.UserProfile, error) {
			return services.UserProfile{}, services.ErrAccountNotFound
		},
	}
	router := newAdminAccountRouter(accounts, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users/ghost", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdminAccountHandlers_Reconciliations(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	resolvedAt := created.Add(time.Hour)
	var gotStatus domain.ReconciliationStatus
	var gotResolve services.ResolveReconciliationCommand
	recs := &stubReconciliationService{
		listFunc: func(_ context.Context, status domain.ReconciliationStatus, _ services.Pagination) (domain.CursorPage[services.Reconciliation], error) {
			gotStatus = status
			return domain.CursorPage[services.Reconciliation]{Items: []services.Reconciliation{{
				ID:               "rec-1",
				Kind:             domain.ReconciliationLedgerFailed,
				OrderID:          "ord-1",
				PaymentReference: "SF-ord-1",
				PointsDelta:      115,
				Status:           domain.ReconciliationOpen,
				CreatedAt:        created,
			}}}, nil
		},
		resolveFunc: func(_ context.Context, cmd services.ResolveReconciliationCommand) (services.Reconciliation, error) {
			gotResolve = cmd
			return services.Reconciliation{ID: cmd.ID, Status: domain.ReconciliationResolved, ResolvedAt: &resolvedAt, ResolvedBy: cmd.ActorID}, nil
		},
		retryFunc: func(context.Context, string) (services.Reconciliation, error) {
			return services.Reconciliation{}, services.ErrReconciliationInvalidState
		},
	}
	router := newAdminAccountRouter(nil, recs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/reconciliations?status=OPEN", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	if gotStatus != domain.ReconciliationOpen {
		t.Fatalf("expected normalised status, got %q", gotStatus)
	}
	var list reconciliationListResponse
	decodeInto(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].PointsDelta != 115 || list.Items[0].Kind != string(domain.ReconciliationLedgerFailed) {
		t.Fatalf("unexpected list %+v", list)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asAdmin(httptest.NewRequest(http.MethodPost, "/admin/reconciliations/rec-1/resolve", strings.NewReader(`{"note":"credited manually"}`))))
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotResolve.ID != "rec-1" || gotResolve.ActorID != "admin-1" || gotResolve.Note != "credited manually" {
		t.Fatalf("unexpected resolve command %+v", gotResolve)
	}
	var resolved reconciliationPayload
	decodeInto(t, rec, &resolved)
	if resolved.ResolvedAt != "2024-05-01T13:00:00Z" {
		t.Fatalf("unexpected resolvedAt %q", resolved.ResolvedAt)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reconciliations/rec-1/retry", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("retry: expected 409, got %d", rec.Code)
	}
}

func TestAdminAccountHandlers_ResolveWithoutBody(t *testing.T) {
	recs := &stubReconciliationService{
		resolveFunc: func(_ context.Context, cmd services.ResolveReconciliationCommand) (services.Reconciliation, error) {
			return services.Reconciliation{ID: cmd.ID, Status: domain.ReconciliationResolved}, nil
		},
	}
	router := newAdminAccountRouter(nil, recs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reconciliations/rec-1/resolve", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
