package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/platform/auth"
	"github.com/optimistics/storefront/internal/platform/httpx"
	"github.com/optimistics/storefront/internal/platform/pagination"
	"github.com/optimistics/storefront/internal/services"
)

const maxAdminDraftBody = 256 * 1024

// AdminRoutes groups admin registrars behind an admin-role Firebase check.
func AdminRoutes(authn *auth.Authenticator, registrars ...RouteRegistrar) RouteRegistrar {
	return func(r chi.Router) {
		if authn != nil {
			r.Use(authn.RequireFirebaseAuth(auth.RoleAdmin))
		}
		for _, register := range registrars {
			if register != nil {
				register(r)
			}
		}
	}
}

// AdminCatalogHandlers manages products, the shipping table, published content and moderation.
type AdminCatalogHandlers struct {
	catalog     services.CatalogService
	shipping    services.ShippingService
	content     services.ContentService
	submissions services.SubmissionService
}

// AdminCatalogDeps wires AdminCatalogHandlers.
type AdminCatalogDeps struct {
	Catalog     services.CatalogService
	Shipping    services.ShippingService
	Content     services.ContentService
	Submissions services.SubmissionService
}

// NewAdminCatalogHandlers constructs admin catalog handlers.
func NewAdminCatalogHandlers(deps AdminCatalogDeps) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{
		catalog:     deps.Catalog,
		shipping:    deps.Shipping,
		content:     deps.Content,
		submissions: deps.Submissions,
	}
}

// Routes registers catalog administration endpoints on the admin router.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/products", h.createProduct)
	r.Put("/products/{productId}", h.updateProduct)
	r.Delete("/products/{productId}", h.deleteProduct)
	r.Put("/shipping", h.saveShipping)

	r.Post("/testimonials", h.saveTestimonial)
	r.Put("/testimonials/{contentId}", h.saveTestimonial)
	r.Delete("/testimonials/{contentId}", h.deleteTestimonial)
	r.Post("/gallery", h.saveGalleryImage)
	r.Put("/gallery/{contentId}", h.saveGalleryImage)
	r.Delete("/gallery/{contentId}", h.deleteGalleryImage)
	r.Post("/blog", h.saveBlogPost)
	r.Put("/blog/{contentId}", h.saveBlogPost)
	r.Delete("/blog/{contentId}", h.deleteBlogPost)

	r.Get("/submissions", h.listSubmissions)
	r.Post("/submissions/{submissionId}/approve", h.approveSubmission)
	r.Post("/submissions/{submissionId}/reject", h.rejectSubmission)
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "")
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, strings.TrimSpace(chi.URLParam(r, "productId")))
}

func (h *AdminCatalogHandlers) saveProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	body, ok := readDraftBody(w, r)
	if !ok {
		return
	}
	draft, err := domain.ParseProductDraft(body)
	if err != nil {
		writeInvalidDraft(ctx, w, err)
		return
	}
	if productID != "" {
		if id := strings.TrimSpace(draft.ID); id != "" && id != productID {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "id does not match path", http.StatusBadRequest))
			return
		}
		draft.ID = productID
	}
	product, err := h.catalog.SaveProduct(ctx, draft)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	status := http.StatusOK
	if productID == "" {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, buildProductPayload(product))
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productId")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) saveShipping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		serviceUnavailable(ctx, w, "shipping")
		return
	}
	body, ok := readDraftBody(w, r)
	if !ok {
		return
	}
	draft, err := domain.ParseShippingConfigDraft(body)
	if err != nil {
		writeInvalidDraft(ctx, w, err)
		return
	}
	cfg, err := h.shipping.SaveConfig(ctx, draft)
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildShippingPayload(cfg))
}

func (h *AdminCatalogHandlers) saveTestimonial(w http.ResponseWriter, r *http.Request) {
	saveContent(h, w, r, domain.ParseTestimonialDraft,
		func(ctx context.Context, id string, d domain.TestimonialDraft) (any, error) {
			saved, err := h.content.SaveTestimonial(ctx, id, d)
			return buildTestimonialPayload(saved), err
		})
}

func (h *AdminCatalogHandlers) saveGalleryImage(w http.ResponseWriter, r *http.Request) {
	saveContent(h, w, r, domain.ParseGalleryImageDraft,
		func(ctx context.Context, id string, d domain.GalleryImageDraft) (any, error) {
			saved, err := h.content.SaveGalleryImage(ctx, id, d)
			return buildGalleryPayload(saved), err
		})
}

func (h *AdminCatalogHandlers) saveBlogPost(w http.ResponseWriter, r *http.Request) {
	saveContent(h, w, r, domain.ParseBlogPostDraft,
		func(ctx context.Context, id string, d domain.BlogPostDraft) (any, error) {
			saved, err := h.content.SaveBlogPost(ctx, id, d)
			return buildBlogPostPayload(saved), err
		})
}

// saveContent parses a content draft and saves it, creating when the path has no id.
func saveContent[D any](h *AdminCatalogHandlers, w http.ResponseWriter, r *http.Request, parse func([]byte) (D, error), save func(context.Context, string, D) (any, error)) {
	ctx := r.Context()
	if h.content == nil {
		serviceUnavailable(ctx, w, "content")
		return
	}
	body, ok := readDraftBody(w, r)
	if !ok {
		return
	}
	draft, err := parse(body)
	if err != nil {
		writeInvalidDraft(ctx, w, err)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "contentId"))
	payload, err := save(ctx, id, draft)
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}
	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, payload)
}

func (h *AdminCatalogHandlers) deleteTestimonial(w http.ResponseWriter, r *http.Request) {
	h.deleteContent(w, r, func(ctx context.Context, id string) error { return h.content.DeleteTestimonial(ctx, id) })
}

func (h *AdminCatalogHandlers) deleteGalleryImage(w http.ResponseWriter, r *http.Request) {
	h.deleteContent(w, r, func(ctx context.Context, id string) error { return h.content.DeleteGalleryImage(ctx, id) })
}

func (h *AdminCatalogHandlers) deleteBlogPost(w http.ResponseWriter, r *http.Request) {
	h.deleteContent(w, r, func(ctx context.Context, id string) error { return h.content.DeleteBlogPost(ctx, id) })
}

func (h *AdminCatalogHandlers) deleteContent(w http.ResponseWriter, r *http.Request, del func(context.Context, string) error) {
	ctx := r.Context()
	if h.content == nil {
		serviceUnavailable(ctx, w, "content")
		return
	}
	if err := del(ctx, chi.URLParam(r, "contentId")); err != nil {
		writeContentError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submissionListResponse struct {
	Items         []submissionPayload `json:"items"`
	NextPageToken string              `json:"nextPageToken,omitempty"`
}

func (h *AdminCatalogHandlers) listSubmissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.submissions == nil {
		serviceUnavailable(ctx, w, "submission")
		return
	}
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	page, err := h.submissions.ListPending(ctx, services.Pagination{PageSize: params.PageSize, PageToken: params.PageToken})
	if err != nil {
		writeSubmissionError(ctx, w, err)
		return
	}
	resp := submissionListResponse{
		Items:         make([]submissionPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, sub := range page.Items {
		resp.Items = append(resp.Items, buildSubmissionPayload(sub))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AdminCatalogHandlers) approveSubmission(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, func(ctx context.Context, id string) error { return h.submissions.Approve(ctx, id) })
}

func (h *AdminCatalogHandlers) rejectSubmission(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, func(ctx context.Context, id string) error { return h.submissions.Reject(ctx, id) })
}

func (h *AdminCatalogHandlers) moderate(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	ctx := r.Context()
	if h.submissions == nil {
		serviceUnavailable(ctx, w, "submission")
		return
	}
	if err := op(ctx, chi.URLParam(r, "submissionId")); err != nil {
		writeSubmissionError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readDraftBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := readLimitedBody(r, maxAdminDraftBody)
	if err != nil {
		writeBodyError(r.Context(), w, err)
		return nil, false
	}
	return body, true
}
