package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/platform/httpx"
	"github.com/optimistics/storefront/internal/services"
)

const (
	defaultContentLimit   = 24
	maxContentLimit       = 100
	maxSubmissionBodySize = 32 * 1024
	submissionRateLimit   = 5
	submissionRateWindow  = 10 * time.Minute
	publicCacheControl    = "public, max-age=60"
)

// PublicHandlers serves the unauthenticated storefront: catalog, shipping table, published content
// and customer submissions.
type PublicHandlers struct {
	catalog     services.CatalogService
	shipping    services.ShippingService
	content     services.ContentService
	submissions services.SubmissionService
	limiter     rateLimiter
}

// PublicDeps wires PublicHandlers. Nil services answer 503 on their routes.
type PublicDeps struct {
	Catalog     services.CatalogService
	Shipping    services.ShippingService
	Content     services.ContentService
	Submissions services.SubmissionService
	Clock       func() time.Time
}

// NewPublicHandlers constructs the public route handlers.
func NewPublicHandlers(deps PublicDeps) *PublicHandlers {
	return &PublicHandlers{
		catalog:     deps.Catalog,
		shipping:    deps.Shipping,
		content:     deps.Content,
		submissions: deps.Submissions,
		limiter:     newWindowLimiter(submissionRateLimit, submissionRateWindow, deps.Clock),
	}
}

// Routes registers public endpoints.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productId}", h.getProduct)
	r.Get("/shipping", h.getShipping)
	r.Get("/testimonials", h.listTestimonials)
	r.Get("/gallery", h.listGallery)
	r.Get("/blog", h.listBlogPosts)
	r.Get("/blog/{postId}", h.getBlogPost)
	r.Post("/submissions", h.submit)
	r.Post("/submissions/upload-url", h.signUpload)
}

type productPayload struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Categories  []string         `json:"categories"`
	Tags        []string         `json:"tags,omitempty"`
	Price       int64            `json:"price"`
	Size        string           `json:"size"`
	Sizes       map[string]int64 `json:"sizes,omitempty"`
	Images      []string         `json:"images"`
	Description string           `json:"description"`
	Ingredients []string         `json:"ingredients,omitempty"`
	Benefits    []string         `json:"benefits,omitempty"`
	Usage       string           `json:"usage,omitempty"`
	Reviews     []reviewPayload  `json:"reviews,omitempty"`
	Rating      float64          `json:"rating,omitempty"`
	Bestseller  bool             `json:"isBestseller"`
	InStock     bool             `json:"inStock"`
	UpdatedAt   string           `json:"updatedAt,omitempty"`
}

type reviewPayload struct {
	Author  string `json:"author"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
	Date    string `json:"date,omitempty"`
}

type productListResponse struct {
	Items []productPayload `json:"items"`
}

type shippingRatePayload struct {
	State string `json:"state"`
	Fee   int64  `json:"fee"`
}

type shippingPayload struct {
	DefaultFee            int64                 `json:"defaultFee"`
	FreeShippingThreshold int64                 `json:"freeShippingThreshold"`
	Rates                 []shippingRatePayload `json:"rates"`
	UpdatedAt             string                `json:"updatedAt,omitempty"`
}

type testimonialPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location,omitempty"`
	Quote     string `json:"quote"`
	ImageURL  string `json:"imageUrl,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type galleryPayload struct {
	ID          string `json:"id"`
	BeforeURL   string `json:"beforeUrl"`
	AfterURL    string `json:"afterUrl"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

type blogPostPayload struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt"`
	ImageURL string `json:"imageUrl,omitempty"`
	Author   string `json:"author"`
	Date     string `json:"date"`
	Content  string `json:"content,omitempty"`
}

type submissionRequest struct {
	Type          string `json:"type"`
	CustomerName  string `json:"customerName"`
	Email         string `json:"email"`
	Content       string `json:"content"`
	Location      string `json:"location"`
	ImageURL      string `json:"imageUrl"`
	AfterImageURL string `json:"afterImageUrl"`
}

type submissionPayload struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	CustomerName  string `json:"customerName"`
	Email         string `json:"email,omitempty"`
	Content       string `json:"content"`
	Location      string `json:"location,omitempty"`
	ImageURL      string `json:"imageUrl,omitempty"`
	AfterImageURL string `json:"afterImageUrl,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"createdAt"`
}

type uploadURLRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

type uploadURLResponse struct {
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ObjectURL string            `json:"objectUrl"`
	ExpiresAt string            `json:"expiresAt"`
}

func (h *PublicHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	query := r.URL.Query()
	limit, err := parseLimit(query.Get("limit"), maxContentLimit, maxContentLimit)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	bestseller, _ := strconv.ParseBool(strings.TrimSpace(query.Get("bestseller")))
	products, err := h.catalog.ListProducts(ctx, services.ProductListFilter{
		Category:       strings.TrimSpace(query.Get("category")),
		BestsellerOnly: bestseller,
		Limit:          limit,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	resp := productListResponse{Items: make([]productPayload, 0, len(products))}
	for _, product := range products {
		resp.Items = append(resp.Items, buildProductPayload(product))
	}
	w.Header().Set("Cache-Control", publicCacheControl)
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *PublicHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productId"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", publicCacheControl)
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *PublicHandlers) getShipping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		serviceUnavailable(ctx, w, "shipping")
		return
	}
	cfg, err := h.shipping.GetConfig(ctx)
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildShippingPayload(cfg))
}

func (h *PublicHandlers) listTestimonials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, ok := h.contentLimit(ctx, w, r)
	if !ok {
		return
	}
	items, err := h.content.ListTestimonials(ctx, limit)
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}
	resp := make([]testimonialPayload, 0, len(items))
	for _, item := range items {
		resp = append(resp, buildTestimonialPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": resp})
}

func (h *PublicHandlers) listGallery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, ok := h.contentLimit(ctx, w, r)
	if !ok {
		return
	}
	items, err := h.content.ListGallery(ctx, limit)
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}
	resp := make([]galleryPayload, 0, len(items))
	for _, item := range items {
		resp = append(resp, buildGalleryPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": resp})
}

// listBlogPosts omits article bodies; clients fetch a single post for its content.
func (h *PublicHandlers) listBlogPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, ok := h.contentLimit(ctx, w, r)
	if !ok {
		return
	}
	posts, err := h.content.ListBlogPosts(ctx, limit)
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}
	resp := make([]blogPostPayload, 0, len(posts))
	for _, post := range posts {
		payload := buildBlogPostPayload(post)
		payload.Content = ""
		resp = append(resp, payload)
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": resp})
}

func (h *PublicHandlers) getBlogPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		serviceUnavailable(ctx, w, "content")
		return
	}
	post, err := h.content.GetBlogPost(ctx, chi.URLParam(r, "postId"))
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildBlogPostPayload(post))
}

func (h *PublicHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.submissions == nil {
		serviceUnavailable(ctx, w, "submission")
		return
	}
	if !h.allow(ctx, w, r) {
		return
	}
	var req submissionRequest
	if !decodeJSONBody(w, r, maxSubmissionBodySize, &req) {
		return
	}
	sub, err := h.submissions.Submit(ctx, services.SubmitCommand{
		Type:          domain.SubmissionType(strings.ToLower(strings.TrimSpace(req.Type))),
		CustomerName:  req.CustomerName,
		Email:         req.Email,
		Content:       req.Content,
		Location:      req.Location,
		ImageURL:      req.ImageURL,
		AfterImageURL: req.AfterImageURL,
	})
	if err != nil {
		writeSubmissionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildSubmissionPayload(sub))
}

func (h *PublicHandlers) signUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.submissions == nil {
		serviceUnavailable(ctx, w, "submission")
		return
	}
	if !h.allow(ctx, w, r) {
		return
	}
	var req uploadURLRequest
	if !decodeJSONBody(w, r, maxSubmissionBodySize, &req) {
		return
	}
	upload, err := h.submissions.SignImageUpload(ctx, services.SignImageUploadCommand{
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: strings.TrimSpace(req.ContentType),
	})
	if err != nil {
		writeSubmissionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, uploadURLResponse{
		UploadURL: upload.UploadURL,
		Method:    upload.Method,
		Headers:   upload.Headers,
		ObjectURL: upload.PublicURL,
		ExpiresAt: formatTime(upload.ExpiresAt),
	})
}

func (h *PublicHandlers) contentLimit(ctx context.Context, w http.ResponseWriter, r *http.Request) (int, bool) {
	if h.content == nil {
		serviceUnavailable(ctx, w, "content")
		return 0, false
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultContentLimit, maxContentLimit)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return 0, false
	}
	return limit, true
}

func (h *PublicHandlers) allow(ctx context.Context, w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil || h.limiter.Allow(clientKey(r)) {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(submissionRateWindow.Seconds())))
	httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many submissions; try again later", http.StatusTooManyRequests))
	return false
}

func buildProductPayload(p services.Product) productPayload {
	payload := productPayload{
		ID:          p.ID,
		Name:        p.Name,
		Categories:  nonNilStrings(p.Categories),
		Tags:        p.Tags,
		Price:       p.Price,
		Size:        p.BaseSize,
		Sizes:       p.SizePrices,
		Images:      nonNilStrings(p.Images),
		Description: p.Description,
		Ingredients: p.Ingredients,
		Benefits:    p.Benefits,
		Usage:       p.Usage,
		Bestseller:  p.Bestseller,
		InStock:     p.InStock,
		UpdatedAt:   formatTime(p.UpdatedAt),
	}
	var total int
	for _, review := range p.Reviews {
		total += review.Rating
		payload.Reviews = append(payload.Reviews, reviewPayload{
			Author:  review.Author,
			Rating:  review.Rating,
			Comment: review.Comment,
			Date:    formatTime(review.Date),
		})
	}
	if len(p.Reviews) > 0 {
		payload.Rating = float64(total) / float64(len(p.Reviews))
	}
	return payload
}

func buildShippingPayload(cfg services.ShippingConfig) shippingPayload {
	payload := shippingPayload{
		DefaultFee:            cfg.DefaultFee,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		Rates:                 make([]shippingRatePayload, 0, len(cfg.Rates)),
		UpdatedAt:             formatTime(cfg.UpdatedAt),
	}
	for _, rate := range cfg.Rates {
		payload.Rates = append(payload.Rates, shippingRatePayload{State: rate.Region, Fee: rate.Fee})
	}
	return payload
}

func buildTestimonialPayload(t services.Testimonial) testimonialPayload {
	return testimonialPayload{
		ID:        t.ID,
		Name:      t.Name,
		Location:  t.Location,
		Quote:     t.Quote,
		ImageURL:  t.ImageURL,
		CreatedAt: formatTime(t.CreatedAt),
	}
}

func buildGalleryPayload(g services.GalleryImage) galleryPayload {
	return galleryPayload{
		ID:          g.ID,
		BeforeURL:   g.BeforeURL,
		AfterURL:    g.AfterURL,
		Description: g.Description,
		CreatedAt:   formatTime(g.CreatedAt),
	}
}

func buildBlogPostPayload(p services.BlogPost) blogPostPayload {
	return blogPostPayload{
		ID:       p.ID,
		Title:    p.Title,
		Excerpt:  p.Excerpt,
		ImageURL: p.ImageURL,
		Author:   p.Author,
		Date:     formatTime(p.Date),
		Content:  p.Content,
	}
}

func buildSubmissionPayload(s services.Submission) submissionPayload {
	return submissionPayload{
		ID:            s.ID,
		Type:          string(s.Type),
		CustomerName:  s.CustomerName,
		Email:         s.Email,
		Content:       s.Content,
		Location:      s.Location,
		ImageURL:      s.ImageURL,
		AfterImageURL: s.AfterImageURL,
		Status:        string(s.Status),
		CreatedAt:     formatTime(s.CreatedAt),
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		writeInvalidDraft(ctx, w, err)
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	default:
		serviceUnavailable(ctx, w, "catalog")
	}
}

func writeShippingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrShippingInvalidInput):
		writeInvalidDraft(ctx, w, err)
	default:
		serviceUnavailable(ctx, w, "shipping")
	}
}

func writeContentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrContentInvalidInput):
		writeInvalidDraft(ctx, w, err)
	case errors.Is(err, services.ErrContentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("content_not_found", "content not found", http.StatusNotFound))
	default:
		serviceUnavailable(ctx, w, "content")
	}
}

func writeSubmissionError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrSubmissionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSubmissionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("submission_not_found", "submission not found", http.StatusNotFound))
	case errors.Is(err, services.ErrSubmissionInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("submission_moderated", "submission was already moderated", http.StatusConflict))
	default:
		serviceUnavailable(ctx, w, "submission")
	}
}

// writeInvalidDraft reports per-field draft problems when the error carries them.
func writeInvalidDraft(ctx context.Context, w http.ResponseWriter, err error) {
	apiErr := httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	var draftErr *domain.DraftError
	if errors.As(err, &draftErr) && len(draftErr.Fields) > 0 {
		fields := make(map[string]any, len(draftErr.Fields))
		for k, v := range draftErr.Fields {
			fields[k] = v
		}
		apiErr = apiErr.WithDetails(map[string]any{"fields": fields})
	}
	httpx.WriteError(ctx, w, apiErr)
}
