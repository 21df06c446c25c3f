package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// DraftKind tags the admin edit payloads.
type DraftKind string

const (
	DraftProduct        DraftKind = "product"
	DraftShippingConfig DraftKind = "shipping_config"
	DraftTestimonial    DraftKind = "testimonial"
	DraftGalleryImage   DraftKind = "gallery_image"
	DraftBlogPost       DraftKind = "blog_post"
)

// ErrInvalidDraft matches every DraftError via errors.Is.
var ErrInvalidDraft = errors.New("draft: invalid")

// DraftError lists per-field problems found while parsing or validating a draft.
type DraftError struct {
	Kind   DraftKind
	Fields map[string]string
}

func (e *DraftError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s draft invalid: %s", e.Kind, strings.Join(parts, "; "))
}

func (e *DraftError) Is(target error) bool {
	return target == ErrInvalidDraft
}

type fieldErrors struct {
	kind   DraftKind
	fields map[string]string
}

func (f *fieldErrors) add(field, problem string) {
	if f.fields == nil {
		f.fields = make(map[string]string)
	}
	if _, exists := f.fields[field]; !exists {
		f.fields[field] = problem
	}
}

func (f *fieldErrors) err() error {
	if len(f.fields) == 0 {
		return nil
	}
	return &DraftError{Kind: f.kind, Fields: f.fields}
}

var (
	textPolicy = bluemonday.StrictPolicy()
	htmlPolicy = newArticlePolicy()
)

func newArticlePolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// SanitizeText strips markup and control characters and collapses inner whitespace per line.
// Whitespace is collapsed before the policy runs, since it drops tabs rather than spacing them.
// The result is plain text, so entities produced by the policy are decoded again.
func SanitizeText(input string) string {
	collapsed := collapseLines(input)
	return collapseLines(html.UnescapeString(textPolicy.Sanitize(collapsed)))
}

func collapseLines(text string) string {
	text = strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		words := strings.Fields(line)
		for j, word := range words {
			words[j] = strings.Map(func(r rune) rune {
				if unicode.IsControl(r) {
					return -1
				}
				return r
			}, word)
		}
		lines[i] = strings.Join(strings.Fields(strings.Join(words, " ")), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// SanitizeHTML keeps a safe subset of article markup.
func SanitizeHTML(input string) string {
	return strings.TrimSpace(htmlPolicy.Sanitize(input))
}

func parseDraft[T any](kind DraftKind, raw []byte) (T, error) {
	var draft T
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&draft); err != nil {
		return draft, &DraftError{Kind: kind, Fields: map[string]string{"body": err.Error()}}
	}
	return draft, nil
}

func validURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

func sanitizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := SanitizeText(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ProductDraft is the product editor payload.
type ProductDraft struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Categories  []string         `json:"categories"`
	Tags        []string         `json:"tags"`
	Price       int64            `json:"price"`
	Size        string           `json:"size"`
	Sizes       map[string]int64 `json:"sizes"`
	Images      []string         `json:"images"`
	Description string           `json:"description"`
	Ingredients []string         `json:"ingredients"`
	Benefits    []string         `json:"benefits"`
	Usage       string           `json:"usage"`
	Bestseller  bool             `json:"isBestseller"`
	InStock     *bool            `json:"inStock"`
}

// ParseProductDraft decodes a product draft, rejecting unknown fields.
func ParseProductDraft(raw []byte) (ProductDraft, error) {
	return parseDraft[ProductDraft](DraftProduct, raw)
}

// Validate checks the draft and converts it to a Product. Timestamps are left to the caller.
func (d ProductDraft) Validate() (Product, error) {
	errs := fieldErrors{kind: DraftProduct}
	name := SanitizeText(d.Name)
	if name == "" {
		errs.add("name", "is required")
	}
	if d.Price < 0 {
		errs.add("price", "must not be negative")
	}
	size := strings.TrimSpace(d.Size)
	if size == "" {
		errs.add("size", "is required")
	}
	var sizes map[string]int64
	if len(d.Sizes) > 0 {
		sizes = make(map[string]int64, len(d.Sizes))
		for label, price := range d.Sizes {
			label = strings.TrimSpace(label)
			if label == "" {
				errs.add("sizes", "labels must not be empty")
				continue
			}
			if price < 0 {
				errs.add("sizes", fmt.Sprintf("price for %q must not be negative", label))
			}
			sizes[label] = price
		}
		if size != "" {
			if price, ok := sizes[size]; !ok {
				errs.add("sizes", fmt.Sprintf("must contain the base size %q", size))
			} else if price != d.Price {
				errs.add("sizes", fmt.Sprintf("price for base size %q must equal price", size))
			}
		}
	}
	categories := sanitizeList(d.Categories)
	if len(categories) == 0 {
		errs.add("categories", "at least one category is required")
	}
	for _, img := range d.Images {
		if !validURL(img) {
			errs.add("images", "must be absolute http(s) URLs")
			break
		}
	}
	if err := errs.err(); err != nil {
		return Product{}, err
	}

	inStock := true
	if d.InStock != nil {
		inStock = *d.InStock
	}
	return Product{
		ID:          strings.TrimSpace(d.ID),
		Name:        name,
		Categories:  categories,
		Tags:        sanitizeList(d.Tags),
		Price:       d.Price,
		BaseSize:    size,
		SizePrices:  sizes,
		Images:      append([]string(nil), d.Images...),
		Description: SanitizeText(d.Description),
		Ingredients: sanitizeList(d.Ingredients),
		Benefits:    sanitizeList(d.Benefits),
		Usage:       SanitizeText(d.Usage),
		Bestseller:  d.Bestseller,
		InStock:     inStock,
	}, nil
}

// ShippingRateDraft is one region override row.
type ShippingRateDraft struct {
	State string `json:"state"`
	Fee   int64  `json:"fee"`
}

// ShippingConfigDraft is the shipping settings payload.
type ShippingConfigDraft struct {
	DefaultFee            int64               `json:"defaultFee"`
	FreeShippingThreshold int64               `json:"freeShippingThreshold"`
	Rates                 []ShippingRateDraft `json:"rates"`
}

// ParseShippingConfigDraft decodes a shipping settings draft.
func ParseShippingConfigDraft(raw []byte) (ShippingConfigDraft, error) {
	return parseDraft[ShippingConfigDraft](DraftShippingConfig, raw)
}

// Validate enforces non-negative fees and unique region keys. Region names keep their exact
// spelling because fee lookup is case-sensitive.
func (d ShippingConfigDraft) Validate() (ShippingConfig, error) {
	errs := fieldErrors{kind: DraftShippingConfig}
	if d.DefaultFee < 0 {
		errs.add("defaultFee", "must not be negative")
	}
	if d.FreeShippingThreshold < 0 {
		errs.add("freeShippingThreshold", "must not be negative")
	}
	seen := make(map[string]struct{}, len(d.Rates))
	rates := make([]ShippingRate, 0, len(d.Rates))
	for i, rate := range d.Rates {
		region := strings.TrimSpace(rate.State)
		field := fmt.Sprintf("rates[%d]", i)
		if region == "" {
			errs.add(field, "state is required")
			continue
		}
		if _, dup := seen[region]; dup {
			errs.add(field, fmt.Sprintf("duplicate state %q", region))
			continue
		}
		seen[region] = struct{}{}
		if rate.Fee < 0 {
			errs.add(field, "fee must not be negative")
		}
		rates = append(rates, ShippingRate{Region: region, Fee: rate.Fee})
	}
	if err := errs.err(); err != nil {
		return ShippingConfig{}, err
	}
	return ShippingConfig{
		DefaultFee:            d.DefaultFee,
		FreeShippingThreshold: d.FreeShippingThreshold,
		Rates:                 rates,
	}, nil
}

// TestimonialDraft is the testimonial editor payload.
type TestimonialDraft struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Quote    string `json:"quote"`
	ImageURL string `json:"imageUrl"`
}

// ParseTestimonialDraft decodes a testimonial draft.
func ParseTestimonialDraft(raw []byte) (TestimonialDraft, error) {
	return parseDraft[TestimonialDraft](DraftTestimonial, raw)
}

// Validate converts the draft to a Testimonial.
func (d TestimonialDraft) Validate() (Testimonial, error) {
	errs := fieldErrors{kind: DraftTestimonial}
	t := Testimonial{
		Name:     SanitizeText(d.Name),
		Location: SanitizeText(d.Location),
		Quote:    SanitizeText(d.Quote),
		ImageURL: strings.TrimSpace(d.ImageURL),
	}
	if t.Name == "" {
		errs.add("name", "is required")
	}
	if t.Quote == "" {
		errs.add("quote", "is required")
	}
	if t.ImageURL != "" && !validURL(t.ImageURL) {
		errs.add("imageUrl", "must be an absolute http(s) URL")
	}
	if err := errs.err(); err != nil {
		return Testimonial{}, err
	}
	return t, nil
}

// GalleryImageDraft is the before/after editor payload.
type GalleryImageDraft struct {
	BeforeURL   string `json:"beforeUrl"`
	AfterURL    string `json:"afterUrl"`
	Description string `json:"description"`
}

// ParseGalleryImageDraft decodes a gallery draft.
func ParseGalleryImageDraft(raw []byte) (GalleryImageDraft, error) {
	return parseDraft[GalleryImageDraft](DraftGalleryImage, raw)
}

// Validate converts the draft to a GalleryImage.
func (d GalleryImageDraft) Validate() (GalleryImage, error) {
	errs := fieldErrors{kind: DraftGalleryImage}
	if !validURL(d.BeforeURL) {
		errs.add("beforeUrl", "must be an absolute http(s) URL")
	}
	if !validURL(d.AfterURL) {
		errs.add("afterUrl", "must be an absolute http(s) URL")
	}
	if err := errs.err(); err != nil {
		return GalleryImage{}, err
	}
	return GalleryImage{
		BeforeURL:   strings.TrimSpace(d.BeforeURL),
		AfterURL:    strings.TrimSpace(d.AfterURL),
		Description: SanitizeText(d.Description),
	}, nil
}

// BlogPostDraft is the article editor payload.
type BlogPostDraft struct {
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt"`
	ImageURL string `json:"imageUrl"`
	Author   string `json:"author"`
	Content  string `json:"content"`
}

// ParseBlogPostDraft decodes an article draft.
func ParseBlogPostDraft(raw []byte) (BlogPostDraft, error) {
	return parseDraft[BlogPostDraft](DraftBlogPost, raw)
}

// Validate converts the draft to a BlogPost; content keeps safe HTML.
func (d BlogPostDraft) Validate() (BlogPost, error) {
	errs := fieldErrors{kind: DraftBlogPost}
	post := BlogPost{
		Title:    SanitizeText(d.Title),
		Excerpt:  SanitizeText(d.Excerpt),
		ImageURL: strings.TrimSpace(d.ImageURL),
		Author:   SanitizeText(d.Author),
		Content:  SanitizeHTML(d.Content),
	}
	if post.Title == "" {
		errs.add("title", "is required")
	}
	if post.Content == "" {
		errs.add("content", "is required")
	}
	if post.ImageURL != "" && !validURL(post.ImageURL) {
		errs.add("imageUrl", "must be an absolute http(s) URL")
	}
	if err := errs.err(); err != nil {
		return BlogPost{}, err
	}
	return post, nil
}
