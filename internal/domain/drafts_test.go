package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProductDraftRejectsUnknownFields(t *testing.T) {
	_, err := ParseProductDraft([]byte(`{"name":"Glow Serum","colour":"red"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDraft))

	var draftErr *DraftError
	require.True(t, errors.As(err, &draftErr))
	assert.Equal(t, DraftProduct, draftErr.Kind)
	assert.Contains(t, draftErr.Fields, "body")
}

func TestProductDraftValidate(t *testing.T) {
	raw := []byte(`{
		"name": "  Growth <b>Oil</b> ",
		"categories": ["Hair Growth"],
		"price": 15000,
		"size": "100ml",
		"sizes": {"100ml": 15000, "200ml": 27000},
		"images": ["https://cdn.example.com/oil.jpg"],
		"description": "Rosemary & castor <script>alert(1)</script>blend",
		"benefits": ["Thicker edges", "  "],
		"isBestseller": true
	}`)
	draft, err := ParseProductDraft(raw)
	require.NoError(t, err)

	product, err := draft.Validate()
	require.NoError(t, err)
	assert.Equal(t, "Growth Oil", product.Name)
	assert.Equal(t, "100ml", product.BaseSize)
	assert.Equal(t, int64(27000), product.SizePrices["200ml"])
	assert.Equal(t, "Rosemary & castor blend", product.Description)
	assert.Equal(t, []string{"Thicker edges"}, product.Benefits)
	assert.True(t, product.InStock)
	assert.True(t, product.Bestseller)
}

func TestProductDraftValidateCollectsFieldErrors(t *testing.T) {
	draft := ProductDraft{
		Price:  -1,
		Size:   "50ml",
		Sizes:  map[string]int64{"100ml": 1000},
		Images: []string{"ftp://bad"},
	}
	_, err := draft.Validate()
	var draftErr *DraftError
	require.True(t, errors.As(err, &draftErr))
	for _, field := range []string{"name", "price", "sizes", "categories", "images"} {
		assert.Contains(t, draftErr.Fields, field)
	}
}

func TestShippingConfigDraftRejectsDuplicateRegions(t *testing.T) {
	draft, err := ParseShippingConfigDraft([]byte(`{
		"defaultFee": 3000,
		"freeShippingThreshold": 50000,
		"rates": [{"state":"Lagos","fee":2500},{"state":"Lagos","fee":2000},{"state":"lagos","fee":1800}]
	}`))
	require.NoError(t, err)

	_, err = draft.Validate()
	var draftErr *DraftError
	require.True(t, errors.As(err, &draftErr))
	assert.Contains(t, draftErr.Fields, "rates[1]")
	assert.NotContains(t, draftErr.Fields, "rates[2]", "region keys are case-sensitive")
}

func TestShippingConfigDraftValidate(t *testing.T) {
	draft := ShippingConfigDraft{
		DefaultFee:            3000,
		FreeShippingThreshold: 50000,
		Rates:                 []ShippingRateDraft{{State: " Lagos ", Fee: 2500}, {State: "Abuja", Fee: 3500}},
	}
	cfg, err := draft.Validate()
	require.NoError(t, err)
	assert.Equal(t, []ShippingRate{{Region: "Lagos", Fee: 2500}, {Region: "Abuja", Fee: 3500}}, cfg.Rates)
}

func TestContentDrafts(t *testing.T) {
	testimonial, err := TestimonialDraft{Name: "Amaka", Location: "Lagos", Quote: "My skin <i>glows</i>"}.Validate()
	require.NoError(t, err)
	assert.Equal(t, "My skin glows", testimonial.Quote)

	_, err = TestimonialDraft{Name: "Amaka"}.Validate()
	assert.ErrorIs(t, err, ErrInvalidDraft)

	_, err = GalleryImageDraft{BeforeURL: "https://cdn.example.com/a.jpg", AfterURL: "not-a-url"}.Validate()
	var draftErr *DraftError
	require.True(t, errors.As(err, &draftErr))
	assert.Contains(t, draftErr.Fields, "afterUrl")

	post, err := BlogPostDraft{
		Title:   "Caring for 4C hair",
		Content: `<p>Moisture first.</p><script>steal()</script><a href="https://example.com">more</a>`,
	}.Validate()
	require.NoError(t, err)
	assert.NotContains(t, post.Content, "<script>")
	assert.Contains(t, post.Content, `rel="nofollow"`)
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "Ada's line one\nline two", SanitizeText("  Ada's   line\tone \r\n line <b>two</b> "))
	assert.Equal(t, "", SanitizeText("<script>x</script>"))
	assert.Equal(t, "soft skin and glow", SanitizeText("soft\tskin\t\tand\vglow"))
	assert.Equal(t, "bell", SanitizeText("be\x07ll"))
}

func TestAddressAndContactFormatting(t *testing.T) {
	addr := Address{Line1: "12 Admiralty Way", City: "Lekki", State: "Lagos"}
	assert.Equal(t, "12 Admiralty Way, Lekki, Lagos", addr.String())
	assert.Equal(t, "Ada Obi", Contact{FirstName: " Ada", LastName: "Obi "}.FullName())
	assert.Equal(t, "p1-100ml", CartLineID("p1", "100ml"))
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.False(t, OrderStatusShipped.Terminal())
}
