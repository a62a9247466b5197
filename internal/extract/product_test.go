package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-scraper/internal/models"
)

const productURL = "https://nautichandler.com/en/painting/4521-antifouling-paint.html"

func TestParseProductDetail_StructuredData(t *testing.T) {
	html := `<html><head>
		<title>Ignored title</title>
		<meta property="og:image" content="https://cdn.test/og.jpg">
		<script type="application/ld+json">{ not valid json</script>
		<script type="application/ld+json">
		{"@context":"https://schema.org","@graph":[
			{"@type":"BreadcrumbList","name":"crumbs"},
			{"@type":["Product","Thing"],"name":"Antifouling Paint &amp; Primer",
			 "description":"Hard antifouling for fast boats.",
			 "image":["/img/p/4521.jpg","/img/p/4522.jpg"],
			 "offers":{"@type":"Offer","price":49.9,"priceCurrency":"EUR"}}
		]}
		</script>
	</head><body>
		<h1>Heading title</h1>
		<div id="collapseDescription"><p>Long lasting <b>antifouling</b> paint.</p><ul><li>2.5 L</li><li>Blue</li></ul></div>
		<span class="regular-price">€59.00</span>
		<span id="product-availability"><i class="material-icons">check</i> In stock</span>
	</body></html>`

	p, err := ParseProductDetail(html, productURL)
	require.NoError(t, err)

	assert.Equal(t, "Antifouling Paint & Primer", p.Title)
	assert.Equal(t, "€49.90", models.Deref(p.Price))
	assert.Equal(t, "€59.00", models.Deref(p.OldPrice))
	assert.Equal(t, "In stock", models.Deref(p.Stock))
	assert.Equal(t, "https://nautichandler.com/img/p/4521.jpg", models.Deref(p.ImageURL))
	assert.Equal(t, "Long lasting antifouling paint.\n• 2.5 L\n• Blue", models.Deref(p.Description))
	assert.Equal(t, productURL, p.SourceURL)
}

func TestParseProductDetail_HTMLFallbacks(t *testing.T) {
	html := `<html><head>
		<title>Title Tag Name</title>
		<meta name="description" content="Marine rope for mooring &amp; anchoring lines">
		<meta property="og:image" content="https://cdn.test/rope.jpg">
	</head><body>
		<h1> Mooring <span>Rope</span> 12mm </h1>
		<div id="collapseDescription">Short</div>
		<div class="current-price"><span class="current-price-value" content="12.5">12,50 €</span></div>
		<span class="regular-price">9,00 €</span>
		<p>Last items in stock</p>
	</body></html>`

	p, err := ParseProductDetail(html, productURL)
	require.NoError(t, err)

	assert.Equal(t, "Mooring Rope 12mm", p.Title)
	assert.Equal(t, "12,50 €", models.Deref(p.Price))
	assert.Nil(t, p.OldPrice, "old price below current price is discarded")
	assert.Equal(t, "Last items in stock", models.Deref(p.Stock))
	assert.Equal(t, "https://cdn.test/rope.jpg", models.Deref(p.ImageURL))
	assert.Equal(t, "Marine rope for mooring & anchoring lines", models.Deref(p.Description))
}

func TestParseProductDetail_DescriptionCascade(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "itemprop description",
			body:     `<div itemprop="description"><p>Stainless steel shackle for sailing boats.</p></div><div id="description">Other description long enough to use</div>`,
			expected: "Stainless steel shackle for sailing boats.",
		},
		{
			name:     "second named block",
			body:     `<div itemprop="description">tiny</div><div id="description"><p>Other description long enough to use</p></div>`,
			expected: "Other description long enough to use",
		},
		{
			name:     "og description",
			body:     `<meta property="og:description" content="Open graph description">`,
			expected: "Open graph description",
		},
		{
			name:     "structured data last",
			body:     `<script type="application/ld+json">{"@type":"Product","name":"X","description":"From structured data"}</script>`,
			expected: "From structured data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProductDetail("<html><body>"+tt.body+"</body></html>", productURL)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, models.Deref(p.Description))
		})
	}
}

func TestParseProductDetail_MissingFields(t *testing.T) {
	p, err := ParseProductDetail("<html><body><div>nothing useful</div></body></html>", productURL)
	require.NoError(t, err)

	assert.Equal(t, "Product", p.Title)
	assert.Nil(t, p.Description)
	assert.Nil(t, p.Price)
	assert.Nil(t, p.OldPrice)
	assert.Nil(t, p.Stock)
	assert.Nil(t, p.ImageURL)
}

func TestParseProductDetail_ItempropPriceContent(t *testing.T) {
	html := `<html><body><h1>Fender</h1><meta itemprop="price" content="23.40"><span class="old-price">€30.00</span></body></html>`

	p, err := ParseProductDetail(html, productURL)
	require.NoError(t, err)
	assert.Equal(t, "23.40", models.Deref(p.Price))
	assert.Equal(t, "€30.00", models.Deref(p.OldPrice))
}

func TestParseProductDetail_EuroRegexFallback(t *testing.T) {
	html := `<html><body><h1>Cleat</h1><p>Now only € 7,95 while stocks last</p></body></html>`

	p, err := ParseProductDetail(html, productURL)
	require.NoError(t, err)
	assert.Equal(t, "€ 7,95", models.Deref(p.Price))
}

func TestParseProductDetail_StockPhrases(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"negated spanish", `<p>Producto no disponible</p>`, "No disponible"},
		{"negated italian", `<p>Articolo non disponibile</p>`, ""},
		{"negated french", `<p>Produit non disponible</p>`, "Non disponible"},
		{"plain spanish", `<p>Producto disponible</p>`, "Disponible"},
		{"canonical casing", `<p>IN STOCK now</p>`, "In stock"},
		{"negated german", `<p>Leider nicht auf Lager</p>`, "Nicht auf Lager"},
		{"out of stock", `<div>Out of stock</div>`, "Out of stock"},
		{"inside a word", `<p>Indisponible</p>`, ""},
		{"split across elements", `<span>Producto</span><span>no disponible</span>`, "No disponible"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProductDetail(`<html><body><h1>Shackle</h1>`+tt.body+`</body></html>`, productURL)
			require.NoError(t, err)
			if tt.expected == "" {
				assert.Nil(t, p.Stock)
				return
			}
			assert.Equal(t, tt.expected, models.Deref(p.Stock))
		})
	}
}
