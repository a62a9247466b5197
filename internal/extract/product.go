package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/price"
)

const (
	minDescriptionLen = 20
	fallbackTitle     = "Product"
)

var (
	euroAmount = regexp.MustCompile(`€\s?\d+(?:[.,]\d{2})?`)

	// stockLabels are matched as whole phrases. Negated and longer forms come
	// before the phrases they contain.
	stockLabels = []string{
		"Out of stock", "Nicht auf Lager", "Rupture de stock", "Sin stock",
		"No disponible", "Non disponible", "Agotado",
		"Last items in stock", "Last items", "Last item",
		"In stock", "On demand", "Pre-order", "En stock", "Disponible",
		"Bajo pedido", "Últimas unidades", "Auf Lager", "Derniers articles",
	}

	stockPhrases = compileStockPhrases(stockLabels)
)

// productPage is the parsed input shared by all field strategies.
type productPage struct {
	doc  *goquery.Document
	ld   structuredProduct
	base *url.URL
}

// fieldStrategy returns a candidate value or "" when it does not apply.
type fieldStrategy func(p *productPage) string

func firstOf(p *productPage, strategies []fieldStrategy) string {
	for _, strategy := range strategies {
		if v := strategy(p); v != "" {
			return v
		}
	}
	return ""
}

var (
	titleStrategies = []fieldStrategy{
		func(p *productPage) string { return p.ld.Name },
		selectorText("h1"),
		selectorText("title"),
	}

	descriptionStrategies = []fieldStrategy{
		blockByID("collapseDescription", "product-description"),
		blockBySelector(`[itemprop="description"]`),
		blockByID("description"),
		metaContent(`meta[name="description"]`),
		metaContent(`meta[property="og:description"]`),
		func(p *productPage) string { return stripMarkup(p.ld.Description) },
	}

	imageStrategies = []fieldStrategy{
		func(p *productPage) string { return p.ld.Image },
		metaContent(`meta[property="og:image"]`),
	}

	priceStrategies = []fieldStrategy{
		func(p *productPage) string { return p.ld.Price },
		priceIn(".current-price-value", ".current-price", ".product-price", "#our_price_display"),
		priceAttr(`[itemprop="price"]`, "content"),
		priceIn(".price"),
		func(p *productPage) string {
			html, _ := p.doc.Html()
			return price.Normalize(euroAmount.FindString(html))
		},
	}

	oldPriceStrategies = []fieldStrategy{
		priceIn(".regular-price", ".old-price", ".price-regular"),
	}

	stockStrategies = []fieldStrategy{
		availabilityText("#product-availability"),
		func(p *productPage) string {
			return findStock(cleanText(spacedText(p.doc.Find("body"))))
		},
	}
)

// ParseProductDetail extracts a product record from static HTML. Fields that
// cannot be determined are nil; parsing never fails on missing data.
func ParseProductDetail(html, sourceURL string) (*models.ProductDetail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base, _ := url.Parse(sourceURL)
	p := &productPage{doc: doc, ld: parseStructuredData(doc), base: base}

	title := firstOf(p, titleStrategies)
	if title == "" {
		title = fallbackTitle
	}

	current := price.Normalize(firstOf(p, priceStrategies))
	old := price.GuardOldPrice(current, price.Normalize(firstOf(p, oldPriceStrategies)))

	var image string
	if raw := firstOf(p, imageStrategies); raw != "" {
		image = resolveURL(base, raw)
	}

	return &models.ProductDetail{
		Title:       title,
		Description: models.StringPtr(firstOf(p, descriptionStrategies)),
		Price:       models.StringPtr(current),
		OldPrice:    models.StringPtr(old),
		Stock:       models.StringPtr(firstOf(p, stockStrategies)),
		ImageURL:    models.StringPtr(image),
		SourceURL:   sourceURL,
	}, nil
}

func selectorText(selector string) fieldStrategy {
	return func(p *productPage) string {
		return cleanText(p.doc.Find(selector).First().Text())
	}
}

func metaContent(selector string) fieldStrategy {
	return func(p *productPage) string {
		return cleanText(p.doc.Find(selector).First().AttrOr("content", ""))
	}
}

func blockBySelector(selector string) fieldStrategy {
	return func(p *productPage) string {
		return describeBlock(p.doc.Find(selector).First())
	}
}

func blockByID(ids ...string) fieldStrategy {
	return func(p *productPage) string {
		for _, id := range ids {
			if text := describeBlock(p.doc.Find("#" + id).First()); text != "" {
				return text
			}
		}
		return ""
	}
}

// describeBlock accepts a content block only past a minimum length; shorter
// text is usually a heading or a placeholder.
func describeBlock(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	inner, err := s.Html()
	if err != nil {
		return ""
	}
	text := stripMarkup(inner)
	if len([]rune(text)) <= minDescriptionLen {
		return ""
	}
	return text
}

func priceIn(selectors ...string) fieldStrategy {
	return func(p *productPage) string {
		for _, selector := range selectors {
			var found string
			p.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				found = price.Find(cleanText(s.Text()))
				return found == ""
			})
			if found != "" {
				return found
			}
		}
		return ""
	}
}

func priceAttr(selector, attr string) fieldStrategy {
	return func(p *productPage) string {
		v := cleanText(p.doc.Find(selector).First().AttrOr(attr, ""))
		if v == "" || !price.LooksLike(v) {
			return ""
		}
		return price.Find(v)
	}
}

func compileStockPhrases(labels []string) *regexp.Regexp {
	quoted := make([]string, len(labels))
	for i, label := range labels {
		quoted[i] = regexp.QuoteMeta(label)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(` + strings.Join(quoted, "|") + `)(?:[^\p{L}\p{N}]|$)`)
}

// findStock returns the first availability phrase in text, in its
// canonical casing.
func findStock(text string) string {
	m := stockPhrases.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	for _, label := range stockLabels {
		if strings.EqualFold(label, m[1]) {
			return label
		}
	}
	return m[1]
}

func availabilityText(selector string) fieldStrategy {
	return func(p *productPage) string {
		s := p.doc.Find(selector).First()
		if s.Length() == 0 {
			return ""
		}
		s = s.Clone()
		s.Find("i, .material-icons, svg").Remove()
		return cleanText(s.Text())
	}
}
