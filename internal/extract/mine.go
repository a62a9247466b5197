package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/catalog-scraper/internal/canon"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/price"
)

const (
	minTitleLen        = 3
	containerSelector  = "article, li, .product-miniature, .product-container, .product-item, .product, .js-product, .card, .item"
	oldPriceSelector   = ".regular-price, .old-price, .price-regular"
	stockSelector      = ".product-availability, .availability, .stock, [class*=availability]"
	explicitNextAnchor = `a[rel~="next"], link[rel~="next"]`
)

var (
	detailLink = regexp.MustCompile(`/\d+-[^/?#]+\.html`)

	excludedFragments = []string{
		"/login", "/my-account", "/authentication", "/password",
		"/contact", "/privacy", "/terms", "/legal", "/cookies",
		"/content/", "/cms", "/sitemap", "/stores", "/cart", "/order",
	}

	uiLabel = regexp.MustCompile(`(?i)^(?:quick ?view|vista r[aá]pida|aper[cç]u rapide|schnellansicht|add to cart|a[ñn]adir al carrito|ajouter au panier|in den warenkorb|more details|read more|view|details|english|espa[ñn]ol|fran[cç]ais|deutsch|italiano|portugu[eê]s)$`)

	imageAttrs = []string{"data-src", "data-lazy-src", "data-original", "data-srcset", "srcset", "src"}
)

// card is one candidate product block: the detail anchor and the nearest
// container around it.
type card struct {
	anchor *goquery.Selection
	box    *goquery.Selection
}

type cardStrategy func(c *card) string

var (
	cardTitleStrategies = []cardStrategy{
		func(c *card) string { return cleanText(c.anchor.Find("h1, h2, h3, h4, h5, h6").First().Text()) },
		boxText("h2 a, h3 a, .product-title a, .product-name a"),
		boxText(".product-title, .product-name, [class*=title], [class*=name]"),
		func(c *card) string { return cleanText(c.anchor.AttrOr("title", "")) },
		func(c *card) string { return cleanText(c.anchor.Text()) },
	}

	cardPriceStrategies = []cardStrategy{
		boxPrice(".price"),
		boxPrice(".current-price"),
		boxPrice(".product-price"),
		boxPrice("[class*=price]"),
		func(c *card) string { return price.Find(cleanText(spacedText(c.box))) },
	}
)

// listing is what the miner recovered from one rendered category page.
type listing struct {
	products []models.Product
	anchors  int
	blocks   int

	// nextKnown is set when the page carries its own pagination signal.
	nextKnown bool
	hasNext   bool
}

func isExcluded(link string) bool {
	lower := strings.ToLower(link)
	for _, fragment := range excludedFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func acceptTitle(title string) bool {
	if len([]rune(title)) < minTitleLen {
		return false
	}
	return !uiLabel.MatchString(title)
}

// mineListing enumerates detail-page anchors in the rendered document and
// turns their containers into products. Links and images are resolved
// against the origin of pageURL, deduplicated by product URL and capped at
// limit.
func mineListing(html, pageURL string, limit int) (*listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rendered HTML: %w", err)
	}

	base := origin(pageURL)
	out := &listing{}
	seen := make(map[string]struct{})

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		out.anchors++

		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !detailLink.MatchString(href) || isExcluded(href) {
			return true
		}

		box := a.Closest(containerSelector)
		if box.Length() == 0 {
			box = a.Parent()
		}
		out.blocks++

		c := &card{anchor: a, box: box}
		product, ok := c.product()
		if !ok {
			return true
		}

		product.SourceURL = canon.StripTracking(resolveURL(base, href))
		if isExcluded(product.SourceURL) {
			return true
		}
		if _, dup := seen[product.SourceURL]; dup {
			return true
		}
		seen[product.SourceURL] = struct{}{}

		if img := models.Deref(product.ImageURL); img != "" {
			product.ImageURL = models.StringPtr(resolveURL(base, img))
		}

		out.products = append(out.products, product)
		return len(out.products) < limit
	})

	out.nextKnown, out.hasNext = explicitNext(doc)
	return out, nil
}

// product applies the field cascades. Cards without a usable title, or with
// neither a price nor an image, are rejected.
func (c *card) product() (models.Product, bool) {
	var title string
	for _, strategy := range cardTitleStrategies {
		if t := strategy(c); acceptTitle(t) {
			title = t
			break
		}
	}
	if title == "" {
		return models.Product{}, false
	}

	current := ""
	for _, strategy := range cardPriceStrategies {
		if current = strategy(c); current != "" {
			break
		}
	}
	image := c.image()
	if current == "" && image == "" {
		return models.Product{}, false
	}

	old := price.GuardOldPrice(current, price.Find(cleanText(c.box.Find(oldPriceSelector).First().Text())))

	return models.Product{
		Title:    title,
		Price:    models.StringPtr(current),
		OldPrice: models.StringPtr(old),
		Stock:    models.StringPtr(cleanText(c.box.Find(stockSelector).First().Text())),
		ImageURL: models.StringPtr(image),
	}, true
}

func (c *card) image() string {
	img := c.box.Find("img").First()
	if img.Length() == 0 {
		return ""
	}
	for _, attr := range imageAttrs {
		v := strings.TrimSpace(img.AttrOr(attr, ""))
		if v == "" || strings.HasPrefix(v, "data:") {
			continue
		}
		first := strings.Fields(strings.Split(v, ",")[0])
		if len(first) == 0 {
			continue
		}
		return first[0]
	}
	return ""
}

func boxText(selector string) cardStrategy {
	return func(c *card) string {
		return cleanText(c.box.Find(selector).First().Text())
	}
}

func boxPrice(selector string) cardStrategy {
	return func(c *card) string {
		var found string
		c.box.Find(selector).Not(oldPriceSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found = price.Find(cleanText(s.Text()))
			return found == ""
		})
		return found
	}
}

// explicitNext reads the storefront's own pagination control. A rel=next
// link marked disabled means the last page.
func explicitNext(doc *goquery.Document) (known, hasNext bool) {
	next := doc.Find(explicitNextAnchor).First()
	if next.Length() > 0 {
		disabled := next.HasClass("disabled") ||
			next.AttrOr("aria-disabled", "") == "true" ||
			next.Parent().HasClass("disabled")
		return true, !disabled
	}
	if doc.Find(".pagination .next.disabled, .pagination .disabled > .next").Length() > 0 {
		return true, false
	}
	return false, false
}
