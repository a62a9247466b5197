package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/catalog-scraper/internal/price"
)

// structuredProduct holds the fields read from an embedded schema.org
// Product block.
type structuredProduct struct {
	Name        string
	Description string
	Image       string
	Price       string
}

// parseStructuredData returns the first Product found in any ld+json block,
// searching top-level arrays and @graph. Blocks that fail to parse are
// skipped.
func parseStructuredData(doc *goquery.Document) structuredProduct {
	var found structuredProduct
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(s.Text())))
		dec.UseNumber()

		var data interface{}
		if err := dec.Decode(&data); err != nil {
			return true
		}

		nodes, ok := data.([]interface{})
		if !ok {
			nodes = []interface{}{data}
		}

		for _, node := range nodes {
			candidates := []interface{}{node}
			if m, ok := node.(map[string]interface{}); ok {
				if graph, ok := m["@graph"].([]interface{}); ok {
					candidates = graph
				}
			}
			for _, c := range candidates {
				m, ok := c.(map[string]interface{})
				if !ok || !isProductType(m["@type"]) {
					continue
				}
				found = readProduct(m)
				return false
			}
		}
		return true
	})
	return found
}

func isProductType(t interface{}) bool {
	switch v := t.(type) {
	case string:
		return v == "Product"
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

func readProduct(m map[string]interface{}) structuredProduct {
	p := structuredProduct{
		Name:        cleanText(asString(m["name"])),
		Description: strings.TrimSpace(asString(m["description"])),
		Image:       imageValue(m["image"]),
	}

	offers := m["offers"]
	if list, ok := offers.([]interface{}); ok && len(list) > 0 {
		offers = list[0]
	}
	if offer, ok := offers.(map[string]interface{}); ok {
		amount := machinePrice(offer["price"])
		currency := asString(offer["priceCurrency"])
		if amount != "" && currency != "" {
			p.Price = price.Normalize(currency + " " + amount)
		}
	}
	return p
}

func imageValue(v interface{}) string {
	switch img := v.(type) {
	case string:
		return img
	case []interface{}:
		if len(img) > 0 {
			return imageValue(img[0])
		}
	case map[string]interface{}:
		return asString(img["url"])
	}
	return ""
}

// machinePrice renders schema.org prices ("12.5", 12.5) with two decimals so
// the separator rules read them as decimals.
func machinePrice(v interface{}) string {
	raw := strings.TrimSpace(asString(v))
	if raw == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return strconv.FormatFloat(f, 'f', 2, 64)
	}
	return raw
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}
