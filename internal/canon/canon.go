// Package canon turns request URLs into stable cache identities.
package canon

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/maltedev/catalog-scraper/internal/models"
)

// PageParam is the pagination query parameter used by the storefront.
const PageParam = "page"

var trackingParams = map[string]struct{}{
	"_gl":     {},
	"srsltid": {},
	"gclid":   {},
	"fbclid":  {},
	"msclkid": {},
	"yclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"igshid":  {},
}

func isTracking(name string) bool {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, "utm_") {
		return true
	}
	_, ok := trackingParams[name]
	return ok
}

func parseAbsolute(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, false
	}
	return u, true
}

// clean drops the fragment and tracking parameters from u and, when page is
// positive, sets the page parameter.
func clean(u *url.URL, page int) {
	u.Fragment = ""
	u.RawFragment = ""

	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		u.RawQuery = filterRaw(u.RawQuery, page)
		return
	}
	for name := range q {
		if isTracking(name) {
			q.Del(name)
		}
	}
	if page > 0 {
		q.Set(PageParam, strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
}

// filterRaw handles queries url.ParseQuery rejects, such as pairs holding a
// ';'. Kept pairs stay verbatim and sorted, with the page parameter last.
func filterRaw(raw string, page int) string {
	var kept []string
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		name, _, _ := strings.Cut(pair, "=")
		if unescaped, err := url.QueryUnescape(name); err == nil {
			name = unescaped
		}
		if isTracking(name) || (page > 0 && name == PageParam) {
			continue
		}
		kept = append(kept, pair)
	}
	sort.Strings(kept)
	if page > 0 {
		kept = append(kept, PageParam+"="+strconv.Itoa(page))
	}
	return strings.Join(kept, "&")
}

// StripTracking removes tracking parameters and the fragment. Input that is
// not an absolute URL is returned unchanged.
func StripTracking(raw string) string {
	u, ok := parseAbsolute(raw)
	if !ok {
		return raw
	}
	clean(u, 0)
	return u.String()
}

// Canonicalize strips tracking parameters and sets the page parameter.
// Canonicalize(Canonicalize(u, p), p) == Canonicalize(u, p).
func Canonicalize(raw string, page int) string {
	u, ok := parseAbsolute(raw)
	if !ok {
		return raw
	}
	if page < 1 {
		page = 1
	}
	clean(u, page)
	return u.String()
}

// Key derives the cache key for a request.
func Key(req models.CatalogRequest) string {
	if req.Kind == models.KindCategory {
		return string(req.Kind) + ":" + Canonicalize(req.RawURL, req.Page)
	}
	return string(req.Kind) + ":" + StripTracking(req.RawURL)
}
