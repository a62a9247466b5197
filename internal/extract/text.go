package extract

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	scriptBlock  = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleBlock   = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	lineBreak    = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockClose   = regexp.MustCompile(`(?i)</(?:p|li|div|h[1-6])>`)
	listItemOpen = regexp.MustCompile(`(?i)<li\b[^>]*>`)
	anyTag       = regexp.MustCompile(`<[^>]+>`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
	hspace       = regexp.MustCompile(`[ \t\f\r\x{00a0}]+`)
	anySpace     = regexp.MustCompile(`\s+`)
)

// cleanText decodes entities left after parsing (double-encoded input such
// as "&amp;amp;") and collapses whitespace.
func cleanText(s string) string {
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(anySpace.ReplaceAllString(s, " "))
}

// spacedText joins the text nodes under s with a space, so adjacent elements
// such as a title and a price do not run together. Script and style bodies
// are skipped.
func spacedText(s *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, n *goquery.Selection) {
			switch goquery.NodeName(n) {
			case "#text":
				parts = append(parts, n.Text())
			case "script", "style", "noscript":
			default:
				walk(n)
			}
		})
	}
	walk(s)
	return strings.Join(parts, " ")
}

// stripMarkup turns an HTML fragment into plain text, keeping paragraph and
// list structure as line breaks and bullets.
func stripMarkup(fragment string) string {
	s := scriptBlock.ReplaceAllString(fragment, "")
	s = styleBlock.ReplaceAllString(s, "")
	s = lineBreak.ReplaceAllString(s, "\n")
	s = blockClose.ReplaceAllString(s, "\n")
	s = listItemOpen.ReplaceAllString(s, "• ")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(html.UnescapeString(s))

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(hspace.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// resolveURL makes ref absolute against base. Unresolvable input is
// returned unchanged.
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// origin returns scheme://host of raw as a URL usable as a resolution base.
func origin(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
}
