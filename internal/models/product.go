package models

// Kind selects which extractor serves a request.
type Kind string

const (
	KindCategory Kind = "category"
	KindProduct  Kind = "product"
)

// CatalogRequest is built at the HTTP boundary and never mutated afterwards.
type CatalogRequest struct {
	RawURL string
	Page   int
	Kind   Kind
}

// Product is one card mined from a category listing. SourceURL is the
// identity used for deduplication within a ScrapeResult.
type Product struct {
	Title     string  `json:"title"`
	Price     *string `json:"price"`
	OldPrice  *string `json:"oldPrice"`
	Stock     *string `json:"stock"`
	ImageURL  *string `json:"imageUrl"`
	SourceURL string  `json:"sourceUrl"`
}

// ProductDetail is the static extraction of a single product page.
type ProductDetail struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Price       *string `json:"price"`
	OldPrice    *string `json:"oldPrice"`
	Stock       *string `json:"stock"`
	ImageURL    *string `json:"imageUrl"`
	SourceURL   string  `json:"sourceUrl"`
}

// ScrapeResult is one page of a category listing.
type ScrapeResult struct {
	Source   string       `json:"source"`
	Count    int          `json:"count"`
	Products []Product    `json:"products"`
	HasNext  bool         `json:"hasNext"`
	Debug    *ScrapeDebug `json:"debug,omitempty"`
}

// ScrapeDebug carries diagnostic counters for a listing extraction.
type ScrapeDebug struct {
	FinalURL         string `json:"finalUrl"`
	AnchorsInspected int    `json:"anchorsInspected"`
	CandidateBlocks  int    `json:"candidateBlocks"`
	ConsentOutcome   string `json:"consentOutcome,omitempty"`
	ExplicitNext     bool   `json:"explicitNext"`
	Fallback         bool   `json:"fallback,omitempty"`
	RequestedPage    int    `json:"requestedPage"`
	ServedPage       int    `json:"servedPage"`
}

// StringPtr returns nil for empty strings so absent fields serialize as null.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
