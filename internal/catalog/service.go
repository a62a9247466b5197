// Package catalog serves category listings and product details through the
// shared cache, running at most one extraction per canonical request.
package catalog

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/maltedev/catalog-scraper/internal/cache"
	"github.com/maltedev/catalog-scraper/internal/canon"
	"github.com/maltedev/catalog-scraper/internal/database"
	"github.com/maltedev/catalog-scraper/internal/extract"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/scraper"
)

// CategorySource renders and mines one listing page.
type CategorySource interface {
	Extract(ctx context.Context, rawURL string, page int) (*models.ScrapeResult, error)
}

// PageFetcher returns the static HTML of a page.
type PageFetcher interface {
	HTML(ctx context.Context, url string) (string, error)
}

// RunRecorder persists executed extractions.
type RunRecorder interface {
	Record(ctx context.Context, run *database.ExtractionRun) error
}

type Options struct {
	// SourceHost is the storefront host; requests for any other host are
	// rejected. Subdomains are accepted.
	SourceHost  string
	CategoryTTL time.Duration
	ProductTTL  time.Duration
}

type Service struct {
	categories CategorySource
	fetcher    PageFetcher
	listings   *cache.Coalescer[*models.ScrapeResult]
	details    *cache.Coalescer[*models.ProductDetail]
	recorder   RunRecorder
	opts       Options
	logger     *slog.Logger
}

func NewService(
	categories CategorySource,
	fetcher PageFetcher,
	listings *cache.Coalescer[*models.ScrapeResult],
	details *cache.Coalescer[*models.ProductDetail],
	opts Options,
	logger *slog.Logger,
) *Service {
	if opts.CategoryTTL <= 0 {
		opts.CategoryTTL = 5 * time.Minute
	}
	if opts.ProductTTL <= 0 {
		opts.ProductTTL = 10 * time.Minute
	}
	opts.SourceHost = strings.ToLower(opts.SourceHost)

	return &Service{
		categories: categories,
		fetcher:    fetcher,
		listings:   listings,
		details:    details,
		opts:       opts,
		logger:     logger.With("component", "catalog"),
	}
}

// WithRecorder enables the extraction run log.
func (s *Service) WithRecorder(r RunRecorder) *Service {
	s.recorder = r
	return s
}

// ValidateURL accepts only absolute http(s) URLs on the source host.
func (s *Service) ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &scraper.InvalidInputError{Field: "url", Reason: "missing"}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &scraper.InvalidInputError{Field: "url", Reason: "not an absolute http(s) URL"}
	}
	host := strings.ToLower(u.Hostname())
	if host != s.opts.SourceHost && !strings.HasSuffix(host, "."+s.opts.SourceHost) {
		return &scraper.InvalidInputError{Field: "url", Reason: "host " + host + " is not " + s.opts.SourceHost}
	}
	return nil
}

// Category returns one page of a listing. The result is shared with other
// callers and must not be modified.
func (s *Service) Category(ctx context.Context, rawURL string, page int) (*models.ScrapeResult, cache.Status, error) {
	if err := s.ValidateURL(rawURL); err != nil {
		return nil, "", err
	}
	if page < 1 {
		page = 1
	}

	req := models.CatalogRequest{RawURL: rawURL, Page: page, Kind: models.KindCategory}
	key := canon.Key(req)

	return s.listings.GetOrCompute(ctx, key, s.opts.CategoryTTL, func(ctx context.Context) (*models.ScrapeResult, error) {
		start := time.Now()
		result, err := s.categories.Extract(ctx, rawURL, page)

		run := &database.ExtractionRun{Kind: string(req.Kind), CacheKey: key, URL: canon.Canonicalize(rawURL, page)}
		if result != nil {
			run.ProductCount = result.Count
			run.Fallback = result.Debug != nil && result.Debug.Fallback
		}
		s.record(ctx, run, start, err)
		return result, err
	})
}

// Product returns the static extraction of a product page.
func (s *Service) Product(ctx context.Context, rawURL string) (*models.ProductDetail, cache.Status, error) {
	if err := s.ValidateURL(rawURL); err != nil {
		return nil, "", err
	}

	req := models.CatalogRequest{RawURL: rawURL, Kind: models.KindProduct}
	key := canon.Key(req)
	target := canon.StripTracking(rawURL)

	return s.details.GetOrCompute(ctx, key, s.opts.ProductTTL, func(ctx context.Context) (*models.ProductDetail, error) {
		start := time.Now()
		detail, err := s.product(ctx, target)
		s.record(ctx, &database.ExtractionRun{Kind: string(req.Kind), CacheKey: key, URL: target}, start, err)
		return detail, err
	})
}

func (s *Service) product(ctx context.Context, target string) (*models.ProductDetail, error) {
	html, err := s.fetcher.HTML(ctx, target)
	if err != nil {
		return nil, err
	}
	detail, err := extract.ParseProductDetail(html, target)
	if err != nil {
		return nil, &scraper.ExtractionError{Op: "parse", FinalURL: target, Err: err}
	}
	return detail, nil
}

func (s *Service) record(ctx context.Context, run *database.ExtractionRun, start time.Time, err error) {
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Error("extraction failed", "kind", run.Kind, "url", run.URL, "duration", elapsed, "error", err)
	}
	if s.recorder == nil {
		return
	}

	run.StartedAt = start
	run.DurationMS = elapsed.Milliseconds()
	run.Status = database.RunStatusOK
	if err != nil {
		msg := scraper.Truncate(err.Error(), 500)
		run.Status = database.RunStatusError
		run.ErrorMessage = &msg
	}
	if rerr := s.recorder.Record(ctx, run); rerr != nil {
		s.logger.Warn("failed to record extraction run", "kind", run.Kind, "url", run.URL, "error", rerr)
	}
}
