package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/canon"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/ratelimit"
	"github.com/maltedev/catalog-scraper/internal/scraper"
)

// Renderer hands out isolated rendering sessions. *browser.Browser
// satisfies it.
type Renderer interface {
	Open() (browser.Session, error)
}

type CategoryOptions struct {
	NavigationTimeout time.Duration
	ConsentTimeout    time.Duration
	IdleTimeout       time.Duration
	SettleDelay       time.Duration
	ScrollRounds      int
	ScrollDelay       time.Duration
	PageSize          int
	MaxProducts       int
	ConsentSelectors  []string
}

// DefaultConsentSelectors are tried in order; the first visible match is
// clicked.
var DefaultConsentSelectors = []string{
	"#onetrust-accept-btn-handler",
	"#didomi-notice-agree-button",
	`button:has-text("Accept all")`,
	`button:has-text("Accept")`,
	`button:has-text("Aceptar todo")`,
	`button:has-text("Aceptar")`,
	`button:has-text("Tout accepter")`,
	`button:has-text("Accepter")`,
	`button:has-text("Alle akzeptieren")`,
	`button:has-text("Akzeptieren")`,
	`button:has-text("Accetta")`,
	`button:has-text("Aceitar")`,
	`a:has-text("Accept")`,
}

func DefaultCategoryOptions() CategoryOptions {
	return CategoryOptions{
		NavigationTimeout: 30 * time.Second,
		ConsentTimeout:    2 * time.Second,
		IdleTimeout:       5 * time.Second,
		SettleDelay:       800 * time.Millisecond,
		ScrollRounds:      4,
		ScrollDelay:       700 * time.Millisecond,
		PageSize:          24,
		MaxProducts:       40,
		ConsentSelectors:  DefaultConsentSelectors,
	}
}

// CategoryExtractor drives a rendering session over one listing page and
// mines product cards from the rendered DOM.
type CategoryExtractor struct {
	renderer Renderer
	limiter  ratelimit.RateLimiter
	opts     CategoryOptions
	logger   *slog.Logger
}

func NewCategoryExtractor(renderer Renderer, limiter ratelimit.RateLimiter, opts CategoryOptions, logger *slog.Logger) *CategoryExtractor {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 24
	}
	if opts.MaxProducts <= 0 {
		opts.MaxProducts = 40
	}
	return &CategoryExtractor{
		renderer: renderer,
		limiter:  limiter,
		opts:     opts,
		logger:   logger.With("component", "category_extractor"),
	}
}

// Extract returns one page of the listing at rawURL. When page 1 comes back
// empty the whole procedure is repeated once for page 2.
func (e *CategoryExtractor) Extract(ctx context.Context, rawURL string, page int) (*models.ScrapeResult, error) {
	if page < 1 {
		page = 1
	}

	result, err := e.extractPage(ctx, rawURL, page)
	if err != nil {
		return nil, err
	}
	if page != 1 || result.Count > 0 {
		return result, nil
	}

	e.logger.Info("page 1 returned no products, retrying page 2", "url", rawURL)
	fallback, err := e.extractPage(ctx, rawURL, 2)
	if err != nil {
		e.logger.Warn("page 2 fallback failed", "url", rawURL, "error", err)
		return result, nil
	}
	fallback.Debug.Fallback = true
	fallback.Debug.RequestedPage = 1
	fallback.Debug.ServedPage = 2
	return fallback, nil
}

func (e *CategoryExtractor) extractPage(ctx context.Context, rawURL string, page int) (result *models.ScrapeResult, err error) {
	if e.renderer == nil {
		return nil, &scraper.ConfigurationError{Component: "renderer", Err: scraper.ErrRendererUnavailable}
	}

	target := canon.Canonicalize(rawURL, page)
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	session, err := e.renderer.Open()
	if err != nil {
		return nil, &scraper.ExtractionError{Op: "open", FinalURL: target, Err: err}
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			e.logger.Warn("failed to close rendering session", "url", target, "error", cerr)
		}
	}()

	start := time.Now()
	status, err := session.Navigate(target, e.opts.NavigationTimeout)
	if err != nil {
		if errors.Is(err, browser.ErrNavigationTimeout) {
			return nil, &scraper.TimeoutError{Phase: "navigate", Limit: e.opts.NavigationTimeout, Err: err}
		}
		return nil, &scraper.UpstreamFetchError{URL: target, Err: err}
	}
	if status >= 400 {
		return nil, &scraper.UpstreamFetchError{URL: target, Status: status}
	}

	var mined *listing
	defer func() {
		if r := recover(); r != nil {
			extErr := &scraper.ExtractionError{Op: "mine", FinalURL: session.URL(), Err: fmt.Errorf("panic: %v", r)}
			if mined != nil {
				extErr.AnchorsInspected = mined.anchors
				extErr.CandidateBlocks = mined.blocks
			}
			result, err = nil, extErr
		}
	}()

	consent, selector := session.ClickFirst(e.opts.ConsentSelectors, e.opts.ConsentTimeout)
	e.logger.Debug("consent step", "outcome", consent, "selector", selector)

	session.Pause(e.opts.SettleDelay)
	session.WaitIdle(e.opts.IdleTimeout)

	for i := 0; i < e.opts.ScrollRounds; i++ {
		if err := session.ScrollToBottom(); err != nil {
			return nil, sessionError("scroll", session.URL(), err)
		}
		session.Pause(e.opts.ScrollDelay)
		session.WaitIdle(e.opts.IdleTimeout)
	}

	finalURL := session.URL()
	if finalURL == "" {
		finalURL = target
	}

	html, err := session.Content()
	if err != nil {
		return nil, sessionError("content", finalURL, err)
	}

	mined, err = mineListing(html, finalURL, e.opts.MaxProducts)
	if err != nil {
		return nil, &scraper.ExtractionError{Op: "mine", FinalURL: finalURL, Err: err}
	}

	hasNext := len(mined.products) >= e.opts.PageSize
	if mined.nextKnown {
		hasNext = mined.hasNext
	}

	products := mined.products
	if products == nil {
		products = []models.Product{}
	}

	e.logger.Info("category page extracted",
		"url", target,
		"final_url", finalURL,
		"products", len(products),
		"anchors", mined.anchors,
		"blocks", mined.blocks,
		"duration", time.Since(start))

	return &models.ScrapeResult{
		Source:   target,
		Count:    len(products),
		Products: products,
		HasNext:  hasNext,
		Debug: &models.ScrapeDebug{
			FinalURL:         finalURL,
			AnchorsInspected: mined.anchors,
			CandidateBlocks:  mined.blocks,
			ConsentOutcome:   string(consent),
			ExplicitNext:     mined.nextKnown,
			RequestedPage:    page,
			ServedPage:       page,
		},
	}, nil
}

func sessionError(op, finalURL string, err error) error {
	var stepErr *browser.StepTimeoutError
	if errors.As(err, &stepErr) {
		return &scraper.TimeoutError{Phase: op, Limit: stepErr.Limit, Err: err}
	}
	return &scraper.ExtractionError{Op: op, FinalURL: finalURL, Err: err}
}
