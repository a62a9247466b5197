package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Outcome is the result of a best-effort step. None of them abort an
// extraction.
type Outcome string

const (
	Succeeded     Outcome = "succeeded"
	NotApplicable Outcome = "not_applicable"
	TimedOut      Outcome = "timed_out"
)

// ErrNavigationTimeout is returned by Navigate when the hard navigation
// limit is exceeded.
var ErrNavigationTimeout = errors.New("navigation timeout")

// StepTimeoutError is returned by page operations that have no timeout of
// their own when they outlive the session's step limit.
type StepTimeoutError struct {
	Limit time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("page step did not finish within %s", e.Limit)
}

// Session is one isolated rendering session. It is never shared between
// extractions and must be closed by the extraction that opened it.
type Session interface {
	// Navigate loads url and returns the HTTP status of the main document
	// (0 when unknown).
	Navigate(url string, timeout time.Duration) (int, error)
	// ClickFirst clicks the first selector that matches an element.
	ClickFirst(selectors []string, timeout time.Duration) (Outcome, string)
	WaitIdle(timeout time.Duration) Outcome
	Pause(d time.Duration)
	ScrollToBottom() error
	Content() (string, error)
	URL() string
	Close() error
}

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1366,
		ViewportHeight: 900,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "Europe/Madrid",
		Locale:         "en-US",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

// Open creates a fresh browser context and page. Cookies and storage are
// not shared with any other session.
func (b *Browser) Open() (Session, error) {
	headers := map[string]string{"Accept-Language": b.opts.AcceptLanguage}
	for k, v := range b.opts.ExtraHeaders {
		headers[k] = v
	}

	bctx, err := b.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &b.opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &b.opts.Locale,
		TimezoneId:        &b.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return &session{ctx: bctx, page: page, stepLimit: b.opts.Timeout, logger: b.logger}, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

type session struct {
	ctx       playwright.BrowserContext
	page      playwright.Page
	stepLimit time.Duration
	logger    *slog.Logger
}

// bounded runs fn and stops waiting for it after limit. An abandoned call
// returns once the session is closed.
func bounded[T any](limit time.Duration, fn func() (T, error)) (T, error) {
	if limit <= 0 {
		return fn()
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.value, r.err
	case <-timer.C:
		var zero T
		return zero, &StepTimeoutError{Limit: limit}
	}
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func (s *session) Navigate(url string, timeout time.Duration) (int, error) {
	resp, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   ms(timeout),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return 0, fmt.Errorf("%w: %v", ErrNavigationTimeout, err)
		}
		return 0, err
	}
	if resp == nil {
		return 0, nil
	}
	return resp.Status(), nil
}

func (s *session) ClickFirst(selectors []string, timeout time.Duration) (Outcome, string) {
	for _, selector := range selectors {
		button := s.page.Locator(selector).First()

		count, err := button.Count()
		if err != nil || count == 0 {
			continue
		}

		if err := button.Click(playwright.LocatorClickOptions{Timeout: ms(timeout)}); err != nil {
			if errors.Is(err, playwright.ErrTimeout) {
				return TimedOut, selector
			}
			s.logger.Debug("click failed", "selector", selector, "error", err)
			continue
		}
		return Succeeded, selector
	}
	return NotApplicable, ""
}

func (s *session) WaitIdle(timeout time.Duration) Outcome {
	err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: ms(timeout),
	})
	switch {
	case err == nil:
		return Succeeded
	case errors.Is(err, playwright.ErrTimeout):
		return TimedOut
	default:
		s.logger.Debug("idle wait failed", "error", err)
		return NotApplicable
	}
}

func (s *session) Pause(d time.Duration) {
	s.page.WaitForTimeout(float64(d.Milliseconds()))
}

func (s *session) ScrollToBottom() error {
	_, err := bounded(s.stepLimit, func() (interface{}, error) {
		return s.page.Evaluate(`() => window.scrollTo(0, document.body.scrollHeight)`)
	})
	return err
}

func (s *session) Content() (string, error) {
	return bounded(s.stepLimit, s.page.Content)
}

func (s *session) URL() string {
	return s.page.URL()
}

func (s *session) Close() error {
	var errs []error
	if err := s.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close page: %w", err))
	}
	if err := s.ctx.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close context: %w", err))
	}
	return errors.Join(errs...)
}
