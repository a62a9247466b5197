// Package fetch retrieves pages from the source site without a rendering
// engine.
package fetch

import (
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"github.com/maltedev/catalog-scraper/internal/ratelimit"
	"github.com/maltedev/catalog-scraper/internal/scraper"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"
	maxErrorBody     = 500
)

type Options struct {
	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string
	MaxBodyBytes   int64
}

type Fetcher struct {
	client  *http.Client
	opts    Options
	limiter ratelimit.RateLimiter
	logger  *slog.Logger
}

func New(opts Options, limiter ratelimit.RateLimiter, logger *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.AcceptLanguage == "" {
		opts.AcceptLanguage = "en-US,en;q=0.9"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 << 20
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}

	return &Fetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: limiter,
		logger:  logger.With("component", "fetcher"),
	}
}

// HTML fetches url and returns its body decoded to UTF-8.
func (f *Fetcher) HTML(ctx context.Context, url string) (string, error) {
	req, err := f.newRequest(ctx, url)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return "", &scraper.UpstreamFetchError{URL: url, Status: resp.StatusCode, Err: err}
	}
	defer body.Close()

	utf8, err := charset.NewReader(io.LimitReader(body, f.opts.MaxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", &scraper.UpstreamFetchError{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("unsupported charset: %w", err)}
	}

	data, err := io.ReadAll(utf8)
	if err != nil {
		return "", f.classify(url, err)
	}

	f.logger.Debug("fetched page", "url", url, "bytes", len(data))
	return string(data), nil
}

// Open issues a GET and returns the response for streaming. The caller closes
// the body. Non-2xx answers are returned as *scraper.UpstreamFetchError.
func (f *Fetcher) Open(ctx context.Context, url string) (*http.Response, error) {
	req, err := f.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}
	return f.do(req)
}

func (f *Fetcher) newRequest(ctx context.Context, url string) (*http.Request, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, f.classify(url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &scraper.UpstreamFetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept-Language", f.opts.AcceptLanguage)
	return req, nil
}

func (f *Fetcher) do(req *http.Request) (*http.Response, error) {
	url := req.URL.String()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.classify(url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		var snippet string
		if body, err := decodeBody(resp); err == nil {
			data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
			body.Close()
			snippet = string(data)
		}
		f.logger.Warn("upstream returned error status", "url", url, "status", resp.StatusCode)
		return nil, &scraper.UpstreamFetchError{URL: url, Status: resp.StatusCode, Body: snippet}
	}

	return resp, nil
}

func (f *Fetcher) classify(url string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &scraper.TimeoutError{Phase: "fetch", Limit: f.opts.Timeout, Err: err}
	}
	return &scraper.UpstreamFetchError{URL: url, Err: err}
}

func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "deflate":
		return zlib.NewReader(resp.Body)
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	default:
		return io.NopCloser(resp.Body), nil
	}
}
