package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/catalog-scraper/internal/cache"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/scraper"
)

const maxErrorDetails = 500

// Catalog is the read side served over HTTP.
type Catalog interface {
	Category(ctx context.Context, rawURL string, page int) (*models.ScrapeResult, cache.Status, error)
	Product(ctx context.Context, rawURL string) (*models.ProductDetail, cache.Status, error)
}

// ImageSource opens upstream images for streaming.
type ImageSource interface {
	Open(ctx context.Context, url string) (*http.Response, error)
}

type Handlers struct {
	catalog            Catalog
	images             ImageSource
	defaultCategoryURL string
	logger             *slog.Logger
}

func NewHandlers(catalog Catalog, images ImageSource, defaultCategoryURL string, logger *slog.Logger) *Handlers {
	return &Handlers{
		catalog:            catalog,
		images:             images,
		defaultCategoryURL: defaultCategoryURL,
		logger:             logger.With("component", "api"),
	}
}

// Routes mounts the public endpoints on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.GetProducts)
		r.Get("/product", h.GetProduct)
		r.Get("/img", h.GetImage)
	})
}

// CategoryResponse is one listing page plus the cache tag.
type CategoryResponse struct {
	Source   string              `json:"source"`
	Count    int                 `json:"count"`
	Products []models.Product    `json:"products"`
	HasNext  bool                `json:"hasNext"`
	Cache    cache.Status        `json:"_cache"`
	Debug    *models.ScrapeDebug `json:"_debug,omitempty"`
}

// ProductResponse is a product detail plus the cache tag.
type ProductResponse struct {
	*models.ProductDetail
	Cache cache.Status `json:"_cache"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		rawURL = h.defaultCategoryURL
	}
	page := parsePage(r.URL.Query().Get("page"))

	result, status, err := h.catalog.Category(r.Context(), rawURL, page)
	if err != nil {
		h.fail(w, err, "url", rawURL, "page", page)
		return
	}

	h.respondJSON(w, http.StatusOK, CategoryResponse{
		Source:   result.Source,
		Count:    result.Count,
		Products: result.Products,
		HasNext:  result.HasNext,
		Cache:    status,
		Debug:    result.Debug,
	})
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))

	detail, status, err := h.catalog.Product(r.Context(), rawURL)
	if err != nil {
		h.fail(w, err, "url", rawURL)
		return
	}

	h.respondJSON(w, http.StatusOK, ProductResponse{ProductDetail: detail, Cache: status})
}

// GetImage streams an upstream image back with a long-lived cache header.
func (h *Handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	src := strings.TrimSpace(r.URL.Query().Get("url"))
	if !strings.HasPrefix(strings.ToLower(src), "http") {
		h.respondError(w, http.StatusBadRequest, "url must start with http", "")
		return
	}

	resp, err := h.images.Open(r.Context(), src)
	if err != nil {
		h.logger.Warn("image fetch failed", "url", src, "error", err)
		h.respondError(w, http.StatusBadGateway, "image fetch failed", scraper.Truncate(err.Error(), maxErrorDetails))
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Debug("image stream interrupted", "url", src, "error", err)
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parsePage(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// statusFor maps the error taxonomy to an HTTP status and a short label.
func statusFor(err error) (int, string) {
	var (
		invalid    *scraper.InvalidInputError
		config     *scraper.ConfigurationError
		upstream   *scraper.UpstreamFetchError
		extraction *scraper.ExtractionError
		timeout    *scraper.TimeoutError
	)

	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "invalid request"
	case errors.As(err, &config):
		return http.StatusInternalServerError, "service not configured"
	case errors.As(err, &timeout):
		return http.StatusBadGateway, "upstream timed out"
	case errors.As(err, &upstream):
		return http.StatusBadGateway, "upstream fetch failed"
	case errors.As(err, &extraction):
		return http.StatusBadGateway, "extraction failed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "request abandoned"
	default:
		return http.StatusBadGateway, "extraction failed"
	}
}

func (h *Handlers) fail(w http.ResponseWriter, err error, attrs ...any) {
	status, label := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(label, append(attrs, "status", status, "error", err)...)
	} else {
		h.logger.Info(label, append(attrs, "error", err)...)
	}

	details := err.Error()
	var upstream *scraper.UpstreamFetchError
	if errors.As(err, &upstream) && upstream.Body != "" {
		details += ": " + upstream.Body
	}
	h.respondError(w, status, label, scraper.Truncate(details, maxErrorDetails))
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message, details string) {
	h.respondJSON(w, status, ErrorResponse{Error: message, Details: details})
}
