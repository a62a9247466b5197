package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-scraper/internal/cache"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/scraper"
)

const defaultCategory = "https://nautichandler.com/en/100390-painting"

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) Category(ctx context.Context, rawURL string, page int) (*models.ScrapeResult, cache.Status, error) {
	args := m.Called(ctx, rawURL, page)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*models.ScrapeResult), args.Get(1).(cache.Status), args.Error(2)
}

func (m *MockCatalog) Product(ctx context.Context, rawURL string) (*models.ProductDetail, cache.Status, error) {
	args := m.Called(ctx, rawURL)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*models.ProductDetail), args.Get(1).(cache.Status), args.Error(2)
}

type MockImageSource struct {
	mock.Mock
}

func (m *MockImageSource) Open(ctx context.Context, url string) (*http.Response, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*http.Response), args.Error(1)
}

func newTestRouter(c Catalog, img ImageSource) http.Handler {
	h := NewHandlers(c, img, defaultCategory, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func serve(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetProducts(t *testing.T) {
	c := new(MockCatalog)
	price := "€12.50"
	result := &models.ScrapeResult{
		Source:   defaultCategory + "?page=1",
		Count:    1,
		Products: []models.Product{{Title: "Paint", Price: &price, SourceURL: "https://nautichandler.com/en/painting/1-paint.html"}},
		HasNext:  false,
		Debug:    &models.ScrapeDebug{Fallback: true, RequestedPage: 1, ServedPage: 2},
	}
	c.On("Category", mock.Anything, defaultCategory, 1).Return(result, cache.StatusMiss, nil).Once()

	rec := serve(t, newTestRouter(c, nil), "/api/products?page=abc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, "MISS", body["_cache"])
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, false, body["hasNext"])

	products := body["products"].([]interface{})
	require.Len(t, products, 1)
	first := products[0].(map[string]interface{})
	assert.Equal(t, "€12.50", first["price"])
	assert.Nil(t, first["oldPrice"])
	assert.Contains(t, first, "imageUrl")

	debug := body["_debug"].(map[string]interface{})
	assert.Equal(t, true, debug["fallback"])
	assert.Equal(t, float64(2), debug["servedPage"])
	c.AssertExpectations(t)
}

func TestGetProducts_PassesURLAndPage(t *testing.T) {
	c := new(MockCatalog)
	target := "https://nautichandler.com/en/100393-antifouling"
	c.On("Category", mock.Anything, target, 3).Return(&models.ScrapeResult{Products: []models.Product{}}, cache.StatusHit, nil).Once()

	rec := serve(t, newTestRouter(c, nil), "/api/products?url="+target+"&page=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", decode(t, rec)["_cache"])
	_, hasDebug := decode(t, rec)["_debug"]
	assert.False(t, hasDebug)
}

func TestGetProduct(t *testing.T) {
	c := new(MockCatalog)
	desc := "Hard antifouling"
	detail := &models.ProductDetail{Title: "Antifouling", Description: &desc, SourceURL: "https://nautichandler.com/en/p/1-a.html"}
	c.On("Product", mock.Anything, "https://nautichandler.com/en/p/1-a.html").Return(detail, cache.StatusInflight, nil).Once()

	rec := serve(t, newTestRouter(c, nil), "/api/product?url=https://nautichandler.com/en/p/1-a.html")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "Antifouling", body["title"])
	assert.Equal(t, "Hard antifouling", body["description"])
	assert.Equal(t, "HIT_INFLIGHT", body["_cache"])
	assert.Nil(t, body["price"])
}

func TestErrorMapping(t *testing.T) {
	longBody := strings.Repeat("x", 2000)

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid input", &scraper.InvalidInputError{Field: "url", Reason: "host example.org is not nautichandler.com"}, http.StatusBadRequest},
		{"configuration", &scraper.ConfigurationError{Component: "renderer", Err: scraper.ErrRendererUnavailable}, http.StatusInternalServerError},
		{"upstream", &scraper.UpstreamFetchError{URL: "u", Status: 503, Body: longBody}, http.StatusBadGateway},
		{"extraction", &scraper.ExtractionError{Op: "mine", FinalURL: "u", Err: errors.New("boom")}, http.StatusBadGateway},
		{"timeout", &scraper.TimeoutError{Phase: "navigate", Err: errors.New("slow")}, http.StatusBadGateway},
		{"wrapped timeout", fmt.Errorf("category: %w", &scraper.TimeoutError{Phase: "fetch"}), http.StatusBadGateway},
		{"caller gone", fmt.Errorf("waiting: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := new(MockCatalog)
			c.On("Product", mock.Anything, mock.Anything).Return(nil, cache.Status(""), tt.err).Once()

			rec := serve(t, newTestRouter(c, nil), "/api/product?url=https://nautichandler.com/x")
			assert.Equal(t, tt.wantStatus, rec.Code)

			body := decode(t, rec)
			assert.NotEmpty(t, body["error"])
			details, _ := body["details"].(string)
			assert.LessOrEqual(t, len([]rune(details)), maxErrorDetails)
		})
	}
}

func TestGetImage(t *testing.T) {
	t.Run("streams upstream bytes", func(t *testing.T) {
		img := new(MockImageSource)
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"image/webp"}},
			Body:       io.NopCloser(strings.NewReader("RIFFdata")),
		}
		img.On("Open", mock.Anything, "https://cdn.test/a.webp").Return(resp, nil).Once()

		rec := serve(t, newTestRouter(nil, img), "/api/img?url=https://cdn.test/a.webp")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
		assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "RIFFdata", rec.Body.String())
	})

	t.Run("defaults content type", func(t *testing.T) {
		img := new(MockImageSource)
		resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(strings.NewReader("jpg"))}
		img.On("Open", mock.Anything, mock.Anything).Return(resp, nil).Once()

		rec := serve(t, newTestRouter(nil, img), "/api/img?url=http://cdn.test/a")
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	})

	t.Run("rejects non http", func(t *testing.T) {
		img := new(MockImageSource)
		rec := serve(t, newTestRouter(nil, img), "/api/img?url=file:///etc/passwd")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		img.AssertNotCalled(t, "Open", mock.Anything, mock.Anything)
	})

	t.Run("upstream failure", func(t *testing.T) {
		img := new(MockImageSource)
		img.On("Open", mock.Anything, mock.Anything).Return(nil, &scraper.UpstreamFetchError{URL: "u", Status: 404}).Once()

		rec := serve(t, newTestRouter(nil, img), "/api/img?url=https://cdn.test/missing.jpg")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	rec := serve(t, newTestRouter(nil, nil), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestParsePage(t *testing.T) {
	assert.Equal(t, 1, parsePage(""))
	assert.Equal(t, 1, parsePage("0"))
	assert.Equal(t, 1, parsePage("-2"))
	assert.Equal(t, 1, parsePage("two"))
	assert.Equal(t, 7, parsePage(" 7 "))
}
