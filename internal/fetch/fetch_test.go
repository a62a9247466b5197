package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-scraper/internal/scraper"
)

func newFetcher(timeout time.Duration) *Fetcher {
	return New(Options{Timeout: timeout}, nil, slog.Default())
}

func TestHTML_SendsBrowserHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		assert.Equal(t, "en-US,en;q=0.9", r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<h1>Rope</h1>"))
	}))
	defer srv.Close()

	body, err := newFetcher(time.Second).HTML(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Rope</h1>", body)
}

func TestHTML_DecodesCompressedBodies(t *testing.T) {
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write([]byte("<p>gzip</p>"))
	gw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write([]byte("<p>brotli</p>"))
	bw.Close()

	tests := []struct {
		name     string
		encoding string
		payload  []byte
		expected string
	}{
		{"gzip", "gzip", gz.Bytes(), "<p>gzip</p>"},
		{"brotli", "br", br.Bytes(), "<p>brotli</p>"},
		{"identity", "", []byte("<p>plain</p>"), "<p>plain</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.encoding != "" {
					w.Header().Set("Content-Encoding", tt.encoding)
				}
				w.Header().Set("Content-Type", "text/html")
				w.Write(tt.payload)
			}))
			defer srv.Close()

			body, err := newFetcher(time.Second).HTML(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, body)
		})
	}
}

func TestHTML_DecodesLatin1(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<p>Cabo n\xe1utico</p>"))
	}))
	defer srv.Close()

	body, err := newFetcher(time.Second).HTML(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>Cabo náutico</p>", body)
}

func TestHTML_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	_, err := newFetcher(time.Second).HTML(context.Background(), srv.URL)

	var upstream *scraper.UpstreamFetchError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusServiceUnavailable, upstream.Status)
	assert.Len(t, upstream.Body, 500)
}

func TestHTML_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newFetcher(50*time.Millisecond).HTML(context.Background(), srv.URL)

	var timeout *scraper.TimeoutError
	require.True(t, errors.As(err, &timeout), "got %v", err)
	assert.Equal(t, "fetch", timeout.Phase)
}

func TestOpen_StreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	resp, err := newFetcher(time.Second).Open(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}
