// Package app assembles the catalog components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/cache"
	"github.com/maltedev/catalog-scraper/internal/catalog"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/database"
	"github.com/maltedev/catalog-scraper/internal/extract"
	"github.com/maltedev/catalog-scraper/internal/fetch"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/ratelimit"
)

// App owns the long-lived resources. They live for the whole process and
// are released by Close.
type App struct {
	Catalog *catalog.Service
	Fetcher *fetch.Fetcher

	closers []func() error
	logger  *slog.Logger
}

// New wires the service. A browser that fails to start is logged and left
// out: category requests then fail with a configuration error while product
// requests keep working. Redis and Postgres failures are fatal when enabled.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger}

	limiter := ratelimit.RateLimiter(ratelimit.Unlimited{})
	if cfg.RateLimit.MinInterval > 0 {
		limiter = ratelimit.NewSimpleRateLimiter(cfg.RateLimit.MinInterval, cfg.RateLimit.MaxInterval)
	}

	a.Fetcher = fetch.New(fetch.Options{
		Timeout:        cfg.Fetch.Timeout,
		UserAgent:      cfg.Fetch.UserAgent,
		AcceptLanguage: cfg.Fetch.AcceptLanguage,
		MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
	}, limiter, logger)

	var renderer extract.Renderer
	if cfg.Browser.Enabled {
		b, err := browser.New(&browser.Options{
			Headless:       cfg.Browser.Headless,
			Timeout:        cfg.Browser.Timeout,
			UserAgent:      cfg.Browser.UserAgent,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			AcceptLanguage: cfg.Browser.AcceptLanguage,
			TimezoneID:     cfg.Browser.TimezoneID,
			Locale:         cfg.Browser.Locale,
			ProxyServer:    cfg.Browser.ProxyServer,
			ExtraHeaders:   browser.DefaultOptions().ExtraHeaders,
		}, logger)
		if err != nil {
			logger.Error("browser unavailable, category extraction disabled", "error", err)
		} else {
			renderer = b
			a.closers = append(a.closers, b.Close)
		}
	}

	listingStore, detailStore, err := a.stores(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	categories := extract.NewCategoryExtractor(renderer, limiter, extract.CategoryOptions{
		NavigationTimeout: cfg.Extract.NavigationTimeout,
		ConsentTimeout:    cfg.Extract.ConsentTimeout,
		IdleTimeout:       cfg.Extract.IdleTimeout,
		SettleDelay:       cfg.Extract.SettleDelay,
		ScrollRounds:      cfg.Extract.ScrollRounds,
		ScrollDelay:       cfg.Extract.ScrollDelay,
		PageSize:          cfg.Extract.PageSize,
		MaxProducts:       cfg.Extract.MaxProducts,
		ConsentSelectors:  extract.DefaultConsentSelectors,
	}, logger)

	a.Catalog = catalog.NewService(
		categories,
		a.Fetcher,
		cache.NewCoalescer(listingStore),
		cache.NewCoalescer(detailStore),
		catalog.Options{
			SourceHost:  cfg.Source.Host,
			CategoryTTL: cfg.Cache.CategoryTTL,
			ProductTTL:  cfg.Cache.ProductTTL,
		},
		logger,
	)

	if cfg.Database.Enabled {
		runs, err := a.runLog(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Catalog.WithRecorder(runs)
	}

	return a, nil
}

func (a *App) stores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Store[*models.ScrapeResult], cache.Store[*models.ProductDetail], error) {
	if cfg.Cache.Backend != config.CacheBackendRedis {
		return cache.NewMemory[*models.ScrapeResult](), cache.NewMemory[*models.ProductDetail](), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	return cache.NewRedis[*models.ScrapeResult](client, cfg.Cache.KeyPrefix, logger),
		cache.NewRedis[*models.ProductDetail](client, cfg.Cache.KeyPrefix, logger),
		nil
}

func (a *App) runLog(ctx context.Context, cfg *config.Config) (*database.RunRepository, error) {
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, func() error {
		db.Close()
		return nil
	})

	runs := database.NewRunRepository(db)
	if err := runs.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return runs, nil
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
