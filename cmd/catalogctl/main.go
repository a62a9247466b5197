package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maltedev/catalog-scraper/internal/app"
	"github.com/maltedev/catalog-scraper/internal/cache"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/logger"
)

var (
	logLevel string
	page     int
)

var rootCmd = &cobra.Command{
	Use:          "catalogctl",
	Short:        "Run one catalog extraction and print the result as JSON",
	SilenceUsage: true,
}

var categoryCmd = &cobra.Command{
	Use:   "category [url]",
	Short: "Extract one page of a category listing (defaults to SOURCE_DEFAULT_CATEGORY_URL)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), true, func(a *app.App, cfg *config.Config) (interface{}, cache.Status, error) {
			target := cfg.Source.DefaultCategoryURL
			if len(args) == 1 {
				target = args[0]
			}
			return a.Catalog.Category(cmd.Context(), target, page)
		})
	},
}

var productCmd = &cobra.Command{
	Use:   "product <url>",
	Short: "Extract a product detail page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), false, func(a *app.App, _ *config.Config) (interface{}, cache.Status, error) {
			return a.Catalog.Product(cmd.Context(), args[0])
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	categoryCmd.Flags().IntVarP(&page, "page", "p", 1, "page number")

	rootCmd.AddCommand(categoryCmd, productCmd)
}

type extraction func(a *app.App, cfg *config.Config) (interface{}, cache.Status, error)

func run(ctx context.Context, needsBrowser bool, fn extraction) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Browser.Enabled = needsBrowser
	cfg.Database.Enabled = false

	log := logger.NewWithWriter(os.Stderr, logLevel, "text")

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	result, status, err := fn(a, cfg)
	if err != nil {
		return err
	}
	log.Info("extraction finished", "cache", status)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
