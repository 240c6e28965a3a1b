package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bakeshelf/server/internal/config"
	"github.com/bakeshelf/server/internal/metrics"
	"github.com/bakeshelf/server/internal/scraper"
	"github.com/bakeshelf/server/internal/storage/postgres"
)

// sitesDir resolves the site config directory: --sites flag, then the
// SITES_DIR setting, then the built-in default.
func sitesDir(cfg config.Config) string {
	if scrapeSitesDir != "" {
		return scrapeSitesDir
	}
	return cfg.Scraper.SitesDir
}

// metricsAddr resolves the metrics listen address: --metrics-addr flag, then
// METRICS_ADDR. Empty disables the listener.
func metricsAddr(cfg config.Config) string {
	if scrapeMetricsAddr != "" {
		return scrapeMetricsAddr
	}
	return cfg.Metrics.Addr
}

// newScraperFromEnv wires a Scraper from config. With dryRun the database is
// never touched, so a missing DATABASE_URL is fine; Load still returns the
// scraper settings in that case.
func newScraperFromEnv(dryRun bool) (*scraper.Scraper, config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil && !dryRun {
		return nil, cfg, nil, err
	}
	logger := newLogger(cfg)

	registry, err := scraper.LoadRegistry(sitesDir(cfg))
	if err != nil {
		return nil, cfg, nil, fmt.Errorf("load sites: %w", err)
	}

	fetcher := scraper.NewFetcher(scraper.FetcherOptions{
		UserAgent:  cfg.Scraper.UserAgent,
		Timeout:    cfg.Scraper.Timeout,
		Delay:      cfg.Scraper.Delay,
		MaxRetries: cfg.Scraper.MaxRetries,
	}, logger)

	if dryRun || cfg.Database.URL == "" {
		s := scraper.NewScraper(registry, fetcher, cfg.Scraper.Delay, nil, nil, logger)
		return s, cfg, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdle)
	if err != nil {
		return nil, cfg, nil, fmt.Errorf("connect database: %w", err)
	}

	repo := postgres.NewRecipeRepository(pool)
	runs := postgres.NewScrapeRunRepository(pool)

	collectorCtx, stopCollector := context.WithCancel(context.Background())
	go metrics.NewDBCollector(pool).Start(collectorCtx, 15*time.Second)

	cleanup := func() {
		stopCollector()
		pool.Close()
	}

	s := scraper.NewScraper(registry, fetcher, cfg.Scraper.Delay, repo, runs, logger)
	return s, cfg, cleanup, nil
}

// startMetricsListener serves /metrics on addr for the duration of the run.
// The returned stop function shuts the listener down; an empty addr is a
// no-op.
func startMetricsListener(ctx context.Context, addr string) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "metrics listener error: %v\n", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func printSingleResult(result scraper.RunResult) {
	mode := ""
	if result.DryRun {
		mode = " (dry-run)"
	}
	fmt.Printf("Site:      %s%s\n", result.SiteKey, mode)
	if result.Category != "" {
		fmt.Printf("Category:  %s\n", result.Category)
	}
	fmt.Printf("URLs:      %d\n", result.URLsFound)
	fmt.Printf("Processed: %d\n", result.Processed)
	fmt.Printf("Created:   %d\n", result.Created)
	fmt.Printf("Updated:   %d\n", result.Updated)
	fmt.Printf("Skipped:   %d\n", result.Skipped)
	fmt.Printf("Failed:    %d\n", result.Failed)
	if result.Error != nil {
		fmt.Printf("Error:     %v\n", result.Error)
	}
}

func printAllResults(results []scraper.RunResult) error {
	fmt.Printf("%-28s %-6s %-9s %-7s %-7s %-7s %-6s %s\n",
		"SITE", "URLS", "PROCESSED", "CREATED", "UPDATED", "SKIPPED", "FAILED", "ERROR")

	var failed bool
	for _, r := range results {
		errMsg := ""
		if r.Error != nil {
			failed = true
			errMsg = r.Error.Error()
			if len(errMsg) > 40 {
				errMsg = errMsg[:37] + "..."
			}
		}
		fmt.Printf("%-28s %-6d %-9d %-7d %-7d %-7d %-6d %s\n",
			r.SiteKey, r.URLsFound, r.Processed, r.Created, r.Updated, r.Skipped, r.Failed, errMsg)
	}

	if failed {
		return fmt.Errorf("one or more sites failed")
	}
	return nil
}
