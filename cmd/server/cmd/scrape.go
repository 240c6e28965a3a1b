package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bakeshelf/server/internal/config"
	"github.com/bakeshelf/server/internal/scraper"
)

var (
	scrapeCategory    string
	scrapeStartURL    string
	scrapeLimit       int
	scrapeWorkers     int
	scrapeDryRun      bool
	scrapeSitesDir    string
	scrapeMetricsAddr string
)

// scrapeCmd is the root command group for scraper subcommands.
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape recipes from configured sites",
	Long: `Scrape recipes from configured cooking sites and store them in Postgres.

Sites are defined as YAML selector configs in the sites directory. A scrape
crawls a site's paginated category listing, extracts each recipe detail page,
and upserts the result keyed by (author, slug).

Examples:
  # List configured sites
  bakeshelf scrape list

  # Scrape one site's desserts category (dry-run)
  bakeshelf scrape site sallys-baking-addiction --category desserts --dry-run

  # Crawl from an explicit listing URL
  bakeshelf scrape site sallys-baking-addiction --url https://sallysbakingaddiction.com/category/desserts/

  # Scrape all enabled sites
  bakeshelf scrape all --category desserts`,
}

// scrapeSiteCmd scrapes a single configured site.
var scrapeSiteCmd = &cobra.Command{
	Use:   "site <key>",
	Short: "Scrape recipes from a named configured site",
	Long: `Load the named site from the sites directory and scrape it.

--category fills the site's category URL template; a nested category path
like "desserts/pies" is stored as "desserts-pies". --url replaces the
templated listing URL entirely.

Examples:
  bakeshelf scrape site sallys-baking-addiction --category desserts
  bakeshelf scrape site half-baked-harvest --category desserts --limit 5
  bakeshelf scrape site sallys-baking-addiction --url https://sallysbakingaddiction.com/category/desserts/ --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteKey := args[0]

		s, cfg, cleanup, err := newScraperFromEnv(scrapeDryRun)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stopMetrics := startMetricsListener(ctx, metricsAddr(cfg))
		defer stopMetrics()

		result, err := s.ScrapeSite(ctx, siteKey, scrapeRunOptions(cfg))
		if err != nil {
			return fmt.Errorf("scrape site: %w", err)
		}

		printSingleResult(result)

		if result.Error != nil {
			return result.Error
		}
		return nil
	},
}

// scrapeAllCmd scrapes all enabled configured sites.
var scrapeAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Scrape all enabled configured sites",
	Long: `Load all enabled sites from the sites directory and scrape each one.

Per-site errors are reported in the table but do not abort the run.
Exits with a non-zero status if any site encountered an error.

Examples:
  bakeshelf scrape all --category desserts
  bakeshelf scrape all --category desserts --dry-run
  bakeshelf scrape all --category desserts --limit 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, cfg, cleanup, err := newScraperFromEnv(scrapeDryRun)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stopMetrics := startMetricsListener(ctx, metricsAddr(cfg))
		defer stopMetrics()

		results, err := s.ScrapeAllSites(ctx, scrapeRunOptions(cfg))
		if err != nil {
			return fmt.Errorf("scrape all: %w", err)
		}

		return printAllResults(results)
	},
}

// scrapeListCmd lists all configured sites.
var scrapeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured scrape sites",
	Long: `List all site configurations found in the sites directory.

Examples:
  bakeshelf scrape list
  bakeshelf scrape list --sites configs/sites`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Listing needs no database; Load's settings are usable even when
		// validation fails.
		cfg, _ := config.Load()
		dir := sitesDir(cfg)

		registry, err := scraper.LoadRegistry(dir)
		if err != nil {
			return fmt.Errorf("load sites: %w", err)
		}

		sites := registry.All()
		if len(sites) == 0 {
			fmt.Printf("No site configs found in %s\n", dir)
			return nil
		}

		fmt.Printf("%-28s %-26s %-7s %-5s %s\n", "KEY", "NAME", "ENABLED", "PAGES", "CATEGORY URL")
		for _, cfg := range sites {
			u := cfg.CategoryURL
			if len(u) > 52 {
				u = u[:49] + "..."
			}
			fmt.Printf("%-28s %-26s %-7v %-5d %s\n",
				cfg.Key, cfg.Name, cfg.Enabled, cfg.MaxPages, u,
			)
		}
		return nil
	},
}

// scrapeInspectCmd fetches a URL and prints a DOM structure summary to help
// discover CSS selectors for a site config.
var scrapeInspectCmd = &cobra.Command{
	Use:   "inspect <URL>",
	Short: "Analyse a page's DOM to discover CSS selectors",
	Long: `Fetch a URL and print a summary of its DOM structure:
  - Most frequent CSS classes (top 20)
  - data-* attribute names and counts
  - hrefs containing "recipe"
  - Candidate recipe container elements

Use this to identify selectors before writing a site config.

Examples:
  bakeshelf scrape inspect https://sallysbakingaddiction.com/category/desserts/
  bakeshelf scrape inspect https://www.halfbakedharvest.com/category/recipes/desserts/`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		fetcher := scraper.NewFetcher(scraper.FetcherOptions{
			UserAgent: os.Getenv("SCRAPER_USER_AGENT"),
		}, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := scraper.Inspect(ctx, fetcher, args[0])
		if err != nil {
			return fmt.Errorf("inspect: %w", err)
		}

		fmt.Print(scraper.FormatInspectResult(result))
		return nil
	},
}

func scrapeRunOptions(cfg config.Config) scraper.RunOptions {
	workers := scrapeWorkers
	if workers <= 0 {
		workers = cfg.Scraper.Workers
	}
	return scraper.RunOptions{
		Category: scrapeCategory,
		StartURL: scrapeStartURL,
		Limit:    scrapeLimit,
		Workers:  workers,
		DryRun:   scrapeDryRun,
	}
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.AddCommand(scrapeSiteCmd)
	scrapeCmd.AddCommand(scrapeAllCmd)
	scrapeCmd.AddCommand(scrapeListCmd)
	scrapeCmd.AddCommand(scrapeInspectCmd)

	scrapeCmd.PersistentFlags().StringVar(&scrapeSitesDir, "sites", "", "site config directory (default: SITES_DIR or configs/sites)")
	scrapeCmd.PersistentFlags().StringVar(&scrapeCategory, "category", "", "category path to crawl, e.g. desserts or desserts/pies")
	scrapeCmd.PersistentFlags().IntVar(&scrapeLimit, "limit", 0, "max recipes to process per site (0 = no limit)")
	scrapeCmd.PersistentFlags().IntVar(&scrapeWorkers, "workers", 0, "concurrent detail-page workers (default: SCRAPER_WORKERS)")
	scrapeCmd.PersistentFlags().BoolVar(&scrapeDryRun, "dry-run", false, "extract without writing to the database")
	scrapeCmd.PersistentFlags().StringVar(&scrapeMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address for the run, e.g. :9091")

	scrapeSiteCmd.Flags().StringVar(&scrapeStartURL, "url", "", "crawl from this listing URL instead of the templated category URL")
}
