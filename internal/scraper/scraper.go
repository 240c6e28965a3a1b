package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bakeshelf/server/internal/domain/recipes"
	"github.com/bakeshelf/server/internal/metrics"
)

// RunOptions controls one scrape run.
type RunOptions struct {
	// Category is the site's category path, e.g. "desserts/pies". The stored
	// category name replaces slashes with hyphens.
	Category string
	// StartURL overrides the listing URL derived from the site's category URL
	// template.
	StartURL string
	// Limit caps the number of detail pages processed. 0 = no limit.
	Limit int
	// Workers bounds detail-page concurrency. Values <= 1 keep the original
	// strictly sequential behavior.
	Workers int
	// DryRun extracts without writing to the store.
	DryRun bool
}

// RunResult aggregates outcomes for one scrape run.
type RunResult struct {
	SiteKey   string
	Category  string
	URLsFound int
	Processed int // successfully extracted detail pages
	Created   int
	Updated   int
	Skipped   int // non-recipe pages
	Failed    int // fetch/extract/write failures
	Error     error
	DryRun    bool
}

// RunRecorder tracks scrape runs in the store. Recording is best-effort: a
// recorder failure is logged, never fatal.
type RunRecorder interface {
	StartRun(ctx context.Context, siteKey, category string) (string, error)
	FinishRun(ctx context.Context, runID string, result RunResult) error
	FailRun(ctx context.Context, runID string, runErr error) error
}

// Scraper orchestrates the pipeline: registry -> listing crawl -> per-URL
// fetch, extract, upsert, image resolve.
type Scraper struct {
	registry  *Registry
	fetcher   *Fetcher
	crawler   *Crawler
	extractor *Extractor
	upsert    *recipes.UpsertService
	images    *ImageResolver
	repo      recipes.Repository // nil forces dry-run behavior
	runs      RunRecorder        // nil skips run tracking
	logger    zerolog.Logger
}

// NewScraper constructs a Scraper. repo may be nil, in which case every run
// behaves as a dry run; runs may be nil, in which case run tracking is
// skipped (both useful in tests and dry-run contexts).
func NewScraper(registry *Registry, fetcher *Fetcher, crawlDelay time.Duration, repo recipes.Repository, runs RunRecorder, logger zerolog.Logger) *Scraper {
	s := &Scraper{
		registry:  registry,
		fetcher:   fetcher,
		crawler:   NewCrawler(fetcher.UserAgent(), crawlDelay, logger),
		extractor: NewExtractor(logger),
		repo:      repo,
		runs:      runs,
		logger:    logger,
	}
	if repo != nil {
		s.upsert = recipes.NewUpsertService(repo, logger)
		s.images = NewImageResolver(fetcher, repo, logger)
	}
	return s
}

// ScrapeSite runs the full pipeline for one configured site. An unknown site
// key is a configuration error and fails immediately, before any fetch.
// Per-URL failures are counted and logged but never abort the run.
func (s *Scraper) ScrapeSite(ctx context.Context, siteKey string, opts RunOptions) (RunResult, error) {
	cfg, err := s.registry.Get(siteKey)
	if err != nil {
		return RunResult{}, err
	}
	if !cfg.Enabled {
		return RunResult{}, fmt.Errorf("site is disabled: %s", siteKey)
	}

	category := strings.ReplaceAll(strings.Trim(opts.Category, "/"), "/", "-")

	startURL := opts.StartURL
	if startURL == "" {
		startURL = cfg.StartURL(opts.Category)
	}
	if strings.TrimSpace(startURL) == "" {
		return RunResult{}, fmt.Errorf("site %s: no start URL (set category_url in config or pass one explicitly)", siteKey)
	}

	result := RunResult{
		SiteKey:  siteKey,
		Category: category,
		DryRun:   opts.DryRun || s.repo == nil,
	}

	started := time.Now()
	runID := s.startRun(ctx, siteKey, category)

	urls, err := s.crawler.CollectURLs(ctx, startURL, cfg)
	if err != nil {
		result.Error = err
		s.failRun(ctx, runID, err)
		return result, nil
	}
	result.URLsFound = len(urls)

	targets := dedupeBySlug(urls, s.logger)
	if opts.Limit > 0 && len(targets) > opts.Limit {
		targets = targets[:opts.Limit]
	}

	s.logger.Info().
		Str("site", siteKey).
		Str("category", category).
		Int("urls", len(urls)).
		Int("targets", len(targets)).
		Msg("scrape: listing crawl done, processing detail pages")

	s.processTargets(ctx, cfg, category, targets, opts, &result)

	metrics.RunDuration.WithLabelValues(siteKey).Observe(time.Since(started).Seconds())
	s.finishRun(ctx, runID, result)
	return result, nil
}

// ScrapeAllSites runs ScrapeSite for every enabled site in the registry.
// Per-site errors land in each RunResult rather than aborting the whole run.
func (s *Scraper) ScrapeAllSites(ctx context.Context, opts RunOptions) ([]RunResult, error) {
	var results []RunResult
	for _, cfg := range s.registry.All() {
		if ctx.Err() != nil {
			break
		}
		if !cfg.Enabled {
			continue
		}
		res, err := s.ScrapeSite(ctx, cfg.Key, opts)
		if err != nil {
			res.SiteKey = cfg.Key
			res.Error = err
		}
		results = append(results, res)
	}
	return results, nil
}

// target is one detail page to process, with its slug precomputed.
type target struct {
	url  string
	slug string
}

// dedupeBySlug collapses the crawler's URL list to one entry per natural key,
// keeping first-seen order. This also guarantees that no two workers ever
// write the same (author, slug) concurrently.
func dedupeBySlug(urls []string, logger zerolog.Logger) []target {
	seen := make(map[string]struct{}, len(urls))
	targets := make([]target, 0, len(urls))
	for _, u := range urls {
		slug, err := SlugFromURL(u)
		if err != nil || slug == "" {
			logger.Warn().Str("url", u).Msg("scrape: cannot derive slug, skipping URL")
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		targets = append(targets, target{url: u, slug: slug})
	}
	return targets
}

// processTargets fans detail pages out to a bounded worker pool. With
// Workers <= 1 this degenerates to the sequential loop of the original
// design. The shared fetcher's rate limiter spaces requests regardless of
// worker count.
func (s *Scraper) processTargets(ctx context.Context, cfg SiteConfig, category string, targets []target, opts RunOptions, result *RunResult) {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, t := range targets {
		if gctx.Err() != nil {
			break
		}
		t := t // per-iteration copy; required while go.mod targets go < 1.22
		g.Go(func() error {
			res := s.processURL(gctx, cfg, category, t, opts.DryRun)
			mu.Lock()
			switch res {
			case outcomeCreated:
				result.Processed++
				result.Created++
			case outcomeUpdated:
				result.Processed++
				result.Updated++
			case outcomeExtracted:
				result.Processed++
			case outcomeSkipped:
				result.Skipped++
			case outcomeFailed:
				result.Failed++
			}
			mu.Unlock()
			return nil // per-URL failures never cancel the group
		})
	}
	_ = g.Wait()
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeSkipped
	outcomeExtracted // dry-run success
	outcomeCreated
	outcomeUpdated
)

func (s *Scraper) processURL(ctx context.Context, cfg SiteConfig, category string, t target, dryRun bool) outcome {
	html, err := s.fetcher.Fetch(ctx, t.url)
	if err != nil {
		metrics.FetchErrors.WithLabelValues(cfg.Key).Inc()
		s.logger.Warn().Err(err).Str("url", t.url).Msg("scrape: fetch failed, skipping URL")
		return outcomeFailed
	}
	metrics.PagesFetched.WithLabelValues(cfg.Key).Inc()

	input, err := s.extractor.Extract(html, cfg)
	if errors.Is(err, ErrNotRecipePage) {
		metrics.RecipesSkipped.WithLabelValues(cfg.Key).Inc()
		s.logger.Debug().Str("url", t.url).Msg("scrape: not a recipe page, skipping")
		return outcomeSkipped
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("url", t.url).Msg("scrape: extraction failed, skipping URL")
		return outcomeFailed
	}

	input.Link = t.url
	input.Slug = t.slug

	if dryRun || s.upsert == nil {
		s.logger.Info().
			Str("slug", input.Slug).
			Str("title", input.Title).
			Int("ingredient_sections", len(input.Ingredients)).
			Msg("scrape: dry run, not writing")
		return outcomeExtracted
	}

	site := recipes.SourceSite{Name: cfg.Name, WebsiteLink: cfg.WebsiteLink}
	upserted, err := s.upsert.Upsert(ctx, site, category, input)
	if err != nil {
		s.logger.Error().Err(err).Str("url", t.url).Msg("scrape: upsert failed")
		return outcomeFailed
	}

	// Per-candidate download/decode failures are isolated inside Resolve; an
	// error here is a store failure, which still must not sink the recipe.
	if err := s.images.Resolve(ctx, upserted.Recipe, cfg, input.ImageURLs); err != nil {
		s.logger.Warn().Err(err).Str("slug", input.Slug).Msg("scrape: image resolve failed")
	}

	if upserted.Created {
		metrics.RecipesCreated.WithLabelValues(cfg.Key).Inc()
		return outcomeCreated
	}
	metrics.RecipesUpdated.WithLabelValues(cfg.Key).Inc()
	return outcomeUpdated
}

func (s *Scraper) startRun(ctx context.Context, siteKey, category string) string {
	if s.runs == nil {
		return ""
	}
	runID, err := s.runs.StartRun(ctx, siteKey, category)
	if err != nil {
		s.logger.Warn().Err(err).Msg("scrape: failed to record run start")
		return ""
	}
	return runID
}

func (s *Scraper) finishRun(ctx context.Context, runID string, result RunResult) {
	if s.runs == nil || runID == "" {
		return
	}
	if err := s.runs.FinishRun(ctx, runID, result); err != nil {
		s.logger.Warn().Err(err).Msg("scrape: failed to record run completion")
	}
}

func (s *Scraper) failRun(ctx context.Context, runID string, runErr error) {
	if s.runs == nil || runID == "" {
		return
	}
	if err := s.runs.FailRun(ctx, runID, runErr); err != nil {
		s.logger.Warn().Err(err).Msg("scrape: failed to record run failure")
	}
}
