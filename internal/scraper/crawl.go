package scraper

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"
)

// Crawler walks a site's paginated category listings and collects every
// recipe URL encountered, in page order. Duplicate URLs are not filtered; the
// pipeline deduplicates by natural key before writing.
type Crawler struct {
	userAgent string
	rateLimit time.Duration
	logger    zerolog.Logger
}

// NewCrawler returns a Crawler with the given identity header and a per-domain
// courtesy delay.
func NewCrawler(userAgent string, rateLimit time.Duration, logger zerolog.Logger) *Crawler {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Crawler{
		userAgent: userAgent,
		rateLimit: rateLimit,
		logger:    logger,
	}
}

// CollectURLs fetches startURL and follows the site's pagination-next control
// transitively, appending the href of every element matching the links
// selector. The crawl is bounded two ways: Colly's visited-URL tracking breaks
// pagination cycles, and cfg.MaxPages caps the page count, so a malformed
// "next" chain terminates instead of hanging. If ctx is cancelled mid-crawl,
// the URLs collected so far are returned.
func (c *Crawler) CollectURLs(ctx context.Context, startURL string, cfg SiteConfig) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allowedDomain, err := extractDomain(startURL)
	if err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		hrefs     []string
		pagesSeen int
	)

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 50
	}

	collector := colly.NewCollector(
		colly.UserAgent(c.userAgent),
		colly.AllowedDomains(allowedDomain),
	)

	if c.rateLimit > 0 {
		if err := collector.Limit(&colly.LimitRule{
			DomainGlob: "*",
			Delay:      c.rateLimit,
		}); err != nil {
			c.logger.Warn().Err(err).Msg("crawl: failed to set rate limit rule")
		}
	}

	collector.OnHTML(cfg.Selectors.Links, func(h *colly.HTMLElement) {
		if ctx.Err() != nil {
			return
		}
		href := h.Attr("href")
		if href == "" {
			return
		}
		abs := h.Request.AbsoluteURL(href)
		if abs == "" {
			return
		}
		mu.Lock()
		hrefs = append(hrefs, abs)
		mu.Unlock()
	})

	if cfg.Selectors.NextBtn != "" {
		collector.OnHTML(cfg.Selectors.NextBtn, func(h *colly.HTMLElement) {
			if ctx.Err() != nil {
				return
			}

			mu.Lock()
			current := pagesSeen
			mu.Unlock()
			if current >= maxPages {
				return
			}

			href := h.Attr("href")
			if href == "" {
				href = h.ChildAttr("a", "href")
			}
			if href == "" {
				return
			}

			nextURL := h.Request.AbsoluteURL(href)
			if nextURL == "" {
				return
			}

			// Colly's visited-URL tracking makes a revisit an error, which
			// doubles as the cycle guard.
			if err := collector.Visit(nextURL); err != nil {
				c.logger.Debug().Err(err).Str("url", nextURL).Msg("crawl: not following next link")
			}
		})
	}

	collector.OnRequest(func(r *colly.Request) {
		mu.Lock()
		pagesSeen++
		reachedMax := pagesSeen > maxPages
		mu.Unlock()

		if reachedMax {
			r.Abort()
			return
		}

		c.logger.Debug().
			Str("url", r.URL.String()).
			Int("page", pagesSeen).
			Msg("crawl: visiting listing page")
	})

	collector.OnError(func(r *colly.Response, err error) {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn().
			Str("url", r.Request.URL.String()).
			Int("status", r.StatusCode).
			Err(err).
			Msg("crawl: request error")
	})

	if err := collector.Visit(startURL); err != nil {
		if ctx.Err() != nil {
			return hrefs, nil
		}
		return nil, err
	}

	collector.Wait()

	c.logger.Info().
		Int("urls", len(hrefs)).
		Int("pages", pagesSeen).
		Str("start", startURL).
		Msg("crawl: listing crawl complete")

	return hrefs, nil
}

// extractDomain parses rawURL and returns just the hostname (no port).
func extractDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}
