package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listingConfig(maxPages int) SiteConfig {
	return SiteConfig{
		Key:      "test-bakes",
		Name:     "Test Bakes",
		MaxPages: maxPages,
		Selectors: SelectorSet{
			Links:   ".archive > article > a",
			NextBtn: ".nav > .next",
		},
	}
}

func listingPage(links []string, next string) string {
	page := `<html><body><div class="archive">`
	for _, l := range links {
		page += fmt.Sprintf(`<article><a href=%q>recipe</a></article>`, l)
	}
	page += `</div><div class="nav">`
	if next != "" {
		page += fmt.Sprintf(`<a class="next" href=%q>Next</a>`, next)
	}
	page += `</div></body></html>`
	return page
}

func TestCollectURLs_FollowsPagination(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/page/1/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingPage([]string{"/cornbread/", "/apple-pie/"}, srv.URL+"/page/2/")))
	})
	mux.HandleFunc("/page/2/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingPage([]string{"/banana-bread/"}, "")))
	})

	c := NewCrawler("", 0, zerolog.Nop())
	urls, err := c.CollectURLs(context.Background(), srv.URL+"/page/1/", listingConfig(10))
	require.NoError(t, err)

	assert.Equal(t, []string{
		srv.URL + "/cornbread/",
		srv.URL + "/apple-pie/",
		srv.URL + "/banana-bread/",
	}, urls)
}

func TestCollectURLs_PaginationCycleTerminates(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// Page 2 points back at page 1. The visited-URL guard must break the loop.
	mux.HandleFunc("/page/1/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingPage([]string{"/cornbread/"}, srv.URL+"/page/2/")))
	})
	mux.HandleFunc("/page/2/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingPage([]string{"/apple-pie/"}, srv.URL+"/page/1/")))
	})

	c := NewCrawler("", 0, zerolog.Nop())
	urls, err := c.CollectURLs(context.Background(), srv.URL+"/page/1/", listingConfig(10))
	require.NoError(t, err)
	assert.Len(t, urls, 2)
}

func TestCollectURLs_MaxPagesBound(t *testing.T) {
	var pagesServed int
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// An endless chain of listing pages; only max_pages should be visited.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		next := fmt.Sprintf("%s/page/%d/", srv.URL, pagesServed+1)
		_, _ = w.Write([]byte(listingPage([]string{fmt.Sprintf("/recipe-%d/", pagesServed)}, next)))
	})

	c := NewCrawler("", 0, zerolog.Nop())
	urls, err := c.CollectURLs(context.Background(), srv.URL+"/page/1/", listingConfig(3))
	require.NoError(t, err)
	assert.Len(t, urls, 3)
	assert.Equal(t, 3, pagesServed)
}

func TestCollectURLs_NextButtonWrappingAnchor(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// Some themes put the next link inside the control instead of on it.
	mux.HandleFunc("/page/1/", func(w http.ResponseWriter, r *http.Request) {
		page := `<html><body><div class="archive"><article><a href="/cornbread/">r</a></article></div>` +
			fmt.Sprintf(`<div class="nav"><div class="next"><a href="%s/page/2/">Next</a></div></div></body></html>`, srv.URL)
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/page/2/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingPage([]string{"/apple-pie/"}, "")))
	})

	c := NewCrawler("", 0, zerolog.Nop())
	urls, err := c.CollectURLs(context.Background(), srv.URL+"/page/1/", listingConfig(10))
	require.NoError(t, err)
	assert.Len(t, urls, 2)
}

func TestCollectURLs_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCrawler("", 0, zerolog.Nop())
	_, err := c.CollectURLs(ctx, "https://example.com/", listingConfig(1))
	require.Error(t, err)
}
