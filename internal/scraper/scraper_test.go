package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakeshelf/server/internal/domain/recipes"
)

// memoryRepo is an in-memory recipes.Repository for pipeline tests.
type memoryRepo struct {
	mu sync.Mutex

	nextID       int64
	authors      map[string]recipes.Author
	recipes      map[string]recipes.Recipe // keyed by authorID/slug
	categories   map[string]recipes.Category
	attached     map[int64][]int64
	ingredients  map[int64][]recipes.IngredientList
	instructions map[int64][]recipes.InstructionList
	notes        map[int64][]string
	images       map[int64]recipes.ImageCreateParams
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		authors:      map[string]recipes.Author{},
		recipes:      map[string]recipes.Recipe{},
		categories:   map[string]recipes.Category{},
		attached:     map[int64][]int64{},
		ingredients:  map[int64][]recipes.IngredientList{},
		instructions: map[int64][]recipes.InstructionList{},
		notes:        map[int64][]string{},
		images:       map[int64]recipes.ImageCreateParams{},
	}
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func recipeKey(authorID int64, slug string) string {
	return fmt.Sprintf("%d/%s", authorID, slug)
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, recipes.Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) GetOrCreateAuthor(ctx context.Context, name, websiteLink string) (recipes.Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.authors[name]; ok {
		return a, nil
	}
	a := recipes.Author{ID: m.id(), Name: name, WebsiteLink: websiteLink}
	m.authors[name] = a
	return a, nil
}

func (m *memoryRepo) GetOrCreateCategory(ctx context.Context, name string, authorID int64) (recipes.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d/%s", authorID, name)
	if c, ok := m.categories[key]; ok {
		return c, nil
	}
	c := recipes.Category{ID: m.id(), Name: name, AuthorID: authorID}
	m.categories[key] = c
	return c, nil
}

func (m *memoryRepo) GetRecipeBySlug(ctx context.Context, authorID int64, slug string) (*recipes.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipes[recipeKey(authorID, slug)]
	if !ok {
		return nil, recipes.ErrNotFound
	}
	return &r, nil
}

func (m *memoryRepo) CreateRecipe(ctx context.Context, params recipes.RecipeCreateParams) (recipes.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := recipes.Recipe{
		ID:          m.id(),
		AuthorID:    params.AuthorID,
		Slug:        params.Slug,
		Title:       params.Title,
		Link:        params.Link,
		Rating:      params.Rating,
		NumReviews:  params.NumReviews,
		Description: params.Description,
		PrepTime:    params.PrepTime,
		CookTime:    params.CookTime,
		TotalTime:   params.TotalTime,
		Servings:    params.Servings,
	}
	m.recipes[recipeKey(params.AuthorID, params.Slug)] = r
	return r, nil
}

func (m *memoryRepo) UpdateRecipe(ctx context.Context, id int64, params recipes.RecipeUpdateParams) (recipes.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, r := range m.recipes {
		if r.ID != id {
			continue
		}
		r.Title = params.Title
		r.Link = params.Link
		r.Rating = params.Rating
		r.NumReviews = params.NumReviews
		r.Description = params.Description
		r.PrepTime = params.PrepTime
		r.CookTime = params.CookTime
		r.TotalTime = params.TotalTime
		r.Servings = params.Servings
		m.recipes[key] = r
		return r, nil
	}
	return recipes.Recipe{}, recipes.ErrNotFound
}

func (m *memoryRepo) AttachCategory(ctx context.Context, recipeID, categoryID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.attached[recipeID] {
		if existing == categoryID {
			return nil
		}
	}
	m.attached[recipeID] = append(m.attached[recipeID], categoryID)
	return nil
}

func (m *memoryRepo) ReplaceIngredients(ctx context.Context, recipeID int64, lists []recipes.IngredientList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingredients[recipeID] = lists
	return nil
}

func (m *memoryRepo) ReplaceInstructions(ctx context.Context, recipeID int64, lists []recipes.InstructionList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructions[recipeID] = lists
	return nil
}

func (m *memoryRepo) ReplaceNotes(ctx context.Context, recipeID int64, notes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[recipeID] = notes
	return nil
}

func (m *memoryRepo) ListIngredients(ctx context.Context, recipeID int64) ([]recipes.IngredientList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ingredients[recipeID], nil
}

func (m *memoryRepo) ListInstructions(ctx context.Context, recipeID int64) ([]recipes.InstructionList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instructions[recipeID], nil
}

func (m *memoryRepo) ListNotes(ctx context.Context, recipeID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notes[recipeID], nil
}

func (m *memoryRepo) HasImage(ctx context.Context, recipeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.images[recipeID]
	return ok, nil
}

func (m *memoryRepo) CreateImage(ctx context.Context, params recipes.ImageCreateParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[params.RecipeID] = params
	return nil
}

var _ recipes.Repository = (*memoryRepo)(nil)

// runRecorderFake records lifecycle calls.
type runRecorderFake struct {
	mu       sync.Mutex
	started  []string
	finished []RunResult
	failed   []error
}

func (f *runRecorderFake) StartRun(ctx context.Context, siteKey, category string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, siteKey+"/"+category)
	return fmt.Sprintf("run-%d", len(f.started)), nil
}

func (f *runRecorderFake) FinishRun(ctx context.Context, runID string, result RunResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, result)
	return nil
}

func (f *runRecorderFake) FailRun(ctx context.Context, runID string, runErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, runErr)
	return nil
}

// testSite spins up a fake recipe blog: one listing page linking two recipe
// detail pages and one roundup page without recipe markup.
func testSite(t *testing.T) (*httptest.Server, SiteConfig) {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	detail := func(title string) string {
		return fmt.Sprintf(`<html><body><div class="entry-content">
<div class="recipe-card">
  <h1 class="recipe-title">%s</h1>
  <div class="rating-label"><span class="average">4.5</span><span class="count">10</span></div>
  <div class="ingredients-body"><h4>Base</h4><ul><li>▢ flour</li><li>▢ sugar</li></ul></div>
  <div class="instructions-body"><ol><li>Mix.</li><li>Bake.</li></ol></div>
</div></div></body></html>`, title)
	}

	mux.HandleFunc("/category/desserts/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div class="archive">
<article><a href="/cornbread/">Cornbread</a></article>
<article><a href="/apple-pie/">Apple Pie</a></article>
<article><a href="/roundup/">Roundup</a></article>
<article><a href="/cornbread/">Cornbread again</a></article>
</div></body></html>`))
	})
	mux.HandleFunc("/cornbread/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(detail("Cornbread")))
	})
	mux.HandleFunc("/apple-pie/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(detail("Apple Pie")))
	})
	mux.HandleFunc("/roundup/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><article>Ten best pies</article></body></html>`))
	})

	cfg := extractConfig()
	cfg.CategoryURL = srv.URL + "/category/{category}/"
	cfg.Enabled = true
	cfg.MaxPages = 5
	cfg.Selectors.Links = ".archive > article > a"
	cfg.Selectors.Images = "" // detail pages carry no images here

	return srv, cfg
}

func newTestScraper(t *testing.T, cfg SiteConfig, repo recipes.Repository, runs RunRecorder) *Scraper {
	t.Helper()
	registry := NewRegistry([]SiteConfig{cfg})
	fetcher := NewFetcher(FetcherOptions{}, zerolog.Nop())
	return NewScraper(registry, fetcher, 0, repo, runs, zerolog.Nop())
}

func TestScrapeSite_EndToEnd(t *testing.T) {
	_, cfg := testSite(t)
	repo := newMemoryRepo()
	runs := &runRecorderFake{}
	s := newTestScraper(t, cfg, repo, runs)

	result, err := s.ScrapeSite(context.Background(), cfg.Key, RunOptions{Category: "desserts"})
	require.NoError(t, err)
	require.NoError(t, result.Error)

	// 4 anchors on the listing, one a duplicate slug.
	assert.Equal(t, 4, result.URLsFound)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, result.Skipped) // the roundup page
	assert.Equal(t, 0, result.Failed)

	author, ok := repo.authors[cfg.Name]
	require.True(t, ok)

	cornbread, err := repo.GetRecipeBySlug(context.Background(), author.ID, "cornbread")
	require.NoError(t, err)
	assert.Equal(t, "Cornbread", cornbread.Title)
	assert.Equal(t, 4.5, cornbread.Rating)
	assert.Equal(t, 10, cornbread.NumReviews)

	lists, err := repo.ListIngredients(context.Background(), cornbread.ID)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "Base", lists[0].Title)
	assert.Equal(t, []string{"flour", "sugar"}, lists[0].Items)

	// Category recorded and attached.
	cat, err := repo.GetOrCreateCategory(context.Background(), "desserts", author.ID)
	require.NoError(t, err)
	assert.Contains(t, repo.attached[cornbread.ID], cat.ID)

	// Run lifecycle recorded.
	require.Len(t, runs.started, 1)
	require.Len(t, runs.finished, 1)
	assert.Empty(t, runs.failed)
}

func TestScrapeSite_RescrapeUpdatesInPlace(t *testing.T) {
	_, cfg := testSite(t)
	repo := newMemoryRepo()
	s := newTestScraper(t, cfg, repo, nil)

	opts := RunOptions{Category: "desserts"}
	first, err := s.ScrapeSite(context.Background(), cfg.Key, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, err := s.ScrapeSite(context.Background(), cfg.Key, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Updated)

	// Still exactly two stored recipes.
	assert.Len(t, repo.recipes, 2)
}

func TestScrapeSite_DryRunWritesNothing(t *testing.T) {
	_, cfg := testSite(t)
	repo := newMemoryRepo()
	s := newTestScraper(t, cfg, repo, nil)

	result, err := s.ScrapeSite(context.Background(), cfg.Key, RunOptions{Category: "desserts", DryRun: true})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 2, result.Processed)
	assert.Zero(t, result.Created)
	assert.Empty(t, repo.recipes)
}

func TestScrapeSite_LimitCapsTargets(t *testing.T) {
	_, cfg := testSite(t)
	repo := newMemoryRepo()
	s := newTestScraper(t, cfg, repo, nil)

	result, err := s.ScrapeSite(context.Background(), cfg.Key, RunOptions{Category: "desserts", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created+result.Updated+result.Skipped+result.Failed)
}

func TestScrapeSite_UnknownSite(t *testing.T) {
	s := newTestScraper(t, SiteConfig{Key: "known", Enabled: true}, newMemoryRepo(), nil)

	_, err := s.ScrapeSite(context.Background(), "unknown", RunOptions{})
	require.ErrorIs(t, err, ErrSiteNotFound)
}

func TestScrapeSite_DisabledSite(t *testing.T) {
	cfg := SiteConfig{Key: "paused", Enabled: false}
	s := newTestScraper(t, cfg, newMemoryRepo(), nil)

	_, err := s.ScrapeSite(context.Background(), "paused", RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestScrapeSite_NestedCategoryPath(t *testing.T) {
	_, cfg := testSite(t)
	repo := newMemoryRepo()
	s := newTestScraper(t, cfg, repo, nil)

	// category_url template receives the raw path; the stored category name
	// uses hyphens.
	result, err := s.ScrapeSite(context.Background(), cfg.Key, RunOptions{
		Category: "desserts/pies",
		StartURL: cfg.StartURL("desserts"),
	})
	require.NoError(t, err)
	assert.Equal(t, "desserts-pies", result.Category)

	author := repo.authors[cfg.Name]
	_, ok := repo.categories[fmt.Sprintf("%d/desserts-pies", author.ID)]
	assert.True(t, ok)
}

func TestScrapeSite_ConcurrentWorkers(t *testing.T) {
	_, cfg := testSite(t)
	repo := newMemoryRepo()
	s := newTestScraper(t, cfg, repo, nil)

	result, err := s.ScrapeSite(context.Background(), cfg.Key, RunOptions{Category: "desserts", Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Len(t, repo.recipes, 2)
}

func TestScrapeAllSites_SkipsDisabled(t *testing.T) {
	_, enabled := testSite(t)
	disabled := SiteConfig{Key: "paused", Name: "Paused", Enabled: false}

	registry := NewRegistry([]SiteConfig{enabled, disabled})
	fetcher := NewFetcher(FetcherOptions{}, zerolog.Nop())
	s := NewScraper(registry, fetcher, 0, newMemoryRepo(), nil, zerolog.Nop())

	results, err := s.ScrapeAllSites(context.Background(), RunOptions{Category: "desserts"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, enabled.Key, results[0].SiteKey)
}
