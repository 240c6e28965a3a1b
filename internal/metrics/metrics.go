package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all bakeshelf metrics
const namespace = "bakeshelf"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Scrape pipeline metrics. Labeled by site key so one run over several sites
// stays distinguishable.
var (
	PagesFetched = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_pages_fetched_total",
			Help:      "Total number of pages fetched (listing and detail)",
		},
		[]string{"site"},
	)

	FetchErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_fetch_errors_total",
			Help:      "Total number of page fetches that failed after retries",
		},
		[]string{"site"},
	)

	RecipesCreated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_recipes_created_total",
			Help:      "Total number of new recipes inserted",
		},
		[]string{"site"},
	)

	RecipesUpdated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_recipes_updated_total",
			Help:      "Total number of existing recipes overwritten",
		},
		[]string{"site"},
	)

	RecipesSkipped = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_recipes_skipped_total",
			Help:      "Total number of pages skipped as non-recipe pages",
		},
		[]string{"site"},
	)

	ImagesStored = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_images_stored_total",
			Help:      "Total number of recipe images downloaded and stored",
		},
		[]string{"site"},
	)

	RunDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_run_duration_seconds",
			Help:      "Duration of a full scrape run in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"site"},
	)
)
