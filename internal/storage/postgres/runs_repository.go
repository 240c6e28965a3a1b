package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/bakeshelf/server/internal/scraper"
)

var _ scraper.RunRecorder = (*ScrapeRunRepository)(nil)

// ScrapeRunRepository records scrape run lifecycle rows. Run IDs are ULIDs so
// they sort by start time.
type ScrapeRunRepository struct {
	pool *pgxpool.Pool
}

func NewScrapeRunRepository(pool *pgxpool.Pool) *ScrapeRunRepository {
	return &ScrapeRunRepository{pool: pool}
}

func (r *ScrapeRunRepository) StartRun(ctx context.Context, siteKey, category string) (string, error) {
	runID := ulid.Make().String()

	_, err := r.pool.Exec(ctx, `
INSERT INTO scrape_runs (id, site_key, category)
VALUES ($1, $2, $3)
`, runID, siteKey, category)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return runID, nil
}

func (r *ScrapeRunRepository) FinishRun(ctx context.Context, runID string, result scraper.RunResult) error {
	_, err := r.pool.Exec(ctx, `
UPDATE scrape_runs
   SET finished_at = now(),
       urls_found = $2,
       recipes_created = $3,
       recipes_updated = $4,
       recipes_skipped = $5,
       recipes_failed = $6
 WHERE id = $1
`, runID, result.URLsFound, result.Created, result.Updated, result.Skipped, result.Failed)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (r *ScrapeRunRepository) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}

	_, err := r.pool.Exec(ctx, `
UPDATE scrape_runs
   SET finished_at = now(), error_message = $2
 WHERE id = $1
`, runID, msg)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return nil
}
