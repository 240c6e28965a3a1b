package recipes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// SourceSite identifies the site a recipe was scraped from; it doubles as the
// author identity (one author per site).
type SourceSite struct {
	Name        string
	WebsiteLink string
}

// UpsertResult reports whether the upsert created a new recipe or overwrote an
// existing one.
type UpsertResult struct {
	Recipe  Recipe
	Created bool
}

// UpsertService reconciles extracted recipes against the store, keyed by the
// (author, slug) natural key.
type UpsertService struct {
	repo   Repository
	logger zerolog.Logger
}

func NewUpsertService(repo Repository, logger zerolog.Logger) *UpsertService {
	return &UpsertService{repo: repo, logger: logger}
}

// Upsert writes one extracted recipe inside a single transaction: get-or-create
// author and category, overwrite-or-create the recipe by natural key, attach
// the category, then replace all child collections. Rescraping the same page
// therefore converges to the same stored state instead of accumulating stale
// child rows.
func (s *UpsertService) Upsert(ctx context.Context, site SourceSite, category string, input RecipeInput) (UpsertResult, error) {
	if s == nil || s.repo == nil {
		return UpsertResult{}, errors.New("upsert: repository not configured")
	}
	if strings.TrimSpace(site.Name) == "" {
		return UpsertResult{}, errors.New("upsert: site name required")
	}
	if strings.TrimSpace(input.Slug) == "" {
		return UpsertResult{}, fmt.Errorf("upsert: empty slug for %q", input.Link)
	}

	var result UpsertResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		author, err := repo.GetOrCreateAuthor(ctx, site.Name, site.WebsiteLink)
		if err != nil {
			return fmt.Errorf("author %q: %w", site.Name, err)
		}

		recipe, created, err := upsertRecipeRow(ctx, repo, author.ID, input)
		if err != nil {
			return err
		}

		if strings.TrimSpace(category) != "" {
			cat, err := repo.GetOrCreateCategory(ctx, category, author.ID)
			if err != nil {
				return fmt.Errorf("category %q: %w", category, err)
			}
			if err := repo.AttachCategory(ctx, recipe.ID, cat.ID); err != nil {
				return fmt.Errorf("attach category %q: %w", category, err)
			}
		}

		if err := repo.ReplaceIngredients(ctx, recipe.ID, input.Ingredients); err != nil {
			return fmt.Errorf("ingredients for %q: %w", input.Slug, err)
		}
		if err := repo.ReplaceInstructions(ctx, recipe.ID, input.Instructions); err != nil {
			return fmt.Errorf("instructions for %q: %w", input.Slug, err)
		}
		if err := repo.ReplaceNotes(ctx, recipe.ID, input.Notes); err != nil {
			return fmt.Errorf("notes for %q: %w", input.Slug, err)
		}

		result = UpsertResult{Recipe: recipe, Created: created}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}

	s.logger.Debug().
		Str("slug", result.Recipe.Slug).
		Bool("created", result.Created).
		Msg("upsert: recipe written")
	return result, nil
}

// upsertRecipeRow overwrites every scalar field when the natural key already
// exists, otherwise inserts a fresh row.
func upsertRecipeRow(ctx context.Context, repo Repository, authorID int64, input RecipeInput) (Recipe, bool, error) {
	existing, err := repo.GetRecipeBySlug(ctx, authorID, input.Slug)
	switch {
	case err == nil:
		updated, err := repo.UpdateRecipe(ctx, existing.ID, RecipeUpdateParams{
			Title:       input.Title,
			Link:        input.Link,
			Rating:      input.Rating,
			NumReviews:  input.NumReviews,
			Description: input.Description,
			PrepTime:    input.PrepTime,
			CookTime:    input.CookTime,
			TotalTime:   input.TotalTime,
			Servings:    input.Servings,
		})
		if err != nil {
			return Recipe{}, false, fmt.Errorf("update recipe %q: %w", input.Slug, err)
		}
		return updated, false, nil

	case errors.Is(err, ErrNotFound):
		created, err := repo.CreateRecipe(ctx, RecipeCreateParams{
			AuthorID:    authorID,
			Slug:        input.Slug,
			Title:       input.Title,
			Link:        input.Link,
			Rating:      input.Rating,
			NumReviews:  input.NumReviews,
			Description: input.Description,
			PrepTime:    input.PrepTime,
			CookTime:    input.CookTime,
			TotalTime:   input.TotalTime,
			Servings:    input.Servings,
		})
		if err != nil {
			return Recipe{}, false, fmt.Errorf("create recipe %q: %w", input.Slug, err)
		}
		return created, true, nil

	default:
		return Recipe{}, false, fmt.Errorf("lookup recipe %q: %w", input.Slug, err)
	}
}
