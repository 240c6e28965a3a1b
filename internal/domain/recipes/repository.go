package recipes

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup by natural key matches nothing.
var ErrNotFound = errors.New("recipe not found")

// Repository is the persistence contract for the ingestion pipeline. The
// postgres implementation lives in internal/storage/postgres.
type Repository interface {
	GetOrCreateAuthor(ctx context.Context, name, websiteLink string) (Author, error)
	GetOrCreateCategory(ctx context.Context, name string, authorID int64) (Category, error)

	// GetRecipeBySlug looks up a recipe by its (author, slug) natural key.
	// Returns ErrNotFound when no recipe matches.
	GetRecipeBySlug(ctx context.Context, authorID int64, slug string) (*Recipe, error)
	CreateRecipe(ctx context.Context, params RecipeCreateParams) (Recipe, error)
	UpdateRecipe(ctx context.Context, id int64, params RecipeUpdateParams) (Recipe, error)

	// AttachCategory links a recipe to a category with set semantics; attaching
	// an already-linked category is a no-op, not an error.
	AttachCategory(ctx context.Context, recipeID, categoryID int64) error

	// Replace* drop a recipe's existing child rows and insert the given ones in
	// order. Positions are assigned from slice order.
	ReplaceIngredients(ctx context.Context, recipeID int64, lists []IngredientList) error
	ReplaceInstructions(ctx context.Context, recipeID int64, lists []InstructionList) error
	ReplaceNotes(ctx context.Context, recipeID int64, notes []string) error

	ListIngredients(ctx context.Context, recipeID int64) ([]IngredientList, error)
	ListInstructions(ctx context.Context, recipeID int64) ([]InstructionList, error)
	ListNotes(ctx context.Context, recipeID int64) ([]string, error)

	HasImage(ctx context.Context, recipeID int64) (bool, error)
	CreateImage(ctx context.Context, params ImageCreateParams) error

	// WithTx runs fn against a transactional view of the repository; the
	// per-recipe write sequence commits atomically or not at all.
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
