package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bakeshelf/server/internal/domain/recipes"
)

var _ recipes.Repository = (*RecipeRepository)(nil)

// RecipeRepository is the pgx-backed implementation of recipes.Repository.
type RecipeRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewRecipeRepository(pool *pgxpool.Pool) *RecipeRepository {
	return &RecipeRepository{pool: pool}
}

func (r *RecipeRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

// WithTx runs fn against a transaction-bound copy of the repository. Nested
// calls reuse the outer transaction.
func (r *RecipeRepository) WithTx(ctx context.Context, fn func(context.Context, recipes.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	wrapped := &RecipeRepository{pool: r.pool, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *RecipeRepository) GetOrCreateAuthor(ctx context.Context, name, websiteLink string) (recipes.Author, error) {
	var author recipes.Author
	err := r.queryer().QueryRow(ctx, `
INSERT INTO authors (name, website_link)
VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET website_link = EXCLUDED.website_link
RETURNING id, name, website_link
`, name, websiteLink).Scan(&author.ID, &author.Name, &author.WebsiteLink)
	if err != nil {
		return recipes.Author{}, fmt.Errorf("get or create author: %w", err)
	}
	return author, nil
}

func (r *RecipeRepository) GetOrCreateCategory(ctx context.Context, name string, authorID int64) (recipes.Category, error) {
	var category recipes.Category
	// DO UPDATE instead of DO NOTHING so RETURNING always yields the row.
	err := r.queryer().QueryRow(ctx, `
INSERT INTO categories (name, author_id)
VALUES ($1, $2)
ON CONFLICT (name, author_id) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name, author_id
`, name, authorID).Scan(&category.ID, &category.Name, &category.AuthorID)
	if err != nil {
		return recipes.Category{}, fmt.Errorf("get or create category: %w", err)
	}
	return category, nil
}

const recipeColumns = `id, author_id, slug, title, link, rating, num_reviews,
       description, prep_time, cook_time, total_time, servings, created_at, updated_at`

func scanRecipe(row pgx.Row) (recipes.Recipe, error) {
	var (
		recipe    recipes.Recipe
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&recipe.ID,
		&recipe.AuthorID,
		&recipe.Slug,
		&recipe.Title,
		&recipe.Link,
		&recipe.Rating,
		&recipe.NumReviews,
		&recipe.Description,
		&recipe.PrepTime,
		&recipe.CookTime,
		&recipe.TotalTime,
		&recipe.Servings,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return recipes.Recipe{}, err
	}
	if createdAt.Valid {
		recipe.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		recipe.UpdatedAt = updatedAt.Time
	}
	return recipe, nil
}

func (r *RecipeRepository) GetRecipeBySlug(ctx context.Context, authorID int64, slug string) (*recipes.Recipe, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+recipeColumns+`
  FROM recipes
 WHERE author_id = $1 AND slug = $2
`, authorID, slug)

	recipe, err := scanRecipe(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, recipes.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipe by slug: %w", err)
	}
	return &recipe, nil
}

func (r *RecipeRepository) CreateRecipe(ctx context.Context, params recipes.RecipeCreateParams) (recipes.Recipe, error) {
	row := r.queryer().QueryRow(ctx, `
INSERT INTO recipes (author_id, slug, title, link, rating, num_reviews,
                     description, prep_time, cook_time, total_time, servings)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING `+recipeColumns+`
`,
		params.AuthorID,
		params.Slug,
		params.Title,
		params.Link,
		params.Rating,
		params.NumReviews,
		params.Description,
		params.PrepTime,
		params.CookTime,
		params.TotalTime,
		params.Servings,
	)

	recipe, err := scanRecipe(row)
	if err != nil {
		return recipes.Recipe{}, fmt.Errorf("create recipe: %w", err)
	}
	return recipe, nil
}

func (r *RecipeRepository) UpdateRecipe(ctx context.Context, id int64, params recipes.RecipeUpdateParams) (recipes.Recipe, error) {
	row := r.queryer().QueryRow(ctx, `
UPDATE recipes
   SET title = $2, link = $3, rating = $4, num_reviews = $5, description = $6,
       prep_time = $7, cook_time = $8, total_time = $9, servings = $10,
       updated_at = now()
 WHERE id = $1
RETURNING `+recipeColumns+`
`,
		id,
		params.Title,
		params.Link,
		params.Rating,
		params.NumReviews,
		params.Description,
		params.PrepTime,
		params.CookTime,
		params.TotalTime,
		params.Servings,
	)

	recipe, err := scanRecipe(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return recipes.Recipe{}, recipes.ErrNotFound
	}
	if err != nil {
		return recipes.Recipe{}, fmt.Errorf("update recipe: %w", err)
	}
	return recipe, nil
}

func (r *RecipeRepository) AttachCategory(ctx context.Context, recipeID, categoryID int64) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO recipe_categories (recipe_id, category_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`, recipeID, categoryID)
	if err != nil {
		return fmt.Errorf("attach category: %w", err)
	}
	return nil
}

func (r *RecipeRepository) ReplaceIngredients(ctx context.Context, recipeID int64, lists []recipes.IngredientList) error {
	q := r.queryer()

	if _, err := q.Exec(ctx, `DELETE FROM ingredient_lists WHERE recipe_id = $1`, recipeID); err != nil {
		return fmt.Errorf("delete ingredient lists: %w", err)
	}

	for pos, list := range lists {
		var listID int64
		err := q.QueryRow(ctx, `
INSERT INTO ingredient_lists (recipe_id, title, position)
VALUES ($1, $2, $3)
RETURNING id
`, recipeID, list.Title, pos).Scan(&listID)
		if err != nil {
			return fmt.Errorf("insert ingredient list: %w", err)
		}

		for itemPos, item := range list.Items {
			if _, err := q.Exec(ctx, `
INSERT INTO ingredients (ingredient_list_id, text, position)
VALUES ($1, $2, $3)
`, listID, item, itemPos); err != nil {
				return fmt.Errorf("insert ingredient: %w", err)
			}
		}
	}
	return nil
}

func (r *RecipeRepository) ReplaceInstructions(ctx context.Context, recipeID int64, lists []recipes.InstructionList) error {
	q := r.queryer()

	if _, err := q.Exec(ctx, `DELETE FROM instruction_lists WHERE recipe_id = $1`, recipeID); err != nil {
		return fmt.Errorf("delete instruction lists: %w", err)
	}

	for pos, list := range lists {
		var listID int64
		err := q.QueryRow(ctx, `
INSERT INTO instruction_lists (recipe_id, title, position)
VALUES ($1, $2, $3)
RETURNING id
`, recipeID, list.Title, pos).Scan(&listID)
		if err != nil {
			return fmt.Errorf("insert instruction list: %w", err)
		}

		for stepPos, step := range list.Steps {
			if _, err := q.Exec(ctx, `
INSERT INTO instructions (instruction_list_id, text, position)
VALUES ($1, $2, $3)
`, listID, step, stepPos); err != nil {
				return fmt.Errorf("insert instruction: %w", err)
			}
		}
	}
	return nil
}

func (r *RecipeRepository) ReplaceNotes(ctx context.Context, recipeID int64, notes []string) error {
	q := r.queryer()

	if _, err := q.Exec(ctx, `DELETE FROM notes WHERE recipe_id = $1`, recipeID); err != nil {
		return fmt.Errorf("delete notes: %w", err)
	}

	for pos, note := range notes {
		if _, err := q.Exec(ctx, `
INSERT INTO notes (recipe_id, text, position)
VALUES ($1, $2, $3)
`, recipeID, note, pos); err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
	}
	return nil
}

func (r *RecipeRepository) ListIngredients(ctx context.Context, recipeID int64) ([]recipes.IngredientList, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT il.id, il.title, i.text
  FROM ingredient_lists il
  LEFT JOIN ingredients i ON i.ingredient_list_id = il.id
 WHERE il.recipe_id = $1
 ORDER BY il.position ASC, i.position ASC
`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}
	defer rows.Close()

	return collectSections(rows, func(title string, items []string) recipes.IngredientList {
		return recipes.IngredientList{Title: title, Items: items}
	})
}

func (r *RecipeRepository) ListInstructions(ctx context.Context, recipeID int64) ([]recipes.InstructionList, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT il.id, il.title, i.text
  FROM instruction_lists il
  LEFT JOIN instructions i ON i.instruction_list_id = il.id
 WHERE il.recipe_id = $1
 ORDER BY il.position ASC, i.position ASC
`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("list instructions: %w", err)
	}
	defer rows.Close()

	return collectSections(rows, func(title string, items []string) recipes.InstructionList {
		return recipes.InstructionList{Title: title, Steps: items}
	})
}

func (r *RecipeRepository) ListNotes(ctx context.Context, recipeID int64) ([]string, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT text FROM notes WHERE recipe_id = $1 ORDER BY position ASC
`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, text)
	}
	return notes, rows.Err()
}

func (r *RecipeRepository) HasImage(ctx context.Context, recipeID int64) (bool, error) {
	var exists bool
	err := r.queryer().QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM images WHERE recipe_id = $1)
`, recipeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check image: %w", err)
	}
	return exists, nil
}

func (r *RecipeRepository) CreateImage(ctx context.Context, params recipes.ImageCreateParams) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO images (recipe_id, name, source_url, data)
VALUES ($1, $2, $3, $4)
`, params.RecipeID, params.Name, params.SourceURL, params.Data)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	return nil
}

// collectSections regroups (list id, title, item) join rows back into ordered
// sections. A NULL item means the list has no entries.
func collectSections[T any](rows pgx.Rows, build func(title string, items []string) T) ([]T, error) {
	var (
		result    []T
		current   []string
		currID    int64
		currTitle string
		started   bool
	)

	flush := func() {
		if started {
			result = append(result, build(currTitle, current))
		}
	}

	for rows.Next() {
		var (
			listID int64
			title  string
			item   *string
		)
		if err := rows.Scan(&listID, &title, &item); err != nil {
			return nil, fmt.Errorf("scan section row: %w", err)
		}
		if !started || listID != currID {
			flush()
			started = true
			currID = listID
			currTitle = title
			current = nil
		}
		if item != nil {
			current = append(current, *item)
		}
	}
	flush()

	return result, rows.Err()
}
