package recipes

import "time"

// Author is the owner of scraped recipes. One author per configured site in
// practice, matched by name.
type Author struct {
	ID          int64
	Name        string
	WebsiteLink string
}

// Category groups recipes per author, e.g. "desserts-pies". Many-to-many with
// Recipe.
type Category struct {
	ID       int64
	Name     string
	AuthorID int64
}

// Recipe is a scraped recipe row. The natural key used for upsert matching is
// (AuthorID, Slug), never the surrogate ID.
type Recipe struct {
	ID          int64
	AuthorID    int64
	Slug        string
	Title       string
	Link        string
	Rating      float64
	NumReviews  int
	Description string
	PrepTime    string
	CookTime    string
	TotalTime   string
	Servings    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IngredientList is one named ingredient section ("for the crust"); Title is
// empty for recipes with a single unnamed section. Item order is semantically
// meaningful and must survive storage round trips.
type IngredientList struct {
	Title string
	Items []string
}

// InstructionList mirrors IngredientList for instruction steps.
type InstructionList struct {
	Title string
	Steps []string
}

// Image is the representative image stored for a recipe. At most one is
// persisted per recipe by convention.
type Image struct {
	ID        int64
	RecipeID  int64
	Name      string
	SourceURL string
	Data      []byte
}

// RecipeInput is the normalized output of the detail extractor, ready for the
// upsert engine. Times and servings stay free-text to preserve the source
// site's formatting.
type RecipeInput struct {
	Title       string
	Link        string
	Slug        string
	Rating      float64
	NumReviews  int
	Description string
	PrepTime    string
	CookTime    string
	TotalTime   string
	Servings    string

	Ingredients  []IngredientList
	Instructions []InstructionList
	Notes        []string

	// Candidate image URLs in document order, https only.
	ImageURLs []string
}

// RecipeCreateParams carries all scalar fields plus the natural key.
type RecipeCreateParams struct {
	AuthorID    int64
	Slug        string
	Title       string
	Link        string
	Rating      float64
	NumReviews  int
	Description string
	PrepTime    string
	CookTime    string
	TotalTime   string
	Servings    string
}

// RecipeUpdateParams overwrites every mutable scalar field of an existing
// recipe. A rescrape always replaces stale values, it never merges.
type RecipeUpdateParams struct {
	Title       string
	Link        string
	Rating      float64
	NumReviews  int
	Description string
	PrepTime    string
	CookTime    string
	TotalTime   string
	Servings    string
}

// ImageCreateParams stores downloaded image bytes linked to a recipe.
type ImageCreateParams struct {
	RecipeID  int64
	Name      string
	SourceURL string
	Data      []byte
}
