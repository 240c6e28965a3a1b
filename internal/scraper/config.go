package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrSiteNotFound is returned by Registry.Get for an unknown site key. This is
// a configuration error and fatal at startup, never a per-record condition.
var ErrSiteNotFound = errors.New("site not found")

// Value selector kinds. Some sites render ratings as element text, others
// stash the number in a data attribute.
const (
	KindText = "text"
	KindAttr = "attr"
)

// Instruction extraction variants. VariantNestedSpans handles sites whose
// instruction list items wrap each line in nested spans instead of plain text.
const (
	VariantDefault     = ""
	VariantNestedSpans = "nested_spans"
)

// SiteConfig defines one scrape source loaded from a YAML config file.
type SiteConfig struct {
	Key         string      `yaml:"key"`
	Name        string      `yaml:"name"`
	WebsiteLink string      `yaml:"website_link"`
	CategoryURL string      `yaml:"category_url"` // template with a {category} placeholder
	Enabled     bool        `yaml:"enabled"`
	MaxPages    int         `yaml:"max_pages"`
	Notes       string      `yaml:"notes,omitempty"`
	Selectors   SelectorSet `yaml:"selectors"`
}

// SelectorSet holds the CSS selectors that parameterize extraction for one
// site.
type SelectorSet struct {
	Links       string `yaml:"links"`    // recipe anchors on listing pages
	NextBtn     string `yaml:"next_btn"` // pagination-next control
	MainRecipe  string `yaml:"main_recipe_class"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	PrepTime    string `yaml:"prep_time"`
	CookTime    string `yaml:"cook_time"`
	TotalTime   string `yaml:"total_time"`
	Servings    string `yaml:"servings"`

	Rating     ValueSelector `yaml:"rating"`
	NumReviews ValueSelector `yaml:"num_reviews"`

	Ingredients  SectionSelector `yaml:"ingredients"`
	Instructions SectionSelector `yaml:"instructions"`
	Notes        SectionSelector `yaml:"notes"`

	Images string `yaml:"images"`
}

// ValueSelector reads a numeric value either from element text (kind: text) or
// from a named attribute (kind: attr).
type ValueSelector struct {
	Selector string `yaml:"selector"`
	Kind     string `yaml:"kind"`
	Attr     string `yaml:"attr,omitempty"`
}

// SectionSelector describes one sectioned collection (ingredients,
// instructions, notes): a repeated section container, an optional per-section
// title element, and a nested list container. DirectItems selects between
// direct <li> children and a descendant traversal for sites with irregular
// markup.
type SectionSelector struct {
	Section      string `yaml:"section"`
	SectionTitle string `yaml:"section_title,omitempty"`
	List         string `yaml:"list"`
	DirectItems  bool   `yaml:"direct_items"`
	Variant      string `yaml:"variant,omitempty"`
}

// StartURL expands the category URL template for the given category path.
func (c SiteConfig) StartURL(category string) string {
	return strings.ReplaceAll(c.CategoryURL, "{category}", category)
}

// DefaultSiteConfig returns a SiteConfig with defaults applied.
func DefaultSiteConfig() SiteConfig {
	return SiteConfig{
		Enabled:  true,
		MaxPages: 50,
	}
}

// ValidateConfig validates a SiteConfig and returns an error describing all
// problems found, or nil if the config is valid.
func ValidateConfig(cfg SiteConfig) error {
	var errs []string

	if strings.TrimSpace(cfg.Key) == "" {
		errs = append(errs, "key: required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		errs = append(errs, "name: required")
	}

	if strings.TrimSpace(cfg.WebsiteLink) == "" {
		errs = append(errs, "website_link: required")
	} else {
		u, err := url.Parse(cfg.WebsiteLink)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("website_link: must be a valid http/https URL, got %q", cfg.WebsiteLink))
		}
	}

	if cfg.MaxPages < 0 {
		errs = append(errs, fmt.Sprintf("max_pages: must be >= 0, got %d", cfg.MaxPages))
	}

	if strings.TrimSpace(cfg.Selectors.Links) == "" {
		errs = append(errs, "selectors.links: required")
	}
	if strings.TrimSpace(cfg.Selectors.MainRecipe) == "" {
		errs = append(errs, "selectors.main_recipe_class: required")
	}
	if strings.TrimSpace(cfg.Selectors.Title) == "" {
		errs = append(errs, "selectors.title: required")
	}

	errs = append(errs, validateValueSelector("rating", cfg.Selectors.Rating)...)
	errs = append(errs, validateValueSelector("num_reviews", cfg.Selectors.NumReviews)...)

	switch cfg.Selectors.Instructions.Variant {
	case VariantDefault, VariantNestedSpans:
	default:
		errs = append(errs, fmt.Sprintf("selectors.instructions.variant: unknown variant %q", cfg.Selectors.Instructions.Variant))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateValueSelector(field string, v ValueSelector) []string {
	if v.Selector == "" {
		return nil // optional, value defaults to zero
	}
	var errs []string
	switch v.Kind {
	case KindText:
	case KindAttr:
		if strings.TrimSpace(v.Attr) == "" {
			errs = append(errs, fmt.Sprintf("selectors.%s.attr: required for kind attr", field))
		}
	default:
		errs = append(errs, fmt.Sprintf("selectors.%s.kind: must be text or attr, got %q", field, v.Kind))
	}
	return errs
}

// Registry maps site keys to validated SiteConfigs. It is built once at
// startup and never mutated afterwards.
type Registry struct {
	sites map[string]SiteConfig
}

// NewRegistry builds a Registry from the given configs.
func NewRegistry(configs []SiteConfig) *Registry {
	sites := make(map[string]SiteConfig, len(configs))
	for _, cfg := range configs {
		sites[cfg.Key] = cfg
	}
	return &Registry{sites: sites}
}

// Get returns the config for key, or ErrSiteNotFound.
func (r *Registry) Get(key string) (SiteConfig, error) {
	cfg, ok := r.sites[key]
	if !ok {
		return SiteConfig{}, fmt.Errorf("%w: %q", ErrSiteNotFound, key)
	}
	return cfg, nil
}

// All returns every config ordered by key.
func (r *Registry) All() []SiteConfig {
	configs := make([]SiteConfig, 0, len(r.sites))
	for _, cfg := range r.sites {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Key < configs[j].Key })
	return configs
}

// LoadRegistry reads all site configs from dir into a Registry.
func LoadRegistry(dir string) (*Registry, error) {
	configs, err := LoadSiteConfigs(dir)
	if err != nil {
		return nil, err
	}
	return NewRegistry(configs), nil
}

// LoadSiteConfigs reads all *.yaml files from dir (skipping files starting
// with "_"), parses each into a SiteConfig with defaults applied, validates
// each config, and returns the slice of valid configs. If any config is
// invalid an error is returned that includes the file path and field errors.
// A non-existent directory returns an empty slice with no error.
func LoadSiteConfigs(dir string) ([]SiteConfig, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []SiteConfig{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading site config dir %s: %w", dir, err)
	}

	var configs []SiteConfig
	var validationErrors []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "_") {
			continue
		}
		if filepath.Ext(name) != ".yaml" {
			continue
		}

		filePath := filepath.Join(dir, name)
		cfg, err := loadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", filePath, err)
		}

		if err := ValidateConfig(cfg); err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("%s: %s", filePath, err.Error()))
			continue
		}
		configs = append(configs, cfg)
	}

	if len(validationErrors) > 0 {
		return configs, fmt.Errorf("invalid site configs:\n  %s", strings.Join(validationErrors, "\n  "))
	}
	return configs, nil
}

// LoadSiteConfig reads a single YAML site config file, applies defaults, and
// validates it. Intended for CLI commands that accept an explicit config path.
func LoadSiteConfig(path string) (SiteConfig, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return SiteConfig{}, fmt.Errorf("loading %s: %w", path, err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return SiteConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// loadFile reads a single YAML site config file and applies defaults.
func loadFile(path string) (SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SiteConfig{}, err
	}

	// Start from defaults so zero-value booleans and ints are set properly.
	cfg := DefaultSiteConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SiteConfig{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if cfg.MaxPages == 0 {
		cfg.MaxPages = 50
	}

	return cfg, nil
}
