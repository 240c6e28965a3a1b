package scraper

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/bakeshelf/server/internal/domain/recipes"
)

// ErrNotRecipePage signals that a fetched page carries no recipe markup (an ad
// page, a roundup post). The pipeline skips these and moves on.
var ErrNotRecipePage = errors.New("not a recipe page")

// bulletGlyph is the decorative checkbox character some recipe plugins prepend
// to every ingredient line.
const bulletGlyph = "▢"

// Extractor turns a recipe detail page into a normalized RecipeInput, driven
// entirely by the site's selector set. It is a pure function of (HTML, config);
// site quirks are expressed as config data, never as branches on a site name.
type Extractor struct {
	logger zerolog.Logger
}

func NewExtractor(logger zerolog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract parses html with cfg's selectors. It returns ErrNotRecipePage when
// the page's recipe marker matches nothing. Absent scalar fields come back as
// empty strings, absent numeric fields as zero.
func (e *Extractor) Extract(html []byte, cfg SiteConfig) (recipes.RecipeInput, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return recipes.RecipeInput{}, fmt.Errorf("parse html: %w", err)
	}

	sel := cfg.Selectors
	if doc.Find(sel.MainRecipe).Length() == 0 {
		return recipes.RecipeInput{}, ErrNotRecipePage
	}

	input := recipes.RecipeInput{
		Title:       firstText(doc, sel.Title),
		Description: firstText(doc, sel.Description),
		PrepTime:    firstText(doc, sel.PrepTime),
		CookTime:    firstText(doc, sel.CookTime),
		TotalTime:   firstText(doc, sel.TotalTime),
		Servings:    firstText(doc, sel.Servings),
	}

	input.Rating = e.numericValue(doc, sel.Rating, "rating")
	input.NumReviews = int(e.numericValue(doc, sel.NumReviews, "num_reviews"))

	for _, section := range e.extractSections(doc, sel.Ingredients, "ingredients") {
		input.Ingredients = append(input.Ingredients, recipes.IngredientList{
			Title: section.title,
			Items: section.items,
		})
	}

	for _, section := range e.extractSections(doc, sel.Instructions, "instructions") {
		input.Instructions = append(input.Instructions, recipes.InstructionList{
			Title: section.title,
			Steps: section.items,
		})
	}

	// Notes are only extracted when the site declares a notes selector.
	if sel.Notes.Section != "" {
		for _, section := range e.extractSections(doc, sel.Notes, "notes") {
			input.Notes = append(input.Notes, section.items...)
		}
	}

	input.ImageURLs = extractImageCandidates(doc, sel.Images)

	return input, nil
}

// firstText returns the trimmed text of the first element matching selector,
// or "" when the selector is empty or matches nothing.
func firstText(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	node := doc.Find(selector).First()
	if node.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(node.Text())
}

// numericValue reads a float per the selector's kind: attr reads the
// configured attribute of the first match, text parses the element text with
// empty treated as zero. Unparseable values are logged and default to zero.
func (e *Extractor) numericValue(doc *goquery.Document, v ValueSelector, field string) float64 {
	if v.Selector == "" {
		return 0
	}

	var raw string
	switch v.Kind {
	case KindAttr:
		raw, _ = doc.Find(v.Selector).First().Attr(v.Attr)
	default:
		raw = firstText(doc, v.Selector)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.logger.Warn().
			Str("field", field).
			Str("value", raw).
			Msg("extract: unparseable numeric value, defaulting to 0")
		return 0
	}
	return value
}

// section pairs a title with its item list during extraction.
type section struct {
	title string
	items []string
}

// extractSections implements the sectioned-collection pattern: every element
// matching sel.Section is one section container; per-section titles and item
// lists are collected separately and zipped positionally. When the counts
// disagree the extras are dropped, with a warning, because there is no safe
// way to tell which title belongs to which list.
func (e *Extractor) extractSections(doc *goquery.Document, sel SectionSelector, field string) []section {
	if sel.Section == "" || sel.List == "" {
		return nil
	}

	containers := doc.Find(sel.Section)

	var titles []string
	containers.Each(func(_ int, container *goquery.Selection) {
		if sel.SectionTitle != "" && container.Find(sel.SectionTitle).Length() > 0 {
			container.Find(sel.SectionTitle).Each(func(_ int, t *goquery.Selection) {
				titles = append(titles, strings.TrimSpace(t.Text()))
			})
			return
		}
		titles = append(titles, "")
	})

	var lists [][]string
	containers.Each(func(_ int, container *goquery.Selection) {
		matches := container.Find(sel.List)
		if !sel.DirectItems && matches.Length() > 0 && matches.Find("li").Length() == 0 {
			// No item elements anywhere: the matched elements are themselves
			// the items, e.g. notes rendered as bare paragraphs.
			var items []string
			matches.Each(func(_ int, el *goquery.Selection) {
				if text := cleanItemText(el.Text()); text != "" {
					items = append(items, text)
				}
			})
			lists = append(lists, items)
			return
		}
		matches.Each(func(_ int, list *goquery.Selection) {
			lists = append(lists, e.extractListItems(list, sel))
		})
	})

	if len(titles) != len(lists) {
		e.logger.Warn().
			Str("field", field).
			Int("titles", len(titles)).
			Int("lists", len(lists)).
			Msg("extract: section title/list count mismatch, dropping extras")
	}

	n := len(titles)
	if len(lists) < n {
		n = len(lists)
	}

	sections := make([]section, 0, n)
	for i := 0; i < n; i++ {
		sections = append(sections, section{title: titles[i], items: lists[i]})
	}
	return sections
}

// extractListItems pulls item texts out of one list container, honoring the
// site's traversal mode and extraction variant.
func (e *Extractor) extractListItems(list *goquery.Selection, sel SectionSelector) []string {
	var li *goquery.Selection
	if sel.DirectItems {
		li = list.ChildrenFiltered("li")
	} else {
		li = list.Find("li")
	}

	var items []string
	li.Each(func(_ int, item *goquery.Selection) {
		switch sel.Variant {
		case VariantNestedSpans:
			items = append(items, nestedSpanTexts(item)...)
		default:
			items = append(items, cleanItemText(item.Text()))
		}
	})
	return items
}

// nestedSpanTexts handles the markup variant where each instruction line lives
// in a span nested under the list item, sometimes behind an extra div and
// sometimes prefixed with a step number. Preference order: spans directly
// under the item's div, then spans directly under the item, then the div's
// whole text.
func nestedSpanTexts(item *goquery.Selection) []string {
	div := item.ChildrenFiltered("div").First()

	spans := div.ChildrenFiltered("span")
	if spans.Length() == 0 {
		spans = item.ChildrenFiltered("span")
	}
	if spans.Length() == 0 {
		text := cleanItemText(div.Text())
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var lines []string
	spans.Each(func(_ int, span *goquery.Selection) {
		lines = append(lines, stripStepPrefix(cleanItemText(span.Text())))
	})
	return lines
}

// stripStepPrefix removes a leading fixed-width step marker ("1. ") when the
// text starts with a digit.
func stripStepPrefix(text string) string {
	runes := []rune(text)
	if len(runes) > 3 && unicode.IsDigit(runes[0]) {
		return string(runes[3:])
	}
	return text
}

// cleanItemText trims whitespace and strips the decorative bullet glyph some
// sites prepend to list items.
func cleanItemText(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, bulletGlyph) {
		text = strings.TrimSpace(strings.TrimPrefix(text, bulletGlyph))
	}
	return text
}

// extractImageCandidates collects src attributes of matching images, keeping
// only absolute https sources, in document order.
func extractImageCandidates(doc *goquery.Document, selector string) []string {
	if selector == "" {
		return nil
	}
	var urls []string
	doc.Find(selector).Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok {
			return
		}
		if strings.HasPrefix(src, "https") {
			urls = append(urls, src)
		}
	})
	return urls
}

// SlugFromURL derives a recipe's slug from its URL path, matching the stored
// natural key: the path with every slash removed.
func SlugFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse recipe url %q: %w", rawURL, err)
	}
	slug := strings.ReplaceAll(u.Path, "/", "")
	return slug, nil
}
