package scraper

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"net/url"
	"path"
	"strings"
	"unicode"

	// Register decoders for the formats recipe blogs actually serve.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/rs/zerolog"

	"github.com/bakeshelf/server/internal/domain/recipes"
	"github.com/bakeshelf/server/internal/metrics"
)

const jpegQuality = 85

// ImageResolver downloads at most one representative image per recipe,
// normalizes it to an RGB JPEG, and persists it under a deterministic,
// site-namespaced filename. A recipe that already owns an image is left
// untouched, so rescrapes never re-download.
type ImageResolver struct {
	fetcher *Fetcher
	repo    recipes.Repository
	logger  zerolog.Logger
}

func NewImageResolver(fetcher *Fetcher, repo recipes.Repository, logger zerolog.Logger) *ImageResolver {
	return &ImageResolver{fetcher: fetcher, repo: repo, logger: logger}
}

// Resolve tries candidate URLs in order until one downloads and decodes; the
// first success is stored and the rest are ignored. A malformed candidate is
// skipped, never fatal for the recipe.
func (r *ImageResolver) Resolve(ctx context.Context, recipe recipes.Recipe, site SiteConfig, candidates []string) error {
	if len(candidates) == 0 {
		return nil
	}

	has, err := r.repo.HasImage(ctx, recipe.ID)
	if err != nil {
		return fmt.Errorf("check existing image for %q: %w", recipe.Slug, err)
	}
	if has {
		return nil
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := r.fetcher.Fetch(ctx, candidate)
		if err != nil {
			r.logger.Warn().Err(err).Str("url", candidate).Msg("image: download failed, trying next candidate")
			continue
		}

		encoded, err := normalizeImage(data)
		if err != nil {
			r.logger.Warn().Err(err).Str("url", candidate).Msg("image: undecodable, trying next candidate")
			continue
		}

		name := imageFilename(site.Name, candidate)
		if err := r.repo.CreateImage(ctx, recipes.ImageCreateParams{
			RecipeID:  recipe.ID,
			Name:      name,
			SourceURL: candidate,
			Data:      encoded,
		}); err != nil {
			return fmt.Errorf("store image %q for %q: %w", name, recipe.Slug, err)
		}

		metrics.ImagesStored.WithLabelValues(site.Key).Inc()
		r.logger.Debug().Str("name", name).Str("slug", recipe.Slug).Msg("image: stored")
		return nil
	}

	return nil
}

// normalizeImage decodes raw bytes and re-encodes them as an RGB JPEG.
// Non-three-channel inputs (grayscale, palette, RGBA, CMYK) are redrawn onto
// an RGB canvas first.
func normalizeImage(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if _, ok := img.(*image.YCbCr); !ok {
		rgb := image.NewRGBA(img.Bounds())
		draw.Draw(rgb, rgb.Bounds(), img, img.Bounds().Min, draw.Src)
		img = rgb
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// imageFilename builds "{slugified-site-name}_{basename-sans-ext}{ext}" so
// stored files stay human-traceable and namespaced per site.
func imageFilename(siteName, imageURL string) string {
	base := path.Base(imageURL)
	if u, err := url.Parse(imageURL); err == nil && u.Path != "" {
		base = path.Base(u.Path)
	}
	ext := path.Ext(base)
	return fmt.Sprintf("%s_%s%s", Slugify(siteName), strings.TrimSuffix(base, ext), ext)
}

// Slugify lowercases s and collapses every run of non-alphanumeric characters
// into a single hyphen: "Sally's Baking Addiction" becomes
// "sallys-baking-addiction".
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case r == '\'':
			// drop apostrophes entirely
		default:
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
