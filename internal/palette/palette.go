// Package palette derives a representative accent color from a website's
// icon.
package palette

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/MrSnakeDoc/sitemeta/internal/domain"
)

// IconSource downloads icon bytes.
type IconSource interface {
	FetchIcon(ctx context.Context, iconURL string) ([]byte, error)
}

// Runner executes CPU bound work in a bounded pool.
type Runner interface {
	CPU(ctx context.Context, fn func(ctx context.Context) error) error
}

const (
	// sampleSide bounds the sampling grid so huge icons cost the same as small ones.
	sampleSide = 64
	// minAlpha skips mostly transparent pixels.
	minAlpha = 0x80
	// minSaturation separates accent buckets from greyscale ones.
	minSaturation = 0.25
)

// IconExtractor is a domain.PaletteExtractor that picks the dominant color
// of a website's favicon.
type IconExtractor struct {
	icons IconSource
	cpu   Runner
}

// NewIconExtractor builds an extractor. cpu may be nil, in which case
// decoding runs on the calling goroutine.
func NewIconExtractor(icons IconSource, cpu Runner) *IconExtractor {
	return &IconExtractor{icons: icons, cpu: cpu}
}

// Extract returns NoColor without error when the website has no icon or the
// icon has no opaque pixel. Download and decode failures are errors.
func (x *IconExtractor) Extract(ctx context.Context, website domain.Website) (domain.Color, error) {
	if website.FaviconURL == "" {
		return domain.NoColor, nil
	}

	data, err := x.icons.FetchIcon(ctx, website.FaviconURL)
	if err != nil {
		return domain.NoColor, fmt.Errorf("fetch icon: %w", err)
	}

	result := domain.NoColor
	decode := func(context.Context) error {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("decode icon %s: %w", website.FaviconURL, err)
		}
		result = Dominant(img)
		return nil
	}

	if x.cpu == nil {
		err = decode(ctx)
	} else {
		err = x.cpu.CPU(ctx, decode)
	}
	if err != nil {
		return domain.NoColor, err
	}
	return result, nil
}

type bucket struct {
	count   int
	r, g, b int
}

func (b bucket) average() (uint8, uint8, uint8) {
	return uint8(b.r / b.count), uint8(b.g / b.count), uint8(b.b / b.count)
}

// Dominant returns the most frequent saturated color of img, or the most
// frequent color at all when every bucket is greyscale. Pixels are grouped
// into 4-bit-per-channel buckets and the bucket average is returned.
func Dominant(img image.Image) domain.Color {
	bounds := img.Bounds()
	if bounds.Empty() {
		return domain.NoColor
	}

	stepX := max(1, bounds.Dx()/sampleSide)
	stepY := max(1, bounds.Dy()/sampleSide)

	buckets := make(map[uint16]*bucket)
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			px := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if px.A < minAlpha {
				continue
			}
			key := uint16(px.R>>4)<<8 | uint16(px.G>>4)<<4 | uint16(px.B>>4)
			b, ok := buckets[key]
			if !ok {
				b = &bucket{}
				buckets[key] = b
			}
			b.count++
			b.r += int(px.R)
			b.g += int(px.G)
			b.b += int(px.B)
		}
	}
	if len(buckets) == 0 {
		return domain.NoColor
	}

	var bestAny, bestSaturated *bucket
	var bestAnyKey, bestSatKey uint16
	for key, b := range buckets {
		if bestAny == nil || b.count > bestAny.count || (b.count == bestAny.count && key < bestAnyKey) {
			bestAny, bestAnyKey = b, key
		}
		if saturation(b.average()) < minSaturation {
			continue
		}
		if bestSaturated == nil || b.count > bestSaturated.count || (b.count == bestSaturated.count && key < bestSatKey) {
			bestSaturated, bestSatKey = b, key
		}
	}

	chosen := bestAny
	if bestSaturated != nil {
		chosen = bestSaturated
	}
	return domain.RGB(chosen.average())
}

// saturation is the HSV saturation of an RGB triple in [0, 1].
func saturation(r, g, b uint8) float64 {
	hi := max(r, g, b)
	lo := min(r, g, b)
	if hi == 0 {
		return 0
	}
	return float64(hi-lo) / float64(hi)
}
