// Package palette extracts dominant colors from book cover art using
// k-means clustering over a downsampled copy of the image.
package palette

import (
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/shakogegia/noira/internal/logger"
)

const (
	// sampleSize is the edge length covers are downsampled to before
	// clustering. Clustering cost grows with pixel count, and 150x150
	// retains plenty of color information for a palette.
	sampleSize = 150

	// minBrightness and maxBrightness bound the pixels considered for
	// clustering. Near-black and near-white pixels are usually borders,
	// text, or compression artifacts and would dominate the clusters.
	minBrightness = 0.1
	maxBrightness = 0.95

	iterations = 10
)

// ErrNoUsableColors is returned when every pixel of the image falls
// outside the brightness bounds.
var ErrNoUsableColors = errors.New("image contains no usable colors")

// Swatch is a cluster center together with the share of sampled pixels
// it represents.
type Swatch struct {
	Color      colorful.Color
	Population float64
}

// Hex returns the swatch color as a #rrggbb string.
func (s Swatch) Hex() string {
	return s.Color.Hex()
}

// Palette holds the colors extracted from a single image, grouped the
// way UI surfaces consume them.
type Palette struct {
	// Prominent lists cluster centers ordered by population.
	Prominent []Swatch
	// Vibrant lists saturated mid-brightness swatches, most saturated first.
	Vibrant []Swatch
	// Muted lists soft low-saturation swatches, brightest first.
	Muted []Swatch
}

// Colors returns up to 5 prominent, 3 vibrant, and 3 muted swatches in
// that order, the set a cover-driven background gradient is built from.
func (p Palette) Colors() []Swatch {
	out := make([]Swatch, 0, 11)
	out = append(out, capSwatches(p.Prominent, 5)...)
	out = append(out, capSwatches(p.Vibrant, 3)...)
	out = append(out, capSwatches(p.Muted, 3)...)
	return out
}

// Average returns the population-weighted mean of the prominent swatches.
func (p Palette) Average() colorful.Color {
	if len(p.Prominent) == 0 {
		return colorful.Color{}
	}
	var r, g, b, total float64
	for _, s := range p.Prominent {
		r += s.Color.R * s.Population
		g += s.Color.G * s.Population
		b += s.Color.B * s.Population
		total += s.Population
	}
	return colorful.Color{R: r / total, G: g / total, B: b / total}
}

// Extractor runs color extraction with a fixed cluster count.
type Extractor struct {
	clusters int
	logger   *logger.Logger
}

// NewExtractor creates an extractor producing at most clusters colors.
// Values below 1 fall back to 8.
func NewExtractor(clusters int, log *logger.Logger) *Extractor {
	if clusters < 1 {
		clusters = 8
	}
	return &Extractor{
		clusters: clusters,
		logger:   log.ForComponent("palette"),
	}
}

// Extract decodes an image from r and returns its palette.
func (e *Extractor) Extract(r io.Reader) (Palette, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return Palette{}, err
	}
	return e.ExtractImage(img)
}

// ExtractImage returns the palette of an already-decoded image.
func (e *Extractor) ExtractImage(img image.Image) (Palette, error) {
	pixels := samplePixels(img)
	if len(pixels) == 0 {
		return Palette{}, ErrNoUsableColors
	}

	swatches := cluster(pixels, e.clusters)

	p := Palette{Prominent: swatches}
	for _, s := range swatches {
		_, sat, val := s.Color.Hsv()
		if sat > 0.4 && val > 0.3 && val < 0.9 {
			p.Vibrant = append(p.Vibrant, s)
		}
		if sat >= 0.15 && sat <= 0.5 && val > 0.2 {
			p.Muted = append(p.Muted, s)
		}
	}
	sort.SliceStable(p.Vibrant, func(i, j int) bool {
		_, si, _ := p.Vibrant[i].Color.Hsv()
		_, sj, _ := p.Vibrant[j].Color.Hsv()
		return si > sj
	})
	sort.SliceStable(p.Muted, func(i, j int) bool {
		_, _, vi := p.Muted[i].Color.Hsv()
		_, _, vj := p.Muted[j].Color.Hsv()
		return vi > vj
	})

	e.logger.Debug().
		Int("pixels", len(pixels)).
		Int("prominent", len(p.Prominent)).
		Int("vibrant", len(p.Vibrant)).
		Int("muted", len(p.Muted)).
		Msg("Extracted palette")

	return p, nil
}

// samplePixels downsamples the image to at most sampleSize on each edge
// using nearest-neighbor and drops pixels outside the brightness bounds.
func samplePixels(img image.Image) []colorful.Color {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	sw, sh := w, h
	if sw > sampleSize {
		sw = sampleSize
	}
	if sh > sampleSize {
		sh = sampleSize
	}

	pixels := make([]colorful.Color, 0, sw*sh)
	for y := 0; y < sh; y++ {
		srcY := bounds.Min.Y + y*h/sh
		for x := 0; x < sw; x++ {
			srcX := bounds.Min.X + x*w/sw
			c, ok := colorful.MakeColor(img.At(srcX, srcY))
			if !ok {
				// fully transparent pixel
				continue
			}
			if v := brightness(c); v < minBrightness || v > maxBrightness {
				continue
			}
			pixels = append(pixels, c)
		}
	}
	return pixels
}

func brightness(c colorful.Color) float64 {
	_, _, v := c.Hsv()
	return v
}

// cluster runs k-means over the sampled pixels. Centroids are seeded at
// a fixed stride through the sample so runs are deterministic for a
// given image.
func cluster(pixels []colorful.Color, k int) []Swatch {
	if k > len(pixels) {
		k = len(pixels)
	}

	centroids := make([]colorful.Color, k)
	stride := len(pixels) / k
	for i := range centroids {
		centroids[i] = pixels[i*stride]
	}

	assignments := make([]int, len(pixels))
	for iter := 0; iter < iterations; iter++ {
		changed := false
		for i, px := range pixels {
			best := 0
			bestDist := math.MaxFloat64
			for j, c := range centroids {
				if d := px.DistanceRgb(c); d < bestDist {
					bestDist = d
					best = j
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		sums := make([][3]float64, k)
		counts := make([]int, k)
		for i, px := range pixels {
			a := assignments[i]
			sums[a][0] += px.R
			sums[a][1] += px.G
			sums[a][2] += px.B
			counts[a]++
		}
		for j := range centroids {
			if counts[j] == 0 {
				continue
			}
			n := float64(counts[j])
			centroids[j] = colorful.Color{
				R: sums[j][0] / n,
				G: sums[j][1] / n,
				B: sums[j][2] / n,
			}
		}

		if !changed && iter > 0 {
			break
		}
	}

	counts := make([]int, k)
	for _, a := range assignments {
		counts[a]++
	}

	swatches := make([]Swatch, 0, k)
	for j, c := range centroids {
		if counts[j] == 0 {
			continue
		}
		swatches = append(swatches, Swatch{
			Color:      c.Clamped(),
			Population: float64(counts[j]) / float64(len(pixels)),
		})
	}
	sort.SliceStable(swatches, func(i, j int) bool {
		return swatches[i].Population > swatches[j].Population
	})
	return swatches
}

func capSwatches(s []Swatch, n int) []Swatch {
	if len(s) > n {
		return s[:n]
	}
	return s
}
