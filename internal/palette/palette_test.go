package palette

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shakogegia/noira/internal/logger"
)

// testImage fills vertical bands with the given colors.
func testImage(w, h int, bands ...color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	bandWidth := w / len(bands)
	for x := 0; x < w; x++ {
		band := x / bandWidth
		if band >= len(bands) {
			band = len(bands) - 1
		}
		for y := 0; y < h; y++ {
			img.Set(x, y, bands[band])
		}
	}
	return img
}

func TestExtractImageProminentOrder(t *testing.T) {
	// Two thirds red, one third blue: red must come out first.
	img := testImage(90, 30,
		color.RGBA{R: 200, A: 255},
		color.RGBA{R: 200, A: 255},
		color.RGBA{B: 200, A: 255},
	)

	ext := NewExtractor(4, logger.Get())
	p, err := ext.ExtractImage(img)
	require.NoError(t, err)
	require.NotEmpty(t, p.Prominent)

	first := p.Prominent[0]
	assert.Greater(t, first.Color.R, first.Color.B, "largest cluster should be red")
	assert.Greater(t, first.Population, 0.5)
}

func TestExtractImageFiltersExtremes(t *testing.T) {
	// Pure black and pure white fall outside the brightness bounds.
	img := testImage(60, 30,
		color.RGBA{A: 255},
		color.RGBA{R: 255, G: 255, B: 255, A: 255},
	)

	ext := NewExtractor(4, logger.Get())
	_, err := ext.ExtractImage(img)
	assert.ErrorIs(t, err, ErrNoUsableColors)
}

func TestExtractImageVibrantAndMuted(t *testing.T) {
	img := testImage(90, 30,
		color.RGBA{R: 180, G: 30, B: 30, A: 255},   // saturated mid-brightness: vibrant
		color.RGBA{R: 170, G: 150, B: 140, A: 255}, // low saturation, bright: muted
		color.RGBA{R: 160, G: 160, B: 100, A: 255}, // moderately saturated
	)

	ext := NewExtractor(4, logger.Get())
	p, err := ext.ExtractImage(img)
	require.NoError(t, err)

	require.NotEmpty(t, p.Vibrant)
	_, sat, val := p.Vibrant[0].Color.Hsv()
	assert.Greater(t, sat, 0.4)
	assert.Greater(t, val, 0.3)
	assert.Less(t, val, 0.9)

	require.NotEmpty(t, p.Muted)
	_, sat, val = p.Muted[0].Color.Hsv()
	assert.GreaterOrEqual(t, sat, 0.15)
	assert.LessOrEqual(t, sat, 0.5)
	assert.Greater(t, val, 0.2)
}

func TestColorsCaps(t *testing.T) {
	sw := func(n int) []Swatch {
		out := make([]Swatch, n)
		return out
	}
	p := Palette{Prominent: sw(8), Vibrant: sw(5), Muted: sw(5)}
	assert.Len(t, p.Colors(), 11, "5 prominent + 3 vibrant + 3 muted")

	p = Palette{Prominent: sw(2), Vibrant: sw(1)}
	assert.Len(t, p.Colors(), 3, "short groups are not padded")
}

func TestAverageWeighted(t *testing.T) {
	p := Palette{Prominent: []Swatch{
		{Color: mustHex(t, "#ff0000"), Population: 0.75},
		{Color: mustHex(t, "#0000ff"), Population: 0.25},
	}}
	avg := p.Average()
	assert.InDelta(t, 0.75, avg.R, 0.001)
	assert.InDelta(t, 0.25, avg.B, 0.001)
}

func TestExtractDecodesPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(40, 40, color.RGBA{R: 120, G: 60, B: 60, A: 255})))

	ext := NewExtractor(4, logger.Get())
	p, err := ext.Extract(&buf)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Prominent)
}

func TestExtractRejectsGarbage(t *testing.T) {
	ext := NewExtractor(4, logger.Get())
	_, err := ext.Extract(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func mustHex(t *testing.T, s string) colorful.Color {
	t.Helper()
	c, err := colorful.Hex(s)
	require.NoError(t, err)
	return c
}
