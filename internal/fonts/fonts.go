// Package fonts holds the embedded Go fonts used to measure and draw ticket text.
package fonts

import (
	"fmt"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	parseOnce sync.Once
	regular   *opentype.Font
	bold      *opentype.Font
	parseErr  error

	facesMu sync.Mutex
	faces   = map[faceKey]font.Face{}
)

const (
	// sizeStep is the granularity faces are cached at.
	sizeStep = 0.5
	maxFaces = 64
)

type faceKey struct {
	size float64
	bold bool
}

func load() error {
	parseOnce.Do(func() {
		if regular, parseErr = opentype.Parse(goregular.TTF); parseErr != nil {
			return
		}
		bold, parseErr = opentype.Parse(gobold.TTF)
	})
	return parseErr
}

// Face returns a cached face at size pixels (72 DPI, so points == pixels).
// Sizes are rounded to the nearest half pixel and the cache is reset once it
// holds maxFaces entries.
func Face(size float64, isBold bool) (font.Face, error) {
	if err := load(); err != nil {
		return nil, fmt.Errorf("parse fonts: %w", err)
	}

	size = RoundSize(size)
	key := faceKey{size: size, bold: isBold}

	facesMu.Lock()
	defer facesMu.Unlock()

	if f, ok := faces[key]; ok {
		return f, nil
	}

	src := regular
	if isBold {
		src = bold
	}

	f, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("new face %.1f: %w", size, err)
	}

	if len(faces) >= maxFaces {
		clear(faces)
	}
	faces[key] = f
	return f, nil
}

// RoundSize snaps size to the cache granularity. Sizes below one step are
// raised to it.
func RoundSize(size float64) float64 {
	return max(math.Round(size/sizeStep)*sizeStep, sizeStep)
}

// cached reports how many faces are held.
func cached() int {
	facesMu.Lock()
	defer facesMu.Unlock()
	return len(faces)
}

// Measure returns the advance width of text in pixels. Faces are shared, so
// callers must not measure and draw with the same face concurrently outside
// this package.
func Measure(text string, size float64, isBold bool) float64 {
	f, err := Face(size, isBold)
	if err != nil {
		// The fonts are embedded; fall back to an average glyph width.
		return float64(len([]rune(text))) * size * 0.55
	}

	facesMu.Lock()
	defer facesMu.Unlock()

	return fixedToFloat(font.MeasureString(f, text))
}

// Lock serialises use of a face obtained from Face with Measure calls.
func Lock() func() {
	facesMu.Lock()
	return facesMu.Unlock
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
