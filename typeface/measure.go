package typeface

import (
	"math"
	"sync"
	"unicode"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
)

// Metrics yields theoretical rendered widths for one typeface. Widths are
// in points (pixels at 72 DPI), the same unit rasterizers use for a font
// size, so actual/theoretical ratios reduce to the document's render scale.
type Metrics interface {
	Name() string
	// Width returns the theoretical advance width of text at pointSize.
	Width(text string, pointSize float64) (float64, error)
}

// Measurer implements Metrics by shaping each distinct string once at
// 1000 units per em, caching the per-glyph advances in milli-em, and
// quantizing them to whole pixels at the requested size. The quantization
// mirrors hinted rasterization: it is what makes nearby point sizes
// produce measurably different width patterns.
type Measurer struct {
	face *Typeface

	mu     sync.Mutex
	shaper shaping.HarfbuzzShaper
	cache  map[string][]float64
}

// NewMeasurer returns a Metrics backed by the typeface. It is safe for
// concurrent use.
func NewMeasurer(face *Typeface) *Measurer {
	return &Measurer{face: face, cache: make(map[string][]float64)}
}

func (m *Measurer) Name() string { return m.face.Name() }

// Width returns the quantized advance width of text at pointSize.
// The empty string measures zero.
func (m *Measurer) Width(text string, pointSize float64) (float64, error) {
	if text == "" || pointSize <= 0 {
		return 0, nil
	}
	return quantizedSum(m.advances(text), pointSize), nil
}

func quantizedSum(advances []float64, pointSize float64) float64 {
	var total float64
	for _, adv := range advances {
		total += math.Round(adv * pointSize / 1000.0)
	}
	return total
}

// advances returns the per-glyph advances for text in milli-em (1/1000 of
// the em square), shaping on first use.
func (m *Measurer) advances(text string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.cache[text]; ok {
		return cached
	}

	runes := []rune(text)
	script := dominantScript(runes)
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: scriptDirection(script),
		Face:      m.face.face,
		Size:      fixed.Int26_6(1000 * 64),
		Script:    script,
		Language:  language.DefaultLanguage(),
	}
	output := m.shaper.Shape(input)

	advances := make([]float64, 0, len(output.Glyphs))
	for _, g := range output.Glyphs {
		advances = append(advances, float64(g.XAdvance)/64.0)
	}
	m.cache[text] = advances
	return advances
}

func scriptDirection(script language.Script) di.Direction {
	switch script {
	case language.Arabic, language.Hebrew:
		return di.DirectionRTL
	default:
		return di.DirectionLTR
	}
}

// dominantScript picks the script covering most runes. Candidate
// dictionaries are overwhelmingly Latin names, but scanned documents do
// carry Cyrillic, Greek, Hebrew and Arabic ones.
func dominantScript(runes []rune) language.Script {
	counts := make(map[language.Script]int)
	best := language.Latin
	maxCount := 0
	for _, r := range runes {
		var script language.Script
		switch {
		case unicode.Is(unicode.Latin, r):
			script = language.Latin
		case unicode.Is(unicode.Cyrillic, r):
			script = language.Cyrillic
		case unicode.Is(unicode.Greek, r):
			script = language.Greek
		case unicode.Is(unicode.Hebrew, r):
			script = language.Hebrew
		case unicode.Is(unicode.Arabic, r):
			script = language.Arabic
		default:
			continue
		}
		counts[script]++
		if counts[script] > maxCount {
			maxCount = counts[script]
			best = script
		}
	}
	return best
}
