package ocr

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mortenfj/unredactron/raster"
)

// Sample is one visible-text measurement used for render calibration: the
// token the engine read, its rendered width in page pixels, and the engine's
// confidence in the reading.
type Sample struct {
	Text       string
	WidthPx    float64
	Confidence float64
}

// SampleConfig filters recognized words down to measurements stable enough
// to calibrate against. Misread or clipped words poison the scale ratios,
// so the defaults are deliberately strict.
type SampleConfig struct {
	// ConfidenceFloor drops words the engine was unsure about (0..1).
	ConfidenceFloor float64
	// MinRunes and MaxRunes bound the token length. Single characters
	// carry almost no width signal; very long tokens are usually OCR
	// merge errors.
	MinRunes int
	MaxRunes int
	// MinWidthPx drops words too narrow to measure reliably.
	MinWidthPx float64
}

func DefaultSampleConfig() SampleConfig {
	return SampleConfig{
		ConfidenceFloor: 0.85,
		MinRunes:        4,
		MaxRunes:        20,
		MinWidthPx:      30,
	}
}

// SamplesFromResult filters one OCR result into calibration samples,
// preserving recognition order.
func SamplesFromResult(res Result, cfg SampleConfig) []Sample {
	samples := make([]Sample, 0, len(res.Words))
	for _, w := range res.Words {
		text := strings.TrimSpace(w.Text)
		n := utf8.RuneCountInString(text)
		if n < cfg.MinRunes || n > cfg.MaxRunes {
			continue
		}
		if w.Confidence < cfg.ConfidenceFloor {
			continue
		}
		if w.Bounds.Width <= cfg.MinWidthPx {
			continue
		}
		samples = append(samples, Sample{
			Text:       text,
			WidthPx:    w.Bounds.Width,
			Confidence: w.Confidence,
		})
	}
	return samples
}

// CollectSamples runs the engine over the pages and returns the accepted
// calibration samples in page order.
func CollectSamples(ctx context.Context, engine Engine, pages []*raster.Page, cfg SampleConfig, opts ...InputOption) ([]Sample, error) {
	inputs := make([]Input, 0, len(pages))
	for _, page := range pages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		in, err := InputFromPage(page, opts...)
		if err != nil {
			return nil, fmt.Errorf("build input for page %d: %w", page.Index, err)
		}
		inputs = append(inputs, in)
	}
	results, err := RecognizeAll(ctx, engine, inputs)
	if err != nil {
		return nil, err
	}
	var samples []Sample
	for _, res := range results {
		samples = append(samples, SamplesFromResult(res, cfg)...)
	}
	return samples, nil
}
