// Package calibrate recovers the render profile of a scanned document
// from visible text measurements. It searches a grid of typeface and
// integer point size combinations, scores each cell by how consistently
// a single scale factor explains the observed widths, and keeps the
// cell with the lowest coefficient of variation.
package calibrate

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mortenfj/unredactron/observability"
	"github.com/mortenfj/unredactron/ocr"
	"github.com/mortenfj/unredactron/typeface"
)

// Failure reasons reported by FailureError.
const (
	ReasonNoSamples   = "no usable samples"
	ReasonEmptyGrid   = "empty search grid"
	ReasonNoConsensus = "no grid cell reached the sample floor"
)

// FailureError reports why calibration could not settle on a profile.
// Callers that want to fall back to a manual profile should match it
// with errors.As.
type FailureError struct {
	Reason  string
	Samples int // samples accepted after filtering
	Cells   int // grid cells evaluated
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("calibration failed: %s (%d samples, %d grid cells)", e.Reason, e.Samples, e.Cells)
}

// SizeRange bounds the integer point sizes searched, inclusive.
type SizeRange struct {
	Min int
	Max int
}

// Config controls sample acceptance and the grid search.
type Config struct {
	// ConfidenceFloor rejects samples the OCR engine was unsure about.
	ConfidenceFloor float64
	// MinRunes and MaxRunes bound accepted sample length. Very short
	// samples carry too little width signal, very long ones tend to
	// span multiple words with uneven spacing.
	MinRunes int
	MaxRunes int
	// MinWidthPx rejects samples narrower than this many pixels.
	MinWidthPx float64
	// MinSamples is the floor a grid cell must reach to be scored.
	MinSamples int
	// Sizes is the inclusive point size range of the grid.
	Sizes SizeRange
	// Workers caps grid parallelism. Zero means runtime.NumCPU.
	Workers int
	// EstimateTracking refines the winning cell with a least squares
	// fit of scale and per-gap tracking. When the fit is degenerate
	// the profile keeps the mean-ratio scale and zero tracking.
	EstimateTracking bool
}

// DefaultConfig mirrors the sampler defaults so the calibrator accepts
// exactly what the sampler emits.
func DefaultConfig() Config {
	return Config{
		ConfidenceFloor:  0.85,
		MinRunes:         4,
		MaxRunes:         20,
		MinWidthPx:       30,
		MinSamples:       5,
		Sizes:            SizeRange{Min: 8, Max: 18},
		Workers:          0,
		EstimateTracking: true,
	}
}

// Calibrator runs the typeface and point size grid search.
type Calibrator struct {
	cfg Config
	log observability.Logger
}

// New returns a Calibrator. A nil logger disables logging.
func New(cfg Config, log observability.Logger) *Calibrator {
	if log == nil {
		log = observability.NopLogger{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MinSamples < 1 {
		cfg.MinSamples = 1
	}
	return &Calibrator{cfg: cfg, log: log}
}

type cell struct {
	face int
	size int
}

type cellScore struct {
	face    int
	size    int
	samples int
	mean    float64
	cv      float64
	ok      bool
}

// Calibrate searches faces × sizes for the combination whose scale
// ratios vary the least across samples. The returned profile carries
// the given DPI. It fails with a FailureError when no cell accumulates
// Config.MinSamples usable ratios.
func (c *Calibrator) Calibrate(ctx context.Context, faces []typeface.Metrics, samples []ocr.Sample, dpi int) (*RenderProfile, error) {
	accepted := c.filter(samples)
	if len(accepted) == 0 {
		return nil, &FailureError{Reason: ReasonNoSamples}
	}

	cells := c.grid(len(faces))
	if len(cells) == 0 {
		return nil, &FailureError{Reason: ReasonEmptyGrid, Samples: len(accepted)}
	}

	scores := make([]cellScore, len(cells))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < c.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				scores[i] = c.score(faces[cells[i].face], cells[i], accepted)
			}
		}()
	}

feed:
	for i := range cells {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	best, found := reduce(scores)
	if !found {
		return nil, &FailureError{
			Reason:  ReasonNoConsensus,
			Samples: len(accepted),
			Cells:   len(cells),
		}
	}

	face := faces[best.face]
	profile := &RenderProfile{
		Typeface:    face.Name(),
		PointSize:   float64(best.size),
		ScaleFactor: best.mean,
		Consistency: best.cv,
		DPI:         dpi,
		SampleCount: best.samples,
	}
	if c.cfg.EstimateTracking {
		if scale, tracking, ok := fitTracking(face, best.size, accepted); ok {
			profile.ScaleFactor = scale
			profile.TrackingPx = tracking
		}
	}

	c.log.Info("calibration complete",
		observability.String("typeface", profile.Typeface),
		observability.Float64("point_size", profile.PointSize),
		observability.Float64("scale", profile.ScaleFactor),
		observability.Float64("tracking_px", profile.TrackingPx),
		observability.Float64("consistency", profile.Consistency),
		observability.Int(observability.MetricGridCells, len(cells)),
		observability.Int(observability.MetricSampleCount, profile.SampleCount),
	)
	return profile, nil
}

func (c *Calibrator) filter(samples []ocr.Sample) []ocr.Sample {
	accepted := make([]ocr.Sample, 0, len(samples))
	for _, s := range samples {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		runes := utf8.RuneCountInString(text)
		if runes < c.cfg.MinRunes || runes > c.cfg.MaxRunes {
			continue
		}
		if s.Confidence < c.cfg.ConfidenceFloor {
			continue
		}
		if s.WidthPx <= c.cfg.MinWidthPx {
			continue
		}
		s.Text = text
		accepted = append(accepted, s)
	}
	return accepted
}

func (c *Calibrator) grid(faces int) []cell {
	if faces == 0 || c.cfg.Sizes.Min > c.cfg.Sizes.Max || c.cfg.Sizes.Min <= 0 {
		return nil
	}
	cells := make([]cell, 0, faces*(c.cfg.Sizes.Max-c.cfg.Sizes.Min+1))
	for f := 0; f < faces; f++ {
		for size := c.cfg.Sizes.Min; size <= c.cfg.Sizes.Max; size++ {
			cells = append(cells, cell{face: f, size: size})
		}
	}
	return cells
}

// score computes the ratio of actual to theoretical width for every
// sample the face can measure, then the population coefficient of
// variation across those ratios. Cells with fewer than MinSamples
// usable ratios stay unscored.
func (c *Calibrator) score(face typeface.Metrics, cl cell, samples []ocr.Sample) cellScore {
	ratios := make([]float64, 0, len(samples))
	for _, s := range samples {
		theoretical, err := face.Width(s.Text, float64(cl.size))
		if err != nil || theoretical <= 0 {
			continue
		}
		ratios = append(ratios, s.WidthPx/theoretical)
	}
	if len(ratios) < c.cfg.MinSamples {
		return cellScore{face: cl.face, size: cl.size, samples: len(ratios)}
	}

	var sum float64
	for _, r := range ratios {
		sum += r
	}
	mean := sum / float64(len(ratios))

	var variance float64
	for _, r := range ratios {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(ratios))
	std := math.Sqrt(variance)

	cv := math.Inf(1)
	if mean > 0 {
		cv = std / mean * 100
	}
	return cellScore{
		face:    cl.face,
		size:    cl.size,
		samples: len(ratios),
		mean:    mean,
		cv:      cv,
		ok:      true,
	}
}

// reduce picks the scored cell with the lowest coefficient of
// variation. Ties go to the smaller point size, then to library order,
// so the result is stable across runs.
func reduce(scores []cellScore) (cellScore, bool) {
	var best cellScore
	found := false
	for _, s := range scores {
		if !s.ok {
			continue
		}
		if !found || better(s, best) {
			best = s
			found = true
		}
	}
	return best, found
}

func better(a, b cellScore) bool {
	if a.cv != b.cv {
		return a.cv < b.cv
	}
	if a.size != b.size {
		return a.size < b.size
	}
	return a.face < b.face
}

// fitTracking solves, by least squares, for the scale and per-gap
// tracking that best map theoretical widths onto measured ones:
//
//	actual ≈ scale·theoretical + tracking·(runes−1)
//
// It reports ok=false when the system is degenerate (for example all
// samples the same length) or the fitted scale is not positive, in
// which case callers should keep the mean-ratio scale.
func fitTracking(face typeface.Metrics, size int, samples []ocr.Sample) (scale, tracking float64, ok bool) {
	var stt, stg, sgg, sta, sga float64
	n := 0
	for _, s := range samples {
		theoretical, err := face.Width(s.Text, float64(size))
		if err != nil || theoretical <= 0 {
			continue
		}
		gaps := float64(utf8.RuneCountInString(s.Text) - 1)
		stt += theoretical * theoretical
		stg += theoretical * gaps
		sgg += gaps * gaps
		sta += theoretical * s.WidthPx
		sga += gaps * s.WidthPx
		n++
	}
	if n < 2 {
		return 0, 0, false
	}
	det := stt*sgg - stg*stg
	if math.Abs(det) < 1e-9 {
		return 0, 0, false
	}
	scale = (sta*sgg - sga*stg) / det
	tracking = (sga*stt - sta*stg) / det
	if scale <= 0 {
		return 0, 0, false
	}
	return scale, tracking, true
}
