// Package score ranks dictionary candidates by how well their predicted
// rendered width explains a measured redaction box.
package score

import (
	"context"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/mortenfj/unredactron/calibrate"
	"github.com/mortenfj/unredactron/candidate"
	"github.com/mortenfj/unredactron/observability"
	"github.com/mortenfj/unredactron/typeface"
)

// Skip reasons recorded for candidates that could not be scored.
const (
	SkipEmpty     = "empty after sanitization"
	SkipZeroWidth = "zero predicted width"
	SkipMeasure   = "width measurement failed"
)

// Predictor turns candidate text into an expected pixel width under a
// calibrated render profile: the quantized glyph advances at the
// profile's point size, scaled to page pixels, plus tracking for every
// gap between adjacent characters.
type Predictor struct {
	profile *calibrate.RenderProfile
	metrics typeface.Metrics
}

// NewPredictor pairs a profile with the metrics of the typeface it was
// calibrated against.
func NewPredictor(profile *calibrate.RenderProfile, metrics typeface.Metrics) (*Predictor, error) {
	if !profile.Valid() {
		return nil, fmt.Errorf("render profile is incomplete")
	}
	if metrics == nil {
		return nil, fmt.Errorf("no typeface metrics")
	}
	return &Predictor{profile: profile, metrics: metrics}, nil
}

// Profile returns the render profile the predictor measures under.
func (p *Predictor) Profile() *calibrate.RenderProfile { return p.profile }

// Width predicts the rendered width of text in page pixels.
func (p *Predictor) Width(text string) (float64, error) {
	base, err := p.metrics.Width(text, p.profile.PointSize)
	if err != nil {
		return 0, fmt.Errorf("measuring %q: %w", text, err)
	}
	gaps := float64(utf8.RuneCountInString(text) - 1)
	if gaps < 0 {
		gaps = 0
	}
	return base*p.profile.ScaleFactor + p.profile.TrackingPx*gaps, nil
}

// MatchResult is one scored candidate. Variant is the rendering that
// matched best, which may be the all-capitals form of the text.
type MatchResult struct {
	Candidate   candidate.Candidate
	Variant     string
	PredictedPx float64
	// ErrorPct is the relative width deviation in percent.
	ErrorPct float64
	// WidthScore is 100 minus ErrorPct, floored at zero.
	WidthScore float64
}

// Skipped records a candidate the scorer could not evaluate and why.
// Skips are diagnostics, never batch failures.
type Skipped struct {
	Candidate candidate.Candidate
	Reason    string
}

// Config bounds a scoring pass.
type Config struct {
	// MaxCandidates caps how many candidates are evaluated, taking the
	// head of the prior-sorted list. Zero means no cap.
	MaxCandidates int
}

func DefaultConfig() Config {
	return Config{MaxCandidates: 0}
}

// Scorer evaluates candidates against measured redaction widths.
type Scorer struct {
	cfg  Config
	pred *Predictor
	log  observability.Logger
}

// New returns a Scorer. A nil logger disables logging.
func New(cfg Config, pred *Predictor, log observability.Logger) *Scorer {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Scorer{cfg: cfg, pred: pred, log: log}
}

// Score evaluates every candidate against the measured width and
// returns the scored matches ordered best first, plus the candidates
// that had to be skipped. Each candidate is tried in its literal and
// all-capitals rendering and keeps whichever variant scores higher.
func (s *Scorer) Score(ctx context.Context, widthPx float64, cands []candidate.Candidate) ([]MatchResult, []Skipped, error) {
	if s.cfg.MaxCandidates > 0 && len(cands) > s.cfg.MaxCandidates {
		cands = cands[:s.cfg.MaxCandidates]
	}

	results := make([]MatchResult, 0, len(cands))
	var skipped []Skipped
	for _, c := range cands {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		text := candidate.Sanitize(c.Text)
		if text == "" {
			skipped = append(skipped, Skipped{Candidate: c, Reason: SkipEmpty})
			continue
		}

		best, reason := s.bestVariant(widthPx, text)
		if reason != "" {
			skipped = append(skipped, Skipped{Candidate: c, Reason: reason})
			continue
		}
		best.Candidate = c
		results = append(results, best)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.WidthScore != b.WidthScore {
			return a.WidthScore > b.WidthScore
		}
		if a.Candidate.Prior != b.Candidate.Prior {
			return a.Candidate.Prior > b.Candidate.Prior
		}
		return a.Variant < b.Variant
	})

	s.log.Debug("width scoring done",
		observability.Int(observability.MetricCandidatesScored, len(results)),
		observability.Int("skipped", len(skipped)),
		observability.Float64("width_px", widthPx),
	)
	return results, skipped, nil
}

// bestVariant scores every case variant of text and keeps the best one.
// A non-empty reason means no variant was usable.
func (s *Scorer) bestVariant(widthPx float64, text string) (MatchResult, string) {
	var best MatchResult
	found := false
	reason := SkipMeasure
	for _, variant := range candidate.CaseVariants(text) {
		predicted, err := s.pred.Width(variant)
		if err != nil {
			continue
		}
		if predicted <= 0 {
			reason = SkipZeroWidth
			continue
		}
		errorPct := math.Abs(predicted-widthPx) / predicted * 100
		widthScore := 100 - errorPct
		if widthScore < 0 {
			widthScore = 0
		}
		if !found || widthScore > best.WidthScore {
			best = MatchResult{
				Variant:     variant,
				PredictedPx: predicted,
				ErrorPct:    errorPct,
				WidthScore:  widthScore,
			}
			found = true
		}
	}
	if !found {
		return MatchResult{}, reason
	}
	return best, ""
}

const lowercaseAlphabet = "abcdefghijklmnopqrstuvwxyz"

// EstimateRunes estimates how many characters fit in a redaction of the
// given pixel width, from the average lowercase advance under the
// profile. It is a report diagnostic, not a matching signal.
func EstimateRunes(profile *calibrate.RenderProfile, metrics typeface.Metrics, widthPx float64) (int, error) {
	pred, err := NewPredictor(profile, metrics)
	if err != nil {
		return 0, err
	}
	total, err := pred.Width(lowercaseAlphabet)
	if err != nil {
		return 0, err
	}
	avg := total / float64(len(lowercaseAlphabet))
	if avg <= 0 {
		return 0, fmt.Errorf("typeface has no usable lowercase advances")
	}
	return int(math.Round(widthPx / avg)), nil
}
