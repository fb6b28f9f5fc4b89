// Package report renders an analysis run for human review and for
// machine consumption: Markdown for the case file, HTML for sharing,
// JSON for downstream tooling.
package report

import (
	"fmt"
	"time"

	"github.com/mortenfj/unredactron/calibrate"
	"github.com/mortenfj/unredactron/fusion"
	"github.com/mortenfj/unredactron/halo"
	"github.com/mortenfj/unredactron/locator"
	"github.com/mortenfj/unredactron/raster"
	"github.com/mortenfj/unredactron/score"
)

// Config bounds what the report includes.
type Config struct {
	// TopN caps the ranked matches shown per redaction. Zero means
	// all.
	TopN int
	// LowConfidenceCV marks the whole report low confidence when the
	// profile's consistency exceeds it.
	LowConfidenceCV float64
}

func DefaultConfig() Config {
	return Config{TopN: 10, LowConfidenceCV: 15.0}
}

// Report is the serializable outcome of one analysis run.
type Report struct {
	Document    string    `json:"document"`
	GeneratedAt time.Time `json:"generated_at"`
	DPI         int       `json:"dpi"`

	Profile *calibrate.RenderProfile `json:"profile,omitempty"`
	// ManualProfile is true when the profile was supplied instead of
	// calibrated from the document.
	ManualProfile bool `json:"manual_profile"`
	// LowConfidence flags runs whose conclusions deserve extra
	// scrutiny: a manual profile, or a poorly consistent calibration.
	LowConfidence bool `json:"low_confidence"`
	// NothingToAnalyze is the legitimate terminal state of a document
	// without any detected redactions.
	NothingToAnalyze bool `json:"nothing_to_analyze"`

	Pages      []PageInfo  `json:"pages"`
	Redactions []Redaction `json:"redactions"`
}

// PageInfo records which raster was analyzed, pinned by fingerprint so
// the evidence chain survives file shuffling.
type PageInfo struct {
	Index       int    `json:"index"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Fingerprint string `json:"fingerprint"`
}

// Redaction is the per-box analysis.
type Redaction struct {
	Page           int             `json:"page"`
	X              int             `json:"x"`
	Y              int             `json:"y"`
	Width          int             `json:"width"`
	Height         int             `json:"height"`
	EstimatedRunes int             `json:"estimated_runes,omitempty"`
	Artifacts      ArtifactSummary `json:"artifacts"`
	Matches        []Match         `json:"matches"`
	Skipped        []Skip          `json:"skipped,omitempty"`
}

// ArtifactSummary condenses the halo analysis for the report.
type ArtifactSummary struct {
	Aggregate float64     `json:"aggregate"`
	Top       BandSummary `json:"top"`
	Bottom    BandSummary `json:"bottom"`
	Left      BandSummary `json:"left"`
	Right     BandSummary `json:"right"`
	// Protrusions lists classified side strokes, human readable.
	Protrusions []string `json:"protrusions,omitempty"`
}

type BandSummary struct {
	Present   bool    `json:"present"`
	GrayRatio float64 `json:"gray_ratio"`
	EdgeCount int     `json:"edge_count"`
}

// Match is one ranked candidate.
type Match struct {
	Rank          int     `json:"rank"`
	Text          string  `json:"text"`
	Variant       string  `json:"variant"`
	PredictedPx   float64 `json:"predicted_px"`
	ErrorPct      float64 `json:"error_pct"`
	Stars         string  `json:"stars"`
	WidthScore    float64 `json:"width_score"`
	ArtifactScore float64 `json:"artifact_score"`
	Combined      float64 `json:"combined"`
	Prior         float64 `json:"prior"`
	Notes         string  `json:"notes,omitempty"`
	// Evidence spells out the end-letter checks behind ArtifactScore.
	Evidence []string `json:"evidence,omitempty"`
}

// Skip is a candidate that could not be scored, kept as a diagnostic.
type Skip struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// RedactionAnalysis carries one analyzed box from the pipeline into
// the report.
type RedactionAnalysis struct {
	Box            locator.Box
	EstimatedRunes int
	Artifacts      *halo.ArtifactProfile
	Ranked         []fusion.RankedMatch
	Skipped        []score.Skipped
}

// Stars grades a width error: under one percent earns three stars,
// under five two, under ten one.
func Stars(errorPct float64) string {
	switch {
	case errorPct < 1:
		return "★★★"
	case errorPct < 5:
		return "★★"
	case errorPct < 10:
		return "★"
	}
	return ""
}

// Build assembles the report. A nil profile is allowed only together
// with manual=false and no analyses, for the nothing-to-analyze case.
func Build(cfg Config, document string, dpi int, pages []*raster.Page, profile *calibrate.RenderProfile, manual bool, analyses []RedactionAnalysis) *Report {
	r := &Report{
		Document:         document,
		GeneratedAt:      time.Now().UTC(),
		DPI:              dpi,
		Profile:          profile,
		ManualProfile:    manual,
		NothingToAnalyze: len(analyses) == 0,
	}
	r.LowConfidence = manual || (profile != nil && profile.Consistency > cfg.LowConfidenceCV)

	for _, page := range pages {
		b := page.Bounds()
		r.Pages = append(r.Pages, PageInfo{
			Index:       page.Index,
			Width:       b.Dx(),
			Height:      b.Dy(),
			Fingerprint: page.Fingerprint(),
		})
	}

	for _, a := range analyses {
		r.Redactions = append(r.Redactions, buildRedaction(cfg, a))
	}
	return r
}

func buildRedaction(cfg Config, a RedactionAnalysis) Redaction {
	rect := a.Box.Rect
	red := Redaction{
		Page:           a.Box.Page,
		X:              rect.Min.X,
		Y:              rect.Min.Y,
		Width:          rect.Dx(),
		Height:         rect.Dy(),
		EstimatedRunes: a.EstimatedRunes,
		Artifacts:      summarizeArtifacts(a.Artifacts),
	}

	ranked := a.Ranked
	if cfg.TopN > 0 && len(ranked) > cfg.TopN {
		ranked = ranked[:cfg.TopN]
	}
	for i, m := range ranked {
		red.Matches = append(red.Matches, Match{
			Rank:          i + 1,
			Text:          m.Candidate.Text,
			Variant:       m.Variant,
			PredictedPx:   m.PredictedPx,
			ErrorPct:      m.ErrorPct,
			Stars:         Stars(m.ErrorPct),
			WidthScore:    m.WidthScore,
			ArtifactScore: m.ArtifactScore,
			Combined:      m.Combined,
			Prior:         m.Candidate.Prior,
			Notes:         m.Candidate.Notes,
			Evidence:      evidenceLines(m.Checks),
		})
	}
	for _, s := range a.Skipped {
		red.Skipped = append(red.Skipped, Skip{Text: s.Candidate.Text, Reason: s.Reason})
	}
	return red
}

func summarizeArtifacts(p *halo.ArtifactProfile) ArtifactSummary {
	if p == nil {
		return ArtifactSummary{}
	}
	sum := ArtifactSummary{
		Aggregate: p.Aggregate,
		Top:       bandSummary(p.Top),
		Bottom:    bandSummary(p.Bottom),
		Left:      bandSummary(p.Left),
		Right:     bandSummary(p.Right),
	}
	for _, pr := range p.LeftProtrusions {
		sum.Protrusions = append(sum.Protrusions, protrusionLine("left", pr))
	}
	for _, pr := range p.RightProtrusions {
		sum.Protrusions = append(sum.Protrusions, protrusionLine("right", pr))
	}
	return sum
}

func bandSummary(b halo.BandStats) BandSummary {
	return BandSummary{Present: b.Present, GrayRatio: b.GrayRatio, EdgeCount: b.EdgeCount}
}

func protrusionLine(side string, p halo.Protrusion) string {
	return fmt.Sprintf("%s edge: %s stroke at columns %d-%d", side, p.Class, p.Start, p.End)
}

func evidenceLines(checks []fusion.EvidenceCheck) []string {
	var lines []string
	for _, c := range checks {
		lines = append(lines, evidenceLine(c))
	}
	return lines
}

func evidenceLine(c fusion.EvidenceCheck) string {
	top := slotWord(c.TopUsable, c.TopEvidence)
	bottom := slotWord(c.BottomUsable, c.BottomEvidence)
	return fmt.Sprintf("%s %q expects %s, top %s, bottom %s (%+.0f)",
		c.Position, c.Letter, c.Expect, top, bottom, c.Delta)
}

func slotWord(usable, evidence bool) string {
	switch {
	case !usable:
		return "unreadable"
	case evidence:
		return "marked"
	}
	return "clear"
}
