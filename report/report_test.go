package report

import (
	"bytes"
	"image"
	"strings"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/mortenfj/unredactron/calibrate"
	"github.com/mortenfj/unredactron/candidate"
	"github.com/mortenfj/unredactron/fusion"
	"github.com/mortenfj/unredactron/halo"
	"github.com/mortenfj/unredactron/locator"
	"github.com/mortenfj/unredactron/raster"
	"github.com/mortenfj/unredactron/score"
)

func testProfile() *calibrate.RenderProfile {
	return &calibrate.RenderProfile{
		Typeface:    "TestSans",
		PointSize:   12,
		ScaleFactor: 4.2,
		TrackingPx:  0.3,
		Consistency: 2.5,
		DPI:         300,
		SampleCount: 17,
	}
}

func testPage() *raster.Page {
	return &raster.Page{Index: 0, Gray: image.NewGray(image.Rect(0, 0, 40, 30)), DPI: 300}
}

func rankedMatch(text, variant string, prior, errorPct, combined float64) fusion.RankedMatch {
	return fusion.RankedMatch{
		MatchResult: score.MatchResult{
			Candidate:   candidate.Candidate{Text: text, Prior: prior},
			Variant:     variant,
			PredictedPx: 415.2,
			ErrorPct:    errorPct,
			WidthScore:  100 - errorPct,
		},
		ArtifactScore: 90,
		Combined:      combined,
	}
}

func testAnalysis() RedactionAnalysis {
	m := rankedMatch("Anne Smythe", "ANNE SMYTHE", 2, 0.4, 94.8)
	m.Candidate.Notes = "seen in cover letter"
	m.Checks = []fusion.EvidenceCheck{{
		Position: "first", Letter: 'A', Expect: "ascender",
		TopUsable: true, TopEvidence: true,
		BottomUsable: true, BottomEvidence: false,
		Delta: 20,
	}}
	return RedactionAnalysis{
		Box:            locator.Box{Page: 0, Rect: image.Rect(120, 300, 537, 352)},
		EstimatedRunes: 11,
		Artifacts: &halo.ArtifactProfile{
			Top:       halo.BandStats{Present: true, Area: 2502, GrayRatio: 41.0, EdgeCount: 12},
			Bottom:    halo.BandStats{Present: true, Area: 2502, GrayRatio: 52.1, EdgeCount: 7},
			Left:      halo.BandStats{Present: true, Area: 312, GrayRatio: 8.0},
			Right:     halo.BandStats{},
			Aggregate: 38.4,
			LeftProtrusions: []halo.Protrusion{
				{Start: 1, End: 4, Class: halo.ProtrusionUpper},
			},
		},
		Ranked: []fusion.RankedMatch{
			m,
			rankedMatch("Bob Jones", "Bob Jones", 1, 3.2, 91.1),
			rankedMatch("Carol Day", "Carol Day", 0.5, 8.8, 85.0),
		},
		Skipped: []score.Skipped{
			{Candidate: candidate.Candidate{Text: "X"}, Reason: score.SkipEmpty},
		},
	}
}

func TestStars(t *testing.T) {
	tests := []struct {
		errorPct float64
		want     string
	}{
		{0, "★★★"},
		{0.99, "★★★"},
		{1.0, "★★"},
		{4.99, "★★"},
		{5.0, "★"},
		{9.99, "★"},
		{10.0, ""},
		{50, ""},
	}
	for _, tt := range tests {
		if got := Stars(tt.errorPct); got != tt.want {
			t.Errorf("Stars(%v) = %q, want %q", tt.errorPct, got, tt.want)
		}
	}
}

func TestBuild(t *testing.T) {
	page := testPage()
	cfg := DefaultConfig()
	cfg.TopN = 2
	r := Build(cfg, "case.pdf", 300, []*raster.Page{page}, testProfile(), false, []RedactionAnalysis{testAnalysis()})

	if r.Document != "case.pdf" || r.DPI != 300 {
		t.Fatalf("header fields wrong: %+v", r)
	}
	if r.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}
	if r.LowConfidence {
		t.Error("low confidence set for a consistent calibrated profile")
	}
	if r.NothingToAnalyze {
		t.Error("NothingToAnalyze set despite one analysis")
	}
	if len(r.Pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(r.Pages))
	}
	if r.Pages[0].Fingerprint != page.Fingerprint() {
		t.Error("fingerprint does not match the page digest")
	}
	if r.Pages[0].Width != 40 || r.Pages[0].Height != 30 {
		t.Errorf("page size %dx%d, want 40x30", r.Pages[0].Width, r.Pages[0].Height)
	}

	if len(r.Redactions) != 1 {
		t.Fatalf("got %d redactions, want 1", len(r.Redactions))
	}
	red := r.Redactions[0]
	if red.X != 120 || red.Y != 300 || red.Width != 417 || red.Height != 52 {
		t.Errorf("box geometry wrong: %+v", red)
	}
	if red.EstimatedRunes != 11 {
		t.Errorf("EstimatedRunes = %d, want 11", red.EstimatedRunes)
	}
	if len(red.Matches) != 2 {
		t.Fatalf("TopN cap not applied: got %d matches", len(red.Matches))
	}
	first := red.Matches[0]
	if first.Rank != 1 || first.Text != "Anne Smythe" || first.Stars != "★★★" {
		t.Errorf("leading match wrong: %+v", first)
	}
	if len(first.Evidence) != 1 || !strings.Contains(first.Evidence[0], "ascender") {
		t.Errorf("evidence lines missing: %v", first.Evidence)
	}
	if first.Notes != "seen in cover letter" {
		t.Errorf("notes dropped: %+v", first)
	}
	if red.Matches[1].Rank != 2 || red.Matches[1].Stars != "★★" {
		t.Errorf("second match wrong: %+v", red.Matches[1])
	}
	if len(red.Skipped) != 1 || red.Skipped[0].Reason != score.SkipEmpty {
		t.Errorf("skipped diagnostics wrong: %+v", red.Skipped)
	}
	if len(red.Artifacts.Protrusions) != 1 || !strings.Contains(red.Artifacts.Protrusions[0], "upper") {
		t.Errorf("protrusion lines wrong: %v", red.Artifacts.Protrusions)
	}
	if red.Artifacts.Right.Present {
		t.Error("clipped right band reported as present")
	}
}

func TestBuildLowConfidence(t *testing.T) {
	tests := []struct {
		name        string
		consistency float64
		manual      bool
		want        bool
	}{
		{"manual profile", 2, true, true},
		{"poor consistency", 20, false, true},
		{"good calibration", 10, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProfile()
			p.Consistency = tt.consistency
			r := Build(DefaultConfig(), "case.pdf", 300, nil, p, tt.manual, []RedactionAnalysis{testAnalysis()})
			if r.LowConfidence != tt.want {
				t.Errorf("LowConfidence = %v, want %v", r.LowConfidence, tt.want)
			}
		})
	}
}

func TestBuildNothingToAnalyze(t *testing.T) {
	r := Build(DefaultConfig(), "blank.pdf", 300, []*raster.Page{testPage()}, testProfile(), false, nil)
	if !r.NothingToAnalyze {
		t.Fatal("NothingToAnalyze not set for an empty run")
	}
	md := Markdown(r)
	if !strings.Contains(md, "Nothing to analyze") {
		t.Errorf("markdown missing empty-run notice:\n%s", md)
	}
	if strings.Contains(md, "## Redactions") {
		t.Error("markdown lists a redactions section for an empty run")
	}
}

func TestWriteMarkdown(t *testing.T) {
	r := Build(DefaultConfig(), "case.pdf", 300, []*raster.Page{testPage()}, testProfile(), false, []RedactionAnalysis{testAnalysis()})
	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	md := buf.String()
	for _, want := range []string{
		"# Redaction analysis: case.pdf",
		"**Render profile:** TestSans 12pt",
		"| Page | Size | Fingerprint |",
		"### Redaction 1: page 0 at (120, 300), 417x52 px",
		"Anne Smythe",
		"★★★",
		"right clipped",
		"left edge: upper stroke at columns 1-4",
		"could not be measured",
		"| Notes |",
		"seen in cover letter",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "Low confidence") {
		t.Error("low-confidence warning rendered for a confident run")
	}
}

func TestWriteMarkdownLowConfidence(t *testing.T) {
	p := testProfile()
	p.Consistency = 22.5
	r := Build(DefaultConfig(), "case.pdf", 300, nil, p, false, []RedactionAnalysis{testAnalysis()})
	md := Markdown(r)
	if !strings.Contains(md, "**Low confidence.**") || !strings.Contains(md, "22.5%") {
		t.Errorf("missing consistency warning:\n%s", md)
	}
}

func TestMarkdownEscapesTableCells(t *testing.T) {
	a := testAnalysis()
	a.Ranked = []fusion.RankedMatch{rankedMatch("Pipe|Name", "Pipe|Name", 1, 0.2, 95)}
	r := Build(DefaultConfig(), "case.pdf", 300, nil, testProfile(), false, []RedactionAnalysis{a})
	if !strings.Contains(Markdown(r), `Pipe\|Name`) {
		t.Error("pipe in candidate text not escaped in table cell")
	}
}

func TestWriteHTML(t *testing.T) {
	r := Build(DefaultConfig(), "a<b.pdf", 300, []*raster.Page{testPage()}, testProfile(), false, []RedactionAnalysis{testAnalysis()})
	var buf bytes.Buffer
	if err := WriteHTML(&buf, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<!DOCTYPE html>") {
		t.Error("missing document shell")
	}
	if !strings.Contains(out, "<title>Redaction analysis: a&lt;b.pdf</title>") {
		t.Error("document name not escaped in title")
	}
	if !strings.Contains(out, "<table>") {
		t.Error("match table not converted to HTML")
	}
	if !strings.Contains(out, "Anne Smythe") {
		t.Error("match text missing from HTML body")
	}
}

func TestWriteJSON(t *testing.T) {
	r := Build(DefaultConfig(), "case.pdf", 300, []*raster.Page{testPage()}, testProfile(), false, []RedactionAnalysis{testAnalysis()})
	var buf bytes.Buffer
	if err := WriteJSON(&buf, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"document\"") {
		t.Error("output not indented")
	}

	var back Report
	if err := sonic.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Document != r.Document || back.DPI != r.DPI {
		t.Errorf("header fields did not round trip: %+v", back)
	}
	if len(back.Redactions) != 1 || len(back.Redactions[0].Matches) != 3 {
		t.Fatalf("redactions did not round trip: %+v", back.Redactions)
	}
	if back.Redactions[0].Matches[0].Stars != "★★★" {
		t.Errorf("stars did not round trip: %q", back.Redactions[0].Matches[0].Stars)
	}
	if back.Profile == nil || back.Profile.Typeface != "TestSans" {
		t.Errorf("profile did not round trip: %+v", back.Profile)
	}
}
