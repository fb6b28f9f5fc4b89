package fusion

import (
	"math"
	"testing"

	"github.com/mortenfj/unredactron/candidate"
	"github.com/mortenfj/unredactron/halo"
	"github.com/mortenfj/unredactron/score"
)

func TestLetterClasses(t *testing.T) {
	for _, r := range "bdfhklt" {
		if !HasAscender(r) {
			t.Errorf("HasAscender(%q) = false, want true", r)
		}
	}
	for _, r := range "KZÉ" {
		if !HasAscender(r) {
			t.Errorf("HasAscender(%q) = false, want true for uppercase", r)
		}
	}
	for _, r := range "gjpqy" {
		if !HasDescender(r) {
			t.Errorf("HasDescender(%q) = false, want true", r)
		}
	}
	for _, r := range "aonx3-" {
		if HasAscender(r) || HasDescender(r) {
			t.Errorf("%q should be body height", r)
		}
	}
}

// slotProfile builds a profile whose top and bottom bands have ten
// columns and ten rows per character slot. Hot slots carry a 5% ratio,
// comfortably above the 2% evidence threshold.
func slotProfile(slots int, hotTop, hotBottom map[int]bool) *halo.ArtifactProfile {
	cols := func(hot map[int]bool) []int {
		c := make([]int, slots*10)
		for slot := range hot {
			c[slot*10] = 5
		}
		return c
	}
	return &halo.ArtifactProfile{
		TopColumns:    cols(hotTop),
		TopRows:       10,
		BottomColumns: cols(hotBottom),
		BottomRows:    10,
		EvidencePct:   2.0,
	}
}

func match(text string, prior, widthScore float64) score.MatchResult {
	return score.MatchResult{
		Candidate:  candidate.Candidate{Text: text, Prior: prior},
		Variant:    text,
		WidthScore: widthScore,
	}
}

func mustRanker(t *testing.T, cfg Config) *Ranker {
	t.Helper()
	r, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func TestNewValidatesWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WidthWeight = 0.6
	if _, err := New(cfg, nil); err == nil {
		t.Error("expected an error for weights not summing to 1")
	}
	cfg.WidthWeight = 1.5
	cfg.ArtifactWeight = -0.5
	if _, err := New(cfg, nil); err == nil {
		t.Error("expected an error for a negative weight")
	}
}

func TestRankEndLetterChecks(t *testing.T) {
	r := mustRanker(t, DefaultConfig())

	// 'K' expects top evidence but slot 0 is quiet: penalty. 'n' is
	// body height next to quiet slots: bonus.
	profile := slotProfile(6, nil, nil)
	ranked := r.Rank([]score.MatchResult{match("Kellen", 0, 100)}, profile)
	if len(ranked) != 1 {
		t.Fatalf("got %d results, want 1", len(ranked))
	}
	if got := ranked[0].ArtifactScore; got != 90 {
		t.Errorf("artifact score = %v, want 100 - 30 + 20 = 90", got)
	}
	if len(ranked[0].Checks) != 2 {
		t.Fatalf("got %d checks, want 2", len(ranked[0].Checks))
	}
	if d := ranked[0].Checks[0].Delta; d != -30 {
		t.Errorf("first-letter delta = %v, want -30", d)
	}
	if d := ranked[0].Checks[1].Delta; d != 20 {
		t.Errorf("last-letter delta = %v, want 20", d)
	}

	// With evidence under the 'K' the first letter turns into a bonus.
	profile = slotProfile(6, map[int]bool{0: true}, nil)
	ranked = r.Rank([]score.MatchResult{match("Kellen", 0, 100)}, profile)
	if got := ranked[0].ArtifactScore; got != 100 {
		t.Errorf("artifact score = %v, want clamp at 100", got)
	}
	if d := ranked[0].Checks[0].Delta; d != 20 {
		t.Errorf("first-letter delta = %v, want 20", d)
	}
}

func TestRankUnexpectedEvidencePenalty(t *testing.T) {
	r := mustRanker(t, DefaultConfig())

	// Top evidence over the descender 'g' and a quiet bottom slot are
	// two contradictions; on both ends they floor the score.
	profile := slotProfile(2, map[int]bool{0: true, 1: true}, nil)
	ranked := r.Rank([]score.MatchResult{match("gg", 0, 100)}, profile)
	if got := ranked[0].ArtifactScore; got != 0 {
		t.Errorf("artifact score = %v, want floor 0", got)
	}
}

func TestRankSingleLetterCheckedOnce(t *testing.T) {
	r := mustRanker(t, DefaultConfig())
	profile := slotProfile(1, map[int]bool{0: true}, nil)
	ranked := r.Rank([]score.MatchResult{match("K", 0, 100)}, profile)
	if len(ranked[0].Checks) != 1 {
		t.Fatalf("got %d checks, want 1 for a single rune", len(ranked[0].Checks))
	}
	if ranked[0].ArtifactScore != 100 {
		t.Errorf("artifact score = %v, want 100", ranked[0].ArtifactScore)
	}
}

func TestRankNeutralWithoutProfile(t *testing.T) {
	r := mustRanker(t, DefaultConfig())
	ranked := r.Rank([]score.MatchResult{match("anything", 0, 80)}, nil)
	if got := ranked[0].ArtifactScore; got != 100 {
		t.Errorf("artifact score = %v, want neutral 100", got)
	}
	if got := ranked[0].Combined; got != 90 {
		t.Errorf("combined = %v, want 0.5*80 + 0.5*100", got)
	}
	if ranked[0].Checks != nil {
		t.Errorf("checks = %+v, want none", ranked[0].Checks)
	}
}

func TestRankNeutralWithAbsentBands(t *testing.T) {
	r := mustRanker(t, DefaultConfig())
	profile := &halo.ArtifactProfile{EvidencePct: 2.0}
	ranked := r.Rank([]score.MatchResult{match("Kellen", 0, 100)}, profile)
	if got := ranked[0].ArtifactScore; got != 100 {
		t.Errorf("artifact score = %v, want neutral 100", got)
	}
	for _, c := range ranked[0].Checks {
		if c.TopUsable || c.BottomUsable {
			t.Errorf("check %+v should be unusable with absent bands", c)
		}
		if c.Delta != 0 {
			t.Errorf("check %+v should stay neutral", c)
		}
	}
}

func TestRankCustomWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WidthWeight = 0.7
	cfg.ArtifactWeight = 0.3
	r := mustRanker(t, cfg)

	ranked := r.Rank([]score.MatchResult{match("anything", 0, 80)}, nil)
	if want := 0.7*80 + 0.3*100; math.Abs(ranked[0].Combined-want) > 1e-9 {
		t.Errorf("combined = %v, want %v", ranked[0].Combined, want)
	}
}

func TestRankPriorBreaksNearTies(t *testing.T) {
	r := mustRanker(t, DefaultConfig())

	ranked := r.Rank([]score.MatchResult{
		match("close-low-prior", 0, 80.5),
		match("close-high-prior", 5, 80.0),
		match("far-high-prior", 100, 60.0),
	}, nil)

	order := []string{ranked[0].Candidate.Text, ranked[1].Candidate.Text, ranked[2].Candidate.Text}
	want := []string{"close-high-prior", "close-low-prior", "far-high-prior"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRankDeterministicOnFullTies(t *testing.T) {
	r := mustRanker(t, DefaultConfig())
	in := []score.MatchResult{
		match("bbb", 1, 70),
		match("aaa", 1, 70),
	}
	first := r.Rank(in, nil)
	second := r.Rank(in, nil)
	if first[0].Candidate.Text != "aaa" {
		t.Errorf("tie broken to %q, want lexicographic aaa", first[0].Candidate.Text)
	}
	for i := range first {
		if first[i].Candidate.Text != second[i].Candidate.Text {
			t.Fatal("repeated runs must produce identical order")
		}
	}
}

func TestRankBounds(t *testing.T) {
	r := mustRanker(t, DefaultConfig())
	profile := slotProfile(2, map[int]bool{0: true, 1: true}, map[int]bool{0: true, 1: true})
	for _, m := range []score.MatchResult{
		match("gg", 0, 0),
		match("KL", 0, 100),
		match("no", 3, 55),
	} {
		ranked := r.Rank([]score.MatchResult{m}, profile)
		if c := ranked[0].Combined; c < 0 || c > 100 {
			t.Errorf("combined for %q = %v, out of [0,100]", m.Variant, c)
		}
		if a := ranked[0].ArtifactScore; a < 0 || a > 100 {
			t.Errorf("artifact for %q = %v, out of [0,100]", m.Variant, a)
		}
	}
}
