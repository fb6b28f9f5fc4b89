// Package fusion merges width evidence with halo artifact evidence
// into one deterministic candidate ranking. Width says how well a
// candidate fills the box; the artifact profile says whether the
// letter shapes at the ends of the candidate agree with what leaked
// around the redaction.
package fusion

import (
	"fmt"
	"math"
	"sort"
	"unicode"

	"github.com/mortenfj/unredactron/halo"
	"github.com/mortenfj/unredactron/observability"
	"github.com/mortenfj/unredactron/score"
)

// HasAscender reports whether r rises above the x-height body:
// the tall lowercase letters and anything uppercase.
func HasAscender(r rune) bool {
	switch r {
	case 'b', 'd', 'f', 'h', 'k', 'l', 't':
		return true
	}
	return unicode.IsUpper(r)
}

// HasDescender reports whether r drops below the baseline.
func HasDescender(r rune) bool {
	switch r {
	case 'g', 'j', 'p', 'q', 'y':
		return true
	}
	return false
}

// Config holds the fusion weights and adjustments. Weights must sum to
// one so the combined score stays on the same 0..100 scale as its
// inputs.
type Config struct {
	WidthWeight    float64
	ArtifactWeight float64
	// MatchBonus rewards an end letter whose shape class agrees with
	// the slot evidence; MismatchPenalty punishes a contradiction in
	// either direction.
	MatchBonus      float64
	MismatchPenalty float64
	// TieEpsilon is the combined-score distance within which the
	// candidate prior may reorder results.
	TieEpsilon float64
}

func DefaultConfig() Config {
	return Config{
		WidthWeight:     0.5,
		ArtifactWeight:  0.5,
		MatchBonus:      20,
		MismatchPenalty: 30,
		TieEpsilon:      1.0,
	}
}

// RankedMatch is one candidate after fusion.
type RankedMatch struct {
	score.MatchResult
	// ArtifactScore is the shape compatibility on the 0..100 scale,
	// 100 meaning no contradiction found.
	ArtifactScore float64
	Combined      float64
	// Checks explains the end-letter decisions for the report.
	Checks []EvidenceCheck
}

// EvidenceCheck is the outcome of testing one end of the candidate
// against the halo.
type EvidenceCheck struct {
	// Position is "first" or "last".
	Position string
	Letter   rune
	// Expect is the letter's shape class: "ascender", "descender" or
	// "none".
	Expect string
	// Evidence per band end slot; Usable is false when the page edge
	// or slot geometry left nothing to query, which stays neutral.
	TopUsable      bool
	TopEvidence    bool
	BottomUsable   bool
	BottomEvidence bool
	// Delta is the net score adjustment this position contributed.
	Delta float64
}

// Ranker fuses width and artifact evidence.
type Ranker struct {
	cfg Config
	log observability.Logger
}

// New validates the weights and returns a Ranker. A nil logger
// disables logging.
func New(cfg Config, log observability.Logger) (*Ranker, error) {
	if math.Abs(cfg.WidthWeight+cfg.ArtifactWeight-1) > 1e-9 {
		return nil, fmt.Errorf("fusion weights %v and %v do not sum to 1", cfg.WidthWeight, cfg.ArtifactWeight)
	}
	if cfg.WidthWeight < 0 || cfg.ArtifactWeight < 0 {
		return nil, fmt.Errorf("fusion weights must not be negative")
	}
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Ranker{cfg: cfg, log: log}, nil
}

// Rank scores every width match against the artifact profile and
// returns the fused ranking, best first. A nil profile leaves every
// artifact score at the neutral baseline. The ordering is total and
// reproducible: combined score decides, the candidate prior reorders
// only inside near-tie groups, and candidate text settles the rest.
func (r *Ranker) Rank(matches []score.MatchResult, profile *halo.ArtifactProfile) []RankedMatch {
	out := make([]RankedMatch, 0, len(matches))
	for _, m := range matches {
		artifact, checks := r.artifactScore(m, profile)
		combined := m.WidthScore*r.cfg.WidthWeight + artifact*r.cfg.ArtifactWeight
		out = append(out, RankedMatch{
			MatchResult:   m,
			ArtifactScore: artifact,
			Combined:      combined,
			Checks:        checks,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Combined != out[j].Combined {
			return out[i].Combined > out[j].Combined
		}
		return out[i].Candidate.Text < out[j].Candidate.Text
	})

	// Reorder near-tie groups by prior. Groups are anchored at their
	// best member, so the partition is deterministic.
	for i := 0; i < len(out); {
		j := i + 1
		for j < len(out) && out[i].Combined-out[j].Combined <= r.cfg.TieEpsilon {
			j++
		}
		group := out[i:j]
		sort.SliceStable(group, func(a, b int) bool {
			if group[a].Candidate.Prior != group[b].Candidate.Prior {
				return group[a].Candidate.Prior > group[b].Candidate.Prior
			}
			if group[a].Combined != group[b].Combined {
				return group[a].Combined > group[b].Combined
			}
			return group[a].Candidate.Text < group[b].Candidate.Text
		})
		i = j
	}

	if len(out) > 0 {
		r.log.Debug("fused candidate ranking",
			observability.Int(observability.MetricCandidatesScored, len(out)),
			observability.String("best", out[0].Candidate.Text),
			observability.Float64("best_combined", out[0].Combined),
		)
	}
	return out
}

// artifactScore starts from the neutral baseline and adjusts it by the
// end-letter checks. Missing bands and unanswerable slots stay
// neutral.
func (r *Ranker) artifactScore(m score.MatchResult, profile *halo.ArtifactProfile) (float64, []EvidenceCheck) {
	sc := 100.0
	if profile == nil {
		return sc, nil
	}
	runes := []rune(m.Variant)
	slots := len(runes)
	if slots == 0 {
		return sc, nil
	}

	positions := []struct {
		label string
		idx   int
	}{{"first", 0}, {"last", slots - 1}}
	if slots == 1 {
		positions = positions[:1]
	}

	var checks []EvidenceCheck
	for _, pos := range positions {
		letter := runes[pos.idx]
		if letter == ' ' {
			continue
		}
		check := EvidenceCheck{Position: pos.label, Letter: letter, Expect: "none"}
		asc := HasAscender(letter)
		desc := HasDescender(letter)
		if asc {
			check.Expect = "ascender"
		} else if desc {
			check.Expect = "descender"
		}

		topRatio, topOK := profile.SlotRatio(halo.SideTop, slots, pos.idx)
		check.TopUsable = topOK
		check.TopEvidence = topOK && topRatio > profile.EvidencePct
		bottomRatio, bottomOK := profile.SlotRatio(halo.SideBottom, slots, pos.idx)
		check.BottomUsable = bottomOK
		check.BottomEvidence = bottomOK && bottomRatio > profile.EvidencePct

		delta := 0.0
		if asc && check.TopUsable {
			if check.TopEvidence {
				delta += r.cfg.MatchBonus
			} else {
				delta -= r.cfg.MismatchPenalty
			}
		}
		if desc && check.BottomUsable {
			if check.BottomEvidence {
				delta += r.cfg.MatchBonus
			} else {
				delta -= r.cfg.MismatchPenalty
			}
		}
		// Evidence where the letter class predicts none contradicts
		// the candidate just as much as missing expected evidence.
		if !asc && check.TopEvidence {
			delta -= r.cfg.MismatchPenalty
		}
		if !desc && check.BottomEvidence {
			delta -= r.cfg.MismatchPenalty
		}
		// A body-height letter next to quiet slots is a positive
		// signal, not just the absence of a contradiction.
		if !asc && !desc && (check.TopUsable || check.BottomUsable) &&
			!check.TopEvidence && !check.BottomEvidence {
			delta += r.cfg.MatchBonus
		}

		check.Delta = delta
		sc += delta
		checks = append(checks, check)
	}

	if sc < 0 {
		sc = 0
	}
	if sc > 100 {
		sc = 100
	}
	return sc, checks
}
