// Package scripting lets a user-supplied script adjust candidate
// priors before fusion, for knowledge that never fits a flat CSV:
// initials on adjacent pages, known aliases, case-specific hunches.
package scripting

import "context"

// Candidate is the read-only view of one dictionary entry handed to
// the hook.
type Candidate struct {
	Text      string
	Prior     float64
	Notes     string
	Redaction Redaction
}

// Redaction locates the box the candidate is being scored against.
type Redaction struct {
	Page   int
	X      int
	Y      int
	Width  int
	Height int
}

// Engine evaluates the boost hook.
type Engine interface {
	// Boost returns the prior adjustment for one candidate. The
	// adjustment is additive, so it can only act inside the fusion
	// tie window and never overrides geometry.
	Boost(ctx context.Context, cand Candidate) (float64, error)

	// Enabled reports whether a usable hook is loaded. Engines
	// disable themselves after a script error.
	Enabled() bool
}

// NopEngine is the hook used when no script is configured.
type NopEngine struct{}

func (NopEngine) Boost(context.Context, Candidate) (float64, error) { return 0, nil }
func (NopEngine) Enabled() bool                                     { return false }
