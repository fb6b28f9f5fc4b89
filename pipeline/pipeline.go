// Package pipeline wires the analysis stages into a single document
// run: sample visible text, calibrate a render profile, locate
// redaction boxes, then score, halo-check and rank candidates for each
// box and assemble the report.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/mortenfj/unredactron/calibrate"
	"github.com/mortenfj/unredactron/candidate"
	"github.com/mortenfj/unredactron/fusion"
	"github.com/mortenfj/unredactron/halo"
	"github.com/mortenfj/unredactron/locator"
	"github.com/mortenfj/unredactron/observability"
	"github.com/mortenfj/unredactron/ocr"
	"github.com/mortenfj/unredactron/raster"
	"github.com/mortenfj/unredactron/report"
	"github.com/mortenfj/unredactron/score"
	"github.com/mortenfj/unredactron/scripting"
	"github.com/mortenfj/unredactron/typeface"
)

// Document is one analysis job: the rasterized pages plus everything
// needed to interpret them.
type Document struct {
	// Path labels the report; nothing is read from it.
	Path       string
	Pages      []*raster.Page
	Faces      []typeface.Metrics
	Candidates []candidate.Candidate
	// ManualProfile skips calibration when set. The run is then flagged
	// low confidence, since nothing verified the profile against this
	// document.
	ManualProfile *calibrate.RenderProfile
}

// Config carries per-run settings for every stage. Each run gets its
// own copy, so concurrent documents with different thresholds never
// interfere.
type Config struct {
	// Workers bounds the per-redaction fan-out. Zero or negative means
	// GOMAXPROCS-style: one per CPU.
	Workers int
	// ExpandCandidates derives word forms and alternative spellings
	// from the supplied dictionary before scoring.
	ExpandCandidates bool

	Sample    ocr.SampleConfig
	Calibrate calibrate.Config
	Locate    locator.Config
	Score     score.Config
	Halo      halo.Config
	Fusion    fusion.Config
	Report    report.Config
}

func DefaultConfig() Config {
	return Config{
		Sample:    ocr.DefaultSampleConfig(),
		Calibrate: calibrate.DefaultConfig(),
		Locate:    locator.DefaultConfig(),
		Score:     score.DefaultConfig(),
		Halo:      halo.DefaultConfig(),
		Fusion:    fusion.DefaultConfig(),
		Report:    report.DefaultConfig(),
	}
}

// Pipeline orchestrates one document at a time. It is safe for
// concurrent use; Run keeps all per-document state on the stack.
type Pipeline struct {
	cfg    Config
	engine ocr.Engine
	boost  scripting.Engine
	log    observability.Logger
	tracer observability.Tracer
}

// New constructs a pipeline with the default OCR engine, no boost hook
// and no tracing. A nil logger disables logging.
func New(cfg Config, log observability.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Pipeline{
		cfg:    cfg,
		engine: ocr.DefaultEngine(),
		boost:  scripting.NopEngine{},
		log:    log,
		tracer: observability.NopTracer(),
	}
}

// WithOCR replaces the sampling engine.
func (p *Pipeline) WithOCR(engine ocr.Engine) *Pipeline {
	if engine != nil {
		p.engine = engine
	}
	return p
}

// WithBoost installs a prior adjustment hook.
func (p *Pipeline) WithBoost(engine scripting.Engine) *Pipeline {
	if engine != nil {
		p.boost = engine
	}
	return p
}

// WithTracer installs a tracer for stage spans.
func (p *Pipeline) WithTracer(t observability.Tracer) *Pipeline {
	if t != nil {
		p.tracer = t
	}
	return p
}

// Result is the outcome of one document run.
type Result struct {
	Report  *report.Report
	Profile *calibrate.RenderProfile
	// ManualProfile records whether the profile was supplied rather
	// than calibrated.
	ManualProfile bool
	// NothingToAnalyze is set when no redaction box was found. The run
	// still succeeds and the report says so.
	NothingToAnalyze bool
	// Failures lists redactions whose analysis failed. They are absent
	// from the report; the rest of the batch is unaffected.
	Failures []BoxFailure
}

type BoxFailure struct {
	Box locator.Box
	Err error
}

// Run analyzes one document. The only failures that abort the run are
// invalid input, calibration failure without a manual profile (a
// *calibrate.FailureError wrapped in the return) and context
// cancellation. Everything per-redaction is isolated into
// Result.Failures.
func (p *Pipeline) Run(ctx context.Context, doc Document) (*Result, error) {
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.run")
	defer span.Finish()
	span.SetTag("document", doc.Path)

	if err := validate(doc); err != nil {
		span.SetError(err)
		return nil, err
	}
	dpi := doc.Pages[0].DPI

	ranker, err := fusion.New(p.cfg.Fusion, p.log)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	profile, manual, err := p.profile(ctx, doc, dpi)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	face, err := faceByName(doc.Faces, profile.Typeface)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	pred, err := score.NewPredictor(profile, face)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("building width predictor: %w", err)
	}

	boxes, err := p.locate(ctx, doc.Pages)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetTag("boxes", len(boxes))

	res := &Result{Profile: profile, ManualProfile: manual}
	if len(boxes) == 0 {
		res.NothingToAnalyze = true
		res.Report = report.Build(p.cfg.Report, doc.Path, dpi, doc.Pages, profile, manual, nil)
		p.log.Info("no redactions found, nothing to analyze",
			observability.String("document", doc.Path))
		return res, nil
	}

	cands := doc.Candidates
	if p.cfg.ExpandCandidates {
		cands = candidate.Expand(cands)
		p.log.Debug("candidate list expanded",
			observability.Int("supplied", len(doc.Candidates)),
			observability.Int("expanded", len(cands)))
	}

	scorer := score.New(p.cfg.Score, pred, p.log)
	analyses, failures, err := p.analyzeBoxes(ctx, doc.Pages, scorer, ranker, profile, face, cands, boxes)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	res.Failures = failures

	start := time.Now()
	res.Report = report.Build(p.cfg.Report, doc.Path, dpi, doc.Pages, profile, manual, analyses)
	p.log.Info("document analysis finished",
		observability.String("document", doc.Path),
		observability.Int(observability.MetricBoxCount, len(boxes)),
		observability.Int("failures", len(failures)),
		observability.Int64(observability.MetricReportTime, time.Since(start).Milliseconds()),
	)
	return res, nil
}

func validate(doc Document) error {
	if len(doc.Pages) == 0 {
		return fmt.Errorf("document has no pages")
	}
	for i, page := range doc.Pages {
		if page == nil || page.Gray == nil {
			return fmt.Errorf("page %d has no raster", i)
		}
	}
	if len(doc.Candidates) == 0 {
		return fmt.Errorf("document has no candidates")
	}
	return nil
}

// profile returns the render profile to analyze with: the supplied one
// when present, otherwise a fresh calibration from visible text.
func (p *Pipeline) profile(ctx context.Context, doc Document, dpi int) (*calibrate.RenderProfile, bool, error) {
	if doc.ManualProfile != nil {
		if !doc.ManualProfile.Valid() {
			return nil, false, fmt.Errorf("manual profile is incomplete")
		}
		p.log.Info("using supplied render profile",
			observability.String("typeface", doc.ManualProfile.Typeface),
			observability.Float64("point_size", doc.ManualProfile.PointSize))
		return doc.ManualProfile, true, nil
	}

	ctx, span := p.tracer.StartSpan(ctx, "pipeline.calibrate")
	defer span.Finish()
	start := time.Now()

	samples, err := ocr.CollectSamples(ctx, p.engine, doc.Pages, p.cfg.Sample)
	if err != nil {
		span.SetError(err)
		return nil, false, fmt.Errorf("sampling visible text: %w", err)
	}
	prof, err := calibrate.New(p.cfg.Calibrate, p.log).Calibrate(ctx, doc.Faces, samples, dpi)
	if err != nil {
		span.SetError(err)
		return nil, false, fmt.Errorf("calibrating render profile: %w", err)
	}
	p.log.Debug("render profile ready",
		observability.Int64(observability.MetricCalibrateTime, time.Since(start).Milliseconds()))
	return prof, false, nil
}

func (p *Pipeline) locate(ctx context.Context, pages []*raster.Page) ([]locator.Box, error) {
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.locate")
	defer span.Finish()

	loc := locator.New(p.cfg.Locate, p.log)
	var boxes []locator.Box
	for _, page := range pages {
		found, err := loc.Locate(ctx, page)
		if err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("locating redactions on page %d: %w", page.Index, err)
		}
		boxes = append(boxes, found...)
	}
	return boxes, nil
}

// analyzeBoxes fans the redactions out over a worker pool. Each slot is
// written by exactly one worker, so collection needs no locking.
func (p *Pipeline) analyzeBoxes(ctx context.Context, pages []*raster.Page, scorer *score.Scorer, ranker *fusion.Ranker, profile *calibrate.RenderProfile, face typeface.Metrics, cands []candidate.Candidate, boxes []locator.Box) ([]report.RedactionAnalysis, []BoxFailure, error) {
	workers := p.cfg.Workers
	if workers > len(boxes) {
		workers = len(boxes)
	}

	analyses := make([]report.RedactionAnalysis, len(boxes))
	errs := make([]error, len(boxes))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				analyses[i], errs[i] = p.analyzeBox(ctx, pages, scorer, ranker, profile, face, cands, boxes[i])
			}
		}()
	}

feed:
	for i := range boxes {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var out []report.RedactionAnalysis
	var failures []BoxFailure
	for i, err := range errs {
		if err != nil {
			p.log.Warn("redaction analysis failed",
				observability.String("box", boxes[i].String()),
				observability.Error("error", err))
			failures = append(failures, BoxFailure{Box: boxes[i], Err: err})
			continue
		}
		out = append(out, analyses[i])
	}
	return out, failures, nil
}

func (p *Pipeline) analyzeBox(ctx context.Context, pages []*raster.Page, scorer *score.Scorer, ranker *fusion.Ranker, profile *calibrate.RenderProfile, face typeface.Metrics, cands []candidate.Candidate, box locator.Box) (report.RedactionAnalysis, error) {
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.analyze_box")
	defer span.Finish()
	span.SetTag("box", box.String())

	page := pageFor(pages, box.Page)
	if page == nil {
		return report.RedactionAnalysis{}, fmt.Errorf("box references unknown page %d", box.Page)
	}

	haloStart := time.Now()
	bands, err := halo.Extract(p.cfg.Halo, page, box.Rect)
	if err != nil {
		span.SetError(err)
		return report.RedactionAnalysis{}, fmt.Errorf("extracting halo: %w", err)
	}
	artifacts := halo.Analyze(p.cfg.Halo, bands)
	p.log.Debug("halo analyzed",
		observability.String("box", box.String()),
		observability.Float64("aggregate", artifacts.Aggregate),
		observability.Int64(observability.MetricHaloTime, time.Since(haloStart).Milliseconds()))

	boosted, err := p.boostPriors(ctx, cands, box)
	if err != nil {
		span.SetError(err)
		return report.RedactionAnalysis{}, err
	}

	matches, skipped, err := scorer.Score(ctx, float64(box.Rect.Dx()), boosted)
	if err != nil {
		span.SetError(err)
		return report.RedactionAnalysis{}, err
	}

	fuseStart := time.Now()
	ranked := ranker.Rank(matches, artifacts)
	p.log.Debug("candidates ranked",
		observability.String("box", box.String()),
		observability.Int(observability.MetricCandidatesScored, len(ranked)),
		observability.Int64(observability.MetricFuseTime, time.Since(fuseStart).Milliseconds()))

	runes, err := score.EstimateRunes(profile, face, float64(box.Rect.Dx()))
	if err != nil {
		runes = 0
		p.log.Debug("rune estimate unavailable",
			observability.String("box", box.String()),
			observability.Error("error", err))
	}

	return report.RedactionAnalysis{
		Box:            box,
		EstimatedRunes: runes,
		Artifacts:      artifacts,
		Ranked:         ranked,
		Skipped:        skipped,
	}, nil
}

// boostPriors runs the hook over a copy of the candidate list and
// re-sorts it, so the scorer's head cap sees the adjusted priors.
// Priors never go below zero.
func (p *Pipeline) boostPriors(ctx context.Context, cands []candidate.Candidate, box locator.Box) ([]candidate.Candidate, error) {
	if !p.boost.Enabled() {
		return cands, nil
	}
	red := scripting.Redaction{
		Page:   box.Page,
		X:      box.Rect.Min.X,
		Y:      box.Rect.Min.Y,
		Width:  box.Rect.Dx(),
		Height: box.Rect.Dy(),
	}
	out := make([]candidate.Candidate, len(cands))
	for i, c := range cands {
		delta, err := p.boost.Boost(ctx, scripting.Candidate{
			Text:      c.Text,
			Prior:     c.Prior,
			Notes:     c.Notes,
			Redaction: red,
		})
		if err != nil {
			return nil, fmt.Errorf("boost hook: %w", err)
		}
		c.Prior += delta
		if c.Prior < 0 {
			c.Prior = 0
		}
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Prior > out[j].Prior })
	return out, nil
}

func pageFor(pages []*raster.Page, index int) *raster.Page {
	for _, p := range pages {
		if p.Index == index {
			return p
		}
	}
	return nil
}

func faceByName(faces []typeface.Metrics, name string) (typeface.Metrics, error) {
	for _, f := range faces {
		if f.Name() == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("profile typeface %q is not in the supplied font set", name)
}
