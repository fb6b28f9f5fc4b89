// Command unredact analyzes redacted document scans: it calibrates how
// the document rendered text, finds the redaction boxes, and ranks
// dictionary candidates by width fit and halo artifact evidence.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mortenfj/unredactron/calibrate"
	"github.com/mortenfj/unredactron/candidate"
	"github.com/mortenfj/unredactron/observability"
	"github.com/mortenfj/unredactron/pipeline"
	"github.com/mortenfj/unredactron/raster"
	"github.com/mortenfj/unredactron/report"
	"github.com/mortenfj/unredactron/scripting"
	"github.com/mortenfj/unredactron/typeface"

	_ "github.com/mortenfj/unredactron/ocr/tesseract"
)

type options struct {
	pages       string
	dpi         int
	fonts       string
	candidates  string
	profile     string
	saveProfile string
	expand      bool
	boost       string
	report      string
	top         int
	workers     int
	maxCands    int
	verbose     bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "unredact: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "unredact: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: unredact -pages <glob> -fonts <dir> -candidates <csv> [flags]\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.pages, "pages", "", "Glob of rendered page images (png/jpeg/tiff/bmp)")
	flag.IntVar(&opts.dpi, "dpi", 600, "Resolution the pages were rendered at")
	flag.StringVar(&opts.fonts, "fonts", "", "Directory of candidate .ttf/.otf typefaces")
	flag.StringVar(&opts.candidates, "candidates", "", "CSV of candidate strings (name,confidence,notes)")
	flag.StringVar(&opts.profile, "profile", "", "Load a stored render profile instead of calibrating")
	flag.StringVar(&opts.saveProfile, "save-profile", "", "Persist the calibrated render profile to this path")
	flag.BoolVar(&opts.expand, "expand", false, "Expand candidates into word forms and alternative spellings")
	flag.StringVar(&opts.boost, "boost", "", "JavaScript boost hook adjusting candidate priors")
	flag.StringVar(&opts.report, "report", "", "Report output path; format by extension (.md/.html/.json), stdout Markdown when empty")
	flag.IntVar(&opts.top, "top", 10, "Ranked matches reported per redaction")
	flag.IntVar(&opts.workers, "workers", 0, "Concurrent redaction analyses (0 = one per CPU)")
	flag.IntVar(&opts.maxCands, "max-candidates", 0, "Cap on candidates scored per redaction (0 = all)")
	flag.BoolVar(&opts.verbose, "verbose", false, "Log progress to stderr")
	flag.Parse()

	if flag.NArg() != 0 {
		flag.Usage()
		return options{}, fmt.Errorf("unexpected argument %q", flag.Arg(0))
	}
	if opts.pages == "" {
		flag.Usage()
		return options{}, fmt.Errorf("missing -pages")
	}
	if opts.fonts == "" {
		flag.Usage()
		return options{}, fmt.Errorf("missing -fonts")
	}
	if opts.candidates == "" {
		flag.Usage()
		return options{}, fmt.Errorf("missing -candidates")
	}
	if opts.dpi <= 0 {
		return options{}, fmt.Errorf("-dpi must be positive")
	}
	return opts, nil
}

func run(opts options) error {
	var log observability.Logger = stderrLogger{verbose: opts.verbose}

	pages, err := raster.LoadGlob(opts.pages, opts.dpi)
	if err != nil {
		return err
	}

	lib, err := typeface.ScanDir(opts.fonts, log)
	if err != nil {
		return err
	}
	if lib.Len() == 0 {
		return fmt.Errorf("no usable fonts in %s", opts.fonts)
	}
	faces := make([]typeface.Metrics, 0, lib.Len())
	for _, face := range lib.Faces() {
		faces = append(faces, typeface.NewMeasurer(face))
	}

	cands, err := candidate.LoadCSV(opts.candidates)
	if err != nil {
		return err
	}

	doc := pipeline.Document{
		Path:       opts.pages,
		Pages:      pages,
		Faces:      faces,
		Candidates: cands,
	}
	if opts.profile != "" {
		manual, err := calibrate.LoadProfile(opts.profile)
		if err != nil {
			return err
		}
		doc.ManualProfile = manual
	}

	cfg := pipeline.DefaultConfig()
	cfg.Workers = opts.workers
	cfg.ExpandCandidates = opts.expand
	cfg.Score.MaxCandidates = opts.maxCands
	cfg.Report.TopN = opts.top

	p := pipeline.New(cfg, log)
	if opts.boost != "" {
		hook, err := scripting.LoadEngine(opts.boost, log)
		if err != nil {
			return err
		}
		p.WithBoost(hook)
	}

	res, err := p.Run(context.Background(), doc)
	if err != nil {
		return err
	}

	if opts.saveProfile != "" {
		if res.ManualProfile {
			log.Warn("profile was supplied, not calibrated; skipping -save-profile")
		} else if err := calibrate.SaveProfile(opts.saveProfile, res.Profile); err != nil {
			return err
		}
	}

	for _, f := range res.Failures {
		fmt.Fprintf(os.Stderr, "unredact: %s: %v\n", f.Box, f.Err)
	}

	return writeReport(opts.report, res.Report)
}

func writeReport(path string, rep *report.Report) error {
	if path == "" {
		return report.WriteMarkdown(os.Stdout, rep)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	var werr error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html":
		werr = report.WriteHTML(f, rep)
	case ".json":
		werr = report.WriteJSON(f, rep)
	default:
		werr = report.WriteMarkdown(f, rep)
	}
	if cerr := f.Close(); werr == nil && cerr != nil {
		werr = fmt.Errorf("close report: %w", cerr)
	}
	return werr
}

// stderrLogger prints one event per line as level, message and
// key=value fields. Debug and Info stay quiet unless -verbose is set.
type stderrLogger struct {
	verbose bool
	with    []observability.Field
}

func (l stderrLogger) Debug(msg string, fields ...observability.Field) {
	if l.verbose {
		l.emit("DEBUG", msg, fields)
	}
}

func (l stderrLogger) Info(msg string, fields ...observability.Field) {
	if l.verbose {
		l.emit("INFO", msg, fields)
	}
}

func (l stderrLogger) Warn(msg string, fields ...observability.Field) {
	l.emit("WARN", msg, fields)
}

func (l stderrLogger) Error(msg string, fields ...observability.Field) {
	l.emit("ERROR", msg, fields)
}

func (l stderrLogger) With(fields ...observability.Field) observability.Logger {
	return stderrLogger{verbose: l.verbose, with: append(l.with[:len(l.with):len(l.with)], fields...)}
}

func (l stderrLogger) emit(level, msg string, fields []observability.Field) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", level, msg)
	for _, f := range l.with {
		fmt.Fprintf(&b, " %s=%v", f.Key(), f.Value())
	}
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key(), f.Value())
	}
	fmt.Fprintln(os.Stderr, b.String())
}
