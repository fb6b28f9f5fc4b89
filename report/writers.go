package report

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Markdown renders the report as a Markdown document, the primary
// human-facing form.
func Markdown(r *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Redaction analysis: %s\n\n", r.Document)
	fmt.Fprintf(&b, "Generated %s at %d DPI.\n\n", r.GeneratedAt.Format(time.RFC3339), r.DPI)

	if r.Profile != nil {
		fmt.Fprintf(&b, "**Render profile:** %s %gpt, scale %.4f, tracking %.2fpx per gap, consistency %.1f%% over %d samples",
			r.Profile.Typeface, r.Profile.PointSize, r.Profile.ScaleFactor,
			r.Profile.TrackingPx, r.Profile.Consistency, r.Profile.SampleCount)
		if r.ManualProfile {
			b.WriteString(" (supplied manually)")
		}
		b.WriteString(".\n\n")
	}
	if r.LowConfidence {
		if r.ManualProfile {
			b.WriteString("> **Low confidence.** The render profile was supplied manually rather than calibrated from this document; treat the width scores as approximate.\n\n")
		} else {
			fmt.Fprintf(&b, "> **Low confidence.** Calibration consistency was %.1f%%; the page renders text less uniformly than width prediction assumes.\n\n", r.Profile.Consistency)
		}
	}

	if len(r.Pages) > 0 {
		b.WriteString("## Pages\n\n")
		b.WriteString("| Page | Size | Fingerprint |\n|---:|---|---|\n")
		for _, p := range r.Pages {
			fmt.Fprintf(&b, "| %d | %dx%d | `%s` |\n", p.Index, p.Width, p.Height, shortHash(p.Fingerprint))
		}
		b.WriteString("\n")
	}

	if r.NothingToAnalyze {
		b.WriteString("No redaction boxes were detected. Nothing to analyze.\n")
		return b.String()
	}

	b.WriteString("## Redactions\n\n")
	for i, red := range r.Redactions {
		writeRedactionMarkdown(&b, i+1, red)
	}
	return b.String()
}

func writeRedactionMarkdown(b *strings.Builder, n int, red Redaction) {
	fmt.Fprintf(b, "### Redaction %d: page %d at (%d, %d), %dx%d px\n\n",
		n, red.Page, red.X, red.Y, red.Width, red.Height)

	if red.EstimatedRunes > 0 {
		fmt.Fprintf(b, "Estimated capacity: about %d characters.\n\n", red.EstimatedRunes)
	}

	a := red.Artifacts
	fmt.Fprintf(b, "Halo artifact confidence %.1f%% (top %s, bottom %s, left %s, right %s).\n\n",
		a.Aggregate, bandLine(a.Top), bandLine(a.Bottom), bandLine(a.Left), bandLine(a.Right))
	for _, p := range a.Protrusions {
		fmt.Fprintf(b, "- %s\n", p)
	}
	if len(a.Protrusions) > 0 {
		b.WriteString("\n")
	}

	if len(red.Matches) == 0 {
		b.WriteString("No candidate survived scoring for this box.\n\n")
	} else {
		// The notes column only appears when the source list annotated
		// at least one shown match.
		withNotes := false
		for _, m := range red.Matches {
			if m.Notes != "" {
				withNotes = true
			}
		}
		header := "| # | Candidate | Rendered as | Predicted px | Error | Fit | Width | Artifact | Combined | Prior |"
		rule := "|--:|---|---|--:|--:|:-:|--:|--:|--:|--:|"
		if withNotes {
			header += " Notes |"
			rule += "---|"
		}
		b.WriteString(header + "\n" + rule + "\n")
		for _, m := range red.Matches {
			fmt.Fprintf(b, "| %d | %s | %s | %.1f | %.2f%% | %s | %.1f | %.1f | %.1f | %.2f |",
				m.Rank, cell(m.Text), cell(m.Variant), m.PredictedPx, m.ErrorPct,
				m.Stars, m.WidthScore, m.ArtifactScore, m.Combined, m.Prior)
			if withNotes {
				fmt.Fprintf(b, " %s |", cell(m.Notes))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if lead := red.Matches[0]; len(lead.Evidence) > 0 {
			fmt.Fprintf(b, "Shape evidence for %s:\n\n", cell(lead.Text))
			for _, line := range lead.Evidence {
				fmt.Fprintf(b, "- %s\n", line)
			}
			b.WriteString("\n")
		}
	}

	if len(red.Skipped) > 0 {
		fmt.Fprintf(b, "%d candidate(s) could not be measured:\n\n", len(red.Skipped))
		for _, s := range red.Skipped {
			fmt.Fprintf(b, "- %s (%s)\n", cell(s.Text), s.Reason)
		}
		b.WriteString("\n")
	}
}

func bandLine(b BandSummary) string {
	if !b.Present {
		return "clipped"
	}
	return fmt.Sprintf("%.1f%%/%d edges", b.GrayRatio, b.EdgeCount)
}

// cell escapes Markdown table separators inside user-controlled text.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func shortHash(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}

// WriteMarkdown writes the Markdown rendering to w.
func WriteMarkdown(w io.Writer, r *Report) error {
	if _, err := io.WriteString(w, Markdown(r)); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	return nil
}

// WriteHTML converts the Markdown rendering to a standalone HTML page.
func WriteHTML(w io.Writer, r *Report) error {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
		),
	)
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(r)), &body); err != nil {
		return fmt.Errorf("converting report to HTML: %w", err)
	}
	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>Redaction analysis: %s</title>\n</head>\n<body>\n", html.EscapeString(r.Document))
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	if _, err := w.Write(page.Bytes()); err != nil {
		return fmt.Errorf("write HTML report: %w", err)
	}
	return nil
}

// WriteJSON streams the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := sonic.ConfigDefault.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report JSON: %w", err)
	}
	return nil
}
