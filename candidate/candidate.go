// Package candidate loads and prepares the dictionary of texts that may
// lie under a redaction. Entries come from a simple CSV list, are
// normalized so width prediction sees the same bytes a renderer would,
// and can be expanded into name variants for brute-force matching.
package candidate

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Candidate is one dictionary entry: the text that may lie under a
// redaction and a prior weight carried over from the source list. The
// prior never decides a match on its own; it only breaks near-ties.
type Candidate struct {
	Text  string
	Prior float64
	Notes string
}

var (
	upperCaser = cases.Upper(language.Und)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// LoadCSV reads candidates from path. See ParseCSV for the format.
func LoadCSV(path string) ([]Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candidate list: %w", err)
	}
	defer f.Close()
	cands, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parsing candidate list %s: %w", path, err)
	}
	return cands, nil
}

// ParseCSV reads a candidate list with a `name,confidence,notes` header.
// Column order is free, extra columns are ignored, rows whose name is
// empty or starts with '#' are skipped. The confidence column accepts a
// number or tally markers ('+' counts 1, '?' counts 0.5, '~' counts
// 0.3). The result is sorted by prior, highest first, keeping file
// order between equal priors.
func ParseCSV(r io.Reader) ([]Candidate, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	nameCol, confCol, notesCol := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name":
			nameCol = i
		case "confidence":
			confCol = i
		case "notes":
			notesCol = i
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("candidate list has no name column")
	}

	var cands []Candidate
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		if nameCol >= len(record) {
			continue
		}
		name := Sanitize(record[nameCol])
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		c := Candidate{Text: name}
		if confCol >= 0 && confCol < len(record) {
			c.Prior = parsePrior(record[confCol])
		}
		if notesCol >= 0 && notesCol < len(record) {
			c.Notes = strings.TrimSpace(record[notesCol])
		}
		cands = append(cands, c)
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Prior > cands[j].Prior })
	return cands, nil
}

// parsePrior reads the confidence column: a plain number, or a string
// of tally markers as used in hand-maintained lists.
func parsePrior(field string) float64 {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0
	}
	if v, err := strconv.ParseFloat(field, 64); err == nil {
		return v
	}
	var prior float64
	prior += float64(strings.Count(field, "+"))
	prior += float64(strings.Count(field, "?")) * 0.5
	prior += float64(strings.Count(field, "~")) * 0.3
	return prior
}

// Sanitize normalizes a candidate for measurement: NFC form, zero-width
// runes and control characters removed, runs of whitespace collapsed to
// a single space, ends trimmed. Width prediction and slot analysis both
// assume the text has been through here.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff':
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	s = spaceRe.ReplaceAllString(b.String(), " ")
	return strings.TrimSpace(s)
}

// CaseVariants returns the renderings a candidate is scored under: the
// literal text and, when it differs, the all-capitals form that
// official documents often use.
func CaseVariants(s string) []string {
	upper := upperCaser.String(s)
	if upper == s {
		return []string{s}
	}
	return []string{s, upper}
}
