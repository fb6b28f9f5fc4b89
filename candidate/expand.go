package candidate

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	parenRe = regexp.MustCompile(`\s*\([^)]*\)`)
	quoteRe = regexp.MustCompile(`\s*"[^"]*"`)
)

// alternativeSeps separate listed alternatives inside one entry, as in
// "Smith / Smythe" or "Jones aka Johnson". Matched case-insensitively.
var alternativeSeps = []string{"/", " or ", " aka ", ","}

// Expand grows the dictionary into the variant set a brute-force pass
// should try: for every entry, the cleaned full text and each listed
// alternative, plus the word forms of each of those (every word longer
// than two runes and the trailing two- and three-word runs that catch
// compound surnames). Variants inherit the prior of their source entry;
// duplicates keep the highest prior. The result is ordered by prior,
// highest first, then by text.
func Expand(cands []Candidate) []Candidate {
	byText := make(map[string]Candidate)
	keep := func(text string, src Candidate) {
		if utf8.RuneCountInString(text) <= 2 {
			return
		}
		prev, seen := byText[text]
		if !seen || src.Prior > prev.Prior {
			byText[text] = Candidate{Text: text, Prior: src.Prior, Notes: src.Notes}
		}
	}

	for _, src := range cands {
		name := Sanitize(quoteRe.ReplaceAllString(parenRe.ReplaceAllString(src.Text, ""), ""))
		if name == "" {
			continue
		}
		keep(name, src)

		listed := false
		for _, sep := range alternativeSeps {
			if !containsFold(name, sep) {
				continue
			}
			listed = true
			for _, alt := range splitFold(name, sep) {
				alt = strings.TrimSpace(alt)
				if alt == "" {
					continue
				}
				keep(alt, src)
				keepWordForms(keep, alt, src)
			}
		}
		if !listed {
			keepWordForms(keep, name, src)
		}
	}

	out := make([]Candidate, 0, len(byText))
	for _, c := range byText {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Prior != out[j].Prior {
			return out[i].Prior > out[j].Prior
		}
		return out[i].Text < out[j].Text
	})
	return out
}

// keepWordForms adds the word-level variants of one name: individual
// words and the trailing two- and three-word runs.
func keepWordForms(keep func(string, Candidate), name string, src Candidate) {
	words := strings.Fields(name)
	for _, w := range words {
		keep(w, src)
	}
	if len(words) >= 2 {
		keep(strings.Join(words[len(words)-2:], " "), src)
	}
	if len(words) >= 3 {
		keep(strings.Join(words[len(words)-3:], " "), src)
	}
}

func containsFold(s, sep string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sep))
}

// splitFold splits s around every case-insensitive occurrence of sep,
// preserving the original casing of the pieces.
func splitFold(s, sep string) []string {
	lower := strings.ToLower(s)
	sep = strings.ToLower(sep)
	var parts []string
	for {
		i := strings.Index(lower, sep)
		if i < 0 {
			parts = append(parts, s)
			return parts
		}
		parts = append(parts, s[:i])
		s = s[i+len(sep):]
		lower = lower[i+len(sep):]
	}
}
