// Package typeface loads candidate fonts and measures theoretical text
// widths with real shaping, so predicted widths include kerning and
// ligatures instead of naive per-character sums.
package typeface

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gofont "github.com/go-text/typesetting/font"
	"golang.org/x/image/font/sfnt"

	"github.com/mortenfj/unredactron/observability"
)

// Typeface is one parsed font file, ready for shaping.
type Typeface struct {
	name string
	path string
	face *gofont.Face
	upem int
}

// Load reads and parses a TrueType/OpenType font file.
func Load(path string) (*Typeface, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	tf, err := LoadBytes(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	tf.path = path
	return tf, nil
}

// LoadBytes parses font data. The fallback name is used when the font
// carries no usable name table entries.
func LoadBytes(fallback string, data []byte) (*Typeface, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("font data is empty")
	}
	meta, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	unitsPerEm := meta.UnitsPerEm()
	if unitsPerEm == 0 {
		return nil, fmt.Errorf("invalid unitsPerEm")
	}

	buf := &sfnt.Buffer{}
	name := strings.TrimSpace(fallback)
	if family, _ := meta.Name(buf, sfnt.NameIDFamily); len(family) > 0 {
		name = family
	}
	if ps, _ := meta.Name(buf, sfnt.NameIDPostScript); len(ps) > 0 {
		name = ps
	}
	if name == "" {
		name = "Unnamed"
	}

	face, err := gofont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse font for shaping: %w", err)
	}

	return &Typeface{name: name, face: face, upem: int(unitsPerEm)}, nil
}

// Name returns the PostScript name when present, else the family name,
// else the fallback given at load time.
func (t *Typeface) Name() string { return t.name }

// Path returns the file the typeface was loaded from, if any.
func (t *Typeface) Path() string { return t.path }

// UnitsPerEm returns the font's design grid resolution.
func (t *Typeface) UnitsPerEm() int { return t.upem }

// Library is an ordered set of typefaces forming one axis of the
// calibration grid.
type Library struct {
	faces []*Typeface
}

// ScanDir loads every .ttf and .otf file in dir, sorted by file name so
// grid order is reproducible. Unparsable files are skipped with a log
// line; an empty result is legal and surfaces later as a calibration
// failure.
func ScanDir(dir string, log observability.Logger) (*Library, error) {
	if log == nil {
		log = observability.NopLogger{}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan fonts: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".ttf", ".otf":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	lib := &Library{}
	for _, name := range names {
		path := filepath.Join(dir, name)
		tf, err := Load(path)
		if err != nil {
			log.Warn("skipping unusable font",
				observability.String("path", path),
				observability.Error("err", err))
			continue
		}
		lib.faces = append(lib.faces, tf)
	}
	log.Debug("typeface library scanned",
		observability.String("dir", dir),
		observability.Int("loaded", len(lib.faces)),
		observability.Int("skipped", len(names)-len(lib.faces)))
	return lib, nil
}

// Add appends a typeface to the library.
func (l *Library) Add(t *Typeface) { l.faces = append(l.faces, t) }

// Faces returns the typefaces in scan order.
func (l *Library) Faces() []*Typeface { return l.faces }

// Len returns the number of typefaces.
func (l *Library) Len() int { return len(l.faces) }
