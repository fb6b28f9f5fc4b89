// Package raster holds the page snapshots the analysis pipeline works on.
// Pages arrive as pre-rendered images (PNG, JPEG, TIFF or BMP); rasterizing
// the source document is the caller's job.
package raster

import (
	"encoding/hex"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"path/filepath"
	"sort"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"golang.org/x/crypto/blake2b"
)

// Page is an immutable grayscale snapshot of one rendered page.
// DPI is the resolution the page was rendered at; it is supplied by the
// caller because raster formats carry no trustworthy density metadata.
type Page struct {
	Index int
	Gray  *image.Gray
	DPI   int
}

// Decode reads one page image and converts it to grayscale.
func Decode(r io.Reader, index, dpi int) (*Page, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode page image: %w", err)
	}
	return &Page{Index: index, Gray: ToGray(img), DPI: dpi}, nil
}

// Load reads one page image from disk.
func Load(path string, index, dpi int) (*Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page image: %w", err)
	}
	defer f.Close()
	p, err := Decode(f, index, dpi)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return p, nil
}

// LoadGlob loads every file matching pattern, sorted by name, and assigns
// page indices in that order.
func LoadGlob(pattern string, dpi int) ([]*Page, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("glob %q: no files matched", pattern)
	}
	sort.Strings(paths)
	pages := make([]*Page, 0, len(paths))
	for i, path := range paths {
		p, err := Load(path, i, dpi)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// ToGray converts any image to 8-bit grayscale. Images that already are
// *image.Gray are returned as-is.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// Bounds returns the pixel bounds of the page.
func (p *Page) Bounds() image.Rectangle {
	return p.Gray.Bounds()
}

// Fingerprint returns the BLAKE2b-256 digest of the page pixels as hex.
// Reports record it so findings can be tied back to the exact raster that
// produced them.
func (p *Page) Fingerprint() string {
	h, _ := blake2b.New256(nil)
	b := p.Gray.Bounds()
	fmt.Fprintf(h, "%dx%d@%d:", b.Dx(), b.Dy(), p.DPI)
	h.Write(p.Gray.Pix)
	return hex.EncodeToString(h.Sum(nil))
}
