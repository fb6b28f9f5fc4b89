// Package halo isolates and enhances the thin pixel band around a
// redaction box. Anti-aliased letter edges can survive just outside the
// redaction fill, so the band is where shape evidence of the hidden
// text lives.
package halo

import (
	"fmt"
	"image"

	"github.com/mortenfj/unredactron/raster"
)

// Side names one halo band.
type Side int

const (
	SideTop Side = iota
	SideBottom
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideTop:
		return "top"
	case SideBottom:
		return "bottom"
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	}
	return "unknown"
}

// Config sizes the extraction geometry and the artifact thresholds.
// One Config serves a whole run, so concurrent analyses with different
// settings never share state.
type Config struct {
	// Thickness is the width in pixels of the strip hugging each box
	// edge.
	Thickness int
	// CornerRadius is the Manhattan radius of the diamond blanked at
	// each corner of the inflated region. Rectangle corners carry
	// rendering noise, not letter evidence.
	CornerRadius int
	// ArtifactLow and ArtifactHigh bound the intensity range counted
	// as letter evidence: strictly darker than paper, strictly lighter
	// than redaction fill.
	ArtifactLow  uint8
	ArtifactHigh uint8
	// EdgeThreshold is the Sobel gradient magnitude that counts a
	// pixel as an edge.
	EdgeThreshold int
	// DarkMax and MinColumnDark drive side protrusion detection: a
	// band column with more than MinColumnDark pixels darker than
	// DarkMax is part of a protrusion.
	DarkMax       uint8
	MinColumnDark int
	// SlotEvidencePct is the per-slot artifact ratio above which a
	// character slot is flagged as bearing evidence.
	SlotEvidencePct float64
}

func DefaultConfig() Config {
	return Config{
		Thickness:       6,
		CornerRadius:    15,
		ArtifactLow:     20,
		ArtifactHigh:    235,
		EdgeThreshold:   100,
		DarkMax:         150,
		MinColumnDark:   5,
		SlotEvidencePct: 2.0,
	}
}

// Bands is the extracted pixel neighborhood of one redaction box. A
// band clipped away by the page edge is nil and must be treated as
// neutral evidence, never as an error.
type Bands struct {
	// Full is the box inflated by Thickness on all sides, with the box
	// interior and the four corner diamonds blanked to paper white.
	Full *image.Gray
	// Top, Bottom, Left and Right hug the box edges on the outside,
	// corner diamonds blanked. Each is normalized to a zero origin.
	Top    *image.Gray
	Bottom *image.Gray
	Left   *image.Gray
	Right  *image.Gray
	// Box is the redaction rectangle in page coordinates.
	Box image.Rectangle
}

// Band returns the requested side's pixels, nil when clipped away.
func (b *Bands) Band(s Side) *image.Gray {
	switch s {
	case SideTop:
		return b.Top
	case SideBottom:
		return b.Bottom
	case SideLeft:
		return b.Left
	case SideRight:
		return b.Right
	}
	return nil
}

// ExcludedPerCorner returns how many pixels one corner diamond of
// radius r blanks: the count of (i, j) with i+j < r, which closes to
// r·(r+1)/2. Exposed so callers can reason about how much band area
// the corner exclusion costs.
func ExcludedPerCorner(r int) int {
	if r <= 0 {
		return 0
	}
	return r * (r + 1) / 2
}

// Extract cuts the halo of one redaction box out of a page. The box
// must lie fully on the page. Bands that fall off the page edge come
// back nil.
func Extract(cfg Config, page *raster.Page, box image.Rectangle) (*Bands, error) {
	if page == nil || page.Gray == nil {
		return nil, fmt.Errorf("no page raster")
	}
	box = box.Canon()
	if box.Empty() {
		return nil, fmt.Errorf("empty redaction box %v", box)
	}
	bounds := page.Gray.Bounds()
	if !box.In(bounds) {
		return nil, fmt.Errorf("redaction box %v is outside the page %v", box, bounds)
	}

	pad := cfg.Thickness
	region := image.Rect(box.Min.X-pad, box.Min.Y-pad, box.Max.X+pad, box.Max.Y+pad).Intersect(bounds)

	full := copyRegion(page.Gray, region)
	blankCorners(full, cfg.CornerRadius)

	b := &Bands{Full: full, Box: box}
	b.Top = cutBand(full, region, image.Rect(box.Min.X, box.Min.Y-pad, box.Max.X, box.Min.Y))
	b.Bottom = cutBand(full, region, image.Rect(box.Min.X, box.Max.Y, box.Max.X, box.Max.Y+pad))
	b.Left = cutBand(full, region, image.Rect(box.Min.X-pad, box.Min.Y, box.Min.X, box.Max.Y))
	b.Right = cutBand(full, region, image.Rect(box.Max.X, box.Min.Y, box.Max.X+pad, box.Max.Y))

	// Blank the box interior last so the bands are cut from untouched
	// pixels only outside the box.
	fillRect(full, box.Sub(region.Min), 0xFF)
	return b, nil
}

// copyRegion copies a page-coordinate rectangle into a fresh gray
// image normalized to a zero origin.
func copyRegion(src *image.Gray, r image.Rectangle) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		off := src.PixOffset(r.Min.X, r.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+r.Dx()], src.Pix[off:off+r.Dx()])
	}
	return dst
}

// cutBand slices one band rectangle (page coordinates) out of the
// corner-blanked full region. Returns nil when the page edge leaves no
// band area.
func cutBand(full *image.Gray, region, band image.Rectangle) *image.Gray {
	band = band.Intersect(region)
	if band.Empty() {
		return nil
	}
	return copyRegion(full, band.Sub(region.Min))
}

// blankCorners paints the four Manhattan diamonds of the region white.
// The masking is pure geometry, independent of image content.
func blankCorners(img *image.Gray, radius int) {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	for i := 0; i < min(radius, h); i++ {
		for j := 0; j < min(radius, w); j++ {
			if i+j >= radius {
				continue
			}
			img.Pix[i*img.Stride+j] = 0xFF
			img.Pix[i*img.Stride+(w-1-j)] = 0xFF
			img.Pix[(h-1-i)*img.Stride+j] = 0xFF
			img.Pix[(h-1-i)*img.Stride+(w-1-j)] = 0xFF
		}
	}
}

func fillRect(img *image.Gray, r image.Rectangle, v uint8) {
	r = r.Intersect(img.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := img.Pix[y*img.Stride+r.Min.X : y*img.Stride+r.Max.X]
		for x := range row {
			row[x] = v
		}
	}
}
