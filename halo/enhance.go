package halo

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/mortenfj/unredactron/raster"
)

// Enhancement bundles the forensic views of one halo region. Each view
// makes a different class of faint evidence visible to a human
// reviewer: anti-aliasing remnants, structural outlines, low-order bit
// noise and recompression seams.
type Enhancement struct {
	// Contrast stretches the histogram to full range, then amplifies
	// the near-white end where anti-aliasing hides.
	Contrast *image.Gray
	// Edges is a binary Sobel edge map tracing letter outlines.
	Edges *image.Gray
	// BitPlane shows the two least significant bits, scaled visible.
	BitPlane *image.Gray
	// ELA is an error-level analysis: the amplified difference against
	// a JPEG re-encode, exposing regions with unusual compression
	// history.
	ELA *image.Gray
}

// Enhance computes all forensic views of a halo region.
func Enhance(img *image.Gray) (*Enhancement, error) {
	if img == nil {
		return nil, fmt.Errorf("no halo region to enhance")
	}
	// Work on a compact zero-origin copy so the per-pixel passes can
	// walk Pix directly.
	img = copyRegion(img, img.Rect)
	ela, err := errorLevel(img, 90)
	if err != nil {
		return nil, err
	}
	return &Enhancement{
		Contrast: contrastStretch(img, 3.0, -200),
		Edges:    sobelEdges(img, DefaultConfig().EdgeThreshold),
		BitPlane: bitPlane(img),
		ELA:      ela,
	}, nil
}

// contrastStretch normalizes the image to the full intensity range and
// applies a linear gain and offset, clamping to 8 bits.
func contrastStretch(img *image.Gray, alpha, beta float64) *image.Gray {
	out := image.NewGray(img.Rect)
	mn, mx := uint8(0xFF), uint8(0)
	for _, v := range img.Pix {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	scale := 0.0
	if mx > mn {
		scale = 255.0 / float64(mx-mn)
	}
	for i, v := range img.Pix {
		stretched := float64(v-mn) * scale
		out.Pix[i] = clamp8(math.Round(stretched*alpha + beta))
	}
	return out
}

// sobelEdges returns a binary edge map: white where the L1 Sobel
// gradient magnitude reaches the threshold. The one-pixel border stays
// black.
func sobelEdges(img *image.Gray, threshold int) *image.Gray {
	out := image.NewGray(img.Rect)
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	if w < 3 || h < 3 {
		return out
	}
	at := func(x, y int) int { return int(img.Pix[y*img.Stride+x]) }
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			if abs(gx)+abs(gy) >= threshold {
				out.Pix[y*out.Stride+x] = 0xFF
			}
		}
	}
	return out
}

// bitPlane extracts the two least significant bits and scales them to
// the visible range (3 × 85 = 255).
func bitPlane(img *image.Gray) *image.Gray {
	out := image.NewGray(img.Rect)
	for i, v := range img.Pix {
		out.Pix[i] = (v & 0x03) * 85
	}
	return out
}

// errorLevel re-encodes the image as JPEG at the given quality and
// returns the amplified absolute difference.
func errorLevel(img *image.Gray, quality int) (*image.Gray, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("re-encoding halo: %w", err)
	}
	decoded, err := jpeg.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("decoding re-encoded halo: %w", err)
	}
	gray := raster.ToGray(decoded)

	// The decoder may hand back an MCU-padded subimage, so address it
	// through its own bounds instead of walking Pix in parallel.
	out := image.NewGray(img.Rect)
	gb := gray.Bounds()
	for y := 0; y < img.Rect.Dy(); y++ {
		for x := 0; x < img.Rect.Dx(); x++ {
			a := int(img.Pix[y*img.Stride+x])
			b := int(gray.Pix[gray.PixOffset(gb.Min.X+x, gb.Min.Y+y)])
			d := a - b
			if d < 0 {
				d = -d
			}
			out.Pix[y*out.Stride+x] = clamp8(float64(d * 10))
		}
	}
	return out, nil
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
