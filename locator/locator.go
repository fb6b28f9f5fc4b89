// Package locator finds candidate redaction rectangles on a page raster.
package locator

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/mortenfj/unredactron/observability"
	"github.com/mortenfj/unredactron/raster"
)

// Box is one detected redaction rectangle in page pixel coordinates.
type Box struct {
	Page int
	Rect image.Rectangle
}

func (b Box) String() string {
	return fmt.Sprintf("page %d (%d,%d) %dx%d", b.Page, b.Rect.Min.X, b.Rect.Min.Y, b.Rect.Dx(), b.Rect.Dy())
}

// Config controls detection. All thresholds are in page pixels at the
// page's render DPI, so callers scanning at other resolutions must scale
// the size floors accordingly.
type Config struct {
	// MaxIntensity is the highest gray value still counted as redaction
	// fill. Scanned fills are rarely a pure 0.
	MaxIntensity uint8
	// MinWidth and MinHeight reject specks and rules. Defaults target
	// name-sized blocks at 600 DPI.
	MinWidth  int
	MinHeight int
	// MinAspect (width/height) rejects photos, logos and stamps.
	MinAspect float64
}

func DefaultConfig() Config {
	return Config{
		MaxIntensity: 15,
		MinWidth:     200,
		MinHeight:    100,
		MinAspect:    1.5,
	}
}

type Locator struct {
	cfg Config
	log observability.Logger
}

func New(cfg Config, log observability.Logger) *Locator {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Locator{cfg: cfg, log: log}
}

// Locate scans the page for connected runs of fill-dark pixels and returns
// the bounding boxes that pass the size and aspect filters, in reading
// order (top to bottom, then left to right). An empty slice means the page
// has nothing to analyze; that is a normal outcome, not an error.
func (l *Locator) Locate(ctx context.Context, page *raster.Page) ([]Box, error) {
	gray := page.Gray
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, nil
	}

	visited := make([]bool, w*h)
	dark := func(x, y int) bool {
		return gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y <= l.cfg.MaxIntensity
	}

	var boxes []Box
	stack := make([]image.Point, 0, 1024)

	for y := 0; y < h; y++ {
		if y%64 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		for x := 0; x < w; x++ {
			if visited[y*w+x] || !dark(x, y) {
				continue
			}

			// Flood fill the component, tracking its bounding box.
			minX, minY, maxX, maxY := x, y, x, y
			stack = append(stack[:0], image.Point{X: x, Y: y})
			visited[y*w+x] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if p.X < minX {
					minX = p.X
				}
				if p.X > maxX {
					maxX = p.X
				}
				if p.Y < minY {
					minY = p.Y
				}
				if p.Y > maxY {
					maxY = p.Y
				}
				for _, q := range [4]image.Point{
					{X: p.X - 1, Y: p.Y},
					{X: p.X + 1, Y: p.Y},
					{X: p.X, Y: p.Y - 1},
					{X: p.X, Y: p.Y + 1},
				} {
					if q.X < 0 || q.X >= w || q.Y < 0 || q.Y >= h {
						continue
					}
					if visited[q.Y*w+q.X] || !dark(q.X, q.Y) {
						continue
					}
					visited[q.Y*w+q.X] = true
					stack = append(stack, q)
				}
			}

			bw := maxX - minX + 1
			bh := maxY - minY + 1
			if bw < l.cfg.MinWidth || bh < l.cfg.MinHeight {
				continue
			}
			if float64(bw)/float64(bh) < l.cfg.MinAspect {
				continue
			}
			boxes = append(boxes, Box{
				Page: page.Index,
				Rect: image.Rect(bounds.Min.X+minX, bounds.Min.Y+minY, bounds.Min.X+maxX+1, bounds.Min.Y+maxY+1),
			})
		}
	}

	sort.Slice(boxes, func(i, j int) bool {
		if boxes[i].Rect.Min.Y != boxes[j].Rect.Min.Y {
			return boxes[i].Rect.Min.Y < boxes[j].Rect.Min.Y
		}
		return boxes[i].Rect.Min.X < boxes[j].Rect.Min.X
	})

	l.log.Debug("redaction scan finished",
		observability.Int("page", page.Index),
		observability.Int(observability.MetricBoxCount, len(boxes)))
	return boxes, nil
}
