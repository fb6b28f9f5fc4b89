package halo

import "image"

// ProtrusionClass says where a side protrusion sits against the text
// body: ascender region, x-height body or descender region.
type ProtrusionClass string

const (
	ProtrusionUpper  ProtrusionClass = "upper"
	ProtrusionMiddle ProtrusionClass = "middle"
	ProtrusionLower  ProtrusionClass = "lower"
)

// Protrusion is a run of adjacent band columns carrying enough dark
// pixels to look like a stroke poking out of the redaction.
type Protrusion struct {
	// Start and End bound the column run within the band, End exclusive.
	Start int
	End   int
	Class ProtrusionClass
}

// BandStats describes one halo band. A zero value with Present false
// stands for a band the page edge clipped away.
type BandStats struct {
	Present bool
	// Area is the band's pixel count including corner-blanked pixels,
	// which stay in the denominator.
	Area int
	// GrayRatio is the percentage of pixels strictly inside the
	// artifact intensity range.
	GrayRatio float64
	// EdgeCount is the number of Sobel edge pixels.
	EdgeCount int
}

// ArtifactProfile is the quantitative description of one redaction's
// halo. Top and bottom carry per-column detail for character slot
// queries; the sides carry protrusion runs.
type ArtifactProfile struct {
	Top    BandStats
	Bottom BandStats
	Left   BandStats
	Right  BandStats

	// Aggregate is the weighted artifact confidence. Top and bottom
	// weigh heavier since ascender and descender traces are rarer and
	// more distinctive than side strokes.
	Aggregate float64

	// TopColumns and BottomColumns count artifact-range pixels per
	// band column, left to right. TopRows and BottomRows are the
	// matching band heights, the denominators for slot ratios.
	TopColumns    []int
	BottomColumns []int
	TopRows       int
	BottomRows    int

	// EvidencePct is the slot threshold recorded at analysis time, so
	// later queries judge evidence the way this run was configured.
	EvidencePct float64

	LeftProtrusions  []Protrusion
	RightProtrusions []Protrusion
}

// Band weights for the aggregate confidence.
const (
	weightTop    = 0.3
	weightBottom = 0.3
	weightLeft   = 0.2
	weightRight  = 0.2
)

// Analyze computes the artifact profile of an extracted halo. Absent
// bands contribute nothing and never fail the analysis.
func Analyze(cfg Config, b *Bands) *ArtifactProfile {
	p := &ArtifactProfile{EvidencePct: cfg.SlotEvidencePct}
	if b == nil {
		return p
	}

	p.Top = bandStats(cfg, b.Top)
	p.Bottom = bandStats(cfg, b.Bottom)
	p.Left = bandStats(cfg, b.Left)
	p.Right = bandStats(cfg, b.Right)

	p.Aggregate = p.Top.GrayRatio*weightTop +
		p.Bottom.GrayRatio*weightBottom +
		p.Left.GrayRatio*weightLeft +
		p.Right.GrayRatio*weightRight

	p.TopColumns, p.TopRows = columnCounts(cfg, b.Top)
	p.BottomColumns, p.BottomRows = columnCounts(cfg, b.Bottom)

	p.LeftProtrusions = protrusions(cfg, b.Left)
	p.RightProtrusions = protrusions(cfg, b.Right)
	return p
}

// SlotRatio divides the top or bottom band into `slots` equal-width
// character slots and returns the artifact ratio of slot `index`. The
// second return is false when the band is absent, the query is out of
// range, or the band has fewer columns than slots.
func (p *ArtifactProfile) SlotRatio(side Side, slots, index int) (float64, bool) {
	var cols []int
	var rows int
	switch side {
	case SideTop:
		cols, rows = p.TopColumns, p.TopRows
	case SideBottom:
		cols, rows = p.BottomColumns, p.BottomRows
	default:
		return 0, false
	}
	if slots <= 0 || index < 0 || index >= slots || len(cols) == 0 || rows == 0 {
		return 0, false
	}
	start := index * len(cols) / slots
	end := (index + 1) * len(cols) / slots
	if end <= start {
		return 0, false
	}
	sum := 0
	for _, c := range cols[start:end] {
		sum += c
	}
	return float64(sum) / float64((end-start)*rows) * 100, true
}

// HasEvidence reports whether a character slot shows an artifact ratio
// above the recorded evidence threshold.
func (p *ArtifactProfile) HasEvidence(side Side, slots, index int) bool {
	ratio, ok := p.SlotRatio(side, slots, index)
	return ok && ratio > p.EvidencePct
}

func bandStats(cfg Config, img *image.Gray) BandStats {
	if img == nil {
		return BandStats{}
	}
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	inRange := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := img.Pix[y*img.Stride+x]
			if v > cfg.ArtifactLow && v < cfg.ArtifactHigh {
				inRange++
			}
		}
	}
	edges := sobelEdges(img, cfg.EdgeThreshold)
	edgeCount := 0
	for _, v := range edges.Pix {
		if v > 0 {
			edgeCount++
		}
	}
	stats := BandStats{Present: true, Area: w * h, EdgeCount: edgeCount}
	if stats.Area > 0 {
		stats.GrayRatio = float64(inRange) / float64(stats.Area) * 100
	}
	return stats
}

func columnCounts(cfg Config, img *image.Gray) ([]int, int) {
	if img == nil {
		return nil, 0
	}
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	cols := make([]int, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := img.Pix[y*img.Stride+x]
			if v > cfg.ArtifactLow && v < cfg.ArtifactHigh {
				cols[x]++
			}
		}
	}
	return cols, h
}

// protrusions finds runs of columns with enough dark pixels and
// classifies each run by where its dark rows sit: strokes starting in
// the upper third suggest ascenders or capitals, runs ending in the
// lower third suggest descenders.
func protrusions(cfg Config, img *image.Gray) []Protrusion {
	if img == nil {
		return nil
	}
	w := img.Rect.Dx()
	h := img.Rect.Dy()

	type colDark struct {
		count       int
		first, last int
	}
	darks := make([]colDark, w)
	for x := range darks {
		darks[x] = colDark{first: -1}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img.Pix[y*img.Stride+x] >= cfg.DarkMax {
				continue
			}
			darks[x].count++
			if darks[x].first < 0 {
				darks[x].first = y
			}
			darks[x].last = y
		}
	}

	var runs []Protrusion
	x := 0
	for x < w {
		if darks[x].count <= cfg.MinColumnDark {
			x++
			continue
		}
		start := x
		first, last := darks[x].first, darks[x].last
		for x < w && darks[x].count > cfg.MinColumnDark {
			if darks[x].first < first {
				first = darks[x].first
			}
			if darks[x].last > last {
				last = darks[x].last
			}
			x++
		}
		runs = append(runs, Protrusion{
			Start: start,
			End:   x,
			Class: classifyRun(first, last, h),
		})
	}
	return runs
}

func classifyRun(first, last, height int) ProtrusionClass {
	if float64(first) < 0.3*float64(height) {
		return ProtrusionUpper
	}
	if float64(last) > 0.7*float64(height) {
		return ProtrusionLower
	}
	return ProtrusionMiddle
}
