package calibrate

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"
)

// RenderProfile describes how the source document rendered its text: the
// typeface and nominal point size, the scale factor mapping theoretical
// widths to page pixels, and the inter-glyph tracking in page pixels.
// A profile is only meaningful at the DPI it was calibrated at.
type RenderProfile struct {
	Typeface    string  `json:"typeface"`
	PointSize   float64 `json:"point_size"`
	ScaleFactor float64 `json:"scale_factor"`
	TrackingPx  float64 `json:"tracking_px"`
	// Consistency is the coefficient of variation (in percent) of the
	// per-sample scale ratios at the winning grid cell. Lower is better;
	// high values mean the profile explains the page poorly.
	Consistency float64 `json:"consistency"`
	DPI         int     `json:"dpi"`
	SampleCount int     `json:"sample_count"`
}

// Valid reports whether the profile carries enough information to
// predict widths.
func (p *RenderProfile) Valid() bool {
	return p != nil && p.Typeface != "" && p.PointSize > 0 && p.ScaleFactor > 0
}

// SaveProfile persists a profile as an indented flat JSON object, so it
// can be inspected and edited by hand between runs.
func SaveProfile(path string, p *RenderProfile) error {
	if !p.Valid() {
		return fmt.Errorf("refusing to save invalid profile")
	}
	data, err := sonic.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// LoadProfile reads a previously saved profile.
func LoadProfile(path string) (*RenderProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p RenderProfile
	if err := sonic.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	if !p.Valid() {
		return nil, fmt.Errorf("profile %s is missing typeface, point size or scale", path)
	}
	return &p, nil
}
