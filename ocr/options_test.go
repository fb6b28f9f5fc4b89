package ocr

import (
	"image"
	"reflect"
	"testing"

	"github.com/mortenfj/unredactron/raster"
)

func TestInputFromPage(t *testing.T) {
	page := &raster.Page{Index: 2, Gray: image.NewGray(image.Rect(0, 0, 4, 4)), DPI: 600}
	region := Region{X: 0, Y: 0, Width: 1, Height: 1}
	meta := map[string]string{"tessedit_pageseg_mode": "6"}

	in, err := InputFromPage(
		page,
		WithLanguages("eng", "spa"),
		WithRegion(region),
		WithMetadata(meta),
	)
	if err != nil {
		t.Fatalf("InputFromPage() error = %v", err)
	}
	if in.Format != ImageFormatPNG {
		t.Fatalf("unexpected format: %v", in.Format)
	}
	if in.PageIndex != 2 {
		t.Fatalf("unexpected page index: %d", in.PageIndex)
	}
	if got := in.ID; got != "page-2" {
		t.Fatalf("unexpected id: %s", got)
	}
	if len(in.Image) == 0 {
		t.Fatalf("expected encoded image data")
	}
	if in.DPI != 600 {
		t.Fatalf("page DPI not carried over: %d", in.DPI)
	}
	if !reflect.DeepEqual(in.Languages, []string{"eng", "spa"}) {
		t.Fatalf("unexpected languages: %+v", in.Languages)
	}
	if in.Region == nil || *in.Region != region {
		t.Fatalf("unexpected region: %#v", in.Region)
	}
	meta["tessedit_pageseg_mode"] = "7"
	if in.Metadata["tessedit_pageseg_mode"] != "6" {
		t.Fatalf("metadata was not copied: %+v", in.Metadata)
	}
}

func TestWithDPIOverridesPage(t *testing.T) {
	page := &raster.Page{Index: 0, Gray: image.NewGray(image.Rect(0, 0, 2, 2)), DPI: 600}
	in, err := InputFromPage(page, WithDPI(1200))
	if err != nil {
		t.Fatalf("InputFromPage() error = %v", err)
	}
	if in.DPI != 1200 {
		t.Fatalf("unexpected dpi: %d", in.DPI)
	}
}

func TestWithRegionClearsEmpty(t *testing.T) {
	in := Input{Region: &Region{X: 1, Y: 1, Width: 2, Height: 2}}
	WithRegion(Region{})(&in)
	if in.Region != nil {
		t.Fatalf("expected nil region for empty input, got %#v", in.Region)
	}
}

func TestTesseractOptions(t *testing.T) {
	in := Input{}
	WithTesseractPSM(6)(&in)
	if got := in.Metadata["tessedit_pageseg_mode"]; got != "6" {
		t.Fatalf("expected PSM to be set, got %q", got)
	}
	WithTesseractWhitelist("ABC")(&in)
	if got := in.Metadata["tessedit_char_whitelist"]; got != "ABC" {
		t.Fatalf("expected whitelist to be set, got %q", got)
	}
}
