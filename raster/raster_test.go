package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeConvertsToGray(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, color.White)
		}
	}
	src.Set(0, 0, color.Black)

	page, err := Decode(bytes.NewReader(encodePNG(t, src)), 3, 600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Index != 3 || page.DPI != 600 {
		t.Fatalf("page metadata = (%d, %d), want (3, 600)", page.Index, page.DPI)
	}
	if got := page.Gray.GrayAt(0, 0).Y; got != 0 {
		t.Fatalf("black pixel converted to %d, want 0", got)
	}
	if got := page.Gray.GrayAt(3, 1).Y; got != 255 {
		t.Fatalf("white pixel converted to %d, want 255", got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("not an image")), 0, 600); err == nil {
		t.Fatalf("expected error for undecodable input")
	}
}

func TestToGrayPassthrough(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 2, 2))
	if out := ToGray(g); out != g {
		t.Fatalf("expected same *image.Gray back")
	}
}

func TestFingerprint(t *testing.T) {
	a := &Page{Gray: image.NewGray(image.Rect(0, 0, 8, 8)), DPI: 600}
	b := &Page{Gray: image.NewGray(image.Rect(0, 0, 8, 8)), DPI: 600}

	fa := a.Fingerprint()
	if len(fa) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(fa))
	}
	if fa != b.Fingerprint() {
		t.Fatalf("identical pages should share a fingerprint")
	}

	b.Gray.SetGray(4, 4, color.Gray{Y: 1})
	if fa == b.Fingerprint() {
		t.Fatalf("fingerprint unchanged after pixel edit")
	}

	c := &Page{Gray: image.NewGray(image.Rect(0, 0, 8, 8)), DPI: 1200}
	if fa == c.Fingerprint() {
		t.Fatalf("fingerprint should depend on DPI")
	}
}

func TestLoadGlob(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	data := encodePNG(t, img)
	for _, name := range []string{"page-02.png", "page-01.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	pages, err := LoadGlob(filepath.Join(dir, "page-*.png"), 300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("loaded %d pages, want 2", len(pages))
	}
	for i, p := range pages {
		if p.Index != i {
			t.Fatalf("page %d has index %d", i, p.Index)
		}
		if p.DPI != 300 {
			t.Fatalf("page %d has dpi %d, want 300", i, p.DPI)
		}
	}

	if _, err := LoadGlob(filepath.Join(dir, "missing-*.png"), 300); err == nil {
		t.Fatalf("expected error when nothing matches")
	}
}
