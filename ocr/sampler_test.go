package ocr

import (
	"context"
	"image"
	"testing"

	"github.com/mortenfj/unredactron/raster"
)

type fakeEngine struct {
	words map[int][]Word
	calls int
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	f.calls++
	return Result{InputID: in.ID, PageIndex: in.PageIndex, Words: f.words[in.PageIndex]}, nil
}

func word(text string, width, conf float64) Word {
	return Word{Text: text, Bounds: Region{X: 10, Y: 10, Width: width, Height: 20}, Confidence: conf}
}

func TestSamplesFromResultFilters(t *testing.T) {
	cfg := DefaultSampleConfig()
	tests := []struct {
		name string
		w    Word
		keep bool
	}{
		{"accepted", word("Company", 120, 0.95), true},
		{"low confidence", word("Company", 120, 0.60), false},
		{"too short", word("To", 40, 0.99), false},
		{"too long", word("Antidisestablishmentarianism", 400, 0.99), false},
		{"too narrow", word("Date", 12, 0.99), false},
		{"whitespace trimmed", word("  Subject  ", 90, 0.92), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SamplesFromResult(Result{Words: []Word{tt.w}}, cfg)
			if tt.keep && len(got) != 1 {
				t.Fatalf("sample was dropped")
			}
			if !tt.keep && len(got) != 0 {
				t.Fatalf("sample was kept: %+v", got)
			}
		})
	}
}

func TestSamplesFromResultTrimsText(t *testing.T) {
	got := SamplesFromResult(Result{Words: []Word{word("  Subject  ", 90, 0.92)}}, DefaultSampleConfig())
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if got[0].Text != "Subject" {
		t.Fatalf("text = %q, want %q", got[0].Text, "Subject")
	}
	if got[0].WidthPx != 90 {
		t.Fatalf("width = %v, want 90", got[0].WidthPx)
	}
}

func TestCollectSamples(t *testing.T) {
	pages := []*raster.Page{
		{Index: 0, Gray: image.NewGray(image.Rect(0, 0, 4, 4)), DPI: 600},
		{Index: 1, Gray: image.NewGray(image.Rect(0, 0, 4, 4)), DPI: 600},
	}
	engine := &fakeEngine{words: map[int][]Word{
		0: {word("Company", 120, 0.95), word("x", 40, 0.99)},
		1: {word("Agreement", 150, 0.91)},
	}}

	samples, err := CollectSamples(context.Background(), engine, pages, DefaultSampleConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.calls != 2 {
		t.Fatalf("engine called %d times, want 2", engine.calls)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if samples[0].Text != "Company" || samples[1].Text != "Agreement" {
		t.Fatalf("samples out of page order: %+v", samples)
	}
}

func TestCollectSamplesHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pages := []*raster.Page{{Index: 0, Gray: image.NewGray(image.Rect(0, 0, 4, 4)), DPI: 600}}
	if _, err := CollectSamples(ctx, &fakeEngine{}, pages, DefaultSampleConfig()); err == nil {
		t.Fatalf("expected context error")
	}
}
