package ocr

import (
	"bytes"
	"fmt"
	"image/png"
	"strconv"

	"github.com/mortenfj/unredactron/raster"
)

// InputOption mutates an OCR input generated from a page raster.
type InputOption func(*Input)

// WithLanguages sets language hints on the OCR input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithRegion sets the recognition region on the OCR input.
func WithRegion(region Region) InputOption {
	return func(in *Input) {
		if region.IsEmpty() {
			in.Region = nil
			return
		}
		in.Region = &region
	}
}

// WithDPI overrides the DPI value on the OCR input.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithMetadata sets provider-specific metadata for the input.
func WithMetadata(metadata map[string]string) InputOption {
	return func(in *Input) {
		if len(metadata) == 0 {
			in.Metadata = nil
			return
		}
		in.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			in.Metadata[k] = v
		}
	}
}

// WithTesseractPSM sets the page segmentation mode (PSM) variable for Tesseract.
// See https://tesseract-ocr.github.io/tessdoc/ImproveQuality.html#page-segmentation-method for values.
func WithTesseractPSM(mode int) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata["tessedit_pageseg_mode"] = strconv.Itoa(mode)
	}
}

// WithTesseractWhitelist restricts recognition to the provided characters.
func WithTesseractWhitelist(chars string) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata["tessedit_char_whitelist"] = chars
	}
}

// InputFromPage converts a page raster into an OCR input using PNG encoding.
// The generated ID is stable for a page index to simplify correlation with
// downstream results. The page DPI is carried over and can be overridden
// with WithDPI.
func InputFromPage(page *raster.Page, opts ...InputOption) (Input, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, page.Gray); err != nil {
		return Input{}, fmt.Errorf("encode page %d: %w", page.Index, err)
	}
	in := Input{
		ID:        fmt.Sprintf("page-%d", page.Index),
		Image:     buf.Bytes(),
		Format:    ImageFormatPNG,
		PageIndex: page.Index,
		DPI:       page.DPI,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}
