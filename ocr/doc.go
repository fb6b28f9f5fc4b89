package ocr

// Package ocr defines abstraction layers for plugging third-party OCR engines
// (for example, Tesseract or cloud services) into the redaction analysis
// pipeline. Calibration only needs word tokens with pixel bounds and
// confidences, so the interfaces are intentionally small and
// transport-agnostic: engines can be backed by native libraries, local
// binaries, or remote APIs without leaking provider-specific concerns into
// callers.
