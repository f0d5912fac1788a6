// Package ocr defines the abstraction layer for plugging OCR engines (the
// Tesseract binary, libtesseract through gosseract, or remote services) into
// the image-to-text pipeline. The interfaces are small and transport-agnostic
// so engines can be backed by local binaries, native libraries, or remote
// APIs without leaking provider-specific concerns into callers.
package ocr
