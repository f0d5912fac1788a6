// Package pdf writes small text-only PDF documents with the standard 14
// fonts and extracts text from existing PDFs on a best-effort basis.
//
// It is deliberately narrow: enough to render markdown documents and to read
// the text layer of uploaded PDFs when no remote OCR provider is available.
package pdf
