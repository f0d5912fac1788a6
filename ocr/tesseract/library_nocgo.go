//go:build !cgo

package tesseract

import (
	"context"
	"errors"

	"github.com/wudi/readease/ocr"
)

// ErrLibraryUnavailable is returned when the binary was built without cgo.
var ErrLibraryUnavailable = errors.New("libtesseract engine requires a cgo build")

// LibraryEngine is unavailable without cgo; use CLIEngine.
type LibraryEngine struct{}

func NewLibraryEngine(string) (*LibraryEngine, error) {
	return nil, ErrLibraryUnavailable
}

func (e *LibraryEngine) Name() string { return "tesseract-library" }

func (e *LibraryEngine) Version(context.Context) (string, error) {
	return "", ErrLibraryUnavailable
}

func (e *LibraryEngine) Recognize(context.Context, ocr.Input) (ocr.Result, error) {
	return ocr.Result{}, ErrLibraryUnavailable
}
