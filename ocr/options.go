package ocr

import "strconv"

// InputOption mutates an OCR input built from an upload.
type InputOption func(*Input)

// WithID sets the identifier echoed back in the result.
func WithID(id string) InputOption {
	return func(in *Input) { in.ID = id }
}

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

// MaxPageSegMode is the highest page segmentation mode tesseract accepts.
const MaxPageSegMode = 13

// ValidPageSegMode reports whether mode is a tesseract page segmentation mode.
func ValidPageSegMode(mode int) bool { return mode >= 0 && mode <= MaxPageSegMode }

// WithTesseractPSM sets the page segmentation mode (PSM) variable for Tesseract.
// See https://tesseract-ocr.github.io/tessdoc/ImproveQuality.html#page-segmentation-method for values.
func WithTesseractPSM(mode int) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata[MetaPageSegMode] = strconv.Itoa(mode)
	}
}

// WithTesseractWhitelist restricts recognition to the provided characters.
func WithTesseractWhitelist(chars string) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata[MetaCharWhitelist] = chars
	}
}

// Tesseract variable names understood by both tesseract engines.
const (
	MetaPageSegMode   = "tessedit_pageseg_mode"
	MetaCharWhitelist = "tessedit_char_whitelist"
)
