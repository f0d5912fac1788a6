package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DetectFormat sniffs the image format of data. TIFF is not covered by
// http.DetectContentType so its byte order marks are checked first.
func DetectFormat(data []byte) (ImageFormat, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")) {
		return ImageFormatTIFF, nil
	}
	switch ct := http.DetectContentType(data); ct {
	case "image/png":
		return ImageFormatPNG, nil
	case "image/jpeg":
		return ImageFormatJPEG, nil
	case "image/gif":
		return ImageFormatGIF, nil
	case "image/bmp":
		return ImageFormatBMP, nil
	case "image/webp":
		return ImageFormatWebP, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ct)
	}
}

// InputFromUpload converts uploaded image bytes into an OCR input. PNG, JPEG
// and TIFF are passed through untouched; GIF, BMP and WebP are decoded and
// re-encoded as PNG so every engine receives a format Tesseract reads.
func InputFromUpload(data []byte, opts ...InputOption) (Input, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return Input{}, err
	}
	payload := data
	switch format {
	case ImageFormatPNG, ImageFormatJPEG, ImageFormatTIFF:
	default:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return Input{}, fmt.Errorf("decode %s: %w", format, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return Input{}, fmt.Errorf("encode png: %w", err)
		}
		payload = buf.Bytes()
		format = ImageFormatPNG
	}
	in := Input{
		ID:     "upload",
		Image:  payload,
		Format: format,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}
