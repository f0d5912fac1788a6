package task

import (
	"bytes"
	"context"
	"strings"

	"github.com/sorintlab/errors"

	"github.com/wudi/readease/ocr"
	"github.com/wudi/readease/pdf"
)

// OCRProcessor recognizes uploaded images with the OCR engine. PDFs are
// read through their text layer.
type OCRProcessor struct {
	engine ocr.Engine
	opts   []ocr.InputOption
}

func NewOCRProcessor(engine ocr.Engine, opts ...ocr.InputOption) *OCRProcessor {
	return &OCRProcessor{engine: engine, opts: opts}
}

func (p *OCRProcessor) Process(ctx context.Context, t *Task, data []byte) (Result, error) {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		pages, err := pdf.ExtractText(data)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to extract pdf text")
		}
		texts := make([]string, 0, len(pages))
		for _, pg := range pages {
			texts = append(texts, pg.Content)
		}
		return Result{
			"text":       strings.Join(texts, "\n\n"),
			"confidence": nil,
			"pages":      len(pages),
		}, nil
	}

	opts := append([]ocr.InputOption{ocr.WithID(t.ID)}, p.opts...)
	if t.Options.Language != "" {
		opts = append(opts, ocr.WithLanguages(strings.Split(t.Options.Language, "+")...))
	}
	res, err := ocr.RecognizeUpload(ctx, p.engine, data, opts...)
	if err != nil {
		if errors.Is(err, ocr.ErrUnsupportedFormat) {
			return Result{"error": "Unsupported file format. Upload an image or a PDF."}, nil
		}
		return nil, errors.Wrapf(err, "ocr failed")
	}
	return Result{
		"text":       res.PlainText,
		"confidence": res.Confidence(),
		"pages":      1,
	}, nil
}
