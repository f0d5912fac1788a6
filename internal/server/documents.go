package server

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/wudi/readease/internal/mistral"
	"github.com/wudi/readease/internal/util"
	"github.com/wudi/readease/layout"
	"github.com/wudi/readease/observability"
	"github.com/wudi/readease/pdf"
)

type PDFToMarkdownHandler struct {
	log       zerolog.Logger
	converter *mistral.Converter
}

func NewPDFToMarkdownHandler(log zerolog.Logger, converter *mistral.Converter) *PDFToMarkdownHandler {
	return &PDFToMarkdownHandler{log: log, converter: converter}
}

type PDFToMarkdownResponse struct {
	Markdown string `json:"markdown"`
	Source   string `json:"source"`
}

func (h *PDFToMarkdownHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *PDFToMarkdownHandler) do(r *http.Request) (*PDFToMarkdownResponse, error) {
	ctx := r.Context()

	up, err := readUpload(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(up.data, " \t\r\n"), []byte("%PDF-")) {
		return nil, util.NewAPIError(util.ErrBadRequest, errors.WithStack(pdf.ErrNotPDF), util.WithAPIErrorCode(util.ErrorCodeUnsupportedMedia), util.WithAPIErrorMsg("uploaded file is not a PDF"))
	}

	md, source, err := h.converter.Convert(ctx, up.data)
	if err != nil {
		return nil, providerError(err)
	}
	return &PDFToMarkdownResponse{Markdown: md, Source: source}, nil
}

type MarkdownRequest struct {
	Markdown string `json:"markdown"`
	Title    string `json:"title"`
}

type MarkdownToPDFHandler struct {
	log     zerolog.Logger
	project string
}

func NewMarkdownToPDFHandler(log zerolog.Logger, project string) *MarkdownToPDFHandler {
	return &MarkdownToPDFHandler{log: log, project: project}
}

func (h *MarkdownToPDFHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="document.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *MarkdownToPDFHandler) do(r *http.Request) ([]byte, error) {
	var req MarkdownRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, errors.WithStack(err)
	}

	info := pdf.Info{Title: req.Title, Producer: h.project, Created: time.Now()}
	data, err := layout.MarkdownToPDF(req.Markdown, info, layout.WithLogger(observability.NewZerolog(h.log)))
	if err != nil {
		if errors.Is(err, layout.ErrEmptyDocument) {
			return nil, util.NewAPIError(util.ErrBadRequest, err, util.WithAPIErrorCode(util.ErrorCodeEmptyText), util.WithAPIErrorMsg("markdown must not be empty"))
		}
		return nil, errors.Wrapf(err, "failed to render pdf")
	}
	return data, nil
}

type MarkdownToHTMLHandler struct {
	log zerolog.Logger
}

func NewMarkdownToHTMLHandler(log zerolog.Logger) *MarkdownToHTMLHandler {
	return &MarkdownToHTMLHandler{log: log}
}

type MarkdownToHTMLResponse struct {
	HTML string `json:"html"`
}

func (h *MarkdownToHTMLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *MarkdownToHTMLHandler) do(r *http.Request) (*MarkdownToHTMLResponse, error) {
	var req MarkdownRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, errors.WithStack(err)
	}

	out, err := layout.RenderHTML(req.Markdown)
	if err != nil {
		if errors.Is(err, layout.ErrEmptyDocument) {
			return nil, util.NewAPIError(util.ErrBadRequest, err, util.WithAPIErrorCode(util.ErrorCodeEmptyText), util.WithAPIErrorMsg("markdown must not be empty"))
		}
		return nil, errors.Wrapf(err, "failed to render html")
	}
	return &MarkdownToHTMLResponse{HTML: out}, nil
}
