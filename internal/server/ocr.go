package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/wudi/readease/internal/util"
	"github.com/wudi/readease/ocr"
)

type ImageToTextHandler struct {
	log    zerolog.Logger
	engine ocr.Engine
	opts   []ocr.InputOption
}

func NewImageToTextHandler(log zerolog.Logger, engine ocr.Engine, opts ...ocr.InputOption) *ImageToTextHandler {
	return &ImageToTextHandler{log: log, engine: engine, opts: opts}
}

type ImageToTextResponse struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

func (h *ImageToTextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *ImageToTextHandler) do(r *http.Request) (*ImageToTextResponse, error) {
	ctx := r.Context()

	up, err := readUpload(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	opts := append([]ocr.InputOption(nil), h.opts...)
	q := r.URL.Query()
	if lang := q.Get("lang"); lang != "" {
		opts = append(opts, ocr.WithLanguages(strings.Split(lang, "+")...))
	}
	if psm := q.Get("psm"); psm != "" {
		mode, err := strconv.Atoi(psm)
		if err != nil {
			return nil, util.NewAPIError(util.ErrBadRequest, errors.WithStack(err), util.WithAPIErrorMsg("psm must be an integer"))
		}
		if !ocr.ValidPageSegMode(mode) {
			return nil, util.NewAPIError(util.ErrBadRequest, errors.Errorf("invalid psm %d", mode), util.WithAPIErrorMsg("psm must be between 0 and %d", ocr.MaxPageSegMode))
		}
		opts = append(opts, ocr.WithTesseractPSM(mode))
	}
	if chars := q.Get("whitelist"); chars != "" {
		opts = append(opts, ocr.WithTesseractWhitelist(chars))
	}
	if raw := q.Get("region"); raw != "" {
		region, err := parseRegion(raw)
		if err != nil {
			return nil, util.NewAPIError(util.ErrBadRequest, err, util.WithAPIErrorMsg("region must be x,y,width,height in pixels"))
		}
		opts = append(opts, ocr.WithRegion(region))
	}

	res, err := ocr.RecognizeUpload(ctx, h.engine, up.data, opts...)
	if err != nil {
		if errors.Is(err, ocr.ErrUnsupportedFormat) {
			return nil, util.NewAPIError(util.ErrBadRequest, err, util.WithAPIErrorCode(util.ErrorCodeUnsupportedMedia), util.WithAPIErrorMsg("unsupported image format, upload PNG, JPEG, GIF, BMP, TIFF or WebP"))
		}
		if errors.Is(err, ocr.ErrInvalidRegion) {
			return nil, util.NewAPIError(util.ErrBadRequest, err, util.WithAPIErrorMsg("region lies outside the image"))
		}
		return nil, errors.Wrapf(err, "failed to extract text from image")
	}

	out := &ImageToTextResponse{Text: res.PlainText}
	if len(res.Words()) > 0 {
		c := res.Confidence()
		out.Confidence = &c
	}
	return out, nil
}

// parseRegion parses "x,y,width,height".
func parseRegion(raw string) (ocr.Region, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return ocr.Region{}, errors.Errorf("invalid region %q", raw)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || f < 0 {
			return ocr.Region{}, errors.Errorf("invalid region %q", raw)
		}
		v[i] = f
	}
	return ocr.Region{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}
