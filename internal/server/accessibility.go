package server

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/wudi/readease/internal/accessibility"
	"github.com/wudi/readease/internal/util"
)

type AccessibilityRequest struct {
	URL       string `json:"url"`
	Summarize *bool  `json:"summarize"`
}

type AccessibilityHandler struct {
	log     zerolog.Logger
	checker *accessibility.Checker
}

func NewAccessibilityHandler(log zerolog.Logger, checker *accessibility.Checker) *AccessibilityHandler {
	return &AccessibilityHandler{log: log, checker: checker}
}

func (h *AccessibilityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *AccessibilityHandler) do(r *http.Request) (*accessibility.Report, error) {
	ctx := r.Context()

	var req AccessibilityRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, errors.WithStack(err)
	}
	summarize := req.Summarize == nil || *req.Summarize

	report, err := h.checker.Check(ctx, req.URL, summarize)
	if err != nil {
		return nil, providerError(err)
	}
	return report, nil
}
