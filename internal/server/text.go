package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/wudi/readease/internal/util"
)

// Corrector fixes spelling and grammar of a text.
type Corrector interface {
	Correct(ctx context.Context, text string) (string, error)
}

type SpellCorrectRequest struct {
	Text string `json:"text"`
}

type SpellCorrectResponse struct {
	CorrectedText string `json:"corrected_text"`
	OriginalText  string `json:"original_text"`
}

type SpellCorrectHandler struct {
	log       zerolog.Logger
	corrector Corrector
}

func NewSpellCorrectHandler(log zerolog.Logger, corrector Corrector) *SpellCorrectHandler {
	return &SpellCorrectHandler{log: log, corrector: corrector}
}

func (h *SpellCorrectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *SpellCorrectHandler) do(r *http.Request) (*SpellCorrectResponse, error) {
	ctx := r.Context()

	var req SpellCorrectRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, errors.WithStack(err)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, util.NewAPIError(util.ErrBadRequest, errors.New("empty text"), util.WithAPIErrorCode(util.ErrorCodeEmptyText), util.WithAPIErrorMsg("text must not be empty"))
	}

	corrected, err := h.corrector.Correct(ctx, req.Text)
	if err != nil {
		return nil, providerError(err)
	}
	return &SpellCorrectResponse{CorrectedText: corrected, OriginalText: req.Text}, nil
}
