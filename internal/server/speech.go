package server

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/wudi/readease/internal/speech"
	"github.com/wudi/readease/internal/util"
)

type TextToSpeechRequest struct {
	Text  string   `json:"text"`
	Voice string   `json:"voice"`
	Rate  *float64 `json:"rate"`
}

type TextToSpeechHandler struct {
	log         zerolog.Logger
	synthesizer *speech.Synthesizer
	defaultRate float64
}

func NewTextToSpeechHandler(log zerolog.Logger, synthesizer *speech.Synthesizer, defaultRate float64) *TextToSpeechHandler {
	if defaultRate == 0 {
		defaultRate = 1
	}
	return &TextToSpeechHandler{log: log, synthesizer: synthesizer, defaultRate: defaultRate}
}

func (h *TextToSpeechHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	audio, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", `inline; filename="speech.mp3"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
	w.Header().Set("X-Audio-Location", audio.Location)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio.Data); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *TextToSpeechHandler) do(r *http.Request) (*speech.Audio, error) {
	ctx := r.Context()

	var req TextToSpeechRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, errors.WithStack(err)
	}
	rate := h.defaultRate
	if req.Rate != nil {
		rate = *req.Rate
	}

	audio, err := h.synthesizer.Synthesize(ctx, req.Text, req.Voice, rate)
	if err != nil {
		return nil, providerError(err)
	}
	return audio, nil
}

type SpeechToTextHandler struct {
	log    zerolog.Logger
	client *speech.Client
}

func NewSpeechToTextHandler(log zerolog.Logger, client *speech.Client) *SpeechToTextHandler {
	return &SpeechToTextHandler{log: log, client: client}
}

type SpeechToTextResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (h *SpeechToTextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *SpeechToTextHandler) do(r *http.Request) (*SpeechToTextResponse, error) {
	ctx := r.Context()

	if !h.client.Configured() {
		return nil, notConfigured(errors.WithStack(speech.ErrNotConfigured), speech.ErrNotConfigured)
	}
	up, err := readUpload(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	tr, err := h.client.Recognize(ctx, up.data, up.contentType, r.URL.Query().Get("language"))
	if err != nil {
		return nil, providerError(err)
	}
	return &SpeechToTextResponse{Text: tr.Text, Confidence: tr.Confidence}, nil
}
