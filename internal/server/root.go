package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/wudi/readease/internal/config"
	"github.com/wudi/readease/internal/util"
)

type WelcomeHandler struct {
	log     zerolog.Logger
	project config.Project
}

func NewWelcomeHandler(log zerolog.Logger, project config.Project) *WelcomeHandler {
	return &WelcomeHandler{log: log, project: project}
}

type WelcomeResponse struct {
	Message       string `json:"message"`
	Name          string `json:"name"`
	Version       string `json:"version"`
	Documentation string `json:"documentation"`
}

func (h *WelcomeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := &WelcomeResponse{
		Message:       "Welcome to the " + h.project.Name,
		Name:          h.project.Name,
		Version:       h.project.Version,
		Documentation: "/docs",
	}
	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

type Route struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var routes = []Route{
	{"GET", "/healthz", "liveness and OCR engine check"},
	{"POST", "/api/image-to-text", "multipart file: OCR an image"},
	{"POST", "/api/pdf-to-markdown", "multipart file: convert a PDF to markdown"},
	{"POST", "/api/markdown-to-pdf", "JSON {markdown}: render markdown as PDF"},
	{"POST", "/api/markdown-to-html", "JSON {markdown}: render markdown with math as HTML"},
	{"POST", "/api/text-to-speech", "JSON {text, voice, rate}: synthesize MP3 audio"},
	{"POST", "/api/speech-to-text", "multipart file: transcribe short audio"},
	{"POST", "/api/spell-correct", "JSON {text}: fix spelling and grammar"},
	{"POST", "/api/web-accessibility/check-accessibility", "JSON {url, summarize}: report accessibility violations"},
	{"POST", "/api/process/{process_type}", "multipart file: start a transcription, translation, summarization or ocr task"},
	{"POST", "/api/process/transcribe", "multipart file: start a transcription task"},
	{"GET", "/api/process/{task_id}", "task status and result"},
}

type DocsHandler struct {
	log zerolog.Logger
}

func NewDocsHandler(log zerolog.Logger) *DocsHandler {
	return &DocsHandler{log: log}
}

func (h *DocsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := util.HTTPResponse(w, http.StatusOK, routes); err != nil {
		h.log.Err(err).Send()
	}
}

// Versioner reports the version of the OCR engine, failing when the engine
// cannot be used.
type Versioner interface {
	Name() string
	Version(ctx context.Context) (string, error)
}

const healthTimeout = 5 * time.Second

type HealthHandler struct {
	log    zerolog.Logger
	engine Versioner
}

func NewHealthHandler(log zerolog.Logger, engine Versioner) *HealthHandler {
	return &HealthHandler{log: log, engine: engine}
}

type OCRHealth struct {
	Engine  string `json:"engine"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status string    `json:"status"`
	OCR    OCRHealth `json:"ocr"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	res := &HealthResponse{Status: "ok", OCR: OCRHealth{Engine: h.engine.Name()}}
	code := http.StatusOK
	version, err := h.engine.Version(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("ocr engine unavailable")
		res.Status = "unavailable"
		res.OCR.Error = err.Error()
		code = http.StatusServiceUnavailable
	}
	res.OCR.Version = version

	if err := util.HTTPResponse(w, code, res); err != nil {
		h.log.Err(err).Send()
	}
}
