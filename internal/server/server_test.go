package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"

	"github.com/wudi/readease/internal/config"
	"github.com/wudi/readease/internal/util"
	"github.com/wudi/readease/pdf"
)

// fakeProviders answers Gemini and Google speech calls.
func fakeProviders(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		assert.NilError(t, json.NewDecoder(r.Body).Decode(&req))
		answer := "hello from the recording"
		for _, p := range req.Contents[0].Parts {
			if strings.Contains(p.Text, "Their sentense") {
				answer = "  Their sentence is fine.  "
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []interface{}{
				map[string]interface{}{"content": map[string]interface{}{"parts": []interface{}{map[string]string{"text": answer}}}},
			},
		})
	})
	mux.HandleFunc("/v1/text:synthesize", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string][]byte{"audioContent": []byte("ID3audio")})
	})
	return httptest.NewServer(mux)
}

func testConfig(t *testing.T, providerURL string) *config.Config {
	t.Helper()
	c := config.DefaultConfig()
	c.OCR.TesseractCmd = "/nonexistent/tesseract"
	c.Storage.Path = t.TempDir()
	c.HTTPTimeout = 5 * time.Second
	c.Mistral.URL = "http://127.0.0.1:1"
	c.Gemini.URL = providerURL
	c.Google.TTSURL = providerURL
	c.Google.STTURL = providerURL
	if providerURL != "" {
		c.Gemini.APIKey = "key"
		c.Google.APIKey = "key"
	}
	return c
}

func newTestServer(t *testing.T, c *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	s, err := NewServer(context.Background(), zerolog.Nop(), c)
	assert.NilError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, u string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	assert.NilError(t, err)
	resp, err := http.Post(u, "application/json", bytes.NewReader(data))
	assert.NilError(t, err)
	return resp
}

func postFile(t *testing.T, u, filename string, data []byte, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		assert.NilError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	assert.NilError(t, err)
	_, err = fw.Write(data)
	assert.NilError(t, err)
	assert.NilError(t, mw.Close())

	resp, err := http.Post(u, mw.FormDataContentType(), &body)
	assert.NilError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	assert.NilError(t, json.NewDecoder(resp.Body).Decode(v))
}

func assertAPIError(t *testing.T, resp *http.Response, status int, code util.ErrorCode) {
	t.Helper()
	assert.Equal(t, resp.StatusCode, status)
	var res util.ErrorResponse
	decode(t, resp, &res)
	assert.Equal(t, res.Code, string(code))
}

func TestRootRoutes(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t, ""))

	resp, err := http.Get(ts.URL + "/")
	assert.NilError(t, err)
	var welcome WelcomeResponse
	decode(t, resp, &welcome)
	assert.Equal(t, welcome.Name, "ReadEase API")
	assert.Equal(t, welcome.Message, "Welcome to the ReadEase API")
	assert.Equal(t, welcome.Documentation, "/docs")

	resp, err = http.Get(ts.URL + "/docs")
	assert.NilError(t, err)
	var docs []Route
	decode(t, resp, &docs)
	assert.Equal(t, len(docs), len(routes))

	resp, err = http.Get(ts.URL + "/healthz")
	assert.NilError(t, err)
	assert.Equal(t, resp.StatusCode, http.StatusServiceUnavailable)
	var health HealthResponse
	decode(t, resp, &health)
	assert.Equal(t, health.OCR.Engine, "tesseract")
	assert.Assert(t, health.OCR.Error != "")
}

func TestMarkdownRoutes(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t, ""))

	resp := postJSON(t, ts.URL+"/api/markdown-to-pdf", MarkdownRequest{Markdown: "# Notes\n\nSome *text*.", Title: "Notes"})
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, resp.Header.Get("Content-Type"), "application/pdf")
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.NilError(t, err)
	assert.Assert(t, bytes.HasPrefix(data, []byte("%PDF-")))

	resp = postJSON(t, ts.URL+"/api/markdown-to-pdf", MarkdownRequest{Markdown: "  "})
	assertAPIError(t, resp, http.StatusBadRequest, util.ErrorCodeEmptyText)

	resp = postJSON(t, ts.URL+"/api/markdown-to-html", MarkdownRequest{Markdown: "# Title"})
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var html MarkdownToHTMLResponse
	decode(t, resp, &html)
	assert.Assert(t, strings.Contains(html.HTML, "<h1>Title</h1>"))

	resp, err = http.Post(ts.URL+"/api/markdown-to-html", "application/json", strings.NewReader("{"))
	assert.NilError(t, err)
	assertAPIError(t, resp, http.StatusBadRequest, util.ErrorCodeInvalidJSON)
}

func TestPDFToMarkdownLocal(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t, ""))

	doc := pdf.New()
	doc.NewPage(pdf.Letter).DrawText("chapter one", 72, 700, pdf.Helvetica, 12)
	data, err := doc.Bytes()
	assert.NilError(t, err)

	resp := postFile(t, ts.URL+"/api/pdf-to-markdown", "book.pdf", data, nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var res PDFToMarkdownResponse
	decode(t, resp, &res)
	assert.Equal(t, res.Source, "local")
	assert.Equal(t, res.Markdown, "## Page 1\n\nchapter one")

	resp = postFile(t, ts.URL+"/api/pdf-to-markdown", "book.pdf", []byte("plain text"), nil)
	assertAPIError(t, resp, http.StatusBadRequest, util.ErrorCodeUnsupportedMedia)

	resp = postFile(t, ts.URL+"/api/pdf-to-markdown", "book.pdf", nil, nil)
	assertAPIError(t, resp, http.StatusBadRequest, util.ErrorCodeEmptyFile)
}

func TestSpellCorrect(t *testing.T) {
	providers := fakeProviders(t)
	defer providers.Close()
	_, ts := newTestServer(t, testConfig(t, providers.URL))

	resp := postJSON(t, ts.URL+"/api/spell-correct", SpellCorrectRequest{Text: "Their sentense is fine."})
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var res SpellCorrectResponse
	decode(t, resp, &res)
	assert.Equal(t, res.CorrectedText, "Their sentence is fine.")
	assert.Equal(t, res.OriginalText, "Their sentense is fine.")

	resp = postJSON(t, ts.URL+"/api/spell-correct", SpellCorrectRequest{Text: " "})
	assertAPIError(t, resp, http.StatusBadRequest, util.ErrorCodeEmptyText)
}

func TestProvidersNotConfigured(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t, ""))

	resp := postJSON(t, ts.URL+"/api/spell-correct", SpellCorrectRequest{Text: "text"})
	assertAPIError(t, resp, http.StatusServiceUnavailable, util.ErrorCodeProviderNotConfigured)

	resp = postJSON(t, ts.URL+"/api/text-to-speech", TextToSpeechRequest{Text: "text"})
	assertAPIError(t, resp, http.StatusServiceUnavailable, util.ErrorCodeProviderNotConfigured)

	resp = postFile(t, ts.URL+"/api/speech-to-text", "a.wav", []byte("RIFF"), nil)
	assertAPIError(t, resp, http.StatusServiceUnavailable, util.ErrorCodeProviderNotConfigured)
}

func TestTextToSpeech(t *testing.T) {
	providers := fakeProviders(t)
	defer providers.Close()
	_, ts := newTestServer(t, testConfig(t, providers.URL))

	resp := postJSON(t, ts.URL+"/api/text-to-speech", TextToSpeechRequest{Text: "read this aloud"})
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, resp.Header.Get("Content-Type"), "audio/mpeg")
	assert.Assert(t, strings.HasPrefix(resp.Header.Get("X-Audio-Location"), "tts/"))
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.NilError(t, err)
	assert.Equal(t, string(data), "ID3audio")

	rate := 9.0
	resp = postJSON(t, ts.URL+"/api/text-to-speech", TextToSpeechRequest{Text: "fast", Rate: &rate})
	assertAPIError(t, resp, http.StatusBadRequest, util.ErrorCodeInvalidRate)

	resp = postJSON(t, ts.URL+"/api/text-to-speech", TextToSpeechRequest{})
	assertAPIError(t, resp, http.StatusBadRequest, util.ErrorCodeEmptyText)
}

func TestAccessibilityRoute(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html lang="en"><head><title>Home</title></head><body><img src="a.png"></body></html>`)
	}))
	defer page.Close()
	c := testConfig(t, "")
	c.Web.AllowPrivateFetch = true
	_, ts := newTestServer(t, c)

	f := false
	resp := postJSON(t, ts.URL+"/api/web-accessibility/check-accessibility", AccessibilityRequest{URL: page.URL, Summarize: &f})
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var res struct {
		URL             string            `json:"url"`
		Violations      []json.RawMessage `json:"violations"`
		Summary         *string           `json:"summary"`
		TotalViolations int               `json:"total_violations"`
	}
	decode(t, resp, &res)
	assert.Equal(t, res.URL, page.URL)
	assert.Equal(t, res.TotalViolations, 1)
	assert.Assert(t, res.Summary == nil)

	resp = postJSON(t, ts.URL+"/api/web-accessibility/check-accessibility", AccessibilityRequest{URL: "ftp://example.com"})
	assertAPIError(t, resp, http.StatusBadRequest, util.ErrorCodeInvalidURL)

	_, strict := newTestServer(t, testConfig(t, ""))
	resp = postJSON(t, strict.URL+"/api/web-accessibility/check-accessibility", AccessibilityRequest{URL: page.URL, Summarize: &f})
	var errRes util.ErrorResponse
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
	decode(t, resp, &errRes)
	assert.Equal(t, errRes.Detail, "Failed to generate accessibility report")
}

func TestProcessRoutes(t *testing.T) {
	providers := fakeProviders(t)
	defer providers.Close()
	s, ts := newTestServer(t, testConfig(t, providers.URL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.NilError(t, s.tasks.Recover(ctx))
	go func() { _ = s.tasks.Run(ctx) }()

	resp := postFile(t, ts.URL+"/api/process/transcribe", "talk.mp3", []byte("ID3"), map[string]string{"options": `{"language":"en","save_transcript":true}`})
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var started ProcessResponse
	decode(t, resp, &started)
	assert.Equal(t, started.Message, "File uploaded and transcription task started")
	assert.Equal(t, started.FilePath, "uploaded_transcription/"+started.TaskID+".mp3")

	res := waitTask(t, ts.URL, started.TaskID)
	assert.Equal(t, string(res.Status), "completed")
	assert.Equal(t, res.Result["transcript"], "hello from the recording")
	assert.Equal(t, res.Result["language"], "en")

	resp = postFile(t, ts.URL+"/api/process/summarization", "notes.txt", []byte("text"), nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	decode(t, resp, &started)
	res = waitTask(t, ts.URL, started.TaskID)
	assert.Equal(t, string(res.Status), "completed")
	assert.Assert(t, strings.HasPrefix(res.Result["error"].(string), "Unsupported file format."))

	resp = postFile(t, ts.URL+"/api/process/dance", "a.mp3", []byte("ID3"), nil)
	assertAPIError(t, resp, http.StatusBadRequest, util.ErrorCodeUnsupportedProcessType)

	resp = postFile(t, ts.URL+"/api/process/translation", "a.mp3", []byte("ID3"), map[string]string{"options": "nope"})
	assertAPIError(t, resp, http.StatusBadRequest, util.ErrorCodeInvalidJSON)

	resp, err := http.Get(ts.URL + "/api/process/unknown")
	assert.NilError(t, err)
	assertAPIError(t, resp, http.StatusNotFound, util.ErrorCodeTaskNotFound)
}

func waitTask(t *testing.T, baseURL, id string) *TaskResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/api/process/" + id)
		assert.NilError(t, err)
		var res TaskResponse
		decode(t, resp, &res)
		if res.Status != "processing" {
			return &res
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s still processing", id)
	return nil
}

func TestMiddlewares(t *testing.T) {
	c := testConfig(t, "")
	c.Web.MaxUploadBytes = 64
	_, ts := newTestServer(t, c)

	resp := postJSON(t, ts.URL+"/api/spell-correct", SpellCorrectRequest{Text: strings.Repeat("a", 256)})
	assertAPIError(t, resp, http.StatusBadRequest, util.ErrorCodeFileTooLarge)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/", nil)
	assert.NilError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = http.DefaultClient.Do(req)
	assert.NilError(t, err)
	resp.Body.Close()
	assert.Equal(t, resp.Header.Get("Access-Control-Allow-Origin"), "http://localhost:3000")
	assert.Equal(t, resp.Header.Get("Access-Control-Allow-Credentials"), "true")

	req, err = http.NewRequest(http.MethodOptions, ts.URL+"/api/spell-correct", nil)
	assert.NilError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-Client-Trace, Content-Type")
	resp, err = http.DefaultClient.Do(req)
	assert.NilError(t, err)
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Assert(t, strings.Contains(resp.Header.Get("Access-Control-Allow-Headers"), "X-Client-Trace"))
	assert.Equal(t, resp.Header.Get("Access-Control-Allow-Origin"), "http://localhost:3000")
}
