// Package genai is a client for the Gemini generateContent REST API.
package genai

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/wudi/readease/internal/util"
)

var (
	// ErrNoCandidates is returned when the model produced no text.
	ErrNoCandidates = errors.New("model returned no candidates")
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("gemini api key not configured")
)

// Part is one piece of a prompt: text or inline media.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inline_data,omitempty"`
}

// Blob is base64 encoded on the wire.
type Blob struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

func Text(s string) Part { return Part{Text: s} }

func Media(mimeType string, data []byte) Part {
	return Part{InlineData: &Blob{MimeType: mimeType, Data: data}}
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type Client struct {
	log    zerolog.Logger
	url    string
	apiKey string
	client *http.Client
}

func NewClient(log zerolog.Logger, baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		log:    log,
		url:    strings.TrimSuffix(baseURL, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// SetHTTPClient replaces default http.Client with user given one.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.client = client
}

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// GenerateContent sends parts as a single user turn to model and returns the
// concatenated text of the first candidate.
func (c *Client) GenerateContent(ctx context.Context, model string, parts ...Part) (string, error) {
	if !c.Configured() {
		return "", errors.WithStack(ErrNotConfigured)
	}

	u := c.url + "/v1beta/models/" + url.PathEscape(model) + ":generateContent"
	header := http.Header{"X-Goog-Api-Key": []string{c.apiKey}}
	req := generateRequest{Contents: []content{{Role: "user", Parts: parts}}}

	start := time.Now()
	var res generateResponse
	if err := util.DoJSON(ctx, c.client, http.MethodPost, u, header, req, &res); err != nil {
		return "", errors.Wrapf(err, "gemini generateContent failed")
	}
	c.log.Debug().Str("model", model).Dur("duration", time.Since(start)).Int("candidates", len(res.Candidates)).Msg("gemini generateContent")

	if len(res.Candidates) == 0 {
		if res.PromptFeedback != nil && res.PromptFeedback.BlockReason != "" {
			return "", errors.Wrapf(ErrNoCandidates, "prompt blocked: %s", res.PromptFeedback.BlockReason)
		}
		return "", errors.WithStack(ErrNoCandidates)
	}

	var sb strings.Builder
	for _, p := range res.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", errors.WithStack(ErrNoCandidates)
	}
	return sb.String(), nil
}
