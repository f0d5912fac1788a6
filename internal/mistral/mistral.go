// Package mistral converts PDF documents to markdown with the Mistral OCR
// API, falling back to local text extraction when no API key is set.
package mistral

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/wudi/readease/internal/util"
	"github.com/wudi/readease/pdf"
)

const (
	SourceMistral = "mistral"
	SourceLocal   = "local"

	uploadFileName = "uploaded.pdf"
)

var ErrNotConfigured = errors.New("mistral api key not configured")

type Image struct {
	ID          string `json:"id"`
	ImageBase64 string `json:"image_base64"`
}

type Page struct {
	Index    int     `json:"index"`
	Markdown string  `json:"markdown"`
	Images   []Image `json:"images"`
}

type OCRResponse struct {
	Pages []Page `json:"pages"`
	Model string `json:"model"`
}

type documentURL struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type ocrRequest struct {
	Model              string      `json:"model"`
	Document           documentURL `json:"document"`
	IncludeImageBase64 bool        `json:"include_image_base64"`
}

type Client struct {
	log    zerolog.Logger
	url    string
	apiKey string
	model  string
	client *http.Client
}

func NewClient(log zerolog.Logger, baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		log:    log,
		url:    strings.TrimSuffix(baseURL, "/"),
		apiKey: apiKey,
		model:  model,
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

func (c *Client) header() http.Header {
	return http.Header{"Authorization": []string{"Bearer " + c.apiKey}}
}

// UploadFile uploads a document for OCR and returns its file id.
func (c *Client) UploadFile(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("purpose", "ocr"); err != nil {
		return "", errors.WithStack(err)
	}
	fw, err := mw.CreateFormFile("file", uploadFileName)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", errors.WithStack(err)
	}
	if err := mw.Close(); err != nil {
		return "", errors.WithStack(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/v1/files", &body)
	if err != nil {
		return "", errors.WithStack(err)
	}
	req.Header = c.header()
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res struct {
		ID string `json:"id"`
	}
	if err := util.DoRequest(c.client, req, &res); err != nil {
		return "", errors.WithStack(err)
	}
	if res.ID == "" {
		return "", errors.Errorf("file upload failed: no valid file id received")
	}
	return res.ID, nil
}

// SignedURL returns a short lived download url for an uploaded file.
func (c *Client) SignedURL(ctx context.Context, fileID string) (string, error) {
	u := c.url + "/v1/files/" + url.PathEscape(fileID) + "/url?" + url.Values{"expiry": {"1"}}.Encode()
	var res struct {
		URL string `json:"url"`
	}
	if err := util.DoJSON(ctx, c.client, http.MethodGet, u, c.header(), nil, &res); err != nil {
		return "", errors.WithStack(err)
	}
	if res.URL == "" {
		return "", errors.Errorf("failed to obtain signed url for file %q", fileID)
	}
	return res.URL, nil
}

// OCR processes the document at documentURL.
func (c *Client) OCR(ctx context.Context, documentURLStr string) (*OCRResponse, error) {
	req := ocrRequest{
		Model:              c.model,
		Document:           documentURL{Type: "document_url", DocumentURL: documentURLStr},
		IncludeImageBase64: true,
	}
	var res OCRResponse
	if err := util.DoJSON(ctx, c.client, http.MethodPost, c.url+"/v1/ocr", c.header(), req, &res); err != nil {
		return nil, errors.WithStack(err)
	}
	return &res, nil
}

// PDFToMarkdown runs the upload, signed url and OCR steps and combines the
// pages into one markdown document.
func (c *Client) PDFToMarkdown(ctx context.Context, data []byte) (string, error) {
	if !c.Configured() {
		return "", errors.WithStack(ErrNotConfigured)
	}
	start := time.Now()

	fileID, err := c.UploadFile(ctx, data)
	if err != nil {
		return "", errors.Wrapf(err, "failed to convert pdf to markdown")
	}
	signed, err := c.SignedURL(ctx, fileID)
	if err != nil {
		return "", errors.Wrapf(err, "failed to convert pdf to markdown")
	}
	res, err := c.OCR(ctx, signed)
	if err != nil {
		return "", errors.Wrapf(err, "failed to convert pdf to markdown")
	}

	c.log.Debug().Str("fileID", fileID).Int("pages", len(res.Pages)).Dur("duration", time.Since(start)).Msg("mistral ocr")
	return CombineMarkdown(res.Pages), nil
}

// CombineMarkdown inlines page images as data URIs and joins the pages with a
// blank line.
func CombineMarkdown(pages []Page) string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		md := p.Markdown
		for _, img := range p.Images {
			data := img.ImageBase64
			if !strings.HasPrefix(data, "data:") {
				data = "data:image/png;base64," + data
			}
			md = strings.ReplaceAll(md, fmt.Sprintf("![%s](%s)", img.ID, img.ID), fmt.Sprintf("![%s](%s)", img.ID, data))
		}
		out = append(out, md)
	}
	return strings.Join(out, "\n\n")
}

// LocalMarkdown renders extracted page text as markdown with one section per
// page.
func LocalMarkdown(pages []pdf.PageText) string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, fmt.Sprintf("## Page %d\n\n%s", p.Number, p.Content))
	}
	return strings.Join(out, "\n\n")
}

// Converter picks the remote OCR when configured and local extraction
// otherwise.
type Converter struct {
	client *Client
}

func NewConverter(client *Client) *Converter {
	return &Converter{client: client}
}

// Convert returns the markdown and the source that produced it.
func (c *Converter) Convert(ctx context.Context, data []byte) (string, string, error) {
	if c.client.Configured() {
		md, err := c.client.PDFToMarkdown(ctx, data)
		return md, SourceMistral, err
	}
	pages, err := pdf.ExtractText(data)
	if err != nil {
		return "", SourceLocal, errors.Wrapf(err, "failed to extract pdf text")
	}
	return LocalMarkdown(pages), SourceLocal, nil
}
