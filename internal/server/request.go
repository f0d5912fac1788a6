package server

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/sorintlab/errors"

	"github.com/wudi/readease/internal/accessibility"
	"github.com/wudi/readease/internal/genai"
	"github.com/wudi/readease/internal/mistral"
	"github.com/wudi/readease/internal/speech"
	"github.com/wudi/readease/internal/util"
)

// multipart bodies beyond this are spooled to disk by ParseMultipartForm
const maxMemory = 8 << 20

type upload struct {
	data        []byte
	filename    string
	contentType string
}

func tooLarge(err error) bool {
	var merr *http.MaxBytesError
	return errors.As(err, &merr)
}

// readUpload reads the "file" multipart field.
func readUpload(r *http.Request) (*upload, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		if tooLarge(err) {
			return nil, util.NewAPIError(util.ErrBadRequest, err, util.WithAPIErrorCode(util.ErrorCodeFileTooLarge), util.WithAPIErrorMsg("uploaded file is too large"))
		}
		return nil, util.NewAPIError(util.ErrBadRequest, errors.Wrapf(err, "invalid multipart form"), util.WithAPIErrorMsg("a multipart form with a file field is required"))
	}
	f, fh, err := r.FormFile("file")
	if err != nil {
		return nil, util.NewAPIError(util.ErrBadRequest, errors.WithStack(err), util.WithAPIErrorMsg("file field is required"))
	}
	defer f.Close()

	data, err := readAll(f)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(data) == 0 {
		return nil, util.NewAPIError(util.ErrBadRequest, errors.New("empty upload"), util.WithAPIErrorCode(util.ErrorCodeEmptyFile), util.WithAPIErrorMsg("Uploaded file is empty."))
	}

	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	return &upload{data: data, filename: fh.Filename, contentType: ct}, nil
}

func readAll(f multipart.File) ([]byte, error) {
	data, err := io.ReadAll(f)
	return data, errors.WithStack(err)
}

func decodeJSON(r *http.Request, v interface{}) error {
	d := json.NewDecoder(r.Body)
	if err := d.Decode(v); err != nil {
		if tooLarge(err) {
			return util.NewAPIError(util.ErrBadRequest, err, util.WithAPIErrorCode(util.ErrorCodeFileTooLarge), util.WithAPIErrorMsg("request body is too large"))
		}
		return util.NewAPIError(util.ErrBadRequest, errors.WithStack(err), util.WithAPIErrorCode(util.ErrorCodeInvalidJSON), util.WithAPIErrorMsg("invalid JSON body"))
	}
	return nil
}

// providerError classifies failures of remote providers.
func providerError(err error) error {
	if _, ok := util.AsAPIError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, genai.ErrNotConfigured):
		return notConfigured(err, genai.ErrNotConfigured)
	case errors.Is(err, mistral.ErrNotConfigured):
		return notConfigured(err, mistral.ErrNotConfigured)
	case errors.Is(err, speech.ErrNotConfigured):
		return notConfigured(err, speech.ErrNotConfigured)
	case errors.Is(err, speech.ErrEmptyText):
		return util.NewAPIError(util.ErrBadRequest, err, util.WithAPIErrorCode(util.ErrorCodeEmptyText), util.WithAPIErrorMsg("text must not be empty"))
	case errors.Is(err, speech.ErrInvalidRate):
		return util.NewAPIError(util.ErrBadRequest, err, util.WithAPIErrorCode(util.ErrorCodeInvalidRate), util.WithAPIErrorMsg("%s", speech.ErrInvalidRate.Error()))
	case errors.Is(err, accessibility.ErrInvalidURL):
		return util.NewAPIError(util.ErrBadRequest, err, util.WithAPIErrorCode(util.ErrorCodeInvalidURL), util.WithAPIErrorMsg("%s", accessibility.ErrInvalidURL.Error()))
	case errors.Is(err, accessibility.ErrReport):
		return util.NewAPIError(util.ErrBadRequest, err, util.WithAPIErrorMsg("Failed to generate accessibility report"))
	}

	var rerr *util.RemoteError
	if errors.As(err, &rerr) {
		return util.NewAPIError(util.ErrUnavailable, err, util.WithAPIErrorCode(util.ErrorCodeProviderFailed), util.WithAPIErrorMsg("provider request failed: %s", rerr.Message))
	}
	return err
}

func notConfigured(err, sentinel error) error {
	return util.NewAPIError(util.ErrUnavailable, err, util.WithAPIErrorCode(util.ErrorCodeProviderNotConfigured), util.WithAPIErrorMsg("%s", sentinel.Error()))
}
