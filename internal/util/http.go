package util

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/sorintlab/errors"
)

func HTTPResponse(w http.ResponseWriter, code int, res interface{}) error {
	w.Header().Set("Content-Type", "application/json")

	if res != nil {
		resj, err := json.Marshal(res)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return errors.WithStack(err)
		}
		w.WriteHeader(code)
		_, err = w.Write(resj)
		return errors.WithStack(err)
	}

	w.WriteHeader(code)
	return nil
}

type ErrorResponse struct {
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail"`
}

func ErrorResponseFromError(err error) *ErrorResponse {
	if err == nil {
		return nil
	}

	if derr, ok := AsAPIError(err); ok {
		msg := derr.Message
		if msg == "" {
			msg = "internal server error"
		}
		return &ErrorResponse{Code: string(derr.Code), Detail: msg}
	}

	// on generic error return a generic message to not leak the real error
	return &ErrorResponse{Detail: "internal server error"}
}

func HTTPError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}

	response := ErrorResponseFromError(err)
	resj, merr := json.Marshal(response)
	if merr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return true
	}

	code := http.StatusInternalServerError

	if derr, ok := AsAPIError(err); ok {
		switch derr.Kind {
		case ErrBadRequest:
			code = http.StatusBadRequest
		case ErrNotExist:
			code = http.StatusNotFound
		case ErrUnavailable:
			code = http.StatusServiceUnavailable
		case ErrInternal:
			code = http.StatusInternalServerError
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(resj)

	return true
}

// ErrFromRemote returns a *RemoteError for non-2xx responses. The message is
// taken from the common JSON error envelopes used by Google and Mistral.
func ErrFromRemote(resp *http.Response) error {
	if resp == nil {
		return nil
	}
	if resp.StatusCode/100 == 2 {
		return nil
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return errors.WithStack(err)
	}
	resp.Body = io.NopCloser(bytes.NewBuffer(data))

	return errors.WithStack(&RemoteError{StatusCode: resp.StatusCode, Message: remoteMessage(data)})
}

func remoteMessage(data []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return strings.TrimSpace(string(data))
	}
	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var s string
		if err := json.Unmarshal(envelope.Error, &s); err == nil {
			return s
		}
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	if len(envelope.Detail) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Detail, &s); err == nil {
			return s
		}
		return string(envelope.Detail)
	}
	return ""
}

// DoJSON sends in (when non nil) as a JSON body and decodes the response
// into out (when non nil).
func DoJSON(ctx context.Context, client *http.Client, method, url string, header http.Header, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.WithStack(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return errors.WithStack(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return DoRequest(client, req, out)
}

// DoRequest executes req and decodes a JSON response into out.
func DoRequest(client *http.Client, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := ErrFromRemote(resp); err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode response from %s", req.URL.Host)
	}
	return nil
}
