package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"
	"gotest.tools/v3/assert"

	"github.com/wudi/readease/internal/util"
)

func TestGenerateContent(t *testing.T) {
	var got map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/v1beta/models/gemini-1.5-flash:generateContent")
		assert.Equal(t, r.Header.Get("X-Goog-Api-Key"), "secret")
		assert.NilError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hello "},{"text":"there"}]}}]}`))
	}))
	defer ts.Close()

	c := NewClient(zerolog.Nop(), ts.URL+"/", "secret", time.Second)
	out, err := c.GenerateContent(context.Background(), "gemini-1.5-flash", Text("hi"), Media("audio/mpeg", []byte{1, 2, 3}))
	assert.NilError(t, err)
	assert.Equal(t, out, "Hello there")

	parts := got["contents"].([]interface{})[0].(map[string]interface{})["parts"].([]interface{})
	assert.Equal(t, parts[0].(map[string]interface{})["text"], "hi")
	inline := parts[1].(map[string]interface{})["inline_data"].(map[string]interface{})
	assert.Equal(t, inline["mime_type"], "audio/mpeg")
	assert.Equal(t, inline["data"], "AQID")
}

func TestGenerateContentErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-Goog-Api-Key") {
		case "empty":
			_, _ = w.Write([]byte(`{"candidates":[]}`))
		case "blocked":
			_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid"}}`))
		}
	}))
	defer ts.Close()

	ctx := context.Background()

	_, err := NewClient(zerolog.Nop(), ts.URL, "", time.Second).GenerateContent(ctx, "m", Text("x"))
	assert.Assert(t, errors.Is(err, ErrNotConfigured))

	_, err = NewClient(zerolog.Nop(), ts.URL, "empty", time.Second).GenerateContent(ctx, "m", Text("x"))
	assert.Assert(t, errors.Is(err, ErrNoCandidates))

	_, err = NewClient(zerolog.Nop(), ts.URL, "blocked", time.Second).GenerateContent(ctx, "m", Text("x"))
	assert.Assert(t, errors.Is(err, ErrNoCandidates))
	assert.ErrorContains(t, err, "SAFETY")

	_, err = NewClient(zerolog.Nop(), ts.URL, "bad", time.Second).GenerateContent(ctx, "m", Text("x"))
	var rerr *util.RemoteError
	assert.Assert(t, errors.As(err, &rerr))
	assert.Equal(t, rerr.StatusCode, http.StatusBadRequest)
	assert.ErrorContains(t, err, "API key not valid")
}
