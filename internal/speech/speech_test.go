package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"
	"gotest.tools/v3/assert"

	"github.com/wudi/readease/internal/objectstorage"
)

func fakeGoogle(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/text:synthesize", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, r.Header.Get("X-Goog-Api-Key"), "key")
		var req synthesizeRequest
		assert.NilError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, req.Voice.SSMLGender, "NEUTRAL")
		assert.Equal(t, req.AudioConfig.AudioEncoding, "MP3")
		_ = json.NewEncoder(w).Encode(map[string][]byte{"audioContent": []byte("mp3:" + req.Voice.LanguageCode + ":" + req.Voice.Name + ":" + req.Input.Text)})
	})
	mux.HandleFunc("/v1/speech:recognize", func(w http.ResponseWriter, r *http.Request) {
		var req recognizeRequest
		assert.NilError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, req.Config.Encoding, "LINEAR16")
		assert.Equal(t, req.Config.LanguageCode, "en-US")
		assert.Assert(t, req.Config.EnableAutomaticPunctuation)
		assert.Equal(t, string(req.Audio.Content), "RIFF")
		_, _ = w.Write([]byte(`{"results":[
			{"alternatives":[{"transcript":"hello there.","confidence":0.9},{"transcript":"hollow","confidence":0.1}]},
			{"alternatives":[{"transcript":" general kenobi","confidence":0.7}]},
			{"alternatives":[]}
		]}`))
	})
	return httptest.NewServer(mux)
}

func TestSynthesize(t *testing.T) {
	var calls int32
	ts := fakeGoogle(t, &calls)
	defer ts.Close()

	c := NewClient(zerolog.Nop(), ts.URL, ts.URL, "key", "", time.Second)
	ctx := context.Background()

	data, err := c.Synthesize(ctx, "hi", "default", 1)
	assert.NilError(t, err)
	assert.Equal(t, string(data), "mp3:en-US:en-US-Wavenet-D:hi")

	data, err = c.Synthesize(ctx, "hallo", "de-DE-Standard-A", 1)
	assert.NilError(t, err)
	assert.Equal(t, string(data), "mp3:de-DE:de-DE-Standard-A:hallo")

	_, err = c.Synthesize(ctx, "  ", "", 1)
	assert.Assert(t, errors.Is(err, ErrEmptyText))
	_, err = c.Synthesize(ctx, "hi", "", 4.5)
	assert.Assert(t, errors.Is(err, ErrInvalidRate))
	_, err = c.Synthesize(ctx, "hi", "", 0.2)
	assert.Assert(t, errors.Is(err, ErrInvalidRate))

	nc := NewClient(zerolog.Nop(), ts.URL, ts.URL, "", "", time.Second)
	_, err = nc.Synthesize(ctx, "hi", "", 1)
	assert.Assert(t, errors.Is(err, ErrNotConfigured))
}

func TestSynthesizerCachesAudio(t *testing.T) {
	var calls int32
	ts := fakeGoogle(t, &calls)
	defer ts.Close()

	ost, err := objectstorage.NewPosix(t.TempDir())
	assert.NilError(t, err)
	c := NewClient(zerolog.Nop(), ts.URL, ts.URL, "key", "", time.Second)
	s := NewSynthesizer(zerolog.Nop(), c, ost)
	ctx := context.Background()

	a, err := s.Synthesize(ctx, "hi", "", 1)
	assert.NilError(t, err)
	assert.Equal(t, a.Path, AudioPath("hi", DefaultVoice, 1))
	assert.Equal(t, a.Location, a.Path)

	b, err := s.Synthesize(ctx, "hi", "default", 1)
	assert.NilError(t, err)
	assert.DeepEqual(t, b.Data, a.Data)
	assert.Equal(t, atomic.LoadInt32(&calls), int32(1))

	_, err = s.Synthesize(ctx, "hi", "", 2)
	assert.NilError(t, err)
	assert.Equal(t, atomic.LoadInt32(&calls), int32(2))
}

func TestRecognize(t *testing.T) {
	var calls int32
	ts := fakeGoogle(t, &calls)
	defer ts.Close()

	c := NewClient(zerolog.Nop(), ts.URL, ts.URL, "key", "", time.Second)
	tr, err := c.Recognize(context.Background(), []byte("RIFF"), "audio/wav", "")
	assert.NilError(t, err)
	assert.Equal(t, tr.Text, "hello there. general kenobi")
	assert.Assert(t, tr.Confidence > 0.79 && tr.Confidence < 0.81)

	_, err = c.Recognize(context.Background(), nil, "audio/wav", "")
	assert.Assert(t, errors.Is(err, ErrEmptyAudio))
}

func TestLanguageOf(t *testing.T) {
	tests := map[string]string{
		"en-GB-Neural2-A":  "en-GB",
		"cmn-CN-Wavenet-A": "cmn-CN",
		"Wavenet":          "en-US",
		"":                 "en-US",
	}
	for voice, want := range tests {
		if got := LanguageOf(voice); got != want {
			t.Fatalf("LanguageOf(%q) = %q, want %q", voice, got, want)
		}
	}
}

func TestEncoding(t *testing.T) {
	tests := map[string]string{
		"audio/flac":               "FLAC",
		"audio/wav":                "LINEAR16",
		"audio/ogg; codecs=opus":   "OGG_OPUS",
		"audio/mpeg":               "MP3",
		"application/octet-stream": "",
	}
	for ct, want := range tests {
		if got := Encoding(ct); got != want {
			t.Fatalf("Encoding(%q) = %q, want %q", ct, got, want)
		}
	}
}
