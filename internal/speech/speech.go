// Package speech wraps the Google Cloud Text-to-Speech and Speech-to-Text
// REST APIs.
package speech

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/wudi/readease/internal/objectstorage"
	"github.com/wudi/readease/internal/util"
)

const (
	DefaultVoice    = "en-US-Wavenet-D"
	DefaultLanguage = "en-US"

	MinRate = 0.25
	MaxRate = 4.0
)

var (
	ErrNotConfigured = errors.New("google api key not configured")
	ErrEmptyText     = errors.New("text must not be empty")
	ErrInvalidRate   = errors.Errorf("rate must be between %g and %g", MinRate, MaxRate)
	ErrEmptyAudio    = errors.New("audio must not be empty")
)

type Client struct {
	log          zerolog.Logger
	ttsURL       string
	sttURL       string
	apiKey       string
	defaultVoice string
	client       *http.Client
}

func NewClient(log zerolog.Logger, ttsURL, sttURL, apiKey, defaultVoice string, timeout time.Duration) *Client {
	if defaultVoice == "" {
		defaultVoice = DefaultVoice
	}
	return &Client{
		log:          log,
		ttsURL:       strings.TrimSuffix(ttsURL, "/"),
		sttURL:       strings.TrimSuffix(sttURL, "/"),
		apiKey:       apiKey,
		defaultVoice: defaultVoice,
		client:       &http.Client{Timeout: timeout},
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
	return http.Header{"X-Goog-Api-Key": []string{c.apiKey}}
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
	SSMLGender   string `json:"ssmlGender"`
}

type audioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate"`
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice       voiceSelection `json:"voice"`
	AudioConfig audioConfig    `json:"audioConfig"`
}

// ResolveVoice maps "" and "default" to the configured voice.
func (c *Client) ResolveVoice(voice string) string {
	if voice == "" || voice == "default" {
		return c.defaultVoice
	}
	return voice
}

// LanguageOf derives the language code from a voice name like
// "de-DE-Wavenet-A".
func LanguageOf(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 3 || len(parts[0]) < 2 || len(parts[1]) != 2 {
		return DefaultLanguage
	}
	return parts[0] + "-" + parts[1]
}

func ValidateRate(rate float64) error {
	if rate < MinRate || rate > MaxRate {
		return errors.WithStack(ErrInvalidRate)
	}
	return nil
}

// Synthesize returns MP3 audio for text.
func (c *Client) Synthesize(ctx context.Context, text, voice string, rate float64) ([]byte, error) {
	if !c.Configured() {
		return nil, errors.WithStack(ErrNotConfigured)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.WithStack(ErrEmptyText)
	}
	if err := ValidateRate(rate); err != nil {
		return nil, err
	}
	voice = c.ResolveVoice(voice)

	var req synthesizeRequest
	req.Input.Text = text
	req.Voice = voiceSelection{LanguageCode: LanguageOf(voice), Name: voice, SSMLGender: "NEUTRAL"}
	req.AudioConfig = audioConfig{AudioEncoding: "MP3", SpeakingRate: rate}

	var res struct {
		AudioContent []byte `json:"audioContent"`
	}
	if err := util.DoJSON(ctx, c.client, http.MethodPost, c.ttsURL+"/v1/text:synthesize", c.header(), req, &res); err != nil {
		return nil, errors.Wrapf(err, "text to speech failed")
	}
	if len(res.AudioContent) == 0 {
		return nil, errors.Errorf("text to speech returned no audio")
	}
	c.log.Debug().Str("voice", voice).Int("bytes", len(res.AudioContent)).Msg("synthesized speech")
	return res.AudioContent, nil
}

// Encoding maps an upload content type to a recognition encoding. Unknown
// types leave the encoding unspecified so the API sniffs the header.
func Encoding(contentType string) string {
	ct := strings.ToLower(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "audio/flac", "audio/x-flac":
		return "FLAC"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "LINEAR16"
	case "audio/ogg", "audio/opus":
		return "OGG_OPUS"
	case "audio/mpeg", "audio/mp3":
		return "MP3"
	case "audio/webm":
		return "WEBM_OPUS"
	}
	return ""
}

type recognitionConfig struct {
	Encoding                   string `json:"encoding,omitempty"`
	LanguageCode               string `json:"languageCode"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
}

type recognizeRequest struct {
	Config recognitionConfig `json:"config"`
	Audio  struct {
		Content []byte `json:"content"`
	} `json:"audio"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognize transcribes short audio. Language defaults to en-US.
func (c *Client) Recognize(ctx context.Context, audio []byte, contentType, language string) (*Transcript, error) {
	if !c.Configured() {
		return nil, errors.WithStack(ErrNotConfigured)
	}
	if len(audio) == 0 {
		return nil, errors.WithStack(ErrEmptyAudio)
	}
	if language == "" {
		language = DefaultLanguage
	}

	var req recognizeRequest
	req.Config = recognitionConfig{
		Encoding:                   Encoding(contentType),
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}
	req.Audio.Content = audio

	var res recognizeResponse
	if err := util.DoJSON(ctx, c.client, http.MethodPost, c.sttURL+"/v1/speech:recognize", c.header(), req, &res); err != nil {
		return nil, errors.Wrapf(err, "speech to text failed")
	}

	var texts []string
	var sum float64
	for _, r := range res.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		best := r.Alternatives[0]
		texts = append(texts, strings.TrimSpace(best.Transcript))
		sum += best.Confidence
	}
	t := &Transcript{Text: strings.Join(texts, " ")}
	if len(texts) > 0 {
		t.Confidence = sum / float64(len(texts))
	}
	return t, nil
}

// Synthesizer stores synthesized audio in object storage so repeated
// requests for the same text, voice and rate are served without a remote
// call.
type Synthesizer struct {
	log    zerolog.Logger
	client *Client
	ost    objectstorage.Storage
}

func NewSynthesizer(log zerolog.Logger, client *Client, ost objectstorage.Storage) *Synthesizer {
	return &Synthesizer{log: log, client: client, ost: ost}
}

type Audio struct {
	Data     []byte
	Path     string
	Location string
}

// AudioPath is the storage path of the audio for the given request.
func AudioPath(text, voice string, rate float64) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s\x00%g\x00%s", voice, rate, text)))
	return "tts/" + hex.EncodeToString(sum[:]) + ".mp3"
}

func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string, rate float64) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.WithStack(ErrEmptyText)
	}
	if err := ValidateRate(rate); err != nil {
		return nil, err
	}
	voice = s.client.ResolveVoice(voice)
	p := AudioPath(text, voice, rate)

	data, err := s.readCached(ctx, p)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data, err = s.client.Synthesize(ctx, text, voice, rate)
		if err != nil {
			return nil, err
		}
		if err := s.ost.WriteObject(ctx, p, bytes.NewReader(data), int64(len(data)), true); err != nil {
			return nil, errors.Wrapf(err, "failed to store audio")
		}
	}

	loc, err := s.ost.URL(ctx, p)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Audio{Data: data, Path: p, Location: loc}, nil
}

func (s *Synthesizer) readCached(ctx context.Context, p string) ([]byte, error) {
	f, err := s.ost.ReadObject(ctx, p)
	if err != nil {
		if objectstorage.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, errors.WithStack(err)
	}
	s.log.Debug().Str("path", p).Msg("serving cached audio")
	return buf.Bytes(), nil
}
