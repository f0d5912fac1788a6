package task

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/wudi/readease/internal/genai"
	"github.com/wudi/readease/internal/objectstorage"
)

const (
	MethodDirect        = "gemini_direct"
	MethodDirectSummary = "gemini_direct_+_gemini_summary"

	DefaultTargetLanguage = "English"
	DefaultSummaryType    = "general"
	autoDetected          = "auto-detected"
)

// MediaExtensions are the audio and video formats the media model accepts.
var MediaExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm", ".flv", ".m4v", ".mp3", ".wav", ".aac", ".ogg", ".flac", ".m4a"}

var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".flv":  "video/x-flv",
	".m4v":  "video/x-m4v",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
}

func IsMedia(p string) bool {
	_, ok := mediaTypes[strings.ToLower(path.Ext(p))]
	return ok
}

func MediaType(p string) string {
	if mt, ok := mediaTypes[strings.ToLower(path.Ext(p))]; ok {
		return mt
	}
	return "application/octet-stream"
}

func unsupportedFormat() Result {
	return Result{"error": "Unsupported file format. Supported formats: " + strings.Join(MediaExtensions, ", ")}
}

// Generator produces text from a prompt.
type Generator interface {
	GenerateContent(ctx context.Context, model string, parts ...genai.Part) (string, error)
}

// Configurable is implemented by generators that may lack credentials.
type Configurable interface {
	Configured() bool
}

const transcriptionPrompt = `Please provide a complete and accurate transcription of all spoken content in this audio/video file.

Format the response as follows:
- Include all dialogue and speech
- Use proper punctuation and paragraph breaks
- Indicate speaker changes if multiple speakers are present (e.g., Speaker 1:, Speaker 2:)
- Do not include descriptions of visual elements or background sounds, only transcribe the spoken words
- If there are multiple languages, transcribe each in their original language

Transcription:`

const translationPrompt = `Please provide a complete translation of all spoken content in this audio/video file to %[1]s.

Requirements:
- Translate all dialogue and speech accurately
- Maintain the meaning and context
- Use natural, fluent %[1]s
- Use proper punctuation and paragraph breaks
- Indicate speaker changes if multiple speakers are present (e.g., Speaker 1:, Speaker 2:)
- Do not translate background sounds or visual descriptions, only spoken words

Translation:`

var directSummaryPrompts = map[string]string{
	"general":       "Please watch this video and provide both a complete transcription and a concise comprehensive summary.",
	"bullet_points": "Please watch this video and provide both a complete transcription and a bullet-point summary highlighting the main topics.",
	"key_insights":  "Please watch this video and provide both a complete transcription and extract the key insights and important conclusions.",
	"executive":     "Please watch this video and provide both a complete transcription and an executive summary for decision-makers.",
	"detailed":      "Please watch this video and provide both a complete transcription and a detailed summary preserving important context.",
	"action_items":  "Please watch this video and provide both a complete transcription and identify any action items or next steps.",
}

var transcriptSummaryPrompts = map[string]string{
	"general":       "Please provide a concise and comprehensive summary of the following transcript:",
	"bullet_points": "Please summarize the following transcript in bullet points, highlighting the main topics and key information:",
	"key_insights":  "Please extract the key insights, main arguments, and important conclusions from the following transcript:",
	"executive":     "Please provide an executive summary of the following transcript, focusing on the main points that would be relevant for decision-makers:",
	"detailed":      "Please provide a detailed summary of the following transcript, preserving important context and nuances:",
	"action_items":  "Please identify and summarize any action items, decisions, or next steps mentioned in the following transcript:",
}

const directSummaryFormat = `

Please format your response as follows:
TRANSCRIPTION:
[Complete transcription here]

SUMMARY:
[Summary here]`

func summaryInstructions(opts Options) string {
	var extra []string
	if opts.MaxLength > 0 {
		extra = append(extra, fmt.Sprintf("Keep the summary under %d words.", opts.MaxLength))
	}
	if len(opts.FocusAreas) > 0 {
		extra = append(extra, "Focus particularly on these areas: "+strings.Join(opts.FocusAreas, ", "))
	}
	if opts.TargetAudience != "" {
		extra = append(extra, "Tailor the summary for: "+opts.TargetAudience)
	}
	if len(extra) == 0 {
		return ""
	}
	return " " + strings.Join(extra, " ")
}

func pickPrompt(prompts map[string]string, summaryType string) string {
	if p, ok := prompts[summaryType]; ok {
		return p
	}
	return prompts[DefaultSummaryType]
}

// DirectSummaryPrompt asks for transcript and summary in one pass.
func DirectSummaryPrompt(opts Options, summaryType string) string {
	return pickPrompt(directSummaryPrompts, summaryType) + summaryInstructions(opts) + directSummaryFormat
}

// TranscriptSummaryPrompt summarizes an existing transcript.
func TranscriptSummaryPrompt(transcript string, opts Options, summaryType string) string {
	return pickPrompt(transcriptSummaryPrompts, summaryType) + summaryInstructions(opts) + "\n\nTranscript:\n" + transcript
}

// SplitSummary separates the TRANSCRIPTION and SUMMARY sections of a one
// pass answer. Without exactly one SUMMARY: marker the text is split by
// heading lines instead.
func SplitSummary(text string) (transcript, summary string) {
	parts := strings.Split(text, "SUMMARY:")
	if len(parts) == 2 {
		return strings.TrimSpace(strings.Replace(parts[0], "TRANSCRIPTION:", "", -1)), strings.TrimSpace(parts[1])
	}

	var tl, sl []string
	inSummary := false
	for _, line := range strings.Split(text, "\n") {
		upper := strings.ToUpper(line)
		switch {
		case strings.Contains(upper, "SUMMARY"):
			inSummary = true
			continue
		case strings.Contains(upper, "TRANSCRIPTION"):
			inSummary = false
			continue
		}
		if inSummary {
			sl = append(sl, line)
		} else {
			tl = append(tl, line)
		}
	}
	return strings.TrimSpace(strings.Join(tl, "\n")), strings.TrimSpace(strings.Join(sl, "\n"))
}

// MediaProcessor transcribes, translates and summarizes audio and video with
// a multimodal model.
type MediaProcessor struct {
	log   zerolog.Logger
	gen   Generator
	model string
	ost   objectstorage.Storage
}

func NewMediaProcessor(log zerolog.Logger, gen Generator, model string, ost objectstorage.Storage) *MediaProcessor {
	return &MediaProcessor{log: log, gen: gen, model: model, ost: ost}
}

func (p *MediaProcessor) Process(ctx context.Context, t *Task, data []byte) (Result, error) {
	if c, ok := p.gen.(Configurable); ok && !c.Configured() {
		return nil, errors.WithStack(genai.ErrNotConfigured)
	}
	if !IsMedia(t.FilePath) {
		return unsupportedFormat(), nil
	}

	switch t.Type {
	case TypeTranscription:
		return p.transcribe(ctx, t, data)
	case TypeTranslation:
		return p.translate(ctx, t, data)
	case TypeSummarization:
		return p.summarize(ctx, t, data)
	}
	return nil, errors.Errorf("unsupported process type %q", t.Type)
}

func (p *MediaProcessor) generate(ctx context.Context, t *Task, data []byte, prompt string) (string, error) {
	out, err := p.gen.GenerateContent(ctx, p.model, genai.Media(MediaType(t.FilePath), data), genai.Text(prompt))
	if err != nil {
		return "", errors.Wrapf(err, "media processing error")
	}
	return out, nil
}

func (p *MediaProcessor) transcribe(ctx context.Context, t *Task, data []byte) (Result, error) {
	out, err := p.generate(ctx, t, data, transcriptionPrompt)
	if err != nil {
		return nil, errors.Wrapf(err, "transcription error")
	}
	lang := t.Options.Language
	if lang == "" {
		lang = autoDetected
	}
	res := Result{
		"transcript": strings.TrimSpace(out),
		"segments":   []interface{}{},
		"language":   lang,
		"method":     MethodDirect,
	}
	if t.Options.SaveTranscript {
		tp := strings.TrimSuffix(t.FilePath, path.Ext(t.FilePath)) + "_transcript.txt"
		if err := p.write(ctx, tp, out); err != nil {
			return nil, err
		}
		res["transcript_path"] = tp
	}
	return res, nil
}

func (p *MediaProcessor) translate(ctx context.Context, t *Task, data []byte) (Result, error) {
	target := t.Options.TargetLanguage
	if target == "" {
		target = DefaultTargetLanguage
	}
	out, err := p.generate(ctx, t, data, fmt.Sprintf(translationPrompt, target))
	if err != nil {
		return nil, errors.Wrapf(err, "translation error")
	}
	text := strings.TrimSpace(out)
	return Result{
		"transcript":      text,
		"translation":     text,
		"source_language": autoDetected,
		"target_language": target,
		"segments":        []interface{}{},
		"method":          MethodDirect,
	}, nil
}

func (p *MediaProcessor) summarize(ctx context.Context, t *Task, data []byte) (Result, error) {
	summaryType := t.Options.SummaryType
	if summaryType == "" {
		summaryType = DefaultSummaryType
	}

	if t.Options.UseDirect == nil || *t.Options.UseDirect {
		out, err := p.generate(ctx, t, data, DirectSummaryPrompt(t.Options, summaryType))
		if err == nil {
			transcript, summary := SplitSummary(out)
			res := Result{
				"transcript":   transcript,
				"summary":      summary,
				"summary_type": summaryType,
				"language":     autoDetected,
				"segments":     []interface{}{},
				"method":       MethodDirect,
			}
			return p.saveSummary(ctx, t, res, summaryType, summary, transcript)
		}
		p.log.Warn().Err(err).Str("task", t.ID).Msg("one pass summarization failed, falling back to transcript summary")
	}

	tr, err := p.transcribe(ctx, t, data)
	if err != nil {
		return nil, err
	}
	transcript := tr["transcript"].(string)
	summary, err := p.gen.GenerateContent(ctx, p.model, genai.Text(TranscriptSummaryPrompt(transcript, t.Options, summaryType)))
	if err != nil {
		return Result{
			"transcript": transcript,
			"error":      fmt.Sprintf("Summarization failed: %v", err),
			"language":   tr["language"],
			"segments":   tr["segments"],
			"method":     MethodDirect,
		}, nil
	}
	res := Result{
		"transcript":   transcript,
		"summary":      summary,
		"summary_type": summaryType,
		"language":     tr["language"],
		"segments":     tr["segments"],
		"method":       MethodDirectSummary,
	}
	return p.saveSummary(ctx, t, res, summaryType, summary, transcript)
}

func (p *MediaProcessor) saveSummary(ctx context.Context, t *Task, res Result, summaryType, summary, transcript string) (Result, error) {
	if !t.Options.SaveSummary {
		return res, nil
	}
	sep := strings.Repeat("=", 50)
	sp := strings.TrimSuffix(t.FilePath, path.Ext(t.FilePath)) + "_summary_" + summaryType + ".txt"
	content := fmt.Sprintf("Summary Type: %s\n%s\n\n%s\n\n%s\nOriginal Transcript:\n%s", summaryType, sep, summary, sep, transcript)
	if err := p.write(ctx, sp, content); err != nil {
		return nil, err
	}
	res["summary_path"] = sp
	return res, nil
}

func (p *MediaProcessor) write(ctx context.Context, fp, content string) error {
	if err := p.ost.WriteObject(ctx, fp, bytes.NewReader([]byte(content)), int64(len(content)), true); err != nil {
		return errors.Wrapf(err, "failed to write %s", fp)
	}
	return nil
}
