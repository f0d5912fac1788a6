// Package task runs uploaded files through background processors and keeps
// their status in a store.
package task

import (
	"time"

	"github.com/sorintlab/errors"
)

type Type string

const (
	TypeTranscription Type = "transcription"
	TypeTranslation   Type = "translation"
	TypeSummarization Type = "summarization"
	TypeOCR           Type = "ocr"
)

var Types = []Type{TypeTranscription, TypeTranslation, TypeSummarization, TypeOCR}

func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", errors.Errorf("unsupported process type %q", s)
}

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Options are the caller supplied processing knobs. Unknown keys are ignored.
type Options struct {
	Language       string   `json:"language,omitempty"`
	TargetLanguage string   `json:"target_language,omitempty"`
	SummaryType    string   `json:"summary_type,omitempty"`
	MaxLength      int      `json:"max_length,omitempty"`
	FocusAreas     []string `json:"focus_areas,omitempty"`
	TargetAudience string   `json:"target_audience,omitempty"`
	SaveTranscript bool     `json:"save_transcript,omitempty"`
	SaveSummary    bool     `json:"save_summary,omitempty"`
	// UseDirect disables the single pass summarization when set to false.
	UseDirect *bool `json:"use_gemini_direct,omitempty"`
}

// Result is the processor output returned verbatim to clients.
type Result map[string]interface{}

type Task struct {
	ID        string    `json:"task_id"`
	Type      Type      `json:"process_type"`
	Status    Status    `json:"status"`
	FilePath  string    `json:"file_path"`
	ModelSize string    `json:"model_size"`
	Options   Options   `json:"options"`
	Result    Result    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Task) Clone() *Task {
	c := *t
	if t.Options.FocusAreas != nil {
		c.Options.FocusAreas = append([]string(nil), t.Options.FocusAreas...)
	}
	if t.Result != nil {
		c.Result = make(Result, len(t.Result))
		for k, v := range t.Result {
			c.Result[k] = v
		}
	}
	return &c
}
