package accessibility

import (
	"context"

	"github.com/wudi/readease/internal/genai"
)

// Generator produces text from a prompt.
type Generator interface {
	GenerateContent(ctx context.Context, model string, parts ...genai.Part) (string, error)
}

const summaryPrompt = `Summarize the following web accessibility violations for a non-technical reader.
Use two or three short sentences and plain words. Mention what is wrong and who is affected.

`

// ModelSummarizer summarizes chunks with a generative model.
type ModelSummarizer struct {
	gen   Generator
	model string
}

func NewModelSummarizer(gen Generator, model string) *ModelSummarizer {
	return &ModelSummarizer{gen: gen, model: model}
}

func (s *ModelSummarizer) Summarize(ctx context.Context, chunk string) (string, error) {
	return s.gen.GenerateContent(ctx, s.model, genai.Text(summaryPrompt+chunk))
}
