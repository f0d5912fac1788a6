// Package correct fixes spelling and grammar without rewriting the text.
package correct

import (
	"context"
	"strings"

	"github.com/sorintlab/errors"

	"github.com/wudi/readease/internal/genai"
)

// Generator produces text from a prompt.
type Generator interface {
	GenerateContent(ctx context.Context, model string, parts ...genai.Part) (string, error)
}

const promptTemplate = `Please correct ONLY spelling and grammatical errors in the following text.
Do not change the meaning, style, tone, vocabulary level, or any other aspects of the text.
Do not add or remove information.
Do not rewrite sentences for clarity or any other reason unless they contain grammatical errors.
Only fix objective spelling mistakes and grammatical errors.
The reader is dyslexic and needs the text corrected without changing its meaning, style, tone, or vocabulary level.

Here is the text to correct:

%TEXT%

Return ONLY the corrected text with no explanations, comments, or other additions.`

type Corrector struct {
	gen   Generator
	model string
}

func New(gen Generator, model string) *Corrector {
	return &Corrector{gen: gen, model: model}
}

// Prompt returns the instruction sent to the model for text.
func Prompt(text string) string {
	return strings.Replace(promptTemplate, "%TEXT%", text, 1)
}

// Correct returns the corrected text. Whitespace-only input is returned
// unchanged without calling the model.
func (c *Corrector) Correct(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	out, err := c.gen.GenerateContent(ctx, c.model, genai.Text(Prompt(text)))
	if err != nil {
		return "", errors.Wrapf(err, "spell correction failed")
	}
	return strings.TrimSpace(out), nil
}
