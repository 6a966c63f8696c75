package llm

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// CountFunc counts the tokens text occupies for model.
type CountFunc func(model, text string) int

// Service estimates prompt sizes locally, before anything is sent to the backend.
type Service struct {
	count CountFunc
}

func New() *Service {
	return &Service{count: llms.CountTokens}
}

// NewWithCounter is used where the tiktoken encodings must not be fetched, e.g. tests.
func NewWithCounter(count CountFunc) *Service {
	return &Service{count: count}
}

type Estimate struct {
	Model         string
	Text          string
	PromptTokens  int
	ContextWindow int
}

// EstimatePrompt counts the tokens of text for model. Blank text is zero
// tokens without consulting the counter. The first call for an encoding
// may block while it is loaded, so callers run it off the UI goroutine.
func (s *Service) EstimatePrompt(ctx context.Context, model, text string) (Estimate, error) {
	est := Estimate{Model: model, Text: text, ContextWindow: llms.GetModelContextSize(model)}
	if strings.TrimSpace(text) == "" {
		return est, nil
	}
	if err := ctx.Err(); err != nil {
		return est, err
	}
	est.PromptTokens = s.count(model, text)
	return est, nil
}
