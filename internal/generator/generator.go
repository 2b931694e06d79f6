// Package generator turns a question and its retrieved passages into an
// answer. The chat model behind it is an external capability; this package
// only builds the prompt and calls it.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/raggate-go/internal/budget"
	"github.com/54b3r/raggate-go/internal/logging"
)

// DefaultContextPassages is how many of the nearest passages reach the model.
const DefaultContextPassages = 2

// ErrEmptyResponse is returned when the model produces no message.
var ErrEmptyResponse = errors.New("generator: model returned an empty response")

// Generator produces an answer for question from passages, nearest first.
type Generator interface {
	Generate(ctx context.Context, question string, passages []string) (string, error)
}

// Options tunes prompt construction for a ChatGenerator.
type Options struct {
	// ContextPassages caps the passages included in the prompt. Zero means
	// DefaultContextPassages.
	ContextPassages int
	// ContextTokens caps the estimated tokens spent on passages. Zero means
	// budget.DefaultMaxContextTokens.
	ContextTokens int
}

// ChatGenerator answers with an eino chat model.
type ChatGenerator struct {
	model     model.BaseChatModel
	name      string
	passages  int
	maxTokens int
}

// NewChatGenerator wraps m. name labels the backend in logs.
func NewChatGenerator(m model.BaseChatModel, name string, opts Options) (*ChatGenerator, error) {
	if m == nil {
		return nil, fmt.Errorf("generator: chat model is required")
	}
	if opts.ContextPassages <= 0 {
		opts.ContextPassages = DefaultContextPassages
	}
	if opts.ContextTokens <= 0 {
		opts.ContextTokens = budget.DefaultMaxContextTokens
	}
	return &ChatGenerator{
		model:     m,
		name:      name,
		passages:  opts.ContextPassages,
		maxTokens: opts.ContextTokens,
	}, nil
}

// Name returns the backend label.
func (g *ChatGenerator) Name() string { return g.name }

// Generate builds the prompt from the nearest passages and asks the model.
func (g *ChatGenerator) Generate(ctx context.Context, question string, passages []string) (string, error) {
	log := logging.FromContext(ctx)

	if len(passages) > g.passages {
		passages = passages[:g.passages]
	}
	kept := budget.TrimPassages(passages, budget.Estimate(question)+budget.Estimate(promptFrame), g.maxTokens)
	if len(kept) < len(passages) {
		log.Warn("generator: passages trimmed to fit token budget",
			slog.Int("kept", len(kept)),
			slog.Int("dropped", len(passages)-len(kept)),
			slog.Int("budget_tokens", g.maxTokens),
		)
	}

	msgs := []*schema.Message{schema.UserMessage(BuildPrompt(question, kept))}
	log.Debug("generator: calling model",
		slog.String("backend", g.name),
		slog.Int("passages", len(kept)),
		slog.Int("est_tokens", budget.EstimateMessages(msgs)),
	)

	resp, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generator: %s generate failed: %w", g.name, err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Content), nil
}

// promptFrame is the fixed text of the prompt template, used for budgeting.
const promptFrame = "Answer based on context: \nQuestion: \nAnswer:"

// BuildPrompt renders the generation prompt. Passages are joined one per
// line.
func BuildPrompt(question string, passages []string) string {
	return fmt.Sprintf("Answer based on context: %s\nQuestion: %s\nAnswer:",
		strings.Join(passages, "\n"), question)
}

// Echo answers with the nearest passage verbatim. It needs no model and is
// used for offline runs.
type Echo struct{}

// Generate returns the first passage, or a fixed notice when there is none.
func (Echo) Generate(_ context.Context, _ string, passages []string) (string, error) {
	if len(passages) == 0 {
		return "No relevant context found.", nil
	}
	return passages[0], nil
}
