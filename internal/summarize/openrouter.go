package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "google/gemma-2-9b-it:free"
)

// openRouterGenerator talks to OpenRouter through its OpenAI-compatible
// chat completions surface.
type openRouterGenerator struct {
	client openai.Client
	model  string
}

func newOpenRouterGenerator(apiKey, model string) *openRouterGenerator {
	if model == "" {
		model = defaultOpenRouterModel
	}
	return &openRouterGenerator{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(openRouterBaseURL),
		),
		model: model,
	}
}

func (g *openRouterGenerator) name() string { return "openrouter" }

func (g *openRouterGenerator) generate(ctx context.Context, prompt string) (string, error) {
	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.3),
	})
	if err != nil {
		return "", fmt.Errorf("openrouter chat: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openrouter returned no choices")
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openrouter returned an empty message")
	}
	return text, nil
}
