package speech

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig selects the model and default sampling for completions.
type GeminiConfig struct {
	APIKey string
	Model  string

	Temperature float32
	MaxTokens   int32
}

func (c GeminiConfig) withDefaults() GeminiConfig {
	out := c
	if out.Model == "" {
		out.Model = "gemini-2.0-flash"
	}
	if out.Temperature <= 0 {
		out.Temperature = 0.3
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 100
	}
	return out
}

// GeminiCompleter implements Completer on the Gemini API with streamed
// generation. Replies are kept short and cheap: low temperature, tight
// output token cap, suited to one spoken turn.
type GeminiCompleter struct {
	client *genai.Client
	cfg    GeminiConfig
}

func NewGeminiCompleter(ctx context.Context, cfg GeminiConfig) (*GeminiCompleter, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("speech: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("speech: create gemini client: %w", err)
	}
	return &GeminiCompleter{client: client, cfg: cfg}, nil
}

func (g *GeminiCompleter) Complete(ctx context.Context, messages []Message, opts CompletionOptions, onFragment func(text string)) (string, error) {
	if opts.Temperature <= 0 {
		opts.Temperature = g.cfg.Temperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = g.cfg.MaxTokens
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(opts.Temperature),
		MaxOutputTokens: opts.MaxTokens,
	}

	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			// System messages become the model's system instruction,
			// not conversation turns.
			config.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("speech: no conversation messages to complete")
	}

	var reply strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.cfg.Model, contents, config) {
		if err != nil {
			return "", fmt.Errorf("speech: gemini stream: %w", err)
		}
		fragment := resp.Text()
		if fragment == "" {
			continue
		}
		reply.WriteString(fragment)
		if onFragment != nil {
			onFragment(fragment)
		}
	}
	return reply.String(), nil
}
