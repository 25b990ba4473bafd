package llmclient

import (
	"context"
	"iter"
	"os"
	"strings"
	"time"

	genai "google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient is a thin wrapper around the official genai client.
// Cross-cutting concerns (rate limiting, logging) are applied via Middleware.
type GeminiClient struct {
	cli       *genai.Client
	model     string
	maxTokens int32
	timeout   time.Duration
}

// NewGeminiClient creates a client. If apiKey is empty, it falls back to GEMINI_API_KEY.
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model, maxTokens: DefaultMaxTokens, timeout: timeout}, nil
}

func (g *GeminiClient) Model() string { return g.model }
func (g *GeminiClient) Close() error  { return nil }

func (g *GeminiClient) config(system string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		MaxOutputTokens:   g.maxTokens,
	}
}

func (g *GeminiClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.cli.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config(system))
	if err != nil {
		return "", newUpstreamError(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return NoSummaryText, nil
	}
	return text, nil
}

// Stream yields the text of each streamed response chunk. The genai iterator
// ends without an explicit stop marker, so normal exhaustion is reported as done.
func (g *GeminiClient) Stream(ctx context.Context, system, prompt string) iter.Seq[Event] {
	return singlePass(func(yield func(Event) bool) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		for resp, err := range g.cli.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), g.config(system)) {
			if err != nil {
				yield(errorEvent(newUpstreamError(err)))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(deltaEvent(text)) {
				return
			}
		}
		yield(doneEvent())
	})
}
