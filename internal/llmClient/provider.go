package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderFake      Provider = "fake"
)

// ErrNoCredential is returned by New when a remote provider has no API key.
var ErrNoCredential = errors.New("llm: no API key configured")

type Options struct {
	Provider Provider
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProviderAnthropic, nil
	case ProviderAnthropic, ProviderGemini, ProviderFake:
		return p, nil
	default:
		return "", fmt.Errorf("llm: unknown provider %q", s)
	}
}

// New builds the client for opts.Provider.
func New(ctx context.Context, opts Options) (Client, error) {
	switch opts.Provider {
	case ProviderFake:
		f := NewFakeClient()
		if opts.Model != "" {
			f.Name = opts.Model
		}
		return f, nil
	case ProviderGemini:
		if opts.APIKey == "" {
			return nil, ErrNoCredential
		}
		return NewGeminiClient(ctx, opts.APIKey, opts.Model, opts.Timeout)
	case ProviderAnthropic, "":
		if opts.APIKey == "" {
			return nil, ErrNoCredential
		}
		return NewAnthropicClient(opts.APIKey, opts.Model, opts.BaseURL, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", opts.Provider)
	}
}
