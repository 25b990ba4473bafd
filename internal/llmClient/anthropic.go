package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	DefaultAnthropicModel = "claude-haiku-4-5-20251001"
	DefaultTimeout        = 60 * time.Second
	DefaultMaxTokens      = 600

	anthropicBaseURL  = "https://api.anthropic.com"
	anthropicVersion  = "2023-06-01"
	messagesPath      = "/v1/messages"
	maxStreamLineSize = 1024 * 1024
)

// AnthropicClient calls the Anthropic Messages API over plain HTTP.
// See: https://docs.anthropic.com/en/api/messages
type AnthropicClient struct {
	http      *http.Client
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
	timeout   time.Duration

	quotaMu   sync.RWMutex
	quota     Quota
	haveQuota bool
}

// NewAnthropicClient creates a client. If apiKey is empty, it falls back to
// ANTHROPIC_API_KEY. Empty model, baseURL and a non-positive timeout take defaults.
func NewAnthropicClient(apiKey, model, baseURL string, timeout time.Duration) *AnthropicClient {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &AnthropicClient{
		// Deadlines come from the request context so streams are bounded too.
		http:      &http.Client{},
		apiKey:    apiKey,
		model:     model,
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxTokens: DefaultMaxTokens,
		timeout:   timeout,
	}
}

func (c *AnthropicClient) Model() string { return c.model }
func (c *AnthropicClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *AnthropicClient) LastQuota() (Quota, bool) {
	c.quotaMu.RLock()
	defer c.quotaMu.RUnlock()
	return c.quota, c.haveQuota
}

type messagesReq struct {
	Model     string           `json:"model"`
	MaxTokens int              `json:"max_tokens"`
	System    string           `json:"system,omitempty"`
	Messages  []messageContent `json:"messages"`
	Stream    bool             `json:"stream,omitempty"`
}

type messageContent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResp struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete requests a full answer and joins its text blocks with blank lines.
func (c *AnthropicClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, system, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out messagesResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &UpstreamError{Status: resp.StatusCode, Body: "invalid response body", Err: err}
	}
	texts := make([]string, 0, len(out.Content))
	for _, block := range out.Content {
		if block.Type == "text" && block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(texts, "\n\n"))
	if text == "" {
		return NoSummaryText, nil
	}
	return text, nil
}

// Stream requests a streamed answer and yields its text deltas as they arrive.
func (c *AnthropicClient) Stream(ctx context.Context, system, prompt string) iter.Seq[Event] {
	return singlePass(func(yield func(Event) bool) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.post(ctx, system, prompt, true)
		if err != nil {
			yield(errorEvent(err))
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineSize)
		for scanner.Scan() {
			line := DecodeLine(scanner.Text())
			switch line.Kind {
			case DecodedDelta:
				if line.Text == "" {
					continue
				}
				if !yield(deltaEvent(line.Text)) {
					return
				}
			case DecodedDone:
				yield(doneEvent())
				return
			case DecodedError:
				yield(errorEvent(&UpstreamError{Status: resp.StatusCode, Body: line.Text}))
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(errorEvent(newUpstreamError(err)))
			return
		}
		yield(errorEvent(&UpstreamError{Body: "stream ended before message_stop"}))
	})
}

// post sends a Messages request. Non-2xx responses are returned as
// *UpstreamError with the body already consumed.
func (c *AnthropicClient) post(ctx context.Context, system, prompt string, stream bool) (*http.Response, error) {
	reqBody := messagesReq{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []messageContent{{Role: "user", Content: prompt}},
		Stream:    stream,
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(b))
	if err != nil {
		return nil, newUpstreamError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropicVersion)
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, newUpstreamError(err)
	}
	quota, hasQuota := c.recordQuota(resp.Header)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		ue := &UpstreamError{Status: resp.StatusCode, Body: truncateBody(body)}
		if hasQuota {
			ue.Quota = &quota
		}
		return nil, ue
	}
	return resp, nil
}

func (c *AnthropicClient) recordQuota(h http.Header) (Quota, bool) {
	q, ok := parseAnthropicQuota(h, time.Now())
	if !ok {
		return q, false
	}
	c.quotaMu.Lock()
	c.quota = q
	c.haveQuota = true
	c.quotaMu.Unlock()
	return q, true
}
