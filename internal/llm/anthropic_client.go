package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AnthropicClient is a plain net/http Messages-API client: build the
// request struct, POST, classify the status code. The API surface this
// system needs is one endpoint, not worth an SDK dependency.
type AnthropicClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.anthropic.com/v1",
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *AnthropicClient) Name() string { return "claude" }

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *AnthropicClient) SendBatch(ctx context.Context, lines []Line, systemPrompt string) ([]Line, error) {
	payload, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal batch: %w", err)
	}

	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: 4096,
		System:    systemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: string(payload)}},
	}
	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	resp, err := c.do(ctx, reqJSON)
	if err != nil {
		return nil, err
	}
	if len(resp.Content) == 0 {
		return nil, &ProviderError{Provider: c.Name(), Code: CodeBadResponse, Message: "empty content block"}
	}

	var out []Line
	if err := json.Unmarshal([]byte(resp.Content[0].Text), &out); err != nil {
		return nil, &ProviderError{Provider: c.Name(), Code: CodeBadResponse, Message: fmt.Sprintf("unparseable batch response: %v", err)}
	}
	return out, nil
}

func (c *AnthropicClient) do(ctx context.Context, body []byte) (*anthropicResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: c.Name(), Code: CodeNetwork, Message: err.Error(), Retry: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("llm: parse response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &ProviderError{Provider: c.Name(), Code: CodeInvalidKey, Message: errMsg(parsed), Retry: false}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ProviderError{Provider: c.Name(), Code: CodeRateLimit, Message: errMsg(parsed), Retry: true}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: c.Name(), Code: CodeHTTP, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, errMsg(parsed)), Retry: resp.StatusCode >= 500}
	}
	return &parsed, nil
}

func errMsg(r anthropicResponse) string {
	if r.Error != nil {
		return r.Error.Message
	}
	return ""
}

func (c *AnthropicClient) Healthcheck(ctx context.Context) error {
	_, err := c.SendBatch(ctx, []Line{{ID: 0, Text: "ping"}}, `Reply with exactly: [{"i":0,"t":"pong"}]`)
	return err
}
