package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient adapts the OpenAI Chat Completions API, and doubles as the
// client for any OpenAI-compatible third party (DeepSeek, GLM) by pointing
// BaseURL at their endpoint instead — the same request/response shape.
type OpenAIClient struct {
	name   string
	model  string
	client openai.Client
}

// NewOpenAIClient builds a client against the real OpenAI API.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		name:   "openai",
		model:  model,
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// NewCompatibleClient builds a client against an OpenAI-compatible
// endpoint (DeepSeek, GLM, ...) identified by name, reusing the same
// request/response contract with a different base URL.
func NewCompatibleClient(name, apiKey, model, baseURL string) *OpenAIClient {
	return &OpenAIClient{
		name:  name,
		model: model,
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
		),
	}
}

func (c *OpenAIClient) Name() string { return c.name }

// SendBatch asks the model to translate every Line and return them as a
// JSON array in the same order, the same minified-line-payload contract
// used for every provider so ApplyTranslations doesn't care who answered.
func (c *OpenAIClient) SendBatch(ctx context.Context, lines []Line, systemPrompt string) ([]Line, error) {
	payload, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal batch: %w", err)
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(payload)),
		},
	})
	if err != nil {
		return nil, classifyOpenAIError(c.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: c.name, Code: CodeBadResponse, Message: "no choices in response"}
	}

	var out []Line
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, &ProviderError{Provider: c.name, Code: CodeBadResponse, Message: fmt.Sprintf("unparseable batch response: %v", err)}
	}
	return out, nil
}

func (c *OpenAIClient) Healthcheck(ctx context.Context) error {
	_, err := c.client.Models.List(ctx)
	if err != nil {
		return classifyOpenAIError(c.name, err)
	}
	return nil
}

func classifyOpenAIError(provider string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return &ProviderError{Provider: provider, Code: CodeInvalidKey, Message: apiErr.Message, Retry: false}
		case 429:
			return &ProviderError{Provider: provider, Code: CodeRateLimit, Message: apiErr.Message, Retry: true}
		default:
			return &ProviderError{Provider: provider, Code: CodeHTTP, Message: apiErr.Message, Retry: apiErr.StatusCode >= 500}
		}
	}
	return &ProviderError{Provider: provider, Code: CodeNetwork, Message: err.Error(), Retry: true}
}
