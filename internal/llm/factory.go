package llm

import "fmt"

// New constructs the Provider for one of the four backends Settings
// supports, choosing the OpenAI-compatible client for every cloud
// backend except Claude, which speaks the Anthropic Messages API.
func New(providerName string, apiKey, model, baseURL string) (Provider, error) {
	switch providerName {
	case "openai":
		if baseURL != "" {
			return NewCompatibleClient("openai", apiKey, model, baseURL), nil
		}
		return NewOpenAIClient(apiKey, model), nil
	case "claude":
		return NewAnthropicClient(apiKey, model), nil
	case "deepseek":
		if baseURL == "" {
			baseURL = "https://api.deepseek.com/v1"
		}
		return NewCompatibleClient("deepseek", apiKey, model, baseURL), nil
	case "glm":
		if baseURL == "" {
			baseURL = "https://open.bigmodel.cn/api/paas/v4"
		}
		return NewCompatibleClient("glm", apiKey, model, baseURL), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", providerName)
	}
}
