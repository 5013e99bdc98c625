package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"wikiloom/internal/config"
)

// OpenAIProvider translates through the OpenAI chat completions API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIProvider builds the provider from configuration.
func NewOpenAIProvider(cfg config.OpenAI) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		temperature: temperature,
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Translate implements Provider.
func (p *OpenAIProvider) Translate(ctx context.Context, req Request) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: req.Text},
		},
		Temperature: p.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", &ProviderError{
			Provider:  p.Name(),
			Message:   "chat completion failed",
			Cause:     err,
			Retryable: isRetryableAPIError(err),
		}
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: p.Name(), Message: "empty response", Retryable: true}
	}

	text, err := parseTranslationResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Message: "invalid response format", Cause: err}
	}
	return text, nil
}

func buildSystemPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional translator. Translate the user's wiki text from %s to %s.\n",
		req.SourceLang, req.TargetLang)
	b.WriteString("Rules:\n")
	b.WriteString("- Tokens matching __[A-Z0-9]+__ are protected markup. Copy each one to the output exactly once, unchanged, in the position the translation requires.\n")
	b.WriteString("- Preserve wiki formatting such as == headings ==, '''bold''', * lists, and leading whitespace.\n")
	b.WriteString("- Do not add or remove content. Translate only the prose.\n")
	if len(req.Glossary) > 0 {
		b.WriteString("Terminology (always use these renderings):\n")
		for term, preferred := range req.Glossary {
			fmt.Fprintf(&b, "- %q -> %q\n", term, preferred)
		}
	}
	b.WriteString(`Respond with a JSON object: {"translation": "<translated text>"}`)
	return b.String()
}

func parseTranslationResponse(content string) (string, error) {
	var payload struct {
		Translation string `json:"translation"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return "", err
	}
	if payload.Translation == "" {
		return "", fmt.Errorf("missing translation field")
	}
	return payload.Translation, nil
}

func isRetryableAPIError(err error) bool {
	message := strings.ToLower(err.Error())
	for _, pattern := range []string{"rate limit", "timeout", "connection refused", "temporary", "429", "502", "503"} {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}
