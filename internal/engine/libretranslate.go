package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"wikiloom/internal/config"
)

// LibreTranslateProvider translates through a LibreTranslate-compatible
// HTTP endpoint.
type LibreTranslateProvider struct {
	url    string
	apiKey string
	client *http.Client
}

// NewLibreTranslateProvider builds the provider from configuration.
func NewLibreTranslateProvider(cfg config.LibreTranslate) *LibreTranslateProvider {
	return &LibreTranslateProvider{
		url:    strings.TrimRight(cfg.URL, "/") + "/translate",
		apiKey: cfg.APIKey,
		client: &http.Client{},
	}
}

// Name implements Provider.
func (p *LibreTranslateProvider) Name() string { return "libretranslate" }

// Translate implements Provider.
func (p *LibreTranslateProvider) Translate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(map[string]string{
		"q":       req.Text,
		"source":  req.SourceLang,
		"target":  req.TargetLang,
		"format":  "text",
		"api_key": p.apiKey,
	})
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Message: "encode request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Message: "build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Message: "request failed", Cause: err, Retryable: true}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Message: "read response", Cause: err, Retryable: true}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{
			Provider:  p.Name(),
			Message:   fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))),
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	var result struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", &ProviderError{Provider: p.Name(), Message: "decode response", Cause: err}
	}
	if result.TranslatedText == "" {
		return "", &ProviderError{Provider: p.Name(), Message: "empty translatedText"}
	}
	return result.TranslatedText, nil
}
