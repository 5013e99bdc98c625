// Package engine routes translation requests through an ordered list of
// machine-translation providers with per-provider retries and fallback.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wikiloom/internal/config"
)

// ErrUnavailable indicates every configured provider failed for a request.
var ErrUnavailable = errors.New("all translation providers unavailable")

// Request is one unit translation request. Text carries opaque placeholder
// tokens the provider must leave untouched.
type Request struct {
	Text       string
	SourceLang string
	TargetLang string
	// Glossary maps source terms to required target renderings.
	Glossary map[string]string
}

// Result is a successful provider response.
type Result struct {
	Text string
	// EngineID names the provider that produced the text.
	EngineID string
}

// Provider is a single machine-translation backend.
type Provider interface {
	Name() string
	Translate(ctx context.Context, req Request) (string, error)
}

// ProviderError wraps a provider failure with a retryability hint.
type ProviderError struct {
	Provider  string
	Message   string
	Cause     error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether an error should be retried against the same
// provider before falling back.
func IsRetryable(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable
	}
	return false
}

// Gateway tries providers in configured order, retrying transient failures
// per provider before falling back to the next.
type Gateway struct {
	providers []Provider
	retry     RetryConfig
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGateway assembles the gateway from configuration. Unknown provider
// names were already rejected at config validation.
func NewGateway(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	var providers []Provider
	for _, name := range cfg.Engine.Providers {
		switch name {
		case "openai":
			providers = append(providers, NewOpenAIProvider(cfg.Engine.OpenAI))
		case "libretranslate":
			providers = append(providers, NewLibreTranslateProvider(cfg.Engine.LibreTranslate))
		case "mock":
			providers = append(providers, NewMockProvider(nil))
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, errors.New("no translation providers configured")
	}

	retry := DefaultRetryConfig()
	if cfg.Engine.MaxRetries > 0 {
		retry.MaxRetries = cfg.Engine.MaxRetries
	}
	timeout := time.Duration(cfg.Engine.RequestTimeout) * time.Second

	return &Gateway{providers: providers, retry: retry, timeout: timeout, logger: logger}, nil
}

// NewGatewayWithProviders builds a gateway over explicit providers.
func NewGatewayWithProviders(logger *slog.Logger, retry RetryConfig, providers ...Provider) *Gateway {
	return &Gateway{providers: providers, retry: retry, logger: logger}
}

// Translate runs the request through the provider chain. Each provider gets
// its own retry budget; when all providers are exhausted the returned error
// wraps ErrUnavailable.
func (g *Gateway) Translate(ctx context.Context, req Request) (Result, error) {
	var lastErr error
	for _, provider := range g.providers {
		text, err := WithRetry(ctx, g.retry, func() (string, error) {
			callCtx := ctx
			if g.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, g.timeout)
				defer cancel()
			}
			return provider.Translate(callCtx, req)
		})
		if err == nil {
			return Result{Text: text, EngineID: provider.Name()}, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		lastErr = err
		if g.logger != nil {
			g.logger.Warn("provider failed, falling back",
				slog.String("provider", provider.Name()),
				slog.String("target", req.TargetLang),
				slog.Any("error", err))
		}
	}
	return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}
