package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wikiloom/internal/config"
)

func libreConfig(url string) config.LibreTranslate {
	return config.LibreTranslate{URL: url}
}

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

type scriptedProvider struct {
	name    string
	results []func() (string, error)
	calls   int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Translate(context.Context, Request) (string, error) {
	if p.calls >= len(p.results) {
		return "", &ProviderError{Provider: p.name, Message: "script exhausted"}
	}
	result := p.results[p.calls]
	p.calls++
	return result()
}

func ok(text string) func() (string, error) {
	return func() (string, error) { return text, nil }
}

func transient(name string) func() (string, error) {
	return func() (string, error) {
		return "", &ProviderError{Provider: name, Message: "overloaded", Retryable: true}
	}
}

func terminal(name string) func() (string, error) {
	return func() (string, error) {
		return "", &ProviderError{Provider: name, Message: "bad request"}
	}
}

func TestGatewayRetriesTransientThenSucceeds(t *testing.T) {
	p := &scriptedProvider{name: "primary", results: []func() (string, error){
		transient("primary"), transient("primary"), ok("Hallo."),
	}}
	g := NewGatewayWithProviders(nil, fastRetry(3), p)

	result, err := g.Translate(context.Background(), Request{Text: "Hello.", SourceLang: "en", TargetLang: "de"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if result.Text != "Hallo." || result.EngineID != "primary" {
		t.Fatalf("result: %+v", result)
	}
	if p.calls != 3 {
		t.Fatalf("calls: %d", p.calls)
	}
}

func TestGatewayFallsBackInOrder(t *testing.T) {
	primary := &scriptedProvider{name: "primary", results: []func() (string, error){terminal("primary")}}
	secondary := &scriptedProvider{name: "secondary", results: []func() (string, error){ok("Bonjour.")}}
	g := NewGatewayWithProviders(nil, fastRetry(0), primary, secondary)

	result, err := g.Translate(context.Background(), Request{TargetLang: "fr"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if result.EngineID != "secondary" || result.Text != "Bonjour." {
		t.Fatalf("result: %+v", result)
	}
}

func TestGatewayUnavailableWhenAllFail(t *testing.T) {
	primary := &scriptedProvider{name: "primary", results: []func() (string, error){terminal("primary")}}
	secondary := &scriptedProvider{name: "secondary", results: []func() (string, error){terminal("secondary")}}
	g := NewGatewayWithProviders(nil, fastRetry(0), primary, secondary)

	_, err := g.Translate(context.Background(), Request{TargetLang: "de"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestGatewayTerminalErrorSkipsRetries(t *testing.T) {
	p := &scriptedProvider{name: "primary", results: []func() (string, error){
		terminal("primary"), ok("never reached"),
	}}
	g := NewGatewayWithProviders(nil, fastRetry(3), p)

	if _, err := g.Translate(context.Background(), Request{}); err == nil {
		t.Fatal("expected failure")
	}
	if p.calls != 1 {
		t.Fatalf("terminal error retried: %d calls", p.calls)
	}
}

func TestGatewayHonorsContextCancellation(t *testing.T) {
	p := &scriptedProvider{name: "primary", results: []func() (string, error){
		transient("primary"), transient("primary"), transient("primary"), transient("primary"),
	}}
	g := NewGatewayWithProviders(nil, RetryConfig{MaxRetries: 3, BaseDelay: time.Hour}, p)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := g.Translate(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWithRetryBackoffDoubles(t *testing.T) {
	attempts := 0
	start := time.Now()
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second}
	_, err := WithRetry(context.Background(), cfg, func() (string, error) {
		attempts++
		return "", &ProviderError{Message: "busy", Retryable: true}
	})
	if err == nil {
		t.Fatal("expected failure after retries")
	}
	if attempts != 3 {
		t.Fatalf("attempts: %d", attempts)
	}
	// 10ms + 20ms of backoff at minimum.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("backoff too short: %v", elapsed)
	}
}

func TestLibreTranslateProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			t.Errorf("path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"translatedText":"Hallo Welt."}`))
	}))
	defer server.Close()

	p := NewLibreTranslateProvider(libreConfig(server.URL))
	text, err := p.Translate(context.Background(), Request{Text: "Hello world.", SourceLang: "en", TargetLang: "de"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if text != "Hallo Welt." {
		t.Fatalf("text: %q", text)
	}
}

func TestLibreTranslateServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewLibreTranslateProvider(libreConfig(server.URL))
	_, err := p.Translate(context.Background(), Request{Text: "Hello."})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRetryable(err) {
		t.Fatalf("503 should be retryable: %v", err)
	}
}

func TestLibreTranslateClientErrorIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad language pair", http.StatusBadRequest)
	}))
	defer server.Close()

	p := NewLibreTranslateProvider(libreConfig(server.URL))
	_, err := p.Translate(context.Background(), Request{Text: "Hello."})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Fatalf("400 should not be retryable: %v", err)
	}
}

func TestParseTranslationResponse(t *testing.T) {
	text, err := parseTranslationResponse(`{"translation":"Hallo."}`)
	if err != nil || text != "Hallo." {
		t.Fatalf("parse: %q %v", text, err)
	}
	if _, err := parseTranslationResponse(`{"other":"x"}`); err == nil {
		t.Fatal("missing field accepted")
	}
	if _, err := parseTranslationResponse(`not json`); err == nil {
		t.Fatal("invalid json accepted")
	}
}

func TestMockProviderEchoes(t *testing.T) {
	p := NewMockProvider(nil)
	text, err := p.Translate(context.Background(), Request{Text: "Hello.", TargetLang: "de"})
	if err != nil || text != "[de] Hello." {
		t.Fatalf("mock: %q %v", text, err)
	}
}
