package engine

import "context"

// MockProvider returns deterministic translations for tests and dry runs.
type MockProvider struct {
	// Translate overrides the default behavior when set.
	fn func(ctx context.Context, req Request) (string, error)
}

// NewMockProvider builds a mock. With a nil fn the mock echoes the source
// text prefixed with the target language.
func NewMockProvider(fn func(ctx context.Context, req Request) (string, error)) *MockProvider {
	return &MockProvider{fn: fn}
}

// Name implements Provider.
func (p *MockProvider) Name() string { return "mock" }

// Translate implements Provider.
func (p *MockProvider) Translate(ctx context.Context, req Request) (string, error) {
	if p.fn != nil {
		return p.fn(ctx, req)
	}
	return "[" + req.TargetLang + "] " + req.Text, nil
}
