package config

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

var knownProviders = map[string]struct{}{
	"openai":         {},
	"libretranslate": {},
	"mock":           {},
}

// Validate checks configuration consistency after normalization.
func (c *Config) Validate() error {
	if c.Languages.Source == "" {
		return fmt.Errorf("languages.source must be set")
	}
	if _, err := language.Parse(c.Languages.Source); err != nil {
		return fmt.Errorf("languages.source %q: %w", c.Languages.Source, err)
	}
	for _, lang := range c.Languages.Targets {
		if _, err := language.Parse(lang); err != nil {
			return fmt.Errorf("languages.targets entry %q: %w", lang, err)
		}
		if lang == c.Languages.Source {
			return fmt.Errorf("languages.targets must not contain the source language %q", lang)
		}
	}

	if len(c.Engine.Providers) == 0 {
		return fmt.Errorf("engine.providers must list at least one provider")
	}
	for _, name := range c.Engine.Providers {
		if _, ok := knownProviders[name]; !ok {
			return fmt.Errorf("engine.providers: unknown provider %q", name)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

// TargetSet returns the configured target languages as a lookup set.
func (c *Config) TargetSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Languages.Targets))
	for _, lang := range c.Languages.Targets {
		set[lang] = struct{}{}
	}
	return set
}
