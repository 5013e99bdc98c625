package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")
	cfg, _, exists, err := Load(missing)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Fatal("missing file reported as existing")
	}
	if cfg.Languages.Source != "en" {
		t.Fatalf("default source language: %q", cfg.Languages.Source)
	}
	if cfg.Workflow.RetryCap != 4 {
		t.Fatalf("default retry cap: %d", cfg.Workflow.RetryCap)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	path := writeConfig(t, `
[languages]
source = "EN"
targets = ["DE", "de", " fr ", ""]

[engine]
providers = ["OpenAI"]
`)
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists {
		t.Fatal("existing file reported missing")
	}
	if cfg.Languages.Source != "en" {
		t.Fatalf("source not lowered: %q", cfg.Languages.Source)
	}
	if len(cfg.Languages.Targets) != 2 || cfg.Languages.Targets[0] != "de" || cfg.Languages.Targets[1] != "fr" {
		t.Fatalf("targets not deduped/normalized: %v", cfg.Languages.Targets)
	}
	if len(cfg.Engine.Providers) != 1 || cfg.Engine.Providers[0] != "openai" {
		t.Fatalf("providers not normalized: %v", cfg.Engine.Providers)
	}
}

func TestValidateRejectsBadLanguage(t *testing.T) {
	path := writeConfig(t, `
[languages]
source = "en"
targets = ["not-a-real-language-tag!!"]
`)
	if _, _, _, err := Load(path); err == nil {
		t.Fatal("expected invalid language tag error")
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `
[engine]
providers = ["carrierpigeon"]
`)
	_, _, _, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

func TestValidateRejectsSourceInTargets(t *testing.T) {
	path := writeConfig(t, `
[languages]
source = "en"
targets = ["en"]
`)
	if _, _, _, err := Load(path); err == nil {
		t.Fatal("expected source-in-targets error")
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	if _, _, _, err := Load(path); err != nil {
		t.Fatalf("sample config must load cleanly: %v", err)
	}
}

func TestDatabaseAndLockPaths(t *testing.T) {
	cfg := Default()
	cfg.Paths.DataDir = "/tmp/wl"
	if cfg.DatabasePath() != "/tmp/wl/wikiloom.db" {
		t.Fatalf("db path: %q", cfg.DatabasePath())
	}
	if cfg.LockPath() != "/tmp/wl/wikiloomd.lock" {
		t.Fatalf("lock path: %q", cfg.LockPath())
	}
}
