package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	ReportDir string `toml:"report_dir"`
}

// Wiki contains configuration for the content platform API.
type Wiki struct {
	APIURL           string `toml:"api_url"`
	Username         string `toml:"username"`
	Password         string `toml:"password"`
	UserAgent        string `toml:"user_agent"`
	RequestTimeout   int    `toml:"request_timeout"`
	EditSleepMs      int    `toml:"edit_sleep_ms"`
	AutoWrap         bool   `toml:"auto_wrap"`
	MarkAction       string `toml:"mark_action"`
	DisclaimerMarker string `toml:"disclaimer_marker"`
}

// Languages defines the source language and translation targets.
type Languages struct {
	Source  string   `toml:"source"`
	Targets []string `toml:"targets"`
}

// OpenAI contains settings for the OpenAI translation provider.
type OpenAI struct {
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
}

// LibreTranslate contains settings for a LibreTranslate-compatible provider.
type LibreTranslate struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// Engine configures the machine-translation gateway.
type Engine struct {
	// Providers is the fallback order; the first entry is the primary.
	Providers      []string       `toml:"providers"`
	RequestTimeout int            `toml:"request_timeout"`
	MaxRetries     int            `toml:"max_retries"`
	OpenAI         OpenAI         `toml:"openai"`
	LibreTranslate LibreTranslate `toml:"libretranslate"`
}

// Cache configures the translation cache tiers.
type Cache struct {
	// RedisAddr enables the optional hot tier when non-empty.
	RedisAddr    string `toml:"redis_addr"`
	RedisTTLDays int    `toml:"redis_ttl_days"`
}

// Workflow contains daemon timing and retry configuration.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	RetryCap           int `toml:"retry_cap"`
	JobBatchSize       int `toml:"job_batch_size"`
}

// Glossary points at the operator-maintained termbase file.
type Glossary struct {
	File string `toml:"file"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for wikiloom.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and report directories
//   - Wiki: content platform API connection and edit behavior
//   - Languages: source language and translation targets
//   - Engine: MT provider order and per-provider settings
//   - Cache: optional Redis hot tier for translation reuse
//   - Workflow: polling intervals and the job retry budget
//   - Glossary: termbase file location
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Wiki      Wiki      `toml:"wiki"`
	Languages Languages `toml:"languages"`
	Engine    Engine    `toml:"engine"`
	Cache     Cache     `toml:"cache"`
	Workflow  Workflow  `toml:"workflow"`
	Glossary  Glossary  `toml:"glossary"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/wikiloom/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("wikiloom.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.ReportDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "wikiloom.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "wikiloomd.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
