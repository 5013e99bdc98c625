package main

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"wikiloom/internal/cache"
	"wikiloom/internal/config"
	"wikiloom/internal/engine"
	"wikiloom/internal/logging"
	"wikiloom/internal/mediawiki"
	"wikiloom/internal/store"
	"wikiloom/internal/workflow"
)

// commandContext loads configuration lazily and shares it across
// subcommands so the --config flag is honored wherever it appears.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	cfg        *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := ""
		if c.configFlag != nil {
			path = *c.configFlag
		}
		cfg, resolvedPath, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.cfg = cfg
		c.configPath = resolvedPath
	})
	return c.cfg, c.configErr
}

func (c *commandContext) openStore() (*store.Store, *config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := store.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return s, cfg, nil
}

func (c *commandContext) newLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg)
}

// newManager wires the full pipeline for commands that process jobs.
func newManager(s *store.Store, cfg *config.Config, logger *slog.Logger) (*workflow.Manager, error) {
	gateway, err := engine.NewGateway(cfg, logger)
	if err != nil {
		return nil, err
	}
	wiki, err := mediawiki.NewHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return workflow.NewManager(s, newCache(s, cfg), gateway, wiki, cfg, logger), nil
}

// newCache builds the translation cache, attaching the Redis hot tier only
// when an address is configured.
func newCache(s *store.Store, cfg *config.Config) *cache.Cache {
	var client redis.UniversalClient
	if cfg.Cache.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
	}
	ttl := time.Duration(cfg.Cache.RedisTTLDays) * 24 * time.Hour
	return cache.New(s, client, ttl)
}

// resolveMode maps the --refresh and --cache-only flags onto a cache mode.
func resolveMode(refresh, cacheOnly bool) (cache.Mode, error) {
	if refresh && cacheOnly {
		return cache.ModeNormal, fmt.Errorf("--refresh and --cache-only are mutually exclusive")
	}
	switch {
	case refresh:
		return cache.ModeRefresh, nil
	case cacheOnly:
		return cache.ModeCacheOnly, nil
	default:
		return cache.ModeNormal, nil
	}
}
