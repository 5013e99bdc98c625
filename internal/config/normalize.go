package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.ReportDir, err = expandPath(c.Paths.ReportDir); err != nil {
		return err
	}
	if c.Glossary.File != "" {
		if c.Glossary.File, err = expandPath(c.Glossary.File); err != nil {
			return err
		}
	}

	c.Wiki.APIURL = strings.TrimSpace(c.Wiki.APIURL)
	c.Wiki.Username = strings.TrimSpace(c.Wiki.Username)
	c.Wiki.UserAgent = strings.TrimSpace(c.Wiki.UserAgent)

	c.Languages.Source = strings.ToLower(strings.TrimSpace(c.Languages.Source))
	targets := make([]string, 0, len(c.Languages.Targets))
	seen := make(map[string]struct{}, len(c.Languages.Targets))
	for _, lang := range c.Languages.Targets {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		if _, dup := seen[lang]; dup {
			continue
		}
		seen[lang] = struct{}{}
		targets = append(targets, lang)
	}
	c.Languages.Targets = targets

	providers := make([]string, 0, len(c.Engine.Providers))
	for _, name := range c.Engine.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			providers = append(providers, name)
		}
	}
	c.Engine.Providers = providers

	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = 10
	}
	if c.Workflow.RetryCap <= 0 {
		c.Workflow.RetryCap = 4
	}
	if c.Workflow.JobBatchSize <= 0 {
		c.Workflow.JobBatchSize = 5
	}
	if c.Engine.RequestTimeout <= 0 {
		c.Engine.RequestTimeout = 60
	}
	if c.Wiki.RequestTimeout <= 0 {
		c.Wiki.RequestTimeout = 30
	}
	if c.Cache.RedisTTLDays <= 0 {
		c.Cache.RedisTTLDays = 30
	}

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return fmt.Errorf("paths.data_dir must not be empty")
	}
	return nil
}
