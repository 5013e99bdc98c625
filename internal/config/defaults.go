package config

// Default returns the baseline configuration before any file overrides.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   "~/.local/share/wikiloom",
			LogDir:    "~/.local/share/wikiloom/logs",
			ReportDir: "~/.local/share/wikiloom/reports",
		},
		Wiki: Wiki{
			UserAgent:        "wikiloom/1.0",
			RequestTimeout:   30,
			EditSleepMs:      800,
			AutoWrap:         true,
			MarkAction:       "mark",
			DisclaimerMarker: "MachineTranslation",
		},
		Languages: Languages{
			Source:  "en",
			Targets: nil,
		},
		Engine: Engine{
			Providers:      []string{"openai"},
			RequestTimeout: 60,
			MaxRetries:     3,
			OpenAI: OpenAI{
				Model:       "gpt-4o-mini",
				Temperature: 0.3,
			},
		},
		Cache: Cache{
			RedisTTLDays: 30,
		},
		Workflow: Workflow{
			QueuePollInterval:  10,
			ErrorRetryInterval: 60,
			RetryCap:           4,
			JobBatchSize:       5,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
