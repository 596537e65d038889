package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
			QueueSize: 256,
		},
		Moderation: ModerationConfig{
			Languages:         []string{"en-US"},
			MaxTextCategories: 50,
			ReportsPerMinute:  30,
		},
		Oracle: OracleConfig{
			BaseURL:         "http://localhost:8700",
			TimeoutSeconds:  20,
			RetryMax:        3,
			CacheSize:       4096,
			CacheTTLSeconds: 600,
		},
		Server: ServerConfig{
			Enabled:   true,
			Addr:      "127.0.0.1:9090",
			Metrics:   true,
			EventFeed: false,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "modbot",
			SampleRatio: 1,
		},
	}
}
