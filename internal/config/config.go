package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for modbot.
type Config struct {
	General    GeneralConfig    `json:"general"`
	Moderation ModerationConfig `json:"moderation"`
	Oracle     OracleConfig     `json:"oracle"`
	Platforms  PlatformsConfig  `json:"platforms"`
	Server     ServerConfig     `json:"server"`
	Tracing    TracingConfig    `json:"tracing"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat,omitempty"` // "text" | "json"
	QueueSize int    `json:"queueSize"`           // buffered inbound events per platform
}

// ModerationConfig holds the moderation settings shared by every platform.
// Platforms may override the channel and role IDs, which are platform specific.
type ModerationConfig struct {
	Languages         []string `json:"languages"`
	MuteRole          string   `json:"muteRole,omitempty"`
	LogsChannel       string   `json:"logsChannel,omitempty"`
	ModerationChannel string   `json:"moderationChannel,omitempty"`
	MaxTextCategories int      `json:"maxTextCategories"`
	ReportsPerMinute  int      `json:"reportsPerMinute"` // 0 = unlimited
}

// Overrides replace the shared moderation IDs for one platform.
type Overrides struct {
	MuteRole          string `json:"muteRole,omitempty"`
	LogsChannel       string `json:"logsChannel,omitempty"`
	ModerationChannel string `json:"moderationChannel,omitempty"`
}

type OracleConfig struct {
	BaseURL         string `json:"baseURL"`
	APIKey          string `json:"apiKey,omitempty"`
	TimeoutSeconds  int    `json:"timeoutSeconds"`
	RetryMax        int    `json:"retryMax"`
	CacheSize       int    `json:"cacheSize"` // 0 disables the verdict cache
	CacheTTLSeconds int    `json:"cacheTTLSeconds"`
}

func (o OracleConfig) Timeout() time.Duration { return time.Duration(o.TimeoutSeconds) * time.Second }

func (o OracleConfig) CacheTTL() time.Duration { return time.Duration(o.CacheTTLSeconds) * time.Second }

type PlatformsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
	Twitch   TwitchConfig   `json:"twitch"`
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	GuildID string `json:"guildId,omitempty"` // optional: restrict to specific guild
	Overrides
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom,omitempty"` // chat IDs; empty = all chats
	Overrides
}

type SlackConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
	AppToken string `json:"appToken"` // required for Socket Mode
	Overrides
}

type TwitchConfig struct {
	Enabled  bool           `json:"enabled"`
	Username string         `json:"username"`
	Token    string         `json:"token"` // chat OAuth token
	Channels FlexStringList `json:"channels,omitempty"`
	Overrides
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Enabled   bool   `json:"enabled"`
	Addr      string `json:"addr"`
	Metrics   bool   `json:"metrics"`
	EventFeed bool   `json:"eventFeed"`
}

// TracingConfig configures OTLP/HTTP trace export. The usual OTEL_EXPORTER_OTLP_*
// variables apply when Endpoint is empty.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	Endpoint    string  `json:"endpoint,omitempty"`
	Insecure    bool    `json:"insecure,omitempty"`
	ServiceName string  `json:"serviceName"`
	SampleRatio float64 `json:"sampleRatio"`
}

// ModerationFor returns the moderation settings of a platform with its
// overrides applied.
func (c *Config) ModerationFor(platform string) ModerationConfig {
	m := c.Moderation
	m.Languages = append([]string(nil), c.Moderation.Languages...)

	var o Overrides
	switch platform {
	case "discord":
		o = c.Platforms.Discord.Overrides
	case "telegram":
		o = c.Platforms.Telegram.Overrides
	case "slack":
		o = c.Platforms.Slack.Overrides
	case "twitch":
		o = c.Platforms.Twitch.Overrides
	}
	if o.MuteRole != "" {
		m.MuteRole = o.MuteRole
	}
	if o.LogsChannel != "" {
		m.LogsChannel = o.LogsChannel
	}
	if o.ModerationChannel != "" {
		m.ModerationChannel = o.ModerationChannel
	}
	return m
}

// EnabledPlatforms lists the enabled platforms in a fixed order.
func (c *Config) EnabledPlatforms() []string {
	var out []string
	if c.Platforms.Discord.Enabled {
		out = append(out, "discord")
	}
	if c.Platforms.Telegram.Enabled {
		out = append(out, "telegram")
	}
	if c.Platforms.Slack.Enabled {
		out = append(out, "slack")
	}
	if c.Platforms.Twitch.Enabled {
		out = append(out, "twitch")
	}
	return out
}

// DefaultConfigDir returns the default config directory (~/.modbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".modbot"
	}
	return filepath.Join(home, ".modbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML config file (chosen by extension) over the
// defaults and validates it.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// yamlToJSON re-encodes a YAML document as JSON so both formats share the
// JSON field names and decoders.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(doc)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg as JSON or YAML depending on the extension of path.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if isYAML(path) {
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
		if data, err = yaml.Marshal(doc); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
	}

	// tokens live in here
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if _, err := ParseLogLevel(cfg.General.LogLevel); err != nil {
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if cfg.General.QueueSize < 1 || cfg.General.QueueSize > 100000 {
		errs = append(errs, "general.queueSize must be between 1 and 100000")
	}

	for i, lang := range cfg.Moderation.Languages {
		if strings.TrimSpace(lang) == "" {
			errs = append(errs, fmt.Sprintf("moderation.languages[%d] must not be empty", i))
		}
	}
	if cfg.Moderation.MaxTextCategories < 1 || cfg.Moderation.MaxTextCategories > 100 {
		errs = append(errs, "moderation.maxTextCategories must be between 1 and 100")
	}
	if cfg.Moderation.ReportsPerMinute < 0 {
		errs = append(errs, "moderation.reportsPerMinute must be >= 0")
	}

	if u, err := url.Parse(cfg.Oracle.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "oracle.baseURL must be an absolute URL")
	}
	if cfg.Oracle.TimeoutSeconds < 1 || cfg.Oracle.TimeoutSeconds > 300 {
		errs = append(errs, "oracle.timeoutSeconds must be between 1 and 300")
	}
	if cfg.Oracle.RetryMax < 0 || cfg.Oracle.RetryMax > 10 {
		errs = append(errs, "oracle.retryMax must be between 0 and 10")
	}
	if cfg.Oracle.CacheSize < 0 {
		errs = append(errs, "oracle.cacheSize must be >= 0")
	}
	if cfg.Oracle.CacheSize > 0 && cfg.Oracle.CacheTTLSeconds < 1 {
		errs = append(errs, "oracle.cacheTTLSeconds must be >= 1 when the cache is enabled")
	}

	if p := cfg.Platforms.Discord; p.Enabled && p.Token == "" {
		errs = append(errs, "platforms.discord.token is required when enabled")
	}
	if p := cfg.Platforms.Telegram; p.Enabled && p.Token == "" {
		errs = append(errs, "platforms.telegram.token is required when enabled")
	}
	if p := cfg.Platforms.Slack; p.Enabled && (p.BotToken == "" || p.AppToken == "") {
		errs = append(errs, "platforms.slack.botToken and appToken are required when enabled")
	}
	if p := cfg.Platforms.Twitch; p.Enabled && (p.Username == "" || p.Token == "" || len(p.Channels) == 0) {
		errs = append(errs, "platforms.twitch.username, token and channels are required when enabled")
	}

	if cfg.Server.Enabled && cfg.Server.Addr == "" {
		errs = append(errs, "server.addr is required when the server is enabled")
	}
	if cfg.Tracing.Enabled && cfg.Tracing.ServiceName == "" {
		errs = append(errs, "tracing.serviceName is required when tracing is enabled")
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, "tracing.sampleRatio must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseLogLevel maps a config log level to slog. Empty means info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
