// Package config loads advchat settings from viper and turns them into
// per-request chat.Config snapshots.
package config

import (
	"path/filepath"
	"time"

	"github.com/longkey1/advchat/internal/chat"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds the file and environment configuration of advchat
type Config struct {
	Endpoint                string   `toml:"endpoint" mapstructure:"endpoint"`
	AuthToken               string   `toml:"auth_token" mapstructure:"auth_token"` // "$VAR" or "${VAR}" reads the environment
	SystemPrompt            string   `toml:"system_prompt" mapstructure:"system_prompt"`
	MaxHistory              int      `toml:"max_history" mapstructure:"max_history"`
	RequestTimeout          string   `toml:"request_timeout" mapstructure:"request_timeout"` // Go duration, e.g. "30s"
	UserID                  string   `toml:"user_id" mapstructure:"user_id"`                 // empty = derived from the OS user
	DatabasePath            string   `toml:"database_path" mapstructure:"database_path"`
	PromptDirs              []string `toml:"prompt_dirs" mapstructure:"prompt_dirs"`
	SessionMessageThreshold int      `toml:"session_message_threshold" mapstructure:"session_message_threshold"` // 0 = disabled
	SessionRetentionDays    int      `toml:"session_retention_days" mapstructure:"session_retention_days"`
	LogLevel                string   `toml:"log_level" mapstructure:"log_level"`
	LogFormat               string   `toml:"log_format" mapstructure:"log_format"`
	LogFile                 string   `toml:"log_file" mapstructure:"log_file"`
}

// NewDefaultConfig returns a new Config with default values. Relative
// paths are resolved against the directory of the config file.
func NewDefaultConfig(promptDir string) *Config {
	return &Config{
		Endpoint:                "",
		AuthToken:               "$ADVCHAT_TOKEN",
		SystemPrompt:            "",
		MaxHistory:              chat.DefaultHistoryWindow,
		RequestTimeout:          chat.DefaultRequestTimeout.String(),
		DatabasePath:            "advchat.db",
		PromptDirs:              []string{promptDir},
		SessionMessageThreshold: 50,
		SessionRetentionDays:    30,
		LogLevel:                "warn",
		LogFormat:               "text",
	}
}

// SetDefaults registers the values of NewDefaultConfig with v.
func SetDefaults(v *viper.Viper, promptDirs []string) {
	d := NewDefaultConfig("")
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("auth_token", d.AuthToken)
	v.SetDefault("system_prompt", d.SystemPrompt)
	v.SetDefault("max_history", d.MaxHistory)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("user_id", d.UserID)
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("prompt_dirs", promptDirs)
	v.SetDefault("session_message_threshold", d.SessionMessageThreshold)
	v.SetDefault("session_retention_days", d.SessionRetentionDays)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_file", d.LogFile)
}

// LoadConfig loads configuration from the global viper instance
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}

// Load loads configuration from v, expanding environment references and
// resolving relative paths against the config file directory.
func Load(v *viper.Viper) (*Config, error) {
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling config")
	}

	config.Endpoint = expandEnvVar(config.Endpoint)
	config.AuthToken = expandEnvVar(config.AuthToken)
	config.UserID = expandEnvVar(config.UserID)

	base := configDir(v)

	// Convert prompt directories to absolute paths
	for i, promptDir := range config.PromptDirs {
		absPath, err := resolvePath(base, promptDir)
		if err != nil {
			return nil, errors.Wrapf(err, "error resolving prompt directory path '%s'", promptDir)
		}
		config.PromptDirs[i] = absPath
	}

	if config.DatabasePath != "" {
		absPath, err := resolvePath(base, config.DatabasePath)
		if err != nil {
			return nil, errors.Wrapf(err, "error resolving database path '%s'", config.DatabasePath)
		}
		config.DatabasePath = absPath
	}

	if config.LogFile != "" {
		absPath, err := resolvePath(base, config.LogFile)
		if err != nil {
			return nil, errors.Wrapf(err, "error resolving log file path '%s'", config.LogFile)
		}
		config.LogFile = absPath
	}

	return config, nil
}

// Timeout parses RequestTimeout. An empty value yields the default.
func (c *Config) Timeout() (time.Duration, error) {
	if c.RequestTimeout == "" {
		return chat.DefaultRequestTimeout, nil
	}
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid request_timeout %q", c.RequestTimeout)
	}
	if d <= 0 {
		return 0, errors.Errorf("request_timeout must be positive (got %s)", c.RequestTimeout)
	}
	return d, nil
}

// Settings returns the snapshot the chat engine uses for one request.
// systemPrompt overrides SystemPrompt when non-empty.
func (c *Config) Settings(systemPrompt string) (chat.Config, error) {
	timeout, err := c.Timeout()
	if err != nil {
		return chat.Config{}, err
	}
	if c.MaxHistory < 1 {
		return chat.Config{}, errors.Errorf("max_history must be at least 1 (got %d)", c.MaxHistory)
	}
	if systemPrompt == "" {
		systemPrompt = c.SystemPrompt
	}
	return chat.Config{
		Endpoint:          c.Endpoint,
		AuthToken:         c.AuthToken,
		SystemInstruction: systemPrompt,
		HistoryWindow:     c.MaxHistory,
		RequestTimeout:    timeout,
	}, nil
}

// ValidateForSend reports settings that make sending impossible.
func (c *Config) ValidateForSend() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is not configured. Set it in config file (endpoint) or environment variable (ADVCHAT_ENDPOINT)")
	}
	_, err := c.Settings("")
	return err
}

// Retention returns how long sessions are kept. Zero means forever.
func (c *Config) Retention() time.Duration {
	if c.SessionRetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.SessionRetentionDays) * 24 * time.Hour
}

func configDir(v *viper.Viper) string {
	if f := v.ConfigFileUsed(); f != "" {
		return filepath.Dir(f)
	}
	return ""
}
