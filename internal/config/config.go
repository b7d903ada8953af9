package config

import (
	"encoding/json"
	"time"
)

// Config represents the main Kurir configuration
type Config struct {
	// Telegram
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`

	// Claude CLI runner
	Claude ClaudeConfig `json:"claude" mapstructure:"claude"`

	// Session registry
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Notification HTTP server
	Notify NotifyConfig `json:"notify" mapstructure:"notify"`

	// Topic title generation
	Titles TitlesConfig `json:"titles" mapstructure:"titles"`

	// Voice transcription
	Transcribe TranscribeConfig `json:"transcribe" mapstructure:"transcribe"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken string `json:"bot_token" mapstructure:"bot_token"`
	// ChatID restricts the bot to a single chat. Zero disables the filter.
	ChatID int64 `json:"chat_id" mapstructure:"chat_id"`
}

// ClaudeConfig holds settings for the claude CLI runner
type ClaudeConfig struct {
	CLIPath            string   `json:"cli_path" mapstructure:"cli_path"`
	TurnTimeout        int      `json:"turn_timeout" mapstructure:"turn_timeout"`               // seconds
	PermissionTimeout  int      `json:"permission_timeout" mapstructure:"permission_timeout"`   // seconds
	TickInterval       int      `json:"tick_interval" mapstructure:"tick_interval"`             // seconds
	AllowedTools       []string `json:"allowed_tools" mapstructure:"allowed_tools"`
	SkipPermissions    bool     `json:"skip_permissions" mapstructure:"skip_permissions"`
	AppendSystemPrompt string   `json:"append_system_prompt" mapstructure:"append_system_prompt"`
}

// SessionsConfig holds settings for the session registry
type SessionsConfig struct {
	// Roots are directories scanned for working directories
	Roots []string `json:"roots" mapstructure:"roots"`
	// Favorites maps short labels to working directory paths
	Favorites map[string]string `json:"favorites" mapstructure:"favorites"`
	// Window is the auto-continue window in minutes
	Window int `json:"window" mapstructure:"window"`
	// SweepSchedule is a cron expression for the stale session sweep
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
	// SweepAge removes idle sessions older than this many hours
	SweepAge int `json:"sweep_age" mapstructure:"sweep_age"`
}

// NotifyConfig holds notification server configuration
type NotifyConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// TitlesConfig holds topic title summarizer configuration
type TitlesConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	APIKey  string `json:"api_key" mapstructure:"api_key"`
	Model   string `json:"model" mapstructure:"model"`
	Timeout int    `json:"timeout" mapstructure:"timeout"` // seconds
}

// TranscribeConfig holds voice transcription configuration
type TranscribeConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	WhisperPath string `json:"whisper_path" mapstructure:"whisper_path"`
	ModelPath   string `json:"model_path" mapstructure:"model_path"`
	FFmpegPath  string `json:"ffmpeg_path" mapstructure:"ffmpeg_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Claude: ClaudeConfig{
			CLIPath:           "claude",
			TurnTimeout:       300,
			PermissionTimeout: 300,
			TickInterval:      4,
		},
		Sessions: SessionsConfig{
			Favorites:     map[string]string{},
			Window:        10,
			SweepSchedule: "0 4 * * *",
			SweepAge:      24,
		},
		Notify: NotifyConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8765,
		},
		Titles: TitlesConfig{
			Enabled: true,
			BaseURL: "http://localhost:11434/v1",
			Model:   "llama3.2",
			Timeout: 15,
		},
		Transcribe: TranscribeConfig{
			WhisperPath: "whisper-cli",
			FFmpegPath:  "ffmpeg",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   50,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// TurnTimeoutDuration returns the turn timeout as a duration
func (c ClaudeConfig) TurnTimeoutDuration() time.Duration {
	return time.Duration(c.TurnTimeout) * time.Second
}

// PermissionTimeoutDuration returns the permission timeout as a duration
func (c ClaudeConfig) PermissionTimeoutDuration() time.Duration {
	return time.Duration(c.PermissionTimeout) * time.Second
}

// TickIntervalDuration returns the status tick interval as a duration
func (c ClaudeConfig) TickIntervalDuration() time.Duration {
	return time.Duration(c.TickInterval) * time.Second
}

// WindowDuration returns the auto-continue window as a duration
func (c SessionsConfig) WindowDuration() time.Duration {
	return time.Duration(c.Window) * time.Minute
}

// SweepAgeDuration returns the sweep age as a duration
func (c SessionsConfig) SweepAgeDuration() time.Duration {
	return time.Duration(c.SweepAge) * time.Hour
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
