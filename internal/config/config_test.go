package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "claude", cfg.Claude.CLIPath)
	assert.Equal(t, 300, cfg.Claude.TurnTimeout)
	assert.Equal(t, 300, cfg.Claude.PermissionTimeout)
	assert.Equal(t, 4, cfg.Claude.TickInterval)
	assert.Equal(t, 10, cfg.Sessions.Window)
	assert.Equal(t, 24, cfg.Sessions.SweepAge)
	assert.Equal(t, "0 4 * * *", cfg.Sessions.SweepSchedule)
	assert.True(t, cfg.Notify.Enabled)
	assert.Equal(t, "127.0.0.1", cfg.Notify.Host)
	assert.Equal(t, 8765, cfg.Notify.Port)
	assert.True(t, cfg.Titles.Enabled)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Titles.BaseURL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5*time.Minute, cfg.Claude.TurnTimeoutDuration())
	assert.Equal(t, 5*time.Minute, cfg.Claude.PermissionTimeoutDuration())
	assert.Equal(t, 4*time.Second, cfg.Claude.TickIntervalDuration())
	assert.Equal(t, 10*time.Minute, cfg.Sessions.WindowDuration())
	assert.Equal(t, 24*time.Hour, cfg.Sessions.SweepAgeDuration())
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Telegram.BotToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz"
		return cfg
	}

	t.Run("valid config", func(t *testing.T) {
		err := valid().Validate()
		assert.NoError(t, err)
	})

	t.Run("missing bot token", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "bot token")
	})

	t.Run("missing cli path", func(t *testing.T) {
		cfg := valid()
		cfg.Claude.CLIPath = ""
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cli_path")
	})

	t.Run("zero window", func(t *testing.T) {
		cfg := valid()
		cfg.Sessions.Window = 0
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "window")
	})

	t.Run("bad notify port", func(t *testing.T) {
		cfg := valid()
		cfg.Notify.Port = 0
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "port")
	})

	t.Run("notify disabled skips port check", func(t *testing.T) {
		cfg := valid()
		cfg.Notify.Enabled = false
		cfg.Notify.Port = 0
		err := cfg.Validate()
		assert.NoError(t, err)
	})

	t.Run("titles enabled without model", func(t *testing.T) {
		cfg := valid()
		cfg.Titles.Model = ""
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "model")
	})

	t.Run("transcribe enabled without model path", func(t *testing.T) {
		cfg := valid()
		cfg.Transcribe.Enabled = true
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "model_path")
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := valid()
		cfg.Logging.Level = "verbose"
		err := cfg.Validate()
		assert.Error(t, err)
	})
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	s := cfg.String()
	assert.Contains(t, s, "claude")
	assert.Contains(t, s, "sessions")
}
