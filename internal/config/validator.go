package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTelegramToken validates a Telegram bot token
func (v *Validator) ValidateTelegramToken(token string) error {
	if token == "" {
		return fmt.Errorf("telegram bot token cannot be empty")
	}

	// Telegram bot tokens have format: <bot_id>:<token>
	// Example: 123456789:ABCdefGHIjklMNOpqrsTUVwxyz
	pattern := regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)
	if !pattern.MatchString(token) {
		return fmt.Errorf("invalid Telegram bot token format")
	}

	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateCronSchedule performs a light sanity check on a cron expression
func (v *Validator) ValidateCronSchedule(schedule string) error {
	if schedule == "" {
		return nil // Use default
	}
	fields := strings.Fields(schedule)
	if len(fields) != 5 {
		return fmt.Errorf("invalid cron schedule %q: expected 5 fields", schedule)
	}
	return nil
}

// ValidatePort validates a TCP port number
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Telegram is the primary surface, a token is mandatory
	if err := v.ValidateTelegramToken(cfg.Telegram.BotToken); err != nil {
		errors = append(errors, err)
	}

	if cfg.Claude.CLIPath == "" {
		errors = append(errors, fmt.Errorf("claude cli_path is required"))
	}
	if cfg.Claude.TurnTimeout < 0 {
		errors = append(errors, fmt.Errorf("claude turn_timeout must be >= 0"))
	}
	if cfg.Claude.PermissionTimeout < 0 {
		errors = append(errors, fmt.Errorf("claude permission_timeout must be >= 0"))
	}
	if cfg.Claude.TickInterval < 0 {
		errors = append(errors, fmt.Errorf("claude tick_interval must be >= 0"))
	}

	if cfg.Sessions.Window <= 0 {
		errors = append(errors, fmt.Errorf("sessions window must be > 0 minutes"))
	}
	if cfg.Sessions.SweepAge < 0 {
		errors = append(errors, fmt.Errorf("sessions sweep_age must be >= 0"))
	}
	if err := v.ValidateCronSchedule(cfg.Sessions.SweepSchedule); err != nil {
		errors = append(errors, err)
	}
	for label, path := range cfg.Sessions.Favorites {
		if strings.TrimSpace(label) == "" {
			errors = append(errors, fmt.Errorf("favorite with empty label (path %s)", path))
		}
		if strings.TrimSpace(path) == "" {
			errors = append(errors, fmt.Errorf("favorite %s: path is required", label))
		}
	}

	if cfg.Notify.Enabled {
		if err := v.ValidatePort(cfg.Notify.Port); err != nil {
			errors = append(errors, fmt.Errorf("notify: %w", err))
		}
	}

	if cfg.Titles.Enabled {
		if cfg.Titles.BaseURL == "" {
			errors = append(errors, fmt.Errorf("titles base_url is required when titles are enabled"))
		}
		if cfg.Titles.Model == "" {
			errors = append(errors, fmt.Errorf("titles model is required when titles are enabled"))
		}
	}

	if cfg.Transcribe.Enabled {
		if cfg.Transcribe.WhisperPath == "" {
			errors = append(errors, fmt.Errorf("transcribe whisper_path is required when transcription is enabled"))
		}
		if cfg.Transcribe.ModelPath == "" {
			errors = append(errors, fmt.Errorf("transcribe model_path is required when transcription is enabled"))
		}
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	errs := NewValidator().ValidateConfig(c)
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
