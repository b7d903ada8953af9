package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== Kurir Configuration Wizard ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// Telegram
	fmt.Println("Telegram Configuration:")
	fmt.Println()

	for {
		fmt.Print("Telegram Bot Token: ")
		token, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if token == "" {
			fmt.Println("Error: bot token is required")
			continue
		}

		if err := validator.ValidateTelegramToken(token); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.Telegram.BotToken = token
		break
	}

	fmt.Print("Restrict to a single chat ID (press Enter to skip): ")
	chatID, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			fmt.Println("Warning: not a number, leaving chat filter disabled")
		} else {
			cfg.Telegram.ChatID = id
		}
	}

	fmt.Println()

	// Claude CLI
	fmt.Println("Claude CLI:")
	fmt.Printf("Path to the claude binary [%s]: ", cfg.Claude.CLIPath)
	cliPath, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if cliPath != "" {
		cfg.Claude.CLIPath = cliPath
	}

	fmt.Println()

	// Working directories
	fmt.Println("Working directories:")
	fmt.Print("Directory root to scan for projects (press Enter to skip): ")
	root, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if root != "" {
		cfg.Sessions.Roots = append(cfg.Sessions.Roots, root)
	}

	fmt.Println()

	// Log Level
	fmt.Println("Logging:")
	fmt.Print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Println()
	fmt.Println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
