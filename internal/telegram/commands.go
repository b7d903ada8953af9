package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/harun/kurir/pkg/claude"
	"github.com/harun/kurir/pkg/dispatch"
	"github.com/harun/kurir/pkg/session"
)

// Commands routes bot commands to registered handlers
type Commands struct {
	bot      *Bot
	notifier *Notifier
	logger   zerolog.Logger
	handlers map[string]CommandFunc
}

// CommandFunc is a function that handles a command
type CommandFunc func(CommandContext) error

// CommandContext contains command metadata
type CommandContext struct {
	Target    dispatch.ChatTarget
	MessageID int
	Command   string
	Args      []string
	RawArgs   string
}

// NewCommands creates a new command handler
func NewCommands(bot *Bot, notifier *Notifier) *Commands {
	return &Commands{
		bot:      bot,
		notifier: notifier,
		logger:   bot.logger.With().Str("module", "commands").Logger(),
		handlers: make(map[string]CommandFunc),
	}
}

// HandleCommand processes incoming commands
func (c *Commands) HandleCommand(update tgbotapi.Update) error {
	if update.Message == nil || !update.Message.IsCommand() {
		return nil
	}

	msg := update.Message
	command := msg.Command()
	args := strings.Fields(msg.CommandArguments())

	ctx := CommandContext{
		Target:    TargetFor(msg),
		MessageID: msg.MessageID,
		Command:   command,
		Args:      args,
		RawArgs:   strings.TrimSpace(msg.CommandArguments()),
	}

	c.logger.Debug().
		Int64("chat_id", ctx.Target.ChatID).
		Str("command", command).
		Strs("args", args).
		Msg("Command received")

	handler, exists := c.handlers[command]
	if !exists {
		return c.respond(ctx, fmt.Sprintf("Unknown command: /%s", ctx.Command))
	}

	return handler(ctx)
}

// Register registers a command handler
func (c *Commands) Register(command string, handler CommandFunc) {
	c.handlers[command] = handler
	c.logger.Info().Str("command", command).Msg("Command registered")
}

// SetCommands sets the bot's command list in Telegram
func (c *Commands) SetCommands(commands []tgbotapi.BotCommand) error {
	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := c.bot.api.Request(cfg); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}

	c.logger.Info().Int("count", len(commands)).Msg("Bot commands updated")
	return nil
}

// respond sends a reply into the command's chat and topic
func (c *Commands) respond(ctx CommandContext, text string) error {
	_, err := c.notifier.SendText(ctx.Target, text)
	return err
}

// GetRegisteredCommands returns all registered commands
func (c *Commands) GetRegisteredCommands() []string {
	commands := make([]string, 0, len(c.handlers))
	for cmd := range c.handlers {
		commands = append(commands, cmd)
	}
	sort.Strings(commands)
	return commands
}

// CommandDeps are the collaborators the built-in command set works against
type CommandDeps struct {
	Dispatcher *dispatch.Dispatcher
	Registry   *session.Registry
	// Favorites maps short labels to directories, read per call so config
	// reloads take effect
	Favorites func() map[string]string
	// Roots lists directories scanned by /repos
	Roots func() []string
}

const helpText = `*kurir* bridges this chat to Claude Code running on your machine.

Just type a message to continue the most recent session.

*Commands*
/new [dir] - start a fresh conversation
/c <dir> <prompt> - run a prompt in a specific directory
/resume [dir] - reattach to the latest saved conversation
/dir <path> - register a working directory
/dirs - list known sessions
/repos - list repositories under the configured roots
/rmdir <dir> - forget a session
/cancel - cancel the running turn
/status - show session status
/compact - compact the conversation context
/help - this message`

// RegisterDefaults wires the built-in kurir command set
func (c *Commands) RegisterDefaults(deps CommandDeps) {
	reply := c.respond

	resolveDir := func(arg string) string {
		if deps.Favorites != nil {
			if path, ok := deps.Favorites()[arg]; ok {
				return path
			}
		}
		return arg
	}

	c.Register("start", func(ctx CommandContext) error {
		return reply(ctx, helpText)
	})
	c.Register("help", func(ctx CommandContext) error {
		return reply(ctx, helpText)
	})

	c.Register("new", func(ctx CommandContext) error {
		explicit := ""
		if len(ctx.Args) > 0 {
			explicit = resolveDir(ctx.Args[0])
		}

		sess, err := deps.Registry.Resolve(explicit)
		if err != nil {
			return reply(ctx, resolveErrorText(err, explicit))
		}
		if sess.Busy() {
			return reply(ctx, "⏳ That session is still working. Use /cancel first.")
		}

		if err := deps.Registry.SetConversationID(sess.Key, ""); err != nil {
			return reply(ctx, fmt.Sprintf("Failed to reset session: %v", err))
		}
		return reply(ctx, fmt.Sprintf("🆕 Fresh conversation in `%s`", sess.Key))
	})

	c.Register("c", func(ctx CommandContext) error {
		if len(ctx.Args) < 2 {
			return reply(ctx, "Usage: /c <dir> <prompt>")
		}
		dir := resolveDir(ctx.Args[0])
		prompt := strings.TrimSpace(strings.TrimPrefix(ctx.RawArgs, ctx.Args[0]))

		deps.Dispatcher.HandleMessage(context.Background(), dispatch.Inbound{
			Target:     ctx.Target,
			SessionKey: dir,
			Text:       prompt,
		})
		return nil
	})

	c.Register("resume", func(ctx CommandContext) error {
		explicit := ""
		if len(ctx.Args) > 0 {
			explicit = resolveDir(ctx.Args[0])
		}

		sess, err := deps.Registry.Resolve(explicit)
		if err != nil {
			return reply(ctx, resolveErrorText(err, explicit))
		}

		root, err := claude.ProjectsRoot()
		if err != nil {
			return reply(ctx, fmt.Sprintf("Failed to locate saved conversations: %v", err))
		}

		transcript, err := claude.LatestTranscript(root, sess.Key)
		if err != nil {
			return reply(ctx, fmt.Sprintf("No saved conversation found for `%s`", sess.Key))
		}

		if err := deps.Registry.SetConversationID(sess.Key, transcript.SessionID); err != nil {
			return reply(ctx, fmt.Sprintf("Failed to resume: %v", err))
		}

		return reply(ctx, fmt.Sprintf("▶️ Resumed `%s`\n_%s_", sess.Key, transcript.Preview))
	})

	c.Register("dir", func(ctx CommandContext) error {
		if len(ctx.Args) == 0 {
			return reply(ctx, "Usage: /dir <path>")
		}

		sess, err := deps.Registry.Resolve(resolveDir(ctx.Args[0]))
		if err != nil {
			return reply(ctx, resolveErrorText(err, ctx.Args[0]))
		}

		return reply(ctx, fmt.Sprintf("📂 Now talking to `%s`", sess.Key))
	})

	c.Register("dirs", func(ctx CommandContext) error {
		sessions := deps.Registry.List()
		if len(sessions) == 0 {
			return reply(ctx, "No sessions yet. Use /dir <path> to register one.")
		}

		var b strings.Builder
		b.WriteString("*Known sessions*\n")
		for _, s := range sessions {
			fmt.Fprintf(&b, "%s `%s` (%s)\n", statusDot(s.Status), s.Key, timeAgoShort(time.Since(s.LastActivity)))
		}
		return reply(ctx, b.String())
	})

	c.Register("repos", func(ctx CommandContext) error {
		var roots []string
		if deps.Roots != nil {
			roots = deps.Roots()
		}
		repos := discoverRepos(roots)
		if len(repos) == 0 {
			return reply(ctx, "No repositories found under the configured roots.")
		}

		var b strings.Builder
		b.WriteString("*Repositories*\n")
		for i, repo := range repos {
			fmt.Fprintf(&b, "%d. `%s`\n", i+1, repo)
		}
		return reply(ctx, b.String())
	})

	c.Register("rmdir", func(ctx CommandContext) error {
		if len(ctx.Args) == 0 {
			return reply(ctx, "Usage: /rmdir <path>")
		}

		key, err := session.NormalizeKey(resolveDir(ctx.Args[0]))
		if err != nil {
			return reply(ctx, fmt.Sprintf("Invalid path: %v", err))
		}
		if deps.Dispatcher.HasActiveTurn(key) {
			return reply(ctx, "⏳ That session is still working. Use /cancel first.")
		}
		if err := deps.Registry.Remove(key); err != nil {
			return reply(ctx, fmt.Sprintf("No session registered for `%s`", key))
		}
		return reply(ctx, fmt.Sprintf("🗑 Forgot `%s`", key))
	})

	c.Register("cancel", func(ctx CommandContext) error {
		explicit := ""
		if len(ctx.Args) > 0 {
			explicit = resolveDir(ctx.Args[0])
		}
		deps.Dispatcher.Cancel(ctx.Target, explicit)
		return nil
	})

	c.Register("status", func(ctx CommandContext) error {
		return reply(ctx, deps.Dispatcher.StatusReport(time.Now()))
	})

	c.Register("compact", func(ctx CommandContext) error {
		deps.Dispatcher.HandleMessage(context.Background(), dispatch.Inbound{
			Target: ctx.Target,
			Text:   "/compact",
		})
		return nil
	})
}

// DefaultCommandList is the command menu advertised to Telegram
func DefaultCommandList() []tgbotapi.BotCommand {
	return []tgbotapi.BotCommand{
		{Command: "new", Description: "Start a fresh conversation"},
		{Command: "c", Description: "Run a prompt in a directory"},
		{Command: "resume", Description: "Reattach to the latest conversation"},
		{Command: "dir", Description: "Register a working directory"},
		{Command: "dirs", Description: "List known sessions"},
		{Command: "repos", Description: "List repositories"},
		{Command: "rmdir", Description: "Forget a session"},
		{Command: "cancel", Description: "Cancel the running turn"},
		{Command: "status", Description: "Show session status"},
		{Command: "compact", Description: "Compact the conversation"},
		{Command: "help", Description: "Show help"},
	}
}

func resolveErrorText(err error, explicit string) string {
	switch {
	case errors.Is(err, session.ErrAmbiguous):
		return "No recently active session. Use /c <dir> <prompt> or /dir <path>."
	case errors.Is(err, session.ErrNotFound):
		return fmt.Sprintf("Directory `%s` does not exist", explicit)
	default:
		return fmt.Sprintf("Could not resolve `%s`: %v", explicit, err)
	}
}

func statusDot(s session.Status) string {
	switch s {
	case session.StatusRunning:
		return "🔵"
	case session.StatusAwaitingPermission:
		return "🟡"
	default:
		return "🟢"
	}
}

func timeAgoShort(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// discoverRepos lists direct children of the roots that look like git repos
func discoverRepos(roots []string) []string {
	var repos []string
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
				repos = append(repos, dir)
			}
		}
	}
	sort.Strings(repos)
	return repos
}
