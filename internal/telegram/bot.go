package telegram

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/harun/kurir/internal/config"
	"github.com/harun/kurir/internal/logger"
	"github.com/harun/kurir/internal/metrics"
)

// ActionFunc resolves an inline button press and returns the toast text
type ActionFunc func(actionID string) (string, error)

// Bot represents a Telegram bot instance
type Bot struct {
	api     *tgbotapi.BotAPI
	config  config.TelegramConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics

	// Handlers
	commands       *Commands
	messageHandler *Handler
	mediaHandler   *Media
	onAction       ActionFunc

	// State
	running bool
	updates tgbotapi.UpdatesChannel
}

// New creates a new Telegram bot instance
func New(cfg config.TelegramConfig, m *metrics.Metrics, log *logger.Logger) (*Bot, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot := &Bot{
		api:     api,
		config:  cfg,
		metrics: m,
		logger:  log.GetZerolog().With().Str("component", "telegram").Logger(),
	}

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

// Start starts the bot and begins processing updates
func (b *Bot) Start() error {
	if b.running {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Telegram bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.updates = updates
	b.running = true

	go b.processUpdates()

	b.logger.Info().Msg("Telegram bot started")

	return nil
}

// Stop stops the bot
func (b *Bot) Stop() error {
	if !b.running {
		return fmt.Errorf("bot is not running")
	}

	b.logger.Info().Msg("Stopping Telegram bot")

	b.running = false
	b.api.StopReceivingUpdates()

	b.logger.Info().Msg("Telegram bot stopped")

	return nil
}

// processUpdates processes incoming updates
func (b *Bot) processUpdates() {
	for update := range b.updates {
		if !b.running {
			break
		}

		if err := b.handleUpdate(update); err != nil {
			b.logger.Error().
				Err(err).
				Int("update_id", update.UpdateID).
				Msg("Failed to handle update")
		}
	}
}

// handleUpdate routes an update to the appropriate handler
func (b *Bot) handleUpdate(update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return b.handleCallback(update.CallbackQuery)
	}

	if update.Message == nil {
		return nil
	}

	msg := update.Message
	if !b.allowedChat(msg.Chat.ID) {
		b.logger.Warn().
			Int64("chat_id", msg.Chat.ID).
			Msg("Ignoring message from unauthorized chat")
		return nil
	}

	b.metrics.RecordTelegramReceived()

	if msg.IsCommand() && b.commands != nil {
		return b.commands.HandleCommand(update)
	}

	if b.hasMedia(msg) && b.mediaHandler != nil {
		return b.mediaHandler.HandleMedia(update)
	}

	if b.messageHandler != nil {
		return b.messageHandler.HandleMessage(update)
	}

	return nil
}

// handleCallback resolves an inline button press
func (b *Bot) handleCallback(query *tgbotapi.CallbackQuery) error {
	if query.Message != nil && !b.allowedChat(query.Message.Chat.ID) {
		return nil
	}

	toast := ""
	if b.onAction != nil {
		ack, err := b.onAction(query.Data)
		if err != nil {
			b.logger.Warn().
				Err(err).
				Str("action", query.Data).
				Msg("Callback rejected")
			toast = "This button has expired"
		} else {
			toast = ack
		}
	}

	params := tgbotapi.Params{}
	params["callback_query_id"] = query.ID
	if toast != "" {
		params["text"] = toast
	}
	if _, err := b.api.MakeRequest("answerCallbackQuery", params); err != nil {
		return fmt.Errorf("failed to answer callback query: %w", err)
	}

	return nil
}

// allowedChat applies the single-chat restriction when configured
func (b *Bot) allowedChat(chatID int64) bool {
	return b.config.ChatID == 0 || b.config.ChatID == chatID
}

// hasMedia checks if a message contains media kurir handles
func (b *Bot) hasMedia(msg *tgbotapi.Message) bool {
	return msg.Voice != nil || len(msg.Photo) > 0
}

// SetCommands sets the command handler
func (b *Bot) SetCommands(commands *Commands) {
	b.commands = commands
}

// SetMessageHandler sets the message handler
func (b *Bot) SetMessageHandler(handler *Handler) {
	b.messageHandler = handler
}

// SetMediaHandler sets the media handler
func (b *Bot) SetMediaHandler(handler *Media) {
	b.mediaHandler = handler
}

// SetActionHandler sets the callback query handler
func (b *Bot) SetActionHandler(fn ActionFunc) {
	b.onAction = fn
}

// API returns the underlying bot API
func (b *Bot) API() *tgbotapi.BotAPI {
	return b.api
}

// IsRunning returns whether the bot is running
func (b *Bot) IsRunning() bool {
	return b.running
}

// WaitForReady waits for the bot to be ready
func (b *Bot) WaitForReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if b.running {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("bot did not become ready within timeout")
}
