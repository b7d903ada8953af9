package telegram

import (
	"os"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/kurir/internal/config"
	"github.com/harun/kurir/internal/logger"
)

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "info", Console: false})
	require.NoError(t, err)
	return log
}

func TestNew(t *testing.T) {
	log := testLog(t)

	t.Run("valid config", func(t *testing.T) {
		token := os.Getenv("TELEGRAM_BOT_TOKEN")
		if token == "" {
			t.Skip("TELEGRAM_BOT_TOKEN not set")
		}

		cfg := config.TelegramConfig{BotToken: token}
		bot, err := New(cfg, nil, log)
		require.NoError(t, err)
		assert.NotNil(t, bot)
		assert.NotNil(t, bot.api)
	})

	t.Run("empty bot token", func(t *testing.T) {
		bot, err := New(config.TelegramConfig{}, nil, log)
		assert.Error(t, err)
		assert.Nil(t, bot)
		assert.Contains(t, err.Error(), "bot token is required")
	})

	t.Run("invalid bot token", func(t *testing.T) {
		bot, err := New(config.TelegramConfig{BotToken: "invalid-token"}, nil, log)
		assert.Error(t, err)
		assert.Nil(t, bot)
	})
}

func TestAllowedChat(t *testing.T) {
	log := testLog(t)

	t.Run("no filter allows any chat", func(t *testing.T) {
		bot := &Bot{config: config.TelegramConfig{}, logger: log.GetZerolog()}
		assert.True(t, bot.allowedChat(1))
		assert.True(t, bot.allowedChat(-100123))
	})

	t.Run("filter restricts to one chat", func(t *testing.T) {
		bot := &Bot{config: config.TelegramConfig{ChatID: 42}, logger: log.GetZerolog()}
		assert.True(t, bot.allowedChat(42))
		assert.False(t, bot.allowedChat(43))
	})
}

func TestHasMedia(t *testing.T) {
	bot := &Bot{}

	t.Run("no media", func(t *testing.T) {
		assert.False(t, bot.hasMedia(&tgbotapi.Message{Text: "Hello"}))
	})

	t.Run("has voice", func(t *testing.T) {
		assert.True(t, bot.hasMedia(&tgbotapi.Message{Voice: &tgbotapi.Voice{FileID: "test"}}))
	})

	t.Run("has photo", func(t *testing.T) {
		assert.True(t, bot.hasMedia(&tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{FileID: "test"}}}))
	})

	t.Run("documents are ignored", func(t *testing.T) {
		assert.False(t, bot.hasMedia(&tgbotapi.Message{Document: &tgbotapi.Document{FileID: "test"}}))
	})
}

func TestHandleUpdateFiltersChat(t *testing.T) {
	log := testLog(t)
	bot := &Bot{
		config: config.TelegramConfig{ChatID: 42},
		logger: log.GetZerolog(),
	}

	// a message from another chat is dropped before any handler runs,
	// no handlers are set so a routed message would panic
	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: 99},
			Text: "hi",
		},
	}
	assert.NoError(t, bot.handleUpdate(update))
}

func TestStartStopStateChecks(t *testing.T) {
	bot := &Bot{}

	err := bot.Stop()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}
