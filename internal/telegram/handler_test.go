package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"

	"github.com/harun/kurir/pkg/dispatch"
)

func TestTargetFor(t *testing.T) {
	t.Run("private chat", func(t *testing.T) {
		msg := &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: 42, Type: "private"},
			Text: "hi",
		}
		assert.Equal(t, dispatch.ChatTarget{ChatID: 42}, TargetFor(msg))
	})

	t.Run("topic message", func(t *testing.T) {
		msg := &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: -100500, Type: "supergroup"},
			Text: "hi",
			ReplyToMessage: &tgbotapi.Message{
				MessageID: 77,
				Chat:      &tgbotapi.Chat{ID: -100500, Type: "supergroup"},
			},
		}
		assert.Equal(t, dispatch.ChatTarget{ChatID: -100500, ThreadID: 77}, TargetFor(msg))
	})
}

func TestTopicThreadID(t *testing.T) {
	super := &tgbotapi.Chat{ID: -1, Type: "supergroup"}

	t.Run("no reply", func(t *testing.T) {
		msg := &tgbotapi.Message{Chat: super}
		assert.Zero(t, topicThreadID(msg))
	})

	t.Run("reply to service message in supergroup", func(t *testing.T) {
		msg := &tgbotapi.Message{
			Chat:           super,
			ReplyToMessage: &tgbotapi.Message{MessageID: 12, Chat: super},
		}
		assert.Equal(t, 12, topicThreadID(msg))
	})

	t.Run("reply to text message is not a topic", func(t *testing.T) {
		msg := &tgbotapi.Message{
			Chat:           super,
			ReplyToMessage: &tgbotapi.Message{MessageID: 12, Chat: super, Text: "earlier"},
		}
		assert.Zero(t, topicThreadID(msg))
	})

	t.Run("reply in private chat is not a topic", func(t *testing.T) {
		private := &tgbotapi.Chat{ID: 2, Type: "private"}
		msg := &tgbotapi.Message{
			Chat:           private,
			ReplyToMessage: &tgbotapi.Message{MessageID: 12, Chat: private},
		}
		assert.Zero(t, topicThreadID(msg))
	})

	t.Run("reply to photo message is not a topic", func(t *testing.T) {
		msg := &tgbotapi.Message{
			Chat: super,
			ReplyToMessage: &tgbotapi.Message{
				MessageID: 12,
				Chat:      super,
				Photo:     []tgbotapi.PhotoSize{{FileID: "p"}},
			},
		}
		assert.Zero(t, topicThreadID(msg))
	})
}

func TestHandleMessageIgnoresEmpty(t *testing.T) {
	log := testLog(t)
	bot := &Bot{logger: log.GetZerolog()}
	// nil dispatcher would panic if an empty message were routed
	h := NewHandler(bot, nil)

	assert.NoError(t, h.HandleMessage(tgbotapi.Update{}))
	assert.NoError(t, h.HandleMessage(tgbotapi.Update{
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "   "},
	}))
}
