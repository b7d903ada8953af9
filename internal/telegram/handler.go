package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/harun/kurir/pkg/dispatch"
)

// Handler routes plain text messages into the dispatcher
type Handler struct {
	bot        *Bot
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
}

// NewHandler creates a new message handler
func NewHandler(bot *Bot, dispatcher *dispatch.Dispatcher) *Handler {
	return &Handler{
		bot:        bot,
		dispatcher: dispatcher,
		logger:     bot.logger.With().Str("module", "handler").Logger(),
	}
}

// HandleMessage processes incoming text messages
func (h *Handler) HandleMessage(update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return nil
	}

	target := TargetFor(msg)
	text := strings.TrimSpace(msg.Text)

	h.logger.Debug().
		Int64("chat_id", target.ChatID).
		Int("thread_id", target.ThreadID).
		Int("chars", len(text)).
		Msg("Message received")

	h.dispatcher.HandleMessage(context.Background(), dispatch.Inbound{
		Target: target,
		Text:   text,
	})

	return nil
}

// TargetFor derives the chat target for a message, including the forum
// topic thread when the message was posted inside one.
func TargetFor(msg *tgbotapi.Message) dispatch.ChatTarget {
	return dispatch.ChatTarget{
		ChatID:   msg.Chat.ID,
		ThreadID: topicThreadID(msg),
	}
}

// topicThreadID recovers the forum topic id from a message. Messages in a
// topic carry a reply to the topic's service message, which decodes with
// no text or media.
func topicThreadID(msg *tgbotapi.Message) int {
	reply := msg.ReplyToMessage
	if reply == nil {
		return 0
	}
	if !msg.Chat.IsSuperGroup() {
		return 0
	}
	if reply.Text != "" || reply.Caption != "" || len(reply.Photo) > 0 ||
		reply.Document != nil || reply.Voice != nil || reply.Video != nil {
		return 0
	}
	return reply.MessageID
}
