package telegram

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/harun/kurir/internal/metrics"
	"github.com/harun/kurir/pkg/dispatch"
)

// api is the slice of the Bot API the notifier needs. Raw requests keep
// thread parameters working on library versions without forum support.
type api interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// minEditInterval rate-limits message edits per chat
const minEditInterval = 900 * time.Millisecond

// Notifier delivers dispatcher output to Telegram chats and topics
type Notifier struct {
	api     api
	logger  zerolog.Logger
	metrics *metrics.Metrics

	editMu   sync.Mutex
	lastEdit map[int64]time.Time
}

// NewNotifier creates a Telegram notifier
func NewNotifier(a api, m *metrics.Metrics, logger zerolog.Logger) *Notifier {
	return &Notifier{
		api:      a,
		logger:   logger.With().Str("component", "notifier").Logger(),
		metrics:  m,
		lastEdit: make(map[int64]time.Time),
	}
}

var _ dispatch.Notifier = (*Notifier)(nil)
var _ dispatch.TopicNamer = (*Notifier)(nil)

// SendText renders markdown to HTML, chunks long answers, and attaches a
// quick-reply keyboard when the answer lists numbered options.
func (n *Notifier) SendText(target dispatch.ChatTarget, text string) (dispatch.MessageRef, error) {
	chunks := SplitMessage(text, MaxMessageLength)
	options := ExtractOptions(text)

	var last dispatch.MessageRef
	for i, chunk := range chunks {
		params := n.baseParams(target)
		params["text"] = ToHTML(chunk)
		params["parse_mode"] = "HTML"

		if i == len(chunks)-1 && len(options) > 0 {
			if err := params.AddInterface("reply_markup", optionKeyboard(options)); err != nil {
				return dispatch.MessageRef{}, fmt.Errorf("failed to encode keyboard: %w", err)
			}
		}

		msg, err := n.send(params)
		if err != nil {
			// fall back to plain text when the HTML rendering is rejected
			if strings.Contains(err.Error(), "can't parse entities") {
				retry := n.baseParams(target)
				retry["text"] = chunk
				msg, err = n.send(retry)
			}
			if err != nil {
				n.metrics.RecordTelegramError()
				return dispatch.MessageRef{}, err
			}
		}

		last = dispatch.MessageRef{ChatID: target.ChatID, MessageID: msg.MessageID}
		n.metrics.RecordTelegramSent()
	}

	return last, nil
}

// SendChoice sends a message with inline buttons
func (n *Notifier) SendChoice(target dispatch.ChatTarget, text string, choices []dispatch.Choice) (dispatch.MessageRef, error) {
	params := n.baseParams(target)
	params["text"] = ToHTML(text)
	params["parse_mode"] = "HTML"

	var row []tgbotapi.InlineKeyboardButton
	for _, choice := range choices {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(choice.Label, choice.ActionID))
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(row)
	if err := params.AddInterface("reply_markup", keyboard); err != nil {
		return dispatch.MessageRef{}, fmt.Errorf("failed to encode keyboard: %w", err)
	}

	msg, err := n.send(params)
	if err != nil {
		n.metrics.RecordTelegramError()
		return dispatch.MessageRef{}, err
	}

	n.metrics.RecordTelegramSent()
	return dispatch.MessageRef{ChatID: target.ChatID, MessageID: msg.MessageID}, nil
}

// EditText updates a previously sent message. Edits are rate limited per
// chat, a skipped edit is not an error.
func (n *Notifier) EditText(ref dispatch.MessageRef, text string) error {
	if !n.allowEdit(ref.ChatID) {
		return nil
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", ref.ChatID)
	params.AddNonZero("message_id", ref.MessageID)
	params["text"] = ToHTML(text)
	params["parse_mode"] = "HTML"

	if _, err := n.api.MakeRequest("editMessageText", params); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		n.metrics.RecordTelegramError()
		return fmt.Errorf("failed to edit message: %w", err)
	}

	return nil
}

// Delete removes a message, best effort
func (n *Notifier) Delete(ref dispatch.MessageRef) error {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", ref.ChatID)
	params.AddNonZero("message_id", ref.MessageID)

	if _, err := n.api.MakeRequest("deleteMessage", params); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// SetTopicName renames the forum topic the target points into
func (n *Notifier) SetTopicName(target dispatch.ChatTarget, name string) error {
	if target.ThreadID == 0 {
		return nil
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", target.ChatID)
	params.AddNonZero("message_thread_id", target.ThreadID)
	params["name"] = name

	if _, err := n.api.MakeRequest("editForumTopic", params); err != nil {
		return fmt.Errorf("failed to rename topic: %w", err)
	}

	n.logger.Debug().
		Int64("chat_id", target.ChatID).
		Int("thread_id", target.ThreadID).
		Str("name", name).
		Msg("Topic renamed")

	return nil
}

func (n *Notifier) baseParams(target dispatch.ChatTarget) tgbotapi.Params {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", target.ChatID)
	params.AddNonZero("message_thread_id", target.ThreadID)
	return params
}

// send issues a sendMessage request and decodes the resulting message
func (n *Notifier) send(params tgbotapi.Params) (*tgbotapi.Message, error) {
	resp, err := n.api.MakeRequest("sendMessage", params)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	var msg tgbotapi.Message
	if err := json.Unmarshal(resp.Result, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode sent message: %w", err)
	}

	return &msg, nil
}

func (n *Notifier) allowEdit(chatID int64) bool {
	n.editMu.Lock()
	defer n.editMu.Unlock()

	if last, ok := n.lastEdit[chatID]; ok && time.Since(last) < minEditInterval {
		return false
	}
	n.lastEdit[chatID] = time.Now()
	return true
}

// optionKeyboard builds a one-time reply keyboard from numbered options
func optionKeyboard(options []string) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for i, opt := range options {
		label := fmt.Sprintf("%d. %s", i+1, truncateLabel(opt, 32))
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(label)))
	}

	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.OneTimeKeyboard = true
	keyboard.ResizeKeyboard = true
	return keyboard
}

func truncateLabel(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
