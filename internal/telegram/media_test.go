package telegram

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
)

func TestNewMedia(t *testing.T) {
	log := testLog(t)
	bot := &Bot{logger: log.GetZerolog()}

	media := NewMedia(bot, nil, nil, nil, "")
	assert.NotNil(t, media)
	assert.Contains(t, media.downloadDir, "kurir-media")

	media = NewMedia(bot, nil, nil, nil, "/tmp/custom")
	assert.Equal(t, "/tmp/custom", media.downloadDir)
}

func TestHandleMediaIgnoresUnknownKinds(t *testing.T) {
	log := testLog(t)
	bot := &Bot{logger: log.GetZerolog()}
	media := NewMedia(bot, nil, nil, nil, "")

	assert.NoError(t, media.HandleMedia(tgbotapi.Update{}))
	assert.NoError(t, media.HandleMedia(tgbotapi.Update{
		Message: &tgbotapi.Message{
			Chat:     &tgbotapi.Chat{ID: 1},
			Document: &tgbotapi.Document{FileID: "doc"},
		},
	}))
}

func TestSanitizeFileID(t *testing.T) {
	assert.Equal(t, "abcDEF123", sanitizeFileID("abc-DEF_123"))

	long := strings.Repeat("a", 40)
	assert.Len(t, sanitizeFileID(long), 24)
}
