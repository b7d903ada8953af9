package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/harun/kurir/pkg/dispatch"
	"github.com/harun/kurir/pkg/transcribe"
)

const (
	// MaxMediaSize caps downloads from Telegram
	MaxMediaSize = 20 * 1024 * 1024
)

// Media turns voice notes and photos into dispatchable prompts
type Media struct {
	bot         *Bot
	dispatcher  *dispatch.Dispatcher
	notifier    *Notifier
	transcriber transcribe.Transcriber
	logger      zerolog.Logger
	downloadDir string
}

// NewMedia creates a new media handler. transcriber may be nil, voice
// notes are then rejected with a hint.
func NewMedia(bot *Bot, dispatcher *dispatch.Dispatcher, notifier *Notifier, transcriber transcribe.Transcriber, downloadDir string) *Media {
	if downloadDir == "" {
		downloadDir = filepath.Join(os.TempDir(), "kurir-media")
	}
	return &Media{
		bot:         bot,
		dispatcher:  dispatcher,
		notifier:    notifier,
		transcriber: transcriber,
		logger:      bot.logger.With().Str("module", "media").Logger(),
		downloadDir: downloadDir,
	}
}

// HandleMedia processes media messages
func (m *Media) HandleMedia(update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil {
		return nil
	}

	switch {
	case msg.Voice != nil:
		return m.handleVoice(msg)
	case len(msg.Photo) > 0:
		return m.handlePhoto(msg)
	}

	return nil
}

// handleVoice transcribes a voice note and dispatches the text as a prompt
func (m *Media) handleVoice(msg *tgbotapi.Message) error {
	target := TargetFor(msg)

	if m.transcriber == nil {
		return m.reply(target, "🎤 Voice transcription is not configured.")
	}

	path, err := m.download(msg.Voice.FileID, "voice", ".oga")
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to download voice note")
		return m.reply(target, "Failed to download the voice note.")
	}
	defer os.Remove(path)

	text, err := m.transcriber.Transcribe(context.Background(), path)
	if err != nil {
		m.logger.Error().Err(err).Msg("Transcription failed")
		return m.reply(target, "Could not transcribe the voice note.")
	}

	m.logger.Info().
		Int("chars", len(text)).
		Msg("Voice note transcribed")

	if err := m.reply(target, fmt.Sprintf("🎤 _%s_", text)); err != nil {
		return err
	}

	m.dispatcher.HandleMessage(context.Background(), dispatch.Inbound{
		Target: target,
		Text:   text,
	})
	return nil
}

// handlePhoto saves the largest photo size locally and dispatches a prompt
// pointing the assistant at the file
func (m *Media) handlePhoto(msg *tgbotapi.Message) error {
	target := TargetFor(msg)

	photo := msg.Photo[len(msg.Photo)-1]
	path, err := m.download(photo.FileID, "photo", ".jpg")
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to download photo")
		return m.reply(target, "Failed to download the photo.")
	}

	caption := strings.TrimSpace(msg.Caption)
	if caption == "" {
		caption = "Look at this image and describe what you see."
	}

	prompt := fmt.Sprintf("%s\n\nThe image is saved at %s", caption, path)

	m.dispatcher.HandleMessage(context.Background(), dispatch.Inbound{
		Target: target,
		Text:   prompt,
	})
	return nil
}

// download fetches a file from Telegram into the download directory
func (m *Media) download(fileID, kind, ext string) (string, error) {
	file, err := m.bot.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file info: %w", err)
	}

	if file.FileSize > MaxMediaSize {
		return "", fmt.Errorf("file size %d exceeds maximum %d", file.FileSize, MaxMediaSize)
	}

	url := file.Link(m.bot.api.Token)

	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(m.downloadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	destPath := filepath.Join(m.downloadDir, fmt.Sprintf("%s-%s%s", kind, sanitizeFileID(fileID), ext))
	out, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	m.logger.Debug().
		Str("file_id", fileID).
		Str("path", destPath).
		Int64("size", written).
		Msg("File downloaded")

	return destPath, nil
}

func (m *Media) reply(target dispatch.ChatTarget, text string) error {
	_, err := m.notifier.SendText(target, text)
	return err
}

// sanitizeFileID keeps file ids filesystem safe
func sanitizeFileID(fileID string) string {
	var b strings.Builder
	for _, r := range fileID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 24 {
		s = s[len(s)-24:]
	}
	return s
}
