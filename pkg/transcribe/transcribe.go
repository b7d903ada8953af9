package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Transcriber converts an audio file into text
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Config holds settings for the whisper.cpp transcriber
type Config struct {
	WhisperPath string // whisper-cli binary
	ModelPath   string // ggml model file
	FFmpegPath  string // ffmpeg binary for audio conversion
}

// WhisperTranscriber runs whisper.cpp on locally downloaded voice notes
type WhisperTranscriber struct {
	cfg    Config
	logger zerolog.Logger
}

// NewWhisperTranscriber creates a transcriber backed by whisper.cpp
func NewWhisperTranscriber(cfg Config, logger zerolog.Logger) (*WhisperTranscriber, error) {
	if cfg.WhisperPath == "" {
		cfg.WhisperPath = "whisper-cli"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("whisper model path is required")
	}

	return &WhisperTranscriber{
		cfg:    cfg,
		logger: logger.With().Str("component", "transcribe").Logger(),
	}, nil
}

// Transcribe converts the audio to 16kHz wav and runs whisper.cpp on it
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	wavPath, err := t.convertToWav(ctx, audioPath)
	if err != nil {
		return "", err
	}
	defer os.Remove(wavPath)

	text, err := t.runWhisper(ctx, wavPath)
	if err != nil {
		return "", err
	}

	t.logger.Debug().
		Str("audio", audioPath).
		Int("chars", len(text)).
		Msg("Transcription complete")

	return text, nil
}

// convertToWav resamples the input to the 16kHz mono wav whisper.cpp expects
func (t *WhisperTranscriber) convertToWav(ctx context.Context, audioPath string) (string, error) {
	// unique per call so concurrent voice notes never share a file
	tmp, err := os.CreateTemp("", "kurir-voice-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	wavPath := tmp.Name()
	tmp.Close()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.cfg.FFmpegPath,
		"-y",
		"-i", audioPath,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		wavPath,
	)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(wavPath)
		return "", fmt.Errorf("failed to convert audio: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return wavPath, nil
}

// runWhisper invokes whisper-cli and captures the transcript from stdout
func (t *WhisperTranscriber) runWhisper(ctx context.Context, wavPath string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.cfg.WhisperPath,
		"-m", t.cfg.ModelPath,
		"-f", wavPath,
		"--no-timestamps",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to run whisper: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	text := cleanTranscript(stdout.String())
	if text == "" {
		return "", fmt.Errorf("transcription produced no text")
	}

	return text, nil
}

// cleanTranscript collapses whisper output lines into a single string
func cleanTranscript(raw string) string {
	var parts []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}
