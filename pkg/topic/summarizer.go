package topic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

const summarizerSystemPrompt = "You name chat topics. Reply with a short title " +
	"of 3 to 6 words for the conversation excerpt you are given. Reply with " +
	"the title only, no quotes, no punctuation at the end."

// Summarizer produces a short topic title from a conversation excerpt.
type Summarizer interface {
	Summarize(ctx context.Context, excerpt string) (string, error)
}

// SummarizerConfig holds settings for the OpenAI-compatible summarizer.
type SummarizerConfig struct {
	BaseURL string        // e.g. a local Ollama endpoint, http://localhost:11434/v1
	APIKey  string        // ignored by Ollama but required by the client
	Model   string        // e.g. "llama3.2"
	Timeout time.Duration // per-request ceiling
}

// OpenAISummarizer titles topics through any OpenAI-compatible
// chat-completions endpoint.
type OpenAISummarizer struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewOpenAISummarizer creates a summarizer against the configured endpoint.
func NewOpenAISummarizer(cfg SummarizerConfig, logger zerolog.Logger) *OpenAISummarizer {
	opts := []option.RequestOption{}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "unused"
	}
	opts = append(opts, option.WithAPIKey(apiKey))

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &OpenAISummarizer{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger,
	}
}

// Summarize asks the endpoint for a short title.
func (s *OpenAISummarizer) Summarize(ctx context.Context, excerpt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarizerSystemPrompt),
			openai.UserMessage(excerpt),
		},
		MaxTokens: openai.Int(32),
	}

	response, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to summarize topic: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("summarizer returned no choices")
	}

	title := strings.TrimSpace(response.Choices[0].Message.Content)
	title = strings.Trim(title, `"'`)
	if title == "" {
		return "", fmt.Errorf("summarizer returned an empty title")
	}

	s.logger.Debug().Str("title", title).Msg("Topic title summarized")

	return title, nil
}
