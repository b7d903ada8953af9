package topic

import (
	"regexp"
	"strings"
	"time"
)

// MaxTopicNameLength is the longest topic name the chat transport accepts.
const MaxTopicNameLength = 128

var titleHintPattern = regexp.MustCompile(`(?s)<!--\s*title:\s*(.*?)\s*-->`)

// ExtractTitleHint pulls an embedded title hint out of an answer.
// It returns the answer with the hint comment removed, plus the hint
// itself ("" when the answer carries none).
func ExtractTitleHint(answer string) (string, string) {
	match := titleHintPattern.FindStringSubmatch(answer)
	if match == nil {
		return answer, ""
	}

	clean := titleHintPattern.ReplaceAllString(answer, "")
	clean = strings.TrimSpace(clean)

	hint := strings.TrimSpace(match[1])
	hint = strings.Join(strings.Fields(hint), " ")

	return clean, hint
}

// Name builds a topic name of the form "[label] DD/MM - title",
// truncated to MaxTopicNameLength runes.
func Name(label string, at time.Time, title string) string {
	name := "[" + label + "] " + at.Format("02/01")
	if title != "" {
		name += " - " + title
	}
	return truncateRunes(name, MaxTopicNameLength)
}

// Provisional builds the placeholder topic name used while the first
// turn of a session is still running.
func Provisional(label string, at time.Time) string {
	return Name(label, at, "")
}

// FallbackTitle derives a short title from free text when no hint is
// embedded and no summarizer is available.
func FallbackTitle(text string, maxWords int) string {
	if maxWords <= 0 {
		maxWords = 6
	}

	words := strings.Fields(text)
	if len(words) > maxWords {
		words = words[:maxWords]
	}

	title := strings.Join(words, " ")
	return truncateRunes(title, 48)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
