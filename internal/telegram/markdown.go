package telegram

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// MaxMessageLength is the chunk size for outgoing messages, kept under
// Telegram's 4096 limit to leave room for HTML entities.
const MaxMessageLength = 4000

var (
	boldRe       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe     = regexp.MustCompile(`(^|[\s(])\*([^*\n]+?)\*`)
	inlineCodeRe = regexp.MustCompile("`([^`\n]+)`")
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s+(.*)$`)
)

// ToHTML converts common markdown constructs to Telegram HTML.
// Fenced code blocks are preserved verbatim inside <pre> tags.
func ToHTML(text string) string {
	var out strings.Builder

	segments := splitFences(text)
	for _, seg := range segments {
		if seg.fenced {
			out.WriteString("<pre>")
			out.WriteString(html.EscapeString(strings.Trim(seg.text, "\n")))
			out.WriteString("</pre>")
			continue
		}
		out.WriteString(renderInline(seg.text))
	}

	return strings.TrimSpace(out.String())
}

type segment struct {
	text   string
	fenced bool
}

// splitFences splits text into alternating plain and fenced-code segments
func splitFences(text string) []segment {
	var segments []segment
	lines := strings.Split(text, "\n")

	var buf []string
	fenced := false
	flush := func() {
		if len(buf) > 0 {
			segments = append(segments, segment{text: strings.Join(buf, "\n"), fenced: fenced})
			buf = nil
		}
	}

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			flush()
			fenced = !fenced
			continue
		}
		buf = append(buf, line)
	}
	// unterminated fence renders as code anyway
	flush()

	return segments
}

// renderInline escapes HTML then applies inline markdown replacements
func renderInline(text string) string {
	// protect inline code spans before entity escaping
	type span struct{ placeholder, rendered string }
	var spans []span
	idx := 0
	text = inlineCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		inner := inlineCodeRe.FindStringSubmatch(m)[1]
		ph := fmt.Sprintf("\x00code%d\x00", idx)
		idx++
		spans = append(spans, span{ph, "<code>" + html.EscapeString(inner) + "</code>"})
		return ph
	})

	escaped := html.EscapeString(text)

	escaped = headingRe.ReplaceAllString(escaped, "<b>$1</b>")
	escaped = boldRe.ReplaceAllString(escaped, "<b>$1</b>")
	escaped = italicRe.ReplaceAllString(escaped, "$1<i>$2</i>")
	escaped = linkRe.ReplaceAllString(escaped, `<a href="$2">$1</a>`)

	for _, s := range spans {
		escaped = strings.Replace(escaped, s.placeholder, s.rendered, 1)
	}

	return escaped
}

// SplitMessage splits text into chunks of at most limit runes,
// preferring paragraph then line boundaries.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}

	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		window := string(runes[:limit])

		if i := strings.LastIndex(window, "\n\n"); i > limit/2 {
			cut = len([]rune(window[:i]))
		} else if i := strings.LastIndex(window, "\n"); i > limit/2 {
			cut = len([]rune(window[:i]))
		} else if i := strings.LastIndex(window, " "); i > limit/2 {
			cut = len([]rune(window[:i]))
		}

		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n "))
		runes = []rune(strings.TrimLeft(string(runes[cut:]), "\n "))
	}

	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}

	return chunks
}

var optionRe = regexp.MustCompile(`(?m)^\s*(\d{1,2})[.)]\s+(.+)$`)

// ExtractOptions returns numbered options found in an answer, used to
// offer quick replies. Returns nil unless there are at least two
// consecutively numbered options starting at 1.
func ExtractOptions(text string) []string {
	matches := optionRe.FindAllStringSubmatch(text, -1)
	if len(matches) < 2 {
		return nil
	}

	var options []string
	for i, m := range matches {
		if m[1] != fmt.Sprintf("%d", i+1) {
			break
		}
		options = append(options, strings.TrimSpace(m[2]))
	}

	if len(options) < 2 {
		return nil
	}
	if len(options) > 10 {
		options = options[:10]
	}

	return options
}
