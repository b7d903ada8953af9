package telegram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text",
			input:    "hello world",
			expected: "hello world",
		},
		{
			name:     "escapes html",
			input:    "a < b && c > d",
			expected: "a &lt; b &amp;&amp; c &gt; d",
		},
		{
			name:     "bold",
			input:    "this is **important** stuff",
			expected: "this is <b>important</b> stuff",
		},
		{
			name:     "italic",
			input:    "this is *emphasis* here",
			expected: "this is <i>emphasis</i> here",
		},
		{
			name:     "inline code",
			input:    "run `go test ./...` now",
			expected: "run <code>go test ./...</code> now",
		},
		{
			name:     "inline code with html",
			input:    "use `<nil>` check",
			expected: "use <code>&lt;nil&gt;</code> check",
		},
		{
			name:     "link",
			input:    "see [docs](https://example.com/a)",
			expected: `see <a href="https://example.com/a">docs</a>`,
		},
		{
			name:     "heading",
			input:    "# Title",
			expected: "<b>Title</b>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToHTML(tt.input))
		})
	}
}

func TestToHTMLCodeBlock(t *testing.T) {
	input := "before\n```go\nfunc main() {\n\tfmt.Println(\"<hi>\")\n}\n```\nafter"
	out := ToHTML(input)

	assert.Contains(t, out, "<pre>")
	assert.Contains(t, out, "&lt;hi&gt;")
	assert.Contains(t, out, "</pre>")
	assert.Contains(t, out, "before")
	assert.Contains(t, out, "after")
	// markdown inside the fence stays literal
	assert.NotContains(t, out, "<b>")
}

func TestToHTMLUnterminatedFence(t *testing.T) {
	out := ToHTML("text\n```\ncode without end")
	assert.Contains(t, out, "<pre>code without end</pre>")
}

func TestSplitMessage(t *testing.T) {
	t.Run("short message single chunk", func(t *testing.T) {
		chunks := SplitMessage("hello", 100)
		assert.Equal(t, []string{"hello"}, chunks)
	})

	t.Run("splits on paragraph boundary", func(t *testing.T) {
		text := strings.Repeat("a", 80) + "\n\n" + strings.Repeat("b", 80)
		chunks := SplitMessage(text, 100)
		assert.Len(t, chunks, 2)
		assert.Equal(t, strings.Repeat("a", 80), chunks[0])
		assert.Equal(t, strings.Repeat("b", 80), chunks[1])
	})

	t.Run("hard split without boundaries", func(t *testing.T) {
		text := strings.Repeat("x", 250)
		chunks := SplitMessage(text, 100)
		assert.Len(t, chunks, 3)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), 100)
		}
		assert.Equal(t, text, strings.Join(chunks, ""))
	})

	t.Run("zero limit uses default", func(t *testing.T) {
		chunks := SplitMessage("hello", 0)
		assert.Equal(t, []string{"hello"}, chunks)
	})
}

func TestExtractOptions(t *testing.T) {
	t.Run("numbered list", func(t *testing.T) {
		text := "Pick one:\n1. Use Redis\n2. Use Postgres\n3. Keep it in memory"
		options := ExtractOptions(text)
		assert.Equal(t, []string{"Use Redis", "Use Postgres", "Keep it in memory"}, options)
	})

	t.Run("parenthesis style", func(t *testing.T) {
		text := "1) First\n2) Second"
		options := ExtractOptions(text)
		assert.Equal(t, []string{"First", "Second"}, options)
	})

	t.Run("single item is not an option list", func(t *testing.T) {
		assert.Nil(t, ExtractOptions("1. Only one thing"))
	})

	t.Run("non sequential numbering stops", func(t *testing.T) {
		text := "1. First\n3. Third"
		assert.Nil(t, ExtractOptions(text))
	})

	t.Run("no options", func(t *testing.T) {
		assert.Nil(t, ExtractOptions("plain answer"))
	})

	t.Run("caps at ten options", func(t *testing.T) {
		text := "1. a\n2. b\n3. c\n4. d\n5. e\n6. f\n7. g\n8. h\n9. i\n10. j\n11. k"
		options := ExtractOptions(text)
		assert.Len(t, options, 10)
	})
}
