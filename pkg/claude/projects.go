package claude

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ProjectsRoot returns the directory where the assistant CLI persists
// its per-project transcripts.
func ProjectsRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".claude", "projects"), nil
}

// ProjectDirName maps a working directory to the CLI's transcript
// directory name: every non-alphanumeric character becomes a dash.
func ProjectDirName(workdir string) string {
	var b strings.Builder
	for _, r := range workdir {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return b.String()
}

// Transcript describes one persisted conversation file.
type Transcript struct {
	// Path is the transcript file on disk.
	Path string

	// SessionID is the conversation id, taken from the file name.
	SessionID string

	// Modified is the file's last modification time.
	Modified time.Time

	// Preview is the first user message, truncated.
	Preview string
}

// ListTranscripts returns a working directory's transcripts, newest
// first, capped at limit when limit is positive. Sub-agent transcripts
// are skipped.
func ListTranscripts(root, workdir string, limit int) ([]Transcript, error) {
	dir := filepath.Join(root, ProjectDirName(workdir))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read project directory: %w", err)
	}

	var transcripts []Transcript
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") || strings.HasPrefix(name, "agent-") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		transcripts = append(transcripts, Transcript{
			Path:      filepath.Join(dir, name),
			SessionID: strings.TrimSuffix(name, ".jsonl"),
			Modified:  info.ModTime(),
		})
	}

	sort.Slice(transcripts, func(i, j int) bool {
		return transcripts[i].Modified.After(transcripts[j].Modified)
	})

	if limit > 0 && len(transcripts) > limit {
		transcripts = transcripts[:limit]
	}

	for i := range transcripts {
		transcripts[i].Preview = firstUserText(transcripts[i].Path, 80)
	}

	return transcripts, nil
}

// LatestTranscript returns the most recently modified transcript for a
// working directory.
func LatestTranscript(root, workdir string) (Transcript, error) {
	transcripts, err := ListTranscripts(root, workdir, 1)
	if err != nil {
		return Transcript{}, err
	}
	if len(transcripts) == 0 {
		return Transcript{}, fmt.Errorf("no transcripts for %s", workdir)
	}
	return transcripts[0], nil
}

// LastAssistantText extracts the final assistant message from a
// transcript, truncated to maxLen runes. Used for hook notifications
// that arrive without a summary.
func LastAssistantText(path string, maxLen int) (string, error) {
	lines, err := readTranscriptLines(path)
	if err != nil {
		return "", err
	}

	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].Type != "assistant" || lines[i].Message == nil {
			continue
		}
		if text := messageText(lines[i].Message.Content); text != "" {
			return truncate(text, maxLen), nil
		}
	}

	return "", fmt.Errorf("no assistant message in %s", filepath.Base(path))
}

type transcriptLine struct {
	Type    string             `json:"type"`
	Message *transcriptMessage `json:"message"`
}

type transcriptMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func readTranscriptLines(path string) ([]transcriptLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	var lines []transcriptLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLineSize)
	for scanner.Scan() {
		var line transcriptLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		lines = append(lines, line)
	}

	return lines, scanner.Err()
}

func firstUserText(path string, maxLen int) string {
	lines, err := readTranscriptLines(path)
	if err != nil {
		return ""
	}

	for _, line := range lines {
		if line.Type != "user" || line.Message == nil {
			continue
		}
		if text := messageText(line.Message.Content); text != "" {
			return truncate(text, maxLen)
		}
	}

	return ""
}

// messageText handles both content encodings the transcript uses: a
// plain string or a list of typed blocks.
func messageText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}

	var b strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
