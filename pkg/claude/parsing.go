package claude

import (
	"encoding/json"
	"fmt"
	"strings"
)

// streamEvent is one newline-delimited JSON object from the CLI's
// stream-json output.
type streamEvent struct {
	Type              string             `json:"type"`
	Subtype           string             `json:"subtype"`
	SessionID         string             `json:"session_id"`
	IsError           bool               `json:"is_error"`
	Result            string             `json:"result"`
	Message           *streamMessage     `json:"message"`
	PermissionDenials []permissionDenial `json:"permission_denials"`
}

type streamMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Name string `json:"name"`
}

type permissionDenial struct {
	ToolName  string          `json:"tool_name"`
	ToolInput json.RawMessage `json:"tool_input"`
	ToolUseID string          `json:"tool_use_id"`
}

func parseStreamLine(line []byte) (*streamEvent, error) {
	var ev streamEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse stream event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("stream event has no type")
	}
	return &ev, nil
}

// assistantText joins the text blocks of an assistant message.
func (e *streamEvent) assistantText() string {
	if e.Message == nil {
		return ""
	}

	var b strings.Builder
	for _, block := range e.Message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// denialToRequest maps a reported permission denial to a request the
// operator can act on.
func denialToRequest(d permissionDenial) PermissionRequest {
	input := decodeToolInput(d.ToolInput)

	req := PermissionRequest{
		ToolName: d.ToolName,
		Action:   classifyTool(d.ToolName),
		Target:   toolTarget(d.ToolName, input),
		Prompt:   describeDenial(d.ToolName, input),
	}
	req.AllowRule = allowRule(d.ToolName, input)

	return req
}

func decodeToolInput(raw json.RawMessage) map[string]any {
	input := map[string]any{}
	if len(raw) > 0 {
		// Best effort; an undecodable input just yields an empty target.
		_ = json.Unmarshal(raw, &input)
	}
	return input
}

func classifyTool(name string) ActionKind {
	switch name {
	case "Write":
		return ActionWrite
	case "Edit", "MultiEdit", "NotebookEdit":
		return ActionEdit
	case "Read", "Glob", "Grep", "WebFetch", "WebSearch":
		return ActionRead
	default:
		return ActionExecute
	}
}

func toolTarget(name string, input map[string]any) string {
	for _, key := range []string{"file_path", "path", "command", "url", "pattern", "notebook_path"} {
		if v, ok := input[key].(string); ok && v != "" {
			return v
		}
	}
	return name
}

func describeDenial(name string, input map[string]any) string {
	target := toolTarget(name, input)
	if target == name {
		return name
	}
	return fmt.Sprintf("%s: %s", name, target)
}

// allowRule builds the allowed-tools rule that grants exactly the denied
// action on the retry invocation. Shell commands are scoped to their
// first word; every other tool is granted by name.
func allowRule(name string, input map[string]any) string {
	if name != "Bash" {
		return name
	}

	command, _ := input["command"].(string)
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return name
	}

	word := fields[0]
	if strings.ContainsAny(word, "()[]{}<>|&;\"'`,") {
		return name
	}
	return fmt.Sprintf("Bash(%s:*)", word)
}
