package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iksnae/questchat/internal"
)

// JSONLExporter exports sessions in JSONL format (one entry per line)
type JSONLExporter struct{}

// Export exports a session to JSONL format
func (e *JSONLExporter) Export(session *internal.Session, w io.Writer) error {
	if session == nil {
		return ErrNilSession
	}
	enc := json.NewEncoder(w)

	for i, entry := range session.Entries {
		obj := map[string]interface{}{
			"session_id": session.ID,
			"seq":        i,
			"role":       entry.Role,
		}
		if entry.Type != "" {
			obj["type"] = entry.Type
		}
		if entry.Content != "" {
			obj["content"] = entry.Content
		}

		// tool_use entries carry their call instead of content
		if entry.IsToolUse() {
			obj["tool_use_id"] = entry.ToolUseID
			obj["tool_name"] = entry.ToolName
			obj["tool_input"] = toolInputValue(entry.ToolInput)
			if entry.AgentID != "" {
				obj["agent_id"] = entry.AgentID
			}
		}

		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("failed to encode entry %d: %w", i, err)
		}
	}

	return nil
}

// toolInputValue embeds valid JSON input as-is and anything else as a string
func toolInputValue(input string) interface{} {
	if json.Valid([]byte(input)) {
		return json.RawMessage(input)
	}
	return input
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
