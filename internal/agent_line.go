package internal

import (
	"encoding/json"
	"fmt"
)

// LineKind classifies one line of agent stdout
type LineKind int

const (
	LineIgnored LineKind = iota
	LineSystemInit
	LineAssistant
)

// Block types emitted by the agent
const (
	BlockText    = "text"
	BlockToolUse = "tool_use"
)

// ContentBlock is one unit of an assistant message. Input stays raw so it
// can be rendered back to JSON text without reordering keys.
type ContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// AgentLine is a parsed chat-output line
type AgentLine struct {
	Kind      LineKind
	SessionID string // LineSystemInit
	MessageID string // LineAssistant, optional
	Blocks    []ContentBlock
}

type rawAgentLine struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Message   *struct {
		ID      string          `json:"id"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// ParseAgentLine parses the JSON carried in a chat-output envelope.
// Invalid JSON is an error; valid JSON of an unknown shape is LineIgnored.
func ParseAgentLine(line string) (*AgentLine, error) {
	var raw rawAgentLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, &ProtocolError{EnvelopeType: EnvelopeChatOutput, Reason: "line is not a JSON object", Err: err}
	}

	switch raw.Type {
	case "system":
		if raw.Subtype != "init" || raw.SessionID == "" {
			return &AgentLine{Kind: LineIgnored}, nil
		}
		return &AgentLine{Kind: LineSystemInit, SessionID: raw.SessionID}, nil

	case "assistant":
		if raw.Message == nil || !isArray(raw.Message.Content) {
			return &AgentLine{Kind: LineIgnored}, nil
		}
		blocks, err := parseBlocks(raw.Message.Content)
		if err != nil {
			return nil, &ProtocolError{EnvelopeType: EnvelopeChatOutput, Reason: "invalid assistant content", Err: err}
		}
		return &AgentLine{Kind: LineAssistant, MessageID: raw.Message.ID, Blocks: blocks}, nil
	}

	return &AgentLine{Kind: LineIgnored}, nil
}

// parseBlocks decodes content blocks one at a time so a block of an unknown
// type still occupies its index.
func parseBlocks(raw json.RawMessage) ([]ContentBlock, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	blocks := make([]ContentBlock, len(items))
	for i, item := range items {
		if !isObject(item) {
			continue
		}
		var b ContentBlock
		if err := json.Unmarshal(item, &b); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		blocks[i] = b
	}
	return blocks, nil
}
