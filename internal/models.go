package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Role identifies who produced a transcript entry
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// EntryType discriminates assistant and system entries
type EntryType string

const (
	EntryTypeText    EntryType = "text"
	EntryTypeToolUse EntryType = "tool_use"
	EntryTypeError   EntryType = "error"
)

// ChatEntry is one transcript row. Role and Type select the variant:
// user (Type empty), assistant/text, assistant/tool_use, system/error.
type ChatEntry struct {
	Role      Role      `json:"role" yaml:"role"`
	Type      EntryType `json:"type,omitempty" yaml:"type,omitempty"`
	Content   string    `json:"content,omitempty" yaml:"content,omitempty"`
	ToolUseID string    `json:"toolUseId,omitempty" yaml:"tool_use_id,omitempty"`
	ToolName  string    `json:"toolName,omitempty" yaml:"tool_name,omitempty"`
	ToolInput string    `json:"toolInput,omitempty" yaml:"tool_input,omitempty"`
	AgentID   string    `json:"agentId,omitempty" yaml:"agent_id,omitempty"`
}

// NewUserEntry creates a user entry
func NewUserEntry(content string) ChatEntry {
	return ChatEntry{Role: RoleUser, Content: content}
}

// NewAssistantTextEntry creates an assistant text entry
func NewAssistantTextEntry(content string) ChatEntry {
	return ChatEntry{Role: RoleAssistant, Type: EntryTypeText, Content: content}
}

// NewToolUseEntry creates an assistant tool_use entry. input is kept as JSON text.
func NewToolUseEntry(id, name, input string) ChatEntry {
	return ChatEntry{
		Role:      RoleAssistant,
		Type:      EntryTypeToolUse,
		ToolUseID: id,
		ToolName:  name,
		ToolInput: input,
	}
}

// NewSystemErrorEntry creates a system error entry
func NewSystemErrorEntry(content string) ChatEntry {
	return ChatEntry{Role: RoleSystem, Type: EntryTypeError, Content: content}
}

// IsAssistantText reports whether the entry is an assistant text block
func (e ChatEntry) IsAssistantText() bool {
	return e.Role == RoleAssistant && e.Type == EntryTypeText
}

// IsToolUse reports whether the entry is an assistant tool_use block
func (e ChatEntry) IsToolUse() bool {
	return e.Role == RoleAssistant && e.Type == EntryTypeToolUse
}

// Validate checks that the entry is one of the four known variants
func (e ChatEntry) Validate() error {
	switch {
	case e.Role == RoleUser && e.Type == "":
		return nil
	case e.IsAssistantText():
		return nil
	case e.IsToolUse():
		if e.ToolUseID == "" {
			return fmt.Errorf("tool_use entry without toolUseId")
		}
		return nil
	case e.Role == RoleSystem && e.Type == EntryTypeError:
		return nil
	default:
		return fmt.Errorf("unknown entry variant %s/%s", e.Role, e.Type)
	}
}

// ClarificationOption is one selectable answer
type ClarificationOption struct {
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description" yaml:"description"`
}

// ClarificationQuestion is a question the agent asks mid-turn
type ClarificationQuestion struct {
	Question    string                `json:"question" yaml:"question"`
	Header      string                `json:"header" yaml:"header"`
	Options     []ClarificationOption `json:"options" yaml:"options"`
	MultiSelect bool                  `json:"multiSelect" yaml:"multi_select"`
}

// PendingClarification holds an unanswered question set
type PendingClarification struct {
	Questions []ClarificationQuestion `json:"questions" yaml:"questions"`
}

// Target addresses the conversation surface a chat belongs to.
// At least one of GuildID or QuestID must be set for a chat to be sent.
type Target struct {
	GuildID string `json:"guildId,omitempty" yaml:"guild_id,omitempty"`
	QuestID string `json:"questId,omitempty" yaml:"quest_id,omitempty"`
}

// Addressable reports whether the target can receive chat messages
func (t Target) Addressable() bool {
	return t.GuildID != "" || t.QuestID != ""
}

func (t Target) String() string {
	switch {
	case t.QuestID != "":
		return "quest/" + t.QuestID
	case t.GuildID != "":
		return "guild/" + t.GuildID
	default:
		return "none"
	}
}

// Snapshot is a copy of the engine's observable state
type Snapshot struct {
	Entries              []ChatEntry
	IsStreaming          bool
	CurrentSessionID     string
	LinkedQuestID        string
	ChatProcessID        string
	PendingClarification *PendingClarification
}

// marshalToolInput renders a tool_use input as compact JSON text, keeping
// the key order the agent sent. A missing input renders as "{}".
func marshalToolInput(input json.RawMessage) string {
	if len(input) == 0 || string(input) == "null" {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, input); err != nil {
		return string(input)
	}
	return buf.String()
}
