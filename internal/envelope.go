package internal

import (
	"bytes"
	"encoding/json"
)

// Envelope types understood by the engine
const (
	EnvelopeChatOutput           = "chat-output"
	EnvelopeChatComplete         = "chat-complete"
	EnvelopeChatPatch            = "chat-patch"
	EnvelopeClarificationRequest = "clarification-request"
	EnvelopeQuestSessionLinked   = "quest-session-linked"
	EnvelopeChatHistoryComplete  = "chat-history-complete"
)

// Outbound message types
const (
	MessageReplayHistory = "replay-history"
)

// ReplayPrefix prefixes the synthetic process handle used for history replay
const ReplayPrefix = "replay-"

// Envelope is the transport frame: { type, payload, timestamp }
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// ReplayHistoryMessage asks the server to stream a past session back
type ReplayHistoryMessage struct {
	Type          string `json:"type"`
	SessionID     string `json:"sessionId"`
	GuildID       string `json:"guildId"`
	ChatProcessID string `json:"chatProcessId"`
}

// ReplayHandle returns the synthetic process handle for a session replay
func ReplayHandle(sessionID string) string {
	return ReplayPrefix + sessionID
}

// Inbound is the decoded, typed form of an envelope. Exactly one of the
// payload pointers is set, matching Type.
type Inbound struct {
	Type      string
	Timestamp string

	ChatOutput           *ChatOutputPayload
	ChatComplete         *ChatCompletePayload
	ChatPatch            *ChatPatchPayload
	ClarificationRequest *ClarificationRequestPayload
	QuestSessionLinked   *QuestSessionLinkedPayload
	ChatHistoryComplete  *ChatHistoryCompletePayload
}

// ChatOutputPayload carries one line of agent stdout
type ChatOutputPayload struct {
	ChatProcessID string
	Line          string
}

// ChatCompletePayload marks the end of a live turn
type ChatCompletePayload struct {
	ChatProcessID string
	SessionID     string
}

// ChatPatchPayload attaches a sub-agent to a tool_use entry
type ChatPatchPayload struct {
	ToolUseID string
	AgentID   string
}

// ClarificationRequestPayload carries a validated question set
type ClarificationRequestPayload struct {
	ChatProcessID string
	Questions     []ClarificationQuestion
}

// QuestSessionLinkedPayload links the live turn to a quest
type QuestSessionLinkedPayload struct {
	ChatProcessID string
	QuestID       string
}

// ChatHistoryCompletePayload ends a replay
type ChatHistoryCompletePayload struct {
	ChatProcessID string
}

// ParseEnvelope validates the frame shape and decodes the payload for its
// type. Any failure is returned as a *ProtocolError; callers drop the frame.
func ParseEnvelope(data []byte) (*Inbound, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ProtocolError{Reason: "envelope is not a JSON object", Err: err}
	}

	var env Envelope
	if !decodeString(raw["type"], &env.Type) {
		return nil, &ProtocolError{Reason: "envelope type is not a string"}
	}
	if !decodeString(raw["timestamp"], &env.Timestamp) {
		return nil, &ProtocolError{EnvelopeType: env.Type, Reason: "envelope timestamp is not a string"}
	}

	var payload map[string]json.RawMessage
	if !isObject(raw["payload"]) {
		return nil, &ProtocolError{EnvelopeType: env.Type, Reason: "payload is not an object"}
	}
	if err := json.Unmarshal(raw["payload"], &payload); err != nil {
		return nil, &ProtocolError{EnvelopeType: env.Type, Reason: "payload is not an object", Err: err}
	}

	in := &Inbound{Type: env.Type, Timestamp: env.Timestamp}
	p := payloadFields(payload)

	switch env.Type {
	case EnvelopeChatOutput:
		line, ok := p.str("line")
		if !ok {
			return nil, &ProtocolError{EnvelopeType: env.Type, Reason: "line is not a string"}
		}
		in.ChatOutput = &ChatOutputPayload{ChatProcessID: p.optStr("chatProcessId"), Line: line}

	case EnvelopeChatComplete:
		in.ChatComplete = &ChatCompletePayload{
			ChatProcessID: p.optStr("chatProcessId"),
			SessionID:     p.optStr("sessionId"),
		}

	case EnvelopeChatPatch:
		toolUseID := p.optStr("toolUseId")
		agentID := p.optStr("agentId")
		if toolUseID == "" || agentID == "" {
			return nil, &ProtocolError{EnvelopeType: env.Type, Reason: "toolUseId and agentId must be non-empty strings"}
		}
		in.ChatPatch = &ChatPatchPayload{ToolUseID: toolUseID, AgentID: agentID}

	case EnvelopeClarificationRequest:
		questions, err := parseQuestions(payload["questions"])
		if err != nil {
			return nil, &ProtocolError{EnvelopeType: env.Type, Reason: "invalid questions", Err: err}
		}
		in.ClarificationRequest = &ClarificationRequestPayload{
			ChatProcessID: p.optStr("chatProcessId"),
			Questions:     questions,
		}

	case EnvelopeQuestSessionLinked:
		questID := p.optStr("questId")
		if questID == "" {
			return nil, &ProtocolError{EnvelopeType: env.Type, Reason: "questId is not a non-empty string"}
		}
		in.QuestSessionLinked = &QuestSessionLinkedPayload{ChatProcessID: p.optStr("chatProcessId"), QuestID: questID}

	case EnvelopeChatHistoryComplete:
		in.ChatHistoryComplete = &ChatHistoryCompletePayload{ChatProcessID: p.optStr("chatProcessId")}

	default:
		return nil, &ProtocolError{EnvelopeType: env.Type, Reason: "unrecognized envelope type"}
	}

	return in, nil
}

type payloadFields map[string]json.RawMessage

// str returns the field when it is present and a JSON string
func (p payloadFields) str(key string) (string, bool) {
	var s string
	if !decodeString(p[key], &s) {
		return "", false
	}
	return s, true
}

// optStr returns the field when it is a JSON string and "" otherwise
func (p payloadFields) optStr(key string) string {
	s, _ := p.str(key)
	return s
}

func decodeString(raw json.RawMessage, dst *string) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isBool(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return string(raw) == "true" || string(raw) == "false"
}

// parseQuestions checks the ClarificationQuestion[] shape field by field so a
// missing or mistyped field rejects the whole set instead of zero-filling it.
func parseQuestions(raw json.RawMessage) ([]ClarificationQuestion, error) {
	if !isArray(raw) {
		return nil, &ProtocolError{Reason: "questions is not an array"}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &ProtocolError{Reason: "questions is empty"}
	}

	questions := make([]ClarificationQuestion, 0, len(items))
	for _, item := range items {
		if !isObject(item) {
			return nil, &ProtocolError{Reason: "question is not an object"}
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			return nil, err
		}
		f := payloadFields(fields)

		var q ClarificationQuestion
		var ok bool
		if q.Question, ok = f.str("question"); !ok {
			return nil, &ProtocolError{Reason: "question.question is not a string"}
		}
		if q.Header, ok = f.str("header"); !ok {
			return nil, &ProtocolError{Reason: "question.header is not a string"}
		}
		if !isBool(fields["multiSelect"]) {
			return nil, &ProtocolError{Reason: "question.multiSelect is not a boolean"}
		}
		_ = json.Unmarshal(fields["multiSelect"], &q.MultiSelect)

		if !isArray(fields["options"]) {
			return nil, &ProtocolError{Reason: "question.options is not an array"}
		}
		var opts []json.RawMessage
		if err := json.Unmarshal(fields["options"], &opts); err != nil {
			return nil, err
		}
		q.Options = make([]ClarificationOption, 0, len(opts))
		for _, o := range opts {
			if !isObject(o) {
				return nil, &ProtocolError{Reason: "option is not an object"}
			}
			var of map[string]json.RawMessage
			if err := json.Unmarshal(o, &of); err != nil {
				return nil, err
			}
			var opt ClarificationOption
			if opt.Label, ok = payloadFields(of).str("label"); !ok {
				return nil, &ProtocolError{Reason: "option.label is not a string"}
			}
			if opt.Description, ok = payloadFields(of).str("description"); !ok {
				return nil, &ProtocolError{Reason: "option.description is not a string"}
			}
			q.Options = append(q.Options, opt)
		}

		questions = append(questions, q)
	}

	return questions, nil
}
