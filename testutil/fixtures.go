package testutil

import (
	"encoding/json"
	"testing"
)

// Timestamp is the fixed envelope timestamp used by fixtures
const Timestamp = "2025-01-01T00:00:00.000Z"

// Envelope builds a transport frame with the given type and payload
func Envelope(t *testing.T, typ string, payload interface{}) []byte {
	t.Helper()
	return JSONMarshal(t, map[string]interface{}{
		"type":      typ,
		"payload":   payload,
		"timestamp": Timestamp,
	})
}

// ChatOutput builds a chat-output frame carrying one agent line
func ChatOutput(t *testing.T, chatProcessID, line string) []byte {
	t.Helper()
	return Envelope(t, "chat-output", map[string]interface{}{
		"chatProcessId": chatProcessID,
		"line":          line,
	})
}

// ChatComplete builds a chat-complete frame. An empty sessionID is omitted.
func ChatComplete(t *testing.T, chatProcessID, sessionID string) []byte {
	t.Helper()
	payload := map[string]interface{}{"chatProcessId": chatProcessID}
	if sessionID != "" {
		payload["sessionId"] = sessionID
	}
	return Envelope(t, "chat-complete", payload)
}

// ChatPatch builds a chat-patch frame
func ChatPatch(t *testing.T, toolUseID, agentID string) []byte {
	t.Helper()
	return Envelope(t, "chat-patch", map[string]interface{}{
		"toolUseId": toolUseID,
		"agentId":   agentID,
	})
}

// ClarificationRequest builds a clarification-request frame
func ClarificationRequest(t *testing.T, chatProcessID string, questions ...map[string]interface{}) []byte {
	t.Helper()
	if questions == nil {
		questions = []map[string]interface{}{}
	}
	return Envelope(t, "clarification-request", map[string]interface{}{
		"chatProcessId": chatProcessID,
		"questions":     questions,
	})
}

// Question builds one clarification question with label/description pairs
func Question(question, header string, multiSelect bool, options ...string) map[string]interface{} {
	opts := []map[string]interface{}{}
	for i := 0; i+1 < len(options); i += 2 {
		opts = append(opts, map[string]interface{}{"label": options[i], "description": options[i+1]})
	}
	return map[string]interface{}{
		"question":    question,
		"header":      header,
		"options":     opts,
		"multiSelect": multiSelect,
	}
}

// QuestSessionLinked builds a quest-session-linked frame
func QuestSessionLinked(t *testing.T, chatProcessID, questID string) []byte {
	t.Helper()
	return Envelope(t, "quest-session-linked", map[string]interface{}{
		"chatProcessId": chatProcessID,
		"questId":       questID,
	})
}

// ChatHistoryComplete builds a chat-history-complete frame
func ChatHistoryComplete(t *testing.T, chatProcessID string) []byte {
	t.Helper()
	return Envelope(t, "chat-history-complete", map[string]interface{}{
		"chatProcessId": chatProcessID,
	})
}

// SystemInitLine builds the agent's system/init line
func SystemInitLine(sessionID string) string {
	return mustJSON(map[string]interface{}{
		"type":       "system",
		"subtype":    "init",
		"session_id": sessionID,
	})
}

// AssistantLine builds an assistant line. An empty messageID is omitted.
func AssistantLine(messageID string, blocks ...map[string]interface{}) string {
	if blocks == nil {
		blocks = []map[string]interface{}{}
	}
	message := map[string]interface{}{"content": blocks}
	if messageID != "" {
		message["id"] = messageID
	}
	return mustJSON(map[string]interface{}{
		"type":    "assistant",
		"message": message,
	})
}

// TextBlock builds a text content block
func TextBlock(text string) map[string]interface{} {
	return map[string]interface{}{"type": "text", "text": text}
}

// ToolUseBlock builds a tool_use content block
func ToolUseBlock(id, name string, input interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "tool_use", "id": id, "name": name, "input": input}
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
