package internal

// Transcript is the ordered list of chat entries. It only grows or has
// entries updated in place.
type Transcript []ChatEntry

// Reduction reports what a reducer step changed
type Reduction struct {
	Appended  []int // transcript indices added
	Updated   []int // transcript indices whose content changed
	SessionID string
}

// Changed reports whether the transcript was mutated
func (r Reduction) Changed() bool {
	return len(r.Appended) > 0 || len(r.Updated) > 0
}

// TranscriptReducer folds agent lines into a transcript
type TranscriptReducer struct{}

// NewTranscriptReducer creates a new TranscriptReducer
func NewTranscriptReducer() *TranscriptReducer {
	return &TranscriptReducer{}
}

// Reduce applies one parsed line for turn t and returns the next transcript.
// Each assistant line carries the full block list of its message, so text at
// an already rendered index replaces the earlier text rather than extending
// it. Non-text blocks are immutable once rendered. A line whose message id
// differs from the turn's previous one starts its blocks in fresh slots
// after those already rendered; lines without an id share slots from 0.
func (r *TranscriptReducer) Reduce(transcript Transcript, t *turn, line *AgentLine) (Transcript, Reduction) {
	var red Reduction
	if line == nil || t == nil {
		return transcript, red
	}

	switch line.Kind {
	case LineSystemInit:
		red.SessionID = line.SessionID
		return transcript, red
	case LineAssistant:
	default:
		return transcript, red
	}

	t.beginMessage(line.MessageID)

	for i, block := range line.Blocks {
		slot := t.base + i
		if slot < len(t.slots) {
			if block.Type != BlockText {
				continue
			}
			idx := t.slots[slot]
			if idx < 0 || idx >= len(transcript) || !transcript[idx].IsAssistantText() {
				continue
			}
			if transcript[idx].Content != block.Text {
				transcript[idx].Content = block.Text
				red.Updated = append(red.Updated, idx)
			}
			continue
		}

		entry, ok := entryForBlock(block)
		if !ok {
			t.slots = append(t.slots, -1)
			continue
		}
		transcript = append(transcript, entry)
		idx := len(transcript) - 1
		t.slots = append(t.slots, idx)
		red.Appended = append(red.Appended, idx)
	}

	return transcript, red
}

// entryForBlock maps a content block to a new transcript entry
func entryForBlock(block ContentBlock) (ChatEntry, bool) {
	switch block.Type {
	case BlockText:
		return NewAssistantTextEntry(block.Text), true
	case BlockToolUse:
		return NewToolUseEntry(block.ID, block.Name, marshalToolInput(block.Input)), true
	default:
		return ChatEntry{}, false
	}
}

// PatchAgentID sets the agent id on the most recent tool_use entry whose
// toolUseId matches. It returns the patched index or -1.
func (r *TranscriptReducer) PatchAgentID(transcript Transcript, toolUseID, agentID string) int {
	if toolUseID == "" || agentID == "" {
		return -1
	}
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].IsToolUse() && transcript[i].ToolUseID == toolUseID {
			transcript[i].AgentID = agentID
			return i
		}
	}
	return -1
}
