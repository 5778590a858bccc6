package internal

// SessionContext is the engine state that lives beside the transcript:
// session identity, quest linkage and an unanswered clarification.
type SessionContext struct {
	CurrentSessionID     string
	LinkedQuestID        string
	PendingClarification *PendingClarification
}

// SetSessionID records the session id and reports whether it changed
func (c *SessionContext) SetSessionID(id string) bool {
	if id == "" || id == c.CurrentSessionID {
		return false
	}
	c.CurrentSessionID = id
	return true
}

// LinkQuest records the quest id and reports whether it changed
func (c *SessionContext) LinkQuest(questID string) bool {
	if questID == c.LinkedQuestID {
		return false
	}
	c.LinkedQuestID = questID
	return true
}

// SetClarification replaces any pending clarification
func (c *SessionContext) SetClarification(questions []ClarificationQuestion) {
	c.PendingClarification = &PendingClarification{Questions: questions}
}

// ClearClarification drops the pending clarification and reports whether one existed
func (c *SessionContext) ClearClarification() bool {
	had := c.PendingClarification != nil
	c.PendingClarification = nil
	return had
}

// clone returns a deep copy of a pending clarification
func (p *PendingClarification) clone() *PendingClarification {
	if p == nil {
		return nil
	}
	out := &PendingClarification{Questions: make([]ClarificationQuestion, len(p.Questions))}
	for i, q := range p.Questions {
		q.Options = append([]ClarificationOption(nil), q.Options...)
		out.Questions[i] = q
	}
	return out
}
