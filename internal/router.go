package internal

import "go.uber.org/zap"

// envelopeHandler applies one decoded envelope with the engine lock held
// and returns the events to emit once the lock is released.
type envelopeHandler func(e *Engine, in *Inbound) []Event

var envelopeHandlers = map[string]envelopeHandler{
	EnvelopeChatOutput:           (*Engine).handleChatOutput,
	EnvelopeChatComplete:         (*Engine).handleChatComplete,
	EnvelopeChatPatch:            (*Engine).handleChatPatch,
	EnvelopeClarificationRequest: (*Engine).handleClarificationRequest,
	EnvelopeQuestSessionLinked:   (*Engine).handleQuestSessionLinked,
	EnvelopeChatHistoryComplete:  (*Engine).handleChatHistoryComplete,
}

func (e *Engine) routeLocked(in *Inbound) []Event {
	h, ok := envelopeHandlers[in.Type]
	if !ok {
		return nil
	}
	return h(e, in)
}

func (e *Engine) dropped(in *Inbound, handle, reason string) []Event {
	e.log.Debug("envelope ignored",
		zap.String("type", in.Type),
		zap.String("chat_process_id", handle),
		zap.String("reason", reason))
	return nil
}

func (e *Engine) handleChatOutput(in *Inbound) []Event {
	p := in.ChatOutput
	t := e.correlator.turnFor(p.ChatProcessID)
	if t == nil {
		return e.dropped(in, p.ChatProcessID, "uncorrelated")
	}

	line, err := ParseAgentLine(p.Line)
	if err != nil {
		e.log.Debug("dropping agent line", zap.String("chat_process_id", p.ChatProcessID), zap.Error(err))
		return nil
	}

	var red Reduction
	e.transcript, red = e.reducer.Reduce(e.transcript, t, line)

	var evs []Event
	if red.SessionID != "" && e.session.SetSessionID(red.SessionID) {
		evs = append(evs, Event{Kind: EventSessionChanged, SessionID: red.SessionID})
	}
	for _, idx := range red.Appended {
		evs = append(evs, Event{Kind: EventEntryAppended, Index: idx, Entry: e.transcript[idx], ChatProcessID: p.ChatProcessID})
	}
	for _, idx := range red.Updated {
		evs = append(evs, Event{Kind: EventEntryUpdated, Index: idx, Entry: e.transcript[idx], ChatProcessID: p.ChatProcessID})
	}
	return evs
}

func (e *Engine) handleChatComplete(in *Inbound) []Event {
	p := in.ChatComplete
	if !e.correlator.MatchesLive(p.ChatProcessID) {
		return e.dropped(in, p.ChatProcessID, "not the live turn")
	}

	var evs []Event
	if e.streaming {
		e.streaming = false
		evs = append(evs, Event{Kind: EventStreamingChanged, IsStreaming: false})
	}
	if e.session.SetSessionID(p.SessionID) {
		evs = append(evs, Event{Kind: EventSessionChanged, SessionID: p.SessionID})
	}
	evs = append(evs, Event{Kind: EventChatComplete, ChatProcessID: p.ChatProcessID, SessionID: e.session.CurrentSessionID})
	return evs
}

func (e *Engine) handleChatPatch(in *Inbound) []Event {
	p := in.ChatPatch
	idx := e.reducer.PatchAgentID(e.transcript, p.ToolUseID, p.AgentID)
	if idx < 0 {
		return e.dropped(in, "", "no tool_use entry "+p.ToolUseID)
	}
	return []Event{{Kind: EventEntryUpdated, Index: idx, Entry: e.transcript[idx]}}
}

func (e *Engine) handleClarificationRequest(in *Inbound) []Event {
	p := in.ClarificationRequest
	if !e.correlator.MatchesLive(p.ChatProcessID) {
		return e.dropped(in, p.ChatProcessID, "not the live turn")
	}
	e.session.SetClarification(p.Questions)
	return []Event{{
		Kind:          EventClarificationRequested,
		ChatProcessID: p.ChatProcessID,
		Clarification: e.session.PendingClarification.clone(),
	}}
}

func (e *Engine) handleQuestSessionLinked(in *Inbound) []Event {
	p := in.QuestSessionLinked
	if !e.correlator.MatchesLive(p.ChatProcessID) {
		return e.dropped(in, p.ChatProcessID, "not the live turn")
	}
	if !e.session.LinkQuest(p.QuestID) {
		return nil
	}
	return []Event{{Kind: EventQuestLinked, QuestID: p.QuestID, ChatProcessID: p.ChatProcessID}}
}

func (e *Engine) handleChatHistoryComplete(in *Inbound) []Event {
	p := in.ChatHistoryComplete
	if !e.correlator.MatchesReplay(p.ChatProcessID) {
		return e.dropped(in, p.ChatProcessID, "not the replay turn")
	}
	e.correlator.ClearReplay()
	return []Event{{Kind: EventReplayComplete, ChatProcessID: p.ChatProcessID}}
}
