package internal

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/iksnae/questchat/internal/events"
	"go.uber.org/zap"
)

// Engine event kinds
const (
	EventEntryAppended          events.Kind = "entry-appended"
	EventEntryUpdated           events.Kind = "entry-updated"
	EventStreamingChanged       events.Kind = "streaming-changed"
	EventSessionChanged         events.Kind = "session-changed"
	EventQuestLinked            events.Kind = "quest-linked"
	EventClarificationRequested events.Kind = "clarification-requested"
	EventClarificationCleared   events.Kind = "clarification-cleared"
	EventReplayComplete         events.Kind = "replay-complete"
	EventChatComplete           events.Kind = "chat-complete"
)

// Event describes one engine state change. Fields not relevant to Kind are zero.
type Event struct {
	Kind          events.Kind
	Index         int
	Entry         ChatEntry
	IsStreaming   bool
	SessionID     string
	QuestID       string
	ChatProcessID string
	Clarification *PendingClarification
}

// SendRequest is the input to SendMessage. Emptiness is the caller's concern.
type SendRequest struct {
	Message string
}

// Options configures an Engine
type Options struct {
	Target    Target
	SessionID string // set to replay a historical session
	Transport Transport
	Starter   StartBroker
	Stopper   StopBroker
	Logger    *zap.Logger
}

// Engine turns broker calls and transport envelopes into one transcript.
// All state is guarded by mu; envelopes and broker completions are applied
// one at a time in the order they reach the engine.
type Engine struct {
	mu sync.Mutex

	id        string
	target    Target
	transport Transport
	starter   StartBroker
	stopper   StopBroker
	log       *zap.Logger

	reducer    *TranscriptReducer
	correlator *TurnCorrelator
	transcript Transcript
	streaming  bool
	session    SessionContext

	sendSeq    uint64 // bumped by every SendMessage
	pendingSeq uint64 // send whose broker call is in flight, 0 if none
	stopSeq    uint64 // send that was stopped before its handle arrived
	closed     bool

	observers *events.Registry[Event]
}

// NewEngine creates an engine for one conversation surface. When
// opts.SessionID and a guild are set it starts replaying that session.
func NewEngine(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = Logger()
	}
	e := &Engine{
		id:         uuid.NewString(),
		target:     opts.Target,
		transport:  opts.Transport,
		starter:    opts.Starter,
		stopper:    opts.Stopper,
		reducer:    NewTranscriptReducer(),
		correlator: NewTurnCorrelator(),
		observers:  events.NewRegistry[Event](),
	}
	e.log = log.With(zap.String("engine", e.id), zap.Stringer("target", opts.Target))

	if e.transport != nil {
		e.transport.OnMessage(e.HandleMessage)
	}

	if opts.SessionID != "" {
		e.session.SetSessionID(opts.SessionID)
		e.bootstrapReplay(opts.SessionID)
	}

	return e
}

// bootstrapReplay asks the server to stream sessionID back under a
// synthetic handle. Replay never sets isStreaming.
func (e *Engine) bootstrapReplay(sessionID string) {
	if e.target.GuildID == "" || e.transport == nil {
		e.log.Debug("replay skipped: no guild or transport", zap.String("session_id", sessionID))
		return
	}

	handle := ReplayHandle(sessionID)
	e.mu.Lock()
	e.correlator.AdoptReplay(handle)
	e.mu.Unlock()

	msg := ReplayHistoryMessage{
		Type:          MessageReplayHistory,
		SessionID:     sessionID,
		GuildID:       e.target.GuildID,
		ChatProcessID: handle,
	}
	if !e.transport.Send(msg) {
		e.log.Warn("replay request not sent", zap.String("chat_process_id", handle))
		return
	}
	e.log.Debug("replay requested", zap.String("chat_process_id", handle))
}

// ID returns the engine instance id used in logs
func (e *Engine) ID() string {
	return e.id
}

// Target returns the engine's addressing context
func (e *Engine) Target() Target {
	return e.target
}

// Subscribe registers handler for an event kind and returns its disposer
func (e *Engine) Subscribe(kind events.Kind, handler func(Event)) func() {
	return e.observers.Subscribe(kind, handler)
}

func (e *Engine) emit(evs []Event) {
	for _, ev := range evs {
		e.observers.Emit(ev.Kind, ev)
	}
}

// SendMessage drops the previous live handle, appends the user entry,
// starts a new exchange and adopts the returned process handle. Broker
// failures become a system error entry and leave no live handle.
// Without an addressable target the call does nothing.
func (e *Engine) SendMessage(ctx context.Context, req SendRequest) {
	e.mu.Lock()
	if e.closed || !e.target.Addressable() || e.starter == nil {
		e.mu.Unlock()
		e.log.Debug("send ignored: engine closed or no target")
		return
	}

	// the previous turn stops correlating now, not when the broker answers
	e.correlator.ClearLive()

	var evs []Event
	evs = append(evs, e.appendLocked(NewUserEntry(req.Message)))
	if !e.streaming {
		e.streaming = true
		evs = append(evs, Event{Kind: EventStreamingChanged, IsStreaming: true})
	}
	if e.session.ClearClarification() {
		evs = append(evs, Event{Kind: EventClarificationCleared})
	}
	e.sendSeq++
	seq := e.sendSeq
	e.pendingSeq = seq
	start := StartRequest{
		Target:    e.target,
		Message:   req.Message,
		SessionID: e.session.CurrentSessionID,
	}
	e.mu.Unlock()
	e.emit(evs)

	res, err := e.starter.StartChat(ctx, start)
	if err == nil && res.ChatProcessID == "" {
		err = &BrokerError{Op: "start", Target: start.Target.String(), Err: errors.New("no chatProcessId in response")}
	}

	e.mu.Lock()
	if e.closed || seq != e.sendSeq {
		e.mu.Unlock()
		e.log.Debug("discarding superseded start result", zap.Uint64("seq", seq), zap.Error(err))
		return
	}
	e.pendingSeq = 0
	evs = evs[:0]
	stopNow := false
	if err != nil {
		e.log.Warn("start chat failed", zap.Error(err))
		evs = append(evs, e.appendLocked(NewSystemErrorEntry("Error: "+err.Error())))
		if e.streaming {
			e.streaming = false
			evs = append(evs, Event{Kind: EventStreamingChanged, IsStreaming: false})
		}
	} else {
		e.correlator.AdoptLive(res.ChatProcessID)
		e.log.Debug("adopted live turn", zap.String("chat_process_id", res.ChatProcessID))
		stopNow = e.stopSeq == seq
	}
	e.mu.Unlock()
	e.emit(evs)

	if stopNow {
		e.requestStop(ctx, StopRequest{Target: start.Target, ChatProcessID: res.ChatProcessID})
	}
}

// StopChat asks the server to stop the live process and immediately marks
// the engine as not streaming. Received entries are kept.
func (e *Engine) StopChat(ctx context.Context) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	handle := e.correlator.LiveHandle()
	if e.pendingSeq != 0 {
		// the handle is not known yet; stop it once the broker returns it
		e.stopSeq = e.pendingSeq
		handle = ""
	}
	var evs []Event
	if e.streaming {
		e.streaming = false
		evs = append(evs, Event{Kind: EventStreamingChanged, IsStreaming: false})
	}
	target := e.target
	e.mu.Unlock()
	e.emit(evs)

	if handle == "" || !target.Addressable() {
		return
	}
	e.requestStop(ctx, StopRequest{Target: target, ChatProcessID: handle})
}

// requestStop calls the stop broker; failures are logged and swallowed
func (e *Engine) requestStop(ctx context.Context, req StopRequest) {
	if e.stopper == nil {
		return
	}
	res, err := e.stopper.StopChat(ctx, req)
	if err != nil {
		e.log.Debug("stop chat failed", zap.String("chat_process_id", req.ChatProcessID), zap.Error(err))
		return
	}
	e.log.Debug("stop chat requested", zap.String("chat_process_id", req.ChatProcessID), zap.Bool("stopped", res.Stopped))
}

// DismissClarification drops a pending clarification without answering it
func (e *Engine) DismissClarification() {
	e.mu.Lock()
	had := e.session.ClearClarification()
	e.mu.Unlock()
	if had {
		e.emit([]Event{{Kind: EventClarificationCleared}})
	}
}

// HandleMessage is the transport callback. Malformed, unknown and
// uncorrelated envelopes are dropped without surfacing an error.
func (e *Engine) HandleMessage(data []byte) {
	in, err := ParseEnvelope(data)
	if err != nil {
		e.log.Debug("dropping envelope", zap.Error(err))
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	evs := e.routeLocked(in)
	e.mu.Unlock()
	e.emit(evs)
}

// appendLocked appends an entry and returns its event
func (e *Engine) appendLocked(entry ChatEntry) Event {
	e.transcript = append(e.transcript, entry)
	idx := len(e.transcript) - 1
	return Event{Kind: EventEntryAppended, Index: idx, Entry: entry}
}

// State returns a copy of the observable state
func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Entries:              append([]ChatEntry(nil), e.transcript...),
		IsStreaming:          e.streaming,
		CurrentSessionID:     e.session.CurrentSessionID,
		LinkedQuestID:        e.session.LinkedQuestID,
		ChatProcessID:        e.correlator.LiveHandle(),
		PendingClarification: e.session.PendingClarification.clone(),
	}
}

// Entries returns a copy of the transcript
func (e *Engine) Entries() []ChatEntry {
	return e.State().Entries
}

// IsStreaming reports whether a live turn is in progress
func (e *Engine) IsStreaming() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streaming
}

// CurrentSessionID returns the known session id or ""
func (e *Engine) CurrentSessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.CurrentSessionID
}

// LinkedQuestID returns the linked quest id or ""
func (e *Engine) LinkedQuestID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.LinkedQuestID
}

// ChatProcessID returns the live process handle or ""
func (e *Engine) ChatProcessID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.correlator.LiveHandle()
}

// Replaying reports whether a history replay is still in progress
func (e *Engine) Replaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.correlator.ReplayHandle() != ""
}

// PendingClarification returns a copy of the pending clarification or nil
func (e *Engine) PendingClarification() *PendingClarification {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.PendingClarification.clone()
}

// Close closes the transport and discards all turn state. Envelopes that
// arrive afterwards are ignored.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.correlator.Reset()
	e.pendingSeq = 0
	e.mu.Unlock()

	e.observers.Close()
	if e.transport == nil {
		return nil
	}
	return e.transport.Close()
}
