package internal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/iksnae/questchat/internal/events"
	"github.com/iksnae/questchat/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_StreamingTextReconciles(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "")

	f.send("hi")
	assert.True(t, f.engine.IsStreaming())
	assert.Equal(t, "proc-1", f.engine.ChatProcessID())

	f.transport.deliver(
		testutil.ChatOutput(t, "proc-1", testutil.SystemInitLine("s-1")),
		testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("", testutil.TextBlock("Hel"))),
		testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("", testutil.TextBlock("Hello"))),
	)
	assert.True(t, f.engine.IsStreaming())

	f.transport.deliver(testutil.ChatComplete(t, "proc-1", "s-1"))

	want := Snapshot{
		Entries: []ChatEntry{
			NewUserEntry("hi"),
			NewAssistantTextEntry("Hello"),
		},
		IsStreaming:      false,
		CurrentSessionID: "s-1",
		ChatProcessID:    "proc-1",
	}
	if diff := cmp.Diff(want, f.engine.State()); diff != "" {
		t.Errorf("State() mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_BlocksAppendAndPatch(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "")
	f.send("read it")

	input := map[string]interface{}{"file_path": "/a.go"}
	f.transport.deliver(
		testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("", testutil.TextBlock("Looking"))),
		testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("",
			testutil.TextBlock("Looking"),
			testutil.ToolUseBlock("toolu_1", "Read", input))),
		// replaying the same blocks changes nothing
		testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("",
			testutil.TextBlock("Looking"),
			testutil.ToolUseBlock("toolu_1", "Read", input))),
		testutil.ChatPatch(t, "toolu_1", "agent-7"),
	)

	tool := NewToolUseEntry("toolu_1", "Read", toolInput(t, input))
	tool.AgentID = "agent-7"
	want := []ChatEntry{
		NewUserEntry("read it"),
		NewAssistantTextEntry("Looking"),
		tool,
	}
	if diff := cmp.Diff(want, f.engine.Entries()); diff != "" {
		t.Errorf("Entries() mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_MultiMessageTurn(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "")
	f.send("go")

	f.transport.deliver(
		testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("msg_1", testutil.TextBlock("first"))),
		testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("msg_2", testutil.TextBlock("sec"))),
		testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("msg_2", testutil.TextBlock("second"))),
	)

	want := []ChatEntry{
		NewUserEntry("go"),
		NewAssistantTextEntry("first"),
		NewAssistantTextEntry("second"),
	}
	if diff := cmp.Diff(want, f.engine.Entries()); diff != "" {
		t.Errorf("Entries() mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_DropsUncorrelatedFrames(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "")
	f.send("hi")

	f.transport.deliver(
		testutil.ChatOutput(t, "someone-else", testutil.AssistantLine("", testutil.TextBlock("stray"))),
		testutil.ChatOutput(t, "", testutil.AssistantLine("", testutil.TextBlock("stray"))),
		testutil.ChatComplete(t, "someone-else", "s-x"),
		testutil.QuestSessionLinked(t, "someone-else", "q-x"),
		testutil.ClarificationRequest(t, "someone-else", testutil.Question("?", "H", false, "a", "b")),
	)

	state := f.engine.State()
	assert.Equal(t, []ChatEntry{NewUserEntry("hi")}, state.Entries)
	assert.True(t, state.IsStreaming)
	assert.Empty(t, state.CurrentSessionID)
	assert.Empty(t, state.LinkedQuestID)
	assert.Nil(t, state.PendingClarification)
}

func TestEngine_DropsMalformedFrames(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "")
	f.send("hi")

	f.transport.deliver(
		[]byte("not json"),
		[]byte(`{"type":"chat-output","payload":"x","timestamp":"t"}`),
		[]byte(`{"type":"chat-output","payload":{"chatProcessId":"proc-1","line":42},"timestamp":"t"}`),
		[]byte(`{"type":"mystery","payload":{},"timestamp":"t"}`),
		testutil.ChatOutput(t, "proc-1", "{broken"),
		testutil.ChatOutput(t, "proc-1", `{"type":"user","message":{"content":[]}}`),
	)

	assert.Equal(t, []ChatEntry{NewUserEntry("hi")}, f.engine.Entries())
}

func TestEngine_NewTurnResetsBlockSlots(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "")

	f.send("one")
	f.transport.deliver(
		testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("", testutil.TextBlock("answer one"))),
		testutil.ChatComplete(t, "proc-1", "s-1"),
	)

	f.send("two")
	assert.Equal(t, "proc-2", f.engine.ChatProcessID())
	f.transport.deliver(
		// late output from the previous turn is ignored
		testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("", testutil.TextBlock("late"))),
		testutil.ChatOutput(t, "proc-2", testutil.AssistantLine("", testutil.TextBlock("answer two"))),
	)

	want := []ChatEntry{
		NewUserEntry("one"),
		NewAssistantTextEntry("answer one"),
		NewUserEntry("two"),
		NewAssistantTextEntry("answer two"),
	}
	if diff := cmp.Diff(want, f.engine.Entries()); diff != "" {
		t.Errorf("Entries() mismatch (-want +got):\n%s", diff)
	}

	reqs := f.starter.startRequests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].SessionID)
	assert.Equal(t, "s-1", reqs[1].SessionID)
}

func TestEngine_OldTurnIgnoredWhileStartPending(t *testing.T) {
	release := make(chan struct{})
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "",
		startOutcome{handle: "proc-1"},
		startOutcome{handle: "proc-2", release: release},
	)

	f.send("one")
	<-f.starter.called
	f.engine.StopChat(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.send("two")
	}()
	<-f.starter.called

	assert.Empty(t, f.engine.ChatProcessID())
	f.transport.deliver(
		testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("", testutil.TextBlock("late from old turn"))),
		testutil.ChatComplete(t, "proc-1", "s-old"),
	)
	assert.True(t, f.engine.IsStreaming(), "old chat-complete must not end the new turn")
	assert.Empty(t, f.engine.CurrentSessionID())

	close(release)
	<-done

	assert.Equal(t, "proc-2", f.engine.ChatProcessID())
	assert.True(t, f.engine.IsStreaming())
	assert.Equal(t, []ChatEntry{NewUserEntry("one"), NewUserEntry("two")}, f.engine.Entries())
}

func TestEngine_FailedStartLeavesNoLiveHandle(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "",
		startOutcome{handle: "proc-1"},
		startOutcome{err: errors.New("connection refused")},
	)

	f.send("one")
	assert.Equal(t, "proc-1", f.engine.ChatProcessID())

	f.send("two")
	assert.Empty(t, f.engine.ChatProcessID())
	assert.False(t, f.engine.IsStreaming())

	f.transport.deliver(
		testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("", testutil.TextBlock("stale"))),
		testutil.ChatComplete(t, "proc-1", "s-old"),
	)

	want := []ChatEntry{
		NewUserEntry("one"),
		NewUserEntry("two"),
		NewSystemErrorEntry("Error: connection refused"),
	}
	if diff := cmp.Diff(want, f.engine.Entries()); diff != "" {
		t.Errorf("Entries() mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, f.engine.CurrentSessionID())
	assert.False(t, f.engine.IsStreaming())
}

func TestEngine_Replay(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "s-9")

	sent := f.transport.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, ReplayHistoryMessage{
		Type:          MessageReplayHistory,
		SessionID:     "s-9",
		GuildID:       "g-1",
		ChatProcessID: "replay-s-9",
	}, sent[0])

	assert.Equal(t, "s-9", f.engine.CurrentSessionID())
	assert.True(t, f.engine.Replaying())
	assert.False(t, f.engine.IsStreaming())

	f.transport.deliver(
		testutil.ChatOutput(t, "replay-s-9", testutil.AssistantLine("", testutil.TextBlock("from history"))),
		// live-only envelopes do not apply to the replay handle
		testutil.ChatComplete(t, "replay-s-9", "s-other"),
		testutil.QuestSessionLinked(t, "replay-s-9", "q-1"),
	)
	assert.Equal(t, "s-9", f.engine.CurrentSessionID())
	assert.Empty(t, f.engine.LinkedQuestID())
	assert.False(t, f.engine.IsStreaming())

	f.transport.deliver(testutil.ChatHistoryComplete(t, "replay-s-9"))
	assert.False(t, f.engine.Replaying())

	f.transport.deliver(testutil.ChatOutput(t, "replay-s-9", testutil.AssistantLine("", testutil.TextBlock("after"))))
	assert.Equal(t, []ChatEntry{NewAssistantTextEntry("from history")}, f.engine.Entries())
}

func TestEngine_ReplayThenLiveTurn(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "s-9")
	f.transport.deliver(
		testutil.ChatOutput(t, "replay-s-9", testutil.AssistantLine("", testutil.TextBlock("old"))),
		testutil.ChatHistoryComplete(t, "replay-s-9"),
	)

	f.send("new question")
	reqs := f.starter.startRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "s-9", reqs[0].SessionID)

	f.transport.deliver(testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("", testutil.TextBlock("new answer"))))
	want := []ChatEntry{
		NewAssistantTextEntry("old"),
		NewUserEntry("new question"),
		NewAssistantTextEntry("new answer"),
	}
	if diff := cmp.Diff(want, f.engine.Entries()); diff != "" {
		t.Errorf("Entries() mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_ReplayRequiresGuild(t *testing.T) {
	f := newEngineFixture(t, Target{QuestID: "q-1"}, "s-9")

	assert.Empty(t, f.transport.sentMessages())
	assert.False(t, f.engine.Replaying())
	assert.Equal(t, "s-9", f.engine.CurrentSessionID())
}

func TestEngine_ReplayWithoutTransport(t *testing.T) {
	e := NewEngine(Options{Target: Target{GuildID: "g-1"}, SessionID: "s-9"})
	defer e.Close()

	assert.False(t, e.Replaying())
	assert.Equal(t, "s-9", e.CurrentSessionID())
}

func TestEngine_Clarification(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "")
	f.send("plan it")

	f.transport.deliver(testutil.ClarificationRequest(t, "proc-1",
		testutil.Question("Which guild?", "Guild", false, "Red", "The red guild", "Blue", "The blue guild")))

	got := f.engine.PendingClarification()
	require.NotNil(t, got)
	if diff := cmp.Diff(CreateTestQuestions()[0].Options, got.Questions[0].Options); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Which guild?", got.Questions[0].Question)

	// an invalid request leaves the pending one alone
	f.transport.deliver(testutil.ClarificationRequest(t, "proc-1"))
	require.NotNil(t, f.engine.PendingClarification())

	// the returned copy is detached from engine state
	got.Questions[0].Options[0].Label = "changed"
	assert.Equal(t, "Red", f.engine.PendingClarification().Questions[0].Options[0].Label)

	// answering sends a new message and clears it
	f.send("Red")
	assert.Nil(t, f.engine.PendingClarification())
}

func TestEngine_DismissClarification(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "")
	f.send("plan it")
	f.transport.deliver(testutil.ClarificationRequest(t, "proc-1", testutil.Question("?", "H", true, "a", "b")))

	var cleared int
	f.engine.Subscribe(EventClarificationCleared, func(Event) { cleared++ })

	f.engine.DismissClarification()
	f.engine.DismissClarification()
	assert.Nil(t, f.engine.PendingClarification())
	assert.Equal(t, 1, cleared)
}

func TestEngine_QuestSessionLinked(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "")
	f.send("start a quest")

	var linked []string
	f.engine.Subscribe(EventQuestLinked, func(ev Event) { linked = append(linked, ev.QuestID) })

	f.transport.deliver(
		testutil.QuestSessionLinked(t, "proc-1", "q-42"),
		testutil.QuestSessionLinked(t, "proc-1", "q-42"),
		testutil.QuestSessionLinked(t, "proc-1", ""),
	)
	assert.Equal(t, "q-42", f.engine.LinkedQuestID())
	assert.Equal(t, []string{"q-42"}, linked)
}

func TestEngine_BrokerFailure(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "", startOutcome{err: errors.New("connection refused")})
	f.send("hi")

	entries := f.engine.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, NewUserEntry("hi"), entries[0])
	assert.Equal(t, RoleSystem, entries[1].Role)
	assert.Equal(t, EntryTypeError, entries[1].Type)
	assert.Equal(t, "Error: connection refused", entries[1].Content)
	assert.False(t, f.engine.IsStreaming())
	assert.Empty(t, f.engine.ChatProcessID())
}

func TestEngine_BrokerEmptyHandle(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "", startOutcome{handle: ""})
	f.send("hi")

	entries := f.engine.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, RoleSystem, entries[1].Role)
	assert.Contains(t, entries[1].Content, "chatProcessId")
	assert.False(t, f.engine.IsStreaming())
}

func TestEngine_SendWithoutTargetIsNoop(t *testing.T) {
	f := newEngineFixture(t, Target{}, "")
	f.send("hello?")

	assert.Empty(t, f.engine.Entries())
	assert.False(t, f.engine.IsStreaming())
	assert.Empty(t, f.starter.startRequests())
}

func TestEngine_StopChat(t *testing.T) {
	f := newEngineFixture(t, Target{QuestID: "q-1"}, "")
	f.send("long task")
	f.transport.deliver(testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("", testutil.TextBlock("working"))))

	f.engine.StopChat(context.Background())

	assert.False(t, f.engine.IsStreaming())
	assert.Len(t, f.engine.Entries(), 2)
	assert.Equal(t, []StopRequest{{Target: Target{QuestID: "q-1"}, ChatProcessID: "proc-1"}}, f.stopper.stopRequests())
}

func TestEngine_StopChatSwallowsErrors(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "")
	f.stopper.err = errors.New("boom")
	f.send("hi")

	f.engine.StopChat(context.Background())
	assert.False(t, f.engine.IsStreaming())
	assert.Len(t, f.engine.Entries(), 1)
}

func TestEngine_StopBeforeHandleArrives(t *testing.T) {
	release := make(chan struct{})
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "", startOutcome{handle: "proc-slow", release: release})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.send("hi")
	}()
	<-f.starter.called

	f.engine.StopChat(context.Background())
	assert.False(t, f.engine.IsStreaming())
	assert.Empty(t, f.stopper.stopRequests())

	close(release)
	<-done

	assert.Equal(t, []StopRequest{{Target: Target{GuildID: "g-1"}, ChatProcessID: "proc-slow"}}, f.stopper.stopRequests())
}

func TestEngine_SupersededSendIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "",
		startOutcome{handle: "proc-old", release: release},
		startOutcome{handle: "proc-new"},
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.send("first")
	}()
	<-f.starter.called

	f.send("second")
	assert.Equal(t, "proc-new", f.engine.ChatProcessID())

	close(release)
	<-done

	assert.Equal(t, "proc-new", f.engine.ChatProcessID())
	assert.True(t, f.engine.IsStreaming())
	assert.Equal(t, []ChatEntry{NewUserEntry("first"), NewUserEntry("second")}, f.engine.Entries())
}

func TestEngine_Events(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "")

	var mu sync.Mutex
	var kinds []string
	record := func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, string(ev.Kind))
	}
	for _, k := range []events.Kind{EventEntryAppended, EventEntryUpdated, EventStreamingChanged, EventSessionChanged, EventChatComplete} {
		f.engine.Subscribe(k, record)
	}

	f.send("hi")
	f.transport.deliver(
		testutil.ChatOutput(t, "proc-1", testutil.SystemInitLine("s-1")),
		testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("", testutil.TextBlock("a"))),
		testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("", testutil.TextBlock("ab"))),
		testutil.ChatComplete(t, "proc-1", "s-1"),
	)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"entry-appended",
		"streaming-changed",
		"session-changed",
		"entry-appended",
		"entry-updated",
		"streaming-changed",
		"chat-complete",
	}, kinds)
}

func TestEngine_UnsubscribeStopsDelivery(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "")

	calls := 0
	dispose := f.engine.Subscribe(EventEntryAppended, func(Event) { calls++ })
	f.send("one")
	dispose()
	dispose()
	f.send("two")

	assert.Equal(t, 1, calls)
}

func TestEngine_Close(t *testing.T) {
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "")
	f.send("hi")

	calls := 0
	f.engine.Subscribe(EventEntryAppended, func(Event) { calls++ })

	require.NoError(t, f.engine.Close())
	require.NoError(t, f.engine.Close())
	assert.Equal(t, 1, f.transport.closed)

	f.transport.deliver(testutil.ChatOutput(t, "proc-1", testutil.AssistantLine("", testutil.TextBlock("late"))))
	f.send("after close")

	assert.Equal(t, []ChatEntry{NewUserEntry("hi")}, f.engine.Entries())
	assert.Empty(t, f.engine.ChatProcessID())
	assert.Zero(t, calls)
	assert.Len(t, f.starter.startRequests(), 1)
}

func TestEngine_CloseDuringPendingSend(t *testing.T) {
	release := make(chan struct{})
	f := newEngineFixture(t, Target{GuildID: "g-1"}, "", startOutcome{handle: "proc-1", release: release})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.send("hi")
	}()
	<-f.starter.called

	require.NoError(t, f.engine.Close())
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("SendMessage did not return after Close")
	}
	assert.Empty(t, f.engine.ChatProcessID())
}
