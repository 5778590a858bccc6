package internal

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"

	"go.uber.org/zap"
)

// fakeTransport records outbound messages and lets tests push frames
type fakeTransport struct {
	mu      sync.Mutex
	handler func([]byte)
	sent    []interface{}
	refuse  bool
	closed  int
}

func (f *fakeTransport) Send(message interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse || f.closed > 0 {
		return false
	}
	f.sent = append(f.sent, message)
	return true
}

func (f *fakeTransport) OnMessage(handler func([]byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) deliver(frames ...[]byte) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	for _, frame := range frames {
		h(frame)
	}
}

func (f *fakeTransport) sentMessages() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.sent...)
}

// startOutcome is one scripted StartChat response. A non-nil release
// blocks the call until it is closed.
type startOutcome struct {
	handle  string
	err     error
	release chan struct{}
}

// fakeStarter answers StartChat from a script, then with "proc-N"
type fakeStarter struct {
	mu       sync.Mutex
	script   []startOutcome
	requests []StartRequest
	called   chan StartRequest
}

func newFakeStarter(script ...startOutcome) *fakeStarter {
	return &fakeStarter{script: script, called: make(chan StartRequest, 16)}
}

func (f *fakeStarter) StartChat(ctx context.Context, req StartRequest) (StartResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	var out startOutcome
	if len(f.script) > 0 {
		out = f.script[0]
		f.script = f.script[1:]
	} else {
		out.handle = "proc-" + strconv.Itoa(n)
	}
	f.mu.Unlock()

	f.called <- req
	if out.release != nil {
		select {
		case <-out.release:
		case <-ctx.Done():
			return StartResult{}, ctx.Err()
		}
	}
	if out.err != nil {
		return StartResult{}, out.err
	}
	return StartResult{ChatProcessID: out.handle}, nil
}

func (f *fakeStarter) startRequests() []StartRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]StartRequest(nil), f.requests...)
}

// fakeStopper records stop requests
type fakeStopper struct {
	mu       sync.Mutex
	requests []StopRequest
	err      error
}

func (f *fakeStopper) StopChat(ctx context.Context, req StopRequest) (StopResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return StopResult{}, f.err
	}
	return StopResult{Stopped: true}, nil
}

func (f *fakeStopper) stopRequests() []StopRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]StopRequest(nil), f.requests...)
}

type engineFixture struct {
	engine    *Engine
	transport *fakeTransport
	starter   *fakeStarter
	stopper   *fakeStopper
}

func newEngineFixture(t *testing.T, target Target, sessionID string, script ...startOutcome) *engineFixture {
	t.Helper()
	f := &engineFixture{
		transport: &fakeTransport{},
		starter:   newFakeStarter(script...),
		stopper:   &fakeStopper{},
	}
	f.engine = NewEngine(Options{
		Target:    target,
		SessionID: sessionID,
		Transport: f.transport,
		Starter:   f.starter,
		Stopper:   f.stopper,
		Logger:    zap.NewNop(),
	})
	t.Cleanup(func() { _ = f.engine.Close() })
	return f
}

func (f *engineFixture) send(message string) {
	f.engine.SendMessage(context.Background(), SendRequest{Message: message})
}

// toolInput renders v the way the agent would put it in a tool_use block
func toolInput(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal tool input: %v", err)
	}
	return string(data)
}
