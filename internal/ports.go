package internal

import "context"

// Transport is the engine's WebSocket connection.
// Implementations deliver inbound frames to the handler registered with
// OnMessage, in arrival order, and never after Close returns.
type Transport interface {
	Send(message interface{}) bool
	OnMessage(handler func(data []byte))
	Close() error
}

// StartRequest begins a new exchange
type StartRequest struct {
	Target    Target
	Message   string
	SessionID string // empty when no prior session is known
}

// StartResult carries the process handle for the new exchange
type StartResult struct {
	ChatProcessID string `json:"chatProcessId"`
}

// StopRequest asks the server to terminate a process
type StopRequest struct {
	Target        Target
	ChatProcessID string
}

// StopResult reports whether the server stopped the process
type StopResult struct {
	Stopped bool `json:"stopped"`
}

// StartBroker begins chat exchanges
type StartBroker interface {
	StartChat(ctx context.Context, req StartRequest) (StartResult, error)
}

// StopBroker terminates chat exchanges
type StopBroker interface {
	StopChat(ctx context.Context, req StopRequest) (StopResult, error)
}
