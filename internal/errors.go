package internal

import (
	"errors"
	"fmt"
)

// ErrNoTarget is returned when a chat operation has no guild or quest to address
var ErrNoTarget = errors.New("no chat target configured")

// BrokerError represents a failed start/stop broker call
type BrokerError struct {
	Op         string // "start", "stop"
	Target     string
	StatusCode int
	Err        error
}

func (e *BrokerError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("broker %s [%s] status %d: %v", e.Op, e.Target, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("broker %s [%s]: %v", e.Op, e.Target, e.Err)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// ProtocolError describes why an inbound envelope or agent line was dropped.
// It never leaves the engine; it only feeds debug logging.
type ProtocolError struct {
	EnvelopeType string
	Reason       string
	Err          error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error [%s] %s: %v", e.EnvelopeType, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error [%s] %s", e.EnvelopeType, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// StoreError represents errors reading or writing transcript history
type StoreError struct {
	Op        string // "open", "save", "load", "list", "delete"
	SessionID string
	Err       error
}

func (e *StoreError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("store error: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store error: %s %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
