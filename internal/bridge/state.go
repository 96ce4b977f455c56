// Package bridge connects a carrier media stream to the voice engine:
// admission, audio relay in both directions, barge-in, knowledge
// injection, tool dispatch, and teardown.
package bridge

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a bridged stream.
type State int

const (
	// StatePending - WebSocket open, start event not yet received.
	StatePending State = iota
	// StateActive - Start validated, call is being bridged.
	StateActive
	// StateStopping - Stop event received, finalizing.
	StateStopping
	// StateClosed - Stream torn down normally.
	StateClosed
	// StateDropped - Stream rejected or abandoned due to error.
	// Terminal state.
	StateDropped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateActive:
		return "ACTIVE"
	case StateStopping:
		return "STOPPING"
	case StateClosed:
		return "CLOSED"
	case StateDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateDropped
}

// Errors for invalid state transitions.
var (
	ErrStreamClosed   = errors.New("stream is closed")
	ErrAlreadyStarted = errors.New("stream already started")
	ErrNotStarted     = errors.New("stream not started")
)

// Lifecycle manages the state machine for a single bridged stream.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	PENDING → ACTIVE → STOPPING → CLOSED
//	   │         │
//	   │         └── Drop() on error
//	   │
//	   └── Drop() on rejected admission
//
// Rules:
//   - PENDING: Only the start event is accepted
//   - ACTIVE: Media flows; stop transitions to STOPPING
//   - STOPPING: No more media; waiting for teardown
//   - CLOSED/DROPPED: All operations return errors
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// NewLifecycle creates a lifecycle in PENDING state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StatePending}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Start validates and transitions PENDING → ACTIVE.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StatePending:
		l.state = StateActive
		return nil
	case StateActive, StateStopping:
		return ErrAlreadyStarted
	case StateClosed, StateDropped:
		return ErrStreamClosed
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Media validates a media frame. Only ACTIVE streams relay audio.
func (l *Lifecycle) Media() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	switch l.state {
	case StateActive:
		return nil
	case StatePending:
		return ErrNotStarted
	case StateStopping, StateClosed, StateDropped:
		return ErrStreamClosed
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Stop transitions ACTIVE → STOPPING. Returns true if the transition
// happened, false if the stream was not active.
func (l *Lifecycle) Stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateActive {
		return false
	}
	l.state = StateStopping
	return true
}

// Stopped reports whether a stop event has been accepted. A closed
// WebSocket without a stop is a transient disconnect and must not
// finalize the call.
func (l *Lifecycle) Stopped() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateStopping || l.state == StateClosed
}

// Close transitions to CLOSED. Only meaningful after Stop; a close
// without a stop leaves the call resumable, so the state becomes
// DROPPED instead to mark the stream itself unusable.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateStopping || l.state == StateClosed {
		l.state = StateClosed
		return
	}
	if !l.state.IsTerminal() {
		l.state = StateDropped
	}
}

// Drop transitions to DROPPED from any non-terminal state. Returns
// true if the stream was dropped, false if already terminal.
func (l *Lifecycle) Drop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateDropped
	return true
}
