package bridge

import (
	"errors"
	"testing"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StatePending, "PENDING"},
		{StateActive, "ACTIVE"},
		{StateStopping, "STOPPING"},
		{StateClosed, "CLOSED"},
		{StateDropped, "DROPPED"},
		{State(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestState_IsTerminal(t *testing.T) {
	if StatePending.IsTerminal() || StateActive.IsTerminal() || StateStopping.IsTerminal() {
		t.Error("non-terminal states reported as terminal")
	}
	if !StateClosed.IsTerminal() || !StateDropped.IsTerminal() {
		t.Error("terminal states not reported as terminal")
	}
}

func TestLifecycle_NormalFlow(t *testing.T) {
	l := NewLifecycle()
	if l.State() != StatePending {
		t.Fatalf("new lifecycle should be PENDING, got %v", l.State())
	}

	if err := l.Start(); err != nil {
		t.Fatalf("start from PENDING failed: %v", err)
	}
	if l.State() != StateActive {
		t.Fatalf("expected ACTIVE, got %v", l.State())
	}

	if err := l.Media(); err != nil {
		t.Errorf("media in ACTIVE should be allowed: %v", err)
	}

	if !l.Stop() {
		t.Error("stop from ACTIVE should succeed")
	}
	if !l.Stopped() {
		t.Error("stream should report stopped")
	}

	l.Close()
	if l.State() != StateClosed {
		t.Errorf("expected CLOSED after stop+close, got %v", l.State())
	}
}

func TestLifecycle_MediaBeforeStart(t *testing.T) {
	l := NewLifecycle()
	if err := l.Media(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestLifecycle_DoubleStart(t *testing.T) {
	l := NewLifecycle()
	l.Start()
	if err := l.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestLifecycle_MediaAfterStop(t *testing.T) {
	l := NewLifecycle()
	l.Start()
	l.Stop()
	if err := l.Media(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed, got %v", err)
	}
}

func TestLifecycle_StopBeforeStart(t *testing.T) {
	l := NewLifecycle()
	if l.Stop() {
		t.Error("stop from PENDING should fail")
	}
}

func TestLifecycle_CloseWithoutStopDrops(t *testing.T) {
	l := NewLifecycle()
	l.Start()

	// Transient disconnect: the socket closed but the call did not end.
	l.Close()
	if l.State() != StateDropped {
		t.Errorf("close without stop should drop the stream, got %v", l.State())
	}
	if l.Stopped() {
		t.Error("dropped stream must not report a clean stop")
	}
}

func TestLifecycle_Drop(t *testing.T) {
	l := NewLifecycle()
	if !l.Drop() {
		t.Error("drop from PENDING should succeed")
	}
	if l.State() != StateDropped {
		t.Errorf("expected DROPPED, got %v", l.State())
	}
	if l.Drop() {
		t.Error("drop from terminal state should return false")
	}
	if err := l.Start(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("start after drop should fail closed, got %v", err)
	}
}

func TestLifecycle_CloseIsIdempotent(t *testing.T) {
	l := NewLifecycle()
	l.Start()
	l.Stop()
	l.Close()
	l.Close()
	if l.State() != StateClosed {
		t.Errorf("expected CLOSED, got %v", l.State())
	}
}
