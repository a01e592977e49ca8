package segment

import (
	"testing"
)

func TestLifecycle_InitialStatus(t *testing.T) {
	lc := NewLifecycle("turn-1", StatusPending)

	if lc.Status() != StatusPending {
		t.Errorf("expected StatusPending, got %v", lc.Status())
	}
	if lc.TurnId() != "turn-1" {
		t.Errorf("expected turn-1, got %v", lc.TurnId())
	}
	if !lc.IsActive() {
		t.Error("expected IsActive to be true")
	}
}

func TestLifecycle_InvalidInitialStatusFallsBackToPending(t *testing.T) {
	lc := NewLifecycle("turn-1", StatusComplete)
	if lc.Status() != StatusPending {
		t.Errorf("expected StatusPending, got %v", lc.Status())
	}
}

func TestLifecycle_AppendMovesPendingToStreaming(t *testing.T) {
	lc := NewLifecycle("turn-1", StatusPending)

	for i := 0; i < 5; i++ {
		if err := lc.Append(); err != nil {
			t.Errorf("append %d: unexpected error: %v", i, err)
		}
	}
	if lc.Status() != StatusStreaming {
		t.Errorf("expected StatusStreaming after appends, got %v", lc.Status())
	}
}

func TestLifecycle_Complete_OnlyOnce(t *testing.T) {
	lc := NewLifecycle("turn-1", StatusStreaming)

	if err := lc.Complete(); err != nil {
		t.Errorf("first complete: unexpected error: %v", err)
	}
	if err := lc.Complete(); err != ErrTurnAlreadyComplete {
		t.Errorf("second complete: expected ErrTurnAlreadyComplete, got %v", err)
	}
	if err := lc.Append(); err != ErrTurnAlreadyComplete {
		t.Errorf("append after complete: expected ErrTurnAlreadyComplete, got %v", err)
	}
	if lc.IsActive() {
		t.Error("expected completed turn to be inactive")
	}
}

func TestLifecycle_CompleteFromPending(t *testing.T) {
	lc := NewLifecycle("turn-1", StatusPending)
	if err := lc.Complete(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lc.Status() != StatusComplete {
		t.Errorf("expected StatusComplete, got %v", lc.Status())
	}
}

func TestLifecycle_Discard_Idempotent(t *testing.T) {
	lc := NewLifecycle("turn-1", StatusPending)

	if !lc.Discard() {
		t.Error("expected first Discard() to return true")
	}
	if lc.Discard() {
		t.Error("expected second Discard() to return false")
	}
	if lc.Status() != StatusDiscarded {
		t.Errorf("expected StatusDiscarded, got %v", lc.Status())
	}
}

func TestLifecycle_Discard_FailsAfterComplete(t *testing.T) {
	lc := NewLifecycle("turn-1", StatusStreaming)
	_ = lc.Complete()

	if lc.Discard() {
		t.Error("expected Discard() to return false for a completed turn")
	}
	if lc.Status() != StatusComplete {
		t.Errorf("expected StatusComplete, got %v", lc.Status())
	}
}

func TestLifecycle_OperationsFailAfterDiscard(t *testing.T) {
	lc := NewLifecycle("turn-1", StatusStreaming)
	lc.Discard()

	if err := lc.Append(); err != ErrTurnClosed {
		t.Errorf("Append: expected ErrTurnClosed, got %v", err)
	}
	if err := lc.Complete(); err != ErrTurnClosed {
		t.Errorf("Complete: expected ErrTurnClosed, got %v", err)
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusPending, "pending"},
		{StatusStreaming, "streaming"},
		{StatusComplete, "complete"},
		{StatusDiscarded, "discarded"},
		{Status(99), "unknown(99)"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.expected {
			t.Errorf("Status(%d).String() = %v, want %v", tt.status, got, tt.expected)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status     Status
		isTerminal bool
		isActive   bool
	}{
		{StatusPending, false, true},
		{StatusStreaming, false, true},
		{StatusComplete, true, false},
		{StatusDiscarded, true, false},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.isTerminal {
			t.Errorf("Status(%s).IsTerminal() = %v, want %v", tt.status, got, tt.isTerminal)
		}
		if got := tt.status.IsActive(); got != tt.isActive {
			t.Errorf("Status(%s).IsActive() = %v, want %v", tt.status, got, tt.isActive)
		}
	}
}
