package schema

import (
	"errors"
	"testing"

	"interview-copilot-service/internal/models"
)

func validTurn() models.TurnEvent {
	return models.TurnEvent{
		EventType: models.EventTurnCompleted,
		SessionID: "s1",
		Timestamp: 1700000000000,
		TurnID:    "s1-turn-1",
		Question:  "What is RCA?",
		Answer:    "Root cause analysis.",
		Status:    "complete",
	}
}

func TestValidate_TurnEvent(t *testing.T) {
	v := New()
	tests := []struct {
		name    string
		mutate  func(*models.TurnEvent)
		wantErr bool
	}{
		{"valid completed", func(e *models.TurnEvent) {}, false},
		{"valid update", func(e *models.TurnEvent) { e.EventType = models.EventTurnUpdated; e.Status = "streaming" }, false},
		{"valid removed", func(e *models.TurnEvent) { e.EventType = models.EventTurnRemoved; e.Status = "discarded" }, false},
		{"cleared needs no turn", func(e *models.TurnEvent) { *e = models.TurnEvent{EventType: models.EventTranscriptCleared, SessionID: "s1", Timestamp: 1} }, false},
		{"missing session", func(e *models.TurnEvent) { e.SessionID = "" }, true},
		{"missing timestamp", func(e *models.TurnEvent) { e.Timestamp = 0 }, true},
		{"missing turn", func(e *models.TurnEvent) { e.TurnID = "" }, true},
		{"unknown type", func(e *models.TurnEvent) { e.EventType = "turn.exploded" }, true},
		{"completed not complete", func(e *models.TurnEvent) { e.Status = "pending" }, true},
		{"completed empty", func(e *models.TurnEvent) { e.Question, e.Answer = "", "" }, true},
		{"bad status", func(e *models.TurnEvent) { e.EventType = models.EventTurnUpdated; e.Status = "lost" }, true},
		{"negative index", func(e *models.TurnEvent) { e.Index = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validTurn()
			tt.mutate(&e)
			err := v.Validate(e)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestValidate_PointerAndStatus(t *testing.T) {
	v := New()
	e := validTurn()
	if err := v.Validate(&e); err != nil {
		t.Errorf("pointer event rejected: %v", err)
	}

	st := models.StatusEvent{EventType: models.EventSessionStatus, State: "listening", Timestamp: 1}
	if err := v.Validate(st); err != nil {
		t.Errorf("status rejected: %v", err)
	}
	st.State = ""
	if err := v.Validate(&st); err == nil {
		t.Error("expected error for missing state")
	}
}

func TestValidate_UnsupportedType(t *testing.T) {
	if err := New().Validate(map[string]string{"text": "hi"}); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent, got %v", err)
	}
}
