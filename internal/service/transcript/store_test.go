package transcript

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"interview-copilot-service/internal/service/segment"
)

type recorder struct {
	changes []Change
}

func (r *recorder) listen(c Change) {
	r.changes = append(r.changes, c)
}

func (r *recorder) kinds() []ChangeKind {
	out := make([]ChangeKind, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Kind
	}
	return out
}

func TestStore_BatchTurnResolved(t *testing.T) {
	s := NewStore()
	rec := &recorder{}
	s.Subscribe(rec.listen)

	if _, err := s.Begin("s-turn-1", segment.StatusPending); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.Resolve("s-turn-1", "What is RCA?", "Root cause analysis..."); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	turns := s.Turns()
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	got := turns[0]
	if got.Question != "What is RCA?" || got.Answer != "Root cause analysis..." {
		t.Errorf("unexpected fields: %+v", got)
	}
	if got.Status != segment.StatusComplete {
		t.Errorf("expected complete, got %v", got.Status)
	}
	if _, ok := s.Active(); ok {
		t.Error("expected no active turn after resolve")
	}

	want := []ChangeKind{ChangeAdded, ChangeUpdated}
	if !reflect.DeepEqual(rec.kinds(), want) {
		t.Errorf("changes = %v, want %v", rec.kinds(), want)
	}
}

func TestStore_StreamingAppends(t *testing.T) {
	s := NewStore()
	if _, err := s.Begin("t1", segment.StatusStreaming); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, part := range []string{"What ", "is ", "RCA?"} {
		if err := s.AppendQuestion("t1", part); err != nil {
			t.Fatalf("AppendQuestion: %v", err)
		}
	}
	for _, part := range []string{"Root ", "cause"} {
		if err := s.AppendAnswer("t1", part); err != nil {
			t.Fatalf("AppendAnswer: %v", err)
		}
	}
	if err := s.Complete("t1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, _ := s.Get("t1")
	if got.Question != "What is RCA?" || got.Answer != "Root cause" {
		t.Errorf("unexpected fields: %+v", got)
	}
	if err := s.AppendAnswer("t1", "late"); !errors.Is(err, ErrTurnNotActive) {
		t.Errorf("expected ErrTurnNotActive after complete, got %v", err)
	}
}

func TestStore_SingleActiveTurn(t *testing.T) {
	s := NewStore()
	if _, err := s.Begin("t1", segment.StatusPending); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := s.Begin("t2", segment.StatusPending); !errors.Is(err, ErrActiveTurn) {
		t.Errorf("expected ErrActiveTurn, got %v", err)
	}
	if err := s.Complete("t1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := s.Begin("t1", segment.StatusPending); !errors.Is(err, ErrDuplicateTurn) {
		t.Errorf("expected ErrDuplicateTurn, got %v", err)
	}
	if _, err := s.Begin("t2", segment.StatusPending); err != nil {
		t.Errorf("Begin after complete: %v", err)
	}
}

func TestStore_DiscardRestoresHistory(t *testing.T) {
	s := NewStore()
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("t%d", i)
		s.Begin(id, segment.StatusPending)
		s.Resolve(id, "q", "a")
	}
	before := s.Turns()

	rec := &recorder{}
	s.Subscribe(rec.listen)

	s.Begin("t4", segment.StatusPending)
	if err := s.Discard("t4"); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	if !reflect.DeepEqual(s.Turns(), before) {
		t.Errorf("history changed after discard:\n got %+v\nwant %+v", s.Turns(), before)
	}
	if len(rec.changes) != 2 || rec.changes[1].Kind != ChangeRemoved || rec.changes[1].Index != 3 {
		t.Errorf("unexpected changes: %+v", rec.changes)
	}
	if rec.changes[1].Turn.Status != segment.StatusDiscarded {
		t.Errorf("removed turn status = %v", rec.changes[1].Turn.Status)
	}
	if err := s.Discard("t4"); !errors.Is(err, ErrTurnNotFound) {
		t.Errorf("second discard: expected ErrTurnNotFound, got %v", err)
	}
}

func TestStore_DiscardCompletedTurnRejected(t *testing.T) {
	s := NewStore()
	s.Begin("t1", segment.StatusPending)
	s.Complete("t1")
	if err := s.Discard("t1"); !errors.Is(err, ErrTurnNotActive) {
		t.Errorf("expected ErrTurnNotActive, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("completed turn must stay, len = %d", s.Len())
	}
}

func TestStore_UnsubscribeAndClear(t *testing.T) {
	s := NewStore()
	rec := &recorder{}
	unsub := s.Subscribe(rec.listen)

	s.Begin("t1", segment.StatusPending)
	s.Clear()
	unsub()
	s.Begin("t2", segment.StatusPending)

	want := []ChangeKind{ChangeAdded, ChangeCleared}
	if !reflect.DeepEqual(rec.kinds(), want) {
		t.Errorf("changes = %v, want %v", rec.kinds(), want)
	}
	if s.Len() != 1 {
		t.Errorf("expected only t2, len = %d", s.Len())
	}
}

func TestStore_Completed(t *testing.T) {
	s := NewStore()
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("t%d", i)
		s.Begin(id, segment.StatusPending)
		s.Resolve(id, id, "")
	}
	s.Begin("t6", segment.StatusPending)

	got := s.Completed(2)
	if len(got) != 2 || got[0].ID != "t4" || got[1].ID != "t5" {
		t.Errorf("Completed(2) = %+v", got)
	}
	if all := s.Completed(0); len(all) != 5 {
		t.Errorf("Completed(0) len = %d", len(all))
	}
}

func TestStore_ListenerMayReadStore(t *testing.T) {
	s := NewStore()
	var seen int
	s.Subscribe(func(Change) { seen = s.Len() })
	s.Begin("t1", segment.StatusPending)
	if seen != 1 {
		t.Errorf("listener saw len %d", seen)
	}
}

// Random interleavings of store operations must never leave two active turns.
func TestStore_RandomOpsKeepSingleActive(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := NewStore()
	s.Subscribe(func(Change) {
		active := 0
		for _, turn := range s.Turns() {
			if turn.Status.IsActive() {
				active++
			}
		}
		if active > 1 {
			t.Fatalf("%d active turns", active)
		}
	})

	n := 0
	for i := 0; i < 2000; i++ {
		cur, hasActive := s.Active()
		switch rng.Intn(5) {
		case 0:
			n++
			s.Begin(fmt.Sprintf("t%d", n), segment.StatusPending)
		case 1:
			if hasActive {
				s.AppendAnswer(cur.ID, "x")
			}
		case 2:
			if hasActive {
				s.Complete(cur.ID)
			}
		case 3:
			if hasActive {
				s.Discard(cur.ID)
			}
		case 4:
			s.AppendQuestion(fmt.Sprintf("t%d", rng.Intn(n+1)), "y")
		}
	}
}
