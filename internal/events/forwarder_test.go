package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"interview-copilot-service/internal/models"
	"interview-copilot-service/internal/observability/metrics"
	"interview-copilot-service/internal/service/copilot"
	"interview-copilot-service/internal/service/segment"
	"interview-copilot-service/internal/service/transcript"
)

type published struct {
	final  bool
	key    string
	event  models.TurnEvent
	status *models.StatusEvent
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	block  chan struct{}
	err    error
}

func (f *fakePublisher) record(final bool, key string, event any) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := published{final: final, key: key}
	switch ev := event.(type) {
	case models.TurnEvent:
		p.event = ev
	case models.StatusEvent:
		p.status = &ev
	}
	f.events = append(f.events, p)
	return f.err
}

func (f *fakePublisher) PublishUpdate(ctx context.Context, key string, event any) error {
	return f.record(false, key, event)
}

func (f *fakePublisher) PublishFinal(ctx context.Context, key string, event any) error {
	return f.record(true, key, event)
}

func (f *fakePublisher) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.events...)
}

func TestForwarder_PublishesTurnLifecycle(t *testing.T) {
	pub := &fakePublisher{}
	f := NewForwarder(ForwarderConfig{
		Publisher: pub,
		SessionID: func() string { return "sess" },
		Principal: "svc-test",
		Metrics:   metrics.NewMetrics(nil),
	})
	store := transcript.NewStore()
	f.Attach(store)

	store.Begin("sess-turn-1", segment.StatusPending)
	store.Resolve("sess-turn-1", "What is RCA?", "Root cause analysis.")
	store.Begin("sess-turn-2", segment.StatusPending)
	store.Discard("sess-turn-2")
	store.Clear()
	f.Close()

	got := pub.all()
	want := []struct {
		eventType string
		final     bool
	}{
		{models.EventTurnUpdated, false},
		{models.EventTurnCompleted, true},
		{models.EventTurnUpdated, false},
		{models.EventTurnRemoved, false},
		{models.EventTranscriptCleared, false},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].event.EventType != w.eventType || got[i].final != w.final {
			t.Errorf("event %d: got %s final=%v, want %s final=%v", i, got[i].event.EventType, got[i].final, w.eventType, w.final)
		}
		if got[i].key != "sess" || got[i].event.Principal != "svc-test" {
			t.Errorf("event %d: unexpected key/principal %q/%q", i, got[i].key, got[i].event.Principal)
		}
	}

	final := got[1].event
	if final.TurnID != "sess-turn-1" || final.Question != "What is RCA?" || final.Status != "complete" {
		t.Errorf("unexpected final event %+v", final)
	}
}

func TestForwarder_DropsInvalidEvents(t *testing.T) {
	pub := &fakePublisher{}
	// No session ID makes every event invalid.
	f := NewForwarder(ForwarderConfig{Publisher: pub, Metrics: metrics.NewMetrics(nil)})
	store := transcript.NewStore()
	f.Attach(store)

	store.Begin("t1", segment.StatusPending)
	f.Close()

	if n := len(pub.all()); n != 0 {
		t.Errorf("expected invalid events to be dropped, got %d", n)
	}
}

func TestForwarder_BufferFullDrops(t *testing.T) {
	m := metrics.NewMetrics(nil)
	pub := &fakePublisher{block: make(chan struct{})}
	f := NewForwarder(ForwarderConfig{
		Publisher: pub,
		SessionID: func() string { return "sess" },
		Buffer:    1,
		Metrics:   m,
	})
	store := transcript.NewStore()
	f.Attach(store)

	store.Begin("t1", segment.StatusStreaming)
	for i := 0; i < 5; i++ {
		store.AppendQuestion("t1", "x")
	}
	close(pub.block)
	f.Close()

	if testutil.ToFloat64(m.LimitExceeded.WithLabelValues("event_buffer")) == 0 {
		t.Error("expected dropped events to be counted")
	}
	if n := len(pub.all()); n >= 6 {
		t.Errorf("expected some events dropped, got %d", n)
	}
}

func TestForwarder_PublishErrorsDoNotStop(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	f := NewForwarder(ForwarderConfig{Publisher: pub, SessionID: func() string { return "sess" }, Metrics: metrics.NewMetrics(nil)})
	store := transcript.NewStore()
	f.Attach(store)

	store.Begin("t1", segment.StatusPending)
	store.Resolve("t1", "Q", "A")
	f.Close()

	if n := len(pub.all()); n != 2 {
		t.Errorf("expected both events attempted, got %d", n)
	}
}

func TestForwarder_CloseIsIdempotent(t *testing.T) {
	f := NewForwarder(ForwarderConfig{Publisher: &fakePublisher{}, Metrics: metrics.NewMetrics(nil)})
	store := transcript.NewStore()
	f.Attach(store)
	f.Close()
	f.Close()

	// Changes after close are ignored.
	store.Begin("t1", segment.StatusPending)
}

func TestForwarder_ForwardsStatus(t *testing.T) {
	pub := &fakePublisher{}
	f := NewForwarder(ForwarderConfig{Publisher: pub, Metrics: metrics.NewMetrics(nil)})

	f.ForwardStatus(copilot.Status{
		SessionID: "sess",
		State:     copilot.StateError,
		Text:      copilot.TextIdle,
		Mode:      copilot.ModeBatch,
		Error:     "no audio track",
		ErrorKind: "source_unavailable",
	})
	// A status without a state is invalid.
	f.ForwardStatus(copilot.Status{SessionID: "sess"})
	f.Close()

	got := pub.all()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	st := got[0].status
	if st == nil || got[0].final || got[0].key != "sess" {
		t.Fatalf("unexpected publish %+v", got[0])
	}
	if st.EventType != models.EventSessionStatus || st.State != "error" || st.ErrorKind != "source_unavailable" || st.Mode != "batch" {
		t.Errorf("unexpected status event %+v", st)
	}
}
