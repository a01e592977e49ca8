package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"interview-copilot-service/internal/models"
	"interview-copilot-service/internal/observability/logging"
	"interview-copilot-service/internal/observability/metrics"
	"interview-copilot-service/internal/schema"
	"interview-copilot-service/internal/service/copilot"
	"interview-copilot-service/internal/service/segment"
	"interview-copilot-service/internal/service/transcript"
)

// TurnPublisher is the sink a Forwarder writes to.
type TurnPublisher interface {
	PublishUpdate(ctx context.Context, key string, event any) error
	PublishFinal(ctx context.Context, key string, event any) error
}

// DefaultForwarderBuffer is the number of events held while publishing lags.
const DefaultForwarderBuffer = 256

// ForwarderConfig configures a Forwarder.
type ForwarderConfig struct {
	Publisher TurnPublisher
	Validator *schema.Validator
	// SessionID returns the current session, used as the message key.
	SessionID func() string
	Principal string
	Buffer    int
	Timeout   time.Duration
	Metrics   *metrics.Metrics
}

// Forwarder turns transcript changes into turn events and publishes them off
// the session goroutine. Events are dropped, not blocked on, when the buffer
// is full.
type Forwarder struct {
	cfg    ForwarderConfig
	log    zerolog.Logger
	queue  chan outbound
	done   chan struct{}
	mu     sync.Mutex
	closed bool
	unsub  func()
	now    func() time.Time
}

// NewForwarder creates a forwarder and starts its publishing goroutine.
func NewForwarder(cfg ForwarderConfig) *Forwarder {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultForwarderBuffer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Validator == nil {
		cfg.Validator = schema.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}
	if cfg.SessionID == nil {
		cfg.SessionID = func() string { return "" }
	}
	f := &Forwarder{
		cfg:   cfg,
		log:   logging.WithComponent("events"),
		queue: make(chan outbound, cfg.Buffer),
		done:  make(chan struct{}),
		now:   time.Now,
	}
	go f.run()
	return f
}

// Attach subscribes the forwarder to store. Only one store is attached at a time.
func (f *Forwarder) Attach(store *transcript.Store) {
	unsub := store.Subscribe(f.handle)
	f.mu.Lock()
	prev := f.unsub
	f.unsub = unsub
	f.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// Close detaches from the store and waits for queued events to be published.
func (f *Forwarder) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		<-f.done
		return
	}
	f.closed = true
	unsub := f.unsub
	f.unsub = nil
	close(f.queue)
	f.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	<-f.done
}

// outbound is one queued event.
type outbound struct {
	final     bool
	key       string
	eventType string
	turnID    string
	event     any
}

func (f *Forwarder) handle(ch transcript.Change) {
	ev := f.toEvent(ch)
	if err := f.cfg.Validator.Validate(ev); err != nil {
		f.log.Warn().Err(err).Str("turnId", ev.TurnID).Msg("Dropping invalid turn event")
		return
	}
	f.enqueue(outbound{
		final:     ev.EventType == models.EventTurnCompleted,
		key:       ev.SessionID,
		eventType: ev.EventType,
		turnID:    ev.TurnID,
		event:     ev,
	})
}

// ForwardStatus publishes a session status change to the updates topic.
// It never blocks, so it can be registered as a session status listener.
func (f *Forwarder) ForwardStatus(st copilot.Status) {
	ev := models.StatusEvent{
		EventType: models.EventSessionStatus,
		SessionID: st.SessionID,
		Timestamp: f.now().UnixMilli(),
		State:     string(st.State),
		Text:      st.Text,
		Mode:      string(st.Mode),
		Level:     st.Level,
		Speaking:  st.Speaking,
		Error:     st.Error,
		ErrorKind: st.ErrorKind,
	}
	if err := f.cfg.Validator.Validate(ev); err != nil {
		f.log.Warn().Err(err).Msg("Dropping invalid status event")
		return
	}
	f.enqueue(outbound{key: ev.SessionID, eventType: ev.EventType, event: ev})
}

func (f *Forwarder) enqueue(o outbound) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.queue <- o:
	default:
		f.cfg.Metrics.RecordLimitExceeded("event_buffer")
		f.log.Warn().Str("eventType", o.eventType).Str("turnId", o.turnID).Msg("Event buffer full, dropping event")
	}
}

func (f *Forwarder) toEvent(ch transcript.Change) models.TurnEvent {
	ev := models.TurnEvent{
		SessionID: f.cfg.SessionID(),
		Principal: f.cfg.Principal,
		Timestamp: f.now().UnixMilli(),
		Index:     ch.Index,
	}
	if ch.Kind == transcript.ChangeCleared {
		ev.EventType = models.EventTranscriptCleared
		ev.Index = 0
		return ev
	}

	ev.TurnID = ch.Turn.ID
	ev.Question = ch.Turn.Question
	ev.Answer = ch.Turn.Answer
	ev.Status = ch.Turn.Status.String()
	switch {
	case ch.Kind == transcript.ChangeRemoved:
		ev.EventType = models.EventTurnRemoved
	case ch.Turn.Status == segment.StatusComplete:
		ev.EventType = models.EventTurnCompleted
	default:
		ev.EventType = models.EventTurnUpdated
	}
	return ev
}

func (f *Forwarder) run() {
	defer close(f.done)
	for o := range f.queue {
		ctx, cancel := context.WithTimeout(context.Background(), f.cfg.Timeout)
		var err error
		if o.final {
			err = f.cfg.Publisher.PublishFinal(ctx, o.key, o.event)
		} else {
			err = f.cfg.Publisher.PublishUpdate(ctx, o.key, o.event)
		}
		cancel()
		if err != nil {
			f.log.Error().Err(err).Str("turnId", o.turnID).Str("eventType", o.eventType).Msg("Failed to publish event")
		}
	}
}
