package copilot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"interview-copilot-service/internal/audio"
	"interview-copilot-service/internal/observability/logging"
	"interview-copilot-service/internal/observability/metrics"
	"interview-copilot-service/internal/queue"
	"interview-copilot-service/internal/service/ai"
	"interview-copilot-service/internal/service/segment"
	"interview-copilot-service/internal/service/transcript"
)

// BoundaryPolicy decides what happens to a boundary that fires while a
// submission is outstanding.
type BoundaryPolicy string

const (
	PolicyDrop  BoundaryPolicy = "drop"
	PolicyQueue BoundaryPolicy = "queue"
)

// ParseBoundaryPolicy parses a policy name.
func ParseBoundaryPolicy(s string) (BoundaryPolicy, error) {
	switch BoundaryPolicy(s) {
	case PolicyDrop, PolicyQueue:
		return BoundaryPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown boundary policy %q", s)
	}
}

// TurnLimits bounds the resources one turn may consume.
type TurnLimits struct {
	MaxTurnDuration time.Duration // buffered audio per turn; oldest audio is dropped beyond it (0 = unbounded)
	MaxDeltas       int           // streaming text appends per turn; excess is ignored (0 = unbounded)
}

// DefaultTurnLimits returns sensible default limits.
func DefaultTurnLimits() TurnLimits {
	return TurnLimits{
		MaxTurnDuration: 2 * time.Minute,
		MaxDeltas:       2000,
	}
}

// Config tunes a session.
type Config struct {
	Monitor    audio.MonitorConfig
	Segmenter  segment.SegmenterConfig
	Policy     BoundaryPolicy
	QueueDepth int // PolicyQueue capacity (0 = unbounded)
	MaxHistory int // completed exchanges passed to batch analysis (0 = none)
	Limits     TurnLimits

	// DrainOnEnd cuts the buffered turn when the audio track ends and waits
	// for outstanding batch results before tearing down. Used for file replay.
	DrainOnEnd bool

	EventBuffer int
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Monitor:     audio.DefaultMonitorConfig(),
		Segmenter:   segment.DefaultSegmenterConfig(),
		Policy:      PolicyDrop,
		QueueDepth:  1,
		MaxHistory:  10,
		Limits:      DefaultTurnLimits(),
		EventBuffer: 64,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter: %w", err)
	}
	if _, err := ParseBoundaryPolicy(string(c.Policy)); err != nil {
		return err
	}
	if c.QueueDepth < 0 {
		return fmt.Errorf("queue depth must be >= 0, got %d", c.QueueDepth)
	}
	if c.MaxHistory < 0 {
		return fmt.Errorf("max history must be >= 0, got %d", c.MaxHistory)
	}
	if c.Limits.MaxTurnDuration < 0 || c.Limits.MaxDeltas < 0 {
		return errors.New("turn limits must be >= 0")
	}
	return nil
}

// Option configures a Session.
type Option func(*Session)

// WithMetrics sets the metrics sink. Defaults to metrics.DefaultMetrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithSessionIDs overrides session ID generation.
func WithSessionIDs(next func() string) Option {
	return func(s *Session) { s.newID = next }
}

// Session is the turn lifecycle controller. Each run owns one event loop
// goroutine; audio samples, backend results, remote callbacks and user
// intents are all serialized through it, so transcript mutations never race.
type Session struct {
	cfg     Config
	backend Backend
	store   *transcript.Store
	ids     *segment.Generator
	metrics *metrics.Metrics
	newID   func() string

	mu        sync.Mutex
	run       *run
	status    Status
	lastErr   error
	listeners map[int]func(Status)
	nextSub   int
}

// NewSession creates an idle session driving backend and writing to store.
func NewSession(cfg Config, backend Backend, store *transcript.Store, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, errors.New("copilot: backend is required")
	}
	if store == nil {
		return nil, errors.New("copilot: transcript store is required")
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	s := &Session{
		cfg:       cfg,
		backend:   backend,
		store:     store,
		ids:       segment.New(),
		metrics:   metrics.DefaultMetrics,
		newID:     uuid.NewString,
		listeners: make(map[int]func(Status)),
		status:    Status{State: StateIdle, Text: TextIdle, Mode: backend.Mode()},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Store returns the transcript the session writes to.
func (s *Session) Store() *transcript.Store {
	return s.store
}

// Mode returns the backend submission model.
func (s *Session) Mode() Mode {
	return s.backend.Mode()
}

type sampleEvent struct{ sample audio.Sample }
type trackEnded struct{ err error }
type flushRequest struct{ reply chan error }

func (sampleEvent) event()  {}
func (trackEnded) event()   {}
func (flushRequest) event() {}

// run is the state of one Start..teardown cycle. Fields below the channels
// are owned by the event loop goroutine.
type run struct {
	id      string
	log     zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	source  audio.Source
	started time.Time

	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
	readers  sync.WaitGroup

	seg        *segment.Segmenter
	pending    *queue.Queue[*segment.Boundary]
	activeTurn string
	inFlight   bool
	deltas     int
	overLimit  bool
	trimmed    uint64
	draining   bool
}

// Dispatch implements Dispatcher.
func (r *run) Dispatch(e Event) bool {
	select {
	case <-r.quit:
		return false
	default:
	}
	select {
	case r.events <- e:
		return true
	case <-r.quit:
		return false
	}
}

// Start begins a run on the first audio track of source. It fails fast with
// ErrSourceUnavailable if the source has no audio track, releasing the source.
func (s *Session) Start(ctx context.Context, source audio.Source) error {
	if source == nil {
		return fmt.Errorf("%w: no source", ErrSourceUnavailable)
	}

	logger := logging.WithComponent("copilot")
	releaseSource := func() {
		if err := source.Stop(); err != nil {
			logger.Warn().Err(err).Msg("Failed to stop audio source")
		}
	}

	s.mu.Lock()
	if s.run != nil {
		s.mu.Unlock()
		return ErrSessionActive
	}
	tracks := source.AudioTracks()
	if len(tracks) == 0 {
		s.mu.Unlock()
		releaseSource()
		err := fmt.Errorf("%w: no audio track, share a tab with audio", ErrSourceUnavailable)
		s.fail(err)
		return err
	}

	monitor, err := audio.NewMonitor(s.cfg.Monitor)
	if err != nil {
		s.mu.Unlock()
		releaseSource()
		return err
	}
	segCfg := s.cfg.Segmenter
	if s.cfg.Limits.MaxTurnDuration > 0 && segCfg.MaxTurnFrames == 0 {
		segCfg.MaxTurnFrames = int(s.cfg.Limits.MaxTurnDuration / s.cfg.Monitor.Cadence())
		if segCfg.MaxTurnFrames < segCfg.MinTurnFrames {
			segCfg.MaxTurnFrames = segCfg.MinTurnFrames
		}
	}
	seg, err := segment.NewSegmenter(segCfg)
	if err != nil {
		s.mu.Unlock()
		releaseSource()
		return err
	}

	id := s.newID()
	r := &run{
		id:      id,
		log:     logging.WithSession(id, string(s.backend.Mode())),
		source:  source,
		started: time.Now(),
		events:  make(chan Event, s.cfg.EventBuffer),
		stop:    make(chan struct{}),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		seg:     seg,
		pending: queue.NewBounded[*segment.Boundary](s.cfg.QueueDepth),
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	s.run = r
	s.lastErr = nil
	s.mu.Unlock()

	s.update(func(st *Status) {
		*st = Status{SessionID: id, State: StateStarting, Text: TextStarting, Mode: s.backend.Mode()}
	})
	if err := s.backend.Open(r.ctx, r); err != nil {
		r.log.Error().Err(err).Str("backend", s.backend.Name()).Msg("Failed to open backend")
		close(r.quit)
		r.cancel()
		if stopErr := source.Stop(); stopErr != nil {
			r.log.Warn().Err(stopErr).Msg("Failed to stop source")
		}
		s.backend.Close()
		s.mu.Lock()
		s.run = nil
		s.mu.Unlock()
		close(r.done)
		s.fail(err)
		return err
	}

	// A new run starts a fresh transcript. Events from the backend queue up
	// until the loop starts below.
	s.store.Clear()

	s.metrics.RecordSessionStart()
	r.log.Info().
		Str("backend", s.backend.Name()).
		Int("tracks", len(tracks)).
		Dur("cadence", s.cfg.Monitor.Cadence()).
		Msg("Copilot session started")

	s.update(func(st *Status) {
		st.State = StateListening
		st.Text = TextListening
	})

	r.readers.Add(1)
	go s.read(r, monitor, tracks[0])
	go s.loop(r)
	return nil
}

// Stop tears the current run down and waits for it. Calling Stop with no
// run in progress is a no-op. Must not be called from a status listener.
func (s *Session) Stop() error {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	r.stopOnce.Do(func() { close(r.stop) })
	// Cancelling unblocks a loop stuck in a backend call.
	r.cancel()
	<-r.done
	return nil
}

// Flush ends the current batch turn immediately, as if the silence timer
// had fired.
func (s *Session) Flush() error {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return ErrNotRunning
	}
	reply := make(chan error, 1)
	if !r.Dispatch(flushRequest{reply: reply}) {
		return ErrNotRunning
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return ErrNotRunning
	}
}

// Status returns the current status snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// OnStatus registers a status listener and returns a function removing it.
// Listeners run on the session goroutine and must not block.
func (s *Session) OnStatus(fn func(Status)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Done returns a channel closed when the current run has been torn down.
// With no run in progress the channel is already closed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return s.run.done
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Err returns the terminal error of the last run, nil if it ended cleanly.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) read(r *run, monitor *audio.Monitor, track audio.Track) {
	defer r.readers.Done()
	err := monitor.Run(r.ctx, track, func(smp audio.Sample) bool {
		return r.Dispatch(sampleEvent{sample: smp})
	})
	if r.ctx.Err() != nil {
		return
	}
	r.Dispatch(trackEnded{err: err})
}

func (s *Session) loop(r *run) {
	for {
		select {
		case <-r.stop:
			r.log.Info().Msg("Stop requested")
			s.teardown(r, nil)
			return
		case <-r.ctx.Done():
			r.log.Info().Msg("Session context cancelled")
			s.teardown(r, nil)
			return
		case e := <-r.events:
			if end, cause := s.handle(r, e); end {
				s.teardown(r, cause)
				return
			}
		}
	}
}

// handle applies one event. It reports whether the run must end.
func (s *Session) handle(r *run, e Event) (bool, error) {
	switch ev := e.(type) {
	case sampleEvent:
		return s.onSample(r, ev.sample)
	case trackEnded:
		return s.onTrackEnded(r, ev.err)
	case flushRequest:
		ev.reply <- s.onFlush(r)
	case AnalysisResult:
		s.onResult(r, ev)
		return s.drained(r), nil
	case InputText:
		s.onInput(r, ev.Text)
	case OutputText:
		s.onOutput(r, ev.Text)
	case TurnComplete:
		s.onTurnComplete(r)
	case SessionError:
		r.log.Error().Err(ev.Err).Msg("Live session error")
		return true, fmt.Errorf("%w: %w", ErrTransport, ev.Err)
	case SessionClosed:
		r.log.Info().Msg("Live session closed by remote")
		return true, nil
	default:
		r.log.Warn().Str("event", fmt.Sprintf("%T", e)).Msg("Unknown event")
	}
	return false, nil
}

func (s *Session) onSample(r *run, smp audio.Sample) (bool, error) {
	speaking := r.seg.Speaking(smp.Level)
	s.metrics.RecordFrame(smp.Frame.Duration().Seconds(), smp.Level)
	s.refresh(r, func(st *Status) {
		st.Level = smp.Level
		st.Speaking = speaking
	})

	if s.backend.Mode() == ModeStreaming {
		if err := s.backend.Forward(r.ctx, smp.Frame); err != nil {
			if r.ctx.Err() != nil {
				return true, nil
			}
			r.log.Error().Err(err).Msg("Failed to forward audio")
			return true, err
		}
		return false, nil
	}

	b, out := r.seg.Observe(smp.Frame, smp.Level, r.inFlight)
	if _, _, trimmed := r.seg.Stats(); trimmed > r.trimmed {
		if r.trimmed == 0 {
			r.log.Warn().Dur("maxTurnDuration", s.cfg.Limits.MaxTurnDuration).Msg("Turn buffer full, dropping oldest audio")
		}
		s.metrics.RecordLimitExceeded("max_turn_duration")
		r.trimmed = trimmed
	}
	switch out {
	case segment.OutcomeBoundary:
		s.onBoundary(r, b)
	case segment.OutcomeDiscarded:
		s.metrics.RecordBoundary("too_short")
		r.log.Debug().Msg("Turn shorter than minimum, discarded")
	}
	return false, nil
}

func (s *Session) onTrackEnded(r *run, err error) (bool, error) {
	if err != nil {
		r.log.Error().Err(err).Msg("Audio track failed")
		return true, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	r.log.Info().Msg("Audio track ended")
	if !s.cfg.DrainOnEnd || s.backend.Mode() != ModeBatch {
		return true, nil
	}
	r.draining = true
	if b, out := r.seg.Cut(); out == segment.OutcomeBoundary {
		s.onBoundary(r, b)
	}
	return s.drained(r), nil
}

func (s *Session) drained(r *run) bool {
	return r.draining && !r.inFlight && r.pending.IsEmpty()
}

func (s *Session) onFlush(r *run) error {
	if s.backend.Mode() != ModeBatch {
		return ErrUnsupported
	}
	b, out := r.seg.Cut()
	if out != segment.OutcomeBoundary {
		s.metrics.RecordBoundary("too_short")
		return nil
	}
	s.onBoundary(r, b)
	return nil
}

func (s *Session) onBoundary(r *run, b *segment.Boundary) {
	if !r.inFlight {
		s.submit(r, b)
		return
	}
	if s.cfg.Policy == PolicyQueue {
		if r.pending.Enqueue(b) {
			s.metrics.RecordBoundary("queued")
			r.log.Debug().Int("queued", r.pending.Len()).Msg("Submission in flight, boundary queued")
			return
		}
		s.metrics.RecordLimitExceeded("queue_depth")
	}
	s.metrics.RecordBoundary("dropped")
	r.log.Warn().Dur("audio", b.Duration).Msg("Submission in flight, boundary dropped")
}

func (s *Session) submit(r *run, b *segment.Boundary) {
	id := s.ids.Next(r.id)
	tlog := logging.WithTurn(r.id, id)
	if _, err := s.store.Begin(id, segment.StatusPending); err != nil {
		tlog.Error().Err(err).Msg("Failed to begin turn")
		s.metrics.RecordBoundary("dropped")
		return
	}
	s.metrics.RecordTurnCreated(string(ModeBatch))

	var history []ai.Exchange
	if s.cfg.MaxHistory > 0 {
		for _, t := range s.store.Completed(s.cfg.MaxHistory) {
			history = append(history, ai.Exchange{Question: t.Question, Answer: t.Answer})
		}
	}

	err := s.backend.Submit(r.ctx, TurnRequest{TurnID: id, Boundary: b, History: history})
	if err != nil {
		tlog.Error().Err(err).Msg("Failed to submit turn")
		s.store.Discard(id)
		s.metrics.RecordTurnDiscarded("submit_failed")
		s.refresh(r, func(st *Status) {
			st.Error = err.Error()
			st.ErrorKind = ErrorKind(err)
		})
		return
	}

	r.activeTurn = id
	r.inFlight = true
	s.metrics.RecordBoundary("submitted")
	tlog.Info().
		Int("frames", len(b.Frames)).
		Dur("audio", b.Duration).
		Bool("forced", b.Forced).
		Int("history", len(history)).
		Msg("Turn submitted")
	s.refresh(r, nil)
}

func (s *Session) onResult(r *run, res AnalysisResult) {
	tlog := logging.WithTurn(r.id, res.TurnID)
	if !r.inFlight || res.TurnID != r.activeTurn {
		ev := tlog.Warn().Str("activeTurn", r.activeTurn)
		if _, n, ok := segment.Sequence(res.TurnID); ok {
			ev = ev.Uint64("turnSeq", n)
		}
		ev.Msg("Stale result, ignoring")
		s.metrics.RecordStaleResult()
		return
	}
	r.inFlight = false
	r.activeTurn = ""
	s.metrics.RecordBackendLatency(s.backend.Name(), res.Latency.Seconds())

	switch {
	case res.Err != nil:
		kind := ErrorKind(res.Err)
		tlog.Error().Err(res.Err).Str("kind", kind).Dur("latency", res.Latency).Msg("Turn analysis failed")
		s.store.Discard(res.TurnID)
		s.metrics.RecordTurnDiscarded(kind)
		s.metrics.RecordBackendError(s.backend.Name(), kind)
		s.refresh(r, func(st *Status) {
			st.Error = res.Err.Error()
			st.ErrorKind = kind
		})
	case res.Analysis.IsNoQuestion():
		tlog.Info().Dur("latency", res.Latency).Msg("No question detected, turn discarded")
		s.store.Discard(res.TurnID)
		s.metrics.RecordTurnDiscarded("no_question")
		s.refresh(r, nil)
	default:
		if err := s.store.Resolve(res.TurnID, res.Analysis.Question, res.Analysis.Answer); err != nil {
			tlog.Error().Err(err).Msg("Failed to resolve turn")
		} else {
			s.metrics.RecordTurnCompleted(string(ModeBatch))
			tlog.Info().Dur("latency", res.Latency).Msg("Turn complete")
		}
		s.refresh(r, func(st *Status) {
			st.Error = ""
			st.ErrorKind = ""
		})
	}

	if b, ok := r.pending.Dequeue(); ok {
		s.submit(r, b)
	}
}

func (s *Session) onInput(r *run, text string) {
	if r.activeTurn == "" {
		id := s.ids.Next(r.id)
		if _, err := s.store.Begin(id, segment.StatusStreaming); err != nil {
			tlog := logging.WithTurn(r.id, id)
			tlog.Error().Err(err).Msg("Failed to begin turn")
			return
		}
		r.activeTurn = id
		r.deltas = 0
		r.overLimit = false
		s.metrics.RecordTurnCreated(string(ModeStreaming))
	}
	if !s.allowDelta(r) {
		return
	}
	if err := s.store.AppendQuestion(r.activeTurn, text); err != nil {
		tlog := logging.WithTurn(r.id, r.activeTurn)
		tlog.Error().Err(err).Msg("Failed to append question")
	}
}

func (s *Session) onOutput(r *run, text string) {
	if r.activeTurn == "" {
		r.log.Debug().Msg("Answer text without an active turn, ignoring")
		return
	}
	if !s.allowDelta(r) {
		return
	}
	if err := s.store.AppendAnswer(r.activeTurn, text); err != nil {
		tlog := logging.WithTurn(r.id, r.activeTurn)
		tlog.Error().Err(err).Msg("Failed to append answer")
	}
}

func (s *Session) allowDelta(r *run) bool {
	limit := s.cfg.Limits.MaxDeltas
	if limit <= 0 || r.deltas < limit {
		r.deltas++
		return true
	}
	if !r.overLimit {
		r.overLimit = true
		tlog := logging.WithTurn(r.id, r.activeTurn)
		tlog.Warn().Int("maxDeltas", limit).Msg("Turn text limit reached, ignoring further text")
	}
	s.metrics.RecordLimitExceeded("max_deltas")
	return false
}

func (s *Session) onTurnComplete(r *run) {
	if r.activeTurn == "" {
		return
	}
	id := r.activeTurn
	r.activeTurn = ""
	tlog := logging.WithTurn(r.id, id)
	if err := s.store.Complete(id); err != nil {
		tlog.Error().Err(err).Msg("Failed to complete turn")
		return
	}
	s.metrics.RecordTurnCompleted(string(ModeStreaming))
	tlog.Info().Int("deltas", r.deltas).Msg("Turn complete")
}

// teardown releases the source and the backend, settles the active turn and
// publishes the terminal status. It runs exactly once per run.
func (s *Session) teardown(r *run, cause error) {
	close(r.quit)
	r.cancel()
	if err := r.source.Stop(); err != nil {
		r.log.Warn().Err(err).Msg("Failed to stop audio source")
	}
	if err := s.backend.Close(); err != nil {
		r.log.Warn().Err(err).Msg("Failed to close backend")
	}
	r.readers.Wait()
	r.seg.Reset()
	r.pending.Clear()
	s.settleActive(r)

	kind := ErrorKind(cause)
	s.metrics.RecordSessionEnd(kind, time.Since(r.started).Seconds())
	if cause != nil {
		r.log.Error().Err(cause).Str("kind", kind).Dur("duration", time.Since(r.started)).Msg("Copilot session failed")
	} else {
		r.log.Info().Dur("duration", time.Since(r.started)).Int("turns", s.store.Len()).Msg("Copilot session ended")
	}

	s.mu.Lock()
	s.run = nil
	s.lastErr = cause
	s.mu.Unlock()

	s.update(func(st *Status) {
		st.Level = 0
		st.Speaking = false
		st.Text = TextEnded
		st.State = StateEnded
		st.Error = ""
		st.ErrorKind = ""
		if cause != nil {
			st.State = StateError
			st.Error = cause.Error()
			st.ErrorKind = kind
		}
	})
	close(r.done)
}

// settleActive resolves the active turn on teardown: a pending batch turn is
// discarded, a streaming turn that already shows text is kept as complete.
func (s *Session) settleActive(r *run) {
	if r.activeTurn == "" {
		return
	}
	id := r.activeTurn
	r.activeTurn = ""
	r.inFlight = false

	if t, ok := s.store.Get(id); ok && s.backend.Mode() == ModeStreaming && (t.Question != "" || t.Answer != "") {
		if err := s.store.Complete(id); err == nil {
			s.metrics.RecordTurnCompleted(string(ModeStreaming))
		}
		return
	}
	if err := s.store.Discard(id); err == nil {
		s.metrics.RecordTurnDiscarded("teardown")
	}
}

// refresh recomputes the run state after fn and notifies listeners when
// anything but the level changed.
func (s *Session) refresh(r *run, fn func(*Status)) {
	s.apply(func(st *Status) {
		if fn != nil {
			fn(st)
		}
		st.Text = TextListening
		switch {
		case r.inFlight:
			st.State = StateAnalyzing
			st.Text = TextAnalyzing
		case st.Speaking:
			st.State = StateSpeaking
		default:
			st.State = StateListening
		}
	}, false)
}

// update applies fn and always notifies.
func (s *Session) update(fn func(*Status)) {
	s.apply(fn, true)
}

func (s *Session) apply(fn func(*Status), force bool) {
	s.mu.Lock()
	before := s.status
	fn(&s.status)
	after := s.status
	var ls []func(Status)
	if force || statusChanged(before, after) {
		ls = make([]func(Status), 0, len(s.listeners))
		for _, l := range s.listeners {
			ls = append(ls, l)
		}
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(after)
	}
}

func statusChanged(a, b Status) bool {
	a.Level, b.Level = 0, 0
	return a != b
}

// fail publishes a start failure.
func (s *Session) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.update(func(st *Status) {
		*st = Status{
			State:     StateError,
			Text:      TextIdle,
			Mode:      s.backend.Mode(),
			Error:     err.Error(),
			ErrorKind: ErrorKind(err),
		}
	})
}
