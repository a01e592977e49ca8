// Package mock provides scripted AI collaborators for running the copilot
// without cloud credentials. The analyzer cycles through canned answers and
// the live session emits a full exchange every few audio chunks.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"interview-copilot-service/internal/audio"
	"interview-copilot-service/internal/queue"
	"interview-copilot-service/internal/service/ai"
)

// Response is one scripted batch reply.
type Response struct {
	Analysis ai.Analysis
	Err      error
	Delay    time.Duration // simulated processing time
}

// DefaultResponses provides sample replies for simulation.
var DefaultResponses = []Response{
	{Analysis: ai.Analysis{
		Question: "Can you tell me about yourself?",
		Answer:   "I'm an operations and maintenance engineer focused on solar plants, SCADA monitoring and root cause analysis.",
	}},
	{Analysis: ai.Analysis{Question: ai.NoQuestion}},
	{Analysis: ai.Analysis{
		Question: "What is RCA?",
		Answer:   "Root cause analysis is a structured method for finding the underlying cause of a failure so it does not recur.",
	}},
	{Analysis: ai.Analysis{
		Question: "How do you handle an inverter trip?",
		Answer:   "I isolate the inverter safely, check the SCADA alarm log, inspect AC and DC sides, then restore and document the RCA.",
	}},
}

// Call records one AnalyzeAudioTurn invocation.
type Call struct {
	AudioBytes int
	MimeType   string
	History    []ai.Exchange
}

// Analyzer implements ai.Analyzer with scripted responses.
type Analyzer struct {
	mu        sync.Mutex
	responses []Response
	next      int
	calls     []Call
}

// NewAnalyzer creates an analyzer replying with responses in order, cycling.
// No responses selects DefaultResponses.
func NewAnalyzer(responses ...Response) *Analyzer {
	if len(responses) == 0 {
		responses = DefaultResponses
	}
	return &Analyzer{responses: responses}
}

// AnalyzeAudioTurn returns the next scripted response.
func (a *Analyzer) AnalyzeAudioTurn(ctx context.Context, data []byte, mimeType string, history []ai.Exchange) (ai.Analysis, error) {
	a.mu.Lock()
	resp := a.responses[a.next%len(a.responses)]
	a.next++
	a.calls = append(a.calls, Call{
		AudioBytes: len(data),
		MimeType:   mimeType,
		History:    append([]ai.Exchange(nil), history...),
	})
	a.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return ai.Analysis{}, ctx.Err()
		}
	}
	if resp.Err != nil {
		return ai.Analysis{}, resp.Err
	}
	return resp.Analysis, nil
}

// Calls returns the recorded invocations.
func (a *Analyzer) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

// Answerer implements ai.Answerer, streaming a fixed answer word by word.
type Answerer struct {
	Answer string
}

// StreamAnswer emits the answer one word at a time.
func (a Answerer) StreamAnswer(ctx context.Context, question string, history []ai.Exchange, onDelta func(string)) error {
	words := strings.SplitAfter(a.Answer, " ")
	for _, w := range words {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w != "" {
			onDelta(w)
		}
	}
	return nil
}

// Utterance is one scripted live exchange.
type Utterance struct {
	Input  []string // incremental interviewer transcript
	Output []string // incremental answer
}

// DefaultUtterances provides sample live exchanges.
var DefaultUtterances = []Utterance{
	{
		Input:  []string{"Can you", " walk me through", " your last role?"},
		Output: []string{"In my last role", " I ran O&M", " for a 154 MW plant."},
	},
	{
		Input:  []string{"What is", " RCA?"},
		Output: []string{"Root cause analysis", " finds the underlying", " cause of a failure."},
	},
}

// DefaultChunksPerUtterance is the number of audio chunks after which the
// mock session emits the next exchange.
const DefaultChunksPerUtterance = 16

// Connector implements ai.LiveConnector with scripted sessions.
type Connector struct {
	Utterances         []Utterance
	ChunksPerUtterance int
	OpenErr            error

	mu       sync.Mutex
	sessions []*Session
}

// NewConnector creates a connector using DefaultUtterances.
func NewConnector() *Connector {
	return &Connector{
		Utterances:         DefaultUtterances,
		ChunksPerUtterance: DefaultChunksPerUtterance,
	}
}

// OpenLiveSession starts a mock live session.
func (c *Connector) OpenLiveSession(ctx context.Context, cb ai.LiveCallbacks) (ai.LiveSession, error) {
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	utts := c.Utterances
	if len(utts) == 0 {
		utts = DefaultUtterances
	}
	every := c.ChunksPerUtterance
	if every <= 0 {
		every = DefaultChunksPerUtterance
	}

	s := &Session{
		cb:         cb,
		utterances: utts,
		every:      every,
		pending:    queue.New[func(ai.LiveCallbacks)](),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go s.emit()

	c.mu.Lock()
	c.sessions = append(c.sessions, s)
	c.mu.Unlock()
	return s, nil
}

// Sessions returns every session opened so far.
func (c *Connector) Sessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Session(nil), c.sessions...)
}

// Session implements ai.LiveSession. Callbacks run on a single emitter
// goroutine in the order they were scheduled.
type Session struct {
	cb         ai.LiveCallbacks
	utterances []Utterance
	every      int

	mu      sync.Mutex
	chunks  int
	index   int
	closed  bool
	closes  int
	pending *queue.Queue[func(ai.LiveCallbacks)]

	wake chan struct{}
	done chan struct{}
}

// SendAudioChunk counts the chunk and schedules the next exchange once enough
// audio has arrived.
func (s *Session) SendAudioChunk(ctx context.Context, frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ai.ErrSessionClosed
	}
	s.chunks++
	if s.chunks%s.every != 0 {
		return nil
	}

	utt := s.utterances[s.index%len(s.utterances)]
	s.index++
	for _, text := range utt.Input {
		text := text
		s.pending.Enqueue(func(cb ai.LiveCallbacks) { cb.OnInputText(text) })
	}
	for _, text := range utt.Output {
		text := text
		s.pending.Enqueue(func(cb ai.LiveCallbacks) { cb.OnOutputText(text) })
	}
	s.pending.Enqueue(func(cb ai.LiveCallbacks) { cb.OnTurnComplete() })
	s.signal()
	return nil
}

// Fail simulates a remote session error.
func (s *Session) Fail(err error) {
	s.schedule(func(cb ai.LiveCallbacks) { cb.OnError(err) })
}

// CloseRemote simulates the remote side closing the session.
func (s *Session) CloseRemote() {
	s.schedule(func(cb ai.LiveCallbacks) { cb.OnClose() })
}

// Close ends the session. Pending callbacks are dropped; one already running
// may still finish after Close returns.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closes++
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.pending.Clear()
	s.mu.Unlock()

	close(s.done)
	return nil
}

// Chunks returns the number of audio chunks received.
func (s *Session) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// CloseCalls returns how many times Close was invoked.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *Session) schedule(fn func(ai.LiveCallbacks)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending.Enqueue(fn)
	s.signal()
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) emit() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			fn, ok := s.pending.Dequeue()
			s.mu.Unlock()
			if !ok {
				break
			}
			fn(s.cb)
		}
	}
}
