package mock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"interview-copilot-service/internal/audio"
	"interview-copilot-service/internal/service/ai"
)

// testCallback implements ai.LiveCallbacks for testing
type testCallback struct {
	mu        sync.Mutex
	events    []string
	completes int
	errors    []error
	closes    int
	completed chan struct{}
}

func newTestCallback() *testCallback {
	return &testCallback{completed: make(chan struct{}, 16)}
}

func (c *testCallback) OnInputText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "in:"+text)
}

func (c *testCallback) OnOutputText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "out:"+text)
}

func (c *testCallback) OnTurnComplete() {
	c.mu.Lock()
	c.events = append(c.events, "complete")
	c.completes++
	c.mu.Unlock()
	c.completed <- struct{}{}
}

func (c *testCallback) OnError(err error) {
	c.mu.Lock()
	c.errors = append(c.errors, err)
	c.mu.Unlock()
	c.completed <- struct{}{}
}

func (c *testCallback) OnClose() {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.completed <- struct{}{}
}

func (c *testCallback) getEvents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.events...)
}

func (c *testCallback) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.completed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func frame() audio.Frame {
	return audio.Frame{Samples: make([]float32, 1024), SampleRate: audio.DefaultSampleRate}
}

func TestAnalyzer_CyclesResponses(t *testing.T) {
	a := NewAnalyzer(
		Response{Analysis: ai.Analysis{Question: "q1", Answer: "a1"}},
		Response{Analysis: ai.Analysis{Question: ai.NoQuestion}},
	)
	ctx := context.Background()

	want := []string{"q1", ai.NoQuestion, "q1"}
	for i, q := range want {
		got, err := a.AnalyzeAudioTurn(ctx, []byte{1, 2, 3}, audio.MimeTypeWAV, nil)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got.Question != q {
			t.Errorf("call %d: question = %q, want %q", i, got.Question, q)
		}
	}

	calls := a.Calls()
	if len(calls) != 3 || calls[0].AudioBytes != 3 || calls[0].MimeType != audio.MimeTypeWAV {
		t.Errorf("unexpected calls: %+v", calls)
	}
}

func TestAnalyzer_DefaultResponsesAreValid(t *testing.T) {
	for i, r := range DefaultResponses {
		if err := r.Analysis.Validate(); err != nil {
			t.Errorf("DefaultResponses[%d]: %v", i, err)
		}
	}
}

func TestAnalyzer_ErrorAndDelay(t *testing.T) {
	boom := errors.New("boom")
	a := NewAnalyzer(Response{Err: boom})
	if _, err := a.AnalyzeAudioTurn(context.Background(), nil, audio.MimeTypeWAV, nil); !errors.Is(err, boom) {
		t.Errorf("expected scripted error, got %v", err)
	}

	slow := NewAnalyzer(Response{Delay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := slow.AnalyzeAudioTurn(ctx, nil, audio.MimeTypeWAV, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestAnalyzer_RecordsHistoryCopy(t *testing.T) {
	a := NewAnalyzer()
	history := []ai.Exchange{{Question: "q", Answer: "a"}}
	a.AnalyzeAudioTurn(context.Background(), nil, audio.MimeTypeWAV, history)
	history[0].Question = "mutated"
	if got := a.Calls()[0].History[0].Question; got != "q" {
		t.Errorf("recorded history aliased caller slice: %q", got)
	}
}

func TestAnswerer_StreamsWords(t *testing.T) {
	var parts []string
	err := Answerer{Answer: "Root cause analysis"}.StreamAnswer(context.Background(), "q", nil, func(s string) {
		parts = append(parts, s)
	})
	if err != nil {
		t.Fatalf("StreamAnswer: %v", err)
	}
	if len(parts) != 3 || strings.Join(parts, "") != "Root cause analysis" {
		t.Errorf("unexpected deltas: %q", parts)
	}
}

func TestSession_EmitsExchangeAfterChunks(t *testing.T) {
	c := &Connector{
		Utterances:         []Utterance{{Input: []string{"What is", " RCA?"}, Output: []string{"Root cause"}}},
		ChunksPerUtterance: 3,
	}
	cb := newTestCallback()
	sess, err := c.OpenLiveSession(context.Background(), cb)
	if err != nil {
		t.Fatalf("OpenLiveSession: %v", err)
	}
	defer sess.Close()

	for i := 0; i < 3; i++ {
		if err := sess.SendAudioChunk(context.Background(), frame()); err != nil {
			t.Fatalf("SendAudioChunk: %v", err)
		}
	}
	cb.wait(t)

	want := []string{"in:What is", "in: RCA?", "out:Root cause", "complete"}
	got := cb.getEvents()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestSession_NoEmitBeforeThreshold(t *testing.T) {
	c := &Connector{ChunksPerUtterance: 10}
	cb := newTestCallback()
	sess, _ := c.OpenLiveSession(context.Background(), cb)
	defer sess.Close()

	for i := 0; i < 9; i++ {
		sess.SendAudioChunk(context.Background(), frame())
	}
	time.Sleep(20 * time.Millisecond)
	if len(cb.getEvents()) != 0 {
		t.Errorf("expected no events, got %v", cb.getEvents())
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	c := NewConnector()
	sess, _ := c.OpenLiveSession(context.Background(), newTestCallback())
	if err := sess.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sess.SendAudioChunk(context.Background(), frame()); !errors.Is(err, ai.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if got := c.Sessions()[0].CloseCalls(); got != 2 {
		t.Errorf("CloseCalls() = %d", got)
	}
}

func TestSession_FailAndRemoteClose(t *testing.T) {
	c := NewConnector()
	cb := newTestCallback()
	c.OpenLiveSession(context.Background(), cb)
	s := c.Sessions()[0]
	defer s.Close()

	s.Fail(errors.New("socket reset"))
	cb.wait(t)
	s.CloseRemote()
	cb.wait(t)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.errors) != 1 || cb.closes != 1 {
		t.Errorf("errors=%v closes=%d", cb.errors, cb.closes)
	}
}

func TestConnector_OpenError(t *testing.T) {
	c := &Connector{OpenErr: errors.New("unauthorized")}
	if _, err := c.OpenLiveSession(context.Background(), newTestCallback()); err == nil {
		t.Error("expected open error")
	}
}
