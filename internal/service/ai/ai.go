// Package ai defines the interfaces for the external speech understanding and
// answer generation collaborator.
package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"interview-copilot-service/internal/audio"
)

// NoQuestion is the sentinel question returned when the audio held no
// interviewer question.
const NoQuestion = "NO_QUESTION"

var (
	// ErrMalformedResponse is returned for missing or unparseable results.
	ErrMalformedResponse = errors.New("malformed AI response")
	// ErrSessionClosed is returned when sending on a closed live session.
	ErrSessionClosed = errors.New("live session closed")
)

// Exchange is one completed question/answer pair used as context.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Analysis is the batch result for one turn of audio.
type Analysis struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// IsNoQuestion reports whether the analysis carries the no-question sentinel.
func (a Analysis) IsNoQuestion() bool {
	return strings.EqualFold(strings.TrimSpace(a.Question), NoQuestion)
}

// Validate rejects analyses that are neither NO_QUESTION nor a complete
// question/answer pair.
func (a Analysis) Validate() error {
	if a.IsNoQuestion() {
		return nil
	}
	if strings.TrimSpace(a.Question) == "" {
		return fmt.Errorf("%w: empty question", ErrMalformedResponse)
	}
	if strings.TrimSpace(a.Answer) == "" {
		return fmt.Errorf("%w: empty answer", ErrMalformedResponse)
	}
	return nil
}

// Analyzer turns one turn of recorded audio into a question and answer.
type Analyzer interface {
	// AnalyzeAudioTurn transcribes the audio and answers the question it holds.
	// history is ordered oldest first.
	AnalyzeAudioTurn(ctx context.Context, audio []byte, mimeType string, history []Exchange) (Analysis, error)
}

// LiveCallbacks receives events from a live session. Implementations may call
// them from any goroutine but never concurrently.
type LiveCallbacks interface {
	// OnInputText is called with incremental interviewer transcript text.
	OnInputText(text string)

	// OnOutputText is called with incremental answer text.
	OnOutputText(text string)

	// OnTurnComplete marks the end of the current exchange.
	OnTurnComplete()

	// OnError reports a session failure. The session is unusable afterwards.
	OnError(err error)

	// OnClose is called once when the remote side closes the session.
	OnClose()
}

// LiveSession is a persistent bidirectional session.
type LiveSession interface {
	// SendAudioChunk forwards one frame of captured audio.
	SendAudioChunk(ctx context.Context, frame audio.Frame) error

	// Close ends the session and releases resources.
	Close() error
}

// LiveConnector opens live sessions.
type LiveConnector interface {
	OpenLiveSession(ctx context.Context, cb LiveCallbacks) (LiveSession, error)
}

// Answerer generates an answer for a transcribed question, streaming deltas.
type Answerer interface {
	StreamAnswer(ctx context.Context, question string, history []Exchange, onDelta func(string)) error
}

// DefaultSystemPrompt instructs the model how to answer.
const DefaultSystemPrompt = `You are an expert job interview co-pilot.
Listen to the interviewer's question and provide the best possible answer for the candidate to say.
For personal or experience questions use the candidate profile strictly.
For technical questions use expert general knowledge.
Be professional, concise and confident. Answer directly without preamble.
If the audio holds silence, background noise or no clear question, reply with NO_QUESTION.`

// Instructions joins the system prompt with the candidate profile read from
// profilePath. An empty prompt falls back to DefaultSystemPrompt and an empty
// path skips the profile.
func Instructions(prompt, profilePath string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultSystemPrompt
	}
	if profilePath == "" {
		return prompt, nil
	}
	data, err := os.ReadFile(profilePath)
	if err != nil {
		return "", fmt.Errorf("read profile: %w", err)
	}
	profile := strings.TrimSpace(string(data))
	if profile == "" {
		return prompt, nil
	}
	return prompt + "\n\n--- CANDIDATE PROFILE ---\n" + profile + "\n--- END PROFILE ---", nil
}
