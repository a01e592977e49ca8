// Package google provides a live session backed by Google Cloud
// Speech-to-Text streaming recognition. Final transcripts become the
// interviewer text; an ai.Answerer streams the answer for each of them.
package google

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"interview-copilot-service/internal/audio"
	"interview-copilot-service/internal/service/ai"
)

// Config holds Google STT streaming settings.
type Config struct {
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string // LINEAR16, MULAW, FLAC, ...
}

// DefaultConfig returns the settings matching the capture pipeline.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   audio.DefaultSampleRate,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// recognizeStream is the part of speechpb.Speech_StreamingRecognizeClient
// the session uses.
type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

// Connector implements ai.LiveConnector.
type Connector struct {
	cfg      Config
	answerer ai.Answerer
	client   *speech.Client
	open     func(ctx context.Context) (recognizeStream, error)
}

// New creates a connector.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config, answerer ai.Answerer) (*Connector, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Connector{
		cfg:      cfg,
		answerer: answerer,
		client:   c,
		open: func(ctx context.Context) (recognizeStream, error) {
			return c.StreamingRecognize(ctx)
		},
	}, nil
}

// Close releases the underlying speech client.
func (c *Connector) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// OpenLiveSession begins a streaming recognition session and sends the
// initial config.
func (c *Connector) OpenLiveSession(ctx context.Context, cb ai.LiveCallbacks) (ai.LiveSession, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.open(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	// Send streaming config as the first message
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   parseAudioEncoding(c.cfg.AudioEncoding),
					SampleRateHertz:            int32(c.cfg.SampleRateHz),
					LanguageCode:               c.cfg.LanguageCode,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: c.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Session{
		stream:   stream,
		cb:       cb,
		answerer: c.answerer,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.listen()
	return s, nil
}

// Session implements ai.LiveSession.
type Session struct {
	stream   recognizeStream
	cb       ai.LiveCallbacks
	answerer ai.Answerer

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// SendAudioChunk sends one frame as LINEAR16 bytes.
func (s *Session) SendAudioChunk(ctx context.Context, frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ai.ErrSessionClosed
	}
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio.PCM16Bytes(audio.FloatToPCM16(frame.Samples)),
		},
	})
}

// Close ends the streaming session. Safe to call multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.stream.CloseSend()
	s.mu.Unlock()

	s.cancel()
	return err
}

// Done is closed when the receive loop exits.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// listen receives transcript responses from Google and invokes callbacks.
// Callbacks are only ever called from this goroutine.
func (s *Session) listen() {
	defer close(s.done)
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			s.finish(err)
			return
		}

		for _, r := range resp.Results {
			if !r.IsFinal || len(r.Alternatives) == 0 {
				continue
			}
			question := strings.TrimSpace(r.Alternatives[0].Transcript)
			if question == "" {
				continue
			}
			s.cb.OnInputText(question)
			if err := s.answer(question); err != nil {
				if s.isClosed() {
					return
				}
				s.cb.OnError(err)
				return
			}
			s.cb.OnTurnComplete()
		}
	}
}

func (s *Session) answer(question string) error {
	if s.answerer == nil {
		return nil
	}
	return s.answerer.StreamAnswer(s.ctx, question, nil, func(delta string) {
		s.cb.OnOutputText(delta)
	})
}

func (s *Session) finish(err error) {
	if s.isClosed() {
		log.Debug().Err(err).Msg("Recognize stream ended after close")
		return
	}
	if errors.Is(err, io.EOF) {
		s.cb.OnClose()
		return
	}
	if status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled) {
		s.cb.OnClose()
		return
	}
	s.cb.OnError(err)
}
