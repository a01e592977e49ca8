package app

import (
	"context"
	"errors"
	"fmt"

	"interview-copilot-service/internal/audio"
	"interview-copilot-service/internal/config"
	"interview-copilot-service/internal/events"
	"interview-copilot-service/internal/observability/metrics"
	"interview-copilot-service/internal/schema"
	"interview-copilot-service/internal/service/ai"
	"interview-copilot-service/internal/service/ai/google"
	"interview-copilot-service/internal/service/ai/mock"
	"interview-copilot-service/internal/service/ai/openai"
	"interview-copilot-service/internal/service/copilot"
	"interview-copilot-service/internal/service/segment"
	"interview-copilot-service/internal/service/transcript"
)

// Pipeline is the copilot session together with its AI backend and the
// event fan-out of its transcript.
type Pipeline struct {
	Store     *transcript.Store
	Session   *copilot.Session
	Publisher *events.Publisher
	Forwarder *events.Forwarder

	closers []func() error
}

// PipelineOption adjusts the session configuration built from config.
type PipelineOption func(*copilot.Config)

// WithDrainOnEnd finishes outstanding turns when the audio track ends.
func WithDrainOnEnd() PipelineOption {
	return func(c *copilot.Config) { c.DrainOnEnd = true }
}

// WithBoundaryPolicy overrides the configured boundary policy.
func WithBoundaryPolicy(p copilot.BoundaryPolicy, depth int) PipelineOption {
	return func(c *copilot.Config) {
		c.Policy = p
		c.QueueDepth = depth
	}
}

// SessionConfig maps the service configuration onto the session.
func SessionConfig(cfg *config.Configuration) copilot.Config {
	sc := copilot.DefaultConfig()
	sc.Monitor = audio.MonitorConfig{
		SampleRate: cfg.Audio.SampleRateHz,
		BlockSize:  cfg.Audio.BlockSize,
		Strategy:   audio.Strategy(cfg.Audio.LevelStrategy),
		VoiceBand:  audio.Band{MinHz: cfg.Audio.VoiceBandMinHz, MaxHz: cfg.Audio.VoiceBandMaxHz},
	}
	sc.Segmenter = segment.SegmenterConfig{
		SpeakingThreshold: cfg.Segment.Threshold(cfg.Audio.LevelStrategy),
		SilenceDelay:      cfg.Segment.SilenceDelay,
		MinTurnFrames:     cfg.Segment.MinTurnFrames,
	}
	sc.Policy = copilot.BoundaryPolicy(cfg.Copilot.BoundaryPolicy)
	sc.QueueDepth = cfg.Copilot.QueueDepth
	sc.MaxHistory = cfg.Copilot.MaxHistory
	sc.Limits = copilot.TurnLimits{
		MaxTurnDuration: cfg.Segment.MaxTurnDuration,
		MaxDeltas:       cfg.Copilot.MaxDeltas,
	}
	return sc
}

// NewBackend builds the AI backend for the configured mode and provider. The
// returned function releases provider resources and may be nil.
func NewBackend(ctx context.Context, cfg *config.Configuration) (copilot.Backend, func() error, error) {
	mode, err := copilot.ParseMode(cfg.Copilot.Mode)
	if err != nil {
		return nil, nil, err
	}
	instructions, err := ai.Instructions(cfg.AI.SystemPrompt, cfg.AI.ProfilePath)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.AI.Provider {
	case "mock":
		if mode == copilot.ModeBatch {
			return copilot.NewBatchBackend("mock", mock.NewAnalyzer(), cfg.Copilot.RequestTimeout), nil, nil
		}
		return copilot.NewStreamingBackend("mock", mock.NewConnector()), nil, nil

	case "openai":
		if mode != copilot.ModeBatch {
			return nil, nil, fmt.Errorf("%w: openai provider in %s mode", copilot.ErrUnsupported, mode)
		}
		client, err := newOpenAI(cfg, instructions)
		if err != nil {
			return nil, nil, err
		}
		return copilot.NewBatchBackend("openai", client, cfg.Copilot.RequestTimeout), nil, nil

	case "google":
		if mode != copilot.ModeStreaming {
			return nil, nil, fmt.Errorf("%w: google provider in %s mode", copilot.ErrUnsupported, mode)
		}
		var answerer ai.Answerer = mock.Answerer{Answer: "Configure OPENAI_API_KEY to generate answers."}
		if cfg.AI.OpenAIAPIKey != "" {
			client, err := newOpenAI(cfg, instructions)
			if err != nil {
				return nil, nil, err
			}
			answerer = client
		}
		conn, err := google.New(ctx, google.Config{
			LanguageCode:   cfg.AI.LanguageCode,
			SampleRateHz:   cfg.Audio.SampleRateHz,
			InterimResults: true,
			AudioEncoding:  "LINEAR16",
		}, answerer)
		if err != nil {
			return nil, nil, fmt.Errorf("google speech client: %w", err)
		}
		return copilot.NewStreamingBackend("google", conn), conn.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown AI provider %q", cfg.AI.Provider)
	}
}

func newOpenAI(cfg *config.Configuration, instructions string) (*openai.Client, error) {
	return openai.New(openai.Config{
		APIKey:             cfg.AI.OpenAIAPIKey,
		BaseURL:            cfg.AI.OpenAIBaseURL,
		ChatModel:          cfg.AI.ChatModel,
		TranscriptionModel: cfg.AI.TranscriptionModel,
		LanguageCode:       cfg.AI.LanguageCode,
		Instructions:       instructions,
	})
}

// NewPipeline wires a session to its backend, transcript and publisher.
func NewPipeline(ctx context.Context, cfg *config.Configuration, m *metrics.Metrics, opts ...PipelineOption) (*Pipeline, error) {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	backend, release, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{}
	if release != nil {
		p.closers = append(p.closers, release)
	}

	sc := SessionConfig(cfg)
	for _, opt := range opts {
		opt(&sc)
	}
	p.Store = transcript.NewStore()
	p.Session, err = copilot.NewSession(sc, backend, p.Store, copilot.WithMetrics(m))
	if err != nil {
		p.release()
		return nil, err
	}

	p.Publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicUpdates: cfg.Kafka.TopicTurnUpdates,
		TopicFinal:   cfg.Kafka.TopicTurnFinal,
		Principal:    cfg.Kafka.Principal,
		Metrics:      m,
	})
	p.Forwarder = events.NewForwarder(events.ForwarderConfig{
		Publisher: p.Publisher,
		Validator: schema.New(),
		SessionID: func() string { return p.Session.Status().SessionID },
		Principal: cfg.Kafka.Principal,
		Metrics:   m,
	})
	p.Forwarder.Attach(p.Store)
	p.Session.OnStatus(p.Forwarder.ForwardStatus)
	return p, nil
}

// Close stops the session and flushes queued events before releasing the
// publisher and the provider.
func (p *Pipeline) Close() error {
	var errs []error
	if err := p.Session.Stop(); err != nil {
		errs = append(errs, err)
	}
	p.Forwarder.Close()
	if err := p.Publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, p.release())
	return errors.Join(errs...)
}

func (p *Pipeline) release() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	p.closers = nil
	return errors.Join(errs...)
}
