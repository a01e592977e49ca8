// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig       `yaml:"service"`
	Observability ObservabilityConfig `yaml:"observability"`
	Audio         AudioConfig         `yaml:"audio"`
	Segment       SegmentConfig       `yaml:"segment"`
	Copilot       CopilotConfig       `yaml:"copilot"`
	AI            AIConfig            `yaml:"ai"`
	Kafka         KafkaConfig         `yaml:"kafka"`
}

type ServiceConfig struct {
	Principal   string `yaml:"principal"`
	Env         string `yaml:"env"`
	HTTPPort    string `yaml:"httpPort"`
	GRPCPort    string `yaml:"grpcPort"`
	MetricsPort string `yaml:"metricsPort"`
	// AllowedOrigins lists browser origins accepted on the websocket
	// endpoints. Empty means same origin only, "*" accepts any.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type ObservabilityConfig struct {
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"` // json | console
}

type AudioConfig struct {
	SampleRateHz   int     `yaml:"sampleRateHz"`
	BlockSize      int     `yaml:"blockSize"`
	LevelStrategy  string  `yaml:"levelStrategy"` // rms | voiceband
	VoiceBandMinHz float64 `yaml:"voiceBandMinHz"`
	VoiceBandMaxHz float64 `yaml:"voiceBandMaxHz"`
}

type SegmentConfig struct {
	// SpeakingThreshold nil selects the default for the level strategy.
	SpeakingThreshold *float64      `yaml:"speakingThreshold"`
	SilenceDelay      time.Duration `yaml:"silenceDelay"`
	MinTurnFrames     int           `yaml:"minTurnFrames"`
	MaxTurnDuration   time.Duration `yaml:"maxTurnDuration"`
}

// Threshold returns the speaking threshold for the given level strategy.
func (c SegmentConfig) Threshold(strategy string) float64 {
	if c.SpeakingThreshold != nil {
		return *c.SpeakingThreshold
	}
	if strategy == "voiceband" {
		return 0.002
	}
	return 0.01
}

type CopilotConfig struct {
	Mode           string        `yaml:"mode"`           // batch | streaming
	BoundaryPolicy string        `yaml:"boundaryPolicy"` // drop | queue
	QueueDepth     int           `yaml:"queueDepth"`
	MaxHistory     int           `yaml:"maxHistory"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	MaxDeltas      int           `yaml:"maxDeltas"`
}

type AIConfig struct {
	Provider           string `yaml:"provider"` // mock | openai | google
	OpenAIAPIKey       string `yaml:"openaiApiKey"`
	OpenAIBaseURL      string `yaml:"openaiBaseUrl"`
	ChatModel          string `yaml:"chatModel"`
	TranscriptionModel string `yaml:"transcriptionModel"`
	LanguageCode       string `yaml:"languageCode"`
	SystemPrompt       string `yaml:"systemPrompt"`
	ProfilePath        string `yaml:"profilePath"`
}

type KafkaConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Brokers          []string `yaml:"brokers"`
	TopicTurnUpdates string   `yaml:"topicTurnUpdates"`
	TopicTurnFinal   string   `yaml:"topicTurnFinal"`
	Principal        string   `yaml:"principal"`
}

// Defaults returns the built-in configuration.
func Defaults() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal:   "svc-interview-copilot",
			Env:         "prod",
			HTTPPort:    "8080",
			GRPCPort:    "50051",
			MetricsPort: "9090",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
		Audio: AudioConfig{
			SampleRateHz:   16000,
			BlockSize:      1024,
			LevelStrategy:  "rms",
			VoiceBandMinHz: 300,
			VoiceBandMaxHz: 3400,
		},
		Segment: SegmentConfig{
			SilenceDelay:    3 * time.Second,
			MinTurnFrames:   16,
			MaxTurnDuration: 2 * time.Minute,
		},
		Copilot: CopilotConfig{
			Mode:           "batch",
			BoundaryPolicy: "drop",
			QueueDepth:     1,
			MaxHistory:     10,
			RequestTimeout: 60 * time.Second,
			MaxDeltas:      2000,
		},
		AI: AIConfig{
			Provider:           "mock",
			ChatModel:          "gpt-4o-mini",
			TranscriptionModel: "whisper-1",
			LanguageCode:       "en-US",
		},
		Kafka: KafkaConfig{
			TopicTurnUpdates: "interview.turn.updates",
			TopicTurnFinal:   "interview.turn.final",
		},
	}
}

// Load builds the configuration from a .env file (if present), the YAML file
// named by CONFIG_FILE (if set) and the environment. Unparseable values fall
// back to the lower layer.
func Load() *Configuration {
	loadDotEnv()
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Ignoring config file")
		}
	}
	cfg.applyEnv()
	return cfg
}

// LoadFile is like Load but reads the YAML overlay from path and fails on
// file or validation errors.
func LoadFile(path string) (*Configuration, error) {
	loadDotEnv()
	cfg := Defaults()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}
}

func (c *Configuration) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Configuration) applyEnv() {
	c.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", c.Service.Principal)
	c.Service.Env = envOrDefault("ENV", c.Service.Env)
	c.Service.HTTPPort = envOrDefault("HTTP_PORT", c.Service.HTTPPort)
	c.Service.GRPCPort = envOrDefault("GRPC_PORT", c.Service.GRPCPort)
	c.Service.MetricsPort = envOrDefault("METRICS_PORT", c.Service.MetricsPort)
	c.Service.AllowedOrigins = envOrDefaultList("HTTP_ALLOWED_ORIGINS", c.Service.AllowedOrigins)

	c.Observability.LogLevel = envOrDefault("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = envOrDefault("LOG_FORMAT", c.Observability.LogFormat)

	c.Audio.SampleRateHz = envOrDefaultInt("AUDIO_SAMPLE_RATE_HZ", c.Audio.SampleRateHz)
	c.Audio.BlockSize = envOrDefaultInt("AUDIO_BLOCK_SIZE", c.Audio.BlockSize)
	c.Audio.LevelStrategy = envOrDefault("AUDIO_LEVEL_STRATEGY", c.Audio.LevelStrategy)
	c.Audio.VoiceBandMinHz = envOrDefaultFloat("AUDIO_VOICE_BAND_MIN_HZ", c.Audio.VoiceBandMinHz)
	c.Audio.VoiceBandMaxHz = envOrDefaultFloat("AUDIO_VOICE_BAND_MAX_HZ", c.Audio.VoiceBandMaxHz)

	c.Segment.SpeakingThreshold = envOrDefaultFloatPtr("SEGMENT_SPEAKING_THRESHOLD", c.Segment.SpeakingThreshold)
	c.Segment.SilenceDelay = envOrDefaultDuration("SEGMENT_SILENCE_DELAY", c.Segment.SilenceDelay)
	c.Segment.MinTurnFrames = envOrDefaultInt("SEGMENT_MIN_TURN_FRAMES", c.Segment.MinTurnFrames)
	c.Segment.MaxTurnDuration = envOrDefaultDuration("SEGMENT_MAX_TURN_DURATION", c.Segment.MaxTurnDuration)

	c.Copilot.Mode = envOrDefault("COPILOT_MODE", c.Copilot.Mode)
	c.Copilot.BoundaryPolicy = envOrDefault("COPILOT_BOUNDARY_POLICY", c.Copilot.BoundaryPolicy)
	c.Copilot.QueueDepth = envOrDefaultInt("COPILOT_QUEUE_DEPTH", c.Copilot.QueueDepth)
	c.Copilot.MaxHistory = envOrDefaultInt("COPILOT_MAX_HISTORY", c.Copilot.MaxHistory)
	c.Copilot.RequestTimeout = envOrDefaultDuration("COPILOT_REQUEST_TIMEOUT", c.Copilot.RequestTimeout)
	c.Copilot.MaxDeltas = envOrDefaultInt("COPILOT_MAX_DELTAS", c.Copilot.MaxDeltas)

	c.AI.Provider = envOrDefault("AI_PROVIDER", c.AI.Provider)
	c.AI.OpenAIAPIKey = envOrDefault("OPENAI_API_KEY", c.AI.OpenAIAPIKey)
	c.AI.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", c.AI.OpenAIBaseURL)
	c.AI.ChatModel = envOrDefault("OPENAI_CHAT_MODEL", c.AI.ChatModel)
	c.AI.TranscriptionModel = envOrDefault("OPENAI_TRANSCRIPTION_MODEL", c.AI.TranscriptionModel)
	c.AI.LanguageCode = envOrDefault("AI_LANGUAGE_CODE", c.AI.LanguageCode)
	c.AI.SystemPrompt = envOrDefault("AI_SYSTEM_PROMPT", c.AI.SystemPrompt)
	c.AI.ProfilePath = envOrDefault("AI_PROFILE_PATH", c.AI.ProfilePath)

	c.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = envOrDefaultList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.TopicTurnUpdates = envOrDefault("KAFKA_TOPIC_TURN_UPDATES", c.Kafka.TopicTurnUpdates)
	c.Kafka.TopicTurnFinal = envOrDefault("KAFKA_TOPIC_TURN_FINAL", c.Kafka.TopicTurnFinal)
	// Kafka principal falls back to the service principal.
	c.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", c.Kafka.Principal)
	if c.Kafka.Principal == "" {
		c.Kafka.Principal = c.Service.Principal
	}
}

// Validate checks value ranges and enumerations.
func (c *Configuration) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Service.HTTPPort != "", "HTTP port is required")
	check(c.Service.GRPCPort != "", "gRPC port is required")
	check(c.Audio.SampleRateHz > 0, "audio sample rate must be positive, got %d", c.Audio.SampleRateHz)
	check(c.Audio.BlockSize > 0, "audio block size must be positive, got %d", c.Audio.BlockSize)
	check(oneOf(c.Audio.LevelStrategy, "rms", "voiceband"), "unknown level strategy %q", c.Audio.LevelStrategy)
	check(c.Audio.VoiceBandMinHz >= 0 && c.Audio.VoiceBandMinHz < c.Audio.VoiceBandMaxHz,
		"invalid voice band %.0f-%.0f Hz", c.Audio.VoiceBandMinHz, c.Audio.VoiceBandMaxHz)
	check(c.Segment.SpeakingThreshold == nil || *c.Segment.SpeakingThreshold >= 0, "speaking threshold must be >= 0")
	check(c.Segment.SilenceDelay >= 0, "silence delay must be >= 0, got %v", c.Segment.SilenceDelay)
	check(c.Segment.MinTurnFrames >= 0, "min turn frames must be >= 0")
	check(c.Segment.MaxTurnDuration >= 0, "max turn duration must be >= 0")
	check(oneOf(c.Copilot.Mode, "batch", "streaming"), "unknown copilot mode %q", c.Copilot.Mode)
	check(oneOf(c.Copilot.BoundaryPolicy, "drop", "queue"), "unknown boundary policy %q", c.Copilot.BoundaryPolicy)
	check(c.Copilot.QueueDepth >= 0, "queue depth must be >= 0")
	check(c.Copilot.MaxHistory >= 0, "max history must be >= 0")
	check(c.Copilot.RequestTimeout > 0, "request timeout must be positive")
	check(c.Copilot.MaxDeltas >= 0, "max deltas must be >= 0")
	check(oneOf(c.AI.Provider, "mock", "openai", "google"), "unknown AI provider %q", c.AI.Provider)
	if c.AI.Provider == "openai" {
		check(c.AI.OpenAIAPIKey != "", "OPENAI_API_KEY is required for the openai provider")
		check(c.Copilot.Mode == "batch", "the openai provider only supports batch mode")
	}
	if c.AI.Provider == "google" {
		check(c.Copilot.Mode == "streaming", "the google provider only supports streaming mode")
	}
	if c.Kafka.Enabled {
		check(len(c.Kafka.Brokers) > 0, "KAFKA_BROKERS is required when Kafka is enabled")
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer, using default")
		return def
	}
	return n
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid number, using default")
		return def
	}
	return f
}

// envOrDefaultFloatPtr keeps an explicit 0 apart from an unset value.
func envOrDefaultFloatPtr(key string, def *float64) *float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid number, using default")
		return def
	}
	return &f
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration, using default")
		return def
	}
	return d
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
