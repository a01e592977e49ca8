package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"interview-copilot-service/internal/audio"
	"interview-copilot-service/internal/config"
	"interview-copilot-service/internal/observability/metrics"
	"interview-copilot-service/internal/service/copilot"
	"interview-copilot-service/internal/service/segment"
)

func testConfig() *config.Configuration {
	cfg := config.Defaults()
	cfg.Service.HTTPPort = "0"
	cfg.Service.GRPCPort = "0"
	cfg.Service.MetricsPort = "0"
	cfg.Audio.SampleRateHz = 1000
	cfg.Audio.BlockSize = 10
	cfg.Segment.SilenceDelay = 30 * time.Millisecond
	cfg.Segment.MinTurnFrames = 2
	return cfg
}

func TestSessionConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Audio.LevelStrategy = "voiceband"
	cfg.Copilot.BoundaryPolicy = "queue"
	cfg.Copilot.QueueDepth = 4

	sc := SessionConfig(cfg)
	if sc.Segmenter.SpeakingThreshold != 0.002 {
		t.Errorf("expected voiceband threshold, got %v", sc.Segmenter.SpeakingThreshold)
	}
	if sc.Monitor.Strategy != audio.StrategyVoiceBand || sc.Monitor.BlockSize != 1024 || sc.Monitor.SampleRate != 16000 {
		t.Errorf("unexpected monitor config %+v", sc.Monitor)
	}
	if sc.Policy != copilot.PolicyQueue || sc.QueueDepth != 4 || sc.MaxHistory != 10 {
		t.Errorf("unexpected policy config %+v", sc)
	}
	if sc.Limits.MaxTurnDuration != 2*time.Minute || sc.Limits.MaxDeltas != 2000 {
		t.Errorf("unexpected limits %+v", sc.Limits)
	}
	if err := sc.Validate(); err != nil {
		t.Errorf("expected valid session config: %v", err)
	}
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Configuration)
		wantName string
		wantMode copilot.Mode
		wantErr  error
	}{
		{"mock batch", func(c *config.Configuration) {}, "mock", copilot.ModeBatch, nil},
		{"mock streaming", func(c *config.Configuration) { c.Copilot.Mode = "streaming" }, "mock", copilot.ModeStreaming, nil},
		{"openai batch", func(c *config.Configuration) {
			c.AI.Provider = "openai"
			c.AI.OpenAIAPIKey = "sk-test"
		}, "openai", copilot.ModeBatch, nil},
		{"openai streaming", func(c *config.Configuration) {
			c.AI.Provider = "openai"
			c.AI.OpenAIAPIKey = "sk-test"
			c.Copilot.Mode = "streaming"
		}, "", "", copilot.ErrUnsupported},
		{"google batch", func(c *config.Configuration) { c.AI.Provider = "google" }, "", "", copilot.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(cfg)
			b, release, err := NewBackend(context.Background(), cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if release != nil {
				defer release()
			}
			if b.Name() != tt.wantName || b.Mode() != tt.wantMode {
				t.Errorf("got %s/%s, want %s/%s", b.Name(), b.Mode(), tt.wantName, tt.wantMode)
			}
		})
	}
}

func TestNewBackend_Errors(t *testing.T) {
	cfg := config.Defaults()
	cfg.AI.Provider = "acme"
	if _, _, err := NewBackend(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown provider")
	}

	cfg = config.Defaults()
	cfg.AI.ProfilePath = filepath.Join(t.TempDir(), "missing.txt")
	if _, _, err := NewBackend(context.Background(), cfg); err == nil {
		t.Error("expected error for missing profile")
	}

	cfg = config.Defaults()
	cfg.AI.Provider = "openai"
	if _, _, err := NewBackend(context.Background(), cfg); err == nil {
		t.Error("expected error for missing api key")
	}
}

func loudWAV(t *testing.T, n int) []byte {
	t.Helper()
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = 8000
		if i%2 == 1 {
			samples[i] = -8000
		}
	}
	data, err := audio.EncodeWAV(samples, 1000)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestPipeline_ReplayDrainsTurn(t *testing.T) {
	m := metrics.NewMetrics(nil)
	p, err := NewPipeline(context.Background(), testConfig(), m,
		WithDrainOnEnd(), WithBoundaryPolicy(copilot.PolicyQueue, 0))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	track, err := audio.NewWAVTrack(loudWAV(t, 500), 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Session.Start(context.Background(), audio.NewSource(track)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-p.Session.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("replay did not finish")
	}
	if err := p.Session.Err(); err != nil {
		t.Fatalf("session ended with %v", err)
	}

	turns := p.Store.Turns()
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Status != segment.StatusComplete || turns[0].Question != "Can you tell me about yourself?" {
		t.Errorf("unexpected turn %+v", turns[0])
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("interview.turn.final", "final")); got != 1 {
		t.Errorf("kafka_publish_total{final} = %v", got)
	}
}

func localAddr(t *testing.T, addr string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	return net.JoinHostPort("127.0.0.1", port)
}

func TestApplication_Lifecycle(t *testing.T) {
	os.Unsetenv("ZEROLOG_LOG_LEVEL")
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Ready() {
		t.Error("expected not ready before Start")
	}
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + localAddr(t, a.HTTPAddr()) + "/v1/readiness")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readiness: got %d", resp.StatusCode)
	}

	conn, err := grpc.NewClient(localAddr(t, a.GRPCAddr()), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hc, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: HealthService})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if hc.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %v", hc.Status)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	a.Shutdown(shutdownCtx)
	if a.Ready() {
		t.Error("expected not ready after Shutdown")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Copilot.Mode = "sideways"
	if _, err := New(cfg); err == nil {
		t.Error("expected invalid config to be rejected")
	}
}
