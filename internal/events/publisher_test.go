package events

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"interview-copilot-service/internal/models"
	"interview-copilot-service/internal/observability/metrics"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.Enabled() {
				t.Error("expected publisher to be disabled")
			}
			if p.writerUpdates != nil || p.writerFinal != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		TopicUpdates: "test.updates",
		TopicFinal:   "test.final",
		Principal:    "test-principal",
	})

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicUpdates != "test.updates" {
		t.Errorf("expected updates topic 'test.updates', got %s", p.topicUpdates)
	}
	if p.topicFinal != "test.final" {
		t.Errorf("expected final topic 'test.final', got %s", p.topicFinal)
	}
}

func TestNew_EnabledCreatesWriters(t *testing.T) {
	p := New(&Config{
		Enabled:      true,
		Brokers:      []string{"localhost:9092"},
		TopicUpdates: "test.updates",
		TopicFinal:   "test.final",
	})
	defer p.Close()

	if !p.Enabled() {
		t.Fatal("expected publisher to be enabled")
	}
	if p.writerUpdates.Topic != "test.updates" || p.writerFinal.Topic != "test.final" {
		t.Errorf("unexpected writer topics %s/%s", p.writerUpdates.Topic, p.writerFinal.Topic)
	}
}

func TestPublisher_Disabled_RecordsMetrics(t *testing.T) {
	m := metrics.NewMetrics(nil)
	p := New(&Config{TopicUpdates: "test.updates", TopicFinal: "test.final", Metrics: m})

	event := models.TurnEvent{EventType: models.EventTurnUpdated, SessionID: "sess-123", TurnID: "sess-123-turn-1"}
	if err := p.PublishUpdate(context.Background(), "sess-123", event); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
	if err := p.PublishFinal(context.Background(), "sess-123", event); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}

	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("test.updates", "update")); got != 1 {
		t.Errorf("kafka_publish_total{updates} = %v", got)
	}
	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("test.final", "final")); got != 1 {
		t.Errorf("kafka_publish_total{final} = %v", got)
	}
}

func TestPublisher_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// Channels cannot be marshalled
	if err := p.PublishUpdate(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable update")
	}
	if err := p.PublishFinal(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable final")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})
	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}

	p = &Publisher{}
	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
