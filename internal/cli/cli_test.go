package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"interview-copilot-service/internal/audio"
	"interview-copilot-service/internal/config"
	"interview-copilot-service/internal/models"
)

func testDeps() *Dependencies {
	cfg := config.Defaults()
	cfg.Audio.BlockSize = 10
	cfg.Segment.SilenceDelay = 30 * time.Millisecond
	cfg.Segment.MinTurnFrames = 2
	cfg.Observability.LogLevel = "error"
	return &Dependencies{Config: cfg}
}

func writeWAV(t *testing.T) string {
	t.Helper()
	samples := make([]int16, 600)
	for i := 0; i < 500; i++ {
		samples[i] = 8000
		if i%2 == 1 {
			samples[i] = -8000
		}
	}
	data, err := audio.EncodeWAV(samples, 1000)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "interview.wav")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, deps *Dependencies, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd(testDeps())
	for _, name := range []string{"serve", "replay", "tail"} {
		if c, _, err := cmd.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("expected subcommand %q", name)
		}
	}
}

func TestReplayCmd_PrintsTranscript(t *testing.T) {
	out, err := run(t, testDeps(), "replay", writeWAV(t))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !strings.Contains(out, "[1] Q: Can you tell me about yourself?") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestReplayCmd_JSON(t *testing.T) {
	out, err := run(t, testDeps(), "replay", "--json", writeWAV(t))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	var turns []struct {
		Question string `json:"question"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal([]byte(out), &turns); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(turns) != 1 || turns[0].Status != "complete" {
		t.Errorf("unexpected turns %+v", turns)
	}
}

func TestReplayCmd_Errors(t *testing.T) {
	if _, err := run(t, testDeps(), "replay", filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("expected error for a missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.wav")
	os.WriteFile(bad, []byte("not a wav file at all"), 0o600)
	if _, err := run(t, testDeps(), "replay", bad); err == nil {
		t.Error("expected error for an invalid file")
	}

	if _, err := run(t, testDeps(), "replay"); err == nil {
		t.Error("expected error without a file argument")
	}
}

func TestRootCmd_ConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copilot.yaml")
	os.WriteFile(path, []byte("copilot:\n  mode: sideways\n"), 0o600)
	if _, err := run(t, testDeps(), "--config", path, "replay", writeWAV(t)); err == nil {
		t.Error("expected invalid config file to fail")
	}
}

func TestTailCmd_RequiresBrokers(t *testing.T) {
	deps := testDeps()
	deps.Config.Kafka.Brokers = nil
	if _, err := run(t, deps, "tail"); err == nil || !strings.Contains(err.Error(), "brokers") {
		t.Errorf("expected missing brokers error, got %v", err)
	}
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC).UnixMilli()
	encode := func(v any) []byte {
		b, _ := json.Marshal(v)
		return b
	}

	tests := []struct {
		name  string
		value []byte
		want  string
	}{
		{
			name: "completed turn",
			value: encode(models.TurnEvent{
				EventType: models.EventTurnCompleted, SessionID: "sess", Timestamp: ts,
				TurnID: "sess-turn-1", Index: 0, Question: "What is RCA?", Answer: "Root cause analysis.", Status: "complete",
			}),
			want: `10:30:00.000 sess turn.completed turn=sess-turn-1 index=0 status=complete question="What is RCA?" answer="Root cause analysis."`,
		},
		{
			name:  "cleared",
			value: encode(models.TurnEvent{EventType: models.EventTranscriptCleared, SessionID: "sess", Timestamp: ts}),
			want:  "10:30:00.000 sess transcript.cleared",
		},
		{
			name: "status with error",
			value: encode(models.StatusEvent{
				EventType: models.EventSessionStatus, SessionID: "sess", Timestamp: ts,
				State: "error", Text: "Session not started", ErrorKind: "source_unavailable",
			}),
			want: `10:30:00.000 sess session.status state=error text="Session not started" error=source_unavailable`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatEvent(tt.value)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}

	if _, err := formatEvent([]byte("{")); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
