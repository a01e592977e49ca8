package ai

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAnalysis_Validate(t *testing.T) {
	tests := []struct {
		name       string
		in         Analysis
		noQuestion bool
		malformed  bool
	}{
		{"complete", Analysis{Question: "What is RCA?", Answer: "Root cause analysis"}, false, false},
		{"sentinel", Analysis{Question: NoQuestion}, true, false},
		{"sentinel lowercase padded", Analysis{Question: " no_question "}, true, false},
		{"empty", Analysis{}, false, true},
		{"missing answer", Analysis{Question: "Why?"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.IsNoQuestion(); got != tt.noQuestion {
				t.Errorf("IsNoQuestion() = %v, want %v", got, tt.noQuestion)
			}
			err := tt.in.Validate()
			if errors.Is(err, ErrMalformedResponse) != tt.malformed {
				t.Errorf("Validate() = %v, malformed want %v", err, tt.malformed)
			}
		})
	}
}

func TestInstructions(t *testing.T) {
	got, err := Instructions("", "")
	if err != nil || got != DefaultSystemPrompt {
		t.Errorf("Instructions defaults = %q, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "profile.md")
	if err := os.WriteFile(path, []byte("Senior O&M Engineer\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = Instructions("Be brief.", path)
	if err != nil {
		t.Fatalf("Instructions: %v", err)
	}
	if !strings.HasPrefix(got, "Be brief.") || !strings.Contains(got, "Senior O&M Engineer") {
		t.Errorf("unexpected instructions: %q", got)
	}

	if _, err := Instructions("", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing profile")
	}
}
