package harness

import (
	"strings"
	"testing"
)

func TestCodexBuildArgsFirstCall(t *testing.T) {
	h, err := NewCodexHarness(Config{Type: "codex"}, nil)
	if err != nil {
		t.Fatalf("NewCodexHarness failed: %v", err)
	}

	args := h.buildArgs("Implement the feature")
	want := []string{"exec", "Implement the feature", "--json"}
	if !sliceEqual(args, want) {
		t.Errorf("args = %v, want %v", args, want)
	}
}

func TestCodexBuildArgsResume(t *testing.T) {
	h, err := NewCodexHarness(Config{Type: "codex", SessionID: "thread-1"}, nil)
	if err != nil {
		t.Fatalf("NewCodexHarness failed: %v", err)
	}

	args := h.buildArgs("Keep going")
	want := []string{"resume", "thread-1", "Keep going", "--json"}
	if !sliceEqual(args, want) {
		t.Errorf("args = %v, want %v", args, want)
	}
}

func TestCodexBuildArgsModel(t *testing.T) {
	h, err := NewCodexHarness(Config{Type: "codex", Model: "gpt-5"}, nil)
	if err != nil {
		t.Fatalf("NewCodexHarness failed: %v", err)
	}

	args := h.buildArgs("Test")
	if !containsString(args, "--model") || !containsString(args, "gpt-5") {
		t.Errorf("expected model flag in args, got %v", args)
	}
}

func TestParseCodexEvents(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantThread string
		wantOutput string
		wantTokens int
		wantErr    bool
	}{
		{
			name: "thread start and turn complete",
			input: strings.Join([]string{
				`{"type":"ThreadStarted","thread_id":"th-42"}`,
				`{"type":"TurnCompleted","content":"Refactored.","usage":{"input_tokens":800,"output_tokens":200}}`,
			}, "\n"),
			wantThread: "th-42",
			wantOutput: "Refactored.",
			wantTokens: 1000,
		},
		{
			name: "usage sums across turns",
			input: strings.Join([]string{
				`{"type":"TurnCompleted","content":"step one","usage":{"input_tokens":100,"output_tokens":50}}`,
				`{"type":"TurnCompleted","content":"step two","usage":{"input_tokens":200,"output_tokens":75}}`,
			}, "\n"),
			wantOutput: "step two",
			wantTokens: 425,
		},
		{
			name:       "unknown events skipped",
			input:      `{"type":"SomethingElse","data":"x"}`,
			wantOutput: "",
		},
		{
			name:    "malformed line errors",
			input:   `{"type":"ThreadStarted"` + "\n" + `garbage`,
			wantErr: true,
		},
		{
			name:  "empty stream",
			input: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			threadID, content, usage, err := parseCodexEvents([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if threadID != tt.wantThread {
				t.Errorf("thread = %q, want %q", threadID, tt.wantThread)
			}
			if content != tt.wantOutput {
				t.Errorf("content = %q, want %q", content, tt.wantOutput)
			}
			if usage.Total() != tt.wantTokens {
				t.Errorf("tokens = %d, want %d", usage.Total(), tt.wantTokens)
			}
		})
	}
}
