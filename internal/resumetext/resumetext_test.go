package resumetext

import (
	"testing"

	"github.com/HyphaGroup/warden/internal/event"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		engine string
		value  string
	}{
		{"codex plain", "run this later:\ncodex resume thread_abc123\nthanks", "codex", "thread_abc123"},
		{"claude flag", "claude --resume sess-42", "claude", "sess-42"},
		{"kimi", "kimi --session kimi_77", "kimi", "kimi_77"},
		{"opencode", "opencode --session ses_abc123DEF", "opencode", "ses_abc123DEF"},
		{"opencode run", "opencode run --session ses_abc123DEF", "opencode", "ses_abc123DEF"},
		{"pi quoted", `pi --session "/tmp/pi sessions/x1"`, "pi", "/tmp/pi sessions/x1"},
		{"pi path", "pi --session /tmp/pi-sessions/x1", "pi", "/tmp/pi-sessions/x1"},
		{"lemon", "to continue: lemon resume abc", "lemon", "abc"},
		{"backticked", "resume with `codex resume thread_x`", "codex", "thread_x"},
		{"case insensitive", "CODEX RESUME THREAD_X", "codex", "THREAD_X"},
		{"fenced", "```\nclaude --resume sess_9\n```", "claude", "sess_9"},
		{"dollar prompt", "$ codex resume thread_y", "codex", "thread_y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, ok := Extract(tt.text)
			if !ok {
				t.Fatalf("Extract(%q) found nothing", tt.text)
			}
			if tok.Engine != tt.engine || tok.Value != tt.value {
				t.Errorf("Extract = %s:%s, want %s:%s", tok.Engine, tok.Value, tt.engine, tt.value)
			}
		})
	}
}

func TestExtractFirstMatchWins(t *testing.T) {
	text := "claude --resume first\ncodex resume second"
	tok, ok := Extract(text)
	if !ok || tok.Engine != "claude" || tok.Value != "first" {
		t.Errorf("Extract = %v, want the first line's claude token", tok)
	}
}

func TestExtractNoMatch(t *testing.T) {
	for _, text := range []string{
		"",
		"nothing to see here",
		"codex resumed the session", // wrong verb form boundary
		"resume thread_abc",
	} {
		if tok, ok := Extract(text); ok {
			t.Errorf("Extract(%q) = %v, want no match", text, tok)
		}
	}
}

func TestIsResumeLine(t *testing.T) {
	yes := []string{
		"codex resume thread_abc",
		"  claude --resume sess_1  ",
		"`opencode --session ses_abc12345`",
		"pi --session \"/tmp/x\"",
		"lemon resume id9",
	}
	for _, line := range yes {
		if !IsResumeLine(line) {
			t.Errorf("IsResumeLine(%q) = false, want true", line)
		}
	}

	no := []string{
		"run codex resume thread_abc please",
		"codex resume",
		"totally unrelated",
		"claude --resume sess_1 && rm -rf /",
	}
	for _, line := range no {
		if IsResumeLine(line) {
			t.Errorf("IsResumeLine(%q) = true, want false", line)
		}
	}
}

func TestFormatRoundTrip(t *testing.T) {
	tokens := []event.ResumeToken{
		{Engine: "codex", Value: "thread_1"},
		{Engine: "claude", Value: "sess_2"},
		{Engine: "kimi", Value: "kimi_3"},
		{Engine: "opencode", Value: "ses_abc456"},
		{Engine: "pi", Value: "/tmp/pi-sessions/z"},
		{Engine: "lemon", Value: "lm_4"},
	}
	for _, tok := range tokens {
		line := Format(tok)
		if line == "" {
			t.Fatalf("Format(%v) empty", tok)
		}
		got, ok := Extract(line)
		if !ok || got != tok {
			t.Errorf("round trip %v → %q → %v", tok, line, got)
		}
		if !IsResumeLine(line) {
			t.Errorf("IsResumeLine(Format(%v)) = false", tok)
		}
	}
}

func TestFormatQuotesPiPathsWithSpaces(t *testing.T) {
	line := Format(event.ResumeToken{Engine: "pi", Value: "/tmp/pi sessions/x"})
	if line != `pi --session "/tmp/pi sessions/x"` {
		t.Errorf("Format = %q", line)
	}
}

func TestFormatUnknownEngine(t *testing.T) {
	if line := Format(event.ResumeToken{Engine: "mystery", Value: "x"}); line != "" {
		t.Errorf("Format unknown = %q, want empty", line)
	}
}
