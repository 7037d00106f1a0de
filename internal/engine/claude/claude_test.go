package claude

import (
	"strings"
	"testing"

	"github.com/HyphaGroup/warden/internal/config"
	"github.com/HyphaGroup/warden/internal/engine"
	"github.com/HyphaGroup/warden/internal/event"
)

func newAdapter(t *testing.T, req engine.Request) *Adapter {
	t.Helper()
	a, err := New(req)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func translate(t *testing.T, a *Adapter, line string) engine.Translation {
	t.Helper()
	data, err := a.DecodeLine([]byte(line))
	if err != nil {
		t.Fatalf("DecodeLine(%q) error = %v", line, err)
	}
	tr, err := a.TranslateEvent(data)
	if err != nil {
		t.Fatalf("TranslateEvent(%q) error = %v", line, err)
	}
	return tr
}

func TestBuildCommand(t *testing.T) {
	a := newAdapter(t, engine.Request{
		Prompt: "explain this",
		Config: config.Engine{
			Model:        "sonnet",
			AllowedTools: []string{"Bash", "Read"},
			Yolo:         true,
		},
	})
	exe, args := a.BuildCommand()
	if exe != "claude" {
		t.Errorf("exe = %q", exe)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"--print", "--output-format stream-json", "--model sonnet",
		"--allowedTools Bash,Read", "--dangerously-skip-permissions",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if args[len(args)-1] != "explain this" {
		t.Errorf("prompt should be the final argument, got %q", args[len(args)-1])
	}
}

func TestBuildCommandResume(t *testing.T) {
	a := newAdapter(t, engine.Request{
		Prompt: "continue",
		Resume: &event.ResumeToken{Engine: EngineName, Value: "sess_1"},
	})
	_, args := a.BuildCommand()
	if !strings.Contains(strings.Join(args, " "), "--resume sess_1") {
		t.Errorf("args = %v", args)
	}
}

// Mirrors the tool round-trip scenario: init, tool_use, tool_result,
// result.
func TestToolRoundTrip(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "ls it"})

	tr := translate(t, a, `{"type":"system","subtype":"init","session_id":"sess_1"}`)
	if len(tr.Events) != 1 || tr.Events[0].Type != event.TypeStarted {
		t.Fatalf("init events = %v", tr.Events)
	}
	if tr.FoundSession == nil || tr.FoundSession.Value != "sess_1" {
		t.Fatalf("FoundSession = %v", tr.FoundSession)
	}

	tr = translate(t, a, `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}}]}}`)
	act := tr.Events[0]
	if act.Action.ID != "t1" || act.Action.Kind != event.ActionCommand || act.Phase != event.PhaseStarted {
		t.Fatalf("tool_use action = %+v phase=%s", act.Action, act.Phase)
	}
	if act.Action.Title != "ls" {
		t.Errorf("title = %q, want ls", act.Action.Title)
	}

	tr = translate(t, a, `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"file1\nfile2","is_error":false}]}}`)
	done := tr.Events[0]
	if done.Phase != event.PhaseCompleted || !done.Succeeded() {
		t.Fatalf("tool_result = %+v ok=%v", done, done.Succeeded())
	}
	// Correlated by id: kind preserved from the started phase.
	if done.Action.ID != "t1" || done.Action.Kind != event.ActionCommand {
		t.Errorf("completed action = %+v", done.Action)
	}

	tr = translate(t, a, `{"type":"result","is_error":false,"result":"ok","usage":{"input_tokens":3}}`)
	if !tr.Done {
		t.Fatal("result must set Done")
	}
	final := tr.Events[0]
	if final.Type != event.TypeCompleted || !final.Succeeded() || final.Answer != "ok" {
		t.Fatalf("final = %+v", final)
	}
	if final.Resume == nil || final.Resume.Value != "sess_1" {
		t.Errorf("final resume = %v, want sess_1", final.Resume)
	}
}

func TestOrphanToolResultFallsBack(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "x"})
	tr := translate(t, a, `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"ghost","content":"out","is_error":false}]}}`)
	done := tr.Events[0]
	if done.Action.Kind != event.ActionTool || done.Action.Title != "tool result" {
		t.Errorf("orphan completion = %+v, want tool/tool result fallback", done.Action)
	}
}

func TestAssistantTextIsFallbackAnswer(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "x"})
	translate(t, a, `{"type":"assistant","message":{"content":[{"type":"text","text":"the answer"}]}}`)
	tr := translate(t, a, `{"type":"result","is_error":false}`)
	if tr.Events[0].Answer != "the answer" {
		t.Errorf("answer = %q, want fallback text", tr.Events[0].Answer)
	}
}

func TestPermissionDenialEmitsWarning(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "x"})
	translate(t, a, `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"rm -rf /"}}]}}`)
	tr := translate(t, a, `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"Permission denied by policy","is_error":true}]}}`)

	if len(tr.Events) != 2 {
		t.Fatalf("events = %v, want completion + warning", tr.Events)
	}
	warn := tr.Events[1]
	if warn.Action.Kind != event.ActionWarning || warn.Succeeded() {
		t.Errorf("warning = %+v", warn)
	}
}

func TestThinkingBlocksCountedNotEmitted(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "x"})
	tr := translate(t, a, `{"type":"assistant","message":{"content":[{"type":"thinking","thinking":"hmm"}]}}`)
	if len(tr.Events) != 0 {
		t.Errorf("thinking produced events: %v", tr.Events)
	}
	if a.thinking != 1 {
		t.Errorf("thinking counter = %d", a.thinking)
	}
}

func TestResultErrorCompletion(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "x"})
	tr := translate(t, a, `{"type":"result","is_error":true,"error":"budget exceeded"}`)
	done := tr.Events[0]
	if done.Succeeded() || done.Err != "budget exceeded" {
		t.Errorf("error result = ok=%v err=%q", done.Succeeded(), done.Err)
	}
}

func TestUnknownTypesTolerated(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "x"})
	for _, line := range []string{
		`{"type":"stream_event","event":{"type":"message_start"}}`,
		`{"type":"mystery"}`,
		`{"type":"system","subtype":"status"}`,
	} {
		tr := translate(t, a, line)
		if len(tr.Events) != 0 {
			t.Errorf("line %q produced %v", line, tr.Events)
		}
	}
}

func TestEnvScrubbing(t *testing.T) {
	t.Setenv("HOME", "/home/u")
	t.Setenv("LC_ALL", "C.UTF-8")
	t.Setenv("SUPER_SECRET", "x")
	t.Setenv("KEEP_ME", "y")

	a := newAdapter(t, engine.Request{Prompt: "x", Config: config.Engine{
		ScrubEnv:     true,
		EnvAllowlist: []string{"KEEP_ME"},
		EnvOverrides: map[string]string{"NODE_ENV": "production"},
	}})

	env := a.Env()
	joined := strings.Join(env, "\n")
	for _, want := range []string{"HOME=/home/u", "LC_ALL=C.UTF-8", "KEEP_ME=y", "NODE_ENV=production"} {
		if !strings.Contains(joined, want) {
			t.Errorf("env missing %q:\n%s", want, joined)
		}
	}
	if strings.Contains(joined, "SUPER_SECRET") {
		t.Error("scrubbed env leaked SUPER_SECRET")
	}
}

func TestEnvInheritWhenNotScrubbed(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "x"})
	if env := a.Env(); env != nil {
		t.Errorf("Env() = %v, want nil (inherit)", env)
	}
}
