package codex

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

func TestBuildCommandNew(t *testing.T) {
	a := newAdapter(t, engine.Request{
		Prompt: "fix the bug",
		Config: config.Engine{Model: "o4-mini", AutoApprove: true, ExtraArgs: []string{"--sandbox", "off"}},
	})
	exe, args := a.BuildCommand()
	if exe != "codex" {
		t.Errorf("exe = %q", exe)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{"exec", "--json", "-m o4-mini", "--full-auto", "--sandbox off", "-- fix the bug"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if strings.Contains(joined, "resume") {
		t.Errorf("new session args should not contain resume: %q", joined)
	}
}

func TestBuildCommandResume(t *testing.T) {
	a := newAdapter(t, engine.Request{
		Prompt: "continue",
		Resume: &event.ResumeToken{Engine: EngineName, Value: "thread_abc"},
	})
	_, args := a.BuildCommand()
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "exec resume thread_abc") {
		t.Errorf("resume args = %q", joined)
	}
}

func TestNewRejectsForeignToken(t *testing.T) {
	_, err := New(engine.Request{
		Prompt: "x",
		Resume: &event.ResumeToken{Engine: "claude", Value: "sess_1"},
	})
	if err == nil {
		t.Fatal("New with foreign token should fail")
	}
}

// Mirrors the happy-turn scenario: thread.started, turn.started,
// turn.completed.
func TestHappyTurn(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "hi"})

	tr := translate(t, a, `{"type":"thread.started","thread_id":"thread_abc"}`)
	if len(tr.Events) != 1 || tr.Events[0].Type != event.TypeStarted {
		t.Fatalf("thread.started events = %v", tr.Events)
	}
	if tr.FoundSession == nil || tr.FoundSession.Value != "thread_abc" {
		t.Fatalf("FoundSession = %v", tr.FoundSession)
	}

	tr = translate(t, a, `{"type":"turn.started"}`)
	if len(tr.Events) != 1 {
		t.Fatalf("turn.started events = %v", tr.Events)
	}
	act := tr.Events[0]
	if act.Action.ID != "turn_0" || act.Action.Kind != event.ActionTurn || act.Phase != event.PhaseStarted {
		t.Errorf("turn action = %+v phase=%s", act.Action, act.Phase)
	}

	tr = translate(t, a, `{"type":"turn.completed","usage":{"input_tokens":10,"output_tokens":5}}`)
	if !tr.Done {
		t.Fatal("turn.completed must set Done")
	}
	done := tr.Events[0]
	if done.Type != event.TypeCompleted || !done.Succeeded() {
		t.Fatalf("completed = %+v", done)
	}
	if done.Answer != "" {
		t.Errorf("answer = %q, want empty", done.Answer)
	}
	if done.Resume == nil || done.Resume.Value != "thread_abc" {
		t.Errorf("completed resume = %v, want thread_abc", done.Resume)
	}
	if got := done.Usage["input_tokens"]; got != float64(10) {
		t.Errorf("usage input_tokens = %v", got)
	}
}

func TestAgentMessageBecomesAnswer(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "hi"})
	translate(t, a, `{"type":"item.completed","item":{"type":"agent_message","text":"all done"}}`)
	tr := translate(t, a, `{"type":"turn.completed"}`)
	if tr.Events[0].Answer != "all done" {
		t.Errorf("answer = %q, want all done", tr.Events[0].Answer)
	}
}

func TestCommandItemLifecycle(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "hi"})

	tr := translate(t, a, `{"type":"item.started","item":{"id":"item_1","type":"command_execution","command":"ls -la"}}`)
	act := tr.Events[0]
	if act.Action.Kind != event.ActionCommand || act.Phase != event.PhaseStarted {
		t.Fatalf("started = %+v", act)
	}
	if act.Action.Title != "ls -la" {
		t.Errorf("title = %q", act.Action.Title)
	}

	tr = translate(t, a, `{"type":"item.completed","item":{"id":"item_1","type":"command_execution","command":"ls -la","exit_code":1}}`)
	done := tr.Events[0]
	if done.Phase != event.PhaseCompleted || done.Succeeded() {
		t.Fatalf("completed = %+v ok=%v", done, done.Succeeded())
	}
	// Identifier preserved across phases, kind preserved from the start.
	if done.Action.ID != "item_1" || done.Action.Kind != event.ActionCommand {
		t.Errorf("completed action = %+v", done.Action)
	}
	if a.PendingCount() != 0 {
		t.Errorf("pending = %d after completion", a.PendingCount())
	}
}

func TestTurnFailed(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "hi"})
	tr := translate(t, a, `{"type":"turn.failed","error":{"message":"usage limit"}}`)
	if !tr.Done {
		t.Fatal("turn.failed must set Done")
	}
	done := tr.Events[0]
	if done.Succeeded() || done.Err != "usage limit" {
		t.Errorf("completed = ok=%v err=%q", done.Succeeded(), done.Err)
	}
}

func TestReconnectingNote(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "hi"})

	tr := translate(t, a, `{"message":"Reconnecting…1/5"}`)
	if tr.Events[0].Phase != event.PhaseStarted {
		t.Errorf("first reconnect phase = %s, want started", tr.Events[0].Phase)
	}
	tr = translate(t, a, `{"message":"Reconnecting…2/5"}`)
	if tr.Events[0].Phase != event.PhaseUpdated {
		t.Errorf("second reconnect phase = %s, want updated", tr.Events[0].Phase)
	}
	if tr.Events[0].Action.ID != "reconnect" {
		t.Errorf("reconnect id = %q", tr.Events[0].Action.ID)
	}
}

func TestUnknownEventsAreTolerated(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "hi"})
	for _, line := range []string{
		`{"type":"session.configured"}`,
		`{"type":"item.completed","item":{"type":"hologram"}}`,
		`{"type":"item.completed"}`,
	} {
		tr := translate(t, a, line)
		if len(tr.Events) != 0 || tr.Done {
			t.Errorf("line %q translated to %v", line, tr.Events)
		}
	}
}

func TestStreamEndWithoutSession(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "hi"})
	events := a.HandleStreamEnd()
	if len(events) != 1 {
		t.Fatalf("events = %v", events)
	}
	done := events[0]
	if done.Succeeded() || !strings.Contains(done.Err, "no session_id captured") {
		t.Errorf("stream end = ok=%v err=%q", done.Succeeded(), done.Err)
	}
}

func TestExitErrorPreservesAnswerAndToken(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "hi"})
	translate(t, a, `{"type":"thread.started","thread_id":"thread_x"}`)
	translate(t, a, `{"type":"item.completed","item":{"type":"agent_message","text":"partial"}}`)

	events := a.HandleExitError(2)
	done := events[0]
	if done.Answer != "partial" {
		t.Errorf("answer = %q", done.Answer)
	}
	if done.Resume == nil || done.Resume.Value != "thread_x" {
		t.Errorf("resume = %v", done.Resume)
	}
	if !strings.Contains(done.Err, "code 2") {
		t.Errorf("err = %q", done.Err)
	}
}
