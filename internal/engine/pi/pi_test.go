package pi

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HyphaGroup/warden/internal/config"
	"github.com/HyphaGroup/warden/internal/engine"
	"github.com/HyphaGroup/warden/internal/event"
)

func newAdapter(t *testing.T, req engine.Request) *Adapter {
	t.Helper()
	if req.Config.SessionBase == "" {
		req.Config.SessionBase = t.TempDir()
	}
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

func TestGeneratedSessionPath(t *testing.T) {
	base := t.TempDir()
	a := newAdapter(t, engine.Request{Prompt: "hi", Config: config.Engine{SessionBase: base}})

	if !strings.HasPrefix(a.SessionArg(), base+string(filepath.Separator)) {
		t.Errorf("session arg %q not under base %q", a.SessionArg(), base)
	}
	if info, err := os.Stat(a.SessionArg()); err != nil || !info.IsDir() {
		t.Errorf("session path should exist as a directory: %v", err)
	}

	_, args := a.BuildCommand()
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--session "+a.SessionArg()) {
		t.Errorf("args = %q missing session", joined)
	}
}

func TestExplicitResumeSkipsGeneration(t *testing.T) {
	a := newAdapter(t, engine.Request{
		Prompt: "hi",
		Resume: &event.ResumeToken{Engine: EngineName, Value: "pi_short_9"},
	})
	if a.SessionArg() != "pi_short_9" {
		t.Errorf("session arg = %q", a.SessionArg())
	}
}

func TestEnvSuppressesInteractiveFormatting(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "hi"})
	env := strings.Join(a.Env(), "\n")
	if !strings.Contains(env, "NO_COLOR=1") || !strings.Contains(env, "CI=1") {
		t.Errorf("env missing NO_COLOR/CI: %s", env)
	}
}

func TestSessionHeaderPromotion(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "hi"})

	tr := translate(t, a, `{"type":"session","id":"pi_short_1"}`)
	if len(tr.Events) != 1 || tr.Events[0].Type != event.TypeStarted {
		t.Fatalf("session header = %v", tr.Events)
	}
	if !tr.Promoted {
		t.Error("short id differing from the generated path must be a promotion")
	}
	if tr.FoundSession == nil || tr.FoundSession.Value != "pi_short_1" {
		t.Errorf("FoundSession = %v", tr.FoundSession)
	}

	// Resume downstream uses the promoted id.
	done := translate(t, a, `{"type":"result","ok":true}`)
	if done.Events[0].Resume.Value != "pi_short_1" {
		t.Errorf("completion resume = %v", done.Events[0].Resume)
	}
}

func TestSessionHeaderNoPromotionWhenSameToken(t *testing.T) {
	a := newAdapter(t, engine.Request{
		Prompt: "hi",
		Resume: &event.ResumeToken{Engine: EngineName, Value: "pi_short_2"},
	})
	tr := translate(t, a, `{"type":"session","id":"pi_short_2"}`)
	if tr.Promoted {
		t.Error("identical token must not be flagged as promotion")
	}
}

func TestToolLifecycle(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "hi"})

	tr := translate(t, a, `{"type":"tool","phase":"start","id":"t1","name":"bash","args":{"command":"make build"}}`)
	started := tr.Events[0]
	if started.Action.Kind != event.ActionCommand || started.Action.Title != "make build" {
		t.Fatalf("started = %+v", started.Action)
	}

	tr = translate(t, a, `{"type":"tool","phase":"update","id":"t1"}`)
	if tr.Events[0].Phase != event.PhaseUpdated {
		t.Errorf("update phase = %s", tr.Events[0].Phase)
	}

	tr = translate(t, a, `{"type":"tool","phase":"end","id":"t1","is_error":false,"output":"done"}`)
	completed := tr.Events[0]
	if completed.Phase != event.PhaseCompleted || !completed.Succeeded() {
		t.Errorf("completed = %+v", completed)
	}
	if completed.Action.Kind != event.ActionCommand {
		t.Errorf("kind not preserved: %v", completed.Action.Kind)
	}
}

func TestResultWithUsageAndAnswer(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "hi"})
	translate(t, a, `{"type":"message","role":"assistant","content":[{"type":"text","text":"hello"}]}`)
	translate(t, a, `{"type":"usage","input_tokens":4,"output_tokens":9}`)

	tr := translate(t, a, `{"type":"result","ok":true}`)
	if !tr.Done {
		t.Fatal("result must set Done")
	}
	done := tr.Events[0]
	if done.Answer != "hello" {
		t.Errorf("answer = %q", done.Answer)
	}
	if done.Usage["output_tokens"] != float64(9) {
		t.Errorf("usage = %v", done.Usage)
	}
}

func TestResultFailure(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "hi"})
	tr := translate(t, a, `{"type":"result","ok":false,"error":"provider unavailable"}`)
	done := tr.Events[0]
	if done.Succeeded() || done.Err != "provider unavailable" {
		t.Errorf("done = ok=%v err=%q", done.Succeeded(), done.Err)
	}
}

func TestUnknownEventsTolerated(t *testing.T) {
	a := newAdapter(t, engine.Request{Prompt: "hi"})
	tr := translate(t, a, `{"type":"telemetry","x":1}`)
	if len(tr.Events) != 0 {
		t.Errorf("telemetry translated to %v", tr.Events)
	}
}
