// Package opencode adapts the OpenCode CLI (`opencode run`).
//
// opencode.go - command building and stream translation
//
// Stream model: every event carries a top-level type and sessionID;
// the session id is captured from the first step_start. Tool calls
// arrive post-completion as tool_use events carrying both input and
// output, so each maps to a started/completed action pair. A
// step_finish with reason "stop" is the terminal translated event.

package opencode

import (
	"fmt"
	"regexp"

	"github.com/HyphaGroup/warden/internal/engine"
	"github.com/HyphaGroup/warden/internal/engine/jsonutil"
	"github.com/HyphaGroup/warden/internal/event"
)

// EngineName is the stable engine identifier.
const EngineName = "opencode"

// validSessionID matches observed OpenCode session ids.
var validSessionID = regexp.MustCompile(`^ses_[a-zA-Z0-9]{8,64}$`)

// Adapter implements engine.Adapter for OpenCode.
type Adapter struct {
	*engine.Base

	thinking int
	toolSeq  int
}

var _ engine.Adapter = (*Adapter)(nil)

// New creates an OpenCode adapter for one run.
func New(req engine.Request) (*Adapter, error) {
	base, err := engine.NewBase(EngineName, req)
	if err != nil {
		return nil, err
	}
	return &Adapter{Base: base}, nil
}

func (a *Adapter) Engine() string { return EngineName }

// BuildCommand builds `opencode run [--session ses_x] ... <prompt>`.
func (a *Adapter) BuildCommand() (string, []string) {
	args := []string{"run", "--print-logs", "--format", "json"}
	if a.Req.Resume != nil {
		args = append(args, "--session", a.Req.Resume.Value)
	}
	if m := a.Req.Config.Model; m != "" {
		args = append(args, "--model", m)
	}
	args = append(args, a.Req.Config.ExtraArgs...)
	args = append(args, a.Req.Prompt)
	return "opencode", args
}

func (a *Adapter) StdinPayload() []byte { return nil }

func (a *Adapter) Env() []string { return nil }

func (a *Adapter) DecodeLine(line []byte) (map[string]any, error) {
	return engine.DecodeJSONLine(line)
}

func (a *Adapter) HandleExitError(exitCode int) []*event.Event {
	return a.ExitErrorEvents(exitCode)
}

func (a *Adapter) HandleStreamEnd() []*event.Event {
	return a.StreamEndEvents()
}

// TranslateEvent dispatches on the top-level type field.
func (a *Adapter) TranslateEvent(data map[string]any) (engine.Translation, error) {
	switch jsonutil.Str(data, "type") {
	case "step_start":
		return a.translateStepStart(data)
	case "text":
		if part := jsonutil.Map(data, "part"); part != nil {
			a.AppendAnswer(jsonutil.Str(part, "text"))
		}
		return engine.Translation{}, nil
	case "reasoning":
		a.thinking++
		return engine.Translation{}, nil
	case "tool_use":
		return a.translateToolUse(data), nil
	case "step_finish":
		return a.translateStepFinish(data), nil
	case "error":
		msg := jsonutil.StrOr(data, "message", "unknown error")
		return engine.Translation{Events: []*event.Event{a.Factory.Note(msg, false, "error")}}, nil
	}
	return engine.Translation{}, nil
}

// translateStepStart captures the session id write-once. Later
// step_start events (one per step) translate to nothing.
func (a *Adapter) translateStepStart(data map[string]any) (engine.Translation, error) {
	if a.StartedEmitted() {
		return engine.Translation{}, nil
	}
	sid := jsonutil.Str(data, "sessionID")
	if sid == "" || !validSessionID.MatchString(sid) {
		return engine.Translation{}, nil
	}
	token := event.ResumeToken{Engine: EngineName, Value: sid}
	started, err := a.Factory.Started(token, "", nil)
	if err != nil {
		return engine.Translation{}, err
	}
	a.MarkStarted(token)
	return engine.Translation{
		Events:       []*event.Event{started},
		FoundSession: &token,
	}, nil
}

// translateToolUse maps a post-completion tool_use to a started and a
// completed action sharing one id, preserving kind and title.
func (a *Adapter) translateToolUse(data map[string]any) engine.Translation {
	part := jsonutil.Map(data, "part")
	if part == nil {
		return engine.Translation{}
	}
	name := jsonutil.StrOr(part, "tool", "tool")
	state := jsonutil.Map(part, "state")

	a.toolSeq++
	id := jsonutil.StrOr(part, "id", fmt.Sprintf("tool_%d", a.toolSeq))

	kind, title := a.classifyTool(name, jsonutil.Map(state, "input"))
	ok := jsonutil.Str(state, "status") != "error"

	started := a.TrackAction(id, kind, title, map[string]any{
		"tool":  name,
		"input": jsonutil.MarshalAny(jsonutil.Map(state, "input")),
	})
	completed := a.CompleteAction(id, ok, map[string]any{
		"output": engine.TruncateTitle(jsonutil.Str(state, "output")),
	})
	return engine.Translation{Events: []*event.Event{started, completed}}
}

func (a *Adapter) classifyTool(name string, input map[string]any) (event.ActionKind, string) {
	switch name {
	case "bash", "shell":
		return event.ActionCommand, engine.CommandTitle(jsonutil.Str(input, "command"))
	case "write", "edit", "patch":
		if path := jsonutil.Str(input, "filePath"); path != "" {
			return event.ActionFileChange, engine.TruncateTitle(engine.RelativizePath(a.Req.Dir, path))
		}
		return event.ActionFileChange, engine.TruncateTitle(name)
	case "webfetch", "websearch":
		return event.ActionWebSearch, engine.TruncateTitle(jsonutil.StrOr(input, "url", jsonutil.StrOr(input, "query", name)))
	case "task":
		return event.ActionSubagent, engine.TruncateTitle(jsonutil.StrOr(input, "description", name))
	default:
		return event.ActionTool, engine.TruncateTitle(name)
	}
}

// translateStepFinish emits the terminal completion when the step
// finished for reason "stop"; other reasons (tool-calls etc.) mark
// turn boundaries and translate to nothing.
func (a *Adapter) translateStepFinish(data map[string]any) engine.Translation {
	if jsonutil.Str(data, "reason") != "stop" {
		return engine.Translation{}
	}
	var usage map[string]any
	if u := jsonutil.Map(data, "usage"); u != nil {
		usage = u
	} else if u := jsonutil.Map(data, "tokens"); u != nil {
		usage = u
	}
	return engine.Translation{
		Events: []*event.Event{a.Factory.CompletedOK(a.Answer(), nil, usage)},
		Done:   true,
	}
}
