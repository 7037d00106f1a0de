// Package kimi adapts the Kimi CLI.
//
// kimi.go - command building and stream translation
//
// Kimi never puts its session id on the stream. When a host-side
// sessions file is configured (a JSON map of working directory to
// session id) the adapter reconstructs the token from it and emits a
// Started ahead of the first translated event. Tool-call arguments
// may arrive as a JSON-encoded string and are re-decoded.

package kimi

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/HyphaGroup/warden/internal/engine"
	"github.com/HyphaGroup/warden/internal/engine/jsonutil"
	"github.com/HyphaGroup/warden/internal/event"
)

// EngineName is the stable engine identifier.
const EngineName = "kimi"

// Adapter implements engine.Adapter for Kimi.
type Adapter struct {
	*engine.Base

	// reconstructed is the caller's resume token, or the session token
	// recovered from the sessions file; emitted as a Started before the
	// first translated event.
	reconstructed *event.ResumeToken
	usage         map[string]any
}

var _ engine.Adapter = (*Adapter)(nil)

// New creates a Kimi adapter for one run, reconstructing the session
// id from the configured sessions file when not resuming explicitly.
func New(req engine.Request) (*Adapter, error) {
	base, err := engine.NewBase(EngineName, req)
	if err != nil {
		return nil, err
	}
	a := &Adapter{Base: base}
	if req.Resume == nil && req.Config.SessionsFile != "" {
		a.reconstructed = lookupSession(req.Config.SessionsFile, req.Dir)
	} else if req.Resume != nil {
		a.reconstructed = req.Resume
	}
	return a, nil
}

// lookupSession reads the work-dir → session map. Any failure means
// no reconstruction; it is never an error.
func lookupSession(path, dir string) *event.ResumeToken {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var sessions map[string]string
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil
	}
	if dir == "" {
		dir, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	id, ok := sessions[dir]
	if !ok || id == "" {
		return nil
	}
	return &event.ResumeToken{Engine: EngineName, Value: id}
}

func (a *Adapter) Engine() string { return EngineName }

// BuildCommand builds `kimi --jsonl [--session <id>] ... <prompt>`.
func (a *Adapter) BuildCommand() (string, []string) {
	args := []string{"--jsonl"}
	if a.Req.Resume != nil {
		args = append(args, "--session", a.Req.Resume.Value)
	}
	if m := a.Req.Config.Model; m != "" {
		args = append(args, "--model", m)
	}
	args = append(args, a.Req.Config.ExtraArgs...)
	args = append(args, a.Req.Prompt)
	return "kimi", args
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

// TranslateEvent dispatches on the top-level type field, prepending
// the reconstructed Started once.
func (a *Adapter) TranslateEvent(data map[string]any) (engine.Translation, error) {
	tr, err := a.translate(data)
	if err != nil {
		return engine.Translation{}, err
	}
	return a.withStarted(tr)
}

// withStarted prepends the reconstructed-session Started event ahead
// of the first real translation.
func (a *Adapter) withStarted(tr engine.Translation) (engine.Translation, error) {
	if a.StartedEmitted() || a.reconstructed == nil || len(tr.Events) == 0 {
		return tr, nil
	}
	token := *a.reconstructed
	started, err := a.Factory.Started(token, "", nil)
	if err != nil {
		return engine.Translation{}, err
	}
	a.MarkStarted(token)
	tr.Events = append([]*event.Event{started}, tr.Events...)
	if tr.FoundSession == nil {
		tr.FoundSession = &token
	}
	return tr, nil
}

func (a *Adapter) translate(data map[string]any) (engine.Translation, error) {
	switch jsonutil.Str(data, "type") {
	case "message":
		if jsonutil.Str(data, "role") == "assistant" {
			a.AppendAnswer(jsonutil.Str(data, "content"))
		}
		// Assistant text is surfaced on the final completion, not as
		// its own action.
		return engine.Translation{Events: []*event.Event{}}, nil
	case "tool_call":
		return a.translateToolCall(data), nil
	case "tool_result":
		id := jsonutil.Str(data, "id")
		ok := !jsonutil.Bool(data, "is_error")
		return engine.Translation{Events: []*event.Event{
			a.CompleteAction(id, ok, map[string]any{
				"output": engine.TruncateTitle(jsonutil.Str(data, "output")),
			}),
		}}, nil
	case "usage":
		a.usage = usageFields(data)
		return engine.Translation{Events: []*event.Event{}}, nil
	case "done":
		ok := true
		if v, exists := data["ok"].(bool); exists {
			ok = v
		}
		var done *event.Event
		if ok {
			done = a.Factory.CompletedOK(a.Answer(), nil, a.usage)
		} else {
			msg := jsonutil.StrOr(data, "error", "kimi reported failure")
			done = a.Factory.CompletedError(msg, a.Answer(), nil, a.usage)
		}
		return engine.Translation{Events: []*event.Event{done}, Done: true}, nil
	case "error":
		msg := jsonutil.StrOr(data, "message", "unknown error")
		return engine.Translation{Events: []*event.Event{a.Factory.Note(msg, false, "error")}}, nil
	}
	return engine.Translation{}, nil
}

func (a *Adapter) translateToolCall(data map[string]any) engine.Translation {
	id := jsonutil.Str(data, "id")
	name := jsonutil.StrOr(data, "name", "tool")
	args := toolArguments(data)

	kind := event.ActionTool
	title := engine.TruncateTitle(name)
	switch name {
	case "shell", "bash", "execute":
		kind = event.ActionCommand
		if cmd := jsonutil.Str(args, "command"); cmd != "" {
			title = engine.CommandTitle(cmd)
		}
	case "write_file", "edit_file", "apply_patch":
		kind = event.ActionFileChange
		if path := jsonutil.Str(args, "path"); path != "" {
			title = engine.TruncateTitle(engine.RelativizePath(a.Req.Dir, path))
		}
	case "web_search", "search":
		kind = event.ActionWebSearch
		if q := jsonutil.Str(args, "query"); q != "" {
			title = engine.TruncateTitle(q)
		}
	}

	return engine.Translation{Events: []*event.Event{
		a.TrackAction(id, kind, title, map[string]any{
			"tool":      name,
			"arguments": jsonutil.MarshalAny(args),
		}),
	}}
}

// toolArguments returns the decoded arguments map, re-decoding the
// JSON-encoded string form Kimi sometimes emits.
func toolArguments(data map[string]any) map[string]any {
	if m := jsonutil.Map(data, "arguments"); m != nil {
		return m
	}
	if s := jsonutil.Str(data, "arguments"); s != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			return m
		}
	}
	return nil
}

// usageFields copies numeric usage fields, dropping the type tag.
func usageFields(data map[string]any) map[string]any {
	usage := make(map[string]any, len(data))
	for k, v := range data {
		if k == "type" {
			continue
		}
		usage[k] = v
	}
	if len(usage) == 0 {
		return nil
	}
	return usage
}
