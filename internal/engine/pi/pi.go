// Package pi adapts the Pi CLI.
//
// pi.go - command building and stream translation
//
// Pi requires an explicit session path or token on the command line.
// When the caller is not resuming, the adapter creates a fresh
// filesystem path under a config-derived base. After the first
// observed session header the long path is promoted to the short id
// the header carries: resume downstream uses the short id, and the
// runner re-keys the session lock accordingly.

package pi

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/HyphaGroup/warden/internal/engine"
	"github.com/HyphaGroup/warden/internal/engine/jsonutil"
	"github.com/HyphaGroup/warden/internal/event"
)

// EngineName is the stable engine identifier.
const EngineName = "pi"

// Adapter implements engine.Adapter for Pi.
type Adapter struct {
	*engine.Base

	// sessionArg is the --session value passed on the command line:
	// the caller's token, or a freshly generated path.
	sessionArg string
	generated  bool
	usage      map[string]any
}

var _ engine.Adapter = (*Adapter)(nil)

// New creates a Pi adapter for one run, generating a session path
// when the caller did not supply one.
func New(req engine.Request) (*Adapter, error) {
	base, err := engine.NewBase(EngineName, req)
	if err != nil {
		return nil, err
	}
	a := &Adapter{Base: base}
	if req.Resume != nil {
		a.sessionArg = req.Resume.Value
	} else {
		a.sessionArg = newSessionPath(req.Config.SessionBase)
		a.generated = true
	}
	return a, nil
}

// newSessionPath creates a fresh session directory under base.
func newSessionPath(base string) string {
	if base == "" {
		base = filepath.Join(os.TempDir(), "pi-sessions")
	}
	path := filepath.Join(base, uuid.NewString())
	_ = os.MkdirAll(path, 0o755)
	return path
}

func (a *Adapter) Engine() string { return EngineName }

// SessionArg returns the --session value for this run. Exposed for
// the facade, which treats it as the provisional resume token until
// promotion.
func (a *Adapter) SessionArg() string { return a.sessionArg }

// BuildCommand builds `pi --print --session <path|id> ... <prompt>`.
func (a *Adapter) BuildCommand() (string, []string) {
	args := []string{"--print", "--session", a.sessionArg}
	if m := a.Req.Config.Model; m != "" {
		args = append(args, "--model", m)
	}
	if p := a.Req.Config.Provider; p != "" {
		args = append(args, "--provider", p)
	}
	args = append(args, a.Req.Config.ExtraArgs...)
	args = append(args, a.Req.Prompt)
	return "pi", args
}

func (a *Adapter) StdinPayload() []byte { return nil }

// Env suppresses interactive formatting so the JSONL channel stays
// machine-parseable.
func (a *Adapter) Env() []string {
	return append(os.Environ(), "NO_COLOR=1", "CI=1")
}

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
	case "session":
		return a.translateSessionHeader(data)
	case "message":
		if jsonutil.Str(data, "role") == "assistant" {
			a.AppendAnswer(messageText(data))
		}
		return engine.Translation{}, nil
	case "tool":
		return a.translateTool(data), nil
	case "usage":
		a.usage = usageFields(data)
		return engine.Translation{}, nil
	case "result":
		return a.translateResult(data), nil
	case "error":
		msg := jsonutil.StrOr(data, "message", "unknown error")
		return engine.Translation{Events: []*event.Event{a.Factory.Note(msg, false, "error")}}, nil
	}
	return engine.Translation{}, nil
}

// translateSessionHeader promotes the session identifier: the short
// id from the header replaces the long path the command line used.
// The runner re-keys the session lock under the promoted token.
func (a *Adapter) translateSessionHeader(data map[string]any) (engine.Translation, error) {
	if a.StartedEmitted() {
		return engine.Translation{}, nil
	}
	id := jsonutil.StrOr(data, "id", a.sessionArg)
	token := event.ResumeToken{Engine: EngineName, Value: id}
	started, err := a.Factory.Started(token, "", nil)
	if err != nil {
		return engine.Translation{}, err
	}
	a.MarkStarted(token)
	return engine.Translation{
		Events:       []*event.Event{started},
		FoundSession: &token,
		Promoted:     id != a.sessionArg,
	}, nil
}

func (a *Adapter) translateTool(data map[string]any) engine.Translation {
	id := jsonutil.StrOr(data, "id", fmt.Sprintf("tool_%s", jsonutil.Str(data, "name")))
	name := jsonutil.StrOr(data, "name", "tool")
	args := jsonutil.Map(data, "args")

	kind := event.ActionTool
	title := engine.TruncateTitle(name)
	if name == "bash" || name == "shell" {
		kind = event.ActionCommand
		if cmd := jsonutil.Str(args, "command"); cmd != "" {
			title = engine.CommandTitle(cmd)
		}
	}

	switch jsonutil.Str(data, "phase") {
	case "start":
		return engine.Translation{Events: []*event.Event{
			a.TrackAction(id, kind, title, map[string]any{"tool": name}),
		}}
	case "update":
		return engine.Translation{Events: []*event.Event{
			a.UpdateAction(id, kind, title, nil),
		}}
	case "end":
		ok := !jsonutil.Bool(data, "is_error")
		return engine.Translation{Events: []*event.Event{
			a.CompleteAction(id, ok, map[string]any{
				"output": engine.TruncateTitle(jsonutil.Str(data, "output")),
			}),
		}}
	}
	return engine.Translation{}
}

func (a *Adapter) translateResult(data map[string]any) engine.Translation {
	ok := true
	if v, exists := data["ok"].(bool); exists {
		ok = v
	}
	answer := jsonutil.StrOr(data, "answer", a.Answer())

	var done *event.Event
	if ok {
		done = a.Factory.CompletedOK(answer, nil, a.usage)
	} else {
		msg := jsonutil.StrOr(data, "error", "pi reported failure")
		done = a.Factory.CompletedError(msg, answer, nil, a.usage)
	}
	return engine.Translation{Events: []*event.Event{done}, Done: true}
}

// messageText flattens message content, which may be a plain string
// or a list of text blocks.
func messageText(data map[string]any) string {
	if s, ok := data["content"].(string); ok {
		return s
	}
	var out string
	for _, block := range jsonutil.Slice(data, "content") {
		bm, ok := block.(map[string]any)
		if !ok {
			continue
		}
		out += jsonutil.Str(bm, "text")
	}
	return out
}

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
