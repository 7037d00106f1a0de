// Package claude adapts the Claude Code CLI
// (`claude --print --output-format stream-json`).
//
// claude.go - command building and stream translation
//
// Stream model: a system/init event carries the session_id; assistant
// messages carry text, thinking, and tool_use content blocks; user
// messages carry tool_result blocks; a final result message carries
// the answer and usage accounting.

package claude

import (
	"strings"

	"github.com/HyphaGroup/warden/internal/engine"
	"github.com/HyphaGroup/warden/internal/engine/jsonutil"
	"github.com/HyphaGroup/warden/internal/event"
)

// EngineName is the stable engine identifier.
const EngineName = "claude"

// Adapter implements engine.Adapter for Claude Code.
type Adapter struct {
	*engine.Base

	thinking int
	fallback strings.Builder // assistant text, used when result has none
}

var _ engine.Adapter = (*Adapter)(nil)

// New creates a Claude adapter for one run.
func New(req engine.Request) (*Adapter, error) {
	base, err := engine.NewBase(EngineName, req)
	if err != nil {
		return nil, err
	}
	return &Adapter{Base: base}, nil
}

func (a *Adapter) Engine() string { return EngineName }

// BuildCommand builds the non-interactive streaming invocation.
func (a *Adapter) BuildCommand() (string, []string) {
	args := []string{"--print", "--verbose", "--output-format", "stream-json"}
	if a.Req.Resume != nil {
		args = append(args, "--resume", a.Req.Resume.Value)
	}
	if m := a.Req.Config.Model; m != "" {
		args = append(args, "--model", m)
	}
	if tools := a.Req.Config.AllowedTools; len(tools) > 0 {
		args = append(args, "--allowedTools", strings.Join(tools, ","))
	}
	if a.Req.Config.SkipPermissions() {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, a.Req.Config.ExtraArgs...)
	args = append(args, a.Req.Prompt)
	return "claude", args
}

func (a *Adapter) StdinPayload() []byte { return nil }

func (a *Adapter) DecodeLine(line []byte) (map[string]any, error) {
	return engine.DecodeJSONLine(line)
}

func (a *Adapter) HandleExitError(exitCode int) []*event.Event {
	return a.ExitErrorEvents(exitCode)
}

func (a *Adapter) HandleStreamEnd() []*event.Event {
	return a.StreamEndEvents()
}

// TranslateEvent dispatches on the top-level message type. Unknown
// types translate to nothing.
func (a *Adapter) TranslateEvent(data map[string]any) (engine.Translation, error) {
	switch jsonutil.Str(data, "type") {
	case "system":
		return a.translateSystem(data)
	case "assistant":
		return a.translateAssistant(data)
	case "user":
		return a.translateUser(data)
	case "result":
		return a.translateResult(data)
	case "error":
		msg := jsonutil.StrOr(data, "message", jsonutil.StrOr(data, "error", "unknown error"))
		return engine.Translation{Events: []*event.Event{a.Factory.Note(msg, false, "error")}}, nil
	}
	return engine.Translation{}, nil
}

func (a *Adapter) translateSystem(data map[string]any) (engine.Translation, error) {
	if jsonutil.Str(data, "subtype") != "init" {
		return engine.Translation{}, nil
	}
	sid := jsonutil.Str(data, "session_id")
	if sid == "" || a.StartedEmitted() {
		return engine.Translation{}, nil
	}
	token := event.ResumeToken{Engine: EngineName, Value: sid}
	started, err := a.Factory.Started(token, "", map[string]any{
		"model": jsonutil.Str(data, "model"),
	})
	if err != nil {
		return engine.Translation{}, err
	}
	a.MarkStarted(token)
	return engine.Translation{
		Events:       []*event.Event{started},
		FoundSession: &token,
	}, nil
}

func (a *Adapter) translateAssistant(data map[string]any) (engine.Translation, error) {
	message := jsonutil.Map(data, "message")
	if message == nil {
		return engine.Translation{}, nil
	}

	var events []*event.Event
	for _, block := range jsonutil.Slice(message, "content") {
		cm, ok := block.(map[string]any)
		if !ok {
			continue
		}
		switch jsonutil.Str(cm, "type") {
		case "text":
			text := jsonutil.Str(cm, "text")
			a.fallback.WriteString(text)
			if denial := permissionDenial(text); denial != "" {
				events = append(events, a.Factory.Note(denial, false, "warn"))
			}
		case "thinking":
			a.thinking++
		case "tool_use":
			events = append(events, a.translateToolUse(cm))
		}
	}
	return engine.Translation{Events: events}, nil
}

func (a *Adapter) translateToolUse(cm map[string]any) *event.Event {
	id := jsonutil.Str(cm, "id")
	name := jsonutil.Str(cm, "name")
	input := jsonutil.Map(cm, "input")
	return a.TrackAction(id, toolKind(name), a.toolTitle(name, input), map[string]any{
		"tool":  name,
		"input": jsonutil.MarshalAny(input),
	})
}

func (a *Adapter) translateUser(data map[string]any) (engine.Translation, error) {
	message := jsonutil.Map(data, "message")
	if message == nil {
		return engine.Translation{}, nil
	}

	var events []*event.Event
	for _, block := range jsonutil.Slice(message, "content") {
		cm, ok := block.(map[string]any)
		if !ok || jsonutil.Str(cm, "type") != "tool_result" {
			continue
		}
		id := jsonutil.Str(cm, "tool_use_id")
		isErr := jsonutil.Bool(cm, "is_error")
		content := toolResultText(cm)
		events = append(events, a.CompleteAction(id, !isErr, map[string]any{
			"output": engine.TruncateTitle(content),
		}))
		if isErr {
			if denial := permissionDenial(content); denial != "" {
				events = append(events, a.Factory.Note(denial, false, "warn"))
			}
		}
	}
	return engine.Translation{Events: events}, nil
}

func (a *Adapter) translateResult(data map[string]any) (engine.Translation, error) {
	isErr := jsonutil.Bool(data, "is_error")
	answer := jsonutil.StrOr(data, "result", a.fallback.String())
	usage := jsonutil.Map(data, "usage")

	var done *event.Event
	if isErr {
		msg := jsonutil.StrOr(data, "error", "result reported an error")
		done = a.Factory.CompletedError(msg, answer, nil, usage)
	} else {
		done = a.Factory.CompletedOK(answer, nil, usage)
	}
	return engine.Translation{Events: []*event.Event{done}, Done: true}, nil
}

// toolKind maps Claude tool names to canonical action kinds.
func toolKind(name string) event.ActionKind {
	switch name {
	case "Bash":
		return event.ActionCommand
	case "Write", "Edit", "MultiEdit", "NotebookEdit":
		return event.ActionFileChange
	case "WebSearch", "WebFetch":
		return event.ActionWebSearch
	case "Task":
		return event.ActionSubagent
	case "TodoWrite":
		return event.ActionNote
	default:
		return event.ActionTool
	}
}

// toolTitle extracts the most human-useful title for a tool call.
func (a *Adapter) toolTitle(name string, input map[string]any) string {
	switch name {
	case "Bash":
		return engine.CommandTitle(jsonutil.Str(input, "command"))
	case "Read", "Write", "Edit", "MultiEdit", "NotebookEdit":
		if path := jsonutil.Str(input, "file_path"); path != "" {
			return engine.TruncateTitle(engine.RelativizePath(a.Req.Dir, path))
		}
	case "WebSearch":
		if q := jsonutil.Str(input, "query"); q != "" {
			return engine.TruncateTitle(q)
		}
	case "WebFetch":
		if u := jsonutil.Str(input, "url"); u != "" {
			return engine.TruncateTitle(u)
		}
	case "Task":
		if d := jsonutil.Str(input, "description"); d != "" {
			return engine.TruncateTitle(d)
		}
	}
	if name == "" {
		return "tool"
	}
	return engine.TruncateTitle(name)
}

// toolResultText flattens tool_result content, which may be a plain
// string or a list of content blocks.
func toolResultText(cm map[string]any) string {
	if s, ok := cm["content"].(string); ok {
		return s
	}
	var sb strings.Builder
	for _, block := range jsonutil.Slice(cm, "content") {
		bm, ok := block.(map[string]any)
		if !ok {
			continue
		}
		if t := jsonutil.Str(bm, "text"); t != "" {
			sb.WriteString(t)
		}
	}
	return sb.String()
}

// permissionDenial returns a short warning message when text looks
// like a permission refusal, or "".
func permissionDenial(text string) string {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "requested permissions") ||
		strings.Contains(lower, "permission to use") {
		return "permission denied: " + engine.TruncateTitle(text)
	}
	return ""
}
