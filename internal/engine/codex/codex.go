// Package codex adapts the Codex CLI (`codex exec --json`).
//
// codex.go - command building and stream translation
//
// Stream model: a session is a thread (thread.started carries the
// resumable thread id), turns are bracketed by turn.started and
// turn.completed/turn.failed, and work arrives as items
// (command_execution, file_change, mcp_tool_call, web_search,
// todo_list, reasoning, agent_message, error) with started/updated/
// completed lifecycle events.

package codex

import (
	"fmt"
	"strings"

	"github.com/HyphaGroup/warden/internal/engine"
	"github.com/HyphaGroup/warden/internal/engine/jsonutil"
	"github.com/HyphaGroup/warden/internal/event"
)

// EngineName is the stable engine identifier.
const EngineName = "codex"

// Adapter implements engine.Adapter for Codex.
type Adapter struct {
	*engine.Base

	turnIdx      int
	thinking     int
	itemSeq      int
	reconnecting bool
	usage        map[string]any
}

var _ engine.Adapter = (*Adapter)(nil)

// New creates a Codex adapter for one run.
func New(req engine.Request) (*Adapter, error) {
	base, err := engine.NewBase(EngineName, req)
	if err != nil {
		return nil, err
	}
	return &Adapter{Base: base}, nil
}

func (a *Adapter) Engine() string { return EngineName }

// BuildCommand builds `codex exec [resume <id>] --json ... -- <prompt>`.
func (a *Adapter) BuildCommand() (string, []string) {
	args := []string{"exec"}
	if a.Req.Resume != nil {
		args = append(args, "resume", a.Req.Resume.Value)
	}
	args = append(args, "--json", "--skip-git-repo-check")
	if m := a.Req.Config.Model; m != "" {
		args = append(args, "-m", m)
	}
	if a.Req.Config.AutoApprove {
		args = append(args, "--full-auto")
	}
	args = append(args, a.Req.Config.ExtraArgs...)
	args = append(args, "--", a.Req.Prompt)
	return "codex", args
}

func (a *Adapter) StdinPayload() []byte { return nil }

func (a *Adapter) Env() []string { return nil }

func (a *Adapter) DecodeLine(line []byte) (map[string]any, error) {
	return engine.DecodeJSONLine(line)
}

// HandleExitError and HandleStreamEnd use the shared synthesis.
func (a *Adapter) HandleExitError(exitCode int) []*event.Event {
	return a.ExitErrorEvents(exitCode)
}

func (a *Adapter) HandleStreamEnd() []*event.Event {
	return a.StreamEndEvents()
}

// TranslateEvent dispatches on the top-level type field. Unknown event
// types translate to nothing.
func (a *Adapter) TranslateEvent(data map[string]any) (engine.Translation, error) {
	switch jsonutil.Str(data, "type") {
	case "thread.started":
		return a.translateThreadStarted(data)
	case "turn.started":
		id := fmt.Sprintf("turn_%d", a.turnIdx)
		title := fmt.Sprintf("turn %d", a.turnIdx)
		a.turnIdx++
		return engine.Translation{
			Events: []*event.Event{a.TrackAction(id, event.ActionTurn, title, nil)},
		}, nil
	case "turn.completed":
		a.usage = jsonutil.Map(data, "usage")
		return engine.Translation{
			Events: []*event.Event{a.Factory.CompletedOK(a.Answer(), nil, a.usage)},
			Done:   true,
		}, nil
	case "turn.failed":
		return a.translateTurnFailed(data)
	case "item.started":
		return a.translateItem(data, event.PhaseStarted)
	case "item.updated":
		return a.translateItem(data, event.PhaseUpdated)
	case "item.completed":
		return a.translateItem(data, event.PhaseCompleted)
	case "error":
		msg := jsonutil.StrOr(data, "message", "unknown error")
		return engine.Translation{Events: []*event.Event{a.Factory.Note(msg, false, "error")}}, nil
	}

	// Reconnection chatter arrives as a stream message, not an event.
	if msg := jsonutil.Str(data, "message"); strings.Contains(msg, "Reconnecting") {
		return a.translateReconnecting(msg), nil
	}
	return engine.Translation{}, nil
}

func (a *Adapter) translateThreadStarted(data map[string]any) (engine.Translation, error) {
	tid := jsonutil.Str(data, "thread_id")
	if tid == "" || a.StartedEmitted() {
		return engine.Translation{}, nil
	}
	token := event.ResumeToken{Engine: EngineName, Value: tid}
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

func (a *Adapter) translateTurnFailed(data map[string]any) (engine.Translation, error) {
	msg := "turn failed"
	if errObj := jsonutil.Map(data, "error"); errObj != nil {
		msg = jsonutil.StrOr(errObj, "message", msg)
	}
	return engine.Translation{
		Events: []*event.Event{a.Factory.CompletedError(msg, a.Answer(), nil, a.usage)},
		Done:   true,
	}, nil
}

// translateReconnecting maps "Reconnecting…N/M" messages to a single
// note action: started on the first attempt, updated afterward.
func (a *Adapter) translateReconnecting(msg string) engine.Translation {
	phase := event.PhaseStarted
	if a.reconnecting {
		phase = event.PhaseUpdated
	}
	a.reconnecting = true
	return engine.Translation{
		Events: []*event.Event{
			a.Factory.Action("reconnect", event.ActionNote, engine.TruncateTitle(msg), phase, nil, nil),
		},
	}
}

// itemKinds maps Codex item types to unified action kinds. Item types
// absent here (reasoning, agent_message, error) need bespoke handling.
var itemKinds = map[string]event.ActionKind{
	"command_execution": event.ActionCommand,
	"file_change":       event.ActionFileChange,
	"file_changes":      event.ActionFileChange,
	"mcp_tool_call":     event.ActionTool,
	"web_search":        event.ActionWebSearch,
	"todo_list":         event.ActionNote,
}

func (a *Adapter) translateItem(data map[string]any, phase event.Phase) (engine.Translation, error) {
	item := jsonutil.Map(data, "item")
	if item == nil {
		return engine.Translation{}, nil
	}

	itemType := jsonutil.Str(item, "type")
	switch itemType {
	case "agent_message":
		if phase == event.PhaseCompleted {
			a.AppendAnswer(jsonutil.Str(item, "text"))
		}
		return engine.Translation{}, nil
	case "reasoning":
		if phase == event.PhaseCompleted {
			a.thinking++
		}
		return engine.Translation{}, nil
	case "error":
		if phase != event.PhaseCompleted {
			return engine.Translation{}, nil
		}
		msg := jsonutil.StrOr(item, "message", jsonutil.StrOr(item, "text", "unknown error"))
		return engine.Translation{Events: []*event.Event{a.Factory.Note(msg, false, "error")}}, nil
	}

	kind, known := itemKinds[itemType]
	if !known {
		// Unknown item types are tolerated silently.
		return engine.Translation{}, nil
	}

	id := jsonutil.Str(item, "id")
	if id == "" {
		a.itemSeq++
		id = fmt.Sprintf("%s_%d", itemType, a.itemSeq)
	}

	var ev *event.Event
	switch phase {
	case event.PhaseStarted:
		ev = a.TrackAction(id, kind, itemTitle(itemType, item), itemDetail(item))
	case event.PhaseUpdated:
		ev = a.UpdateAction(id, kind, itemTitle(itemType, item), itemDetail(item))
	case event.PhaseCompleted:
		ev = a.CompleteAction(id, itemOK(item), itemDetail(item))
	}
	return engine.Translation{Events: []*event.Event{ev}}, nil
}

func itemTitle(itemType string, item map[string]any) string {
	switch itemType {
	case "command_execution":
		return engine.CommandTitle(jsonutil.Str(item, "command"))
	case "mcp_tool_call":
		name := jsonutil.StrOr(item, "name", jsonutil.StrOr(item, "tool_name", "mcp_tool_call"))
		return engine.TruncateTitle(name)
	case "web_search":
		return engine.TruncateTitle(jsonutil.StrOr(item, "query", "web search"))
	case "todo_list":
		return "todo list"
	default:
		return engine.TruncateTitle(itemType)
	}
}

func itemOK(item map[string]any) bool {
	if jsonutil.Str(item, "status") == "failed" {
		return false
	}
	if code, ok := item["exit_code"].(float64); ok && code != 0 {
		return false
	}
	return true
}

// itemDetail keeps the raw item fields available to consumers without
// committing to the engine's exhaustive schema.
func itemDetail(item map[string]any) map[string]any {
	detail := make(map[string]any, len(item))
	for k, v := range item {
		if k == "type" {
			continue
		}
		// Nested structures are flattened to JSON strings so detail
		// stays a shallow map.
		switch v.(type) {
		case map[string]any, []any:
			detail[k] = jsonutil.MarshalAny(v)
		default:
			detail[k] = v
		}
	}
	if len(detail) == 0 {
		return nil
	}
	return detail
}
