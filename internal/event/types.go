// Package event defines the unified event model shared by all engine
// adapters.
//
// types.go - Event, Action, and ResumeToken types
//
// This file contains:
// - ResumeToken identifying a resumable engine session
// - Action and ActionKind for discrete agent side effects
// - Event, the tagged variant covering Started/Action/Completed
//
// Every adapter translates its native JSONL schema into these types,
// so consumers never see engine-specific shapes.

package event

import "fmt"

// ResumeToken identifies a resumable session on a specific engine.
// Immutable once created.
type ResumeToken struct {
	Engine string `json:"engine"`
	Value  string `json:"value"`
}

func (t ResumeToken) String() string {
	return t.Engine + ":" + t.Value
}

// IsZero reports whether the token is empty.
func (t ResumeToken) IsZero() bool {
	return t.Engine == "" && t.Value == ""
}

// ActionKind classifies a discrete side effect taken by the agent.
type ActionKind string

const (
	ActionCommand    ActionKind = "command"
	ActionTool       ActionKind = "tool"
	ActionFileChange ActionKind = "file_change"
	ActionWebSearch  ActionKind = "web_search"
	ActionSubagent   ActionKind = "subagent"
	ActionNote       ActionKind = "note"
	ActionTurn       ActionKind = "turn"
	ActionWarning    ActionKind = "warning"
	ActionTelemetry  ActionKind = "telemetry"
)

// Phase is the lifecycle phase of an action. An action transitions
// through exactly one "started", any number of "updated", and at most
// one "completed" phase.
type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseUpdated   Phase = "updated"
	PhaseCompleted Phase = "completed"
)

// Action is a discrete side effect attributed to the agent.
type Action struct {
	ID     string         `json:"id"`
	Kind   ActionKind     `json:"kind"`
	Title  string         `json:"title"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Type tags the event variant.
type Type string

const (
	TypeStarted   Type = "started"
	TypeAction    Type = "action"
	TypeCompleted Type = "completed"
)

// Event is the unified event emitted by adapters. It is a tagged
// variant: the Type field selects which group of fields is meaningful.
//
// Invariants for a single session's event sequence:
//  1. At most one Started event; if present it is first.
//  2. Exactly one Completed event, and it is last.
//  3. A completed Action either matches a prior started Action by ID
//     or is a legal fire-and-forget completion.
//  4. Completed.Resume is the session's own token or nil.
type Event struct {
	Type   Type   `json:"type"`
	Engine string `json:"engine"`

	// Started fields
	Resume *ResumeToken   `json:"resume,omitempty"`
	Title  string         `json:"title,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`

	// Action fields
	Action  *Action `json:"action,omitempty"`
	Phase   Phase   `json:"phase,omitempty"`
	OK      *bool   `json:"ok,omitempty"`
	Message string  `json:"message,omitempty"`
	Level   string  `json:"level,omitempty"`

	// Completed fields (OK is shared with Action completions)
	Answer string         `json:"answer,omitempty"`
	Err    string         `json:"error,omitempty"`
	Usage  map[string]any `json:"usage,omitempty"`
}

// Succeeded reports the OK flag, defaulting to true when unset.
func (e *Event) Succeeded() bool {
	if e.OK == nil {
		return true
	}
	return *e.OK
}

func (e *Event) String() string {
	switch e.Type {
	case TypeStarted:
		return fmt.Sprintf("started(%s, %s)", e.Engine, e.Resume)
	case TypeAction:
		return fmt.Sprintf("action(%s, %s, %s)", e.Action.Kind, e.Action.ID, e.Phase)
	case TypeCompleted:
		return fmt.Sprintf("completed(%s, ok=%v)", e.Engine, e.Succeeded())
	}
	return string(e.Type)
}

// boolPtr is a small helper for the optional OK field.
func boolPtr(b bool) *bool { return &b }
