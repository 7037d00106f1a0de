// Package engine defines the callback protocol every engine adapter
// implements, plus the shared per-run state adapters build on.
//
// base.go - shared per-run adapter state
//
// This file contains:
// - Base, the state every adapter embeds: event factory, found
//   session, accumulated answer, pending-actions table
// - The fire-and-forget completion fallback for unmatched action ids
// - The shared terminal-event synthesis used by HandleExitError and
//   HandleStreamEnd

package engine

import (
	"fmt"
	"strings"

	"github.com/HyphaGroup/warden/internal/event"
)

// Base carries the adapter state the runner protocol needs. Adapters
// embed it and add engine-specific progress fields.
type Base struct {
	Factory *event.Factory
	Req     Request

	// FoundSession is the session token observed on the stream, if any.
	FoundSession *event.ResumeToken

	answer  strings.Builder
	pending map[string]*event.Action
	started bool
}

// NewBase seeds shared state for one run. A caller-supplied resume
// token is cached on the factory so synthesized completions carry it.
func NewBase(engine string, req Request) (*Base, error) {
	f := event.NewFactory(engine)
	if req.Resume != nil {
		if err := f.SetResume(*req.Resume); err != nil {
			return nil, err
		}
	}
	return &Base{
		Factory: f,
		Req:     req,
		pending: make(map[string]*event.Action),
	}, nil
}

// MarkStarted records that a Started event was emitted and caches the
// observed token.
func (b *Base) MarkStarted(token event.ResumeToken) {
	b.started = true
	b.FoundSession = &token
	_ = b.Factory.SetResume(token)
}

// StartedEmitted reports whether a Started event has been emitted.
func (b *Base) StartedEmitted() bool { return b.started }

// AppendAnswer accumulates final-answer text.
func (b *Base) AppendAnswer(text string) {
	if text == "" {
		return
	}
	if b.answer.Len() > 0 {
		b.answer.WriteString("\n")
	}
	b.answer.WriteString(text)
}

// Answer returns the accumulated final-answer text.
func (b *Base) Answer() string { return b.answer.String() }

// TrackAction records a started action so later phases can correlate.
// Returns the started-phase event.
func (b *Base) TrackAction(id string, kind event.ActionKind, title string, detail map[string]any) *event.Event {
	ev := b.Factory.ActionStarted(id, kind, title, detail)
	b.pending[id] = ev.Action
	return ev
}

// UpdateAction emits an updated phase for a tracked action. Untracked
// ids fall back to the given kind and title.
func (b *Base) UpdateAction(id string, kind event.ActionKind, title string, detail map[string]any) *event.Event {
	if open, ok := b.pending[id]; ok {
		kind, title = open.Kind, open.Title
	}
	return b.Factory.ActionUpdated(id, kind, title, detail)
}

// CompleteAction emits the completed phase for id, releasing the
// pending entry. A completion whose id has no open start is legal: it
// falls back to kind=tool, title="tool result".
func (b *Base) CompleteAction(id string, ok bool, detail map[string]any) *event.Event {
	if open, exists := b.pending[id]; exists {
		delete(b.pending, id)
		return b.Factory.ActionCompleted(id, open.Kind, open.Title, ok, detail)
	}
	return b.Factory.ActionCompleted(id, event.ActionTool, "tool result", ok, detail)
}

// PendingCount returns how many actions have started but not completed.
func (b *Base) PendingCount() int { return len(b.pending) }

// ExitErrorEvents is the shared HandleExitError synthesis: a failed
// Completed preserving the resume token and any captured answer.
func (b *Base) ExitErrorEvents(exitCode int) []*event.Event {
	msg := fmt.Sprintf("%s exited with code %d", b.Factory.Engine(), exitCode)
	return []*event.Event{
		b.Factory.CompletedError(msg, b.Answer(), nil, nil),
	}
}

// StreamEndEvents is the shared HandleStreamEnd synthesis: the child
// exited cleanly but never produced a result event.
func (b *Base) StreamEndEvents() []*event.Event {
	var msg string
	if !b.started && b.FoundSession == nil {
		msg = fmt.Sprintf("%s stream ended: no session_id captured", b.Factory.Engine())
	} else {
		msg = fmt.Sprintf("%s finished without a result event", b.Factory.Engine())
	}
	return []*event.Event{
		b.Factory.CompletedError(msg, b.Answer(), nil, nil),
	}
}
