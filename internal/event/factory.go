// Package event defines the unified event model shared by all engine
// adapters.
//
// factory.go - EventFactory
//
// The factory is stamped with an engine name and caches the current
// resume token, so adapters cannot accidentally emit events for the
// wrong engine or attach another session's token to a completion.

package event

import (
	"errors"
	"fmt"
	"sync"
)

// ErrEngineMismatch is returned when a token's engine disagrees with
// the factory's engine.
var ErrEngineMismatch = errors.New("resume token engine mismatch")

// Factory constructs unified events for one engine and one session.
// Safe for concurrent use, although adapters normally call it from a
// single runner goroutine.
type Factory struct {
	engine string

	mu      sync.Mutex
	resume  *ResumeToken
	noteSeq int
}

// NewFactory creates a factory stamped with the given engine name.
func NewFactory(engine string) *Factory {
	return &Factory{engine: engine}
}

// Engine returns the engine name the factory is stamped with.
func (f *Factory) Engine() string { return f.engine }

// Resume returns the cached resume token, or nil if none observed yet.
func (f *Factory) Resume() *ResumeToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resume
}

// SetResume caches the token without emitting an event. Used when the
// caller supplied a resume token before the child said anything.
func (f *Factory) SetResume(token ResumeToken) error {
	if token.Engine != f.engine {
		return fmt.Errorf("%w: factory=%s token=%s", ErrEngineMismatch, f.engine, token.Engine)
	}
	f.mu.Lock()
	f.resume = &token
	f.mu.Unlock()
	return nil
}

// Started builds a Started event and caches the token on the factory.
// Fails if the token belongs to a different engine.
func (f *Factory) Started(token ResumeToken, title string, meta map[string]any) (*Event, error) {
	if token.Engine != f.engine {
		return nil, fmt.Errorf("%w: factory=%s token=%s", ErrEngineMismatch, f.engine, token.Engine)
	}
	f.mu.Lock()
	f.resume = &token
	f.mu.Unlock()
	return &Event{
		Type:   TypeStarted,
		Engine: f.engine,
		Resume: &token,
		Title:  title,
		Meta:   meta,
	}, nil
}

// Action builds an Action event for an arbitrary phase.
func (f *Factory) Action(id string, kind ActionKind, title string, phase Phase, ok *bool, detail map[string]any) *Event {
	return &Event{
		Type:   TypeAction,
		Engine: f.engine,
		Action: &Action{ID: id, Kind: kind, Title: title, Detail: detail},
		Phase:  phase,
		OK:     ok,
	}
}

// ActionStarted builds an Action event in the started phase.
func (f *Factory) ActionStarted(id string, kind ActionKind, title string, detail map[string]any) *Event {
	return f.Action(id, kind, title, PhaseStarted, nil, detail)
}

// ActionUpdated builds an Action event in the updated phase.
func (f *Factory) ActionUpdated(id string, kind ActionKind, title string, detail map[string]any) *Event {
	return f.Action(id, kind, title, PhaseUpdated, nil, detail)
}

// ActionCompleted builds an Action event in the completed phase.
func (f *Factory) ActionCompleted(id string, kind ActionKind, title string, ok bool, detail map[string]any) *Event {
	return f.Action(id, kind, title, PhaseCompleted, boolPtr(ok), detail)
}

// Note builds a fire-and-forget action with an auto-generated id.
// Kind defaults to warning so notes stay visible across engines.
func (f *Factory) Note(message string, ok bool, level string) *Event {
	f.mu.Lock()
	f.noteSeq++
	id := fmt.Sprintf("note_%d", f.noteSeq)
	f.mu.Unlock()

	ev := f.Action(id, ActionWarning, message, PhaseCompleted, boolPtr(ok), nil)
	ev.Message = message
	ev.Level = level
	return ev
}

// CompletedOK builds a successful Completed event. When resume is nil
// the factory's cached token is used.
func (f *Factory) CompletedOK(answer string, resume *ResumeToken, usage map[string]any) *Event {
	return &Event{
		Type:   TypeCompleted,
		Engine: f.engine,
		OK:     boolPtr(true),
		Answer: answer,
		Resume: f.orCached(resume),
		Usage:  usage,
	}
}

// CompletedError builds a failed Completed event. When resume is nil
// the factory's cached token is used.
func (f *Factory) CompletedError(message, answer string, resume *ResumeToken, usage map[string]any) *Event {
	return &Event{
		Type:   TypeCompleted,
		Engine: f.engine,
		OK:     boolPtr(false),
		Err:    message,
		Answer: answer,
		Resume: f.orCached(resume),
		Usage:  usage,
	}
}

func (f *Factory) orCached(resume *ResumeToken) *ResumeToken {
	if resume != nil {
		return resume
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resume
}
