package engine

import (
	"strings"
	"testing"

	"github.com/HyphaGroup/warden/internal/event"
)

func TestCompleteActionCorrelation(t *testing.T) {
	b, err := NewBase("codex", Request{Prompt: "x"})
	if err != nil {
		t.Fatal(err)
	}

	b.TrackAction("t1", event.ActionCommand, "make", nil)
	if b.PendingCount() != 1 {
		t.Fatalf("pending = %d", b.PendingCount())
	}

	done := b.CompleteAction("t1", true, nil)
	if done.Action.Kind != event.ActionCommand || done.Action.Title != "make" {
		t.Errorf("correlated completion = %+v", done.Action)
	}
	if b.PendingCount() != 0 {
		t.Errorf("pending = %d after completion", b.PendingCount())
	}
}

func TestCompleteActionOrphanFallback(t *testing.T) {
	b, _ := NewBase("codex", Request{Prompt: "x"})
	done := b.CompleteAction("ghost", false, nil)
	if done.Action.Kind != event.ActionTool || done.Action.Title != "tool result" {
		t.Errorf("orphan completion = %+v", done.Action)
	}
}

func TestStreamEndMessageDependsOnSession(t *testing.T) {
	b, _ := NewBase("codex", Request{Prompt: "x"})
	events := b.StreamEndEvents()
	if !strings.Contains(events[0].Err, "no session_id captured") {
		t.Errorf("no-session message = %q", events[0].Err)
	}

	b2, _ := NewBase("codex", Request{Prompt: "x"})
	b2.MarkStarted(event.ResumeToken{Engine: "codex", Value: "thread_1"})
	events = b2.StreamEndEvents()
	if !strings.Contains(events[0].Err, "without a result event") {
		t.Errorf("with-session message = %q", events[0].Err)
	}
	if events[0].Resume == nil {
		t.Error("stream-end completion should preserve the resume token")
	}
}

func TestAnswerAccumulation(t *testing.T) {
	b, _ := NewBase("codex", Request{Prompt: "x"})
	b.AppendAnswer("part one")
	b.AppendAnswer("")
	b.AppendAnswer("part two")
	if b.Answer() != "part one\npart two" {
		t.Errorf("Answer() = %q", b.Answer())
	}
}
