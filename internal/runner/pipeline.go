// Package runner is the generic JSONL subprocess core.
//
// pipeline.go - line buffering, decode pipeline, Started policing
//
// Bytes are folded into a persistent buffer and split on newlines;
// the trailing partial chunk stays buffered. Each complete line runs
// through the adapter's decode and translate callbacks, and every
// emitted event is policed before publication.

package runner

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/HyphaGroup/warden/internal/engine"
	"github.com/HyphaGroup/warden/internal/event"
	"github.com/HyphaGroup/warden/internal/metrics"
	"github.com/HyphaGroup/warden/internal/sessionlock"
	"github.com/HyphaGroup/warden/internal/stream"
)

// consumeChunk folds a stdout chunk into the line buffer and drains
// every complete line. The fold is pure: any chunking of the same
// bytes yields the same line sequence.
func (r *Runner) consumeChunk(chunk []byte) {
	r.buf = append(r.buf, chunk...)
	for {
		idx := bytes.IndexByte(r.buf, '\n')
		if idx < 0 {
			return
		}
		line := bytes.TrimSuffix(r.buf[:idx], []byte("\r"))
		r.handleLine(line)
		r.buf = r.buf[idx+1:]
	}
}

// handleLine runs one complete line through the adapter pipeline.
func (r *Runner) handleLine(line []byte) {
	if r.fatal || r.doneFlag || len(line) == 0 {
		return
	}

	data, err := r.adapter.DecodeLine(line)
	if errors.Is(err, engine.ErrIgnoreLine) {
		return
	}
	if err != nil {
		r.recordDecodeError(line, err)
		return
	}

	tr, err := r.adapter.TranslateEvent(data)
	if err != nil {
		// Adapter callback failures are producer crashes, not engine
		// output problems.
		r.failStream(fmt.Sprintf("%s: translate: %v", stream.ReasonRunnerCrashed, err))
		return
	}
	r.applyTranslation(tr)
}

// recordDecodeError counts a malformed line, emitting a warning action
// for the first few only.
func (r *Runner) recordDecodeError(line []byte, err error) {
	r.decodeErrs++
	metrics.DecodeErrors.WithLabelValues(r.adapter.Engine()).Inc()
	if r.decodeErrs > maxDecodeWarnings {
		return
	}
	ev := r.factory.ActionCompleted(
		fmt.Sprintf("decode_%d", r.decodeErrs),
		event.ActionWarning,
		"Invalid JSONL line",
		false,
		map[string]any{
			"decode_error": err.Error(),
			"line":         engine.TruncateTitle(string(line)),
		},
	)
	r.publish(ev)
}

// applyTranslation applies session bookkeeping and publishes events in
// adapter order.
func (r *Runner) applyTranslation(tr engine.Translation) {
	if tr.Promoted && tr.FoundSession != nil {
		if !r.promoteSession(*tr.FoundSession) {
			return
		}
	} else if tr.FoundSession != nil && r.observed == nil {
		r.observed = tr.FoundSession
	}

	for _, ev := range tr.Events {
		if !r.policeAndPublish(ev) {
			return
		}
	}
	if tr.Done {
		r.doneFlag = true
	}
}

// promoteSession re-keys the session lock: the identifier the run was
// keyed under changed form (pi's long path becoming a short id). The
// original key is left unlocked.
func (r *Runner) promoteSession(token event.ResumeToken) bool {
	if r.expected != nil && *r.expected == token {
		return true
	}
	if r.lockHeld && r.expected != nil {
		r.reg.Release(*r.expected, r.id)
		metrics.LocksHeld.Dec()
		r.lockHeld = false
	}
	if err := r.reg.Acquire(token, r.identity()); err != nil {
		r.failLocked(token)
		return false
	}
	metrics.LocksHeld.Inc()
	r.lockHeld = true
	r.expected = &token
	r.observed = &token
	return true
}

// policeAndPublish enforces the Started invariants before publishing.
// Returns false when the stream was terminated.
func (r *Runner) policeAndPublish(ev *event.Event) bool {
	if ev == nil {
		return true
	}
	if ev.Type == event.TypeStarted {
		if !r.policeStarted(ev) {
			return false
		}
	}
	if ev.Type == event.TypeCompleted {
		r.doneFlag = true
	}
	r.publish(ev)
	return true
}

// policeStarted checks a Started event against the resumed token and
// any previously observed session, acquiring the lock for brand-new
// sessions.
func (r *Runner) policeStarted(ev *event.Event) bool {
	tok := ev.Resume
	if tok == nil {
		return true
	}
	if r.expected != nil && *tok != *r.expected {
		r.failMismatch(*r.expected, *tok)
		return false
	}
	if r.expected == nil && r.observed != nil && *tok != *r.observed {
		r.failMismatch(*r.observed, *tok)
		return false
	}

	if r.expected == nil {
		// First Started of a non-resumed session: take the lock now.
		if err := r.reg.Acquire(*tok, r.identity()); err != nil {
			r.failLocked(*tok)
			return false
		}
		metrics.LocksHeld.Inc()
		r.lockHeld = true
		r.expected = tok
	}
	r.observed = tok
	return true
}

func (r *Runner) failMismatch(expected, got event.ResumeToken) {
	r.failStream(fmt.Sprintf("session_mismatch: expected %s, got %s", expected, got))
}

func (r *Runner) failLocked(tok event.ResumeToken) {
	r.failStream(fmt.Sprintf("%s: %s", sessionlock.ErrSessionLocked.Error(), tok))
}

// failStream releases the session locks, terminates the stream with an
// error, and hard-kills the child. The supervision loop finishes via the
// normal exit path.
func (r *Runner) failStream(reason string) {
	r.fatal = true
	r.releaseLocks()
	r.stream.Fail(reason)
	killTree(r.cmd)
}

// publish pushes one unified event, blocking under back-pressure.
func (r *Runner) publish(ev *event.Event) {
	metrics.EventsPublished.WithLabelValues(r.adapter.Engine(), string(ev.Type)).Inc()
	r.stream.Push(stream.Item{Type: stream.ItemEvent, Event: ev})
}
