// Package stream provides the bounded, multi-consumer, terminating
// event stream between a runner (single producer) and its consumers.
//
// stream.go - Stream type and producer API
//
// This file contains:
// - Item, the tagged stream element (cli_event, canceled, error, agent_end)
// - Stream, an append-ordered buffer with exactly-once termination
// - Producer operations: Push, PushAsync, Complete, Fail
//
// Guarantees:
// - FIFO delivery in push order, no reordering
// - The stream terminates exactly once; later pushes are dropped
// - Overflow is never silent: Push blocks, PushAsync terminates the
//   stream with a backpressure error
// - A crashed producer wakes every blocked consumer with an error item

package stream

import (
	"sync"

	"github.com/HyphaGroup/warden/internal/event"
)

// ItemType tags a stream element.
type ItemType string

const (
	ItemEvent    ItemType = "cli_event"
	ItemCanceled ItemType = "canceled"
	ItemError    ItemType = "error"
	ItemAgentEnd ItemType = "agent_end"
)

// Item is one element of the stream.
type Item struct {
	Type   ItemType       `json:"type"`
	Event  *event.Event   `json:"event,omitempty"`  // cli_event
	Reason string         `json:"reason,omitempty"` // canceled, error
	Meta   map[string]any `json:"meta,omitempty"`   // agent_end
	// Partial marks an error item that interrupted a stream which had
	// already delivered events.
	Partial bool `json:"partial,omitempty"`
}

// Reason constants for error and canceled items.
const (
	ReasonTimeout             = "timeout"
	ReasonOwnerDown           = "owner_down"
	ReasonRunnerCrashed       = "runner_crashed"
	ReasonBackpressureDropped = "backpressure_dropped"
)

// DefaultCapacity bounds the number of unconsumed items buffered
// before the producer blocks.
const DefaultCapacity = 256

// Stream is a single-producer, multi-consumer terminating sequence of
// items. Readers attach via NewReader and each observes the full item
// sequence independently.
type Stream struct {
	mu   sync.Mutex
	cond *sync.Cond

	items      []Item
	base       int // logical index of items[0]
	capacity   int
	terminated bool
	pushed     int // count of cli_event items, for Partial marking

	readers []*Reader

	done chan struct{}
}

// New creates a stream with the given unconsumed-item capacity.
// capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Stream {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Stream{
		capacity: capacity,
		done:     make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Done is closed once the stream has terminated.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Terminated reports whether a terminal item has been appended.
func (s *Stream) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// Push appends an item, blocking while the buffer is full. Returns
// false if the stream already terminated (the item is dropped).
func (s *Stream) Push(it Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.terminated {
			return false
		}
		if s.unconsumedLocked() < s.capacity {
			s.appendLocked(it, false)
			return true
		}
		s.cond.Wait()
	}
}

// PushAsync appends an item without blocking. On overflow the stream
// is terminated with a backpressure error and false is returned.
func (s *Stream) PushAsync(it Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return false
	}
	if s.unconsumedLocked() >= s.capacity {
		s.appendLocked(Item{
			Type:    ItemError,
			Reason:  ReasonBackpressureDropped,
			Partial: s.pushed > 0,
		}, true)
		return false
	}
	s.appendLocked(it, false)
	return true
}

// Complete terminates the stream with an agent_end marker. A no-op if
// already terminated.
func (s *Stream) Complete(meta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	s.appendLocked(Item{Type: ItemAgentEnd, Meta: meta}, true)
}

// Fail terminates the stream with an error item. Used for fatal
// conditions where no agent_end follows (session mismatch, lock denial,
// producer crash). A no-op if already terminated.
func (s *Stream) Fail(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	s.appendLocked(Item{Type: ItemError, Reason: reason, Partial: s.pushed > 0}, true)
}

// appendLocked appends it, optionally marking the stream terminated,
// and wakes all waiting readers and the blocked producer.
func (s *Stream) appendLocked(it Item, terminal bool) {
	s.items = append(s.items, it)
	if it.Type == ItemEvent {
		s.pushed++
	}
	if terminal {
		s.terminated = true
		close(s.done)
	}
	s.cond.Broadcast()
}

// unconsumedLocked returns how many items the slowest reader has not
// yet consumed. With no readers attached, the whole buffer counts as
// unconsumed.
func (s *Stream) unconsumedLocked() int {
	if len(s.readers) == 0 {
		return len(s.items)
	}
	minPos := int(^uint(0) >> 1)
	for _, r := range s.readers {
		if r.pos < minPos {
			minPos = r.pos
		}
	}
	return s.base + len(s.items) - minPos
}

// compactLocked drops items every reader has consumed, keeping memory
// bounded for long sessions.
func (s *Stream) compactLocked() {
	if len(s.readers) == 0 || len(s.items) == 0 {
		return
	}
	minPos := int(^uint(0) >> 1)
	for _, r := range s.readers {
		if r.pos < minPos {
			minPos = r.pos
		}
	}
	drop := minPos - s.base
	if drop <= 0 {
		return
	}
	if drop > len(s.items) {
		drop = len(s.items)
	}
	s.items = append(s.items[:0], s.items[drop:]...)
	s.base += drop
}
