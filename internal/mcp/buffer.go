// Package mcp exposes the subagent facade as MCP tools.
//
// buffer.go - ring buffer for polling consumers
//
// MCP clients poll for events; the ring buffer stores a bounded
// window with index-based resumption. A client that falls behind the
// window gets an explicit error instead of silently missing events.
// This buffer consumes the runner's EventStream; overflow here drops
// only the polling client's view, never the stream itself.

package mcp

import (
	"fmt"
	"sync"

	"github.com/HyphaGroup/warden/internal/metrics"
	"github.com/HyphaGroup/warden/internal/subagent"
)

// DefaultEventBufferSize bounds buffered events per session.
const DefaultEventBufferSize = 1000

// BufferedEvent wraps a simplified event with its logical index.
type BufferedEvent struct {
	Index int                  `json:"index"`
	Event subagent.SimpleEvent `json:"event"`
}

// EventBuffer is a bounded ring of simplified events.
type EventBuffer struct {
	sessionID  string
	events     []BufferedEvent
	maxSize    int
	startIndex int
	dropped    int64
	mu         sync.RWMutex
}

// NewEventBuffer creates a buffer for one session.
func NewEventBuffer(sessionID string, maxSize int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = DefaultEventBufferSize
	}
	return &EventBuffer{
		sessionID: sessionID,
		events:    make([]BufferedEvent, 0, maxSize),
		maxSize:   maxSize,
	}
}

// Append adds an event and returns its index.
func (b *EventBuffer) Append(ev subagent.SimpleEvent) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	index := b.startIndex + len(b.events)
	if len(b.events) >= b.maxSize {
		b.events = b.events[1:]
		b.startIndex++
		b.dropped++
		metrics.BufferDrops.WithLabelValues(b.sessionID).Inc()
	}
	b.events = append(b.events, BufferedEvent{Index: index, Event: ev})
	return index
}

// After returns events after the given index (exclusive). index == -1
// returns everything buffered. An index before the retained window is
// an error: the client missed purged events.
func (b *EventBuffer) After(index int) ([]BufferedEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if index == -1 {
		return append([]BufferedEvent{}, b.events...), nil
	}
	if index < b.startIndex-1 {
		return nil, fmt.Errorf("events purged: requested after %d but window starts at %d", index, b.startIndex)
	}
	offset := index + 1 - b.startIndex
	if offset >= len(b.events) {
		return []BufferedEvent{}, nil
	}
	return append([]BufferedEvent{}, b.events[offset:]...), nil
}

// LastIndex returns the newest buffered index, or -1 when empty.
func (b *EventBuffer) LastIndex() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.events) == 0 {
		return b.startIndex - 1
	}
	return b.events[len(b.events)-1].Index
}

// Dropped returns how many events fell out of the window unread.
func (b *EventBuffer) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
