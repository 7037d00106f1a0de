// Package stream provides the bounded, multi-consumer, terminating
// event stream between a runner and its consumers.
//
// reader.go - consumer-side cursor
//
// Each Reader holds an independent position into the stream. A slow
// reader exerts back-pressure on the producer; a reader timeout
// affects only that reader, never the stream or its siblings.

package stream

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDrained is returned once a reader has consumed the terminal item.
	ErrDrained = errors.New("stream drained")
	// ErrTimeout is returned when a bounded wait expires. The stream
	// itself is unaffected; the reader may keep polling.
	ErrTimeout = errors.New("stream read timeout")
)

// Reader is a consumer cursor over a Stream.
type Reader struct {
	s       *Stream
	pos     int // logical index of the next item to deliver
	drained bool
}

// NewReader attaches a new consumer at the current start of the
// retained buffer. Readers created before the first push observe the
// entire stream.
func (s *Stream) NewReader() *Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Reader{s: s, pos: s.base}
	s.readers = append(s.readers, r)
	return r
}

// Close detaches the reader so it no longer holds back compaction or
// back-pressure accounting.
func (r *Reader) Close() {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, other := range s.readers {
		if other == r {
			s.readers = append(s.readers[:i], s.readers[i+1:]...)
			break
		}
	}
	r.drained = true
	s.compactLocked()
	s.cond.Broadcast()
}

// Next returns the next item, blocking until one is available, the
// context is canceled, or the stream is drained.
func (r *Reader) Next(ctx context.Context) (Item, error) {
	return r.next(ctx, 0)
}

// NextTimeout returns the next item, waiting at most d. On expiry it
// returns ErrTimeout without disturbing the stream.
func (r *Reader) NextTimeout(ctx context.Context, d time.Duration) (Item, error) {
	return r.next(ctx, d)
}

func (r *Reader) next(ctx context.Context, timeout time.Duration) (Item, error) {
	if r.drained {
		return Item{}, ErrDrained
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if idx := r.pos - s.base; idx < len(s.items) {
			it := s.items[idx]
			r.pos++
			s.compactLocked()
			s.cond.Broadcast()
			if s.terminated && r.pos == s.base+len(s.items) {
				r.drained = true
			}
			return it, nil
		}
		if s.terminated {
			r.drained = true
			return Item{}, ErrDrained
		}
		if err := ctx.Err(); err != nil {
			return Item{}, err
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			return Item{}, ErrTimeout
		}
		r.waitLocked(ctx, deadline)
	}
}

// waitLocked blocks on the stream condition while honoring the context
// and deadline. The extra goroutine wakes the Cond when either fires.
func (r *Reader) waitLocked(ctx context.Context, deadline time.Time) {
	s := r.s

	stop := make(chan struct{})
	defer close(stop)

	var timer *time.Timer
	if !deadline.IsZero() {
		timer = time.NewTimer(time.Until(deadline))
		defer timer.Stop()
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
			return
		case <-timerChan(timer):
		}
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	}()

	s.cond.Wait()
}

func timerChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// Drain consumes the remainder of the stream and returns it as a
// slice, including the terminal item.
func (r *Reader) Drain(ctx context.Context) ([]Item, error) {
	var items []Item
	for {
		it, err := r.Next(ctx)
		if errors.Is(err, ErrDrained) {
			return items, nil
		}
		if err != nil {
			return items, err
		}
		items = append(items, it)
	}
}
