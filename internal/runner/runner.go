// Package runner is the generic JSONL subprocess core.
//
// runner.go - runner lifecycle
//
// One runner is one logical task owning its child process, its line
// buffer, its adapter, and the producer side of one event stream.
//
// Lifecycle:
//
//	Start: acquire resume lock (if resuming), spawn, launch run loop
//	run:   select over stdout chunks, cancel requests, the inactivity
//	       timer, the cancel grace timer, and the owner ticker
//	finalize: synthesize the terminal Completed if the adapter never
//	       produced one, release locks, emit agent_end, clean up

package runner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/HyphaGroup/warden/internal/engine"
	"github.com/HyphaGroup/warden/internal/event"
	"github.com/HyphaGroup/warden/internal/logger"
	"github.com/HyphaGroup/warden/internal/metrics"
	"github.com/HyphaGroup/warden/internal/sessionlock"
	"github.com/HyphaGroup/warden/internal/stream"
)

// Runner supervises one engine subprocess.
type Runner struct {
	id      string
	adapter engine.Adapter
	opts    Options
	reg     *sessionlock.Registry
	stream  *stream.Stream
	factory *event.Factory // runner-level notes (decode warnings, stderr)

	cmd        *exec.Cmd
	stdout     io.ReadCloser
	stderrFile *os.File
	startedAt  time.Time

	cancelCh chan string
	finished atomic.Bool

	// Runner-goroutine state; never touched elsewhere.
	buf        []byte
	decodeErrs int
	doneFlag   bool
	canceled   bool
	expected   *event.ResumeToken // token the session lock is keyed under
	observed   *event.ResumeToken // adapter-observed session id
	lockHeld   bool
	fatal      bool // stream failed terminally mid-run
}

// Start acquires the resume lock (when resuming), spawns the child,
// and launches the supervision loop. The returned runner's stream is
// live immediately.
func Start(adapter engine.Adapter, opts Options) (*Runner, error) {
	r := &Runner{
		id:       "run_" + uuid.NewString()[:8],
		adapter:  adapter,
		opts:     opts,
		reg:      opts.registry(),
		stream:   stream.New(opts.StreamCapacity),
		factory:  event.NewFactory(adapter.Engine()),
		cancelCh: make(chan string, 1),
	}

	if opts.Resume != nil {
		if err := r.reg.Acquire(*opts.Resume, r.identity()); err != nil {
			return nil, err
		}
		r.expected = opts.Resume
		r.lockHeld = true
		metrics.LocksHeld.Inc()
	}

	if err := r.spawn(adapter); err != nil {
		r.releaseLocks()
		return nil, err
	}
	r.startedAt = time.Now()

	_, argv := adapter.BuildCommand()
	logger.Spawn(r.id, adapter.Engine(), r.cmd.Path, argv, opts.Dir)
	metrics.RunnersStarted.WithLabelValues(adapter.Engine()).Inc()
	metrics.ActiveRunners.WithLabelValues(adapter.Engine()).Inc()

	go r.run()
	return r, nil
}

// ID returns the runner identity string.
func (r *Runner) ID() string { return r.id }

// Stream returns the runner's event stream.
func (r *Runner) Stream() *stream.Stream { return r.stream }

// Cancel requests cooperative termination: SIGTERM now, SIGKILL after
// the grace window. Idempotent; calls after the terminal state are
// no-ops.
func (r *Runner) Cancel(reason string) {
	select {
	case r.cancelCh <- reason:
	default:
	}
}

// Wait blocks until the stream terminates.
func (r *Runner) Wait() {
	<-r.stream.Done()
}

func (r *Runner) identity() sessionlock.Identity {
	return sessionlock.Identity{
		ID:    r.id,
		Alive: func() bool { return !r.finished.Load() },
	}
}

// run is the supervision loop. It owns all runner state mutations.
func (r *Runner) run() {
	defer func() {
		if p := recover(); p != nil {
			r.stream.Fail(fmt.Sprintf("%s: %v", stream.ReasonRunnerCrashed, p))
			killTree(r.cmd)
			r.waitChild()
			r.teardown("crashed")
		}
	}()

	chunks := make(chan []byte, 16)
	go r.readStdout(chunks)

	var idleC <-chan time.Time
	var idleTimer *time.Timer
	if d := r.opts.timeout(); d > 0 {
		idleTimer = time.NewTimer(d)
		defer idleTimer.Stop()
		idleC = idleTimer.C
	}

	var graceC <-chan time.Time
	var graceTimer *time.Timer
	defer func() {
		if graceTimer != nil {
			graceTimer.Stop()
		}
	}()

	var ownerC <-chan time.Time
	if r.opts.OwnerPID > 0 {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		ownerC = ticker.C
	}

	timedOut := false

loop:
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				break loop // stdout EOF: child is exiting
			}
			if idleTimer != nil && len(chunk) > 0 {
				resetTimer(idleTimer, r.opts.timeout())
			}
			r.consumeChunk(chunk)

		case reason := <-r.cancelCh:
			if r.canceled {
				break
			}
			r.canceled = true
			r.stream.Push(stream.Item{Type: stream.ItemCanceled, Reason: reason})
			termTree(r.cmd)
			graceTimer = time.NewTimer(r.opts.cancelGrace())
			graceC = graceTimer.C

		case <-graceC:
			killTree(r.cmd)
			graceC = nil

		case <-idleC:
			timedOut = true
			r.stream.Push(stream.Item{Type: stream.ItemError, Reason: stream.ReasonTimeout})
			killTree(r.cmd)
			idleC = nil

		case <-ownerC:
			if processAlive(r.opts.OwnerPID) {
				break
			}
			r.canceled = true
			r.stream.Push(stream.Item{Type: stream.ItemCanceled, Reason: stream.ReasonOwnerDown})
			killTree(r.cmd)
			ownerC = nil
		}
	}

	exitCode := r.waitChild()
	r.finalize(exitCode, timedOut)
}

// readStdout pumps raw chunks to the supervision loop. Closed channel
// signals EOF.
func (r *Runner) readStdout(chunks chan<- []byte) {
	buf := make([]byte, 8192)
	for {
		n, err := r.stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			chunks <- chunk
		}
		if err != nil {
			close(chunks)
			return
		}
	}
}

// waitChild reaps the child and normalizes its exit code. Signal
// deaths report as nonzero.
func (r *Runner) waitChild() int {
	if r.cmd == nil {
		return -1
	}
	err := r.cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return -1
}

// finalize applies the FINALIZED synthesis rules, emits the terminal
// marker, and releases everything.
func (r *Runner) finalize(exitCode int, timedOut bool) {
	if r.fatal {
		// The stream already failed terminally (mismatch, lock denial,
		// crashed adapter); only resources remain.
		r.teardown("failed")
		return
	}

	tail := r.stderrTail()
	if !r.doneFlag {
		var events []*event.Event
		if exitCode != 0 {
			if tail != "" {
				r.publish(r.stderrNote(tail))
			}
			events = r.adapter.HandleExitError(exitCode)
		} else {
			events = r.adapter.HandleStreamEnd()
		}
		for _, ev := range events {
			r.publish(ev)
		}
	}

	meta := map[string]any{"exit_code": exitCode}
	if timedOut {
		meta["timeout"] = true
	}
	if r.canceled {
		meta["canceled"] = true
	}
	r.releaseLocks()
	r.stream.Complete(meta)

	outcome := "ok"
	switch {
	case timedOut:
		outcome = "timeout"
	case r.canceled:
		outcome = "canceled"
	case exitCode != 0:
		outcome = "failed"
	}
	r.teardown(outcome)
}

// stderrNote wraps the stderr tail in a single note action.
func (r *Runner) stderrNote(tail string) *event.Event {
	return r.factory.ActionCompleted("stderr", event.ActionWarning, "stderr output", false,
		map[string]any{"stderr": tail})
}

// teardown releases locks and temp resources exactly once.
func (r *Runner) teardown(outcome string) {
	if r.finished.Swap(true) {
		return
	}
	r.releaseLocks()
	if r.stderrFile != nil {
		cleanupSink(r.stderrFile)
		r.stderrFile = nil
	}
	elapsed := time.Since(r.startedAt)
	engineName := r.adapter.Engine()
	metrics.ActiveRunners.WithLabelValues(engineName).Dec()
	metrics.RunnersFinished.WithLabelValues(engineName, outcome).Inc()
	metrics.RunnerDuration.WithLabelValues(engineName, outcome).Observe(elapsed.Seconds())
	logger.Exit(r.id, outcome, elapsed)
}

func (r *Runner) releaseLocks() {
	if n := r.reg.ReleaseAll(r.id); n > 0 {
		metrics.LocksHeld.Sub(float64(n))
	}
	r.lockHeld = false
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
