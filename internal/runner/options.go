// Package runner is the generic JSONL subprocess core: it spawns an
// engine CLI, feeds its stdout through the adapter's decode and
// translate callbacks, and publishes unified events onto a stream
// while enforcing timeouts, cancellation, owner monitoring, and
// session locking.
//
// options.go - runner options and defaults

package runner

import (
	"time"

	"github.com/HyphaGroup/warden/internal/event"
	"github.com/HyphaGroup/warden/internal/sessionlock"
)

const (
	// DefaultTimeout is the inactivity timeout: the time allowed
	// between stdout chunks before the child is killed.
	DefaultTimeout = 10 * time.Minute

	// NoTimeout disables the inactivity timer.
	NoTimeout = time.Duration(-1)

	// DefaultCancelGrace is how long a canceled child gets between
	// SIGTERM and SIGKILL.
	DefaultCancelGrace = time.Second

	// stderrTailBytes bounds the stderr excerpt surfaced as a note on
	// abnormal exit.
	stderrTailBytes = 2048

	// maxDecodeWarnings caps decode-error warning events per runner;
	// further decode errors are counted silently.
	maxDecodeWarnings = 3
)

// Options configures one runner.
type Options struct {
	// Prompt is required and forwarded to the adapter.
	Prompt string

	// Resume names the session to reopen. The lock for it is acquired
	// before spawning.
	Resume *event.ResumeToken

	// Dir is the child working directory. A leading ~ expands to the
	// host home.
	Dir string

	// Env is overlaid onto the adapter-supplied environment.
	Env []string

	// Timeout is the inactivity timeout. Zero selects DefaultTimeout;
	// NoTimeout disables it. Empty stdout reads never reset the timer.
	Timeout time.Duration

	// CancelGrace is the TERM-to-KILL window. Zero selects
	// DefaultCancelGrace.
	CancelGrace time.Duration

	// OwnerPID, when nonzero, names a process whose death cascades
	// into a hard kill of this runner.
	OwnerPID int

	// Registry is the session-lock registry. Nil selects the
	// process-wide default.
	Registry *sessionlock.Registry

	// StreamCapacity bounds unconsumed items on the event stream.
	// Zero selects the stream default.
	StreamCapacity int
}

func (o *Options) timeout() time.Duration {
	switch {
	case o.Timeout == NoTimeout:
		return 0
	case o.Timeout <= 0:
		return DefaultTimeout
	default:
		return o.Timeout
	}
}

func (o *Options) cancelGrace() time.Duration {
	if o.CancelGrace <= 0 {
		return DefaultCancelGrace
	}
	return o.CancelGrace
}

func (o *Options) registry() *sessionlock.Registry {
	if o.Registry == nil {
		return sessionlock.Default
	}
	return o.Registry
}
