// Package runner is the generic JSONL subprocess core.
//
// spawn.go - subprocess construction
//
// Spawning contract for children that do not control a TTY:
// - stdout is the JSONL channel
// - stderr goes to a file side-channel, never interleaved with stdout
// - stdin is the adapter payload (then EOF) or the null device
// - the child gets its own process group so cancel kills the tree

package runner

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/HyphaGroup/warden/internal/engine"
)

// ErrSpawnFailed wraps executable resolution and fork failures.
var ErrSpawnFailed = errors.New("spawn failed")

// expandTilde resolves a leading ~ against the host home directory.
func expandTilde(dir string) string {
	if dir == "" || dir[0] != '~' {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dir
	}
	if dir == "~" {
		return home
	}
	if strings.HasPrefix(dir, "~"+string(filepath.Separator)) {
		return filepath.Join(home, dir[2:])
	}
	return dir
}

// overlayEnv appends extras onto base, letting extras win. A nil base
// with no extras stays nil so the child inherits the parent env.
func overlayEnv(base, extras []string) []string {
	if len(extras) == 0 {
		return base
	}
	if base == nil {
		base = os.Environ()
	}
	return append(append([]string{}, base...), extras...)
}

// spawn builds and starts the subprocess, wiring stdio per the
// spawning contract. On success the runner owns cmd, the stdout pipe,
// and the stderr sink file.
func (r *Runner) spawn(adapter engine.Adapter) error {
	exe, argv := adapter.BuildCommand()

	cmd := exec.Command(exe, argv...)
	cmd.Dir = expandTilde(r.opts.Dir)
	cmd.Env = overlayEnv(adapter.Env(), r.opts.Env)
	setProcAttr(cmd)

	// Payload stdin gets written fully and closed so the child sees
	// EOF; without a payload the null device keeps stdin-blocking
	// CLIs from hanging.
	if payload := adapter.StdinPayload(); payload != nil {
		cmd.Stdin = bytes.NewReader(payload)
	}

	stderrFile, err := os.CreateTemp("", "warden-stderr-*")
	if err != nil {
		return fmt.Errorf("%w: stderr sink: %v", ErrSpawnFailed, err)
	}
	cmd.Stderr = stderrFile

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cleanupSink(stderrFile)
		return fmt.Errorf("%w: stdout pipe: %v", ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		cleanupSink(stderrFile)
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	r.cmd = cmd
	r.stdout = stdout
	r.stderrFile = stderrFile
	return nil
}

func cleanupSink(f *os.File) {
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
}

// stderrTail returns the last stderrTailBytes of the sink file,
// trimmed; "" when the file is empty or unreadable.
func (r *Runner) stderrTail() string {
	if r.stderrFile == nil {
		return ""
	}
	info, err := r.stderrFile.Stat()
	if err != nil || info.Size() == 0 {
		return ""
	}
	offset := info.Size() - stderrTailBytes
	if offset < 0 {
		offset = 0
	}
	buf := make([]byte, info.Size()-offset)
	if _, err := r.stderrFile.ReadAt(buf, offset); err != nil {
		return ""
	}
	return strings.TrimSpace(string(buf))
}
