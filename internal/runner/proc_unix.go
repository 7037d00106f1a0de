//go:build !windows

// Package runner is the generic JSONL subprocess core.
//
// proc_unix.go - process-group control and owner liveness
//
// Both the group kill (-pid) and the single-pid kill are attempted:
// some shells never set a process group of their own.

package runner

import (
	"errors"
	"os/exec"
	"syscall"
)

// setProcAttr puts the child in its own process group so a cancel
// reaches the whole tree.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalTree delivers sig to the child's process group, then to the
// child itself.
func signalTree(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, sig)
	_ = syscall.Kill(pid, sig)
}

func termTree(cmd *exec.Cmd) { signalTree(cmd, syscall.SIGTERM) }
func killTree(cmd *exec.Cmd) { signalTree(cmd, syscall.SIGKILL) }

// processAlive reports whether pid exists. EPERM still means alive,
// just not ours to signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
