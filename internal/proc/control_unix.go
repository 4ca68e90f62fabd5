//go:build !windows

package proc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// OSControl is the real Control backed by exec and signals.
type OSControl struct{}

func NewOSControl() *OSControl { return &OSControl{} }

// Spawn starts the command in its own session (setsid), so the child is
// detached from the supervisor's terminal and process group and does not
// receive the operator's Ctrl-C. Stdout/stderr go straight to the log file
// descriptor; no pipe is involved, so logging survives supervisor exit.
func (c *OSControl) Spawn(spec SpawnSpec) (int, error) {
	cmd := buildCommand(spec.Command)
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if spec.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0o750); err != nil {
			return 0, fmt.Errorf("proc: create log dir: %w", err)
		}
		// #nosec G302 G304 -- log path comes from the supervisor's own config
		logf, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return 0, fmt.Errorf("proc: open log file: %w", err)
		}
		defer func() { _ = logf.Close() }()
		cmd.Stdout = logf
		cmd.Stderr = logf
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		defer func() { _ = null.Close() }()
		cmd.Stdout = null
		cmd.Stderr = null
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("proc: start %s: %w", spec.Name, err)
	}
	pid := cmd.Process.Pid
	// The child is intentionally never waited on; it outlives us. Release
	// drops our handle so the runtime does not keep state for it.
	_ = cmd.Process.Release()
	return pid, nil
}

// Alive probes liveness with signal 0. EPERM still means the pid exists.
// A zombie left behind by a child that died before we exited counts as dead.
func (c *OSControl) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if isZombie(pid) {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Terminate signals the whole session group with SIGTERM. Spawned services
// are session leaders, so -pid addresses the service and its children.
func (c *OSControl) Terminate(pid int) error {
	return signalGroup(pid, syscall.SIGTERM)
}

// Kill signals the session group with SIGKILL.
func (c *OSControl) Kill(pid int) error {
	return signalGroup(pid, syscall.SIGKILL)
}

func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		// No such group: the pid may be a plain process (e.g. an externally
		// started occupant). Fall back to signalling it directly.
		err = syscall.Kill(pid, sig)
	}
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// isZombie reports whether /proc/<pid>/status shows state Z. A never-reaped
// child of ours stays a zombie until we exit, and signal 0 would still
// succeed on it.
func isZombie(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

// buildCommand constructs an *exec.Cmd for a shell command line. Commands
// with shell metacharacters run under /bin/sh -c; plain commands exec
// directly to avoid an extra shell layer.
func buildCommand(cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}
