//go:build !windows

package portguard

import (
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// DefaultSettleDelay is how long Reclaim waits after killing an occupant so
// the kernel releases the socket before the caller re-binds it.
const DefaultSettleDelay = 500 * time.Millisecond

// Guard checks and force-frees TCP ports. It is the authoritative answer to
// "is this port free": marker files can go stale, the kernel cannot.
//
// LookupPIDs and KillPID are injectable for tests; zero values use lsof and
// SIGKILL, the same mechanism the original shell tooling relied on.
type Guard struct {
	LookupPIDs  func(port int) ([]int, error)
	KillPID     func(pid int) error
	SettleDelay time.Duration
	Sleep       func(time.Duration)
}

func New() *Guard {
	return &Guard{
		LookupPIDs:  lsofListeners,
		KillPID:     killGroup,
		SettleDelay: DefaultSettleDelay,
		Sleep:       time.Sleep,
	}
}

// IsBound reports whether something currently holds the port. It probes by
// attempting to bind, which also catches listeners that are bound but not
// yet accepting.
func (g *Guard) IsBound(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return true
	}
	_ = ln.Close()
	return false
}

// Reclaim force-frees the port by killing every process listening on it,
// then waits SettleDelay for the kernel to release the socket. The bool
// reports whether any occupant was actually killed; a port with no occupant
// is a no-op, not a reclaim.
func (g *Guard) Reclaim(port int) (bool, error) {
	pids, err := g.LookupPIDs(port)
	if err != nil {
		return false, fmt.Errorf("portguard: find occupant of port %d: %w", port, err)
	}
	if len(pids) == 0 {
		return false, nil
	}
	var firstErr error
	for _, pid := range pids {
		if err := g.KillPID(pid); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("portguard: kill pid %d on port %d: %w", pid, port, err)
		}
	}
	g.Sleep(g.SettleDelay)
	return true, firstErr
}

// lsofListeners shells out to lsof to find pids listening on the TCP port.
// lsof exits 1 when nothing matches; that is "no occupant", not an error.
func lsofListeners(port int) ([]int, error) {
	out, err := exec.Command("lsof", "-ti", "tcp:"+strconv.Itoa(port), "-sTCP:LISTEN").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}
	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("unexpected lsof output %q", line)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// killGroup SIGKILLs the pid's process group, falling back to the single pid
// when the group is gone. A vanished pid is a no-op.
func killGroup(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, syscall.SIGKILL)
	}
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
