//go:build !windows

package proc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSpawnAndAlive(t *testing.T) {
	c := NewOSControl()
	pid, err := c.Spawn(SpawnSpec{Name: "sleeper", Command: "sleep 5"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer func() { _ = c.Kill(pid) }()

	if !c.Alive(pid) {
		t.Fatalf("pid %d should be alive right after spawn", pid)
	}
	if err := c.Terminate(pid); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for c.Alive(pid) && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if c.Alive(pid) {
		t.Fatalf("pid %d still alive after SIGTERM", pid)
	}
}

func TestAliveDetectsQuickExit(t *testing.T) {
	c := NewOSControl()
	pid, err := c.Spawn(SpawnSpec{Name: "fastexit", Command: "true"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	// The child is never reaped by us, so it lingers as a zombie; Alive must
	// still report it dead.
	deadline := time.Now().Add(2 * time.Second)
	for c.Alive(pid) && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if c.Alive(pid) {
		t.Fatalf("quickly-exited pid %d still reported alive", pid)
	}
}

func TestAliveOnBogusPID(t *testing.T) {
	c := NewOSControl()
	if c.Alive(0) || c.Alive(-5) {
		t.Fatal("non-positive pids are never alive")
	}
}

func TestTerminateDeadPIDIsNoop(t *testing.T) {
	c := NewOSControl()
	// A pid far beyond pid_max on typical test machines.
	if err := c.Terminate(99999999); err != nil {
		t.Fatalf("terminating a dead pid must not error: %v", err)
	}
	if err := c.Kill(99999999); err != nil {
		t.Fatalf("killing a dead pid must not error: %v", err)
	}
}

func TestSpawnWritesLogFile(t *testing.T) {
	c := NewOSControl()
	logPath := filepath.Join(t.TempDir(), "logs", "echo_service.log")
	pid, err := c.Spawn(SpawnSpec{
		Name:    "echo_service",
		Command: "echo fleet-hello",
		LogPath: logPath,
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer func() { _ = c.Kill(pid) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b, err := os.ReadFile(logPath); err == nil && strings.Contains(string(b), "fleet-hello") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("child stdout never reached the log file")
}

func TestSpawnAppendsToLog(t *testing.T) {
	c := NewOSControl()
	logPath := filepath.Join(t.TempDir(), "svc.log")
	for i := 0; i < 2; i++ {
		if _, err := c.Spawn(SpawnSpec{Name: "svc", Command: "echo line", LogPath: logPath}); err != nil {
			t.Fatalf("spawn %d: %v", i, err)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b, _ := os.ReadFile(logPath)
		if strings.Count(string(b), "line") == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("log file was not appended across launches")
}

func TestBuildCommandShellDetection(t *testing.T) {
	plain := buildCommand("sleep 1")
	if got := plain.Args[0]; !strings.HasSuffix(got, "sleep") {
		t.Fatalf("plain command should exec directly, got %v", plain.Args)
	}
	shell := buildCommand("echo hi > /dev/null")
	if shell.Args[0] != "/bin/sh" || shell.Args[1] != "-c" {
		t.Fatalf("metacharacter command should run under sh -c, got %v", shell.Args)
	}
}
