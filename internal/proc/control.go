package proc

// SpawnSpec describes a detached process launch: the shell command to run,
// the merged environment, and the append-only log file receiving the child's
// stdout and stderr. The log file descriptor is inherited by the child so
// output keeps flowing after the supervisor exits.
type SpawnSpec struct {
	Name    string
	Command string
	WorkDir string
	Env     []string
	LogPath string
}

// Control abstracts OS process operations so the lifecycle state machine can
// run against a fake in tests.
type Control interface {
	// Spawn launches the command detached from the caller's session and
	// returns its pid. The child must survive the supervisor exiting.
	Spawn(spec SpawnSpec) (int, error)
	// Alive reports whether pid refers to a live (non-zombie) process.
	// It never errors on a dead pid.
	Alive(pid int) bool
	// Terminate sends a graceful termination signal to the pid's group.
	Terminate(pid int) error
	// Kill forcefully terminates the pid's group.
	Kill(pid int) error
}
