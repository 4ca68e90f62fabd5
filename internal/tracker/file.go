package tracker

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileTracker keeps one <name>.pid marker file per service under Dir.
// Marker contents are the pid digits only, matching the layout the shell
// tooling used, so markers stay inspectable with cat.
type FileTracker struct {
	Dir string
}

func NewFileTracker(dir string) *FileTracker { return &FileTracker{Dir: dir} }

func (t *FileTracker) path(name string) string {
	return filepath.Join(t.Dir, name+".pid")
}

func (t *FileTracker) Record(name string, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("tracker: refusing to record invalid pid %d for %s", pid, name)
	}
	if err := os.MkdirAll(t.Dir, 0o750); err != nil {
		return fmt.Errorf("tracker: create control dir: %w", err)
	}
	if err := os.WriteFile(t.path(name), []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return fmt.Errorf("tracker: write marker for %s: %w", name, err)
	}
	return nil
}

func (t *FileTracker) Lookup(name string) (int, bool, error) {
	data, err := os.ReadFile(t.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("tracker: read marker for %s: %w", name, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false, fmt.Errorf("tracker: corrupt marker for %s: %q", name, string(data))
	}
	return pid, true, nil
}

func (t *FileTracker) Forget(name string) error {
	if err := os.Remove(t.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("tracker: remove marker for %s: %w", name, err)
	}
	return nil
}

// Markers lists the service names that currently have a marker file.
func (t *FileTracker) Markers() ([]string, error) {
	entries, err := os.ReadDir(t.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := strings.CutSuffix(e.Name(), ".pid"); ok {
			names = append(names, n)
		}
	}
	return names, nil
}
