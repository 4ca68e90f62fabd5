package tracker

import "sync"

// MemTracker is an in-memory Tracker for tests and embedding.
type MemTracker struct {
	mu   sync.Mutex
	pids map[string]int
}

func NewMemTracker() *MemTracker {
	return &MemTracker{pids: make(map[string]int)}
}

func (t *MemTracker) Record(name string, pid int) error {
	t.mu.Lock()
	t.pids[name] = pid
	t.mu.Unlock()
	return nil
}

func (t *MemTracker) Lookup(name string) (int, bool, error) {
	t.mu.Lock()
	pid, ok := t.pids[name]
	t.mu.Unlock()
	return pid, ok, nil
}

func (t *MemTracker) Forget(name string) error {
	t.mu.Lock()
	delete(t.pids, name)
	t.mu.Unlock()
	return nil
}
