package tracker

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileTrackerRoundTrip(t *testing.T) {
	tr := NewFileTracker(t.TempDir())
	if err := tr.Record("auth_service", 4242); err != nil {
		t.Fatalf("record: %v", err)
	}
	pid, ok, err := tr.Lookup("auth_service")
	if err != nil || !ok || pid != 4242 {
		t.Fatalf("lookup: pid=%d ok=%v err=%v", pid, ok, err)
	}
	// Record overwrites the prior marker.
	if err := tr.Record("auth_service", 4300); err != nil {
		t.Fatalf("record overwrite: %v", err)
	}
	pid, _, _ = tr.Lookup("auth_service")
	if pid != 4300 {
		t.Fatalf("expected overwritten pid 4300, got %d", pid)
	}
}

func TestFileTrackerLookupAbsent(t *testing.T) {
	tr := NewFileTracker(t.TempDir())
	_, ok, err := tr.Lookup("missing")
	if err != nil {
		t.Fatalf("lookup absent: %v", err)
	}
	if ok {
		t.Fatal("lookup of absent marker must return ok=false")
	}
}

func TestFileTrackerForgetIdempotent(t *testing.T) {
	tr := NewFileTracker(t.TempDir())
	if err := tr.Record("svc", 10); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := tr.Forget("svc"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if err := tr.Forget("svc"); err != nil {
		t.Fatalf("second forget must be a no-op: %v", err)
	}
	if _, ok, _ := tr.Lookup("svc"); ok {
		t.Fatal("marker must be gone after forget")
	}
}

func TestFileTrackerCorruptMarker(t *testing.T) {
	dir := t.TempDir()
	tr := NewFileTracker(dir)
	if err := os.WriteFile(filepath.Join(dir, "svc.pid"), []byte("not-a-pid"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := tr.Lookup("svc"); err == nil {
		t.Fatal("expected error for corrupt marker")
	}
}

func TestFileTrackerRejectsInvalidPID(t *testing.T) {
	tr := NewFileTracker(t.TempDir())
	if err := tr.Record("svc", 0); err == nil {
		t.Fatal("expected error for pid 0")
	}
}

func TestFileTrackerMarkers(t *testing.T) {
	tr := NewFileTracker(t.TempDir())
	for i, name := range []string{"a", "b", "c"} {
		if err := tr.Record(name, 100+i); err != nil {
			t.Fatalf("record %s: %v", name, err)
		}
	}
	names, err := tr.Markers()
	if err != nil {
		t.Fatalf("markers: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("expected 3 markers, got %v", names)
	}
}

func TestMemTracker(t *testing.T) {
	tr := NewMemTracker()
	_ = tr.Record("x", 1)
	pid, ok, _ := tr.Lookup("x")
	if !ok || pid != 1 {
		t.Fatalf("mem lookup: pid=%d ok=%v", pid, ok)
	}
	_ = tr.Forget("x")
	_ = tr.Forget("x")
	if _, ok, _ := tr.Lookup("x"); ok {
		t.Fatal("expected record gone")
	}
}
