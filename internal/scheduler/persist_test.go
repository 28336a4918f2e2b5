package scheduler

import (
	"path/filepath"
	"testing"

	"github.com/kstage/orchestrator/internal/scheduler/events"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StateFilePath = filepath.Join(t.TempDir(), "state.json")
	return New(cfg, events.NewHub())
}

func TestSaveAndLoadStateRoundTrip(t *testing.T) {
	s := newTestScheduler(t)

	s.mu.Lock()
	s.workloads["w1"] = &Workload{ID: "w1", ScriptPath: "/bin/true", Status: WorkloadRunning, NodeKey: "host:1", PID: 123}
	s.desired["w1"] = &DesiredEntry{WorkloadID: "w1", NodeHost: "host", NodePort: 1, PID: 123, ScriptPath: "/bin/true"}
	s.mu.Unlock()

	if err := s.SaveState(); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	reloaded := New(s.cfg, events.NewHub())
	if err := reloaded.LoadState(); err != nil {
		t.Fatalf("LoadState: %v", err)
	}

	if len(reloaded.workloads) != 1 {
		t.Fatalf("expected 1 workload reloaded, got %d", len(reloaded.workloads))
	}
	w, ok := reloaded.workloads["w1"]
	if !ok || w.PID != 123 || w.Status != WorkloadRunning {
		t.Fatalf("unexpected reloaded workload: %+v", w)
	}
	if _, ok := reloaded.desired["w1"]; !ok {
		t.Fatal("expected desired entry to survive round trip")
	}
}

func TestLoadStateMissingFileIsNotAnError(t *testing.T) {
	s := newTestScheduler(t)
	if err := s.LoadState(); err != nil {
		t.Fatalf("expected no error loading a nonexistent state file, got %v", err)
	}
	if len(s.workloads) != 0 {
		t.Fatalf("expected empty workload table, got %d entries", len(s.workloads))
	}
}

func TestLoadStateResumesWorkloadIDCounter(t *testing.T) {
	s := newTestScheduler(t)
	s.mu.Lock()
	s.workloads["workload_1000_7"] = &Workload{ID: "workload_1000_7", Status: WorkloadRunning}
	s.mu.Unlock()
	if err := s.SaveState(); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	reloaded := New(s.cfg, events.NewHub())
	if err := reloaded.LoadState(); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if reloaded.idCounter != 7 {
		t.Fatalf("expected idCounter resumed at 7, got %d", reloaded.idCounter)
	}
}

func TestSplitWorkloadID(t *testing.T) {
	cases := []struct {
		id      string
		wantSeq int64
		wantOK  bool
	}{
		{"workload_123_4", 4, true},
		{"workload_123_40", 40, true},
		{"not-a-workload-id", 0, false},
		{"workload_onlyonepart", 0, false},
	}

	for _, tc := range cases {
		_, seq, ok := splitWorkloadID(tc.id)
		if ok != tc.wantOK {
			t.Fatalf("splitWorkloadID(%q) ok = %v, want %v", tc.id, ok, tc.wantOK)
		}
		if ok && seq != tc.wantSeq {
			t.Fatalf("splitWorkloadID(%q) seq = %d, want %d", tc.id, seq, tc.wantSeq)
		}
	}
}
