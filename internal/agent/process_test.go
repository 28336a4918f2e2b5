package agent

import (
	"testing"
	"time"
)

func TestStartRejectsEmptyPath(t *testing.T) {
	s := NewSupervisor()
	defer s.Close()

	if _, err := s.Start(""); err == nil {
		t.Fatalf("expected error for empty script path")
	}
}

func TestStartTracksProcessRecord(t *testing.T) {
	s := NewSupervisor()
	defer s.Close()

	pid, err := s.Start("sleep 5")
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if pid == 0 {
		t.Fatalf("expected non-zero pid")
	}

	recs := s.List()
	if len(recs) != 1 {
		t.Fatalf("expected 1 process record, got %d", len(recs))
	}
	if recs[0].PID != pid {
		t.Fatalf("expected record for pid %d, got %d", pid, recs[0].PID)
	}
	if recs[0].Status != StatusRunning {
		t.Fatalf("expected status running, got %s", recs[0].Status)
	}
}

func TestStartTwiceYieldsTwoIndependentRecords(t *testing.T) {
	s := NewSupervisor()
	defer s.Close()

	pid1, err := s.Start("sleep 5")
	if err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	pid2, err := s.Start("sleep 5")
	if err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if pid1 == pid2 {
		t.Fatalf("expected distinct pids, got %d twice", pid1)
	}

	recs := s.List()
	if len(recs) != 2 {
		t.Fatalf("expected 2 independent records, got %d", len(recs))
	}

	_ = s.Stop(pid1)
	_ = s.Stop(pid2)
}

func TestStopUnknownPIDReturnsError(t *testing.T) {
	s := NewSupervisor()
	defer s.Close()

	if err := s.Stop(999999); err == nil {
		t.Fatalf("expected error stopping unknown pid")
	}
}

func TestStopRemovesRecord(t *testing.T) {
	s := NewSupervisor()
	defer s.Close()

	pid, err := s.Start("sleep 5")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := s.Stop(pid); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	for _, rec := range s.List() {
		if rec.PID == pid {
			t.Fatalf("expected record for pid %d to be removed after Stop", pid)
		}
	}
}

func TestReapPurgesExitedProcess(t *testing.T) {
	s := NewSupervisor()
	defer s.Close()

	pid, err := s.Start("true")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Give the child time to exit, then force a reap pass directly
	// rather than waiting on the 5s ticker.
	time.Sleep(100 * time.Millisecond)
	s.reapOnce()

	for _, rec := range s.List() {
		if rec.PID == pid {
			t.Fatalf("expected exited pid %d to be reaped", pid)
		}
	}
}

func TestRepeatedStatusCallsReturnIdenticalProcessList(t *testing.T) {
	s := NewSupervisor()
	defer s.Close()

	pid, err := s.Start("sleep 5")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(pid)

	first := s.List()
	second := s.List()
	if len(first) != len(second) || len(first) != 1 {
		t.Fatalf("expected stable process list across calls, got %d then %d", len(first), len(second))
	}
	if first[0].PID != second[0].PID {
		t.Fatalf("pid changed across List() calls with no intervening start/stop")
	}
}
