package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// persistedState is the on-disk shape described in spec.md §6.3 and §4.6:
// the workload table plus DesiredPlacement, enough to reconstruct
// scheduling intent after a restart. Nodes are not persisted — they have
// to be registered again through POST /nodes.
type persistedState struct {
	Workloads []Workload      `json:"workloads"`
	Desired   []DesiredEntry  `json:"desired"`
}

// SaveState snapshots the workload table and DesiredPlacement and writes
// them to cfg.StateFilePath via write-temp-then-rename, so a crash mid
// write never leaves a corrupt or partially-written state file.
func (s *Scheduler) SaveState() error {
	s.mu.Lock()
	state := persistedState{
		Workloads: make([]Workload, 0, len(s.workloads)),
		Desired:   make([]DesiredEntry, 0, len(s.desired)),
	}
	for _, w := range s.workloads {
		state.Workloads = append(state.Workloads, *w)
	}
	for _, d := range s.desired {
		state.Desired = append(state.Desired, *d)
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling scheduler state: %w", err)
	}

	dir := filepath.Dir(s.cfg.StateFilePath)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, ".orchestrator-state-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.cfg.StateFilePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming state file into place: %w", err)
	}
	return nil
}

// LoadState seeds the workload table and DesiredPlacement from disk. It
// is a no-op, not an error, if the file does not yet exist. Loading does
// not probe nodes or re-issue start RPCs: a loaded workload whose node is
// unreachable enters FailedSet only once that node is registered and the
// health monitor marks it Offline, and the recovery engine re-places it
// from there.
func (s *Scheduler) LoadState() error {
	data, err := os.ReadFile(s.cfg.StateFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading state file: %w", err)
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parsing state file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var maxSeq int64
	for _, w := range state.Workloads {
		wc := w
		s.workloads[wc.ID] = &wc
		if _, seq, ok := splitWorkloadID(wc.ID); ok && seq > maxSeq {
			maxSeq = seq
		}
	}
	for _, d := range state.Desired {
		dc := d
		s.desired[dc.WorkloadID] = &dc
	}
	if maxSeq > s.idCounter {
		s.idCounter = maxSeq
	}
	return nil
}

// splitWorkloadID extracts the monotonic counter suffix from an id shaped
// "workload_<unix>_<counter>" so LoadState can resume numbering without
// colliding with persisted ids.
func splitWorkloadID(id string) (string, int64, bool) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 || parts[0] != "workload" {
		return "", 0, false
	}
	seq, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[1], seq, true
}

// persistLoop periodically saves state at cfg.StateSavePeriod.
func (s *Scheduler) persistLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StateSavePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.SaveState(); err != nil {
				log.Printf("scheduler: final state save failed: %v", err)
			}
			return
		case <-ticker.C:
			if err := s.SaveState(); err != nil {
				log.Printf("scheduler: periodic state save failed: %v", err)
			}
		}
	}
}
