package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/kstage/orchestrator/internal/scheduler/observability"
)

// recoveryEngine re-places workloads whose bound node has gone offline,
// and retries workloads that have never successfully placed, per
// spec.md §4.5.
type recoveryEngine struct {
	sched *Scheduler
}

func newRecoveryEngine(s *Scheduler) *recoveryEngine {
	return &recoveryEngine{sched: s}
}

func (r *recoveryEngine) run(ctx context.Context) {
	ticker := time.NewTicker(r.sched.cfg.RecoveryPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick attempts placement for every workload awaiting one: the FailedSet
// plus any workload that has never successfully placed (Pending). Each
// workload's lookup/decide/RPC/update sequence runs under the Scheduler
// lock, per spec.md §4.5's invariant against double-starting a workload.
func (r *recoveryEngine) tick(ctx context.Context) {
	s := r.sched

	s.mu.Lock()
	ids := make([]string, 0, len(s.failed))
	for id := range s.failed {
		ids = append(ids, id)
	}
	for id, w := range s.workloads {
		if w.Status == WorkloadPending {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		r.processOne(ctx, id)
	}
}

func (r *recoveryEngine) processOne(ctx context.Context, id string) {
	s := r.sched
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workloads[id]
	if !ok {
		delete(s.failed, id)
		return
	}
	if w.Status != WorkloadPending && w.Status != WorkloadRecovering {
		delete(s.failed, id)
		return
	}

	if w.RetryCount >= s.cfg.MaxRetries {
		w.Status = WorkloadFailed
		delete(s.failed, id)
		log.Printf("scheduler: workload %s exhausted retries, marked terminally failed", id)
		observability.RecoveryExhausted.Inc()
		s.publishEvent("workload.failed", id, "")
		return
	}

	excludeKey := ""
	if entry, ok := s.desired[id]; ok {
		excludeKey = entry.NodeKey()
	}

	candidates := s.reg.list()
	node := selectNode(candidates, s.cfg.CPUPlacementCeiling, excludeKey)
	if node == nil {
		w.RetryCount++
		observability.RecoveryAttempts.WithLabelValues("no_candidate").Inc()
		return
	}

	pid, err := s.client.startWorkload(ctx, node.Host, node.Port, w.ScriptPath, s.cfg.RPCTimeout)
	if err != nil {
		w.RetryCount++
		observability.RecoveryAttempts.WithLabelValues("rpc_failed").Inc()
		log.Printf("scheduler: recovery placement of %s on %s failed: %v", id, node.Key(), err)
		return
	}

	s.desired[id] = &DesiredEntry{WorkloadID: id, NodeHost: node.Host, NodePort: node.Port, PID: pid, ScriptPath: w.ScriptPath}
	w.Status = WorkloadRunning
	w.NodeKey = node.Key()
	w.PID = pid
	delete(s.failed, id)
	s.pendingRetryReset[id] = true

	observability.RecoveryAttempts.WithLabelValues("placed").Inc()
	log.Printf("scheduler: recovered workload %s onto %s (pid %d)", id, node.Key(), pid)
	s.publishEvent("workload.recovered", id, node.Key())
}
