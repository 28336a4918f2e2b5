package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/kstage/orchestrator/internal/scheduler/observability"
)

// probeOutcome is one node's probe result, routed back for serialized
// state-machine processing.
type probeOutcome struct {
	key     string
	ok      bool
	cpu     float64
	mem     float64
	rtt     time.Duration
}

// healthMonitor runs the periodic per-node probe loop and owns the status
// state machine described in spec.md §4.4.
type healthMonitor struct {
	sched *Scheduler
}

func newHealthMonitor(s *Scheduler) *healthMonitor {
	return &healthMonitor{sched: s}
}

func (h *healthMonitor) run(ctx context.Context) {
	ticker := time.NewTicker(h.sched.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

// tick probes every registered node concurrently, then applies the
// resulting state transitions one at a time under the Scheduler lock.
func (h *healthMonitor) tick(ctx context.Context) {
	h.sched.mu.Lock()
	nodes := h.sched.reg.list()
	h.sched.mu.Unlock()

	results := make(chan probeOutcome, len(nodes))
	for _, n := range nodes {
		go func(host string, port int, key string) {
			resp, rtt, err := h.sched.client.probe(ctx, host, port, h.sched.cfg.HealthCheckTimeout)
			if err != nil {
				results <- probeOutcome{key: key, ok: false, rtt: rtt}
				return
			}
			results <- probeOutcome{key: key, ok: true, cpu: resp.CPUUsage, mem: resp.MemoryUsage, rtt: rtt}
		}(n.Host, n.Port, n.Key())
	}

	for range nodes {
		outcome := <-results
		h.apply(outcome)
	}
}

// apply runs the transition table for one probe outcome under the
// Scheduler lock, so a failure event and the recovery engine's read of
// FailedSet are always ordered correctly.
func (h *healthMonitor) apply(o probeOutcome) {
	s := h.sched
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.reg.get(o.key)
	if !ok {
		return
	}

	n.LastProbeAt = time.Now()
	n.LastProbeRTT = o.rtt

	prevStatus := n.Status

	if o.ok {
		n.CPUPercent = o.cpu
		n.MemoryPercent = o.mem
		n.ConsecutiveFailures = 0
		n.Status = NodeOnline
	} else {
		n.ConsecutiveFailures++
		if n.ConsecutiveFailures >= s.cfg.FailureThreshold {
			n.Status = NodeOffline
		} else if prevStatus != NodeOffline {
			n.Status = NodeDegraded
		}
		// Offline + fail: counter increments, status stays Offline.
	}

	if prevStatus != n.Status {
		observability.NodeStatusMetric.DeleteLabelValues(o.key, string(prevStatus))
		s.publishEvent("node."+string(n.Status), "", o.key)
	}

	observability.NodeCPUPercent.WithLabelValues(o.key).Set(n.CPUPercent)
	observability.NodeMemoryPercent.WithLabelValues(o.key).Set(n.MemoryPercent)
	observability.NodeStatusMetric.WithLabelValues(o.key, string(n.Status)).Set(1)

	if prevStatus != NodeOffline && n.Status == NodeOffline {
		log.Printf("scheduler: node %s marked offline after %d consecutive failures", o.key, n.ConsecutiveFailures)
		observability.NodeFailures.WithLabelValues(o.key).Inc()
		s.onNodeOffline(o.key)
	}
	if prevStatus == NodeOffline && n.Status == NodeOnline {
		log.Printf("scheduler: node %s rejoined", o.key)
		s.onNodeRejoin(o.key)
	}
	if prevStatus == NodeOnline && n.Status == NodeOnline {
		s.onNodeHealthyTick(o.key)
	}
}

// forceProbe runs one synchronous probe round, used by the operator
// on-demand endpoint POST /health/check.
func (h *healthMonitor) forceProbe(ctx context.Context) {
	h.tick(ctx)
}
