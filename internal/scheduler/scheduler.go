package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kstage/orchestrator/internal/scheduler/events"
	"github.com/kstage/orchestrator/internal/scheduler/observability"
)

// Config holds every tunable named in spec.md §6.5.
type Config struct {
	StateFilePath       string
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	FailureThreshold    int
	MaxRetries          int
	RecoveryPeriod      time.Duration
	StateSavePeriod     time.Duration
	CPUPlacementCeiling float64
	RPCTimeout          time.Duration
}

// DefaultConfig returns spec.md §6.5's defaults.
func DefaultConfig() Config {
	return Config{
		StateFilePath:       "orchestrator_state.json",
		HealthCheckInterval: 3 * time.Second,
		HealthCheckTimeout:  2 * time.Second,
		FailureThreshold:    2,
		MaxRetries:          3,
		RecoveryPeriod:      1 * time.Second,
		StateSavePeriod:     30 * time.Second,
		CPUPlacementCeiling: cpuPlacementCeiling,
		RPCTimeout:          10 * time.Second,
	}
}

// AdmissionMode is the operator kill switch on new placements, adapted
// from the grounding codebase's scheduler admission control.
type AdmissionMode string

const (
	AdmissionNormal AdmissionMode = "normal"
	AdmissionDrain  AdmissionMode = "drain"
	AdmissionFreeze AdmissionMode = "freeze"
)

// Scheduler owns the node registry, the workload table, DesiredPlacement,
// and FailedSet behind a single coarse lock, per spec.md §5.
type Scheduler struct {
	mu sync.Mutex

	cfg    Config
	reg    *registry
	client *nodeClient

	workloads map[string]*Workload
	desired   map[string]*DesiredEntry // workload id -> entry
	failed    map[string]bool          // workload id -> awaiting re-placement

	// pendingRetryReset marks workloads whose retry_count should drop to 0
	// on the next tick where their bound node is confirmed Online, per
	// spec.md §4.5 / SPEC_FULL §13 item 3.
	pendingRetryReset map[string]bool

	idCounter int64

	admission AdmissionMode
	events    *events.Hub

	health   *healthMonitor
	recovery *recoveryEngine
}

// New creates a Scheduler with empty state. Load state from disk with
// LoadState before starting the background loops.
func New(cfg Config, hub *events.Hub) *Scheduler {
	s := &Scheduler{
		cfg:               cfg,
		reg:               newRegistry(),
		client:            newNodeClient(),
		workloads:         make(map[string]*Workload),
		desired:           make(map[string]*DesiredEntry),
		failed:            make(map[string]bool),
		pendingRetryReset: make(map[string]bool),
		admission:         AdmissionNormal,
		events:            hub,
	}
	s.health = newHealthMonitor(s)
	s.recovery = newRecoveryEngine(s)
	return s
}

// Run starts the health monitor, recovery engine, and state persister.
// All three exit cooperatively when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	go s.health.run(ctx)
	go s.recovery.run(ctx)
	go s.persistLoop(ctx)
}

func (s *Scheduler) SetAdmissionMode(mode AdmissionMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admission = mode
}

// RegisterNode adds or resets a node in the registry.
func (s *Scheduler) RegisterNode(host string, port int) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.register(host, port)
}

// ListNodes returns a snapshot of every registered node.
func (s *Scheduler) ListNodes() []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := s.reg.list()
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = *n
	}
	return out
}

// ForceProbe triggers one synchronous health-probe round.
func (s *Scheduler) ForceProbe(ctx context.Context) {
	s.health.forceProbe(ctx)
}

func (s *Scheduler) nextWorkloadID() string {
	s.idCounter++
	return fmt.Sprintf("workload_%d_%d", time.Now().Unix(), s.idCounter)
}

// SubmitWorkload accepts a new workload and attempts immediate placement.
// If no node qualifies, the workload is accepted anyway and left Pending
// for the recovery loop to retry, per spec.md §4.3/§7.
//
// The whole lookup/decide/RPC/update sequence runs under the single
// Scheduler lock, mirroring StopWorkload and recoveryEngine.processOne.
// Without this, a workload left Pending here is also a candidate for
// recoveryEngine.tick (it scoops up every Pending workload, not just
// FailedSet members) and a concurrent recovery tick could race this call
// and fire a second /start RPC for the same workload id, violating
// spec.md §4.5's single-placement invariant.
func (s *Scheduler) SubmitWorkload(ctx context.Context, scriptPath string) (*Workload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.admission == AdmissionFreeze || s.admission == AdmissionDrain {
		return nil, fmt.Errorf("admission rejected: scheduler is in %s mode", s.admission)
	}

	w := &Workload{
		ID:          s.nextWorkloadID(),
		ScriptPath:  scriptPath,
		SubmittedAt: time.Now(),
		Status:      WorkloadPending,
	}
	s.workloads[w.ID] = w

	candidates := s.reg.list()
	node := selectNode(candidates, s.cfg.CPUPlacementCeiling, "")
	if node == nil {
		observability.PlacementFailures.Inc()
		s.publishEvent("workload.pending", w.ID, "")
		return w, nil
	}

	pid, err := s.client.startWorkload(ctx, node.Host, node.Port, scriptPath, s.cfg.RPCTimeout)
	if err != nil {
		log.Printf("scheduler: placement of %s on %s failed: %v", w.ID, node.Key(), err)
		observability.PlacementFailures.Inc()
		s.publishEvent("workload.pending", w.ID, node.Key())
		return w, nil
	}

	s.desired[w.ID] = &DesiredEntry{WorkloadID: w.ID, NodeHost: node.Host, NodePort: node.Port, PID: pid, ScriptPath: scriptPath}
	w.Status = WorkloadRunning
	w.NodeKey = node.Key()
	w.PID = pid

	observability.PlacementSuccesses.Inc()
	s.publishEvent("workload.placed", w.ID, node.Key())
	return w, nil
}

// StopWorkload removes the DesiredPlacement entry (issuing a best-effort
// stop RPC) and deletes the workload, per spec.md §6.2 ("stop + remove").
// Returns false if the workload does not exist.
//
// Per spec.md §4.5, the lookup/decide/RPC/update sequence runs under the
// single Scheduler lock so a workload is never concurrently started on
// two nodes by a stop racing a recovery placement.
func (s *Scheduler) StopWorkload(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workloads[id]; !ok {
		return false
	}
	entry, hadEntry := s.desired[id]
	delete(s.desired, id)
	delete(s.failed, id)
	delete(s.pendingRetryReset, id)
	delete(s.workloads, id)

	if hadEntry {
		if err := s.client.stopWorkload(ctx, entry.NodeHost, entry.NodePort, entry.PID, s.cfg.RPCTimeout); err != nil {
			log.Printf("scheduler: best-effort stop of workload %s pid %d failed: %v", id, entry.PID, err)
		}
	}
	s.publishEvent("workload.stopped", id, "")
	return true
}

// ListWorkloads returns a snapshot of every known workload.
func (s *Scheduler) ListWorkloads() []Workload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Workload, 0, len(s.workloads))
	for _, w := range s.workloads {
		out = append(out, *w)
	}
	return out
}

// FailedSetIDs returns a snapshot of the ids currently awaiting
// re-placement.
func (s *Scheduler) FailedSetIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.failed))
	for id := range s.failed {
		out = append(out, id)
	}
	return out
}

// DesiredCount returns the number of entries currently in DesiredPlacement.
func (s *Scheduler) DesiredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.desired)
}

// onNodeOffline moves every workload desired on this node into FailedSet.
// Must be called with s.mu held.
func (s *Scheduler) onNodeOffline(nodeKey string) {
	for id, entry := range s.desired {
		if entry.NodeKey() == nodeKey {
			s.failed[id] = true
			if w, ok := s.workloads[id]; ok {
				w.Status = WorkloadRecovering
			}
		}
	}
}

// onNodeRejoin is a hook for the re-join event; recovery itself is driven
// entirely by FailedSet membership, so there is nothing to eagerly
// re-place here (spec.md §4.4's "raise re-join event" just documents the
// transition — it does not imply automatic rebinding of workloads that
// were never moved off this node).
func (s *Scheduler) onNodeRejoin(nodeKey string) {}

// onNodeHealthyTick clears pending retry-count resets for workloads bound
// to a node that is confirmed to still be Online, per SPEC_FULL §13
// item 3. Must be called with s.mu held.
func (s *Scheduler) onNodeHealthyTick(nodeKey string) {
	for id, entry := range s.desired {
		if entry.NodeKey() != nodeKey {
			continue
		}
		if s.pendingRetryReset[id] {
			if w, ok := s.workloads[id]; ok {
				w.RetryCount = 0
			}
			delete(s.pendingRetryReset, id)
		}
	}
}

func (s *Scheduler) publishEvent(kind, workloadID, nodeKey string) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.Event{
		Kind:       kind,
		WorkloadID: workloadID,
		NodeKey:    nodeKey,
		At:         time.Now(),
	})
}
