// Package observability holds the Scheduler's Prometheus instrumentation.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NodeCPUPercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orchestrator_node_cpu_percent",
		Help: "Last-observed CPU utilization percent per node.",
	}, []string{"node"})

	NodeMemoryPercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orchestrator_node_memory_percent",
		Help: "Last-observed memory utilization percent per node.",
	}, []string{"node"})

	NodeStatusMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orchestrator_node_status",
		Help: "1 for the node's current health-monitor status, keyed by node and status label.",
	}, []string{"node", "status"})

	NodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_node_offline_transitions_total",
		Help: "Count of times a node has transitioned to offline.",
	}, []string{"node"})

	PlacementSuccesses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_placement_successes_total",
		Help: "Count of workload submissions placed on a node on the first attempt.",
	})

	PlacementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_placement_failures_total",
		Help: "Count of workload submissions that could not be placed immediately and were left pending.",
	})

	RecoveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_recovery_attempts_total",
		Help: "Count of recovery-engine placement attempts, by outcome.",
	}, []string{"outcome"})

	RecoveryExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_recovery_exhausted_total",
		Help: "Count of workloads that hit max_retries and were marked terminally failed.",
	})
)
