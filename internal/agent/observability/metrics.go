// Package observability exposes the Node Agent's Prometheus metrics,
// following the same promauto idiom as the Scheduler's metrics package.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CPUUsagePercent tracks the last-sampled host CPU utilization.
	CPUUsagePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_cpu_usage_percent",
		Help: "Last-sampled host CPU utilization percentage",
	})

	// MemoryUsagePercent tracks the last-sampled host memory utilization.
	MemoryUsagePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_memory_usage_percent",
		Help: "Last-sampled host memory utilization percentage",
	})

	// RunningProcesses tracks the number of records in the process table.
	RunningProcesses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_running_processes",
		Help: "Current number of tracked child processes",
	})

	// StartRequests counts start requests by outcome.
	StartRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_start_requests_total",
		Help: "Total number of /start requests by outcome",
	}, []string{"outcome"})

	// StopRequests counts stop requests by outcome.
	StopRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_stop_requests_total",
		Help: "Total number of /stop requests by outcome",
	}, []string{"outcome"})
)
