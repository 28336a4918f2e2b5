package scheduler

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/kstage/orchestrator/internal/scheduler/events"
	"github.com/kstage/orchestrator/internal/scheduler/idempotency"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the Scheduler's HTTP surface: node registration, workload
// submission and lifecycle, health introspection, and an events feed.
type Server struct {
	sched   *Scheduler
	hub     *events.Hub
	idem    *idempotency.Store
	limiter *submissionLimiter
}

func NewServer(sched *Scheduler, hub *events.Hub, idem *idempotency.Store) *Server {
	return &Server{
		sched:   sched,
		hub:     hub,
		idem:    idem,
		limiter: newSubmissionLimiter(5, 10),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/nodes", s.withCORS(s.handleNodes))
	mux.HandleFunc("/workloads", s.withCORS(s.handleWorkloads))
	mux.HandleFunc("/workloads/", s.withCORS(s.handleWorkloadByID))
	mux.HandleFunc("/health", s.withCORS(s.handleHealth))
	mux.HandleFunc("/health/summary", s.withCORS(s.handleHealthSummary))
	mux.HandleFunc("/health/check", s.withCORS(s.handleHealthCheck))
	mux.HandleFunc("/recovery/metrics", s.withCORS(s.handleRecoveryMetrics))
	mux.HandleFunc("/admin/admission", s.withCORS(s.handleAdmission))
	mux.HandleFunc("/events", s.hub.ServeWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.withCORS(s.handleNotFound))
	return mux
}

func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Idempotency-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "unknown route")
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.sched.ListNodes())
	case http.MethodPost:
		var req struct {
			Host string `json:"host"`
			Port int    `json:"port"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Host == "" || req.Port == 0 {
			writeError(w, http.StatusBadRequest, "host and port are required")
			return
		}
		node := s.sched.RegisterNode(req.Host, req.Port)
		writeJSON(w, http.StatusOK, node)
	default:
		writeError(w, http.StatusBadRequest, "method not allowed")
	}
}

func (s *Server) handleWorkloads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.sched.ListWorkloads())
	case http.MethodPost:
		s.handleSubmit(w, r)
	default:
		writeError(w, http.StatusBadRequest, "method not allowed")
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if !s.limiter.allow(remote) {
		writeError(w, http.StatusTooManyRequests, "submission rate exceeded")
		return
	}

	key := r.Header.Get("X-Idempotency-Key")
	if key != "" {
		if cached, ok := s.idem.Get(r.Context(), key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(cached.StatusCode)
			w.Write(cached.Body)
			return
		}
	}

	var req struct {
		ScriptPath string `json:"script_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ScriptPath == "" {
		writeError(w, http.StatusBadRequest, "script_path is required")
		return
	}

	workload, err := s.sched.SubmitWorkload(r.Context(), req.ScriptPath)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	body, _ := json.Marshal(workload)
	if key != "" {
		s.idem.Set(r.Context(), key, idempotency.Response{StatusCode: http.StatusOK, Body: body})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleWorkloadByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/workloads/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "workload id is required")
		return
	}
	switch r.Method {
	case http.MethodDelete:
		if !s.sched.StopWorkload(r.Context(), id) {
			writeError(w, http.StatusNotFound, "workload not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	default:
		writeError(w, http.StatusBadRequest, "method not allowed")
	}
}

// handleHealth is the liveness endpoint: summary counts only, per
// spec.md §6.2 and the literal S1 scenario ("online_nodes=1,
// offline_nodes=0").
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	nodes := s.sched.ListNodes()
	counts := map[NodeStatus]int{}
	for _, n := range nodes {
		counts[n.Status]++
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_nodes":    len(nodes),
		"online_nodes":   counts[NodeOnline],
		"degraded_nodes": counts[NodeDegraded],
		"offline_nodes":  counts[NodeOffline],
		"unknown_nodes":  counts[NodeUnknown],
	})
}

// handleHealthSummary is the detailed per-node snapshot, per spec.md §6.2.
func (s *Server) handleHealthSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.ListNodes())
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}
	s.sched.ForceProbe(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "probed"})
}

// handleRecoveryMetrics reports the FailedSet, the DesiredPlacement
// count, and per-node probe details (status, failure streak, RTT, last
// probe time, last-observed CPU/mem), per spec.md §6.2.
func (s *Server) handleRecoveryMetrics(w http.ResponseWriter, r *http.Request) {
	nodes := s.sched.ListNodes()
	probes := make([]map[string]interface{}, 0, len(nodes))
	for _, n := range nodes {
		probes = append(probes, map[string]interface{}{
			"node":                 n.Key(),
			"status":               n.Status,
			"consecutive_failures": n.ConsecutiveFailures,
			"last_probe_at":        n.LastProbeAt,
			"last_probe_rtt_ns":    n.LastProbeRTT,
			"cpu_usage":            n.CPUPercent,
			"memory_usage":         n.MemoryPercent,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"failed_set":    s.sched.FailedSetIDs(),
		"desired_count": s.sched.DesiredCount(),
		"node_probes":   probes,
	})
}

func (s *Server) handleAdmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch AdmissionMode(req.Mode) {
	case AdmissionNormal, AdmissionDrain, AdmissionFreeze:
		s.sched.SetAdmissionMode(AdmissionMode(req.Mode))
		writeJSON(w, http.StatusOK, map[string]string{"mode": req.Mode})
	default:
		writeError(w, http.StatusBadRequest, "mode must be normal, drain, or freeze")
	}
}
