package agent

import (
	"encoding/json"
	"net/http"

	"github.com/kstage/orchestrator/internal/agent/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the Node Agent's HTTP surface: /status, /start, /stop, /metrics.
// Each request is handled independently and statelessly; the ServeMux's
// default per-connection goroutine dispatch is sufficient at this scale.
type Server struct {
	supervisor *Supervisor
	sampler    *MetricsSampler
}

// NewServer wires a Server to a process supervisor and metrics sampler.
func NewServer(supervisor *Supervisor, sampler *MetricsSampler) *Server {
	return &Server{supervisor: supervisor, sampler: sampler}
}

// Handler returns the configured mux, ready to be passed to http.Serve.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.withCORS(s.handleStatus))
	mux.HandleFunc("/start", s.withCORS(s.handleStart))
	mux.HandleFunc("/stop", s.withCORS(s.handleStop))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.withCORS(s.handleNotFound))
	return mux
}

// withCORS adds permissive CORS headers to every Node Agent response, per
// the same policy the control plane applies to its own API.
func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
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

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}

	metrics, err := s.sampler.Sample()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	observability.CPUUsagePercent.Set(metrics.CPUPercent)
	observability.MemoryUsagePercent.Set(metrics.MemoryPercent)

	procs := s.supervisor.List()
	observability.RunningProcesses.Set(float64(len(procs)))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cpu_usage":         metrics.CPUPercent,
		"memory_usage":      metrics.MemoryPercent,
		"total_memory":      metrics.TotalMemoryKB,
		"available_memory":  metrics.AvailableMemoryKB,
		"running_processes": len(procs),
		"processes":         procs,
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}

	var req struct {
		ScriptPath string `json:"script_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ScriptPath == "" {
		writeError(w, http.StatusBadRequest, "script_path is required")
		observability.StartRequests.WithLabelValues("invalid").Inc()
		return
	}

	pid, err := s.supervisor.Start(req.ScriptPath)
	if err != nil {
		observability.StartRequests.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	observability.StartRequests.WithLabelValues("started").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pid":    pid,
		"status": "started",
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}

	var req struct {
		PID json.Number `json:"pid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pid64, err := req.PID.Int64()
	if err != nil {
		writeError(w, http.StatusBadRequest, "pid must be numeric")
		observability.StopRequests.WithLabelValues("invalid").Inc()
		return
	}

	if err := s.supervisor.Stop(int(pid64)); err != nil {
		observability.StopRequests.WithLabelValues("not_found").Inc()
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	observability.StopRequests.WithLabelValues("stopped").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}
