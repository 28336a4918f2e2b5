package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

func testServerHostPort(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}
	p, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing test server port: %v", err)
	}
	return u.Hostname(), p
}

func TestClientProbeDecodesStatusResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(agentStatusResponse{CPUUsage: 11, MemoryUsage: 22, RunningProcesses: 3})
	}))
	defer srv.Close()
	host, port := testServerHostPort(t, srv)

	c := newNodeClient()
	resp, _, err := c.probe(context.Background(), host, port, time.Second)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if resp.CPUUsage != 11 || resp.MemoryUsage != 22 {
		t.Fatalf("unexpected probe response: %+v", resp)
	}
}

func TestClientProbeErrorsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	host, port := testServerHostPort(t, srv)

	c := newNodeClient()
	if _, _, err := c.probe(context.Background(), host, port, time.Second); err == nil {
		t.Fatal("expected error on non-200 probe response")
	}
}

func TestClientProbeErrorsOnUnreachableNode(t *testing.T) {
	c := newNodeClient()
	if _, _, err := c.probe(context.Background(), "127.0.0.1", 1, 200*time.Millisecond); err == nil {
		t.Fatal("expected error probing an unreachable node")
	}
}

func TestClientStopWorkloadPostsExpectedBody(t *testing.T) {
	var gotPID int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PID int `json:"pid"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotPID = req.PID
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	host, port := testServerHostPort(t, srv)

	c := newNodeClient()
	if err := c.stopWorkload(context.Background(), host, port, 42, time.Second); err != nil {
		t.Fatalf("stopWorkload: %v", err)
	}
	if gotPID != 42 {
		t.Fatalf("expected pid 42 in request body, got %d", gotPID)
	}
}
