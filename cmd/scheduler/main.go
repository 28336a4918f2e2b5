// Command scheduler runs the control plane: node registry, placement,
// health monitoring, and automated recovery over a fleet of Node Agents.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kstage/orchestrator/internal/scheduler"
	"github.com/kstage/orchestrator/internal/scheduler/events"
	"github.com/kstage/orchestrator/internal/scheduler/idempotency"
)

func main() {
	port := flag.Int("port", 5000, "listening TCP port")
	stateFile := flag.String("state-file", "orchestrator_state.json", "path to the crash-consistent state file")
	healthInterval := flag.Duration("health-interval", 3*time.Second, "health probe period")
	healthTimeout := flag.Duration("health-timeout", 2*time.Second, "per-probe RPC timeout")
	failureThreshold := flag.Int("failure-threshold", 2, "consecutive failed probes before a node is marked offline")
	maxRetries := flag.Int("max-retries", 3, "placement attempts before a workload is marked terminally failed")
	recoveryPeriod := flag.Duration("recovery-period", 1*time.Second, "recovery engine tick period")
	stateSavePeriod := flag.Duration("state-save-period", 30*time.Second, "state persistence period")
	cpuCeiling := flag.Float64("cpu-ceiling", 80.0, "CPU percent ceiling for placement eligibility")
	rpcTimeout := flag.Duration("rpc-timeout", 10*time.Second, "node start/stop RPC timeout")
	redisAddr := flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "optional Redis address backing the idempotency cache")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := scheduler.Config{
		StateFilePath:       *stateFile,
		HealthCheckInterval: *healthInterval,
		HealthCheckTimeout:  *healthTimeout,
		FailureThreshold:    *failureThreshold,
		MaxRetries:          *maxRetries,
		RecoveryPeriod:      *recoveryPeriod,
		StateSavePeriod:     *stateSavePeriod,
		CPUPlacementCeiling: *cpuCeiling,
		RPCTimeout:          *rpcTimeout,
	}

	hub := events.NewHub()
	sched := scheduler.New(cfg, hub)

	if err := sched.LoadState(); err != nil {
		log.Fatalf("scheduler: loading state: %v", err)
	}

	// REDIS_ADDR unset or unreachable at startup falls back to the
	// in-memory tier rather than aborting the process; the idempotency
	// cache is a submission-dedup convenience, not load-bearing state.
	var idemBackend idempotency.Backend
	if *redisAddr != "" {
		backend, err := idempotency.NewRedisBackend(*redisAddr, "", 0)
		if err != nil {
			log.Printf("scheduler: redis unreachable at %s, falling back to in-memory idempotency cache: %v", *redisAddr, err)
		} else {
			idemBackend = backend
		}
	}
	idemStore := idempotency.NewStore(idemBackend)
	defer idemStore.Close()

	server := scheduler.NewServer(sched, hub, idemStore)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: server.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Printf("scheduler: listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Println("scheduler: shutting down")
		if err := sched.SaveState(); err != nil {
			log.Printf("scheduler: final state save failed: %v", err)
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("scheduler: exited with error: %v", err)
		os.Exit(1)
	}
}
