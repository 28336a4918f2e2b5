// Package idempotency deduplicates repeated POST /workloads submissions
// carrying the same X-Idempotency-Key header, so a retried client request
// after a dropped response does not double-submit a workload.
package idempotency

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Response is the cached result of the first request seen for a key.
type Response struct {
	StatusCode int
	Body       []byte
}

// Backend is the minimal key/value contract a distributed cache must
// satisfy to back the Store; RedisBackend implements it over Redis.
type Backend interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

type entry struct {
	Resp    Response
	Expires time.Time
}

// idempotencyTTL is how long a submission's response stays deduped, per
// SPEC_FULL §11. The same window applies to both the Redis-backed tier
// and the single-instance in-memory fallback so dedup behavior does not
// change just because Redis is unconfigured.
const idempotencyTTL = 10 * time.Minute

// sweepInterval is how often the in-memory tier purges expired entries in
// the background, matching the Node Agent's reaper idiom
// (internal/agent.Supervisor.reapLoop) rather than relying solely on a
// lazy check at read time: a key that's never retried would otherwise
// sit in the map until process restart.
const sweepInterval = time.Minute

// Store dedupes by Idempotency-Key. With a Backend configured it is safe
// to share across scheduler replicas; without one it falls back to an
// in-process map good for a single instance.
type Store struct {
	backend Backend
	cache   sync.Map
	done    chan struct{}
}

func NewStore(backend Backend) *Store {
	s := &Store{backend: backend, done: make(chan struct{})}
	if backend == nil {
		go s.sweepLoop()
	}
	return s
}

// Close stops the in-memory sweeper. A no-op when a Backend is configured,
// since Redis expires keys itself via TTL.
func (s *Store) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Store) Get(ctx context.Context, key string) (Response, bool) {
	if s.backend != nil {
		val, err := s.backend.Get(ctx, key)
		if err != nil {
			log.Printf("idempotency: backend get %s failed: %v", key, err)
			return Response{}, false
		}
		if val == "" {
			return Response{}, false
		}
		var e entry
		if err := json.Unmarshal([]byte(val), &e); err != nil {
			return Response{}, false
		}
		return e.Resp, true
	}

	val, ok := s.cache.Load(key)
	if !ok {
		return Response{}, false
	}
	e := val.(entry)
	if time.Now().After(e.Expires) {
		s.cache.Delete(key)
		return Response{}, false
	}
	return e.Resp, true
}

func (s *Store) Set(ctx context.Context, key string, resp Response) {
	e := entry{Resp: resp, Expires: time.Now().Add(idempotencyTTL)}

	if s.backend != nil {
		data, _ := json.Marshal(e)
		if err := s.backend.Set(ctx, key, string(data), idempotencyTTL); err != nil {
			log.Printf("idempotency: backend set %s failed: %v", key, err)
		}
		return
	}

	s.cache.Store(key, e)
}

// sweepLoop wakes every sweepInterval and drops expired in-memory entries,
// so a key that is never retried doesn't linger until restart.
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Store) sweepOnce() {
	now := time.Now()
	s.cache.Range(func(key, val interface{}) bool {
		if e, ok := val.(entry); ok && now.After(e.Expires) {
			s.cache.Delete(key)
		}
		return true
	})
}
