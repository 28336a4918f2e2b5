package idempotency

import (
	"context"
	"testing"
	"time"
)

func TestStoreMemoryFallbackRoundTrip(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()
	ctx := context.Background()

	if _, ok := s.Get(ctx, "missing"); ok {
		t.Fatal("expected miss on unset key")
	}

	s.Set(ctx, "key1", Response{StatusCode: 200, Body: []byte(`{"ok":true}`)})
	resp, ok := s.Get(ctx, "key1")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if resp.StatusCode != 200 || string(resp.Body) != `{"ok":true}` {
		t.Fatalf("unexpected cached response: %+v", resp)
	}
}

type fakeBackend struct {
	data map[string]string
}

func newFakeBackend() *fakeBackend { return &fakeBackend{data: make(map[string]string)} }

func (f *fakeBackend) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	f.data[key] = value
	return nil
}

func (f *fakeBackend) Get(ctx context.Context, key string) (string, error) {
	return f.data[key], nil
}

func TestStoreBackendRoundTrip(t *testing.T) {
	backend := newFakeBackend()
	s := NewStore(backend)
	ctx := context.Background()

	s.Set(ctx, "key1", Response{StatusCode: 201, Body: []byte("hello")})
	resp, ok := s.Get(ctx, "key1")
	if !ok {
		t.Fatal("expected hit from backend")
	}
	if resp.StatusCode != 201 || string(resp.Body) != "hello" {
		t.Fatalf("unexpected backend-cached response: %+v", resp)
	}
}

func TestStoreBackendMiss(t *testing.T) {
	s := NewStore(newFakeBackend())
	if _, ok := s.Get(context.Background(), "missing"); ok {
		t.Fatal("expected miss on unset backend key")
	}
}

func TestStoreSweepPurgesExpiredMemoryEntry(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "key1", Response{StatusCode: 200})
	s.cache.Store("key1", entry{Resp: Response{StatusCode: 200}, Expires: time.Now().Add(-time.Second)})

	s.sweepOnce()

	if _, ok := s.cache.Load("key1"); ok {
		t.Fatal("expected sweepOnce to purge an already-expired entry")
	}
}
