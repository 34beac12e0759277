package diskcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T, countLimit int) *Cache {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "disk"))
	cfg.CountLimit = countLimit
	c, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStoreAndLookupHit(t *testing.T) {
	c := newTestCache(t, 1000)

	c.Store("https://example.com/a.jpg", []byte("bytes-a"))

	resultCh := make(chan struct {
		data  []byte
		found bool
	}, 1)
	c.Lookup(context.Background(), "https://example.com/a.jpg", func(data []byte, found bool) {
		resultCh <- struct {
			data  []byte
			found bool
		}{data, found}
	})

	select {
	case r := <-resultCh:
		if !r.found {
			t.Fatal("expected hit")
		}
		if string(r.data) != "bytes-a" {
			t.Errorf("data = %q, want %q", r.data, "bytes-a")
		}
	case <-time.After(time.Second):
		t.Fatal("lookup never completed")
	}
}

func TestLookupMiss(t *testing.T) {
	c := newTestCache(t, 1000)

	resultCh := make(chan bool, 1)
	c.Lookup(context.Background(), "missing-key", func(data []byte, found bool) {
		resultCh <- found
	})

	select {
	case found := <-resultCh:
		if found {
			t.Error("expected miss")
		}
	case <-time.After(time.Second):
		t.Fatal("lookup never completed")
	}
}

func TestStoreRejectsOversizedPayload(t *testing.T) {
	c := newTestCache(t, 1000)
	c.cfg.SizeLimit = 4

	c.Store("big", []byte("too-large-to-store"))

	resultCh := make(chan bool, 1)
	c.Lookup(context.Background(), "big", func(data []byte, found bool) {
		resultCh <- found
	})

	select {
	case found := <-resultCh:
		if found {
			t.Error("expected oversized payload to be rejected")
		}
	case <-time.After(time.Second):
		t.Fatal("lookup never completed")
	}
}

func TestLookupCancelSkipsCallback(t *testing.T) {
	c := newTestCache(t, 1000)
	c.Store("key", []byte("data"))

	called := make(chan struct{}, 1)
	handle := c.Lookup(context.Background(), "key", func(data []byte, found bool) {
		called <- struct{}{}
	})
	handle.Cancel()

	select {
	case <-called:
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCountLimitEvictsOldest(t *testing.T) {
	c := newTestCache(t, 2)

	c.Store("k1", []byte("v1"))
	c.Store("k2", []byte("v2"))
	c.Store("k3", []byte("v3"))

	time.Sleep(100 * time.Millisecond) // async eviction

	resultCh := make(chan bool, 1)
	c.Lookup(context.Background(), "k1", func(data []byte, found bool) {
		resultCh <- found
	})

	select {
	case found := <-resultCh:
		if found {
			t.Error("expected oldest entry k1 to be evicted")
		}
	case <-time.After(time.Second):
		t.Fatal("lookup never completed")
	}
}
