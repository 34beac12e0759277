// Package diskcache implements the pipeline's disk cache: an async,
// key (request URL) to raw-bytes lookup/store backed by Badger, bounded by
// entry count and per-entry size.
package diskcache

import (
	"context"
	"sync"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	"github.com/dgraph-io/badger/v4"
)

// Config bounds the disk cache footprint.
type Config struct {
	Path string

	// CountLimit evicts the oldest entry once exceeded (FIFO, not LRU).
	CountLimit int
	// SizeLimit rejects Store calls for payloads larger than this.
	SizeLimit int64
}

// DefaultConfig matches spec defaults: 1000 entries, 100 MiB per entry.
func DefaultConfig(path string) Config {
	return Config{Path: path, CountLimit: 1000, SizeLimit: 100 << 20}
}

// Cache implements model.DataCache over a Badger key-value store.
type Cache struct {
	db  *badger.DB
	cfg Config

	mu    sync.Mutex
	order []string
	seen  map[string]struct{}
}

// Open opens (creating if absent) a Badger store at cfg.Path.
func Open(cfg Config) (*Cache, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db, cfg: cfg, seen: make(map[string]struct{})}, nil
}

// Close releases the underlying Badger store.
func (c *Cache) Close() error {
	return c.db.Close()
}

type cancelHandle struct {
	once sync.Once
	done chan struct{}
}

func (h *cancelHandle) Cancel() {
	h.once.Do(func() { close(h.done) })
}

// Lookup implements model.DataCache. onResult runs on a background
// goroutine unless the lookup is cancelled first, or the context given
// expires first.
func (c *Cache) Lookup(ctx context.Context, key string, onResult func(data []byte, found bool)) model.CancelHandle {
	h := &cancelHandle{done: make(chan struct{})}

	go func() {
		var data []byte
		found := false

		err := c.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(key))
			if err == badger.ErrKeyNotFound {
				return nil
			}
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				data = append([]byte(nil), val...)
				found = true
				return nil
			})
		})

		select {
		case <-h.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err != nil {
			onResult(nil, false)
			return
		}
		onResult(data, found)
	}()

	return h
}

// Store implements model.DataCache. Oversized payloads are silently
// dropped; once CountLimit is exceeded the oldest entry is evicted.
func (c *Cache) Store(key string, data []byte) {
	if c.cfg.SizeLimit > 0 && int64(len(data)) > c.cfg.SizeLimit {
		return
	}

	c.track(key)

	_ = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (c *Cache) track(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[key]; !ok {
		c.seen[key] = struct{}{}
		c.order = append(c.order, key)
	}

	if c.cfg.CountLimit <= 0 || len(c.order) <= c.cfg.CountLimit {
		return
	}

	evict := c.order[0]
	c.order = c.order[1:]
	delete(c.seen, evict)

	go func() {
		_ = c.db.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(evict))
		})
	}()
}
