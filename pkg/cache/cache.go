// Package cache decorates a service.Graph with a TTL result cache stored in
// Badger.
//
// Only successful results are cached. Keys are derived from the operation
// name and the canonical JSON of its request, so two requests that decode to
// the same filter share an entry. A cache read or write failure is logged
// and the call falls through to the wrapped service.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/orneryd/advisorgraph/pkg/graph"
	"github.com/orneryd/advisorgraph/pkg/metrics"
	"github.com/orneryd/advisorgraph/pkg/service"
)

// Options configures a Cache.
type Options struct {
	// Dir persists entries on disk. Empty keeps everything in memory.
	Dir string
	// TTL is how long an entry stays valid.
	TTL time.Duration
	// GCInterval runs value-log GC for on-disk caches. Zero uses 5 minutes.
	GCInterval time.Duration
	Logger     *zap.Logger
}

// Cache is a caching service.Graph.
type Cache struct {
	next   service.Graph
	db     *badger.DB
	ttl    time.Duration
	logger *zap.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

var _ service.Graph = (*Cache)(nil)

// New opens the cache store and wraps next.
func New(next service.Graph, opts Options) (*Cache, error) {
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive (got %v)", opts.TTL)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	badgerOpts := badger.DefaultOptions(opts.Dir).
		WithLogger(&badgerLogger{sugar: logger.Named("badger").Sugar()})
	if opts.Dir == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening cache store: %w", err)
	}

	c := &Cache{
		next:   next,
		db:     db,
		ttl:    opts.TTL,
		logger: logger,
		stop:   make(chan struct{}),
	}
	if opts.Dir != "" {
		interval := opts.GCInterval
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		c.wg.Add(1)
		go c.gcLoop(interval)
	}
	return c, nil
}

func (c *Cache) gcLoop(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			// Rewrite until there is nothing worth collecting.
			for c.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

// Close stops background GC and closes the store.
func (c *Cache) Close() error {
	close(c.stop)
	c.wg.Wait()
	return c.db.Close()
}

// Purge drops every entry.
func (c *Cache) Purge() error {
	return c.db.DropAll()
}

func (c *Cache) Query(ctx context.Context, req service.Request) (*graph.QueryResult, error) {
	return cached(ctx, c, "query", req, func() (*graph.QueryResult, error) {
		return c.next.Query(ctx, req)
	})
}

func (c *Cache) Detail(ctx context.Context, id string) (*graph.Detail, error) {
	return cached(ctx, c, "detail", id, func() (*graph.Detail, error) {
		return c.next.Detail(ctx, id)
	})
}

func (c *Cache) Summary(ctx context.Context) (*graph.Summary, error) {
	return cached(ctx, c, "summary", nil, func() (*graph.Summary, error) {
		return c.next.Summary(ctx)
	})
}

func (c *Cache) FilterOptions(ctx context.Context) (*graph.FilterOptions, error) {
	return cached(ctx, c, "filter_options", nil, func() (*graph.FilterOptions, error) {
		return c.next.FilterOptions(ctx)
	})
}

func (c *Cache) Expand(ctx context.Context, req service.ExpandRequest) (*graph.QueryResult, error) {
	return cached(ctx, c, "expand", req, func() (*graph.QueryResult, error) {
		return c.next.Expand(ctx, req)
	})
}

func (c *Cache) CascadingOptions(ctx context.Context, f *graph.Filter) (*graph.FilterOptions, error) {
	return cached(ctx, c, "cascading_options", f, func() (*graph.FilterOptions, error) {
		return c.next.CascadingOptions(ctx, f)
	})
}

func (c *Cache) FindPaths(ctx context.Context, req service.PathRequest) (*graph.QueryResult, error) {
	return cached(ctx, c, "find_paths", req, func() (*graph.QueryResult, error) {
		return c.next.FindPaths(ctx, req)
	})
}

func (c *Cache) Influence(ctx context.Context, req service.InfluenceRequest) (*graph.InfluenceNetwork, error) {
	return cached(ctx, c, "influence", req, func() (*graph.InfluenceNetwork, error) {
		return c.next.Influence(ctx, req)
	})
}

func cached[T any](ctx context.Context, c *Cache, op string, request any, load func() (*T, error)) (*T, error) {
	key, err := cacheKey(op, request)
	if err != nil {
		c.logger.Warn("building cache key", zap.String("op", op), zap.Error(err))
		return load()
	}

	if data, ok := c.get(key); ok {
		var out T
		if err := json.Unmarshal(data, &out); err == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return &out, nil
		}
		c.logger.Warn("discarding unreadable cache entry", zap.String("op", op))
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	out, err := load()
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(out); err == nil {
		c.set(key, data)
	}
	return out, nil
}

func cacheKey(op string, request any) ([]byte, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	return []byte(op + ":" + hex.EncodeToString(sum[:])), nil
}

func (c *Cache) get(key []byte) ([]byte, bool) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("cache read", zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

func (c *Cache) set(key, data []byte) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, data).WithTTL(c.ttl))
	})
	if err != nil {
		c.logger.Warn("cache write", zap.Error(err))
	}
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{})   { l.sugar.Errorf(f, v...) }
func (l *badgerLogger) Warningf(f string, v ...interface{}) { l.sugar.Warnf(f, v...) }
func (l *badgerLogger) Infof(f string, v ...interface{})    { l.sugar.Debugf(f, v...) }
func (l *badgerLogger) Debugf(f string, v ...interface{})   { l.sugar.Debugf(f, v...) }
