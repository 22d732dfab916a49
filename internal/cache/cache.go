// Package cache provides the content-addressed, TTL-bucketed cache shared by
// all provider clients.
//
// Entries live in a bounded in-memory LRU. Expiry is checked when an entry is
// read; there is no background sweep. An optional Store adds a persistent
// second tier so that entries survive restarts within their TTL. Concurrent
// misses for the same key are collapsed into a single computation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/facebookgo/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxEntries bounds the in-memory tier when Config.MaxEntries is unset.
const DefaultMaxEntries = 10_000

// DefaultComputeTimeout bounds a shared computation when
// Config.ComputeTimeout is unset.
const DefaultComputeTimeout = 2 * time.Minute

// Entry is a serialized cache value with its absolute expiry.
type Entry struct {
	Key       Key
	Value     []byte
	ExpiresAt time.Time
}

// Store is a persistent second tier. Get must not return entries whose
// ExpiresAt is at or before now.
type Store interface {
	Get(ctx context.Context, key Key, now time.Time) (*Entry, error)
	Set(ctx context.Context, entry Entry) error
}

// Recorder receives hit and miss notifications, labelled by query kind.
type Recorder interface {
	RecordCacheHit(kind string)
	RecordCacheMiss(kind string)
}

// Config holds cache settings.
type Config struct {
	// MaxEntries bounds the in-memory tier.
	MaxEntries int
	// Policy supplies TTLs per query kind. Zero durations take the defaults.
	Policy Policy
	// ComputeTimeout bounds a computation shared by concurrent misses.
	ComputeTimeout time.Duration
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock, letting tests simulate expiry.
func WithClock(c clock.Clock) Option {
	return func(cc *Cache) { cc.clock = c }
}

// WithStore adds a persistent second tier.
func WithStore(s Store) Option {
	return func(cc *Cache) { cc.store = s }
}

// WithRecorder reports hits and misses to r.
func WithRecorder(r Recorder) Option {
	return func(cc *Cache) { cc.recorder = r }
}

// WithLogger sets the logger used for store failures and debug tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(cc *Cache) { cc.logger = l }
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is safe for concurrent use. A nil *Cache is valid and caches nothing.
type Cache struct {
	entries        *lru.Cache[string, memEntry]
	store          Store
	computeTimeout time.Duration
	policy         Policy
	clock          clock.Clock
	group          singleflight.Group
	recorder       Recorder
	logger         zerolog.Logger
}

// New creates a cache bounded to cfg.MaxEntries entries.
func New(cfg Config, opts ...Option) (*Cache, error) {
	size := cfg.MaxEntries
	if size <= 0 {
		size = DefaultMaxEntries
	}
	entries, err := lru.New[string, memEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}

	timeout := cfg.ComputeTimeout
	if timeout <= 0 {
		timeout = DefaultComputeTimeout
	}
	c := &Cache{
		entries:        entries,
		computeTimeout: timeout,
		policy:         cfg.Policy.withDefaults(),
		clock:          clock.New(),
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured time-to-live for kind. A nil cache reports the
// default policy.
func (c *Cache) TTL(key Key) time.Duration {
	if c == nil {
		return DefaultPolicy().TTL(key.Kind)
	}
	return c.policy.TTL(key.Kind)
}

// Len returns the number of entries held in memory, expired ones included.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Fetch is GetOrCompute with the TTL taken from the cache policy for the
// key's query kind.
func Fetch[T any](ctx context.Context, c *Cache, key Key, compute func(context.Context) (T, error)) (T, error) {
	return GetOrCompute(ctx, c, key, c.TTL(key), compute)
}

// GetOrCompute returns the cached value for key, or runs compute, stores its
// result for ttl and returns it. Errors from compute are returned and never
// cached. Values round-trip through JSON, so every caller, including the one
// that computed, observes the same decoded value.
//
// Concurrent misses share one computation. It runs detached from any single
// caller's cancellation, bounded by Config.ComputeTimeout, and each caller
// stops waiting as soon as its own ctx is done.
func GetOrCompute[T any](ctx context.Context, c *Cache, key Key, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return compute(ctx)
	}

	raw, ok := c.lookup(key)
	if ok {
		if c.recorder != nil {
			c.recorder.RecordCacheHit(string(key.Kind))
		}
	} else {
		ch := c.group.DoChan(key.String(), func() (any, error) {
			return c.fill(ctx, key, ttl, func(ctx context.Context) (any, error) { return compute(ctx) })
		})
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return zero, res.Err
			}
			raw = res.Val.([]byte)
		}
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("decode cache value: %w", err)
	}
	return out, nil
}

// fill runs inside the single flight for key. ctx is the context of the
// caller that started the flight; only its values are kept.
func (c *Cache) fill(ctx context.Context, key Key, ttl time.Duration, compute func(context.Context) (any, error)) ([]byte, error) {
	// Another flight may have filled the entry while we waited.
	if raw, ok := c.lookup(key); ok {
		return raw, nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
	defer cancel()

	if raw, ok := c.loadFromStore(ctx, key); ok {
		return raw, nil
	}
	if c.recorder != nil {
		c.recorder.RecordCacheMiss(string(key.Kind))
	}
	c.logger.Debug().Str("key", key.String()).Msg("cache miss")

	value, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode cache value: %w", err)
	}
	c.put(ctx, key, raw, ttl)
	return raw, nil
}

// lookup returns a live in-memory value, evicting it if it has expired.
func (c *Cache) lookup(key Key) ([]byte, bool) {
	id := key.String()
	e, ok := c.entries.Get(id)
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.entries.Remove(id)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) loadFromStore(ctx context.Context, key Key) ([]byte, bool) {
	if c.store == nil {
		return nil, false
	}
	now := c.clock.Now()
	entry, err := c.store.Get(ctx, key, now)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("cache store read failed")
		return nil, false
	}
	if entry == nil || !now.Before(entry.ExpiresAt) {
		return nil, false
	}
	c.entries.Add(key.String(), memEntry{value: entry.Value, expiresAt: entry.ExpiresAt})
	if c.recorder != nil {
		c.recorder.RecordCacheHit(string(key.Kind))
	}
	return entry.Value, true
}

func (c *Cache) put(ctx context.Context, key Key, raw []byte, ttl time.Duration) {
	expiresAt := c.clock.Now().Add(ttl)
	c.entries.Add(key.String(), memEntry{value: raw, expiresAt: expiresAt})

	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, Entry{Key: key, Value: raw, ExpiresAt: expiresAt}); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("cache store write failed")
	}
}
