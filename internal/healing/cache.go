package healing

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Entry is one cached decision, keyed by fingerprint.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	SpecVersion string    `json:"spec_version"`
	Decision    Decision  `json:"decision"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the entry's TTL has passed.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Store is an optional persistent backend behind the in-memory cache.
// A read error or corrupt entry is treated as a miss, never as a failure.
type Store interface {
	GetEntry(ctx context.Context, fingerprint string) (*Entry, error)
	PutEntry(ctx context.Context, entry *Entry) error
	DeleteSpecVersion(ctx context.Context, specVersion string) error
	DeleteExpired(ctx context.Context) error
}

// Cache is a read-through decision cache with single-flight semantics:
// concurrent lookups for the same fingerprint share one computation.
type Cache struct {
	mem    *lru.LRU[string, *Entry]
	flight singleflight.Group
	store  Store // may be nil
	ttl    time.Duration
}

// NewCache creates a cache holding up to size entries for ttl each,
// optionally backed by a persistent store.
func NewCache(size int, ttl time.Duration, store Store) *Cache {
	return &Cache{
		mem:   lru.NewLRU[string, *Entry](size, nil, ttl),
		store: store,
		ttl:   ttl,
	}
}

// flightResult lets exactly one caller claim the fresh computation as its
// own (cacheHit=false); every other caller sharing it reports a hit.
type flightResult struct {
	decision  *Decision
	fromCache bool
	claimed   atomic.Bool
}

// Do returns the decision for fingerprint, computing it at most once per
// in-flight key. The second return value is the cacheHit flag for this
// caller. Waiters abandoned by cancellation return ctx.Err; the leader's
// computation still completes and populates the cache.
func (c *Cache) Do(ctx context.Context, fingerprint, specVersion string, compute func(context.Context) (*Decision, error)) (*Decision, bool, error) {
	if e, ok := c.mem.Get(fingerprint); ok && !e.Expired(time.Now()) {
		return &e.Decision, true, nil
	}

	ch := c.flight.DoChan(fingerprint, func() (any, error) {
		// A caller can lose the race between its memory check and joining
		// the flight; re-check so a fresh flight never recomputes what the
		// previous leader just stored.
		if e, ok := c.mem.Get(fingerprint); ok && !e.Expired(time.Now()) {
			return &flightResult{decision: &e.Decision, fromCache: true}, nil
		}
		if e := c.lookupStore(ctx, fingerprint); e != nil {
			c.mem.Add(fingerprint, e)
			return &flightResult{decision: &e.Decision, fromCache: true}, nil
		}

		d, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		e := &Entry{
			Fingerprint: fingerprint,
			SpecVersion: specVersion,
			Decision:    *d,
			CreatedAt:   now,
			ExpiresAt:   now.Add(c.ttl),
		}
		c.mem.Add(fingerprint, e)
		if c.store != nil {
			// Persistence is best-effort; a write failure degrades to
			// in-memory caching only.
			_ = c.store.PutEntry(ctx, e)
		}
		return &flightResult{decision: d}, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		r := res.Val.(*flightResult)
		hit := r.fromCache || !r.claimed.CompareAndSwap(false, true)
		return r.decision, hit, nil
	}
}

// lookupStore reads the persistent backend, treating every error, corrupt
// entry, or expired entry as a miss.
func (c *Cache) lookupStore(ctx context.Context, fingerprint string) *Entry {
	if c.store == nil {
		return nil
	}
	e, err := c.store.GetEntry(ctx, fingerprint)
	if err != nil || e == nil {
		return nil
	}
	if e.Decision.Strategy == "" || e.Expired(time.Now()) {
		return nil
	}
	return e
}

// InvalidateSpecVersion drops every entry recorded under the given spec
// version. Called when the spec under test changes; stale decisions must
// not heal against the old contract.
func (c *Cache) InvalidateSpecVersion(ctx context.Context, specVersion string) error {
	for _, key := range c.mem.Keys() {
		if e, ok := c.mem.Get(key); ok && e.SpecVersion == specVersion {
			c.mem.Remove(key)
		}
	}
	if c.store != nil {
		return c.store.DeleteSpecVersion(ctx, specVersion)
	}
	return nil
}
