// Package cache holds fetched event collections and username rosters keyed by
// period, with one in-flight fetch per key.
package cache

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sudorandom/conflict-globe/pkg/events"
)

// Fetcher is the subset of the event API the cache needs.
type Fetcher interface {
	PeriodEvents(ctx context.Context, p events.Period) (*events.Collection, error)
	Usernames(ctx context.Context, p events.Period) ([]string, error)
}

// State distinguishes a period that was never requested from one whose fetch
// failed or came back empty.
type State int

const (
	StateAbsent State = iota
	StateEmpty
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	}
	return "absent"
}

type collectionEntry struct {
	coll  *events.Collection
	state State
}

type rosterEntry struct {
	names []string
	state State
}

// TemporalCache is shared by every consumer in a session. Entries are written
// once; later results for a populated key are discarded.
type TemporalCache struct {
	fetcher Fetcher
	metrics *Metrics

	mu      sync.RWMutex
	colls   map[events.Period]collectionEntry
	rosters map[events.Period]rosterEntry
	gen     uint64

	group singleflight.Group
}

func New(f Fetcher, m *Metrics) *TemporalCache {
	if m == nil {
		m = NewMetrics(nil)
	}
	return &TemporalCache{
		fetcher: f,
		metrics: m,
		colls:   make(map[events.Period]collectionEntry),
		rosters: make(map[events.Period]rosterEntry),
	}
}

// State reports what is cached for p.
func (c *TemporalCache) State(p events.Period) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.colls[p].state
}

// RosterState reports what is cached for p's roster.
func (c *TemporalCache) RosterState(p events.Period) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rosters[p].state
}

// Peek returns the cached collection without fetching. ok is false only when
// the period was never requested.
func (c *TemporalCache) Peek(p events.Period) (coll *events.Collection, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.colls[p]
	return e.coll, ok
}

// PeekUsernames is Peek for rosters.
func (c *TemporalCache) PeekUsernames(p events.Period) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.rosters[p]
	return e.names, ok
}

// Reset drops every entry. Fetches already in flight complete but their
// results are not stored.
func (c *TemporalCache) Reset() {
	c.mu.Lock()
	c.colls = make(map[events.Period]collectionEntry)
	c.rosters = make(map[events.Period]rosterEntry)
	c.gen++
	c.mu.Unlock()
	for _, p := range events.Periods {
		c.group.Forget(eventsKey(p))
		c.group.Forget(rosterKey(p))
	}
	log.Println("[CACHE] Reset")
}

func eventsKey(p events.Period) string { return fmt.Sprintf("events/%d", int(p)) }
func rosterKey(p events.Period) string { return fmt.Sprintf("roster/%d", int(p)) }

func (c *TemporalCache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// GetOrFetch returns the cached collection for p, fetching it if absent.
// A failed fetch caches an empty collection that is returned from then on
// without retrying. It never returns nil.
func (c *TemporalCache) GetOrFetch(ctx context.Context, p events.Period) *events.Collection {
	if coll, ok := c.Peek(p); ok {
		c.metrics.hits.WithLabelValues("events").Inc()
		return coll
	}

	key := eventsKey(p)
	gen := c.generation()
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if coll, ok := c.Peek(p); ok {
			return coll, nil
		}
		fetchCtx := context.WithoutCancel(ctx)
		coll, err := c.fetcher.PeriodEvents(fetchCtx, p)
		entry := collectionEntry{coll: coll, state: StateLoaded}
		switch {
		case err != nil:
			log.Printf("[CACHE] Fetch events for %s failed, caching empty: %v", p, err)
			c.metrics.fetches.WithLabelValues("events", "error").Inc()
			entry = collectionEntry{coll: &events.Collection{}, state: StateEmpty}
		case coll.Len() == 0:
			c.metrics.fetches.WithLabelValues("events", "empty").Inc()
			if coll == nil {
				coll = &events.Collection{}
			}
			entry = collectionEntry{coll: coll, state: StateEmpty}
		default:
			c.metrics.fetches.WithLabelValues("events", "ok").Inc()
		}
		return c.storeCollection(p, gen, entry), nil
	})

	select {
	case <-ctx.Done():
		return &events.Collection{}
	case res := <-ch:
		if res.Shared {
			c.metrics.shared.WithLabelValues("events").Inc()
		}
		return res.Val.(*events.Collection)
	}
}

// storeCollection keeps the first writer's entry and returns whatever is
// cached afterwards.
func (c *TemporalCache) storeCollection(p events.Period, gen uint64, e collectionEntry) *events.Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		log.Printf("[CACHE] Discarding stale events for %s", p)
		return e.coll
	}
	if existing, ok := c.colls[p]; ok {
		return existing.coll
	}
	c.colls[p] = e
	return e.coll
}

// GetUsernames returns the roster for p. It is derived from a loaded
// collection when one is cached, otherwise fetched from the roster endpoint
// under the same single-flight and failure rules as GetOrFetch.
func (c *TemporalCache) GetUsernames(ctx context.Context, p events.Period) []string {
	if names, ok := c.PeekUsernames(p); ok {
		c.metrics.hits.WithLabelValues("roster").Inc()
		return names
	}

	key := rosterKey(p)
	gen := c.generation()
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if names, ok := c.PeekUsernames(p); ok {
			return names, nil
		}
		c.mu.RLock()
		loaded := c.colls[p]
		c.mu.RUnlock()
		if loaded.state == StateLoaded {
			c.metrics.fetches.WithLabelValues("roster", "derived").Inc()
			return c.storeRoster(p, gen, rosterEntry{names: loaded.coll.Usernames(), state: StateLoaded}), nil
		}

		names, err := c.fetcher.Usernames(context.WithoutCancel(ctx), p)
		entry := rosterEntry{names: names, state: StateLoaded}
		switch {
		case err != nil:
			log.Printf("[CACHE] Fetch usernames for %s failed, caching empty: %v", p, err)
			c.metrics.fetches.WithLabelValues("roster", "error").Inc()
			entry = rosterEntry{names: []string{}, state: StateEmpty}
		case len(names) == 0:
			c.metrics.fetches.WithLabelValues("roster", "empty").Inc()
			entry = rosterEntry{names: []string{}, state: StateEmpty}
		default:
			c.metrics.fetches.WithLabelValues("roster", "ok").Inc()
		}
		return c.storeRoster(p, gen, entry), nil
	})

	select {
	case <-ctx.Done():
		return []string{}
	case res := <-ch:
		if res.Shared {
			c.metrics.shared.WithLabelValues("roster").Inc()
		}
		return res.Val.([]string)
	}
}

func (c *TemporalCache) storeRoster(p events.Period, gen uint64, e rosterEntry) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		log.Printf("[CACHE] Discarding stale usernames for %s", p)
		return e.names
	}
	if existing, ok := c.rosters[p]; ok {
		return existing.names
	}
	c.rosters[p] = e
	return e.names
}
