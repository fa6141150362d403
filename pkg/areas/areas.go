// Package areas builds the detail shown for a selected region: its tension
// index and its event activity over the current month.
package areas

import (
	"context"
	"log"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/sudorandom/conflict-globe/pkg/events"
)

const (
	DefaultCacheSize = 128
	DefaultCacheTTL  = 5 * time.Minute
)

// Source is the part of the event API an area detail needs.
type Source interface {
	Tension(ctx context.Context, area string) (events.Tension, error)
	Events(ctx context.Context, start, end, area string) (*events.Collection, error)
}

type Detail struct {
	Area     string         `json:"area"`
	Tension  events.Tension `json:"tension"`
	Activity Activity       `json:"activity"`
}

// Service fetches area details and keeps complete ones for a while.
type Service struct {
	src   Source
	now   func() time.Time
	cache *expirable.LRU[string, Detail]
}

type Option func(*Service)

// WithClock overrides the time used to pick the current month.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCache sizes the detail cache.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = expirable.NewLRU[string, Detail](size, nil, ttl)
	}
}

func NewService(src Source, opts ...Option) *Service {
	s := &Service{src: src, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = expirable.NewLRU[string, Detail](DefaultCacheSize, nil, DefaultCacheTTL)
	}
	return s
}

// Detail never fails: a tension failure degrades to the neutral index and an
// activity failure to an empty month. Degraded details are not cached.
func (s *Service) Detail(ctx context.Context, area string) Detail {
	if d, ok := s.cache.Get(area); ok {
		return d
	}

	now := s.now()
	d := Detail{Area: area, Tension: events.NeutralTension()}
	var tensionOK, activityOK bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.src.Tension(gctx, area)
		if err != nil {
			log.Printf("[AREA] Error fetching tension for %q: %v", area, err)
			return nil
		}
		d.Tension = t
		tensionOK = true
		return nil
	})

	var coll *events.Collection
	g.Go(func() error {
		c, err := s.src.Events(gctx, events.FormatTime(MonthStart(now)), events.FormatTime(now), area)
		if err != nil {
			log.Printf("[AREA] Error fetching activity for %q: %v", area, err)
			return nil
		}
		coll = c
		activityOK = true
		return nil
	})
	_ = g.Wait()

	d.Activity = MonthlyActivity(now, coll)
	if tensionOK && activityOK {
		s.cache.Add(area, d)
	}
	return d
}

// Forget drops every cached detail.
func (s *Service) Forget() {
	s.cache.Purge()
}
