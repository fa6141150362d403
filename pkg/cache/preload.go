package cache

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sudorandom/conflict-globe/pkg/events"
)

// maxBackgroundFetches bounds the background periods fetched at once.
const maxBackgroundFetches = 2

// Preloader fills a TemporalCache for every supported period. The shortest
// period is published as soon as it lands; the rest load in the background.
type Preloader struct {
	cache   *TemporalCache
	periods []events.Period

	// Published is called once the shortest period is cached.
	Published func(p events.Period)
	// Updated is called as each background period lands.
	Updated func(p events.Period)

	wg sync.WaitGroup
}

func NewPreloader(c *TemporalCache, periods []events.Period) *Preloader {
	sorted := append([]events.Period(nil), periods...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &Preloader{cache: c, periods: sorted}
}

// Preload blocks only for the shortest period. The background fetches run on
// ctx; cancelling it abandons the ones not yet started.
func (p *Preloader) Preload(ctx context.Context) {
	if len(p.periods) == 0 {
		return
	}
	first := p.periods[0]
	start := time.Now()
	p.loadPeriod(ctx, first)
	log.Printf("[PRELOAD] %s ready in %s (%s)", first, time.Since(start).Round(time.Millisecond), p.cache.State(first))
	if p.Published != nil {
		p.Published(first)
	}

	rest := p.periods[1:]
	if len(rest) == 0 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxBackgroundFetches)
		for _, period := range rest {
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				p.loadPeriod(gctx, period)
				log.Printf("[PRELOAD] %s ready in background (%s)", period, p.cache.State(period))
				if p.Updated != nil {
					p.Updated(period)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// Wait blocks until the background fetches finish.
func (p *Preloader) Wait() {
	p.wg.Wait()
}

// loadPeriod fetches the collection and roster for one period together.
func (p *Preloader) loadPeriod(ctx context.Context, period events.Period) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.cache.GetOrFetch(ctx, period)
	}()
	go func() {
		defer wg.Done()
		p.cache.GetUsernames(ctx, period)
	}()
	wg.Wait()
}
