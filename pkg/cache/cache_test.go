package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudorandom/conflict-globe/pkg/events"
)

type fakeFetcher struct {
	mu          sync.Mutex
	eventCalls  map[events.Period]int
	rosterCalls map[events.Period]int
	release     chan struct{}
	started     chan events.Period
	failEvents  map[events.Period]bool
	failRoster  map[events.Period]bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		eventCalls:  make(map[events.Period]int),
		rosterCalls: make(map[events.Period]int),
		failEvents:  make(map[events.Period]bool),
		failRoster:  make(map[events.Period]bool),
	}
}

func (f *fakeFetcher) PeriodEvents(ctx context.Context, p events.Period) (*events.Collection, error) {
	f.mu.Lock()
	f.eventCalls[p]++
	fail := f.failEvents[p]
	release, started := f.release, f.started
	f.mu.Unlock()

	if started != nil {
		started <- p
	}
	if release != nil {
		<-release
	}
	if fail {
		return nil, errors.New("boom")
	}
	return &events.Collection{Features: []events.Feature{
		{ID: "1", Username: "bob"},
		{ID: "2", Username: "alice"},
		{ID: "3", Username: "bob"},
	}}, nil
}

func (f *fakeFetcher) Usernames(ctx context.Context, p events.Period) ([]string, error) {
	f.mu.Lock()
	f.rosterCalls[p]++
	fail := f.failRoster[p]
	f.mu.Unlock()
	if fail {
		return nil, errors.New("boom")
	}
	return []string{"alice", "bob", "carol"}, nil
}

func (f *fakeFetcher) calls(p events.Period) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eventCalls[p], f.rosterCalls[p]
}

func TestGetOrFetchSingleFlight(t *testing.T) {
	f := newFakeFetcher()
	f.release = make(chan struct{})
	f.started = make(chan events.Period, 4)
	c := New(f, NewMetrics(prometheus.NewRegistry()))

	var wg sync.WaitGroup
	results := make([]*events.Collection, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.GetOrFetch(context.Background(), 7)
		}()
	}

	<-f.started
	assert.Equal(t, StateAbsent, c.State(7))
	close(f.release)
	wg.Wait()

	eventCalls, _ := f.calls(7)
	assert.Equal(t, 1, eventCalls)
	require.NotNil(t, results[0])
	assert.Same(t, results[0], results[1])
	assert.Same(t, results[0], c.GetOrFetch(context.Background(), 7))
	assert.Equal(t, StateLoaded, c.State(7))
}

func TestFailedFetchCachesEmptySentinel(t *testing.T) {
	f := newFakeFetcher()
	f.failEvents[7] = true
	c := New(f, nil)

	first := c.GetOrFetch(context.Background(), 7)
	require.NotNil(t, first)
	assert.Equal(t, 0, first.Len())
	assert.Equal(t, StateEmpty, c.State(7))

	second := c.GetOrFetch(context.Background(), 7)
	assert.Same(t, first, second)
	eventCalls, _ := f.calls(7)
	assert.Equal(t, 1, eventCalls)

	_, ok := c.Peek(30)
	assert.False(t, ok)
	assert.Equal(t, StateAbsent, c.State(30))
}

func TestUsernamesDerivedFromLoadedCollection(t *testing.T) {
	f := newFakeFetcher()
	c := New(f, nil)

	c.GetOrFetch(context.Background(), 1)
	names := c.GetUsernames(context.Background(), 1)

	assert.Equal(t, []string{"alice", "bob"}, names)
	_, rosterCalls := f.calls(1)
	assert.Equal(t, 0, rosterCalls)
}

func TestUsernamesFetchedWhenCollectionMissingOrEmpty(t *testing.T) {
	f := newFakeFetcher()
	f.failEvents[7] = true
	c := New(f, nil)

	c.GetOrFetch(context.Background(), 7)
	names := c.GetUsernames(context.Background(), 7)
	assert.Equal(t, []string{"alice", "bob", "carol"}, names)

	names30 := c.GetUsernames(context.Background(), 30)
	assert.Equal(t, []string{"alice", "bob", "carol"}, names30)

	_, rosterCalls := f.calls(7)
	assert.Equal(t, 1, rosterCalls)
}

func TestRosterFailureIsCached(t *testing.T) {
	f := newFakeFetcher()
	f.failRoster[30] = true
	c := New(f, nil)

	assert.Empty(t, c.GetUsernames(context.Background(), 30))
	assert.Empty(t, c.GetUsernames(context.Background(), 30))
	_, rosterCalls := f.calls(30)
	assert.Equal(t, 1, rosterCalls)
	assert.Equal(t, StateEmpty, c.RosterState(30))
}

func TestResetDiscardsLateResults(t *testing.T) {
	f := newFakeFetcher()
	f.release = make(chan struct{})
	f.started = make(chan events.Period, 4)
	c := New(f, nil)

	done := make(chan *events.Collection)
	go func() { done <- c.GetOrFetch(context.Background(), 1) }()
	<-f.started

	c.Reset()
	close(f.release)
	stale := <-done
	require.NotNil(t, stale)

	assert.Equal(t, StateAbsent, c.State(1))
	fresh := c.GetOrFetch(context.Background(), 1)
	assert.NotSame(t, stale, fresh)
	eventCalls, _ := f.calls(1)
	assert.Equal(t, 2, eventCalls)
}

func TestCancelledCallerDoesNotPoisonCache(t *testing.T) {
	f := newFakeFetcher()
	f.release = make(chan struct{})
	f.started = make(chan events.Period, 4)
	c := New(f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *events.Collection)
	go func() { done <- c.GetOrFetch(ctx, 7) }()
	<-f.started
	cancel()
	early := <-done
	assert.Equal(t, 0, early.Len())

	close(f.release)
	require.Eventually(t, func() bool { return c.State(7) == StateLoaded }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, c.GetOrFetch(context.Background(), 7).Len())
}

func TestPreloadPublishesShortestFirst(t *testing.T) {
	f := newFakeFetcher()
	c := New(f, nil)
	p := NewPreloader(c, []events.Period{30, 1, 7})

	var published atomic.Int32
	var mu sync.Mutex
	var updated []events.Period
	p.Published = func(period events.Period) {
		published.Store(int32(period))
		assert.Equal(t, StateLoaded, c.State(period))
	}
	p.Updated = func(period events.Period) {
		mu.Lock()
		updated = append(updated, period)
		mu.Unlock()
	}

	p.Preload(context.Background())
	assert.Equal(t, int32(1), published.Load())
	p.Wait()

	mu.Lock()
	assert.ElementsMatch(t, []events.Period{7, 30}, updated)
	mu.Unlock()

	for _, period := range []events.Period{1, 7, 30} {
		assert.Equal(t, StateLoaded, c.State(period))
		eventCalls, rosterCalls := f.calls(period)
		assert.Equal(t, 1, eventCalls, "period %s", period)
		assert.LessOrEqual(t, rosterCalls, 1, "period %s", period)
		assert.Equal(t, StateLoaded, c.RosterState(period))
	}
}

func TestPreloadDoesNotWaitForBackground(t *testing.T) {
	f := newFakeFetcher()
	f.failEvents[1] = true
	c := New(f, nil)
	block := make(chan struct{})
	p := NewPreloader(c, events.Periods)
	p.Updated = func(events.Period) { <-block }

	p.Preload(context.Background())
	assert.Equal(t, StateEmpty, c.State(1))
	close(block)
	p.Wait()
	assert.Equal(t, StateLoaded, c.State(30))
}
