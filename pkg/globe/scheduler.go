package globe

import (
	"sort"
	"sync"
	"time"
)

// Handle identifies a scheduled interval or frame request. The zero Handle
// is never issued.
type Handle uint64

type interval struct {
	every time.Duration
	due   time.Time
	fn    func(now time.Time)
}

// Scheduler is a virtual clock driving interval timers and animation frame
// requests. Nothing runs on its own: the host calls Tick, from the game loop
// in the viewer or a pump goroutine in the bridge, and tests call it with
// synthetic times.
type Scheduler struct {
	mu         sync.Mutex
	now        time.Time
	next       Handle
	timers     map[Handle]*interval
	frames     map[Handle]func(now time.Time)
	frameOrder []Handle
}

func NewScheduler(start time.Time) *Scheduler {
	return &Scheduler{
		now:    start,
		timers: make(map[Handle]*interval),
		frames: make(map[Handle]func(now time.Time)),
	}
}

// Now is the time of the most recent tick.
func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Every calls fn on the first tick at or after each multiple of d.
func (s *Scheduler) Every(d time.Duration, fn func(now time.Time)) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.timers[s.next] = &interval{every: d, due: s.now.Add(d), fn: fn}
	return s.next
}

// RequestFrame calls fn once on the next tick. Frames requested while a tick
// is running wait for the following one.
func (s *Scheduler) RequestFrame(fn func(now time.Time)) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.frames[s.next] = fn
	s.frameOrder = append(s.frameOrder, s.next)
	return s.next
}

// Cancel removes h. It takes effect immediately, including for callbacks
// already collected by a tick in progress.
func (s *Scheduler) Cancel(h Handle) {
	if h == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, h)
	delete(s.frames, h)
}

// Pending reports the live interval timers and frame requests.
func (s *Scheduler) Pending() (timers, frames int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers), len(s.frames)
}

// Tick advances the clock to now and runs whatever is due: interval timers in
// creation order, then frame requests in request order. A timer that fell
// behind fires once and is rescheduled from now.
func (s *Scheduler) Tick(now time.Time) {
	s.mu.Lock()
	if now.Before(s.now) {
		now = s.now
	}
	s.now = now
	due := make([]Handle, 0, len(s.timers))
	for h, t := range s.timers {
		if !now.Before(t.due) {
			due = append(due, h)
		}
	}
	frames := s.frameOrder
	s.frameOrder = nil
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	for _, h := range due {
		s.mu.Lock()
		t, ok := s.timers[h]
		if !ok || now.Before(t.due) {
			s.mu.Unlock()
			continue
		}
		t.due = t.due.Add(t.every)
		if !t.due.After(now) {
			t.due = now.Add(t.every)
		}
		fn := t.fn
		s.mu.Unlock()
		fn(now)
	}

	for _, h := range frames {
		s.mu.Lock()
		fn, ok := s.frames[h]
		delete(s.frames, h)
		s.mu.Unlock()
		if ok {
			fn(now)
		}
	}
}
