package globe

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sudorandom/conflict-globe/pkg/events"
	"github.com/sudorandom/conflict-globe/pkg/filter"
	"github.com/sudorandom/conflict-globe/pkg/sources"
)

// EventCache is what a Session reads events and rosters from.
type EventCache interface {
	GetOrFetch(ctx context.Context, p events.Period) *events.Collection
	GetUsernames(ctx context.Context, p events.Period) []string
}

// AreaFeed fetches events scoped to one area.
type AreaFeed interface {
	AreaEvents(ctx context.Context, p events.Period, area string) (*events.Collection, error)
}

// View is everything a UI needs to render after a command.
type View struct {
	Period      events.Period      `json:"period"`
	Collection  *events.Collection `json:"-"`
	Count       int                `json:"count"`
	Roster      []string           `json:"roster"`
	Excluded    []string           `json:"excluded"`
	Search      string             `json:"search"`
	Area        string             `json:"area,omitempty"`
	Interaction InteractionState   `json:"interaction"`
}

// SessionHooks are called with the session lock held; they must not call
// back into the Session.
type SessionHooks struct {
	AreaSelected    func(name string)
	RotationChanged func(rotating bool)
}

// Session binds one globe to the shared cache: it owns the filter choices,
// the selected period and the controller, and serializes every command and
// scheduler tick behind one lock. Network waits happen outside the lock so
// animation keeps running while a period loads.
type Session struct {
	cache EventCache
	feed  AreaFeed

	mu      sync.Mutex
	sched   *Scheduler
	ctrl    *Controller
	filters *filter.State
	hooks   SessionHooks

	period  events.Period
	roster  []string
	current *events.Collection
	area    string
}

func NewSession(c EventCache, feed AreaFeed, surface Surface, sched *Scheduler, hooks SessionHooks) *Session {
	s := &Session{
		cache:   c,
		feed:    feed,
		sched:   sched,
		filters: filter.NewState(),
		hooks:   hooks,
		period:  events.Periods[0],
		current: &events.Collection{Features: []events.Feature{}},
	}
	s.ctrl = NewController(surface, sched, Hooks{
		AreaSelected: func(name string) {
			s.area = name
			if s.hooks.AreaSelected != nil {
				s.hooks.AreaSelected(name)
			}
		},
		RotationChanged: func(on bool) {
			if s.hooks.RotationChanged != nil {
				s.hooks.RotationChanged(on)
			}
		},
	})
	return s
}

// Start begins rotation and the pulse loop.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Start()
}

// Close tears the controller down.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Close()
}

// Tick advances the scheduler.
func (s *Session) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sched.Tick(now)
}

// Input runs fn against the controller under the session lock. Pointer and
// popup events go through here.
func (s *Session) Input(fn func(c *Controller)) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.ctrl)
	return s.viewLocked()
}

// View returns the current state without changing it.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// RequestPeriod switches to a period of days. Unsupported values leave the
// view unchanged. If another period is requested while this one loads, the
// later request wins and this one renders nothing.
func (s *Session) RequestPeriod(ctx context.Context, days int) View {
	p := events.Period(days)
	if !p.Valid() {
		log.Printf("[SESSION] Ignoring unsupported period %d", days)
		return s.View()
	}
	s.mu.Lock()
	s.period = p
	s.mu.Unlock()

	roster := s.cache.GetUsernames(ctx, p)
	coll := s.cache.GetOrFetch(ctx, p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.period != p {
		return s.viewLocked()
	}
	s.roster = roster
	s.filters.Prune(roster)
	s.renderLocked(coll)
	return s.viewLocked()
}

// PeriodLoaded re-renders if p is the period on screen. Background preload
// completions land here.
func (s *Session) PeriodLoaded(ctx context.Context, p events.Period) {
	s.mu.Lock()
	current := s.period
	s.mu.Unlock()
	if p != current {
		return
	}
	s.RequestPeriod(ctx, int(p))
}

func (s *Session) SetSearchText(ctx context.Context, text string) View {
	return s.refilter(ctx, func() { s.filters.SetSearch(text) })
}

// ToggleUsername hides or shows one source. Names outside the current
// roster are ignored.
func (s *Session) ToggleUsername(ctx context.Context, name string) View {
	return s.refilter(ctx, func() { s.filters.Toggle(name, s.roster) })
}

// refilter applies change and re-renders the selected period. The period
// may have just switched with its roster still in flight, so the roster is
// read again here rather than trusting the one on hand.
func (s *Session) refilter(ctx context.Context, change func()) View {
	s.mu.Lock()
	p := s.period
	s.mu.Unlock()
	roster := s.cache.GetUsernames(ctx, p)
	coll := s.cache.GetOrFetch(ctx, p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.period == p {
		s.roster = roster
		s.filters.Prune(roster)
	}
	change()
	if s.period == p {
		s.renderLocked(coll)
	}
	return s.viewLocked()
}

func (s *Session) ToggleLayerGroup(g LayerGroup) View {
	return s.Input(func(c *Controller) { c.ToggleLayerGroup(g) })
}

func (s *Session) SetRotating(on bool) View {
	return s.Input(func(c *Controller) { c.SetRotating(on) })
}

// SelectArea toggles the selection of name; "" clears it.
func (s *Session) SelectArea(name string) View {
	return s.Input(func(c *Controller) { c.SelectArea(name) })
}

func (s *Session) LocateFeature(f events.Feature) View {
	return s.Input(func(c *Controller) { c.Locate(f) })
}

// SetBoundaries hands the static region layers to the controller.
func (s *Session) SetBoundaries(b sources.Boundaries) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.SetBoundaries(b)
}

// SetVisible pauses or resumes the pulse loop.
func (s *Session) SetVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl.Pulse().SetVisible(visible)
}

// Feed lists the events matching the current filters, newest first. With an
// area selected it reads the area-scoped feed instead of the cached one.
func (s *Session) Feed(ctx context.Context) []events.Feature {
	s.mu.Lock()
	p, area, roster := s.period, s.area, s.roster
	s.mu.Unlock()

	var coll *events.Collection
	if area != "" && s.feed != nil {
		var err error
		coll, err = s.feed.AreaEvents(ctx, p, area)
		if err != nil {
			log.Printf("[FEED] Error fetching %s events for %q: %v", p, area, err)
			coll = nil
		}
	} else {
		coll = s.cache.GetOrFetch(ctx, p)
	}

	s.mu.Lock()
	filtered := s.filters.Apply(coll, roster)
	s.mu.Unlock()

	out := filtered.Features
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (s *Session) renderLocked(coll *events.Collection) {
	s.current = s.filters.Apply(coll, s.roster)
	s.ctrl.SetData(s.current)
}

func (s *Session) viewLocked() View {
	return View{
		Period:      s.period,
		Collection:  s.current,
		Count:       s.current.Len(),
		Roster:      append([]string(nil), s.roster...),
		Excluded:    s.filters.Excluded(),
		Search:      s.filters.Search(),
		Area:        s.area,
		Interaction: s.ctrl.State(),
	}
}
