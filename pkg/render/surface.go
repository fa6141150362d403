// Package render draws the globe with ebiten and implements globe.Surface
// on top of it.
package render

import (
	"bytes"
	"log"
	"math"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/sudorandom/conflict-globe/pkg/events"
	"github.com/sudorandom/conflict-globe/pkg/globe"
	"github.com/sudorandom/conflict-globe/pkg/sources"
)

// hitRadius is how close, in pixels, the cursor must be to a point.
const hitRadius = 10.0

// Globe is the ebiten-backed rendering surface. Surface calls come from the
// session's goroutine while Draw runs on ebiten's, so all state sits behind
// one mutex.
type Globe struct {
	Width, Height int

	mu   sync.Mutex
	now  time.Time
	proj globe.Projector
	cam  camera

	data     *events.Collection
	regions  []events.Region
	disputed []events.Region
	states   map[events.RegionID]globe.RegionState
	popup    *globe.Popup
	cursor   globe.Cursor
	pulse    globe.PulseFrame
	hidden   map[globe.LayerGroup]bool

	pulseImage *ebiten.Image
	fontSource *text.GoTextFaceSource
	monoSource *text.GoTextFaceSource
	controls   []popupButton
}

func NewGlobe(width, height int, now time.Time) *Globe {
	s, err := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	if err != nil {
		log.Printf("[RENDER] Error loading regular font: %v", err)
	}
	m, err := text.NewGoTextFaceSource(bytes.NewReader(gomono.TTF))
	if err != nil {
		log.Printf("[RENDER] Error loading mono font: %v", err)
	}
	return &Globe{
		Width:      width,
		Height:     height,
		now:        now,
		proj:       globe.Projector{Width: width, Height: height},
		cam:        camera{view: globe.Camera{Center: globe.InitialCenter, Zoom: globe.InitialZoom}},
		data:       &events.Collection{},
		states:     make(map[events.RegionID]globe.RegionState),
		hidden:     make(map[globe.LayerGroup]bool),
		fontSource: s,
		monoSource: m,
	}
}

// Advance moves the surface clock and any camera transition to now.
func (g *Globe) Advance(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if now.After(g.now) {
		g.now = now
	}
	g.cam.advance(g.now)
}

// Camera returns the current view.
func (g *Globe) Camera() globe.Camera {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cam.view
}

// Unproject is the geographic position under px, if it is on the globe.
func (g *Globe) Unproject(px globe.Point) (globe.LngLat, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.proj.Unproject(g.cam.view, px)
}

// Pan drags the globe by a pixel delta.
func (g *Globe) Pan(dx, dy float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	view := g.cam.view
	deg := 180 / (math.Pi * g.proj.Radius(view.Zoom))
	view.Center.Lng -= dx * deg
	view.Center.Lat += dy * deg
	g.cam.jump(view)
}

// ZoomBy changes zoom by delta levels.
func (g *Globe) ZoomBy(delta float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	view := g.cam.view
	view.Zoom += delta
	g.cam.jump(view)
}

// Cursor is the last cursor requested by the controller.
func (g *Globe) Cursor() globe.Cursor {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cursor
}

func (g *Globe) Center() globe.LngLat {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cam.view.Center
}

func (g *Globe) Zoom() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cam.view.Zoom
}

func (g *Globe) EaseTo(center globe.LngLat, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cam.animate(g.now, globe.Camera{Center: center, Zoom: g.cam.view.Zoom}, d, false)
}

func (g *Globe) FlyTo(center globe.LngLat, zoom float64, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cam.animate(g.now, globe.Camera{Center: center, Zoom: zoom}, d, true)
}

func (g *Globe) SetData(c *events.Collection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c == nil {
		c = &events.Collection{}
	}
	g.data = c
}

func (g *Globe) SetBoundaries(b sources.Boundaries) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.regions = b.Regions
	g.disputed = nil
	if b.Disputed != nil {
		g.disputed = events.RegionsFromGeoJSON(b.Disputed)
	}
}

// PointsAt returns the features drawn within hitRadius of px. Hidden event
// layers are not hit.
func (g *Globe) PointsAt(px globe.Point) []events.Feature {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hidden[globe.LayerEvents] {
		return nil
	}
	var out []events.Feature
	for _, f := range g.data.Features {
		x, y, visible := g.proj.Project(g.cam.view, f.Longitude, f.Latitude)
		if !visible {
			continue
		}
		if math.Hypot(x-px.X, y-px.Y) <= hitRadius {
			out = append(out, f)
		}
	}
	return out
}

// RegionsAt returns the world areas containing the point under px, last
// loaded first.
func (g *Globe) RegionsAt(px globe.Point) []events.Region {
	g.mu.Lock()
	defer g.mu.Unlock()
	ll, ok := g.proj.Unproject(g.cam.view, px)
	if !ok {
		return nil
	}
	var out []events.Region
	for i := len(g.regions) - 1; i >= 0; i-- {
		if g.regions[i].Contains(ll.Lng, ll.Lat) {
			out = append(out, g.regions[i])
		}
	}
	return out
}

func (g *Globe) SetRegionState(id events.RegionID, st globe.RegionState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st == (globe.RegionState{}) {
		delete(g.states, id)
		return
	}
	g.states[id] = st
}

func (g *Globe) ShowPopup(p globe.Popup) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.popup = &p
}

func (g *Globe) RemovePopup() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.popup = nil
	g.controls = nil
}

func (g *Globe) SetCursor(c globe.Cursor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cursor = c
}

func (g *Globe) SetPulse(f globe.PulseFrame) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pulse = f
}

func (g *Globe) SetLayerVisibility(l globe.LayerGroup, visible bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hidden[l] = !visible
}

// PopupControlAt returns the popup action drawn under px, if any.
func (g *Globe) PopupControlAt(px globe.Point) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range g.controls {
		if px.X >= b.x && px.X <= b.x+b.w && px.Y >= b.y && px.Y <= b.y+b.h {
			return b.action
		}
	}
	return nil
}

func (g *Globe) Layout(w, h int) (int, int) { return g.Width, g.Height }

var _ globe.Surface = (*Globe)(nil)
