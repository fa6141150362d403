// Package globe holds the interactive globe: the controller state machine,
// the pulse animation, the virtual-clock scheduler and the session that ties
// them to the event cache.
package globe

import (
	"time"

	"github.com/sudorandom/conflict-globe/pkg/events"
	"github.com/sudorandom/conflict-globe/pkg/sources"
)

// LngLat is a geographic position in degrees.
type LngLat struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Point is a pixel position on the surface.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LayerGroup names a set of layers the user can show or hide together.
type LayerGroup string

const (
	LayerDisputed LayerGroup = "disputed"
	LayerEvents   LayerGroup = "heatmap"
)

// LayerGroups lists the toggleable groups.
var LayerGroups = []LayerGroup{LayerDisputed, LayerEvents}

type Cursor string

const (
	CursorDefault Cursor = ""
	CursorPointer Cursor = "pointer"
)

// RegionState is the per-region highlight flags.
type RegionState struct {
	Hover    bool `json:"hover"`
	Selected bool `json:"selected"`
}

// PopupControls are the actions offered by a pinned popup. A nil func means
// the control is not shown.
type PopupControls struct {
	Close    func()
	Next     func()
	Previous func()
}

// Popup describes the single popup on the map.
type Popup struct {
	Feature  events.Feature
	At       LngLat
	Pinned   bool
	Index    int
	Total    int
	Controls PopupControls
}

// Surface is the rendering engine the controller drives. Implementations
// are called from the goroutine that ticks the scheduler.
type Surface interface {
	Center() LngLat
	Zoom() float64
	EaseTo(center LngLat, d time.Duration)
	FlyTo(center LngLat, zoom float64, d time.Duration)

	SetData(c *events.Collection)
	SetBoundaries(b sources.Boundaries)

	// PointsAt returns the rendered features under px, in render order.
	PointsAt(px Point) []events.Feature
	// RegionsAt returns the world-area regions under px, topmost first.
	RegionsAt(px Point) []events.Region

	SetRegionState(id events.RegionID, state RegionState)
	ShowPopup(p Popup)
	RemovePopup()
	SetCursor(c Cursor)
	SetPulse(f PulseFrame)
	SetLayerVisibility(g LayerGroup, visible bool)
}
