package globe

import (
	"math"
	"sort"
	"time"

	"github.com/sudorandom/conflict-globe/pkg/events"
	"github.com/sudorandom/conflict-globe/pkg/sources"
)

const (
	rotationInterval = 100 * time.Millisecond
	rotationStep     = 0.5
	locateDuration   = time.Second
	minLocateZoom    = 5.0
)

// InitialCenter and InitialZoom frame the globe before any interaction.
var (
	InitialCenter = LngLat{Lng: 2, Lat: 40}
	InitialZoom   = 2.2
)

// Hooks report controller transitions upward. Either may be nil.
type Hooks struct {
	// AreaSelected receives the selected region name, or "" once cleared.
	AreaSelected func(name string)
	// RotationChanged fires whenever auto-rotation starts or stops.
	RotationChanged func(rotating bool)
}

// InteractionState is a snapshot of the controller's interaction model.
type InteractionState struct {
	Rotating       bool             `json:"rotating"`
	HoveredFeature events.FeatureID `json:"hovered_feature,omitempty"`
	Pinned         bool             `json:"pinned"`
	PinnedList     []events.Feature `json:"-"`
	PinnedIndex    int              `json:"pinned_index"`
	HoveredRegion  events.RegionID  `json:"hovered_region"`
	SelectedRegion events.RegionID  `json:"selected_region"`
	Area           string           `json:"area,omitempty"`
}

// Controller owns the interaction state machine of the globe: auto-rotation,
// hover and pinned popups, region hover and selection, and the pulse loop.
//
// A Controller is not safe for concurrent use. All methods, and the
// scheduler ticks that drive it, must come from one goroutine at a time.
type Controller struct {
	surface Surface
	sched   *Scheduler
	hooks   Hooks
	pulse   *PulseAnimator

	regions map[string]events.Region

	rotating bool
	rotation Handle

	hovered     events.FeatureID
	pinned      bool
	pinnedList  []events.Feature
	pinnedIndex int

	hoverRegion    events.RegionID
	selectedRegion events.RegionID
	selectedName   string

	hidden map[LayerGroup]bool
	closed bool
}

func NewController(surface Surface, sched *Scheduler, hooks Hooks) *Controller {
	c := &Controller{
		surface:        surface,
		sched:          sched,
		hooks:          hooks,
		regions:        make(map[string]events.Region),
		hoverRegion:    events.NoRegion,
		selectedRegion: events.NoRegion,
		hidden:         make(map[LayerGroup]bool),
	}
	c.pulse = NewPulseAnimator(sched, surface.Zoom, surface.SetPulse)
	return c
}

// Start begins auto-rotation and the pulse loop.
func (c *Controller) Start() {
	if c.closed {
		return
	}
	c.SetRotating(true)
	c.pulse.Start()
}

// Close stops every timer and frame request. The controller ignores all
// input afterwards.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.stopRotation()
	c.rotating = false
	c.pulse.Stop()
	c.pinned = false
	c.pinnedList = nil
	c.pinnedIndex = 0
	c.hovered = ""
	c.surface.RemovePopup()
	c.closed = true
}

// State returns a snapshot of the interaction model.
func (c *Controller) State() InteractionState {
	s := InteractionState{
		Rotating:       c.rotating,
		Pinned:         c.pinned,
		PinnedIndex:    c.pinnedIndex,
		HoveredRegion:  c.hoverRegion,
		SelectedRegion: c.selectedRegion,
		Area:           c.selectedName,
	}
	if !c.pinned {
		s.HoveredFeature = c.hovered
	}
	if len(c.pinnedList) > 0 {
		s.PinnedList = append([]events.Feature(nil), c.pinnedList...)
	}
	return s
}

// Pulse exposes the animator so hosts can forward page visibility.
func (c *Controller) Pulse() *PulseAnimator { return c.pulse }

// SetRotating starts or stops auto-rotation.
func (c *Controller) SetRotating(on bool) {
	if c.closed || on == c.rotating {
		return
	}
	c.rotating = on
	if on {
		c.startRotation()
	} else {
		c.stopRotation()
	}
	if c.hooks.RotationChanged != nil {
		c.hooks.RotationChanged(on)
	}
}

func (c *Controller) startRotation() {
	if c.rotation != 0 {
		return
	}
	c.rotation = c.sched.Every(rotationInterval, c.rotate)
}

func (c *Controller) stopRotation() {
	c.sched.Cancel(c.rotation)
	c.rotation = 0
}

func (c *Controller) rotate(time.Time) {
	center := c.surface.Center()
	center.Lng = WrapLongitude(center.Lng + rotationStep)
	c.surface.EaseTo(center, rotationInterval)
}

// PointerDown, DragStart and TouchStart all hand control to the user.
func (c *Controller) PointerDown() { c.SetRotating(false) }
func (c *Controller) DragStart()   { c.SetRotating(false) }
func (c *Controller) TouchStart()  { c.SetRotating(false) }

// PointerMove updates region hover and, unless a popup is pinned, the hover
// popup. at is the geographic position under the cursor.
func (c *Controller) PointerMove(px Point, at LngLat) {
	if c.closed {
		return
	}
	regions := c.surface.RegionsAt(px)
	if len(regions) > 0 {
		c.hoverOn(regions[0].ID)
	} else {
		c.hoverOff()
	}

	points := c.surface.PointsAt(px)
	if len(points) > 0 || len(regions) > 0 {
		c.surface.SetCursor(CursorPointer)
	} else {
		c.surface.SetCursor(CursorDefault)
	}

	if c.pinned {
		return
	}
	if len(points) == 0 {
		c.leavePoints()
		return
	}
	sorted := byImportance(points)
	top := sorted[0]
	if top.ID == c.hovered {
		return
	}
	c.hovered = top.ID
	c.surface.ShowPopup(Popup{
		Feature: top,
		At:      LngLat{Lng: nearestCopy(top.Longitude, at.Lng), Lat: top.Latitude},
		Total:   1,
	})
}

// PointerLeave is the cursor leaving the map entirely.
func (c *Controller) PointerLeave() {
	if c.closed {
		return
	}
	c.hoverOff()
	c.surface.SetCursor(CursorDefault)
	if !c.pinned {
		c.leavePoints()
	}
}

func (c *Controller) leavePoints() {
	if c.hovered == "" {
		return
	}
	c.hovered = ""
	c.surface.RemovePopup()
}

func (c *Controller) hoverOn(id events.RegionID) {
	if c.hoverRegion == id {
		return
	}
	c.hoverOff()
	c.hoverRegion = id
	c.pushRegionState(id)
}

func (c *Controller) hoverOff() {
	if c.hoverRegion == events.NoRegion {
		return
	}
	old := c.hoverRegion
	c.hoverRegion = events.NoRegion
	c.pushRegionState(old)
}

func (c *Controller) pushRegionState(id events.RegionID) {
	if id == events.NoRegion {
		return
	}
	c.surface.SetRegionState(id, RegionState{
		Hover:    id == c.hoverRegion,
		Selected: id == c.selectedRegion,
	})
}

// Click resolves a click at px. Points take precedence over regions: a click
// on points pins them, a click on a region toggles its selection, and a click
// on empty background clears the selection.
func (c *Controller) Click(px Point, at LngLat) {
	if c.closed {
		return
	}
	c.SetRotating(false)

	if points := c.surface.PointsAt(px); len(points) > 0 {
		c.pin(byImportance(points))
		return
	}
	regions := c.surface.RegionsAt(px)
	if len(regions) == 0 {
		c.selectRegion(events.NoRegion, "")
		return
	}
	r := regions[0]
	if r.ID == c.selectedRegion {
		c.selectRegion(events.NoRegion, "")
		return
	}
	c.selectRegion(r.ID, r.Name)
}

// SelectArea selects the region called name, as if it had been clicked.
// Selecting the current area again, or passing "", clears the selection.
// Names without a loaded region are still tracked but nothing is outlined.
func (c *Controller) SelectArea(name string) {
	if c.closed {
		return
	}
	if name == "" || name == c.selectedName {
		c.selectRegion(events.NoRegion, "")
		return
	}
	id := events.NoRegion
	if r, ok := c.regions[name]; ok {
		id = r.ID
	}
	c.selectRegion(id, name)
}

func (c *Controller) selectRegion(id events.RegionID, name string) {
	if id == c.selectedRegion && name == c.selectedName {
		return
	}
	old := c.selectedRegion
	c.selectedRegion = id
	c.selectedName = name
	c.pushRegionState(old)
	if id != old {
		c.pushRegionState(id)
	}
	if c.hooks.AreaSelected != nil {
		c.hooks.AreaSelected(name)
	}
}

func (c *Controller) pin(list []events.Feature) {
	if len(list) == 0 {
		return
	}
	c.surface.RemovePopup()
	c.pinned = true
	c.hovered = ""
	c.pinnedList = list
	c.pinnedIndex = 0
	c.showPinned()
}

func (c *Controller) showPinned() {
	f := c.pinnedList[c.pinnedIndex]
	controls := PopupControls{Close: c.ClosePopup}
	if len(c.pinnedList) > 1 {
		controls.Next = c.NextPopup
		controls.Previous = c.PreviousPopup
	}
	c.surface.ShowPopup(Popup{
		Feature:  f,
		At:       LngLat{Lng: f.Longitude, Lat: f.Latitude},
		Pinned:   true,
		Index:    c.pinnedIndex,
		Total:    len(c.pinnedList),
		Controls: controls,
	})
}

// ClosePopup unpins and removes the popup.
func (c *Controller) ClosePopup() {
	if c.closed {
		return
	}
	c.pinned = false
	c.pinnedList = nil
	c.pinnedIndex = 0
	c.hovered = ""
	c.surface.RemovePopup()
}

// NextPopup cycles forward through the pinned features.
func (c *Controller) NextPopup() { c.step(1) }

// PreviousPopup cycles backward through the pinned features.
func (c *Controller) PreviousPopup() { c.step(-1) }

func (c *Controller) step(delta int) {
	if c.closed || !c.pinned || len(c.pinnedList) == 0 {
		return
	}
	n := len(c.pinnedList)
	c.pinnedIndex = ((c.pinnedIndex+delta)%n + n) % n
	c.showPinned()
}

// Locate stops rotation, flies to f and pins it alone.
func (c *Controller) Locate(f events.Feature) {
	if c.closed {
		return
	}
	c.SetRotating(false)
	zoom := math.Max(c.surface.Zoom(), minLocateZoom)
	c.surface.FlyTo(LngLat{Lng: f.Longitude, Lat: f.Latitude}, zoom, locateDuration)
	c.pin([]events.Feature{f})
}

// ToggleLayerGroup shows or hides a layer group. Unknown groups are ignored.
func (c *Controller) ToggleLayerGroup(g LayerGroup) {
	if c.closed || !knownLayerGroup(g) {
		return
	}
	c.hidden[g] = !c.hidden[g]
	c.surface.SetLayerVisibility(g, !c.hidden[g])
}

// LayerVisible reports whether g is shown.
func (c *Controller) LayerVisible(g LayerGroup) bool { return !c.hidden[g] }

// SetData replaces the rendered features. Feature ids are not stable across
// reloads, so any hover is dropped.
func (c *Controller) SetData(coll *events.Collection) {
	if c.closed {
		return
	}
	c.surface.SetData(coll)
	if !c.pinned {
		c.leavePoints()
	}
	c.hovered = ""
}

// SetBoundaries loads the static region layers.
func (c *Controller) SetBoundaries(b sources.Boundaries) {
	if c.closed {
		return
	}
	c.regions = make(map[string]events.Region, len(b.Regions))
	for _, r := range b.Regions {
		if _, dup := c.regions[r.Name]; !dup {
			c.regions[r.Name] = r
		}
	}
	c.surface.SetBoundaries(b)
	if r, ok := c.regions[c.selectedName]; ok && c.selectedRegion == events.NoRegion {
		c.selectedRegion = r.ID
		c.pushRegionState(r.ID)
	}
}

func knownLayerGroup(g LayerGroup) bool {
	for _, known := range LayerGroups {
		if g == known {
			return true
		}
	}
	return false
}

// byImportance returns a copy of fs, most important first, keeping render
// order between equals.
func byImportance(fs []events.Feature) []events.Feature {
	out := append([]events.Feature(nil), fs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}

// nearestCopy shifts lng by whole turns until it is within 180 degrees of
// ref, so the popup shows on the copy of the world under the cursor.
func nearestCopy(lng, ref float64) float64 {
	for math.Abs(ref-lng) > 180 {
		if ref > lng {
			lng += 360
		} else {
			lng -= 360
		}
	}
	return lng
}
