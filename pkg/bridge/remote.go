package bridge

import (
	"math"
	"sync"
	"time"

	"github.com/sudorandom/conflict-globe/pkg/events"
	"github.com/sudorandom/conflict-globe/pkg/globe"
	"github.com/sudorandom/conflict-globe/pkg/sources"
)

// hitRadius matches the desktop surface.
const hitRadius = 10.0

// Remote is a globe.Surface whose pixels live in a browser. It keeps enough
// state to hit-test pointer events server-side and turns every render call
// into a Message for the client.
type Remote struct {
	send func(Message)

	mu      sync.Mutex
	proj    globe.Projector
	cam     globe.Camera
	data    *events.Collection
	regions []events.Region
	hidden  map[globe.LayerGroup]bool
}

func NewRemote(width, height int, send func(Message)) *Remote {
	return &Remote{
		send:   send,
		proj:   globe.Projector{Width: width, Height: height},
		cam:    globe.Camera{Center: globe.InitialCenter, Zoom: globe.InitialZoom},
		data:   &events.Collection{},
		hidden: make(map[globe.LayerGroup]bool),
	}
}

// SetViewport records the client canvas size.
func (r *Remote) SetViewport(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proj = globe.Projector{Width: width, Height: height}
}

// SetCamera records a camera the client moved to on its own, by dragging or
// zooming. Nothing is echoed back.
func (r *Remote) SetCamera(cam globe.Camera) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cam.Center.Lng = globe.WrapLongitude(cam.Center.Lng)
	cam.Zoom = globe.ClampZoom(cam.Zoom)
	r.cam = cam
}

// Unproject is the position under px on the client's canvas.
func (r *Remote) Unproject(px globe.Point) (globe.LngLat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proj.Unproject(r.cam, px)
}

func (r *Remote) Center() globe.LngLat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cam.Center
}

func (r *Remote) Zoom() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cam.Zoom
}

// EaseTo and FlyTo move the logical camera at once; the client animates.
func (r *Remote) EaseTo(center globe.LngLat, d time.Duration) {
	r.mu.Lock()
	r.cam.Center = center
	cam := r.cam
	r.mu.Unlock()
	r.send(Message{Type: msgCamera, Data: newCameraMessage(cam, d, false)})
}

func (r *Remote) FlyTo(center globe.LngLat, zoom float64, d time.Duration) {
	r.mu.Lock()
	r.cam = globe.Camera{Center: center, Zoom: globe.ClampZoom(zoom)}
	cam := r.cam
	r.mu.Unlock()
	r.send(Message{Type: msgCamera, Data: newCameraMessage(cam, d, true)})
}

func (r *Remote) SetData(c *events.Collection) {
	if c == nil {
		c = &events.Collection{Features: []events.Feature{}}
	}
	r.mu.Lock()
	r.data = c
	r.mu.Unlock()
	r.send(Message{Type: msgData, Data: c.Features})
}

func (r *Remote) SetBoundaries(b sources.Boundaries) {
	r.mu.Lock()
	r.regions = b.Regions
	r.mu.Unlock()

	outlines := make([]regionOutline, 0, len(b.Regions))
	for _, region := range b.Regions {
		outlines = append(outlines, regionOutline{ID: region.ID, Name: region.Name, Polygons: region.Polygons})
	}
	m := boundariesMessage{Regions: outlines}
	if b.Disputed != nil {
		m.Disputed = b.Disputed
	}
	r.send(Message{Type: msgBoundaries, Data: m})
}

func (r *Remote) PointsAt(px globe.Point) []events.Feature {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hidden[globe.LayerEvents] {
		return nil
	}
	var out []events.Feature
	for _, f := range r.data.Features {
		x, y, visible := r.proj.Project(r.cam, f.Longitude, f.Latitude)
		if visible && math.Hypot(x-px.X, y-px.Y) <= hitRadius {
			out = append(out, f)
		}
	}
	return out
}

func (r *Remote) RegionsAt(px globe.Point) []events.Region {
	r.mu.Lock()
	defer r.mu.Unlock()
	ll, ok := r.proj.Unproject(r.cam, px)
	if !ok {
		return nil
	}
	var out []events.Region
	for i := len(r.regions) - 1; i >= 0; i-- {
		if r.regions[i].Contains(ll.Lng, ll.Lat) {
			out = append(out, r.regions[i])
		}
	}
	return out
}

func (r *Remote) SetRegionState(id events.RegionID, st globe.RegionState) {
	r.send(Message{Type: msgRegionState, Data: regionStateMessage{ID: id, RegionState: st}})
}

func (r *Remote) ShowPopup(p globe.Popup) {
	r.send(Message{Type: msgPopup, Data: newPopupMessage(p)})
}

func (r *Remote) RemovePopup() {
	r.send(Message{Type: msgPopupClosed})
}

func (r *Remote) SetCursor(c globe.Cursor) {
	r.send(Message{Type: msgCursor, Data: c})
}

func (r *Remote) SetPulse(f globe.PulseFrame) {
	r.send(Message{Type: msgPulse, Data: f})
}

func (r *Remote) SetLayerVisibility(g globe.LayerGroup, visible bool) {
	r.mu.Lock()
	r.hidden[g] = !visible
	r.mu.Unlock()
	r.send(Message{Type: msgLayer, Data: layerMessage{Group: g, Visible: visible}})
}

var _ globe.Surface = (*Remote)(nil)
