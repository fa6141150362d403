package render

import (
	"math"
	"time"

	"github.com/sudorandom/conflict-globe/pkg/globe"
)

// cameraMove is one running camera transition.
type cameraMove struct {
	from, to globe.Camera
	start    time.Time
	d        time.Duration
	// smooth eases in and out; otherwise the move is linear.
	smooth bool
}

func (m cameraMove) at(now time.Time) (globe.Camera, bool) {
	if m.d <= 0 || !now.Before(m.start.Add(m.d)) {
		return m.to, true
	}
	t := float64(now.Sub(m.start)) / float64(m.d)
	if t < 0 {
		t = 0
	}
	if m.smooth {
		t = t * t * (3 - 2*t)
	}
	dLng := m.to.Center.Lng - m.from.Center.Lng
	if dLng > 180 {
		dLng -= 360
	} else if dLng < -180 {
		dLng += 360
	}
	return globe.Camera{
		Center: globe.LngLat{
			Lng: globe.WrapLongitude(m.from.Center.Lng + dLng*t),
			Lat: m.from.Center.Lat + (m.to.Center.Lat-m.from.Center.Lat)*t,
		},
		Zoom: m.from.Zoom + (m.to.Zoom-m.from.Zoom)*t,
	}, false
}

// camera tracks the current view and at most one transition.
type camera struct {
	view globe.Camera
	move *cameraMove
}

func (c *camera) advance(now time.Time) {
	if c.move == nil {
		return
	}
	view, done := c.move.at(now)
	c.view = view
	if done {
		c.move = nil
	}
}

func (c *camera) animate(now time.Time, to globe.Camera, d time.Duration, smooth bool) {
	c.advance(now)
	to.Center.Lat = math.Max(-85, math.Min(85, to.Center.Lat))
	to.Zoom = globe.ClampZoom(to.Zoom)
	c.move = &cameraMove{from: c.view, to: to, start: now, d: d, smooth: smooth}
	c.advance(now)
}

func (c *camera) jump(to globe.Camera) {
	c.move = nil
	to.Center.Lat = math.Max(-85, math.Min(85, to.Center.Lat))
	to.Center.Lng = globe.WrapLongitude(to.Center.Lng)
	to.Zoom = globe.ClampZoom(to.Zoom)
	c.view = to
}
