package globe

import (
	"math"
	"time"
)

const (
	// PulseCycle is the length of one ring expansion.
	PulseCycle = 2800 * time.Millisecond
	// pulseAppearDelay is the share of the cycle before the ring shows.
	pulseAppearDelay = 0.12
)

// PulseFrame is the ring styling for one animation frame.
type PulseFrame struct {
	Radius        float64 `json:"radius"`
	Opacity       float64 `json:"opacity"`
	StrokeOpacity float64 `json:"stroke_opacity"`
}

// PulseAt computes the ring for the given time since the animation started.
// The ring grows across the whole cycle but only shows after the appear
// delay, fading out as it grows.
func PulseAt(elapsed time.Duration, zoom float64) PulseFrame {
	t := math.Mod(float64(elapsed)/float64(PulseCycle), 1)
	if t < 0 {
		t += 1
	}

	maxOpacity := 0.8
	switch {
	case zoom < 6:
		maxOpacity = 0.9
	case zoom < 9:
		maxOpacity = 0.85
	}
	var opacity float64
	if t > pulseAppearDelay {
		opacity = maxOpacity * (1 - (t-pulseAppearDelay)/(1-pulseAppearDelay))
	}
	if zoom < 3 {
		opacity *= 0.6
	}

	base := 4.0
	switch {
	case zoom < 3:
		base = 7
	case zoom < 6:
		base = 6
	case zoom < 9:
		base = 5
	}
	grow := base * 10
	switch {
	case zoom < 6:
		grow = base * 15
	case zoom < 9:
		grow = base * 8
	}

	return PulseFrame{
		Radius:        base + (grow-base)*t,
		Opacity:       opacity,
		StrokeOpacity: opacity,
	}
}

// PulseAnimator keeps exactly one frame request alive while it is running
// and the page is visible, pushing a PulseFrame to the sink on each frame.
type PulseAnimator struct {
	sched *Scheduler
	zoom  func() float64
	sink  func(PulseFrame)
	epoch time.Time

	running bool
	visible bool
	frame   Handle
}

func NewPulseAnimator(sched *Scheduler, zoom func() float64, sink func(PulseFrame)) *PulseAnimator {
	return &PulseAnimator{
		sched:   sched,
		zoom:    zoom,
		sink:    sink,
		epoch:   sched.Now(),
		visible: true,
	}
}

func (a *PulseAnimator) Start() {
	a.running = true
	a.schedule()
}

func (a *PulseAnimator) Stop() {
	a.running = false
	a.cancel()
}

// SetVisible pauses the loop while hidden and resumes it when shown.
func (a *PulseAnimator) SetVisible(visible bool) {
	a.visible = visible
	if !visible {
		a.cancel()
		return
	}
	a.schedule()
}

// Scheduled reports whether a frame request is outstanding.
func (a *PulseAnimator) Scheduled() bool { return a.frame != 0 }

func (a *PulseAnimator) schedule() {
	if !a.running || !a.visible || a.frame != 0 {
		return
	}
	a.frame = a.sched.RequestFrame(a.tick)
}

func (a *PulseAnimator) cancel() {
	a.sched.Cancel(a.frame)
	a.frame = 0
}

func (a *PulseAnimator) tick(now time.Time) {
	a.frame = 0
	if !a.running || !a.visible {
		return
	}
	a.sink(PulseAt(now.Sub(a.epoch), a.zoom()))
	a.schedule()
}
