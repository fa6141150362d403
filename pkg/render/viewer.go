package render

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/sudorandom/conflict-globe/pkg/areas"
	"github.com/sudorandom/conflict-globe/pkg/globe"
)

// dragThreshold separates a click from a drag, in pixels.
const dragThreshold = 4.0

// Viewer is the ebiten game driving a Session on a Globe. Keyboard:
// 1/7/3 pick the period, space toggles rotation, arrows and escape drive a
// pinned popup, D and H toggle the disputed and event layers.
type Viewer struct {
	Globe   *Globe
	Session *globe.Session
	Areas   *areas.Service

	ctx context.Context

	mu       sync.Mutex
	view     globe.View
	selected string
	detail   *areas.Detail

	pressed  bool
	dragging bool
	downAt   globe.Point
	lastAt   globe.Point
	lastMove globe.Point
	focused  bool
}

func NewViewer(ctx context.Context, g *Globe, s *globe.Session, a *areas.Service) *Viewer {
	return &Viewer{
		Globe:   g,
		Session: s,
		Areas:   a,
		ctx:     ctx,
		view:    s.View(),
		focused: true,
	}
}

// Apply records the latest view for the status overlay.
func (v *Viewer) Apply(view globe.View) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.view = view
}

// AreaSelected loads the detail panel for name in the background.
func (v *Viewer) AreaSelected(name string) {
	v.mu.Lock()
	v.selected, v.detail = name, nil
	v.mu.Unlock()
	if name == "" || v.Areas == nil {
		return
	}
	go func() {
		d := v.Areas.Detail(v.ctx, name)
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.selected == name {
			v.detail = &d
		}
	}()
}

func (v *Viewer) Update() error {
	if v.ctx.Err() != nil {
		return ebiten.Termination
	}
	now := time.Now()
	v.Globe.Advance(now)

	if focused := ebiten.IsFocused(); focused != v.focused {
		v.focused = focused
		v.Session.SetVisible(focused)
	}

	v.handleKeys()
	v.handlePointer()
	v.handleTouch()

	v.Session.Tick(now)
	if v.Globe.Cursor() == globe.CursorPointer {
		ebiten.SetCursorShape(ebiten.CursorShapePointer)
	} else {
		ebiten.SetCursorShape(ebiten.CursorShapeDefault)
	}
	return nil
}

func (v *Viewer) handleKeys() {
	for _, key := range inpututil.AppendJustPressedKeys(nil) {
		switch key {
		case ebiten.Key1:
			v.requestPeriod(1)
		case ebiten.Key7:
			v.requestPeriod(7)
		case ebiten.Key3:
			v.requestPeriod(30)
		case ebiten.KeySpace:
			v.Apply(v.Session.SetRotating(!v.Session.View().Interaction.Rotating))
		case ebiten.KeyEscape:
			v.Apply(v.Session.Input(func(c *globe.Controller) { c.ClosePopup() }))
		case ebiten.KeyArrowRight:
			v.Apply(v.Session.Input(func(c *globe.Controller) { c.NextPopup() }))
		case ebiten.KeyArrowLeft:
			v.Apply(v.Session.Input(func(c *globe.Controller) { c.PreviousPopup() }))
		case ebiten.KeyD:
			v.Apply(v.Session.ToggleLayerGroup(globe.LayerDisputed))
		case ebiten.KeyH:
			v.Apply(v.Session.ToggleLayerGroup(globe.LayerEvents))
		}
	}
}

func (v *Viewer) requestPeriod(days int) {
	go func() { v.Apply(v.Session.RequestPeriod(v.ctx, days)) }()
}

func (v *Viewer) handlePointer() {
	mx, my := ebiten.CursorPosition()
	px := globe.Point{X: float64(mx), Y: float64(my)}

	if _, wy := ebiten.Wheel(); wy != 0 {
		v.Globe.ZoomBy(wy * 0.25)
	}

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		v.pressed, v.dragging = true, false
		v.downAt, v.lastAt = px, px
		v.Apply(v.Session.Input(func(c *globe.Controller) { c.PointerDown() }))
	}

	if v.pressed && ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		if !v.dragging && math.Hypot(px.X-v.downAt.X, px.Y-v.downAt.Y) > dragThreshold {
			v.dragging = true
			v.Session.Input(func(c *globe.Controller) { c.DragStart() })
		}
		if v.dragging {
			v.Globe.Pan(px.X-v.lastAt.X, px.Y-v.lastAt.Y)
		}
		v.lastAt = px
	}

	if v.pressed && inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) {
		v.pressed = false
		if !v.dragging {
			v.click(px)
		}
		v.dragging = false
	}

	if px != v.lastMove && !v.dragging {
		v.lastMove = px
		at, ok := v.Globe.Unproject(px)
		if !ok {
			v.Session.Input(func(c *globe.Controller) { c.PointerLeave() })
			return
		}
		v.Apply(v.Session.Input(func(c *globe.Controller) { c.PointerMove(px, at) }))
	}
}

func (v *Viewer) click(px globe.Point) {
	if action := v.Globe.PopupControlAt(px); action != nil {
		v.Apply(v.Session.Input(func(*globe.Controller) { action() }))
		return
	}
	at, _ := v.Globe.Unproject(px)
	v.Apply(v.Session.Input(func(c *globe.Controller) { c.Click(px, at) }))
}

func (v *Viewer) handleTouch() {
	if len(inpututil.AppendJustPressedTouchIDs(nil)) > 0 {
		v.Apply(v.Session.Input(func(c *globe.Controller) { c.TouchStart() }))
	}
}

func (v *Viewer) Draw(screen *ebiten.Image) {
	v.Globe.Draw(screen)
	v.Globe.DrawStatus(screen, v.statusLines())
}

func (v *Viewer) Layout(w, h int) (int, int) { return v.Globe.Layout(w, h) }

func (v *Viewer) statusLines() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	view := v.view
	rotating := "off"
	if view.Interaction.Rotating {
		rotating = "on"
	}
	lines := []string{
		fmt.Sprintf("PERIOD %-4s EVENTS %d", view.Period, view.Count),
		fmt.Sprintf("ROTATION %s", rotating),
	}
	if view.Search != "" {
		lines = append(lines, fmt.Sprintf("SEARCH %q", view.Search))
	}
	if len(view.Excluded) > 0 {
		lines = append(lines, "HIDDEN "+strings.Join(view.Excluded, ", "))
	}
	if view.Area != "" {
		lines = append(lines, "AREA "+view.Area)
		if d := v.detail; d != nil && d.Area == view.Area {
			lines = append(lines,
				fmt.Sprintf("TENSION %.0f/100 %s", d.Tension.Percent(), d.Tension.Level),
				fmt.Sprintf("MONTH total %d peak %d avg %.1f", d.Activity.Total, d.Activity.Peak, d.Activity.Average),
			)
		}
	}
	return lines
}
