package render

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/sudorandom/conflict-globe/pkg/events"
	"github.com/sudorandom/conflict-globe/pkg/globe"
)

var (
	ColorSpace    = color.RGBA{8, 10, 15, 255}
	ColorOcean    = color.RGBA{18, 22, 30, 255}
	ColorOutline  = color.RGBA{36, 42, 53, 255}
	ColorArea     = color.RGBA{16, 185, 129, 255}  // Emerald
	ColorDisputed = color.RGBA{136, 0, 0, 255}     // Dark Red
	ColorMilitary = color.RGBA{255, 59, 92, 255}   // Red
	ColorOther    = color.RGBA{108, 172, 251, 255} // Light Blue
	ColorCard     = color.RGBA{12, 14, 20, 230}
)

// militaryRadius and viseurRadius are indexed by importance.
var (
	militaryRadius = [...]float64{1, 1, 2, 3, 4, 10}
	viseurRadius   = [...]float64{2, 2, 4, 6, 10, 20}
)

type popupButton struct {
	x, y, w, h float64
	label      string
	action     func()
}

// Draw renders the globe, its layers and the popup.
func (g *Globe) Draw(screen *ebiten.Image) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pulseImage == nil {
		g.initPulseTexture()
	}

	screen.Fill(ColorSpace)
	cam := g.cam.view
	r := g.proj.Radius(cam.Zoom)
	cx, cy := float32(g.Width)/2, float32(g.Height)/2
	vector.DrawFilledCircle(screen, cx, cy, float32(r), ColorOcean, true)

	for _, region := range g.regions {
		st := g.states[region.ID]
		c, width := ColorOutline, float32(1)
		switch {
		case st.Selected:
			c, width = ColorArea, 3
		case st.Hover:
			c, width = ColorArea, 2
		}
		g.strokeRegion(screen, cam, region, c, width)
	}
	if !g.hidden[globe.LayerDisputed] {
		for _, region := range g.disputed {
			g.strokeRegion(screen, cam, region, ColorDisputed, 1)
		}
	}
	if !g.hidden[globe.LayerEvents] {
		g.drawEvents(screen, cam)
	}
	g.drawPopup(screen, cam)
	g.drawLegend(screen)
}

func (g *Globe) strokeRegion(screen *ebiten.Image, cam globe.Camera, region events.Region, c color.RGBA, width float32) {
	for _, poly := range region.Polygons {
		for _, ring := range poly {
			var px, py float64
			prevVisible := false
			for i, pt := range ring {
				if len(pt) < 2 {
					prevVisible = false
					continue
				}
				x, y, visible := g.proj.Project(cam, pt[0], pt[1])
				if i > 0 && visible && prevVisible {
					vector.StrokeLine(screen, float32(px), float32(py), float32(x), float32(y), width, c, true)
				}
				px, py, prevVisible = x, y, visible
			}
		}
	}
}

func (g *Globe) drawEvents(screen *ebiten.Image, cam globe.Camera) {
	imgW := g.pulseImage.Bounds().Dx()
	halfW := float64(imgW) / 2
	op := &ebiten.DrawImageOptions{}
	op.Blend = ebiten.BlendLighter

	pointAlpha := float32(0.4)
	switch {
	case cam.Zoom >= 10:
		pointAlpha = 0.6
	case cam.Zoom >= 5:
		pointAlpha = 0.5
	}

	for _, f := range g.data.Features {
		x, y, visible := g.proj.Project(cam, f.Longitude, f.Latitude)
		if !visible {
			continue
		}
		imp := f.Importance
		if imp < 1 || imp > 5 {
			imp = 1
		}
		c := ColorOther
		if f.Military() {
			c = ColorMilitary
		}

		if f.HighImportance() && g.pulse.Opacity > 0 {
			scale := g.pulse.Radius / float64(imgW) * 2.0
			alpha := g.pulse.Opacity
			op.GeoM.Reset()
			op.GeoM.Translate(-halfW, -halfW)
			op.GeoM.Scale(scale, scale)
			op.GeoM.Translate(x, y)
			cr, cg, cb := float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0
			op.ColorScale.Reset()
			op.ColorScale.Scale(float32(cr*alpha), float32(cg*alpha), float32(cb*alpha), float32(alpha))
			screen.DrawImage(g.pulseImage, op)
		}

		if f.Military() {
			vr := float32(viseurRadius[imp])
			vector.DrawFilledCircle(screen, float32(x), float32(y), vr, withAlpha(c, 0.3), true)
			vector.StrokeCircle(screen, float32(x), float32(y), vr, 1, withAlpha(c, 0.8), true)
			vector.DrawFilledCircle(screen, float32(x), float32(y), float32(militaryRadius[imp]), withAlpha(c, pointAlpha), true)
			continue
		}
		weight := 0.5 + 0.125*float64(imp-1)
		vector.DrawFilledCircle(screen, float32(x), float32(y), 3+float32(imp)/2, withAlpha(c, float32(weight)*0.7), true)
	}
}

func (g *Globe) drawPopup(screen *ebiten.Image, cam globe.Camera) {
	g.controls = nil
	if g.popup == nil || g.fontSource == nil {
		return
	}
	p := g.popup
	ax, ay, visible := g.proj.Project(cam, p.At.Lng, p.At.Lat)
	if !visible {
		return
	}

	const cardW, pad, fontSize = 320.0, 12.0, 14.0
	f := p.Feature
	lines := []string{f.Username}
	if !f.Timestamp.IsZero() {
		lines = append(lines, f.Timestamp.UTC().Format("02/01/2006 15:04 UTC"))
	}
	lines = append(lines, wrapText(f.Text, 44, 6)...)
	lines = append(lines, fmt.Sprintf("Importance %d/5  %s", f.Importance, f.Typology))

	lineH := fontSize * 1.4
	cardH := pad*2 + lineH*float64(len(lines))
	if p.Pinned {
		cardH += lineH + pad
	}
	x := math.Max(0, math.Min(float64(g.Width)-cardW, ax-cardW/2))
	y := math.Max(0, ay-cardH-15)

	vector.DrawFilledRect(screen, float32(x), float32(y), cardW, float32(cardH), ColorCard, false)
	vector.StrokeRect(screen, float32(x), float32(y), cardW, float32(cardH), 1, ColorOutline, false)
	accent := ColorOther
	if f.Military() {
		accent = ColorMilitary
	}
	vector.DrawFilledRect(screen, float32(x), float32(y), 4, float32(cardH), accent, false)

	face := &text.GoTextFace{Source: g.fontSource, Size: fontSize}
	for i, line := range lines {
		op := &text.DrawOptions{}
		op.GeoM.Translate(x+pad, y+pad+float64(i)*lineH)
		if i > 0 {
			op.ColorScale.Scale(1, 1, 1, 0.8)
		}
		text.Draw(screen, line, face, op)
	}

	if !p.Pinned {
		return
	}
	by := y + cardH - pad - lineH
	if p.Total > 1 {
		counter := fmt.Sprintf("%d / %d", p.Index+1, p.Total)
		op := &text.DrawOptions{}
		op.GeoM.Translate(x+pad, by)
		op.ColorScale.Scale(1, 1, 1, 0.6)
		text.Draw(screen, counter, face, op)
	}
	buttons := []popupButton{
		{label: "<", action: p.Controls.Previous},
		{label: ">", action: p.Controls.Next},
		{label: "x", action: p.Controls.Close},
	}
	bx := x + cardW - pad
	for i := len(buttons) - 1; i >= 0; i-- {
		b := buttons[i]
		if b.action == nil {
			continue
		}
		b.w, b.h = lineH, lineH
		bx -= b.w + 6
		b.x, b.y = bx, by
		vector.StrokeRect(screen, float32(b.x), float32(b.y), float32(b.w), float32(b.h), 1, ColorOutline, false)
		op := &text.DrawOptions{}
		op.GeoM.Translate(b.x+b.w/2-fontSize/4, b.y)
		text.Draw(screen, b.label, face, op)
		g.controls = append(g.controls, b)
	}
}

func (g *Globe) drawLegend(screen *ebiten.Image) {
	if g.fontSource == nil {
		return
	}
	margin, fontSize, spacing, swatchSize := 30.0, 14.0, 24.0, 14.0
	items := []struct {
		Label string
		Color color.RGBA
		Pulse bool
	}{
		{"Military", ColorMilitary, false},
		{"Other events", ColorOther, false},
		{"Importance 4+", ColorOther, true},
	}
	lx := margin
	ly := float64(g.Height) - margin - float64(len(items))*spacing

	imgW := g.pulseImage.Bounds().Dx()
	halfW := float64(imgW) / 2
	face := &text.GoTextFace{Source: g.fontSource, Size: fontSize}

	for i, it := range items {
		ty := ly + float64(i)*spacing
		if it.Pulse {
			sop := &ebiten.DrawImageOptions{}
			sop.Blend = ebiten.BlendLighter
			scale := swatchSize / float64(imgW) * 1.8
			sop.GeoM.Translate(-halfW, -halfW)
			sop.GeoM.Scale(scale, scale)
			sop.GeoM.Translate(lx+(swatchSize/2), ty+(swatchSize/2))
			r, gr, b := float64(it.Color.R)/255.0, float64(it.Color.G)/255.0, float64(it.Color.B)/255.0
			sop.ColorScale.Scale(float32(r*0.8), float32(gr*0.8), float32(b*0.8), 0.8)
			screen.DrawImage(g.pulseImage, sop)
		} else {
			vector.DrawFilledCircle(screen, float32(lx+swatchSize/2), float32(ty+swatchSize/2), float32(swatchSize/3), it.Color, true)
		}

		top := &text.DrawOptions{}
		top.GeoM.Translate(lx+swatchSize+10, ty+(swatchSize/2)-(fontSize/2))
		top.ColorScale.Scale(1, 1, 1, 0.8)
		text.Draw(screen, it.Label, face, top)
	}
}

// DrawStatus writes lines in the top-left corner in the mono font.
func (g *Globe) DrawStatus(screen *ebiten.Image, lines []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.monoSource == nil {
		return
	}
	const margin, fontSize = 20.0, 13.0
	face := &text.GoTextFace{Source: g.monoSource, Size: fontSize}
	for i, line := range lines {
		op := &text.DrawOptions{}
		op.GeoM.Translate(margin, margin+float64(i)*fontSize*1.5)
		op.ColorScale.Scale(1, 1, 1, 0.7)
		text.Draw(screen, line, face, op)
	}
}

// initPulseTexture draws the soft ring used for pulses.
func (g *Globe) initPulseTexture() {
	size := 128
	g.pulseImage = ebiten.NewImage(size, size)
	pixels := make([]byte, size*size*4)
	center, maxDist := float64(size)/2.0, float64(size)/2.0
	outer, inner := 0.9, 0.8
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			dist := math.Sqrt(dx*dx + dy*dy)
			if dist >= maxDist {
				continue
			}
			val := 0.0
			if dist > maxDist*outer {
				val = math.Cos(((dist - maxDist*(outer+((1-outer)/2))) / (maxDist * ((1 - outer) / 2))) * (math.Pi / 2))
			} else if dist > maxDist*inner {
				val = math.Sin(((dist - maxDist*inner) / (maxDist * (outer - inner))) * (math.Pi / 2))
			}
			off := (y*size + x) * 4
			pixels[off+3] = uint8(math.Max(0, val) * 255)
			pixels[off], pixels[off+1], pixels[off+2] = 255, 255, 255
		}
	}
	g.pulseImage.WritePixels(pixels)
}

func withAlpha(c color.RGBA, a float32) color.RGBA {
	return color.RGBA{
		R: uint8(float32(c.R) * a),
		G: uint8(float32(c.G) * a),
		B: uint8(float32(c.B) * a),
		A: uint8(255 * a),
	}
}

// wrapText splits s into lines of at most width runes, keeping at most maxLines
// lines and marking a cut with an ellipsis.
func wrapText(s string, width, maxLines int) []string {
	words := strings.Fields(s)
	var lines []string
	var cur []rune
	for _, w := range words {
		wr := []rune(w)
		if len(wr) > width {
			wr = append(wr[:width-1], '…')
		}
		switch {
		case len(cur) == 0:
			cur = wr
		case len(cur)+1+len(wr) <= width:
			cur = append(append(cur, ' '), wr...)
		default:
			lines = append(lines, string(cur))
			cur = wr
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		last := []rune(lines[maxLines-1])
		if len(last) >= width {
			last = last[:width-1]
		}
		lines[maxLines-1] = string(append(last, '…'))
	}
	return lines
}
