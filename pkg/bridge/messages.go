package bridge

import (
	"errors"
	"time"

	"github.com/sudorandom/conflict-globe/pkg/events"
	"github.com/sudorandom/conflict-globe/pkg/globe"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownFeature = errors.New("unknown feature")
	ErrBadCommand     = errors.New("malformed command")
)

// Command is one message from a client.
type Command struct {
	Type string `json:"type"`

	Days    int              `json:"days,omitempty"`
	Text    string           `json:"text,omitempty"`
	Name    string           `json:"name,omitempty"`
	Layer   globe.LayerGroup `json:"layer,omitempty"`
	On      bool             `json:"on,omitempty"`
	Visible bool             `json:"visible,omitempty"`
	ID      events.FeatureID `json:"id,omitempty"`

	// Feature is the full item to locate. Without it, locate resolves ID
	// against the last feed, then the map.
	Feature *events.Feature `json:"feature,omitempty"`

	// Point is the pointer position in client pixels. At, when set, is the
	// client's own unprojection of it and wins over the server's.
	Point globe.Point   `json:"point"`
	At    *globe.LngLat `json:"at,omitempty"`

	Width  int           `json:"width,omitempty"`
	Height int           `json:"height,omitempty"`
	Camera *globe.Camera `json:"camera,omitempty"`
}

// Message is one server-to-client message.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

const (
	msgHello       = "hello"
	msgView        = "view"
	msgError       = "error"
	msgData        = "data"
	msgBoundaries  = "boundaries"
	msgCamera      = "camera"
	msgPopup       = "popup"
	msgPopupClosed = "popup_removed"
	msgCursor      = "cursor"
	msgPulse       = "pulse"
	msgRegionState = "region_state"
	msgLayer       = "layer"
	msgRotation    = "rotation"
	msgFeed        = "feed"
	msgAreaDetail  = "area_detail"
)

type helloMessage struct {
	Session string `json:"session"`
}

type errorMessage struct {
	Command string `json:"command,omitempty"`
	Error   string `json:"error"`
}

type cameraMessage struct {
	globe.Camera
	DurationMS int64 `json:"duration_ms"`
	Fly        bool  `json:"fly,omitempty"`
}

func newCameraMessage(cam globe.Camera, d time.Duration, fly bool) cameraMessage {
	return cameraMessage{Camera: cam, DurationMS: d.Milliseconds(), Fly: fly}
}

type popupMessage struct {
	Feature  events.Feature `json:"feature"`
	At       globe.LngLat   `json:"at"`
	Pinned   bool           `json:"pinned"`
	Index    int            `json:"index"`
	Total    int            `json:"total"`
	Controls []string       `json:"controls,omitempty"`
}

// newPopupMessage lists the controls a client may send back as commands.
func newPopupMessage(p globe.Popup) popupMessage {
	m := popupMessage{Feature: p.Feature, At: p.At, Pinned: p.Pinned, Index: p.Index, Total: p.Total}
	if p.Controls.Close != nil {
		m.Controls = append(m.Controls, "close_popup")
	}
	if p.Controls.Previous != nil {
		m.Controls = append(m.Controls, "previous")
	}
	if p.Controls.Next != nil {
		m.Controls = append(m.Controls, "next")
	}
	return m
}

type regionStateMessage struct {
	ID events.RegionID `json:"id"`
	globe.RegionState
}

type layerMessage struct {
	Group   globe.LayerGroup `json:"group"`
	Visible bool             `json:"visible"`
}

type regionOutline struct {
	ID       events.RegionID `json:"id"`
	Name     string          `json:"name"`
	Polygons [][][][]float64 `json:"polygons"`
}

type boundariesMessage struct {
	Regions  []regionOutline `json:"regions"`
	Disputed any             `json:"disputed,omitempty"`
}
