package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudorandom/conflict-globe/pkg/events"
	"github.com/sudorandom/conflict-globe/pkg/globe"
)

type fakeCache struct {
	mu     sync.Mutex
	byDays map[events.Period]*events.Collection
}

func (f *fakeCache) GetOrFetch(_ context.Context, p events.Period) *events.Collection {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byDays[p]; ok {
		return c
	}
	return &events.Collection{Features: []events.Feature{}}
}

func (f *fakeCache) GetUsernames(context.Context, events.Period) []string {
	return []string{"alice", "bob"}
}

type fakeFeed struct{}

func (fakeFeed) AreaEvents(context.Context, events.Period, string) (*events.Collection, error) {
	return &events.Collection{Features: []events.Feature{
		{ID: "area", Username: "alice", Longitude: 30.5, Latitude: 50.4},
		{ID: "#0", Username: "bob", Longitude: 31, Latitude: 49},
	}}, nil
}

func newTestServer(t *testing.T, origins ...string) (*Server, *httptest.Server) {
	t.Helper()
	now := time.Now()
	cache := &fakeCache{byDays: map[events.Period]*events.Collection{
		1: {Features: []events.Feature{
			{ID: "a", Username: "alice", Text: "convoy spotted", Timestamp: now, Longitude: 35, Latitude: 31},
			{ID: "b", Username: "bob", Text: "artillery fire", Timestamp: now.Add(-time.Hour), Longitude: 36, Latitude: 33},
		}},
		7: {Features: []events.Feature{
			{ID: "c", Username: "alice", Text: "ceasefire talks", Timestamp: now, Longitude: 30, Latitude: 50},
		}},
	}}
	reg := prometheus.NewRegistry()
	s := New(Options{
		Cache:      cache,
		Feed:       fakeFeed{},
		TickRate:   5 * time.Millisecond,
		Origins:    origins,
		Registerer: reg,
		Gatherer:   reg,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// next reads until a message of type want arrives and accepts it.
func next(t *testing.T, conn *websocket.Conn, want string, accept func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var m inbound
		require.NoError(t, conn.ReadJSON(&m))
		if m.Type == want && (accept == nil || accept(m.Data)) {
			return m.Data
		}
	}
}

type viewJSON struct {
	Period      int                    `json:"period"`
	Count       int                    `json:"count"`
	Excluded    []string               `json:"excluded"`
	Search      string                 `json:"search"`
	Area        string                 `json:"area"`
	Interaction globe.InteractionState `json:"interaction"`
}

func view(t *testing.T, raw json.RawMessage) viewJSON {
	var v viewJSON
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func send(t *testing.T, conn *websocket.Conn, cmd Command) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestSessionLifecycle(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts)

	var hello helloMessage
	require.NoError(t, json.Unmarshal(next(t, conn, msgHello, nil), &hello))
	assert.NotEmpty(t, hello.Session)
	assert.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 5*time.Millisecond)

	v := view(t, next(t, conn, msgView, nil))
	assert.Equal(t, 1, v.Period)
	assert.Equal(t, 2, v.Count)
	assert.True(t, v.Interaction.Rotating)

	send(t, conn, Command{Type: "period", Days: 7})
	v = view(t, next(t, conn, msgView, func(raw json.RawMessage) bool { return view(t, raw).Period == 7 }))
	assert.Equal(t, 1, v.Count)

	send(t, conn, Command{Type: "rotate", On: false})
	next(t, conn, msgRotation, nil)
	v = view(t, next(t, conn, msgView, nil))
	assert.False(t, v.Interaction.Rotating)

	conn.Close()
	assert.Eventually(t, func() bool { return s.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestFilterCommands(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)
	next(t, conn, msgView, nil)

	send(t, conn, Command{Type: "search", Text: "CONVOY"})
	v := view(t, next(t, conn, msgView, nil))
	assert.Equal(t, "CONVOY", v.Search)
	assert.Equal(t, 1, v.Count)

	send(t, conn, Command{Type: "search", Text: ""})
	next(t, conn, msgView, nil)
	send(t, conn, Command{Type: "toggle_username", Name: "bob"})
	v = view(t, next(t, conn, msgView, nil))
	assert.Equal(t, []string{"bob"}, v.Excluded)
	assert.Equal(t, 1, v.Count)

	send(t, conn, Command{Type: "toggle_layer", Layer: globe.LayerDisputed})
	var layer layerMessage
	require.NoError(t, json.Unmarshal(next(t, conn, msgLayer, nil), &layer))
	assert.Equal(t, layerMessage{Group: globe.LayerDisputed, Visible: false}, layer)
}

func TestPinAndNavigate(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)
	next(t, conn, msgView, nil)
	send(t, conn, Command{Type: "rotate", On: false})
	next(t, conn, msgView, func(raw json.RawMessage) bool { return !view(t, raw).Interaction.Rotating })

	send(t, conn, Command{Type: "viewport", Width: 1280, Height: 720,
		Camera: &globe.Camera{Center: globe.LngLat{Lng: 35, Lat: 31}, Zoom: 5}})
	send(t, conn, Command{Type: "click", Point: globe.Point{X: 640, Y: 360}})

	var popup popupMessage
	require.NoError(t, json.Unmarshal(next(t, conn, msgPopup, nil), &popup))
	assert.True(t, popup.Pinned)
	assert.Equal(t, events.FeatureID("a"), popup.Feature.ID)
	assert.Contains(t, popup.Controls, "close_popup")

	send(t, conn, Command{Type: "close_popup"})
	next(t, conn, msgPopupClosed, nil)
	v := view(t, next(t, conn, msgView, nil))
	assert.False(t, v.Interaction.Pinned)
}

func TestLocate(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)
	next(t, conn, msgView, nil)

	send(t, conn, Command{Type: "locate", ID: "b"})
	var cam cameraMessage
	require.NoError(t, json.Unmarshal(next(t, conn, msgCamera, func(raw json.RawMessage) bool {
		var c cameraMessage
		return json.Unmarshal(raw, &c) == nil && c.Fly
	}), &cam))
	assert.Equal(t, globe.LngLat{Lng: 36, Lat: 33}, cam.Center)
	assert.GreaterOrEqual(t, cam.Zoom, 5.0)

	send(t, conn, Command{Type: "locate", ID: "missing"})
	var e errorMessage
	require.NoError(t, json.Unmarshal(next(t, conn, msgError, nil), &e))
	assert.Equal(t, "locate", e.Command)
	assert.Contains(t, e.Error, ErrUnknownFeature.Error())
}

func flown(raw json.RawMessage) bool {
	var c cameraMessage
	return json.Unmarshal(raw, &c) == nil && c.Fly
}

func TestLocateFromAreaFeed(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)
	next(t, conn, msgView, nil)

	send(t, conn, Command{Type: "select_area", Name: "Ukraine"})
	next(t, conn, msgView, func(raw json.RawMessage) bool { return view(t, raw).Area == "Ukraine" })
	send(t, conn, Command{Type: "feed"})
	var feed []events.Feature
	require.NoError(t, json.Unmarshal(next(t, conn, msgFeed, nil), &feed))
	require.Len(t, feed, 2)

	send(t, conn, Command{Type: "locate", ID: "area"})
	var cam cameraMessage
	require.NoError(t, json.Unmarshal(next(t, conn, msgCamera, flown), &cam))
	assert.Equal(t, globe.LngLat{Lng: 30.5, Lat: 50.4}, cam.Center)

	var popup popupMessage
	send(t, conn, Command{Type: "locate", ID: "#0"})
	require.NoError(t, json.Unmarshal(next(t, conn, msgPopup, func(raw json.RawMessage) bool {
		var p popupMessage
		return json.Unmarshal(raw, &p) == nil && p.Feature.ID == "#0"
	}), &popup))
	assert.Equal(t, "bob", popup.Feature.Username, "generated ids resolve against the feed first")

	f := events.Feature{ID: "elsewhere", Username: "carol", Longitude: 10, Latitude: 20}
	send(t, conn, Command{Type: "locate", Feature: &f})
	require.NoError(t, json.Unmarshal(next(t, conn, msgCamera, flown), &cam))
	assert.Equal(t, globe.LngLat{Lng: 10, Lat: 20}, cam.Center)
}

func TestBadCommands(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)

	tests := []struct {
		payload string
		command string
		err     error
	}{
		{`{"type":"bogus"}`, "bogus", ErrUnknownCommand},
		{`{"type":"period","days":3}`, "period", ErrBadCommand},
		{`not json`, "", ErrBadCommand},
	}
	for _, tt := range tests {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.payload)))
		var e errorMessage
		require.NoError(t, json.Unmarshal(next(t, conn, msgError, nil), &e))
		assert.Equal(t, tt.command, e.Command)
		assert.Contains(t, e.Error, tt.err.Error())
	}
}

func TestFeed(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)
	next(t, conn, msgView, nil)

	send(t, conn, Command{Type: "feed"})
	var feed []events.Feature
	require.NoError(t, json.Unmarshal(next(t, conn, msgFeed, nil), &feed))
	require.Len(t, feed, 2)
	assert.Equal(t, events.FeatureID("a"), feed[0].ID, "newest first")
}

func TestOriginCheck(t *testing.T) {
	_, ts := newTestServer(t, "https://globe.example")
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://elsewhere.example"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://globe.example"}})
	require.NoError(t, err)
	conn.Close()
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)
	next(t, conn, msgView, nil)
	send(t, conn, Command{Type: "rotate", On: false})
	next(t, conn, msgView, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "globe_bridge_clients 1")
	assert.Contains(t, string(body), `globe_bridge_commands_total{outcome="ok",type="rotate"} 1`)
}
