package events

import (
	"testing"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriod(t *testing.T) {
	for _, p := range Periods {
		assert.True(t, p.Valid(), "%s", p)
	}
	assert.False(t, Period(3).Valid())
	assert.Equal(t, "7d", Period(7).String())

	now := time.Date(2026, 10, 19, 12, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	start, end := Period(7).Range(now)
	assert.Equal(t, "2026-10-12T10:30:00.000Z", start)
	assert.Equal(t, "2026-10-19T10:30:00.000Z", end)
}

func TestFeatureFromGeoJSON(t *testing.T) {
	raw := []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"t1","geometry":{"type":"Point","coordinates":[35.2,31.7]},
		 "properties":{"username":"alice","text":"convoy","importance":"4","typology":"MIL",
		 "created_at":"2026-10-18T09:00:00Z","images":"[\"a.jpg\"]"}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[2,48]},
		 "properties":{"author":"bob","body":"protest","importance":9}},
		{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]},"properties":{}}
	]}`)
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	require.NoError(t, err)

	c := FromGeoJSON(fc)
	require.Equal(t, 2, c.Len())

	a := c.Features[0]
	assert.Equal(t, FeatureID("t1"), a.ID)
	assert.Equal(t, "alice", a.Username)
	assert.Equal(t, 4, a.Importance)
	assert.True(t, a.HighImportance())
	assert.True(t, a.Military())
	assert.Equal(t, []string{"a.jpg"}, a.Images)
	assert.Equal(t, time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC), a.Timestamp.UTC())
	assert.Equal(t, 35.2, a.Longitude)

	b := c.Features[1]
	assert.Equal(t, FeatureID("#1"), b.ID)
	assert.Equal(t, "bob", b.Username)
	assert.Equal(t, "protest", b.Text)
	assert.Equal(t, 5, b.Importance)
	assert.Empty(t, b.Images)
	assert.True(t, b.Timestamp.IsZero())
}

func TestImportanceClamp(t *testing.T) {
	tests := []struct {
		in   interface{}
		want int
	}{
		{nil, 1},
		{0.0, 1},
		{3.0, 3},
		{3.9, 3},
		{"2", 2},
		{"high", 1},
		{12, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, importance(tt.in), "importance(%v)", tt.in)
	}
}

func TestUsernames(t *testing.T) {
	c := &Collection{Features: []Feature{{Username: "bob"}, {Username: "alice"}, {Username: "bob"}, {}}}
	assert.Equal(t, []string{"alice", "bob"}, c.Usernames())

	var empty *Collection
	assert.Equal(t, 0, empty.Len())
}

func TestRegionContains(t *testing.T) {
	outer := [][]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	hole := [][]float64{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}
	r := Region{Polygons: [][][][]float64{{outer, hole}}}

	assert.True(t, r.Contains(1, 1))
	assert.False(t, r.Contains(5, 5), "inside the hole")
	assert.False(t, r.Contains(11, 5))
}

func TestRegionName(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]interface{}
		want  string
	}{
		{"explicit name", map[string]interface{}{"name": "Gaza", "SOVEREIGNT": "Palestine"}, "Gaza"},
		{"sovereignty", map[string]interface{}{"SOVEREIGNT": "Ukraine"}, "Ukraine"},
		{"iso code", map[string]interface{}{"ISO_A3": "DEU"}, "Germany"},
		{"placeholder code", map[string]interface{}{"ISO_A2": "-99"}, "Inconnu"},
		{"nothing", map[string]interface{}{}, "Inconnu"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RegionName(tt.props))
		})
	}
}

func TestRegionsFromGeoJSON(t *testing.T) {
	raw := []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{"name":"A"}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{"name":"skip"}},
		{"type":"Feature","geometry":{"type":"MultiPolygon","coordinates":[[[[5,5],[6,5],[6,6],[5,5]]]]},"properties":{"name":"B"}}
	]}`)
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	require.NoError(t, err)

	regions := RegionsFromGeoJSON(fc)
	require.Len(t, regions, 2)
	assert.Equal(t, RegionID(0), regions[0].ID)
	assert.Equal(t, RegionID(2), regions[1].ID)
	assert.Equal(t, "B", regions[1].Name)
}

func TestTension(t *testing.T) {
	n := NeutralTension()
	assert.Equal(t, LevelStable, n.Level)
	assert.Zero(t, n.Score)
	assert.NotNil(t, n.Events)

	assert.Equal(t, 0.0, Tension{Score: -3}.Percent())
	assert.Equal(t, 100.0, Tension{Score: 140}.Percent())
	assert.True(t, LevelOpenWar.Known())
	assert.False(t, TensionLevel("Calme").Known())
}
