// Package events defines the geolocated event records shown on the globe and
// their conversion from GeoJSON payloads.
package events

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	geojson "github.com/paulmach/go.geojson"
)

// Period is a rolling window of days that scopes an event query.
type Period int

// Periods lists the supported windows, shortest first.
var Periods = []Period{1, 7, 30}

// Valid reports whether p is one of the supported windows.
func (p Period) Valid() bool {
	for _, s := range Periods {
		if s == p {
			return true
		}
	}
	return false
}

func (p Period) String() string { return fmt.Sprintf("%dd", int(p)) }

// Range returns the ISO-8601 start and end of the window ending at now.
func (p Period) Range(now time.Time) (start, end string) {
	now = now.UTC()
	return FormatTime(now.AddDate(0, 0, -int(p))), FormatTime(now)
}

// FormatTime renders t the way the event API expects query dates.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// FeatureID is an opaque identifier; only equality is meaningful.
type FeatureID string

type Feature struct {
	ID         FeatureID `json:"id"`
	Username   string    `json:"username"`
	Timestamp  time.Time `json:"timestamp"`
	Text       string    `json:"text"`
	Importance int       `json:"importance"`
	Typology   string    `json:"typology"`
	URL        string    `json:"url,omitempty"`
	Images     []string  `json:"images,omitempty"`
	Longitude  float64   `json:"longitude"`
	Latitude   float64   `json:"latitude"`
}

// HighImportance reports whether the feature gets the pulse treatment.
func (f Feature) HighImportance() bool { return f.Importance >= 4 }

// Military reports whether the feature is drawn as a point rather than heat.
func (f Feature) Military() bool { return f.Typology == "MIL" }

// Collection is an ordered set of features from one fetch.
type Collection struct {
	Features    []Feature
	BoundingBox []float64
}

// Len is safe on a nil collection.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Features)
}

// Usernames returns the distinct usernames in c, sorted.
func (c *Collection) Usernames() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(c.Features))
	names := make([]string, 0)
	for _, f := range c.Features {
		if f.Username == "" {
			continue
		}
		if _, ok := seen[f.Username]; ok {
			continue
		}
		seen[f.Username] = struct{}{}
		names = append(names, f.Username)
	}
	sort.Strings(names)
	return names
}

// ToGeoJSON converts c back into a GeoJSON feature collection.
func (c *Collection) ToGeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if c == nil {
		return fc
	}
	fc.BoundingBox = c.BoundingBox
	for _, f := range c.Features {
		gf := geojson.NewPointFeature([]float64{f.Longitude, f.Latitude})
		gf.ID = string(f.ID)
		gf.SetProperty("id", string(f.ID))
		gf.SetProperty("username", f.Username)
		if !f.Timestamp.IsZero() {
			gf.SetProperty("created_at", f.Timestamp.UTC().Format(time.RFC3339))
		}
		gf.SetProperty("text", f.Text)
		gf.SetProperty("importance", f.Importance)
		gf.SetProperty("typology", f.Typology)
		gf.SetProperty("url", f.URL)
		images := f.Images
		if images == nil {
			images = []string{}
		}
		gf.SetProperty("images", images)
		fc.AddFeature(gf)
	}
	return fc
}

// FromGeoJSON converts a decoded feature collection. Features without a
// point geometry are skipped; missing properties fall back to defaults.
func FromGeoJSON(fc *geojson.FeatureCollection) *Collection {
	c := &Collection{Features: make([]Feature, 0, len(fc.Features))}
	c.BoundingBox = fc.BoundingBox
	for i, gf := range fc.Features {
		f, ok := FeatureFromGeoJSON(gf, i)
		if !ok {
			continue
		}
		c.Features = append(c.Features, f)
	}
	return c
}

// FeatureFromGeoJSON converts a single point feature. seq is used to build an
// id when the payload carries none.
func FeatureFromGeoJSON(gf *geojson.Feature, seq int) (Feature, bool) {
	if gf == nil || gf.Geometry == nil || !gf.Geometry.IsPoint() || len(gf.Geometry.Point) < 2 {
		return Feature{}, false
	}
	props := gf.Properties
	f := Feature{
		Username:   firstString(props, "username", "author"),
		Text:       firstString(props, "text", "body"),
		Typology:   firstString(props, "typology"),
		URL:        firstString(props, "url"),
		Importance: importance(props["importance"]),
		Images:     images(props["images"]),
		Timestamp:  timestamp(firstString(props, "created_at", "date_published", "timestamp")),
		Longitude:  gf.Geometry.Point[0],
		Latitude:   gf.Geometry.Point[1],
	}
	switch {
	case gf.ID != nil:
		f.ID = FeatureID(fmt.Sprint(gf.ID))
	case props["id"] != nil:
		f.ID = FeatureID(fmt.Sprint(props["id"]))
	default:
		f.ID = FeatureID("#" + strconv.Itoa(seq))
	}
	return f, true
}

func firstString(props map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// importance accepts numbers or numeric strings and clamps to 1..5.
func importance(v interface{}) int {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case int:
		n = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 1
		}
		n = parsed
	default:
		return 1
	}
	switch {
	case n < 1:
		return 1
	case n > 5:
		return 5
	}
	return int(n)
}

// images accepts a JSON array or a string holding one.
func images(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, img := range t {
			if s, ok := img.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case string:
		var out []string
		if err := json.Unmarshal([]byte(t), &out); err != nil {
			return []string{}
		}
		return out
	}
	return []string{}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func timestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
