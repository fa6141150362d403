package events

import (
	"strings"

	"github.com/biter777/countries"
	geojson "github.com/paulmach/go.geojson"
)

// RegionID is assigned in load order, like a rendering engine's generated id.
type RegionID int

// NoRegion marks the absence of a hovered or selected region.
const NoRegion RegionID = -1

// Region is a world-area polygon with its display name.
type Region struct {
	ID       RegionID
	Name     string
	Polygons [][][][]float64
}

// Contains reports whether the lng/lat point falls inside the region, using
// even-odd ray casting so holes are respected.
func (r Region) Contains(lng, lat float64) bool {
	for _, poly := range r.Polygons {
		inside := false
		for _, ring := range poly {
			if ringContains(ring, lng, lat) {
				inside = !inside
			}
		}
		if inside {
			return true
		}
	}
	return false
}

func ringContains(ring [][]float64, x, y float64) bool {
	in := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		if len(ring[i]) < 2 || len(ring[j]) < 2 {
			continue
		}
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			in = !in
		}
	}
	return in
}

// RegionsFromGeoJSON keeps polygon and multipolygon features, assigning ids by
// position.
func RegionsFromGeoJSON(fc *geojson.FeatureCollection) []Region {
	regions := make([]Region, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		r := Region{ID: RegionID(i), Name: RegionName(f.Properties)}
		switch {
		case f.Geometry.IsPolygon():
			r.Polygons = [][][][]float64{f.Geometry.Polygon}
		case f.Geometry.IsMultiPolygon():
			r.Polygons = f.Geometry.MultiPolygon
		default:
			continue
		}
		regions = append(regions, r)
	}
	return regions
}

// RegionName resolves the display name of a world area. Explicit name
// properties win; ISO codes are resolved through the country table.
func RegionName(props map[string]interface{}) string {
	if name := firstString(props, "name", "SOVEREIGNT", "NAME"); name != "" {
		return name
	}
	for _, key := range []string{"ISO_A2", "iso_a2", "ISO_A3", "iso_a3"} {
		code := strings.TrimSpace(firstString(props, key))
		if code == "" || code == "-99" {
			continue
		}
		if c := countries.ByName(code); c != countries.Unknown {
			name := c.String()
			if idx := strings.Index(name, " ("); idx != -1 {
				name = name[:idx]
			}
			return name
		}
	}
	return "Inconnu"
}
