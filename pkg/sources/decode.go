package sources

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	geojson "github.com/paulmach/go.geojson"

	"github.com/sudorandom/conflict-globe/pkg/events"
)

// Boundaries holds the static region layers loaded once at map start.
type Boundaries struct {
	Disputed *geojson.FeatureCollection
	Regions  []events.Region
}

func decodeFeatureCollection(body []byte, what string) (*geojson.FeatureCollection, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, what, err)
	}
	if probe.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: %s: unexpected type %q", ErrParse, what, probe.Type)
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, what, err)
	}
	return fc, nil
}

// DecodeEvents validates an event feed payload. A collection with zero
// features is a valid, empty result.
func DecodeEvents(body []byte) (*events.Collection, error) {
	fc, err := decodeFeatureCollection(body, "events")
	if err != nil {
		return nil, err
	}
	return events.FromGeoJSON(fc), nil
}

// DecodeUsernames accepts either a bare list or an object carrying the list
// under "usernames" (or the older "authors").
func DecodeUsernames(body []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(body)
	var names []string
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &names); err != nil {
			return nil, fmt.Errorf("%w: usernames: %v", ErrParse, err)
		}
	case len(trimmed) > 0 && trimmed[0] == '{':
		var obj struct {
			Usernames []string `json:"usernames"`
			Authors   []string `json:"authors"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("%w: usernames: %v", ErrParse, err)
		}
		names = obj.Usernames
		if names == nil {
			names = obj.Authors
		}
	default:
		return nil, fmt.Errorf("%w: usernames: not a list or object", ErrParse)
	}

	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

// flexFloat decodes numbers that may arrive as JSON strings. Values that are
// not numeric decode as zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

type tensionPayload struct {
	Score  *flexFloat `json:"tension_score"`
	Level  string     `json:"niveau_tension"`
	Events []struct {
		Date         string    `json:"date"`
		LocationName string    `json:"location_name"`
		Latitude     flexFloat `json:"latitude"`
		Longitude    flexFloat `json:"longitude"`
		SummaryText  string    `json:"SUMMARY_TEXT"`
		Text         string    `json:"text"`
		Contribution flexFloat `json:"score_contribution_normalized"`
	} `json:"evenements"`
}

// DecodeTension substitutes the neutral defaults for missing fields and drops
// events with no summary text.
func DecodeTension(body []byte) (events.Tension, error) {
	var p tensionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return events.Tension{}, fmt.Errorf("%w: tension: %v", ErrParse, err)
	}
	t := events.NeutralTension()
	if p.Score != nil {
		t.Score = float64(*p.Score)
	}
	if p.Level != "" {
		t.Level = events.TensionLevel(p.Level)
	}
	for _, ev := range p.Events {
		summary := strings.TrimSpace(ev.SummaryText)
		if summary == "" {
			summary = strings.TrimSpace(ev.Text)
		}
		if summary == "" {
			continue
		}
		t.Events = append(t.Events, events.TensionEvent{
			Date:         ev.Date,
			LocationName: ev.LocationName,
			Latitude:     float64(ev.Latitude),
			Longitude:    float64(ev.Longitude),
			Summary:      summary,
			Contribution: float64(ev.Contribution),
		})
	}
	return t, nil
}

// DecodeBoundaries validates both boundary layers.
func DecodeBoundaries(disputed, world []byte) (Boundaries, error) {
	d, err := decodeFeatureCollection(disputed, "disputed areas")
	if err != nil {
		return Boundaries{}, err
	}
	w, err := decodeFeatureCollection(world, "world areas")
	if err != nil {
		return Boundaries{}, err
	}
	return Boundaries{Disputed: d, Regions: events.RegionsFromGeoJSON(w)}, nil
}
