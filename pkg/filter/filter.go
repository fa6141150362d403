// Package filter narrows a cached event collection down to what is displayed.
package filter

import (
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/sudorandom/conflict-globe/pkg/events"
)

// Apply returns the features of c that pass both the username and the search
// test, in input order. It never mutates its arguments.
//
// An empty roster skips username filtering. Excluding every roster entry
// hides everything, whatever the search text.
func Apply(c *events.Collection, allUsernames []string, excluded map[string]struct{}, searchText string) *events.Collection {
	out := &events.Collection{Features: []events.Feature{}}
	if c == nil {
		return out
	}
	out.BoundingBox = c.BoundingBox

	checkUsers := len(allUsernames) > 0
	if checkUsers && coversAll(excluded, allUsernames) {
		return out
	}

	var matcher *ahocorasick.Matcher
	if strings.TrimSpace(searchText) != "" {
		matcher = ahocorasick.NewStringMatcher([]string{strings.ToLower(searchText)})
	}

	for _, f := range c.Features {
		if checkUsers {
			if _, hidden := excluded[f.Username]; hidden {
				continue
			}
		}
		if matcher != nil && len(matcher.Match([]byte(strings.ToLower(f.Text)))) == 0 {
			continue
		}
		out.Features = append(out.Features, f)
	}
	return out
}

func coversAll(excluded map[string]struct{}, all []string) bool {
	for _, name := range all {
		if _, ok := excluded[name]; !ok {
			return false
		}
	}
	return true
}

// State is the user's current filter choices.
type State struct {
	excluded map[string]struct{}
	search   string
}

func NewState() *State {
	return &State{excluded: make(map[string]struct{})}
}

// Toggle flips the exclusion of name. Names missing from roster are ignored,
// and so is every toggle while roster is empty (not loaded yet), so the
// exclusions stay a subset of the roster.
func (s *State) Toggle(name string, roster []string) bool {
	if !contains(roster, name) {
		return false
	}
	if _, ok := s.excluded[name]; ok {
		delete(s.excluded, name)
	} else {
		s.excluded[name] = struct{}{}
	}
	return true
}

// Prune drops exclusions that are not in roster.
func (s *State) Prune(roster []string) {
	keep := make(map[string]struct{}, len(roster))
	for _, n := range roster {
		keep[n] = struct{}{}
	}
	for n := range s.excluded {
		if _, ok := keep[n]; !ok {
			delete(s.excluded, n)
		}
	}
}

func (s *State) SetSearch(text string) { s.search = text }

func (s *State) Search() string { return s.search }

// IsExcluded reports whether name is hidden.
func (s *State) IsExcluded(name string) bool {
	_, ok := s.excluded[name]
	return ok
}

// Excluded returns the hidden names, sorted.
func (s *State) Excluded() []string {
	out := make([]string, 0, len(s.excluded))
	for n := range s.excluded {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Apply runs the engine with this state's choices.
func (s *State) Apply(c *events.Collection, roster []string) *events.Collection {
	return Apply(c, roster, s.excluded, s.search)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
