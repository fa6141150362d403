package events

// TensionLevel is the categorical label attached to a tension score.
type TensionLevel string

const (
	LevelOpenWar    TensionLevel = "Guerre ouverte"
	LevelMajor      TensionLevel = "Conflit actif majeur"
	LevelStrategic  TensionLevel = "Haute tension stratégique"
	LevelNotable    TensionLevel = "Tension notable"
	LevelModerate   TensionLevel = "Activité modérée"
	LevelStable     TensionLevel = "Stable / faible"
	lowestTensionLv              = LevelStable
)

// Known reports whether l is one of the labels the index produces.
func (l TensionLevel) Known() bool {
	switch l {
	case LevelOpenWar, LevelMajor, LevelStrategic, LevelNotable, LevelModerate, LevelStable:
		return true
	}
	return false
}

// Tension is a region's severity index.
type Tension struct {
	Score  float64        `json:"score"`
	Level  TensionLevel   `json:"level"`
	Events []TensionEvent `json:"events"`
}

type TensionEvent struct {
	Date         string  `json:"date"`
	LocationName string  `json:"location_name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Summary      string  `json:"summary"`
	Contribution float64 `json:"contribution"`
}

// NeutralTension is what a region shows when its index cannot be loaded.
func NeutralTension() Tension {
	return Tension{Score: 0, Level: lowestTensionLv, Events: []TensionEvent{}}
}

// Percent clamps the score for a 0-100 gauge.
func (t Tension) Percent() float64 {
	switch {
	case t.Score < 0:
		return 0
	case t.Score > 100:
		return 100
	}
	return t.Score
}
