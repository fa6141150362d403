package areas

import (
	"time"

	"github.com/sudorandom/conflict-globe/pkg/events"
)

// DayCount is one calendar cell.
type DayCount struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
	// Level buckets Count against the month's peak, 0 (none) to 4.
	Level int `json:"level"`
}

// Activity is the per-day event count for one calendar month.
type Activity struct {
	Month        time.Time    `json:"month"`
	FirstWeekday time.Weekday `json:"first_weekday"`
	Days         []DayCount   `json:"days"`
	Total        int          `json:"total"`
	Peak         int          `json:"peak"`
	Average      float64      `json:"average"`
}

// MonthStart is midnight on the first day of now's month, in now's location.
func MonthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// MonthlyActivity counts c's features per day of now's month. Features
// outside the month are ignored.
func MonthlyActivity(now time.Time, c *events.Collection) Activity {
	start := MonthStart(now)
	days := start.AddDate(0, 1, -1).Day()
	a := Activity{
		Month:        start,
		FirstWeekday: start.Weekday(),
		Days:         make([]DayCount, days),
	}
	for i := range a.Days {
		a.Days[i].Date = start.AddDate(0, 0, i)
	}

	if c != nil {
		loc := now.Location()
		for _, f := range c.Features {
			if f.Timestamp.IsZero() {
				continue
			}
			ts := f.Timestamp.In(loc)
			if ts.Year() != start.Year() || ts.Month() != start.Month() {
				continue
			}
			a.Days[ts.Day()-1].Count++
		}
	}

	for _, d := range a.Days {
		a.Total += d.Count
		if d.Count > a.Peak {
			a.Peak = d.Count
		}
	}
	a.Average = float64(a.Total) / float64(days)
	for i := range a.Days {
		a.Days[i].Level = Level(a.Days[i].Count, a.Peak)
	}
	return a
}

// Level buckets count into quarters of peak.
func Level(count, peak int) int {
	if count <= 0 || peak <= 0 {
		return 0
	}
	r := float64(count) / float64(peak)
	switch {
	case r <= 0.25:
		return 1
	case r <= 0.5:
		return 2
	case r <= 0.75:
		return 3
	}
	return 4
}
