package areas

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudorandom/conflict-globe/pkg/events"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu           sync.Mutex
	tensionCalls int
	eventCalls   int
	start, end   string
	tensionErr   error
	eventsErr    error
	coll         *events.Collection
}

func (f *fakeSource) Tension(ctx context.Context, area string) (events.Tension, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tensionCalls++
	if f.tensionErr != nil {
		return events.Tension{}, f.tensionErr
	}
	return events.Tension{Score: 72, Level: events.LevelMajor}, nil
}

func (f *fakeSource) Events(ctx context.Context, start, end, area string) (*events.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventCalls++
	f.start, f.end = start, end
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return f.coll, nil
}

func oct(day, hour int) events.Feature {
	return events.Feature{Timestamp: time.Date(2026, 10, day, hour, 0, 0, 0, time.UTC)}
}

func TestMonthlyActivity(t *testing.T) {
	c := &events.Collection{Features: []events.Feature{
		oct(1, 3), oct(1, 9), oct(1, 22), oct(1, 23),
		oct(5, 0),
		oct(19, 8), oct(19, 9),
		{Timestamp: time.Date(2026, 9, 30, 23, 0, 0, 0, time.UTC)},
		{},
	}}
	a := MonthlyActivity(now, c)

	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), a.Month)
	assert.Equal(t, time.Thursday, a.FirstWeekday)
	require.Len(t, a.Days, 31)
	assert.Equal(t, 7, a.Total)
	assert.Equal(t, 4, a.Peak)
	assert.InDelta(t, 7.0/31, a.Average, 1e-9)

	assert.Equal(t, DayCount{Date: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), Count: 4, Level: 4}, a.Days[0])
	assert.Equal(t, 1, a.Days[4].Level)
	assert.Equal(t, 2, a.Days[18].Level)
	assert.Equal(t, 0, a.Days[30].Level)
}

func TestMonthlyActivityEmpty(t *testing.T) {
	a := MonthlyActivity(time.Date(2028, 2, 10, 0, 0, 0, 0, time.UTC), nil)
	assert.Len(t, a.Days, 29)
	assert.Zero(t, a.Total)
	assert.Zero(t, a.Average)
}

func TestLevel(t *testing.T) {
	tests := []struct {
		count, peak, want int
	}{
		{0, 10, 0},
		{3, 0, 0},
		{1, 10, 1},
		{25, 100, 1},
		{26, 100, 2},
		{50, 100, 2},
		{75, 100, 3},
		{76, 100, 4},
		{10, 10, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Level(tt.count, tt.peak), "Level(%d, %d)", tt.count, tt.peak)
	}
}

func TestDetailCachesCompleteResults(t *testing.T) {
	src := &fakeSource{coll: &events.Collection{Features: []events.Feature{oct(2, 1)}}}
	s := NewService(src, WithClock(func() time.Time { return now }))

	d := s.Detail(context.Background(), "Ukraine")
	assert.Equal(t, "Ukraine", d.Area)
	assert.Equal(t, events.LevelMajor, d.Tension.Level)
	assert.Equal(t, 1, d.Activity.Total)
	assert.Equal(t, "2026-10-01T00:00:00.000Z", src.start)
	assert.Equal(t, "2026-10-19T12:00:00.000Z", src.end)

	s.Detail(context.Background(), "Ukraine")
	assert.Equal(t, 1, src.tensionCalls)
	assert.Equal(t, 1, src.eventCalls)

	s.Forget()
	s.Detail(context.Background(), "Ukraine")
	assert.Equal(t, 2, src.tensionCalls)
}

func TestDetailDegrades(t *testing.T) {
	src := &fakeSource{tensionErr: errors.New("down"), eventsErr: errors.New("down")}
	s := NewService(src, WithClock(func() time.Time { return now }), WithCache(4, time.Minute))

	d := s.Detail(context.Background(), "Nowhere")
	assert.Equal(t, events.NeutralTension(), d.Tension)
	assert.Equal(t, events.LevelStable, d.Tension.Level)
	assert.Zero(t, d.Activity.Total)
	assert.Len(t, d.Activity.Days, 31)

	s.Detail(context.Background(), "Nowhere")
	assert.Equal(t, 2, src.tensionCalls, "degraded details are retried")
}
