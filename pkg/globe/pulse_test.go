package globe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPulseAt(t *testing.T) {
	tests := []struct {
		name        string
		elapsed     time.Duration
		zoom        float64
		wantRadius  float64
		wantOpacity float64
	}{
		{"cycle start is invisible", 0, 4, 6, 0},
		{"before the appear delay", 300 * time.Millisecond, 4, 6 + 84*(300.0/2800), 0},
		{"half way at low zoom", 1400 * time.Millisecond, 2, 7 + 98*0.5, 0.9 * (1 - 0.38/0.88) * 0.6},
		{"half way at mid zoom", 1400 * time.Millisecond, 7, 5 + 35*0.5, 0.85 * (1 - 0.38/0.88)},
		{"half way at high zoom", 1400 * time.Millisecond, 12, 4 + 36*0.5, 0.8 * (1 - 0.38/0.88)},
		{"next cycle repeats", PulseCycle + 1400*time.Millisecond, 12, 4 + 36*0.5, 0.8 * (1 - 0.38/0.88)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PulseAt(tt.elapsed, tt.zoom)
			assert.InDelta(t, tt.wantRadius, got.Radius, 1e-9)
			assert.InDelta(t, tt.wantOpacity, got.Opacity, 1e-9)
			assert.Equal(t, got.Opacity, got.StrokeOpacity)
		})
	}
}

func TestPulseFadesOut(t *testing.T) {
	prev := PulseAt(400*time.Millisecond, 5)
	for ms := 500; ms < 2800; ms += 100 {
		cur := PulseAt(time.Duration(ms)*time.Millisecond, 5)
		assert.Less(t, cur.Opacity, prev.Opacity)
		assert.Greater(t, cur.Radius, prev.Radius)
		prev = cur
	}
}

func TestPulseAnimatorSingleFrame(t *testing.T) {
	s := NewScheduler(t0)
	var frames []PulseFrame
	a := NewPulseAnimator(s, func() float64 { return 4 }, func(f PulseFrame) { frames = append(frames, f) })

	a.Start()
	a.Start()
	for i := 0; i < 5; i++ {
		a.SetVisible(false)
		a.SetVisible(true)
	}
	_, pending := s.Pending()
	assert.Equal(t, 1, pending)
	assert.True(t, a.Scheduled())

	s.Tick(at(16 * time.Millisecond))
	s.Tick(at(32 * time.Millisecond))
	assert.Len(t, frames, 2)
	_, pending = s.Pending()
	assert.Equal(t, 1, pending)

	a.SetVisible(false)
	s.Tick(at(48 * time.Millisecond))
	assert.Len(t, frames, 2)
	_, pending = s.Pending()
	assert.Equal(t, 0, pending)

	a.SetVisible(true)
	a.Stop()
	s.Tick(at(64 * time.Millisecond))
	assert.Len(t, frames, 2)
	assert.False(t, a.Scheduled())
}

func TestPulseAnimatorHiddenBeforeStart(t *testing.T) {
	s := NewScheduler(t0)
	a := NewPulseAnimator(s, func() float64 { return 4 }, func(PulseFrame) {})
	a.SetVisible(false)
	a.Start()
	assert.False(t, a.Scheduled())
	a.SetVisible(true)
	assert.True(t, a.Scheduled())
}
