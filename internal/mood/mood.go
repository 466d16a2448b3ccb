// Package mood maintains an EMA-smoothed per-session mood score fed by
// per-turn voice-tone observations. The smoothed score backs the insight
// mood gate when a caller does not supply an explicit score; a session with
// no observations yet reports no score at all, which the gate treats as
// "mood unavailable".
package mood

import (
	"math"
	"sync"
	"time"
)

const (
	// alpha weights each new observation against the running average.
	alpha = 0.25
	// minObservationInterval debounces duplicate per-turn observations.
	minObservationInterval = 5 * time.Second
)

// Tracker smooths raw mood observations for one session. Safe for
// concurrent use (API handlers and the sweep may race on a session).
type Tracker struct {
	mu         sync.Mutex
	score      float64
	observed   bool
	lastUpdate time.Time
}

// NewTracker creates a tracker with no observations.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe folds one raw mood observation (clamped to [0,1]) into the
// smoothed score. Observations arriving within the debounce interval of the
// previous one are dropped. Returns true if the score was updated.
func (t *Tracker) Observe(raw float64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.observed && now.Sub(t.lastUpdate) < minObservationInterval {
		return false
	}

	v := clamp(raw)
	if !t.observed {
		t.score = v
		t.observed = true
	} else {
		t.score = clamp((1-alpha)*t.score + alpha*v)
	}
	t.lastUpdate = now
	return true
}

// Current returns the smoothed score, or nil when no observation has been
// recorded yet.
func (t *Tracker) Current() *float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.observed {
		return nil
	}
	score := t.score
	return &score
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	// Round to 4 decimal places to avoid floating point drift.
	return math.Round(v*10000) / 10000
}
