package mood

import (
	"testing"
	"time"
)

func TestTrackerStartsWithNoScore(t *testing.T) {
	tr := NewTracker()
	if tr.Current() != nil {
		t.Error("expected nil score before any observation")
	}
}

func TestFirstObservationSetsScoreDirectly(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	if !tr.Observe(0.8, now) {
		t.Fatal("first observation should update")
	}
	score := tr.Current()
	if score == nil || *score != 0.8 {
		t.Errorf("expected 0.8, got %v", score)
	}
}

func TestObserveClampsInput(t *testing.T) {
	tr := NewTracker()
	tr.Observe(1.7, time.Now())
	if score := tr.Current(); score == nil || *score != 1.0 {
		t.Errorf("expected clamp to 1.0, got %v", score)
	}

	tr2 := NewTracker()
	tr2.Observe(-0.3, time.Now())
	if score := tr2.Current(); score == nil || *score != 0.0 {
		t.Errorf("expected clamp to 0.0, got %v", score)
	}
}

func TestObserveAppliesEMA(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.Observe(0.8, now)
	tr.Observe(0.0, now.Add(10*time.Second))
	// (1-0.25)*0.8 + 0.25*0.0 = 0.6
	score := tr.Current()
	if score == nil || *score < 0.59 || *score > 0.61 {
		t.Errorf("expected ~0.6 after EMA, got %v", score)
	}
}

func TestObserveDebouncesRapidObservations(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.Observe(0.8, now)
	if tr.Observe(0.1, now.Add(time.Second)) {
		t.Error("observation within the debounce interval should be dropped")
	}
	if score := tr.Current(); score == nil || *score != 0.8 {
		t.Errorf("score should be unchanged, got %v", score)
	}
}
