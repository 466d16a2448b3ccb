package insight

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BTreeMap/NudgePipe/internal/models"
)

func TestStartSessionHandsOutDistinctInjectors(t *testing.T) {
	st := &fakeQueueStore{queue: json.RawMessage(twoInsightQueue), exists: true}
	m := NewManager(st)

	a := m.StartSession(context.Background(), "u-1")
	b := m.StartSession(context.Background(), "u-1")
	if a.SessionID() == b.SessionID() {
		t.Fatal("sessions must get distinct ids")
	}
	if m.ActiveSessions() != 2 {
		t.Errorf("expected 2 active sessions, got %d", m.ActiveSessions())
	}
	if got, ok := m.Get(a.SessionID()); !ok || got != a {
		t.Error("Get must return the registered injector")
	}
	if len(a.Insights()) != 2 {
		t.Errorf("session should be initialized on start, got %d insights", len(a.Insights()))
	}
}

func TestEndSessionFlushesAndRemoves(t *testing.T) {
	st := &fakeQueueStore{queue: json.RawMessage(twoInsightQueue), exists: true}
	m := NewManager(st)

	inj := m.StartSession(context.Background(), "u-1")
	inj.MarkSurfaced("i1", models.TimingNaturalPause, nil)

	if !m.EndSession(context.Background(), inj.SessionID()) {
		t.Fatal("EndSession should succeed for a live session")
	}
	if len(st.batches) != 1 {
		t.Errorf("expected one flush batch on session end, got %d", len(st.batches))
	}
	if _, ok := m.Get(inj.SessionID()); ok {
		t.Error("ended session must be removed from the registry")
	}
	if m.EndSession(context.Background(), inj.SessionID()) {
		t.Error("ending an unknown session must return false")
	}
	if !inj.Closed() {
		t.Error("ended session's injector must be closed")
	}
}

func TestSweepIdleFlushesAbandonedSessions(t *testing.T) {
	st := &fakeQueueStore{queue: json.RawMessage(twoInsightQueue), exists: true}
	m := NewManager(st)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }

	stale := m.StartSession(context.Background(), "u-1")
	stale.MarkSurfaced("i1", models.TimingNaturalPause, nil)

	// A second session stays active past the idle cutoff.
	now = base.Add(25 * time.Minute)
	active := m.StartSession(context.Background(), "u-2")

	now = base.Add(40 * time.Minute)
	swept := m.SweepIdle(context.Background(), 30*time.Minute)
	if swept != 1 {
		t.Fatalf("expected 1 swept session, got %d", swept)
	}
	if _, ok := m.Get(stale.SessionID()); ok {
		t.Error("stale session must be removed")
	}
	if _, ok := m.Get(active.SessionID()); !ok {
		t.Error("active session must survive the sweep")
	}
	if len(st.batches) != 1 {
		t.Errorf("sweep must flush the stale session's engagement, got %d batches", len(st.batches))
	}
}
