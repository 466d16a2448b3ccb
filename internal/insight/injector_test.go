package insight

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/NudgePipe/internal/models"
)

// fakeQueueStore counts store operations so tests can assert on exactly how
// many batch commits happened.
type fakeQueueStore struct {
	queue    json.RawMessage
	exists   bool
	getErr   error
	batchErr error
	batches  [][]models.InsightEngagementRecord
}

func (f *fakeQueueStore) GetInsightQueue(userID string) (json.RawMessage, bool, error) {
	return f.queue, f.exists, f.getErr
}

func (f *fakeQueueStore) SaveEngagementBatch(records []models.InsightEngagementRecord) error {
	if f.batchErr != nil {
		return f.batchErr
	}
	saved := make([]models.InsightEngagementRecord, len(records))
	copy(saved, records)
	f.batches = append(f.batches, saved)
	return nil
}

const twoInsightQueue = `{"insights":[
	{"insightId":"i1","summary":"Walks lift your mood","confidence":0.8,"emotionalTone":"encouraging","moodGateThreshold":0.3},
	{"insightId":"i2","summary":"Deadlines drain you","confidence":0.9,"emotionalTone":"challenging","moodGateThreshold":0.7}
]}`

func newLoadedInjector(t *testing.T, st *fakeQueueStore) *Injector {
	t.Helper()
	inj := NewInjector(st, "u-1", "sess-1")
	inj.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	inj.Initialize(context.Background())
	return inj
}

func floatPtr(v float64) *float64 { return &v }

func TestBuildSystemPromptEmptyBeforeInitialize(t *testing.T) {
	inj := NewInjector(&fakeQueueStore{}, "u-1", "sess-1")
	if got := inj.BuildSystemPrompt(); got != "" {
		t.Errorf("expected empty prompt before Initialize, got %q", got)
	}
}

func TestInitializeAbsentDocument(t *testing.T) {
	inj := newLoadedInjector(t, &fakeQueueStore{exists: false})
	if len(inj.Insights()) != 0 {
		t.Error("expected no insights for absent document")
	}
	if inj.BuildSystemPrompt() != "" {
		t.Error("expected empty prompt with no insights")
	}
}

func TestInitializeStoreError(t *testing.T) {
	inj := newLoadedInjector(t, &fakeQueueStore{getErr: errors.New("store unreachable")})
	if len(inj.Insights()) != 0 {
		t.Error("expected store error to degrade to empty list")
	}
}

func TestInitializeMalformedInsightsField(t *testing.T) {
	st := &fakeQueueStore{queue: json.RawMessage(`{"insights":"not an array"}`), exists: true}
	inj := newLoadedInjector(t, st)
	if len(inj.Insights()) != 0 {
		t.Error("expected malformed insights field to degrade to empty list")
	}
}

func TestBuildSystemPromptEnumeratesInsights(t *testing.T) {
	st := &fakeQueueStore{queue: json.RawMessage(twoInsightQueue), exists: true}
	inj := newLoadedInjector(t, st)

	prompt := inj.BuildSystemPrompt()
	if !strings.Contains(prompt, "AT MOST 1-2") {
		t.Error("prompt must cap surfacing at 1-2")
	}
	if !strings.Contains(prompt, "1. [encouraging] Walks lift your mood") ||
		!strings.Contains(prompt, "2. [challenging] Deadlines drain you") {
		t.Errorf("prompt must enumerate insights 1-indexed:\n%s", prompt)
	}
	if !strings.Contains(prompt, "mood is low") {
		t.Error("prompt must include the low-mood rule")
	}
	if !strings.Contains(prompt, "never repeat") {
		t.Error("prompt must include the never-repeat-after-deflection rule")
	}
	// Deterministic: identical state, identical text.
	if inj.BuildSystemPrompt() != prompt {
		t.Error("prompt must be deterministic")
	}
}

func TestCanSurfaceInsightCap(t *testing.T) {
	st := &fakeQueueStore{queue: json.RawMessage(twoInsightQueue), exists: true}
	inj := newLoadedInjector(t, st)

	if !inj.CanSurfaceInsight() {
		t.Fatal("fresh session should allow surfacing")
	}
	inj.MarkSurfaced("i1", models.TimingNaturalPause, floatPtr(0.6))
	if !inj.CanSurfaceInsight() {
		t.Error("one surfaced insight should still allow a second")
	}
	inj.MarkSurfaced("i2", models.TimingSessionEnd, nil)
	if inj.CanSurfaceInsight() {
		t.Error("two surfaced insights must exhaust the cap")
	}
	// A third call is a caller-contract violation but must not panic.
	inj.MarkSurfaced("i1", models.TimingNaturalPause, nil)
	if inj.CanSurfaceInsight() {
		t.Error("cap must stay exhausted")
	}
}

func TestCheckMoodGateNilScore(t *testing.T) {
	encouraging := models.ConversationReadyInsight{EmotionalTone: models.ToneEncouraging, MoodGateThreshold: 0.99}
	reflective := models.ConversationReadyInsight{EmotionalTone: models.ToneReflective, MoodGateThreshold: 0.99}
	challenging := models.ConversationReadyInsight{EmotionalTone: models.ToneChallenging, MoodGateThreshold: 0.01}

	if !CheckMoodGate(encouraging, nil) {
		t.Error("encouraging insight should pass with no mood data regardless of threshold")
	}
	if !CheckMoodGate(reflective, nil) {
		t.Error("reflective insight should pass with no mood data")
	}
	if CheckMoodGate(challenging, nil) {
		t.Error("challenging insight must be held back with no mood data regardless of threshold")
	}
}

func TestCheckMoodGateWithScore(t *testing.T) {
	ins := models.ConversationReadyInsight{EmotionalTone: models.ToneChallenging, MoodGateThreshold: 0.7}
	if CheckMoodGate(ins, floatPtr(0.5)) {
		t.Error("score below threshold must gate")
	}
	if !CheckMoodGate(ins, floatPtr(0.7)) {
		t.Error("score at threshold must pass")
	}
}

func TestGateForUsesTrackedMood(t *testing.T) {
	st := &fakeQueueStore{queue: json.RawMessage(twoInsightQueue), exists: true}
	inj := newLoadedInjector(t, st)

	// No observations: challenging i2 is held back.
	_, moodGate, known := inj.GateFor("i2", nil)
	if !known || moodGate {
		t.Errorf("expected known challenging insight gated without mood data (known=%v gate=%v)", known, moodGate)
	}

	// A good observed mood opens the gate.
	inj.Mood().Observe(0.9, time.Now())
	if _, moodGate, _ := inj.GateFor("i2", nil); !moodGate {
		t.Error("expected tracked mood above threshold to pass")
	}

	// An explicit score overrides the tracker.
	if _, moodGate, _ := inj.GateFor("i2", floatPtr(0.1)); moodGate {
		t.Error("expected explicit low score to gate")
	}

	if _, _, known := inj.GateFor("nope", nil); known {
		t.Error("unknown insight id must report known=false")
	}
}

func TestMarkSurfacedOpensDeferredRecord(t *testing.T) {
	st := &fakeQueueStore{queue: json.RawMessage(twoInsightQueue), exists: true}
	inj := newLoadedInjector(t, st)

	inj.MarkSurfaced("i1", models.TimingSessionStart, floatPtr(0.55))
	rec, ok := inj.engagement["i1"]
	if !ok {
		t.Fatal("expected engagement record after MarkSurfaced")
	}
	if rec.UserResponse != models.InsightDeferred || rec.ExplorationDepth != 0 {
		t.Errorf("new record must start deferred at depth 0: %+v", rec)
	}
	if rec.MoodBefore == nil || *rec.MoodBefore != 0.55 || rec.MoodAfter != nil {
		t.Errorf("mood fields wrong on fresh record: %+v", rec)
	}
	if rec.SessionID != "sess-1" || rec.DeliveryTiming != models.TimingSessionStart {
		t.Errorf("record identity wrong: %+v", rec)
	}
}

func TestMarkExploredAndDismissedMutateInPlace(t *testing.T) {
	st := &fakeQueueStore{queue: json.RawMessage(twoInsightQueue), exists: true}
	inj := newLoadedInjector(t, st)

	inj.MarkSurfaced("i1", models.TimingNaturalPause, nil)
	inj.MarkExplored("i1", 3)
	if rec := inj.engagement["i1"]; rec.UserResponse != models.InsightExplored || rec.ExplorationDepth != 3 {
		t.Errorf("explore did not mutate record: %+v", rec)
	}

	inj.MarkSurfaced("i2", models.TimingNaturalPause, nil)
	inj.MarkDismissed("i2")
	if rec := inj.engagement["i2"]; rec.UserResponse != models.InsightDismissed {
		t.Errorf("dismiss did not mutate record: %+v", rec)
	}
	if !inj.dismissed["i2"] {
		t.Error("dismissed id must land in the dismissed set")
	}
}

func TestMarkWithoutSurfacedIsNoOp(t *testing.T) {
	st := &fakeQueueStore{queue: json.RawMessage(twoInsightQueue), exists: true}
	inj := newLoadedInjector(t, st)

	inj.MarkExplored("i1", 2)
	inj.MarkDismissed("i1")
	if len(inj.engagement) != 0 {
		t.Error("marks without a prior surfaced call must not create records")
	}
}

func TestFlushEngagementIdempotentAfterSuccess(t *testing.T) {
	st := &fakeQueueStore{queue: json.RawMessage(twoInsightQueue), exists: true}
	inj := newLoadedInjector(t, st)

	inj.MarkSurfaced("i1", models.TimingNaturalPause, nil)
	if !inj.FlushEngagement(context.Background()) {
		t.Fatal("flush should succeed")
	}
	if !inj.FlushEngagement(context.Background()) {
		t.Fatal("second flush should be a successful no-op")
	}
	if len(st.batches) != 1 {
		t.Errorf("expected exactly one batch commit, got %d", len(st.batches))
	}
	if len(st.batches[0]) != 1 || st.batches[0][0].InsightID != "i1" {
		t.Errorf("unexpected batch contents: %+v", st.batches[0])
	}
}

func TestFlushEngagementNoOpWithNothingPending(t *testing.T) {
	st := &fakeQueueStore{exists: false}
	inj := newLoadedInjector(t, st)
	if !inj.FlushEngagement(context.Background()) {
		t.Error("flush with nothing pending should report success")
	}
	if len(st.batches) != 0 {
		t.Error("flush with nothing pending must perform zero store operations")
	}
}

func TestFlushEngagementRetainsRecordsOnFailure(t *testing.T) {
	st := &fakeQueueStore{queue: json.RawMessage(twoInsightQueue), exists: true}
	inj := newLoadedInjector(t, st)

	inj.MarkSurfaced("i1", models.TimingNaturalPause, nil)
	st.batchErr = errors.New("store unreachable")
	if inj.FlushEngagement(context.Background()) {
		t.Fatal("flush should report failure")
	}
	if len(inj.engagement) != 1 {
		t.Error("records must be kept for retry after a failed flush")
	}

	// Retry re-sends the same keyed records; success clears the map.
	st.batchErr = nil
	if !inj.FlushEngagement(context.Background()) {
		t.Fatal("retry flush should succeed")
	}
	if len(inj.engagement) != 0 {
		t.Error("records must be cleared after a successful flush")
	}
	if len(st.batches) != 1 {
		t.Errorf("expected one committed batch, got %d", len(st.batches))
	}
}

func TestClosedInjectorIgnoresCalls(t *testing.T) {
	st := &fakeQueueStore{queue: json.RawMessage(twoInsightQueue), exists: true}
	inj := newLoadedInjector(t, st)

	inj.Close(context.Background())
	if !inj.Closed() {
		t.Fatal("expected closed state")
	}
	inj.MarkSurfaced("i1", models.TimingNaturalPause, nil)
	if len(inj.engagement) != 0 {
		t.Error("MarkSurfaced after Close must be a no-op")
	}
	inj.Initialize(context.Background())
	if inj.CanSurfaceInsight() != true {
		t.Error("closed injector state must be inert, not corrupted")
	}
}
