// Package insight delivers conversation-ready insights into live sessions.
//
// An Injector is session-scoped: one instance per conversation session,
// constructed at session start and discarded at session end. It loads the
// user's precomputed insight queue, bounds how many insights the external
// conversational agent may surface, applies mood-based gating, and collects
// engagement outcomes for a batched write-back at session end.
package insight

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/NudgePipe/internal/models"
	"github.com/BTreeMap/NudgePipe/internal/mood"
)

// QueueStore is the persistence contract the injector consumes.
// store.Store satisfies it.
type QueueStore interface {
	GetInsightQueue(userID string) (json.RawMessage, bool, error)
	SaveEngagementBatch(records []models.InsightEngagementRecord) error
}

// Injector holds the per-session insight delivery state. All methods are
// safe no-ops after Close; nothing here ever panics or returns an error to
// the caller.
type Injector struct {
	userID    string
	sessionID string
	store     QueueStore
	mood      *mood.Tracker
	now       func() time.Time

	mu            sync.Mutex
	initialized   bool
	closed        bool
	insights      []models.ConversationReadyInsight
	engagement    map[string]*models.InsightEngagementRecord
	dismissed     map[string]bool
	surfacedCount int
	lastActivity  time.Time
}

// NewInjector constructs an injector for one session. Callers are expected
// to call Initialize before consulting the prompt or the gates.
func NewInjector(st QueueStore, userID, sessionID string) *Injector {
	return &Injector{
		userID:     userID,
		sessionID:  sessionID,
		store:      st,
		mood:       mood.NewTracker(),
		now:        time.Now,
		engagement: make(map[string]*models.InsightEngagementRecord),
		dismissed:  make(map[string]bool),
	}
}

// UserID returns the owning user.
func (inj *Injector) UserID() string { return inj.userID }

// SessionID returns the owning session.
func (inj *Injector) SessionID() string { return inj.sessionID }

// Mood returns the session's mood tracker.
func (inj *Injector) Mood() *mood.Tracker { return inj.mood }

// LastActivity returns when the injector was last touched by a caller.
func (inj *Injector) LastActivity() time.Time {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	return inj.lastActivity
}

// touch must be called with the lock held.
func (inj *Injector) touch() {
	inj.lastActivity = inj.now()
}

// Initialize fetches the user's precomputed conversation-queue document and
// loads the well-formed insights. All three failure shapes (document absent,
// malformed insights field, persistence error) degrade to an empty list
// without raising.
func (inj *Injector) Initialize(ctx context.Context) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.touch()
	if inj.closed {
		slog.Warn("Injector Initialize called on closed session", "sessionID", inj.sessionID)
		return
	}
	inj.initialized = true

	doc, exists, err := inj.store.GetInsightQueue(inj.userID)
	if err != nil {
		slog.Error("Injector Initialize: queue read failed, continuing with no insights", "error", err, "userID", inj.userID, "sessionID", inj.sessionID)
		inj.insights = nil
		return
	}
	if !exists {
		slog.Debug("Injector Initialize: no queue document", "userID", inj.userID, "sessionID", inj.sessionID)
		inj.insights = nil
		return
	}

	inj.insights = parseQueue(doc)
	slog.Debug("Injector Initialize: queue loaded", "userID", inj.userID, "sessionID", inj.sessionID, "insights", len(inj.insights))
}

// Insights returns the loaded insight list in source order.
func (inj *Injector) Insights() []models.ConversationReadyInsight {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	out := make([]models.ConversationReadyInsight, len(inj.insights))
	copy(out, inj.insights)
	return out
}

// InsightByID finds a loaded insight by id.
func (inj *Injector) InsightByID(insightID string) (models.ConversationReadyInsight, bool) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	for _, ins := range inj.insights {
		if ins.InsightID == insightID {
			return ins, true
		}
	}
	return models.ConversationReadyInsight{}, false
}

// CanSurfaceInsight reports whether the session is still under the hard
// per-session delivery cap.
func (inj *Injector) CanSurfaceInsight() bool {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	return inj.surfacedCount < models.MaxInsightsPerSession
}

// CheckMoodGate decides whether an insight may surface given the current
// mood score. With no score available, encouraging and reflective insights
// get the benefit of the doubt while challenging ones are held back. With a
// score, the gate is a plain threshold comparison.
func CheckMoodGate(ins models.ConversationReadyInsight, currentMoodScore *float64) bool {
	if currentMoodScore == nil {
		return ins.EmotionalTone != models.ToneChallenging
	}
	return *currentMoodScore >= ins.MoodGateThreshold
}

// GateFor evaluates both gates for one loaded insight. When the caller
// passes no explicit mood score, the session's tracked mood is consulted;
// a session with no observations behaves as "mood unavailable". The last
// return is false when the insight id is not in the loaded queue.
func (inj *Injector) GateFor(insightID string, explicitMood *float64) (canSurface, moodGate, known bool) {
	ins, ok := inj.InsightByID(insightID)
	if !ok {
		return false, false, false
	}
	score := explicitMood
	if score == nil {
		score = inj.mood.Current()
	}
	return inj.CanSurfaceInsight(), CheckMoodGate(ins, score), true
}

// MarkSurfaced records that the agent surfaced an insight: it increments
// the surfaced count and opens an engagement record with a deferred
// response. The method itself does not enforce the session cap; checking
// CanSurfaceInsight first is the caller's contract.
func (inj *Injector) MarkSurfaced(insightID string, timing models.DeliveryTiming, moodScore *float64) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.touch()
	if inj.closed {
		slog.Warn("Injector MarkSurfaced called on closed session", "sessionID", inj.sessionID, "insightID", insightID)
		return
	}

	inj.surfacedCount++
	inj.engagement[insightID] = &models.InsightEngagementRecord{
		InsightID:        insightID,
		SessionID:        inj.sessionID,
		DeliveryTiming:   timing,
		UserResponse:     models.InsightDeferred,
		ExplorationDepth: 0,
		MoodBefore:       moodScore,
		MoodAfter:        nil,
		Timestamp:        inj.now(),
	}
	slog.Debug("Injector MarkSurfaced", "sessionID", inj.sessionID, "insightID", insightID, "timing", timing, "surfaced", inj.surfacedCount)
}

// MarkExplored records that the user engaged with a surfaced insight.
// No-op when the insight was never marked surfaced.
func (inj *Injector) MarkExplored(insightID string, explorationDepth int) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.touch()
	if inj.closed {
		return
	}
	rec, ok := inj.engagement[insightID]
	if !ok {
		slog.Debug("Injector MarkExplored: no engagement record, ignoring", "sessionID", inj.sessionID, "insightID", insightID)
		return
	}
	rec.UserResponse = models.InsightExplored
	rec.ExplorationDepth = explorationDepth
	rec.MoodAfter = inj.mood.Current()
}

// MarkDismissed records that the user deflected a surfaced insight. The id
// also lands in the dismissed set so it is never re-surfaced this session.
// No-op when the insight was never marked surfaced.
func (inj *Injector) MarkDismissed(insightID string) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.touch()
	if inj.closed {
		return
	}
	rec, ok := inj.engagement[insightID]
	if !ok {
		slog.Debug("Injector MarkDismissed: no engagement record, ignoring", "sessionID", inj.sessionID, "insightID", insightID)
		return
	}
	rec.UserResponse = models.InsightDismissed
	rec.MoodAfter = inj.mood.Current()
	inj.dismissed[insightID] = true
}

// FlushEngagement writes all pending engagement records in one batch and
// clears them on success. With nothing pending it performs zero store
// operations, which makes flushing after a successful flush idempotent. On
// failure the records are kept so a later flush can retry; the batch is
// keyed and overwrites, so re-sending the same records is safe.
func (inj *Injector) FlushEngagement(ctx context.Context) bool {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	inj.touch()
	if len(inj.engagement) == 0 {
		return true
	}

	batch := make([]models.InsightEngagementRecord, 0, len(inj.engagement))
	for _, rec := range inj.engagement {
		batch = append(batch, *rec)
	}
	if err := inj.store.SaveEngagementBatch(batch); err != nil {
		slog.Error("Injector FlushEngagement: batch write failed, keeping records for retry", "error", err, "sessionID", inj.sessionID, "pending", len(batch))
		return false
	}

	slog.Info("Injector FlushEngagement: batch committed", "sessionID", inj.sessionID, "records", len(batch))
	inj.engagement = make(map[string]*models.InsightEngagementRecord)
	return true
}

// Close flushes pending engagement and marks the injector single-use
// closed. Subsequent mutating calls are safe no-ops. Returns the flush
// outcome.
func (inj *Injector) Close(ctx context.Context) bool {
	flushed := inj.FlushEngagement(ctx)
	inj.mu.Lock()
	inj.closed = true
	inj.mu.Unlock()
	slog.Debug("Injector closed", "sessionID", inj.sessionID, "flushed", flushed)
	return flushed
}

// Closed reports whether the session has been closed.
func (inj *Injector) Closed() bool {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	return inj.closed
}
