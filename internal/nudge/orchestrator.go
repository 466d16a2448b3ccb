// Package nudge implements priority arbitration and rate limiting over
// candidate nudges produced by independent detectors.
//
// Each orchestration call receives at most one candidate per detector
// source, classifies each into a nudge kind, and selects the single
// highest-priority candidate whose kind is off cooldown. The decision is
// deterministic: fixed source precedence, then priority, then the explicit
// cooldown comparison. Repeated calls with identical inputs and identical
// history state produce the identical decision.
package nudge

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/NudgePipe/internal/models"
)

// HistoryStore is the persistence contract the orchestrator consumes.
// store.Store satisfies it.
type HistoryStore interface {
	GetNudgeHistory(userID string) (map[models.NudgeKind]time.Time, error)
	RecordNudgeShown(userID string, kind models.NudgeKind, shownAt time.Time) error
	ResetNudgeHistory(userID string) error
	GetNudgeResponses(userID string) ([]models.NudgeResponse, error)
	SaveNudgeResponses(userID string, responses []models.NudgeResponse) error
}

// Orchestrator arbitrates candidate nudges per user. Calls for the same
// user are serialized with a per-user mutex so the read-then-write on the
// history document cannot lose updates under concurrent evaluation.
type Orchestrator struct {
	store HistoryStore
	now   func() time.Time

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewOrchestrator creates an orchestrator backed by the given store.
func NewOrchestrator(st HistoryStore) *Orchestrator {
	slog.Debug("Creating Orchestrator")
	return &Orchestrator{
		store:     st,
		now:       time.Now,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// lockUser returns the mutex serializing operations for one user.
func (o *Orchestrator) lockUser(userID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		o.userLocks[userID] = lock
	}
	return lock
}

// classified is one candidate after source-specific classification.
type classified struct {
	Kind     models.NudgeKind
	Source   models.NudgeSource
	Priority int
	Payload  []byte
}

// anticipatoryImminentHours is the hours-until-event threshold below which
// an anticipatory candidate classifies as imminent.
const anticipatoryImminentHours = 4

// classify maps each present candidate to exactly one nudge kind, in the
// fixed source order: burnout, anticipatory, social, value, gap, reflection.
func classify(candidates models.CandidateSet) []classified {
	var out []classified
	add := func(kind models.NudgeKind, source models.NudgeSource, payload []byte) {
		attrs, ok := models.AttributesFor(kind)
		if !ok {
			slog.Error("Orchestrator classify: unregistered nudge kind", "kind", kind)
			return
		}
		out = append(out, classified{Kind: kind, Source: source, Priority: attrs.Priority, Payload: payload})
	}

	if c := candidates.Burnout; c != nil {
		kind := models.NudgeBurnoutHigh
		if c.RiskLevel == "critical" {
			kind = models.NudgeBurnoutCritical
		}
		add(kind, models.SourceBurnout, c.Payload)
	}
	if c := candidates.Anticipatory; c != nil {
		kind := models.NudgeAnticipatoryToday
		if c.HoursUntilEvent < anticipatoryImminentHours {
			kind = models.NudgeAnticipatoryImminent
		}
		add(kind, models.SourceAnticipatory, c.Payload)
	}
	if c := candidates.Social; c != nil {
		kind := models.NudgeSocialIsolationModerate
		if c.Type == "isolation_alert" || c.Priority == "high" {
			kind = models.NudgeSocialIsolationHigh
		}
		add(kind, models.SourceSocial, c.Payload)
	}
	if c := candidates.ValueGap; c != nil {
		add(models.NudgeValueCheck, models.SourceValueGap, c.Payload)
	}
	if c := candidates.GapPrompt; c != nil {
		add(models.NudgeGapPrompt, models.SourceGapPrompt, c.Payload)
	}
	if c := candidates.Reflection; c != nil {
		add(models.NudgeEventReflection, models.SourceReflection, c.Payload)
	}
	return out
}

// passesRateLimit reports whether a candidate kind may be shown given the
// user's history. Critical-priority kinds always bypass the cooldown; a kind
// never shown passes; otherwise elapsed time must meet the kind's cooldown.
func passesRateLimit(kind models.NudgeKind, priority int, history map[models.NudgeKind]time.Time, now time.Time) bool {
	if priority >= models.CriticalPriorityThreshold {
		return true
	}
	lastShown, ok := history[kind]
	if !ok {
		return true
	}
	attrs, _ := models.AttributesFor(kind)
	return now.Sub(lastShown) >= attrs.Cooldown
}

// Orchestrate selects at most one nudge from the candidate set for userID.
// It returns nil when no candidate passes the rate-limit check (no side
// effects in that case). On selection, the kind's timestamp is recorded
// best-effort: a failed history write is logged and the decision stands.
func (o *Orchestrator) Orchestrate(ctx context.Context, userID string, candidates models.CandidateSet) *models.SelectedNudge {
	lock := o.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	slog.Debug("Orchestrator Orchestrate", "userID", userID)

	ranked := classify(candidates)
	if len(ranked) == 0 {
		slog.Debug("Orchestrator Orchestrate: no candidates", "userID", userID)
		return nil
	}

	// Stable sort keeps the fixed source order for priority ties.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority > ranked[j].Priority
	})

	// A failed history read degrades to "no history": rate limiting then
	// behaves as if nothing was ever shown, favoring showing nudges over
	// silently starving the user.
	history, err := o.store.GetNudgeHistory(userID)
	if err != nil {
		slog.Error("Orchestrator Orchestrate: history read failed, treating as empty", "error", err, "userID", userID)
		history = map[models.NudgeKind]time.Time{}
	}

	now := o.now()
	for _, cand := range ranked {
		if !passesRateLimit(cand.Kind, cand.Priority, history, now) {
			slog.Debug("Orchestrator Orchestrate: candidate on cooldown", "userID", userID, "kind", cand.Kind)
			continue
		}

		if err := o.store.RecordNudgeShown(userID, cand.Kind, now); err != nil {
			slog.Error("Orchestrator Orchestrate: history write failed, decision stands", "error", err, "userID", userID, "kind", cand.Kind)
		}

		selected := &models.SelectedNudge{
			Kind:       cand.Kind,
			Priority:   cand.Priority,
			Source:     cand.Source,
			Suppressed: len(ranked) - 1,
			Payload:    cand.Payload,
		}
		slog.Info("Orchestrator Orchestrate: nudge selected", "userID", userID, "kind", cand.Kind, "suppressed", selected.Suppressed)
		return selected
	}

	slog.Debug("Orchestrator Orchestrate: all candidates rate-limited", "userID", userID, "count", len(ranked))
	return nil
}

// RecordResponse appends one entry to the user's response log, truncating
// to the most recent MaxNudgeResponseLog entries before the write.
// Best-effort: failures are logged and reported as false, never raised.
func (o *Orchestrator) RecordResponse(ctx context.Context, userID string, kind models.NudgeKind, response models.NudgeResponseType) bool {
	lock := o.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	slog.Debug("Orchestrator RecordResponse", "userID", userID, "kind", kind, "response", response)

	responses, err := o.store.GetNudgeResponses(userID)
	if err != nil {
		slog.Error("Orchestrator RecordResponse: read failed, starting fresh log", "error", err, "userID", userID)
		responses = nil
	}

	responses = append(responses, models.NudgeResponse{
		Kind:      kind,
		Response:  response,
		Timestamp: o.now(),
	})
	if len(responses) > models.MaxNudgeResponseLog {
		responses = responses[len(responses)-models.MaxNudgeResponseLog:]
	}

	if err := o.store.SaveNudgeResponses(userID, responses); err != nil {
		slog.Error("Orchestrator RecordResponse: write failed", "error", err, "userID", userID, "kind", kind)
		return false
	}
	return true
}

// ResetCooldowns overwrites the user's nudge history with an empty mapping.
// Idempotent and best-effort.
func (o *Orchestrator) ResetCooldowns(ctx context.Context, userID string) bool {
	lock := o.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	slog.Debug("Orchestrator ResetCooldowns", "userID", userID)
	if err := o.store.ResetNudgeHistory(userID); err != nil {
		slog.Error("Orchestrator ResetCooldowns: reset failed", "error", err, "userID", userID)
		return false
	}
	slog.Info("Orchestrator ResetCooldowns succeeded", "userID", userID)
	return true
}
