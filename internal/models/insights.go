// Package models defines insight delivery and engagement telemetry types.
package models

import (
	"fmt"
	"time"
)

// EmotionalTone characterizes how an insight lands emotionally.
type EmotionalTone string

const (
	// ToneEncouraging insights affirm something going well.
	ToneEncouraging EmotionalTone = "encouraging"
	// ToneReflective insights invite neutral self-observation.
	ToneReflective EmotionalTone = "reflective"
	// ToneChallenging insights confront an uncomfortable pattern.
	ToneChallenging EmotionalTone = "challenging"
)

// IsValidEmotionalTone checks if the given tone is supported.
func IsValidEmotionalTone(t EmotionalTone) bool {
	switch t {
	case ToneEncouraging, ToneReflective, ToneChallenging:
		return true
	default:
		return false
	}
}

// DeliveryTiming suggests when in a session an insight should surface.
type DeliveryTiming string

const (
	TimingSessionStart DeliveryTiming = "session_start"
	TimingNaturalPause DeliveryTiming = "natural_pause"
	TimingSessionEnd   DeliveryTiming = "session_end"
)

// IsValidDeliveryTiming checks if the given timing is supported.
func IsValidDeliveryTiming(dt DeliveryTiming) bool {
	switch dt {
	case TimingSessionStart, TimingNaturalPause, TimingSessionEnd:
		return true
	default:
		return false
	}
}

// ConversationReadyInsight is a precomputed observation about the user,
// queued for potential surfacing during a live session. Produced by an
// external precomputation stage; read-only here.
type ConversationReadyInsight struct {
	InsightID         string         `json:"insightId"`
	Summary           string         `json:"summary"`
	FullContext       string         `json:"fullContext,omitempty"`
	Confidence        float64        `json:"confidence"`
	EmotionalTone     EmotionalTone  `json:"emotionalTone,omitempty"`
	RelatedEntryIDs   []string       `json:"relatedEntryIds,omitempty"`
	SuggestedTiming   DeliveryTiming `json:"suggestedTiming,omitempty"`
	MoodGateThreshold float64        `json:"moodGateThreshold,omitempty"`
}

// InsightUserResponse enumerates the outcome of one insight delivery attempt.
type InsightUserResponse string

const (
	InsightExplored  InsightUserResponse = "explored"
	InsightDismissed InsightUserResponse = "dismissed"
	InsightDeferred  InsightUserResponse = "deferred"
)

// MaxInsightsPerSession is the hard cap on insights surfaced in one session.
const MaxInsightsPerSession = 2

// InsightEngagementRecord is the persisted outcome of one insight's delivery
// attempt in one session. Created when the insight is marked surfaced and
// mutated in place until the session flush.
type InsightEngagementRecord struct {
	InsightID        string              `json:"insight_id"`
	SessionID        string              `json:"session_id"`
	DeliveryTiming   DeliveryTiming      `json:"delivery_timing"`
	UserResponse     InsightUserResponse `json:"user_response"`
	ExplorationDepth int                 `json:"exploration_depth"`
	MoodBefore       *float64            `json:"mood_before"`
	MoodAfter        *float64            `json:"mood_after"`
	Timestamp        time.Time           `json:"timestamp"`
}

// EngagementKey returns the persistence key for this record. Writes are
// keyed and overwrite, which makes retrying a failed batch flush safe.
func (r InsightEngagementRecord) EngagementKey() string {
	return fmt.Sprintf("%s_%s", r.InsightID, r.SessionID)
}
