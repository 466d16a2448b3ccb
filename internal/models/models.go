// Package models defines the core data structures for NudgePipe.
//
// It includes the nudge kind registry, candidate and decision types, and the
// response telemetry log, which are shared across modules.
package models

import (
	"encoding/json"
	"errors"
	"time"
)

// NudgeKind identifies one class of nudge competing for the user's attention slot.
type NudgeKind string

const (
	// NudgeCrisis is reserved for crisis escalation; it bypasses all cooldowns.
	NudgeCrisis NudgeKind = "CRISIS"
	// NudgeBurnoutCritical indicates a critical burnout risk signal.
	NudgeBurnoutCritical NudgeKind = "BURNOUT_CRITICAL"
	// NudgeBurnoutHigh indicates an elevated (non-critical) burnout risk signal.
	NudgeBurnoutHigh NudgeKind = "BURNOUT_HIGH"
	// NudgeAnticipatoryImminent fires when a stressor event is less than 4 hours away.
	NudgeAnticipatoryImminent NudgeKind = "ANTICIPATORY_IMMINENT"
	// NudgeAnticipatoryToday fires for a stressor event later the same day.
	NudgeAnticipatoryToday NudgeKind = "ANTICIPATORY_TODAY"
	// NudgeSocialIsolationHigh indicates a strong social-isolation signal.
	NudgeSocialIsolationHigh NudgeKind = "SOCIAL_ISOLATION_HIGH"
	// NudgeSocialIsolationModerate indicates a moderate social-isolation signal.
	NudgeSocialIsolationModerate NudgeKind = "SOCIAL_ISOLATION_MODERATE"
	// NudgeEventReflection invites reflection on a recently concluded event.
	NudgeEventReflection NudgeKind = "EVENT_REFLECTION"
	// NudgeValueCheck surfaces a value-alignment gap.
	NudgeValueCheck NudgeKind = "VALUE_CHECK"
	// NudgeGapPrompt invites journaling after a gap in entries.
	NudgeGapPrompt NudgeKind = "GAP_PROMPT"
	// NudgeSocialReconnection suggests reaching out to a contact.
	NudgeSocialReconnection NudgeKind = "SOCIAL_RECONNECTION"
	// NudgePositiveReinforcement celebrates a positive pattern.
	NudgePositiveReinforcement NudgeKind = "POSITIVE_REINFORCEMENT"
)

// NudgeAttributes holds the static arbitration attributes of a nudge kind.
type NudgeAttributes struct {
	Priority int           `json:"priority"`
	Cooldown time.Duration `json:"cooldown"`
}

// nudgeRegistry is the fixed table mapping nudge kind to base priority and
// cooldown. Priorities only establish ordering; the absolute values carry no
// meaning. Two entries are invariant: GAP_PROMPT sits strictly between
// VALUE_CHECK and ANTICIPATORY_TODAY, and the GAP_PROMPT cooldown is exactly
// 24 hours.
var nudgeRegistry = map[NudgeKind]NudgeAttributes{
	NudgeCrisis:                  {Priority: 100, Cooldown: 0},
	NudgeBurnoutCritical:         {Priority: 90, Cooldown: 4 * time.Hour},
	NudgeAnticipatoryImminent:    {Priority: 85, Cooldown: 2 * time.Hour},
	NudgeBurnoutHigh:             {Priority: 80, Cooldown: 12 * time.Hour},
	NudgeSocialIsolationHigh:     {Priority: 70, Cooldown: 24 * time.Hour},
	NudgeAnticipatoryToday:       {Priority: 60, Cooldown: 8 * time.Hour},
	NudgeGapPrompt:               {Priority: 55, Cooldown: 24 * time.Hour},
	NudgeValueCheck:              {Priority: 50, Cooldown: 48 * time.Hour},
	NudgeSocialIsolationModerate: {Priority: 45, Cooldown: 48 * time.Hour},
	NudgeEventReflection:         {Priority: 40, Cooldown: 12 * time.Hour},
	NudgeSocialReconnection:      {Priority: 35, Cooldown: 72 * time.Hour},
	NudgePositiveReinforcement:   {Priority: 30, Cooldown: 24 * time.Hour},
}

// AttributesFor returns the static attributes of a nudge kind.
func AttributesFor(kind NudgeKind) (NudgeAttributes, bool) {
	attrs, ok := nudgeRegistry[kind]
	return attrs, ok
}

// CriticalPriorityThreshold is the priority at and above which a nudge
// bypasses its cooldown entirely.
var CriticalPriorityThreshold = nudgeRegistry[NudgeBurnoutCritical].Priority

// IsValidNudgeKind checks if the given nudge kind is registered.
func IsValidNudgeKind(kind NudgeKind) bool {
	_, ok := nudgeRegistry[kind]
	return ok
}

// NudgeSource identifies which detector produced a candidate.
type NudgeSource string

const (
	SourceBurnout      NudgeSource = "burnout"
	SourceAnticipatory NudgeSource = "anticipatory"
	SourceSocial       NudgeSource = "social"
	SourceValueGap     NudgeSource = "valueGap"
	SourceGapPrompt    NudgeSource = "gapPrompt"
	SourceReflection   NudgeSource = "reflection"
)

// BurnoutCandidate is produced by the burnout-risk detector.
type BurnoutCandidate struct {
	RiskLevel string          `json:"risk_level"` // "critical" classifies as BURNOUT_CRITICAL
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// AnticipatoryCandidate is produced by the anticipatory-anxiety detector.
type AnticipatoryCandidate struct {
	HoursUntilEvent float64         `json:"hours_until_event"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// SocialCandidate is produced by the social-isolation detector.
type SocialCandidate struct {
	Type     string          `json:"type"`     // "isolation_alert" classifies high
	Priority string          `json:"priority"` // "high" classifies high
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// ValueGapCandidate is produced by the value-gap detector.
type ValueGapCandidate struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

// GapPromptCandidate is produced by the journaling-gap detector.
type GapPromptCandidate struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ReflectionCandidate is produced by the event-reflection detector.
type ReflectionCandidate struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CandidateSet is the structured bag of at most one candidate per detector
// source. Absent detectors leave their field nil.
type CandidateSet struct {
	Burnout      *BurnoutCandidate      `json:"burnout,omitempty"`
	Anticipatory *AnticipatoryCandidate `json:"anticipatory,omitempty"`
	Social       *SocialCandidate       `json:"social,omitempty"`
	ValueGap     *ValueGapCandidate     `json:"value_gap,omitempty"`
	GapPrompt    *GapPromptCandidate    `json:"gap_prompt,omitempty"`
	Reflection   *ReflectionCandidate   `json:"reflection,omitempty"`
}

// IsEmpty reports whether no detector contributed a candidate.
func (c CandidateSet) IsEmpty() bool {
	return c.Burnout == nil && c.Anticipatory == nil && c.Social == nil &&
		c.ValueGap == nil && c.GapPrompt == nil && c.Reflection == nil
}

// SelectedNudge is the winning candidate's payload augmented with the
// decision-audit block.
type SelectedNudge struct {
	Kind       NudgeKind       `json:"type"`
	Priority   int             `json:"priority"`
	Source     NudgeSource     `json:"source"`
	Suppressed int             `json:"suppressed"` // count of other candidates this call
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NudgeResponseType enumerates how a user responded to a shown nudge.
type NudgeResponseType string

const (
	ResponseDismissed NudgeResponseType = "dismissed"
	ResponseActed     NudgeResponseType = "acted"
	ResponsePostponed NudgeResponseType = "postponed"
)

// IsValidNudgeResponseType checks if the given response type is supported.
func IsValidNudgeResponseType(rt NudgeResponseType) bool {
	switch rt {
	case ResponseDismissed, ResponseActed, ResponsePostponed:
		return true
	default:
		return false
	}
}

// MaxNudgeResponseLog is the cap on the per-user response log; the oldest
// entries are dropped before each write.
const MaxNudgeResponseLog = 50

// NudgeResponse is one entry in the per-user response telemetry log.
type NudgeResponse struct {
	Kind      NudgeKind         `json:"kind"`
	Response  NudgeResponseType `json:"response"`
	Timestamp time.Time         `json:"timestamp"`
}

// Error variables for request validation at the API boundary.
var (
	ErrEmptyUserID         = errors.New("user_id cannot be empty")
	ErrInvalidNudgeKind    = errors.New("invalid nudge kind")
	ErrInvalidResponseType = errors.New("invalid response type")
)
