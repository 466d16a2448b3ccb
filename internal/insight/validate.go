// Package insight delivers conversation-ready insights into live sessions.
//
// This file implements the typed per-element parser applied to the external
// conversation-queue document. Malformed records are discarded silently;
// only transport-level problems surface as logs.
package insight

import (
	"encoding/json"
	"log/slog"

	"github.com/BTreeMap/NudgePipe/internal/models"
)

// rawInsight mirrors one externally-sourced queue element. Required fields
// are pointers so absence is distinguishable from zero values.
type rawInsight struct {
	InsightID         *string  `json:"insightId"`
	Summary           *string  `json:"summary"`
	Confidence        *float64 `json:"confidence"`
	FullContext       string   `json:"fullContext"`
	EmotionalTone     string   `json:"emotionalTone"`
	RelatedEntryIDs   []string `json:"relatedEntryIds"`
	SuggestedTiming   string   `json:"suggestedTiming"`
	MoodGateThreshold float64  `json:"moodGateThreshold"`
}

// parseInsight validates one raw queue element. The minimal shape is
// insightId: string, summary: string, confidence: number; anything less is
// discarded. Unknown tones default to reflective and unknown timings to
// natural_pause so downstream gating always sees a closed set.
func parseInsight(raw json.RawMessage) (models.ConversationReadyInsight, bool) {
	var r rawInsight
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.ConversationReadyInsight{}, false
	}
	if r.InsightID == nil || *r.InsightID == "" || r.Summary == nil || *r.Summary == "" || r.Confidence == nil {
		return models.ConversationReadyInsight{}, false
	}

	tone := models.EmotionalTone(r.EmotionalTone)
	if !models.IsValidEmotionalTone(tone) {
		tone = models.ToneReflective
	}
	timing := models.DeliveryTiming(r.SuggestedTiming)
	if !models.IsValidDeliveryTiming(timing) {
		timing = models.TimingNaturalPause
	}

	return models.ConversationReadyInsight{
		InsightID:         *r.InsightID,
		Summary:           *r.Summary,
		FullContext:       r.FullContext,
		Confidence:        *r.Confidence,
		EmotionalTone:     tone,
		RelatedEntryIDs:   r.RelatedEntryIDs,
		SuggestedTiming:   timing,
		MoodGateThreshold: r.MoodGateThreshold,
	}, true
}

// parseQueue extracts the well-formed insights from a raw conversation-queue
// document, preserving source order (insertion order is priority order for
// display; the list is not re-sorted by confidence). A document without a
// well-formed insights array yields an empty list.
func parseQueue(doc json.RawMessage) []models.ConversationReadyInsight {
	var envelope struct {
		Insights json.RawMessage `json:"insights"`
	}
	if err := json.Unmarshal(doc, &envelope); err != nil {
		slog.Debug("insight parseQueue: malformed queue document", "error", err)
		return nil
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(envelope.Insights, &elements); err != nil {
		slog.Debug("insight parseQueue: insights field is not an array", "error", err)
		return nil
	}

	insights := make([]models.ConversationReadyInsight, 0, len(elements))
	for _, element := range elements {
		parsed, ok := parseInsight(element)
		if !ok {
			continue
		}
		insights = append(insights, parsed)
	}
	return insights
}
