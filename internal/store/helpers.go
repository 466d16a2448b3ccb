// Package store provides JSON document helpers shared by the SQL backends.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BTreeMap/NudgePipe/internal/models"
)

// historyToJSON serializes a nudge-history mapping to its document form
// (kind -> RFC3339 instant).
func historyToJSON(history map[models.NudgeKind]time.Time) (string, error) {
	doc := make(map[string]string, len(history))
	for kind, ts := range history {
		doc[string(kind)] = ts.UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal nudge history: %w", err)
	}
	return string(data), nil
}

// historyFromJSON parses a nudge-history document. Entries with unparsable
// timestamps are skipped rather than failing the whole read.
func historyFromJSON(raw string) (map[models.NudgeKind]time.Time, error) {
	doc := make(map[string]string)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal nudge history: %w", err)
		}
	}
	history := make(map[models.NudgeKind]time.Time, len(doc))
	for kind, stamp := range doc {
		ts, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			continue
		}
		history[models.NudgeKind(kind)] = ts
	}
	return history, nil
}

// responsesToJSON serializes the response log document.
func responsesToJSON(responses []models.NudgeResponse) (string, error) {
	if responses == nil {
		responses = []models.NudgeResponse{}
	}
	data, err := json.Marshal(responses)
	if err != nil {
		return "", fmt.Errorf("failed to marshal nudge responses: %w", err)
	}
	return string(data), nil
}

// responsesFromJSON parses the response log document.
func responsesFromJSON(raw string) ([]models.NudgeResponse, error) {
	var responses []models.NudgeResponse
	if raw == "" {
		return responses, nil
	}
	if err := json.Unmarshal([]byte(raw), &responses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nudge responses: %w", err)
	}
	return responses, nil
}
