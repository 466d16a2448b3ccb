// Package store provides storage backends for NudgePipe.
//
// It persists four per-user document families: the nudge-history mapping
// used for cooldown checks, the capped nudge-response log, the
// conversation-ready insight queue, and per-(insight, session) engagement
// records. Backends: in-memory (tests), SQLite, and PostgreSQL.
package store

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/BTreeMap/NudgePipe/internal/models"
)

// Store defines the persistence contract consumed by the orchestrator and
// the insight injector.
type Store interface {
	// GetNudgeHistory returns the kind -> last-shown mapping for a user.
	// A user with no history returns an empty map, not an error.
	GetNudgeHistory(userID string) (map[models.NudgeKind]time.Time, error)

	// RecordNudgeShown stamps the given kind as shown at shownAt.
	RecordNudgeShown(userID string, kind models.NudgeKind, shownAt time.Time) error

	// ResetNudgeHistory clears the whole mapping for a user. Idempotent.
	ResetNudgeHistory(userID string) error

	// GetNudgeResponses returns the user's response log, oldest first.
	GetNudgeResponses(userID string) ([]models.NudgeResponse, error)

	// SaveNudgeResponses overwrites the user's response log.
	SaveNudgeResponses(userID string, responses []models.NudgeResponse) error

	// GetInsightQueue returns the raw conversation-queue document for a
	// user. The second return is false when no document exists.
	GetInsightQueue(userID string) (json.RawMessage, bool, error)

	// SaveInsightQueue stores the raw conversation-queue document
	// (producer-side integration point).
	SaveInsightQueue(userID string, queue json.RawMessage) error

	// SaveEngagementBatch upserts all records in one batch, keyed by
	// {insightId}_{sessionId}. Either every record lands or none do.
	SaveEngagementBatch(records []models.InsightEngagementRecord) error

	// GetEngagement returns the record for one (insight, session) pair,
	// or nil when none exists.
	GetEngagement(insightID, sessionID string) (*models.InsightEngagementRecord, error)

	// Close releases backend resources.
	Close() error
}

// InMemoryStore is a map-backed Store used in tests and local development.
type InMemoryStore struct {
	mu          sync.Mutex
	history     map[string]map[models.NudgeKind]time.Time
	responses   map[string][]models.NudgeResponse
	queues      map[string]json.RawMessage
	engagements map[string]models.InsightEngagementRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		history:     make(map[string]map[models.NudgeKind]time.Time),
		responses:   make(map[string][]models.NudgeResponse),
		queues:      make(map[string]json.RawMessage),
		engagements: make(map[string]models.InsightEngagementRecord),
	}
}

func (s *InMemoryStore) GetNudgeHistory(userID string) (map[models.NudgeKind]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[models.NudgeKind]time.Time, len(s.history[userID]))
	for kind, ts := range s.history[userID] {
		out[kind] = ts
	}
	return out, nil
}

func (s *InMemoryStore) RecordNudgeShown(userID string, kind models.NudgeKind, shownAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history[userID] == nil {
		s.history[userID] = make(map[models.NudgeKind]time.Time)
	}
	s.history[userID][kind] = shownAt
	return nil
}

func (s *InMemoryStore) ResetNudgeHistory(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[userID] = make(map[models.NudgeKind]time.Time)
	return nil
}

func (s *InMemoryStore) GetNudgeResponses(userID string) ([]models.NudgeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.NudgeResponse, len(s.responses[userID]))
	copy(out, s.responses[userID])
	return out, nil
}

func (s *InMemoryStore) SaveNudgeResponses(userID string, responses []models.NudgeResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := make([]models.NudgeResponse, len(responses))
	copy(saved, responses)
	s.responses[userID] = saved
	return nil
}

func (s *InMemoryStore) GetInsightQueue(userID string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, ok := s.queues[userID]
	return queue, ok, nil
}

func (s *InMemoryStore) SaveInsightQueue(userID string, queue json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[userID] = append(json.RawMessage(nil), queue...)
	return nil
}

func (s *InMemoryStore) SaveEngagementBatch(records []models.InsightEngagementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.engagements[rec.EngagementKey()] = rec
	}
	return nil
}

func (s *InMemoryStore) GetEngagement(insightID, sessionID string) (*models.InsightEngagementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.InsightEngagementRecord{InsightID: insightID, SessionID: sessionID}.EngagementKey()
	rec, ok := s.engagements[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *InMemoryStore) Close() error { return nil }
