// Package store provides storage backends for NudgePipe.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/NudgePipe/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists NudgePipe documents in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetNudgeHistory(userID string) (map[models.NudgeKind]time.Time, error) {
	var raw string
	err := s.db.QueryRow(`SELECT history_json FROM nudge_history WHERE user_id = $1`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return map[models.NudgeKind]time.Time{}, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetNudgeHistory query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query nudge history for %s: %w", userID, err)
	}
	history, err := historyFromJSON(raw)
	if err != nil {
		slog.Error("PostgresStore GetNudgeHistory parse failed", "error", err, "userID", userID)
		return nil, err
	}
	return history, nil
}

func (s *PostgresStore) RecordNudgeShown(userID string, kind models.NudgeKind, shownAt time.Time) error {
	history, err := s.GetNudgeHistory(userID)
	if err != nil {
		return err
	}
	history[kind] = shownAt
	raw, err := historyToJSON(history)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO nudge_history (user_id, history_json, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET history_json = EXCLUDED.history_json, updated_at = NOW()`, userID, raw)
	if err != nil {
		slog.Error("PostgresStore RecordNudgeShown failed", "error", err, "userID", userID, "kind", kind)
		return fmt.Errorf("failed to record nudge shown for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore RecordNudgeShown succeeded", "userID", userID, "kind", kind)
	return nil
}

func (s *PostgresStore) ResetNudgeHistory(userID string) error {
	_, err := s.db.Exec(`INSERT INTO nudge_history (user_id, history_json, updated_at) VALUES ($1, '{}', NOW())
		ON CONFLICT (user_id) DO UPDATE SET history_json = '{}', updated_at = NOW()`, userID)
	if err != nil {
		slog.Error("PostgresStore ResetNudgeHistory failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to reset nudge history for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore ResetNudgeHistory succeeded", "userID", userID)
	return nil
}

func (s *PostgresStore) GetNudgeResponses(userID string) ([]models.NudgeResponse, error) {
	var raw string
	err := s.db.QueryRow(`SELECT responses_json FROM nudge_responses WHERE user_id = $1`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetNudgeResponses query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query nudge responses for %s: %w", userID, err)
	}
	return responsesFromJSON(raw)
}

func (s *PostgresStore) SaveNudgeResponses(userID string, responses []models.NudgeResponse) error {
	raw, err := responsesToJSON(responses)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO nudge_responses (user_id, responses_json, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET responses_json = EXCLUDED.responses_json, updated_at = NOW()`, userID, raw)
	if err != nil {
		slog.Error("PostgresStore SaveNudgeResponses failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to save nudge responses for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore SaveNudgeResponses succeeded", "userID", userID, "count", len(responses))
	return nil
}

func (s *PostgresStore) GetInsightQueue(userID string) (json.RawMessage, bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT queue_json FROM insight_queues WHERE user_id = $1`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetInsightQueue query failed", "error", err, "userID", userID)
		return nil, false, fmt.Errorf("failed to query insight queue for %s: %w", userID, err)
	}
	return json.RawMessage(raw), true, nil
}

func (s *PostgresStore) SaveInsightQueue(userID string, queue json.RawMessage) error {
	_, err := s.db.Exec(`INSERT INTO insight_queues (user_id, queue_json, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET queue_json = EXCLUDED.queue_json, updated_at = NOW()`, userID, string(queue))
	if err != nil {
		slog.Error("PostgresStore SaveInsightQueue failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to save insight queue for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore SaveInsightQueue succeeded", "userID", userID)
	return nil
}

func (s *PostgresStore) SaveEngagementBatch(records []models.InsightEngagementRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("PostgresStore SaveEngagementBatch begin failed", "error", err)
		return fmt.Errorf("failed to begin engagement batch: %w", err)
	}
	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to marshal engagement record %s: %w", rec.EngagementKey(), err)
		}
		_, err = tx.Exec(`INSERT INTO insight_engagements (engagement_key, insight_id, session_id, record_json, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (engagement_key) DO UPDATE SET record_json = EXCLUDED.record_json, updated_at = NOW()`,
			rec.EngagementKey(), rec.InsightID, rec.SessionID, string(raw))
		if err != nil {
			tx.Rollback()
			slog.Error("PostgresStore SaveEngagementBatch upsert failed", "error", err, "key", rec.EngagementKey())
			return fmt.Errorf("failed to upsert engagement record %s: %w", rec.EngagementKey(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore SaveEngagementBatch commit failed", "error", err)
		return fmt.Errorf("failed to commit engagement batch: %w", err)
	}
	slog.Debug("PostgresStore SaveEngagementBatch succeeded", "count", len(records))
	return nil
}

func (s *PostgresStore) GetEngagement(insightID, sessionID string) (*models.InsightEngagementRecord, error) {
	key := models.InsightEngagementRecord{InsightID: insightID, SessionID: sessionID}.EngagementKey()
	var raw string
	err := s.db.QueryRow(`SELECT record_json FROM insight_engagements WHERE engagement_key = $1`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetEngagement query failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to query engagement %s: %w", key, err)
	}
	var rec models.InsightEngagementRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal engagement %s: %w", key, err)
	}
	return &rec, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
