// Package store provides storage backends for NudgePipe.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/NudgePipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists NudgePipe documents in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetNudgeHistory(userID string) (map[models.NudgeKind]time.Time, error) {
	var raw string
	err := s.db.QueryRow(`SELECT history_json FROM nudge_history WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return map[models.NudgeKind]time.Time{}, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetNudgeHistory query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query nudge history for %s: %w", userID, err)
	}
	history, err := historyFromJSON(raw)
	if err != nil {
		slog.Error("SQLiteStore GetNudgeHistory parse failed", "error", err, "userID", userID)
		return nil, err
	}
	return history, nil
}

func (s *SQLiteStore) RecordNudgeShown(userID string, kind models.NudgeKind, shownAt time.Time) error {
	history, err := s.GetNudgeHistory(userID)
	if err != nil {
		return err
	}
	history[kind] = shownAt
	raw, err := historyToJSON(history)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO nudge_history (user_id, history_json, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET history_json = excluded.history_json, updated_at = CURRENT_TIMESTAMP`, userID, raw)
	if err != nil {
		slog.Error("SQLiteStore RecordNudgeShown failed", "error", err, "userID", userID, "kind", kind)
		return fmt.Errorf("failed to record nudge shown for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore RecordNudgeShown succeeded", "userID", userID, "kind", kind)
	return nil
}

func (s *SQLiteStore) ResetNudgeHistory(userID string) error {
	_, err := s.db.Exec(`INSERT INTO nudge_history (user_id, history_json, updated_at) VALUES (?, '{}', CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET history_json = '{}', updated_at = CURRENT_TIMESTAMP`, userID)
	if err != nil {
		slog.Error("SQLiteStore ResetNudgeHistory failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to reset nudge history for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore ResetNudgeHistory succeeded", "userID", userID)
	return nil
}

func (s *SQLiteStore) GetNudgeResponses(userID string) ([]models.NudgeResponse, error) {
	var raw string
	err := s.db.QueryRow(`SELECT responses_json FROM nudge_responses WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetNudgeResponses query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query nudge responses for %s: %w", userID, err)
	}
	return responsesFromJSON(raw)
}

func (s *SQLiteStore) SaveNudgeResponses(userID string, responses []models.NudgeResponse) error {
	raw, err := responsesToJSON(responses)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO nudge_responses (user_id, responses_json, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET responses_json = excluded.responses_json, updated_at = CURRENT_TIMESTAMP`, userID, raw)
	if err != nil {
		slog.Error("SQLiteStore SaveNudgeResponses failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to save nudge responses for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore SaveNudgeResponses succeeded", "userID", userID, "count", len(responses))
	return nil
}

func (s *SQLiteStore) GetInsightQueue(userID string) (json.RawMessage, bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT queue_json FROM insight_queues WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetInsightQueue query failed", "error", err, "userID", userID)
		return nil, false, fmt.Errorf("failed to query insight queue for %s: %w", userID, err)
	}
	return json.RawMessage(raw), true, nil
}

func (s *SQLiteStore) SaveInsightQueue(userID string, queue json.RawMessage) error {
	_, err := s.db.Exec(`INSERT INTO insight_queues (user_id, queue_json, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET queue_json = excluded.queue_json, updated_at = CURRENT_TIMESTAMP`, userID, string(queue))
	if err != nil {
		slog.Error("SQLiteStore SaveInsightQueue failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to save insight queue for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore SaveInsightQueue succeeded", "userID", userID)
	return nil
}

func (s *SQLiteStore) SaveEngagementBatch(records []models.InsightEngagementRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore SaveEngagementBatch begin failed", "error", err)
		return fmt.Errorf("failed to begin engagement batch: %w", err)
	}
	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to marshal engagement record %s: %w", rec.EngagementKey(), err)
		}
		_, err = tx.Exec(`INSERT INTO insight_engagements (engagement_key, insight_id, session_id, record_json, updated_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(engagement_key) DO UPDATE SET record_json = excluded.record_json, updated_at = CURRENT_TIMESTAMP`,
			rec.EngagementKey(), rec.InsightID, rec.SessionID, string(raw))
		if err != nil {
			tx.Rollback()
			slog.Error("SQLiteStore SaveEngagementBatch upsert failed", "error", err, "key", rec.EngagementKey())
			return fmt.Errorf("failed to upsert engagement record %s: %w", rec.EngagementKey(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore SaveEngagementBatch commit failed", "error", err)
		return fmt.Errorf("failed to commit engagement batch: %w", err)
	}
	slog.Debug("SQLiteStore SaveEngagementBatch succeeded", "count", len(records))
	return nil
}

func (s *SQLiteStore) GetEngagement(insightID, sessionID string) (*models.InsightEngagementRecord, error) {
	key := models.InsightEngagementRecord{InsightID: insightID, SessionID: sessionID}.EngagementKey()
	var raw string
	err := s.db.QueryRow(`SELECT record_json FROM insight_engagements WHERE engagement_key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetEngagement query failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to query engagement %s: %w", key, err)
	}
	var rec models.InsightEngagementRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal engagement %s: %w", key, err)
	}
	return &rec, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
