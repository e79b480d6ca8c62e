package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/wesm/issue-triage/internal/models"
)

// DB represents the database connection
type DB struct {
	*sql.DB
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Initialize creates the database schema if it doesn't exist
func (db *DB) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS issue_snapshots (
		repository TEXT NOT NULL,
		number INTEGER NOT NULL,
		node_id TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		is_pull_request BOOLEAN NOT NULL DEFAULT 0,
		weight INTEGER NOT NULL,
		reactions_total INTEGER NOT NULL DEFAULT 0,
		is_member_response BOOLEAN NOT NULL DEFAULT 0,
		last_member_response TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		captured_at TIMESTAMP NOT NULL,
		PRIMARY KEY (repository, number)
	);

	CREATE INDEX IF NOT EXISTS idx_issue_snapshots_weight
		ON issue_snapshots (repository, weight DESC);

	CREATE TABLE IF NOT EXISTS sync_metadata (
		repository TEXT PRIMARY KEY,
		last_sync_time TIMESTAMP NOT NULL
	);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// ReplaceSnapshot replaces the stored issue list of a repository with records.
// Rows from earlier runs are dropped; only the latest ranking is kept.
func (db *DB) ReplaceSnapshot(repoFullName string, records []models.IssueRecord, capturedAt time.Time) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM issue_snapshots WHERE repository = ?`, repoFullName); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`
	INSERT INTO issue_snapshots (repository, number, node_id, title, url, is_pull_request, weight,
		reactions_total, is_member_response, last_member_response, created_at, captured_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err = stmt.Exec(
			repoFullName,
			r.Number,
			r.NodeID,
			r.Title,
			r.URL,
			r.Info.IsPull,
			r.Weight,
			r.ReactionsTotal,
			r.IsMemberResponse,
			r.LastMemberResponse,
			r.CreatedAt,
			capturedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save issue #%d: %w", r.Number, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// ListSnapshot gets the stored issue list of a repository, highest weight first
func (db *DB) ListSnapshot(repoFullName string) ([]models.Snapshot, error) {
	query := `
	SELECT repository, number, node_id, title, url, is_pull_request, weight, reactions_total,
		is_member_response, last_member_response, created_at, captured_at
	FROM issue_snapshots
	WHERE repository = ?
	ORDER BY weight DESC, number ASC
	`

	rows, err := db.Query(query, repoFullName)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	var snapshots []models.Snapshot
	for rows.Next() {
		var s models.Snapshot
		var lastResponse sql.NullTime
		err := rows.Scan(
			&s.Repository,
			&s.Number,
			&s.NodeID,
			&s.Title,
			&s.URL,
			&s.IsPull,
			&s.Weight,
			&s.ReactionsTotal,
			&s.IsMemberResponse,
			&lastResponse,
			&s.CreatedAt,
			&s.CapturedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		if lastResponse.Valid {
			t := lastResponse.Time
			s.LastMemberResponse = &t
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot rows: %w", err)
	}

	return snapshots, nil
}

// GetLastSyncTime gets the last sync time for a repository
func (db *DB) GetLastSyncTime(repoFullName string) (time.Time, error) {
	var lastSyncTime time.Time
	query := `SELECT last_sync_time FROM sync_metadata WHERE repository = ?`

	err := db.QueryRow(query, repoFullName).Scan(&lastSyncTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// If no sync metadata exists, return zero time
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get last sync time: %w", err)
	}

	return lastSyncTime, nil
}

// UpdateLastSyncTime updates the last sync time for a repository
func (db *DB) UpdateLastSyncTime(repoFullName string, syncTime time.Time) error {
	query := `
	INSERT INTO sync_metadata (repository, last_sync_time)
	VALUES (?, ?)
	ON CONFLICT(repository) DO UPDATE SET
		last_sync_time = excluded.last_sync_time
	`

	_, err := db.Exec(query, repoFullName, syncTime)
	if err != nil {
		return fmt.Errorf("failed to update last sync time: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
