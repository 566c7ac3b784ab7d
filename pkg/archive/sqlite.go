package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nbarki/shipdesk/internal/observability"
	"github.com/nbarki/shipdesk/pkg/persona"
	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by Load when no record exists for the id
var ErrNotFound = errors.New("transcript not found")

// SQLite is an Archiver backed by a local SQLite database
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLite opens (or creates) the archive database at dbPath
func NewSQLite(dbPath string, logger zerolog.Logger) (*SQLite, error) {
	observability.EnsureRegistered()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	// WAL mode for concurrent readers
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	a := &SQLite{db: db, logger: logger}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("Transcript archive opened")

	return a, nil
}

func (a *SQLite) initSchema() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			session_id TEXT PRIMARY KEY,
			record_id  TEXT NOT NULL,
			transcript TEXT NOT NULL,
			facts      TEXT,
			turn_count INTEGER NOT NULL,
			ended_at   TEXT NOT NULL
		)
	`)
	return err
}

// Archive writes the record for rec.SessionID. Non-empty transcripts
// overwrite any previous document for the same id; empty transcripts only
// create a record when none exists yet.
func (a *SQLite) Archive(ctx context.Context, rec Record) error {
	start := time.Now()

	err := a.archive(ctx, rec)
	observability.RecordArchive(time.Since(start), rec.TurnCount, err == nil)
	if err != nil {
		return err
	}

	a.logger.Info().
		Str("session_id", rec.SessionID).
		Int("turns", rec.TurnCount).
		Msg("Transcript archived")

	return nil
}

func (a *SQLite) archive(ctx context.Context, rec Record) error {
	if rec.SessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now()
	}

	transcript := rec.Transcript
	if transcript == nil {
		transcript = []persona.Exchange{}
	}
	transcriptJSON, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	var factsJSON any
	if rec.Facts != nil {
		data, err := json.Marshal(rec.Facts)
		if err != nil {
			return fmt.Errorf("failed to marshal facts: %w", err)
		}
		factsJSON = string(data)
	}

	recordID := uuid.New().String()
	endedAt := rec.EndedAt.UTC().Format(time.RFC3339Nano)

	if len(transcript) == 0 {
		// Keep any previously archived transcript intact.
		_, err = a.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO transcripts
				(session_id, record_id, transcript, facts, turn_count, ended_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.SessionID, recordID, string(transcriptJSON), factsJSON, rec.TurnCount, endedAt)
	} else {
		_, err = a.db.ExecContext(ctx, `
			INSERT INTO transcripts
				(session_id, record_id, transcript, facts, turn_count, ended_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				record_id  = excluded.record_id,
				transcript = excluded.transcript,
				facts      = excluded.facts,
				turn_count = excluded.turn_count,
				ended_at   = excluded.ended_at
		`, rec.SessionID, recordID, string(transcriptJSON), factsJSON, rec.TurnCount, endedAt)
	}
	if err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}

	return nil
}

// Load reads the archived record for a session id
func (a *SQLite) Load(ctx context.Context, sessionID string) (*Record, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT transcript, facts, turn_count, ended_at
		FROM transcripts WHERE session_id = ?
	`, sessionID)

	var (
		transcriptJSON string
		factsJSON      sql.NullString
		turnCount      int
		endedAt        string
	)
	if err := row.Scan(&transcriptJSON, &factsJSON, &turnCount, &endedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	rec := &Record{
		SessionID: sessionID,
		TurnCount: turnCount,
	}
	if err := json.Unmarshal([]byte(transcriptJSON), &rec.Transcript); err != nil {
		return nil, fmt.Errorf("failed to parse transcript: %w", err)
	}
	if factsJSON.Valid {
		rec.Facts = &persona.Facts{}
		if err := json.Unmarshal([]byte(factsJSON.String), rec.Facts); err != nil {
			return nil, fmt.Errorf("failed to parse facts: %w", err)
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, endedAt); err == nil {
		rec.EndedAt = ts
	}

	return rec, nil
}

// Close closes the underlying database
func (a *SQLite) Close() error {
	return a.db.Close()
}
